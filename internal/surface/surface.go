// Package surface turns scattered implied-volatility observations into a
// regular grid suitable for 3-D rendering.
//
// Interpolation is Clough-Tocher: a C1 piecewise-cubic surface over the
// Delaunay triangulation of the observations. Sites outside the convex hull
// of the observations stay undefined (NaN) and every defined value is
// floored at zero.
package surface

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"ivsurface/internal/errors"
	"ivsurface/internal/models"
)

// DefaultResolution is the number of samples along each grid axis.
const DefaultResolution = 100

const (
	// machineEps is the float64 spacing at 1.0.
	machineEps = 0x1p-52
	// baryEps is the barycentric tolerance for deciding a site is inside a triangle.
	baryEps = 100 * machineEps
)

// Builder constructs surfaces. The zero value is not usable; use NewBuilder.
type Builder struct {
	resolution int
}

// Option configures a Builder.
type Option func(*Builder)

// WithResolution sets the number of samples per axis. Values below 2 are ignored.
func WithResolution(n int) Option {
	return func(b *Builder) {
		if n >= 2 {
			b.resolution = n
		}
	}
}

// NewBuilder creates a Builder.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{resolution: DefaultResolution}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Resolution returns the number of samples per axis.
func (b *Builder) Resolution() int {
	return b.resolution
}

// Build interpolates points onto a DefaultResolution x DefaultResolution grid.
func Build(points []models.ContractPoint, mode Mode) (*Grid, error) {
	return NewBuilder().Build(points, mode)
}

// Build interpolates points onto the builder's grid. The x-axis is time to
// expiration, the y-axis strike or moneyness per mode, the value implied
// volatility.
//
// It fails with errors.ErrEmptyInput when points is empty and with a
// *errors.DegenerateRangeError (matching errors.ErrDegenerateRange) when
// either axis has a single distinct value or the points are collinear.
func (b *Builder) Build(points []models.ContractPoint, mode Mode) (*Grid, error) {
	if len(points) == 0 {
		return nil, errors.ErrEmptyInput
	}

	x := make([]float64, len(points))
	y := make([]float64, len(points))
	z := make([]float64, len(points))
	for i, p := range points {
		x[i] = p.TimeToExpiration
		y[i] = mode.value(p)
		z[i] = p.ImpliedVolatility
		if !finite(x[i]) || !finite(y[i]) || !finite(z[i]) {
			return nil, errors.NewValidationError("points", i, "non-finite coordinate or implied volatility")
		}
	}

	yName := "strike"
	if mode == ModeMoneyness {
		yName = "moneyness"
	}
	if d := countDistinct(x); d < 2 {
		return nil, errors.NewDegenerateRangeError("time_to_expiration", d, nil)
	}
	if d := countDistinct(y); d < 2 {
		return nil, errors.NewDegenerateRangeError(yName, d, nil)
	}

	n := b.resolution
	xMin, xMax := floats.Min(x), floats.Max(x)
	yMin, yMax := floats.Min(y), floats.Max(y)
	xAxis := floats.Span(make([]float64, n), xMin, xMax)
	yAxis := floats.Span(make([]float64, n), yMin, yMax)
	xAxis[n-1], yAxis[n-1] = xMax, yMax

	// Work in the unit square so that years and strike prices weigh equally
	// in the triangulation.
	sx, sy := xMax-xMin, yMax-yMin
	sites, values := mergeDuplicates(x, y, z, func(xv, yv float64) point {
		return point{(xv - xMin) / sx, (yv - yMin) / sy}
	})

	m, err := triangulate(sites)
	if err != nil {
		if errors.Is(err, errCollinear) {
			return nil, errors.NewDegenerateRangeError("xy", -1, err)
		}
		return nil, errors.Wrap(errors.ErrInternal, err.Error())
	}
	ct := newCloughTocher(m, values)

	u := make([]float64, n)
	v := make([]float64, n)
	for i := range u {
		u[i] = (xAxis[i] - xMin) / sx
		v[i] = (yAxis[i] - yMin) / sy
	}

	zGrid := newNaNMatrix(n, n)
	scale := float64(n - 1)
	for t, tri := range m.tris {
		p0, p1, p2 := m.pts[tri[0]], m.pts[tri[1]], m.pts[tri[2]]
		iLo, iHi := indexRange(math.Min(p0.x, math.Min(p1.x, p2.x)), math.Max(p0.x, math.Max(p1.x, p2.x)), scale)
		jLo, jHi := indexRange(math.Min(p0.y, math.Min(p1.y, p2.y)), math.Max(p0.y, math.Max(p1.y, p2.y)), scale)
		for j := jLo; j <= jHi; j++ {
			for i := iLo; i <= iHi; i++ {
				if !math.IsNaN(zGrid[j][i]) {
					continue
				}
				bc := ct.barycentric(t, point{u[i], v[j]})
				if bc[0] < -baryEps || bc[1] < -baryEps || bc[2] < -baryEps {
					continue
				}
				val := ct.eval(t, bc)
				if !finite(val) {
					return nil, errors.Wrap(errors.ErrInternal,
						fmt.Sprintf("interpolant not finite at (%g, %g)", xAxis[i], yAxis[j]))
				}
				// Cubic overshoot can dip below zero; a volatility cannot.
				zGrid[j][i] = math.Max(val, 0)
			}
		}
	}

	return &Grid{
		XAxis: xAxis,
		YAxis: yAxis,
		Z:     zGrid,
		Mode:  mode,
	}, nil
}

// indexRange returns the grid indices whose unit coordinate may fall in [lo, hi].
func indexRange(lo, hi, scale float64) (int, int) {
	const margin = 1e-9
	first := int(math.Ceil((lo - margin) * scale))
	last := int(math.Floor((hi + margin) * scale))
	if first < 0 {
		first = 0
	}
	if last > int(scale) {
		last = int(scale)
	}
	return first, last
}

// mergeDuplicates collapses observations sharing the same (x, y) into one
// site carrying their mean value.
func mergeDuplicates(x, y, z []float64, project func(x, y float64) point) ([]point, []float64) {
	index := make(map[[2]float64]int, len(x))
	var sites []point
	var sums []float64
	var counts []int
	for i := range x {
		key := [2]float64{x[i], y[i]}
		if k, ok := index[key]; ok {
			sums[k] += z[i]
			counts[k]++
			continue
		}
		index[key] = len(sites)
		sites = append(sites, project(x[i], y[i]))
		sums = append(sums, z[i])
		counts = append(counts, 1)
	}
	values := make([]float64, len(sums))
	for k := range sums {
		values[k] = sums[k] / float64(counts[k])
	}
	return sites, values
}

func countDistinct(vals []float64) int {
	seen := make(map[float64]struct{}, len(vals))
	for _, v := range vals {
		seen[v] = struct{}{}
	}
	return len(seen)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
