package surface

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"gonum.org/v1/gonum/floats"

	"ivsurface/internal/errors"
	"ivsurface/internal/models"
)

// randomChain generates n contracts with scattered expirations and strikes
// around a fixed spot price.
func randomChain(seed int64, n int, spot float64) []models.ContractPoint {
	rng := rand.New(rand.NewSource(seed))
	points := make([]models.ContractPoint, 0, n)
	for i := 0; i < n; i++ {
		tte := math.Round((0.01+rng.Float64()*2)*100) / 100
		strike := math.Round(spot*(0.5+rng.Float64())*2) / 2
		iv := rng.Float64() * 1.5
		if rng.Intn(4) == 0 {
			// sharp jumps encourage cubic overshoot
			iv = 0
		}
		points = append(points, models.ContractPoint{
			TimeToExpiration:  tte,
			Strike:            strike,
			Moneyness:         strike / spot,
			ImpliedVolatility: iv,
		})
	}
	return points
}

func newProperties() *gopter.Properties {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	parameters.Rng.Seed(time.Now().UnixNano())
	return gopter.NewProperties(parameters)
}

// Property: for any non-degenerate point set the grid is DefaultResolution
// square and its axes span exactly the observed ranges.
func TestProperty_GridShapeAndAxisBounds(t *testing.T) {
	properties := newProperties()

	properties.Property("axes have resolution points and span [min, max]", prop.ForAll(
		func(seed int64, n int) bool {
			points := randomChain(seed, n, 450)
			grid, err := Build(points, ModeStrike)
			if err != nil {
				// degenerate draws are allowed to fail, but only with a typed error
				return isTypedBuildError(err)
			}
			res := DefaultResolution
			if len(grid.XAxis) != res || len(grid.YAxis) != res || len(grid.Z) != res {
				t.Logf("bad shape: %d %d %d", len(grid.XAxis), len(grid.YAxis), len(grid.Z))
				return false
			}
			for _, row := range grid.Z {
				if len(row) != res {
					return false
				}
			}

			x := make([]float64, len(points))
			y := make([]float64, len(points))
			for i, p := range points {
				x[i], y[i] = p.TimeToExpiration, p.Strike
			}
			const tol = 1e-12
			return math.Abs(grid.XAxis[0]-floats.Min(x)) < tol &&
				math.Abs(grid.XAxis[res-1]-floats.Max(x)) < tol &&
				math.Abs(grid.YAxis[0]-floats.Min(y)) < tol &&
				math.Abs(grid.YAxis[res-1]-floats.Max(y)) < tol
		},
		gen.Int64(),
		gen.IntRange(4, 60),
	))

	properties.TestingRun(t)
}

// Property: no defined value is negative.
func TestProperty_ZeroFloor(t *testing.T) {
	properties := newProperties()

	properties.Property("every defined site is >= 0", prop.ForAll(
		func(seed int64, n int) bool {
			grid, err := Build(randomChain(seed, n, 120), ModeMoneyness)
			if err != nil {
				return isTypedBuildError(err)
			}
			for j := range grid.Z {
				for i := range grid.Z[j] {
					if v, ok := grid.At(i, j); ok && v < 0 {
						t.Logf("negative value %v at (%d,%d)", v, i, j)
						return false
					}
				}
			}
			return true
		},
		gen.Int64(),
		gen.IntRange(4, 60),
	))

	properties.TestingRun(t)
}

// Property: a grid site that coincides with an observation reproduces the
// observed implied volatility.
func TestProperty_ExactAtObservations(t *testing.T) {
	properties := newProperties()
	res := DefaultResolution

	xs := floats.Span(make([]float64, res), 0.05, 2.0)
	ys := floats.Span(make([]float64, res), 50, 250)
	xs[res-1], ys[res-1] = 2.0, 250

	properties.Property("observations placed on grid sites are reproduced", prop.ForAll(
		func(seed int64, n int) bool {
			rng := rand.New(rand.NewSource(seed))
			type site struct{ i, j int }
			chosen := map[site]float64{
				{0, 0}:             rng.Float64(),
				{res - 1, 0}:       rng.Float64(),
				{0, res - 1}:       rng.Float64(),
				{res - 1, res - 1}: rng.Float64(),
			}
			for len(chosen) < n+4 {
				chosen[site{rng.Intn(res), rng.Intn(res)}] = rng.Float64()
			}

			var points []models.ContractPoint
			for s, iv := range chosen {
				points = append(points, models.ContractPoint{
					TimeToExpiration:  xs[s.i],
					Strike:            ys[s.j],
					Moneyness:         ys[s.j] / 100,
					ImpliedVolatility: iv,
				})
			}

			grid, err := Build(points, ModeStrike)
			if err != nil {
				t.Logf("Build failed: %v", err)
				return false
			}
			for s, iv := range chosen {
				v, ok := grid.At(s.i, s.j)
				if !ok || math.Abs(v-iv) > 1e-9 {
					t.Logf("site (%d,%d): expected %v, got %v (defined=%v)", s.i, s.j, iv, v, ok)
					return false
				}
			}
			return true
		},
		gen.Int64(),
		gen.IntRange(0, 40),
	))

	properties.TestingRun(t)
}

// Property: switching from strike to moneyness rescales only the y-axis.
// Spot prices are powers of two so the rescaling is exact.
func TestProperty_ModeSwitchRescalesYAxis(t *testing.T) {
	properties := newProperties()

	properties.Property("moneyness grid mirrors strike grid", prop.ForAll(
		func(seed int64, n int, exp int) bool {
			spot := math.Ldexp(1, exp)
			points := randomChain(seed, n, spot)
			byStrike, errS := Build(points, ModeStrike)
			byMoneyness, errM := Build(points, ModeMoneyness)
			if errS != nil || errM != nil {
				return (errS != nil) == (errM != nil) && isTypedBuildError(errS)
			}

			for i := range byStrike.XAxis {
				if byStrike.XAxis[i] != byMoneyness.XAxis[i] {
					return false
				}
				if math.Abs(byStrike.YAxis[i]/spot-byMoneyness.YAxis[i]) > 1e-9 {
					t.Logf("y-axis mismatch at %d: %v vs %v", i, byStrike.YAxis[i]/spot, byMoneyness.YAxis[i])
					return false
				}
			}
			for j := range byStrike.Z {
				for i := range byStrike.Z[j] {
					vs, okS := byStrike.At(i, j)
					vm, okM := byMoneyness.At(i, j)
					if okS != okM {
						t.Logf("coverage mismatch at (%d,%d)", i, j)
						return false
					}
					if okS && math.Abs(vs-vm) > 1e-4 {
						t.Logf("value mismatch at (%d,%d): %v vs %v", i, j, vs, vm)
						return false
					}
				}
			}
			return true
		},
		gen.Int64(),
		gen.IntRange(4, 40),
		gen.IntRange(5, 9),
	))

	properties.TestingRun(t)
}

func isTypedBuildError(err error) bool {
	return errors.Is(err, errors.ErrDegenerateRange)
}
