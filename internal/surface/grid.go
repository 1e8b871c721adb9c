package surface

import (
	"encoding/json"
	"math"
)

// Grid is an implied-volatility surface sampled on a regular lattice.
//
// Z[j][i] holds the value at (XAxis[i], YAxis[j]): one row per y value, the
// layout surface renderers expect. Sites outside the convex hull of the
// observations are NaN.
type Grid struct {
	XAxis []float64
	YAxis []float64
	Z     [][]float64
	Mode  Mode
}

// At returns the value at (XAxis[i], YAxis[j]) and whether it is defined.
func (g *Grid) At(i, j int) (float64, bool) {
	v := g.Z[j][i]
	return v, !math.IsNaN(v)
}

// Defined reports whether the site (XAxis[i], YAxis[j]) has coverage.
func (g *Grid) Defined(i, j int) bool {
	return !math.IsNaN(g.Z[j][i])
}

// MaxDefined returns the largest defined value. ok is false when no site is defined.
func (g *Grid) MaxDefined() (max float64, ok bool) {
	for _, row := range g.Z {
		for _, v := range row {
			if math.IsNaN(v) {
				continue
			}
			if !ok || v > max {
				max = v
				ok = true
			}
		}
	}
	return max, ok
}

// Coverage returns the fraction of sites with a defined value.
func (g *Grid) Coverage() float64 {
	total, defined := 0, 0
	for _, row := range g.Z {
		for _, v := range row {
			total++
			if !math.IsNaN(v) {
				defined++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(defined) / float64(total)
}

type gridJSON struct {
	Mode  Mode         `json:"mode"`
	XAxis []float64    `json:"x_axis"`
	YAxis []float64    `json:"y_axis"`
	Z     [][]*float64 `json:"z_grid"`
}

// MarshalJSON encodes undefined sites as null.
func (g *Grid) MarshalJSON() ([]byte, error) {
	out := gridJSON{
		Mode:  g.Mode,
		XAxis: g.XAxis,
		YAxis: g.YAxis,
		Z:     make([][]*float64, len(g.Z)),
	}
	for j, row := range g.Z {
		out.Z[j] = make([]*float64, len(row))
		for i := range row {
			if !math.IsNaN(row[i]) {
				out.Z[j][i] = &row[i]
			}
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores null sites as NaN.
func (g *Grid) UnmarshalJSON(b []byte) error {
	var in gridJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	g.Mode = in.Mode
	g.XAxis = in.XAxis
	g.YAxis = in.YAxis
	g.Z = make([][]float64, len(in.Z))
	for j, row := range in.Z {
		g.Z[j] = make([]float64, len(row))
		for i, v := range row {
			if v == nil {
				g.Z[j][i] = math.NaN()
			} else {
				g.Z[j][i] = *v
			}
		}
	}
	return nil
}

func newNaNMatrix(rows, cols int) [][]float64 {
	z := make([][]float64, rows)
	for j := range z {
		z[j] = make([]float64, cols)
		for i := range z[j] {
			z[j][i] = math.NaN()
		}
	}
	return z
}
