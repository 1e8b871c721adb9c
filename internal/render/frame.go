// Package render turns a surface grid into something a person can look at:
// an interactive Plotly page, or the raw grid as JSON or CSV.
package render

import (
	"fmt"
	"time"

	"ivsurface/internal/errors"
	"ivsurface/internal/surface"
)

// ZMargin is the head-room added above the highest defined value.
const ZMargin = 1.1

// Eye is a 3-D camera position.
type Eye struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// DefaultEye looks at the surface from the front-right, slightly above.
var DefaultEye = Eye{X: 1.5, Y: 1.5, Z: 0.8}

// Frame is everything needed to display a grid besides the grid itself.
type Frame struct {
	Ticker   string        `json:"ticker"`
	Title    string        `json:"title"`
	XTitle   string        `json:"x_title"`
	YTitle   string        `json:"y_title"`
	ZTitle   string        `json:"z_title"`
	ZRange   [2]float64    `json:"z_range"`
	AsOf     time.Time     `json:"as_of"`
	Caption  string        `json:"caption"`
	Eye      Eye           `json:"camera_eye"`
	Height   int           `json:"height"`
	Coverage float64       `json:"coverage"`
	Grid     *surface.Grid `json:"grid"`
}

// NewFrame frames grid for ticker with data dated asOf.
// The z-axis runs from zero to ZMargin times the highest defined value.
func NewFrame(grid *surface.Grid, ticker string, asOf time.Time) (*Frame, error) {
	if grid == nil {
		return nil, errors.ErrEmptyInput
	}
	zMax, ok := grid.MaxDefined()
	if !ok {
		return nil, errors.Wrap(errors.ErrEmptyInput, "surface has no defined values")
	}
	upper := zMax * ZMargin
	if upper <= 0 {
		// an all-zero surface still needs a visible axis
		upper = 1
	}

	return &Frame{
		Ticker:   ticker,
		Title:    fmt.Sprintf("Implied Volatility Surface for %s", ticker),
		XTitle:   "Years to Expiration",
		YTitle:   grid.Mode.String(),
		ZTitle:   "Implied Volatility",
		ZRange:   [2]float64{0, upper},
		AsOf:     asOf,
		Caption:  Caption(asOf),
		Eye:      DefaultEye,
		Height:   800,
		Coverage: grid.Coverage(),
		Grid:     grid,
	}, nil
}

// Caption returns the data-freshness line for asOf.
func Caption(asOf time.Time) string {
	return "Data as of " + asOf.Format("2006-01-02")
}
