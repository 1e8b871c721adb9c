package render

import (
	"encoding/json"
	"io"
	"strconv"

	"github.com/gocarina/gocsv"

	"ivsurface/internal/models"
)

// JSON writes the frame, grid included, as indented JSON. Undefined grid
// sites are null.
func JSON(w io.Writer, f *Frame) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(f)
}

// ContractsCSV writes one row per contract point.
func ContractsCSV(w io.Writer, points []models.ContractPoint) error {
	rows := make([]*models.ContractPoint, len(points))
	for i := range points {
		p := points[i]
		if p.Expiration == "" && !p.ExpirationDate.IsZero() {
			p.Expiration = p.ExpirationDate.Format("2006-01-02")
		}
		rows[i] = &p
	}
	return gocsv.Marshal(rows, w)
}

// gridRow is one grid site in long format. Undefined sites leave
// ImpliedVolatility empty.
type gridRow struct {
	TimeToExpiration  string `csv:"time_to_expiration"`
	Y                 string `csv:"y"`
	ImpliedVolatility string `csv:"implied_volatility"`
}

// GridCSV writes the grid in long format, one row per site, x varying fastest.
func GridCSV(w io.Writer, f *Frame) error {
	g := f.Grid
	rows := make([]*gridRow, 0, len(g.XAxis)*len(g.YAxis))
	for j, y := range g.YAxis {
		for i, x := range g.XAxis {
			row := &gridRow{
				TimeToExpiration: formatFloat(x),
				Y:                formatFloat(y),
			}
			if v, ok := g.At(i, j); ok {
				row.ImpliedVolatility = formatFloat(v)
			}
			rows = append(rows, row)
		}
	}
	return gocsv.Marshal(rows, w)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
