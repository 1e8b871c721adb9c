package render

import (
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"math"
)

// PlotlyCDN is the Plotly bundle the generated page loads.
const PlotlyCDN = "https://cdn.plot.ly/plotly-2.35.2.min.js"

var pageTemplate = template.Must(template.New("surface").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<script src="{{.CDN}}"></script>
<style>
body { font-family: sans-serif; margin: 1rem 2rem; }
.caption { color: #555; margin: 0.25rem 0 1rem; }
.controls label { margin-right: 1rem; }
.message { color: #a33; }
</style>
</head>
<body>
<h2>{{.Title}}</h2>
{{- with .Form}}
<form class="controls" method="get" action="{{.Action}}">
<label>Ticker <input name="ticker" value="{{.Ticker}}" size="8"></label>
<label><input type="radio" name="mode" value="strike"{{if eq .Mode "strike"}} checked{{end}}> Strike</label>
<label><input type="radio" name="mode" value="moneyness"{{if eq .Mode "moneyness"}} checked{{end}}> Moneyness</label>
<button type="submit">Plot</button>
</form>
{{- end}}
{{- if .Message}}
<p class="message">{{.Message}}</p>
{{- end}}
{{- if .Figure}}
<p class="caption">{{.Caption}}</p>
<div id="surface" style="width:100%;height:{{.Height}}px;"></div>
<script>
var figure = {{.Figure}};
Plotly.newPlot("surface", figure.data, figure.layout, {responsive: true});
</script>
{{- end}}
</body>
</html>
`))

type pageData struct {
	Title   string
	Caption string
	CDN     string
	Height  int
	Figure  template.JS
	Form    *Form
	Message string
}

// Form is the ticker and mode selector drawn above an interactive page.
type Form struct {
	Action string
	Ticker string
	Mode   string // strike or moneyness
}

type axisContour struct {
	Show  bool     `json:"show"`
	Color string   `json:"color"`
	Start *float64 `json:"start,omitempty"`
}

type surfaceTrace struct {
	Type          string                 `json:"type"`
	Name          string                 `json:"name,omitempty"`
	X             []float64              `json:"x"`
	Y             []float64              `json:"y"`
	Z             [][]*float64           `json:"z"`
	Colorscale    interface{}            `json:"colorscale"`
	Opacity       float64                `json:"opacity"`
	ShowScale     bool                   `json:"showscale"`
	ConnectGaps   *bool                  `json:"connectgaps,omitempty"`
	Contours      map[string]axisContour `json:"contours,omitempty"`
	HoverTemplate string                 `json:"hovertemplate,omitempty"`
	HoverInfo     string                 `json:"hoverinfo,omitempty"`
}

type sceneAxis struct {
	Title struct {
		Text string `json:"text"`
	} `json:"title"`
	Range []float64 `json:"range,omitempty"`
}

type figure struct {
	Data   []surfaceTrace `json:"data"`
	Layout struct {
		Title struct {
			Text string `json:"text"`
		} `json:"title"`
		Scene struct {
			XAxis  sceneAxis `json:"xaxis"`
			YAxis  sceneAxis `json:"yaxis"`
			ZAxis  sceneAxis `json:"zaxis"`
			Camera struct {
				Eye Eye `json:"eye"`
			} `json:"camera"`
		} `json:"scene"`
		Margin map[string]int `json:"margin"`
		Height int            `json:"height"`
	} `json:"layout"`
}

// Figure builds the Plotly figure for f: the surface itself plus a
// translucent plane at zero volatility.
func Figure(f *Frame) ([]byte, error) {
	g := f.Grid
	values := make([][]*float64, len(g.Z))
	zeros := make([][]*float64, len(g.Z))
	zero := 0.0
	for j, row := range g.Z {
		values[j] = make([]*float64, len(row))
		zeros[j] = make([]*float64, len(row))
		for i := range row {
			if !math.IsNaN(row[i]) {
				values[j][i] = &row[i]
			}
			zeros[j][i] = &zero
		}
	}

	noGaps := false
	contourStart := 0.0
	var fig figure
	fig.Data = []surfaceTrace{
		{
			Type:        "surface",
			Name:        "implied volatility",
			X:           g.XAxis,
			Y:           g.YAxis,
			Z:           values,
			Colorscale:  "Balance",
			Opacity:     0.9,
			ShowScale:   true,
			ConnectGaps: &noGaps,
			Contours: map[string]axisContour{
				"x": {Show: true, Color: "grey"},
				"y": {Show: true, Color: "grey"},
				"z": {Show: true, Color: "grey", Start: &contourStart},
			},
			HoverTemplate: fmt.Sprintf("Years: %%{x:.2f}<br>%s: %%{y:.2f}<br>IV: %%{z:.2f}<extra></extra>", f.YTitle),
		},
		{
			Type:       "surface",
			Name:       "zero",
			X:          g.XAxis,
			Y:          g.YAxis,
			Z:          zeros,
			Colorscale: [][]interface{}{{0, "rgba(0,0,0,0.1)"}, {1, "rgba(0,0,0,0.1)"}},
			Opacity:    0.3,
			HoverInfo:  "skip",
		},
	}

	fig.Layout.Title.Text = f.Title
	fig.Layout.Scene.XAxis.Title.Text = f.XTitle
	fig.Layout.Scene.YAxis.Title.Text = f.YTitle
	fig.Layout.Scene.ZAxis.Title.Text = f.ZTitle
	fig.Layout.Scene.ZAxis.Range = []float64{f.ZRange[0], f.ZRange[1]}
	fig.Layout.Scene.Camera.Eye = f.Eye
	fig.Layout.Margin = map[string]int{"l": 0, "r": 0, "b": 0, "t": 40}
	fig.Layout.Height = f.Height

	return json.Marshal(fig)
}

// HTML writes a self-contained page that draws f with Plotly.
func HTML(w io.Writer, f *Frame) error {
	return Page(w, f, nil)
}

// Page writes the surface page for f, with form above it when form is non-nil.
func Page(w io.Writer, f *Frame, form *Form) error {
	fig, err := Figure(f)
	if err != nil {
		return fmt.Errorf("failed to encode figure: %w", err)
	}
	return pageTemplate.Execute(w, pageData{
		Title:   f.Title,
		Caption: f.Caption,
		CDN:     PlotlyCDN,
		Height:  f.Height,
		Figure:  template.JS(fig),
		Form:    form,
	})
}

// MessagePage writes a page holding only form and message, used when no
// surface can be drawn.
func MessagePage(w io.Writer, form *Form, message string) error {
	return pageTemplate.Execute(w, pageData{
		Title:   "Implied Volatility Surface",
		CDN:     PlotlyCDN,
		Form:    form,
		Message: message,
	})
}
