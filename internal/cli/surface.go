package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"ivsurface/internal/errors"
	"ivsurface/internal/logging"
	"ivsurface/internal/models"
	"ivsurface/internal/quotes"
	"ivsurface/internal/render"
	"ivsurface/internal/surface"
)

// surfaceResult summarizes a rendered surface.
type surfaceResult struct {
	Ticker     string  `json:"ticker"`
	Mode       string  `json:"mode"`
	Format     string  `json:"format"`
	Path       string  `json:"path"`
	Contracts  int     `json:"contracts"`
	Resolution int     `json:"resolution"`
	Coverage   float64 `json:"coverage"`
	MaxIV      float64 `json:"max_iv"`
	AsOf       string  `json:"as_of"`
}

func newSurfaceCmd(app *App) *cobra.Command {
	var (
		modeFlag   string
		format     string
		out        string
		resolution int
		refresh    bool
		fromCSV    string
	)

	cmd := &cobra.Command{
		Use:   "surface [TICKER]",
		Short: "Build and render the implied volatility surface of a ticker",
		Long: `Fetches the call option chain of TICKER, interpolates implied volatility
over time to expiration and strike (or moneyness) and writes the surface.

Points outside the convex hull of the quoted contracts are left undefined.
Use --out - to write to stdout.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ticker := app.Config.Surface.DefaultTicker
			if len(args) > 0 {
				ticker = args[0]
			}
			ticker, err := quotes.NormalizeTicker(ticker)
			if err != nil {
				return err
			}

			mode, err := surface.ParseMode(modeFlag)
			if err != nil {
				return err
			}
			format = strings.ToLower(format)
			if _, ok := surfaceWriters[format]; !ok {
				return errors.NewValidationError("format", format, "must be html, json or csv")
			}
			if resolution < 2 {
				return errors.NewValidationError("resolution", resolution, "must be at least 2")
			}

			log := logging.WithOperation(logging.WithTicker(app.Logger, ticker), "surface")

			snap, err := loadSnapshot(cmd, app, ticker, refresh, fromCSV)
			if err != nil {
				return err
			}

			grid, err := surface.NewBuilder(surface.WithResolution(resolution)).Build(snap.Points, mode)
			if err != nil {
				return err
			}
			log.Debug().
				Int("contracts", len(snap.Points)).
				Float64("coverage", grid.Coverage()).
				Msg("Surface built")

			frame, err := render.NewFrame(grid, ticker, app.Now())
			if err != nil {
				return err
			}

			if out == "" {
				out = filepath.Join(app.Config.Output.Dir, defaultSurfaceFile(ticker, mode, format))
			}
			if err := writeOutput(cmd, out, func(w io.Writer) error {
				return surfaceWriters[format](w, frame)
			}); err != nil {
				return err
			}

			maxIV, _ := grid.MaxDefined()
			result := surfaceResult{
				Ticker:     ticker,
				Mode:       mode.String(),
				Format:     format,
				Path:       out,
				Contracts:  len(snap.Points),
				Resolution: len(grid.XAxis),
				Coverage:   grid.Coverage(),
				MaxIV:      maxIV,
				AsOf:       frame.Caption,
			}

			// Keep stdout clean when the surface itself went there.
			output := NewOutput(cmd)
			if out == "-" {
				output = NewErrOutput(cmd)
			}
			if output.IsJSON() {
				return output.JSON(result)
			}
			printSurfaceResult(output, result, snap)
			return nil
		},
	}

	cmd.Flags().StringVarP(&modeFlag, "mode", "m", app.Config.Surface.DefaultMode, "y axis: strike or moneyness")
	cmd.Flags().StringVarP(&format, "format", "f", app.Config.Output.Format, "output format: html, json or csv")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file, - for stdout (default: <output.dir>/<TICKER>_iv_surface_<mode>.<format>)")
	cmd.Flags().IntVarP(&resolution, "resolution", "r", app.Config.Surface.Resolution, "grid points per axis")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "ignore cached quotes")
	cmd.Flags().StringVar(&fromCSV, "from-csv", "", "read contracts from a CSV written by 'quotes --csv' instead of fetching")

	return cmd
}

var surfaceWriters = map[string]func(io.Writer, *render.Frame) error{
	"html": render.HTML,
	"json": render.JSON,
	"csv":  render.GridCSV,
}

func defaultSurfaceFile(ticker string, mode surface.Mode, format string) string {
	name := strings.NewReplacer("^", "", "=", "_", ".", "_").Replace(ticker)
	return fmt.Sprintf("%s_iv_surface_%s.%s", name, strings.ToLower(mode.String()), format)
}

// loadSnapshot returns the contracts for ticker, either from a CSV replay
// file or through the caching collector.
func loadSnapshot(cmd *cobra.Command, app *App, ticker string, refresh bool, fromCSV string) (*models.OptionChainSnapshot, error) {
	if fromCSV != "" {
		return (&quotes.CSVFile{Path: fromCSV}).FetchChain(cmd.Context(), ticker)
	}
	return app.Collector.FetchQuotes(cmd.Context(), ticker, refresh)
}

// writeOutput runs write against path, or against the command's stdout when
// path is "-". Parent directories are created as needed.
func writeOutput(cmd *cobra.Command, path string, write func(io.Writer) error) error {
	if path == "-" {
		return write(cmd.OutOrStdout())
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

func printSurfaceResult(output *Output, r surfaceResult, snap *models.OptionChainSnapshot) {
	if r.Path == "-" {
		output.Success("✓ %s surface for %s written to stdout", r.Mode, r.Ticker)
	} else {
		output.Success("✓ %s surface for %s written to %s", r.Mode, r.Ticker, r.Path)
	}
	output.Printf("  Contracts:   %d across %d expirations\n", r.Contracts, len(snap.Expirations()))
	if snap.SpotPrice > 0 {
		output.Printf("  Spot:        %s\n", FormatPrice(snap.SpotPrice))
	}
	output.Printf("  Grid:        %d x %d, %s defined\n", r.Resolution, r.Resolution, FormatCoverage(r.Coverage))
	output.Printf("  Max IV:      %s\n", FormatIV(r.MaxIV))
	output.Dim("  %s", r.AsOf)
}
