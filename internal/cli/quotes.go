package cli

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"ivsurface/internal/models"
	"ivsurface/internal/quotes"
	"ivsurface/internal/render"
)

// expirationSummary aggregates the contracts of one expiration.
type expirationSummary struct {
	Expiration       string  `json:"expiration"`
	TimeToExpiration float64 `json:"time_to_expiration"`
	Contracts        int     `json:"contracts"`
	MinStrike        float64 `json:"min_strike"`
	MaxStrike        float64 `json:"max_strike"`
	MinIV            float64 `json:"min_iv"`
	MaxIV            float64 `json:"max_iv"`
	ATMIV            float64 `json:"atm_iv"`

	atmDistance float64
}

// summarizeExpirations groups points by expiration, ordered by time to expiration.
func summarizeExpirations(points []models.ContractPoint) []expirationSummary {
	index := make(map[string]int)
	var out []expirationSummary
	for _, p := range points {
		key := p.Expiration + "|" + strconv.FormatFloat(p.TimeToExpiration, 'g', -1, 64)
		i, ok := index[key]
		if !ok {
			label := p.Expiration
			if label == "" {
				label = "-"
			}
			i = len(out)
			index[key] = i
			out = append(out, expirationSummary{
				Expiration:       label,
				TimeToExpiration: p.TimeToExpiration,
				MinStrike:        math.Inf(1),
				MaxStrike:        math.Inf(-1),
				MinIV:            math.Inf(1),
				MaxIV:            math.Inf(-1),
				atmDistance:      math.Inf(1),
			})
		}
		s := &out[i]
		s.Contracts++
		s.MinStrike = math.Min(s.MinStrike, p.Strike)
		s.MaxStrike = math.Max(s.MaxStrike, p.Strike)
		s.MinIV = math.Min(s.MinIV, p.ImpliedVolatility)
		s.MaxIV = math.Max(s.MaxIV, p.ImpliedVolatility)
		if d := math.Abs(p.Moneyness - 1); d < s.atmDistance {
			s.atmDistance = d
			s.ATMIV = p.ImpliedVolatility
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].TimeToExpiration < out[j].TimeToExpiration
	})
	return out
}

func newQuotesCmd(app *App) *cobra.Command {
	var (
		refresh bool
		asCSV   bool
		out     string
	)

	cmd := &cobra.Command{
		Use:   "quotes [TICKER]",
		Short: "Show the option quotes used to build a surface",
		Long: `Fetches (or reads from cache) the call contracts of TICKER that carry an
implied volatility and prints a summary per expiration.

With --csv the contracts are written as CSV, which 'surface --from-csv' can replay.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ticker := app.Config.Surface.DefaultTicker
			if len(args) > 0 {
				ticker = args[0]
			}

			snap, err := app.Collector.FetchQuotes(cmd.Context(), ticker, refresh)
			if err != nil {
				return err
			}

			if asCSV {
				if out == "" {
					out = "-"
				}
				return writeOutput(cmd, out, func(w io.Writer) error {
					return render.ContractsCSV(w, snap.Points)
				})
			}

			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(snap)
			}
			printQuotes(output, snap, app.Now(), app.Collector.Cache())
			return nil
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "ignore cached quotes")
	cmd.Flags().BoolVar(&asCSV, "csv", false, "write contracts as CSV")
	cmd.Flags().StringVarP(&out, "out", "o", "", "CSV output file (default: stdout)")

	return cmd
}

func printQuotes(output *Output, snap *models.OptionChainSnapshot, now time.Time, cache *quotes.Cache) {
	output.Bold("%s option chain", snap.Ticker)
	output.Printf("  Spot:        %s\n", FormatPrice(snap.SpotPrice))
	output.Printf("  Contracts:   %d\n", len(snap.Points))

	age := snap.Age(now)
	status := output.Green("fresh")
	if age >= cache.TTL() {
		status = output.Yellow("stale")
	}
	output.Printf("  Fetched:     %s (%s ago, %s)\n", FormatDateTime(snap.FetchedAt), FormatDuration(age), status)
	output.Println()

	table := NewTable(output, "EXPIRATION", "YEARS", "CONTRACTS", "STRIKES", "IV RANGE", "ATM IV")
	for _, s := range summarizeExpirations(snap.Points) {
		table.AddRow(
			s.Expiration,
			FormatYears(s.TimeToExpiration),
			fmt.Sprintf("%d", s.Contracts),
			FormatStrikeRange(s.MinStrike, s.MaxStrike),
			FormatIVRange(s.MinIV, s.MaxIV),
			FormatIV(s.ATMIV),
		)
	}
	table.Render()
}
