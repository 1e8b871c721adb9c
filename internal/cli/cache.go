package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"ivsurface/internal/quotes"
)

// cacheEntry is a cached snapshot as reported by 'cache list'.
type cacheEntry struct {
	Ticker      string    `json:"ticker"`
	SpotPrice   float64   `json:"spot_price"`
	Contracts   int       `json:"contracts"`
	Expirations int       `json:"expirations"`
	FetchedAt   time.Time `json:"fetched_at"`
	AgeSeconds  int64     `json:"age_seconds"`
	Fresh       bool      `json:"fresh"`
}

func newCacheCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage cached option chains",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List cached snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			infos, err := app.Store.ListSnapshots(cmd.Context())
			if err != nil {
				return err
			}

			now := app.Now()
			ttl := app.Config.Cache.TTL
			entries := make([]cacheEntry, 0, len(infos))
			for _, info := range infos {
				age := now.Sub(info.FetchedAt)
				entries = append(entries, cacheEntry{
					Ticker:      info.Ticker,
					SpotPrice:   info.SpotPrice,
					Contracts:   info.Points,
					Expirations: info.Expirations,
					FetchedAt:   info.FetchedAt,
					AgeSeconds:  int64(age / time.Second),
					Fresh:       age >= 0 && age < ttl,
				})
			}

			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(entries)
			}
			if len(entries) == 0 {
				output.Dim("No cached snapshots")
				return nil
			}

			table := NewTable(output, "TICKER", "SPOT", "CONTRACTS", "EXPIRATIONS", "FETCHED", "AGE", "STATUS")
			for _, e := range entries {
				status := output.Green("fresh")
				if !e.Fresh {
					status = output.Yellow("stale")
				}
				table.AddRow(
					e.Ticker,
					FormatPrice(e.SpotPrice),
					fmt.Sprintf("%d", e.Contracts),
					fmt.Sprintf("%d", e.Expirations),
					FormatDateTime(e.FetchedAt),
					FormatDuration(time.Duration(e.AgeSeconds)*time.Second),
					status,
				)
			}
			table.Render()
			output.Dim("TTL: %s", ttl)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear [TICKER]",
		Short: "Remove one or all cached snapshots",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if len(args) == 1 {
				ticker, err := quotes.NormalizeTicker(args[0])
				if err != nil {
					return err
				}
				if err := app.Collector.Cache().Invalidate(cmd.Context(), ticker); err != nil {
					return err
				}
				if output.IsJSON() {
					return output.JSON(map[string]string{"cleared": ticker})
				}
				output.Success("✓ Cleared cached quotes for %s", ticker)
				return nil
			}

			n, err := app.Store.Clear(cmd.Context())
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]int{"cleared": n})
			}
			output.Success("✓ Cleared %d cached snapshot(s)", n)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Remove snapshots older than the cache TTL",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := app.Store.Purge(cmd.Context(), app.Now().Add(-app.Config.Cache.TTL))
			if err != nil {
				return err
			}
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]int{"purged": n})
			}
			output.Success("✓ Purged %d stale snapshot(s)", n)
			return nil
		},
	})

	return cmd
}
