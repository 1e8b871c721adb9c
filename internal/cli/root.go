package cli

import (
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"ivsurface/internal/config"
	"ivsurface/internal/logging"
	"ivsurface/internal/quotes"
	"ivsurface/internal/store"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2026-10-19"
)

// App holds the application dependencies.
type App struct {
	Config    *config.Config
	Logger    zerolog.Logger
	Store     store.SnapshotStore
	Provider  quotes.Provider
	Collector *quotes.Collector
	Now       func() time.Time
}

// NewApp wires the snapshot store, the Yahoo client and the collector from cfg.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	app := &App{
		Config: cfg,
		Logger: logger,
		Now:    time.Now,
	}

	app.Store = openStore(cfg.Cache, logger)

	burst := int(math.Ceil(cfg.Provider.RateLimit))
	if burst < 1 {
		burst = 1
	}
	app.Provider = quotes.NewYahooClient(
		quotes.WithBaseURL(cfg.Provider.BaseURL),
		quotes.WithCookieURL(cfg.Provider.CookieURL),
		quotes.WithTimeout(cfg.Provider.Timeout),
		quotes.WithUserAgent(cfg.Provider.UserAgent),
		quotes.WithMaxRetries(cfg.Provider.MaxRetries),
		quotes.WithRateLimit(cfg.Provider.RateLimit, burst),
		quotes.WithConcurrency(cfg.Provider.Workers),
		quotes.WithLogger(logger),
	)
	app.Collector = quotes.NewCollector(app.Provider, app.Store, cfg.Cache.TTL, logger)
	return app
}

// openStore opens the configured snapshot store, falling back to memory
// when the sqlite database cannot be opened.
func openStore(cfg config.CacheConfig, logger zerolog.Logger) store.SnapshotStore {
	if cfg.Backend != "sqlite" {
		return store.NewMemoryStore()
	}
	s, err := store.NewSQLiteStore(cfg.Path)
	if err != nil {
		logger.Warn().Err(err).Str("path", cfg.Path).Msg("Failed to open snapshot store, caching in memory")
		return store.NewMemoryStore()
	}
	logger.Debug().Str("path", cfg.Path).Msg("SQLite snapshot store initialized")
	return s
}

// Close releases the snapshot store.
func (a *App) Close() error {
	if a.Store == nil {
		return nil
	}
	return a.Store.Close()
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ivsurface",
		Short: "Implied volatility surfaces from listed option chains",
		Long: `ivsurface fetches the call option chain of a ticker, interpolates the
implied volatility of every quoted contract onto a regular grid and renders
the result as an interactive 3D surface.

The y axis is either the strike price or the moneyness (strike / spot).
Quotes are cached per ticker for the configured TTL (one hour by default).`,
		Example: `  ivsurface surface SPY
  ivsurface surface AAPL --mode moneyness --out aapl.html
  ivsurface surface QQQ --format json --out -
  ivsurface quotes SPY --csv --out spy.csv`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			cmd.SetContext(logging.WithLogger(cmd.Context(), app.Logger))
			return nil
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/ivsurface)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newSurfaceCmd(app))
	rootCmd.AddCommand(newQuotesCmd(app))
	rootCmd.AddCommand(newCacheCmd(app))
	rootCmd.AddCommand(newServeCmd(app))
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))

	return rootCmd
}

// ConfigDirFromArgs returns the value of --config in args, so the config can
// be loaded before the command tree is built.
func ConfigDirFromArgs(args []string) string {
	for i, arg := range args {
		switch {
		case arg == "--":
			return ""
		case arg == "--config" && i+1 < len(args):
			return args[i+1]
		case strings.HasPrefix(arg, "--config="):
			return strings.TrimPrefix(arg, "--config=")
		}
	}
	return ""
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			} else {
				output.Printf("ivsurface v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate the application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"dir": app.Config.Dir, "file": app.Config.Path()})
			} else {
				output.Println(app.Config.Path())
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				output.JSON(map[string]bool{"valid": true})
			} else {
				output.Success("✓ Configuration is valid")
			}
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("Provider")
	output.Printf("  Base URL:        %s\n", cfg.Provider.BaseURL)
	output.Printf("  Timeout:         %s\n", cfg.Provider.Timeout)
	output.Printf("  Max Retries:     %d\n", cfg.Provider.MaxRetries)
	output.Printf("  Rate Limit:      %.1f req/s\n", cfg.Provider.RateLimit)
	output.Printf("  Workers:         %d\n", cfg.Provider.Workers)
	output.Println()

	output.Bold("Cache")
	output.Printf("  TTL:             %s\n", cfg.Cache.TTL)
	output.Printf("  Backend:         %s\n", cfg.Cache.Backend)
	if cfg.Cache.Backend == "sqlite" {
		output.Printf("  Path:            %s\n", cfg.Cache.Path)
	}
	output.Println()

	output.Bold("Surface")
	output.Printf("  Resolution:      %d x %d\n", cfg.Surface.Resolution, cfg.Surface.Resolution)
	output.Printf("  Default Mode:    %s\n", cfg.Surface.DefaultMode)
	output.Printf("  Default Ticker:  %s\n", cfg.Surface.DefaultTicker)
	output.Println()

	output.Bold("Output")
	output.Printf("  Format:          %s\n", cfg.Output.Format)
	output.Printf("  Directory:       %s\n", cfg.Output.Dir)
	output.Println()

	output.Bold("Logging")
	output.Printf("  Level:           %s\n", cfg.Logging.Level)
	output.Printf("  File:            %s\n", cfg.Logging.File)
	output.Printf("  Console:         %v\n", cfg.Logging.Console)
}
