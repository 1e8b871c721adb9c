// Package config provides configuration management for ivsurface.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"ivsurface/internal/errors"
)

// Config holds all application configuration.
type Config struct {
	Provider ProviderConfig `mapstructure:"provider"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Surface  SurfaceConfig  `mapstructure:"surface"`
	Output   OutputConfig   `mapstructure:"output"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Server   ServerConfig   `mapstructure:"server"`

	// Dir is the directory the configuration was loaded from.
	Dir string `mapstructure:"-"`
	// File is the config file actually read, empty when defaults were used.
	File string `mapstructure:"-"`
}

// ProviderConfig holds quote-source settings.
type ProviderConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	CookieURL  string        `mapstructure:"cookie_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	UserAgent  string        `mapstructure:"user_agent"`
	MaxRetries int           `mapstructure:"max_retries"`
	RateLimit  float64       `mapstructure:"rate_limit"` // requests per second
	Workers    int           `mapstructure:"workers"`
}

// CacheConfig holds quote cache settings.
type CacheConfig struct {
	TTL     time.Duration `mapstructure:"ttl"`
	Backend string        `mapstructure:"backend"` // memory, sqlite
	Path    string        `mapstructure:"path"`
}

// SurfaceConfig holds surface construction defaults.
type SurfaceConfig struct {
	Resolution    int    `mapstructure:"resolution"`
	DefaultMode   string `mapstructure:"default_mode"`
	DefaultTicker string `mapstructure:"default_ticker"`
}

// OutputConfig holds output defaults.
type OutputConfig struct {
	Format string `mapstructure:"format"` // html, json, csv
	Dir    string `mapstructure:"dir"`
}

// ServerConfig holds settings for the interactive web view.
type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	Compress     bool          `mapstructure:"compress"` // zstd when the client accepts it
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	File    string `mapstructure:"file"`
	Console bool   `mapstructure:"console"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/ivsurface"
	}
	return filepath.Join(home, ".config", "ivsurface")
}

// Default returns the configuration used when no file overrides a key.
func Default(configDir string) *Config {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}
	return &Config{
		Provider: ProviderConfig{
			BaseURL:    "https://query2.finance.yahoo.com",
			CookieURL:  "https://fc.yahoo.com",
			Timeout:    15 * time.Second,
			UserAgent:  "Mozilla/5.0 (X11; Linux x86_64) ivsurface/1.0",
			MaxRetries: 3,
			RateLimit:  5,
			Workers:    4,
		},
		Cache: CacheConfig{
			TTL:     time.Hour,
			Backend: "sqlite",
			Path:    filepath.Join(configDir, "quotes.db"),
		},
		Surface: SurfaceConfig{
			Resolution:    100,
			DefaultMode:   "strike",
			DefaultTicker: "SPY",
		},
		Output: OutputConfig{
			Format: "html",
			Dir:    ".",
		},
		Logging: LoggingConfig{
			Level:   "info",
			File:    filepath.Join(configDir, "logs", "ivsurface.log"),
			Console: true,
		},
		Server: ServerConfig{
			Addr:         "127.0.0.1:8050",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 2 * time.Minute,
			Compress:     true,
		},
		Dir: configDir,
	}
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory. A missing
// config.toml is replaced by a commented template and defaults are used.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := Default(configDir)

	file, err := loadConfigFile(configDir, "config", cfg)
	if err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}
	cfg.Dir = configDir
	cfg.File = file

	applyEnvOverrides(cfg)
	cfg.Cache.Path = expandHome(cfg.Cache.Path)
	cfg.Logging.File = expandHome(cfg.Logging.File)
	cfg.Output.Dir = expandHome(cfg.Output.Dir)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func loadConfigFile(configDir, name string, cfg *Config) (string, error) {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return "", err
		}
		// Best effort; a read-only home still gets defaults.
		_, _ = createTemplateConfig(configDir, name)
		return "", nil
	}

	if err := v.Unmarshal(cfg); err != nil {
		return "", err
	}
	return v.ConfigFileUsed(), nil
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("provider.base_url", cfg.Provider.BaseURL)
	v.SetDefault("provider.cookie_url", cfg.Provider.CookieURL)
	v.SetDefault("provider.timeout", cfg.Provider.Timeout)
	v.SetDefault("provider.user_agent", cfg.Provider.UserAgent)
	v.SetDefault("provider.max_retries", cfg.Provider.MaxRetries)
	v.SetDefault("provider.rate_limit", cfg.Provider.RateLimit)
	v.SetDefault("provider.workers", cfg.Provider.Workers)

	v.SetDefault("cache.ttl", cfg.Cache.TTL)
	v.SetDefault("cache.backend", cfg.Cache.Backend)
	v.SetDefault("cache.path", cfg.Cache.Path)

	v.SetDefault("surface.resolution", cfg.Surface.Resolution)
	v.SetDefault("surface.default_mode", cfg.Surface.DefaultMode)
	v.SetDefault("surface.default_ticker", cfg.Surface.DefaultTicker)

	v.SetDefault("output.format", cfg.Output.Format)
	v.SetDefault("output.dir", cfg.Output.Dir)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.console", cfg.Logging.Console)

	v.SetDefault("server.addr", cfg.Server.Addr)
	v.SetDefault("server.read_timeout", cfg.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", cfg.Server.WriteTimeout)
	v.SetDefault("server.compress", cfg.Server.Compress)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("IVSURFACE_PROVIDER_URL"); v != "" {
		cfg.Provider.BaseURL = v
	}
	if v := os.Getenv("IVSURFACE_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.TTL = d
		}
	}
	if v := os.Getenv("IVSURFACE_CACHE_BACKEND"); v != "" {
		cfg.Cache.Backend = v
	}
	if v := os.Getenv("IVSURFACE_TICKER"); v != "" {
		cfg.Surface.DefaultTicker = v
	}
	if v := os.Getenv("IVSURFACE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("IVSURFACE_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Surface.DefaultMode) {
	case "strike", "moneyness":
	default:
		return errors.Wrapf(errors.ErrConfigInvalid, "surface.default_mode %q (must be 'strike' or 'moneyness')", c.Surface.DefaultMode)
	}
	if c.Surface.Resolution < 2 {
		return errors.Wrapf(errors.ErrConfigInvalid, "surface.resolution must be at least 2, got %d", c.Surface.Resolution)
	}
	if c.Cache.TTL < 0 {
		return errors.Wrapf(errors.ErrConfigInvalid, "cache.ttl must be non-negative, got %s", c.Cache.TTL)
	}
	switch c.Cache.Backend {
	case "memory":
	case "sqlite":
		if c.Cache.Path == "" {
			return errors.Wrap(errors.ErrConfigInvalid, "cache.path is required for the sqlite backend")
		}
	default:
		return errors.Wrapf(errors.ErrConfigInvalid, "cache.backend %q (must be 'memory' or 'sqlite')", c.Cache.Backend)
	}
	switch c.Output.Format {
	case "html", "json", "csv":
	default:
		return errors.Wrapf(errors.ErrConfigInvalid, "output.format %q (must be html, json or csv)", c.Output.Format)
	}
	if c.Provider.BaseURL == "" {
		return errors.Wrap(errors.ErrConfigInvalid, "provider.base_url is required")
	}
	if c.Provider.Timeout <= 0 {
		return errors.Wrap(errors.ErrConfigInvalid, "provider.timeout must be positive")
	}
	if c.Provider.MaxRetries < 1 {
		return errors.Wrap(errors.ErrConfigInvalid, "provider.max_retries must be at least 1")
	}
	if c.Provider.RateLimit <= 0 {
		return errors.Wrap(errors.ErrConfigInvalid, "provider.rate_limit must be positive")
	}
	if c.Server.Addr == "" {
		return errors.Wrap(errors.ErrConfigInvalid, "server.addr is required")
	}
	return nil
}

// Path returns the path of config.toml inside the config directory.
func (c *Config) Path() string {
	return filepath.Join(c.Dir, "config.toml")
}
