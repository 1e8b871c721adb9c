package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# ivsurface configuration

[provider]
# Yahoo Finance query host
base_url = "https://query2.finance.yahoo.com"
# Sets the session cookie a crumb is requested for when the options endpoint answers 401
cookie_url = "https://fc.yahoo.com"
# Per-request timeout
timeout = "15s"
user_agent = "Mozilla/5.0 (X11; Linux x86_64) ivsurface/1.0"
# Attempts per request, including the first
max_retries = 3
# Requests per second across all expirations
rate_limit = 5.0
# Expirations fetched in parallel
workers = 4

[cache]
# Reuse a ticker's option chain for this long
ttl = "1h"
# "memory" (per process) or "sqlite" (survives restarts)
backend = "sqlite"
# path = "~/.config/ivsurface/quotes.db"

[surface]
# Samples per axis
resolution = 100
# "strike" or "moneyness"
default_mode = "strike"
default_ticker = "SPY"

[output]
# "html", "json" or "csv"
format = "html"
dir = "."

[logging]
# debug, info, warn, error
level = "info"
console = true
# file = "~/.config/ivsurface/logs/ivsurface.log"

[server]
# Listen address of 'ivsurface serve'
addr = "127.0.0.1:8050"
read_timeout = "10s"
# Fetching a cold chain can take a while
write_timeout = "2m"
# zstd-compress responses for clients that accept it
compress = true
`

func createTemplateConfig(configDir, name string) (string, error) {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, name+".toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return "", fmt.Errorf("writing config template: %w", err)
	}

	return path, nil
}
