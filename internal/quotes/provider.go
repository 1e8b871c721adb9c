// Package quotes retrieves option chains and turns them into implied-volatility
// observations, caching each ticker's chain for a bounded time.
package quotes

import (
	"context"
	"regexp"
	"strings"

	"ivsurface/internal/errors"
	"ivsurface/internal/models"
)

// Provider fetches the call side of a ticker's option chain.
//
// FetchChain returns errors.ErrNoOptionData when the ticker has no listed
// expirations or no contract with a defined implied volatility. Transport and
// server failures are reported differently so callers can tell "nothing to
// plot" from "try again later".
type Provider interface {
	Name() string
	FetchChain(ctx context.Context, ticker string) (*models.OptionChainSnapshot, error)
}

var tickerPattern = regexp.MustCompile(`^[A-Z0-9.^=-]{1,10}$`)

// NormalizeTicker trims and upper-cases s and checks it looks like a ticker.
func NormalizeTicker(s string) (string, error) {
	t := strings.ToUpper(strings.TrimSpace(s))
	if !tickerPattern.MatchString(t) {
		return "", errors.Wrapf(errors.ErrInvalidTicker, "%q", s)
	}
	return t, nil
}
