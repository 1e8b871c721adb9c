package cli

import (
	"context"
	"fmt"

	"ivsurface/internal/errors"
	"ivsurface/internal/resilience"
)

// ExplainError turns an error returned by a command into a message for the user.
func ExplainError(err error) string {
	var degenerate *errors.DegenerateRangeError
	var validation *errors.ValidationError

	switch {
	case err == nil:
		return ""
	case errors.IsNoData(err), errors.Is(err, errors.ErrEmptyInput):
		return fmt.Sprintf("No option data available: %v\nCheck the ticker symbol; it may have no listed options.", err)
	case errors.As(err, &degenerate):
		if degenerate.Axis == "xy" {
			return fmt.Sprintf("Cannot build a surface: %v\nThe quoted contracts lie on a single line.", err)
		}
		return fmt.Sprintf("Cannot build a surface: %v\nA surface needs at least two expirations and two strikes with an implied volatility.", err)
	case errors.Is(err, errors.ErrDegenerateRange):
		return fmt.Sprintf("Cannot build a surface: %v", err)
	case errors.Is(err, errors.ErrInvalidTicker):
		return fmt.Sprintf("Invalid ticker: %v", err)
	case errors.Is(err, resilience.ErrCircuitOpen):
		return "The quote provider is failing repeatedly; requests are paused. Try again shortly."
	case errors.Is(err, errors.ErrRateLimited):
		return fmt.Sprintf("The quote provider is rate limiting requests: %v\nWait a moment and retry.", err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, errors.ErrTimeout):
		return fmt.Sprintf("Timed out fetching quotes: %v", err)
	case errors.Is(err, errors.ErrUnauthorized):
		return fmt.Sprintf("Yahoo Finance refused the request: %v\nIt wants a session cookie and crumb and did not accept a fresh one; Yahoo may be blocking this network or the configured provider.user_agent.", err)
	case errors.Is(err, errors.ErrConnectionFailed):
		return fmt.Sprintf("Could not reach the quote provider: %v", err)
	case errors.Is(err, errors.ErrConfigInvalid):
		return fmt.Sprintf("Configuration error: %v\nRun 'ivsurface config path' to locate the config file.", err)
	case errors.As(err, &validation):
		return fmt.Sprintf("Invalid %s %q: %s", validation.Field, fmt.Sprint(validation.Value), validation.Message)
	default:
		return fmt.Sprintf("Error: %v", err)
	}
}
