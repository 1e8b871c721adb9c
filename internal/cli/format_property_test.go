package cli

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// FormatPrice uses a $ prefix, two decimals and comma groups of three,
// and parses back to the rounded amount.
func TestProperty_PriceFormatting(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	grouped := regexp.MustCompile(`^\d{1,3}(,\d{3})*$`)

	properties.Property("FormatPrice produces grouped dollars", prop.ForAll(
		func(amount float64) bool {
			formatted := FormatPrice(amount)

			prefix := "$"
			if amount < 0 {
				prefix = "-$"
			}
			if !strings.HasPrefix(formatted, prefix) {
				t.Logf("Expected %s prefix for %f, got %s", prefix, amount, formatted)
				return false
			}

			parts := strings.Split(strings.TrimPrefix(strings.TrimPrefix(formatted, "-"), "$"), ".")
			if len(parts) != 2 || len(parts[1]) != 2 {
				t.Logf("Expected 2 decimal places for %f, got %s", amount, formatted)
				return false
			}
			if !grouped.MatchString(parts[0]) {
				t.Logf("Invalid grouping for %f: %s", amount, formatted)
				return false
			}
			return true
		},
		gen.Float64Range(-1e12, 1e12),
	))

	properties.Property("FormatPrice preserves value", prop.ForAll(
		func(amount float64) bool {
			formatted := FormatPrice(amount)
			raw := strings.ReplaceAll(strings.Replace(formatted, "$", "", 1), ",", "")
			parsed, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				t.Logf("Unparseable %s: %v", formatted, err)
				return false
			}
			return math.Abs(parsed-amount) <= 0.005+1e-9*math.Abs(amount)
		},
		gen.Float64Range(-1e9, 1e9),
	))

	properties.Property("FormatPercent produces correct format", prop.ForAll(
		func(value float64) bool {
			formatted := FormatPercent(value)
			if !strings.HasSuffix(formatted, "%") {
				return false
			}
			return value <= 0 || strings.HasPrefix(formatted, "+")
		},
		gen.Float64Range(-100, 100),
	))

	properties.Property("FormatDuration never reports negative time", prop.ForAll(
		func(seconds int64) bool {
			return !strings.Contains(FormatDuration(time.Duration(seconds)*time.Second), "-")
		},
		gen.Int64Range(-1e6, 1e8),
	))

	properties.TestingRun(t)
}

func TestFormatPriceExamples(t *testing.T) {
	testCases := []struct {
		amount   float64
		expected string
	}{
		{0, "$0.00"},
		{1, "$1.00"},
		{999.99, "$999.99"},
		{1000, "$1,000.00"},
		{100000, "$100,000.00"},
		{1234567.891, "$1,234,567.89"},
		{-1234.56, "-$1,234.56"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			if got := FormatPrice(tc.amount); got != tc.expected {
				t.Errorf("FormatPrice(%f) = %s, want %s", tc.amount, got, tc.expected)
			}
		})
	}
}

func TestFormatVolatilityExamples(t *testing.T) {
	testCases := []struct {
		got      string
		expected string
	}{
		{FormatIV(0.2345), "23.45%"},
		{FormatIV(math.NaN()), "-"},
		{FormatIVRange(0.2, 0.2), "20.00%"},
		{FormatIVRange(0.15, 0.4), "15.00% - 40.00%"},
		{FormatStrikeRange(90, 110), "90.00 - 110.00"},
		{FormatCoverage(0.6321), "63.2%"},
		{FormatYears(0.09589), "0.096y"},
		{FormatDuration(90 * time.Minute), "1h 30m"},
		{TruncateString("SPY_iv_surface", 8), "SPY_i..."},
	}

	for _, tc := range testCases {
		if tc.got != tc.expected {
			t.Errorf("got %q, want %q", tc.got, tc.expected)
		}
	}
}
