package cli

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// FormatPrice formats a dollar amount with thousands separators.
func FormatPrice(amount float64) string {
	negative := amount < 0
	if negative {
		amount = -amount
	}

	str := fmt.Sprintf("%.2f", amount)
	parts := strings.Split(str, ".")

	result := "$" + groupThousands(parts[0]) + "." + parts[1]
	if negative {
		result = "-" + result
	}
	return result
}

// groupThousands inserts a comma every three digits from the right.
func groupThousands(s string) string {
	n := len(s)
	if n <= 3 {
		return s
	}
	head := n % 3
	var b strings.Builder
	if head > 0 {
		b.WriteString(s[:head])
	}
	for i := head; i < n; i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// FormatPercent formats a percentage with sign.
func FormatPercent(value float64) string {
	sign := ""
	if value > 0 {
		sign = "+"
	}
	return fmt.Sprintf("%s%.2f%%", sign, value)
}

// FormatCoverage formats a fraction in [0, 1] as an unsigned percentage.
func FormatCoverage(frac float64) string {
	return fmt.Sprintf("%.1f%%", frac*100)
}

// FormatIV formats implied volatility.
func FormatIV(iv float64) string {
	if math.IsNaN(iv) {
		return "-"
	}
	return fmt.Sprintf("%.2f%%", iv*100)
}

// FormatIVRange formats the lowest and highest IV of a slice.
func FormatIVRange(lo, hi float64) string {
	if lo == hi {
		return FormatIV(lo)
	}
	return FormatIV(lo) + " - " + FormatIV(hi)
}

// FormatStrikeRange formats the lowest and highest strike of a slice.
func FormatStrikeRange(lo, hi float64) string {
	if lo == hi {
		return fmt.Sprintf("%.2f", lo)
	}
	return fmt.Sprintf("%.2f - %.2f", lo, hi)
}

// FormatYears formats a time to expiration in years.
func FormatYears(years float64) string {
	return fmt.Sprintf("%.3fy", years)
}

// FormatDate formats a date in local time.
func FormatDate(t time.Time) string {
	return t.Local().Format("2006-01-02")
}

// FormatDateTime formats a datetime in local time.
func FormatDateTime(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04:05")
}

// FormatDuration formats a duration in human-readable form.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	} else if d < 24*time.Hour {
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	return fmt.Sprintf("%dd %dh", days, hours)
}

// TruncateString truncates a string to max length with ellipsis.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
