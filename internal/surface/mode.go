package surface

import (
	"fmt"
	"strings"

	"ivsurface/internal/errors"
	"ivsurface/internal/models"
)

// Mode selects which contract field feeds the y-axis.
type Mode int

const (
	ModeStrike Mode = iota
	ModeMoneyness
)

// ParseMode parses "strike" or "moneyness", case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "strike", "":
		return ModeStrike, nil
	case "moneyness":
		return ModeMoneyness, nil
	default:
		return ModeStrike, errors.NewValidationError("mode", s, "must be 'strike' or 'moneyness'")
	}
}

// String returns the axis label for the mode.
func (m Mode) String() string {
	switch m {
	case ModeStrike:
		return "Strike"
	case ModeMoneyness:
		return "Moneyness"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(strings.ToLower(m.String())), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(b []byte) error {
	parsed, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// value returns the y coordinate of p under the mode.
func (m Mode) value(p models.ContractPoint) float64 {
	if m == ModeMoneyness {
		return p.Moneyness
	}
	return p.Strike
}
