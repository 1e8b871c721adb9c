package models

import (
	"math"
	"time"
)

// ContractPoint is one observed option quote with a defined implied volatility.
type ContractPoint struct {
	TimeToExpiration  float64   `json:"time_to_expiration" csv:"time_to_expiration"`
	ExpirationDate    time.Time `json:"expiration_date" csv:"-"`
	Expiration        string    `json:"-" csv:"expiration_date"`
	Strike            float64   `json:"strike" csv:"strike"`
	Moneyness         float64   `json:"moneyness" csv:"moneyness"`
	MidPrice          float64   `json:"mid_price" csv:"mid_price"`
	ImpliedVolatility float64   `json:"implied_volatility" csv:"implied_volatility"`
}

// OptionChainSnapshot is the set of call contracts for a ticker captured at one point in time.
type OptionChainSnapshot struct {
	Ticker    string          `json:"ticker"`
	SpotPrice float64         `json:"spot_price"`
	FetchedAt time.Time       `json:"fetched_at"`
	Points    []ContractPoint `json:"points"`
}

// Expirations returns the distinct expiration dates in first-seen order.
func (s *OptionChainSnapshot) Expirations() []time.Time {
	seen := make(map[time.Time]struct{})
	var out []time.Time
	for _, p := range s.Points {
		if _, ok := seen[p.ExpirationDate]; ok {
			continue
		}
		seen[p.ExpirationDate] = struct{}{}
		out = append(out, p.ExpirationDate)
	}
	return out
}

// Age returns how long ago the snapshot was fetched.
func (s *OptionChainSnapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.FetchedAt)
}

// YearsToExpiration converts the calendar days between today and expiry into
// years, rounded to two decimals.
func YearsToExpiration(expiry, today time.Time) float64 {
	e := time.Date(expiry.Year(), expiry.Month(), expiry.Day(), 0, 0, 0, 0, time.UTC)
	t := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	days := math.Floor(e.Sub(t).Hours() / 24)
	return math.Round(days/365*100) / 100
}

// NewContractPoint builds a point from raw quote fields. It reports false when
// the implied volatility is undefined.
func NewContractPoint(expiry, today time.Time, strike, spot, bid, ask, iv float64) (ContractPoint, bool) {
	if math.IsNaN(iv) || math.IsInf(iv, 0) || iv < 0 {
		return ContractPoint{}, false
	}
	if strike <= 0 || spot <= 0 || math.IsNaN(strike) || math.IsNaN(spot) {
		return ContractPoint{}, false
	}
	return ContractPoint{
		TimeToExpiration:  YearsToExpiration(expiry, today),
		ExpirationDate:    expiry,
		Expiration:        expiry.Format("2006-01-02"),
		Strike:            strike,
		Moneyness:         strike / spot,
		MidPrice:          (bid + ask) / 2,
		ImpliedVolatility: iv,
	}, true
}
