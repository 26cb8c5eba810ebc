package domain

import "github.com/shopspring/decimal"

// Quote is the VAT treatment resolved for a country code.
type Quote struct {
	Country  string
	Rate     decimal.Decimal
	Currency string
	Fallback bool
}

// Breakdown splits a gross charge into its net and VAT parts. All amounts
// are in minor units of Currency.
type Breakdown struct {
	Country  string
	Rate     decimal.Decimal
	Currency string
	Net      int64
	Gross    int64
	VAT      int64
	Fallback bool
}

// RatePercent renders the rate for invoice descriptions, e.g. "20" or "8.1".
func (b Breakdown) RatePercent() string {
	return b.Rate.Mul(decimal.NewFromInt(100)).String()
}
