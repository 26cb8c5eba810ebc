package service

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/coursepay/internal/config"
	taxdomain "github.com/smallbiznis/coursepay/internal/tax/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Table *config.VATTableHolder
	Log   *zap.Logger
}

type calculator struct {
	table *config.VATTableHolder
	log   *zap.Logger
}

func NewCalculator(p Params) taxdomain.Calculator {
	return &calculator{
		table: p.Table,
		log:   p.Log.Named("tax.calculator"),
	}
}

// Resolve returns the VAT entry for country. Unknown or empty codes resolve
// to the table's fallback entry.
func (c *calculator) Resolve(country string) (taxdomain.Quote, error) {
	table := c.table.Get()
	code := strings.ToUpper(strings.TrimSpace(country))

	entry, ok := table.Lookup(code)
	fallback := false
	if !ok {
		fallbackCode, fallbackEntry := table.FallbackEntry()
		c.log.Info("unknown country code, applying fallback vat",
			zap.String("country", code),
			zap.String("fallback", fallbackCode),
		)
		code, entry, fallback = fallbackCode, fallbackEntry, true
	}

	rate, err := decimal.NewFromString(entry.Rate)
	if err != nil || rate.IsNegative() {
		return taxdomain.Quote{}, fmt.Errorf("%w: %s=%q", taxdomain.ErrInvalidRate, code, entry.Rate)
	}

	return taxdomain.Quote{
		Country:  code,
		Rate:     rate,
		Currency: entry.Currency,
		Fallback: fallback,
	}, nil
}

func (c *calculator) Breakdown(net int64, country string) (taxdomain.Breakdown, error) {
	if net <= 0 {
		return taxdomain.Breakdown{}, taxdomain.ErrInvalidAmount
	}
	quote, err := c.Resolve(country)
	if err != nil {
		return taxdomain.Breakdown{}, err
	}

	gross := Gross(net, quote.Rate)
	return taxdomain.Breakdown{
		Country:  quote.Country,
		Rate:     quote.Rate,
		Currency: quote.Currency,
		Net:      net,
		Gross:    gross,
		VAT:      VATAmount(gross, net),
		Fallback: quote.Fallback,
	}, nil
}

// Gross applies rate on top of net and rounds half up to whole minor units.
func Gross(net int64, rate decimal.Decimal) int64 {
	return decimal.NewFromInt(net).
		Mul(decimal.NewFromInt(1).Add(rate)).
		Round(0).
		IntPart()
}

// VATAmount is derived from the rounded gross so that net+vat == gross.
func VATAmount(gross, net int64) int64 {
	return gross - net
}
