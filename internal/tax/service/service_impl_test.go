package service

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/coursepay/internal/config"
	taxdomain "github.com/smallbiznis/coursepay/internal/tax/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestCalculator(t *testing.T) taxdomain.Calculator {
	t.Helper()
	holder, err := config.NewStaticVATTableHolder(config.DefaultVATTable())
	require.NoError(t, err)
	return NewCalculator(Params{Table: holder, Log: zap.NewNop()})
}

func TestBreakdownAustria(t *testing.T) {
	calc := newTestCalculator(t)

	b, err := calc.Breakdown(10000, "AT")
	require.NoError(t, err)
	assert.Equal(t, int64(12000), b.Gross)
	assert.Equal(t, int64(2000), b.VAT)
	assert.Equal(t, "EUR", b.Currency)
	assert.Equal(t, "20", b.RatePercent())
	assert.False(t, b.Fallback)
}

func TestBreakdownZeroRateKeepsNet(t *testing.T) {
	calc := newTestCalculator(t)

	b, err := calc.Breakdown(4999, "us")
	require.NoError(t, err)
	assert.Equal(t, b.Net, b.Gross)
	assert.Zero(t, b.VAT)
	assert.Equal(t, "USD", b.Currency)
}

func TestBreakdownFallbackForUnknownCountry(t *testing.T) {
	calc := newTestCalculator(t)

	for _, country := range []string{"", "XX", "  "} {
		b, err := calc.Breakdown(10000, country)
		require.NoError(t, err)
		assert.True(t, b.Fallback)
		assert.Equal(t, "AT", b.Country)
		assert.Equal(t, int64(12000), b.Gross)
	}
}

func TestBreakdownSwissRounding(t *testing.T) {
	calc := newTestCalculator(t)

	b, err := calc.Breakdown(9999, "CH")
	require.NoError(t, err)
	// 9999 * 1.081 = 10808.919
	assert.Equal(t, int64(10809), b.Gross)
	assert.Equal(t, int64(810), b.VAT)
	assert.Equal(t, "8.1", b.RatePercent())
}

func TestGrossRoundsHalfUp(t *testing.T) {
	// 25 * 1.1 = 27.5
	assert.Equal(t, int64(28), Gross(25, decimal.RequireFromString("0.1")))
	// 15 * 1.19 = 17.85
	assert.Equal(t, int64(18), Gross(15, decimal.RequireFromString("0.19")))
	assert.Equal(t, int64(100), Gross(100, decimal.Zero))
}

func TestGrossMatchesEveryDefaultEntry(t *testing.T) {
	calc := newTestCalculator(t)
	for country := range config.DefaultVATTable().Countries {
		b, err := calc.Breakdown(12345, country)
		require.NoError(t, err)
		assert.Equal(t, b.Net+b.VAT, b.Gross, country)
		assert.GreaterOrEqual(t, b.VAT, int64(0), country)
	}
}

func TestBreakdownRejectsNonPositiveAmount(t *testing.T) {
	calc := newTestCalculator(t)

	_, err := calc.Breakdown(0, "AT")
	assert.True(t, errors.Is(err, taxdomain.ErrInvalidAmount))
}
