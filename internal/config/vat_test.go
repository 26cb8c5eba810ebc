package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultVATTableIsValid(t *testing.T) {
	holder, err := NewStaticVATTableHolder(DefaultVATTable())
	require.NoError(t, err)

	code, entry := holder.Get().FallbackEntry()
	assert.Equal(t, "AT", code)
	assert.Equal(t, "0.20", entry.Rate)
	assert.Equal(t, "EUR", entry.Currency)
}

func TestVATTableNormalizesCodes(t *testing.T) {
	holder, err := NewStaticVATTableHolder(VATTable{
		Fallback: "de",
		Countries: map[string]VATEntry{
			" de ": {Rate: "0.19", Currency: "eur"},
		},
	})
	require.NoError(t, err)

	entry, ok := holder.Get().Lookup("De")
	require.True(t, ok)
	assert.Equal(t, "EUR", entry.Currency)
}

func TestVATTableRejectsMissingFallback(t *testing.T) {
	_, err := NewStaticVATTableHolder(VATTable{
		Fallback:  "XX",
		Countries: map[string]VATEntry{"AT": {Rate: "0.20", Currency: "EUR"}},
	})
	require.Error(t, err)

	_, err = NewStaticVATTableHolder(VATTable{
		Countries: map[string]VATEntry{"AT": {Rate: "0.20", Currency: "EUR"}},
	})
	require.Error(t, err)
}

func TestParseInts(t *testing.T) {
	assert.Equal(t, []int{7, 3, 1}, parseInts("7, 3,x,1,-2"))
	assert.Empty(t, parseInts(""))
}
