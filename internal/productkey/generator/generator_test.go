package generator

import (
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/smallbiznis/coursepay/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var keyPattern = regexp.MustCompile(`^HN-[0-9a-z]+-[0-9A-Z]{6}$`)

func TestGenerateMatchesFormat(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	gen := NewWithPrefix("hn", clk)

	for i := 0; i < 500; i++ {
		key, err := gen.Generate()
		require.NoError(t, err)
		require.Regexp(t, keyPattern, key)
	}
}

func TestGenerateEmbedsTimestamp(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	gen := NewWithPrefix("", clock.NewFakeClock(now))

	key, err := gen.Generate()
	require.NoError(t, err)

	parts := strings.Split(key, "-")
	require.Len(t, parts, 3)
	assert.Equal(t, "HN", parts[0])
	millis, err := strconv.ParseInt(parts[1], 36, 64)
	require.NoError(t, err)
	assert.Equal(t, now.UnixMilli(), millis)
}

func TestGenerateVariesSuffix(t *testing.T) {
	gen := NewWithPrefix("HN", clock.NewFakeClock(time.Unix(0, 0)))
	seen := map[string]struct{}{}
	for i := 0; i < 200; i++ {
		key, err := gen.Generate()
		require.NoError(t, err)
		seen[key] = struct{}{}
	}
	// 36^6 suffixes; 200 draws colliding more than once is not plausible.
	assert.GreaterOrEqual(t, len(seen), 199)
}
