package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilClientIsAlwaysMiss(t *testing.T) {
	var c *Client
	ctx := context.Background()

	assert.False(t, c.Enabled())

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, c.Set(ctx, "k", "v", time.Minute))
	assert.NoError(t, c.Delete(ctx, "k"))
	assert.NoError(t, c.Release(ctx, "k", "token"))

	_, _, err = c.MarkOnce(ctx, "k", time.Minute)
	assert.Error(t, err)
}

func TestGetOrSetWithoutRedisCallsLoader(t *testing.T) {
	calls := 0
	load := func(context.Context) (int, error) {
		calls++
		return 42, nil
	}

	for i := 0; i < 2; i++ {
		v, err := GetOrSet(context.Background(), nil, PriceKey("price_1"), time.Minute, load)
		require.NoError(t, err)
		assert.Equal(t, 42, v)
	}
	assert.Equal(t, 2, calls)

	boom := errors.New("boom")
	_, err := GetOrSet(context.Background(), nil, "k", time.Minute, func(context.Context) (int, error) {
		return 0, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "price:price_1", PriceKey(" price_1 "))
	assert.Equal(t, "reminder:sub_1:3", ReminderKey("sub_1", 3))
}
