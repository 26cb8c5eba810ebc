package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/coursepay/internal/clock"
	"github.com/smallbiznis/coursepay/internal/subscription/domain"
	"github.com/smallbiznis/coursepay/internal/subscription/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupStore(t *testing.T) domain.Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Subscription{}))

	return NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		Repo:  repository.Provide(),
		Clock: clock.NewFakeClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)),
	})
}

func ptr[T any](v T) *T { return &v }

func TestMergeKeepsUntouchedFields(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	periodEnd := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)

	_, err := store.Merge(ctx, "sub_1", domain.Patch{
		CustomerID:       ptr("cus_1"),
		Status:           ptr(domain.StatusActive),
		CurrentPeriodEnd: &periodEnd,
	})
	require.NoError(t, err)

	grace := periodEnd.Add(7 * 24 * time.Hour)
	merged, err := store.Merge(ctx, "sub_1", domain.Patch{
		Status:         ptr(domain.StatusPastDue),
		GracePeriodEnd: &grace,
	})
	require.NoError(t, err)

	assert.Equal(t, "cus_1", merged.CustomerID)
	assert.Equal(t, domain.StatusPastDue, merged.Status)
	require.NotNil(t, merged.CurrentPeriodEnd)
	assert.True(t, periodEnd.Equal(*merged.CurrentPeriodEnd))
	require.NotNil(t, merged.GracePeriodEnd)
	assert.True(t, grace.Equal(*merged.GracePeriodEnd))

	cleared, err := store.Merge(ctx, "sub_1", domain.Patch{Status: ptr(domain.StatusActive), ClearGracePeriod: true})
	require.NoError(t, err)
	assert.Nil(t, cleared.GracePeriodEnd)
	assert.Equal(t, "cus_1", cleared.CustomerID)
}

func TestGetUnknownSubscription(t *testing.T) {
	store := setupStore(t)
	_, err := store.Get(context.Background(), "sub_missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}
