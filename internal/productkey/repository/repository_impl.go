package repository

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/coursepay/internal/productkey/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, key *domain.ProductKey) error {
	return db.WithContext(ctx).Create(key).Error
}

func (r *repo) FindByKey(ctx context.Context, db *gorm.DB, key string) (*domain.ProductKey, error) {
	return r.first(ctx, db, map[string]any{"key": key})
}

func (r *repo) FindBySource(ctx context.Context, db *gorm.DB, sourceID string) (*domain.ProductKey, error) {
	return r.first(ctx, db, map[string]any{"source_id": sourceID})
}

func (r *repo) FindBySubscription(ctx context.Context, db *gorm.DB, subscriptionID string) (*domain.ProductKey, error) {
	return r.first(ctx, db, map[string]any{"subscription_id": subscriptionID})
}

func (r *repo) first(ctx context.Context, db *gorm.DB, cond map[string]any) (*domain.ProductKey, error) {
	var item domain.ProductKey
	err := db.WithContext(ctx).Where(cond).Order("created_at ASC").First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repo) ListKeysBySubscription(ctx context.Context, db *gorm.DB, subscriptionID string) ([]string, error) {
	var keys []string
	err := db.WithContext(ctx).
		Model(&domain.ProductKey{}).
		Where(map[string]any{"subscription_id": subscriptionID}).
		Where("status <> ?", domain.StatusRevoked).
		Order("created_at ASC").
		Pluck("key", &keys).Error
	return keys, err
}

// MarkRedeemed flips an unredeemed, active key to redeemed. It reports false
// when the key was redeemed or revoked concurrently.
func (r *repo) MarkRedeemed(ctx context.Context, db *gorm.DB, key, userID string, products map[string]domain.Activation, at time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.ProductKey{}).
		Where(map[string]any{"key": key, "is_activated": false, "status": domain.StatusActive}).
		Updates(map[string]any{
			"is_activated": true,
			"status":       domain.StatusRedeemed,
			"activated_by": userID,
			"activated_at": at,
			"products":     datatypes.NewJSONType(products),
			"updated_at":   at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) Revoke(ctx context.Context, db *gorm.DB, keys []string, at time.Time) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	res := db.WithContext(ctx).
		Model(&domain.ProductKey{}).
		Where(map[string]any{"key": keys}).
		Where("status <> ?", domain.StatusRevoked).
		Updates(map[string]any{
			"status":     domain.StatusRevoked,
			"revoked_at": at,
			"updated_at": at,
		})
	return res.RowsAffected, res.Error
}
