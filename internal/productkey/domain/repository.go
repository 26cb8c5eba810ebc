package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	// Insert is create-only; an existing key or source id yields a
	// duplicate-key error.
	Insert(ctx context.Context, db *gorm.DB, key *ProductKey) error
	FindByKey(ctx context.Context, db *gorm.DB, key string) (*ProductKey, error)
	FindBySource(ctx context.Context, db *gorm.DB, sourceID string) (*ProductKey, error)
	FindBySubscription(ctx context.Context, db *gorm.DB, subscriptionID string) (*ProductKey, error)
	ListKeysBySubscription(ctx context.Context, db *gorm.DB, subscriptionID string) ([]string, error)
	MarkRedeemed(ctx context.Context, db *gorm.DB, key, userID string, products map[string]Activation, at time.Time) (bool, error)
	Revoke(ctx context.Context, db *gorm.DB, keys []string, at time.Time) (int64, error)
}
