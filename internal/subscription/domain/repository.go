package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	Merge(ctx context.Context, db *gorm.DB, row *Subscription, columns []string) error
	Get(ctx context.Context, db *gorm.DB, id string) (*Subscription, error)
}
