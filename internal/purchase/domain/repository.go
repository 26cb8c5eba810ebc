package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	Upsert(ctx context.Context, db *gorm.DB, record *Record) error
	Get(ctx context.Context, db *gorm.DB, id string) (*Record, error)
}
