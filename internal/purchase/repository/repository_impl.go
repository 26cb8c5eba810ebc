package repository

import (
	"context"
	"errors"

	"github.com/smallbiznis/coursepay/internal/purchase/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

var overwriteColumns = []string{
	"customer_id",
	"customer_email",
	"amount_paid",
	"currency",
	"payment_status",
	"payment_type",
	"metadata",
	"discount_details",
	"tax_details",
	"updated_at",
}

// Upsert overwrites every field except created_at when the id already exists.
func (r *repo) Upsert(ctx context.Context, db *gorm.DB, record *domain.Record) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_or_intent_id"}},
			DoUpdates: clause.AssignmentColumns(overwriteColumns),
		}).
		Create(record).Error
}

func (r *repo) Get(ctx context.Context, db *gorm.DB, id string) (*domain.Record, error) {
	var item domain.Record
	err := db.WithContext(ctx).
		Where("session_or_intent_id = ?", id).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}
