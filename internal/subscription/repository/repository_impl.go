package repository

import (
	"context"
	"errors"

	"github.com/smallbiznis/coursepay/internal/subscription/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// Merge inserts row or, when the id exists, updates only columns.
func (r *repo) Merge(ctx context.Context, db *gorm.DB, row *domain.Subscription, columns []string) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns(columns),
		}).
		Create(row).Error
}

func (r *repo) Get(ctx context.Context, db *gorm.DB, id string) (*domain.Subscription, error) {
	var item domain.Subscription
	err := db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}
