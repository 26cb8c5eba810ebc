package service

import (
	"context"
	"strings"

	"github.com/smallbiznis/coursepay/internal/clock"
	"github.com/smallbiznis/coursepay/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Repo  domain.Repository
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  domain.Repository
	clock clock.Clock
}

func NewService(p Params) domain.Store {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("subscription.store"),
		repo:  p.Repo,
		clock: p.Clock,
	}
}

func (s *Service) Merge(ctx context.Context, id string, patch domain.Patch) (*domain.Subscription, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, domain.ErrInvalidID
	}

	now := s.clock.Now()
	row := &domain.Subscription{ID: id, CreatedAt: now, UpdatedAt: now}
	columns := []string{"updated_at"}

	if patch.CustomerID != nil {
		row.CustomerID = *patch.CustomerID
		columns = append(columns, "customer_id")
	}
	if patch.CustomerEmail != nil {
		row.CustomerEmail = *patch.CustomerEmail
		columns = append(columns, "customer_email")
	}
	if patch.Status != nil {
		row.Status = *patch.Status
		columns = append(columns, "status")
	}
	if patch.CurrentPeriodEnd != nil {
		row.CurrentPeriodEnd = patch.CurrentPeriodEnd
		columns = append(columns, "current_period_end")
	}
	if patch.LatestInvoiceID != nil {
		row.LatestInvoiceID = *patch.LatestInvoiceID
		columns = append(columns, "latest_invoice_id")
	}
	switch {
	case patch.ClearGracePeriod:
		row.GracePeriodEnd = nil
		columns = append(columns, "grace_period_end")
	case patch.GracePeriodEnd != nil:
		row.GracePeriodEnd = patch.GracePeriodEnd
		columns = append(columns, "grace_period_end")
	}
	if patch.LastNotificationSent != nil {
		row.LastNotificationSent = patch.LastNotificationSent
		columns = append(columns, "last_notification_sent")
	}
	if patch.LastReminderDays != nil {
		row.LastReminderDays = *patch.LastReminderDays
		columns = append(columns, "last_reminder_days")
	}
	if patch.CanceledAt != nil {
		row.CanceledAt = patch.CanceledAt
		columns = append(columns, "canceled_at")
	}

	if err := s.repo.Merge(ctx, s.db, row, columns); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Subscription, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, domain.ErrInvalidID
	}
	row, err := s.repo.Get(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, domain.ErrNotFound
	}
	return row, nil
}
