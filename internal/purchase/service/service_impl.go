package service

import (
	"context"
	"strings"

	"github.com/smallbiznis/coursepay/internal/clock"
	"github.com/smallbiznis/coursepay/internal/purchase/domain"
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
		log:   p.Log.Named("purchase.service"),
		repo:  p.Repo,
		clock: p.Clock,
	}
}

func (s *Service) Save(ctx context.Context, in domain.Input) (*domain.Record, error) {
	record, err := domain.Sanitize(in)
	if err != nil {
		return nil, err
	}
	if record.SessionOrIntentID == "" {
		return nil, domain.ErrInvalidID
	}

	now := s.clock.Now()
	record.CreatedAt = now
	record.UpdatedAt = now
	if err := s.repo.Upsert(ctx, s.db, &record); err != nil {
		return nil, err
	}
	s.log.Debug("purchase record saved",
		zap.String("id", record.SessionOrIntentID),
		zap.String("status", record.PaymentStatus),
	)
	return &record, nil
}

// SaveStatus skips the write when a succeeded record already exists, so a
// late created or failed event cannot overwrite a completed purchase.
func (s *Service) SaveStatus(ctx context.Context, in domain.Input) (*domain.Record, error) {
	existing, err := s.repo.Get(ctx, s.db, strings.TrimSpace(in.ID))
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.PaymentStatus == domain.StatusSucceeded {
		s.log.Info("ignoring status downgrade for completed purchase",
			zap.String("id", existing.SessionOrIntentID),
			zap.String("status", in.PaymentStatus),
		)
		return existing, nil
	}
	return s.Save(ctx, in)
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Record, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, domain.ErrInvalidID
	}
	record, err := s.repo.Get(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, domain.ErrNotFound
	}
	return record, nil
}
