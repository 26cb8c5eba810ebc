package service

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/smallbiznis/coursepay/internal/clock"
	"github.com/smallbiznis/coursepay/internal/productkey/domain"
	"github.com/smallbiznis/coursepay/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	maxIssueAttempts  = 5
	revokeBatchSize   = 50
	revokeConcurrency = 4
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Repo      domain.Repository
	Generator domain.Generator
	Clock     clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  domain.Repository
	gen   domain.Generator
	clock clock.Clock
}

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("productkey.service"),
		repo:  p.Repo,
		gen:   p.Generator,
		clock: p.Clock,
	}
}

func (s *Service) Issue(ctx context.Context, req domain.IssueRequest) (*domain.ProductKey, bool, error) {
	sourceID := strings.TrimSpace(req.SourceID)
	if sourceID == "" {
		return nil, false, domain.ErrInvalidSource
	}

	existing, err := s.repo.FindBySource(ctx, s.db, sourceID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	courses := uniqueStrings(req.CourseIDs)
	products := make(map[string]domain.Activation, len(courses))
	for _, id := range courses {
		products[id] = domain.Activation{}
	}

	for attempt := 1; attempt <= maxIssueAttempts; attempt++ {
		code, err := s.gen.Generate()
		if err != nil {
			return nil, false, err
		}

		now := s.clock.Now()
		record := &domain.ProductKey{
			Key:                code,
			SourceID:           sourceID,
			SubscriptionID:     strings.TrimSpace(req.SubscriptionID),
			CustomerEmail:      strings.TrimSpace(req.CustomerEmail),
			BillingDetails:     datatypes.NewJSONType(req.Billing),
			PurchasedCourseIDs: datatypes.NewJSONSlice(courses),
			Products:           datatypes.NewJSONType(products),
			Status:             domain.StatusActive,
			CreatedAt:          now,
			UpdatedAt:          now,
		}

		err = s.repo.Insert(ctx, s.db, record)
		if err == nil {
			s.log.Info("product key issued",
				zap.String("source_id", sourceID),
				zap.Int("courses", len(courses)),
			)
			return record, true, nil
		}
		if !db.IsDuplicateKeyErr(err) {
			return nil, false, err
		}

		// Either a concurrent delivery issued the key for this source, or the
		// generated code collided with an existing key.
		existing, err := s.repo.FindBySource(ctx, s.db, sourceID)
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			return existing, false, nil
		}
		s.log.Warn("product key collision, regenerating", zap.Int("attempt", attempt))
	}

	return nil, false, domain.ErrKeySpaceExhausted
}

func (s *Service) FindBySource(ctx context.Context, sourceID string) (*domain.ProductKey, error) {
	return s.repo.FindBySource(ctx, s.db, strings.TrimSpace(sourceID))
}

func (s *Service) FindBySubscription(ctx context.Context, subscriptionID string) (*domain.ProductKey, error) {
	return s.repo.FindBySubscription(ctx, s.db, strings.TrimSpace(subscriptionID))
}

func (s *Service) Get(ctx context.Context, key string) (*domain.ProductKey, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, domain.ErrInvalidKey
	}
	record, err := s.repo.FindByKey(ctx, s.db, key)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, domain.ErrNotFound
	}
	return record, nil
}

// Redeem activates every course of the key exactly once.
func (s *Service) Redeem(ctx context.Context, key string, consent domain.Consent) (*domain.ProductKey, error) {
	if !consent.Accepted || strings.TrimSpace(consent.UserID) == "" {
		return nil, domain.ErrConsentRequired
	}

	record, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	switch {
	case record.Status == domain.StatusRevoked:
		return nil, domain.ErrRevoked
	case record.IsActivated:
		return nil, domain.ErrAlreadyRedeemed
	}

	now := s.clock.Now()
	products := make(map[string]domain.Activation, len(record.Products.Data()))
	for id := range record.Products.Data() {
		activatedAt := now
		products[id] = domain.Activation{Activated: true, ActivatedAt: &activatedAt}
	}

	ok, err := s.repo.MarkRedeemed(ctx, s.db, record.Key, strings.TrimSpace(consent.UserID), products, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		current, err := s.Get(ctx, record.Key)
		if err != nil {
			return nil, err
		}
		if current.Status == domain.StatusRevoked {
			return nil, domain.ErrRevoked
		}
		return nil, domain.ErrAlreadyRedeemed
	}

	s.log.Info("product key redeemed", zap.String("user_id", consent.UserID))
	return s.Get(ctx, record.Key)
}

// RevokeForSubscription revokes every key issued for the subscription in
// concurrent batches. A failed batch does not stop the others.
func (s *Service) RevokeForSubscription(ctx context.Context, subscriptionID string) (int64, error) {
	subscriptionID = strings.TrimSpace(subscriptionID)
	if subscriptionID == "" {
		return 0, domain.ErrInvalidSource
	}

	keys, err := s.repo.ListKeysBySubscription(ctx, s.db, subscriptionID)
	if err != nil {
		return 0, err
	}

	now := s.clock.Now()
	var revoked atomic.Int64
	var g errgroup.Group
	g.SetLimit(revokeConcurrency)
	for start := 0; start < len(keys); start += revokeBatchSize {
		batch := keys[start:min(start+revokeBatchSize, len(keys))]
		g.Go(func() error {
			n, err := s.repo.Revoke(ctx, s.db, batch, now)
			if err != nil {
				s.log.Error("revoke batch failed", zap.Int("size", len(batch)), zap.Error(err))
				return err
			}
			revoked.Add(n)
			return nil
		})
	}
	err = g.Wait()

	s.log.Info("product keys revoked",
		zap.String("subscription_id", subscriptionID),
		zap.Int64("revoked", revoked.Load()),
	)
	return revoked.Load(), err
}

func uniqueStrings(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
