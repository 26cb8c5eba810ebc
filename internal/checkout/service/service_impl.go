package service

import (
	"context"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/coursepay/internal/cache"
	checkoutdomain "github.com/smallbiznis/coursepay/internal/checkout/domain"
	"github.com/smallbiznis/coursepay/internal/clock"
	"github.com/smallbiznis/coursepay/internal/config"
	"github.com/smallbiznis/coursepay/internal/gateway"
	subscriptiondomain "github.com/smallbiznis/coursepay/internal/subscription/domain"
	taxdomain "github.com/smallbiznis/coursepay/internal/tax/domain"
)

const (
	priceCacheTTL  = 10 * time.Minute
	priceBatchSize = 10
	priceWorkers   = 4
)

type Params struct {
	fx.In

	Config        config.Config
	Log           *zap.Logger
	Gateway       gateway.Gateway
	Tax           taxdomain.Calculator
	Subscriptions subscriptiondomain.Store
	Cache         *cache.Client `optional:"true"`
	Clock         clock.Clock
}

type Service struct {
	log           *zap.Logger
	gateway       gateway.Gateway
	tax           taxdomain.Calculator
	subscriptions subscriptiondomain.Store
	cache         *cache.Client
	clock         clock.Clock
	successURL    string
	cancelURL     string
}

func NewService(p Params) checkoutdomain.Service {
	return &Service{
		log:           p.Log.Named("checkout.service"),
		gateway:       p.Gateway,
		tax:           p.Tax,
		subscriptions: p.Subscriptions,
		cache:         p.Cache,
		clock:         p.Clock,
		successURL:    p.Config.Stripe.SuccessURL,
		cancelURL:     p.Config.Stripe.CancelURL,
	}
}

// idempotencyKey derives per-call keys from one ulid so a retried request
// step never creates a second object at the gateway.
func idempotencyKey(base, step string) string {
	return base + "-" + step
}

func newOperationID(prefix string) string {
	return prefix + "-" + strings.ToLower(ulid.Make().String())
}

func (s *Service) getPrice(ctx context.Context, id string) (*gateway.Price, error) {
	return cache.GetOrSet(ctx, s.cache, cache.PriceKey(id), priceCacheTTL, func(ctx context.Context) (*gateway.Price, error) {
		return s.gateway.GetPrice(ctx, id)
	})
}
