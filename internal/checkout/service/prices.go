package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/smallbiznis/coursepay/internal/apperror"
	"github.com/smallbiznis/coursepay/internal/cache"
	checkoutdomain "github.com/smallbiznis/coursepay/internal/checkout/domain"
	"github.com/smallbiznis/coursepay/internal/gateway"
)

// CreatePrices creates every price point concurrently. Failures are
// collected per point.
func (s *Service) CreatePrices(ctx context.Context, productID string, points []checkoutdomain.PricePoint) (*checkoutdomain.PriceBatchResult, error) {
	if strings.TrimSpace(productID) == "" {
		return nil, apperror.NewValidationError("product id is required", "id")
	}
	if len(points) == 0 {
		return nil, apperror.NewValidationError("at least one price is required", "prices")
	}
	for i, p := range points {
		if p.UnitAmount <= 0 || strings.TrimSpace(p.Currency) == "" {
			return nil, apperror.NewValidationError("invalid price point", fmt.Sprintf("prices[%d]", i))
		}
	}

	if _, err := s.gateway.GetProduct(ctx, productID); err != nil {
		return nil, err
	}

	opID := newOperationID("prices")
	created := make([]*gateway.Price, len(points))
	failures := make([]string, len(points))

	var g errgroup.Group
	g.SetLimit(priceWorkers)
	for i, point := range points {
		g.Go(func() error {
			price, err := s.gateway.CreatePrice(ctx, gateway.CreatePriceParams{
				ProductID:      productID,
				Currency:       point.Currency,
				UnitAmount:     point.UnitAmount,
				Interval:       point.Interval,
				Nickname:       point.Nickname,
				IdempotencyKey: idempotencyKey(opID, fmt.Sprint(i)),
			})
			if err != nil {
				failures[i] = err.Error()
				return nil
			}
			created[i] = price
			return nil
		})
	}
	_ = g.Wait()

	out := &checkoutdomain.PriceBatchResult{Prices: []gateway.Price{}}
	for i := range points {
		if created[i] != nil {
			out.Prices = append(out.Prices, *created[i])
			continue
		}
		out.Failed = append(out.Failed, checkoutdomain.PriceFailure{Ref: fmt.Sprintf("prices[%d]", i), Error: failures[i]})
	}
	s.log.Info("prices created",
		zap.String("product_id", productID),
		zap.Int("created", len(out.Prices)),
		zap.Int("failed", len(out.Failed)),
	)
	return out, nil
}

func (s *Service) DeactivatePrices(ctx context.Context, productID string) (*checkoutdomain.PriceBatchResult, error) {
	return s.setPricesActive(ctx, productID, false)
}

func (s *Service) ActivatePrices(ctx context.Context, productID string) (*checkoutdomain.PriceBatchResult, error) {
	return s.setPricesActive(ctx, productID, true)
}

// setPricesActive flips every price of a product that is not yet in the
// wanted state, in concurrent batches.
func (s *Service) setPricesActive(ctx context.Context, productID string, active bool) (*checkoutdomain.PriceBatchResult, error) {
	if strings.TrimSpace(productID) == "" {
		return nil, apperror.NewValidationError("product id is required", "id")
	}

	current := !active
	prices, err := s.gateway.ListPrices(ctx, productID, &current)
	if err != nil {
		return nil, err
	}

	var (
		mu  sync.Mutex
		out = &checkoutdomain.PriceBatchResult{Prices: []gateway.Price{}}
	)
	for start := 0; start < len(prices); start += priceBatchSize {
		batch := prices[start:min(start+priceBatchSize, len(prices))]

		var g errgroup.Group
		g.SetLimit(priceWorkers)
		for _, p := range batch {
			g.Go(func() error {
				updated, err := s.gateway.SetPriceActive(ctx, p.ID, active)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					out.Failed = append(out.Failed, checkoutdomain.PriceFailure{Ref: p.ID, Error: err.Error()})
					return nil
				}
				out.Prices = append(out.Prices, *updated)
				return nil
			})
		}
		_ = g.Wait()
	}

	keys := make([]string, 0, len(prices))
	for _, p := range prices {
		keys = append(keys, cache.PriceKey(p.ID))
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		s.log.Warn("price cache invalidation failed", zap.Error(err))
	}

	s.log.Info("prices updated",
		zap.String("product_id", productID),
		zap.Bool("active", active),
		zap.Int("updated", len(out.Prices)),
		zap.Int("failed", len(out.Failed)),
	)
	return out, nil
}
