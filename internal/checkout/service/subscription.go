package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/smallbiznis/coursepay/internal/apperror"
	checkoutdomain "github.com/smallbiznis/coursepay/internal/checkout/domain"
	"github.com/smallbiznis/coursepay/internal/gateway"
	subscriptiondomain "github.com/smallbiznis/coursepay/internal/subscription/domain"
)

func (s *Service) CreateSubscription(ctx context.Context, req checkoutdomain.SubscriptionRequest) (*gateway.Enrollment, error) {
	var fields []string
	if strings.TrimSpace(req.CustomerID) == "" {
		fields = append(fields, "customerId")
	}
	if strings.TrimSpace(req.PriceID) == "" {
		fields = append(fields, "priceId")
	}
	if strings.TrimSpace(req.PaymentMethodID) == "" {
		fields = append(fields, "paymentMethodId")
	}
	if len(fields) > 0 {
		return nil, apperror.NewValidationError("missing subscription fields", fields...)
	}

	price, err := s.getPrice(ctx, req.PriceID)
	if err != nil {
		return nil, err
	}
	if !price.Active {
		return nil, checkoutdomain.ErrPriceInactive
	}
	if !price.Recurring {
		return nil, apperror.NewValidationError("price is not recurring", "priceId")
	}

	if err := s.gateway.AttachPaymentMethod(ctx, req.CustomerID, req.PaymentMethodID); err != nil {
		return nil, err
	}
	if err := s.gateway.SetDefaultPaymentMethod(ctx, req.CustomerID, req.PaymentMethodID); err != nil {
		return nil, err
	}

	metadata := map[string]string{gateway.MetaPriceID: price.ID}
	if courses := price.Metadata[gateway.MetaCourseIDs]; courses != "" {
		metadata[gateway.MetaCourseIDs] = courses
	}
	enrollment, err := s.gateway.CreateSubscription(ctx, gateway.CreateSubscriptionParams{
		CustomerID:      req.CustomerID,
		PriceID:         price.ID,
		PaymentMethodID: req.PaymentMethodID,
		TrialEndNow:     true,
		IdempotencyKey:  newOperationID("subscription"),
		Metadata:        metadata,
	})
	if err != nil {
		return nil, err
	}

	s.snapshot(ctx, enrollment)
	return enrollment, nil
}

func (s *Service) GetSubscription(ctx context.Context, id string) (*gateway.Enrollment, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperror.NewValidationError("subscription id is required", "id")
	}
	return s.gateway.GetSubscription(ctx, id)
}

func (s *Service) CancelSubscription(ctx context.Context, id string) (*gateway.Enrollment, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperror.NewValidationError("subscription id is required", "id")
	}
	enrollment, err := s.gateway.CancelSubscription(ctx, id)
	if err != nil {
		return nil, err
	}
	s.snapshot(ctx, enrollment)
	return enrollment, nil
}

func (s *Service) UpdatePaymentMethod(ctx context.Context, subscriptionID, paymentMethodID string) (*gateway.Enrollment, error) {
	var fields []string
	if strings.TrimSpace(subscriptionID) == "" {
		fields = append(fields, "id")
	}
	if strings.TrimSpace(paymentMethodID) == "" {
		fields = append(fields, "paymentMethodId")
	}
	if len(fields) > 0 {
		return nil, apperror.NewValidationError("missing payment method fields", fields...)
	}

	current, err := s.gateway.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if err := s.gateway.AttachPaymentMethod(ctx, current.CustomerID, paymentMethodID); err != nil {
		return nil, err
	}
	if err := s.gateway.SetDefaultPaymentMethod(ctx, current.CustomerID, paymentMethodID); err != nil {
		return nil, err
	}
	return s.gateway.SetSubscriptionPaymentMethod(ctx, subscriptionID, paymentMethodID)
}

// snapshot mirrors the enrollment into the local store. Webhooks deliver
// the same state later, so failures are only logged.
func (s *Service) snapshot(ctx context.Context, e *gateway.Enrollment) {
	if s.subscriptions == nil || e == nil {
		return
	}
	status := subscriptiondomain.Status(e.Status)
	patch := subscriptiondomain.Patch{
		CustomerID:      &e.CustomerID,
		Status:          &status,
		LatestInvoiceID: &e.LatestInvoiceID,
	}
	if !e.CurrentPeriodEnd.IsZero() {
		end := e.CurrentPeriodEnd
		patch.CurrentPeriodEnd = &end
	}
	if status == subscriptiondomain.StatusCanceled {
		now := s.clock.Now()
		patch.CanceledAt = &now
	}
	if _, err := s.subscriptions.Merge(ctx, e.ID, patch); err != nil {
		s.log.Warn("subscription snapshot failed", zap.String("subscription_id", e.ID), zap.Error(err))
	}
}
