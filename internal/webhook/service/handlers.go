package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/smallbiznis/coursepay/internal/gateway"
	purchasedomain "github.com/smallbiznis/coursepay/internal/purchase/domain"
	subscriptiondomain "github.com/smallbiznis/coursepay/internal/subscription/domain"
	webhookdomain "github.com/smallbiznis/coursepay/internal/webhook/domain"
)

const statusRequiresAction = "requires_action"

func metadataAny(meta map[string]string) map[string]any {
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}

func (s *Service) paymentIntentPending(ctx context.Context, evt *webhookdomain.Event, pi paymentIntentPayload) error {
	status := purchasedomain.StatusPending
	if evt.Kind == webhookdomain.KindPaymentIntentRequiresAction {
		status = statusRequiresAction
	}
	amount := pi.Amount
	_, err := s.purchases.SaveStatus(ctx, purchasedomain.Input{
		ID:            pi.ID,
		CustomerID:    string(pi.Customer),
		CustomerEmail: pi.ReceiptEmail,
		AmountPaid:    &amount,
		Currency:      pi.Currency,
		PaymentStatus: status,
		PaymentType:   purchasedomain.PaymentTypeOneTime,
		Metadata:      metadataAny(pi.Metadata),
	})
	return err
}

func (s *Service) paymentIntentSucceeded(ctx context.Context, _ *webhookdomain.Event, pi paymentIntentPayload) error {
	res, err := s.provisioner.ProvisionFromPaymentIntent(ctx, pi.toDomain())
	if err != nil {
		return err
	}
	s.log.Info("payment intent reconciled",
		zap.String("payment_intent_id", pi.ID),
		zap.Bool("skipped", res.Skipped),
		zap.Bool("created", res.Created),
	)
	return nil
}

func (s *Service) paymentIntentFailed(ctx context.Context, _ *webhookdomain.Event, pi paymentIntentPayload) error {
	meta := metadataAny(pi.Metadata)
	if e := pi.LastPaymentError; e != nil {
		meta["failure_code"] = e.Code
		meta["decline_code"] = e.DeclineCode
		meta["failure_message"] = e.Message
	}
	var zero int64
	_, err := s.purchases.SaveStatus(ctx, purchasedomain.Input{
		ID:            pi.ID,
		CustomerID:    string(pi.Customer),
		CustomerEmail: pi.ReceiptEmail,
		AmountPaid:    &zero,
		Currency:      pi.Currency,
		PaymentStatus: purchasedomain.StatusFailed,
		PaymentType:   purchasedomain.PaymentTypeOneTime,
		Metadata:      meta,
	})
	return err
}

func (s *Service) checkoutSessionCompleted(ctx context.Context, _ *webhookdomain.Event, payload checkoutSessionPayload) error {
	session := payload.toDomain()
	switch strings.ToLower(session.PaymentStatus) {
	case "paid", "no_payment_required":
	default:
		// Delayed payment methods complete later through payment_intent.succeeded.
		s.log.Info("checkout session awaiting payment",
			zap.String("checkout_session_id", session.ID),
			zap.String("payment_status", session.PaymentStatus),
		)
		amount := session.AmountTotal
		meta := metadataAny(session.Metadata)
		meta[gateway.MetaCheckoutID] = session.ID
		paymentType := purchasedomain.PaymentTypeOneTime
		if session.Mode == gateway.ModeSubscription {
			paymentType = purchasedomain.PaymentTypeSubscription
		}
		_, err := s.purchases.SaveStatus(ctx, purchasedomain.Input{
			ID:            session.SourceID(),
			CustomerID:    session.CustomerID,
			CustomerEmail: session.Customer.Email,
			AmountPaid:    &amount,
			Currency:      session.Currency,
			PaymentStatus: purchasedomain.StatusPending,
			PaymentType:   paymentType,
			Metadata:      meta,
		})
		return err
	}

	res, err := s.provisioner.ProvisionFromCheckoutSession(ctx, session)
	if err != nil {
		return err
	}
	s.log.Info("checkout session reconciled",
		zap.String("checkout_session_id", session.ID),
		zap.String("source_id", res.SourceID),
		zap.Bool("created", res.Created),
		zap.Strings("failed_steps", res.Failed),
	)
	return nil
}

func (s *Service) invoicePaymentSucceeded(ctx context.Context, _ *webhookdomain.Event, inv invoicePayload) error {
	subID := string(inv.Subscription)
	if subID == "" {
		return nil
	}

	active := subscriptiondomain.StatusActive
	customerID := string(inv.Customer)
	patch := subscriptiondomain.Patch{
		Status:           &active,
		LatestInvoiceID:  &inv.ID,
		ClearGracePeriod: true,
		CurrentPeriodEnd: inv.servicePeriodEnd(),
	}
	if customerID != "" {
		patch.CustomerID = &customerID
	}
	if inv.CustomerEmail != "" {
		patch.CustomerEmail = &inv.CustomerEmail
	}
	if _, err := s.subscriptions.Merge(ctx, subID, patch); err != nil {
		return err
	}

	meta := metadataAny(inv.Metadata)
	meta["subscription_id"] = subID
	meta["billing_reason"] = inv.BillingReason
	if end := inv.servicePeriodEnd(); end != nil {
		meta["period_end"] = end.Format("2006-01-02")
	}
	if pi := string(inv.PaymentIntent); pi != "" {
		meta[gateway.MetaPaymentIntent] = pi
	}
	// Renewal invoices carry no key of their own; point at the one the
	// subscription was issued.
	if key, err := s.productKeys.FindBySubscription(ctx, subID); err != nil {
		s.log.Warn("product key lookup failed",
			zap.String("subscription_id", subID),
			zap.String("invoice_id", inv.ID),
			zap.Error(err),
		)
	} else if key != nil {
		meta["product_key"] = key.Key
	}
	amount := inv.AmountPaid
	_, err := s.purchases.Save(ctx, purchasedomain.Input{
		ID:            inv.ID,
		CustomerID:    customerID,
		CustomerEmail: inv.CustomerEmail,
		AmountPaid:    &amount,
		Currency:      inv.Currency,
		PaymentStatus: purchasedomain.StatusSucceeded,
		PaymentType:   purchasedomain.PaymentTypeSubscription,
		Metadata:      meta,
	})
	return err
}

func (s *Service) invoicePaymentFailed(ctx context.Context, _ *webhookdomain.Event, inv invoicePayload) error {
	subID := string(inv.Subscription)
	if subID == "" {
		return nil
	}
	_, err := s.grace.HandleFailedPayment(ctx, subID, 0)
	return err
}

func (s *Service) subscriptionChanged(ctx context.Context, evt *webhookdomain.Event, sub subscriptionPayload) error {
	enrollment := sub.toEnrollment()
	status := subscriptiondomain.Status(sub.Status)
	patch := subscriptiondomain.Patch{
		CustomerID: &enrollment.CustomerID,
		Status:     &status,
	}
	if !enrollment.CurrentPeriodEnd.IsZero() {
		end := enrollment.CurrentPeriodEnd
		patch.CurrentPeriodEnd = &end
	}
	if enrollment.LatestInvoiceID != "" {
		patch.LatestInvoiceID = &enrollment.LatestInvoiceID
	}
	if _, err := s.subscriptions.Merge(ctx, sub.ID, patch); err != nil {
		return err
	}

	if status != subscriptiondomain.StatusActive && status != subscriptiondomain.StatusTrialing {
		return nil
	}
	out, err := s.grace.HandleSubscriptionUpdated(ctx, enrollment)
	if err != nil {
		return err
	}
	if out.Sent {
		s.log.Info("renewal reminder sent",
			zap.String("subscription_id", sub.ID),
			zap.Int("days_remaining", out.DaysRemaining),
			zap.String("event_type", evt.Type),
		)
	}
	return nil
}

func (s *Service) subscriptionDeleted(ctx context.Context, _ *webhookdomain.Event, sub subscriptionPayload) error {
	canceled := subscriptiondomain.StatusCanceled
	canceledAt := sub.CanceledAt.Ptr()
	if canceledAt == nil {
		now := s.clock.Now()
		canceledAt = &now
	}
	customerID := string(sub.Customer)
	if _, err := s.subscriptions.Merge(ctx, sub.ID, subscriptiondomain.Patch{
		CustomerID: &customerID,
		Status:     &canceled,
		CanceledAt: canceledAt,
	}); err != nil {
		return err
	}

	revoked, err := s.productKeys.RevokeForSubscription(ctx, sub.ID)
	if err != nil {
		return err
	}
	s.log.Info("subscription canceled",
		zap.String("subscription_id", sub.ID),
		zap.Int64("revoked_keys", revoked),
	)
	return nil
}
