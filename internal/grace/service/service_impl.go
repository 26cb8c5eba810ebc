package service

import (
	"context"
	"errors"
	"math"
	"slices"
	"strings"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/coursepay/internal/cache"
	"github.com/smallbiznis/coursepay/internal/clock"
	"github.com/smallbiznis/coursepay/internal/config"
	"github.com/smallbiznis/coursepay/internal/gateway"
	gracedomain "github.com/smallbiznis/coursepay/internal/grace/domain"
	notificationdomain "github.com/smallbiznis/coursepay/internal/notification/domain"
	subscriptiondomain "github.com/smallbiznis/coursepay/internal/subscription/domain"
)

const reminderMarkerTTL = 24 * time.Hour

type Params struct {
	fx.In

	Config        config.Config
	Log           *zap.Logger
	Gateway       gateway.Gateway `name:"reconcile"`
	Subscriptions subscriptiondomain.Store
	Notifier      notificationdomain.Assembler
	Clock         clock.Clock
	Cache         *cache.Client `optional:"true"`
}

type Service struct {
	log           *zap.Logger
	gateway       gateway.Gateway
	subscriptions subscriptiondomain.Store
	notifier      notificationdomain.Assembler
	clock         clock.Clock
	cache         *cache.Client
	graceDays     int
	schedule      []int
}

func NewService(p Params) gracedomain.Manager {
	days := p.Config.GracePeriodDays
	if days <= 0 {
		days = 7
	}
	schedule := p.Config.ReminderSchedule
	if len(schedule) == 0 {
		schedule = []int{7, 3, 1}
	}
	return &Service{
		log:           p.Log.Named("grace.service"),
		gateway:       p.Gateway,
		subscriptions: p.Subscriptions,
		notifier:      p.Notifier,
		clock:         p.Clock,
		cache:         p.Cache,
		graceDays:     days,
		schedule:      schedule,
	}
}

func (s *Service) HandleFailedPayment(ctx context.Context, subscriptionID string, days int) (*gateway.Enrollment, error) {
	subscriptionID = strings.TrimSpace(subscriptionID)
	if subscriptionID == "" {
		return nil, subscriptiondomain.ErrInvalidID
	}
	if days <= 0 {
		days = s.graceDays
	}

	now := s.clock.Now()
	graceEnd := now.AddDate(0, 0, days)

	enrollment, err := s.gateway.UpdateSubscriptionMetadata(ctx, subscriptionID, map[string]string{
		gateway.MetaGracePeriodEnd: graceEnd.Format(time.RFC3339),
		gateway.MetaPaymentFailed:  now.Format(time.RFC3339),
	})
	if err != nil {
		return nil, err
	}

	status := subscriptiondomain.StatusPastDue
	snapshot, err := s.subscriptions.Merge(ctx, subscriptionID, subscriptiondomain.Patch{
		CustomerID:     &enrollment.CustomerID,
		Status:         &status,
		GracePeriodEnd: &graceEnd,
	})
	if err != nil {
		return nil, err
	}

	email, name := s.contact(ctx, snapshot, enrollment.CustomerID)
	if email == "" {
		s.log.Warn("no customer email for failed payment notice", zap.String("subscription_id", subscriptionID))
		return enrollment, nil
	}
	if err := s.notifier.SendPaymentFailed(ctx, notificationdomain.PaymentFailed{
		SubscriptionID: subscriptionID,
		CustomerEmail:  email,
		CustomerName:   name,
		GracePeriodEnd: graceEnd,
	}); err != nil {
		return nil, err
	}

	s.log.Info("grace period started",
		zap.String("subscription_id", subscriptionID),
		zap.Time("grace_period_end", graceEnd),
	)
	return enrollment, nil
}

func (s *Service) HandleSubscriptionUpdated(ctx context.Context, enrollment gateway.Enrollment) (*gracedomain.ReminderOutcome, error) {
	if enrollment.ID == "" {
		return nil, subscriptiondomain.ErrInvalidID
	}
	out := &gracedomain.ReminderOutcome{SubscriptionID: enrollment.ID}
	if enrollment.CurrentPeriodEnd.IsZero() {
		return out, nil
	}

	now := s.clock.Now()
	out.DaysRemaining = daysUntil(now, enrollment.CurrentPeriodEnd)
	if !slices.Contains(s.schedule, out.DaysRemaining) {
		return out, nil
	}

	snapshot, err := s.subscriptions.Get(ctx, enrollment.ID)
	if err != nil && !errors.Is(err, subscriptiondomain.ErrNotFound) {
		return nil, err
	}

	first, release, err := s.claimReminder(ctx, enrollment.ID, out.DaysRemaining, snapshot, now)
	if err != nil {
		return nil, err
	}
	if !first {
		s.log.Debug("reminder already sent",
			zap.String("subscription_id", enrollment.ID),
			zap.Int("days_remaining", out.DaysRemaining),
		)
		return out, nil
	}

	email, name := s.contact(ctx, snapshot, enrollment.CustomerID)
	if email == "" {
		s.log.Warn("no customer email for renewal reminder", zap.String("subscription_id", enrollment.ID))
		return out, nil
	}
	if err := s.notifier.SendRenewalReminder(ctx, notificationdomain.RenewalReminder{
		SubscriptionID: enrollment.ID,
		CustomerEmail:  email,
		CustomerName:   name,
		DaysRemaining:  out.DaysRemaining,
		RenewalDate:    enrollment.CurrentPeriodEnd,
	}); err != nil {
		release()
		return nil, err
	}

	days := out.DaysRemaining
	if _, err := s.subscriptions.Merge(ctx, enrollment.ID, subscriptiondomain.Patch{
		LastNotificationSent: &now,
		LastReminderDays:     &days,
	}); err != nil {
		return nil, err
	}
	out.Sent = true
	return out, nil
}

// SendReminder fetches the enrollment and runs the reminder check for it.
func (s *Service) SendReminder(ctx context.Context, subscriptionID string) (*gracedomain.ReminderOutcome, error) {
	subscriptionID = strings.TrimSpace(subscriptionID)
	if subscriptionID == "" {
		return nil, subscriptiondomain.ErrInvalidID
	}
	enrollment, err := s.gateway.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	out, err := s.HandleSubscriptionUpdated(ctx, *enrollment)
	if err != nil {
		return nil, err
	}
	if !out.Sent {
		return out, gracedomain.ErrNoReminderDue
	}
	return out, nil
}

// claimReminder reports whether this delivery is the first for the
// subscription and day count. Redis marks win over the stored date. The
// returned release drops the mark so a failed send can be retried.
func (s *Service) claimReminder(ctx context.Context, subscriptionID string, days int, snapshot *subscriptiondomain.Subscription, now time.Time) (bool, func(), error) {
	noop := func() {}
	if s.cache.Enabled() {
		key := cache.ReminderKey(subscriptionID, days)
		token, first, err := s.cache.MarkOnce(ctx, key, reminderMarkerTTL)
		if err == nil {
			release := func() {
				if err := s.cache.Release(context.WithoutCancel(ctx), key, token); err != nil {
					s.log.Warn("reminder marker release failed", zap.String("key", key), zap.Error(err))
				}
			}
			return first, release, nil
		}
		s.log.Warn("reminder marker unavailable, using stored state", zap.Error(err))
	}
	if snapshot == nil || snapshot.LastNotificationSent == nil {
		return true, noop, nil
	}
	if snapshot.LastReminderDays == days && sameDay(*snapshot.LastNotificationSent, now) {
		return false, noop, nil
	}
	return true, noop, nil
}

func (s *Service) contact(ctx context.Context, snapshot *subscriptiondomain.Subscription, customerID string) (string, string) {
	var email string
	if snapshot != nil {
		email = snapshot.CustomerEmail
		if customerID == "" {
			customerID = snapshot.CustomerID
		}
	}
	if customerID == "" {
		return email, ""
	}
	customer, err := s.gateway.GetCustomer(ctx, customerID)
	if err != nil || customer == nil {
		if err != nil {
			s.log.Warn("customer lookup failed", zap.String("customer_id", customerID), zap.Error(err))
		}
		return email, ""
	}
	if email == "" {
		email = customer.Email
	}
	return email, customer.Name
}

// daysUntil rounds partial days up, so 2.1 days left counts as 3.
func daysUntil(now, end time.Time) int {
	return int(math.Ceil(end.Sub(now).Hours() / 24))
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
