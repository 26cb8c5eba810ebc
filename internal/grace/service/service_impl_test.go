package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/smallbiznis/coursepay/internal/clock"
	"github.com/smallbiznis/coursepay/internal/config"
	"github.com/smallbiznis/coursepay/internal/gateway"
	"github.com/smallbiznis/coursepay/internal/gateway/gatewaytest"
	gracedomain "github.com/smallbiznis/coursepay/internal/grace/domain"
	notificationdomain "github.com/smallbiznis/coursepay/internal/notification/domain"
	subscriptiondomain "github.com/smallbiznis/coursepay/internal/subscription/domain"
	subscriptionrepo "github.com/smallbiznis/coursepay/internal/subscription/repository"
	subscriptionservice "github.com/smallbiznis/coursepay/internal/subscription/service"
)

type recordingNotifier struct {
	mu        sync.Mutex
	failed    []notificationdomain.PaymentFailed
	reminders []notificationdomain.RenewalReminder
}

func (n *recordingNotifier) SendPurchaseConfirmation(context.Context, notificationdomain.Purchase) error {
	return nil
}

func (n *recordingNotifier) SendPaymentFailed(_ context.Context, p notificationdomain.PaymentFailed) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = append(n.failed, p)
	return nil
}

func (n *recordingNotifier) SendRenewalReminder(_ context.Context, r notificationdomain.RenewalReminder) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reminders = append(n.reminders, r)
	return nil
}

var start = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*Service, *gatewaytest.Fake, *recordingNotifier, subscriptiondomain.Store, *clock.FakeClock) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&subscriptiondomain.Subscription{}))

	clk := clock.NewFakeClock(start)
	store := subscriptionservice.NewService(subscriptionservice.Params{
		DB: db, Log: zap.NewNop(), Repo: subscriptionrepo.Provide(), Clock: clk,
	})

	gw := gatewaytest.New()
	gw.Customers["cus_1"] = &gateway.Customer{ID: "cus_1", Email: "kunde@example.com", Name: "Erika Muster"}
	gw.Subscriptions["sub_1"] = &gateway.Enrollment{
		ID:               "sub_1",
		CustomerID:       "cus_1",
		Status:           "active",
		CurrentPeriodEnd: start.Add(71 * time.Hour),
	}

	notifier := &recordingNotifier{}
	svc := NewService(Params{
		Config:        config.Config{GracePeriodDays: 7, ReminderSchedule: []int{7, 3, 1}},
		Log:           zap.NewNop(),
		Gateway:       gw,
		Subscriptions: store,
		Notifier:      notifier,
		Clock:         clk,
	}).(*Service)
	return svc, gw, notifier, store, clk
}

func TestHandleFailedPaymentStartsGracePeriod(t *testing.T) {
	svc, gw, notifier, store, _ := setup(t)
	ctx := context.Background()

	enrollment, err := svc.HandleFailedPayment(ctx, "sub_1", 0)
	require.NoError(t, err)

	wantEnd := start.AddDate(0, 0, 7)
	assert.Equal(t, wantEnd.Format(time.RFC3339), enrollment.Metadata[gateway.MetaGracePeriodEnd])
	assert.Equal(t, start.Format(time.RFC3339), gw.Subscriptions["sub_1"].Metadata[gateway.MetaPaymentFailed])

	snapshot, err := store.Get(ctx, "sub_1")
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.StatusPastDue, snapshot.Status)
	require.NotNil(t, snapshot.GracePeriodEnd)
	assert.True(t, wantEnd.Equal(*snapshot.GracePeriodEnd))

	require.Len(t, notifier.failed, 1)
	assert.Equal(t, "kunde@example.com", notifier.failed[0].CustomerEmail)
	assert.True(t, wantEnd.Equal(notifier.failed[0].GracePeriodEnd))
}

func TestHandleFailedPaymentCustomDays(t *testing.T) {
	svc, _, notifier, _, _ := setup(t)

	_, err := svc.HandleFailedPayment(context.Background(), "sub_1", 3)
	require.NoError(t, err)
	require.Len(t, notifier.failed, 1)
	assert.True(t, start.AddDate(0, 0, 3).Equal(notifier.failed[0].GracePeriodEnd))
}

func TestHandleFailedPaymentUnknownSubscription(t *testing.T) {
	svc, _, notifier, _, _ := setup(t)

	_, err := svc.HandleFailedPayment(context.Background(), "sub_missing", 0)
	require.Error(t, err)
	assert.Empty(t, notifier.failed)

	_, err = svc.HandleFailedPayment(context.Background(), " ", 0)
	assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidID)
}

func TestHandleSubscriptionUpdatedSendsReminderOncePerDay(t *testing.T) {
	svc, gw, notifier, store, clk := setup(t)
	ctx := context.Background()
	enrollment := *gw.Subscriptions["sub_1"]

	out, err := svc.HandleSubscriptionUpdated(ctx, enrollment)
	require.NoError(t, err)
	assert.Equal(t, 3, out.DaysRemaining)
	assert.True(t, out.Sent)

	again, err := svc.HandleSubscriptionUpdated(ctx, enrollment)
	require.NoError(t, err)
	assert.False(t, again.Sent)
	require.Len(t, notifier.reminders, 1)
	assert.Equal(t, 3, notifier.reminders[0].DaysRemaining)
	assert.Equal(t, "Erika Muster", notifier.reminders[0].CustomerName)

	snapshot, err := store.Get(ctx, "sub_1")
	require.NoError(t, err)
	assert.Equal(t, 3, snapshot.LastReminderDays)
	require.NotNil(t, snapshot.LastNotificationSent)

	// one day later two days remain, which is not on the schedule
	clk.Advance(24 * time.Hour)
	later, err := svc.HandleSubscriptionUpdated(ctx, enrollment)
	require.NoError(t, err)
	assert.Equal(t, 2, later.DaysRemaining)
	assert.False(t, later.Sent)
	assert.Len(t, notifier.reminders, 1)
}

func TestSendReminder(t *testing.T) {
	svc, gw, notifier, _, _ := setup(t)
	ctx := context.Background()

	out, err := svc.SendReminder(ctx, "sub_1")
	require.NoError(t, err)
	assert.True(t, out.Sent)
	assert.Len(t, notifier.reminders, 1)

	gw.Subscriptions["sub_1"].CurrentPeriodEnd = start.Add(30 * 24 * time.Hour)
	_, err = svc.SendReminder(ctx, "sub_1")
	assert.ErrorIs(t, err, gracedomain.ErrNoReminderDue)
}

func TestDaysUntil(t *testing.T) {
	assert.Equal(t, 3, daysUntil(start, start.Add(49*time.Hour)))
	assert.Equal(t, 1, daysUntil(start, start.Add(time.Hour)))
	assert.Equal(t, 7, daysUntil(start, start.Add(7*24*time.Hour)))
	assert.Equal(t, 0, daysUntil(start, start))
}
