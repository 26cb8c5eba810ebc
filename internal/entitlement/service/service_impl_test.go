package service

import (
	"context"
	"errors"
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
	entitlementdomain "github.com/smallbiznis/coursepay/internal/entitlement/domain"
	"github.com/smallbiznis/coursepay/internal/gateway"
	"github.com/smallbiznis/coursepay/internal/gateway/gatewaytest"
	notificationdomain "github.com/smallbiznis/coursepay/internal/notification/domain"
	productkeydomain "github.com/smallbiznis/coursepay/internal/productkey/domain"
	"github.com/smallbiznis/coursepay/internal/productkey/generator"
	productkeyrepo "github.com/smallbiznis/coursepay/internal/productkey/repository"
	productkeyservice "github.com/smallbiznis/coursepay/internal/productkey/service"
	purchasedomain "github.com/smallbiznis/coursepay/internal/purchase/domain"
	purchaserepo "github.com/smallbiznis/coursepay/internal/purchase/repository"
	purchaseservice "github.com/smallbiznis/coursepay/internal/purchase/service"
)

type recordedError struct {
	Type      string
	ContextID string
	Err       error
}

type fakeRecorder struct {
	mu      sync.Mutex
	entries []recordedError
}

func (r *fakeRecorder) Record(_ context.Context, errType, contextID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, recordedError{Type: errType, ContextID: contextID, Err: err})
}

func (r *fakeRecorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Type)
	}
	return out
}

type fakeAssembler struct {
	mu        sync.Mutex
	purchases []notificationdomain.Purchase
	err       error
}

func (a *fakeAssembler) SendPurchaseConfirmation(_ context.Context, p notificationdomain.Purchase) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.purchases = append(a.purchases, p)
	return a.err
}

func (a *fakeAssembler) SendPaymentFailed(context.Context, notificationdomain.PaymentFailed) error {
	return nil
}

func (a *fakeAssembler) SendRenewalReminder(context.Context, notificationdomain.RenewalReminder) error {
	return nil
}

func (a *fakeAssembler) sent() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.purchases)
}

type harness struct {
	svc      *Service
	db       *gorm.DB
	gw       *gatewaytest.Fake
	mail     *fakeAssembler
	recorder *fakeRecorder
}

func setup(t *testing.T) *harness {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&purchasedomain.Record{}, &productkeydomain.ProductKey{}))

	clk := clock.NewFakeClock(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC))
	gw := gatewaytest.New()
	gw.Prices["price_kurs"] = &gateway.Price{ID: "price_kurs", ProductID: "prod_kurs", Active: true, UnitAmount: 12000, Currency: "eur", Nickname: "Grundkurs"}
	gw.Products["prod_kurs"] = &gateway.Product{ID: "prod_kurs", Name: "Grundkurs", Metadata: map[string]string{gateway.MetaCourseIDs: "c1, c2"}}

	h := &harness{db: db, gw: gw, mail: &fakeAssembler{}, recorder: &fakeRecorder{}}
	h.svc = NewService(Params{
		Log:     zap.NewNop(),
		Gateway: gw,
		Purchases: purchaseservice.NewService(purchaseservice.Params{
			DB: db, Log: zap.NewNop(), Repo: purchaserepo.Provide(), Clock: clk,
		}),
		ProductKeys: productkeyservice.NewService(productkeyservice.Params{
			DB: db, Log: zap.NewNop(), Repo: productkeyrepo.Provide(),
			Generator: generator.NewWithPrefix("HN", clk), Clock: clk,
		}),
		Notifier: h.mail,
		Errors:   h.recorder,
		Clock:    clk,
	}).(*Service)
	return h
}

func paidSession() entitlementdomain.CheckoutSession {
	return entitlementdomain.CheckoutSession{
		ID:              "cs_test_1",
		Mode:            gateway.ModePayment,
		PaymentStatus:   "paid",
		CustomerID:      "cus_1",
		Customer:        entitlementdomain.CustomerDetails{Email: "kunde@example.com", Name: "Erika Muster"},
		PaymentIntentID: "pi_42",
		AmountTotal:     14400,
		AmountSubtotal:  14400,
		Currency:        "eur",
		Metadata: map[string]string{
			gateway.MetaVATRate:        "0.2",
			gateway.MetaVATAmount:      "2400",
			gateway.MetaOriginalAmount: "12000",
			gateway.MetaCountry:        "AT",
		},
	}
}

func TestProvisionFromCheckoutSession(t *testing.T) {
	h := setup(t)
	h.gw.LineItems["cs_test_1"] = []gateway.LineItem{{PriceID: "price_kurs", Description: "Grundkurs", Quantity: 1, AmountTotal: 14400}}

	res, err := h.svc.ProvisionFromCheckoutSession(context.Background(), paidSession())
	require.NoError(t, err)

	assert.Equal(t, "pi_42", res.SourceID)
	assert.True(t, res.Created)
	assert.Empty(t, res.Failed)
	assert.Equal(t, []string{"c1", "c2"}, res.CourseIDs)
	assert.Regexp(t, `^HN-[0-9A-Z]+-[0-9A-Z]{6}$`, res.ProductKey)

	var record purchasedomain.Record
	require.NoError(t, h.db.First(&record, "session_or_intent_id = ?", "pi_42").Error)
	assert.Equal(t, purchasedomain.StatusSucceeded, record.PaymentStatus)
	assert.Equal(t, int64(14400), record.AmountPaid)
	assert.Contains(t, string(record.Metadata), `"checkout_session_id":"cs_test_1"`)
	assert.JSONEq(t, `{"country":"AT","rate":"0.2","net":12000,"vat":2400,"gross":14400,"currency":"EUR"}`, string(record.TaxDetails))

	require.Equal(t, 1, h.mail.sent())
	sent := h.mail.purchases[0]
	assert.Equal(t, res.ProductKey, sent.ProductKey)
	assert.Equal(t, "kunde@example.com", sent.CustomerEmail)
	require.NotNil(t, sent.Tax)
	assert.Equal(t, int64(2400), sent.Tax.VAT)
}

func TestProvisionIsIdempotentAcrossEvents(t *testing.T) {
	h := setup(t)
	h.gw.LineItems["cs_test_1"] = []gateway.LineItem{{PriceID: "price_kurs", Quantity: 1, AmountTotal: 14400}}
	ctx := context.Background()

	first, err := h.svc.ProvisionFromCheckoutSession(ctx, paidSession())
	require.NoError(t, err)

	second, err := h.svc.ProvisionFromPaymentIntent(ctx, entitlementdomain.PaymentIntent{
		ID:             "pi_42",
		ReceiptEmail:   "kunde@example.com",
		Amount:         14400,
		AmountReceived: 14400,
		Currency:       "eur",
		Metadata:       map[string]string{metaPriceIDCamel: "price_kurs"},
	})
	require.NoError(t, err)

	replay, err := h.svc.ProvisionFromCheckoutSession(ctx, paidSession())
	require.NoError(t, err)

	assert.Equal(t, first.ProductKey, second.ProductKey)
	assert.Equal(t, first.ProductKey, replay.ProductKey)
	assert.False(t, second.Created)
	assert.False(t, replay.Created)
	assert.Equal(t, 1, h.mail.sent())

	var keys int64
	require.NoError(t, h.db.Model(&productkeydomain.ProductKey{}).Count(&keys).Error)
	assert.Equal(t, int64(1), keys)
}

func TestProvisionContinuesPastFailedSteps(t *testing.T) {
	h := setup(t)
	h.gw.Fail["ListSessionLineItems"] = errors.New("gateway down")
	h.mail.err = errors.New("smtp down")

	session := paidSession()
	session.Metadata[gateway.MetaCourseIDs] = "c9"
	res, err := h.svc.ProvisionFromCheckoutSession(context.Background(), session)
	require.NoError(t, err)

	assert.NotEmpty(t, res.ProductKey)
	assert.Equal(t, []string{"c9"}, res.CourseIDs)
	assert.Equal(t, []string{entitlementdomain.StepResolveCourses, entitlementdomain.StepNotify}, res.Failed)
	assert.Equal(t, []string{
		"reconciliation:" + entitlementdomain.StepResolveCourses,
		"reconciliation:" + entitlementdomain.StepNotify,
	}, h.recorder.types())
	for _, e := range h.recorder.entries {
		assert.Equal(t, "pi_42", e.ContextID)
	}
}

type failingPurchases struct {
	purchasedomain.Store
	err error
}

func (f failingPurchases) Save(context.Context, purchasedomain.Input) (*purchasedomain.Record, error) {
	return nil, f.err
}

func TestProvisionIssuesKeyWhenPurchaseRecordFails(t *testing.T) {
	h := setup(t)
	h.gw.LineItems["cs_test_1"] = []gateway.LineItem{{PriceID: "price_kurs", Quantity: 1, AmountTotal: 14400}}
	h.svc.purchases = failingPurchases{Store: h.svc.purchases, err: errors.New("store down")}

	res, err := h.svc.ProvisionFromCheckoutSession(context.Background(), paidSession())
	require.NoError(t, err)

	assert.Equal(t, []string{entitlementdomain.StepPurchaseRecord}, res.Failed)
	assert.True(t, res.Created)
	assert.NotEmpty(t, res.ProductKey)

	var key productkeydomain.ProductKey
	require.NoError(t, h.db.First(&key, "source_id = ?", "pi_42").Error)
	assert.Equal(t, res.ProductKey, key.Key)

	var records int64
	require.NoError(t, h.db.Model(&purchasedomain.Record{}).Count(&records).Error)
	assert.Zero(t, records)

	require.Equal(t, 1, h.mail.sent())
	assert.Equal(t, res.ProductKey, h.mail.purchases[0].ProductKey)
	assert.Equal(t, []string{"reconciliation:" + entitlementdomain.StepPurchaseRecord}, h.recorder.types())
}

func TestProvisionFromPaymentIntentSkipsSubscriptionInvoices(t *testing.T) {
	h := setup(t)

	res, err := h.svc.ProvisionFromPaymentIntent(context.Background(), entitlementdomain.PaymentIntent{
		ID:               "pi_sub",
		Amount:           2900,
		Currency:         "eur",
		GatewayInvoiceID: "in_sub",
	})
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Empty(t, res.ProductKey)
	assert.Zero(t, h.mail.sent())
}

func TestProvisionFromPaymentIntentFallsBackToCustomer(t *testing.T) {
	h := setup(t)
	h.gw.Customers["cus_7"] = &gateway.Customer{ID: "cus_7", Email: "max@example.com", Name: "Max"}

	res, err := h.svc.ProvisionFromPaymentIntent(context.Background(), entitlementdomain.PaymentIntent{
		ID:         "pi_7",
		CustomerID: "cus_7",
		Amount:     12000,
		Currency:   "eur",
		Metadata:   map[string]string{gateway.MetaCourseIDs: "c3"},
	})
	require.NoError(t, err)

	assert.True(t, res.Created)
	assert.Equal(t, []string{"c3"}, res.CourseIDs)
	require.Equal(t, 1, h.mail.sent())
	assert.Equal(t, "max@example.com", h.mail.purchases[0].CustomerEmail)
	assert.Equal(t, "Max", h.mail.purchases[0].CustomerName)
}

func TestProvisionRejectsMissingID(t *testing.T) {
	h := setup(t)
	_, err := h.svc.ProvisionFromCheckoutSession(context.Background(), entitlementdomain.CheckoutSession{})
	assert.ErrorIs(t, err, purchasedomain.ErrInvalidID)
	_, err = h.svc.ProvisionFromPaymentIntent(context.Background(), entitlementdomain.PaymentIntent{})
	assert.ErrorIs(t, err, purchasedomain.ErrInvalidID)
}

func TestIssuePurchaseConfirmation(t *testing.T) {
	h := setup(t)
	ctx := context.Background()
	data := entitlementdomain.PurchaseData{
		SourceID:      "cs_manual",
		CustomerEmail: "kunde@example.com",
		CourseIDs:     []string{"c1"},
		AmountPaid:    12000,
		Currency:      "eur",
	}

	first, err := h.svc.IssuePurchaseConfirmation(ctx, data)
	require.NoError(t, err)
	assert.True(t, first.Success)

	second, err := h.svc.IssuePurchaseConfirmation(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, first.ProductKey, second.ProductKey)
	assert.Equal(t, 2, h.mail.sent())

	h.mail.err = errors.New("smtp down")
	third, err := h.svc.IssuePurchaseConfirmation(ctx, data)
	require.NoError(t, err)
	assert.False(t, third.Success)
	assert.Equal(t, first.ProductKey, third.ProductKey)

	_, err = h.svc.IssuePurchaseConfirmation(ctx, entitlementdomain.PurchaseData{})
	require.Error(t, err)
}

func TestSummarizeDiscount(t *testing.T) {
	d, err := summarizeDiscount(entitlementdomain.CheckoutSession{})
	require.NoError(t, err)
	assert.Nil(t, d)

	d, err = summarizeDiscount(entitlementdomain.CheckoutSession{
		AmountDiscount: 500,
		Discounts:      []entitlementdomain.Discount{{PromotionCode: "SOMMER", CouponID: "co_1", PercentOff: 10}},
	})
	require.NoError(t, err)
	assert.Equal(t, &purchasedomain.DiscountDetails{Amount: 500, PromotionCode: "SOMMER", CouponID: "co_1", PercentOff: 10}, d)

	d, err = summarizeDiscount(entitlementdomain.CheckoutSession{AmountDiscount: 300})
	require.NoError(t, err)
	assert.True(t, d.Automatic)
}
