package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smallbiznis/coursepay/internal/apperror"
	checkoutdomain "github.com/smallbiznis/coursepay/internal/checkout/domain"
	"github.com/smallbiznis/coursepay/internal/clock"
	"github.com/smallbiznis/coursepay/internal/config"
	"github.com/smallbiznis/coursepay/internal/gateway"
	"github.com/smallbiznis/coursepay/internal/gateway/gatewaytest"
	subscriptiondomain "github.com/smallbiznis/coursepay/internal/subscription/domain"
	taxservice "github.com/smallbiznis/coursepay/internal/tax/service"
)

type memorySubscriptions struct {
	mu   sync.Mutex
	rows map[string]subscriptiondomain.Subscription
}

func (m *memorySubscriptions) Merge(_ context.Context, id string, p subscriptiondomain.Patch) (*subscriptiondomain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row := m.rows[id]
	row.ID = id
	if p.Status != nil {
		row.Status = *p.Status
	}
	if p.CustomerID != nil {
		row.CustomerID = *p.CustomerID
	}
	if p.CanceledAt != nil {
		row.CanceledAt = p.CanceledAt
	}
	m.rows[id] = row
	return &row, nil
}

func (m *memorySubscriptions) Get(_ context.Context, id string) (*subscriptiondomain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, subscriptiondomain.ErrNotFound
	}
	return &row, nil
}

var now = time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *gatewaytest.Fake, *memorySubscriptions) {
	t.Helper()
	table, err := config.NewStaticVATTableHolder(config.DefaultVATTable())
	require.NoError(t, err)

	gw := gatewaytest.New()
	subs := &memorySubscriptions{rows: map[string]subscriptiondomain.Subscription{}}
	svc := NewService(Params{
		Config: config.Config{Stripe: config.StripeConfig{
			SuccessURL: "https://shop.example.com/success",
			CancelURL:  "https://shop.example.com/cancel",
		}},
		Log:           zap.NewNop(),
		Gateway:       gw,
		Tax:           taxservice.NewCalculator(taxservice.Params{Table: table, Log: zap.NewNop()}),
		Subscriptions: subs,
		Clock:         clock.NewFakeClock(now),
	}).(*Service)
	return svc, gw, subs
}

func validCharge() checkoutdomain.ChargeRequest {
	return checkoutdomain.ChargeRequest{
		Amount:          10000,
		Country:         "AT",
		CustomerID:      "cus_1",
		PaymentMethodID: "pm_card",
		CourseIDs:       []string{"course-a", "course-b"},
	}
}

func TestCreateChargeAttemptValidatesBeforeGatewayCalls(t *testing.T) {
	svc, gw, _ := newTestService(t)

	_, err := svc.CreateChargeAttempt(context.Background(), checkoutdomain.ChargeRequest{Amount: 0, Country: "AT"})
	require.Error(t, err)

	var ve *apperror.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.ElementsMatch(t, []string{"amount", "customer", "payment_method"}, ve.Fields)
	assert.Empty(t, gw.Calls)
}

func TestCreateChargeAttemptAppliesVATAndLinksInvoice(t *testing.T) {
	svc, gw, _ := newTestService(t)

	res, err := svc.CreateChargeAttempt(context.Background(), validCharge())
	require.NoError(t, err)

	assert.Equal(t, int64(12000), res.Amount)
	assert.Equal(t, int64(10000), res.NetAmount)
	assert.Equal(t, int64(2000), res.VATAmount)
	assert.Equal(t, "EUR", res.Currency)
	assert.Equal(t, gateway.ChargeRequiresCapture, res.Status)
	require.NotEmpty(t, res.InvoiceID)

	pi := gw.Charges[res.PaymentIntentID]
	assert.Equal(t, res.InvoiceID, pi.Metadata[gateway.MetaInvoiceID])
	assert.Equal(t, "10000", pi.Metadata[gateway.MetaOriginalAmount])
	assert.Equal(t, "AT", pi.Metadata[gateway.MetaCountry])
	assert.Equal(t, "course-a,course-b", pi.Metadata[gateway.MetaCourseIDs])

	inv := gw.Invoices[res.InvoiceID]
	assert.Equal(t, gateway.InvoiceDraft, inv.Status)
	assert.Equal(t, res.PaymentIntentID, inv.Metadata[gateway.MetaPaymentIntent])
	require.Len(t, gw.InvoiceItems[res.InvoiceID], 1)
	assert.Equal(t, int64(12000), gw.InvoiceItems[res.InvoiceID][0].Amount)

	assert.Len(t, gw.IdempotencyKeys, 3)
}

func TestCreateChargeAttemptUnknownCountryUsesFallback(t *testing.T) {
	svc, _, _ := newTestService(t)
	req := validCharge()
	req.Country = "ZZ"

	res, err := svc.CreateChargeAttempt(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int64(12000), res.Amount)
	assert.Equal(t, "EUR", res.Currency)
}

func TestCreateChargeAttemptAbortsOnGatewayFailure(t *testing.T) {
	svc, gw, _ := newTestService(t)
	gw.Fail["CreateInvoice"] = &apperror.GatewayError{Op: "invoice.create", Code: "api_error"}

	_, err := svc.CreateChargeAttempt(context.Background(), validCharge())
	assert.True(t, apperror.IsGateway(err))
	assert.Equal(t, 0, gw.Count("AddInvoiceItem"))
}

func TestCaptureRejectsWrongStatusWithoutSideEffects(t *testing.T) {
	svc, gw, _ := newTestService(t)
	gw.CreateStatus = gateway.ChargeRequiresAction

	res, err := svc.CreateChargeAttempt(context.Background(), validCharge())
	require.NoError(t, err)

	_, err = svc.CaptureChargeAttempt(context.Background(), res.PaymentIntentID)
	assert.ErrorIs(t, err, checkoutdomain.ErrNotCapturable)
	assert.Equal(t, 0, gw.Count("CaptureChargeAttempt"))
	assert.Equal(t, 0, gw.Count("FinalizeInvoice"))
	assert.Equal(t, 0, gw.Count("PayInvoice"))
}

func TestCaptureFinalizesAndPaysInvoiceAfterSuccess(t *testing.T) {
	svc, gw, _ := newTestService(t)

	res, err := svc.CreateChargeAttempt(context.Background(), validCharge())
	require.NoError(t, err)

	captured, err := svc.CaptureChargeAttempt(context.Background(), res.PaymentIntentID)
	require.NoError(t, err)
	assert.Equal(t, gateway.ChargeSucceeded, captured.Status)
	assert.Equal(t, gateway.InvoicePaid, gw.Invoices[res.InvoiceID].Status)

	var captureAt, finalizeAt, payAt int
	for i, c := range gw.Calls {
		switch c {
		case "CaptureChargeAttempt":
			captureAt = i
		case "FinalizeInvoice":
			finalizeAt = i
		case "PayInvoice":
			payAt = i
		}
	}
	assert.Less(t, captureAt, finalizeAt)
	assert.Less(t, finalizeAt, payAt)
}

func TestCaptureLeavesInvoiceWhenCaptureNotSucceeded(t *testing.T) {
	svc, gw, _ := newTestService(t)
	gw.CaptureStatus = gateway.ChargeProcessing

	res, err := svc.CreateChargeAttempt(context.Background(), validCharge())
	require.NoError(t, err)

	_, err = svc.CaptureChargeAttempt(context.Background(), res.PaymentIntentID)
	require.NoError(t, err)
	assert.Equal(t, gateway.InvoiceDraft, gw.Invoices[res.InvoiceID].Status)
	assert.Equal(t, 0, gw.Count("FinalizeInvoice"))
}

func TestCaptureSkipsFinalizeForOpenInvoice(t *testing.T) {
	svc, gw, _ := newTestService(t)

	res, err := svc.CreateChargeAttempt(context.Background(), validCharge())
	require.NoError(t, err)
	gw.Invoices[res.InvoiceID].Status = gateway.InvoiceOpen

	_, err = svc.CaptureChargeAttempt(context.Background(), res.PaymentIntentID)
	require.NoError(t, err)
	assert.Equal(t, 0, gw.Count("FinalizeInvoice"))
	assert.Equal(t, 1, gw.Count("PayInvoice"))
}

func TestRetryChargeAttempt(t *testing.T) {
	svc, gw, _ := newTestService(t)
	gw.CreateStatus = gateway.ChargeRequiresAction

	res, err := svc.CreateChargeAttempt(context.Background(), validCharge())
	require.NoError(t, err)

	retried, err := svc.RetryChargeAttempt(context.Background(), res.PaymentIntentID)
	require.NoError(t, err)
	assert.Equal(t, gateway.ChargeRequiresCapture, retried.Status)

	_, err = svc.RetryChargeAttempt(context.Background(), res.PaymentIntentID)
	assert.ErrorIs(t, err, checkoutdomain.ErrNotRetryable)
}

func TestCreateCheckoutSessionSubscriptionMode(t *testing.T) {
	svc, gw, _ := newTestService(t)
	gw.Prices["price_monthly"] = &gateway.Price{
		ID: "price_monthly", Active: true, Currency: "EUR", UnitAmount: 2900,
		Recurring: true, Interval: "month",
		Metadata: map[string]string{gateway.MetaCourseIDs: "c1,c2"},
	}

	res, err := svc.CreateCheckoutSession(context.Background(), checkoutdomain.CheckoutRequest{
		PriceID:  "price_monthly",
		Customer: checkoutdomain.CustomerData{Email: "Kunde@Example.com", Country: "DE"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.URL)

	params := gw.SessionParams[res.SessionID]
	assert.Equal(t, gateway.ModeSubscription, params.Mode)
	require.NotNil(t, params.TrialEnd)
	assert.Equal(t, now, *params.TrialEnd)
	assert.Equal(t, "https://shop.example.com/success", params.SuccessURL)
	assert.Equal(t, "c1,c2", params.Metadata[gateway.MetaCourseIDs])
	assert.Equal(t, "DE", params.Metadata[gateway.MetaCountry])
	assert.Equal(t, "551", params.Metadata[gateway.MetaVATAmount])
	assert.Equal(t, 1, gw.Count("CreateCustomer"))
	assert.Equal(t, "kunde@example.com", params.Metadata[gateway.MetaCustomerEmail])
}

func TestCreateCheckoutSessionReusesCustomer(t *testing.T) {
	svc, gw, _ := newTestService(t)
	gw.Prices["price_once"] = &gateway.Price{ID: "price_once", Active: true, Currency: "EUR", UnitAmount: 10000}
	gw.Customers["cus_existing"] = &gateway.Customer{ID: "cus_existing", Email: "kunde@example.com"}

	res, err := svc.CreateCheckoutSession(context.Background(), checkoutdomain.CheckoutRequest{
		PriceID:    "price_once",
		SuccessURL: "https://custom/success",
		Customer:   checkoutdomain.CustomerData{Email: "kunde@example.com"},
	})
	require.NoError(t, err)

	params := gw.SessionParams[res.SessionID]
	assert.Equal(t, gateway.ModePayment, params.Mode)
	assert.Nil(t, params.TrialEnd)
	assert.Equal(t, "cus_existing", params.CustomerID)
	assert.Equal(t, "https://custom/success", params.SuccessURL)
	assert.Equal(t, 0, gw.Count("CreateCustomer"))
}

func TestCreateCheckoutSessionAbortsWhenCustomerCreationFails(t *testing.T) {
	svc, gw, _ := newTestService(t)
	gw.Prices["price_once"] = &gateway.Price{ID: "price_once", Active: true, Currency: "EUR", UnitAmount: 10000}
	gw.Fail["CreateCustomer"] = errors.New("boom")

	_, err := svc.CreateCheckoutSession(context.Background(), checkoutdomain.CheckoutRequest{
		PriceID:  "price_once",
		Customer: checkoutdomain.CustomerData{Email: "kunde@example.com"},
	})
	require.Error(t, err)
	assert.Equal(t, 0, gw.Count("CreateCheckoutSession"))
}

func TestCreateCheckoutSessionRejectsInactivePrice(t *testing.T) {
	svc, gw, _ := newTestService(t)
	gw.Prices["price_old"] = &gateway.Price{ID: "price_old", Active: false}

	_, err := svc.CreateCheckoutSession(context.Background(), checkoutdomain.CheckoutRequest{
		PriceID:  "price_old",
		Customer: checkoutdomain.CustomerData{Email: "kunde@example.com"},
	})
	assert.ErrorIs(t, err, checkoutdomain.ErrPriceInactive)
}

func TestSubscriptionLifecycle(t *testing.T) {
	svc, gw, subs := newTestService(t)
	gw.Prices["price_monthly"] = &gateway.Price{ID: "price_monthly", Active: true, Recurring: true, Currency: "EUR", UnitAmount: 2900}

	e, err := svc.CreateSubscription(context.Background(), checkoutdomain.SubscriptionRequest{
		CustomerID: "cus_1", PriceID: "price_monthly", PaymentMethodID: "pm_1",
	})
	require.NoError(t, err)
	assert.Equal(t, "cus_1", gw.Attached["pm_1"])

	row, err := subs.Get(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.StatusActive, row.Status)

	require.NoError(t, gw.AttachPaymentMethod(context.Background(), "cus_1", "pm_2"))
	_, err = svc.UpdatePaymentMethod(context.Background(), e.ID, "pm_3")
	require.NoError(t, err)
	assert.Equal(t, "cus_1", gw.Attached["pm_3"])

	canceled, err := svc.CancelSubscription(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, "canceled", canceled.Status)

	row, err = subs.Get(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.StatusCanceled, row.Status)
	require.NotNil(t, row.CanceledAt)
}

func TestCreatePricesCollectsFailures(t *testing.T) {
	svc, gw, _ := newTestService(t)
	gw.Products["prod_1"] = &gateway.Product{ID: "prod_1", Name: "Grundkurs"}

	res, err := svc.CreatePrices(context.Background(), "prod_1", []checkoutdomain.PricePoint{
		{UnitAmount: 10000, Currency: "EUR"},
		{UnitAmount: 2900, Currency: "EUR", Interval: "month"},
	})
	require.NoError(t, err)
	assert.Len(t, res.Prices, 2)
	assert.Empty(t, res.Failed)

	_, err = svc.CreatePrices(context.Background(), "prod_1", []checkoutdomain.PricePoint{{UnitAmount: 0, Currency: "EUR"}})
	assert.True(t, apperror.IsValidation(err))
}

func TestDeactivateAndActivatePrices(t *testing.T) {
	svc, gw, _ := newTestService(t)
	for _, id := range []string{"p1", "p2", "p3"} {
		gw.Prices[id] = &gateway.Price{ID: id, ProductID: "prod_1", Active: true}
	}
	gw.Prices["other"] = &gateway.Price{ID: "other", ProductID: "prod_2", Active: true}

	res, err := svc.DeactivatePrices(context.Background(), "prod_1")
	require.NoError(t, err)
	assert.Len(t, res.Prices, 3)
	for _, id := range []string{"p1", "p2", "p3"} {
		assert.False(t, gw.Prices[id].Active)
	}
	assert.True(t, gw.Prices["other"].Active)

	res, err = svc.ActivatePrices(context.Background(), "prod_1")
	require.NoError(t, err)
	assert.Len(t, res.Prices, 3)
	assert.True(t, gw.Prices["p2"].Active)
}
