package stripe

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripego "github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"

	"github.com/smallbiznis/coursepay/internal/apperror"
	"github.com/smallbiznis/coursepay/internal/config"
	"github.com/smallbiznis/coursepay/internal/gateway"
)

func newTestAdapter(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	backends := stripego.NewBackendsWithConfig(&stripego.BackendConfig{
		URL:               stripego.String(srv.URL),
		HTTPClient:        srv.Client(),
		MaxNetworkRetries: stripego.Int64(0),
		LeveledLogger:     &stripego.LeveledLogger{Level: stripego.LevelNull},
	})
	return New(Params{API: client.New("sk_test_123", backends), Log: zap.NewNop()}).(*Adapter)
}

func TestCreateChargeAttemptSendsManualCapture(t *testing.T) {
	var form url.Values
	var idem string
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		form, _ = url.ParseQuery(string(body))
		idem = r.Header.Get("Idempotency-Key")
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"pi_1","object":"payment_intent","amount":12000,"currency":"eur","status":"requires_capture","customer":"cus_1","metadata":{"invoice_id":"in_1","country":"AT"}}`)
	})

	attempt, err := adapter.CreateChargeAttempt(context.Background(), gateway.CreateChargeParams{
		Amount:          12000,
		Currency:        "EUR",
		CustomerID:      "cus_1",
		PaymentMethodID: "pm_card",
		IdempotencyKey:  "charge-abc",
		Metadata:        map[string]string{gateway.MetaCountry: "AT"},
	})
	require.NoError(t, err)

	assert.Equal(t, "pi_1", attempt.ID)
	assert.Equal(t, gateway.ChargeRequiresCapture, attempt.Status)
	assert.Equal(t, "EUR", attempt.Currency)
	assert.Equal(t, "cus_1", attempt.CustomerID)
	assert.Equal(t, "in_1", attempt.InvoiceID)

	assert.Equal(t, "eur", form.Get("currency"))
	assert.Equal(t, "manual", form.Get("capture_method"))
	assert.Equal(t, "manual", form.Get("confirmation_method"))
	assert.Equal(t, "true", form.Get("confirm"))
	assert.Equal(t, "AT", form.Get("metadata[country]"))
	assert.Equal(t, "charge-abc", idem)
}

func TestGatewayErrorsAreTranslated(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = io.WriteString(w, `{"error":{"type":"card_error","code":"card_declined","message":"Your card was declined."}}`)
	})

	_, err := adapter.GetChargeAttempt(context.Background(), "pi_declined")
	require.Error(t, err)

	var gwErr *apperror.GatewayError
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, "payment_intent.get", gwErr.Op)
	assert.Equal(t, "card_declined", gwErr.Code)
	assert.Equal(t, "Your card was declined.", gwErr.Message)
	assert.Equal(t, http.StatusPaymentRequired, gwErr.StatusCode)
	assert.True(t, apperror.IsGateway(err))
}

func TestFindCustomerByEmailReturnsNilWhenMissing(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "a@example.com", r.URL.Query().Get("email"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"object":"list","data":[],"has_more":false,"url":"/v1/customers"}`)
	})

	c, err := adapter.FindCustomerByEmail(context.Background(), " a@example.com ")
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestNewClientsRequiresSecretKey(t *testing.T) {
	_, err := NewClients(config.Config{})
	assert.ErrorIs(t, err, ErrMissingSecretKey)

	clients, err := NewClients(config.Config{Stripe: config.StripeConfig{SecretKey: "sk_test_1"}})
	require.NoError(t, err)
	assert.NotNil(t, clients.API)
	assert.NotNil(t, clients.Reconcile)
	assert.NotSame(t, clients.API, clients.Reconcile)
}

func TestOnlyClientFacingBackendRetries(t *testing.T) {
	cfg := config.Config{Stripe: config.StripeConfig{
		SecretKey:         "sk_test_1",
		APITimeout:        5 * time.Second,
		MaxNetworkRetries: 3,
	}}

	facing := clientBackendConfig(cfg)
	require.NotNil(t, facing.MaxNetworkRetries)
	assert.Equal(t, int64(3), *facing.MaxNetworkRetries)
	assert.Equal(t, 5*time.Second, facing.HTTPClient.Timeout)

	reconcile := reconcileBackendConfig(cfg)
	require.NotNil(t, reconcile.MaxNetworkRetries)
	assert.Equal(t, int64(0), *reconcile.MaxNetworkRetries)
	assert.Equal(t, 5*time.Second, reconcile.HTTPClient.Timeout)

	cfg.Stripe.MaxNetworkRetries = -1
	cfg.Stripe.APITimeout = 0
	facing = clientBackendConfig(cfg)
	assert.Equal(t, int64(0), *facing.MaxNetworkRetries)
	assert.Equal(t, 20*time.Second, facing.HTTPClient.Timeout)
}

func TestNewReconcileUsesNamedClient(t *testing.T) {
	clients, err := NewClients(config.Config{Stripe: config.StripeConfig{SecretKey: "sk_test_1", MaxNetworkRetries: 2}})
	require.NoError(t, err)

	facing := New(Params{API: clients.API, Log: zap.NewNop()}).(*Adapter)
	reconcile := NewReconcile(ReconcileParams{API: clients.Reconcile, Log: zap.NewNop()}).Gateway.(*Adapter)
	assert.Same(t, clients.API, facing.api)
	assert.Same(t, clients.Reconcile, reconcile.api)
}

type wiredGateways struct {
	fx.In

	Facing    gateway.Gateway
	Reconcile gateway.Gateway `name:"reconcile"`
}

func TestModuleProvidesBothGateways(t *testing.T) {
	var got wiredGateways
	app := fxtest.New(t,
		fx.Supply(config.Config{Stripe: config.StripeConfig{SecretKey: "sk_test_1", MaxNetworkRetries: 2}}),
		fx.Supply(zap.NewNop()),
		Module,
		fx.Invoke(func(w wiredGateways) { got = w }),
	)
	app.RequireStart()
	defer app.RequireStop()

	require.NotNil(t, got.Facing)
	require.NotNil(t, got.Reconcile)
	assert.NotSame(t, got.Facing.(*Adapter).api, got.Reconcile.(*Adapter).api)
}

func TestToEnrollmentMapsPeriodEnd(t *testing.T) {
	e := toEnrollment(&stripego.Subscription{
		ID:               "sub_1",
		Status:           stripego.SubscriptionStatusPastDue,
		Customer:         &stripego.Customer{ID: "cus_1"},
		CurrentPeriodEnd: 1700000000,
		LatestInvoice:    &stripego.Invoice{ID: "in_9"},
	})
	assert.Equal(t, "past_due", e.Status)
	assert.Equal(t, int64(1700000000), e.CurrentPeriodEnd.Unix())
	assert.Equal(t, "in_9", e.LatestInvoiceID)
	assert.Equal(t, "cus_1", e.CustomerID)
}
