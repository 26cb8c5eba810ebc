package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smallbiznis/coursepay/internal/apperror"
	checkoutdomain "github.com/smallbiznis/coursepay/internal/checkout/domain"
	"github.com/smallbiznis/coursepay/internal/gateway"
	"github.com/smallbiznis/coursepay/internal/observability"
	productkeydomain "github.com/smallbiznis/coursepay/internal/productkey/domain"
	"github.com/smallbiznis/coursepay/internal/providers/email"
	webhookdomain "github.com/smallbiznis/coursepay/internal/webhook/domain"
)

type fakeWebhook struct {
	payload   []byte
	signature string
	err       error
}

func (f *fakeWebhook) Ingest(_ context.Context, payload []byte, signature string) (*webhookdomain.Ack, error) {
	f.payload, f.signature = payload, signature
	if f.err != nil {
		return nil, f.err
	}
	return &webhookdomain.Ack{Received: true}, nil
}

// fakeCheckout overrides the methods under test; the rest panic.
type fakeCheckout struct {
	checkoutdomain.Service
	charge   checkoutdomain.ChargeRequest
	err      error
	captured string
}

func (f *fakeCheckout) CreateChargeAttempt(_ context.Context, req checkoutdomain.ChargeRequest) (*checkoutdomain.ChargeResult, error) {
	f.charge = req
	if f.err != nil {
		return nil, f.err
	}
	return &checkoutdomain.ChargeResult{PaymentIntentID: "pi_1", Status: gateway.ChargeRequiresCapture, Amount: 12000, Currency: "eur"}, nil
}

func (f *fakeCheckout) CaptureChargeAttempt(_ context.Context, id string) (*checkoutdomain.ChargeResult, error) {
	f.captured = id
	if f.err != nil {
		return nil, f.err
	}
	return &checkoutdomain.ChargeResult{PaymentIntentID: id, Status: gateway.ChargeSucceeded}, nil
}

type fakeKeys struct {
	productkeydomain.Service
	err error
}

func (f *fakeKeys) Redeem(context.Context, string, productkeydomain.Consent) (*productkeydomain.ProductKey, error) {
	return nil, f.err
}

type fakeMailer struct {
	err error
}

func (f *fakeMailer) Send(context.Context, email.Message) error { return nil }
func (f *fakeMailer) Verify(context.Context) error              { return f.err }

type testServer struct {
	engine   *gin.Engine
	webhook  *fakeWebhook
	checkout *fakeCheckout
	keys     *fakeKeys
	mailer   *fakeMailer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ts := &testServer{
		webhook:  &fakeWebhook{},
		checkout: &fakeCheckout{},
		keys:     &fakeKeys{},
		mailer:   &fakeMailer{},
	}
	ts.engine = NewEngine(observability.Config{Environment: "test"}, nil)
	NewServer(ServerParams{
		Gin:         ts.engine,
		Log:         zap.NewNop(),
		WebhookSvc:  ts.webhook,
		CheckoutSvc: ts.checkout,
		KeySvc:      ts.keys,
		Mailer:      ts.mailer,
	})
	return ts
}

func (ts *testServer) do(method, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestWebhookAcknowledges(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/webhook", []byte(`{"id":"evt_1"}`), map[string]string{"Stripe-Signature": "t=1,v1=abc"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"received":true}`, rec.Body.String())
	assert.Equal(t, "t=1,v1=abc", ts.webhook.signature)
	assert.Equal(t, `{"id":"evt_1"}`, string(ts.webhook.payload))
}

func TestWebhookSignatureFailure(t *testing.T) {
	ts := newTestServer(t)
	ts.webhook.err = &apperror.SignatureError{Err: apperror.ErrMissingSignature}

	rec := ts.do(http.MethodPost, "/webhook", []byte(`{}`), nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "signature_error", decodeError(t, rec).Type)
}

func TestWebhookAcceptsLargeEvents(t *testing.T) {
	ts := newTestServer(t)
	body := []byte(`{"id":"evt_big","pad":"` + strings.Repeat("x", 512<<10) + `"}`)

	rec := ts.do(http.MethodPost, "/webhook", body, map[string]string{"Stripe-Signature": "t=1,v1=abc"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, ts.webhook.payload, len(body))
}

func TestWebhookRejectsOversizedBody(t *testing.T) {
	ts := newTestServer(t)
	body := []byte(`{"pad":"` + strings.Repeat("x", maxWebhookBody) + `"}`)

	rec := ts.do(http.MethodPost, "/webhook", body, map[string]string{"Stripe-Signature": "t=1,v1=abc"})
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "payload_too_large", decodeError(t, rec).Type)
	assert.Nil(t, ts.webhook.payload)
}

func TestCreatePayment(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/payments", []byte(`{"amount":12000,"country":" de ","customerId":"cus_1","paymentMethodId":"pm_1","courseIds":["c1"]}`), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(12000), ts.checkout.charge.Amount)
	assert.Equal(t, "de", ts.checkout.charge.Country)
	assert.Equal(t, []string{"c1"}, ts.checkout.charge.CourseIDs)

	var resp struct {
		Data checkoutdomain.ChargeResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "pi_1", resp.Data.PaymentIntentID)
}

func TestCreatePaymentAcceptsGatewayFieldNames(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/payments", []byte(`{"amount":10000,"country":"AT","customer":"cus_1","payment_method":"pm_1"}`), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(10000), ts.checkout.charge.Amount)
	assert.Equal(t, "AT", ts.checkout.charge.Country)
	assert.Equal(t, "cus_1", ts.checkout.charge.CustomerID)
	assert.Equal(t, "pm_1", ts.checkout.charge.PaymentMethodID)

	rec = ts.do(http.MethodPost, "/payments", []byte(`{"amount":10000,"customer":" cus_2 ","paymentMethodId":"pm_2"}`), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cus_2", ts.checkout.charge.CustomerID)
	assert.Equal(t, "pm_2", ts.checkout.charge.PaymentMethodID)
}

func TestCreatePaymentErrors(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/payments", []byte(`{not json`), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	ts.checkout.err = apperror.NewValidationError("missing charge fields", "amount", "payment_method")
	rec = ts.do(http.MethodPost, "/payments", []byte(`{}`), nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	payload := decodeError(t, rec)
	assert.Equal(t, "validation_error", payload.Type)
	require.Len(t, payload.Errors, 2)
	assert.Equal(t, "amount", payload.Errors[0].Field)

	ts.checkout.err = &apperror.GatewayError{Op: "payment_intent.create", Code: "card_declined", StatusCode: http.StatusPaymentRequired}
	rec = ts.do(http.MethodPost, "/payments", []byte(`{}`), nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	payload = decodeError(t, rec)
	assert.Equal(t, "payment_declined", payload.Type)
	assert.Equal(t, "card_declined", payload.Code)
	assert.Equal(t, "Die Zahlung wurde abgelehnt", payload.Message)

	ts.checkout.err = &apperror.GatewayError{Op: "payment_intent.create", StatusCode: http.StatusServiceUnavailable}
	rec = ts.do(http.MethodPost, "/payments", []byte(`{}`), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Der Zahlungsanbieter ist derzeit nicht erreichbar", decodeError(t, rec).Message)
}

func TestCaptureNotCapturable(t *testing.T) {
	ts := newTestServer(t)
	ts.checkout.err = checkoutdomain.ErrNotCapturable

	rec := ts.do(http.MethodPost, "/payments/pi_9/capture", nil, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "pi_9", ts.checkout.captured)
	assert.Equal(t, "invalid_state", decodeError(t, rec).Type)
}

func TestRedeemErrors(t *testing.T) {
	ts := newTestServer(t)

	ts.keys.err = productkeydomain.ErrAlreadyRedeemed
	rec := ts.do(http.MethodPost, "/product-keys/HN-1-ABCDEF/redeem", []byte(`{"user_id":"u1","accepted":true}`), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	ts.keys.err = productkeydomain.ErrNotFound
	rec = ts.do(http.MethodPost, "/product-keys/HN-1-ABCDEF/redeem", []byte(`{"user_id":"u1","accepted":true}`), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	ts.keys.err = productkeydomain.ErrConsentRequired
	rec = ts.do(http.MethodPost, "/product-keys/HN-1-ABCDEF/redeem", []byte(`{"user_id":"u1"}`), nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Bitte stimmen Sie den Nutzungsbedingungen zu", decodeError(t, rec).Message)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	ts.mailer.err = errors.New("dial tcp: refused")
	rec = ts.do(http.MethodGet, "/health?check=email", nil, nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"degraded","email":"unavailable"}`, rec.Body.String())
}
