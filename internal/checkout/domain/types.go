package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/coursepay/internal/gateway"
)

var (
	ErrNotCapturable = errors.New("charge_not_capturable")
	ErrNotRetryable  = errors.New("charge_not_retryable")
	ErrPriceInactive = errors.New("price_inactive")
)

// ChargeRequest describes a direct card charge. Amount is the net amount
// in minor units; VAT is added on top.
type ChargeRequest struct {
	Amount          int64
	Country         string
	CustomerID      string
	PaymentMethodID string
	Description     string
	PriceID         string
	CourseIDs       []string
}

type ChargeResult struct {
	PaymentIntentID string               `json:"paymentIntentId"`
	ClientSecret    string               `json:"clientSecret,omitempty"`
	InvoiceID       string               `json:"invoiceId,omitempty"`
	Status          gateway.ChargeStatus `json:"status"`
	Amount          int64                `json:"amount"`
	Currency        string               `json:"currency"`
	NetAmount       int64                `json:"netAmount,omitempty"`
	VATAmount       int64                `json:"vatAmount,omitempty"`
	VATRate         string               `json:"vatRate,omitempty"`
}

type CustomerData struct {
	ID      string
	Email   string
	Name    string
	Phone   string
	Country string
	Address *gateway.Address
}

type CheckoutRequest struct {
	PriceID      string
	Quantity     int64
	SuccessURL   string
	CancelURL    string
	Customer     CustomerData
	PartnerOptIn bool
}

type CheckoutResult struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

type SubscriptionRequest struct {
	CustomerID      string
	PriceID         string
	PaymentMethodID string
}

type PricePoint struct {
	UnitAmount int64  `json:"unitAmount"`
	Currency   string `json:"currency"`
	Interval   string `json:"interval,omitempty"`
	Nickname   string `json:"nickname,omitempty"`
}

type PriceFailure struct {
	Ref   string `json:"ref"`
	Error string `json:"error"`
}

// PriceBatchResult reports every branch of a concurrent price operation.
// One failed branch does not stop the others.
type PriceBatchResult struct {
	Prices []gateway.Price `json:"prices"`
	Failed []PriceFailure  `json:"failed,omitempty"`
}

type Service interface {
	CreateChargeAttempt(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
	CaptureChargeAttempt(ctx context.Context, id string) (*ChargeResult, error)
	RetryChargeAttempt(ctx context.Context, id string) (*ChargeResult, error)
	GetChargeAttempt(ctx context.Context, id string) (*ChargeResult, error)

	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error)

	CreateSubscription(ctx context.Context, req SubscriptionRequest) (*gateway.Enrollment, error)
	GetSubscription(ctx context.Context, id string) (*gateway.Enrollment, error)
	CancelSubscription(ctx context.Context, id string) (*gateway.Enrollment, error)
	UpdatePaymentMethod(ctx context.Context, subscriptionID, paymentMethodID string) (*gateway.Enrollment, error)

	CreatePrices(ctx context.Context, productID string, points []PricePoint) (*PriceBatchResult, error)
	DeactivatePrices(ctx context.Context, productID string) (*PriceBatchResult, error)
	ActivatePrices(ctx context.Context, productID string) (*PriceBatchResult, error)
}
