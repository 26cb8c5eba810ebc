// Package gateway defines the payment gateway port used by checkout,
// entitlement, notification and grace-period handling.
package gateway

import (
	"context"
	"time"
)

type ChargeStatus string

const (
	ChargeRequiresPaymentMethod ChargeStatus = "requires_payment_method"
	ChargeRequiresConfirmation  ChargeStatus = "requires_confirmation"
	ChargeRequiresAction        ChargeStatus = "requires_action"
	ChargeProcessing            ChargeStatus = "processing"
	ChargeRequiresCapture       ChargeStatus = "requires_capture"
	ChargeSucceeded             ChargeStatus = "succeeded"
	ChargeFailed                ChargeStatus = "failed"
	ChargeCanceled              ChargeStatus = "canceled"
)

type InvoiceStatus string

const (
	InvoiceDraft         InvoiceStatus = "draft"
	InvoiceOpen          InvoiceStatus = "open"
	InvoicePaid          InvoiceStatus = "paid"
	InvoiceVoid          InvoiceStatus = "void"
	InvoiceUncollectible InvoiceStatus = "uncollectible"
)

type SessionMode string

const (
	ModePayment      SessionMode = "payment"
	ModeSubscription SessionMode = "subscription"
)

// Metadata keys written on gateway objects.
const (
	MetaInvoiceID      = "invoice_id"
	MetaPaymentIntent  = "payment_intent_id"
	MetaVATRate        = "vat_rate"
	MetaVATAmount      = "vat_amount"
	MetaOriginalAmount = "original_amount"
	MetaCountry        = "country"
	MetaPriceID        = "price_id"
	MetaCourseIDs      = "courseIds"
	MetaCustomerEmail  = "customer_email"
	MetaCheckoutID     = "checkout_session_id"
	MetaPartnerOptIn   = "partner_program"
	MetaGracePeriodEnd = "gracePeriodEnd"
	MetaPaymentFailed  = "paymentFailedAt"
)

type Address struct {
	Line1      string `json:"line1,omitempty"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	State      string `json:"state,omitempty"`
	Country    string `json:"country,omitempty"`
}

type ChargeAttempt struct {
	ID           string
	Amount       int64
	Currency     string
	CustomerID   string
	Status       ChargeStatus
	ClientSecret string
	ReceiptEmail string
	InvoiceID    string
	Metadata     map[string]string
}

type Invoice struct {
	ID              string
	CustomerID      string
	CustomerEmail   string
	Status          InvoiceStatus
	AmountPaid      int64
	Total           int64
	Currency        string
	PDFURL          string
	HostedURL       string
	PaymentIntentID string
	SubscriptionID  string
	Metadata        map[string]string
}

type Customer struct {
	ID       string
	Email    string
	Name     string
	Metadata map[string]string
}

type Price struct {
	ID         string
	ProductID  string
	Active     bool
	Currency   string
	UnitAmount int64
	Recurring  bool
	Interval   string
	Nickname   string
	Metadata   map[string]string
}

type Product struct {
	ID       string
	Name     string
	Metadata map[string]string
}

type LineItem struct {
	PriceID     string
	ProductID   string
	Description string
	Quantity    int64
	AmountTotal int64
}

type CheckoutSession struct {
	ID              string
	URL             string
	Mode            SessionMode
	CustomerID      string
	PaymentIntentID string
	SubscriptionID  string
	Metadata        map[string]string
}

type Enrollment struct {
	ID               string
	CustomerID       string
	Status           string
	CurrentPeriodEnd time.Time
	LatestInvoiceID  string
	Metadata         map[string]string
}

type CreateChargeParams struct {
	Amount          int64
	Currency        string
	CustomerID      string
	PaymentMethodID string
	Description     string
	IdempotencyKey  string
	Metadata        map[string]string
}

type CreateInvoiceParams struct {
	CustomerID     string
	Currency       string
	Description    string
	IdempotencyKey string
	Metadata       map[string]string
}

type InvoiceItemParams struct {
	CustomerID     string
	InvoiceID      string
	Currency       string
	Description    string
	Amount         int64
	IdempotencyKey string
	Metadata       map[string]string
}

type CreateCustomerParams struct {
	Email          string
	Name           string
	Phone          string
	Address        *Address
	IdempotencyKey string
	Metadata       map[string]string
}

type CreatePriceParams struct {
	ProductID      string
	Currency       string
	UnitAmount     int64
	Interval       string
	Nickname       string
	IdempotencyKey string
	Metadata       map[string]string
}

type CreateCheckoutParams struct {
	Mode                SessionMode
	CustomerID          string
	PriceID             string
	Quantity            int64
	SuccessURL          string
	CancelURL           string
	TrialEnd            *time.Time
	AllowPromotionCodes bool
	IdempotencyKey      string
	Metadata            map[string]string
}

type CreateSubscriptionParams struct {
	CustomerID      string
	PriceID         string
	PaymentMethodID string
	TrialEndNow     bool
	IdempotencyKey  string
	Metadata        map[string]string
}

// Gateway is the payment provider port.
type Gateway interface {
	CreateChargeAttempt(ctx context.Context, params CreateChargeParams) (*ChargeAttempt, error)
	GetChargeAttempt(ctx context.Context, id string) (*ChargeAttempt, error)
	ConfirmChargeAttempt(ctx context.Context, id string) (*ChargeAttempt, error)
	CaptureChargeAttempt(ctx context.Context, id string) (*ChargeAttempt, error)
	CancelChargeAttempt(ctx context.Context, id string) (*ChargeAttempt, error)
	UpdateChargeMetadata(ctx context.Context, id string, metadata map[string]string) error

	CreateInvoice(ctx context.Context, params CreateInvoiceParams) (*Invoice, error)
	AddInvoiceItem(ctx context.Context, params InvoiceItemParams) error
	GetInvoice(ctx context.Context, id string) (*Invoice, error)
	FinalizeInvoice(ctx context.Context, id string) (*Invoice, error)
	// PayInvoice marks the invoice paid out of band; funds were already
	// captured on the charge attempt.
	PayInvoice(ctx context.Context, id string) (*Invoice, error)
	UpdateInvoiceMetadata(ctx context.Context, id string, metadata map[string]string) error

	CreateCustomer(ctx context.Context, params CreateCustomerParams) (*Customer, error)
	GetCustomer(ctx context.Context, id string) (*Customer, error)
	// FindCustomerByEmail returns nil when no customer exists.
	FindCustomerByEmail(ctx context.Context, email string) (*Customer, error)
	AttachPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error
	SetDefaultPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error

	GetPrice(ctx context.Context, id string) (*Price, error)
	CreatePrice(ctx context.Context, params CreatePriceParams) (*Price, error)
	ListPrices(ctx context.Context, productID string, active *bool) ([]Price, error)
	SetPriceActive(ctx context.Context, id string, active bool) (*Price, error)
	GetProduct(ctx context.Context, id string) (*Product, error)

	CreateCheckoutSession(ctx context.Context, params CreateCheckoutParams) (*CheckoutSession, error)
	ListSessionLineItems(ctx context.Context, sessionID string) ([]LineItem, error)

	CreateSubscription(ctx context.Context, params CreateSubscriptionParams) (*Enrollment, error)
	GetSubscription(ctx context.Context, id string) (*Enrollment, error)
	UpdateSubscriptionMetadata(ctx context.Context, id string, metadata map[string]string) (*Enrollment, error)
	SetSubscriptionPaymentMethod(ctx context.Context, id, paymentMethodID string) (*Enrollment, error)
	CancelSubscription(ctx context.Context, id string) (*Enrollment, error)
}
