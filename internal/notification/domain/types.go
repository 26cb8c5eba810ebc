package domain

import (
	"context"
	"time"

	purchasedomain "github.com/smallbiznis/coursepay/internal/purchase/domain"
)

const (
	TemplatePurchaseConfirmation = "purchase_confirmation"
	TemplatePaymentFailed        = "payment_failed"
	TemplateRenewalReminder      = "renewal_reminder"
)

type LineItem struct {
	Description string
	Quantity    int64
	Amount      int64
}

// Purchase is everything needed to send the confirmation bundle.
type Purchase struct {
	SourceID        string
	PaymentType     purchasedomain.PaymentType
	CustomerEmail   string
	CustomerName    string
	ProductKey      string
	Items           []LineItem
	AmountPaid      int64
	Currency        string
	Tax             *purchasedomain.TaxDetails
	Discount        *purchasedomain.DiscountDetails
	PaymentIntentID string
	InvoiceID       string
	SubscriptionID  string
	PartnerOptIn    bool
	PaidAt          time.Time
}

type PaymentFailed struct {
	SubscriptionID string
	CustomerEmail  string
	CustomerName   string
	GracePeriodEnd time.Time
}

type RenewalReminder struct {
	SubscriptionID string
	CustomerEmail  string
	CustomerName   string
	DaysRemaining  int
	RenewalDate    time.Time
}

// Assembler builds and sends customer emails. Failures are returned as
// *apperror.TransportError and are never retried here.
type Assembler interface {
	SendPurchaseConfirmation(ctx context.Context, p Purchase) error
	SendPaymentFailed(ctx context.Context, n PaymentFailed) error
	SendRenewalReminder(ctx context.Context, n RenewalReminder) error
}
