package domain

import (
	"context"

	"github.com/smallbiznis/coursepay/internal/gateway"
	purchasedomain "github.com/smallbiznis/coursepay/internal/purchase/domain"
)

// Provisioning steps, used as error types and metric labels.
const (
	StepResolveCourses = "resolve_courses"
	StepDiscount       = "discount_summary"
	StepPurchaseRecord = "purchase_record"
	StepIssueKey       = "issue_product_key"
	StepNotify         = "send_confirmation"
)

type Discount struct {
	PromotionCode string
	CouponID      string
	PercentOff    float64
	AmountOff     int64
}

type CustomerDetails struct {
	Email   string
	Name    string
	Phone   string
	Address *gateway.Address
}

// CheckoutSession is the completed session as delivered by the gateway.
type CheckoutSession struct {
	ID              string
	Mode            gateway.SessionMode
	PaymentStatus   string
	CustomerID      string
	Customer        CustomerDetails
	PaymentIntentID string
	SubscriptionID  string
	InvoiceID       string
	AmountTotal     int64
	AmountSubtotal  int64
	AmountDiscount  int64
	Currency        string
	Discounts       []Discount
	Metadata        map[string]string
}

// SourceID keys a payment-mode session by its payment intent so the
// session and the intent events converge on one product key.
func (s CheckoutSession) SourceID() string {
	if s.PaymentIntentID != "" {
		return s.PaymentIntentID
	}
	return s.ID
}

// PaymentIntent is a succeeded charge as delivered by the gateway.
// GatewayInvoiceID is set by the gateway for subscription invoices.
type PaymentIntent struct {
	ID               string
	CustomerID       string
	ReceiptEmail     string
	Amount           int64
	AmountReceived   int64
	Currency         string
	GatewayInvoiceID string
	Metadata         map[string]string
}

// Result describes what a provisioning run achieved. Failed lists the
// steps that were recorded as reconciliation errors.
type Result struct {
	SourceID   string
	ProductKey string
	Created    bool
	Skipped    bool
	CourseIDs  []string
	Failed     []string
}

// PurchaseData is the input of an explicit confirmation request.
type PurchaseData struct {
	SourceID       string
	CustomerEmail  string
	CustomerName   string
	CourseIDs      []string
	AmountPaid     int64
	Currency       string
	PaymentType    purchasedomain.PaymentType
	SubscriptionID string
	InvoiceID      string
	PartnerOptIn   bool
}

type ConfirmationResult struct {
	Success    bool   `json:"success"`
	ProductKey string `json:"productKey,omitempty"`
}

type Provisioner interface {
	ProvisionFromCheckoutSession(ctx context.Context, session CheckoutSession) (*Result, error)
	ProvisionFromPaymentIntent(ctx context.Context, pi PaymentIntent) (*Result, error)
	IssuePurchaseConfirmation(ctx context.Context, data PurchaseData) (*ConfirmationResult, error)
}
