package service

import (
	"bytes"
	"encoding/json"
	"time"

	entitlementdomain "github.com/smallbiznis/coursepay/internal/entitlement/domain"
	"github.com/smallbiznis/coursepay/internal/gateway"
)

// objectID decodes a reference that is either an id string, null or an
// expanded object carrying an id.
type objectID string

func (o *objectID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*o = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*o = objectID(s)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*o = objectID(obj.ID)
	return nil
}

type unixTime int64

func (u unixTime) Time() time.Time {
	if u <= 0 {
		return time.Time{}
	}
	return time.Unix(int64(u), 0).UTC()
}

func (u unixTime) Ptr() *time.Time {
	if u <= 0 {
		return nil
	}
	t := u.Time()
	return &t
}

type addressPayload struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	State      string `json:"state"`
	Country    string `json:"country"`
}

func (a *addressPayload) toGateway() *gateway.Address {
	if a == nil {
		return nil
	}
	return &gateway.Address{
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		PostalCode: a.PostalCode,
		State:      a.State,
		Country:    a.Country,
	}
}

type paymentIntentPayload struct {
	ID               string            `json:"id"`
	Status           string            `json:"status"`
	Amount           int64             `json:"amount"`
	AmountReceived   int64             `json:"amount_received"`
	Currency         string            `json:"currency"`
	Customer         objectID          `json:"customer"`
	ReceiptEmail     string            `json:"receipt_email"`
	Invoice          objectID          `json:"invoice"`
	Metadata         map[string]string `json:"metadata"`
	LastPaymentError *struct {
		Code        string `json:"code"`
		DeclineCode string `json:"decline_code"`
		Message     string `json:"message"`
	} `json:"last_payment_error"`
}

func (p paymentIntentPayload) toDomain() entitlementdomain.PaymentIntent {
	return entitlementdomain.PaymentIntent{
		ID:               p.ID,
		CustomerID:       string(p.Customer),
		ReceiptEmail:     p.ReceiptEmail,
		Amount:           p.Amount,
		AmountReceived:   p.AmountReceived,
		Currency:         p.Currency,
		GatewayInvoiceID: string(p.Invoice),
		Metadata:         p.Metadata,
	}
}

type discountPayload struct {
	PromotionCode objectID `json:"promotion_code"`
	Coupon        *struct {
		ID         string  `json:"id"`
		PercentOff float64 `json:"percent_off"`
		AmountOff  int64   `json:"amount_off"`
	} `json:"coupon"`
}

type checkoutSessionPayload struct {
	ID              string   `json:"id"`
	Mode            string   `json:"mode"`
	PaymentStatus   string   `json:"payment_status"`
	Customer        objectID `json:"customer"`
	CustomerDetails *struct {
		Email   string          `json:"email"`
		Name    string          `json:"name"`
		Phone   string          `json:"phone"`
		Address *addressPayload `json:"address"`
	} `json:"customer_details"`
	CustomerEmail  string   `json:"customer_email"`
	PaymentIntent  objectID `json:"payment_intent"`
	Subscription   objectID `json:"subscription"`
	Invoice        objectID `json:"invoice"`
	AmountTotal    int64    `json:"amount_total"`
	AmountSubtotal int64    `json:"amount_subtotal"`
	Currency       string   `json:"currency"`
	TotalDetails   *struct {
		AmountDiscount int64 `json:"amount_discount"`
	} `json:"total_details"`
	Discounts []discountPayload `json:"discounts"`
	Metadata  map[string]string `json:"metadata"`
}

func (p checkoutSessionPayload) toDomain() entitlementdomain.CheckoutSession {
	out := entitlementdomain.CheckoutSession{
		ID:              p.ID,
		Mode:            gateway.SessionMode(p.Mode),
		PaymentStatus:   p.PaymentStatus,
		CustomerID:      string(p.Customer),
		Customer:        entitlementdomain.CustomerDetails{Email: p.CustomerEmail},
		PaymentIntentID: string(p.PaymentIntent),
		SubscriptionID:  string(p.Subscription),
		InvoiceID:       string(p.Invoice),
		AmountTotal:     p.AmountTotal,
		AmountSubtotal:  p.AmountSubtotal,
		Currency:        p.Currency,
		Metadata:        p.Metadata,
	}
	if out.Metadata == nil {
		out.Metadata = map[string]string{}
	}
	if d := p.CustomerDetails; d != nil {
		if d.Email != "" {
			out.Customer.Email = d.Email
		}
		out.Customer.Name = d.Name
		out.Customer.Phone = d.Phone
		out.Customer.Address = d.Address.toGateway()
	}
	if p.TotalDetails != nil {
		out.AmountDiscount = p.TotalDetails.AmountDiscount
	}
	for _, d := range p.Discounts {
		discount := entitlementdomain.Discount{PromotionCode: string(d.PromotionCode)}
		if d.Coupon != nil {
			discount.CouponID = d.Coupon.ID
			discount.PercentOff = d.Coupon.PercentOff
			discount.AmountOff = d.Coupon.AmountOff
		}
		out.Discounts = append(out.Discounts, discount)
	}
	return out
}

type invoicePayload struct {
	ID            string            `json:"id"`
	Status        string            `json:"status"`
	BillingReason string            `json:"billing_reason"`
	Customer      objectID          `json:"customer"`
	CustomerEmail string            `json:"customer_email"`
	Subscription  objectID          `json:"subscription"`
	PaymentIntent objectID          `json:"payment_intent"`
	AmountPaid    int64             `json:"amount_paid"`
	AmountDue     int64             `json:"amount_due"`
	Currency      string            `json:"currency"`
	PeriodEnd     unixTime          `json:"period_end"`
	Metadata      map[string]string `json:"metadata"`
	Lines         struct {
		Data []struct {
			Period struct {
				Start unixTime `json:"start"`
				End   unixTime `json:"end"`
			} `json:"period"`
		} `json:"data"`
	} `json:"lines"`
}

// servicePeriodEnd is the end of the billed period, which for renewals is
// the line period rather than the invoice period.
func (p invoicePayload) servicePeriodEnd() *time.Time {
	for _, line := range p.Lines.Data {
		if t := line.Period.End.Ptr(); t != nil {
			return t
		}
	}
	return p.PeriodEnd.Ptr()
}

type subscriptionPayload struct {
	ID               string            `json:"id"`
	Status           string            `json:"status"`
	Customer         objectID          `json:"customer"`
	CurrentPeriodEnd unixTime          `json:"current_period_end"`
	CanceledAt       unixTime          `json:"canceled_at"`
	LatestInvoice    objectID          `json:"latest_invoice"`
	Metadata         map[string]string `json:"metadata"`
	Items            struct {
		Data []struct {
			CurrentPeriodEnd unixTime `json:"current_period_end"`
		} `json:"data"`
	} `json:"items"`
}

func (p subscriptionPayload) periodEnd() time.Time {
	if !p.CurrentPeriodEnd.Time().IsZero() {
		return p.CurrentPeriodEnd.Time()
	}
	for _, item := range p.Items.Data {
		if t := item.CurrentPeriodEnd.Time(); !t.IsZero() {
			return t
		}
	}
	return time.Time{}
}

func (p subscriptionPayload) toEnrollment() gateway.Enrollment {
	return gateway.Enrollment{
		ID:               p.ID,
		CustomerID:       string(p.Customer),
		Status:           p.Status,
		CurrentPeriodEnd: p.periodEnd(),
		LatestInvoiceID:  string(p.LatestInvoice),
		Metadata:         p.Metadata,
	}
}
