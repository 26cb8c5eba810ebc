package stripe

import (
	"maps"
	"strings"
	"time"

	stripego "github.com/stripe/stripe-go/v81"

	"github.com/smallbiznis/coursepay/internal/gateway"
)

func toChargeAttempt(pi *stripego.PaymentIntent) *gateway.ChargeAttempt {
	if pi == nil {
		return nil
	}
	out := &gateway.ChargeAttempt{
		ID:           pi.ID,
		Amount:       pi.Amount,
		Currency:     strings.ToUpper(string(pi.Currency)),
		Status:       gateway.ChargeStatus(pi.Status),
		ClientSecret: pi.ClientSecret,
		ReceiptEmail: pi.ReceiptEmail,
		Metadata:     copyMetadata(pi.Metadata),
	}
	if pi.Customer != nil {
		out.CustomerID = pi.Customer.ID
	}
	out.InvoiceID = out.Metadata[gateway.MetaInvoiceID]
	return out
}

func toInvoice(inv *stripego.Invoice) *gateway.Invoice {
	if inv == nil {
		return nil
	}
	out := &gateway.Invoice{
		ID:            inv.ID,
		CustomerEmail: inv.CustomerEmail,
		Status:        gateway.InvoiceStatus(inv.Status),
		AmountPaid:    inv.AmountPaid,
		Total:         inv.Total,
		Currency:      strings.ToUpper(string(inv.Currency)),
		PDFURL:        inv.InvoicePDF,
		HostedURL:     inv.HostedInvoiceURL,
		Metadata:      copyMetadata(inv.Metadata),
	}
	if inv.Customer != nil {
		out.CustomerID = inv.Customer.ID
	}
	if inv.PaymentIntent != nil {
		out.PaymentIntentID = inv.PaymentIntent.ID
	}
	if inv.Subscription != nil {
		out.SubscriptionID = inv.Subscription.ID
	}
	return out
}

func toCustomer(c *stripego.Customer) *gateway.Customer {
	if c == nil {
		return nil
	}
	return &gateway.Customer{
		ID:       c.ID,
		Email:    c.Email,
		Name:     c.Name,
		Metadata: copyMetadata(c.Metadata),
	}
}

func toPrice(p *stripego.Price) *gateway.Price {
	if p == nil {
		return nil
	}
	out := &gateway.Price{
		ID:         p.ID,
		Active:     p.Active,
		Currency:   strings.ToUpper(string(p.Currency)),
		UnitAmount: p.UnitAmount,
		Nickname:   p.Nickname,
		Metadata:   copyMetadata(p.Metadata),
	}
	if p.Product != nil {
		out.ProductID = p.Product.ID
	}
	if p.Recurring != nil {
		out.Recurring = true
		out.Interval = string(p.Recurring.Interval)
	}
	return out
}

func toProduct(p *stripego.Product) *gateway.Product {
	if p == nil {
		return nil
	}
	return &gateway.Product{ID: p.ID, Name: p.Name, Metadata: copyMetadata(p.Metadata)}
}

func toEnrollment(s *stripego.Subscription) *gateway.Enrollment {
	if s == nil {
		return nil
	}
	out := &gateway.Enrollment{
		ID:       s.ID,
		Status:   string(s.Status),
		Metadata: copyMetadata(s.Metadata),
	}
	if s.Customer != nil {
		out.CustomerID = s.Customer.ID
	}
	if s.CurrentPeriodEnd > 0 {
		out.CurrentPeriodEnd = time.Unix(s.CurrentPeriodEnd, 0).UTC()
	}
	if s.LatestInvoice != nil {
		out.LatestInvoiceID = s.LatestInvoice.ID
	}
	return out
}

func toCheckoutSession(s *stripego.CheckoutSession) *gateway.CheckoutSession {
	if s == nil {
		return nil
	}
	out := &gateway.CheckoutSession{
		ID:       s.ID,
		URL:      s.URL,
		Mode:     gateway.SessionMode(s.Mode),
		Metadata: copyMetadata(s.Metadata),
	}
	if s.Customer != nil {
		out.CustomerID = s.Customer.ID
	}
	if s.PaymentIntent != nil {
		out.PaymentIntentID = s.PaymentIntent.ID
	}
	if s.Subscription != nil {
		out.SubscriptionID = s.Subscription.ID
	}
	return out
}

func toLineItem(li *stripego.LineItem) gateway.LineItem {
	out := gateway.LineItem{
		Description: li.Description,
		Quantity:    li.Quantity,
		AmountTotal: li.AmountTotal,
	}
	if li.Price != nil {
		out.PriceID = li.Price.ID
		if li.Price.Product != nil {
			out.ProductID = li.Price.Product.ID
		}
	}
	return out
}

func copyMetadata(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	maps.Copy(out, in)
	return out
}

func lowerCurrency(currency string) *string {
	return stripego.String(strings.ToLower(strings.TrimSpace(currency)))
}
