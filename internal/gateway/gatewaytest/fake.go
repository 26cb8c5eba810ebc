// Package gatewaytest provides an in-memory gateway.Gateway for tests.
package gatewaytest

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/smallbiznis/coursepay/internal/apperror"
	"github.com/smallbiznis/coursepay/internal/gateway"
)

// Fake records every call and keeps gateway objects in memory. Errors
// registered in Fail are returned by the method with the same name.
type Fake struct {
	mu  sync.Mutex
	seq int

	Charges       map[string]*gateway.ChargeAttempt
	Invoices      map[string]*gateway.Invoice
	InvoiceItems  map[string][]gateway.InvoiceItemParams
	Customers     map[string]*gateway.Customer
	Attached      map[string]string
	Prices        map[string]*gateway.Price
	Products      map[string]*gateway.Product
	Sessions      map[string]*gateway.CheckoutSession
	SessionParams map[string]gateway.CreateCheckoutParams
	LineItems     map[string][]gateway.LineItem
	Subscriptions map[string]*gateway.Enrollment

	// CreateStatus is the status of new charge attempts (requires_capture
	// when empty). CaptureStatus is the status after capture (succeeded
	// when empty).
	CreateStatus  gateway.ChargeStatus
	CaptureStatus gateway.ChargeStatus

	Fail            map[string]error
	Calls           []string
	IdempotencyKeys []string
}

func New() *Fake {
	return &Fake{
		Charges:       map[string]*gateway.ChargeAttempt{},
		Invoices:      map[string]*gateway.Invoice{},
		InvoiceItems:  map[string][]gateway.InvoiceItemParams{},
		Customers:     map[string]*gateway.Customer{},
		Attached:      map[string]string{},
		Prices:        map[string]*gateway.Price{},
		Products:      map[string]*gateway.Product{},
		Sessions:      map[string]*gateway.CheckoutSession{},
		SessionParams: map[string]gateway.CreateCheckoutParams{},
		LineItems:     map[string][]gateway.LineItem{},
		Subscriptions: map[string]*gateway.Enrollment{},
		Fail:          map[string]error{},
	}
}

// Count reports how many times a method was called.
func (f *Fake) Count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.Calls {
		if c == method {
			n++
		}
	}
	return n
}

func (f *Fake) enter(method, idempotencyKey string) error {
	f.Calls = append(f.Calls, method)
	if idempotencyKey != "" {
		f.IdempotencyKeys = append(f.IdempotencyKeys, idempotencyKey)
	}
	if err, ok := f.Fail[method]; ok {
		return err
	}
	return nil
}

func (f *Fake) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s_%d", prefix, f.seq)
}

func notFound(op, id string) error {
	return &apperror.GatewayError{Op: op, Code: "resource_missing", Message: "No such object: " + id, StatusCode: 404}
}

func cloneMeta(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	maps.Copy(out, in)
	return out
}

func mergeMeta(dst map[string]string, src map[string]string) map[string]string {
	if dst == nil {
		dst = map[string]string{}
	}
	for k, v := range src {
		if v == "" {
			delete(dst, k)
			continue
		}
		dst[k] = v
	}
	return dst
}

func copyCharge(c *gateway.ChargeAttempt) *gateway.ChargeAttempt {
	out := *c
	out.Metadata = cloneMeta(c.Metadata)
	return &out
}

func copyInvoice(i *gateway.Invoice) *gateway.Invoice {
	out := *i
	out.Metadata = cloneMeta(i.Metadata)
	return &out
}

func copyEnrollment(e *gateway.Enrollment) *gateway.Enrollment {
	out := *e
	out.Metadata = cloneMeta(e.Metadata)
	return &out
}

func (f *Fake) CreateChargeAttempt(_ context.Context, p gateway.CreateChargeParams) (*gateway.ChargeAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CreateChargeAttempt", p.IdempotencyKey); err != nil {
		return nil, err
	}
	status := f.CreateStatus
	if status == "" {
		status = gateway.ChargeRequiresCapture
	}
	c := &gateway.ChargeAttempt{
		ID:           f.nextID("pi"),
		Amount:       p.Amount,
		Currency:     p.Currency,
		CustomerID:   p.CustomerID,
		Status:       status,
		ClientSecret: "secret",
		Metadata:     cloneMeta(p.Metadata),
	}
	c.InvoiceID = c.Metadata[gateway.MetaInvoiceID]
	f.Charges[c.ID] = c
	return copyCharge(c), nil
}

func (f *Fake) GetChargeAttempt(_ context.Context, id string) (*gateway.ChargeAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("GetChargeAttempt", ""); err != nil {
		return nil, err
	}
	c, ok := f.Charges[id]
	if !ok {
		return nil, notFound("payment_intent.get", id)
	}
	return copyCharge(c), nil
}

func (f *Fake) ConfirmChargeAttempt(_ context.Context, id string) (*gateway.ChargeAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ConfirmChargeAttempt", ""); err != nil {
		return nil, err
	}
	c, ok := f.Charges[id]
	if !ok {
		return nil, notFound("payment_intent.confirm", id)
	}
	c.Status = gateway.ChargeRequiresCapture
	return copyCharge(c), nil
}

func (f *Fake) CaptureChargeAttempt(_ context.Context, id string) (*gateway.ChargeAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CaptureChargeAttempt", ""); err != nil {
		return nil, err
	}
	c, ok := f.Charges[id]
	if !ok {
		return nil, notFound("payment_intent.capture", id)
	}
	status := f.CaptureStatus
	if status == "" {
		status = gateway.ChargeSucceeded
	}
	c.Status = status
	return copyCharge(c), nil
}

func (f *Fake) CancelChargeAttempt(_ context.Context, id string) (*gateway.ChargeAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CancelChargeAttempt", ""); err != nil {
		return nil, err
	}
	c, ok := f.Charges[id]
	if !ok {
		return nil, notFound("payment_intent.cancel", id)
	}
	c.Status = gateway.ChargeCanceled
	return copyCharge(c), nil
}

func (f *Fake) UpdateChargeMetadata(_ context.Context, id string, metadata map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("UpdateChargeMetadata", ""); err != nil {
		return err
	}
	c, ok := f.Charges[id]
	if !ok {
		return notFound("payment_intent.update", id)
	}
	c.Metadata = mergeMeta(c.Metadata, metadata)
	c.InvoiceID = c.Metadata[gateway.MetaInvoiceID]
	return nil
}

func (f *Fake) CreateInvoice(_ context.Context, p gateway.CreateInvoiceParams) (*gateway.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CreateInvoice", p.IdempotencyKey); err != nil {
		return nil, err
	}
	inv := &gateway.Invoice{
		ID:         f.nextID("in"),
		CustomerID: p.CustomerID,
		Status:     gateway.InvoiceDraft,
		Currency:   p.Currency,
		Metadata:   cloneMeta(p.Metadata),
	}
	if c, ok := f.Customers[p.CustomerID]; ok {
		inv.CustomerEmail = c.Email
	}
	f.Invoices[inv.ID] = inv
	return copyInvoice(inv), nil
}

func (f *Fake) AddInvoiceItem(_ context.Context, p gateway.InvoiceItemParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("AddInvoiceItem", p.IdempotencyKey); err != nil {
		return err
	}
	inv, ok := f.Invoices[p.InvoiceID]
	if !ok {
		return notFound("invoice_item.create", p.InvoiceID)
	}
	inv.Total += p.Amount
	f.InvoiceItems[p.InvoiceID] = append(f.InvoiceItems[p.InvoiceID], p)
	return nil
}

func (f *Fake) GetInvoice(_ context.Context, id string) (*gateway.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("GetInvoice", ""); err != nil {
		return nil, err
	}
	inv, ok := f.Invoices[id]
	if !ok {
		return nil, notFound("invoice.get", id)
	}
	return copyInvoice(inv), nil
}

func (f *Fake) FinalizeInvoice(_ context.Context, id string) (*gateway.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("FinalizeInvoice", ""); err != nil {
		return nil, err
	}
	inv, ok := f.Invoices[id]
	if !ok {
		return nil, notFound("invoice.finalize", id)
	}
	inv.Status = gateway.InvoiceOpen
	inv.PDFURL = "https://files.example.com/" + id + ".pdf"
	return copyInvoice(inv), nil
}

func (f *Fake) PayInvoice(_ context.Context, id string) (*gateway.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("PayInvoice", ""); err != nil {
		return nil, err
	}
	inv, ok := f.Invoices[id]
	if !ok {
		return nil, notFound("invoice.pay", id)
	}
	inv.Status = gateway.InvoicePaid
	inv.AmountPaid = inv.Total
	return copyInvoice(inv), nil
}

func (f *Fake) UpdateInvoiceMetadata(_ context.Context, id string, metadata map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("UpdateInvoiceMetadata", ""); err != nil {
		return err
	}
	inv, ok := f.Invoices[id]
	if !ok {
		return notFound("invoice.update", id)
	}
	inv.Metadata = mergeMeta(inv.Metadata, metadata)
	return nil
}

func (f *Fake) CreateCustomer(_ context.Context, p gateway.CreateCustomerParams) (*gateway.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CreateCustomer", p.IdempotencyKey); err != nil {
		return nil, err
	}
	c := &gateway.Customer{ID: f.nextID("cus"), Email: p.Email, Name: p.Name, Metadata: cloneMeta(p.Metadata)}
	f.Customers[c.ID] = c
	out := *c
	return &out, nil
}

func (f *Fake) GetCustomer(_ context.Context, id string) (*gateway.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("GetCustomer", ""); err != nil {
		return nil, err
	}
	c, ok := f.Customers[id]
	if !ok {
		return nil, notFound("customer.get", id)
	}
	out := *c
	return &out, nil
}

func (f *Fake) FindCustomerByEmail(_ context.Context, email string) (*gateway.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("FindCustomerByEmail", ""); err != nil {
		return nil, err
	}
	for _, c := range f.Customers {
		if c.Email == email {
			out := *c
			return &out, nil
		}
	}
	return nil, nil
}

func (f *Fake) AttachPaymentMethod(_ context.Context, customerID, paymentMethodID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("AttachPaymentMethod", ""); err != nil {
		return err
	}
	f.Attached[paymentMethodID] = customerID
	return nil
}

func (f *Fake) SetDefaultPaymentMethod(_ context.Context, customerID, paymentMethodID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("SetDefaultPaymentMethod", ""); err != nil {
		return err
	}
	if f.Attached[paymentMethodID] != customerID {
		return &apperror.GatewayError{Op: "customer.update", Code: "resource_missing", Message: "payment method not attached", StatusCode: 400}
	}
	return nil
}

func (f *Fake) GetPrice(_ context.Context, id string) (*gateway.Price, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("GetPrice", ""); err != nil {
		return nil, err
	}
	p, ok := f.Prices[id]
	if !ok {
		return nil, notFound("price.get", id)
	}
	out := *p
	return &out, nil
}

func (f *Fake) CreatePrice(_ context.Context, in gateway.CreatePriceParams) (*gateway.Price, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CreatePrice", in.IdempotencyKey); err != nil {
		return nil, err
	}
	p := &gateway.Price{
		ID:         f.nextID("price"),
		ProductID:  in.ProductID,
		Active:     true,
		Currency:   in.Currency,
		UnitAmount: in.UnitAmount,
		Recurring:  in.Interval != "",
		Interval:   in.Interval,
		Nickname:   in.Nickname,
		Metadata:   cloneMeta(in.Metadata),
	}
	f.Prices[p.ID] = p
	out := *p
	return &out, nil
}

func (f *Fake) ListPrices(_ context.Context, productID string, active *bool) ([]gateway.Price, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ListPrices", ""); err != nil {
		return nil, err
	}
	out := []gateway.Price{}
	for _, p := range f.Prices {
		if p.ProductID != productID {
			continue
		}
		if active != nil && p.Active != *active {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

func (f *Fake) SetPriceActive(_ context.Context, id string, active bool) (*gateway.Price, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("SetPriceActive", ""); err != nil {
		return nil, err
	}
	p, ok := f.Prices[id]
	if !ok {
		return nil, notFound("price.update", id)
	}
	p.Active = active
	out := *p
	return &out, nil
}

func (f *Fake) GetProduct(_ context.Context, id string) (*gateway.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("GetProduct", ""); err != nil {
		return nil, err
	}
	p, ok := f.Products[id]
	if !ok {
		return nil, notFound("product.get", id)
	}
	out := *p
	return &out, nil
}

func (f *Fake) CreateCheckoutSession(_ context.Context, p gateway.CreateCheckoutParams) (*gateway.CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CreateCheckoutSession", p.IdempotencyKey); err != nil {
		return nil, err
	}
	s := &gateway.CheckoutSession{
		ID:         f.nextID("cs"),
		Mode:       p.Mode,
		CustomerID: p.CustomerID,
		Metadata:   cloneMeta(p.Metadata),
	}
	s.URL = "https://checkout.example.com/" + s.ID
	f.Sessions[s.ID] = s
	f.SessionParams[s.ID] = p
	out := *s
	return &out, nil
}

func (f *Fake) ListSessionLineItems(_ context.Context, sessionID string) ([]gateway.LineItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ListSessionLineItems", ""); err != nil {
		return nil, err
	}
	return append([]gateway.LineItem(nil), f.LineItems[sessionID]...), nil
}

func (f *Fake) CreateSubscription(_ context.Context, p gateway.CreateSubscriptionParams) (*gateway.Enrollment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CreateSubscription", p.IdempotencyKey); err != nil {
		return nil, err
	}
	e := &gateway.Enrollment{
		ID:               f.nextID("sub"),
		CustomerID:       p.CustomerID,
		Status:           "active",
		CurrentPeriodEnd: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
		Metadata:         cloneMeta(p.Metadata),
	}
	f.Subscriptions[e.ID] = e
	return copyEnrollment(e), nil
}

func (f *Fake) GetSubscription(_ context.Context, id string) (*gateway.Enrollment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("GetSubscription", ""); err != nil {
		return nil, err
	}
	e, ok := f.Subscriptions[id]
	if !ok {
		return nil, notFound("subscription.get", id)
	}
	return copyEnrollment(e), nil
}

func (f *Fake) UpdateSubscriptionMetadata(_ context.Context, id string, metadata map[string]string) (*gateway.Enrollment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("UpdateSubscriptionMetadata", ""); err != nil {
		return nil, err
	}
	e, ok := f.Subscriptions[id]
	if !ok {
		return nil, notFound("subscription.update", id)
	}
	e.Metadata = mergeMeta(e.Metadata, metadata)
	return copyEnrollment(e), nil
}

func (f *Fake) SetSubscriptionPaymentMethod(_ context.Context, id, paymentMethodID string) (*gateway.Enrollment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("SetSubscriptionPaymentMethod", ""); err != nil {
		return nil, err
	}
	e, ok := f.Subscriptions[id]
	if !ok {
		return nil, notFound("subscription.update", id)
	}
	return copyEnrollment(e), nil
}

func (f *Fake) CancelSubscription(_ context.Context, id string) (*gateway.Enrollment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CancelSubscription", ""); err != nil {
		return nil, err
	}
	e, ok := f.Subscriptions[id]
	if !ok {
		return nil, notFound("subscription.cancel", id)
	}
	e.Status = "canceled"
	return copyEnrollment(e), nil
}

var _ gateway.Gateway = (*Fake)(nil)
