package stripe

import (
	"context"
	"strings"

	stripego "github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/coursepay/internal/gateway"
	"github.com/smallbiznis/coursepay/internal/observability/metrics"
)

type Params struct {
	fx.In

	API     *client.API
	Log     *zap.Logger
	Metrics *metrics.Metrics `optional:"true"`
}

// Adapter implements gateway.Gateway on the Stripe API.
type Adapter struct {
	api     *client.API
	log     *zap.Logger
	metrics *metrics.Metrics
}

func New(p Params) gateway.Gateway {
	return &Adapter{
		api:     p.API,
		log:     p.Log.Named("gateway.stripe"),
		metrics: p.Metrics,
	}
}

type ReconcileParams struct {
	fx.In

	API     *client.API `name:"reconcile"`
	Log     *zap.Logger
	Metrics *metrics.Metrics `optional:"true"`
}

type ReconcileResult struct {
	fx.Out

	Gateway gateway.Gateway `name:"reconcile"`
}

// NewReconcile builds the non-retrying adapter for webhook-driven work.
func NewReconcile(p ReconcileParams) ReconcileResult {
	return ReconcileResult{Gateway: &Adapter{
		api:     p.API,
		log:     p.Log.Named("gateway.stripe.reconcile"),
		metrics: p.Metrics,
	}}
}

func (a *Adapter) done(ctx context.Context, op string, err error) error {
	a.metrics.RecordGatewayCall(ctx, op, err)
	if err != nil {
		a.log.Warn("stripe call failed", zap.String("op", op), zap.Error(err))
	}
	return translateError(op, err)
}

func withContext(ctx context.Context, p *stripego.Params, idempotencyKey string) {
	p.Context = ctx
	if key := strings.TrimSpace(idempotencyKey); key != "" {
		p.SetIdempotencyKey(key)
	}
}

func (a *Adapter) CreateChargeAttempt(ctx context.Context, in gateway.CreateChargeParams) (*gateway.ChargeAttempt, error) {
	params := &stripego.PaymentIntentParams{
		Amount:             stripego.Int64(in.Amount),
		Currency:           lowerCurrency(in.Currency),
		Customer:           stripego.String(in.CustomerID),
		PaymentMethod:      stripego.String(in.PaymentMethodID),
		PaymentMethodTypes: stripego.StringSlice([]string{"card"}),
		ConfirmationMethod: stripego.String(string(stripego.PaymentIntentConfirmationMethodManual)),
		CaptureMethod:      stripego.String(string(stripego.PaymentIntentCaptureMethodManual)),
		Confirm:            stripego.Bool(true),
	}
	if in.Description != "" {
		params.Description = stripego.String(in.Description)
	}
	params.Metadata = copyMetadata(in.Metadata)
	withContext(ctx, &params.Params, in.IdempotencyKey)

	pi, err := a.api.PaymentIntents.New(params)
	if err := a.done(ctx, "payment_intent.create", err); err != nil {
		return nil, err
	}
	return toChargeAttempt(pi), nil
}

func (a *Adapter) GetChargeAttempt(ctx context.Context, id string) (*gateway.ChargeAttempt, error) {
	params := &stripego.PaymentIntentParams{}
	withContext(ctx, &params.Params, "")

	pi, err := a.api.PaymentIntents.Get(id, params)
	if err := a.done(ctx, "payment_intent.get", err); err != nil {
		return nil, err
	}
	return toChargeAttempt(pi), nil
}

func (a *Adapter) ConfirmChargeAttempt(ctx context.Context, id string) (*gateway.ChargeAttempt, error) {
	params := &stripego.PaymentIntentConfirmParams{}
	withContext(ctx, &params.Params, "")

	pi, err := a.api.PaymentIntents.Confirm(id, params)
	if err := a.done(ctx, "payment_intent.confirm", err); err != nil {
		return nil, err
	}
	return toChargeAttempt(pi), nil
}

func (a *Adapter) CaptureChargeAttempt(ctx context.Context, id string) (*gateway.ChargeAttempt, error) {
	params := &stripego.PaymentIntentCaptureParams{}
	withContext(ctx, &params.Params, "capture-"+id)

	pi, err := a.api.PaymentIntents.Capture(id, params)
	if err := a.done(ctx, "payment_intent.capture", err); err != nil {
		return nil, err
	}
	return toChargeAttempt(pi), nil
}

func (a *Adapter) CancelChargeAttempt(ctx context.Context, id string) (*gateway.ChargeAttempt, error) {
	params := &stripego.PaymentIntentCancelParams{}
	withContext(ctx, &params.Params, "")

	pi, err := a.api.PaymentIntents.Cancel(id, params)
	if err := a.done(ctx, "payment_intent.cancel", err); err != nil {
		return nil, err
	}
	return toChargeAttempt(pi), nil
}

func (a *Adapter) UpdateChargeMetadata(ctx context.Context, id string, metadata map[string]string) error {
	params := &stripego.PaymentIntentParams{}
	params.Metadata = copyMetadata(metadata)
	withContext(ctx, &params.Params, "")

	_, err := a.api.PaymentIntents.Update(id, params)
	return a.done(ctx, "payment_intent.update", err)
}

func (a *Adapter) CreateInvoice(ctx context.Context, in gateway.CreateInvoiceParams) (*gateway.Invoice, error) {
	params := &stripego.InvoiceParams{
		Customer:                    stripego.String(in.CustomerID),
		Currency:                    lowerCurrency(in.Currency),
		AutoAdvance:                 stripego.Bool(false),
		CollectionMethod:            stripego.String(string(stripego.InvoiceCollectionMethodChargeAutomatically)),
		PendingInvoiceItemsBehavior: stripego.String("exclude"),
	}
	if in.Description != "" {
		params.Description = stripego.String(in.Description)
	}
	params.Metadata = copyMetadata(in.Metadata)
	withContext(ctx, &params.Params, in.IdempotencyKey)

	inv, err := a.api.Invoices.New(params)
	if err := a.done(ctx, "invoice.create", err); err != nil {
		return nil, err
	}
	return toInvoice(inv), nil
}

func (a *Adapter) AddInvoiceItem(ctx context.Context, in gateway.InvoiceItemParams) error {
	params := &stripego.InvoiceItemParams{
		Customer:    stripego.String(in.CustomerID),
		Invoice:     stripego.String(in.InvoiceID),
		Amount:      stripego.Int64(in.Amount),
		Currency:    lowerCurrency(in.Currency),
		Description: stripego.String(in.Description),
	}
	params.Metadata = copyMetadata(in.Metadata)
	withContext(ctx, &params.Params, in.IdempotencyKey)

	_, err := a.api.InvoiceItems.New(params)
	return a.done(ctx, "invoice_item.create", err)
}

func (a *Adapter) GetInvoice(ctx context.Context, id string) (*gateway.Invoice, error) {
	params := &stripego.InvoiceParams{}
	withContext(ctx, &params.Params, "")

	inv, err := a.api.Invoices.Get(id, params)
	if err := a.done(ctx, "invoice.get", err); err != nil {
		return nil, err
	}
	return toInvoice(inv), nil
}

func (a *Adapter) FinalizeInvoice(ctx context.Context, id string) (*gateway.Invoice, error) {
	params := &stripego.InvoiceFinalizeInvoiceParams{AutoAdvance: stripego.Bool(false)}
	withContext(ctx, &params.Params, "")

	inv, err := a.api.Invoices.FinalizeInvoice(id, params)
	if err := a.done(ctx, "invoice.finalize", err); err != nil {
		return nil, err
	}
	return toInvoice(inv), nil
}

func (a *Adapter) PayInvoice(ctx context.Context, id string) (*gateway.Invoice, error) {
	params := &stripego.InvoicePayParams{PaidOutOfBand: stripego.Bool(true)}
	withContext(ctx, &params.Params, "pay-"+id)

	inv, err := a.api.Invoices.Pay(id, params)
	if err := a.done(ctx, "invoice.pay", err); err != nil {
		return nil, err
	}
	return toInvoice(inv), nil
}

func (a *Adapter) UpdateInvoiceMetadata(ctx context.Context, id string, metadata map[string]string) error {
	params := &stripego.InvoiceParams{}
	params.Metadata = copyMetadata(metadata)
	withContext(ctx, &params.Params, "")

	_, err := a.api.Invoices.Update(id, params)
	return a.done(ctx, "invoice.update", err)
}

func (a *Adapter) CreateCustomer(ctx context.Context, in gateway.CreateCustomerParams) (*gateway.Customer, error) {
	params := &stripego.CustomerParams{
		Email: stripego.String(in.Email),
	}
	if in.Name != "" {
		params.Name = stripego.String(in.Name)
	}
	if in.Phone != "" {
		params.Phone = stripego.String(in.Phone)
	}
	if addr := in.Address; addr != nil {
		params.Address = &stripego.AddressParams{
			Line1:      stripego.String(addr.Line1),
			Line2:      stripego.String(addr.Line2),
			City:       stripego.String(addr.City),
			PostalCode: stripego.String(addr.PostalCode),
			State:      stripego.String(addr.State),
			Country:    stripego.String(addr.Country),
		}
	}
	params.Metadata = copyMetadata(in.Metadata)
	withContext(ctx, &params.Params, in.IdempotencyKey)

	c, err := a.api.Customers.New(params)
	if err := a.done(ctx, "customer.create", err); err != nil {
		return nil, err
	}
	return toCustomer(c), nil
}

func (a *Adapter) GetCustomer(ctx context.Context, id string) (*gateway.Customer, error) {
	params := &stripego.CustomerParams{}
	withContext(ctx, &params.Params, "")

	c, err := a.api.Customers.Get(id, params)
	if err := a.done(ctx, "customer.get", err); err != nil {
		return nil, err
	}
	return toCustomer(c), nil
}

func (a *Adapter) FindCustomerByEmail(ctx context.Context, email string) (*gateway.Customer, error) {
	params := &stripego.CustomerListParams{Email: stripego.String(strings.TrimSpace(email))}
	params.Context = ctx
	params.Limit = stripego.Int64(1)

	iter := a.api.Customers.List(params)
	var found *stripego.Customer
	if iter.Next() {
		found = iter.Customer()
	}
	if err := a.done(ctx, "customer.list", iter.Err()); err != nil {
		return nil, err
	}
	return toCustomer(found), nil
}

func (a *Adapter) AttachPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error {
	params := &stripego.PaymentMethodAttachParams{Customer: stripego.String(customerID)}
	withContext(ctx, &params.Params, "")

	_, err := a.api.PaymentMethods.Attach(paymentMethodID, params)
	return a.done(ctx, "payment_method.attach", err)
}

func (a *Adapter) SetDefaultPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error {
	params := &stripego.CustomerParams{
		InvoiceSettings: &stripego.CustomerInvoiceSettingsParams{
			DefaultPaymentMethod: stripego.String(paymentMethodID),
		},
	}
	withContext(ctx, &params.Params, "")

	_, err := a.api.Customers.Update(customerID, params)
	return a.done(ctx, "customer.update", err)
}

func (a *Adapter) GetPrice(ctx context.Context, id string) (*gateway.Price, error) {
	params := &stripego.PriceParams{}
	withContext(ctx, &params.Params, "")

	p, err := a.api.Prices.Get(id, params)
	if err := a.done(ctx, "price.get", err); err != nil {
		return nil, err
	}
	return toPrice(p), nil
}

func (a *Adapter) CreatePrice(ctx context.Context, in gateway.CreatePriceParams) (*gateway.Price, error) {
	params := &stripego.PriceParams{
		Product:    stripego.String(in.ProductID),
		Currency:   lowerCurrency(in.Currency),
		UnitAmount: stripego.Int64(in.UnitAmount),
	}
	if in.Interval != "" {
		params.Recurring = &stripego.PriceRecurringParams{Interval: stripego.String(in.Interval)}
	}
	if in.Nickname != "" {
		params.Nickname = stripego.String(in.Nickname)
	}
	params.Metadata = copyMetadata(in.Metadata)
	withContext(ctx, &params.Params, in.IdempotencyKey)

	p, err := a.api.Prices.New(params)
	if err := a.done(ctx, "price.create", err); err != nil {
		return nil, err
	}
	return toPrice(p), nil
}

func (a *Adapter) ListPrices(ctx context.Context, productID string, active *bool) ([]gateway.Price, error) {
	params := &stripego.PriceListParams{Product: stripego.String(productID), Active: active}
	params.Context = ctx
	params.Limit = stripego.Int64(100)

	iter := a.api.Prices.List(params)
	out := []gateway.Price{}
	for iter.Next() {
		out = append(out, *toPrice(iter.Price()))
	}
	if err := a.done(ctx, "price.list", iter.Err()); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *Adapter) SetPriceActive(ctx context.Context, id string, active bool) (*gateway.Price, error) {
	params := &stripego.PriceParams{Active: stripego.Bool(active)}
	withContext(ctx, &params.Params, "")

	p, err := a.api.Prices.Update(id, params)
	if err := a.done(ctx, "price.update", err); err != nil {
		return nil, err
	}
	return toPrice(p), nil
}

func (a *Adapter) GetProduct(ctx context.Context, id string) (*gateway.Product, error) {
	params := &stripego.ProductParams{}
	withContext(ctx, &params.Params, "")

	p, err := a.api.Products.Get(id, params)
	if err := a.done(ctx, "product.get", err); err != nil {
		return nil, err
	}
	return toProduct(p), nil
}

func (a *Adapter) CreateCheckoutSession(ctx context.Context, in gateway.CreateCheckoutParams) (*gateway.CheckoutSession, error) {
	quantity := in.Quantity
	if quantity <= 0 {
		quantity = 1
	}
	params := &stripego.CheckoutSessionParams{
		Mode:       stripego.String(string(in.Mode)),
		Customer:   stripego.String(in.CustomerID),
		SuccessURL: stripego.String(in.SuccessURL),
		CancelURL:  stripego.String(in.CancelURL),
		LineItems: []*stripego.CheckoutSessionLineItemParams{
			{Price: stripego.String(in.PriceID), Quantity: stripego.Int64(quantity)},
		},
		AutomaticTax: &stripego.CheckoutSessionAutomaticTaxParams{Enabled: stripego.Bool(false)},
	}
	if in.AllowPromotionCodes {
		params.AllowPromotionCodes = stripego.Bool(true)
	}

	metadata := copyMetadata(in.Metadata)
	params.Metadata = metadata
	switch in.Mode {
	case gateway.ModeSubscription:
		sub := &stripego.CheckoutSessionSubscriptionDataParams{Metadata: copyMetadata(metadata)}
		if in.TrialEnd != nil {
			sub.TrialEnd = stripego.Int64(in.TrialEnd.Unix())
		}
		params.SubscriptionData = sub
	default:
		params.PaymentIntentData = &stripego.CheckoutSessionPaymentIntentDataParams{Metadata: copyMetadata(metadata)}
		params.InvoiceCreation = &stripego.CheckoutSessionInvoiceCreationParams{Enabled: stripego.Bool(true)}
	}
	withContext(ctx, &params.Params, in.IdempotencyKey)

	s, err := a.api.CheckoutSessions.New(params)
	if err := a.done(ctx, "checkout_session.create", err); err != nil {
		return nil, err
	}
	return toCheckoutSession(s), nil
}

func (a *Adapter) ListSessionLineItems(ctx context.Context, sessionID string) ([]gateway.LineItem, error) {
	params := &stripego.CheckoutSessionListLineItemsParams{Session: stripego.String(sessionID)}
	params.Context = ctx
	params.Limit = stripego.Int64(100)

	iter := a.api.CheckoutSessions.ListLineItems(params)
	out := []gateway.LineItem{}
	for iter.Next() {
		out = append(out, toLineItem(iter.LineItem()))
	}
	if err := a.done(ctx, "checkout_session.line_items", iter.Err()); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *Adapter) CreateSubscription(ctx context.Context, in gateway.CreateSubscriptionParams) (*gateway.Enrollment, error) {
	params := &stripego.SubscriptionParams{
		Customer: stripego.String(in.CustomerID),
		Items: []*stripego.SubscriptionItemsParams{
			{Price: stripego.String(in.PriceID)},
		},
		PaymentBehavior: stripego.String("allow_incomplete"),
	}
	if in.PaymentMethodID != "" {
		params.DefaultPaymentMethod = stripego.String(in.PaymentMethodID)
	}
	if in.TrialEndNow {
		params.TrialEndNow = stripego.Bool(true)
	}
	params.Metadata = copyMetadata(in.Metadata)
	withContext(ctx, &params.Params, in.IdempotencyKey)

	s, err := a.api.Subscriptions.New(params)
	if err := a.done(ctx, "subscription.create", err); err != nil {
		return nil, err
	}
	return toEnrollment(s), nil
}

func (a *Adapter) GetSubscription(ctx context.Context, id string) (*gateway.Enrollment, error) {
	params := &stripego.SubscriptionParams{}
	withContext(ctx, &params.Params, "")

	s, err := a.api.Subscriptions.Get(id, params)
	if err := a.done(ctx, "subscription.get", err); err != nil {
		return nil, err
	}
	return toEnrollment(s), nil
}

func (a *Adapter) UpdateSubscriptionMetadata(ctx context.Context, id string, metadata map[string]string) (*gateway.Enrollment, error) {
	params := &stripego.SubscriptionParams{}
	params.Metadata = copyMetadata(metadata)
	withContext(ctx, &params.Params, "")

	s, err := a.api.Subscriptions.Update(id, params)
	if err := a.done(ctx, "subscription.update", err); err != nil {
		return nil, err
	}
	return toEnrollment(s), nil
}

func (a *Adapter) SetSubscriptionPaymentMethod(ctx context.Context, id, paymentMethodID string) (*gateway.Enrollment, error) {
	params := &stripego.SubscriptionParams{DefaultPaymentMethod: stripego.String(paymentMethodID)}
	withContext(ctx, &params.Params, "")

	s, err := a.api.Subscriptions.Update(id, params)
	if err := a.done(ctx, "subscription.update", err); err != nil {
		return nil, err
	}
	return toEnrollment(s), nil
}

func (a *Adapter) CancelSubscription(ctx context.Context, id string) (*gateway.Enrollment, error) {
	params := &stripego.SubscriptionCancelParams{}
	withContext(ctx, &params.Params, "")

	s, err := a.api.Subscriptions.Cancel(id, params)
	if err := a.done(ctx, "subscription.cancel", err); err != nil {
		return nil, err
	}
	return toEnrollment(s), nil
}

var _ gateway.Gateway = (*Adapter)(nil)
