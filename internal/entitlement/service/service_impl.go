package service

import (
	"context"
	"strconv"
	"strings"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/coursepay/internal/apperror"
	"github.com/smallbiznis/coursepay/internal/clock"
	entitlementdomain "github.com/smallbiznis/coursepay/internal/entitlement/domain"
	"github.com/smallbiznis/coursepay/internal/errorlog"
	"github.com/smallbiznis/coursepay/internal/gateway"
	notificationdomain "github.com/smallbiznis/coursepay/internal/notification/domain"
	"github.com/smallbiznis/coursepay/internal/observability/metrics"
	productkeydomain "github.com/smallbiznis/coursepay/internal/productkey/domain"
	purchasedomain "github.com/smallbiznis/coursepay/internal/purchase/domain"
)

type Params struct {
	fx.In

	Log         *zap.Logger
	Gateway     gateway.Gateway `name:"reconcile"`
	Purchases   purchasedomain.Store
	ProductKeys productkeydomain.Service
	Notifier    notificationdomain.Assembler
	Errors      errorlog.Recorder
	Clock       clock.Clock
	Metrics     *metrics.Metrics `optional:"true"`
}

type Service struct {
	log         *zap.Logger
	gateway     gateway.Gateway
	purchases   purchasedomain.Store
	productKeys productkeydomain.Service
	notifier    notificationdomain.Assembler
	errors      errorlog.Recorder
	clock       clock.Clock
	metrics     *metrics.Metrics
}

func NewService(p Params) entitlementdomain.Provisioner {
	return &Service{
		log:         p.Log.Named("entitlement.service"),
		gateway:     p.Gateway,
		purchases:   p.Purchases,
		productKeys: p.ProductKeys,
		notifier:    p.Notifier,
		errors:      p.Errors,
		clock:       p.Clock,
		metrics:     p.Metrics,
	}
}

// purchase is the normalized state both provisioning paths converge on.
type purchase struct {
	sourceID        string
	paymentType     purchasedomain.PaymentType
	customerID      string
	billing         productkeydomain.BillingDetails
	items           []notificationdomain.LineItem
	courseIDs       []string
	amountPaid      int64
	currency        string
	paymentIntentID string
	subscriptionID  string
	invoiceID       string
	partnerOptIn    bool
	discount        *purchasedomain.DiscountDetails
	tax             *purchasedomain.TaxDetails
	metadata        map[string]any
}

// fail records a failed step. The run continues with the next step.
func (s *Service) fail(ctx context.Context, res *entitlementdomain.Result, step string, err error) {
	res.Failed = append(res.Failed, step)
	s.metrics.RecordProvisioningFailure(ctx, step)
	rerr := &apperror.ReconciliationError{Step: step, SourceID: res.SourceID, Err: err}
	s.errors.Record(ctx, errorlog.TypeOf(rerr), res.SourceID, rerr)
	s.log.Warn("provisioning step failed",
		zap.String("step", step),
		zap.String("source_id", res.SourceID),
		zap.Error(err),
	)
}

// provision runs the shared tail: purchase record, product key and the
// confirmation email.
func (s *Service) provision(ctx context.Context, p purchase, res *entitlementdomain.Result) *entitlementdomain.Result {
	res.CourseIDs = p.courseIDs

	amount := p.amountPaid
	if _, err := s.purchases.Save(ctx, purchasedomain.Input{
		ID:            p.sourceID,
		CustomerID:    p.customerID,
		CustomerEmail: p.billing.Email,
		AmountPaid:    &amount,
		Currency:      p.currency,
		PaymentStatus: purchasedomain.StatusSucceeded,
		PaymentType:   p.paymentType,
		Metadata:      p.metadata,
		Discount:      p.discount,
		Tax:           p.tax,
	}); err != nil {
		s.fail(ctx, res, entitlementdomain.StepPurchaseRecord, err)
	}

	key, created, err := s.productKeys.Issue(ctx, productkeydomain.IssueRequest{
		SourceID:       p.sourceID,
		SubscriptionID: p.subscriptionID,
		CustomerEmail:  p.billing.Email,
		Billing:        p.billing,
		CourseIDs:      p.courseIDs,
	})
	if err != nil {
		s.fail(ctx, res, entitlementdomain.StepIssueKey, err)
		return res
	}
	res.ProductKey = key.Key
	res.Created = created

	if !created {
		s.log.Info("product key already issued, skipping confirmation",
			zap.String("source_id", p.sourceID),
		)
		return res
	}

	if err := s.notifier.SendPurchaseConfirmation(ctx, s.notification(p, key.Key)); err != nil {
		s.fail(ctx, res, entitlementdomain.StepNotify, err)
	}

	s.log.Info("purchase provisioned",
		zap.String("source_id", p.sourceID),
		zap.Strings("course_ids", p.courseIDs),
		zap.Strings("failed_steps", res.Failed),
	)
	return res
}

func (s *Service) notification(p purchase, key string) notificationdomain.Purchase {
	return notificationdomain.Purchase{
		SourceID:        p.sourceID,
		PaymentType:     p.paymentType,
		CustomerEmail:   p.billing.Email,
		CustomerName:    p.billing.Name,
		ProductKey:      key,
		Items:           p.items,
		AmountPaid:      p.amountPaid,
		Currency:        p.currency,
		Tax:             p.tax,
		Discount:        p.discount,
		PaymentIntentID: p.paymentIntentID,
		InvoiceID:       p.invoiceID,
		SubscriptionID:  p.subscriptionID,
		PartnerOptIn:    p.partnerOptIn,
		PaidAt:          s.clock.Now(),
	}
}

// IssuePurchaseConfirmation issues (or reuses) the key for an explicit
// purchase and always sends the confirmation.
func (s *Service) IssuePurchaseConfirmation(ctx context.Context, data entitlementdomain.PurchaseData) (*entitlementdomain.ConfirmationResult, error) {
	var fields []string
	if strings.TrimSpace(data.SourceID) == "" {
		fields = append(fields, "sourceId")
	}
	if strings.TrimSpace(data.CustomerEmail) == "" {
		fields = append(fields, "customerEmail")
	}
	if len(fields) > 0 {
		return nil, apperror.NewValidationError("missing purchase fields", fields...)
	}

	key, _, err := s.productKeys.Issue(ctx, productkeydomain.IssueRequest{
		SourceID:       data.SourceID,
		SubscriptionID: data.SubscriptionID,
		CustomerEmail:  data.CustomerEmail,
		Billing:        productkeydomain.BillingDetails{Name: data.CustomerName, Email: data.CustomerEmail},
		CourseIDs:      data.CourseIDs,
	})
	if err != nil {
		return nil, err
	}

	p := purchase{
		sourceID:       data.SourceID,
		paymentType:    data.PaymentType,
		billing:        productkeydomain.BillingDetails{Name: data.CustomerName, Email: data.CustomerEmail},
		courseIDs:      data.CourseIDs,
		amountPaid:     data.AmountPaid,
		currency:       data.Currency,
		subscriptionID: data.SubscriptionID,
		invoiceID:      data.InvoiceID,
		partnerOptIn:   data.PartnerOptIn,
	}
	if strings.HasPrefix(data.SourceID, "pi_") {
		p.paymentIntentID = data.SourceID
	}
	if err := s.notifier.SendPurchaseConfirmation(ctx, s.notification(p, key.Key)); err != nil {
		s.errors.Record(ctx, errorlog.TypeOf(err), data.SourceID, err)
		return &entitlementdomain.ConfirmationResult{Success: false, ProductKey: key.Key}, nil
	}
	return &entitlementdomain.ConfirmationResult{Success: true, ProductKey: key.Key}, nil
}

// taxFromMetadata reads the VAT breakdown written at checkout time.
func taxFromMetadata(meta map[string]string, gross int64, currency string) *purchasedomain.TaxDetails {
	rate := meta[gateway.MetaVATRate]
	if rate == "" {
		return nil
	}
	vat, _ := strconv.ParseInt(meta[gateway.MetaVATAmount], 10, 64)
	net, err := strconv.ParseInt(meta[gateway.MetaOriginalAmount], 10, 64)
	if err != nil {
		net = gross - vat
	}
	return &purchasedomain.TaxDetails{
		Country:  meta[gateway.MetaCountry],
		Rate:     rate,
		Net:      net,
		VAT:      vat,
		Gross:    gross,
		Currency: currency,
	}
}

func splitCourseIDs(raw string) []string {
	out := []string{}
	seen := map[string]bool{}
	for _, part := range strings.Split(raw, ",") {
		id := strings.TrimSpace(part)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func mergeCourseIDs(lists ...[]string) []string {
	var all []string
	for _, l := range lists {
		all = append(all, l...)
	}
	return splitCourseIDs(strings.Join(all, ","))
}

func metadataAny(meta map[string]string) map[string]any {
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}

func parseBool(raw string) bool {
	v, _ := strconv.ParseBool(strings.TrimSpace(raw))
	return v
}
