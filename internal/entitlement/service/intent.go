package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	entitlementdomain "github.com/smallbiznis/coursepay/internal/entitlement/domain"
	"github.com/smallbiznis/coursepay/internal/gateway"
	notificationdomain "github.com/smallbiznis/coursepay/internal/notification/domain"
	productkeydomain "github.com/smallbiznis/coursepay/internal/productkey/domain"
	purchasedomain "github.com/smallbiznis/coursepay/internal/purchase/domain"
)

// metaPriceIDCamel is the key older checkout clients write.
const metaPriceIDCamel = "priceId"

func (s *Service) ProvisionFromPaymentIntent(ctx context.Context, pi entitlementdomain.PaymentIntent) (*entitlementdomain.Result, error) {
	if strings.TrimSpace(pi.ID) == "" {
		return nil, purchasedomain.ErrInvalidID
	}
	res := &entitlementdomain.Result{SourceID: pi.ID}

	priceID := pi.Metadata[metaPriceIDCamel]
	if priceID == "" {
		priceID = pi.Metadata[gateway.MetaPriceID]
	}

	// Subscription invoices are provisioned through their checkout session.
	if pi.GatewayInvoiceID != "" && priceID == "" && pi.Metadata[gateway.MetaCourseIDs] == "" {
		s.log.Info("skipping subscription invoice payment",
			zap.String("payment_intent_id", pi.ID),
			zap.String("invoice_id", pi.GatewayInvoiceID),
		)
		res.Skipped = true
		return res, nil
	}

	courseIDs := splitCourseIDs(pi.Metadata[gateway.MetaCourseIDs])
	var items []notificationdomain.LineItem
	if priceID != "" {
		ids, item, err := s.priceCourses(ctx, priceID)
		if err != nil {
			s.fail(ctx, res, entitlementdomain.StepResolveCourses, err)
		} else {
			courseIDs = mergeCourseIDs(courseIDs, ids)
			items = append(items, item)
		}
	}
	if len(courseIDs) == 0 && !containsStep(res.Failed, entitlementdomain.StepResolveCourses) {
		s.fail(ctx, res, entitlementdomain.StepResolveCourses, errNoCourses)
	}

	email := pi.ReceiptEmail
	if email == "" {
		email = pi.Metadata[gateway.MetaCustomerEmail]
	}
	var name string
	if email == "" && pi.CustomerID != "" {
		if customer, err := s.gateway.GetCustomer(ctx, pi.CustomerID); err == nil && customer != nil {
			email, name = customer.Email, customer.Name
		}
	}

	amount := pi.AmountReceived
	if amount == 0 {
		amount = pi.Amount
	}

	invoiceID := pi.Metadata[gateway.MetaInvoiceID]
	if invoiceID == "" {
		invoiceID = pi.GatewayInvoiceID
	}

	p := purchase{
		sourceID:        pi.ID,
		paymentType:     purchasedomain.PaymentTypeOneTime,
		customerID:      pi.CustomerID,
		billing:         productkeydomain.BillingDetails{Name: name, Email: email},
		items:           items,
		courseIDs:       courseIDs,
		amountPaid:      amount,
		currency:        pi.Currency,
		paymentIntentID: pi.ID,
		invoiceID:       invoiceID,
		partnerOptIn:    parseBool(pi.Metadata[gateway.MetaPartnerOptIn]),
		tax:             taxFromMetadata(pi.Metadata, amount, pi.Currency),
		metadata:        metadataAny(pi.Metadata),
	}
	return s.provision(ctx, p, res), nil
}

func (s *Service) priceCourses(ctx context.Context, priceID string) ([]string, notificationdomain.LineItem, error) {
	price, err := s.gateway.GetPrice(ctx, priceID)
	if err != nil {
		return nil, notificationdomain.LineItem{}, err
	}
	item := notificationdomain.LineItem{Description: price.Nickname, Quantity: 1, Amount: price.UnitAmount}
	if ids := splitCourseIDs(price.Metadata[gateway.MetaCourseIDs]); len(ids) > 0 {
		return ids, item, nil
	}
	if price.ProductID == "" {
		return nil, item, nil
	}
	product, err := s.gateway.GetProduct(ctx, price.ProductID)
	if err != nil {
		return nil, item, err
	}
	if item.Description == "" {
		item.Description = product.Name
	}
	return splitCourseIDs(product.Metadata[gateway.MetaCourseIDs]), item, nil
}

func containsStep(steps []string, step string) bool {
	for _, s := range steps {
		if s == step {
			return true
		}
	}
	return false
}
