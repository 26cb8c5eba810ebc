package service

import (
	"context"
	"errors"
	"strings"

	entitlementdomain "github.com/smallbiznis/coursepay/internal/entitlement/domain"
	"github.com/smallbiznis/coursepay/internal/gateway"
	notificationdomain "github.com/smallbiznis/coursepay/internal/notification/domain"
	productkeydomain "github.com/smallbiznis/coursepay/internal/productkey/domain"
	purchasedomain "github.com/smallbiznis/coursepay/internal/purchase/domain"
)

var errNoCourses = errors.New("no course ids resolved")

func (s *Service) ProvisionFromCheckoutSession(ctx context.Context, session entitlementdomain.CheckoutSession) (*entitlementdomain.Result, error) {
	if strings.TrimSpace(session.ID) == "" {
		return nil, purchasedomain.ErrInvalidID
	}
	res := &entitlementdomain.Result{SourceID: session.SourceID()}

	items, courseIDs, err := s.resolveSessionCourses(ctx, session)
	if err != nil {
		s.fail(ctx, res, entitlementdomain.StepResolveCourses, err)
	}

	discount, err := summarizeDiscount(session)
	if err != nil {
		s.fail(ctx, res, entitlementdomain.StepDiscount, err)
	}

	email := session.Customer.Email
	if email == "" {
		email = session.Metadata[gateway.MetaCustomerEmail]
	}

	paymentType := purchasedomain.PaymentTypeOneTime
	if session.Mode == gateway.ModeSubscription || session.SubscriptionID != "" {
		paymentType = purchasedomain.PaymentTypeSubscription
	}

	metadata := metadataAny(session.Metadata)
	metadata[gateway.MetaCheckoutID] = session.ID
	if session.PaymentIntentID != "" {
		metadata[gateway.MetaPaymentIntent] = session.PaymentIntentID
	}

	p := purchase{
		sourceID:    res.SourceID,
		paymentType: paymentType,
		customerID:  session.CustomerID,
		billing: productkeydomain.BillingDetails{
			Name:    session.Customer.Name,
			Email:   email,
			Phone:   session.Customer.Phone,
			Address: toKeyAddress(session.Customer.Address),
		},
		items:           items,
		courseIDs:       courseIDs,
		amountPaid:      session.AmountTotal,
		currency:        session.Currency,
		paymentIntentID: session.PaymentIntentID,
		subscriptionID:  session.SubscriptionID,
		invoiceID:       session.InvoiceID,
		partnerOptIn:    parseBool(session.Metadata[gateway.MetaPartnerOptIn]),
		discount:        discount,
		tax:             taxFromMetadata(session.Metadata, session.AmountTotal, session.Currency),
		metadata:        metadata,
	}
	return s.provision(ctx, p, res), nil
}

// resolveSessionCourses walks line item → price → product metadata. The
// session metadata is the fallback when no catalog object carries courses.
func (s *Service) resolveSessionCourses(ctx context.Context, session entitlementdomain.CheckoutSession) ([]notificationdomain.LineItem, []string, error) {
	fallback := splitCourseIDs(session.Metadata[gateway.MetaCourseIDs])

	lines, err := s.gateway.ListSessionLineItems(ctx, session.ID)
	if err != nil {
		return nil, fallback, err
	}

	items := make([]notificationdomain.LineItem, 0, len(lines))
	var fromCatalog []string
	var errs []error
	for _, line := range lines {
		items = append(items, notificationdomain.LineItem{
			Description: line.Description,
			Quantity:    line.Quantity,
			Amount:      line.AmountTotal,
		})
		ids, err := s.catalogCourses(ctx, line.PriceID, line.ProductID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		fromCatalog = append(fromCatalog, ids...)
	}

	courseIDs := mergeCourseIDs(fromCatalog, fallback)
	if len(errs) > 0 {
		return items, courseIDs, errors.Join(errs...)
	}
	if len(courseIDs) == 0 {
		return items, courseIDs, errNoCourses
	}
	return items, courseIDs, nil
}

// catalogCourses reads courseIds from the price, then from its product.
func (s *Service) catalogCourses(ctx context.Context, priceID, productID string) ([]string, error) {
	if priceID != "" {
		price, err := s.gateway.GetPrice(ctx, priceID)
		if err != nil {
			return nil, err
		}
		if ids := splitCourseIDs(price.Metadata[gateway.MetaCourseIDs]); len(ids) > 0 {
			return ids, nil
		}
		if productID == "" {
			productID = price.ProductID
		}
	}
	if productID == "" {
		return nil, nil
	}
	product, err := s.gateway.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	return splitCourseIDs(product.Metadata[gateway.MetaCourseIDs]), nil
}

func summarizeDiscount(session entitlementdomain.CheckoutSession) (*purchasedomain.DiscountDetails, error) {
	if session.AmountDiscount < 0 {
		return nil, errors.New("negative discount amount")
	}
	if session.AmountDiscount == 0 && len(session.Discounts) == 0 {
		return nil, nil
	}
	out := &purchasedomain.DiscountDetails{Amount: session.AmountDiscount, Automatic: true}
	for _, d := range session.Discounts {
		if d.PromotionCode != "" {
			out.PromotionCode = d.PromotionCode
			out.Automatic = false
		}
		if out.CouponID == "" {
			out.CouponID = d.CouponID
		}
		if out.PercentOff == 0 {
			out.PercentOff = d.PercentOff
		}
	}
	return out, nil
}

func toKeyAddress(a *gateway.Address) *productkeydomain.Address {
	if a == nil {
		return nil
	}
	return &productkeydomain.Address{
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		PostalCode: a.PostalCode,
		State:      a.State,
		Country:    a.Country,
	}
}
