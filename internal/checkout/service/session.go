package service

import (
	"context"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/smallbiznis/coursepay/internal/apperror"
	checkoutdomain "github.com/smallbiznis/coursepay/internal/checkout/domain"
	"github.com/smallbiznis/coursepay/internal/gateway"
)

// CreateCheckoutSession opens a hosted checkout for one price. Recurring
// prices open a subscription session whose first invoice is collected
// immediately.
func (s *Service) CreateCheckoutSession(ctx context.Context, req checkoutdomain.CheckoutRequest) (*checkoutdomain.CheckoutResult, error) {
	var fields []string
	if strings.TrimSpace(req.PriceID) == "" {
		fields = append(fields, "priceId")
	}
	if strings.TrimSpace(req.Customer.ID) == "" && strings.TrimSpace(req.Customer.Email) == "" {
		fields = append(fields, "customerData.email")
	}
	if len(fields) > 0 {
		return nil, apperror.NewValidationError("missing checkout fields", fields...)
	}

	price, err := s.getPrice(ctx, req.PriceID)
	if err != nil {
		return nil, err
	}
	if !price.Active {
		return nil, checkoutdomain.ErrPriceInactive
	}

	customer, err := s.resolveCustomer(ctx, req.Customer)
	if err != nil {
		return nil, err
	}

	country := req.Customer.Country
	if country == "" && req.Customer.Address != nil {
		country = req.Customer.Address.Country
	}
	breakdown, err := s.tax.Breakdown(price.UnitAmount, country)
	if err != nil {
		return nil, apperror.NewValidationError(err.Error(), "priceId")
	}

	metadata := map[string]string{
		gateway.MetaPriceID:        price.ID,
		gateway.MetaCountry:        breakdown.Country,
		gateway.MetaVATRate:        breakdown.Rate.String(),
		gateway.MetaVATAmount:      strconv.FormatInt(breakdown.VAT, 10),
		gateway.MetaOriginalAmount: strconv.FormatInt(breakdown.Net, 10),
		gateway.MetaCustomerEmail:  customer.Email,
		gateway.MetaPartnerOptIn:   strconv.FormatBool(req.PartnerOptIn),
	}
	if courses := price.Metadata[gateway.MetaCourseIDs]; courses != "" {
		metadata[gateway.MetaCourseIDs] = courses
	}

	params := gateway.CreateCheckoutParams{
		Mode:                gateway.ModePayment,
		CustomerID:          customer.ID,
		PriceID:             price.ID,
		Quantity:            req.Quantity,
		SuccessURL:          firstNonEmpty(req.SuccessURL, s.successURL),
		CancelURL:           firstNonEmpty(req.CancelURL, s.cancelURL),
		AllowPromotionCodes: true,
		IdempotencyKey:      newOperationID("checkout"),
		Metadata:            metadata,
	}
	if price.Recurring {
		params.Mode = gateway.ModeSubscription
		trialEnd := s.clock.Now()
		params.TrialEnd = &trialEnd
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, params)
	if err != nil {
		return nil, err
	}

	s.log.Info("checkout session created",
		zap.String("session_id", session.ID),
		zap.String("mode", string(params.Mode)),
		zap.String("price_id", price.ID),
		zap.String("customer_id", customer.ID),
	)
	return &checkoutdomain.CheckoutResult{SessionID: session.ID, URL: session.URL}, nil
}

func (s *Service) resolveCustomer(ctx context.Context, data checkoutdomain.CustomerData) (*gateway.Customer, error) {
	if id := strings.TrimSpace(data.ID); id != "" {
		return s.gateway.GetCustomer(ctx, id)
	}

	email := strings.ToLower(strings.TrimSpace(data.Email))
	existing, err := s.gateway.FindCustomerByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	return s.gateway.CreateCustomer(ctx, gateway.CreateCustomerParams{
		Email:          email,
		Name:           strings.TrimSpace(data.Name),
		Phone:          strings.TrimSpace(data.Phone),
		Address:        data.Address,
		IdempotencyKey: newOperationID("customer"),
	})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
