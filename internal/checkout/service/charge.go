package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/smallbiznis/coursepay/internal/apperror"
	checkoutdomain "github.com/smallbiznis/coursepay/internal/checkout/domain"
	"github.com/smallbiznis/coursepay/internal/gateway"
)

func validateCharge(req checkoutdomain.ChargeRequest) error {
	var fields []string
	if req.Amount <= 0 {
		fields = append(fields, "amount")
	}
	if strings.TrimSpace(req.CustomerID) == "" {
		fields = append(fields, "customer")
	}
	if strings.TrimSpace(req.PaymentMethodID) == "" {
		fields = append(fields, "payment_method")
	}
	if len(fields) > 0 {
		return apperror.NewValidationError("missing or invalid charge fields", fields...)
	}
	return nil
}

// CreateChargeAttempt charges net+VAT in manual capture mode and prepares a
// draft invoice that is only finalized after capture.
func (s *Service) CreateChargeAttempt(ctx context.Context, req checkoutdomain.ChargeRequest) (*checkoutdomain.ChargeResult, error) {
	if err := validateCharge(req); err != nil {
		return nil, err
	}

	breakdown, err := s.tax.Breakdown(req.Amount, req.Country)
	if err != nil {
		return nil, apperror.NewValidationError(err.Error(), "amount")
	}

	opID := newOperationID("charge")
	metadata := map[string]string{
		gateway.MetaVATRate:        breakdown.Rate.String(),
		gateway.MetaVATAmount:      strconv.FormatInt(breakdown.VAT, 10),
		gateway.MetaOriginalAmount: strconv.FormatInt(breakdown.Net, 10),
		gateway.MetaCountry:        breakdown.Country,
	}
	if req.PriceID != "" {
		metadata[gateway.MetaPriceID] = req.PriceID
	}
	if len(req.CourseIDs) > 0 {
		metadata[gateway.MetaCourseIDs] = strings.Join(req.CourseIDs, ",")
	}

	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = "Kurszugang"
	}

	pi, err := s.gateway.CreateChargeAttempt(ctx, gateway.CreateChargeParams{
		Amount:          breakdown.Gross,
		Currency:        breakdown.Currency,
		CustomerID:      req.CustomerID,
		PaymentMethodID: req.PaymentMethodID,
		Description:     description,
		IdempotencyKey:  idempotencyKey(opID, "pi"),
		Metadata:        metadata,
	})
	if err != nil {
		return nil, err
	}

	invoice, err := s.gateway.CreateInvoice(ctx, gateway.CreateInvoiceParams{
		CustomerID:     req.CustomerID,
		Currency:       breakdown.Currency,
		Description:    description,
		IdempotencyKey: idempotencyKey(opID, "invoice"),
		Metadata: map[string]string{
			gateway.MetaPaymentIntent: pi.ID,
			gateway.MetaVATRate:       breakdown.Rate.String(),
			gateway.MetaCountry:       breakdown.Country,
		},
	})
	if err != nil {
		return nil, err
	}

	err = s.gateway.AddInvoiceItem(ctx, gateway.InvoiceItemParams{
		CustomerID: req.CustomerID,
		InvoiceID:  invoice.ID,
		Currency:   breakdown.Currency,
		Amount:     breakdown.Gross,
		Description: fmt.Sprintf("%s (netto %s, inkl. %s%% USt. %s)",
			description,
			minorToString(breakdown.Net),
			breakdown.RatePercent(),
			minorToString(breakdown.VAT),
		),
		IdempotencyKey: idempotencyKey(opID, "item"),
		Metadata: map[string]string{
			gateway.MetaOriginalAmount: strconv.FormatInt(breakdown.Net, 10),
			gateway.MetaVATAmount:      strconv.FormatInt(breakdown.VAT, 10),
		},
	})
	if err != nil {
		return nil, err
	}

	if err := s.gateway.UpdateChargeMetadata(ctx, pi.ID, map[string]string{gateway.MetaInvoiceID: invoice.ID}); err != nil {
		return nil, err
	}

	s.log.Info("charge attempt created",
		zap.String("payment_intent_id", pi.ID),
		zap.String("invoice_id", invoice.ID),
		zap.String("status", string(pi.Status)),
		zap.Int64("amount", breakdown.Gross),
		zap.Bool("vat_fallback", breakdown.Fallback),
	)

	return &checkoutdomain.ChargeResult{
		PaymentIntentID: pi.ID,
		ClientSecret:    pi.ClientSecret,
		InvoiceID:       invoice.ID,
		Status:          pi.Status,
		Amount:          breakdown.Gross,
		Currency:        breakdown.Currency,
		NetAmount:       breakdown.Net,
		VATAmount:       breakdown.VAT,
		VATRate:         breakdown.Rate.String(),
	}, nil
}

// CaptureChargeAttempt captures an authorized charge. The linked invoice is
// finalized and paid only once the capture has succeeded.
func (s *Service) CaptureChargeAttempt(ctx context.Context, id string) (*checkoutdomain.ChargeResult, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperror.NewValidationError("payment intent id is required", "id")
	}

	pi, err := s.gateway.GetChargeAttempt(ctx, id)
	if err != nil {
		return nil, err
	}
	if pi.Status != gateway.ChargeRequiresCapture {
		return nil, fmt.Errorf("%w: status %s", checkoutdomain.ErrNotCapturable, pi.Status)
	}

	captured, err := s.gateway.CaptureChargeAttempt(ctx, id)
	if err != nil {
		return nil, err
	}
	result := chargeResult(captured)
	if captured.Status != gateway.ChargeSucceeded || captured.InvoiceID == "" {
		return result, nil
	}

	invoice, err := s.gateway.GetInvoice(ctx, captured.InvoiceID)
	if err != nil {
		return nil, err
	}
	if invoice.Status == gateway.InvoiceDraft {
		if invoice, err = s.gateway.FinalizeInvoice(ctx, invoice.ID); err != nil {
			return nil, err
		}
	}
	if invoice.Status == gateway.InvoiceOpen {
		if invoice, err = s.gateway.PayInvoice(ctx, invoice.ID); err != nil {
			return nil, err
		}
	}

	s.log.Info("charge captured",
		zap.String("payment_intent_id", captured.ID),
		zap.String("invoice_id", invoice.ID),
		zap.String("invoice_status", string(invoice.Status)),
	)
	return result, nil
}

func (s *Service) RetryChargeAttempt(ctx context.Context, id string) (*checkoutdomain.ChargeResult, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperror.NewValidationError("payment intent id is required", "id")
	}
	pi, err := s.gateway.GetChargeAttempt(ctx, id)
	if err != nil {
		return nil, err
	}
	switch pi.Status {
	case gateway.ChargeRequiresAction, gateway.ChargeRequiresPaymentMethod, gateway.ChargeRequiresConfirmation:
	default:
		return nil, fmt.Errorf("%w: status %s", checkoutdomain.ErrNotRetryable, pi.Status)
	}

	confirmed, err := s.gateway.ConfirmChargeAttempt(ctx, id)
	if err != nil {
		return nil, err
	}
	return chargeResult(confirmed), nil
}

func (s *Service) GetChargeAttempt(ctx context.Context, id string) (*checkoutdomain.ChargeResult, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperror.NewValidationError("payment intent id is required", "id")
	}
	pi, err := s.gateway.GetChargeAttempt(ctx, id)
	if err != nil {
		return nil, err
	}
	return chargeResult(pi), nil
}

func chargeResult(pi *gateway.ChargeAttempt) *checkoutdomain.ChargeResult {
	out := &checkoutdomain.ChargeResult{
		PaymentIntentID: pi.ID,
		ClientSecret:    pi.ClientSecret,
		InvoiceID:       pi.InvoiceID,
		Status:          pi.Status,
		Amount:          pi.Amount,
		Currency:        pi.Currency,
		VATRate:         pi.Metadata[gateway.MetaVATRate],
	}
	if v, err := strconv.ParseInt(pi.Metadata[gateway.MetaOriginalAmount], 10, 64); err == nil {
		out.NetAmount = v
	}
	if v, err := strconv.ParseInt(pi.Metadata[gateway.MetaVATAmount], 10, 64); err == nil {
		out.VATAmount = v
	}
	return out
}

func minorToString(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}
