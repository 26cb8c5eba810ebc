package domain

import (
	"encoding/json"
	"fmt"
	"strings"

	"gorm.io/datatypes"
)

// Input is the loosely populated purchase data gathered from gateway
// events. Any field may be missing.
type Input struct {
	ID            string
	CustomerID    string
	CustomerEmail string
	AmountPaid    *int64
	Currency      string
	PaymentStatus string
	PaymentType   PaymentType
	Metadata      map[string]any
	Discount      *DiscountDetails
	Tax           *TaxDetails
}

// Sanitize normalizes in into a storable Record. Every field receives a
// default so the document store never sees an undefined value: strings are
// trimmed, numbers default to zero, nested metadata is deep-copied with nil
// leaves kept as JSON null, and absent discount or tax details stay NULL.
func Sanitize(in Input) (Record, error) {
	var amount int64
	if in.AmountPaid != nil {
		amount = *in.AmountPaid
	}

	paymentType := in.PaymentType
	if paymentType != PaymentTypeSubscription {
		paymentType = PaymentTypeOneTime
	}

	status := strings.ToLower(strings.TrimSpace(in.PaymentStatus))
	if status == "" {
		status = StatusPending
	}

	metadata, err := json.Marshal(sanitizeMap(in.Metadata))
	if err != nil {
		return Record{}, fmt.Errorf("encode metadata: %w", err)
	}

	record := Record{
		SessionOrIntentID: strings.TrimSpace(in.ID),
		CustomerID:        strings.TrimSpace(in.CustomerID),
		CustomerEmail:     strings.ToLower(strings.TrimSpace(in.CustomerEmail)),
		AmountPaid:        amount,
		Currency:          strings.ToUpper(strings.TrimSpace(in.Currency)),
		PaymentStatus:     status,
		PaymentType:       paymentType,
		Metadata:          datatypes.JSON(metadata),
	}

	if in.Discount != nil {
		discount := *in.Discount
		discount.PromotionCode = strings.TrimSpace(discount.PromotionCode)
		discount.CouponID = strings.TrimSpace(discount.CouponID)
		raw, err := json.Marshal(discount)
		if err != nil {
			return Record{}, fmt.Errorf("encode discount: %w", err)
		}
		record.DiscountDetails = datatypes.JSON(raw)
	}
	if in.Tax != nil {
		tax := *in.Tax
		tax.Country = strings.ToUpper(strings.TrimSpace(tax.Country))
		tax.Currency = strings.ToUpper(strings.TrimSpace(tax.Currency))
		if tax.Rate == "" {
			tax.Rate = "0"
		}
		raw, err := json.Marshal(tax)
		if err != nil {
			return Record{}, fmt.Errorf("encode tax: %w", err)
		}
		record.TaxDetails = datatypes.JSON(raw)
	}

	return record, nil
}

func sanitizeMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		out[k] = sanitizeValue(v)
	}
	return out
}

func sanitizeValue(v any) any {
	switch value := v.(type) {
	case nil:
		return nil
	case string:
		return strings.TrimSpace(value)
	case map[string]any:
		return sanitizeMap(value)
	case map[string]string:
		out := make(map[string]any, len(value))
		for k, s := range value {
			out[k] = strings.TrimSpace(s)
		}
		return out
	case []any:
		out := make([]any, len(value))
		for i, item := range value {
			out[i] = sanitizeValue(item)
		}
		return out
	case []string:
		out := make([]any, len(value))
		for i, item := range value {
			out[i] = strings.TrimSpace(item)
		}
		return out
	case *string:
		if value == nil {
			return nil
		}
		return strings.TrimSpace(*value)
	case *int64:
		if value == nil {
			return int64(0)
		}
		return *value
	case bool, int, int32, int64, float32, float64, json.Number:
		return value
	default:
		return fmt.Sprint(value)
	}
}
