package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeDefaultsEveryField(t *testing.T) {
	record, err := Sanitize(Input{ID: " cs_1 "})
	require.NoError(t, err)

	assert.Equal(t, "cs_1", record.SessionOrIntentID)
	assert.Zero(t, record.AmountPaid)
	assert.Equal(t, StatusPending, record.PaymentStatus)
	assert.Equal(t, PaymentTypeOneTime, record.PaymentType)
	assert.JSONEq(t, `{}`, string(record.Metadata))
	assert.Nil(t, record.DiscountDetails)
	assert.Nil(t, record.TaxDetails)
}

func TestSanitizeDeepCopiesMetadata(t *testing.T) {
	var missing *string
	nested := map[string]any{"courseIds": []string{" c1", "c2 "}, "note": nil}
	in := Input{
		ID:            "pi_1",
		CustomerEmail: " Kunde@Example.com ",
		Currency:      "eur",
		PaymentStatus: "Succeeded",
		PaymentType:   PaymentTypeSubscription,
		Metadata: map[string]any{
			"nested":   nested,
			"partner":  true,
			"missing":  missing,
			"count":    3,
			"":         "dropped",
			"labels":   map[string]string{"source": " web "},
			"optional": nil,
		},
	}

	record, err := Sanitize(in)
	require.NoError(t, err)

	assert.Equal(t, "kunde@example.com", record.CustomerEmail)
	assert.Equal(t, "EUR", record.Currency)
	assert.Equal(t, StatusSucceeded, record.PaymentStatus)
	assert.Equal(t, PaymentTypeSubscription, record.PaymentType)
	assert.JSONEq(t, `{
		"nested": {"courseIds": ["c1", "c2"], "note": null},
		"partner": true,
		"missing": null,
		"count": 3,
		"labels": {"source": "web"},
		"optional": null
	}`, string(record.Metadata))

	// mutating the input afterwards must not leak into the record
	nested["note"] = "changed"
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(record.Metadata, &decoded))
	assert.Nil(t, decoded["nested"].(map[string]any)["note"])
}

func TestSanitizeKeepsOptionalDetails(t *testing.T) {
	amount := int64(12000)
	record, err := Sanitize(Input{
		ID:         "cs_2",
		AmountPaid: &amount,
		Discount:   &DiscountDetails{Amount: 500, PromotionCode: " SOMMER "},
		Tax:        &TaxDetails{Country: "at", Net: 10000, VAT: 2000, Gross: 12000, Currency: "eur"},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(12000), record.AmountPaid)
	assert.JSONEq(t, `{"amount":500,"promotionCode":"SOMMER","percentOff":0,"automatic":false}`, string(record.DiscountDetails))
	assert.JSONEq(t, `{"country":"AT","rate":"0","net":10000,"vat":2000,"gross":12000,"currency":"EUR"}`, string(record.TaxDetails))
}
