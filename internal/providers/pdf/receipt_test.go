package pdf

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderReceipt(t *testing.T) {
	r := New(Config{SellerName: "Kursakademie", SellerEmail: "info@example.com"})

	doc, err := r.RenderReceipt(context.Background(), ReceiptData{
		Number:     "cs_test_1",
		DatePaid:   "02.01.2026",
		BillToName: "Erika Muster",
		ProductKey: "HN-abc-ABC123",
		Items:      []ReceiptItem{{Description: "Grundkurs", Qty: 1, Amount: "120,00 EUR"}},
		Net:        "100,00 EUR",
		VATLabel:   "USt. 20%",
		VAT:        "20,00 EUR",
		Total:      "120,00 EUR",
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(doc, []byte("%PDF")))
}

func TestRenderReceiptRequiresItems(t *testing.T) {
	_, err := New(Config{}).RenderReceipt(context.Background(), ReceiptData{})
	assert.ErrorIs(t, err, ErrEmptyReceipt)
}
