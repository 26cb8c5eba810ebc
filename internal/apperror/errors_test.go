package apperror

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorClassification(t *testing.T) {
	validation := fmt.Errorf("wrap: %w", NewValidationError("missing", "amount"))
	gateway := fmt.Errorf("wrap: %w", &GatewayError{Op: "payment_intent.create", Code: "card_declined"})
	signature := &SignatureError{Err: ErrMissingSignature}

	assert.True(t, IsValidation(validation))
	assert.False(t, IsValidation(gateway))
	assert.True(t, IsGateway(gateway))
	assert.True(t, IsSignature(signature))
	assert.True(t, errors.Is(signature, ErrMissingSignature))
}

func TestGatewayErrorMessage(t *testing.T) {
	err := &GatewayError{Op: "invoice.pay", Code: "invoice_not_open", Message: "Invoice is not open"}
	assert.Equal(t, "stripe api error [invoice.pay]: invoice_not_open: Invoice is not open", err.Error())
}

func TestReconciliationUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := &ReconciliationError{Step: "issue_key", SourceID: "cs_1", Err: cause}
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "cs_1")
}
