// Package apperror defines the error taxonomy shared by the checkout,
// webhook and notification paths.
package apperror

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMissingSignature = errors.New("missing_signature")
	ErrMissingSecret    = errors.New("missing_webhook_secret")
)

// ValidationError reports missing or malformed caller input. It is raised
// before any external call is made.
type ValidationError struct {
	Fields  []string
	Message string
}

func NewValidationError(message string, fields ...string) *ValidationError {
	return &ValidationError{Fields: fields, Message: message}
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation_error: " + e.Message
	}
	return fmt.Sprintf("validation_error: %s (%s)", e.Message, strings.Join(e.Fields, ", "))
}

// GatewayError wraps a failure reported by the payment gateway.
type GatewayError struct {
	Op         string
	Code       string
	Message    string
	StatusCode int
	Err        error
}

func (e *GatewayError) Error() string {
	var b strings.Builder
	b.WriteString("stripe api error")
	if e.Op != "" {
		b.WriteString(" [" + e.Op + "]")
	}
	if e.Code != "" {
		b.WriteString(": " + e.Code)
	}
	if e.Message != "" {
		b.WriteString(": " + e.Message)
	}
	return b.String()
}

func (e *GatewayError) Unwrap() error { return e.Err }

// ReconciliationError marks a failed provisioning step for a gateway event.
// It is recorded and acknowledged, never surfaced to the gateway.
type ReconciliationError struct {
	Step     string
	SourceID string
	Err      error
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("reconciliation %s failed for %s: %v", e.Step, e.SourceID, e.Err)
}

func (e *ReconciliationError) Unwrap() error { return e.Err }

// TransportError reports a failed attachment fetch or email delivery.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// SignatureError reports a webhook payload that failed verification.
type SignatureError struct {
	Err error
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("invalid webhook signature: %v", e.Err)
}

func (e *SignatureError) Unwrap() error { return e.Err }

func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func IsGateway(err error) bool {
	var target *GatewayError
	return errors.As(err, &target)
}

func IsSignature(err error) bool {
	var target *SignatureError
	return errors.As(err, &target)
}
