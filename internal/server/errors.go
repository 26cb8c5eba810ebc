package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/smallbiznis/coursepay/internal/apperror"
	checkoutdomain "github.com/smallbiznis/coursepay/internal/checkout/domain"
	gracedomain "github.com/smallbiznis/coursepay/internal/grace/domain"
	productkeydomain "github.com/smallbiznis/coursepay/internal/productkey/domain"
	purchasedomain "github.com/smallbiznis/coursepay/internal/purchase/domain"
	subscriptiondomain "github.com/smallbiznis/coursepay/internal/subscription/domain"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Code    string            `json:"code,omitempty"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrNotFound        = errors.New("not_found")
	ErrInvalidRequest  = errors.New("invalid_request")
	ErrPayloadTooLarge = errors.New("payload_too_large")
	ErrInternal        = errors.New("internal_error")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "Ungültige Anfrage")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

// classifyErrorForLog feeds the request logger with the mapped type.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	return payload.Type, err.Error()
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "Interner Serverfehler",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "Ungültige Anfrage",
			Errors:  vErr.Errors,
		}
	}

	var appValidation *apperror.ValidationError
	if errors.As(err, &appValidation) {
		payload := errorPayload{Type: "validation_error", Message: "Ungültige Anfrage"}
		for _, field := range appValidation.Fields {
			payload.Errors = append(payload.Errors, ValidationError{
				Field:   field,
				Code:    "required",
				Message: "Pflichtfeld fehlt oder ist ungültig",
			})
		}
		return http.StatusBadRequest, payload
	}

	var gatewayErr *apperror.GatewayError
	if errors.As(err, &gatewayErr) {
		return mapGatewayError(gatewayErr)
	}

	var transportErr *apperror.TransportError
	if errors.As(err, &transportErr) {
		return http.StatusBadGateway, errorPayload{
			Type:    "transport_error",
			Message: "Die E-Mail konnte nicht versendet werden",
		}
	}

	switch {
	case apperror.IsSignature(err):
		return http.StatusBadRequest, errorPayload{
			Type:    "signature_error",
			Message: "Ungültige Webhook-Signatur",
		}
	case errors.Is(err, ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge, errorPayload{
			Type:    "payload_too_large",
			Message: "Anfrage ist zu groß",
		}
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "Ungültige Anfrage",
		}
	case errors.Is(err, checkoutdomain.ErrNotCapturable):
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_state",
			Message: "Die Zahlung kann in diesem Status nicht erfasst werden",
		}
	case errors.Is(err, checkoutdomain.ErrNotRetryable):
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_state",
			Message: "Die Zahlung kann in diesem Status nicht wiederholt werden",
		}
	case errors.Is(err, checkoutdomain.ErrPriceInactive):
		return http.StatusBadRequest, errorPayload{
			Type:    "price_inactive",
			Message: "Dieser Preis ist nicht mehr verfügbar",
		}
	case errors.Is(err, productkeydomain.ErrInvalidKey),
		errors.Is(err, productkeydomain.ErrConsentRequired),
		errors.Is(err, subscriptiondomain.ErrInvalidID),
		errors.Is(err, purchasedomain.ErrInvalidID):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: validationMessage(err),
		}
	case errors.Is(err, productkeydomain.ErrAlreadyRedeemed):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "Der Produktschlüssel wurde bereits eingelöst",
		}
	case errors.Is(err, productkeydomain.ErrRevoked):
		return http.StatusGone, errorPayload{
			Type:    "revoked",
			Message: "Der Produktschlüssel wurde widerrufen",
		}
	case errors.Is(err, gracedomain.ErrNoReminderDue):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "Derzeit ist keine Erinnerung fällig",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "Nicht gefunden",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "Interner Serverfehler",
		}
	}
}

// mapGatewayError answers every gateway rejection with 400 and the gateway's
// error code; only the message varies with the upstream status.
func mapGatewayError(err *apperror.GatewayError) (int, errorPayload) {
	payload := errorPayload{Type: "gateway_error", Code: err.Code}
	switch {
	case err.StatusCode == http.StatusPaymentRequired:
		payload.Type = "payment_declined"
		payload.Message = "Die Zahlung wurde abgelehnt"
	case err.StatusCode == http.StatusNotFound:
		payload.Message = "Der Vorgang wurde beim Zahlungsanbieter nicht gefunden"
	case err.StatusCode >= 400 && err.StatusCode < 500:
		payload.Message = "Die Anfrage wurde vom Zahlungsanbieter abgelehnt"
	default:
		payload.Message = "Der Zahlungsanbieter ist derzeit nicht erreichbar"
	}
	return http.StatusBadRequest, payload
}

func validationMessage(err error) string {
	switch {
	case errors.Is(err, productkeydomain.ErrConsentRequired):
		return "Bitte stimmen Sie den Nutzungsbedingungen zu"
	case errors.Is(err, productkeydomain.ErrInvalidKey):
		return "Ungültiger Produktschlüssel"
	default:
		return "Ungültige Anfrage"
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, productkeydomain.ErrNotFound),
		errors.Is(err, subscriptiondomain.ErrNotFound),
		errors.Is(err, purchasedomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}
