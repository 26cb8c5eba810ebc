package stripe

import (
	"errors"

	stripego "github.com/stripe/stripe-go/v81"

	"github.com/smallbiznis/coursepay/internal/apperror"
)

// translateError wraps gateway failures into apperror.GatewayError so the
// HTTP layer can surface the gateway's code and message.
func translateError(op string, err error) error {
	if err == nil {
		return nil
	}
	var stripeErr *stripego.Error
	if errors.As(err, &stripeErr) {
		code := string(stripeErr.Code)
		if code == "" {
			code = string(stripeErr.Type)
		}
		return &apperror.GatewayError{
			Op:         op,
			Code:       code,
			Message:    stripeErr.Msg,
			StatusCode: stripeErr.HTTPStatusCode,
			Err:        err,
		}
	}
	return &apperror.GatewayError{Op: op, Message: err.Error(), Err: err}
}
