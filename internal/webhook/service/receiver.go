package service

import (
	"strings"

	stripego "github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"

	"github.com/smallbiznis/coursepay/internal/apperror"
	webhookdomain "github.com/smallbiznis/coursepay/internal/webhook/domain"
)

// Receiver verifies the raw request body against the endpoint secret.
type Receiver struct {
	secret string
}

func NewReceiver(secret string) *Receiver {
	return &Receiver{secret: strings.TrimSpace(secret)}
}

func (r *Receiver) Receive(payload []byte, signature string) (*webhookdomain.Event, error) {
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return nil, &apperror.SignatureError{Err: apperror.ErrMissingSignature}
	}
	if r.secret == "" {
		return nil, &apperror.SignatureError{Err: apperror.ErrMissingSecret}
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, r.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, &apperror.SignatureError{Err: err}
	}
	return toEvent(event), nil
}

func toEvent(event stripego.Event) *webhookdomain.Event {
	out := &webhookdomain.Event{
		ID:   event.ID,
		Type: string(event.Type),
		Kind: webhookdomain.ParseKind(string(event.Type)),
	}
	if event.Data != nil {
		out.Raw = event.Data.Raw
	}
	return out
}
