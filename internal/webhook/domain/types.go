package domain

import (
	"context"
	"encoding/json"
)

// Kind is the closed set of gateway events the service reacts to.
type Kind string

const (
	KindPaymentIntentCreated        Kind = "payment_intent.created"
	KindPaymentIntentRequiresAction Kind = "payment_intent.requires_action"
	KindPaymentIntentSucceeded      Kind = "payment_intent.succeeded"
	KindPaymentIntentFailed         Kind = "payment_intent.payment_failed"
	KindCheckoutSessionCompleted    Kind = "checkout.session.completed"
	KindInvoicePaymentSucceeded     Kind = "invoice.payment_succeeded"
	KindInvoicePaymentFailed        Kind = "invoice.payment_failed"
	KindSubscriptionCreated         Kind = "customer.subscription.created"
	KindSubscriptionUpdated         Kind = "customer.subscription.updated"
	KindSubscriptionDeleted         Kind = "customer.subscription.deleted"

	KindUnrecognized Kind = "unrecognized"
)

var knownKinds = map[Kind]struct{}{
	KindPaymentIntentCreated:        {},
	KindPaymentIntentRequiresAction: {},
	KindPaymentIntentSucceeded:      {},
	KindPaymentIntentFailed:         {},
	KindCheckoutSessionCompleted:    {},
	KindInvoicePaymentSucceeded:     {},
	KindInvoicePaymentFailed:        {},
	KindSubscriptionCreated:         {},
	KindSubscriptionUpdated:         {},
	KindSubscriptionDeleted:         {},
}

// ParseKind maps a gateway event type onto a Kind.
func ParseKind(eventType string) Kind {
	kind := Kind(eventType)
	if _, ok := knownKinds[kind]; ok {
		return kind
	}
	return KindUnrecognized
}

// Event is a verified gateway event. Raw holds the data.object payload;
// Type keeps the gateway's type string for unrecognized kinds.
type Event struct {
	ID   string
	Type string
	Kind Kind
	Raw  json.RawMessage
}

type Ack struct {
	Received bool   `json:"received"`
	EventID  string `json:"-"`
	Kind     Kind   `json:"-"`
}

type Service interface {
	// Ingest verifies and dispatches a webhook delivery. Only signature
	// failures are returned; handler failures are recorded and acknowledged.
	Ingest(ctx context.Context, payload []byte, signature string) (*Ack, error)
}
