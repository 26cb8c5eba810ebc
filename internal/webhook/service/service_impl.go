package service

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/coursepay/internal/apperror"
	"github.com/smallbiznis/coursepay/internal/clock"
	"github.com/smallbiznis/coursepay/internal/config"
	entitlementdomain "github.com/smallbiznis/coursepay/internal/entitlement/domain"
	"github.com/smallbiznis/coursepay/internal/errorlog"
	gracedomain "github.com/smallbiznis/coursepay/internal/grace/domain"
	obscontext "github.com/smallbiznis/coursepay/internal/observability/context"
	"github.com/smallbiznis/coursepay/internal/observability/logger"
	"github.com/smallbiznis/coursepay/internal/observability/metrics"
	productkeydomain "github.com/smallbiznis/coursepay/internal/productkey/domain"
	purchasedomain "github.com/smallbiznis/coursepay/internal/purchase/domain"
	subscriptiondomain "github.com/smallbiznis/coursepay/internal/subscription/domain"
	webhookdomain "github.com/smallbiznis/coursepay/internal/webhook/domain"
)

const (
	outcomeProcessed = "processed"
	outcomeIgnored   = "ignored"
	outcomeFailed    = "failed"
)

// HandlerFunc reacts to one verified event.
type HandlerFunc func(ctx context.Context, evt *webhookdomain.Event) error

type Params struct {
	fx.In

	Config        config.Config
	Log           *zap.Logger
	Purchases     purchasedomain.Store
	Provisioner   entitlementdomain.Provisioner
	Grace         gracedomain.Manager
	Subscriptions subscriptiondomain.Store
	ProductKeys   productkeydomain.Service
	Errors        errorlog.Recorder
	Clock         clock.Clock
	Metrics       *metrics.Metrics `optional:"true"`
}

type Service struct {
	log           *zap.Logger
	receiver      *Receiver
	purchases     purchasedomain.Store
	provisioner   entitlementdomain.Provisioner
	grace         gracedomain.Manager
	subscriptions subscriptiondomain.Store
	productKeys   productkeydomain.Service
	errors        errorlog.Recorder
	clock         clock.Clock
	metrics       *metrics.Metrics
	handlers      map[webhookdomain.Kind]HandlerFunc
}

func NewService(p Params) webhookdomain.Service {
	return New(p)
}

func New(p Params) *Service {
	s := &Service{
		log:           p.Log.Named("webhook"),
		receiver:      NewReceiver(p.Config.Stripe.WebhookSecret),
		purchases:     p.Purchases,
		provisioner:   p.Provisioner,
		grace:         p.Grace,
		subscriptions: p.Subscriptions,
		productKeys:   p.ProductKeys,
		errors:        p.Errors,
		clock:         p.Clock,
		metrics:       p.Metrics,
	}
	s.handlers = map[webhookdomain.Kind]HandlerFunc{
		webhookdomain.KindPaymentIntentCreated:        on(s.paymentIntentPending),
		webhookdomain.KindPaymentIntentRequiresAction: on(s.paymentIntentPending),
		webhookdomain.KindPaymentIntentSucceeded:      on(s.paymentIntentSucceeded),
		webhookdomain.KindPaymentIntentFailed:         on(s.paymentIntentFailed),
		webhookdomain.KindCheckoutSessionCompleted:    on(s.checkoutSessionCompleted),
		webhookdomain.KindInvoicePaymentSucceeded:     on(s.invoicePaymentSucceeded),
		webhookdomain.KindInvoicePaymentFailed:        on(s.invoicePaymentFailed),
		webhookdomain.KindSubscriptionCreated:         on(s.subscriptionChanged),
		webhookdomain.KindSubscriptionUpdated:         on(s.subscriptionChanged),
		webhookdomain.KindSubscriptionDeleted:         on(s.subscriptionDeleted),
	}
	return s
}

// on adapts a typed handler by decoding the event's data object into T.
func on[T any](fn func(ctx context.Context, evt *webhookdomain.Event, obj T) error) HandlerFunc {
	return func(ctx context.Context, evt *webhookdomain.Event) error {
		var obj T
		if err := json.Unmarshal(evt.Raw, &obj); err != nil {
			return fmt.Errorf("decode %s: %w", evt.Type, err)
		}
		return fn(ctx, evt, obj)
	}
}

func (s *Service) Ingest(ctx context.Context, payload []byte, signature string) (*webhookdomain.Ack, error) {
	evt, err := s.receiver.Receive(payload, signature)
	if err != nil {
		s.log.Warn("webhook rejected", zap.Error(err))
		s.metrics.RecordWebhookEvent(ctx, "unverified", "rejected")
		return nil, err
	}
	s.Dispatch(ctx, evt)
	return &webhookdomain.Ack{Received: true, EventID: evt.ID, Kind: evt.Kind}, nil
}

// Dispatch runs the handler registered for evt.Kind. Failures are recorded
// to the error log and never returned.
func (s *Service) Dispatch(ctx context.Context, evt *webhookdomain.Event) {
	ctx = obscontext.WithSourceID(ctx, evt.ID)
	ctx, span := otel.Tracer("coursepay/webhook").Start(ctx, "webhook "+evt.Type)
	defer span.End()
	span.SetAttributes(attribute.String("event.id", evt.ID), attribute.String("event.kind", string(evt.Kind)))

	log := logger.WithContext(ctx, s.log).With(zap.String("event_type", evt.Type))

	handler, ok := s.handlers[evt.Kind]
	if !ok {
		log.Info("ignoring unhandled webhook event")
		s.metrics.RecordWebhookEvent(ctx, evt.Type, outcomeIgnored)
		return
	}

	if err := handler(ctx, evt); err != nil {
		rerr := &apperror.ReconciliationError{Step: string(evt.Kind), SourceID: evt.ID, Err: err}
		s.errors.Record(ctx, errorlog.TypeOf(rerr), evt.ID, rerr)
		s.metrics.RecordWebhookEvent(ctx, evt.Type, outcomeFailed)
		span.SetStatus(codes.Error, "handler failed")
		log.Error("webhook handler failed", zap.Error(err))
		return
	}
	s.metrics.RecordWebhookEvent(ctx, evt.Type, outcomeProcessed)
	log.Debug("webhook event processed")
}
