package metrics

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	webhookEvents        metric.Int64Counter
	provisioningFailures metric.Int64Counter
	emails               metric.Int64Counter
	gatewayCalls         metric.Int64Counter
	httpRequests         metric.Int64Counter
	httpDuration         metric.Float64Histogram
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				log.Info("shutting down meter provider")
				return provider.Shutdown(ctx)
			},
		})
	}

	log.Info("metrics initialized",
		zap.String("endpoint", cfg.ExporterEndpoint),
		zap.String("protocol", cfg.ExporterProtocol),
	)
	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "coursepay"
	}
	meter := provider.Meter(name)

	webhookEvents, err := meter.Int64Counter("coursepay_webhook_events_total")
	if err != nil {
		return nil, err
	}
	provisioningFailures, err := meter.Int64Counter("coursepay_provisioning_failures_total")
	if err != nil {
		return nil, err
	}
	emails, err := meter.Int64Counter("coursepay_emails_total")
	if err != nil {
		return nil, err
	}
	gatewayCalls, err := meter.Int64Counter("coursepay_gateway_calls_total")
	if err != nil {
		return nil, err
	}
	httpRequests, err := meter.Int64Counter("coursepay_http_requests_total")
	if err != nil {
		return nil, err
	}
	httpDuration, err := meter.Float64Histogram("coursepay_http_request_duration_seconds", metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		webhookEvents:        webhookEvents,
		provisioningFailures: provisioningFailures,
		emails:               emails,
		gatewayCalls:         gatewayCalls,
		httpRequests:         httpRequests,
		httpDuration:         httpDuration,
	}, nil
}

// RecordWebhookEvent counts an acknowledged gateway event by type and outcome.
func (m *Metrics) RecordWebhookEvent(ctx context.Context, eventType, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("event_type", strings.TrimSpace(eventType)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.webhookEvents.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordProvisioningFailure counts a failed entitlement step.
func (m *Metrics) RecordProvisioningFailure(ctx context.Context, step string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("step", strings.TrimSpace(step)))
	m.provisioningFailures.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordEmail counts sent and failed notification emails.
func (m *Metrics) RecordEmail(ctx context.Context, template, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("template", strings.TrimSpace(template)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.emails.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordGatewayCall counts calls to the payment gateway.
func (m *Metrics) RecordGatewayCall(ctx context.Context, operation string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	attrs := FilterAttributes(
		attribute.String("operation", strings.TrimSpace(operation)),
		attribute.String("outcome", outcome),
	)
	m.gatewayCalls.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// GinMiddleware records request counts and latencies per route.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		attrs := metric.WithAttributes(FilterAttributes(
			attribute.String("route", route),
			attribute.String("status_code", strconv.Itoa(c.Writer.Status())),
		)...)
		ctx := c.Request.Context()
		m.httpRequests.Add(ctx, 1, attrs)
		m.httpDuration.Record(ctx, time.Since(start).Seconds(), attrs)
	}
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"event_type":  {},
	"outcome":     {},
	"step":        {},
	"template":    {},
	"operation":   {},
	"route":       {},
	"status_code": {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
