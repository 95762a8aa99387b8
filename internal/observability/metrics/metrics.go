package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

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
	gateAllowed          metric.Int64Counter
	gateDenied           metric.Int64Counter
	lifecycleTransitions metric.Int64Counter
	planApplications     metric.Int64Counter
	rateLimitDenied      metric.Int64Counter
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
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "hirelens"
	}
	meter := provider.Meter(name)

	gateAllowed, err := meter.Int64Counter("hirelens_gate_allowed_total")
	if err != nil {
		return nil, err
	}
	gateDenied, err := meter.Int64Counter("hirelens_gate_denied_total")
	if err != nil {
		return nil, err
	}
	lifecycleTransitions, err := meter.Int64Counter("hirelens_lifecycle_transitions_total")
	if err != nil {
		return nil, err
	}
	planApplications, err := meter.Int64Counter("hirelens_plan_applications_total")
	if err != nil {
		return nil, err
	}
	rateLimitDenied, err := meter.Int64Counter("hirelens_rate_limit_denied_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		gateAllowed:          gateAllowed,
		gateDenied:           gateDenied,
		lifecycleTransitions: lifecycleTransitions,
		planApplications:     planApplications,
		rateLimitDenied:      rateLimitDenied,
	}, nil
}

// RecordGateAllowed increments allowed gate verdicts.
func (m *Metrics) RecordGateAllowed(ctx context.Context, feature string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("feature_key", strings.TrimSpace(feature)))
	m.gateAllowed.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordGateDenied increments denied gate verdicts.
func (m *Metrics) RecordGateDenied(ctx context.Context, feature, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("feature_key", strings.TrimSpace(feature)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.gateDenied.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordLifecycleTransition increments lifecycle transition counts.
func (m *Metrics) RecordLifecycleTransition(ctx context.Context, from, to, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("from_status", strings.TrimSpace(from)),
		attribute.String("to_status", strings.TrimSpace(to)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.lifecycleTransitions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordPlanApplication increments entitlement plan application counts.
func (m *Metrics) RecordPlanApplication(ctx context.Context, tier string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("org_tier", strings.TrimSpace(tier)))
	m.planApplications.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRateLimitDenied increments throttled request counts.
func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("endpoint", strings.TrimSpace(endpoint)))
	m.rateLimitDenied.Add(ctx, 1, metric.WithAttributes(attrs...))
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
	"org_tier":    {},
	"feature_key": {},
	"reason":      {},
	"from_status": {},
	"to_status":   {},
	"endpoint":    {},
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
