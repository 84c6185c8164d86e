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

// Metrics exposes the engine's domain instruments.
type Metrics struct {
	scoringRuns     metric.Int64Counter
	scoringDuration metric.Float64Histogram
	alertsFired     metric.Int64Counter
	scopeViolations metric.Int64Counter
	heatmapBuilds   metric.Int64Counter
	signalRecords   metric.Int64Counter
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

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "storepulse"
	}
	meter := provider.Meter(name)

	scoringRuns, err := meter.Int64Counter("storepulse_scoring_runs_total")
	if err != nil {
		return nil, err
	}
	scoringDuration, err := meter.Float64Histogram("storepulse_scoring_duration_seconds", metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	alertsFired, err := meter.Int64Counter("storepulse_alerts_fired_total")
	if err != nil {
		return nil, err
	}
	scopeViolations, err := meter.Int64Counter("storepulse_scope_violations_total")
	if err != nil {
		return nil, err
	}
	heatmapBuilds, err := meter.Int64Counter("storepulse_heatmap_builds_total")
	if err != nil {
		return nil, err
	}
	signalRecords, err := meter.Int64Counter("storepulse_signal_records_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		scoringRuns:     scoringRuns,
		scoringDuration: scoringDuration,
		alertsFired:     alertsFired,
		scopeViolations: scopeViolations,
		heatmapBuilds:   heatmapBuilds,
		signalRecords:   signalRecords,
	}, nil
}

// NewNoop returns instruments bound to a noop provider, for tests and tools.
func NewNoop() *Metrics {
	m, _ := New(Config{}, noop.NewMeterProvider())
	return m
}

// RecordScoringRun counts a composite scoring run by outcome
// (written, unchanged, insufficient_data, error).
func (m *Metrics) RecordScoringRun(ctx context.Context, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("outcome", strings.TrimSpace(outcome)))
	m.scoringRuns.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.scoringDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordAlert(ctx context.Context, domain, condition, severity string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("domain", domain),
		attribute.String("condition", condition),
		attribute.String("severity", severity),
	)
	m.alertsFired.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordScopeViolation(ctx context.Context, role, operation string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("role", role),
		attribute.String("operation", operation),
	)
	m.scopeViolations.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordHeatmapBuild(ctx context.Context, domain string, allStores bool) {
	if m == nil {
		return
	}
	scope := "stores"
	if allStores {
		scope = "all"
	}
	attrs := FilterAttributes(
		attribute.String("domain", domain),
		attribute.String("scope", scope),
	)
	m.heatmapBuilds.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordSignal(ctx context.Context, domain string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("domain", domain))
	m.signalRecords.Add(ctx, 1, metric.WithAttributes(attrs...))
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

// Store ids are deliberately absent: they are unbounded.
var allowedLabelKeys = map[attribute.Key]struct{}{
	"outcome":   {},
	"domain":    {},
	"condition": {},
	"severity":  {},
	"role":      {},
	"operation": {},
	"scope":     {},
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
