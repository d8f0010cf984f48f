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

const defaultExportInterval = 10 * time.Second

type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
	ExportInterval   time.Duration
}

// Metrics exposes sync engine instruments. A nil *Metrics records nothing.
type Metrics struct {
	mutations        metric.Int64Counter
	batches          metric.Int64Counter
	batchSize        metric.Int64Histogram
	numbersAllocated metric.Int64Counter
	quotaDenied      metric.Int64Counter
	rateLimitAllowed metric.Int64Counter
	rateLimitDenied  metric.Int64Counter
}

// NewProvider installs the global meter provider. Without OTLP export the
// provider is a noop and only the Prometheus scheduler registry is served.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, fmt.Errorf("metrics exporter: %w", err)
	}
	interval := cfg.ExportInterval
	if interval <= 0 {
		interval = defaultExportInterval
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
	)
	otel.SetMeterProvider(provider)
	if lc != nil {
		lc.Append(fx.StopHook(provider.Shutdown))
	}

	if log != nil {
		log.Info("otlp metrics enabled",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
			zap.Duration("interval", interval),
		)
	}
	return provider, nil
}

// New builds the sync engine instruments on the given provider.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	b := instrumentBuilder{meter: provider.Meter(serviceName(cfg))}
	m := &Metrics{
		mutations:        b.counter("billbook_sync_mutations_total", "Mutations dispatched by type and outcome."),
		batches:          b.counter("billbook_sync_batches_total", "Sync batches accepted."),
		numbersAllocated: b.counter("billbook_document_numbers_allocated_total", "Document numbers handed out."),
		quotaDenied:      b.counter("billbook_quota_denied_total", "Creates refused by plan quota."),
		rateLimitAllowed: b.counter("billbook_rate_limit_allowed_total", "Batches admitted by the rate limiter."),
		rateLimitDenied:  b.counter("billbook_rate_limit_denied_total", "Batches refused by the rate limiter."),
	}
	m.batchSize = b.histogram("billbook_sync_batch_size", "Mutations per batch.", "{mutation}")
	if b.err != nil {
		return nil, b.err
	}
	return m, nil
}

// instrumentBuilder keeps the first creation error so New can build every
// instrument before checking.
type instrumentBuilder struct {
	meter metric.Meter
	err   error
}

func (b *instrumentBuilder) counter(name, desc string) metric.Int64Counter {
	c, err := b.meter.Int64Counter(name, metric.WithDescription(desc))
	if err != nil && b.err == nil {
		b.err = fmt.Errorf("metrics: %s: %w", name, err)
	}
	return c
}

func (b *instrumentBuilder) histogram(name, desc, unit string) metric.Int64Histogram {
	h, err := b.meter.Int64Histogram(name, metric.WithDescription(desc), metric.WithUnit(unit))
	if err != nil && b.err == nil {
		b.err = fmt.Errorf("metrics: %s: %w", name, err)
	}
	return h
}

func add(ctx context.Context, c metric.Int64Counter, attrs ...attribute.KeyValue) {
	c.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attrs...)...))
}

func label(key, value string) attribute.KeyValue {
	return attribute.String(key, strings.TrimSpace(value))
}

// RecordMutation counts one dispatched mutation. outcome is "success",
// "cached" or an error code.
func (m *Metrics) RecordMutation(ctx context.Context, mutationType, outcome string) {
	if m == nil {
		return
	}
	add(ctx, m.mutations, label("mutation_type", mutationType), label("outcome", outcome))
}

func (m *Metrics) RecordBatch(ctx context.Context, size int) {
	if m == nil {
		return
	}
	add(ctx, m.batches)
	m.batchSize.Record(ctx, int64(size))
}

func (m *Metrics) RecordNumberAllocated(ctx context.Context, documentType string) {
	if m == nil {
		return
	}
	add(ctx, m.numbersAllocated, label("document_type", documentType))
}

func (m *Metrics) RecordQuotaDenied(ctx context.Context, plan string) {
	if m == nil {
		return
	}
	add(ctx, m.quotaDenied, label("plan", plan))
}

func (m *Metrics) RecordRateLimitAllowed(ctx context.Context, orgID, endpoint string) {
	if m == nil {
		return
	}
	add(ctx, m.rateLimitAllowed, label("org_id", orgID), label("endpoint", endpoint))
}

func (m *Metrics) RecordRateLimitDenied(ctx context.Context, orgID, endpoint, reason string) {
	if m == nil {
		return
	}
	add(ctx, m.rateLimitDenied, label("org_id", orgID), label("endpoint", endpoint), label("reason", reason))
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

func serviceName(cfg Config) string {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		return "billbook"
	}
	return name
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"org_id":        {},
	"endpoint":      {},
	"status_code":   {},
	"method":        {},
	"route":         {},
	"mutation_type": {},
	"outcome":       {},
	"document_type": {},
	"plan":          {},
	"reason":        {},
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
