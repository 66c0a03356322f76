package observe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ProviderConfig describes how the process reports telemetry.
type ProviderConfig struct {
	// ServiceName defaults to "tandembuddy".
	ServiceName    string
	ServiceVersion string

	// Environment is reported as deployment.environment when set.
	Environment string

	// SampleRatio is the fraction of new traces kept. Values outside (0, 1)
	// keep every trace. Child spans follow their parent's decision.
	SampleRatio float64

	// SpanExporter receives finished spans. When nil, spans still drive
	// trace_id/span_id log enrichment but are not exported anywhere.
	SpanExporter sdktrace.SpanExporter
}

// InitProvider installs the global meter provider, backed by the Prometheus
// exporter served on /metrics, and the global tracer provider. The returned
// function flushes and stops both.
func InitProvider(ctx context.Context, cfg ProviderConfig) (shutdown func(context.Context) error, err error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "tandembuddy"
	}
	attrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	}
	if cfg.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironment(cfg.Environment))
	}
	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(semconv.SchemaURL, attrs...))
	if err != nil {
		return nil, fmt.Errorf("observe: build resource: %w", err)
	}

	prom, err := promexporter.New()
	if err != nil {
		return nil, fmt.Errorf("observe: prometheus exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(prom))

	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.SampleRatio)),
	}
	if cfg.SpanExporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(cfg.SpanExporter))
	}
	tp := sdktrace.NewTracerProvider(tpOpts...)

	otel.SetMeterProvider(mp)
	otel.SetTracerProvider(tp)

	return func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}, nil
}

func sampler(ratio float64) sdktrace.Sampler {
	if ratio <= 0 || ratio >= 1 {
		return sdktrace.AlwaysSample()
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}

// SpanLogger is a span exporter that writes each finished span as one
// debug record. It gives a deployment without a tracing backend a way to
// see per-stage turn latency in its logs.
type SpanLogger struct {
	log *slog.Logger

	mu      sync.Mutex
	stopped bool
}

var _ sdktrace.SpanExporter = (*SpanLogger)(nil)

// NewSpanLogger returns a SpanLogger writing to l, or to the default logger
// when l is nil.
func NewSpanLogger(l *slog.Logger) *SpanLogger {
	if l == nil {
		l = slog.Default()
	}
	return &SpanLogger{log: l}
}

// ExportSpans implements [sdktrace.SpanExporter].
func (e *SpanLogger) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	e.mu.Lock()
	stopped := e.stopped
	e.mu.Unlock()
	if stopped {
		return nil
	}
	for _, s := range spans {
		args := []any{
			"span", s.Name(),
			"trace_id", s.SpanContext().TraceID().String(),
			"span_id", s.SpanContext().SpanID().String(),
			"duration", s.EndTime().Sub(s.StartTime()),
		}
		if st := s.Status(); st.Code == codes.Error {
			args = append(args, "err", st.Description)
		}
		for _, kv := range s.Attributes() {
			args = append(args, string(kv.Key), kv.Value.Emit())
		}
		e.log.DebugContext(ctx, "span finished", args...)
	}
	return nil
}

// Shutdown implements [sdktrace.SpanExporter]. Later exports are dropped.
func (e *SpanLogger) Shutdown(context.Context) error {
	e.mu.Lock()
	e.stopped = true
	e.mu.Unlock()
	return nil
}
