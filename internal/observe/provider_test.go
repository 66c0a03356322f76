package observe

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestSpanLogger_WritesFinishedSpans(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(NewSpanLogger(logger)))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	_, span := tp.Tracer("test").Start(context.Background(), "conversation.turn")
	span.SetAttributes(attribute.Int("turn", 3))
	EndSpan(span, errors.New("synthesize failed"))

	out := buf.String()
	for _, want := range []string{"span finished", "span=conversation.turn", "turn=3", "err=\"synthesize failed\"", "trace_id="} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}

func TestSpanLogger_DropsAfterShutdown(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	e := NewSpanLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	if err := e.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}

	tp := sdktrace.NewTracerProvider()
	_, span := tp.Tracer("test").Start(context.Background(), "late")
	span.End()
	ro, ok := span.(sdktrace.ReadOnlySpan)
	if !ok {
		t.Fatal("sdk span does not implement ReadOnlySpan")
	}
	if err := e.ExportSpans(context.Background(), []sdktrace.ReadOnlySpan{ro}); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 0 {
		t.Errorf("exported after shutdown: %s", buf.String())
	}
}

func TestSampler(t *testing.T) {
	t.Parallel()
	tests := []struct {
		ratio float64
		want  string
	}{
		{0, sdktrace.AlwaysSample().Description()},
		{1, sdktrace.AlwaysSample().Description()},
		{2, sdktrace.AlwaysSample().Description()},
		{0.25, sdktrace.ParentBased(sdktrace.TraceIDRatioBased(0.25)).Description()},
	}
	for _, tt := range tests {
		if got := sampler(tt.ratio).Description(); got != tt.want {
			t.Errorf("sampler(%v) = %q, want %q", tt.ratio, got, tt.want)
		}
	}
}
