package observability

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/signalsfoundry/linkplanner/internal/logging"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestInitTracingDisabledIsNoop(t *testing.T) {
	ctx := context.Background()
	shutdown, err := InitTracing(ctx, TracingConfig{Enabled: false}, logging.Noop())
	if err != nil {
		t.Fatalf("InitTracing() error = %v", err)
	}
	ShutdownWithTimeout(ctx, shutdown, nil)

	_, span := StartSpan(ctx, "planner.test", "link", "l1")
	defer span.End()
	if span.SpanContext().IsValid() {
		t.Fatalf("noop provider produced a sampled span")
	}
}

func TestInitTracingStdoutExportsSpans(t *testing.T) {
	ctx := context.Background()
	var out bytes.Buffer
	shutdown, err := InitTracing(ctx, TracingConfig{
		Enabled:     true,
		Exporter:    "stdout",
		SampleRatio: 1,
		Output:      &out,
	}, nil)
	if err != nil {
		t.Fatalf("InitTracing() error = %v", err)
	}
	t.Cleanup(func() {
		_, _ = InitTracing(ctx, TracingConfig{}, nil)
	})

	reqCtx := logging.ContextWithRequestID(ctx, "req-7")
	_, span := StartSpan(reqCtx, "planner.ActivateLink", "link", "l1")
	if !span.SpanContext().IsValid() {
		t.Fatalf("span context is not valid")
	}
	FailSpan(span, errors.New("link removed"))
	FailSpan(span, nil)
	span.End()

	ShutdownWithTimeout(ctx, shutdown, nil)

	got := out.String()
	for _, want := range []string{"planner.ActivateLink", "req-7", "entity_id", "link removed", "linkplanner"} {
		if !strings.Contains(got, want) {
			t.Fatalf("exported spans missing %q:\n%s", want, got)
		}
	}
}

func TestInitTracingRejectsUnknownExporter(t *testing.T) {
	_, err := InitTracing(context.Background(), TracingConfig{Enabled: true, Exporter: "zipkin", SampleRatio: 1}, nil)
	if err == nil {
		t.Fatalf("InitTracing() with unknown exporter succeeded")
	}
}

func TestSamplerFor(t *testing.T) {
	cases := map[float64]string{
		1:    sdktrace.ParentBased(sdktrace.AlwaysSample()).Description(),
		2:    sdktrace.ParentBased(sdktrace.AlwaysSample()).Description(),
		0:    sdktrace.ParentBased(sdktrace.NeverSample()).Description(),
		-1:   sdktrace.ParentBased(sdktrace.NeverSample()).Description(),
		0.25: sdktrace.ParentBased(sdktrace.TraceIDRatioBased(0.25)).Description(),
	}
	for ratio, want := range cases {
		if got := samplerFor(ratio).Description(); got != want {
			t.Fatalf("samplerFor(%v) = %s, want %s", ratio, got, want)
		}
	}
}
