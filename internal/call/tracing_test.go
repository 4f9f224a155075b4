package call

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	otelcodes "go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"smartspeech-client/internal/observability/metrics"
	"smartspeech-client/internal/transport/transporttest"
)

func tracedReadCall(t *testing.T) (*ReadCall, *transporttest.Fake, *tracetest.InMemoryExporter) {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(t.Context()) })

	fake := transporttest.New(t)
	c := NewReadCall(fake.Bind, chunkProtocol{}, func(Chunk) {}, Options{
		ID:      "call-1",
		Kind:    "synthesize",
		Metrics: metrics.NewMetrics(prometheus.NewRegistry()),
		Tracer:  tp.Tracer("test"),
	})
	return c, fake, exp
}

func TestCallSpan(t *testing.T) {
	tests := []struct {
		name       string
		status     *status.Status
		wantStatus otelcodes.Code
		wantEvents int
	}{
		{"ok", status.New(codes.OK, ""), otelcodes.Unset, 0},
		{"failed", status.New(codes.Unavailable, "backend down"), otelcodes.Error, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, fake, exp := tracedReadCall(t)
			c.Start()
			fake.CompleteStart(true)
			fake.CompleteRead(false, nil)

			if n := len(exp.GetSpans()); n != 0 {
				t.Fatalf("expected no ended span before finish, got %d", n)
			}
			fake.CompleteFinish(tt.status)

			spans := exp.GetSpans()
			if len(spans) != 1 {
				t.Fatalf("expected 1 span, got %d", len(spans))
			}
			span := spans[0]
			if span.Name != "smartspeech.synthesize" {
				t.Errorf("span name = %q", span.Name)
			}
			if span.Status.Code != tt.wantStatus {
				t.Errorf("span status = %v, want %v", span.Status.Code, tt.wantStatus)
			}
			if len(span.Events) != tt.wantEvents {
				t.Errorf("span events = %d, want %d", len(span.Events), tt.wantEvents)
			}

			attrs := map[string]string{}
			for _, kv := range span.Attributes {
				attrs[string(kv.Key)] = kv.Value.Emit()
			}
			if attrs["call.id"] != "call-1" || attrs["rpc.grpc.status_code"] != tt.status.Code().String() {
				t.Errorf("span attributes = %v", attrs)
			}
		})
	}
}
