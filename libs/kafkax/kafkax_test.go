package kafkax

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestExtractEventMetaFallbacks(t *testing.T) {
	msg := kafka.Message{Topic: "glam.payment.completed.v1", Key: []byte("txn-1")}
	meta := ExtractEventMeta(msg)
	if meta.EventID != "txn-1" || meta.EventType != "glam.payment.completed.v1" {
		t.Fatalf("unexpected meta %+v", meta)
	}

	msg.Headers = []kafka.Header{{Key: HeaderEventID, Value: []byte("evt-9")}}
	if got := ExtractEventMeta(msg).EventID; got != "evt-9" {
		t.Fatalf("expected header event id, got %q", got)
	}
}

func TestSplitBrokers(t *testing.T) {
	got := SplitBrokers(" kafka-1:9092, ,kafka-2:9092 ")
	if len(got) != 2 || got[0] != "kafka-1:9092" || got[1] != "kafka-2:9092" {
		t.Fatalf("unexpected brokers %v", got)
	}
}

func TestTraceHeadersRoundTrip(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	traceID, _ := trace.TraceIDFromHex("0af7651916cd43dd8448eb211c80319c")
	spanID, _ := trace.SpanIDFromHex("b7ad6b7169203331")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled,
	}))

	headers := InjectTraceHeaders(ctx, []kafka.Header{{Key: HeaderEventID, Value: []byte("e1")}})
	if len(headers) != 2 {
		t.Fatalf("expected traceparent header appended, got %v", headers)
	}
	got := trace.SpanContextFromContext(ExtractTraceContext(context.Background(), kafka.Message{Headers: headers}))
	if got.TraceID() != traceID {
		t.Fatalf("trace id not propagated: %v", got.TraceID())
	}
}
