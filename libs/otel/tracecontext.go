package otelx

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// TraceContext is the W3C trace context of a span in storable form, kept next
// to outbox rows so a later publish joins the trace that wrote the row.
type TraceContext struct {
	Parent string
	State  string
}

func CaptureTraceContext(ctx context.Context) TraceContext {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return TraceContext{Parent: carrier.Get("traceparent"), State: carrier.Get("tracestate")}
}

// Restore returns ctx carrying tc. An empty parent leaves ctx unchanged.
func (tc TraceContext) Restore(ctx context.Context) context.Context {
	if tc.Parent == "" {
		return ctx
	}
	carrier := propagation.MapCarrier{"traceparent": tc.Parent}
	if tc.State != "" {
		carrier.Set("tracestate", tc.State)
	}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}
