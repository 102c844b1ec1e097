package grpcx

import (
	"context"

	"github.com/glamhq/glam/libs/httpx"
)

type ctxKey int

const ctxKeyRequestID ctxKey = iota

// RequestIDMetadataKey carries the request id over gRPC metadata.
const RequestIDMetadataKey = "x-request-id"

func RequestIDFromContext(ctx context.Context) string {
	if v, _ := ctx.Value(ctxKeyRequestID).(string); v != "" {
		return v
	}
	return httpx.RequestIDFromContext(ctx)
}

func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKeyRequestID, id)
}
