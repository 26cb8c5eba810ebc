package context

import (
	"context"
	"strings"
)

type requestIDKey struct{}
type sourceIDKey struct{}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, strings.TrimSpace(requestID))
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(requestIDKey{}).(string)
	return value
}

// WithSourceID tags the context with the gateway object (session, intent or
// subscription id) being reconciled.
func WithSourceID(ctx context.Context, sourceID string) context.Context {
	return context.WithValue(ctx, sourceIDKey{}, strings.TrimSpace(sourceID))
}

func SourceIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(sourceIDKey{}).(string)
	return value
}
