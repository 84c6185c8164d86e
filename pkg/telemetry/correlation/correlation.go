// Package correlation carries run identifiers and adopted remote spans
// across process boundaries that do not speak W3C trace context.
package correlation

import (
	"context"
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"
)

type correlationKey struct{}

// ExtractCorrelationID returns the id set by EnsureCorrelationID, if any.
func ExtractCorrelationID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

// EnsureCorrelationID keeps an id already on ctx. Otherwise it mints a ULID
// stamped with at, so ids from one process sort by their run time even
// under a fake clock.
func EnsureCorrelationID(ctx context.Context, at time.Time) (context.Context, string) {
	if id := ExtractCorrelationID(ctx); id != "" {
		return ctx, id
	}
	id := ulid.MustNew(ulid.Timestamp(at), rand.Reader).String()
	return context.WithValue(ctx, correlationKey{}, id), id
}

// ContextWithRemoteSpan makes traceIDHex/spanIDHex the sampled remote parent
// of spans started from the returned context. Malformed ids leave ctx as is.
func ContextWithRemoteSpan(ctx context.Context, traceIDHex, spanIDHex string) context.Context {
	traceID, err := trace.TraceIDFromHex(traceIDHex)
	if err != nil {
		return ctx
	}
	spanID, err := trace.SpanIDFromHex(spanIDHex)
	if err != nil {
		return ctx
	}
	return trace.ContextWithRemoteSpanContext(ctx, trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))
}
