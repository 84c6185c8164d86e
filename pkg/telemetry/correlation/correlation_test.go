package correlation

import (
	"context"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestEnsureCorrelationIDGeneratesULIDOnce(t *testing.T) {
	at := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	ctx, id := EnsureCorrelationID(context.Background(), at)
	parsed, err := ulid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, ulid.Timestamp(at), parsed.Time())

	_, same := EnsureCorrelationID(ctx, at.Add(time.Hour))
	assert.Equal(t, id, same)
	assert.Equal(t, id, ExtractCorrelationID(ctx))
}

func TestCorrelationIDsSortByRunTime(t *testing.T) {
	at := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	_, first := EnsureCorrelationID(context.Background(), at)
	_, second := EnsureCorrelationID(context.Background(), at.Add(15*time.Minute))
	assert.Less(t, first, second)
}

func TestContextWithRemoteSpan(t *testing.T) {
	ctx := ContextWithRemoteSpan(context.Background(), "4bf92f3577b34da6a3ce929d0e0e4736", "00f067aa0ba902b7")
	sc := trace.SpanContextFromContext(ctx)
	require.True(t, sc.IsValid())
	assert.True(t, sc.IsRemote())
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", sc.TraceID().String())

	untouched := ContextWithRemoteSpan(context.Background(), "nothex", "00f067aa0ba902b7")
	assert.False(t, trace.SpanContextFromContext(untouched).IsValid())

	empty := ContextWithRemoteSpan(context.Background(), "", "")
	assert.False(t, trace.SpanContextFromContext(empty).IsValid())
}
