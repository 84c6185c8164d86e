package context

import (
	"context"
	"testing"
)

func TestCorrelationValues(t *testing.T) {
	ctx := context.Background()
	ctx = WithRequestID(ctx, " req-1 ")
	ctx = WithActor(ctx, "role:manager", "u-7")
	ctx = WithStoreID(ctx, "")
	ctx = WithRunID(ctx, "01HZX")

	if got := RequestIDFromContext(ctx); got != "req-1" {
		t.Fatalf("expected trimmed request id, got %q", got)
	}
	kind, id := ActorFromContext(ctx)
	if kind != "role:manager" || id != "u-7" {
		t.Fatalf("unexpected actor %q/%q", kind, id)
	}
	if got := StoreIDFromContext(ctx); got != "" {
		t.Fatalf("expected empty store id to be ignored, got %q", got)
	}
	if got := RunIDFromContext(ctx); got != "01HZX" {
		t.Fatalf("expected run id, got %q", got)
	}
}
