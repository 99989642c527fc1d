package mcpcontext

import (
	"context"
	"testing"
	"time"
)

func TestCancelled_NilBeforeSignal(t *testing.T) {
	ctx := context.Background()
	if err := Cancelled(ctx); err != nil {
		t.Fatalf("got %v, want nil", err)
	}
}

func TestCancelled_ReturnsCtxErrAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := Cancelled(ctx); err != context.Canceled {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}

func TestCancelled_ReturnsDeadlineExceeded(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	<-ctx.Done()

	if err := Cancelled(ctx); err != context.DeadlineExceeded {
		t.Fatalf("got %v, want context.DeadlineExceeded", err)
	}
}

func TestWithCorrelationID_GeneratesWhenNil(t *testing.T) {
	ctx := WithCorrelationID(context.Background(), nil)
	if CorrelationID(ctx) == nil {
		t.Fatal("expected a generated correlation id")
	}
}

func TestBearerToken_RoundTrip(t *testing.T) {
	ctx := WithBearerToken(context.Background(), "tok-123")
	token, ok := BearerToken(ctx)
	if !ok || token != "tok-123" {
		t.Fatalf("got (%q, %v), want (%q, true)", token, ok, "tok-123")
	}
}
