package middleware

import (
	"context"
	"encoding/json"
	"testing"
)

func TestChain_Order(t *testing.T) {
	t.Parallel()

	var order []string
	mw := func(name string) Middleware {
		return func(next Next) Next {
			return func(ctx context.Context, method string, params json.RawMessage) (any, error) {
				order = append(order, name)
				return next(ctx, method, params)
			}
		}
	}

	chain := Chain(mw("outer"), mw("inner"))
	final := func(ctx context.Context, method string, params json.RawMessage) (any, error) {
		order = append(order, "final")
		return "ok", nil
	}

	result, err := chain(final)(context.Background(), "ping", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "ok" {
		t.Fatalf("got %v, want ok", result)
	}

	want := []string{"outer", "inner", "final"}
	if len(order) != len(want) {
		t.Fatalf("got order %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("got order %v, want %v", order, want)
		}
	}
}

func TestRecoveryMiddleware_CatchesPanic(t *testing.T) {
	t.Parallel()

	mw := NewRecoveryMiddleware(nil)
	panicky := func(ctx context.Context, method string, params json.RawMessage) (any, error) {
		panic("boom")
	}

	_, err := mw(panicky)(context.Background(), "tools/call", nil)
	if err == nil {
		t.Fatal("expected an error from the recovered panic")
	}
}
