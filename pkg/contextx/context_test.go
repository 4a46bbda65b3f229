package contextx

import (
	"context"
	"testing"
)

func TestRequestID(t *testing.T) {
	ctx := context.Background()
	if got := GetRequestID(ctx); got != "" {
		t.Fatalf("expected empty request id, got %q", got)
	}
	ctx = WithRequestID(ctx, "req-1")
	if got := GetRequestID(ctx); got != "req-1" {
		t.Fatalf("expected req-1, got %q", got)
	}
}

func TestTx(t *testing.T) {
	ctx := context.Background()
	if GetTx(ctx) != nil {
		t.Fatal("expected no tx")
	}
	tx := &struct{ name string }{"tx"}
	ctx = WithTx(ctx, tx)
	if GetTx(ctx) != tx {
		t.Fatal("expected the injected tx")
	}
}
