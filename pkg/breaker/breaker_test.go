package breaker

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/wyfcoding/gbsmpricing/pkg/metrics"
)

func TestDisabledBreakerPassesThrough(t *testing.T) {
	b := New(Settings{Name: "kafka"}, nil)
	boom := errors.New("boom")
	for i := 0; i < 20; i++ {
		if err := b.Execute(func() error { return boom }); !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}
	}
	if b.State() != "disabled" {
		t.Fatalf("state = %s", b.State())
	}
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	m := metrics.New("pricing")
	b := New(Settings{
		Name:         "kafka",
		Enabled:      true,
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      time.Minute,
		FailureRatio: 0.5,
		MinRequests:  3,
	}, m)

	boom := errors.New("broker down")
	for i := 0; i < 3; i++ {
		if err := b.Execute(func() error { return boom }); !errors.Is(err, boom) {
			t.Fatalf("call %d: expected boom, got %v", i, err)
		}
	}

	called := false
	err := b.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrServiceUnavailable) {
		t.Fatalf("expected ErrServiceUnavailable, got %v", err)
	}
	if called {
		t.Fatal("function must not run while the breaker is open")
	}
	if b.State() != "open" {
		t.Fatalf("state = %s", b.State())
	}
	if got := testutil.ToFloat64(m.BreakerState.WithLabelValues("kafka")); got != 2 {
		t.Fatalf("breaker gauge = %v, want 2", got)
	}
}
