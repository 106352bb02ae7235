package resilience

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func tripping() error { return kindError{retriable: true} }

func execute(cb *CircuitBreaker, fn func() error) error {
	_, err := ExecuteVal(context.Background(), cb, func(_ context.Context) (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

func TestCircuitBreaker_ClosedPassesThrough(t *testing.T) {
	cb := NewCircuitBreaker("whois", DefaultCircuitBreakerConfig())

	var calls int
	err := execute(cb, func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if cb.State() != CircuitClosed {
		t.Errorf("expected closed, got %s", cb.State())
	}
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker("news", CircuitBreakerConfig{FailureThreshold: 3, ResetTimeout: time.Minute})

	for range 3 {
		_ = execute(cb, tripping)
	}
	if cb.State() != CircuitOpen {
		t.Fatalf("expected open, got %s", cb.State())
	}

	err := execute(cb, func() error {
		t.Error("should not be called while open")
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestCircuitBreaker_PermanentErrorsDoNotTrip(t *testing.T) {
	cb := NewCircuitBreaker("whois", CircuitBreakerConfig{FailureThreshold: 2})

	for range 5 {
		_ = execute(cb, func() error { return kindError{retriable: false} })
	}
	if cb.State() != CircuitClosed {
		t.Errorf("permanent errors should not open the circuit, got %s", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenTrial(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker("website", CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: 10 * time.Second})
	cb.nowFunc = func() time.Time { return now }

	_ = execute(cb, tripping)
	if cb.State() != CircuitOpen {
		t.Fatalf("expected open, got %s", cb.State())
	}

	now = now.Add(10 * time.Second)
	if cb.State() != CircuitHalfOpen {
		t.Fatalf("expected half-open after reset timeout, got %s", cb.State())
	}

	// A failed trial reopens.
	_ = execute(cb, tripping)
	if cb.State() != CircuitOpen {
		t.Fatalf("expected reopened, got %s", cb.State())
	}

	now = now.Add(10 * time.Second)
	v, err := ExecuteVal(context.Background(), cb, func(_ context.Context) (int, error) { return 200, nil })
	if err != nil || v != 200 {
		t.Fatalf("trial should pass through, got %d, %v", v, err)
	}
	if cb.State() != CircuitClosed {
		t.Errorf("expected closed after successful trial, got %s", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenAdmitsSingleTrial(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var clock atomic.Pointer[time.Time]
	clock.Store(&now)
	cb := NewCircuitBreaker("news", CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: 10 * time.Second})
	cb.nowFunc = func() time.Time { return *clock.Load() }

	_ = execute(cb, tripping)
	later := now.Add(11 * time.Second)
	clock.Store(&later)

	const callers = 5
	var admitted atomic.Int32
	release := make(chan struct{})
	results := make(chan error, callers)
	for range callers {
		go func() {
			results <- execute(cb, func() error {
				admitted.Add(1)
				<-release
				return nil
			})
		}()
	}

	// Everyone but the trial is rejected without waiting on it.
	for range callers - 1 {
		if err := <-results; !errors.Is(err, ErrCircuitOpen) {
			t.Fatalf("expected ErrCircuitOpen while the trial is outstanding, got %v", err)
		}
	}
	close(release)
	if err := <-results; err != nil {
		t.Fatalf("trial should succeed, got %v", err)
	}

	if n := admitted.Load(); n != 1 {
		t.Errorf("expected exactly one call admitted while half-open, got %d", n)
	}
	if cb.State() != CircuitClosed {
		t.Errorf("expected closed after successful trial, got %s", cb.State())
	}
	if err := execute(cb, func() error { return nil }); err != nil {
		t.Errorf("closed circuit should admit calls, got %v", err)
	}
}

func TestCircuitBreaker_FailedTrialRejectsUntilNextTimeout(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker("whois", CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: 10 * time.Second})
	cb.nowFunc = func() time.Time { return now }

	_ = execute(cb, tripping)
	now = now.Add(10 * time.Second)
	_ = execute(cb, tripping)

	if err := execute(cb, func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen right after a failed trial, got %v", err)
	}
}

func TestBreakers_PerProvider(t *testing.T) {
	b := NewBreakers(CircuitBreakerConfig{FailureThreshold: 1})
	news := b.Get("news")
	if b.Get("news") != news {
		t.Fatal("expected the same breaker for the same provider")
	}

	_ = execute(news, tripping)
	states := b.States()
	if states["news"] != CircuitOpen {
		t.Errorf("expected news open, got %s", states["news"])
	}
	if b.Get("whois").State() != CircuitClosed {
		t.Error("whois breaker must be independent")
	}
}

func TestCircuitState_String(t *testing.T) {
	if CircuitHalfOpen.String() != "half-open" || CircuitState(9).String() != "unknown" {
		t.Error("unexpected state names")
	}
}
