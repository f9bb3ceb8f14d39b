package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

// newTestCaller returns a caller whose sleeps are recorded instead of slept.
func newTestCaller(cfg RetryConfig) (*Caller, *[]time.Duration) {
	c := NewCaller(NewBreaker(BreakerConfig{FailureThreshold: 100}), cfg)
	var slept []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return c, &slept
}

func TestCaller_FirstAttemptSucceedsWithoutSleep(t *testing.T) {
	c, slept := newTestCaller(RetryConfig{MaxRetries: 3})
	calls := 0
	err := c.Do(context.Background(), func(context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if len(*slept) != 0 {
		t.Errorf("slept %v, want no sleeps", *slept)
	}
}

func TestCaller_RetriesThenSucceeds(t *testing.T) {
	c, slept := newTestCaller(RetryConfig{MaxRetries: 3, BackoffBase: time.Second})
	calls := 0
	err := c.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errBoom
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if len(*slept) != 2 {
		t.Fatalf("sleeps = %d, want 2", len(*slept))
	}
}

func TestCaller_AttemptBudgetIsBounded(t *testing.T) {
	c, _ := newTestCaller(RetryConfig{MaxRetries: 3})
	calls := 0
	err := c.Do(context.Background(), func(context.Context) error {
		calls++
		return errBoom
	})
	if !errors.Is(err, errBoom) {
		t.Fatalf("err = %v, want errBoom", err)
	}
	if calls != 4 {
		t.Errorf("calls = %d, want maxRetries+1 = 4", calls)
	}
}

func TestCaller_BackoffGrowsExponentially(t *testing.T) {
	c, slept := newTestCaller(RetryConfig{MaxRetries: 3, BackoffBase: time.Second, Jitter: 0.2})
	c.Do(context.Background(), func(context.Context) error { return errBoom }) //nolint:errcheck

	wants := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	if len(*slept) != len(wants) {
		t.Fatalf("sleeps = %d, want %d", len(*slept), len(wants))
	}
	for i, want := range wants {
		lo := time.Duration(float64(want) * 0.8)
		hi := time.Duration(float64(want) * 1.2)
		got := (*slept)[i]
		if got < lo || got > hi {
			t.Errorf("sleep[%d] = %v, want within [%v, %v]", i, got, lo, hi)
		}
	}
}

func TestCaller_ClientErrorFailsFast(t *testing.T) {
	c, slept := newTestCaller(RetryConfig{MaxRetries: 3})
	calls := 0
	err := c.Do(context.Background(), func(context.Context) error {
		calls++
		return fakeClientError{}
	})
	if !IsClientError(err) {
		t.Fatalf("err = %v, want client error", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retries for 4xx)", calls)
	}
	if len(*slept) != 0 {
		t.Errorf("slept %v, want none", *slept)
	}
}

func TestCaller_OpenBreakerFailsFast(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour})
	c := NewCaller(b, RetryConfig{MaxRetries: 5})
	c.sleep = func(context.Context, time.Duration) error { return nil }

	// Trip the breaker.
	b.Execute(context.Background(), fail) //nolint:errcheck
	if got := b.State(); got != StateOpen {
		t.Fatalf("state = %q, want open", got)
	}

	calls := 0
	err := c.Do(context.Background(), func(context.Context) error {
		calls++
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
	if calls != 0 {
		t.Errorf("calls = %d, want 0 while open", calls)
	}
}

func TestCaller_ContextCancelStopsRetries(t *testing.T) {
	c, _ := newTestCaller(RetryConfig{MaxRetries: 5})
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := c.Do(ctx, func(context.Context) error {
		calls++
		cancel()
		return errBoom
	})
	if err == nil {
		t.Fatal("expected error after cancellation")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
