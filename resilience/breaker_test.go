package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

type fakeClientError struct{}

func (fakeClientError) Error() string     { return "bad request" }
func (fakeClientError) ClientError() bool { return true }

// testClock is a manually advanced time source.
type testClock struct {
	t time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) now() time.Time          { return c.t }
func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(clock *testClock) *Breaker {
	b := NewBreaker(BreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		ResetTimeout:     30 * time.Second,
	})
	b.SetClock(clock.now)
	return b
}

func fail(context.Context) error { return errBoom }
func ok(context.Context) error   { return nil }

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	clock := newTestClock()
	b := newTestBreaker(clock)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		b.Execute(ctx, fail) //nolint:errcheck
		if got := b.State(); got != StateClosed {
			t.Fatalf("after %d failures: state = %q, want closed", i+1, got)
		}
	}
	b.Execute(ctx, fail) //nolint:errcheck
	if got := b.State(); got != StateOpen {
		t.Fatalf("after 5 failures: state = %q, want open", got)
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	clock := newTestClock()
	b := newTestBreaker(clock)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		b.Execute(ctx, fail) //nolint:errcheck
	}
	b.Execute(ctx, ok) //nolint:errcheck
	for i := 0; i < 4; i++ {
		b.Execute(ctx, fail) //nolint:errcheck
	}
	if got := b.State(); got != StateClosed {
		t.Errorf("state = %q, want closed (failures not consecutive)", got)
	}
}

func TestBreaker_OpenRejectsWithoutInvoking(t *testing.T) {
	clock := newTestClock()
	b := newTestBreaker(clock)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		b.Execute(ctx, fail) //nolint:errcheck
	}

	invoked := false
	err := b.Execute(ctx, func(context.Context) error {
		invoked = true
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrCircuitOpen", err)
	}
	if invoked {
		t.Error("wrapped call ran while the breaker was open")
	}
}

func TestBreaker_HalfOpenAfterResetTimeout(t *testing.T) {
	clock := newTestClock()
	b := newTestBreaker(clock)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		b.Execute(ctx, fail) //nolint:errcheck
	}

	clock.advance(29 * time.Second)
	if got := b.State(); got != StateOpen {
		t.Fatalf("before timeout: state = %q, want open", got)
	}

	clock.advance(1001 * time.Millisecond)
	if got := b.State(); got != StateHalfOpen {
		t.Fatalf("after timeout: state = %q, want half_open", got)
	}

	// One probe is admitted.
	if err := b.Execute(ctx, ok); err != nil {
		t.Fatalf("trial call: %v", err)
	}
}

func TestBreaker_HalfOpenSingleTrial(t *testing.T) {
	clock := newTestClock()
	b := newTestBreaker(clock)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		b.Execute(ctx, fail) //nolint:errcheck
	}
	clock.advance(31 * time.Second)

	// Hold a trial in flight and check a second call is shed.
	admitted := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- b.Execute(ctx, func(context.Context) error {
			close(admitted)
			<-release
			return nil
		})
	}()
	<-admitted

	if err := b.Execute(ctx, ok); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("second half-open call: err = %v, want ErrCircuitOpen", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("trial: %v", err)
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	clock := newTestClock()
	b := newTestBreaker(clock)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		b.Execute(ctx, fail) //nolint:errcheck
	}
	clock.advance(31 * time.Second)

	b.Execute(ctx, fail) //nolint:errcheck
	if got := b.State(); got != StateOpen {
		t.Fatalf("after failed trial: state = %q, want open", got)
	}

	// The reset timer starts over.
	clock.advance(29 * time.Second)
	if err := b.Execute(ctx, ok); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrCircuitOpen before new timeout elapses", err)
	}
}

func TestBreaker_HalfOpenClosesAfterSuccesses(t *testing.T) {
	clock := newTestClock()
	b := newTestBreaker(clock)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		b.Execute(ctx, fail) //nolint:errcheck
	}
	clock.advance(31 * time.Second)

	b.Execute(ctx, ok) //nolint:errcheck
	if got := b.State(); got != StateHalfOpen {
		t.Fatalf("after 1 success: state = %q, want half_open", got)
	}
	b.Execute(ctx, ok) //nolint:errcheck
	if got := b.State(); got != StateClosed {
		t.Fatalf("after 2 successes: state = %q, want closed", got)
	}
}

func TestBreaker_ClientErrorsNeverCount(t *testing.T) {
	clock := newTestClock()
	b := newTestBreaker(clock)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		err := b.Execute(ctx, func(context.Context) error { return fakeClientError{} })
		if err == nil {
			t.Fatal("client error should propagate")
		}
	}
	if got := b.State(); got != StateClosed {
		t.Errorf("state = %q, want closed after only 4xx errors", got)
	}
	if got := b.Stats().ConsecutiveFailures; got != 0 {
		t.Errorf("ConsecutiveFailures = %d, want 0", got)
	}
}

func TestIsClientError(t *testing.T) {
	if IsClientError(errBoom) {
		t.Error("plain error misclassified as client error")
	}
	wrapped := errors.Join(errors.New("outer"), fakeClientError{})
	if !IsClientError(wrapped) {
		t.Error("wrapped client error not detected")
	}
}
