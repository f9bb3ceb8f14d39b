package resilience

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// RetryConfig tunes the Caller. Zero values take the defaults.
type RetryConfig struct {
	MaxRetries  int           // retries after the first attempt (default 3)
	BackoffBase time.Duration // first retry delay, doubles per attempt (default 1s)
	Jitter      float64       // +/- fraction applied to each delay (default 0.2)
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = time.Second
	}
	if c.Jitter <= 0 {
		c.Jitter = 0.2
	}
	return c
}

// Caller retries a breaker-protected call with exponential backoff and
// jitter. It fails fast while the breaker is open instead of burning retries
// against a known-down service.
type Caller struct {
	breaker *Breaker
	cfg     RetryConfig

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewCaller wraps the given breaker.
func NewCaller(breaker *Breaker, cfg RetryConfig) *Caller {
	return &Caller{
		breaker: breaker,
		cfg:     cfg.withDefaults(),
		sleep:   sleepContext,
	}
}

// Breaker exposes the underlying breaker for observability.
func (c *Caller) Breaker() *Breaker { return c.breaker }

// Do runs fn with at most MaxRetries+1 attempts. It returns the first
// success, or the last error once retries are exhausted, the breaker opens,
// or the error is a non-retryable client error.
func (c *Caller) Do(ctx context.Context, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, c.backoff(attempt-1)); err != nil {
				return err
			}
		}

		err := c.breaker.Execute(ctx, fn)
		if err == nil {
			return nil
		}
		lastErr = err

		if errors.Is(err, ErrCircuitOpen) {
			return err
		}
		if IsClientError(err) {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
	}
	return lastErr
}

// backoff computes base * 2^attempt with +/- Jitter applied.
func (c *Caller) backoff(attempt int) time.Duration {
	d := c.cfg.BackoffBase << uint(attempt)
	spread := 1 + c.cfg.Jitter*(2*rand.Float64()-1)
	return time.Duration(float64(d) * spread)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
