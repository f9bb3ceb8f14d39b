// Package resilience protects calls to the model API with a circuit breaker
// and a retrying caller. It is the only path from the agent loop to the
// outside network.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned without invoking the wrapped call while the
// breaker is open (or while a half-open trial is already in flight).
var ErrCircuitOpen = errors.New("circuit breaker open")

// BreakerState is the breaker's position.
type BreakerState string

const (
	StateClosed   BreakerState = "closed"
	StateOpen     BreakerState = "open"
	StateHalfOpen BreakerState = "half_open"
)

// clientError is implemented by errors that represent caller bugs (HTTP 4xx).
// They propagate to the caller but never count as service failures.
type clientError interface {
	ClientError() bool
}

// IsClientError reports whether err is a non-retryable caller error.
func IsClientError(err error) bool {
	var ce clientError
	return errors.As(err, &ce) && ce.ClientError()
}

// BreakerConfig tunes a Breaker. Zero values take the defaults.
type BreakerConfig struct {
	FailureThreshold int           // consecutive failures before opening (default 5)
	SuccessThreshold int           // half-open successes before closing (default 2)
	ResetTimeout     time.Duration // open -> half-open delay (default 30s)
	RequestTimeout   time.Duration // per-call ceiling (default 10s)
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 2
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 30 * time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}
	return c
}

// Stats is a read-only view of a breaker for observability.
type Stats struct {
	State                BreakerState `json:"state"`
	ConsecutiveFailures  int          `json:"consecutive_failures"`
	ConsecutiveSuccesses int          `json:"consecutive_successes"`
	LastTransition       time.Time    `json:"last_transition"`
}

// Breaker is a per-service failure-isolation state machine. One instance
// guards one downstream service, shared by every team that calls it.
type Breaker struct {
	mu sync.Mutex

	cfg   BreakerConfig
	state BreakerState

	failures      int
	successes     int
	openedAt      time.Time
	transitionAt  time.Time
	trialInFlight bool

	now func() time.Time
}

// NewBreaker creates a closed breaker with the given config.
func NewBreaker(cfg BreakerConfig) *Breaker {
	b := &Breaker{
		cfg:   cfg.withDefaults(),
		state: StateClosed,
		now:   time.Now,
	}
	b.transitionAt = b.now()
	return b
}

// SetClock overrides the time source. Intended for tests.
func (b *Breaker) SetClock(now func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
}

// Execute runs fn under the breaker's protection, bounded by the per-request
// timeout. It never invokes fn while open.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := b.allow(); err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, b.cfg.RequestTimeout)
	err := fn(callCtx)
	cancel()

	b.record(err)
	return err
}

// Stats returns a snapshot of the breaker's counters.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	// Surface the pending open -> half-open transition without requiring a
	// call to drive it.
	state := b.state
	if state == StateOpen && b.now().Sub(b.openedAt) >= b.cfg.ResetTimeout {
		state = StateHalfOpen
	}
	return Stats{
		State:                state,
		ConsecutiveFailures:  b.failures,
		ConsecutiveSuccesses: b.successes,
		LastTransition:       b.transitionAt,
	}
}

// State returns the breaker's current position.
func (b *Breaker) State() BreakerState {
	return b.Stats().State
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cfg.ResetTimeout {
			return ErrCircuitOpen
		}
		b.transition(StateHalfOpen)
		b.trialInFlight = true
		return nil
	case StateHalfOpen:
		if b.trialInFlight {
			return ErrCircuitOpen
		}
		b.trialInFlight = true
		return nil
	}
	return nil
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// 4xx responses mean the service answered; never count them against it.
	failure := err != nil && !IsClientError(err)

	switch b.state {
	case StateClosed:
		if failure {
			b.failures++
			b.successes = 0
			if b.failures >= b.cfg.FailureThreshold {
				b.transition(StateOpen)
				b.openedAt = b.now()
			}
		} else {
			b.failures = 0
		}
	case StateHalfOpen:
		b.trialInFlight = false
		if failure {
			b.transition(StateOpen)
			b.openedAt = b.now()
			b.failures = b.cfg.FailureThreshold
			b.successes = 0
		} else {
			b.successes++
			if b.successes >= b.cfg.SuccessThreshold {
				b.transition(StateClosed)
				b.failures = 0
				b.successes = 0
			}
		}
	case StateOpen:
		// A call that raced the transition; nothing to record.
	}
}

// transition must be called with the lock held.
func (b *Breaker) transition(to BreakerState) {
	b.state = to
	b.transitionAt = b.now()
}
