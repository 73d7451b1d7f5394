package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/relloyd/odsync/etlerrors"
	"github.com/relloyd/odsync/logger"
)

type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

type BreakerConfig struct {
	Name             string
	FailureThreshold int
	Cooldown         time.Duration
}

// DefaultSourceBreaker matches the tolerance of the legacy source: trip after 3 failures, wait 2 minutes.
var DefaultSourceBreaker = BreakerConfig{
	Name:             "source",
	FailureThreshold: 3,
	Cooldown:         2 * time.Minute,
}

// BreakerStatus is a snapshot of the breaker for reporting.
type BreakerStatus struct {
	Name             string     `json:"name"`
	State            State      `json:"state"`
	Failures         int        `json:"failures"`
	FailureThreshold int        `json:"failureThreshold"`
	LastFailure      *time.Time `json:"lastFailure,omitempty"`
	Remaining        string     `json:"remaining,omitempty"`
}

// CircuitBreaker is a closed/open/half_open state machine.
// The open -> half_open transition is lazy: it happens on the first call after the cooldown.
// Only one trial call is let through at a time while half_open; its success closes the breaker.
type CircuitBreaker struct {
	mu          sync.Mutex
	cfg         BreakerConfig
	clock       clockwork.Clock
	log         logger.Logger
	state       State
	failures    int
	lastFailure time.Time
	trial       bool // a half_open trial is in flight
}

func NewCircuitBreaker(log logger.Logger, cfg BreakerConfig, clock clockwork.Clock) *CircuitBreaker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = 1
	}
	return &CircuitBreaker{cfg: cfg, clock: clock, log: log.WithField("breaker", cfg.Name), state: StateClosed}
}

// Call runs fn unless the breaker is open.
// A rejected call returns *etlerrors.CircuitOpenError and is not counted as a failure.
func (b *CircuitBreaker) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.before(); err != nil {
		return err
	}
	err := fn(ctx)
	b.after(err)
	return err
}

func (b *CircuitBreaker) before() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateOpen:
		remaining := b.remaining()
		if remaining > 0 {
			return &etlerrors.CircuitOpenError{Name: b.cfg.Name, Remaining: remaining}
		}
		b.state = StateHalfOpen
		b.log.Info("circuit breaker half-open, attempting recovery")
		fallthrough
	case StateHalfOpen:
		if b.trial {
			return &etlerrors.CircuitOpenError{Name: b.cfg.Name, TrialInFlight: true}
		}
		b.trial = true
	}
	return nil
}

func (b *CircuitBreaker) after(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	halfOpen := b.state == StateHalfOpen
	if halfOpen {
		b.trial = false
	}
	if err != nil {
		b.failures++
		b.lastFailure = b.clock.Now()
		if halfOpen || b.failures >= b.cfg.FailureThreshold {
			if b.state != StateOpen {
				b.log.Warn("circuit breaker opened after ", b.failures, " failures (cooldown ", b.cfg.Cooldown, ")")
			}
			b.state = StateOpen
		}
		return
	}
	if halfOpen {
		b.state = StateClosed
		b.failures = 0
		b.log.Info("circuit breaker closed, source recovered")
		return
	}
	if b.failures > 0 { // heal gradually
		b.failures--
	}
}

// remaining must be called with the lock held.
func (b *CircuitBreaker) remaining() time.Duration {
	if b.lastFailure.IsZero() {
		return 0
	}
	r := b.cfg.Cooldown - b.clock.Since(b.lastFailure)
	if r < 0 {
		return 0
	}
	return r
}

func (b *CircuitBreaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *CircuitBreaker) Status() BreakerStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := BreakerStatus{
		Name:             b.cfg.Name,
		State:            b.state,
		Failures:         b.failures,
		FailureThreshold: b.cfg.FailureThreshold,
	}
	if !b.lastFailure.IsZero() {
		t := b.lastFailure
		s.LastFailure = &t
	}
	if b.state == StateOpen {
		s.Remaining = b.remaining().Round(time.Second).String()
	}
	return s
}

// Reset closes the breaker and forgets past failures.
func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.trial = false
	b.lastFailure = time.Time{}
	b.log.Info("circuit breaker reset")
}
