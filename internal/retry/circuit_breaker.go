package retry

import (
	"fmt"
	"sync"
	"time"

	apperr "fcgisock/internal/errors"
)

// State is the position of a [CircuitBreaker].
type State int

const (
	StateClosed   State = iota // calls pass through
	StateOpen                  // calls are refused until the reset timeout passes
	StateHalfOpen              // calls pass through as probes
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures a [CircuitBreaker].  Zero fields
// take the defaults noted below.
type CircuitBreakerConfig struct {
	MaxFailures  int           // consecutive failures that open the circuit (5)
	ResetTimeout time.Duration // how long the circuit stays open (1s)
	HalfOpenMax  int           // probe successes that close it again (1)

	// IsFailure decides which errors count against the circuit.  Nil
	// counts every error.  Errors it rejects are passed through and
	// leave the counters alone.
	IsFailure func(error) bool

	// OnStateChange runs under the breaker's lock on every transition.
	OnStateChange func(from, to State)
}

// CircuitBreaker stops calling accept on a listener that keeps
// failing, for example one that has run out of descriptors.  Refusals
// wrap errors.ErrCircuitOpen.
type CircuitBreaker struct {
	mu  sync.Mutex
	cfg CircuitBreakerConfig

	state       State
	failures    int
	successes   int
	lastFailure time.Time
}

// NewCircuitBreaker returns a closed breaker.  cfg may be nil.
func NewCircuitBreaker(cfg *CircuitBreakerConfig) *CircuitBreaker {
	cb := &CircuitBreaker{}
	if cfg != nil {
		cb.cfg = *cfg
	}
	if cb.cfg.MaxFailures <= 0 {
		cb.cfg.MaxFailures = 5
	}
	if cb.cfg.ResetTimeout <= 0 {
		cb.cfg.ResetTimeout = time.Second
	}
	if cb.cfg.HalfOpenMax <= 0 {
		cb.cfg.HalfOpenMax = 1
	}
	return cb
}

// Execute calls fn unless the circuit is open.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.admit(); err != nil {
		return err
	}
	err := fn()
	cb.record(err)
	return err
}

// CurrentState returns the breaker's state.
func (cb *CircuitBreaker) CurrentState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Failures returns the consecutive failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// RetryAfter returns how long an open circuit keeps refusing calls, or
// zero when it would admit one now.
func (cb *CircuitBreaker) RetryAfter() time.Duration {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.remaining()
}

// Reset closes the circuit and clears the counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.successes = 0
	cb.transition(StateClosed)
}

func (cb *CircuitBreaker) remaining() time.Duration {
	if cb.state != StateOpen {
		return 0
	}
	if left := cb.cfg.ResetTimeout - time.Since(cb.lastFailure); left > 0 {
		return left
	}
	return 0
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != StateOpen {
		return nil
	}
	left := cb.remaining()
	if left == 0 {
		cb.successes = 0
		cb.transition(StateHalfOpen)
		return nil
	}
	return fmt.Errorf("%w: %d consecutive failures, retry in %v",
		apperr.ErrCircuitOpen, cb.failures, left.Truncate(time.Millisecond))
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		if cb.cfg.IsFailure != nil && !cb.cfg.IsFailure(err) {
			return
		}
		cb.failures++
		cb.successes = 0
		cb.lastFailure = time.Now()
		if cb.state == StateHalfOpen || cb.failures >= cb.cfg.MaxFailures {
			cb.transition(StateOpen)
		}
		return
	}

	switch cb.state {
	case StateHalfOpen:
		cb.successes++
		if cb.successes >= cb.cfg.HalfOpenMax {
			cb.failures = 0
			cb.transition(StateClosed)
		}
	case StateClosed:
		cb.failures = 0
	}
}

func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(from, to)
	}
}
