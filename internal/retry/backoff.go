// Package retry paces the accept loop through transient failures.  The
// transport never retries on its own; the host loop decides which
// accept errors are worth another attempt and waits here between them.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// PermanentError marks an error that another attempt cannot fix, such
// as accept failing with EBADF or EINVAL.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so that [Backoff.Do] returns it at once.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err was wrapped with [Permanent].
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// ── Backoff ──────────────────────────────────────────────────────────

// Backoff schedules retries with exponentially growing waits.
type Backoff struct {
	InitialDelay time.Duration // wait after the first failure (default 50ms)
	MaxDelay     time.Duration // cap on any single wait (default 5s)
	Multiplier   float64       // growth per attempt (default 2)

	// MaxAttempts counts the first try.  Zero retries until the
	// context is cancelled.
	MaxAttempts int

	// Jitter spreads each wait by ±25%.
	Jitter bool

	// OnRetry, when set, is told about every failure that will be
	// retried and how long Do waits before the next attempt.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// DefaultBackoff suits accept failures such as EMFILE or ENOBUFS,
// which usually clear within milliseconds once a connection closes.
func DefaultBackoff() *Backoff {
	return &Backoff{
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		MaxAttempts:  10,
		Jitter:       true,
	}
}

// Delay returns the unjittered wait after the given 1-based attempt
// fails.
func (b *Backoff) Delay(attempt int) time.Duration {
	initial, maxDelay, mult := b.InitialDelay, b.MaxDelay, b.Multiplier
	if initial <= 0 {
		initial = 50 * time.Millisecond
	}
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}
	if mult <= 0 {
		mult = 2.0
	}
	if attempt < 1 {
		attempt = 1
	}
	d := float64(initial) * math.Pow(mult, float64(attempt-1))
	if d > float64(maxDelay) {
		return maxDelay
	}
	return time.Duration(d)
}

// Do calls fn until it returns nil, returns a [Permanent] error, runs
// out of attempts, or ctx is done.  attempt is 1-based.  The last
// failure stays in the returned error's chain.
func (b *Backoff) Do(ctx context.Context, fn func(attempt int) error) error {
	for attempt := 1; ; attempt++ {
		err := fn(attempt)
		if err == nil {
			return nil
		}
		if IsPermanent(err) {
			return errors.Unwrap(err)
		}
		if b.MaxAttempts > 0 && attempt >= b.MaxAttempts {
			return fmt.Errorf("giving up after %d attempts: %w", attempt, err)
		}

		wait := b.Delay(attempt)
		if b.Jitter {
			wait = addJitter(wait)
		}
		if b.OnRetry != nil {
			b.OnRetry(attempt, err, wait)
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("retry cancelled after %d attempts: %w", attempt, errors.Join(ctx.Err(), err))
		case <-t.C:
		}
	}
}

func addJitter(d time.Duration) time.Duration {
	quarter := float64(d) * 0.25
	delta := (rand.Float64() * 2 * quarter) - quarter
	return time.Duration(math.Max(float64(d)+delta, float64(time.Millisecond)))
}
