package retry

import (
	"context"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	apperr "fcgisock/internal/errors"
)

func fastBackoff(attempts int) *Backoff {
	return &Backoff{InitialDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond, MaxAttempts: attempts}
}

func TestBackoff_RecoversFromTransientAcceptErrors(t *testing.T) {
	failures := []error{unix.EMFILE, unix.ECONNABORTED}
	var retried []int

	b := fastBackoff(5)
	b.OnRetry = func(attempt int, err error, _ time.Duration) {
		retried = append(retried, attempt)
		if !apperr.Is(err, failures[attempt-1]) {
			t.Errorf("attempt %d reported %v", attempt, err)
		}
	}

	err := b.Do(context.Background(), func(attempt int) error {
		if attempt <= len(failures) {
			return apperr.Wrap("accept", 0, failures[attempt-1])
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if len(retried) != 2 || retried[0] != 1 || retried[1] != 2 {
		t.Errorf("OnRetry attempts = %v, want [1 2]", retried)
	}
}

func TestBackoff_PermanentStopsAtOnce(t *testing.T) {
	calls := 0
	err := fastBackoff(10).Do(context.Background(), func(int) error {
		calls++
		return Permanent(apperr.Wrap("accept", 0, unix.EBADF))
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if IsPermanent(err) {
		t.Error("Do should unwrap the permanent marker")
	}
	if !apperr.Is(err, unix.EBADF) {
		t.Errorf("err = %v, want EBADF", err)
	}
}

func TestBackoff_GivesUpKeepingLastError(t *testing.T) {
	calls := 0
	err := fastBackoff(3).Do(context.Background(), func(int) error {
		calls++
		return apperr.Wrap("accept", 0, unix.ENFILE)
	})
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if !apperr.Is(err, unix.ENFILE) {
		t.Errorf("err = %v, want ENFILE in the chain", err)
	}
}

func TestBackoff_Cancelled(t *testing.T) {
	b := &Backoff{InitialDelay: 5 * time.Second}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := b.Do(ctx, func(int) error { return unix.EAGAIN })
	if time.Since(start) > 2*time.Second {
		t.Error("Do should stop waiting when the context is done")
	}
	if !apperr.Is(err, context.DeadlineExceeded) || !apperr.Is(err, unix.EAGAIN) {
		t.Errorf("err = %v, want the deadline and the last failure", err)
	}
}

func TestBackoff_Delay(t *testing.T) {
	b := &Backoff{InitialDelay: 10 * time.Millisecond, MaxDelay: 50 * time.Millisecond, Multiplier: 2}
	want := []time.Duration{10, 20, 40, 50, 50}
	for i, w := range want {
		if got := b.Delay(i + 1); got != w*time.Millisecond {
			t.Errorf("Delay(%d) = %v, want %v", i+1, got, w*time.Millisecond)
		}
	}

	var zero Backoff
	if got := zero.Delay(1); got != 50*time.Millisecond {
		t.Errorf("zero-value Delay(1) = %v, want 50ms", got)
	}
	if got := zero.Delay(20); got != 5*time.Second {
		t.Errorf("zero-value Delay(20) = %v, want the 5s cap", got)
	}
}

func TestBackoff_ZeroValueWaits(t *testing.T) {
	var waits []time.Duration
	b := &Backoff{MaxAttempts: 2, OnRetry: func(_ int, _ error, d time.Duration) { waits = append(waits, d) }}

	start := time.Now()
	b.Do(context.Background(), func(int) error { return unix.EINTR }) //nolint:errcheck
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("elapsed %v, want at least the 50ms default delay", elapsed)
	}
	if len(waits) != 1 {
		t.Errorf("waits = %v, want one", waits)
	}
}

func TestPermanent(t *testing.T) {
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}
	if !IsPermanent(Permanent(unix.EINVAL)) {
		t.Error("wrapped error should be permanent")
	}
	if IsPermanent(unix.EINVAL) || IsPermanent(nil) {
		t.Error("bare errors are not permanent")
	}
}

func TestJitter_Range(t *testing.T) {
	d := 100 * time.Millisecond
	lower := time.Duration(float64(d) * 0.74)
	upper := time.Duration(float64(d) * 1.26)
	for i := 0; i < 100; i++ {
		if j := addJitter(d); j < lower || j > upper {
			t.Fatalf("jitter %v outside [%v, %v]", j, lower, upper)
		}
	}
}
