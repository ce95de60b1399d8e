// Package errors provides domain-specific error types for fcgisock.
//
// These types carry structured context (operation, descriptor,
// retryability) that helps the accept loop decide whether to keep
// going and gives better diagnostics than plain string wrapping.
package errors

import (
	"errors"
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// ── Sentinel errors ──────────────────────────────────────────────────

var (
	ErrUnsupportedPeer = errors.New("unsupported FastCGI socket")
	ErrNotConnected    = errors.New("not connected")
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrClosed          = errors.New("connection is closed")
)

// ── Structured error types ───────────────────────────────────────────

// TransportError represents a failed syscall on a listening or
// accepted descriptor.
type TransportError struct {
	Op        string // operation: "accept", "read", "write", "getpeername", "setsockopt"
	FD        int    // descriptor involved
	Err       error  // underlying error, usually a unix.Errno
	Retryable bool   // whether the caller may retry
}

func (e *TransportError) Error() string {
	s := fmt.Sprintf("%s fd=%d: %v", e.Op, e.FD, e.Err)
	if e.Retryable {
		s += " (retryable)"
	}
	return s
}

func (e *TransportError) Unwrap() error { return e.Err }

// ConfigError represents an invalid configuration value.
type ConfigError struct {
	Field   string      // config field name
	Value   interface{} // the invalid value (nil if missing)
	Message string      // human-readable explanation
	Hint    string      // suggestion for the user (optional)
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config: --%s", e.Field)
	if e.Value != nil {
		msg += fmt.Sprintf("=%v", e.Value)
	}
	msg += ": " + e.Message
	if e.Hint != "" {
		msg += "\n  hint: " + e.Hint
	}
	return msg
}

// ── Constructors ─────────────────────────────────────────────────────

// Wrap creates a TransportError, detecting retryability from the
// underlying errno.
func Wrap(op string, fd int, err error) *TransportError {
	return &TransportError{
		Op:        op,
		FD:        fd,
		Err:       err,
		Retryable: classifyRetryable(err),
	}
}

// ── Classification helpers ───────────────────────────────────────────

// IsRetryable reports whether err is worth retrying.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var te *TransportError
	if errors.As(err, &te) {
		return te.Retryable
	}
	return classifyRetryable(err)
}

// transientErrnos are the accept/read/write failures that describe a
// passing condition of the process or the peer rather than a broken
// descriptor.
var transientErrnos = []unix.Errno{
	unix.EINTR,
	unix.EAGAIN,
	unix.ECONNABORTED,
	unix.EMFILE,
	unix.ENFILE,
	unix.ENOBUFS,
	unix.ENOMEM,
}

func classifyRetryable(err error) bool {
	if err == nil {
		return false
	}
	var errno unix.Errno
	if errors.As(err, &errno) {
		for _, e := range transientErrnos {
			if errno == e {
				return true
			}
		}
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Temporary() //nolint:staticcheck // Temporary is deprecated but still useful
	}
	return false
}

// ── Re-exports for convenience ───────────────────────────────────────
//
// These allow callers to use fcgisock/internal/errors as a drop-in
// replacement for the standard library in common operations.

// As is [errors.As].
func As(err error, target interface{}) bool { return errors.As(err, target) }

// Is is [errors.Is].
func Is(err, target error) bool { return errors.Is(err, target) }

// New is [errors.New].
func New(text string) error { return errors.New(text) }

// Unwrap is [errors.Unwrap].
func Unwrap(err error) error { return errors.Unwrap(err) }

// Join is [errors.Join].
func Join(errs ...error) error { return errors.Join(errs...) }
