//go:build unix

package transport

import (
	"golang.org/x/sys/unix"

	apperr "fcgisock/internal/errors"
	"fcgisock/internal/metrics"
	"fcgisock/util"
)

// Listener wraps the listening descriptor inherited by the process.
// The descriptor belongs to the supervisor: a Listener never closes or
// reconfigures it.
type Listener struct {
	fd int

	// Logger receives per-connection teardown diagnostics.  Nil means
	// quiet.
	Logger *util.Logger
	// Metrics is optional; a nil collector records nothing.
	Metrics *metrics.Collector
}

// New returns a Listener bound to [ListenFD].  It performs no syscall.
func New() *Listener {
	return FromFD(ListenFD)
}

// FromFD returns a Listener bound to an explicit descriptor, for tests
// and supervisors that use a different slot.
func FromFD(fd int) *Listener {
	return &Listener{fd: fd}
}

// FD returns the wrapped descriptor.
func (l *Listener) FD() int { return l.fd }

// IsMultiplexed reports whether the descriptor is a listening socket
// rather than an already connected stream.  It asks for the peer
// address and nothing else: ENOTCONN means there is no peer, so the
// process must accept.  Any other outcome, success or a different
// error such as ENOTSOCK for a pipe, means the descriptor carries data
// directly.
func (l *Listener) IsMultiplexed() bool {
	_, err := unix.Getpeername(l.fd)
	return apperr.Is(err, unix.ENOTCONN)
}

// Mode is [Listener.IsMultiplexed] expressed as a [Mode].
func (l *Listener) Mode() Mode {
	if l.IsMultiplexed() {
		return ModeMultiplexed
	}
	return ModeDirect
}

// Accept blocks until a peer connects and returns a Conn that owns the
// new descriptor.  A failed accept is returned as a
// *errors.TransportError; retrying is the caller's decision.
func (l *Listener) Accept() (*Conn, error) {
	nfd, err := accept(l.fd)
	if err != nil {
		terr := apperr.Wrap("accept", l.fd, err)
		l.Metrics.AcceptFailed(terr.Error())
		return nil, terr
	}
	return newConn(nfd, l.logger(), l.Metrics), nil
}

// Serve accepts one connection and hands it to fn.  The connection is
// torn down when fn returns, whether it returns an error or panics.
func (l *Listener) Serve(fn func(*Conn) error) error {
	conn, err := l.Accept()
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(conn)
}

func (l *Listener) logger() *util.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return util.NewLogger(int(util.LogQuiet))
}
