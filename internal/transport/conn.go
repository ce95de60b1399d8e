//go:build unix

package transport

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	apperr "fcgisock/internal/errors"
	"fcgisock/internal/metrics"
	"fcgisock/util"
)

// Conn is one accepted connection.  It exclusively owns its descriptor
// and is not safe for concurrent use, except that Close may be called
// more than once.
//
// Close runs the teardown: half-close the write side, read and discard
// whatever the peer still sends until end of stream, then close.  A
// plain close with unread input makes the kernel answer with a reset,
// which can destroy response bytes the peer has not consumed yet.
// Callers acquire a Conn and release it with defer conn.Close(), or
// use [Listener.Serve] which does that for them.
type Conn struct {
	fd      int
	logger  *util.Logger
	metrics *metrics.Collector

	once    sync.Once
	closed  atomic.Bool
	drained atomic.Int64
}

func newConn(fd int, logger *util.Logger, m *metrics.Collector) *Conn {
	m.ConnectionOpened()
	return &Conn{
		fd:      fd,
		logger:  logger.With(fmt.Sprintf("fd=%d", fd)),
		metrics: m,
	}
}

// FD returns the owned descriptor.  It is only meaningful until Close.
func (c *Conn) FD() int { return c.fd }

// Read performs a single read(2).  End of stream is reported as
// (0, io.EOF).  Interrupted reads are not retried.
func (c *Conn) Read(p []byte) (int, error) {
	if c.closed.Load() {
		return 0, apperr.Wrap("read", c.fd, apperr.ErrClosed)
	}
	if len(p) == 0 {
		return 0, nil
	}
	n, err := unix.Read(c.fd, p)
	if err != nil {
		return 0, apperr.Wrap("read", c.fd, err)
	}
	if n == 0 {
		return 0, io.EOF
	}
	c.metrics.BytesReceived(int64(n))
	return n, nil
}

// Write performs a single write(2) and returns how much the kernel
// took, which may be less than len(p).  Use util.WriteFull to send a
// whole buffer.
func (c *Conn) Write(p []byte) (int, error) {
	if c.closed.Load() {
		return 0, apperr.Wrap("write", c.fd, apperr.ErrClosed)
	}
	if len(p) == 0 {
		return 0, nil
	}
	n, err := unix.Write(c.fd, p)
	if err != nil {
		return 0, apperr.Wrap("write", c.fd, err)
	}
	c.metrics.BytesSent(int64(n))
	return n, nil
}

// Flush is a no-op: writes go straight to the kernel.
func (c *Conn) Flush() error { return nil }

// SetTimeouts sets SO_RCVTIMEO and SO_SNDTIMEO on the descriptor.  A
// zero duration leaves that direction untouched.  The transport itself
// never times out; this is the socket-level knob for callers that need
// one, and it also bounds the teardown drain.
func (c *Conn) SetTimeouts(read, write time.Duration) error {
	if c.closed.Load() {
		return apperr.Wrap("setsockopt", c.fd, apperr.ErrClosed)
	}
	if read > 0 {
		tv := unix.NsecToTimeval(read.Nanoseconds())
		if err := unix.SetsockoptTimeval(c.fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
			return apperr.Wrap("setsockopt", c.fd, err)
		}
	}
	if write > 0 {
		tv := unix.NsecToTimeval(write.Nanoseconds())
		if err := unix.SetsockoptTimeval(c.fd, unix.SOL_SOCKET, unix.SO_SNDTIMEO, &tv); err != nil {
			return apperr.Wrap("setsockopt", c.fd, err)
		}
	}
	return nil
}

// Drained returns the number of bytes the teardown discarded.
func (c *Conn) Drained() int64 { return c.drained.Load() }

// Close tears the connection down.  The first call runs the teardown;
// later calls do nothing.  Failures inside the teardown are logged and
// counted, never returned, so Close always reports nil.
func (c *Conn) Close() error {
	c.once.Do(c.teardown)
	return nil
}

func (c *Conn) teardown() {
	if err := unix.Shutdown(c.fd, unix.SHUT_WR); err != nil {
		c.suppressed("shutdown", err)
	}

	n, err := c.drain()
	c.drained.Store(n)
	c.metrics.BytesDrained(n)
	if err != nil {
		c.suppressed("drain", err)
	}

	if err := unix.Close(c.fd); err != nil {
		c.suppressed("close", err)
	}
	c.closed.Store(true)
	c.metrics.ConnectionClosed()
	c.logger.Debug("closed, drained %d bytes", n)
}

// drain reads and discards until end of stream or the first error.
func (c *Conn) drain() (int64, error) {
	return drainAll(func(p []byte) (int, error) { return unix.Read(c.fd, p) })
}

// drainAll calls read with a pooled buffer until it reports end of
// stream or fails.  Interrupted reads are retried.
func drainAll(read func(p []byte) (int, error)) (int64, error) {
	buf := util.GetBuf()
	defer util.PutBuf(buf)

	var total int64
	for {
		n, err := read(*buf)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, nil
		}
		total += int64(n)
	}
}

func (c *Conn) suppressed(step string, err error) {
	c.metrics.TeardownFailed()
	c.logger.Debug("teardown %s: %v", step, err)
}
