//go:build linux

package transport

import (
	"bytes"
	"io"
	"net"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	apperr "fcgisock/internal/errors"
	"fcgisock/internal/metrics"
	"fcgisock/util"
)

var _ Stream = (*Conn)(nil)

// TestConn_PingEndToEnd accepts a peer that sends "ping" and
// half-closes, reads it back, sees end of stream and releases cleanly.
func TestConn_PingEndToEnd(t *testing.T) {
	fd, addr := listenTCP(t)
	l := FromFD(fd)

	clientDone := make(chan error, 1)
	go func() {
		c, err := net.DialTimeout("tcp", addr, 2*time.Second)
		if err != nil {
			clientDone <- err
			return
		}
		defer c.Close()
		c.SetDeadline(time.Now().Add(3 * time.Second)) //nolint:errcheck

		if _, err := c.Write([]byte("ping")); err != nil {
			clientDone <- err
			return
		}
		c.(*net.TCPConn).CloseWrite() //nolint:errcheck

		_, err = io.ReadAll(c)
		clientDone <- err
	}()

	conn, err := l.Accept()
	if err != nil {
		t.Fatalf("accept: %v", err)
	}

	buf := make([]byte, 16)
	n, err := io.ReadFull(conn, buf[:4])
	if err != nil || n != 4 || string(buf[:4]) != "ping" {
		t.Fatalf("read = %d %q %v, want 4 \"ping\"", n, buf[:n], err)
	}

	n, err = conn.Read(buf)
	if n != 0 || err != io.EOF {
		t.Fatalf("second read = %d, %v; want 0, io.EOF", n, err)
	}

	if err := conn.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := <-clientDone; err != nil {
		t.Fatalf("client: %v", err)
	}
}

// TestConn_DrainConsumesLateBytes models a slow client: it only starts
// sending its trailing N bytes after the server has released the
// connection.  The server's response must arrive intact and the client
// must see a clean end of stream rather than a reset.
func TestConn_DrainConsumesLateBytes(t *testing.T) {
	const late = 200 * 1024

	fd, addr := listenTCP(t)
	m := metrics.New()
	l := FromFD(fd)
	l.Metrics = m

	type result struct {
		response []byte
		tail     error
		err      error
	}
	clientDone := make(chan result, 1)
	go func() {
		var res result
		defer func() { clientDone <- res }()

		c, err := net.DialTimeout("tcp", addr, 2*time.Second)
		if err != nil {
			res.err = err
			return
		}
		defer c.Close()
		c.SetDeadline(time.Now().Add(5 * time.Second)) //nolint:errcheck

		// The server's half-close shows up as end of stream after the
		// response bytes.
		res.response, res.err = io.ReadAll(c)
		if res.err != nil {
			return
		}

		if _, res.err = c.Write(bytes.Repeat([]byte("x"), late)); res.err != nil {
			return
		}
		c.(*net.TCPConn).CloseWrite() //nolint:errcheck

		var one [1]byte
		_, res.tail = c.Read(one[:])
	}()

	conn, err := l.Accept()
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := util.WriteFull(conn, []byte("response body")); err != nil {
		t.Fatalf("write: %v", err)
	}
	conn.Close()

	res := <-clientDone
	if res.err != nil {
		t.Fatalf("client: %v", res.err)
	}
	if string(res.response) != "response body" {
		t.Errorf("client got %q, want %q", res.response, "response body")
	}
	if res.tail != io.EOF {
		t.Errorf("client final read = %v, want io.EOF (no reset)", res.tail)
	}
	if conn.Drained() != late {
		t.Errorf("Drained() = %d, want %d", conn.Drained(), late)
	}
	if m.TotalBytesDrained() != late {
		t.Errorf("metrics drained = %d, want %d", m.TotalBytesDrained(), late)
	}
}

func TestConn_CloseInvalidatesDescriptor(t *testing.T) {
	a, b := socketPair(t)
	defer unix.Close(b)
	unix.Shutdown(b, unix.SHUT_WR) //nolint:errcheck

	m := metrics.New()
	conn := newConn(a, util.NewLogger(0), m)
	if m.ActiveConnections() != 1 {
		t.Fatalf("active = %d, want 1", m.ActiveConnections())
	}

	if err := conn.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if isOpen(a) {
		t.Fatalf("descriptor %d still open after Close", a)
	}
	if m.ActiveConnections() != 0 {
		t.Errorf("active = %d, want 0", m.ActiveConnections())
	}

	// A second Close must not touch a descriptor number the process
	// may have reused.
	if err := conn.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := conn.Read(make([]byte, 1)); !apperr.Is(err, apperr.ErrClosed) {
		t.Errorf("Read after Close = %v, want ErrClosed", err)
	}
	if _, err := conn.Write([]byte("x")); !apperr.Is(err, apperr.ErrClosed) {
		t.Errorf("Write after Close = %v, want ErrClosed", err)
	}
}

// TestConn_CloseSuppressesTeardownErrors closes a connection whose
// descriptor is no longer a socket; every step fails and Close still
// reports nil.
func TestConn_CloseSuppressesTeardownErrors(t *testing.T) {
	var pipe [2]int
	if err := unix.Pipe2(pipe[:], unix.O_CLOEXEC); err != nil {
		t.Fatalf("pipe: %v", err)
	}
	unix.Close(pipe[1])

	m := metrics.New()
	conn := newConn(pipe[0], util.NewLogger(0), m)
	if err := conn.Close(); err != nil {
		t.Fatalf("Close = %v, want nil", err)
	}
	// shutdown(2) on a pipe fails with ENOTSOCK; the drain hits EOF.
	if m.TeardownErrors() != 1 {
		t.Errorf("teardown errors = %d, want 1", m.TeardownErrors())
	}
	if m.ErrorCount() != 0 {
		t.Errorf("teardown must not surface as an error, got %d", m.ErrorCount())
	}
}

// TestConn_ShortWrite fills the send buffer of a peer that never reads.
// With a send timeout the kernel returns a partial count, which Write
// must pass through unchanged.
func TestConn_ShortWrite(t *testing.T) {
	a, b := socketPair(t)

	conn := newConn(a, util.NewLogger(0), nil)
	if err := conn.SetTimeouts(0, 50*time.Millisecond); err != nil {
		t.Fatalf("SetTimeouts: %v", err)
	}

	payload := make([]byte, 8<<20)
	n, err := conn.Write(payload)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n <= 0 || n >= len(payload) {
		t.Fatalf("Write = %d, want a short count in (0, %d)", n, len(payload))
	}

	// The buffer is still full, so the next attempt times out.
	_, err = conn.Write(payload[n:])
	if !apperr.Is(err, unix.EAGAIN) {
		t.Errorf("second Write = %v, want EAGAIN", err)
	}
	if !apperr.IsRetryable(err) {
		t.Error("send timeout should be retryable")
	}

	unix.Close(b)
	conn.Close()
}

func TestConn_ReadError(t *testing.T) {
	a, b := socketPair(t)
	defer unix.Close(b)

	conn := newConn(a, util.NewLogger(0), nil)
	defer func() {
		unix.Shutdown(b, unix.SHUT_WR) //nolint:errcheck
		conn.Close()
	}()
	if err := conn.SetTimeouts(20*time.Millisecond, 0); err != nil {
		t.Fatalf("SetTimeouts: %v", err)
	}

	_, err := conn.Read(make([]byte, 8))
	var te *apperr.TransportError
	if !apperr.As(err, &te) || te.Op != "read" {
		t.Fatalf("Read = %v, want read TransportError", err)
	}
}

func TestConn_Flush(t *testing.T) {
	a, b := socketPair(t)
	unix.Close(b)
	conn := newConn(a, util.NewLogger(0), nil)
	defer conn.Close()

	if err := conn.Flush(); err != nil {
		t.Errorf("Flush = %v, want nil", err)
	}
}

func TestConn_Metrics(t *testing.T) {
	a, b := socketPair(t)
	m := metrics.New()
	conn := newConn(a, util.NewLogger(0), m)

	if _, err := conn.Write([]byte("hello")); err != nil {
		t.Fatal(err)
	}
	if _, err := unix.Write(b, []byte("hi")); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 8)
	if _, err := conn.Read(buf); err != nil {
		t.Fatal(err)
	}
	unix.Close(b)
	conn.Close()

	if m.TotalBytesOut() != 5 || m.TotalBytesIn() != 2 {
		t.Errorf("bytes out/in = %d/%d, want 5/2", m.TotalBytesOut(), m.TotalBytesIn())
	}
}

func TestDrainAll_RetriesInterruptedReads(t *testing.T) {
	steps := []struct {
		n   int
		err error
	}{
		{5, nil},
		{0, unix.EINTR},
		{7, nil},
		{0, unix.EINTR},
		{0, nil},
	}
	calls := 0
	total, err := drainAll(func(p []byte) (int, error) {
		s := steps[calls]
		calls++
		return s.n, s.err
	})
	if err != nil {
		t.Fatalf("drainAll: %v", err)
	}
	if total != 12 || calls != len(steps) {
		t.Errorf("total=%d calls=%d, want 12/%d", total, calls, len(steps))
	}
}

func TestDrainAll_StopsOnOtherErrors(t *testing.T) {
	calls := 0
	total, err := drainAll(func(p []byte) (int, error) {
		calls++
		if calls == 1 {
			return 3, nil
		}
		return 0, unix.ECONNRESET
	})
	if err != unix.ECONNRESET || total != 3 || calls != 2 {
		t.Errorf("total=%d calls=%d err=%v, want 3/2/ECONNRESET", total, calls, err)
	}
}
