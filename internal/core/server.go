package core

import (
	"context"
	"fmt"
	"io"
	"net/netip"
	"os"
	"sync"
	"time"

	apperr "fcgisock/internal/errors"
	"fcgisock/internal/handler"
	"fcgisock/internal/metrics"
	"fcgisock/internal/retry"
	"fcgisock/internal/session"
	"fcgisock/internal/transport"
	"fcgisock/util"
)

// Server probes the inherited descriptor once and then either serves
// the descriptor itself as a single stream (direct mode) or runs an
// accept loop on it (multiplexed mode).
type Server struct {
	Listener *transport.Listener
	Handler  handler.Handler

	// MaxConns bounds concurrently served connections (default 1).
	// The loop does not accept while every slot is busy, so excess
	// peers wait in the kernel backlog.
	MaxConns int

	// ReadTimeout and WriteTimeout are applied to each accepted
	// connection at the socket level.  Zero means none.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Allowed restricts which network peers are served.  Empty allows
	// everyone; Unix domain peers are always allowed.
	Allowed []netip.Addr

	// Backoff paces retries of transient accept failures; nil means a
	// failed accept ends Run.  Breaker, when set, stops calling accept
	// for a while after repeated failures.
	Backoff *retry.Backoff
	Breaker *retry.CircuitBreaker

	// Logger and Metrics are optional.  A nil Logger is quiet and a
	// nil collector records nothing.
	Logger  *util.Logger
	Metrics *metrics.Collector

	// Stdin/Stdout are the direct-mode stream.  Stdin defaults to the
	// inherited descriptor and Stdout to os.Stdout.
	Stdin  io.Reader
	Stdout io.Writer
}

var _ Runner = (*Server)(nil)

func (s *Server) stdin() io.Reader {
	if s.Stdin != nil {
		return s.Stdin
	}
	return session.FDReader(s.Listener.FD())
}

func (s *Server) stdout() io.Writer {
	if s.Stdout != nil {
		return s.Stdout
	}
	return os.Stdout
}

// logger returns s.Logger, or a quiet logger when none is set.
func (s *Server) logger() *util.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return util.NewLogger(int(util.LogQuiet))
}

func (s *Server) maxConns() int {
	if s.MaxConns > 0 {
		return s.MaxConns
	}
	return 1
}

// Run serves until the context is cancelled, a non-transient accept
// error occurs, or, in direct mode, the single stream is done.
//
// accept(2) cannot be interrupted, so on cancellation Run stops
// waiting for it, lets in-flight handlers finish and returns nil.  A
// connection that still arrives afterwards is torn down unserved.
func (s *Server) Run(ctx context.Context) error {
	mode := s.Listener.Mode()
	s.logger().Verbose("descriptor %d is %s", s.Listener.FD(), mode)
	s.Metrics.SetMode(mode.String())

	if mode == transport.ModeDirect {
		return s.serveDirect(ctx)
	}
	return s.serveMultiplexed(ctx)
}

// ── Direct ───────────────────────────────────────────────────────────

func (s *Server) serveDirect(ctx context.Context) error {
	stream := &session.Direct{In: s.stdin(), Out: s.stdout()}
	sess := session.New(stream, transport.ModeDirect, "", s.logger())
	if err := s.Handler.Serve(ctx, sess); err != nil {
		s.Metrics.RecordError(err.Error())
		return fmt.Errorf("direct: %w", err)
	}
	return nil
}

// ── Multiplexed ──────────────────────────────────────────────────────

func (s *Server) serveMultiplexed(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	slots := make(chan struct{}, s.maxConns())
	accepted := make(chan *transport.Conn)
	acceptErr := make(chan error, 1)

	go func() {
		acceptErr <- s.acceptLoop(ctx, slots, accepted)
	}()

	// Only this goroutine touches wg, so Add never races with Wait.
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-acceptErr:
			return err
		case conn := <-accepted:
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer func() { <-slots }()
				s.serveConn(ctx, conn)
			}()
		}
	}
}

// acceptLoop takes a slot, accepts, and hands the connection over.  It
// owns a connection until Run receives it.
func (s *Server) acceptLoop(ctx context.Context, slots chan struct{}, accepted chan<- *transport.Conn) error {
	for {
		select {
		case slots <- struct{}{}:
		case <-ctx.Done():
			return nil
		}

		conn, err := s.accept(ctx)
		if err != nil {
			<-slots
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		select {
		case accepted <- conn:
		case <-ctx.Done():
			s.logger().Verbose("shutting down, releasing fd=%d unserved", conn.FD())
			conn.Close()
			<-slots
			return nil
		}
	}
}

// accept runs one accept, retrying transient failures through the
// backoff and breaker when they are configured.
func (s *Server) accept(ctx context.Context) (*transport.Conn, error) {
	if s.Backoff == nil {
		return s.acceptOnce()
	}

	var conn *transport.Conn
	err := s.Backoff.Do(ctx, func(int) error {
		c, err := s.acceptOnce()
		switch {
		case err == nil:
			conn = c
			return nil
		case apperr.Is(err, apperr.ErrCircuitOpen):
			s.logger().Debug("accept paused for %v", s.Breaker.RetryAfter())
			return err
		case apperr.IsRetryable(err):
			return err
		default:
			return retry.Permanent(err)
		}
	})
	return conn, err
}

func (s *Server) acceptOnce() (*transport.Conn, error) {
	if s.Breaker == nil {
		return s.Listener.Accept()
	}
	var conn *transport.Conn
	err := s.Breaker.Execute(func() error {
		c, err := s.Listener.Accept()
		conn = c
		return err
	})
	return conn, err
}

// serveConn runs the handler on one connection.  The deferred Close is
// the connection's release: it runs on return, on a rejected peer and
// while a handler panic unwinds.
func (s *Server) serveConn(ctx context.Context, conn *transport.Conn) {
	defer conn.Close()

	log := s.logger().With(fmt.Sprintf("fd=%d", conn.FD()))
	defer func() {
		if r := recover(); r != nil {
			log.Error("handler panic: %v", r)
			s.Metrics.RecordError(fmt.Sprint(r))
		}
	}()

	peer, err := conn.Peer()
	if err != nil {
		log.Warn("rejecting connection: %v", err)
		s.Metrics.ConnectionRejected()
		return
	}
	if !s.allowed(peer) {
		log.Warn("rejecting connection from %s: not an allowed web server address", peer)
		s.Metrics.ConnectionRejected()
		return
	}
	if err := conn.SetTimeouts(s.ReadTimeout, s.WriteTimeout); err != nil {
		log.Warn("rejecting connection: %v", err)
		s.Metrics.ConnectionRejected()
		return
	}

	if peer == "" {
		log.Verbose("connection from local peer")
	} else {
		log.Verbose("connection from %s", peer)
	}

	sess := session.New(conn, transport.ModeMultiplexed, peer, log)
	if err := s.Handler.Serve(ctx, sess); err != nil {
		log.Warn("handler: %v", err)
		s.Metrics.RecordError(err.Error())
	}
}

// allowed reports whether peer may be served.  Local peers ("") are
// always allowed.
func (s *Server) allowed(peer string) bool {
	if len(s.Allowed) == 0 || peer == "" {
		return true
	}
	ap, err := netip.ParseAddrPort(peer)
	if err != nil {
		return false
	}
	addr := ap.Addr().Unmap()
	for _, a := range s.Allowed {
		if a == addr {
			return true
		}
	}
	return false
}
