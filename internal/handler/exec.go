package handler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"time"

	"fcgisock/internal/session"
	"fcgisock/util"
)

const (
	// DefaultMaxRequest caps how much request input Exec buffers for
	// the child.  Longer requests are refused, not truncated.
	DefaultMaxRequest = 1 << 20

	// execWaitDelay bounds how long Serve waits for the child's output
	// pipes once it has exited, e.g. when a grandchild holds them.
	execWaitDelay = time.Second
)

// ErrRequestTooLarge is returned, without starting the child, when a
// request exceeds Exec.MaxRequest.
var ErrRequestTooLarge = errors.New("request too large")

// Exec bridges a stream to a child process for legacy line-oriented
// programs: the request is the child's stdin and its stdout and stderr
// are the response.  Either Program (-e) or Command (-c) must be set.
//
// The request is read up to the peer's half-close before the child
// starts, so no goroutine is left reading the stream once Serve
// returns and the connection is torn down.
type Exec struct {
	Program    string // -e: execute a program directly
	Command    string // -c: execute via /bin/sh
	MaxRequest int64  // largest accepted request; 0 means DefaultMaxRequest
}

// Serve runs one child per session.  REMOTE_ADDR is set from the
// session's peer when there is one.
func (e *Exec) Serve(ctx context.Context, sess *session.Session) error {
	var cmd *exec.Cmd

	switch {
	case e.Command != "":
		cmd = exec.CommandContext(ctx, "/bin/sh", "-c", e.Command)
	case e.Program != "":
		cmd = exec.CommandContext(ctx, e.Program)
	default:
		return fmt.Errorf("no command specified for exec handler")
	}

	limit := e.MaxRequest
	if limit <= 0 {
		limit = DefaultMaxRequest
	}
	req, err := io.ReadAll(io.LimitReader(sess.Stream, limit+1))
	if err != nil {
		return fmt.Errorf("exec: read request: %w", err)
	}
	if int64(len(req)) > limit {
		return fmt.Errorf("exec: %w: more than %d bytes", ErrRequestTooLarge, limit)
	}

	out := util.FullWriter(sess.Stream)
	cmd.Stdin = bytes.NewReader(req)
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.WaitDelay = execWaitDelay
	cmd.Env = os.Environ()
	if host, _, err := net.SplitHostPort(sess.Peer); err == nil {
		cmd.Env = append(cmd.Env, "REMOTE_ADDR="+host)
	}

	sess.Logger.Debug("exec: %s (%d request bytes)", cmd.String(), len(req))

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("exec %q: %w", cmd.Path, err)
	}
	return sess.Stream.Flush()
}
