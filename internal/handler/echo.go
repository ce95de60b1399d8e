package handler

import (
	"context"
	"fmt"

	"fcgisock/internal/session"
	"fcgisock/util"
)

// Echo writes every byte it reads back to the peer until the peer
// half-closes.  It is the smoke test for a supervisor setup.
type Echo struct{}

// Serve copies the stream onto itself.
func (Echo) Serve(_ context.Context, sess *session.Session) error {
	n, err := util.Pump(sess.Stream, sess.Stream)
	sess.Logger.Debug("echoed %d bytes", n)
	if err != nil {
		return fmt.Errorf("echo: %w", err)
	}
	return sess.Stream.Flush()
}
