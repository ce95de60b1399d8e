// Package handler defines what happens over a request stream once the
// transport has produced one.  Real deployments plug a FastCGI record
// layer in here; the handlers in this package cover the echo and
// legacy-CGI bridge cases the fcgisock binary ships with.
package handler

import (
	"context"

	"fcgisock/internal/session"
)

// Handler serves one session.  It returns when the stream is done or
// the context is cancelled.  It must not close the stream: the caller
// owns the connection and tears it down after Serve returns.
type Handler interface {
	Serve(ctx context.Context, sess *session.Session) error
}

// Func adapts an ordinary function to the Handler interface.
type Func func(ctx context.Context, sess *session.Session) error

// Serve calls f.
func (f Func) Serve(ctx context.Context, sess *session.Session) error { return f(ctx, sess) }
