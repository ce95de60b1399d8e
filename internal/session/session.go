// Package session represents a single request stream handed to a
// handler, whichever protocol mode produced it.
//
// Handlers don't need to know whether they are reading an accepted
// connection or the process's own inherited descriptor; they use the
// session's Stream.
package session

import (
	"io"

	"fcgisock/internal/transport"
	"fcgisock/util"
)

// Session encapsulates the runtime context for a single stream.
type Session struct {
	Stream transport.Stream
	Mode   transport.Mode
	Peer   string // "" for local peers and in direct mode
	Logger *util.Logger
}

// New creates a Session bound to the given stream.  A nil logger is
// replaced by a quiet one, so handlers can always log.
func New(stream transport.Stream, mode transport.Mode, peer string, logger *util.Logger) *Session {
	if logger == nil {
		logger = util.NewLogger(int(util.LogQuiet))
	}
	return &Session{
		Stream: stream,
		Mode:   mode,
		Peer:   peer,
		Logger: logger,
	}
}

// Direct is the stream used when the inherited descriptor is already
// connected: requests are read from In and responses written to Out.
// It has no teardown of its own; the descriptors belong to whoever
// started the process.
type Direct struct {
	In  io.Reader
	Out io.Writer
}

func (d *Direct) Read(p []byte) (int, error)  { return d.In.Read(p) }
func (d *Direct) Write(p []byte) (int, error) { return d.Out.Write(p) }

// Flush forwards to Out when it buffers.
func (d *Direct) Flush() error {
	if f, ok := d.Out.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

// Peer is always "": a direct-mode peer is whoever spawned the process.
func (d *Direct) Peer() (string, error) { return "", nil }
