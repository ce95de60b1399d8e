// Package transport is the connection layer of a FastCGI application
// process.  It wraps the listening descriptor inherited from the
// supervisor, decides which protocol mode the process speaks, accepts
// connections and tears each one down without truncating data already
// written to the peer.
//
// Everything above the byte stream (record framing, request routing,
// handlers) belongs to the caller.
package transport

import "io"

// ListenFD is the descriptor on which a FastCGI supervisor hands the
// listening socket to the application process.
const ListenFD = 0

// Stream is a bidirectional byte stream to one peer.  It is satisfied
// by an accepted [Conn] and by the direct-mode stream of package
// session.
type Stream interface {
	io.Reader
	io.Writer

	// Flush pushes buffered output to the peer.  Unbuffered streams
	// return nil.
	Flush() error

	// Peer describes the remote endpoint: "addr:port" for network
	// peers and "" for local ones.
	Peer() (string, error)
}

// Mode is the protocol mode selected by probing the inherited
// descriptor.
type Mode int

const (
	// ModeDirect means the inherited descriptor is already a data
	// stream; the protocol is spoken over it with no accept step.
	ModeDirect Mode = iota
	// ModeMultiplexed means the inherited descriptor is a listening
	// socket and every request arrives on an accepted connection.
	ModeMultiplexed
)

func (m Mode) String() string {
	switch m {
	case ModeDirect:
		return "direct"
	case ModeMultiplexed:
		return "multiplexed"
	default:
		return "unknown"
	}
}
