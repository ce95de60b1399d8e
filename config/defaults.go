package config

import "time"

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags, config file parsing, and environment variable
// loading.

const (
	// DefaultListenFD is the descriptor a FastCGI supervisor uses for
	// the listening socket.
	DefaultListenFD = 0

	// DefaultHandler serves each stream back to its peer.
	DefaultHandler = HandlerEcho

	// DefaultMaxConns is how many connections are served at once.  One
	// keeps the classic accept, serve, release cycle strictly serial.
	DefaultMaxConns = 1

	// DefaultMaxRequest caps the request bytes the exec handler buffers.
	DefaultMaxRequest = 1 << 20

	// DefaultAcceptRetries is how many times a transient accept failure
	// is retried before the server gives up.
	DefaultAcceptRetries = 10

	// DefaultBreakerFailures is how many consecutive accept failures
	// open the accept circuit.
	DefaultBreakerFailures = 5

	// DefaultBreakerReset is how long the accept circuit stays open.
	DefaultBreakerReset = time.Second
)

// Handler names accepted by --handler.
const (
	HandlerEcho = "echo"
	HandlerExec = "exec"
)

// Default returns a Config populated with the defaults above.
func Default() Config {
	return Config{
		ListenFD:        DefaultListenFD,
		Handler:         DefaultHandler,
		MaxConns:        DefaultMaxConns,
		MaxRequest:      DefaultMaxRequest,
		AcceptRetries:   DefaultAcceptRetries,
		BreakerFailures: DefaultBreakerFailures,
		BreakerReset:    DefaultBreakerReset,
	}
}
