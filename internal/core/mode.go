// Package core is the orchestration layer.  It composes the transport,
// a handler and the accept-loop policies into a running process, and
// provides a builder that assembles all of it from a Config.
//
// Architecture layers (bottom → top):
//
//	transport  →  session  →  handler  →  core  →  cmd (CLI)
//
// The transport decides nothing about retries, concurrency or which
// peers to serve; those policies live here.
package core

import "context"

// Runner is a complete process lifecycle: probe the inherited
// descriptor, serve, and return when done or cancelled.
type Runner interface {
	Run(ctx context.Context) error
}
