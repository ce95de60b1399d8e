// Package config defines the runtime configuration for fcgisock and
// the helpers that validate it.
package config

import (
	"fmt"
	"net/netip"
	"strings"
	"time"

	apperr "fcgisock/internal/errors"
)

// Config holds every tuneable for one fcgisock process.
type Config struct {
	// ── Transport ────────────────────────────────────────────────────
	ListenFD     int           `yaml:"listen_fd" toml:"listen_fd"`
	MaxConns     int           `yaml:"max_conns" toml:"max_conns"`
	ReadTimeout  time.Duration `yaml:"read_timeout" toml:"read_timeout"`   // SO_RCVTIMEO per connection (0 = none)
	WriteTimeout time.Duration `yaml:"write_timeout" toml:"write_timeout"` // SO_SNDTIMEO per connection (0 = none)
	AllowedAddrs []string      `yaml:"allowed_addrs" toml:"allowed_addrs"` // FCGI_WEB_SERVER_ADDRS

	// ── Accept loop ──────────────────────────────────────────────────
	AcceptRetries   int           `yaml:"accept_retries" toml:"accept_retries"`
	BreakerFailures int           `yaml:"breaker_failures" toml:"breaker_failures"`
	BreakerReset    time.Duration `yaml:"breaker_reset" toml:"breaker_reset"`

	// ── Handler ──────────────────────────────────────────────────────
	Handler    string `yaml:"handler" toml:"handler"` // "echo" or "exec"
	Execute    string `yaml:"exec" toml:"exec"`       // -e: program path
	Command    string `yaml:"command" toml:"command"` // -c: shell command
	MaxRequest int64  `yaml:"max_request" toml:"max_request"`

	// ── Output ───────────────────────────────────────────────────────
	Verbose int  `yaml:"verbose" toml:"verbose"`
	Stats   bool `yaml:"stats" toml:"stats"` // print a metrics snapshot on exit

	ConfigFile string `yaml:"-" toml:"-"`
}

// ParseAddrList splits a comma-separated address list such as the
// value of FCGI_WEB_SERVER_ADDRS.  Blank entries are dropped.
func ParseAddrList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Allowed parses AllowedAddrs into addresses.
func (c *Config) Allowed() ([]netip.Addr, error) {
	out := make([]netip.Addr, 0, len(c.AllowedAddrs))
	for _, s := range c.AllowedAddrs {
		a, err := netip.ParseAddr(s)
		if err != nil {
			return nil, &apperr.ConfigError{
				Field:   "allow",
				Value:   s,
				Message: "not an IP address",
				Hint:    "list web server addresses as IPs, e.g. 127.0.0.1,::1",
			}
		}
		out = append(out, a.Unmap())
	}
	return out, nil
}

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.ListenFD < 0 {
		return &apperr.ConfigError{
			Field:   "fd",
			Value:   c.ListenFD,
			Message: "must not be negative",
			Hint:    "the supervisor passes the listening socket as descriptor 0",
		}
	}
	if c.MaxConns < 1 {
		return &apperr.ConfigError{
			Field:   "max-conns",
			Value:   c.MaxConns,
			Message: "must be at least 1",
		}
	}
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 {
		return &apperr.ConfigError{
			Field:   "read-timeout/write-timeout",
			Message: "timeouts must not be negative",
		}
	}
	if c.AcceptRetries < 0 {
		return &apperr.ConfigError{
			Field:   "accept-retries",
			Value:   c.AcceptRetries,
			Message: "must not be negative",
			Hint:    "use 0 to retry transient accept failures forever",
		}
	}
	if c.Execute != "" && c.Command != "" {
		return fmt.Errorf("-e and -c are mutually exclusive")
	}

	switch c.Handler {
	case HandlerEcho:
	case HandlerExec:
		if c.Execute == "" && c.Command == "" {
			return &apperr.ConfigError{
				Field:   "handler",
				Value:   c.Handler,
				Message: "needs a program",
				Hint:    "pass -e <program> or -c <shell command>",
			}
		}
	default:
		return &apperr.ConfigError{
			Field:   "handler",
			Value:   c.Handler,
			Message: "unknown handler",
			Hint:    "use one of: echo, exec",
		}
	}

	if _, err := c.Allowed(); err != nil {
		return err
	}
	return nil
}
