package core

import (
	"fmt"
	"time"

	"fcgisock/config"
	apperr "fcgisock/internal/errors"
	"fcgisock/internal/handler"
	"fcgisock/internal/metrics"
	"fcgisock/internal/retry"
	"fcgisock/internal/transport"
	"fcgisock/util"
)

// Build constructs the Server described by cfg.  The transport objects
// it creates perform no syscalls; nothing touches the inherited
// descriptor until Run.
func Build(cfg *config.Config, logger *util.Logger, m *metrics.Collector) (*Server, error) {
	h, err := buildHandler(cfg)
	if err != nil {
		return nil, err
	}
	allowed, err := cfg.Allowed()
	if err != nil {
		return nil, err
	}

	ln := transport.FromFD(cfg.ListenFD)
	ln.Logger = logger
	ln.Metrics = m

	return &Server{
		Listener:     ln,
		Handler:      h,
		MaxConns:     cfg.MaxConns,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		Allowed:      allowed,
		Backoff:      buildBackoff(cfg, logger),
		Breaker:      buildBreaker(cfg, logger),
		Logger:       logger,
		Metrics:      m,
	}, nil
}

// ── component builders ───────────────────────────────────────────────

func buildHandler(cfg *config.Config) (handler.Handler, error) {
	switch cfg.Handler {
	case config.HandlerEcho, "":
		return handler.Echo{}, nil
	case config.HandlerExec:
		return &handler.Exec{
			Program:    cfg.Execute,
			Command:    cfg.Command,
			MaxRequest: cfg.MaxRequest,
		}, nil
	default:
		return nil, fmt.Errorf("unknown handler %q", cfg.Handler)
	}
}

func buildBackoff(cfg *config.Config, logger *util.Logger) *retry.Backoff {
	b := retry.DefaultBackoff()
	b.MaxAttempts = cfg.AcceptRetries
	b.OnRetry = func(attempt int, err error, wait time.Duration) {
		logger.Warn("accept attempt %d: %v (retrying in %v)", attempt, err, wait.Truncate(time.Millisecond))
	}
	return b
}

func buildBreaker(cfg *config.Config, logger *util.Logger) *retry.CircuitBreaker {
	return retry.NewCircuitBreaker(&retry.CircuitBreakerConfig{
		MaxFailures:  cfg.BreakerFailures,
		ResetTimeout: cfg.BreakerReset,
		HalfOpenMax:  1,
		IsFailure:    apperr.IsRetryable,
		OnStateChange: func(from, to retry.State) {
			logger.Warn("accept circuit %s → %s", from, to)
		},
	})
}
