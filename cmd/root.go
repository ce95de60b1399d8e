// Package cmd wires up the CLI flags and starts the server on the
// inherited descriptor.
package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	flag "github.com/spf13/pflag"
	"golang.org/x/term"

	"fcgisock/config"
	"fcgisock/internal/core"
	"fcgisock/internal/metrics"
	"fcgisock/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X fcgisock/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

// Execute parses args and serves the inherited descriptor until ctx is
// cancelled or the server stops on its own.
func Execute(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("fcgisock", flag.ContinueOnError)
	flags := config.Default()

	// ── transport ────────────────────────────────────────────────
	fs.IntVar(&flags.ListenFD, "fd", config.DefaultListenFD, "Inherited listening descriptor")
	fs.IntVar(&flags.MaxConns, "max-conns", config.DefaultMaxConns, "Connections served at once")

	var readTimeout, writeTimeout float64
	fs.Float64Var(&readTimeout, "read-timeout", 0, "Per-connection read timeout in seconds (0 = none)")
	fs.Float64Var(&writeTimeout, "write-timeout", 0, "Per-connection write timeout in seconds (0 = none)")

	var allow string
	fs.StringVar(&allow, "allow", "", "Comma-separated web server addresses to serve (default: "+config.EnvWebServerAddrs+")")
	fs.IntVar(&flags.AcceptRetries, "accept-retries", config.DefaultAcceptRetries, "Retries for transient accept failures (0 = forever)")

	// ── handler ──────────────────────────────────────────────────
	fs.StringVar(&flags.Handler, "handler", config.DefaultHandler, "Connection handler: echo or exec")
	fs.StringVarP(&flags.Execute, "exec", "e", "", "Program to run per connection (implies --handler=exec)")
	fs.StringVarP(&flags.Command, "command", "c", "", "Shell command to run per connection (implies --handler=exec)")
	fs.Int64Var(&flags.MaxRequest, "max-request", config.DefaultMaxRequest, "Request bytes buffered for exec")

	// ── output ───────────────────────────────────────────────────
	var configFile string
	fs.StringVar(&configFile, "config", "", "YAML or TOML config file (by extension)")
	fs.BoolVar(&flags.Stats, "stats", false, "Print a metrics snapshot on exit")
	fs.CountVarP(&flags.Verbose, "verbose", "v", "Increase verbosity (repeatable)")

	var showVersion, showHelp, dryRun bool
	fs.BoolVar(&dryRun, "dry-run", false, "Validate the configuration and exit")
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&showHelp, "help", "h", false, "Show this help")

	fs.Usage = func() { printUsage(fs) }

	// ── parse ────────────────────────────────────────────────────
	if err := fs.Parse(args); err != nil {
		return err
	}
	if showHelp {
		printUsage(fs)
		return nil
	}
	if showVersion {
		fmt.Printf("fcgisock %s\n", version)
		return nil
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected argument %q (use --help for usage)", fs.Arg(0))
	}

	// ── layer: defaults < file < env < flags ─────────────────────
	cfg := config.Default()
	if configFile != "" {
		if err := config.LoadFile(configFile, &cfg); err != nil {
			return err
		}
	}
	config.LoadFromEnv(&cfg)

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "fd":
			cfg.ListenFD = flags.ListenFD
		case "max-conns":
			cfg.MaxConns = flags.MaxConns
		case "read-timeout":
			cfg.ReadTimeout = seconds(readTimeout)
		case "write-timeout":
			cfg.WriteTimeout = seconds(writeTimeout)
		case "allow":
			cfg.AllowedAddrs = config.ParseAddrList(allow)
		case "accept-retries":
			cfg.AcceptRetries = flags.AcceptRetries
		case "handler":
			cfg.Handler = flags.Handler
		case "exec":
			cfg.Execute = flags.Execute
		case "command":
			cfg.Command = flags.Command
		case "max-request":
			cfg.MaxRequest = flags.MaxRequest
		case "stats":
			cfg.Stats = flags.Stats
		case "verbose":
			cfg.Verbose = flags.Verbose
		}
	})

	// -e / -c select the exec handler unless one was named explicitly.
	if (cfg.Execute != "" || cfg.Command != "") && !fs.Changed("handler") {
		cfg.Handler = config.HandlerExec
	}

	// ── validate ─────────────────────────────────────────────────
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := util.NewLogger(cfg.Verbose)
	m := metrics.New()

	srv, err := core.Build(&cfg, logger, m)
	if err != nil {
		return err
	}
	if dryRun {
		logger.Info("configuration OK: fd=%d handler=%s max-conns=%d", cfg.ListenFD, cfg.Handler, cfg.MaxConns)
		return nil
	}

	if term.IsTerminal(cfg.ListenFD) {
		logger.Warn("descriptor %d is a terminal; fcgisock expects to be started by a FastCGI supervisor", cfg.ListenFD)
	}

	err = srv.Run(ctx)
	if cfg.Stats {
		fmt.Fprintln(os.Stderr, m.JSON())
	}
	return err
}

// ── helpers ──────────────────────────────────────────────────────────

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(os.Stderr, `fcgisock – FastCGI socket server v%s

Serves connections on the listening socket inherited from a FastCGI
process manager.  When the descriptor is not a listening socket the
process serves it directly as a single stream.

Usage:
  fcgisock [options]

Options:
`, version)
	fs.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
Environment:
  %-28s allowed web server addresses
  FCGISOCK_*                   any option, e.g. FCGISOCK_MAX_CONNS=4

Examples:
  spawn-fcgi -p 9000 -- fcgisock                 Echo each request back
  spawn-fcgi -s /run/app.sock -- fcgisock -e ./app  Run ./app per connection
  fcgisock --fd 3 --max-conns 8 -c 'cat' -v      Socket passed as fd 3
`, config.EnvWebServerAddrs)
}
