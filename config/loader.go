package config

// loader.go - configuration loading from a YAML file and environment
// variables.
//
// Precedence order (highest wins):
//   1. CLI flags  (handled by cmd/root.go)
//   2. Environment variables
//   3. Config file (--config, YAML or TOML)
//   4. Defaults   (defaults.go)

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// LoadFile overlays the config file at path onto cfg.  Files ending in
// .toml are read as TOML, anything else as YAML.  Keys absent from the
// file keep their current value; unknown keys are an error.
func LoadFile(path string, cfg *Config) error {
	var err error
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = loadTOML(path, cfg)
	} else {
		err = loadYAML(path, cfg)
	}
	if err != nil {
		return err
	}
	cfg.ConfigFile = path
	return nil
}

func loadYAML(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config file: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config file %s: %w", path, err)
	}
	return nil
}

func loadTOML(path string, cfg *Config) error {
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("config file %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("config file %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	return nil
}

// ── Environment variable mapping ─────────────────────────────────────
//
// fcgisock's own variables use the FCGISOCK_ prefix.  Boolean values
// accept "1", "true", "yes" (case-insensitive).  The allowed-peer list
// also honours FCGI_WEB_SERVER_ADDRS, the variable FastCGI process
// managers conventionally set.

// EnvWebServerAddrs is the conventional FastCGI allow-list variable.
const EnvWebServerAddrs = "FCGI_WEB_SERVER_ADDRS"

// LoadFromEnv overlays environment variables onto cfg.  Only non-empty
// env vars override the existing value.  This should be called BEFORE
// applying CLI flags so that flags take precedence.
func LoadFromEnv(cfg *Config) {
	if v, ok := envIntOK("FCGISOCK_LISTEN_FD"); ok {
		cfg.ListenFD = v
	}
	if v := envInt("FCGISOCK_MAX_CONNS"); v > 0 {
		cfg.MaxConns = v
	}
	if v := envDuration("FCGISOCK_READ_TIMEOUT"); v > 0 {
		cfg.ReadTimeout = v
	}
	if v := envDuration("FCGISOCK_WRITE_TIMEOUT"); v > 0 {
		cfg.WriteTimeout = v
	}
	if v := os.Getenv(EnvWebServerAddrs); v != "" {
		cfg.AllowedAddrs = ParseAddrList(v)
	}
	if v := os.Getenv("FCGISOCK_ALLOW"); v != "" {
		cfg.AllowedAddrs = ParseAddrList(v)
	}

	// Accept loop
	if v, ok := envIntOK("FCGISOCK_ACCEPT_RETRIES"); ok {
		cfg.AcceptRetries = v
	}

	// Handler
	if v := os.Getenv("FCGISOCK_HANDLER"); v != "" {
		cfg.Handler = v
	}
	if v := os.Getenv("FCGISOCK_EXEC"); v != "" {
		cfg.Execute = v
	}
	if v := os.Getenv("FCGISOCK_COMMAND"); v != "" {
		cfg.Command = v
	}

	// Output
	if v := envInt("FCGISOCK_VERBOSE"); v > 0 {
		cfg.Verbose = v
	}
	if envBool("FCGISOCK_STATS") {
		cfg.Stats = true
	}
}

// ── helpers ──────────────────────────────────────────────────────────

func envIntOK(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envInt(key string) int {
	n, _ := envIntOK(key)
	return n
}

func envBool(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	return v == "1" || v == "true" || v == "yes"
}

// envDuration accepts a Go duration ("1.5s") or a bare number of
// seconds.
func envDuration(key string) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return secondsDuration(n)
	}
	return 0
}

func secondsDuration(sec int) time.Duration {
	return time.Duration(sec) * time.Second
}
