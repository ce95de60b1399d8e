// Package metrics counts what the transport and the accept loop do:
// connections, bytes in each direction, bytes discarded by teardown
// drains, and the failures that were retried or suppressed.
//
// All methods are safe for concurrent use, and a nil *Collector is a
// valid receiver that records nothing.
package metrics

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

type counter int

const (
	active counter = iota
	total
	rejected
	bytesIn
	bytesOut
	bytesDrained
	acceptErrors
	teardownErrors
	errorsTotal
	numCounters
)

// Collector holds the counters for one process.
type Collector struct {
	counters [numCounters]atomic.Int64

	mu           sync.RWMutex
	start        time.Time
	mode         string
	lastAccept   time.Time
	lastError    time.Time
	lastErrorMsg string
}

// New returns a Collector whose uptime starts now.
func New() *Collector {
	return &Collector{start: time.Now()}
}

func (c *Collector) add(k counter, n int64) {
	if c != nil {
		c.counters[k].Add(n)
	}
}

func (c *Collector) load(k counter) int64 {
	if c == nil {
		return 0
	}
	return c.counters[k].Load()
}

// SetMode records how the inherited descriptor is being served.
func (c *Collector) SetMode(mode string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.mode = mode
	c.mu.Unlock()
}

// ── Connections ──────────────────────────────────────────────────────

// ConnectionOpened counts an accepted connection and stamps the last
// accept time.
func (c *Collector) ConnectionOpened() {
	if c == nil {
		return
	}
	c.add(active, 1)
	c.add(total, 1)
	c.mu.Lock()
	c.lastAccept = time.Now()
	c.mu.Unlock()
}

// ConnectionClosed counts a finished teardown.
func (c *Collector) ConnectionClosed() { c.add(active, -1) }

// ConnectionRejected counts a connection released without being
// served, for example one from a peer outside the allow list.
func (c *Collector) ConnectionRejected() { c.add(rejected, 1) }

func (c *Collector) ActiveConnections() int64   { return c.load(active) }
func (c *Collector) TotalConnections() int64    { return c.load(total) }
func (c *Collector) RejectedConnections() int64 { return c.load(rejected) }

// ── Bytes ────────────────────────────────────────────────────────────

func (c *Collector) BytesReceived(n int64) { c.add(bytesIn, n) }
func (c *Collector) BytesSent(n int64)     { c.add(bytesOut, n) }

// BytesDrained counts bytes read and discarded during teardown.
func (c *Collector) BytesDrained(n int64) { c.add(bytesDrained, n) }

func (c *Collector) TotalBytesIn() int64      { return c.load(bytesIn) }
func (c *Collector) TotalBytesOut() int64     { return c.load(bytesOut) }
func (c *Collector) TotalBytesDrained() int64 { return c.load(bytesDrained) }

// ── Failures ─────────────────────────────────────────────────────────

// AcceptFailed counts a failed accept and records it as the last
// error.
func (c *Collector) AcceptFailed(msg string) {
	c.add(acceptErrors, 1)
	c.RecordError(msg)
}

// TeardownFailed counts a suppressed shutdown, drain or close error.
// It leaves the last-error slot alone: that slot is for errors a
// caller actually saw.
func (c *Collector) TeardownFailed() { c.add(teardownErrors, 1) }

func (c *Collector) AcceptErrors() int64   { return c.load(acceptErrors) }
func (c *Collector) TeardownErrors() int64 { return c.load(teardownErrors) }

// RecordError counts an error and keeps its message.
func (c *Collector) RecordError(msg string) {
	if c == nil {
		return
	}
	c.add(errorsTotal, 1)
	c.mu.Lock()
	c.lastError = time.Now()
	c.lastErrorMsg = msg
	c.mu.Unlock()
}

func (c *Collector) ErrorCount() int64 { return c.load(errorsTotal) }

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Uptime              string `json:"uptime"`
	Mode                string `json:"mode,omitempty"`
	ConnectionsActive   int64  `json:"connections_active"`
	ConnectionsTotal    int64  `json:"connections_total"`
	ConnectionsRejected int64  `json:"connections_rejected"`
	BytesIn             int64  `json:"bytes_in"`
	BytesOut            int64  `json:"bytes_out"`
	BytesDrained        int64  `json:"bytes_drained"`
	AcceptErrors        int64  `json:"accept_errors"`
	TeardownErrors      int64  `json:"teardown_errors"`
	ErrorsTotal         int64  `json:"errors_total"`
	LastAccept          string `json:"last_accept,omitempty"`
	LastError           string `json:"last_error,omitempty"`
	LastErrorMessage    string `json:"last_error_message,omitempty"`
}

// Snapshot copies the current values.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Uptime:              time.Since(c.start).Truncate(time.Second).String(),
		Mode:                c.mode,
		ConnectionsActive:   c.load(active),
		ConnectionsTotal:    c.load(total),
		ConnectionsRejected: c.load(rejected),
		BytesIn:             c.load(bytesIn),
		BytesOut:            c.load(bytesOut),
		BytesDrained:        c.load(bytesDrained),
		AcceptErrors:        c.load(acceptErrors),
		TeardownErrors:      c.load(teardownErrors),
		ErrorsTotal:         c.load(errorsTotal),
	}
	if !c.lastAccept.IsZero() {
		s.LastAccept = c.lastAccept.Format(time.RFC3339)
	}
	if !c.lastError.IsZero() {
		s.LastError = c.lastError.Format(time.RFC3339)
		s.LastErrorMessage = c.lastErrorMsg
	}
	return s
}

// JSON returns the snapshot as indented JSON.
func (c *Collector) JSON() string {
	data, _ := json.MarshalIndent(c.Snapshot(), "", "  ")
	return string(data)
}
