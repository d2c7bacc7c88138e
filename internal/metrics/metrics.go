// Package metrics tracks per-invocation dispatch statistics.
//
// All methods are safe for concurrent use.  A nil *Collector is a
// valid no-op receiver, so callers never need to nil-check.
package metrics

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Collector counts endpoint outcomes across one fleetctl run.
type Collector struct {
	inFlight     atomic.Int64
	attempted    atomic.Int64
	succeeded    atomic.Int64
	unreachable  atomic.Int64
	remoteFailed atomic.Int64
	bytesCopied  atomic.Int64
	samples      atomic.Int64

	mu           sync.RWMutex
	startTime    time.Time
	lastSample   time.Time
	lastError    time.Time
	lastErrorMsg string
}

// New creates a collector with the start time set to now.
func New() *Collector {
	return &Collector{startTime: time.Now()}
}

// ── Endpoint outcomes ────────────────────────────────────────────────

// EndpointStarted marks one endpoint action as in flight.
func (c *Collector) EndpointStarted() {
	if c == nil {
		return
	}
	c.inFlight.Add(1)
	c.attempted.Add(1)
}

// EndpointSucceeded records a successful action.
func (c *Collector) EndpointSucceeded() {
	if c == nil {
		return
	}
	c.inFlight.Add(-1)
	c.succeeded.Add(1)
}

// EndpointUnreachable records an endpoint that could not be reached.
func (c *Collector) EndpointUnreachable(msg string) {
	if c == nil {
		return
	}
	c.inFlight.Add(-1)
	c.unreachable.Add(1)
	c.recordError(msg)
}

// EndpointRemoteFailed records an action the remote side rejected.
func (c *Collector) EndpointRemoteFailed(msg string) {
	if c == nil {
		return
	}
	c.inFlight.Add(-1)
	c.remoteFailed.Add(1)
	c.recordError(msg)
}

// InFlight returns the number of endpoint actions currently running.
func (c *Collector) InFlight() int64 {
	if c == nil {
		return 0
	}
	return c.inFlight.Load()
}

// Attempted returns how many endpoint actions were started.
func (c *Collector) Attempted() int64 {
	if c == nil {
		return 0
	}
	return c.attempted.Load()
}

// Failed returns unreachable plus remote-failed endpoints.
func (c *Collector) Failed() int64 {
	if c == nil {
		return 0
	}
	return c.unreachable.Load() + c.remoteFailed.Load()
}

// ── Transfer ─────────────────────────────────────────────────────────

// BytesCopied adds n bytes streamed to an endpoint.
func (c *Collector) BytesCopied(n int64) {
	if c == nil {
		return
	}
	c.bytesCopied.Add(n)
}

// TotalBytesCopied returns the bytes streamed so far.
func (c *Collector) TotalBytesCopied() int64 {
	if c == nil {
		return 0
	}
	return c.bytesCopied.Load()
}

// ── Monitor ──────────────────────────────────────────────────────────

// CensusSample records one completed monitor cycle.
func (c *Collector) CensusSample() {
	if c == nil {
		return
	}
	c.samples.Add(1)
	c.mu.Lock()
	c.lastSample = time.Now()
	c.mu.Unlock()
}

// Samples returns the number of completed monitor cycles.
func (c *Collector) Samples() int64 {
	if c == nil {
		return 0
	}
	return c.samples.Load()
}

func (c *Collector) recordError(msg string) {
	c.mu.Lock()
	c.lastError = time.Now()
	c.lastErrorMsg = msg
	c.mu.Unlock()
}

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Uptime           string `json:"uptime"`
	InFlight         int64  `json:"in_flight"`
	Attempted        int64  `json:"endpoints_attempted"`
	Succeeded        int64  `json:"endpoints_succeeded"`
	Unreachable      int64  `json:"endpoints_unreachable"`
	RemoteFailed     int64  `json:"endpoints_remote_failed"`
	BytesCopied      int64  `json:"bytes_copied"`
	CensusSamples    int64  `json:"census_samples"`
	LastSample       string `json:"last_sample,omitempty"`
	LastError        string `json:"last_error,omitempty"`
	LastErrorMessage string `json:"last_error_message,omitempty"`
}

// Snapshot returns a copy of all current metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Uptime:        time.Since(c.startTime).Truncate(time.Second).String(),
		InFlight:      c.inFlight.Load(),
		Attempted:     c.attempted.Load(),
		Succeeded:     c.succeeded.Load(),
		Unreachable:   c.unreachable.Load(),
		RemoteFailed:  c.remoteFailed.Load(),
		BytesCopied:   c.bytesCopied.Load(),
		CensusSamples: c.samples.Load(),
	}
	if !c.lastSample.IsZero() {
		s.LastSample = c.lastSample.Format(time.RFC3339)
	}
	if !c.lastError.IsZero() {
		s.LastError = c.lastError.Format(time.RFC3339)
		s.LastErrorMessage = c.lastErrorMsg
	}
	return s
}

// JSON returns the snapshot as an indented JSON string.
func (c *Collector) JSON() string {
	s := c.Snapshot()
	data, _ := json.MarshalIndent(s, "", "  ")
	return string(data)
}
