// Package gateway drives a single persistent WebSocket connection to a
// remote endpoint through an injected transport: it dispatches text-frame
// events to a bounded worker pool, tracks connection status, and handles
// reconnection.
package gateway

import "time"

// TraceDirection labels which way data moved across the transport, for
// Config.Trace.
type TraceDirection int

const (
	TraceSend TraceDirection = iota
	TraceRecv
)

func (d TraceDirection) String() string {
	if d == TraceSend {
		return "send"
	}
	return "recv"
}

// Config controls one Session. BaseURL, ReconnectThreshold and
// WorkerPoolSize map directly onto the original implementation's
// equivalents; Trace and HandshakeTimeout are additions this module
// needed to be exercisable end-to-end.
type Config struct {
	BaseURL string

	// ReconnectThreshold is how many reconnect attempts Perform makes
	// after the transport reports it stopped running before giving up
	// and resetting the attempt counter.
	ReconnectThreshold int

	// WorkerPoolSize is the number of long-lived goroutines servicing
	// text-frame dispatch. Defaults to 10, matching the original's
	// MAX_THREADS, but unlike the original this is a runtime setting
	// rather than a compile-time constant.
	WorkerPoolSize int

	HandshakeTimeout time.Duration

	// Trace, if set, is called for every notable transport-facing
	// operation with a short tag (e.g. "WS_RCV_TEXT", "WS_SEND_CLOSE")
	// and the raw bytes involved. Useful for debugging reconnect storms;
	// a nil Trace costs nothing.
	Trace func(direction TraceDirection, tag string, data []byte)

	// DialRateLimit and DialRateWindow bound how many times Perform will
	// dial a given BaseURL within a sliding window, independent of
	// ReconnectThreshold. This guards against a redirect loop or a
	// flapping endpoint turning reconnect attempts into a dial storm.
	// Zero (the zero value) disables the limit entirely — Perform never
	// consults the limiter, so a caller that never sets this field sees
	// no behavior change. A positive DialRateLimit with a zero
	// DialRateWindow falls back to a one-minute window.
	DialRateLimit  int
	DialRateWindow time.Duration
}

func (c Config) withDefaults() Config {
	if c.WorkerPoolSize <= 0 {
		c.WorkerPoolSize = 10
	}
	if c.ReconnectThreshold <= 0 {
		c.ReconnectThreshold = 5
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.DialRateLimit > 0 && c.DialRateWindow <= 0 {
		c.DialRateWindow = time.Minute
	}
	return c
}

func (c Config) trace(direction TraceDirection, tag string, data []byte) {
	if c.Trace != nil {
		c.Trace(direction, tag, data)
	}
}
