package gateway

import (
	"context"
	"time"

	"github.com/stormcord/core/internal/closecode"
)

// TransportCallbacks are invoked by a Transport on whatever goroutine is
// driving its I/O; a Session wires its own dispatch methods in here so a
// Transport implementation never needs to know about event pools or
// worker pools.
type TransportCallbacks struct {
	OnConnect func()
	OnText    func(data []byte)
	OnBinary  func(data []byte)
	OnPing    func(data []byte)
	OnPong    func(data []byte)
	OnClose   func(code closecode.Code, reason string)
}

// Transport is the single external collaborator a Session depends on: the
// raw byte-level framing, handshake and polling mechanics are entirely
// its concern. internal/wstransport provides the default implementation
// over nhooyr.io/websocket; a test can supply a fake.
type Transport interface {
	// Open establishes the connection. Callbacks passed at construction
	// fire as data arrives from this point on.
	Open(ctx context.Context, baseURL string) error
	// Service performs one non-blocking I/O step and reports whether the
	// connection is still up.
	Service(ctx context.Context) (running bool, err error)
	// Wait blocks until there is I/O to service or timeout elapses.
	Wait(ctx context.Context, timeout time.Duration) error
	// Close initiates a graceful close handshake with the given code and
	// reason.
	Close(code closecode.Code, reason string) error
	// SendText sends one text frame.
	SendText(ctx context.Context, data []byte) error
}

// TransportFactory builds a fresh, unopened Transport bound to cbs. A
// Session calls this once at construction and again every time it
// transitions into StatusDisconnected from any other status, so that
// reconnecting always starts from a clean transport handle.
type TransportFactory func(cbs TransportCallbacks) Transport
