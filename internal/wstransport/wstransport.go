// Package wstransport is the default gateway.Transport implementation,
// binding nhooyr.io/websocket's context-based client API onto the
// interface the session manager depends on.
package wstransport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"

	"github.com/stormcord/core/internal/closecode"
	"github.com/stormcord/core/internal/gateway"
)

// ErrNotConnected is returned by SendText when called before Open has
// established a connection. Close before Open is a no-op returning nil.
var ErrNotConnected = errors.New("wstransport: not connected")

type transport struct {
	cbs gateway.TransportCallbacks

	mu      sync.Mutex
	conn    *websocket.Conn
	running atomic.Bool
}

// New returns an unopened gateway.Transport bound to cbs. Its signature
// is a gateway.TransportFactory, so it can be passed straight into
// gateway.New.
func New(cbs gateway.TransportCallbacks) gateway.Transport {
	return &transport{cbs: cbs}
}

func (t *transport) Open(ctx context.Context, baseURL string) error {
	conn, _, err := websocket.Dial(ctx, baseURL, nil)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()
	t.running.Store(true)

	go t.readLoop()

	t.cbs.OnConnect()
	return nil
}

// readLoop feeds inbound frames to the session's callbacks until the
// connection closes. nhooyr.io/websocket answers protocol-level pings
// internally, so there is no frame-level hook to wire OnPing/OnPong to;
// those callbacks exist on the interface for transports that do expose
// one.
func (t *transport) readLoop() {
	for {
		t.mu.Lock()
		conn := t.conn
		t.mu.Unlock()
		if conn == nil {
			return
		}

		typ, data, err := conn.Read(context.Background())
		if err != nil {
			t.running.Store(false)
			code, reason := classifyCloseError(err)
			t.cbs.OnClose(code, reason)
			return
		}

		switch typ {
		case websocket.MessageText:
			t.cbs.OnText(data)
		case websocket.MessageBinary:
			t.cbs.OnBinary(data)
		}
	}
}

func classifyCloseError(err error) (closecode.Code, string) {
	code := websocket.CloseStatus(err)
	if code == -1 {
		return closecode.Abruptly, err.Error()
	}
	return closecode.Code(code), err.Error()
}

func (t *transport) Service(ctx context.Context) (bool, error) {
	return t.running.Load(), nil
}

func (t *transport) Wait(ctx context.Context, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (t *transport) Close(code closecode.Code, reason string) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return nil
	}
	t.running.Store(false)
	return conn.Close(websocket.StatusCode(code), reason)
}

func (t *transport) SendText(ctx context.Context, data []byte) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	return conn.Write(ctx, websocket.MessageText, data)
}
