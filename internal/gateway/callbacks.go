package gateway

import (
	"math"

	"github.com/stormcord/core/internal/closecode"
)

// NoEvent is the OnTextEvent return value meaning "this text frame does
// not match any registered event; dispatch it as plain text instead".
const NoEvent = math.MinInt32

// Callbacks are the user-facing notification hooks a Session invokes. Any
// left nil get a no-op default installed by New.
type Callbacks struct {
	// OnTextEvent classifies a text frame into an event code consulted
	// against the session's event pool. Returning NoEvent means "no
	// event; call OnText instead".
	OnTextEvent func(userData any, text []byte) int

	OnConnect func()
	OnText    func(text []byte)
	OnBinary  func(data []byte)
	OnPing    func(data []byte)
	OnPong    func(data []byte)
	OnClose   func(code closecode.Code, reason string)
}

func (c Callbacks) withDefaults() Callbacks {
	if c.OnTextEvent == nil {
		c.OnTextEvent = func(any, []byte) int { return NoEvent }
	}
	if c.OnConnect == nil {
		c.OnConnect = func() {}
	}
	if c.OnText == nil {
		c.OnText = func([]byte) {}
	}
	if c.OnBinary == nil {
		c.OnBinary = func([]byte) {}
	}
	if c.OnPing == nil {
		c.OnPing = func([]byte) {}
	}
	if c.OnPong == nil {
		c.OnPong = func([]byte) {}
	}
	if c.OnClose == nil {
		c.OnClose = func(closecode.Code, string) {}
	}
	return c
}

// EventHandler is one entry in a Session's event pool: Fn is invoked on a
// worker goroutine with the session's user data and whatever per-frame
// data was staged via SetCurrIterData.
type EventHandler struct {
	Code int
	Fn   func(userData, iterData any)
}
