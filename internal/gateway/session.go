package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/stormcord/core/internal/closecode"
	"github.com/stormcord/core/internal/ratelimit"
)

// Status is where a Session sits in its connection lifecycle.
type Status int

const (
	StatusFresh Status = iota
	StatusConnected
	StatusDisconnecting
	StatusDisconnected
	StatusShutdown
)

func (s Status) String() string {
	switch s {
	case StatusFresh:
		return "fresh"
	case StatusConnected:
		return "connected"
	case StatusDisconnecting:
		return "disconnecting"
	case StatusDisconnected:
		return "disconnected"
	case StatusShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// ErrNotDisconnected is returned by SetEvent when called while the
// session is actively running: the event pool is read lock-free from the
// frame-dispatch path, so appending to it concurrently is unsafe.
var ErrNotDisconnected = errors.New("gateway: event handlers can only be registered before the session is running")

// Stats is a point-in-time snapshot of a Session's internal bookkeeping,
// useful for health checks and debugging reconnect storms.
type Stats struct {
	Status           Status
	WorkersBusy      int
	WorkersIdle      int
	EventPoolSize    int
	ReconnectAttempt int
}

// Session drives one logical connection lifecycle: establishing a
// transport, dispatching inbound frames, and reconnecting on failure. All
// exported methods are safe to call from any goroutine; Run (or manual
// Perform calls) should be driven from a single goroutine, matching the
// "single I/O thread" model the transport itself assumes.
type Session struct {
	cfg          Config
	cbs          Callbacks
	newTransport TransportFactory

	mu               sync.Mutex
	status           Status
	baseURL          string
	reconnectAttempt int
	eventPool        []EventHandler
	userData         any
	currIterData     any
	currIterCleanup  func(any)
	transport        Transport
	workers          *workerPool
	dialLimiter      *ratelimit.Limiter
}

// New constructs a Session with a fresh, unopened transport. Run (or an
// external poller driving Perform) must be called to actually connect.
func New(cfg Config, cbs Callbacks, newTransport TransportFactory) *Session {
	cfg = cfg.withDefaults()
	cbs = cbs.withDefaults()
	s := &Session{
		cfg:          cfg,
		cbs:          cbs,
		newTransport: newTransport,
		status:       StatusFresh,
		baseURL:      cfg.BaseURL,
		workers:      newWorkerPool(cfg.WorkerPoolSize),
	}
	if cfg.DialRateLimit > 0 {
		s.dialLimiter = ratelimit.New(cfg.DialRateLimit, cfg.DialRateWindow)
	}
	s.transport = newTransport(s.transportCallbacks())
	return s
}

func (s *Session) transportCallbacks() TransportCallbacks {
	return TransportCallbacks{
		OnConnect: s.onConnect,
		OnText:    s.onText,
		OnBinary:  s.onBinary,
		OnPing:    s.onPing,
		OnPong:    s.onPong,
		OnClose:   s.onClose,
	}
}

// Status reports the session's current lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// BaseURL reports the endpoint a future (re)connect will target.
func (s *Session) BaseURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baseURL
}

// Stats returns a snapshot of the session's worker pool, event pool and
// reconnect bookkeeping.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Status:           s.status,
		WorkersBusy:      s.workers.busyCount(),
		WorkersIdle:      s.workers.idleCount(),
		EventPoolSize:    len(s.eventPool),
		ReconnectAttempt: s.reconnectAttempt,
	}
}

// SetUserData stores the opaque value passed to OnTextEvent and every
// event handler's userData argument.
func (s *Session) SetUserData(data any) {
	s.mu.Lock()
	s.userData = data
	s.mu.Unlock()
}

// SetEvent registers a handler for a classifier event code. Only legal
// before the session starts running, or while disconnected: the pool is
// read without a lock from the frame-dispatch hot path.
func (s *Session) SetEvent(code int, fn func(userData, iterData any)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusFresh && s.status != StatusDisconnected {
		return ErrNotDisconnected
	}
	s.eventPool = append(s.eventPool, EventHandler{Code: code, Fn: fn})
	return nil
}

// SetCurrIterData stages data (and an optional cleanup hook) to be handed
// to whichever event handler matches the very next text frame. Call this
// only from within a frame callback running on the dispatch goroutine;
// it is consumed (or, if nothing matches, cleaned up) before the next
// frame is processed.
func (s *Session) SetCurrIterData(data any, cleanup func(any)) {
	s.mu.Lock()
	s.currIterData, s.currIterCleanup = data, cleanup
	s.mu.Unlock()
}

func (s *Session) takeCurrIterData() (any, func(any)) {
	s.mu.Lock()
	data, cleanup := s.currIterData, s.currIterCleanup
	s.currIterData, s.currIterCleanup = nil, nil
	s.mu.Unlock()
	return data, cleanup
}

func (s *Session) onConnect() {
	s.cfg.trace(TraceRecv, "WS_CONNECT", nil)
	s.cbs.OnConnect()
}

// onText is the frame-dispatch algorithm: classify, find a matching
// handler, and hand off to the worker pool; frames matching nothing fall
// through to the plain-text notification after discarding any staged
// iter data.
func (s *Session) onText(data []byte) {
	s.cfg.trace(TraceRecv, "WS_RCV_TEXT", data)

	s.mu.Lock()
	userData := s.userData
	s.mu.Unlock()

	code := s.cbs.OnTextEvent(userData, data)

	s.mu.Lock()
	var handler *EventHandler
	for i := range s.eventPool {
		if s.eventPool[i].Code == code {
			handler = &s.eventPool[i]
			break
		}
	}
	if handler == nil {
		s.mu.Unlock()
		iterData, cleanup := s.takeCurrIterData()
		if cleanup != nil {
			cleanup(iterData)
		}
		s.cbs.OnText(data)
		return
	}
	fn := handler.Fn
	s.mu.Unlock()

	iterData, cleanup := s.takeCurrIterData()
	s.workers.dispatch(dispatchJob{run: func() {
		fn(userData, iterData)
		if cleanup != nil {
			cleanup(iterData)
		}
	}})
}

func (s *Session) onBinary(data []byte) {
	s.cfg.trace(TraceRecv, "WS_RCV_BINARY", data)
	s.cbs.OnBinary(data)
}

func (s *Session) onPing(data []byte) {
	s.cfg.trace(TraceRecv, "WS_RCV_PING", data)
	s.cbs.OnPing(data)
}

func (s *Session) onPong(data []byte) {
	s.cfg.trace(TraceRecv, "WS_RCV_PONG", data)
	s.cbs.OnPong(data)
}

func (s *Session) onClose(code closecode.Code, reason string) {
	s.cfg.trace(TraceRecv, "WS_RCV_CLOSE", []byte(reason))
	s.cbs.OnClose(code, reason)
}

// setStatus applies one of the named transitions from the state machine:
// forcing a DISCONNECTED target through a graceful close if the
// transport is still running, resetting the reconnect attempt counter on
// CONNECTED, rebuilding the transport handle on a clean entry into
// DISCONNECTED, and saturating the attempt counter on SHUTDOWN.
func (s *Session) setStatus(ctx context.Context, target Status) {
	s.mu.Lock()
	transport := s.transport
	old := s.status
	s.mu.Unlock()

	if target == StatusDisconnected {
		if running, _ := transport.Service(ctx); running {
			s.cfg.trace(TraceSend, "WS_SEND_CLOSE", nil)
			_ = transport.Close(closecode.Normal, "Shutdown gracefully")
			target = StatusDisconnecting
		}
	}

	s.mu.Lock()
	s.status = target
	switch target {
	case StatusConnected:
		s.reconnectAttempt = 0
		if s.dialLimiter != nil {
			s.dialLimiter.Reset(s.baseURL)
		}
	case StatusDisconnected:
		if old != StatusDisconnected {
			s.transport = s.newTransport(s.transportCallbacks())
		}
	case StatusShutdown:
		s.reconnectAttempt = s.cfg.ReconnectThreshold
	}
	s.mu.Unlock()
}

// Perform runs one service tick: it services the transport, and if the
// transport reports it is no longer running, marks the session
// disconnected and attempts to reconnect up to ReconnectThreshold times.
// The returned bool mirrors the original's is_running out-parameter; the
// session surface never returns a transport-level error to the caller.
func (s *Session) Perform(ctx context.Context) (bool, error) {
	s.mu.Lock()
	transport := s.transport
	s.mu.Unlock()

	running, err := transport.Service(ctx)
	if err != nil {
		panic(fmt.Errorf("gateway: transport service failed: %w", err))
	}
	if running {
		return true, nil
	}

	s.setStatus(ctx, StatusDisconnected)

	threshold := s.cfg.ReconnectThreshold
	for attempt := 1; attempt <= threshold; attempt++ {
		s.mu.Lock()
		s.reconnectAttempt = attempt
		transport = s.transport
		baseURL := s.baseURL
		s.mu.Unlock()

		if s.dialLimiter != nil && !s.dialLimiter.Allow(baseURL) {
			log.Printf("gateway: reconnect attempt %d/%d skipped, dial rate limit reached for %s", attempt, threshold, baseURL)
			continue
		}

		if err := transport.Open(ctx, baseURL); err != nil {
			log.Printf("gateway: reconnect attempt %d/%d failed to open: %v", attempt, threshold, err)
			continue
		}
		_ = transport.Wait(ctx, time.Second)
		if running, _ := transport.Service(ctx); running {
			s.setStatus(ctx, StatusConnected)
			return true, nil
		}
	}

	log.Printf("gateway: reconnect exhausted after %d attempts, giving up for now", threshold)
	s.mu.Lock()
	s.reconnectAttempt = 0
	s.mu.Unlock()
	return false, nil
}

// Redirect gracefully closes the current connection, switches to a new
// endpoint, and lets the next Perform tick establish a transport against
// it.
func (s *Session) Redirect(ctx context.Context, newURL string) error {
	s.mu.Lock()
	transport := s.transport
	s.mu.Unlock()

	s.cfg.trace(TraceSend, "WS_SEND_CLOSE", nil)
	if err := transport.Close(closecode.Normal, "Redirect gracefully"); err != nil {
		return err
	}

	s.mu.Lock()
	s.baseURL = newURL
	s.status = StatusDisconnecting
	s.mu.Unlock()
	return nil
}

// Reconnect gracefully closes the current connection and returns the
// session to StatusFresh so the next Perform tick re-establishes it.
func (s *Session) Reconnect(ctx context.Context) error {
	s.mu.Lock()
	transport := s.transport
	s.mu.Unlock()

	s.cfg.trace(TraceSend, "WS_SEND_CLOSE", nil)
	if err := transport.Close(closecode.Normal, "Reconnect gracefully"); err != nil {
		return err
	}
	s.mu.Lock()
	s.status = StatusFresh
	s.mu.Unlock()
	return nil
}

// Shutdown sets StatusShutdown, which Run returns on when it next checks
// the status, saturates the reconnect attempt counter reported by Stats,
// and stops the worker pool once any in-flight dispatch finishes. It
// sends no close frame and leaves the transport open. Perform does not
// consult the saturated counter: a Perform call that later finds the
// transport stopped still runs its reconnect loop.
func (s *Session) Shutdown(ctx context.Context) error {
	s.setStatus(ctx, StatusShutdown)
	s.workers.shutdown()
	return nil
}

// SendText sends a text frame through the current transport.
func (s *Session) SendText(ctx context.Context, data []byte) error {
	s.mu.Lock()
	transport := s.transport
	s.mu.Unlock()
	s.cfg.trace(TraceSend, "WS_SEND_TEXT", data)
	return transport.SendText(ctx, data)
}

// Run opens the transport and services it until ctx is canceled or the
// session is shut down. Transport service failures are treated per the
// error-handling policy: they panic (recovered here only to log before
// re-panicking) rather than being swallowed, since they indicate a
// condition the session cannot recover from on its own.
func (s *Session) Run(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("gateway: fatal: %v", r)
			panic(r)
		}
	}()

	s.mu.Lock()
	transport := s.transport
	baseURL := s.baseURL
	s.mu.Unlock()

	if err := transport.Open(ctx, baseURL); err != nil {
		return fmt.Errorf("gateway: initial open failed: %w", err)
	}
	s.mu.Lock()
	s.status = StatusConnected
	s.reconnectAttempt = 0
	s.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if _, err := s.Perform(ctx); err != nil {
			return err
		}
		if s.Status() == StatusShutdown {
			return nil
		}

		s.mu.Lock()
		transport = s.transport
		s.mu.Unlock()
		_ = transport.Wait(ctx, 100*time.Millisecond)
	}
}
