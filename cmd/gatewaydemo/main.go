// Command gatewaydemo wires a gateway.Session and a timer.Scheduler
// together against a loopback WebSocket echo server, to exercise the
// session manager and the scheduler as peers the way a real bot client
// would drive them: the scheduler is never nested inside the session,
// both are serviced from the same outer loop.
package main

import (
	"context"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"nhooyr.io/websocket"

	"github.com/stormcord/core/internal/closecode"
	"github.com/stormcord/core/internal/config"
	"github.com/stormcord/core/internal/gateway"
	"github.com/stormcord/core/internal/timer"
	"github.com/stormcord/core/internal/wstransport"
)

// heartbeatEvent classifies frames the demo's own heartbeat sends, so
// the handler can tell them apart from anything else arriving on the
// connection.
const heartbeatEvent = 1

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("gatewaydemo: %v", err)
	}

	echo := startEchoServer()
	defer echo.Close()

	gwCfg := cfg.GatewayConfig()
	if gwCfg.BaseURL == "" {
		gwCfg.BaseURL = "ws" + strings.TrimPrefix(echo.URL, "http")
	}
	gwCfg.Trace = func(dir gateway.TraceDirection, tag string, data []byte) {
		log.Printf("gatewaydemo: trace %s %s %q", dir, tag, data)
	}

	session := gateway.New(gwCfg, gateway.Callbacks{
		OnTextEvent: func(userData any, text []byte) int {
			if strings.HasPrefix(string(text), "heartbeat:") {
				return heartbeatEvent
			}
			return gateway.NoEvent
		},
		OnConnect: func() { log.Println("gatewaydemo: connected") },
		OnText:    func(data []byte) { log.Printf("gatewaydemo: recv %q", data) },
		OnClose: func(code closecode.Code, reason string) {
			log.Printf("gatewaydemo: closed %s (%d) %q", closecode.Name(code), code, reason)
		},
	}, wstransport.New)

	if err := session.SetEvent(heartbeatEvent, func(userData, iterData any) {
		log.Printf("gatewaydemo: heartbeat acknowledged")
	}); err != nil {
		log.Fatalf("gatewaydemo: registering heartbeat handler: %v", err)
	}

	sched := timer.NewScheduler[*gateway.Session](session, nil, cfg.TimerConfig())
	sched.Ctl(context.Background(), timer.Entry[*gateway.Session]{
		Delay:    int64(5 * time.Second / time.Millisecond),
		Interval: int64(5 * time.Second / time.Millisecond),
		Flags:    timer.FlagMilliseconds | timer.FlagIntervalFixed,
		Callback: func(ctx context.Context, client *gateway.Session, entry timer.Entry[*gateway.Session]) {
			if err := client.SendText(ctx, []byte("heartbeat:demo")); err != nil {
				log.Printf("gatewaydemo: heartbeat send failed: %v", err)
			}
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runLoop(ctx, session, sched)

	if err := session.Shutdown(context.Background()); err != nil {
		log.Printf("gatewaydemo: shutdown: %v", err)
	}
}

// runLoop services the session and the scheduler from one goroutine,
// pacing the wait between ticks by the scheduler's own next-trigger
// estimate rather than a fixed poll interval, so a due timer is never
// held up behind an idle transport wait.
func runLoop(ctx context.Context, session *gateway.Session, sched *timer.Scheduler[*gateway.Session]) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if _, err := session.Perform(ctx); err != nil {
			log.Printf("gatewaydemo: session perform: %v", err)
		}

		user, internal, err := sched.Run(ctx)
		if err != nil {
			log.Printf("gatewaydemo: scheduler run: %v", err)
		} else if user.Fired > 0 || internal.Fired > 0 {
			log.Printf("gatewaydemo: scheduler fired %d user timer(s), %d internal timer(s)", user.Fired, internal.Fired)
		}

		wait := nextWait(sched)
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// nextWait caps the scheduler's next-trigger hint to a sane polling
// range: long enough to avoid busy-looping when nothing is due, short
// enough that the session still gets serviced promptly.
func nextWait(sched *timer.Scheduler[*gateway.Session]) time.Duration {
	const maxWait = 100 * time.Millisecond
	now := time.Now().UnixMicro()
	waitMicro := sched.GetNextTrigger(now, maxWait.Microseconds())
	return time.Duration(waitMicro) * time.Microsecond
}

func loadConfig() (config.Config, error) {
	path := os.Getenv("GATEWAY_CONFIG")
	if path == "" {
		path = "gateway.yaml"
	}
	if _, err := os.Stat(path); err != nil {
		log.Printf("gatewaydemo: no config file at %s, using defaults", path)
		return config.Config{}, nil
	}
	return config.Load(path)
}

func startEchoServer() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close(websocket.StatusNormalClosure, "")
		for {
			typ, data, err := c.Read(r.Context())
			if err != nil {
				return
			}
			if err := c.Write(r.Context(), typ, data); err != nil {
				return
			}
		}
	}))
}
