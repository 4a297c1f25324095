package wstransport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"github.com/stormcord/core/internal/closecode"
	"github.com/stormcord/core/internal/gateway"
)

func TestTransportSendAndReceiveText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close(websocket.StatusNormalClosure, "")
		ctx := context.Background()
		typ, data, err := c.Read(ctx)
		if err != nil {
			return
		}
		c.Write(ctx, typ, data)
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	var mu sync.Mutex
	var got []byte
	received := make(chan struct{})
	cbs := gateway.TransportCallbacks{
		OnConnect: func() {},
		OnText: func(data []byte) {
			mu.Lock()
			got = append([]byte(nil), data...)
			mu.Unlock()
			close(received)
		},
		OnBinary: func([]byte) {},
		OnPing:   func([]byte) {},
		OnPong:   func([]byte) {},
		OnClose:  func(code closecode.Code, reason string) {},
	}
	tr := New(cbs)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tr.Open(ctx, wsURL); err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := tr.SendText(ctx, []byte("hello")); err != nil {
		t.Fatalf("SendText: %v", err)
	}

	select {
	case <-received:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for echoed text")
	}

	mu.Lock()
	gotText := string(got)
	mu.Unlock()
	if gotText != "hello" {
		t.Fatalf("expected echoed hello, got %q", gotText)
	}

	running, err := tr.Service(ctx)
	if err != nil || !running {
		t.Fatalf("expected transport running, got running=%v err=%v", running, err)
	}

	if err := tr.Close(closecode.Normal, "done"); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
