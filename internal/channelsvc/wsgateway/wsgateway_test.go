package wsgateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/convoyrt/convoy/internal/jsonvalue"
	"github.com/convoyrt/convoy/pkg/convoymodel"
)

func TestInitReadsOwnSection(t *testing.T) {
	c := New()
	cfg := jsonvalue.Parse(`{"wsgateway": {"listen_addr": ":9999", "path": "/chat"}}`)
	if err := c.Init(cfg); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if c.addr != ":9999" || c.path != "/chat" {
		t.Fatalf("addr/path = %q/%q", c.addr, c.path)
	}
}

func TestInitDefaults(t *testing.T) {
	c := New()
	if err := c.Init(jsonvalue.Parse(`{}`)); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if c.addr != ":8765" || c.path != "/ws" {
		t.Fatalf("defaults = %q/%q", c.addr, c.path)
	}
}

func TestHandleConnRoundTrip(t *testing.T) {
	c := New()
	srv := httptest.NewServer(http.HandlerFunc(c.handleConn))
	defer srv.Close()

	var mu sync.Mutex
	var received *convoymodel.Message
	done := make(chan struct{}, 1)
	c.OnNewMessage(func(msg *convoymodel.Message) {
		mu.Lock()
		received = msg
		mu.Unlock()
		done <- struct{}{}
	})

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	payload, _ := json.Marshal(frame{ChatID: "room-1", Text: "hello there"})
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for inbound message")
	}

	mu.Lock()
	defer mu.Unlock()
	if received == nil || received.Text != "hello there" {
		t.Fatalf("received = %+v", received)
	}
	if received.ChatType != convoymodel.ChatDirect {
		t.Fatalf("chat type = %v, want direct", received.ChatType)
	}
}

func TestSendMessageUnknownChatErrors(t *testing.T) {
	c := New()
	if err := c.SendMessage(t.Context(), "nope", "hi", ""); err == nil {
		t.Fatal("expected error sending to an unknown chat id")
	}
}
