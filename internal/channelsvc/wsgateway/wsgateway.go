// Package wsgateway implements convoy's plugins.Channel contract as a
// WebSocket server: any number of clients connect, each connection is one
// chat, and each text frame sent by a client is one inbound message.
package wsgateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/convoyrt/convoy/internal/jsonvalue"
	"github.com/convoyrt/convoy/pkg/convoymodel"
)

// frame is the JSON envelope carried by each WebSocket text message, in
// both directions.
type frame struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

// Channel serves a WebSocket endpoint and treats each connected client as
// one direct chat.
type Channel struct {
	mu          sync.Mutex
	addr        string
	path        string
	server      *http.Server
	upgrader    websocket.Upgrader
	conns       map[string]*websocket.Conn
	status      convoymodel.ChannelStatus
	initialized bool
	onMessage   func(*convoymodel.Message)
	onError     func(error)
}

// New constructs an uninitialized Channel.
func New() *Channel {
	return &Channel{
		conns:  make(map[string]*websocket.Conn),
		status: convoymodel.StatusStopped,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (c *Channel) Name() string        { return "wsgateway" }
func (c *Channel) Version() string     { return "1.0.0" }
func (c *Channel) Description() string { return "WebSocket gateway transport" }
func (c *Channel) ChannelID() string   { return "wsgateway" }

func (c *Channel) Capabilities() convoymodel.ChannelCapabilities {
	return convoymodel.ChannelCapabilities{SupportsGroups: false}
}

// Init reads listen_addr/path from this plugin's top-level config section
// (config.Get("wsgateway...")), matching spec.md §6's per-plugin-name
// config layout.
func (c *Channel) Init(config jsonvalue.Value) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	section := config.Get("wsgateway")
	c.addr = section.Get("listen_addr").AsString(":8765")
	c.path = section.Get("path").AsString("/ws")
	c.initialized = true
	return nil
}

func (c *Channel) Shutdown() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.initialized = false
	return nil
}

func (c *Channel) IsInitialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initialized
}

func (c *Channel) OnNewMessage(handler func(*convoymodel.Message)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = handler
}

func (c *Channel) OnError(handler func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = handler
}

func (c *Channel) Status() convoymodel.ChannelStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Channel) Start(ctx context.Context) error {
	c.mu.Lock()
	c.status = convoymodel.StatusStarting
	mux := http.NewServeMux()
	mux.HandleFunc(c.path, c.handleConn)
	c.server = &http.Server{Addr: c.addr, Handler: mux}
	c.status = convoymodel.StatusRunning
	srv := c.server
	c.mu.Unlock()

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			c.mu.Lock()
			c.status = convoymodel.StatusError
			onErr := c.onError
			c.mu.Unlock()
			if onErr != nil {
				onErr(err)
			}
		}
	}()
	return nil
}

func (c *Channel) Stop(ctx context.Context) error {
	c.mu.Lock()
	srv := c.server
	c.status = convoymodel.StatusStopped
	c.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// SendMessage writes text to the connection registered under the chat id
// to; an unknown chat id is a no-op error since the client has no open
// socket to deliver to.
func (c *Channel) SendMessage(ctx context.Context, to, text, replyTo string) error {
	c.mu.Lock()
	conn, ok := c.conns[to]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("wsgateway: no open connection for chat %q", to)
	}
	data, err := json.Marshal(frame{ChatID: to, Text: text})
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// Poll is a no-op: connections are driven by their own read loop goroutine
// started in handleConn.
func (c *Channel) Poll(ctx context.Context) error { return nil }

func (c *Channel) handleConn(w http.ResponseWriter, r *http.Request) {
	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	chatID := fmt.Sprintf("%p", conn)

	c.mu.Lock()
	c.conns[chatID] = conn
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.conns, chatID)
		c.mu.Unlock()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var f frame
		if jsonErr := json.Unmarshal(data, &f); jsonErr != nil {
			continue
		}
		msg := &convoymodel.Message{
			ID:            fmt.Sprintf("%s-%d", chatID, time.Now().UnixNano()),
			Channel:       "wsgateway",
			FromID:        chatID,
			ChatID:        chatID,
			Text:          f.Text,
			ChatType:      convoymodel.ChatDirect,
			TimestampUnix: time.Now().Unix(),
		}

		c.mu.Lock()
		handler := c.onMessage
		c.mu.Unlock()
		if handler != nil {
			handler(msg)
		}
	}
}
