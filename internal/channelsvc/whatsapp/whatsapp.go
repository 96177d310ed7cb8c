// Package whatsapp implements convoy's plugins.Channel contract against
// WhatsApp via whatsmeow's multi-device client, pairing through a QR code
// reported to the OnError callback and persisting the paired session to a local sqlite store so
// convoy does not re-pair on every restart.
package whatsapp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	_ "modernc.org/sqlite"

	"github.com/convoyrt/convoy/internal/jsonvalue"
	"github.com/convoyrt/convoy/pkg/convoymodel"
)

const defaultSessionPath = "./data/whatsapp.db"

// Channel adapts a whatsmeow client to plugins.Channel. A connected Channel
// represents a single paired WhatsApp account; every JID it exchanges
// messages with is one chat, group or direct.
type Channel struct {
	mu          sync.Mutex
	sessionPath string
	container   *sqlstore.Container
	device      *store.Device
	client      *whatsmeow.Client
	status      convoymodel.ChannelStatus
	initialized bool
	onMessage   func(*convoymodel.Message)
	onError     func(error)
	cancel      context.CancelFunc
}

// New constructs an uninitialized Channel.
func New() *Channel {
	return &Channel{sessionPath: defaultSessionPath, status: convoymodel.StatusStopped}
}

func (c *Channel) Name() string        { return "whatsapp" }
func (c *Channel) Version() string     { return "1.0.0" }
func (c *Channel) Description() string { return "WhatsApp multi-device transport" }
func (c *Channel) ChannelID() string   { return "whatsapp" }

func (c *Channel) Capabilities() convoymodel.ChannelCapabilities {
	return convoymodel.ChannelCapabilities{SupportsGroups: true, Media: true, Reactions: true}
}

// Init reads session_path from this plugin's top-level config section
// (config.Get("whatsapp.session_path")) and opens the backing sqlite
// store; pairing itself happens in Start, since a fresh store has no
// device yet and needs a QR scan.
func (c *Channel) Init(config jsonvalue.Value) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	section := config.Get("whatsapp")
	if p := section.Get("session_path").AsString(""); p != "" {
		c.sessionPath = p
	}
	if err := os.MkdirAll(filepath.Dir(c.sessionPath), 0o755); err != nil {
		return fmt.Errorf("whatsapp: creating session directory: %w", err)
	}

	initCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	container, err := sqlstore.New(initCtx, "sqlite", fmt.Sprintf("file:%s?_pragma=foreign_keys(1)", c.sessionPath), waLog.Noop)
	if err != nil {
		return fmt.Errorf("whatsapp: opening session store: %w", err)
	}
	c.container = container
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

// Start obtains (or creates) the paired device and connects; if the store
// has no prior session it passes each QR pairing code to onError (there is
// no dedicated pairing callback in plugins.Channel) and waits for the scan
// in a background goroutine rather than blocking the caller.
func (c *Channel) Start(ctx context.Context) error {
	c.mu.Lock()
	container := c.container
	c.status = convoymodel.StatusStarting
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	device, err := container.GetFirstDevice(runCtx)
	if err != nil {
		c.setStatus(convoymodel.StatusError)
		return fmt.Errorf("whatsapp: loading device: %w", err)
	}

	client := whatsmeow.NewClient(device, waLog.Noop)
	client.AddEventHandler(c.handleEvent)

	c.mu.Lock()
	c.device = device
	c.client = client
	c.mu.Unlock()

	if client.Store.ID == nil {
		qrChan, err := client.GetQRChannel(runCtx)
		if err != nil {
			c.setStatus(convoymodel.StatusError)
			return fmt.Errorf("whatsapp: requesting QR channel: %w", err)
		}
		if err := client.Connect(); err != nil {
			c.setStatus(convoymodel.StatusError)
			return fmt.Errorf("whatsapp: connecting: %w", err)
		}
		go c.watchPairing(runCtx, qrChan)
	} else {
		if err := client.Connect(); err != nil {
			c.setStatus(convoymodel.StatusError)
			return fmt.Errorf("whatsapp: connecting: %w", err)
		}
	}

	c.setStatus(convoymodel.StatusRunning)
	return nil
}

func (c *Channel) watchPairing(ctx context.Context, qrChan <-chan whatsmeow.QRChannelItem) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-qrChan:
			if !ok {
				return
			}
			if evt.Event == "code" {
				c.reportError(fmt.Errorf("whatsapp: scan this QR code to pair: %s", evt.Code))
			}
		}
	}
}

func (c *Channel) setStatus(s convoymodel.ChannelStatus) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
}

func (c *Channel) reportError(err error) {
	c.mu.Lock()
	handler := c.onError
	c.mu.Unlock()
	if handler != nil {
		handler(err)
	}
}

func (c *Channel) Stop(ctx context.Context) error {
	c.mu.Lock()
	client := c.client
	if c.cancel != nil {
		c.cancel()
	}
	c.status = convoymodel.StatusStopped
	c.mu.Unlock()
	if client != nil {
		client.Disconnect()
	}
	return nil
}

// SendMessage sends text to the WhatsApp JID identified by to.
func (c *Channel) SendMessage(ctx context.Context, to, text, replyTo string) error {
	c.mu.Lock()
	client := c.client
	c.mu.Unlock()
	if client == nil {
		return fmt.Errorf("whatsapp: channel not started")
	}
	jid, err := types.ParseJID(to)
	if err != nil {
		return fmt.Errorf("whatsapp: invalid jid %q: %w", to, err)
	}
	_, err = client.SendMessage(ctx, jid, buildTextMessage(text))
	return err
}

func buildTextMessage(text string) *waE2E.Message {
	return &waE2E.Message{Conversation: proto.String(text)}
}

// Poll is a no-op: whatsmeow delivers messages through its own event
// handler goroutine registered in Start.
func (c *Channel) Poll(ctx context.Context) error { return nil }

func (c *Channel) handleEvent(evt any) {
	msgEvt, ok := evt.(*events.Message)
	if !ok {
		return
	}
	msg := convertMessage(msgEvt)
	if msg == nil {
		return
	}

	c.mu.Lock()
	handler := c.onMessage
	c.mu.Unlock()
	if handler != nil {
		handler(msg)
	}
}

func convertMessage(evt *events.Message) *convoymodel.Message {
	text := extractText(evt)
	if text == "" {
		return nil
	}
	chatType := convoymodel.ChatDirect
	if evt.Info.IsGroup {
		chatType = convoymodel.ChatGroup
	}
	return &convoymodel.Message{
		ID:              evt.Info.ID,
		Channel:         "whatsapp",
		FromID:          evt.Info.Sender.String(),
		FromDisplayName: evt.Info.PushName,
		ChatID:          evt.Info.Chat.String(),
		Text:            text,
		ChatType:        chatType,
		TimestampUnix:   evt.Info.Timestamp.Unix(),
	}
}

func extractText(evt *events.Message) string {
	if evt.Message == nil {
		return ""
	}
	if txt := evt.Message.GetConversation(); txt != "" {
		return txt
	}
	if ext := evt.Message.GetExtendedTextMessage(); ext != nil {
		return ext.GetText()
	}
	return ""
}
