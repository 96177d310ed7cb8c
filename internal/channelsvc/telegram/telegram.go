// Package telegram implements convoy's plugins.Channel contract against the
// Telegram Bot API via go-telegram/bot's long-polling client.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/convoyrt/convoy/internal/jsonvalue"
	"github.com/convoyrt/convoy/pkg/convoymodel"
)

// Channel adapts a Telegram bot to plugins.Channel.
type Channel struct {
	mu          sync.Mutex
	token       string
	bot         *tgbot.Bot
	status      convoymodel.ChannelStatus
	initialized bool
	onMessage   func(*convoymodel.Message)
	onError     func(error)
	cancel      context.CancelFunc
}

// New constructs an uninitialized Channel.
func New() *Channel {
	return &Channel{status: convoymodel.StatusStopped}
}

func (c *Channel) Name() string        { return "telegram" }
func (c *Channel) Version() string     { return "1.0.0" }
func (c *Channel) Description() string { return "Telegram Bot API transport" }
func (c *Channel) ChannelID() string   { return "telegram" }

func (c *Channel) Capabilities() convoymodel.ChannelCapabilities {
	return convoymodel.ChannelCapabilities{SupportsGroups: true, Media: true, Reactions: true}
}

// Init reads the bot token from this plugin's top-level config section
// (config.Get("telegram.token")), matching spec.md §6's per-plugin-name
// config layout.
func (c *Channel) Init(config jsonvalue.Value) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = config.Get("telegram").Get("token").AsString("")
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

// Start builds the bot client and begins long polling in a background
// goroutine; it returns once the bot is constructed, not once polling ends.
func (c *Channel) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.token == "" {
		c.mu.Unlock()
		return fmt.Errorf("telegram: no token configured")
	}
	c.status = convoymodel.StatusStarting
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	b, err := tgbot.New(c.token, tgbot.WithDefaultHandler(c.handleUpdate))
	if err != nil {
		c.mu.Lock()
		c.status = convoymodel.StatusError
		c.mu.Unlock()
		return fmt.Errorf("telegram: new bot: %w", err)
	}

	c.mu.Lock()
	c.bot = b
	c.status = convoymodel.StatusRunning
	c.mu.Unlock()

	go b.Start(runCtx)
	return nil
}

func (c *Channel) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
	c.status = convoymodel.StatusStopped
	return nil
}

// SendMessage sends text to a Telegram chat id (to is the chat id as a
// decimal string, matching convoymodel.Message.ChatID's convention).
func (c *Channel) SendMessage(ctx context.Context, to, text, replyTo string) error {
	c.mu.Lock()
	b := c.bot
	c.mu.Unlock()
	if b == nil {
		return fmt.Errorf("telegram: channel not started")
	}
	chatID, err := strconv.ParseInt(to, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid chat id %q: %w", to, err)
	}
	params := &tgbot.SendMessageParams{ChatID: chatID, Text: text}
	if replyTo != "" {
		if replyID, err := strconv.Atoi(replyTo); err == nil {
			params.ReplyParameters = &models.ReplyParameters{MessageID: replyID}
		}
	}
	_, err = b.SendMessage(ctx, params)
	return err
}

// Poll is a no-op: go-telegram/bot's long-polling loop owns its own
// goroutine started by Start, so there is nothing for the cooperative
// poll loop to drive here.
func (c *Channel) Poll(ctx context.Context) error { return nil }

func (c *Channel) handleUpdate(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	msg := convertMessage(update.Message)

	c.mu.Lock()
	handler := c.onMessage
	c.mu.Unlock()
	if handler != nil {
		handler(msg)
	}
}

func convertMessage(m *models.Message) *convoymodel.Message {
	chatType := convoymodel.ChatDirect
	if m.Chat.Type == "group" || m.Chat.Type == "supergroup" {
		chatType = convoymodel.ChatGroup
	}
	fromID, displayName := "", ""
	if m.From != nil {
		fromID = strconv.FormatInt(m.From.ID, 10)
		displayName = m.From.FirstName
	}
	return &convoymodel.Message{
		ID:              strconv.Itoa(m.ID),
		Channel:         "telegram",
		FromID:          fromID,
		FromDisplayName: displayName,
		ChatID:          strconv.FormatInt(m.Chat.ID, 10),
		Text:            m.Text,
		ChatType:        chatType,
		TimestampUnix:   int64(m.Date),
	}
}
