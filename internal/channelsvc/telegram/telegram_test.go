package telegram

import (
	"testing"

	"github.com/go-telegram/bot/models"

	"github.com/convoyrt/convoy/internal/jsonvalue"
	"github.com/convoyrt/convoy/pkg/convoymodel"
)

func TestNewDefaultsToStopped(t *testing.T) {
	c := New()
	if c.Status() != convoymodel.StatusStopped {
		t.Fatalf("new channel status = %v, want stopped", c.Status())
	}
	if c.IsInitialized() {
		t.Fatal("new channel should not be initialized")
	}
}

func TestInitReadsTokenFromOwnSection(t *testing.T) {
	c := New()
	cfg := jsonvalue.Parse(`{"telegram": {"token": "abc123"}, "openai": {"api_key": "wrong-section"}}`)
	if err := c.Init(cfg); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if c.token != "abc123" {
		t.Fatalf("token = %q, want abc123", c.token)
	}
	if !c.IsInitialized() {
		t.Fatal("expected IsInitialized true after Init")
	}
}

func TestStartWithoutTokenFails(t *testing.T) {
	c := New()
	if err := c.Start(t.Context()); err == nil {
		t.Fatal("expected Start with no token to fail")
	}
}

func TestCapabilities(t *testing.T) {
	c := New()
	caps := c.Capabilities()
	if !caps.SupportsGroups || !caps.Media || !caps.Reactions {
		t.Fatalf("unexpected capabilities: %+v", caps)
	}
}

func TestConvertMessageDirect(t *testing.T) {
	m := &models.Message{
		ID:   42,
		Date: 1700000000,
		Chat: models.Chat{ID: 67890, Type: "private"},
		From: &models.User{ID: 111, FirstName: "John"},
		Text: "hello",
	}
	msg := convertMessage(m)
	if msg.Channel != "telegram" {
		t.Fatalf("channel = %q", msg.Channel)
	}
	if msg.FromID != "111" || msg.FromDisplayName != "John" {
		t.Fatalf("from = %q/%q", msg.FromID, msg.FromDisplayName)
	}
	if msg.ChatID != "67890" {
		t.Fatalf("chat id = %q", msg.ChatID)
	}
	if msg.ChatType != convoymodel.ChatDirect {
		t.Fatalf("chat type = %v, want direct", msg.ChatType)
	}
	if msg.Text != "hello" {
		t.Fatalf("text = %q", msg.Text)
	}
}

func TestConvertMessageGroup(t *testing.T) {
	m := &models.Message{
		ID:   1,
		Chat: models.Chat{ID: 1, Type: "supergroup"},
		Text: "hi",
	}
	msg := convertMessage(m)
	if msg.ChatType != convoymodel.ChatGroup {
		t.Fatalf("chat type = %v, want group", msg.ChatType)
	}
	if msg.FromID != "" {
		t.Fatalf("expected empty from id for nil From, got %q", msg.FromID)
	}
}

func TestHandleUpdateInvokesOnNewMessage(t *testing.T) {
	c := New()
	var received string
	c.OnNewMessage(func(msg *convoymodel.Message) { received = msg.Text })
	c.handleUpdate(t.Context(), nil, &models.Update{Message: &models.Message{Text: "ping", Chat: models.Chat{ID: 5}}})
	if received != "ping" {
		t.Fatalf("handler did not receive message, got %q", received)
	}
}

func TestHandleUpdateIgnoresNonMessageUpdates(t *testing.T) {
	c := New()
	called := false
	c.OnNewMessage(func(msg *convoymodel.Message) { called = true })
	c.handleUpdate(t.Context(), nil, &models.Update{})
	if called {
		t.Fatal("handler should not fire for an update with no message")
	}
}
