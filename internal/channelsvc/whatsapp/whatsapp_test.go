package whatsapp

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/convoyrt/convoy/internal/jsonvalue"
	"github.com/convoyrt/convoy/pkg/convoymodel"
)

func TestNewDefaultsToStopped(t *testing.T) {
	c := New()
	if c.Status() != convoymodel.StatusStopped {
		t.Fatalf("status = %v, want stopped", c.Status())
	}
	if c.sessionPath != defaultSessionPath {
		t.Fatalf("session path = %q, want default %q", c.sessionPath, defaultSessionPath)
	}
}

func TestCapabilities(t *testing.T) {
	c := New()
	caps := c.Capabilities()
	if !caps.SupportsGroups || !caps.Media || !caps.Reactions {
		t.Fatalf("unexpected capabilities: %+v", caps)
	}
}

func TestInitOpensSessionStoreAtConfiguredPath(t *testing.T) {
	c := New()
	dbPath := filepath.Join(t.TempDir(), "session.db")
	cfg := jsonvalue.Parse(`{"whatsapp": {"session_path": "` + dbPath + `"}}`)
	if err := c.Init(cfg); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if c.sessionPath != dbPath {
		t.Fatalf("session path = %q, want %q", c.sessionPath, dbPath)
	}
	if !c.IsInitialized() {
		t.Fatal("expected IsInitialized true after Init")
	}
	if c.container == nil {
		t.Fatal("expected a session store container after Init")
	}
}

func TestInitKeepsDefaultPathWhenUnset(t *testing.T) {
	c := New()
	c.sessionPath = filepath.Join(t.TempDir(), "default.db")
	if err := c.Init(jsonvalue.Parse(`{}`)); err != nil {
		t.Fatalf("Init: %v", err)
	}
}

func TestSendMessageBeforeStartFails(t *testing.T) {
	c := New()
	if err := c.SendMessage(t.Context(), "1234@s.whatsapp.net", "hi", ""); err == nil {
		t.Fatal("expected error sending before the channel has started")
	}
}

func TestBuildTextMessageSetsConversation(t *testing.T) {
	msg := buildTextMessage("hello there")
	if msg.GetConversation() != "hello there" {
		t.Fatalf("conversation = %q", msg.GetConversation())
	}
}

func TestOnErrorAndOnNewMessageWiring(t *testing.T) {
	c := New()
	wantErr := errors.New("scan this QR code")
	var gotErr error
	var gotMsg *convoymodel.Message
	c.OnError(func(err error) { gotErr = err })
	c.OnNewMessage(func(msg *convoymodel.Message) { gotMsg = msg })

	c.reportError(wantErr)
	if gotErr != wantErr {
		t.Fatalf("onError did not fire with expected error, got %v", gotErr)
	}

	c.mu.Lock()
	handler := c.onMessage
	c.mu.Unlock()
	sample := &convoymodel.Message{Text: "hi"}
	handler(sample)
	if gotMsg != sample {
		t.Fatal("onMessage handler not wired correctly")
	}
}
