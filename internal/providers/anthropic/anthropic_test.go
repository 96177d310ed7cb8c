package anthropic

import (
	"errors"
	"testing"

	"github.com/convoyrt/convoy/internal/jsonvalue"
	"github.com/convoyrt/convoy/pkg/convoymodel"
)

func TestInitReadsOwnSection(t *testing.T) {
	p := New()
	cfg := jsonvalue.Parse(`{"anthropic": {"api_key": "sk-ant-test", "default_model": "claude-3-haiku-20240307"}, "openai": {"api_key": "wrong-section"}}`)
	if err := p.Init(cfg); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if !p.IsConfigured() {
		t.Fatal("expected configured after setting api_key")
	}
	if p.DefaultModel() != "claude-3-haiku-20240307" {
		t.Fatalf("default model = %q", p.DefaultModel())
	}
}

func TestInitWithoutAPIKeyLeavesUnconfigured(t *testing.T) {
	p := New()
	if err := p.Init(jsonvalue.Parse(`{}`)); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if p.IsConfigured() {
		t.Fatal("expected unconfigured with no api_key")
	}
	if p.DefaultModel() != defaultModel {
		t.Fatalf("default model = %q, want fallback %q", p.DefaultModel(), defaultModel)
	}
}

func TestChatWithoutConfigurationReturnsFailure(t *testing.T) {
	p := New()
	_ = p.Init(jsonvalue.Parse(`{}`))
	result := p.Chat(t.Context(), nil, convoymodel.CompletionOptions{})
	if result.Success {
		t.Fatal("expected failure when no api_key is configured")
	}
}

func TestConvertMessagesSkipsSystemRole(t *testing.T) {
	msgs := []convoymodel.ConversationMessage{
		{Role: convoymodel.RoleSystem, Text: "ignored, carried via params.System instead"},
		{Role: convoymodel.RoleUser, Text: "hi"},
		{Role: convoymodel.RoleAssistant, Text: "hello"},
	}
	out := convertMessages(msgs)
	if len(out) != 2 {
		t.Fatalf("len = %d, want 2 (system role dropped)", len(out))
	}
}

func TestIsRetryableErrorClassifiesTransientFailures(t *testing.T) {
	cases := map[string]bool{
		"429 too many requests":       true,
		"503 service unavailable":     true,
		"request timeout":             true,
		"connection reset by peer":    true,
		"invalid x-api-key":           false,
		"400 bad request: bad field":  false,
	}
	for msg, want := range cases {
		if got := isRetryableError(errors.New(msg)); got != want {
			t.Errorf("isRetryableError(%q) = %v, want %v", msg, got, want)
		}
	}
	if isRetryableError(nil) {
		t.Error("isRetryableError(nil) = true, want false")
	}
}

func TestAvailableModelsIncludesDefault(t *testing.T) {
	p := New()
	found := false
	for _, m := range p.AvailableModels() {
		if m == defaultModel {
			found = true
		}
	}
	if !found {
		t.Fatalf("available models %v missing default %q", p.AvailableModels(), defaultModel)
	}
}
