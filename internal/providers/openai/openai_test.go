package openai

import (
	"errors"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/convoyrt/convoy/internal/jsonvalue"
	"github.com/convoyrt/convoy/pkg/convoymodel"
)

func TestInitReadsOwnSection(t *testing.T) {
	p := New()
	cfg := jsonvalue.Parse(`{"openai": {"api_key": "sk-test", "default_model": "gpt-4o-mini"}, "anthropic": {"api_key": "wrong-section"}}`)
	if err := p.Init(cfg); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if !p.IsConfigured() {
		t.Fatal("expected configured after setting api_key")
	}
	if p.DefaultModel() != "gpt-4o-mini" {
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
	if !p.IsInitialized() {
		t.Fatal("Init should still mark the provider initialized")
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

func TestConvertMessagesPrependsSystem(t *testing.T) {
	msgs := []convoymodel.ConversationMessage{
		{Role: convoymodel.RoleUser, Text: "hi"},
		{Role: convoymodel.RoleAssistant, Text: "hello"},
	}
	out := convertMessages(msgs, "be nice")
	if len(out) != 3 {
		t.Fatalf("len = %d, want 3", len(out))
	}
	if out[0].Role != openai.ChatMessageRoleSystem || out[0].Content != "be nice" {
		t.Fatalf("system message = %+v", out[0])
	}
	if out[1].Role != openai.ChatMessageRoleUser || out[2].Role != openai.ChatMessageRoleAssistant {
		t.Fatalf("roles = %q, %q", out[1].Role, out[2].Role)
	}
}

func TestConvertMessagesNoSystem(t *testing.T) {
	out := convertMessages([]convoymodel.ConversationMessage{{Role: convoymodel.RoleUser, Text: "hi"}}, "")
	if len(out) != 1 {
		t.Fatalf("len = %d, want 1", len(out))
	}
}

func TestIsRetryableErrorChecksHTTPStatusAndNetworkMessages(t *testing.T) {
	if !isRetryableError(&openai.APIError{HTTPStatusCode: 429}) {
		t.Error("429 APIError should be retryable")
	}
	if !isRetryableError(&openai.APIError{HTTPStatusCode: 503}) {
		t.Error("503 APIError should be retryable")
	}
	if isRetryableError(&openai.APIError{HTTPStatusCode: 401}) {
		t.Error("401 APIError should not be retryable")
	}
	if !isRetryableError(errors.New("connection reset by peer")) {
		t.Error("connection reset should be retryable")
	}
	if isRetryableError(errors.New("invalid model")) {
		t.Error("unrelated message should not be retryable")
	}
	if isRetryableError(nil) {
		t.Error("nil should not be retryable")
	}
}

func TestRawArgumentsFallsBackOnInvalidJSON(t *testing.T) {
	if got := string(rawArguments("")); got != "{}" {
		t.Fatalf("empty args = %q", got)
	}
	if got := string(rawArguments("not json")); got != "{}" {
		t.Fatalf("invalid args = %q", got)
	}
	if got := string(rawArguments(`{"x":1}`)); got != `{"x":1}` {
		t.Fatalf("valid args = %q", got)
	}
}
