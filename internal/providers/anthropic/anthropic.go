// Package anthropic implements convoy's plugins.AiProvider contract against
// Anthropic's Claude API.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/convoyrt/convoy/internal/jsonvalue"
	"github.com/convoyrt/convoy/pkg/convoymodel"
)

const (
	defaultModel         = "claude-sonnet-4-20250514"
	defaultMaxTokens     = 1024
	defaultRetryAttempts = 3
	retryInitialDelay    = 250 * time.Millisecond
	retryMaxDelay        = 4 * time.Second
)

// availableModels lists the Claude models this provider will accept in
// CompletionOptions.Model.
var availableModels = []string{
	"claude-sonnet-4-20250514",
	"claude-opus-4-20250514",
	"claude-3-5-sonnet-20241022",
	"claude-3-haiku-20240307",
}

// Provider adapts an Anthropic SDK client to plugins.AiProvider.
type Provider struct {
	mu          sync.RWMutex
	client      anthropic.Client
	apiKey      string
	baseURL     string
	model       string
	initialized bool
}

// New constructs an uninitialized Provider; Init supplies the API key from
// the plugin config tree, matching the rest of the plugin contracts.
func New() *Provider {
	return &Provider{model: defaultModel}
}

func (p *Provider) Name() string        { return "anthropic" }
func (p *Provider) Version() string     { return "1.0.0" }
func (p *Provider) Description() string { return "Anthropic Claude chat completion provider" }
func (p *Provider) ProviderID() string  { return "anthropic" }

// Init reads api_key/base_url/default_model from this plugin's top-level
// config section (config.Get("anthropic...")), matching spec.md §6's
// per-plugin-name config layout.
func (p *Provider) Init(config jsonvalue.Value) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	section := config.Get("anthropic")
	p.apiKey = section.Get("api_key").AsString("")
	p.baseURL = section.Get("base_url").AsString("")
	if m := section.Get("default_model").AsString(""); m != "" {
		p.model = m
	}
	if p.apiKey == "" {
		p.initialized = true
		return nil
	}

	opts := []option.RequestOption{option.WithAPIKey(p.apiKey)}
	if p.baseURL != "" {
		opts = append(opts, option.WithBaseURL(p.baseURL))
	}
	p.client = anthropic.NewClient(opts...)
	p.initialized = true
	return nil
}

func (p *Provider) Shutdown() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.initialized = false
	return nil
}

func (p *Provider) IsInitialized() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.initialized
}

func (p *Provider) IsConfigured() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.apiKey != ""
}

func (p *Provider) AvailableModels() []string { return availableModels }
func (p *Provider) DefaultModel() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.model
}

// Complete wraps prompt as a single user turn and delegates to Chat.
func (p *Provider) Complete(ctx context.Context, prompt string, opts convoymodel.CompletionOptions) convoymodel.CompletionResult {
	return p.Chat(ctx, []convoymodel.ConversationMessage{{Role: convoymodel.RoleUser, Text: prompt}}, opts)
}

// Chat sends messages to the configured Claude model and returns its reply,
// normalizing any tool_use content blocks into NativeToolCall entries for
// the agent loop to fold into <tool_call> markup.
func (p *Provider) Chat(ctx context.Context, messages []convoymodel.ConversationMessage, opts convoymodel.CompletionOptions) convoymodel.CompletionResult {
	p.mu.RLock()
	client := p.client
	configured := p.apiKey != ""
	p.mu.RUnlock()

	if !configured {
		return convoymodel.CompletionResult{Success: false, Error: "anthropic: not configured"}
	}

	model := opts.Model
	if model == "" {
		model = p.DefaultModel()
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  convertMessages(messages),
		MaxTokens: int64(maxTokens),
	}
	if opts.System != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: opts.System}}
	}

	msg, err := callWithRetry(ctx, client, params)
	if err != nil {
		return convoymodel.CompletionResult{Success: false, Error: wrapErr(err).Error()}
	}

	var text strings.Builder
	var toolCalls []convoymodel.NativeToolCall
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.AsText().Text)
		case "tool_use":
			tu := block.AsToolUse()
			raw, _ := json.Marshal(tu.Input)
			toolCalls = append(toolCalls, convoymodel.NativeToolCall{
				ID:    tu.ID,
				Name:  tu.Name,
				Input: jsonvalue.ParseBytes(raw),
			})
			if opts.OnChunk != nil {
				opts.OnChunk("")
			}
		}
	}
	if opts.Stream && opts.OnChunk != nil && text.Len() > 0 {
		opts.OnChunk(text.String())
	}

	return convoymodel.CompletionResult{
		Success:    true,
		Content:    text.String(),
		StopReason: string(msg.StopReason),
		Model:      string(msg.Model),
		ToolCalls:  toolCalls,
		Usage: convoymodel.CompletionUsage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
			TotalTokens:  int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}
}

func convertMessages(messages []convoymodel.ConversationMessage) []anthropic.MessageParam {
	result := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		if m.Role == convoymodel.RoleSystem {
			continue // carried separately via params.System
		}
		block := anthropic.NewTextBlock(m.Text)
		if m.Role == convoymodel.RoleAssistant {
			result = append(result, anthropic.NewAssistantMessage(block))
		} else {
			result = append(result, anthropic.NewUserMessage(block))
		}
	}
	return result
}

// callWithRetry retries client.Messages.New on transient failures, sleeping
// between attempts with a doubling delay capped at retryMaxDelay; a
// non-retryable error (bad key, bad request) returns immediately on the
// first attempt.
func callWithRetry(ctx context.Context, client anthropic.Client, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	var lastErr error
	for attempt := 1; attempt <= defaultRetryAttempts; attempt++ {
		msg, err := client.Messages.New(ctx, params)
		if err == nil {
			return msg, nil
		}
		lastErr = err
		if !isRetryableError(err) {
			return nil, err
		}
		if attempt < defaultRetryAttempts {
			if sleepErr := sleepBeforeRetry(ctx, attempt); sleepErr != nil {
				return nil, sleepErr
			}
		}
	}
	return nil, lastErr
}

// retryDelay doubles retryInitialDelay per attempt (1-indexed), capped at
// retryMaxDelay, then jitters by up to 20% so concurrent retries from a
// single process don't all wake up in lockstep.
func retryDelay(attempt int) time.Duration {
	scaled := float64(retryInitialDelay) * math.Pow(2, float64(attempt-1))
	if scaled > float64(retryMaxDelay) {
		scaled = float64(retryMaxDelay)
	}
	jitter := 1 + (rand.Float64()*0.4 - 0.2)
	return time.Duration(scaled * jitter)
}

// sleepBeforeRetry blocks for retryDelay(attempt), returning ctx.Err() if
// the context is cancelled first.
func sleepBeforeRetry(ctx context.Context, attempt int) error {
	timer := time.NewTimer(retryDelay(attempt))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// isRetryableError classifies rate limits, 5xx responses, timeouts, and
// connection failures as transient and worth a retry; everything else
// (bad API key, malformed request) is treated as permanent.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, substr := range []string{
		"rate_limit", "429", "too many requests",
		"500", "502", "503", "504",
		"internal server error", "bad gateway", "service unavailable", "gateway timeout",
		"timeout", "deadline exceeded",
		"connection reset", "connection refused", "no such host",
	} {
		if strings.Contains(msg, substr) {
			return true
		}
	}
	return false
}

// wrapErr formats a final (post-retry) Anthropic failure into the plain
// string carried by CompletionResult.Error.
func wrapErr(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return errors.New("anthropic: " + apiErr.Error())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.New("anthropic: request timed out")
	}
	return errors.New("anthropic: " + err.Error())
}
