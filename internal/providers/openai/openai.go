// Package openai implements convoy's plugins.AiProvider contract against
// OpenAI's chat completion API (and any OpenAI-compatible endpoint reachable
// via base_url).
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/convoyrt/convoy/internal/jsonvalue"
	"github.com/convoyrt/convoy/pkg/convoymodel"
)

const (
	defaultModel         = "gpt-4o"
	defaultRetryAttempts = 3
	retryInitialDelay    = 250 * time.Millisecond
	retryMaxDelay        = 4 * time.Second
)

var availableModels = []string{
	"gpt-4o",
	"gpt-4-turbo",
	"gpt-4o-mini",
	"gpt-3.5-turbo",
}

// Provider adapts a go-openai client to plugins.AiProvider.
type Provider struct {
	mu          sync.RWMutex
	client      *openai.Client
	apiKey      string
	model       string
	initialized bool
}

// New constructs an uninitialized Provider.
func New() *Provider {
	return &Provider{model: defaultModel}
}

func (p *Provider) Name() string        { return "openai" }
func (p *Provider) Version() string     { return "1.0.0" }
func (p *Provider) Description() string { return "OpenAI chat completion provider" }
func (p *Provider) ProviderID() string  { return "openai" }

// Init reads api_key/base_url/default_model from this plugin's top-level
// config section (config.Get("openai...")), matching spec.md §6's
// per-plugin-name config layout.
func (p *Provider) Init(config jsonvalue.Value) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	section := config.Get("openai")
	p.apiKey = section.Get("api_key").AsString("")
	if m := section.Get("default_model").AsString(""); m != "" {
		p.model = m
	}
	if p.apiKey == "" {
		p.initialized = true
		return nil
	}

	cfg := openai.DefaultConfig(p.apiKey)
	if baseURL := section.Get("base_url").AsString(""); baseURL != "" {
		cfg.BaseURL = baseURL
	}
	p.client = openai.NewClientWithConfig(cfg)
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

// Chat sends messages to the configured model and returns its reply,
// normalizing any tool_calls into NativeToolCall entries for the agent
// loop to fold into <tool_call> markup.
func (p *Provider) Chat(ctx context.Context, messages []convoymodel.ConversationMessage, opts convoymodel.CompletionOptions) convoymodel.CompletionResult {
	p.mu.RLock()
	client := p.client
	configured := p.apiKey != ""
	p.mu.RUnlock()

	if !configured {
		return convoymodel.CompletionResult{Success: false, Error: "openai: not configured"}
	}

	model := opts.Model
	if model == "" {
		model = p.DefaultModel()
	}

	req := openai.ChatCompletionRequest{
		Model:    model,
		Messages: convertMessages(messages, opts.System),
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = opts.MaxTokens
	}
	if opts.Temperature > 0 {
		req.Temperature = float32(opts.Temperature)
	}

	resp, err := callWithRetry(ctx, client, req)
	if err != nil {
		return convoymodel.CompletionResult{Success: false, Error: "openai: " + err.Error()}
	}
	if len(resp.Choices) == 0 {
		return convoymodel.CompletionResult{Success: false, Error: "openai: empty choices"}
	}

	choice := resp.Choices[0]
	var toolCalls []convoymodel.NativeToolCall
	for _, tc := range choice.Message.ToolCalls {
		toolCalls = append(toolCalls, convoymodel.NativeToolCall{
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: jsonvalue.ParseBytes(rawArguments(tc.Function.Arguments)),
		})
	}

	if opts.Stream && opts.OnChunk != nil && choice.Message.Content != "" {
		opts.OnChunk(choice.Message.Content)
	}

	return convoymodel.CompletionResult{
		Success:    true,
		Content:    choice.Message.Content,
		StopReason: string(choice.FinishReason),
		Model:      resp.Model,
		ToolCalls:  toolCalls,
		Usage: convoymodel.CompletionUsage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
	}
}

// callWithRetry retries CreateChatCompletion on transient failures, sleeping
// between attempts with a doubling delay capped at retryMaxDelay; a
// non-retryable error returns immediately.
func callWithRetry(ctx context.Context, client *openai.Client, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	var lastErr error
	for attempt := 1; attempt <= defaultRetryAttempts; attempt++ {
		resp, err := client.CreateChatCompletion(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !isRetryableError(err) {
			return openai.ChatCompletionResponse{}, err
		}
		if attempt < defaultRetryAttempts {
			if sleepErr := sleepBeforeRetry(ctx, attempt); sleepErr != nil {
				return openai.ChatCompletionResponse{}, sleepErr
			}
		}
	}
	return openai.ChatCompletionResponse{}, lastErr
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
// connection failures as transient; everything else (bad key, bad request)
// is treated as permanent.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case 429, 500, 502, 503, 504:
			return true
		default:
			return false
		}
	}
	msg := err.Error()
	for _, substr := range []string{"timeout", "deadline exceeded", "connection reset", "connection refused", "no such host"} {
		if strings.Contains(msg, substr) {
			return true
		}
	}
	return false
}

func rawArguments(args string) []byte {
	if args == "" {
		return []byte("{}")
	}
	if !json.Valid([]byte(args)) {
		return []byte("{}")
	}
	return []byte(args)
}

func convertMessages(messages []convoymodel.ConversationMessage, system string) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, m := range messages {
		role := openai.ChatMessageRoleUser
		if m.Role == convoymodel.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		} else if m.Role == convoymodel.RoleSystem {
			role = openai.ChatMessageRoleSystem
		}
		result = append(result, openai.ChatCompletionMessage{Role: role, Content: m.Text})
	}
	return result
}
