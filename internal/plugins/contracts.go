// Package plugins defines convoy's plugin contracts (Channel, Tool,
// AiProvider, each extending a common lifecycle) and the dynamic loader
// that brings them in from shared libraries.
package plugins

import (
	"context"

	"github.com/convoyrt/convoy/internal/jsonvalue"
	"github.com/convoyrt/convoy/pkg/convoymodel"
)

// Plugin is the common lifecycle every capability variant extends: a
// stable identity, init/shutdown, and optional cooperative polling.
type Plugin interface {
	Name() string
	Version() string
	Description() string
	Init(config jsonvalue.Value) error
	Shutdown() error
	IsInitialized() bool
}

// Poller is implemented by plugins that want to be invoked periodically
// from the orchestrator's cooperative poll loop rather than owning a
// dedicated goroutine.
type Poller interface {
	Poll(ctx context.Context) error
}

// MessageObserver is implemented by plugins that want to observe every
// inbound message regardless of which channel it arrived on.
type MessageObserver interface {
	OnIncomingMessage(msg *convoymodel.Message)
}

// TypingObserver is implemented by plugins that want to observe typing
// indicator transitions on any channel.
type TypingObserver interface {
	OnTypingIndicator(channel, chat string, typing bool)
}

// Channel is a transport-facing plugin that delivers and sends messages
// for one external messaging system.
type Channel interface {
	Plugin
	ChannelID() string
	Capabilities() convoymodel.ChannelCapabilities
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Status() convoymodel.ChannelStatus
	SendMessage(ctx context.Context, to, text, replyTo string) error
	Poll(ctx context.Context) error
	OnNewMessage(handler func(*convoymodel.Message))
	OnError(handler func(error))
}

// Tool is a plugin providing one or more executable actions callable by
// users (commands) or the model (tool-call markup).
type Tool interface {
	Plugin
	ToolID() string
	Actions() []string
	Execute(ctx context.Context, action string, params jsonvalue.Value) convoymodel.ToolResult
	GetAgentTools() []convoymodel.AgentTool
}

// AiProvider is a pluggable language-model backend.
type AiProvider interface {
	Plugin
	ProviderID() string
	AvailableModels() []string
	DefaultModel() string
	IsConfigured() bool
	Complete(ctx context.Context, prompt string, opts convoymodel.CompletionOptions) convoymodel.CompletionResult
	Chat(ctx context.Context, messages []convoymodel.ConversationMessage, opts convoymodel.CompletionOptions) convoymodel.CompletionResult
}
