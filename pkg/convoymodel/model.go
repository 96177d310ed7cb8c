// Package convoymodel holds the data types shared across convoy's core
// subsystems: conversation turns, plugin contracts' value types, memory
// records, and rate-limit outcomes.
package convoymodel

import "github.com/convoyrt/convoy/internal/jsonvalue"

// Role identifies the author of a ConversationMessage.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ConversationMessage is one immutable turn in a session's history.
type ConversationMessage struct {
	Role Role
	Text string
}

// ChatType classifies the originating conversation shape.
type ChatType string

const (
	ChatDirect  ChatType = "direct"
	ChatGroup   ChatType = "group"
	ChatChannel ChatType = "channel"
)

// Message is the inbound/outbound transport envelope exchanged with a
// Channel plugin.
type Message struct {
	ID              string
	Channel         string
	FromID          string
	FromDisplayName string
	ChatID          string
	Text            string
	ChatType        ChatType
	TimestampUnix   int64
	ReplyToID       string
	MediaURL        string
}

// PluginKind tags the capability variant of a plugin.
type PluginKind string

const (
	KindChannel    PluginKind = "channel"
	KindTool       PluginKind = "tool"
	KindAiProvider PluginKind = "ai"
)

// ChannelStatus is the lifecycle state of a Channel plugin's transport loop.
type ChannelStatus string

const (
	StatusStopped  ChannelStatus = "STOPPED"
	StatusStarting ChannelStatus = "STARTING"
	StatusRunning  ChannelStatus = "RUNNING"
	StatusStopping ChannelStatus = "STOPPING"
	StatusError    ChannelStatus = "ERROR"
)

// ChannelCapabilities advertises the optional feature surface a Channel
// plugin supports.
type ChannelCapabilities struct {
	SupportsGroups bool
	Reactions      bool
	Media          bool
	Edit           bool
	Delete         bool
	Threads        bool
}

// MemorySource names where a memory file or chunk originated.
type MemorySource string

const (
	SourceMemory   MemorySource = "memory"
	SourceSessions MemorySource = "sessions"
	SourceTask     MemorySource = "task"
)

// MemoryFile is a tracked row in the memory store's files table.
type MemoryFile struct {
	Path    string
	AbsPath string
	Source  MemorySource
	Hash    string
	MtimeMs int64
	Size    int64
}

// MemoryChunk is a paragraph-bounded slice of a MemoryFile, sized near a
// target token budget, with overlap into its neighbor.
type MemoryChunk struct {
	ID          string
	Path        string
	Source      MemorySource
	StartLine   int
	EndLine     int
	Text        string
	Hash        string
	UpdatedAtMs int64
}

// MemorySearchResult is one ranked hit returned by the memory store.
type MemorySearchResult struct {
	Path      string
	StartLine int
	EndLine   int
	Score     float64
	Snippet   string
	Source    MemorySource
	Citation  string
}

// MemoryTask is a pending or completed reminder/task record.
type MemoryTask struct {
	ID          string
	Content     string
	Context     string
	Channel     string
	UserID      string
	CreatedAtMs int64
	DueAtMs     int64 // 0 = none
	Completed   bool
	CompletedAt int64
}

// ToolResult is the outcome of executing one tool action: either a
// successful JSON payload or a failure string. Exactly one of Payload/Error
// is meaningful, discriminated by Success.
type ToolResult struct {
	Success bool
	Payload jsonvalue.Value
	Error   string
}

// SuccessResult builds a successful ToolResult carrying payload.
func SuccessResult(payload jsonvalue.Value) ToolResult {
	return ToolResult{Success: true, Payload: payload}
}

// FailureResult builds a failed ToolResult carrying an error message.
func FailureResult(msg string) ToolResult {
	return ToolResult{Success: false, Error: msg}
}

// ToolParam describes one named, typed parameter of an AgentTool.
type ToolParam struct {
	Name        string
	Type        string
	Description string
	Required    bool
}

// AgentTool is the declarative description of a capability advertised to
// the model. ToolID and Action name the registry tool and action the agent
// loop dispatches the call to; the struct carries no behavior itself.
type AgentTool struct {
	Name        string
	Description string
	Params      []ToolParam
	ToolID      string
	Action      string
}

// CompletionUsage reports token accounting for one model call.
type CompletionUsage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// CompletionOptions configures one chat/complete call to an AiProvider.
type CompletionOptions struct {
	System      string
	MaxTokens   int
	Temperature float64
	Model       string
	Stream      bool
	OnChunk     func(chunk string)
}

// CompletionResult is the outcome of one AiProvider chat/complete call.
type CompletionResult struct {
	Success    bool
	Content    string
	StopReason string
	Model      string
	Usage      CompletionUsage
	Error      string
	// ToolCalls carries native structured tool-call objects when the
	// provider's wire format returns them instead of textual markup; the
	// agent loop normalizes these into <tool_call> blocks before parsing.
	ToolCalls []NativeToolCall
}

// NativeToolCall is a provider-native structured tool invocation, prior to
// normalization into the textual <tool_call> markup form.
type NativeToolCall struct {
	ID    string
	Name  string
	Input jsonvalue.Value
}

// RateLimitOutcome is the result of a try_acquire call on any rate-limit
// primitive.
type RateLimitOutcome struct {
	Allowed      bool
	RetryAfterMs int64
	Remaining    float64
	Limit        float64
}
