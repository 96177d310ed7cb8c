// Package agent implements the agentic tool-execution loop: it feeds a
// conversation to an AiProvider, parses the response for textual tool-call
// markup, executes matched tools through a registry, re-injects the
// results, and iterates to a stopping condition with bounded steps.
package agent

import (
	"context"
	"time"

	"github.com/convoyrt/convoy/internal/jsonvalue"
	"github.com/convoyrt/convoy/pkg/convoymodel"
)

// DefaultMaxSteps is the default bound on the number of model-call/
// tool-execution rounds a single Run performs.
const DefaultMaxSteps = 8

// DefaultStepTimeout bounds how long the model call of a single step may
// take before the loop terminates early. The step's tool executions run
// under the caller's context and are not bounded by it.
const DefaultStepTimeout = 60 * time.Second

// StopReason records why a Run terminated.
type StopReason string

const (
	StopNoToolCalls    StopReason = "no_tool_calls"
	StopMaxSteps       StopReason = "max_steps"
	StopTerminalModel  StopReason = "terminal_stop_reason"
	StopStepTimeout    StopReason = "step_timeout"
	StopModelFailure   StopReason = "model_failure"
)

// Provider is the narrow surface the loop needs from an AiProvider plugin.
type Provider interface {
	Chat(ctx context.Context, messages []convoymodel.ConversationMessage, opts convoymodel.CompletionOptions) convoymodel.CompletionResult
}

// ToolExecutor is the narrow surface the loop needs from the registry to
// dispatch a parsed tool call.
type ToolExecutor interface {
	ExecuteTool(ctx context.Context, toolID, action string, params jsonvalue.Value) convoymodel.ToolResult
}

// ToolCatalog is the narrow surface the loop needs to assemble the tool
// advertisement section of the system prompt.
type ToolCatalog interface {
	AllAgentTools() []convoymodel.AgentTool
}

// Monitor is the narrow surface the loop needs from the process monitor to
// mark an AI session active/heartbeating across steps. A nil Monitor
// disables heartbeat integration.
type Monitor interface {
	RegisterTarget(targetID string, intervalSeconds int)
	MarkSent(targetID string)
	MarkReceived(targetID string)
	UnregisterTarget(targetID string)
}

// LoopConfig parameterizes a Run.
type LoopConfig struct {
	MaxSteps           int
	StepTimeout        time.Duration
	HeartbeatIntervalS int
}

// DefaultLoopConfig returns the spec-mandated defaults (step budget 8, no
// fixed per-step timeout override beyond DefaultStepTimeout).
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{MaxSteps: DefaultMaxSteps, StepTimeout: DefaultStepTimeout, HeartbeatIntervalS: 5}
}

func (c LoopConfig) sanitized() LoopConfig {
	if c.StepTimeout <= 0 {
		c.StepTimeout = DefaultStepTimeout
	}
	if c.HeartbeatIntervalS <= 0 {
		c.HeartbeatIntervalS = 5
	}
	// MaxSteps == 0 is valid (boundary behavior: exactly one model call).
	// Negative values are not meaningful; clamp to 0.
	if c.MaxSteps < 0 {
		c.MaxSteps = 0
	}
	return c
}

// Loop drives the bounded model-call/tool-execution iteration described in
// spec.md §4.4.
type Loop struct {
	provider Provider
	tools    ToolExecutor
	catalog  ToolCatalog
	monitor  Monitor
	config   LoopConfig
}

// New builds a Loop. monitor may be nil to disable heartbeat integration.
func New(provider Provider, tools ToolExecutor, catalog ToolCatalog, monitor Monitor, config LoopConfig) *Loop {
	return &Loop{
		provider: provider,
		tools:    tools,
		catalog:  catalog,
		monitor:  monitor,
		config:   config.sanitized(),
	}
}

// RunResult is the outcome of a full Run: the final reply text (tool-call
// markup stripped) and a record of every tool call executed across all
// steps.
type RunResult struct {
	FinalText  string
	ToolCalls  []ExecutedCall
	StopReason StopReason
	Steps      int
}

// ExecutedCall records one tool invocation made during a Run.
type ExecutedCall struct {
	Name   string
	Params string
	Result convoymodel.ToolResult
}

// Run executes the loop for one user turn: history is the prior session
// history, userText is the newly-arrived message, systemPromptBase is the
// user-configured base prompt (the tool catalog is appended to it
// automatically), sessionID is used as the heartbeat target id.
func (l *Loop) Run(ctx context.Context, sessionID string, history []convoymodel.ConversationMessage, userText, systemPromptBase string) RunResult {
	systemPrompt := systemPromptBase
	if l.catalog != nil {
		systemPrompt = appendCatalog(systemPromptBase, l.catalog.AllAgentTools())
	}

	if l.monitor != nil {
		l.monitor.RegisterTarget(sessionID, l.config.HeartbeatIntervalS)
		defer l.monitor.UnregisterTarget(sessionID)
	}

	messages := append([]convoymodel.ConversationMessage{}, history...)
	messages = append(messages, convoymodel.ConversationMessage{Role: convoymodel.RoleUser, Text: userText})

	result := RunResult{}
	for step := 0; ; step++ {
		if l.config.MaxSteps > 0 && step >= l.config.MaxSteps {
			result.StopReason = StopMaxSteps
			break
		}
		if l.config.MaxSteps == 0 && step >= 1 {
			result.StopReason = StopMaxSteps
			break
		}

		stepCtx, cancel := context.WithTimeout(ctx, l.config.StepTimeout)
		completion := l.provider.Chat(stepCtx, messages, convoymodel.CompletionOptions{System: systemPrompt})
		stepErr := stepCtx.Err()
		cancel()

		result.Steps = step + 1

		if stepErr != nil {
			result.StopReason = StopStepTimeout
			break
		}
		if !completion.Success {
			result.FinalText = "[AI error] " + completion.Error
			result.StopReason = StopModelFailure
			break
		}

		if l.monitor != nil {
			l.monitor.MarkReceived(sessionID)
		}

		rawText := normalizeNativeToolCalls(completion.Content, completion.ToolCalls)
		calls := extractToolCalls(rawText)

		if len(calls) == 0 {
			result.FinalText = stripToolCallMarkup(rawText)
			result.StopReason = StopNoToolCalls
			break
		}

		if completion.StopReason != "" && isTerminalStopReason(completion.StopReason) {
			result.FinalText = stripToolCallMarkup(rawText)
			result.StopReason = StopTerminalModel
			break
		}

		// If this is the last allowed step, executing tools would just be
		// discarded on the next bound check; stop here with the step's
		// stripped text instead of looping once more only to immediately
		// hit MaxSteps.
		atBudget := l.config.MaxSteps == 0 || step+1 >= l.config.MaxSteps
		if atBudget {
			result.FinalText = stripToolCallMarkup(rawText)
			result.StopReason = StopMaxSteps
			break
		}

		var resultBlocks string
		for _, call := range calls {
			toolRes := l.execute(ctx, call)
			result.ToolCalls = append(result.ToolCalls, ExecutedCall{Name: call.Name, Params: call.RawParams, Result: toolRes})
			resultBlocks += formatToolResult(call.Name, toolRes)
		}

		messages = append(messages, convoymodel.ConversationMessage{Role: convoymodel.RoleAssistant, Text: rawText})
		messages = append(messages, convoymodel.ConversationMessage{Role: convoymodel.RoleUser, Text: resultBlocks})
	}

	return result
}

func isTerminalStopReason(reason string) bool {
	switch reason {
	case "end_turn", "stop", "stop_sequence":
		return true
	default:
		return false
	}
}

// execute resolves a parsed <tool_call> name to a (toolID, action) pair and
// dispatches it through the registry. Per spec.md §4.4 step 4, resolution
// tries the agent's declared AgentTool catalog first (an exact name match
// dispatches via that tool's own ToolID/Action) and only falls back to
// splitting the name on its last underscore when no declared tool claims it.
func (l *Loop) execute(ctx context.Context, call parsedToolCall) convoymodel.ToolResult {
	if call.ParseError != "" {
		return convoymodel.FailureResult(call.ParseError)
	}

	toolID, action := l.resolveToolCall(call.Name)
	if toolID == "" {
		return convoymodel.FailureResult("malformed tool name: " + call.Name)
	}
	return l.tools.ExecuteTool(ctx, toolID, action, jsonvalue.Parse(call.RawParams))
}

func (l *Loop) resolveToolCall(name string) (toolID, action string) {
	if l.catalog != nil {
		for _, at := range l.catalog.AllAgentTools() {
			if at.Name == name {
				return at.ToolID, at.Action
			}
		}
	}
	return splitToolAndAction(name)
}

func splitToolAndAction(name string) (toolID, action string) {
	idx := lastIndexByte(name, '_')
	if idx < 0 {
		return name, "default"
	}
	return name[:idx], name[idx+1:]
}

func lastIndexByte(s string, b byte) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == b {
			return i
		}
	}
	return -1
}
