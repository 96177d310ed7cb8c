// Package handler implements convoy's per-message dispatch pipeline:
// debounce, session lookup, command/skill/agent classification, and
// sending the resulting reply back through the originating channel.
package handler

import (
	"context"
	"strings"

	"github.com/convoyrt/convoy/internal/agent"
	"github.com/convoyrt/convoy/internal/debounce"
	"github.com/convoyrt/convoy/internal/jsonvalue"
	"github.com/convoyrt/convoy/internal/plugins"
	"github.com/convoyrt/convoy/internal/sessions"
	"github.com/convoyrt/convoy/pkg/convoymodel"
)

// CommandDispatcher is the narrow surface the handler needs from the
// registry's command table.
type CommandDispatcher interface {
	ExecuteCommand(ctx context.Context, name string, msg *convoymodel.Message, args string) (string, bool, error)
}

// ChannelLookup is the narrow surface the handler needs to send a reply
// back through the channel a message arrived on.
type ChannelLookup interface {
	GetChannel(channelID string) (plugins.Channel, bool)
}

// SkillSpec describes one registered skill-command: invoking it dispatches
// directly to a tool action rather than through the general agent loop.
// Per spec.md §4.8, only tool-kind skill dispatch is in scope for the core
// handler.
type SkillSpec struct {
	Name   string
	ToolID string
	Action string
}

// ToolInvoker is the narrow surface the handler needs to run a skill's
// backing tool action directly (bypassing the model).
type ToolInvoker interface {
	ExecuteTool(ctx context.Context, toolID, action string, params jsonvalue.Value) convoymodel.ToolResult
}

// AgentRunner is the narrow surface the handler needs to invoke the
// agentic loop for free-form text.
type AgentRunner interface {
	Run(ctx context.Context, sessionID string, history []convoymodel.ConversationMessage, userText, systemPromptBase string) agent.RunResult
}

// Config bundles the handler's dependencies and tunables.
type Config struct {
	Sessions       *sessions.Store
	Debouncer      *debounce.Debouncer
	Commands       CommandDispatcher
	Skills         []SkillSpec
	Tools          ToolInvoker
	Agent          AgentRunner
	Channels       ChannelLookup
	SystemPrompt   string // user-configured base prompt, before skills/tools are appended
	DefaultAgentID string
}

// Handler is the per-message dispatch pipeline described in spec.md §4.8.
type Handler struct {
	cfg    Config
	skills map[string]SkillSpec
}

// New builds a Handler from cfg.
func New(cfg Config) *Handler {
	skills := make(map[string]SkillSpec, len(cfg.Skills))
	for _, s := range cfg.Skills {
		skills[s.Name] = s
	}
	return &Handler{cfg: cfg, skills: skills}
}

// Handle processes one inbound message: debounce, session lookup,
// command/skill/agent classification, reply. Returns false if the message
// was dropped as a duplicate by the debouncer.
func (h *Handler) Handle(ctx context.Context, msg *convoymodel.Message) bool {
	if h.cfg.Debouncer != nil && !h.cfg.Debouncer.ShouldProcess(msg.ID) {
		return false
	}

	agentID := h.cfg.DefaultAgentID
	components := sessions.Components{
		AgentID:   agentID,
		Channel:   msg.Channel,
		PeerID:    msg.FromID,
		IsGroup:   msg.ChatType == convoymodel.ChatGroup,
		IsChannel: msg.ChatType == convoymodel.ChatChannel,
	}
	key := sessions.BuildKey(components)
	session := h.cfg.Sessions.GetOrCreate(key, components)

	reply, handled := h.classify(ctx, session, msg)
	if !handled {
		return true
	}
	h.send(ctx, msg, reply)
	return true
}

func (h *Handler) classify(ctx context.Context, session *sessions.Session, msg *convoymodel.Message) (string, bool) {
	text := strings.TrimSpace(msg.Text)

	if strings.HasPrefix(text, "/") {
		name, args := splitCommand(text)

		if h.cfg.Commands != nil {
			out, found, err := h.cfg.Commands.ExecuteCommand(ctx, name, msg, args)
			if found {
				if err != nil {
					return "Command failed: " + err.Error(), true
				}
				if strings.TrimSpace(out) != "" {
					return out, true
				}
				return h.runAgent(ctx, session, msg)
			}
		}

		if reply, ok := h.trySkill(ctx, name, args); ok {
			return reply, true
		}
	}

	return h.runAgent(ctx, session, msg)
}

// splitCommand splits "/name rest of args" into ("name", "rest of args"),
// stripping the leading slash. It also recognizes the "/skill <name> ..."
// prefixed form by returning "<name>" as the command when the first token
// is literally "skill".
func splitCommand(text string) (name, args string) {
	trimmed := strings.TrimPrefix(text, "/")
	parts := strings.SplitN(trimmed, " ", 2)
	name = parts[0]
	if len(parts) > 1 {
		args = strings.TrimSpace(parts[1])
	}
	if name == "skill" && args != "" {
		sub := strings.SplitN(args, " ", 2)
		name = sub[0]
		args = ""
		if len(sub) > 1 {
			args = strings.TrimSpace(sub[1])
		}
	}
	return name, args
}

func (h *Handler) trySkill(ctx context.Context, name, args string) (string, bool) {
	spec, ok := h.skills[name]
	if !ok || h.cfg.Tools == nil {
		return "", false
	}
	result := h.cfg.Tools.ExecuteTool(ctx, spec.ToolID, spec.Action, jsonvalue.Parse(argsToJSON(args)))
	if !result.Success {
		return "Skill failed: " + result.Error, true
	}
	return result.Payload.String(), true
}

func argsToJSON(args string) string {
	if args == "" {
		return "{}"
	}
	if jsonvalue.Valid(args) {
		return args
	}
	v, _ := jsonvalue.Value{}.Set("text", args)
	return v.String()
}

func (h *Handler) runAgent(ctx context.Context, session *sessions.Session, msg *convoymodel.Message) (string, bool) {
	if h.cfg.Agent == nil {
		return "AI not configured", true
	}

	result := h.cfg.Agent.Run(ctx, session.Key, session.History, msg.Text, h.cfg.SystemPrompt)

	// On a model failure the user turn is rolled back rather than appended,
	// so a retry doesn't accumulate ghost turns in session history.
	if result.StopReason == agent.StopModelFailure {
		return result.FinalText, true
	}

	session.Append(convoymodel.ConversationMessage{Role: convoymodel.RoleUser, Text: msg.Text})
	session.Append(convoymodel.ConversationMessage{Role: convoymodel.RoleAssistant, Text: result.FinalText})

	return result.FinalText, true
}

func (h *Handler) send(ctx context.Context, msg *convoymodel.Message, reply string) {
	if h.cfg.Channels == nil || strings.TrimSpace(reply) == "" {
		return
	}
	ch, ok := h.cfg.Channels.GetChannel(msg.Channel)
	if !ok {
		return
	}
	_ = ch.SendMessage(ctx, msg.FromID, reply, msg.ID)
}
