// Package registry is the process-wide (but explicitly-owned, not global)
// multi-index of plugins: an append-only ordered list plus name/channel/
// tool/provider indices, a command table, and broadcast/dispatch helpers.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/convoyrt/convoy/internal/jsonvalue"
	"github.com/convoyrt/convoy/internal/plugins"
	"github.com/convoyrt/convoy/pkg/convoymodel"
)

// CommandHandler executes a `/command` dispatched against a session.
// Returning "" signals "fall through to the agent loop".
type CommandHandler func(ctx context.Context, msg *convoymodel.Message, args string) (string, error)

type command struct {
	description string
	handler     CommandHandler
}

// Registry holds every registered plugin plus the indices needed to
// dispatch by kind and by id. Registration is additive and append-only;
// duplicate plugin names are rejected with a logged warning rather than a
// hard failure, matching spec.md §4.1.
type Registry struct {
	mu sync.RWMutex

	logger *slog.Logger

	ordered []plugins.Plugin
	byName  map[string]plugins.Plugin

	channels  map[string]plugins.Channel
	tools     map[string]plugins.Tool
	providers map[string]plugins.AiProvider

	providerOrder []string // registration order, for get_default_ai

	commands map[string]command
}

// New builds an empty Registry.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger:    logger,
		byName:    make(map[string]plugins.Plugin),
		channels:  make(map[string]plugins.Channel),
		tools:     make(map[string]plugins.Tool),
		providers: make(map[string]plugins.AiProvider),
		commands:  make(map[string]command),
	}
}

// RegisterPlugin appends p to the registry and adds it to the name index
// plus whichever capability index(es) it satisfies. A duplicate name is
// logged at warn and otherwise ignored.
func (r *Registry) RegisterPlugin(p plugins.Plugin) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := p.Name()
	if _, exists := r.byName[name]; exists {
		r.logger.Warn("duplicate plugin name rejected", "name", name)
		return
	}

	r.ordered = append(r.ordered, p)
	r.byName[name] = p

	if ch, ok := p.(plugins.Channel); ok {
		r.channels[ch.ChannelID()] = ch
	}
	if tool, ok := p.(plugins.Tool); ok {
		r.tools[tool.ToolID()] = tool
	}
	if ai, ok := p.(plugins.AiProvider); ok {
		r.providers[ai.ProviderID()] = ai
		r.providerOrder = append(r.providerOrder, ai.ProviderID())
	}
}

// RegisterCommand adds name → handler to the command table, ignoring
// entries with an empty name or nil handler.
func (r *Registry) RegisterCommand(name, description string, handler CommandHandler) {
	if name == "" || handler == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[name] = command{description: description, handler: handler}
}

// InitAll calls Init(config) on every registered plugin, continuing even
// after a failure, and returns the aggregated error (nil iff every plugin
// initialized successfully).
func (r *Registry) InitAll(config jsonvalue.Value) error {
	r.mu.RLock()
	ordered := make([]plugins.Plugin, len(r.ordered))
	copy(ordered, r.ordered)
	r.mu.RUnlock()

	var firstErr error
	for _, p := range ordered {
		if err := p.Init(config); err != nil {
			r.logger.Error("plugin init failed", "plugin", p.Name(), "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("plugin %s init: %w", p.Name(), err)
			}
			continue
		}
	}
	return firstErr
}

// ShutdownAll shuts down every plugin in reverse registration order (LIFO).
func (r *Registry) ShutdownAll() error {
	r.mu.RLock()
	ordered := make([]plugins.Plugin, len(r.ordered))
	copy(ordered, r.ordered)
	r.mu.RUnlock()

	var firstErr error
	for i := len(ordered) - 1; i >= 0; i-- {
		if err := ordered[i].Shutdown(); err != nil {
			r.logger.Error("plugin shutdown failed", "plugin", ordered[i].Name(), "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// StartAllChannels starts every registered Channel plugin.
func (r *Registry) StartAllChannels(ctx context.Context) error {
	for _, ch := range r.channelsSnapshot() {
		if err := ch.Start(ctx); err != nil {
			r.logger.Error("channel start failed", "channel", ch.ChannelID(), "error", err)
		}
	}
	return nil
}

// StopAllChannels stops every registered Channel plugin.
func (r *Registry) StopAllChannels(ctx context.Context) error {
	for _, ch := range r.channelsSnapshot() {
		if err := ch.Stop(ctx); err != nil {
			r.logger.Error("channel stop failed", "channel", ch.ChannelID(), "error", err)
		}
	}
	return nil
}

// PollAllChannels calls Poll on every registered Channel plugin.
func (r *Registry) PollAllChannels(ctx context.Context) {
	for _, ch := range r.channelsSnapshot() {
		if err := ch.Poll(ctx); err != nil {
			r.logger.Warn("channel poll failed", "channel", ch.ChannelID(), "error", err)
		}
	}
}

// PollAll calls Poll on every plugin (of any kind) that implements Poller.
func (r *Registry) PollAll(ctx context.Context) {
	r.mu.RLock()
	ordered := make([]plugins.Plugin, len(r.ordered))
	copy(ordered, r.ordered)
	r.mu.RUnlock()

	for _, p := range ordered {
		if poller, ok := p.(plugins.Poller); ok {
			if err := poller.Poll(ctx); err != nil {
				r.logger.Warn("plugin poll failed", "plugin", p.Name(), "error", err)
			}
		}
	}
}

func (r *Registry) channelsSnapshot() []plugins.Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]plugins.Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		out = append(out, ch)
	}
	return out
}

// ExecuteTool runs action on toolID, returning a failed ToolResult if the
// tool is unknown or does not support the action.
func (r *Registry) ExecuteTool(ctx context.Context, toolID, action string, params jsonvalue.Value) convoymodel.ToolResult {
	r.mu.RLock()
	tool, ok := r.tools[toolID]
	r.mu.RUnlock()

	if !ok {
		return convoymodel.FailureResult(fmt.Sprintf("Tool not found: %s", toolID))
	}
	supported := false
	for _, a := range tool.Actions() {
		if a == action {
			supported = true
			break
		}
	}
	if !supported {
		return convoymodel.FailureResult(fmt.Sprintf("Tool %s does not support action %s", toolID, action))
	}
	return tool.Execute(ctx, action, params)
}

// ExecuteCommand looks up name in the command table and invokes its
// handler, returning its reply and error with found=true; an unknown
// command returns ("", false, nil) so callers can distinguish "fell
// through" from "handler returned empty".
func (r *Registry) ExecuteCommand(ctx context.Context, name string, msg *convoymodel.Message, args string) (string, bool, error) {
	r.mu.RLock()
	cmd, ok := r.commands[name]
	r.mu.RUnlock()
	if !ok {
		return "", false, nil
	}
	out, err := cmd.handler(ctx, msg, args)
	return out, true, err
}

// GetDefaultAI returns the first registered AiProvider (in registration
// order) that is both initialized and configured, or nil if none qualify.
func (r *Registry) GetDefaultAI() plugins.AiProvider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range r.providerOrder {
		p := r.providers[id]
		if p.IsInitialized() && p.IsConfigured() {
			return p
		}
	}
	return nil
}

// GetChannel returns the channel plugin registered under channelID, if any.
func (r *Registry) GetChannel(channelID string) (plugins.Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[channelID]
	return ch, ok
}

// GetTool returns the tool plugin registered under toolID, if any.
func (r *Registry) GetTool(toolID string) (plugins.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[toolID]
	return t, ok
}

// AllAgentTools collects the AgentTool catalog across every registered
// Tool plugin, for the agent loop's tool-advertisement step.
func (r *Registry) AllAgentTools() []convoymodel.AgentTool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []convoymodel.AgentTool
	for _, t := range r.tools {
		out = append(out, t.GetAgentTools()...)
	}
	return out
}

// PluginCount returns the number of plugins registered under name (0 or 1,
// per the "duplicate names rejected" rule — this backs invariant 6).
func (r *Registry) PluginCount(name string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.byName[name]; ok {
		return 1
	}
	return 0
}
