package app

import (
	"context"

	"github.com/convoyrt/convoy/internal/agent"
	"github.com/convoyrt/convoy/internal/heartbeat"
	"github.com/convoyrt/convoy/internal/registry"
	"github.com/convoyrt/convoy/pkg/convoymodel"
)

// agentRunner adapts the registry (as Provider/ToolExecutor/ToolCatalog)
// and the heartbeat monitor into the handler.AgentRunner surface, selecting
// the default configured AiProvider fresh on every call so a provider
// registered after startup (or one that later loses configuration) is
// picked up without re-wiring.
type agentRunner struct {
	reg     *registry.Registry
	monitor *heartbeat.Monitor
}

func newAgentRunner(reg *registry.Registry, monitor *heartbeat.Monitor) *agentRunner {
	return &agentRunner{reg: reg, monitor: monitor}
}

func (r *agentRunner) Run(ctx context.Context, sessionID string, history []convoymodel.ConversationMessage, userText, systemPromptBase string) agent.RunResult {
	provider := r.reg.GetDefaultAI()
	if provider == nil {
		return agent.RunResult{FinalText: "AI not configured", StopReason: agent.StopModelFailure}
	}
	loop := agent.New(provider, r.reg, r.reg, r.monitor, agent.DefaultLoopConfig())
	return loop.Run(ctx, sessionID, history, userText, systemPromptBase)
}
