// Package sessions builds canonical session keys from (agent, channel,
// account, peer, scope) and stores per-key conversation history.
package sessions

import (
	"fmt"
	"strings"
)

// Scope selects how peer identity maps to a session key. For direct
// messages MAIN collapses every peer into one session; group and channel
// messages always get a per-peer key, and the scope decides whether that
// key drops the channel segment (PER_PEER) or adds the account segment
// (PER_ACCOUNT_PEER).
type Scope string

const (
	ScopeMain            Scope = "main"
	ScopePerPeer         Scope = "per_peer"
	ScopePerChannelPeer  Scope = "per_channel_peer"
	ScopePerAccountPeer  Scope = "per_account_peer"
)

// Components describes everything a BuildKey call needs to know about one
// inbound message's origin.
type Components struct {
	AgentID  string
	Channel  string
	Account  string
	PeerID   string
	IsGroup  bool
	IsChannel bool
	Scope    Scope
}

func sanitizeAgentID(agentID string) string {
	trimmed := strings.ToLower(strings.TrimSpace(agentID))
	var b strings.Builder
	for _, r := range trimmed {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			b.WriteRune(r)
		}
	}
	out := b.String()
	if out == "" {
		return "default"
	}
	return out
}

func lower(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// BuildKey composes the canonical session key `agent:<agent>:<rest>` per
// the DMScope table in spec.md §4.3.
func BuildKey(c Components) string {
	agent := sanitizeAgentID(c.AgentID)
	channel := lower(c.Channel)
	account := lower(c.Account)
	peer := lower(c.PeerID)

	if peer == "" {
		return fmt.Sprintf("agent:%s:main", agent)
	}

	if c.IsGroup {
		return groupOrChannelKey(agent, channel, account, peer, c.Scope, "group")
	}
	if c.IsChannel {
		return groupOrChannelKey(agent, channel, account, peer, c.Scope, "channel")
	}

	// Direct message: the scope decides.
	switch c.Scope {
	case ScopeMain:
		return fmt.Sprintf("agent:%s:main", agent)
	case ScopePerPeer:
		return fmt.Sprintf("agent:%s:dm:%s", agent, peer)
	case ScopePerChannelPeer:
		return fmt.Sprintf("agent:%s:%s:dm:%s", agent, channel, peer)
	case ScopePerAccountPeer:
		return fmt.Sprintf("agent:%s:%s:%s:dm:%s", agent, account, channel, peer)
	default:
		return fmt.Sprintf("agent:%s:main", agent)
	}
}

func groupOrChannelKey(agent, channel, account, peer string, scope Scope, kind string) string {
	switch scope {
	case ScopePerPeer:
		return fmt.Sprintf("agent:%s:%s:%s", agent, kind, peer)
	case ScopeMain, ScopePerChannelPeer:
		return fmt.Sprintf("agent:%s:%s:%s:%s", agent, channel, kind, peer)
	case ScopePerAccountPeer:
		return fmt.Sprintf("agent:%s:%s:%s:%s:%s", agent, account, channel, kind, peer)
	default:
		return fmt.Sprintf("agent:%s:%s:%s:%s", agent, channel, kind, peer)
	}
}

// Parse splits a canonical session key into (agentID, rest). It accepts
// only the canonical `agent:<id>:<rest>` form.
func Parse(key string) (agentID, rest string, err error) {
	if !strings.HasPrefix(key, "agent:") {
		return "", "", fmt.Errorf("session key %q: missing agent: prefix", key)
	}
	trimmed := strings.TrimPrefix(key, "agent:")
	idx := strings.Index(trimmed, ":")
	if idx < 0 {
		return "", "", fmt.Errorf("session key %q: missing rest after agent id", key)
	}
	return trimmed[:idx], trimmed[idx+1:], nil
}
