package config

import "testing"

func TestAccessors(t *testing.T) {
	c := FromBytes([]byte(`{
		"bot": {"app_name": "convoy", "app_version": "1.0"},
		"workspace_dir": "/tmp/ws",
		"memory_chunk_tokens": 400
	}`))

	if got := c.String("bot.app_name", ""); got != "convoy" {
		t.Fatalf("app_name = %q", got)
	}
	if got := c.Int("memory_chunk_tokens", 0); got != 400 {
		t.Fatalf("memory_chunk_tokens = %d", got)
	}
	if got := c.String("workspace_dir", "."); got != "/tmp/ws" {
		t.Fatalf("workspace_dir = %q", got)
	}
	if got := c.String("missing.key", "fallback"); got != "fallback" {
		t.Fatalf("missing key should default, got %q", got)
	}
}

func TestPluginsArrayForm(t *testing.T) {
	c := FromBytes([]byte(`{"plugins": ["telegram", "claude"]}`))
	entries := c.Plugins()
	if len(entries) != 2 || entries[0].Name != "telegram" || !entries[0].Enabled {
		t.Fatalf("entries = %+v", entries)
	}
}

func TestPluginsObjectForm(t *testing.T) {
	c := FromBytes([]byte(`{"plugins": {"telegram": {"enabled": true}, "claude": {"enabled": false}}}`))
	entries := c.Plugins()
	byName := map[string]bool{}
	for _, e := range entries {
		byName[e.Name] = e.Enabled
	}
	if byName["telegram"] != true || byName["claude"] != false {
		t.Fatalf("entries = %+v", entries)
	}
}

func TestSection(t *testing.T) {
	c := FromBytes([]byte(`{"claude": {"api_key": "sk-x", "model": "claude-3"}}`))
	sub := c.Section("claude")
	if got := sub.String("api_key", ""); got != "sk-x" {
		t.Fatalf("api_key = %q", got)
	}
}
