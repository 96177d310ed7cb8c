package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convoyrt/convoy/internal/config"
	"github.com/convoyrt/convoy/pkg/convoymodel"
)

func testConfig(t *testing.T, extra map[string]any) *config.Config {
	t.Helper()
	dir := t.TempDir()
	doc := map[string]any{
		"workspace_dir":  dir,
		"memory_db_path": filepath.Join(dir, "memory.db"),
		"bot":            map[string]any{"app_name": "convoy", "app_version": "test"},
	}
	for k, v := range extra {
		doc[k] = v
	}
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	return config.FromBytes(data)
}

func newTestApp(t *testing.T, extra map[string]any) *App {
	t.Helper()
	cfg := testConfig(t, extra)
	a, err := New(cfg, slog.Default())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func baseMsg(text string) *convoymodel.Message {
	return &convoymodel.Message{ID: "m1", Channel: "test", FromID: "u1", Text: text, ChatType: convoymodel.ChatDirect}
}

func TestNewRegistersBuiltinCommands(t *testing.T) {
	a := newTestApp(t, nil)

	out, ok, err := a.Registry().ExecuteCommand(context.Background(), "ping", baseMsg(""), "")
	if err != nil || !ok || out != "pong" {
		t.Fatalf("ping: out=%q ok=%v err=%v", out, ok, err)
	}

	out, ok, err = a.Registry().ExecuteCommand(context.Background(), "info", baseMsg(""), "")
	if err != nil || !ok || out == "" {
		t.Fatalf("info: out=%q ok=%v err=%v", out, ok, err)
	}
}

func TestPollAndVoteCommandsRoundTrip(t *testing.T) {
	a := newTestApp(t, nil)
	ctx := context.Background()

	created, ok, err := a.Registry().ExecuteCommand(ctx, "poll", baseMsg(""), "Best color? | Red | Blue | Green")
	if err != nil || !ok {
		t.Fatalf("poll: out=%q ok=%v err=%v", created, ok, err)
	}
	if a.Polls().PollCount() != 1 {
		t.Fatalf("expected one poll, got %d", a.Polls().PollCount())
	}

	ids := a.Polls().ActivePollIDs()
	if len(ids) != 1 {
		t.Fatalf("expected one active poll id, got %v", ids)
	}
	pollID := ids[0]

	results, ok, err := a.Registry().ExecuteCommand(ctx, "vote", baseMsg(""), fmt.Sprintf("%s 1", pollID))
	if err != nil || !ok {
		t.Fatalf("vote: out=%q ok=%v err=%v", results, ok, err)
	}

	got, err := a.Polls().GetResults(pollID)
	if err != nil {
		t.Fatalf("GetResults: %v", err)
	}
	if got.TotalVotes != 1 || got.VoteCounts[1] != 1 {
		t.Fatalf("unexpected results: %+v", got)
	}
}

func TestPollCommandRejectsTooFewOptions(t *testing.T) {
	a := newTestApp(t, nil)
	_, ok, err := a.Registry().ExecuteCommand(context.Background(), "poll", baseMsg(""), "Only one option | solo")
	if !ok || err == nil {
		t.Fatalf("expected the poll command to run and reject a single-option poll, got ok=%v err=%v", ok, err)
	}
}

func TestVoteCommandRejectsUnknownPoll(t *testing.T) {
	a := newTestApp(t, nil)
	_, ok, err := a.Registry().ExecuteCommand(context.Background(), "vote", baseMsg(""), "nonexistent 0")
	if !ok || err == nil {
		t.Fatalf("expected vote on unknown poll to fail, got ok=%v err=%v", ok, err)
	}
}

func TestMemorySearchCommandReportsNoMatches(t *testing.T) {
	a := newTestApp(t, nil)
	out, ok, err := a.Registry().ExecuteCommand(context.Background(), "memory_search", baseMsg(""), "anything")
	if err != nil || !ok {
		t.Fatalf("memory_search: out=%q ok=%v err=%v", out, ok, err)
	}
	if out != "No matches." {
		t.Fatalf("expected no-matches message, got %q", out)
	}
}

func TestLoadConfiguredPluginsContinuesPastFailures(t *testing.T) {
	a := newTestApp(t, map[string]any{
		"plugins": []string{"does-not-exist-one", "does-not-exist-two"},
	})

	err := a.LoadConfiguredPlugins()
	if err == nil {
		t.Fatalf("expected an aggregated error from unresolvable plugins")
	}
	// Both unresolvable entries should have been attempted rather than
	// bailing out after the first failure.
	if a.loader.Count() != 0 {
		t.Fatalf("expected no plugins to have loaded, got %d", a.loader.Count())
	}
}

func TestLoadConfiguredPluginsSkipsDisabledEntries(t *testing.T) {
	a := newTestApp(t, map[string]any{
		"plugins": map[string]any{
			"does-not-exist": map[string]any{"enabled": false},
		},
	})

	if err := a.LoadConfiguredPlugins(); err != nil {
		t.Fatalf("expected disabled entry to be skipped without error, got %v", err)
	}
}

func TestLoadConfiguredPluginsResolvesBuiltinsInProcess(t *testing.T) {
	a := newTestApp(t, map[string]any{
		"plugins": []string{"anthropic", "wsgateway"},
		"anthropic": map[string]any{
			"api_key": "sk-ant-test",
		},
		"wsgateway": map[string]any{
			"listen_addr": ":0",
		},
	})

	require.NoError(t, a.LoadConfiguredPlugins())
	assert.Zero(t, a.loader.Count(), "builtins should not touch the dynamic loader")
	_, ok := a.registry.GetChannel("wsgateway")
	assert.True(t, ok, "expected the built-in wsgateway channel to be registered")

	require.NoError(t, a.registry.InitAll(a.cfg.Root()))
	provider := a.registry.GetDefaultAI()
	require.NotNil(t, provider)
	assert.Equal(t, "anthropic", provider.ProviderID())
	assert.True(t, provider.IsConfigured(), "expected the built-in anthropic provider to read its own config section")
}

func TestParsePollArgsRequiresQuestionAndTwoOptions(t *testing.T) {
	if _, err := parsePollArgs("only a question"); err == nil {
		t.Fatalf("expected error for missing options")
	}
	input, err := parsePollArgs("Q | a | b")
	if err != nil {
		t.Fatalf("parsePollArgs: %v", err)
	}
	if input.Question != "Q" || len(input.Options) != 2 {
		t.Fatalf("unexpected parse result: %+v", input)
	}
}

func TestParseVoteArgsRequiresTwoFields(t *testing.T) {
	if _, _, err := parseVoteArgs("only-one-field"); err == nil {
		t.Fatalf("expected error for missing option index")
	}
	if _, _, err := parseVoteArgs("poll-id not-a-number"); err == nil {
		t.Fatalf("expected error for non-numeric option index")
	}
	id, idx, err := parseVoteArgs("poll-id 2")
	if err != nil || id != "poll-id" || idx != 2 {
		t.Fatalf("unexpected parse result: id=%q idx=%d err=%v", id, idx, err)
	}
}

func TestNewSchedulesCooperativePollOnDefaultSchedule(t *testing.T) {
	a := newTestApp(t, nil)
	entries := a.cronSched.Entries()
	require.Len(t, entries, 1)
}

func TestNewWithInvalidPollScheduleDisablesCooperativePolling(t *testing.T) {
	a := newTestApp(t, map[string]any{"poll_schedule": "not a cron expression"})
	assert.Empty(t, a.cronSched.Entries())
}

func TestNewWithCustomPollScheduleRegistersIt(t *testing.T) {
	a := newTestApp(t, map[string]any{"poll_schedule": "@every 1m"})
	require.Len(t, a.cronSched.Entries(), 1)
}

func TestShutdownBeforeRunIsSafe(t *testing.T) {
	a := newTestApp(t, nil)
	if err := a.Shutdown(); err != nil {
		t.Fatalf("Shutdown before Run: %v", err)
	}
}
