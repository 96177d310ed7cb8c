// Package memory adapts internal/memory.Manager into a plugins.Tool,
// giving the agent loop and slash-command skills a way to read/write
// persistent memory and manage reminder tasks. Grounded on
// original_source/include/openclaw/core/memory_tool.hpp's action set
// (memory_save, memory_search, task_create, task_complete, task_list).
package memory

import (
	"context"
	"strings"

	"github.com/convoyrt/convoy/internal/jsonvalue"
	"github.com/convoyrt/convoy/internal/memory"
	"github.com/convoyrt/convoy/pkg/convoymodel"
)

const (
	actionSave         = "save"
	actionSearch       = "search"
	actionTaskCreate   = "task_create"
	actionTaskComplete = "task_complete"
	actionTaskList     = "task_list"

	defaultSearchLimit = 10
)

// NowFunc returns the current time in epoch milliseconds; swapped out in
// tests so results are deterministic.
type NowFunc func() int64

// Tool wraps a *memory.Manager as a plugins.Tool.
type Tool struct {
	mgr         *memory.Manager
	now         NowFunc
	initialized bool
}

// New builds a memory Tool backed by mgr. now defaults to time.Now if nil.
func New(mgr *memory.Manager, now NowFunc) *Tool {
	return &Tool{mgr: mgr, now: now}
}

func (t *Tool) Name() string        { return "memory" }
func (t *Tool) Version() string     { return "1.0.0" }
func (t *Tool) Description() string { return "Persistent memory and reminder-task tool" }
func (t *Tool) ToolID() string      { return "memory" }

func (t *Tool) Init(config jsonvalue.Value) error {
	t.initialized = true
	return nil
}

func (t *Tool) Shutdown() error {
	t.initialized = false
	return nil
}

func (t *Tool) IsInitialized() bool { return t.initialized }

func (t *Tool) Actions() []string {
	return []string{actionSave, actionSearch, actionTaskCreate, actionTaskComplete, actionTaskList}
}

// GetAgentTools advertises memory_save/memory_search/task_create/
// task_complete as model-callable capabilities, per spec.md §1's listed
// core agent-loop capability "query persistent memory, or create tasks".
func (t *Tool) GetAgentTools() []convoymodel.AgentTool {
	return []convoymodel.AgentTool{
		{
			Name:        "memory_save",
			Description: "Save a note to persistent memory, appended to today's daily memory file.",
			ToolID:      t.ToolID(),
			Action:      actionSave,
			Params: []convoymodel.ToolParam{
				{Name: "content", Type: "string", Description: "Text to remember", Required: true},
			},
		},
		{
			Name:        "memory_search",
			Description: "Search persistent memory for relevant snippets.",
			ToolID:      t.ToolID(),
			Action:      actionSearch,
			Params: []convoymodel.ToolParam{
				{Name: "query", Type: "string", Description: "Search query", Required: true},
				{Name: "limit", Type: "integer", Description: "Max results", Required: false},
			},
		},
		{
			Name:        "task_create",
			Description: "Create a reminder task, optionally due at a given time.",
			ToolID:      t.ToolID(),
			Action:      actionTaskCreate,
			Params: []convoymodel.ToolParam{
				{Name: "content", Type: "string", Description: "Task description", Required: true},
				{Name: "due_at_ms", Type: "integer", Description: "Due time, epoch ms (0 = none)", Required: false},
			},
		},
		{
			Name:        "task_complete",
			Description: "Mark a reminder task as completed.",
			ToolID:      t.ToolID(),
			Action:      actionTaskComplete,
			Params: []convoymodel.ToolParam{
				{Name: "id", Type: "string", Description: "Task id", Required: true},
			},
		},
	}
}

func (t *Tool) Execute(ctx context.Context, action string, params jsonvalue.Value) convoymodel.ToolResult {
	switch action {
	case actionSave:
		return t.save(ctx, params)
	case actionSearch:
		return t.search(ctx, params)
	case actionTaskCreate:
		return t.taskCreate(ctx, params)
	case actionTaskComplete:
		return t.taskComplete(ctx, params)
	case actionTaskList:
		return t.taskList(ctx, params)
	default:
		return convoymodel.FailureResult("memory: unknown action " + action)
	}
}

func (t *Tool) nowMs() int64 {
	if t.now != nil {
		return t.now()
	}
	return nowMsDefault()
}

func (t *Tool) save(ctx context.Context, params jsonvalue.Value) convoymodel.ToolResult {
	content := strings.TrimSpace(params.Get("content").AsString(""))
	if content == "" {
		return convoymodel.FailureResult("content is required")
	}
	if err := t.mgr.SaveDailyMemory(ctx, content, timeFromMs(t.nowMs()), t.nowMs()); err != nil {
		return convoymodel.FailureResult(err.Error())
	}
	return convoymodel.SuccessResult(jsonvalue.Parse(`{"status":"saved"}`))
}

func (t *Tool) search(ctx context.Context, params jsonvalue.Value) convoymodel.ToolResult {
	query := strings.TrimSpace(params.Get("query").AsString(""))
	if query == "" {
		return convoymodel.FailureResult("query is required")
	}
	limit := int(params.Get("limit").AsInt(defaultSearchLimit))
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	results, err := t.mgr.Search(ctx, query, limit, convoymodel.ChatDirect)
	if err != nil {
		return convoymodel.FailureResult(err.Error())
	}
	var b strings.Builder
	b.WriteString("[")
	for i, r := range results {
		if i > 0 {
			b.WriteString(",")
		}
		snippet, _ := jsonvalue.Value{}.Set("snippet", r.Snippet)
		snippet, _ = snippet.Set("citation", r.Citation)
		b.WriteString(snippet.Raw())
	}
	b.WriteString("]")
	return convoymodel.SuccessResult(jsonvalue.Parse(b.String()))
}

func (t *Tool) taskCreate(ctx context.Context, params jsonvalue.Value) convoymodel.ToolResult {
	content := strings.TrimSpace(params.Get("content").AsString(""))
	if content == "" {
		return convoymodel.FailureResult("content is required")
	}
	dueAtMs := params.Get("due_at_ms").AsInt(0)
	channel := params.Get("channel").AsString("")
	userID := params.Get("user_id").AsString("")
	task, err := t.mgr.CreateTask(ctx, content, "", channel, userID, dueAtMs, t.nowMs())
	if err != nil {
		return convoymodel.FailureResult(err.Error())
	}
	out, _ := jsonvalue.Value{}.Set("id", task.ID)
	return convoymodel.SuccessResult(out)
}

func (t *Tool) taskComplete(ctx context.Context, params jsonvalue.Value) convoymodel.ToolResult {
	id := strings.TrimSpace(params.Get("id").AsString(""))
	if id == "" {
		return convoymodel.FailureResult("id is required")
	}
	if err := t.mgr.CompleteTask(ctx, id, t.nowMs()); err != nil {
		return convoymodel.FailureResult(err.Error())
	}
	return convoymodel.SuccessResult(jsonvalue.Parse(`{"status":"completed"}`))
}

func (t *Tool) taskList(ctx context.Context, params jsonvalue.Value) convoymodel.ToolResult {
	includeCompleted := params.Get("include_completed").AsBool(false)
	tasks, err := t.mgr.ListTasks(ctx, includeCompleted)
	if err != nil {
		return convoymodel.FailureResult(err.Error())
	}
	var b strings.Builder
	b.WriteString("[")
	for i, task := range tasks {
		if i > 0 {
			b.WriteString(",")
		}
		item, _ := jsonvalue.Value{}.Set("id", task.ID)
		item, _ = item.Set("content", task.Content)
		item, _ = item.Set("completed", task.Completed)
		b.WriteString(item.Raw())
	}
	b.WriteString("]")
	return convoymodel.SuccessResult(jsonvalue.Parse(b.String()))
}
