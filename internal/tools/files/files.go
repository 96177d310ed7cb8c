package files

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/convoyrt/convoy/internal/jsonvalue"
	"github.com/convoyrt/convoy/pkg/convoymodel"
)

const (
	actionRead  = "read"
	actionWrite = "write"

	defaultMaxReadBytes = 200_000
)

// Tool is a workspace-scoped read/write plugins.Tool, giving the agent loop
// the "read/write files" capability spec.md §1 lists among its core
// agent-loop capabilities.
type Tool struct {
	resolver     Resolver
	maxReadBytes int
	initialized  bool
}

// New builds a files Tool confined to workspaceRoot.
func New(workspaceRoot string) *Tool {
	return &Tool{resolver: Resolver{Root: workspaceRoot}, maxReadBytes: defaultMaxReadBytes}
}

func (t *Tool) Name() string        { return "files" }
func (t *Tool) Version() string     { return "1.0.0" }
func (t *Tool) Description() string { return "Workspace-scoped file read/write tool" }
func (t *Tool) ToolID() string      { return "files" }

func (t *Tool) Init(config jsonvalue.Value) error {
	if v := config.Get("files").Get("max_read_bytes").AsInt(0); v > 0 {
		t.maxReadBytes = int(v)
	}
	t.initialized = true
	return nil
}

func (t *Tool) Shutdown() error {
	t.initialized = false
	return nil
}

func (t *Tool) IsInitialized() bool { return t.initialized }

func (t *Tool) Actions() []string { return []string{actionRead, actionWrite} }

// GetAgentTools advertises file_read/file_write as model-callable
// capabilities, per spec.md §1's "read/write files" core capability.
func (t *Tool) GetAgentTools() []convoymodel.AgentTool {
	return []convoymodel.AgentTool{
		{
			Name:        "file_read",
			Description: "Read a file from the workspace, optionally with a byte offset and limit.",
			ToolID:      t.ToolID(),
			Action:      actionRead,
			Params: []convoymodel.ToolParam{
				{Name: "path", Type: "string", Description: "Path relative to the workspace", Required: true},
				{Name: "offset", Type: "integer", Description: "Byte offset to start reading from", Required: false},
				{Name: "max_bytes", Type: "integer", Description: "Maximum bytes to read", Required: false},
			},
		},
		{
			Name:        "file_write",
			Description: "Write (or append to) a file in the workspace.",
			ToolID:      t.ToolID(),
			Action:      actionWrite,
			Params: []convoymodel.ToolParam{
				{Name: "path", Type: "string", Description: "Path relative to the workspace", Required: true},
				{Name: "content", Type: "string", Description: "Content to write", Required: true},
				{Name: "append", Type: "boolean", Description: "Append instead of overwrite", Required: false},
			},
		},
	}
}

func (t *Tool) Execute(ctx context.Context, action string, params jsonvalue.Value) convoymodel.ToolResult {
	switch action {
	case actionRead:
		return t.read(params)
	case actionWrite:
		return t.write(params)
	default:
		return convoymodel.FailureResult("files: unknown action " + action)
	}
}

func (t *Tool) read(params jsonvalue.Value) convoymodel.ToolResult {
	path := strings.TrimSpace(params.Get("path").AsString(""))
	if path == "" {
		return convoymodel.FailureResult("path is required")
	}
	offset := params.Get("offset").AsInt(0)
	if offset < 0 {
		return convoymodel.FailureResult("offset must be >= 0")
	}

	resolved, err := t.resolver.Resolve(path)
	if err != nil {
		return convoymodel.FailureResult(err.Error())
	}

	file, err := os.Open(resolved)
	if err != nil {
		return convoymodel.FailureResult("open file: " + err.Error())
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return convoymodel.FailureResult("stat file: " + err.Error())
	}
	if offset > 0 {
		if _, err := file.Seek(offset, io.SeekStart); err != nil {
			return convoymodel.FailureResult("seek file: " + err.Error())
		}
	}

	limit := t.maxReadBytes
	if mb := int(params.Get("max_bytes").AsInt(0)); mb > 0 && mb < limit {
		limit = mb
	}
	remaining := int64(limit)
	if size := info.Size(); size > 0 {
		remaining = size - offset
		if remaining < 0 {
			remaining = 0
		}
		if remaining > int64(limit) {
			remaining = int64(limit)
		}
	}

	buf, err := io.ReadAll(io.LimitReader(file, remaining))
	if err != nil {
		return convoymodel.FailureResult("read file: " + err.Error())
	}
	truncated := info.Size() > 0 && offset+int64(len(buf)) < info.Size()

	out, _ := jsonvalue.Value{}.Set("path", path)
	out, _ = out.Set("content", string(buf))
	out, _ = out.Set("bytes", len(buf))
	out, _ = out.Set("truncated", truncated)
	return convoymodel.SuccessResult(out)
}

func (t *Tool) write(params jsonvalue.Value) convoymodel.ToolResult {
	path := strings.TrimSpace(params.Get("path").AsString(""))
	if path == "" {
		return convoymodel.FailureResult("path is required")
	}
	content := params.Get("content").AsString("")
	append_ := params.Get("append").AsBool(false)

	resolved, err := t.resolver.Resolve(path)
	if err != nil {
		return convoymodel.FailureResult(err.Error())
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return convoymodel.FailureResult("create directory: " + err.Error())
	}

	flags := os.O_CREATE | os.O_WRONLY
	if append_ {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	file, err := os.OpenFile(resolved, flags, 0o644)
	if err != nil {
		return convoymodel.FailureResult("open file: " + err.Error())
	}
	defer file.Close()

	n, err := file.WriteString(content)
	if err != nil {
		return convoymodel.FailureResult("write file: " + err.Error())
	}

	out, _ := jsonvalue.Value{}.Set("path", path)
	out, _ = out.Set("bytes_written", n)
	out, _ = out.Set("append", append_)
	return convoymodel.SuccessResult(out)
}
