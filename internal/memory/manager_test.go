package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/convoyrt/convoy/pkg/convoymodel"
)

func newTestManager(t *testing.T) (*Manager, string) {
	t.Helper()
	root := t.TempDir()
	store := newTestStore(t)
	mgr := NewManager(store, ManagerConfig{
		WorkspaceRoot:     root,
		Chunking:          DefaultChunkingConfig(),
		CitationMode:      CitationAuto,
		CitationChatTypes: []convoymodel.ChatType{convoymodel.ChatDirect},
	})
	return mgr, root
}

func TestSyncIndexesMemoryMdAndMemoryDir(t *testing.T) {
	mgr, root := newTestManager(t)
	ctx := context.Background()

	if err := os.WriteFile(filepath.Join(root, "MEMORY.md"), []byte("remember: the sky is blue"), 0o644); err != nil {
		t.Fatalf("write MEMORY.md: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(root, "memory"), 0o755); err != nil {
		t.Fatalf("mkdir memory: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "memory", "notes.md"), []byte("project notes here"), 0o644); err != nil {
		t.Fatalf("write notes.md: %v", err)
	}

	if err := mgr.Sync(ctx, 1000); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	results, err := mgr.Search(ctx, "sky", 10, convoymodel.ChatDirect)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result for 'sky', got %d", len(results))
	}
	if results[0].Citation == "" {
		t.Fatalf("expected citation for DM chat type under AUTO mode")
	}
}

func TestSyncRemovesDeletedFiles(t *testing.T) {
	mgr, root := newTestManager(t)
	ctx := context.Background()

	path := filepath.Join(root, "MEMORY.md")
	if err := os.WriteFile(path, []byte("temporary content"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := mgr.Sync(ctx, 1000); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	if err := os.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := mgr.Sync(ctx, 2000); err != nil {
		t.Fatalf("Sync (after removal): %v", err)
	}

	results, err := mgr.Search(ctx, "temporary", 10, convoymodel.ChatDirect)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results after file removal, got %d", len(results))
	}
}

func TestCitationSuppressedForGroupUnderAutoMode(t *testing.T) {
	mgr, root := newTestManager(t)
	ctx := context.Background()

	if err := os.WriteFile(filepath.Join(root, "MEMORY.md"), []byte("alpha beta gamma"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := mgr.Sync(ctx, 1000); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	results, err := mgr.Search(ctx, "alpha", 10, convoymodel.ChatGroup)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Citation != "" {
		t.Fatalf("expected no citation for group chat under AUTO mode, got %q", results[0].Citation)
	}
}

func TestSaveMemoryOverwritesAndSyncs(t *testing.T) {
	mgr, root := newTestManager(t)
	ctx := context.Background()

	if err := mgr.SaveMemory(ctx, "first version", "", 1000); err != nil {
		t.Fatalf("SaveMemory: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(root, "MEMORY.md"))
	if err != nil || string(data) != "first version" {
		t.Fatalf("unexpected content: %q, err=%v", data, err)
	}

	if err := mgr.SaveMemory(ctx, "second version", "", 2000); err != nil {
		t.Fatalf("SaveMemory (overwrite): %v", err)
	}
	data, _ = os.ReadFile(filepath.Join(root, "MEMORY.md"))
	if string(data) != "second version" {
		t.Fatalf("expected overwrite, got %q", data)
	}
}

func TestAppendToMemoryAddsLeadingNewline(t *testing.T) {
	mgr, root := newTestManager(t)
	ctx := context.Background()

	if err := mgr.SaveMemory(ctx, "base", "", 1000); err != nil {
		t.Fatalf("SaveMemory: %v", err)
	}
	if err := mgr.AppendToMemory(ctx, "addendum", "MEMORY.md", 2000); err != nil {
		t.Fatalf("AppendToMemory: %v", err)
	}
	data, _ := os.ReadFile(filepath.Join(root, "MEMORY.md"))
	if string(data) != "base\naddendum" {
		t.Fatalf("unexpected content: %q", data)
	}
}

func TestTaskCRUDThroughManager(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	task, err := mgr.CreateTask(ctx, "water plants", "", "telegram", "u1", 5000, 1000)
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if task.ID == "" {
		t.Fatalf("expected a generated task id")
	}

	due, err := mgr.TasksDueSoon(ctx, 1000, 24)
	if err != nil || len(due) != 1 {
		t.Fatalf("TasksDueSoon: err=%v len=%d", err, len(due))
	}

	if err := mgr.CompleteTask(ctx, task.ID, 6000); err != nil {
		t.Fatalf("CompleteTask: %v", err)
	}
	pending, _ := mgr.ListTasks(ctx, false)
	if len(pending) != 0 {
		t.Fatalf("expected 0 pending, got %d", len(pending))
	}
}
