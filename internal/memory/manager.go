package memory

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/convoyrt/convoy/pkg/convoymodel"
)

// CitationMode governs whether search results carry a human-facing
// `path#Lstart[-Lend]` citation string.
type CitationMode string

const (
	CitationAuto CitationMode = "auto" // included only for allow-listed chat types
	CitationOn   CitationMode = "on"
	CitationOff  CitationMode = "off"
)

// ManagerConfig parameterizes a Manager's file discovery and chunking.
type ManagerConfig struct {
	WorkspaceRoot     string
	IncludeSessions   bool
	Chunking          ChunkingConfig
	CitationMode      CitationMode
	CitationChatTypes []convoymodel.ChatType // consulted only when CitationMode == CitationAuto
}

// Manager implements spec.md §4.5's manager operations (sync, save,
// search, tasks) on top of a Store.
type Manager struct {
	store  *Store
	config ManagerConfig
}

// NewManager builds a Manager bound to store.
func NewManager(store *Store, config ManagerConfig) *Manager {
	return &Manager{store: store, config: config}
}

// Sync scans MEMORY.md, memory/*.md, and (if configured) session
// transcripts, re-indexing any file whose content hash changed and
// removing rows for files no longer present, per spec.md §4.5.
func (m *Manager) Sync(ctx context.Context, nowMs int64) error {
	discovered, err := m.discoverFiles()
	if err != nil {
		return err
	}

	active, err := m.store.ActiveFilePaths(ctx)
	if err != nil {
		return err
	}

	for _, df := range discovered {
		key := [2]string{df.path, string(df.source)}
		delete(active, key)

		content, err := readFile(df.absPath, df.source)
		if err != nil {
			continue
		}
		hash := hashText(content)

		existing, found, err := m.store.GetFile(ctx, df.path, df.source)
		if err != nil {
			return err
		}
		if found && existing.Hash == hash {
			continue
		}

		chunks := ChunkText(content, df.path, df.source, m.config.Chunking, nowMs)
		if err := m.store.ReplaceChunks(ctx, df.path, df.source, chunks); err != nil {
			return err
		}

		info, statErr := os.Stat(df.absPath)
		var mtimeMs, size int64
		if statErr == nil {
			mtimeMs = info.ModTime().UnixMilli()
			size = info.Size()
		}
		if err := m.store.UpsertFile(ctx, convoymodel.MemoryFile{
			Path: df.path, AbsPath: df.absPath, Source: df.source,
			Hash: hash, MtimeMs: mtimeMs, Size: size,
		}); err != nil {
			return err
		}
	}

	for key := range active {
		if err := m.store.DeleteFile(ctx, key[0], convoymodel.MemorySource(key[1])); err != nil {
			return err
		}
	}

	return nil
}

type discoveredFile struct {
	path    string // relative to workspace root
	absPath string
	source  convoymodel.MemorySource
}

func (m *Manager) discoverFiles() ([]discoveredFile, error) {
	var out []discoveredFile

	root := m.config.WorkspaceRoot

	if entries, err := os.ReadDir(root); err == nil {
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			if strings.EqualFold(e.Name(), "MEMORY.md") {
				out = append(out, discoveredFile{path: e.Name(), absPath: filepath.Join(root, e.Name()), source: convoymodel.SourceMemory})
				break // case-insensitive match, first one wins
			}
		}
	}

	memDir := filepath.Join(root, "memory")
	if entries, err := os.ReadDir(memDir); err == nil {
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(strings.ToLower(e.Name()), ".md") {
				continue
			}
			rel := filepath.Join("memory", e.Name())
			out = append(out, discoveredFile{path: rel, absPath: filepath.Join(memDir, e.Name()), source: convoymodel.SourceMemory})
		}
	}

	if m.config.IncludeSessions {
		sessDir := filepath.Join(root, ".openclaw", "sessions")
		if entries, err := os.ReadDir(sessDir); err == nil {
			for _, e := range entries {
				if e.IsDir() || !strings.HasSuffix(strings.ToLower(e.Name()), ".jsonl") {
					continue
				}
				rel := filepath.Join(".openclaw", "sessions", e.Name())
				out = append(out, discoveredFile{path: rel, absPath: filepath.Join(sessDir, e.Name()), source: convoymodel.SourceSessions})
			}
		}
	}

	return out, nil
}

func readFile(absPath string, source convoymodel.MemorySource) (string, error) {
	if source == convoymodel.SourceSessions {
		return readTranscript(absPath)
	}
	data, err := os.ReadFile(absPath)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func readTranscript(absPath string) (string, error) {
	f, err := os.Open(absPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var turns []TranscriptTurn
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		}
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue
		}
		turns = append(turns, TranscriptTurn{Role: rec.Role, Content: rec.Content})
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return ExtractSessionTranscript(turns), nil
}

// SaveMemory overwrites filename (default MEMORY.md) at the workspace root
// with content and triggers a sync.
func (m *Manager) SaveMemory(ctx context.Context, content, filename string, nowMs int64) error {
	if filename == "" {
		filename = "MEMORY.md"
	}
	path := filepath.Join(m.config.WorkspaceRoot, filename)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("save memory: %w", err)
	}
	return m.Sync(ctx, nowMs)
}

// SaveDailyMemory writes memory/YYYY-MM-DD.md (UTC) and triggers a sync.
func (m *Manager) SaveDailyMemory(ctx context.Context, content string, day time.Time, nowMs int64) error {
	filename := filepath.Join("memory", day.UTC().Format("2006-01-02")+".md")
	dir := filepath.Join(m.config.WorkspaceRoot, "memory")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("save daily memory: %w", err)
	}
	path := filepath.Join(m.config.WorkspaceRoot, filename)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("save daily memory: %w", err)
	}
	return m.Sync(ctx, nowMs)
}

// AppendToMemory appends content (preceded by a newline) to filename and
// triggers a sync.
func (m *Manager) AppendToMemory(ctx context.Context, content, filename string, nowMs int64) error {
	if filename == "" {
		filename = "MEMORY.md"
	}
	path := filepath.Join(m.config.WorkspaceRoot, filename)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("append to memory: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString("\n" + content); err != nil {
		return fmt.Errorf("append to memory: %w", err)
	}
	return m.Sync(ctx, nowMs)
}

// Search forwards query to the store and decorates each hit with a
// citation string when citationMode (resolved against chatType for AUTO)
// calls for one.
func (m *Manager) Search(ctx context.Context, query string, limit int, chatType convoymodel.ChatType) ([]convoymodel.MemorySearchResult, error) {
	results, err := m.store.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	if m.includeCitations(chatType) {
		for i := range results {
			results[i].Citation = formatCitation(results[i].Path, results[i].StartLine, results[i].EndLine)
		}
	}
	return results, nil
}

func formatCitation(path string, start, end int) string {
	if start == end {
		return fmt.Sprintf("%s#L%d", path, start)
	}
	return fmt.Sprintf("%s#L%d-L%d", path, start, end)
}

func (m *Manager) includeCitations(chatType convoymodel.ChatType) bool {
	switch m.config.CitationMode {
	case CitationOn:
		return true
	case CitationOff:
		return false
	default: // CitationAuto
		for _, t := range m.config.CitationChatTypes {
			if t == chatType {
				return true
			}
		}
		return false
	}
}

// Tasks

// CreateTask assigns a fresh id and created_at, then inserts the task.
func (m *Manager) CreateTask(ctx context.Context, content, context_, channel, userID string, dueAtMs, nowMs int64) (convoymodel.MemoryTask, error) {
	t := convoymodel.MemoryTask{
		ID:          uuid.NewString(),
		Content:     content,
		Context:     context_,
		Channel:     channel,
		UserID:      userID,
		CreatedAtMs: nowMs,
		DueAtMs:     dueAtMs,
	}
	if err := m.store.CreateTask(ctx, t); err != nil {
		return convoymodel.MemoryTask{}, err
	}
	return t, nil
}

// CompleteTask marks id completed at nowMs.
func (m *Manager) CompleteTask(ctx context.Context, id string, nowMs int64) error {
	return m.store.CompleteTask(ctx, id, nowMs)
}

// ListTasks returns tasks, optionally including completed ones, ordered by
// creation time.
func (m *Manager) ListTasks(ctx context.Context, includeCompleted bool) ([]convoymodel.MemoryTask, error) {
	tasks, err := m.store.ListTasks(ctx, includeCompleted)
	if err != nil {
		return nil, err
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].CreatedAtMs < tasks[j].CreatedAtMs })
	return tasks, nil
}

// TasksDueSoon returns pending tasks due within the next hours.
func (m *Manager) TasksDueSoon(ctx context.Context, nowMs int64, hours int) ([]convoymodel.MemoryTask, error) {
	return m.store.TasksDueSoon(ctx, nowMs, hours)
}
