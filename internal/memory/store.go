// Package memory implements convoy's local-file-resident memory store and
// manager: a SQLite-backed files/chunks/tasks/meta schema with a BM25
// full-text index (degrading to LIKE-substring search when FTS5 is
// unavailable), paragraph-aware chunking, and session-transcript ingestion.
package memory

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/convoyrt/convoy/pkg/convoymodel"
	_ "modernc.org/sqlite"
)

// Store owns the SQLite connection and the four logical relations named in
// spec.md §4.5: meta, files, chunks, tasks, plus a parallel full-text index
// on chunks.
type Store struct {
	db  *sql.DB
	mu  sync.RWMutex
	fts bool
}

// Open opens (creating if necessary) the SQLite database at path and
// initializes its schema. FTS5 availability is probed at open time; if the
// virtual table can't be created, the store falls back to LIKE-substring
// search and records fts_available=false in meta.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open memory store: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	base := `
	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS files (
		path TEXT NOT NULL,
		source TEXT NOT NULL,
		abs_path TEXT NOT NULL,
		hash TEXT NOT NULL,
		mtime_ms INTEGER NOT NULL,
		size INTEGER NOT NULL,
		PRIMARY KEY (path, source)
	);

	CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		path TEXT NOT NULL,
		source TEXT NOT NULL,
		start_line INTEGER NOT NULL,
		end_line INTEGER NOT NULL,
		text TEXT NOT NULL,
		hash TEXT NOT NULL,
		updated_at_ms INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_path_source ON chunks(path, source);

	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		context TEXT,
		channel TEXT,
		user_id TEXT,
		created_at_ms INTEGER NOT NULL,
		due_at_ms INTEGER NOT NULL DEFAULT 0,
		completed INTEGER NOT NULL DEFAULT 0,
		completed_at_ms INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_tasks_due ON tasks(due_at_ms);
	CREATE INDEX IF NOT EXISTS idx_tasks_completed ON tasks(completed);
	`
	if _, err := s.db.Exec(base); err != nil {
		return fmt.Errorf("init memory schema: %w", err)
	}

	ftsSchema := `
	CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
		chunk_id UNINDEXED,
		path UNINDEXED,
		source UNINDEXED,
		text,
		tokenize='porter unicode61'
	);
	`
	if _, err := s.db.Exec(ftsSchema); err != nil {
		s.fts = false
		_, _ = s.db.Exec(`INSERT OR REPLACE INTO meta(key, value) VALUES ('fts_available', 'false')`)
		return nil
	}
	s.fts = true
	_, _ = s.db.Exec(`INSERT OR REPLACE INTO meta(key, value) VALUES ('fts_available', 'true')`)
	return nil
}

// FTSAvailable reports whether the BM25 full-text index is in use.
func (s *Store) FTSAvailable() bool {
	return s.fts
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertFile inserts or updates a files row keyed by (path, source).
func (s *Store) UpsertFile(ctx context.Context, f convoymodel.MemoryFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO files(path, source, abs_path, hash, mtime_ms, size)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(path, source) DO UPDATE SET
			abs_path=excluded.abs_path, hash=excluded.hash,
			mtime_ms=excluded.mtime_ms, size=excluded.size
	`, f.Path, string(f.Source), f.AbsPath, f.Hash, f.MtimeMs, f.Size)
	return err
}

// GetFile returns the tracked files row for (path, source), if any.
func (s *Store) GetFile(ctx context.Context, path string, source convoymodel.MemorySource) (convoymodel.MemoryFile, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx, `SELECT path, source, abs_path, hash, mtime_ms, size FROM files WHERE path = ? AND source = ?`, path, string(source))
	var f convoymodel.MemoryFile
	var src string
	if err := row.Scan(&f.Path, &src, &f.AbsPath, &f.Hash, &f.MtimeMs, &f.Size); err != nil {
		if err == sql.ErrNoRows {
			return convoymodel.MemoryFile{}, false, nil
		}
		return convoymodel.MemoryFile{}, false, err
	}
	f.Source = convoymodel.MemorySource(src)
	return f, true, nil
}

// ActiveFilePaths returns every tracked (path, source) pair.
func (s *Store) ActiveFilePaths(ctx context.Context) (map[[2]string]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `SELECT path, source FROM files`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[[2]string]bool)
	for rows.Next() {
		var path, source string
		if err := rows.Scan(&path, &source); err != nil {
			return nil, err
		}
		out[[2]string{path, source}] = true
	}
	return out, rows.Err()
}

// DeleteFile removes the files row and every chunk indexed under
// (path, source).
func (s *Store) DeleteFile(ctx context.Context, path string, source convoymodel.MemorySource) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.deleteChunksLocked(ctx, path, source); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM files WHERE path = ? AND source = ?`, path, string(source))
	return err
}

func (s *Store) deleteChunksLocked(ctx context.Context, path string, source convoymodel.MemorySource) error {
	if s.fts {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks_fts WHERE path = ? AND source = ?`, path, string(source)); err != nil {
			return err
		}
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE path = ? AND source = ?`, path, string(source))
	return err
}

// ReplaceChunks deletes every existing chunk for (path, source) and inserts
// the given replacement set in a single call.
func (s *Store) ReplaceChunks(ctx context.Context, path string, source convoymodel.MemorySource, chunks []convoymodel.MemoryChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.deleteChunksLocked(ctx, path, source); err != nil {
		return err
	}
	for _, c := range chunks {
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO chunks(id, path, source, start_line, end_line, text, hash, updated_at_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, c.ID, c.Path, string(c.Source), c.StartLine, c.EndLine, c.Text, c.Hash, c.UpdatedAtMs); err != nil {
			return err
		}
		if s.fts {
			if _, err := s.db.ExecContext(ctx, `
				INSERT INTO chunks_fts(chunk_id, path, source, text) VALUES (?, ?, ?, ?)
			`, c.ID, c.Path, string(c.Source), c.Text); err != nil {
				return err
			}
		}
	}
	return nil
}

// Search returns up to limit ranked hits for query. When FTS5 is available
// it uses bm25() ranking transformed to a 0-1-ish relevance score via
// 1/(1-raw); otherwise it falls back to a LIKE-substring scan with a
// constant 0.5 relevance score, per spec.md §4.5.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]convoymodel.MemorySearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 10
	}

	if s.fts {
		return s.searchFTS(ctx, query, limit)
	}
	return s.searchLike(ctx, query, limit)
}

func (s *Store) searchFTS(ctx context.Context, query string, limit int) ([]convoymodel.MemorySearchResult, error) {
	ftsQuery := toFTS5OrQuery(query)
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.path, c.start_line, c.end_line, c.text, c.source, bm25(chunks_fts) AS rank
		FROM chunks_fts
		JOIN chunks c ON chunks_fts.chunk_id = c.id
		WHERE chunks_fts.text MATCH ?
		ORDER BY rank
		LIMIT ?
	`, ftsQuery, limit)
	if err != nil {
		return nil, fmt.Errorf("fts5 search: %w", err)
	}
	defer rows.Close()

	var out []convoymodel.MemorySearchResult
	for rows.Next() {
		var r convoymodel.MemorySearchResult
		var source string
		var rawRank float64
		if err := rows.Scan(&r.Path, &r.StartLine, &r.EndLine, &r.Snippet, &source, &rawRank); err != nil {
			return nil, err
		}
		r.Source = convoymodel.MemorySource(source)
		r.Score = bm25ToScore(rawRank)
		out = append(out, r)
	}
	return out, rows.Err()
}

// bm25ToScore maps FTS5's raw bm25() rank (lower = more relevant, and
// always negative or zero in SQLite's implementation) into (0, 1] via the
// monotone transform 1/(1-raw). A more relevant row (more negative raw)
// gets a smaller value.
func bm25ToScore(raw float64) float64 {
	return 1 / (1 - raw)
}

func (s *Store) searchLike(ctx context.Context, query string, limit int) ([]convoymodel.MemorySearchResult, error) {
	like := "%" + strings.ReplaceAll(query, "%", "") + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT path, start_line, end_line, text, source
		FROM chunks
		WHERE text LIKE ?
		LIMIT ?
	`, like, limit)
	if err != nil {
		return nil, fmt.Errorf("like search: %w", err)
	}
	defer rows.Close()

	var out []convoymodel.MemorySearchResult
	for rows.Next() {
		var r convoymodel.MemorySearchResult
		var source string
		if err := rows.Scan(&r.Path, &r.StartLine, &r.EndLine, &r.Snippet, &source); err != nil {
			return nil, err
		}
		r.Source = convoymodel.MemorySource(source)
		r.Score = 0.5
		out = append(out, r)
	}
	return out, rows.Err()
}

// toFTS5OrQuery turns a free-text query into an OR-joined FTS5 MATCH
// expression so any term may hit, matching teradata-labs-loom's
// convertToFTS5Query convention.
func toFTS5OrQuery(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return query
	}
	quoted := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.ReplaceAll(f, `"`, "")
		if f == "" {
			continue
		}
		quoted = append(quoted, `"`+f+`"`)
	}
	return strings.Join(quoted, " OR ")
}

// Tasks

// CreateTask inserts t (expected to already carry a fresh id) and returns
// any insert error.
func (s *Store) CreateTask(ctx context.Context, t convoymodel.MemoryTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks(id, content, context, channel, user_id, created_at_ms, due_at_ms, completed, completed_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, 0)
	`, t.ID, t.Content, t.Context, t.Channel, t.UserID, t.CreatedAtMs, t.DueAtMs)
	return err
}

// CompleteTask marks id completed at completedAtMs.
func (s *Store) CompleteTask(ctx context.Context, id string, completedAtMs int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `UPDATE tasks SET completed = 1, completed_at_ms = ? WHERE id = ?`, completedAtMs, id)
	return err
}

// ListTasks returns tasks, optionally including completed ones.
func (s *Store) ListTasks(ctx context.Context, includeCompleted bool) ([]convoymodel.MemoryTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q := `SELECT id, content, context, channel, user_id, created_at_ms, due_at_ms, completed, completed_at_ms FROM tasks`
	if !includeCompleted {
		q += ` WHERE completed = 0`
	}
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTasks(rows)
}

// TasksDueSoon returns pending tasks whose due_at_ms is within hours of
// nowMs (and non-zero).
func (s *Store) TasksDueSoon(ctx context.Context, nowMs int64, hours int) ([]convoymodel.MemoryTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	horizon := nowMs + int64(hours)*3600_000
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content, context, channel, user_id, created_at_ms, due_at_ms, completed, completed_at_ms
		FROM tasks
		WHERE completed = 0 AND due_at_ms > 0 AND due_at_ms <= ?
		ORDER BY due_at_ms ASC
	`, horizon)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTasks(rows)
}

func scanTasks(rows *sql.Rows) ([]convoymodel.MemoryTask, error) {
	var out []convoymodel.MemoryTask
	for rows.Next() {
		var t convoymodel.MemoryTask
		var completed int
		if err := rows.Scan(&t.ID, &t.Content, &t.Context, &t.Channel, &t.UserID, &t.CreatedAtMs, &t.DueAtMs, &completed, &t.CompletedAt); err != nil {
			return nil, err
		}
		t.Completed = completed != 0
		out = append(out, t)
	}
	return out, rows.Err()
}

// Meta

// SetMeta upserts a scratchpad key/value pair.
func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `INSERT INTO meta(key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value=excluded.value`, key, value)
	return err
}

// GetMeta returns the stored value for key, or ("", false) if absent.
func (s *Store) GetMeta(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}
