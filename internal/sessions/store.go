package sessions

import (
	"sync"
	"time"

	"github.com/convoyrt/convoy/pkg/convoymodel"
)

// DefaultMaxHistory is the default cap on ConversationMessage entries
// retained per session.
const DefaultMaxHistory = 20

// Session is the per-conversation memory of prior turns and scratch data.
type Session struct {
	Key          string
	AgentID      string
	Channel      string
	PeerID       string
	History      []convoymodel.ConversationMessage
	LastActivity time.Time
	Scratch      map[string]string
	maxHistory   int
}

// Append adds a turn to the session's history, trimming the oldest entries
// beyond maxHistory, and refreshes LastActivity.
func (s *Session) Append(msg convoymodel.ConversationMessage) {
	s.History = append(s.History, msg)
	max := s.maxHistory
	if max <= 0 {
		max = DefaultMaxHistory
	}
	if len(s.History) > max {
		s.History = s.History[len(s.History)-max:]
	}
	s.LastActivity = time.Now()
}

// Store lazily creates and retrieves Sessions by key, bounded per-session
// history, and cleanup of long-inactive sessions.
type Store struct {
	mu         sync.Mutex
	sessions   map[string]*Session
	maxHistory int
}

// NewStore builds an empty Store. maxHistory <= 0 uses DefaultMaxHistory.
func NewStore(maxHistory int) *Store {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	return &Store{sessions: make(map[string]*Session), maxHistory: maxHistory}
}

// GetOrCreate returns the session for key, creating it (and touching its
// last-activity) if this is the first access.
func (st *Store) GetOrCreate(key string, components Components) *Session {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.sessions[key]
	if !ok {
		s = &Session{
			Key:        key,
			AgentID:    sanitizeAgentID(components.AgentID),
			Channel:    lower(components.Channel),
			PeerID:     lower(components.PeerID),
			Scratch:    make(map[string]string),
			maxHistory: st.maxHistory,
		}
		st.sessions[key] = s
	}
	s.LastActivity = time.Now()
	return s
}

// Get returns the session for key without creating one.
func (st *Store) Get(key string) (*Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[key]
	return s, ok
}

// Delete removes the session for key, if any.
func (st *Store) Delete(key string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.sessions, key)
}

// CleanupInactive drops sessions whose last-activity is older than maxAge,
// returning the number removed.
func (st *Store) CleanupInactive(maxAge time.Duration) int {
	st.mu.Lock()
	defer st.mu.Unlock()
	if len(st.sessions) == 0 {
		return 0
	}
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for key, s := range st.sessions {
		if s.LastActivity.Before(cutoff) {
			delete(st.sessions, key)
			removed++
		}
	}
	return removed
}

// Count returns the number of tracked sessions.
func (st *Store) Count() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}
