package polls

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrPollNotFound is returned when an operation names a poll id the manager
// has no record of.
var ErrPollNotFound = errors.New("poll not found")

// Manager owns all polls and votes for one running process. It holds no
// package-level state; callers construct and share an instance explicitly.
type Manager struct {
	mu    sync.Mutex
	polls map[string]Poll
	votes map[string][]Vote // poll id -> votes, append-only per voter (last write wins)
	now   func() time.Time
}

// NewManager builds an empty Manager. now defaults to time.Now when nil,
// and exists as a seam for deterministic tests.
func NewManager(now func() time.Time) *Manager {
	if now == nil {
		now = time.Now
	}
	return &Manager{
		polls: make(map[string]Poll),
		votes: make(map[string][]Vote),
		now:   now,
	}
}

// CreatePoll normalizes input and registers a new Poll under a generated id.
func (m *Manager) CreatePoll(input Input, opts NormalizeOptions) (Poll, error) {
	poll, err := Normalize(input, opts, m.now())
	if err != nil {
		return Poll{}, err
	}
	poll.ID = uuid.NewString()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.polls[poll.ID] = poll
	return poll, nil
}

// GetPoll returns the poll for id, if any.
func (m *Manager) GetPoll(id string) (Poll, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.polls[id]
	return p, ok
}

// HasPoll reports whether a poll with id is registered.
func (m *Manager) HasPoll(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.polls[id]
	return ok
}

// ClosePoll marks a poll closed, rejecting future votes. Returns false if
// the poll does not exist.
func (m *Manager) ClosePoll(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.polls[id]
	if !ok {
		return false
	}
	p.IsClosed = true
	m.polls[id] = p
	return true
}

// DeletePoll removes a poll and its votes entirely. Returns false if the
// poll does not exist.
func (m *Manager) DeletePoll(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.polls[id]; !ok {
		return false
	}
	delete(m.polls, id)
	delete(m.votes, id)
	return true
}

// Vote casts or replaces voterID's vote on poll id. Returns an error
// describing why the vote was rejected, or nil on success.
func (m *Manager) Vote(id, voterID string, selectedOptions []int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	poll, ok := m.polls[id]
	if !ok {
		return ErrPollNotFound
	}
	now := m.now()
	if err := ValidateVote(poll, now, selectedOptions); err != nil {
		return err
	}

	vote := Vote{
		PollID:          id,
		VoterID:         voterID,
		SelectedOptions: append([]int(nil), selectedOptions...),
		VotedAt:         now.Unix(),
	}

	votes := m.votes[id]
	for i, existing := range votes {
		if existing.VoterID == voterID {
			votes[i] = vote
			m.votes[id] = votes
			return nil
		}
	}
	m.votes[id] = append(votes, vote)
	return nil
}

// GetResults tallies all votes cast against poll id.
func (m *Manager) GetResults(id string) (Results, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	poll, ok := m.polls[id]
	if !ok {
		return Results{}, ErrPollNotFound
	}

	results := Results{
		PollID:       id,
		VoteCounts:   make([]int, len(poll.Options)),
		VotesByVoter: make(map[string][]int),
	}
	for _, v := range m.votes[id] {
		results.VotesByVoter[v.VoterID] = v.SelectedOptions
		results.TotalVotes++
		for _, idx := range v.SelectedOptions {
			if idx >= 0 && idx < len(results.VoteCounts) {
				results.VoteCounts[idx]++
			}
		}
	}
	return results, nil
}

// HasVoted reports whether voterID has cast a vote on poll id.
func (m *Manager) HasVoted(id, voterID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.votes[id] {
		if v.VoterID == voterID {
			return true
		}
	}
	return false
}

// VoterSelection returns voterID's selected options for poll id, or nil if
// they have not voted.
func (m *Manager) VoterSelection(id, voterID string) []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.votes[id] {
		if v.VoterID == voterID {
			return append([]int(nil), v.SelectedOptions...)
		}
	}
	return nil
}

// CleanupExpired closes every active poll whose expiry has passed,
// returning the number closed.
func (m *Manager) CleanupExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	closed := 0
	for id, p := range m.polls {
		if !p.IsClosed && p.IsExpired(now) {
			p.IsClosed = true
			m.polls[id] = p
			closed++
		}
	}
	return closed
}

// ActivePollIDs returns the ids of all polls that are neither closed nor
// expired, sorted for deterministic iteration.
func (m *Manager) ActivePollIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	ids := make([]string, 0, len(m.polls))
	for id, p := range m.polls {
		if p.IsActive(now) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// PollCount returns the total number of polls the manager holds, active or
// not.
func (m *Manager) PollCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.polls)
}

// FormatPoll renders a poll as a simple numbered-options text block.
func FormatPoll(p Poll) string {
	out := p.Question + "\n"
	for i, opt := range p.Options {
		out += fmt.Sprintf("%d. %s\n", i+1, opt)
	}
	return out
}

// FormatResults renders a poll's tallied results as percentages per option.
func FormatResults(p Poll, r Results) string {
	out := p.Question + fmt.Sprintf(" (%d vote(s))\n", r.TotalVotes)
	for i, opt := range p.Options {
		count := 0
		if i < len(r.VoteCounts) {
			count = r.VoteCounts[i]
		}
		out += fmt.Sprintf("%d. %s - %d (%.1f%%)\n", i+1, opt, count, r.Percentage(i))
	}
	return out
}
