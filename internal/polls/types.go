// Package polls implements convoy's in-memory poll subsystem: normalizing
// raw poll input into a validated Poll, collecting votes, and tallying
// results. Per spec.md's design note against process-wide singletons, the
// Manager here is an explicit dependency instances are constructed and
// passed around, never a package-level global.
package polls

import (
	"errors"
	"fmt"
	"time"
)

// DefaultMaxOptions, DefaultHours, and DefaultMaxHours mirror the original
// PollNormalizeOptions defaults: 10 options, a 24h default duration, capped
// at one week.
const (
	DefaultMaxOptions = 10
	DefaultHours      = 24
	DefaultMaxHours   = 168
)

// NormalizeOptions bounds how normalize_poll clamps and validates PollInput.
type NormalizeOptions struct {
	MaxOptions   int
	DefaultHours int
	MaxHours     int
}

// DefaultNormalizeOptions returns the original implementation's defaults.
func DefaultNormalizeOptions() NormalizeOptions {
	return NormalizeOptions{MaxOptions: DefaultMaxOptions, DefaultHours: DefaultHours, MaxHours: DefaultMaxHours}
}

func (o NormalizeOptions) sanitized() NormalizeOptions {
	if o.MaxOptions <= 0 {
		o.MaxOptions = DefaultMaxOptions
	}
	if o.DefaultHours <= 0 {
		o.DefaultHours = DefaultHours
	}
	if o.MaxHours <= 0 {
		o.MaxHours = DefaultMaxHours
	}
	return o
}

// Input is the raw, pre-validation poll request. MaxSelections == 0 means
// "not specified" and defaults to 1; DurationHours == 0 means "use the
// configured default".
type Input struct {
	Question      string
	Options       []string
	MaxSelections int
	DurationHours int
}

// Poll is a normalized, validated poll ready to accept votes.
type Poll struct {
	ID            string
	Question      string
	Options       []string
	MaxSelections int
	DurationHours int
	CreatedAt     int64
	ExpiresAt     int64 // 0 = no expiry
	IsClosed      bool
}

// IsExpired reports whether the poll's expiry has passed as of now.
func (p Poll) IsExpired(now time.Time) bool {
	if p.ExpiresAt == 0 {
		return false
	}
	return now.Unix() >= p.ExpiresAt
}

// IsActive reports whether the poll can still accept votes: not closed and
// not expired.
func (p Poll) IsActive(now time.Time) bool {
	return !p.IsClosed && !p.IsExpired(now)
}

// TimeRemaining returns the seconds left before expiry, or 0 if the poll
// has no expiry or has already expired.
func (p Poll) TimeRemaining(now time.Time) int64 {
	if p.ExpiresAt == 0 {
		return 0
	}
	remaining := p.ExpiresAt - now.Unix()
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Vote records one voter's selected option indices against a poll.
type Vote struct {
	PollID          string
	VoterID         string
	SelectedOptions []int
	VotedAt         int64
}

// Results tallies votes cast against a single poll.
type Results struct {
	PollID       string
	VoteCounts   []int
	TotalVotes   int
	VotesByVoter map[string][]int
}

// Percentage returns the share of total votes (0-100) an option received.
// Returns 0 if the index is out of range or no votes have been cast.
func (r Results) Percentage(optionIndex int) float64 {
	if optionIndex < 0 || optionIndex >= len(r.VoteCounts) || r.TotalVotes == 0 {
		return 0
	}
	return float64(r.VoteCounts[optionIndex]) / float64(r.TotalVotes) * 100
}

// WinningOption returns the index of the option with the most votes, or -1
// on a tie or if no votes have been cast.
func (r Results) WinningOption() int {
	best, bestCount, tie := -1, 0, false
	for i, count := range r.VoteCounts {
		switch {
		case count == 0:
			continue
		case count > bestCount:
			best, bestCount, tie = i, count, false
		case count == bestCount:
			tie = true
		}
	}
	if tie {
		return -1
	}
	return best
}

// ErrTooFewOptions, ErrTooManyOptions, and ErrEmptyQuestion are the
// validation failures normalize_poll can return.
var (
	ErrEmptyQuestion  = errors.New("poll question must not be empty")
	ErrTooFewOptions  = errors.New("poll must have at least 2 options")
	ErrTooManyOptions = errors.New("poll exceeds the maximum number of options")
)

// Normalize validates input and produces a Poll, clamping duration and
// selection count to the bounds in opts. now is the creation instant.
func Normalize(input Input, opts NormalizeOptions, now time.Time) (Poll, error) {
	opts = opts.sanitized()

	if trimmedEmpty(input.Question) {
		return Poll{}, ErrEmptyQuestion
	}
	if len(input.Options) < 2 {
		return Poll{}, ErrTooFewOptions
	}
	if len(input.Options) > opts.MaxOptions {
		return Poll{}, fmt.Errorf("%w: got %d, max %d", ErrTooManyOptions, len(input.Options), opts.MaxOptions)
	}

	maxSelections := input.MaxSelections
	if maxSelections <= 0 {
		maxSelections = 1
	}
	if maxSelections > len(input.Options) {
		maxSelections = len(input.Options)
	}

	durationHours := NormalizeDuration(input.DurationHours, opts.DefaultHours, opts.MaxHours)

	createdAt := now.Unix()
	options := append([]string(nil), input.Options...)

	return Poll{
		Question:      input.Question,
		Options:       options,
		MaxSelections: maxSelections,
		DurationHours: durationHours,
		CreatedAt:     createdAt,
		ExpiresAt:     createdAt + int64(durationHours)*3600,
	}, nil
}

// NormalizeDuration clamps durationHours to [1, maxHours], substituting
// defaultHours when durationHours is 0 ("not specified").
func NormalizeDuration(durationHours, defaultHours, maxHours int) int {
	if durationHours == 0 {
		durationHours = defaultHours
	}
	if durationHours < 1 {
		durationHours = 1
	}
	if durationHours > maxHours {
		durationHours = maxHours
	}
	return durationHours
}

// ValidateVote checks selectedOptions against poll's rules, returning a
// descriptive error or nil if the vote is acceptable.
func ValidateVote(poll Poll, now time.Time, selectedOptions []int) error {
	if !poll.IsActive(now) {
		return errors.New("poll is closed")
	}
	if len(selectedOptions) == 0 {
		return errors.New("at least one option must be selected")
	}
	if len(selectedOptions) > poll.MaxSelections {
		return fmt.Errorf("at most %d option(s) may be selected", poll.MaxSelections)
	}
	seen := make(map[int]bool, len(selectedOptions))
	for _, idx := range selectedOptions {
		if idx < 0 || idx >= len(poll.Options) {
			return fmt.Errorf("option index %d out of range", idx)
		}
		if seen[idx] {
			return fmt.Errorf("option index %d selected more than once", idx)
		}
		seen[idx] = true
	}
	return nil
}

func trimmedEmpty(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}
	return true
}
