package polls

import (
	"errors"
	"testing"
	"time"
)

func fixedNow() time.Time { return time.Unix(1_700_000_000, 0) }

func TestNormalizeFewerThanTwoOptionsFails(t *testing.T) {
	_, err := Normalize(Input{Question: "q", Options: []string{"only one"}}, DefaultNormalizeOptions(), fixedNow())
	if !errors.Is(err, ErrTooFewOptions) {
		t.Fatalf("expected ErrTooFewOptions, got %v", err)
	}
}

func TestNormalizeTooManyOptionsFails(t *testing.T) {
	opts := NormalizeOptions{MaxOptions: 3, DefaultHours: 24, MaxHours: 168}
	input := Input{Question: "q", Options: []string{"a", "b", "c", "d"}}
	_, err := Normalize(input, opts, fixedNow())
	if !errors.Is(err, ErrTooManyOptions) {
		t.Fatalf("expected ErrTooManyOptions, got %v", err)
	}
}

func TestNormalizeDurationClampsToMaxHours(t *testing.T) {
	got := NormalizeDuration(10_000, 24, 168)
	if got != 168 {
		t.Fatalf("expected clamp to 168, got %d", got)
	}
}

func TestNormalizeDurationClampsBelowOne(t *testing.T) {
	got := NormalizeDuration(-5, 24, 168)
	if got != 1 {
		t.Fatalf("expected clamp to 1, got %d", got)
	}
}

func TestNormalizeDurationUsesDefaultWhenUnspecified(t *testing.T) {
	got := NormalizeDuration(0, 24, 168)
	if got != 24 {
		t.Fatalf("expected default of 24, got %d", got)
	}
}

func TestNormalizeDefaultsMaxSelectionsToOne(t *testing.T) {
	p, err := Normalize(Input{Question: "q", Options: []string{"a", "b"}}, DefaultNormalizeOptions(), fixedNow())
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if p.MaxSelections != 1 {
		t.Fatalf("expected default max_selections of 1, got %d", p.MaxSelections)
	}
}

func TestNormalizeIdempotentOnAlreadyNormalizedInput(t *testing.T) {
	opts := DefaultNormalizeOptions()
	now := fixedNow()

	first, err := Normalize(Input{Question: "favorite color?", Options: []string{"red", "blue", "green"}, MaxSelections: 2, DurationHours: 48}, opts, now)
	if err != nil {
		t.Fatalf("Normalize (first): %v", err)
	}

	second, err := Normalize(Input{Question: first.Question, Options: first.Options, MaxSelections: first.MaxSelections, DurationHours: first.DurationHours}, opts, now)
	if err != nil {
		t.Fatalf("Normalize (second): %v", err)
	}

	if len(second.Options) != len(first.Options) {
		t.Fatalf("option count changed on re-normalization: %d vs %d", len(first.Options), len(second.Options))
	}
	for i := range first.Options {
		if first.Options[i] != second.Options[i] {
			t.Fatalf("option %d changed: %q vs %q", i, first.Options[i], second.Options[i])
		}
	}
	if first.MaxSelections != second.MaxSelections {
		t.Fatalf("max_selections changed: %d vs %d", first.MaxSelections, second.MaxSelections)
	}
	if first.DurationHours != second.DurationHours {
		t.Fatalf("duration bucket changed: %d vs %d", first.DurationHours, second.DurationHours)
	}
}

func TestValidateVoteRejectsClosedPoll(t *testing.T) {
	p := Poll{Options: []string{"a", "b"}, MaxSelections: 1, IsClosed: true}
	if err := ValidateVote(p, fixedNow(), []int{0}); err == nil {
		t.Fatalf("expected error voting on a closed poll")
	}
}

func TestValidateVoteRejectsOverSelection(t *testing.T) {
	p := Poll{Options: []string{"a", "b", "c"}, MaxSelections: 1}
	if err := ValidateVote(p, fixedNow(), []int{0, 1}); err == nil {
		t.Fatalf("expected error selecting more than max_selections")
	}
}

func TestValidateVoteRejectsOutOfRangeIndex(t *testing.T) {
	p := Poll{Options: []string{"a", "b"}, MaxSelections: 1}
	if err := ValidateVote(p, fixedNow(), []int{5}); err == nil {
		t.Fatalf("expected error for out-of-range option index")
	}
}

func TestValidateVoteAcceptsWithinBounds(t *testing.T) {
	p := Poll{Options: []string{"a", "b", "c"}, MaxSelections: 2}
	if err := ValidateVote(p, fixedNow(), []int{0, 2}); err != nil {
		t.Fatalf("expected valid vote, got %v", err)
	}
}

func TestPollIsExpired(t *testing.T) {
	now := fixedNow()
	p := Poll{CreatedAt: now.Unix(), ExpiresAt: now.Unix() + 3600}
	if p.IsExpired(now) {
		t.Fatalf("poll should not be expired yet")
	}
	if !p.IsExpired(now.Add(2 * time.Hour)) {
		t.Fatalf("poll should be expired 2h later")
	}
}

func TestResultsWinningOptionTieReturnsNegativeOne(t *testing.T) {
	r := Results{VoteCounts: []int{3, 3, 1}}
	if r.WinningOption() != -1 {
		t.Fatalf("expected -1 on tie, got %d", r.WinningOption())
	}
}

func TestResultsWinningOptionNoVotesReturnsNegativeOne(t *testing.T) {
	r := Results{VoteCounts: []int{0, 0}}
	if r.WinningOption() != -1 {
		t.Fatalf("expected -1 with no votes, got %d", r.WinningOption())
	}
}

func TestResultsPercentage(t *testing.T) {
	r := Results{VoteCounts: []int{1, 3}, TotalVotes: 4}
	if got := r.Percentage(1); got != 75 {
		t.Fatalf("expected 75%%, got %v", got)
	}
}
