package polls

import (
	"testing"
	"time"
)

func newTestManager(now time.Time) *Manager {
	return NewManager(func() time.Time { return now })
}

func TestCreatePollAssignsIDAndRejectsInvalidInput(t *testing.T) {
	m := newTestManager(fixedNow())

	_, err := m.CreatePoll(Input{Question: "q", Options: []string{"only one"}}, DefaultNormalizeOptions())
	if err == nil {
		t.Fatalf("expected validation error")
	}

	p, err := m.CreatePoll(Input{Question: "pick one", Options: []string{"a", "b"}}, DefaultNormalizeOptions())
	if err != nil {
		t.Fatalf("CreatePoll: %v", err)
	}
	if p.ID == "" {
		t.Fatalf("expected a generated poll id")
	}
	if !m.HasPoll(p.ID) {
		t.Fatalf("expected poll to be registered")
	}
}

func TestVoteAndGetResultsTallyCorrectly(t *testing.T) {
	m := newTestManager(fixedNow())
	p, _ := m.CreatePoll(Input{Question: "color?", Options: []string{"red", "blue"}, MaxSelections: 1}, DefaultNormalizeOptions())

	if err := m.Vote(p.ID, "voter-1", []int{0}); err != nil {
		t.Fatalf("Vote: %v", err)
	}
	if err := m.Vote(p.ID, "voter-2", []int{1}); err != nil {
		t.Fatalf("Vote: %v", err)
	}

	results, err := m.GetResults(p.ID)
	if err != nil {
		t.Fatalf("GetResults: %v", err)
	}
	if results.TotalVotes != 2 {
		t.Fatalf("expected 2 total votes, got %d", results.TotalVotes)
	}
	if results.VoteCounts[0] != 1 || results.VoteCounts[1] != 1 {
		t.Fatalf("unexpected vote counts: %v", results.VoteCounts)
	}
}

func TestVoteReplacesExistingVoterSelection(t *testing.T) {
	m := newTestManager(fixedNow())
	p, _ := m.CreatePoll(Input{Question: "color?", Options: []string{"red", "blue"}}, DefaultNormalizeOptions())

	_ = m.Vote(p.ID, "voter-1", []int{0})
	_ = m.Vote(p.ID, "voter-1", []int{1})

	results, _ := m.GetResults(p.ID)
	if results.TotalVotes != 1 {
		t.Fatalf("expected revote to replace, not accumulate, got %d total votes", results.TotalVotes)
	}
	if results.VoteCounts[0] != 0 || results.VoteCounts[1] != 1 {
		t.Fatalf("expected final selection to be option 1, got %v", results.VoteCounts)
	}
	if !m.HasVoted(p.ID, "voter-1") {
		t.Fatalf("expected HasVoted true")
	}
	if sel := m.VoterSelection(p.ID, "voter-1"); len(sel) != 1 || sel[0] != 1 {
		t.Fatalf("unexpected voter selection: %v", sel)
	}
}

func TestVoteOnUnknownPollFails(t *testing.T) {
	m := newTestManager(fixedNow())
	if err := m.Vote("missing", "voter-1", []int{0}); err != ErrPollNotFound {
		t.Fatalf("expected ErrPollNotFound, got %v", err)
	}
}

func TestClosePollRejectsFurtherVotes(t *testing.T) {
	m := newTestManager(fixedNow())
	p, _ := m.CreatePoll(Input{Question: "q", Options: []string{"a", "b"}}, DefaultNormalizeOptions())

	if !m.ClosePoll(p.ID) {
		t.Fatalf("expected ClosePoll to succeed")
	}
	if err := m.Vote(p.ID, "voter-1", []int{0}); err == nil {
		t.Fatalf("expected vote on a closed poll to fail")
	}
}

func TestDeletePollRemovesVotesToo(t *testing.T) {
	m := newTestManager(fixedNow())
	p, _ := m.CreatePoll(Input{Question: "q", Options: []string{"a", "b"}}, DefaultNormalizeOptions())
	_ = m.Vote(p.ID, "voter-1", []int{0})

	if !m.DeletePoll(p.ID) {
		t.Fatalf("expected DeletePoll to succeed")
	}
	if m.HasPoll(p.ID) {
		t.Fatalf("expected poll removed")
	}
	if _, err := m.GetResults(p.ID); err != ErrPollNotFound {
		t.Fatalf("expected ErrPollNotFound after delete, got %v", err)
	}
}

func TestCleanupExpiredClosesPastPolls(t *testing.T) {
	start := fixedNow()
	m := newTestManager(start)
	p, _ := m.CreatePoll(Input{Question: "q", Options: []string{"a", "b"}, DurationHours: 1}, DefaultNormalizeOptions())

	m.now = func() time.Time { return start.Add(2 * time.Hour) }

	closed := m.CleanupExpired()
	if closed != 1 {
		t.Fatalf("expected 1 poll closed, got %d", closed)
	}
	got, _ := m.GetPoll(p.ID)
	if !got.IsClosed {
		t.Fatalf("expected poll to be marked closed")
	}
}

func TestActivePollIDsExcludesClosedAndExpired(t *testing.T) {
	start := fixedNow()
	m := newTestManager(start)
	active, _ := m.CreatePoll(Input{Question: "active", Options: []string{"a", "b"}, DurationHours: 100}, DefaultNormalizeOptions())
	closed, _ := m.CreatePoll(Input{Question: "closed", Options: []string{"a", "b"}}, DefaultNormalizeOptions())
	m.ClosePoll(closed.ID)

	ids := m.ActivePollIDs()
	if len(ids) != 1 || ids[0] != active.ID {
		t.Fatalf("expected only the active poll, got %v", ids)
	}
}

func TestFormatPollAndResults(t *testing.T) {
	p, _ := Normalize(Input{Question: "pick one", Options: []string{"a", "b"}}, DefaultNormalizeOptions(), fixedNow())
	text := FormatPoll(p)
	if text == "" {
		t.Fatalf("expected non-empty formatted poll")
	}

	results := Results{VoteCounts: []int{1, 1}, TotalVotes: 2}
	summary := FormatResults(p, results)
	if summary == "" {
		t.Fatalf("expected non-empty formatted results")
	}
}
