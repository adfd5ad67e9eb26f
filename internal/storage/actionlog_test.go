package storage

import (
	"errors"
	"testing"
	"time"
)

func TestAppendActionAndDecision(t *testing.T) {
	s := openTestStore(t)
	sc := mustCreateSchedule(t, s, "U1", EventRemind, time.Now())

	if _, found, err := s.Decision(sc.ID); err != nil || found {
		t.Fatalf("Decision on empty log = (found=%v, %v), want none", found, err)
	}

	if err := s.AppendAction(sc.ID, ActionYes, "key-1"); err != nil {
		t.Fatalf("AppendAction: %v", err)
	}

	result, found, err := s.Decision(sc.ID)
	if err != nil {
		t.Fatalf("Decision: %v", err)
	}
	if !found || result != ActionYes {
		t.Errorf("Decision = (%q, %v), want YES", result, found)
	}
}

func TestAppendActionDuplicateKey(t *testing.T) {
	s := openTestStore(t)
	sc := mustCreateSchedule(t, s, "U1", EventRemind, time.Now())

	if err := s.AppendAction(sc.ID, ActionNo, "key-1"); err != nil {
		t.Fatalf("AppendAction: %v", err)
	}
	err := s.AppendAction(sc.ID, ActionNo, "key-1")
	if !errors.Is(err, ErrDuplicateAction) {
		t.Fatalf("replayed key err = %v, want ErrDuplicateAction", err)
	}

	logs, err := s.LogsForSchedule(sc.ID)
	if err != nil {
		t.Fatalf("LogsForSchedule: %v", err)
	}
	if len(logs) != 1 {
		t.Errorf("got %d log rows, want 1", len(logs))
	}
}

// TestAppendActionSecondDecisionRejected sends two overlapping intakes
// at the same schedule; the store must keep only the first decision.
func TestAppendActionSecondDecisionRejected(t *testing.T) {
	s := openTestStore(t)
	sc := mustCreateSchedule(t, s, "U1", EventRemind, time.Now())

	if err := s.AppendAction(sc.ID, ActionYes, "key-1"); err != nil {
		t.Fatalf("AppendAction: %v", err)
	}
	err := s.AppendAction(sc.ID, ActionNo, "key-2")
	if !errors.Is(err, ErrDuplicateAction) {
		t.Fatalf("opposite decision err = %v, want ErrDuplicateAction", err)
	}

	logs, err := s.LogsForSchedule(sc.ID)
	if err != nil {
		t.Fatalf("LogsForSchedule: %v", err)
	}
	if len(logs) != 1 || logs[0].Result != ActionYes {
		t.Fatalf("logs = %+v, want only the first YES", logs)
	}

	// AUTO_IGNORE is not a decision and stays appendable.
	if err := s.AppendAction(sc.ID, ActionAutoIgnore, ""); err != nil {
		t.Errorf("AUTO_IGNORE after a decision: %v", err)
	}
}

func TestAppendActionEmptyKeysDoNotCollide(t *testing.T) {
	s := openTestStore(t)
	a := mustCreateSchedule(t, s, "U1", EventRemind, time.Now())
	b := mustCreateSchedule(t, s, "U1", EventRemind, time.Now().Add(time.Minute))

	if err := s.AppendAction(a.ID, ActionAutoIgnore, ""); err != nil {
		t.Fatalf("first keyless append: %v", err)
	}
	if err := s.AppendAction(b.ID, ActionAutoIgnore, ""); err != nil {
		t.Fatalf("second keyless append: %v", err)
	}
}

func TestHasAction(t *testing.T) {
	s := openTestStore(t)
	sc := mustCreateSchedule(t, s, "U1", EventRemind, time.Now())

	has, err := s.HasAction(sc.ID, ActionAutoIgnore)
	if err != nil || has {
		t.Fatalf("HasAction on empty log = (%v, %v), want false", has, err)
	}
	if err := s.AppendAction(sc.ID, ActionAutoIgnore, ""); err != nil {
		t.Fatalf("AppendAction: %v", err)
	}
	if has, err = s.HasAction(sc.ID, ActionAutoIgnore); err != nil || !has {
		t.Fatalf("HasAction = (%v, %v), want true", has, err)
	}
}

func appendHistory(t *testing.T, s *Store, userID string, results []ActionResult) {
	t.Helper()
	base := time.Now().Add(-time.Duration(len(results)) * time.Hour)
	for i, r := range results {
		sc := mustCreateSchedule(t, s, userID, EventRemind, base.Add(time.Duration(i)*time.Hour))
		if err := s.AppendAction(sc.ID, r, ""); err != nil {
			t.Fatalf("AppendAction(%s): %v", r, err)
		}
	}
}

func TestConsecutiveNoCount(t *testing.T) {
	tests := []struct {
		name    string
		history []ActionResult
		want    int
	}{
		{"empty", nil, 0},
		{"trailing declines", []ActionResult{ActionYes, ActionNo, ActionNo, ActionNo}, 3},
		{"yes breaks streak", []ActionResult{ActionNo, ActionYes, ActionNo}, 1},
		{"all declines", []ActionResult{ActionNo, ActionNo}, 2},
		{"ends with yes", []ActionResult{ActionNo, ActionNo, ActionYes}, 0},
		{"auto ignore skipped", []ActionResult{ActionNo, ActionAutoIgnore, ActionNo}, 2},
		{"auto ignore after yes", []ActionResult{ActionYes, ActionAutoIgnore}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := openTestStore(t)
			appendHistory(t, s, "U1", tt.history)

			got, err := s.ConsecutiveNoCount("U1")
			if err != nil {
				t.Fatalf("ConsecutiveNoCount: %v", err)
			}
			if got != tt.want {
				t.Errorf("streak = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestConsecutiveNoCountScopedToUser(t *testing.T) {
	s := openTestStore(t)
	appendHistory(t, s, "U1", []ActionResult{ActionNo, ActionNo})
	appendHistory(t, s, "U2", []ActionResult{ActionYes})

	got, err := s.ConsecutiveNoCount("U1")
	if err != nil {
		t.Fatalf("ConsecutiveNoCount: %v", err)
	}
	if got != 2 {
		t.Errorf("streak = %d, want 2 (other users must not interleave)", got)
	}
}

func TestConsecutiveNoCountIgnoresPlanEvents(t *testing.T) {
	s := openTestStore(t)
	appendHistory(t, s, "U1", []ActionResult{ActionNo})

	plan := mustCreateSchedule(t, s, "U1", EventPlan, time.Now())
	if err := s.AppendAction(plan.ID, ActionYes, ""); err != nil {
		t.Fatalf("AppendAction: %v", err)
	}

	got, err := s.ConsecutiveNoCount("U1")
	if err != nil {
		t.Fatalf("ConsecutiveNoCount: %v", err)
	}
	if got != 1 {
		t.Errorf("streak = %d, want 1 (plan-event log rows are out of scope)", got)
	}
}

func TestDailyStatsFor(t *testing.T) {
	s := openTestStore(t)
	appendHistory(t, s, "U1", []ActionResult{ActionYes, ActionNo, ActionNo, ActionAutoIgnore})

	stats, err := s.DailyStatsFor("U1", time.Now())
	if err != nil {
		t.Fatalf("DailyStatsFor: %v", err)
	}
	if stats.YesCount != 1 || stats.NoCount != 2 || stats.AutoIgnoreCount != 1 {
		t.Errorf("stats = %+v, want 1/2/1", stats)
	}

	yesterday, err := s.DailyStatsFor("U1", time.Now().Add(-48*time.Hour))
	if err != nil {
		t.Fatalf("DailyStatsFor(yesterday): %v", err)
	}
	if yesterday != (DailyStats{}) {
		t.Errorf("stats for a day with no activity = %+v, want zero", yesterday)
	}
}
