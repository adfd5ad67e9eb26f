package storage

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mustCreateSchedule(t *testing.T, s *Store, userID string, eventType EventType, runAt time.Time) Schedule {
	t.Helper()
	sc := Schedule{
		ID:        uuid.New().String(),
		UserID:    userID,
		EventType: eventType,
		RunAt:     runAt,
	}
	if err := s.CreateSchedule(sc); err != nil {
		t.Fatalf("CreateSchedule: %v", err)
	}
	return sc
}

// TestMigrationsIdempotent runs Open twice on the same database and
// verifies migrations are not re-applied.
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

// TestMigrationsOrdered verifies migrations are applied in ascending numeric order.
func TestMigrationsOrdered(t *testing.T) {
	s := openTestStore(t)

	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(versions) == 0 {
		t.Fatal("expected at least one applied migration")
	}
	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Errorf("migrations not in ascending order: %v", versions)
			break
		}
	}
}

// TestIndexesExist verifies the claim and dedup indexes are created.
func TestIndexesExist(t *testing.T) {
	s := openTestStore(t)

	indexes := []string{"idx_schedules_state_run_at", "uix_plan_active_per_day", "idx_action_logs_schedule", "uix_action_logs_decision", "idx_punishments_created"}
	for _, idx := range indexes {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&count)
		if err != nil {
			t.Fatalf("querying sqlite_master for %q: %v", idx, err)
		}
		if count != 1 {
			t.Errorf("index %q not found in sqlite_master", idx)
		}
	}
}

func TestSettingsSeeded(t *testing.T) {
	s := openTestStore(t)

	for _, key := range []string{
		"IGNORE_INTERVAL", "IGNORE_MAX_RETRY", "MAX_RETRY", "RETRY_DELAY",
		"LIMIT_DAY_ZAP_COUNT", "PUNISHMENT_TYPE", "PUNISHMENT_MAX_VALUE",
		"PUNISHMENT_PAUSED", "PLAN_TIME",
	} {
		if _, err := s.GetSetting(key); err != nil {
			t.Errorf("seeded setting %s: %v", key, err)
		}
	}
}

// TestTimeOrderWithinSecond verifies that rows inserted inside the same
// wall-clock second still sort in insertion order by their stored
// timestamps.
func TestTimeOrderWithinSecond(t *testing.T) {
	base := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	var prev string
	for i := 0; i < 5; i++ {
		cur := fmtTime(base.Add(time.Duration(i) * time.Millisecond))
		if prev != "" && !(cur > prev) {
			t.Fatalf("timestamp %q does not sort after %q", cur, prev)
		}
		prev = cur
	}
}

func TestParseFormattedTimeRoundTrip(t *testing.T) {
	for _, in := range []time.Time{
		time.Date(2026, 8, 24, 7, 0, 0, 0, time.UTC),
		time.Date(2026, 8, 24, 7, 0, 0, 123456789, time.UTC),
	} {
		got, err := parseTime(fmtTime(in))
		if err != nil {
			t.Fatalf("parseTime(%q): %v", fmtTime(in), err)
		}
		if !got.Equal(in) {
			t.Errorf("round-trip mismatch: %v != %v", got, in)
		}
	}
}

func TestRunDay(t *testing.T) {
	loc := time.FixedZone("plus5", 5*3600)
	// 02:30 +05:00 is the previous day in UTC.
	tm := time.Date(2026, 8, 24, 2, 30, 0, 0, loc)
	if got := runDay(tm); got != "2026-08-23" {
		t.Errorf("runDay = %q, want 2026-08-23", got)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if isUniqueViolation(nil) {
		t.Error("nil error is not a unique violation")
	}
	if !isUniqueViolation(fmt.Errorf("constraint failed: UNIQUE constraint failed: schedules.id")) {
		t.Error("expected unique violation to be detected")
	}
}
