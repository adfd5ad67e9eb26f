package storage

import (
	"testing"
	"time"
)

func TestTryRegisterPunishmentIdempotent(t *testing.T) {
	s := openTestStore(t)
	sc := mustCreateSchedule(t, s, "U1", EventRemind, time.Now())

	registered, err := s.TryRegisterPunishment(sc.ID, ModeIgnore, 2)
	if err != nil {
		t.Fatalf("TryRegisterPunishment: %v", err)
	}
	if !registered {
		t.Fatal("first registration should insert")
	}

	registered, err = s.TryRegisterPunishment(sc.ID, ModeIgnore, 2)
	if err != nil {
		t.Fatalf("second TryRegisterPunishment: %v", err)
	}
	if registered {
		t.Fatal("second registration for the same step should be a no-op")
	}

	// A different step or mode is its own slot.
	if ok, err := s.TryRegisterPunishment(sc.ID, ModeIgnore, 3); err != nil || !ok {
		t.Fatalf("step 3 registration = (%v, %v), want true", ok, err)
	}
	if ok, err := s.TryRegisterPunishment(sc.ID, ModeNo, 2); err != nil || !ok {
		t.Fatalf("no-mode registration = (%v, %v), want true", ok, err)
	}

	rows, err := s.PunishmentsForSchedule(sc.ID)
	if err != nil {
		t.Fatalf("PunishmentsForSchedule: %v", err)
	}
	if len(rows) != 3 {
		t.Errorf("ledger has %d rows, want 3", len(rows))
	}
}

func TestCountPunishableToday(t *testing.T) {
	s := openTestStore(t)
	sc := mustCreateSchedule(t, s, "U1", EventRemind, time.Now())
	other := mustCreateSchedule(t, s, "U2", EventRemind, time.Now())

	// step 1 ignore is a vibe and must not count toward the zap cap.
	for _, reg := range []struct {
		id   string
		mode PunishmentMode
		step int
	}{
		{sc.ID, ModeIgnore, 1},
		{sc.ID, ModeIgnore, 2},
		{sc.ID, ModeIgnore, 3},
		{sc.ID, ModeNo, 1},
		{other.ID, ModeNo, 1},
	} {
		if ok, err := s.TryRegisterPunishment(reg.id, reg.mode, reg.step); err != nil || !ok {
			t.Fatalf("registering %+v = (%v, %v)", reg, ok, err)
		}
	}

	count, err := s.CountPunishableToday("U1", time.Now())
	if err != nil {
		t.Fatalf("CountPunishableToday: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3 (ignore steps >= 2 plus NO-mode, this user only)", count)
	}
}

func TestCountPunishableTodayExcludesOtherDays(t *testing.T) {
	s := openTestStore(t)
	sc := mustCreateSchedule(t, s, "U1", EventRemind, time.Now())

	if ok, err := s.TryRegisterPunishment(sc.ID, ModeNo, 1); err != nil || !ok {
		t.Fatalf("registering = (%v, %v)", ok, err)
	}
	if _, err := s.db.Exec(`UPDATE punishments SET created_at = ? WHERE schedule_id = ?`,
		fmtTime(time.Now().Add(-48*time.Hour)), sc.ID); err != nil {
		t.Fatalf("backdating: %v", err)
	}

	count, err := s.CountPunishableToday("U1", time.Now())
	if err != nil {
		t.Fatalf("CountPunishableToday: %v", err)
	}
	if count != 0 {
		t.Errorf("count = %d, want 0 for a punishment two days ago", count)
	}
}
