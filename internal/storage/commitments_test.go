package storage

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func mustCreateCommitment(t *testing.T, s *Store, userID, timeOfDay, task string) Commitment {
	t.Helper()
	c := Commitment{
		ID:     uuid.New().String(),
		UserID: userID,
		Time:   timeOfDay,
		Task:   task,
		Active: true,
	}
	if err := s.CreateCommitment(c); err != nil {
		t.Fatalf("CreateCommitment: %v", err)
	}
	return c
}

func TestCreateCommitmentValidatesTime(t *testing.T) {
	s := openTestStore(t)

	for _, bad := range []string{"", "7:00", "24:00", "12:60", "noon", "12:00:00"} {
		err := s.CreateCommitment(Commitment{ID: uuid.New().String(), UserID: "U1", Time: bad, Task: "x", Active: true})
		if err == nil {
			t.Errorf("time %q accepted, want rejection", bad)
		}
	}
	mustCreateCommitment(t, s, "U1", "00:00", "midnight check")
	mustCreateCommitment(t, s, "U1", "23:59", "day close")
}

func TestActiveCommitmentsOrderedByTime(t *testing.T) {
	s := openTestStore(t)
	mustCreateCommitment(t, s, "U1", "18:00", "gym")
	mustCreateCommitment(t, s, "U1", "07:30", "run")
	mustCreateCommitment(t, s, "U2", "09:00", "other user")

	list, err := s.ActiveCommitments("U1")
	if err != nil {
		t.Fatalf("ActiveCommitments: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("got %d commitments, want 2", len(list))
	}
	if list[0].Time != "07:30" || list[1].Time != "18:00" {
		t.Errorf("order = [%s, %s], want earliest first", list[0].Time, list[1].Time)
	}
}

func TestDeactivateCommitment(t *testing.T) {
	s := openTestStore(t)
	c := mustCreateCommitment(t, s, "U1", "07:30", "run")

	if err := s.DeactivateCommitment(c.ID); err != nil {
		t.Fatalf("DeactivateCommitment: %v", err)
	}

	list, err := s.ActiveCommitments("U1")
	if err != nil {
		t.Fatalf("ActiveCommitments: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("got %d active commitments after deactivation, want 0", len(list))
	}

	// Second deactivation and unknown IDs report not found.
	if err := s.DeactivateCommitment(c.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("repeat deactivation err = %v, want ErrNotFound", err)
	}
	if err := s.DeactivateCommitment("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown id err = %v, want ErrNotFound", err)
	}
}

func TestCommittedUsers(t *testing.T) {
	s := openTestStore(t)

	users, err := s.CommittedUsers()
	if err != nil {
		t.Fatalf("CommittedUsers: %v", err)
	}
	if len(users) != 0 {
		t.Fatalf("got %v, want no users", users)
	}

	mustCreateCommitment(t, s, "U1", "07:30", "run")
	mustCreateCommitment(t, s, "U1", "18:00", "gym")
	retired := mustCreateCommitment(t, s, "U2", "09:00", "read")
	if err := s.DeactivateCommitment(retired.ID); err != nil {
		t.Fatalf("DeactivateCommitment: %v", err)
	}

	users, err = s.CommittedUsers()
	if err != nil {
		t.Fatalf("CommittedUsers: %v", err)
	}
	if len(users) != 1 || users[0] != "U1" {
		t.Errorf("users = %v, want [U1]", users)
	}
}
