package storage

import (
	"database/sql"
	"fmt"
	"regexp"
	"time"
)

var timeOfDayRe = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// CreateCommitment stores a daily commitment (task + HH:MM wall-clock
// time) for a user.
func (s *Store) CreateCommitment(c Commitment) error {
	if !timeOfDayRe.MatchString(c.Time) {
		return fmt.Errorf("commitment time must be HH:MM, got %q", c.Time)
	}
	now := fmtTime(time.Now())
	_, err := s.db.Exec(`
		INSERT INTO commitments (id, user_id, time, task, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.Time, c.Task, boolToInt(c.Active), now, now)
	return err
}

// ActiveCommitments returns the user's active commitments ordered by
// time of day.
func (s *Store) ActiveCommitments(userID string) ([]Commitment, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, time, task, active, created_at, updated_at FROM commitments
		WHERE user_id = ? AND active = 1
		ORDER BY time ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectCommitments(rows)
}

// CommittedUsers returns the distinct user IDs with at least one active
// commitment. The renewal pass iterates these.
func (s *Store) CommittedUsers() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT user_id FROM commitments WHERE active = 1 ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// DeactivateCommitment retires a commitment without deleting its history.
func (s *Store) DeactivateCommitment(id string) error {
	res, err := s.db.Exec(`UPDATE commitments SET active = 0, updated_at = ? WHERE id = ? AND active = 1`,
		fmtTime(time.Now()), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func collectCommitments(rows *sql.Rows) ([]Commitment, error) {
	var result []Commitment
	for rows.Next() {
		var c Commitment
		var active int
		var createdAt, updatedAt string
		if err := rows.Scan(&c.ID, &c.UserID, &c.Time, &c.Task, &active, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		c.Active = active == 1
		var err error
		if c.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
