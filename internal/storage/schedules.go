package storage

import (
	"database/sql"
	"fmt"
	"time"
)

const scheduleColumns = `id, user_id, event_type, run_at, state, thread_ts, comment, retry_count, created_at, updated_at`

func scanSchedule(row interface{ Scan(...any) error }) (Schedule, error) {
	var sc Schedule
	var runAt, createdAt, updatedAt string
	err := row.Scan(&sc.ID, &sc.UserID, &sc.EventType, &runAt, &sc.State,
		&sc.ThreadTS, &sc.Comment, &sc.RetryCount, &createdAt, &updatedAt)
	if err != nil {
		return Schedule{}, err
	}
	if sc.RunAt, err = parseTime(runAt); err != nil {
		return Schedule{}, fmt.Errorf("parsing run_at for schedule %s: %w", sc.ID, err)
	}
	if sc.CreatedAt, err = parseTime(createdAt); err != nil {
		return Schedule{}, fmt.Errorf("parsing created_at for schedule %s: %w", sc.ID, err)
	}
	if sc.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return Schedule{}, fmt.Errorf("parsing updated_at for schedule %s: %w", sc.ID, err)
	}
	return sc, nil
}

// CreateSchedule inserts a new schedule row in the pending state.
// A second non-terminal plan row for the same user and calendar day is
// rejected with ErrDuplicatePlan; the uniqueness is enforced by the
// store, not by a read-then-write check.
func (s *Store) CreateSchedule(sc Schedule) error {
	now := fmtTime(time.Now())
	state := sc.State
	if state == "" {
		state = StatePending
	}
	_, err := s.db.Exec(`
		INSERT INTO schedules (id, user_id, event_type, run_at, run_day, state, thread_ts, comment, retry_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sc.ID, sc.UserID, sc.EventType, fmtTime(sc.RunAt), runDay(sc.RunAt),
		state, sc.ThreadTS, sc.Comment, sc.RetryCount, now, now,
	)
	if isUniqueViolation(err) {
		return ErrDuplicatePlan
	}
	return err
}

// GetSchedule returns a single schedule by ID.
func (s *Store) GetSchedule(id string) (Schedule, error) {
	row := s.db.QueryRow(`SELECT `+scheduleColumns+` FROM schedules WHERE id = ?`, id)
	sc, err := scanSchedule(row)
	if err == sql.ErrNoRows {
		return Schedule{}, ErrNotFound
	}
	return sc, err
}

// ClaimDue claims one due pending schedule of the given type, moving it
// to processing. The transition is a conditional update: it succeeds only
// if the row is still pending, so concurrent claimers (overlapping ticks,
// multiple driver instances) resolve to exactly one winner. Returns nil
// when nothing is due or the race was lost.
func (s *Store) ClaimDue(eventType EventType, now time.Time) (*Schedule, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning claim transaction: %w", err)
	}

	row := tx.QueryRow(`
		SELECT `+scheduleColumns+` FROM schedules
		WHERE state = 'pending' AND event_type = ? AND run_at <= ?
		ORDER BY run_at ASC, created_at ASC
		LIMIT 1`, eventType, fmtTime(now))
	sc, err := scanSchedule(row)
	if err == sql.ErrNoRows {
		tx.Rollback()
		return nil, nil
	}
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("selecting due schedule: %w", err)
	}

	res, err := tx.Exec(`UPDATE schedules SET state = 'processing', updated_at = ? WHERE id = ? AND state = 'pending'`,
		fmtTime(now), sc.ID)
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("claiming schedule %s: %w", sc.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("checking claimed rows: %w", err)
	}
	if n != 1 {
		tx.Rollback()
		return nil, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing claim: %w", err)
	}
	sc.State = StateProcessing
	return &sc, nil
}

// Finalize moves a schedule from an expected state to a new one.
// Returns false (without error) when the row is no longer in the
// expected state, so a slow caller never clobbers a result another path
// already set.
func (s *Store) Finalize(id string, expected, next State) (bool, error) {
	res, err := s.db.Exec(`UPDATE schedules SET state = ?, updated_at = ? WHERE id = ? AND state = ?`,
		next, fmtTime(time.Now()), id, expected)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Requeue parks a processing schedule back to pending with a new run
// time and retry count. Conditional on the row still being processing.
func (s *Store) Requeue(id string, runAt time.Time, retryCount int) (bool, error) {
	res, err := s.db.Exec(`
		UPDATE schedules SET state = 'pending', run_at = ?, run_day = ?, retry_count = ?, updated_at = ?
		WHERE id = ? AND state = 'processing'`,
		fmtTime(runAt), runDay(runAt), retryCount, fmtTime(time.Now()), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// SetThreadTS records the chat thread handle once the prompt is posted.
func (s *Store) SetThreadTS(id, ts string) error {
	res, err := s.db.Exec(`UPDATE schedules SET thread_ts = ?, updated_at = ? WHERE id = ?`,
		ts, fmtTime(time.Now()), id)
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

// OverdueProcessing returns processing rows of the given type whose run
// time is at or before the cutoff, oldest first. These are the rows the
// ignore pass escalates; a row stranded by a crashed handler surfaces
// here too.
func (s *Store) OverdueProcessing(eventType EventType, cutoff time.Time) ([]Schedule, error) {
	rows, err := s.db.Query(`
		SELECT `+scheduleColumns+` FROM schedules
		WHERE state = 'processing' AND event_type = ? AND run_at <= ?
		ORDER BY run_at ASC`, eventType, fmtTime(cutoff))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Schedule
	for rows.Next() {
		sc, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, sc)
	}
	return result, rows.Err()
}

// StalledProcessing returns processing rows of the given type whose
// last state transition happened at or before the cutoff, oldest first.
// Unlike OverdueProcessing this keys on updated_at, so a row another
// instance claimed moments ago does not count as stalled no matter how
// old its run time is.
func (s *Store) StalledProcessing(eventType EventType, cutoff time.Time) ([]Schedule, error) {
	rows, err := s.db.Query(`
		SELECT `+scheduleColumns+` FROM schedules
		WHERE state = 'processing' AND event_type = ? AND updated_at <= ?
		ORDER BY run_at ASC`, eventType, fmtTime(cutoff))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Schedule
	for rows.Next() {
		sc, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, sc)
	}
	return result, rows.Err()
}

// HasUpcoming reports whether a non-terminal schedule of the given type
// exists for the user with run_at strictly after the given time.
func (s *Store) HasUpcoming(userID string, eventType EventType, after time.Time) (bool, error) {
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM schedules
		WHERE user_id = ? AND event_type = ? AND run_at > ? AND state IN ('pending', 'processing')`,
		userID, eventType, fmtTime(after)).Scan(&count)
	return count > 0, err
}

// HasScheduleAt reports whether any schedule of the given type exists
// for the user at exactly that run time, in any state. The plan handler
// uses this to seed the day's reminders without doubling them on retry.
func (s *Store) HasScheduleAt(userID string, eventType EventType, runAt time.Time) (bool, error) {
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM schedules
		WHERE user_id = ? AND event_type = ? AND run_at = ?`,
		userID, eventType, fmtTime(runAt)).Scan(&count)
	return count > 0, err
}

// ListSchedules returns schedules filtered by state (all states when
// empty), newest run time first.
func (s *Store) ListSchedules(state State, limit int) ([]Schedule, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + scheduleColumns + ` FROM schedules`
	args := []any{}
	if state != "" {
		query += ` WHERE state = ?`
		args = append(args, state)
	}
	query += ` ORDER BY run_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Schedule
	for rows.Next() {
		sc, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, sc)
	}
	return result, rows.Err()
}
