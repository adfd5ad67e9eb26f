package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AppendAction records a user outcome for a schedule. The log is
// insert-only. The append is rejected with ErrDuplicateAction when
// idemKey is non-empty and was already recorded, or when the schedule
// already has a YES/NO decision (at most one per schedule, enforced by
// a unique index).
func (s *Store) AppendAction(scheduleID string, result ActionResult, idemKey string) error {
	var key any
	if idemKey != "" {
		key = idemKey
	}
	_, err := s.db.Exec(`
		INSERT INTO action_logs (id, schedule_id, result, idempotency_key, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		uuid.New().String(), scheduleID, result, key, fmtTime(time.Now()))
	if isUniqueViolation(err) {
		return ErrDuplicateAction
	}
	return err
}

// Decision returns the YES or NO recorded for a schedule, if any. The
// unique decision index guarantees at most one exists.
func (s *Store) Decision(scheduleID string) (ActionResult, bool, error) {
	var result ActionResult
	err := s.db.QueryRow(`
		SELECT result FROM action_logs
		WHERE schedule_id = ? AND result IN ('YES', 'NO')
		LIMIT 1`, scheduleID).Scan(&result)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return result, true, nil
}

// HasAction reports whether the schedule already has a log entry with
// the given result.
func (s *Store) HasAction(scheduleID string, result ActionResult) (bool, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM action_logs WHERE schedule_id = ? AND result = ?`,
		scheduleID, result).Scan(&count)
	return count > 0, err
}

// ConsecutiveNoCount walks the user's remind-event log newest-first and
// counts NO entries until the first YES or the start of the log.
// AUTO_IGNORE entries are skipped: a non-response neither extends nor
// breaks a decline streak. Derived from the log on every call; there is
// no cached counter to drift.
func (s *Store) ConsecutiveNoCount(userID string) (int, error) {
	rows, err := s.db.Query(`
		SELECT a.result FROM action_logs a
		JOIN schedules sc ON sc.id = a.schedule_id
		WHERE sc.user_id = ? AND sc.event_type = 'remind'
		ORDER BY a.created_at DESC, a.id DESC`, userID)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	streak := 0
	for rows.Next() {
		var result ActionResult
		if err := rows.Scan(&result); err != nil {
			return 0, err
		}
		switch result {
		case ActionNo:
			streak++
		case ActionYes:
			return streak, rows.Err()
		}
	}
	return streak, rows.Err()
}

// LogsForSchedule returns a schedule's log entries, oldest first.
func (s *Store) LogsForSchedule(scheduleID string) ([]ActionLog, error) {
	rows, err := s.db.Query(`
		SELECT id, schedule_id, result, idempotency_key, created_at FROM action_logs
		WHERE schedule_id = ?
		ORDER BY created_at ASC, id ASC`, scheduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ActionLog
	for rows.Next() {
		var a ActionLog
		var key sql.NullString
		var createdAt string
		if err := rows.Scan(&a.ID, &a.ScheduleID, &a.Result, &key, &createdAt); err != nil {
			return nil, err
		}
		a.IdempotencyKey = key.String
		if a.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at for action %s: %w", a.ID, err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

// DailyStatsFor summarizes a user's outcomes for the calendar day
// containing the given time (UTC day boundaries).
func (s *Store) DailyStatsFor(userID string, day time.Time) (DailyStats, error) {
	start := time.Date(day.UTC().Year(), day.UTC().Month(), day.UTC().Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	rows, err := s.db.Query(`
		SELECT a.result, COUNT(*) FROM action_logs a
		JOIN schedules sc ON sc.id = a.schedule_id
		WHERE sc.user_id = ? AND a.created_at >= ? AND a.created_at < ?
		GROUP BY a.result`, userID, fmtTime(start), fmtTime(end))
	if err != nil {
		return DailyStats{}, err
	}
	defer rows.Close()

	var stats DailyStats
	for rows.Next() {
		var result ActionResult
		var count int
		if err := rows.Scan(&result, &count); err != nil {
			return DailyStats{}, err
		}
		switch result {
		case ActionYes:
			stats.YesCount = count
		case ActionNo:
			stats.NoCount = count
		case ActionAutoIgnore:
			stats.AutoIgnoreCount = count
		}
	}
	return stats, rows.Err()
}
