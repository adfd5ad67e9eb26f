package storage

import (
	"time"

	"github.com/google/uuid"
)

// TryRegisterPunishment inserts a punishment record for one escalation
// step. Returns true iff this call inserted the row; false means the
// exact (schedule, mode, step) was already registered by another pass,
// and the caller must not deliver a stimulus for it. This is the
// delivery idempotency mechanism: act only if nobody else already acted
// for this step.
func (s *Store) TryRegisterPunishment(scheduleID string, mode PunishmentMode, step int) (bool, error) {
	res, err := s.db.Exec(`
		INSERT OR IGNORE INTO punishments (id, schedule_id, mode, step, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		uuid.New().String(), scheduleID, mode, step, fmtTime(time.Now()))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// CountPunishableToday counts today's ledger rows for the user that
// correspond to zap deliveries: every NO-mode punishment plus ignore
// punishments from step 2 on (step 1 is a vibe). Used for the daily
// zap cap. Day boundaries are UTC.
func (s *Store) CountPunishableToday(userID string, now time.Time) (int, error) {
	start := time.Date(now.UTC().Year(), now.UTC().Month(), now.UTC().Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM punishments p
		JOIN schedules sc ON sc.id = p.schedule_id
		WHERE sc.user_id = ?
		  AND p.created_at >= ? AND p.created_at < ?
		  AND (p.mode = 'no' OR (p.mode = 'ignore' AND p.step >= 2))`,
		userID, fmtTime(start), fmtTime(end)).Scan(&count)
	return count, err
}

// PunishmentsForSchedule returns the ledger rows for one schedule,
// oldest first.
func (s *Store) PunishmentsForSchedule(scheduleID string) ([]Punishment, error) {
	rows, err := s.db.Query(`
		SELECT id, schedule_id, mode, step, created_at FROM punishments
		WHERE schedule_id = ?
		ORDER BY created_at ASC, step ASC`, scheduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Punishment
	for rows.Next() {
		var p Punishment
		var createdAt string
		if err := rows.Scan(&p.ID, &p.ScheduleID, &p.Mode, &p.Step, &createdAt); err != nil {
			return nil, err
		}
		if p.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}
