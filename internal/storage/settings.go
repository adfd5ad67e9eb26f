package storage

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// GetSetting returns one runtime setting. A missing key is ErrNotFound;
// callers treat that as misconfiguration, never as a default.
func (s *Store) GetSetting(key string) (Setting, error) {
	var st Setting
	var minVal, maxVal sql.NullInt64
	var updatedAt string
	err := s.db.QueryRow(`
		SELECT key, value, value_type, description, min_value, max_value, updated_at
		FROM settings WHERE key = ?`, key).
		Scan(&st.Key, &st.Value, &st.ValueType, &st.Description, &minVal, &maxVal, &updatedAt)
	if err == sql.ErrNoRows {
		return Setting{}, ErrNotFound
	}
	if err != nil {
		return Setting{}, err
	}
	if minVal.Valid {
		v := int(minVal.Int64)
		st.MinValue = &v
	}
	if maxVal.Valid {
		v := int(maxVal.Int64)
		st.MaxValue = &v
	}
	// Seeded rows carry CURRENT_TIMESTAMP, later writes RFC3339; accept both.
	if t, perr := parseTime(updatedAt); perr == nil {
		st.UpdatedAt = t
	} else if t, perr := time.Parse("2006-01-02 15:04:05", updatedAt); perr == nil {
		st.UpdatedAt = t
	}
	return st, nil
}

// ListSettings returns all settings ordered by key.
func (s *Store) ListSettings() ([]Setting, error) {
	rows, err := s.db.Query(`SELECT key FROM settings ORDER BY key ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := make([]Setting, 0, len(keys))
	for _, k := range keys {
		st, err := s.GetSetting(k)
		if err != nil {
			return nil, err
		}
		result = append(result, st)
	}
	return result, nil
}

// UpdateSetting validates the new value against the setting's declared
// type and range, writes it, and appends an audit row. Unknown keys are
// ErrNotFound; new keys are introduced by migration, not at runtime.
func (s *Store) UpdateSetting(key, value, changedBy string) error {
	st, err := s.GetSetting(key)
	if err != nil {
		return err
	}
	if err := validateSettingValue(st, value); err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning settings transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE settings SET value = ?, updated_at = ? WHERE key = ?`,
		value, fmtTime(time.Now()), key); err != nil {
		return err
	}
	if _, err := tx.Exec(`
		INSERT INTO settings_audit (id, key, old_value, new_value, changed_by, changed_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), key, st.Value, value, changedBy, fmtTime(time.Now())); err != nil {
		return err
	}
	return tx.Commit()
}

func validateSettingValue(st Setting, value string) error {
	switch st.ValueType {
	case "int":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("setting %s requires an integer, got %q", st.Key, value)
		}
		if st.MinValue != nil && n < *st.MinValue {
			return fmt.Errorf("setting %s must be >= %d", st.Key, *st.MinValue)
		}
		if st.MaxValue != nil && n > *st.MaxValue {
			return fmt.Errorf("setting %s must be <= %d", st.Key, *st.MaxValue)
		}
	case "bool":
		if _, err := strconv.ParseBool(value); err != nil {
			return fmt.Errorf("setting %s requires a boolean, got %q", st.Key, value)
		}
	}
	return nil
}

// SettingAudits returns the audit trail for a key, newest first.
func (s *Store) SettingAudits(key string, limit int) ([]SettingAudit, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`
		SELECT id, key, old_value, new_value, changed_by, changed_at FROM settings_audit
		WHERE key = ?
		ORDER BY changed_at DESC
		LIMIT ?`, key, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []SettingAudit
	for rows.Next() {
		var a SettingAudit
		var changedAt string
		if err := rows.Scan(&a.ID, &a.Key, &a.OldValue, &a.NewValue, &a.ChangedBy, &changedAt); err != nil {
			return nil, err
		}
		if a.ChangedAt, err = parseTime(changedAt); err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}
