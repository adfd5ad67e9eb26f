package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicatePlan is returned when a second non-terminal plan schedule
// would exist for the same user and calendar day.
var ErrDuplicatePlan = errors.New("active plan already exists for that day")

// ErrDuplicateAction is returned when an action log append reuses an
// idempotency key that was already recorded, or would record a second
// YES/NO decision for the same schedule.
var ErrDuplicateAction = errors.New("action already recorded")

// EventType distinguishes the two scheduled event kinds.
type EventType string

const (
	EventPlan   EventType = "plan"
	EventRemind EventType = "remind"
)

// State is a schedule lifecycle state. Pending and Processing are the
// only non-terminal states.
type State string

const (
	StatePending    State = "pending"
	StateProcessing State = "processing"
	StateDone       State = "done"
	StateSkipped    State = "skipped"
	StateFailed     State = "failed"
	StateCanceled   State = "canceled"
)

// Terminal reports whether s is a terminal state.
func (s State) Terminal() bool {
	return s != StatePending && s != StateProcessing
}

// ActionResult is a recorded user outcome for a schedule.
type ActionResult string

const (
	ActionYes        ActionResult = "YES"
	ActionNo         ActionResult = "NO"
	ActionAutoIgnore ActionResult = "AUTO_IGNORE"
)

// PunishmentMode identifies which escalation path produced a punishment.
type PunishmentMode string

const (
	ModeIgnore PunishmentMode = "ignore"
	ModeNo     PunishmentMode = "no"
)

type Schedule struct {
	ID         string
	UserID     string
	EventType  EventType
	RunAt      time.Time
	State      State
	ThreadTS   string
	Comment    string
	RetryCount int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type ActionLog struct {
	ID             string
	ScheduleID     string
	Result         ActionResult
	IdempotencyKey string
	CreatedAt      time.Time
}

type Punishment struct {
	ID         string
	ScheduleID string
	Mode       PunishmentMode
	Step       int
	CreatedAt  time.Time
}

type Setting struct {
	Key         string
	Value       string
	ValueType   string // "int", "bool", "str"
	Description string
	MinValue    *int
	MaxValue    *int
	UpdatedAt   time.Time
}

type SettingAudit struct {
	ID        string
	Key       string
	OldValue  string
	NewValue  string
	ChangedBy string
	ChangedAt time.Time
}

type Commitment struct {
	ID        string
	UserID    string
	Time      string // HH:MM, local wall clock
	Task      string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DailyStats summarizes one user's recorded outcomes for one day.
type DailyStats struct {
	YesCount        int
	NoCount         int
	AutoIgnoreCount int
}
