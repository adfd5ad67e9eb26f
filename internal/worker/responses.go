package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/onicoach/oni/internal/escalate"
	"github.com/onicoach/oni/internal/settings"
	"github.com/onicoach/oni/internal/slack"
	"github.com/onicoach/oni/internal/storage"
)

// Outcome of handling one user response.
type Outcome string

const (
	OutcomeRecorded       Outcome = "recorded"
	OutcomeDuplicate      Outcome = "duplicate"
	OutcomeAlreadyHandled Outcome = "already_handled"
)

// HandleResponse processes one YES/NO interaction delivered by the chat
// transport. First response wins: once a decision exists for the
// schedule, later decisions are absorbed without state changes.
// Redelivery of the same interaction is absorbed by the idempotency key.
func (w *Worker) HandleResponse(ctx context.Context, scheduleID string, result storage.ActionResult, idemKey string) (Outcome, error) {
	if result != storage.ActionYes && result != storage.ActionNo {
		return "", fmt.Errorf("invalid response result %q", result)
	}

	sc, err := w.store.GetSchedule(scheduleID)
	if err != nil {
		return "", err
	}
	if sc.State.Terminal() {
		return OutcomeAlreadyHandled, nil
	}
	// Fast path only. The unique decision index on the log is what
	// actually closes the race between overlapping intakes.
	if _, decided, err := w.store.Decision(sc.ID); err != nil {
		return "", fmt.Errorf("checking decision: %w", err)
	} else if decided {
		return OutcomeDuplicate, nil
	}

	err = w.store.AppendAction(sc.ID, result, idemKey)
	if errors.Is(err, storage.ErrDuplicateAction) {
		return OutcomeDuplicate, nil
	}
	if err != nil {
		return "", fmt.Errorf("appending action: %w", err)
	}

	// The prompt was posted, so the row is processing; a false CAS here
	// means an overlapping path already moved it and is not an error.
	if _, err := w.store.Finalize(sc.ID, storage.StateProcessing, storage.StateDone); err != nil {
		return "", fmt.Errorf("finalizing schedule: %w", err)
	}

	ack := "Logged. Well done."
	if result == storage.ActionNo {
		ack = "Logged. Consequences follow."
		if err := w.punishNoStreak(ctx, sc); err != nil {
			return "", err
		}
	}

	if sc.ThreadTS != "" {
		if _, err := w.chat.PostMessage(ctx, slack.ThreadReply(w.cfg.Channel, sc.ThreadTS, ack)); err != nil {
			w.logger.Warn("response ack failed", "schedule_id", sc.ID, "error", err)
		}
	}
	return OutcomeRecorded, nil
}

// punishNoStreak delivers the NO-mode stimulus scaled by the user's
// consecutive decline streak, gated by the pause flag, the daily cap,
// and the per-step dedup ledger.
func (w *Worker) punishNoStreak(ctx context.Context, sc storage.Schedule) error {
	paused, err := w.settings.Bool(settings.KeyPunishmentPaused)
	if err != nil {
		return fmt.Errorf("reading %s: %w", settings.KeyPunishmentPaused, err)
	}
	if paused {
		return nil
	}

	streak, err := w.store.ConsecutiveNoCount(sc.UserID)
	if err != nil {
		return fmt.Errorf("computing NO streak: %w", err)
	}
	if streak < 1 {
		return nil
	}

	kindStr, err := w.settings.String(settings.KeyPunishmentType)
	if err != nil {
		return fmt.Errorf("reading %s: %w", settings.KeyPunishmentType, err)
	}
	kind := escalate.Kind(kindStr)
	if !kind.Valid() {
		return fmt.Errorf("configured punishment type %q is not a valid stimulus kind", kindStr)
	}

	capped, err := w.zapCapReached(sc.UserID, w.now())
	if err != nil {
		return err
	}
	if capped {
		w.logger.Info("daily zap cap reached, skipping NO punishment",
			"schedule_id", sc.ID, "streak", streak)
		return nil
	}

	registered, err := w.store.TryRegisterPunishment(sc.ID, storage.ModeNo, streak)
	if err != nil {
		return fmt.Errorf("registering NO punishment: %w", err)
	}
	if !registered {
		return nil
	}

	w.deliver(ctx, sc, escalate.ForNoStreak(streak, kind), "no", streak)
	return nil
}

func newID() string {
	return uuid.New().String()
}
