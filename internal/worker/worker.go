// Package worker runs the punishment scheduling loop: claiming due
// events, escalating ignored prompts, and renewing the daily plan
// cycle. All cross-tick coordination goes through the store's
// conditional updates and the punishment ledger's unique insert; the
// loop holds no lock that outlives a tick.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/onicoach/oni/internal/escalate"
	"github.com/onicoach/oni/internal/pavlok"
	"github.com/onicoach/oni/internal/settings"
	"github.com/onicoach/oni/internal/slack"
	"github.com/onicoach/oni/internal/storage"
)

// ChatClient posts user-facing messages and returns thread handles.
type ChatClient interface {
	PostMessage(ctx context.Context, msg slack.Message) (string, error)
}

// DeviceClient delivers one stimulus to the user's device.
type DeviceClient interface {
	Deliver(ctx context.Context, kind escalate.Kind, value int) error
}

// Config carries the worker's static wiring.
type Config struct {
	Channel         string
	OperatorChannel string
	Interval        time.Duration
}

// Worker drives the periodic scheduling passes.
type Worker struct {
	store    *storage.Store
	settings *settings.Cache
	chat     ChatClient
	device   DeviceClient
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Worker. A non-positive interval defaults to one minute.
func New(store *storage.Store, cache *settings.Cache, chat ChatClient, device DeviceClient, cfg Config) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	return &Worker{
		store:    store,
		settings: cache,
		chat:     chat,
		device:   device,
		cfg:      cfg,
		logger:   slog.Default(),
		now:      time.Now,
	}
}

// Run ticks until ctx is cancelled. A tick error is fatal: the store is
// the only truth about what has executed, and running on in a degraded,
// partially-evaluated state would break that. Per-event failures are
// handled inside the tick and never reach here.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		if err := w.Tick(ctx); err != nil {
			return fmt.Errorf("scheduler tick: %w", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick runs one full pass: due events, overdue escalation, cycle renewal.
func (w *Worker) Tick(ctx context.Context) error {
	now := w.now()
	if err := w.duePass(ctx, now); err != nil {
		return err
	}
	if err := w.recoveryPass(ctx, now); err != nil {
		return err
	}
	if err := w.ignorePass(ctx, now); err != nil {
		return err
	}
	return w.renewalPass(now)
}

// recoveryPass requeues plan rows stranded in processing by a crashed
// handler. A stranded plan holds its day's slot in the one-plan-per-day
// index, so left alone it would also block the renewal cycle. Remind
// rows are not touched here; the ignore pass owns those.
func (w *Worker) recoveryPass(ctx context.Context, now time.Time) error {
	interval, err := w.settings.Seconds(settings.KeyIgnoreInterval)
	if err != nil {
		return fmt.Errorf("reading %s: %w", settings.KeyIgnoreInterval, err)
	}
	stalled, err := w.store.StalledProcessing(storage.EventPlan, now.Add(-interval))
	if err != nil {
		return fmt.Errorf("scanning stalled plans: %w", err)
	}
	for _, sc := range stalled {
		w.logger.Warn("recovering stalled plan", "schedule_id", sc.ID, "run_at", sc.RunAt)
		w.retryOrFail(ctx, sc, now, errors.New("plan stalled in processing"))
	}
	return nil
}

// duePass claims every due pending event and dispatches each as an
// independent unit of work, so one slow chat call cannot delay the rest
// of the pass.
func (w *Worker) duePass(ctx context.Context, now time.Time) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, eventType := range []storage.EventType{storage.EventPlan, storage.EventRemind} {
		for {
			sc, err := w.store.ClaimDue(eventType, now)
			if err != nil {
				return fmt.Errorf("claiming due %s: %w", eventType, err)
			}
			if sc == nil {
				break
			}
			claimed := *sc
			g.Go(func() error {
				w.dispatch(gctx, claimed, now)
				return nil
			})
		}
	}
	return g.Wait()
}

func (w *Worker) dispatch(ctx context.Context, sc storage.Schedule, now time.Time) {
	var err error
	switch sc.EventType {
	case storage.EventPlan:
		err = w.handlePlan(ctx, sc)
	case storage.EventRemind:
		err = w.handleRemind(ctx, sc)
	}
	if err != nil {
		w.retryOrFail(ctx, sc, now, err)
	}
}

// handlePlan posts the day's commitment announcement and seeds a remind
// event for every commitment later that day. Plan events have nothing to
// await, so success finalizes to done.
func (w *Worker) handlePlan(ctx context.Context, sc storage.Schedule) error {
	commitments, err := w.store.ActiveCommitments(sc.UserID)
	if err != nil {
		return fmt.Errorf("loading commitments: %w", err)
	}
	tasks := make([]string, 0, len(commitments))
	for _, c := range commitments {
		tasks = append(tasks, fmt.Sprintf("%s — %s", c.Time, c.Task))
	}

	ts, err := w.chat.PostMessage(ctx, slack.PlanMessage(w.cfg.Channel, tasks))
	if err != nil {
		return fmt.Errorf("posting plan: %w", err)
	}
	if err := w.store.SetThreadTS(sc.ID, ts); err != nil {
		w.logger.Warn("recording thread handle failed", "schedule_id", sc.ID, "error", err)
	}

	if err := w.seedReminders(sc, commitments); err != nil {
		return err
	}

	if _, err := w.store.Finalize(sc.ID, storage.StateProcessing, storage.StateDone); err != nil {
		return fmt.Errorf("finalizing plan: %w", err)
	}
	return nil
}

// seedReminders creates a remind row for each commitment whose time of
// day falls after the plan event, skipping slots a previous attempt
// already filled.
func (w *Worker) seedReminders(sc storage.Schedule, commitments []storage.Commitment) error {
	for _, c := range commitments {
		runAt, err := occurrenceOn(sc.RunAt, c.Time)
		if err != nil {
			w.logger.Error("invalid commitment time", "commitment_id", c.ID, "time", c.Time, "error", err)
			continue
		}
		if !runAt.After(sc.RunAt) {
			continue
		}
		exists, err := w.store.HasScheduleAt(sc.UserID, storage.EventRemind, runAt)
		if err != nil {
			return fmt.Errorf("checking remind slot: %w", err)
		}
		if exists {
			continue
		}
		err = w.store.CreateSchedule(storage.Schedule{
			ID:        newID(),
			UserID:    sc.UserID,
			EventType: storage.EventRemind,
			RunAt:     runAt,
			Comment:   c.Task,
		})
		if err != nil {
			return fmt.Errorf("creating remind for commitment %s: %w", c.ID, err)
		}
	}
	return nil
}

// handleRemind posts the YES/NO prompt and leaves the row processing:
// the response intake finalizes it, and the ignore pass escalates it if
// nothing comes back.
func (w *Worker) handleRemind(ctx context.Context, sc storage.Schedule) error {
	task := sc.Comment
	if task == "" {
		task = "your commitment"
	}
	ts, err := w.chat.PostMessage(ctx, slack.RemindMessage(w.cfg.Channel, sc.ID, task))
	if err != nil {
		return fmt.Errorf("posting remind: %w", err)
	}
	if err := w.store.SetThreadTS(sc.ID, ts); err != nil {
		w.logger.Warn("recording thread handle failed", "schedule_id", sc.ID, "error", err)
	}
	return nil
}

// retryOrFail parks a failed event back to pending with a delay while
// the retry budget lasts, then fails it and tells the operator. A row
// is never left ambiguous.
func (w *Worker) retryOrFail(ctx context.Context, sc storage.Schedule, now time.Time, cause error) {
	maxRetry, err := w.settings.Int(settings.KeyMaxRetry)
	if err != nil {
		w.logger.Error("reading MAX_RETRY", "error", err)
		maxRetry = 0
	}
	retries := sc.RetryCount + 1

	if retries < maxRetry {
		delay, derr := w.settings.Minutes(settings.KeyRetryDelay)
		if derr != nil {
			w.logger.Error("reading RETRY_DELAY", "error", derr)
			delay = 5 * time.Minute
		}
		requeued, rerr := w.store.Requeue(sc.ID, now.Add(delay), retries)
		if rerr != nil || !requeued {
			w.logger.Error("requeue failed", "schedule_id", sc.ID, "error", rerr)
		}
		w.logger.Warn("event delivery failed, requeued",
			"schedule_id", sc.ID, "event_type", sc.EventType, "retry", retries, "error", cause)
		return
	}

	if _, err := w.store.Finalize(sc.ID, storage.StateProcessing, storage.StateFailed); err != nil {
		w.logger.Error("marking event failed", "schedule_id", sc.ID, "error", err)
	}
	w.logger.Error("event failed after retries",
		"schedule_id", sc.ID, "event_type", sc.EventType, "error", cause)
	w.notifyOperator(ctx, fmt.Sprintf("schedule %s (%s) failed after %d attempts: %v",
		sc.ID, sc.EventType, retries, cause))
}

func (w *Worker) notifyOperator(ctx context.Context, text string) {
	if w.cfg.OperatorChannel == "" {
		return
	}
	if _, err := w.chat.PostMessage(ctx, slack.Message{Channel: w.cfg.OperatorChannel, Text: text}); err != nil {
		w.logger.Error("operator notification failed", "error", err)
	}
}

// ignorePass escalates remind prompts that have gone unanswered for at
// least one ignore interval. Stale processing rows from crashed
// handlers land here too, which doubles as the recovery path.
func (w *Worker) ignorePass(ctx context.Context, now time.Time) error {
	paused, err := w.settings.Bool(settings.KeyPunishmentPaused)
	if err != nil {
		return fmt.Errorf("reading %s: %w", settings.KeyPunishmentPaused, err)
	}
	if paused {
		return nil
	}

	interval, err := w.settings.Seconds(settings.KeyIgnoreInterval)
	if err != nil {
		return fmt.Errorf("reading %s: %w", settings.KeyIgnoreInterval, err)
	}
	maxRetry, err := w.settings.Int(settings.KeyIgnoreMaxRetry)
	if err != nil {
		return fmt.Errorf("reading %s: %w", settings.KeyIgnoreMaxRetry, err)
	}

	overdue, err := w.store.OverdueProcessing(storage.EventRemind, now.Add(-interval))
	if err != nil {
		return fmt.Errorf("scanning overdue events: %w", err)
	}

	for _, sc := range overdue {
		step := escalate.IgnoreStep(now.Sub(sc.RunAt), interval)
		if step < 1 {
			continue
		}

		if step > maxRetry {
			if err := w.terminateIgnored(sc); err != nil {
				return err
			}
			continue
		}

		stim := escalate.ForIgnore(step)
		if stim.Kind == escalate.KindZap {
			capped, err := w.zapCapReached(sc.UserID, now)
			if err != nil {
				return err
			}
			if capped {
				w.logger.Info("daily zap cap reached, skipping step",
					"schedule_id", sc.ID, "step", step)
				continue
			}
		}

		registered, err := w.store.TryRegisterPunishment(sc.ID, storage.ModeIgnore, step)
		if err != nil {
			return fmt.Errorf("registering punishment: %w", err)
		}
		if !registered {
			// Another pass already owns this step.
			continue
		}

		w.deliver(ctx, sc, stim, "ignore", step)

		if escalate.Terminates(step, maxRetry, stim) {
			if err := w.terminateIgnored(sc); err != nil {
				return err
			}
		}
	}
	return nil
}

// deliver clamps and sends one stimulus. Quota rejections are final for
// the step; transient failures also burn the step, and the next interval
// escalates harder anyway.
func (w *Worker) deliver(ctx context.Context, sc storage.Schedule, stim escalate.Stimulus, mode string, step int) {
	ceiling, err := w.settings.Int(settings.KeyPunishmentMaxValue)
	if err != nil {
		w.logger.Error("reading intensity ceiling", "error", err)
		ceiling = 100
	}
	intensity := escalate.Clamp(stim.Intensity, ceiling)

	err = w.device.Deliver(ctx, stim.Kind, intensity)
	switch {
	case errors.Is(err, pavlok.ErrRateLimited):
		w.logger.Warn("device quota exhausted",
			"schedule_id", sc.ID, "mode", mode, "step", step)
	case err != nil:
		w.logger.Warn("stimulus delivery failed",
			"schedule_id", sc.ID, "mode", mode, "step", step, "error", err)
	default:
		w.logger.Info("stimulus delivered",
			"schedule_id", sc.ID, "mode", mode, "step", step,
			"kind", stim.Kind, "intensity", intensity)
	}
}

// terminateIgnored cancels an abandoned event and records exactly one
// AUTO_IGNORE outcome for it.
func (w *Worker) terminateIgnored(sc storage.Schedule) error {
	if _, err := w.store.Finalize(sc.ID, storage.StateProcessing, storage.StateCanceled); err != nil {
		return fmt.Errorf("canceling schedule %s: %w", sc.ID, err)
	}
	already, err := w.store.HasAction(sc.ID, storage.ActionAutoIgnore)
	if err != nil {
		return fmt.Errorf("checking auto-ignore log: %w", err)
	}
	if already {
		return nil
	}
	if err := w.store.AppendAction(sc.ID, storage.ActionAutoIgnore, ""); err != nil && !errors.Is(err, storage.ErrDuplicateAction) {
		return fmt.Errorf("logging auto-ignore: %w", err)
	}
	w.logger.Info("event canceled after ignore escalation", "schedule_id", sc.ID)
	return nil
}

func (w *Worker) zapCapReached(userID string, now time.Time) (bool, error) {
	limit, err := w.settings.Int(settings.KeyLimitDayZapCount)
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", settings.KeyLimitDayZapCount, err)
	}
	count, err := w.store.CountPunishableToday(userID, now)
	if err != nil {
		return false, fmt.Errorf("counting today's punishments: %w", err)
	}
	return count >= limit, nil
}

// renewalPass guarantees the plan cycle never dies: every user with
// active commitments always has a future plan event.
func (w *Worker) renewalPass(now time.Time) error {
	users, err := w.store.CommittedUsers()
	if err != nil {
		return fmt.Errorf("listing committed users: %w", err)
	}
	planTime, err := w.settings.String(settings.KeyPlanTime)
	if err != nil {
		return fmt.Errorf("reading %s: %w", settings.KeyPlanTime, err)
	}

	for _, userID := range users {
		has, err := w.store.HasUpcoming(userID, storage.EventPlan, now)
		if err != nil {
			return fmt.Errorf("checking upcoming plan: %w", err)
		}
		if has {
			continue
		}
		runAt, err := nextOccurrence(now, planTime)
		if err != nil {
			return fmt.Errorf("computing next plan time: %w", err)
		}
		err = w.store.CreateSchedule(storage.Schedule{
			ID:        newID(),
			UserID:    userID,
			EventType: storage.EventPlan,
			RunAt:     runAt,
		})
		if errors.Is(err, storage.ErrDuplicatePlan) {
			// Another instance renewed first.
			continue
		}
		if err != nil {
			return fmt.Errorf("creating renewal plan: %w", err)
		}
		w.logger.Info("plan cycle renewed", "user_id", userID, "run_at", runAt)
	}
	return nil
}

// occurrenceOn returns hhmm ("HH:MM") on the same day as ref, in ref's
// location.
func occurrenceOn(ref time.Time, hhmm string) (time.Time, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time of day %q: %w", hhmm, err)
	}
	return time.Date(ref.Year(), ref.Month(), ref.Day(), t.Hour(), t.Minute(), 0, 0, ref.Location()), nil
}

// nextOccurrence returns the next time hhmm ("HH:MM") occurs strictly
// after now, in now's location.
func nextOccurrence(now time.Time, hhmm string) (time.Time, error) {
	candidate, err := occurrenceOn(now, hhmm)
	if err != nil {
		return time.Time{}, err
	}
	if !candidate.After(now) {
		candidate = candidate.Add(24 * time.Hour)
	}
	return candidate, nil
}
