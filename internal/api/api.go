// Package api is the HTTP surface for the engine's collaborators: the
// chat transport posts user responses here, and operators manage
// schedules, settings, and commitments. The scheduling core itself has
// no other inbound surface.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/onicoach/oni/internal/settings"
	"github.com/onicoach/oni/internal/storage"
	"github.com/onicoach/oni/internal/worker"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Responder is the response-intake side of the orchestrator.
type Responder interface {
	HandleResponse(ctx context.Context, scheduleID string, result storage.ActionResult, idemKey string) (worker.Outcome, error)
}

// Deps wires the handler set.
type Deps struct {
	Store     *storage.Store
	Settings  *settings.Cache
	Responder Responder
	Token     string
}

// NewHandler builds the router. Everything but /health requires the
// bearer token.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/interactive", handleInteractive(deps))
		r.Get("/schedules", handleListSchedules(deps))
		r.Post("/schedules", handleCreateSchedule(deps))
		r.Get("/settings", handleListSettings(deps))
		r.Put("/settings/{key}", handleUpdateSetting(deps))
		r.Get("/commitments", handleListCommitments(deps))
		r.Post("/commitments", handleCreateCommitment(deps))
		r.Delete("/commitments/{id}", handleDeleteCommitment(deps))
	})

	return r
}

type interactiveRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
	ScheduleID     string `json:"schedule_id"`
	Action         string `json:"action"` // "yes" or "no"
}

func handleInteractive(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req interactiveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.ScheduleID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "schedule_id is required")
			return
		}

		var result storage.ActionResult
		switch req.Action {
		case "yes":
			result = storage.ActionYes
		case "no":
			result = storage.ActionNo
		default:
			httpError(w, http.StatusBadRequest, "invalid_request_error", "action must be \"yes\" or \"no\"")
			return
		}

		outcome, err := deps.Responder.HandleResponse(r.Context(), req.ScheduleID, result, req.IdempotencyKey)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "schedule not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to record response: %v", err)
			return
		}

		writeJSON(w, map[string]string{"status": string(outcome)})
	}
}

type scheduleResponse struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	EventType  string `json:"event_type"`
	RunAt      string `json:"run_at"`
	State      string `json:"state"`
	ThreadTS   string `json:"thread_ts,omitempty"`
	Comment    string `json:"comment,omitempty"`
	RetryCount int    `json:"retry_count"`
}

func toScheduleResponse(sc storage.Schedule) scheduleResponse {
	return scheduleResponse{
		ID:         sc.ID,
		UserID:     sc.UserID,
		EventType:  string(sc.EventType),
		RunAt:      sc.RunAt.UTC().Format(time.RFC3339),
		State:      string(sc.State),
		ThreadTS:   sc.ThreadTS,
		Comment:    sc.Comment,
		RetryCount: sc.RetryCount,
	}
}

func handleListSchedules(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 50, 200)
		state := storage.State(r.URL.Query().Get("state"))

		schedules, err := deps.Store.ListSchedules(state, limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list schedules: %v", err)
			return
		}

		out := make([]scheduleResponse, 0, len(schedules))
		for _, sc := range schedules {
			out = append(out, toScheduleResponse(sc))
		}
		writeJSON(w, out)
	}
}

type createScheduleRequest struct {
	UserID    string `json:"user_id"`
	EventType string `json:"event_type"`
	RunAt     string `json:"run_at"` // RFC3339
	Comment   string `json:"comment"`
}

func handleCreateSchedule(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req createScheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.UserID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "user_id is required")
			return
		}
		eventType := storage.EventType(req.EventType)
		if eventType != storage.EventPlan && eventType != storage.EventRemind {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "event_type must be \"plan\" or \"remind\"")
			return
		}
		runAt, err := time.Parse(time.RFC3339, req.RunAt)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "run_at must be RFC3339: %v", err)
			return
		}

		sc := storage.Schedule{
			ID:        uuid.New().String(),
			UserID:    req.UserID,
			EventType: eventType,
			RunAt:     runAt,
			Comment:   req.Comment,
		}
		err = deps.Store.CreateSchedule(sc)
		if errors.Is(err, storage.ErrDuplicatePlan) {
			httpError(w, http.StatusConflict, "conflict", "an active plan already exists for that day")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to create schedule: %v", err)
			return
		}

		w.WriteHeader(http.StatusCreated)
		writeJSON(w, map[string]string{"id": sc.ID, "status": "scheduled"})
	}
}

type settingResponse struct {
	Key         string `json:"key"`
	Value       string `json:"value"`
	ValueType   string `json:"value_type"`
	Description string `json:"description,omitempty"`
	MinValue    *int   `json:"min_value,omitempty"`
	MaxValue    *int   `json:"max_value,omitempty"`
}

func handleListSettings(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := deps.Store.ListSettings()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list settings: %v", err)
			return
		}
		out := make([]settingResponse, 0, len(list))
		for _, st := range list {
			out = append(out, settingResponse{
				Key:         st.Key,
				Value:       st.Value,
				ValueType:   st.ValueType,
				Description: st.Description,
				MinValue:    st.MinValue,
				MaxValue:    st.MaxValue,
			})
		}
		writeJSON(w, out)
	}
}

type updateSettingRequest struct {
	Value     string `json:"value"`
	ChangedBy string `json:"changed_by"`
}

func handleUpdateSetting(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "key")

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req updateSettingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.ChangedBy == "" {
			req.ChangedBy = "api"
		}

		err := deps.Store.UpdateSetting(key, req.Value, req.ChangedBy)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "unknown setting %q", key)
			return
		}
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		deps.Settings.Invalidate(key)

		writeJSON(w, map[string]string{"key": key, "value": req.Value, "status": "updated"})
	}
}

type commitmentResponse struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	Time   string `json:"time"`
	Task   string `json:"task"`
}

func handleListCommitments(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "user_id is required")
			return
		}
		list, err := deps.Store.ActiveCommitments(userID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list commitments: %v", err)
			return
		}
		out := make([]commitmentResponse, 0, len(list))
		for _, c := range list {
			out = append(out, commitmentResponse{ID: c.ID, UserID: c.UserID, Time: c.Time, Task: c.Task})
		}
		writeJSON(w, out)
	}
}

type createCommitmentRequest struct {
	UserID string `json:"user_id"`
	Time   string `json:"time"` // HH:MM
	Task   string `json:"task"`
}

func handleCreateCommitment(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req createCommitmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.UserID == "" || req.Task == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "user_id and task are required")
			return
		}

		c := storage.Commitment{
			ID:     uuid.New().String(),
			UserID: req.UserID,
			Time:   req.Time,
			Task:   req.Task,
			Active: true,
		}
		if err := deps.Store.CreateCommitment(c); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		w.WriteHeader(http.StatusCreated)
		writeJSON(w, map[string]string{"id": c.ID, "status": "created"})
	}
}

func handleDeleteCommitment(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		err := deps.Store.DeactivateCommitment(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "commitment not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to remove commitment: %v", err)
			return
		}
		writeJSON(w, map[string]string{"status": "removed"})
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
