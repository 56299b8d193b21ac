package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/pagefeed/engagement-engine/internal/application/command"
	"github.com/pagefeed/engagement-engine/internal/application/query"
	"github.com/pagefeed/engagement-engine/internal/domain/alert"
	"github.com/pagefeed/engagement-engine/internal/domain/leaderboard"
	"github.com/pagefeed/engagement-engine/internal/domain/shared"
	"github.com/pagefeed/engagement-engine/internal/domain/streak"
)

// ingestOutcome labels an ingest result for the events counter.
func ingestOutcome(result *command.IngestEventResult) string {
	switch {
	case result.Duplicate:
		return "duplicate"
	case result.Activity != nil && result.Activity.Outcome == streak.OutcomeStale:
		return "stale"
	default:
		return "accepted"
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRoot serves the root endpoint with basic API information.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	info := map[string]interface{}{
		"name":    "Engagement Progress Engine API",
		"version": "v1",
		"endpoints": map[string]string{
			"health":      "/health",
			"events":      "/api/v1/events",
			"streak":      "/api/v1/users/{id}/streak",
			"leaderboard": "/api/v1/leaderboard",
		},
	}

	writeJSON(w, http.StatusOK, info)
}

// handleHealth handles the health check endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Healthy {
			writeJSON(w, http.StatusServiceUnavailable, status)
			return
		}
		writeJSON(w, http.StatusOK, status)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"uptime": s.Uptime().String(),
	})
}

// handleReady handles the readiness probe endpoint (for Kubernetes).
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Healthy {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not_ready",
				"reason": status.Message,
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleLive handles the liveness probe endpoint (for Kubernetes).
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// INGESTION HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// IngestEventRequest is the POST /api/v1/events payload.
type IngestEventRequest struct {
	EventID   string    `json:"event_id"`
	UserID    string    `json:"user_id"`
	EventType string    `json:"event_type"`
	Timezone  string    `json:"timezone,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// IngestEventResponse acknowledges an ingested event.
type IngestEventResponse struct {
	EventID   string `json:"event_id"`
	Duplicate bool   `json:"duplicate"`

	// Streak is present when the event counted toward the user's streak.
	Streak *StreakOutcomeDTO `json:"streak,omitempty"`

	// Unlocked lists achievements this event unlocked.
	Unlocked []UnlockedDTO `json:"unlocked,omitempty"`
}

// StreakOutcomeDTO summarizes the streak transition an event produced.
type StreakOutcomeDTO struct {
	Outcome          string     `json:"outcome"`
	CurrentStreak    int        `json:"current_streak"`
	TotalStreak      int        `json:"total_streak"`
	Milestone        int        `json:"milestone,omitempty"`
	RecoveryDeadline *time.Time `json:"recovery_deadline,omitempty"`
}

// UnlockedDTO is one achievement unlocked by an event.
type UnlockedDTO struct {
	AchievementID string `json:"achievement_id"`
	Name          string `json:"name"`
	Points        int    `json:"points"`
}

// handleIngestEvent handles POST /api/v1/events
func (s *Server) handleIngestEvent(w http.ResponseWriter, r *http.Request) {
	if s.deps.IngestEventHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Event ingestion not configured")
		return
	}

	var req IngestEventRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	cmd := command.IngestEventCommand{
		EventID:       req.EventID,
		UserID:        req.UserID,
		EventType:     req.EventType,
		Timezone:      req.Timezone,
		Timestamp:     req.Timestamp,
		CorrelationID: getRequestID(r.Context()),
	}
	if err := cmd.Validate(); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	result, err := s.deps.IngestEventHandler.Handle(r.Context(), cmd)
	if err != nil {
		s.writeCommandError(w, r, "ingest event", err)
		return
	}

	if s.metrics != nil {
		s.metrics.observeIngest(ingestOutcome(result))
	}

	resp := IngestEventResponse{
		EventID:   result.EventID,
		Duplicate: result.Duplicate,
	}
	if result.Activity != nil {
		resp.Streak = &StreakOutcomeDTO{
			Outcome:          string(result.Activity.Outcome),
			CurrentStreak:    result.Activity.CurrentStreak,
			TotalStreak:      result.Activity.TotalStreak,
			Milestone:        result.Activity.Milestone,
			RecoveryDeadline: result.Activity.RecoveryDeadline,
		}
	}
	if result.Engagement != nil {
		for _, u := range result.Engagement.Unlocked {
			resp.Unlocked = append(resp.Unlocked, UnlockedDTO{
				AchievementID: u.AchievementID,
				Name:          u.Name,
				Points:        u.Points,
			})
		}
	}

	status := http.StatusAccepted
	if result.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

// ══════════════════════════════════════════════════════════════════════════════
// STREAK HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetStreak handles GET /api/v1/users/{id}/streak
func (s *Server) handleGetStreak(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	if userID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "User ID is required")
		return
	}

	if s.deps.GetStreakHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Streak handler not configured")
		return
	}

	result, err := s.deps.GetStreakHandler.Handle(r.Context(), query.GetStreakQuery{UserID: userID})
	if err != nil {
		s.writeCommandError(w, r, "get streak", err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleRecoverStreak handles POST /api/v1/users/{id}/streak/recover
func (s *Server) handleRecoverStreak(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	if userID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "User ID is required")
		return
	}

	if s.deps.RecoverStreakHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Recovery handler not configured")
		return
	}

	result, err := s.deps.RecoverStreakHandler.Handle(r.Context(), command.RecoverStreakCommand{
		UserID:        userID,
		CorrelationID: getRequestID(r.Context()),
	})
	if err != nil {
		s.writeCommandError(w, r, "recover streak", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user_id":        result.UserID,
		"current_streak": result.CurrentStreak,
		"total_streak":   result.TotalStreak,
		"recovered_at":   result.RecoveredAt,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// handleGetAchievements handles GET /api/v1/users/{id}/achievements
func (s *Server) handleGetAchievements(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	if userID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "User ID is required")
		return
	}

	if s.deps.GetAchievementsHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Achievements handler not configured")
		return
	}

	result, err := s.deps.GetAchievementsHandler.Handle(r.Context(), query.GetAchievementsQuery{
		UserID:       userID,
		OnlyUnlocked: getQueryParamBool(r, "unlocked"),
	})
	if err != nil {
		s.writeCommandError(w, r, "get achievements", err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// ALERT HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetAlerts handles GET /api/v1/users/{id}/alerts
func (s *Server) handleGetAlerts(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	if userID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "User ID is required")
		return
	}

	if s.deps.GetAlertFlagsHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Alerts handler not configured")
		return
	}

	result, err := s.deps.GetAlertFlagsHandler.Handle(r.Context(), query.GetAlertFlagsQuery{UserID: userID})
	if err != nil {
		s.writeCommandError(w, r, "get alerts", err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// AcknowledgeAlertRequest is the POST /api/v1/users/{id}/alerts/ack payload.
// Exactly one of kind or achievement_id must be set.
type AcknowledgeAlertRequest struct {
	Kind          string `json:"kind,omitempty"`
	AchievementID string `json:"achievement_id,omitempty"`
}

// handleAcknowledgeAlert handles POST /api/v1/users/{id}/alerts/ack
func (s *Server) handleAcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	if userID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "User ID is required")
		return
	}

	if s.deps.AcknowledgeAlertHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Acknowledge handler not configured")
		return
	}

	var req AcknowledgeAlertRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	cmd := command.AcknowledgeAlertCommand{
		UserID:        userID,
		Kind:          alert.Kind(req.Kind),
		AchievementID: req.AchievementID,
	}
	if err := cmd.Validate(); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	if err := s.deps.AcknowledgeAlertHandler.Handle(r.Context(), cmd); err != nil {
		s.writeCommandError(w, r, "acknowledge alert", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "acknowledged"})
}

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// handleGetLeaderboard handles GET /api/v1/leaderboard
func (s *Server) handleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	if s.deps.GetLeaderboardHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Leaderboard handler not configured")
		return
	}

	q := query.GetLeaderboardQuery{
		Metric: leaderboard.Metric(getQueryParam(r, "metric", "")),
		Limit:  getQueryParamInt(r, "limit", 0),
	}
	if err := q.Validate(); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	result, err := s.deps.GetLeaderboardHandler.Handle(r.Context(), q)
	if err != nil {
		s.writeCommandError(w, r, "get leaderboard", err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// decodeJSONBody parses the request body into dest. On failure it writes a
// 400 and returns false.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20)) // 1MB limit
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Failed to read request body")
		return false
	}
	defer r.Body.Close()

	if err := json.Unmarshal(body, dest); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON payload")
		return false
	}
	return true
}

// writeCommandError translates domain errors into HTTP statuses.
func (s *Server) writeCommandError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, code := http.StatusInternalServerError, "internal_error"

	switch {
	case errors.Is(err, shared.ErrNotEligible):
		status, code = http.StatusConflict, "not_eligible"
	case errors.Is(err, shared.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, shared.ErrInvalidTimezone):
		status, code = http.StatusBadRequest, "invalid_timezone"
	case errors.Is(err, shared.ErrValidation), errors.Is(err, shared.ErrInvalidInput):
		status, code = http.StatusBadRequest, "invalid_request"
	case errors.Is(err, shared.ErrOptimisticLock):
		status, code = http.StatusConflict, "conflict"
	case errors.Is(err, shared.ErrUnavailable):
		status, code = http.StatusServiceUnavailable, "storage_unavailable"
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			"op", op,
			"error", err,
			"request_id", getRequestID(r.Context()),
		)
	}

	writeJSONError(w, status, code, err.Error())
}
