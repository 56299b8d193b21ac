package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pagefeed/engagement-engine/internal/domain/alert"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET ALERT FLAGS QUERY
// Returns the denormalized alert flags a client surface polls on open.
// ══════════════════════════════════════════════════════════════════════════════

// GetAlertFlagsQuery contains the request parameters.
type GetAlertFlagsQuery struct {
	// UserID - internal user ID.
	UserID string
}

// Validate checks the query parameters.
func (q *GetAlertFlagsQuery) Validate() error {
	if q.UserID == "" {
		return errors.New("user_id is required")
	}
	return nil
}

// AlertFlagsDTO is the client-facing alert payload.
type AlertFlagsDTO struct {
	UserID              string     `json:"user_id"`
	ShowRecoverStreak   bool       `json:"show_recover_streak"`
	ShowResetStreak     bool       `json:"show_reset_streak"`
	StreakMilestone     int        `json:"streak_milestone"`
	PendingAchievements []string   `json:"pending_achievements"`
	UpdatedAt           *time.Time `json:"updated_at,omitempty"`
}

// GetAlertFlagsHandler handles the GetAlertFlagsQuery.
type GetAlertFlagsHandler struct {
	alertRepo alert.Repository
}

// NewGetAlertFlagsHandler creates a new GetAlertFlagsHandler.
func NewGetAlertFlagsHandler(alertRepo alert.Repository) *GetAlertFlagsHandler {
	return &GetAlertFlagsHandler{alertRepo: alertRepo}
}

// Handle executes the alert flags query. A user with no flags reads as
// all-clear, never as an error.
func (h *GetAlertFlagsHandler) Handle(ctx context.Context, q GetAlertFlagsQuery) (*AlertFlagsDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("get_alert_flags: %w", err)
	}

	flags, err := h.alertRepo.Get(ctx, q.UserID)
	if err != nil {
		return nil, fmt.Errorf("get_alert_flags: failed to load flags: %w", err)
	}

	dto := &AlertFlagsDTO{
		UserID:              flags.UserID,
		ShowRecoverStreak:   flags.ShowRecoverStreak,
		ShowResetStreak:     flags.ShowResetStreak,
		StreakMilestone:     flags.StreakMilestone,
		PendingAchievements: flags.PendingAchievements,
	}
	if dto.PendingAchievements == nil {
		dto.PendingAchievements = []string{}
	}
	if !flags.UpdatedAt.IsZero() {
		updatedAt := flags.UpdatedAt
		dto.UpdatedAt = &updatedAt
	}
	return dto, nil
}
