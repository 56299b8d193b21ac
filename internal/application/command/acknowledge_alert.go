package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pagefeed/engagement-engine/internal/domain/alert"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACKNOWLEDGE ALERT COMMAND
// Clears one alert flag after a client surface has shown it to the user.
// ══════════════════════════════════════════════════════════════════════════════

// AcknowledgeAlertCommand contains the data to acknowledge an alert.
// Exactly one of Kind or AchievementID must be set.
type AcknowledgeAlertCommand struct {
	// UserID is the internal ID of the user.
	UserID string

	// Kind names a boolean flag to clear.
	Kind alert.Kind

	// AchievementID names a pending achievement to remove.
	AchievementID string
}

// Validate validates the command.
func (c AcknowledgeAlertCommand) Validate() error {
	if c.UserID == "" {
		return errors.New("acknowledge_alert: user_id is required")
	}
	if c.Kind == "" && c.AchievementID == "" {
		return errors.New("acknowledge_alert: kind or achievement_id is required")
	}
	if c.Kind != "" && c.AchievementID != "" {
		return errors.New("acknowledge_alert: kind and achievement_id are mutually exclusive")
	}
	if c.Kind != "" && c.Kind != alert.KindRecoverStreak &&
		c.Kind != alert.KindResetStreak && c.Kind != alert.KindStreakMilestone {
		return fmt.Errorf("acknowledge_alert: unknown flag kind: %s", c.Kind)
	}
	return nil
}

// AcknowledgeAlertHandler handles the AcknowledgeAlertCommand.
type AcknowledgeAlertHandler struct {
	alertRepo alert.Repository
}

// NewAcknowledgeAlertHandler creates a new AcknowledgeAlertHandler.
func NewAcknowledgeAlertHandler(alertRepo alert.Repository) *AcknowledgeAlertHandler {
	return &AcknowledgeAlertHandler{alertRepo: alertRepo}
}

// Handle executes the acknowledge alert command.
func (h *AcknowledgeAlertHandler) Handle(ctx context.Context, cmd AcknowledgeAlertCommand) error {
	if err := cmd.Validate(); err != nil {
		return fmt.Errorf("acknowledge_alert: validation failed: %w", err)
	}

	if err := h.alertRepo.Acknowledge(ctx, cmd.UserID, cmd.Kind, cmd.AchievementID, time.Now().UTC()); err != nil {
		return fmt.Errorf("acknowledge_alert: failed to acknowledge: %w", err)
	}
	return nil
}
