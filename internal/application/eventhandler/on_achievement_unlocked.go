package eventhandler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pagefeed/engagement-engine/internal/domain/alert"
	"github.com/pagefeed/engagement-engine/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON ACHIEVEMENT UNLOCKED HANDLER
// Appends the unlocked achievement to the user's pending list so a client
// surface can celebrate it. The list add is idempotent, so a redelivered
// unlock event never produces a second entry.
// ═══════════════════════════════════════════════════════════════════════════

// OnAchievementUnlockedHandler projects unlock events onto alert flags.
type OnAchievementUnlockedHandler struct {
	alertRepo alert.Repository
	logger    *slog.Logger
}

// NewOnAchievementUnlockedHandler creates a new OnAchievementUnlockedHandler.
func NewOnAchievementUnlockedHandler(alertRepo alert.Repository, logger *slog.Logger) *OnAchievementUnlockedHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OnAchievementUnlockedHandler{
		alertRepo: alertRepo,
		logger:    logger.With("handler", "on_achievement_unlocked"),
	}
}

// EventType returns the event type this handler processes.
func (h *OnAchievementUnlockedHandler) EventType() shared.EventType {
	return shared.EventAchievementUnlocked
}

// Handle projects one unlock event. Implements shared.EventHandler.
func (h *OnAchievementUnlockedHandler) Handle(event shared.Event) error {
	unlocked, ok := event.(shared.AchievementUnlockedEvent)
	if !ok {
		h.logger.Warn("received non-AchievementUnlockedEvent",
			"event_type", event.EventType(),
		)
		return nil
	}

	ctx := context.Background()
	if err := h.alertRepo.AddPendingAchievement(ctx, unlocked.UserID, unlocked.AchievementID, unlocked.OccurredAt()); err != nil {
		return fmt.Errorf("project achievement unlocked: %w", err)
	}

	h.logger.Debug("pending achievement projected",
		"user_id", unlocked.UserID,
		"achievement_id", unlocked.AchievementID,
	)
	return nil
}
