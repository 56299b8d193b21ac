// Package eventhandler contains the domain event handlers that project
// transitions into the denormalized alert flags read by client surfaces.
package eventhandler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pagefeed/engagement-engine/internal/domain/alert"
	"github.com/pagefeed/engagement-engine/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON STREAK TRANSITION HANDLER
// Projects streak transitions into per-user alert flags:
//
//	at_risk    -> show the recover-streak prompt
//	recovered  -> hide both streak prompts (the streak is healthy again)
//	extended   -> hide both streak prompts
//	milestone  -> show the milestone banner with the streak length
//	reset      -> show the reset notice, hide the recover prompt
//
// Writes are last-write-wins upserts. Redelivered or reordered events settle
// on whatever transition was projected last, which matches the at-most-
// display-once contract of the flags.
// ═══════════════════════════════════════════════════════════════════════════

// OnStreakTransitionHandler projects streak events onto alert flags.
type OnStreakTransitionHandler struct {
	alertRepo alert.Repository
	logger    *slog.Logger
}

// NewOnStreakTransitionHandler creates a new OnStreakTransitionHandler.
func NewOnStreakTransitionHandler(alertRepo alert.Repository, logger *slog.Logger) *OnStreakTransitionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OnStreakTransitionHandler{
		alertRepo: alertRepo,
		logger:    logger.With("handler", "on_streak_transition"),
	}
}

// EventTypes returns the event types this handler must be subscribed to.
func (h *OnStreakTransitionHandler) EventTypes() []shared.EventType {
	return []shared.EventType{
		shared.EventStreakExtended,
		shared.EventStreakMilestone,
		shared.EventStreakAtRisk,
		shared.EventStreakRecovered,
		shared.EventStreakReset,
	}
}

// Handle projects one streak event. Implements shared.EventHandler.
func (h *OnStreakTransitionHandler) Handle(event shared.Event) error {
	ctx := context.Background()
	userID := event.AggregateID()
	at := event.OccurredAt()

	switch event.EventType() {
	case shared.EventStreakAtRisk:
		if err := h.alertRepo.SetFlag(ctx, userID, alert.KindRecoverStreak, true, at); err != nil {
			return fmt.Errorf("project at_risk: %w", err)
		}

	case shared.EventStreakRecovered:
		if err := h.alertRepo.SetFlag(ctx, userID, alert.KindRecoverStreak, false, at); err != nil {
			return fmt.Errorf("project recovered: %w", err)
		}
		if err := h.alertRepo.SetFlag(ctx, userID, alert.KindResetStreak, false, at); err != nil {
			return fmt.Errorf("project recovered: %w", err)
		}

	case shared.EventStreakMilestone:
		milestone, ok := event.(shared.StreakMilestoneEvent)
		if !ok {
			h.logger.Warn("milestone event with unexpected payload type",
				"event_type", event.EventType(),
			)
			return nil
		}
		if err := h.alertRepo.SetMilestone(ctx, userID, milestone.Milestone, at); err != nil {
			return fmt.Errorf("project milestone: %w", err)
		}

	case shared.EventStreakExtended:
		if err := h.alertRepo.SetFlag(ctx, userID, alert.KindRecoverStreak, false, at); err != nil {
			return fmt.Errorf("project extended: %w", err)
		}
		if err := h.alertRepo.SetFlag(ctx, userID, alert.KindResetStreak, false, at); err != nil {
			return fmt.Errorf("project extended: %w", err)
		}

	case shared.EventStreakReset:
		if err := h.alertRepo.SetFlag(ctx, userID, alert.KindResetStreak, true, at); err != nil {
			return fmt.Errorf("project reset: %w", err)
		}
		if err := h.alertRepo.SetFlag(ctx, userID, alert.KindRecoverStreak, false, at); err != nil {
			return fmt.Errorf("project reset: %w", err)
		}

	default:
		h.logger.Warn("received unexpected event type",
			"event_type", event.EventType(),
		)
	}

	return nil
}
