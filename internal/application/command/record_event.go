package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pagefeed/engagement-engine/internal/domain/achievement"
	"github.com/pagefeed/engagement-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD ENGAGEMENT EVENT COMMAND
// Counts one engagement event against every achievement whose criteria
// matches its type, unlocking on the exact target boundary.
// ══════════════════════════════════════════════════════════════════════════════

// RecordEngagementEventCommand contains one engagement event to evaluate.
type RecordEngagementEventCommand struct {
	// UserID is the internal ID of the user.
	UserID string

	// EventType is the engagement event type (e.g. "article.read").
	EventType string

	// Timestamp is when the event occurred (defaults to now if zero).
	Timestamp time.Time

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c RecordEngagementEventCommand) Validate() error {
	if c.UserID == "" {
		return errors.New("record_event: user_id is required")
	}
	if c.EventType == "" {
		return errors.New("record_event: event_type is required")
	}
	return nil
}

// UnlockedAchievement describes one achievement this event unlocked.
type UnlockedAchievement struct {
	AchievementID string
	Name          string
	Points        int
}

// RecordEngagementEventResult contains the result of evaluating an event.
type RecordEngagementEventResult struct {
	// UserID is the internal ID of the user.
	UserID string

	// Matched is how many definitions counted this event.
	Matched int

	// Unlocked lists the achievements this event unlocked, usually zero or
	// one.
	Unlocked []UnlockedAchievement

	// Events contains the domain events generated.
	Events []shared.Event
}

// RecordEngagementEventHandler handles the RecordEngagementEventCommand.
//
// Concurrency: the progress repository's Increment is atomic, so when N
// events race toward a target of N, exactly one of them observes the counter
// landing on the target and emits the unlock.
type RecordEngagementEventHandler struct {
	definitionRepo achievement.DefinitionRepository
	progressRepo   achievement.ProgressRepository
	publisher      shared.EventPublisher
}

// NewRecordEngagementEventHandler creates a new RecordEngagementEventHandler.
func NewRecordEngagementEventHandler(
	definitionRepo achievement.DefinitionRepository,
	progressRepo achievement.ProgressRepository,
	publisher shared.EventPublisher,
) *RecordEngagementEventHandler {
	return &RecordEngagementEventHandler{
		definitionRepo: definitionRepo,
		progressRepo:   progressRepo,
		publisher:      publisher,
	}
}

// Handle executes the record engagement event command.
func (h *RecordEngagementEventHandler) Handle(
	ctx context.Context,
	cmd RecordEngagementEventCommand,
) (*RecordEngagementEventResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("record_event: validation failed: %w", err)
	}

	timestamp := cmd.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	defs, err := h.definitionRepo.ListByEventType(ctx, cmd.EventType)
	if err != nil {
		return nil, fmt.Errorf("record_event: failed to list definitions: %w", err)
	}

	result := &RecordEngagementEventResult{
		UserID:  cmd.UserID,
		Matched: len(defs),
	}

	for _, def := range defs {
		progress, err := h.progressRepo.Increment(ctx, cmd.UserID, def.ID, timestamp)
		if err != nil {
			return nil, fmt.Errorf("record_event: failed to increment %s: %w", def.ID, err)
		}

		// The boundary check must use the post-increment count, not a
		// re-read: only the increment that lands exactly on the target may
		// unlock.
		if progress.Count != def.Criteria.TargetCount {
			continue
		}

		if err := h.progressRepo.MarkUnlocked(ctx, cmd.UserID, def.ID, timestamp); err != nil {
			return nil, fmt.Errorf("record_event: failed to mark unlocked %s: %w", def.ID, err)
		}

		result.Unlocked = append(result.Unlocked, UnlockedAchievement{
			AchievementID: def.ID,
			Name:          def.Name,
			Points:        def.Points,
		})

		event := shared.NewAchievementUnlockedEvent(cmd.UserID, timestamp, def.ID, def.Points)
		result.Events = append(result.Events, event)
		_ = h.publisher.Publish(event)
	}

	return result, nil
}
