// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pagefeed/engagement-engine/internal/domain/shared"
	"github.com/pagefeed/engagement-engine/internal/domain/streak"
	"github.com/pagefeed/engagement-engine/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD ACTIVITY COMMAND
// Applies one qualifying activity to a user's streak. This is the write path
// behind every streak transition: extend, milestone, at-risk, reset.
// ══════════════════════════════════════════════════════════════════════════════

// RecordActivityCommand contains the data to record a qualifying activity.
type RecordActivityCommand struct {
	// UserID is the internal ID of the user.
	UserID string

	// Timezone is the user's IANA zone name, as resolved by the caller.
	// Unknown or empty zones fall back to UTC.
	Timezone string

	// Timestamp is when the activity occurred (defaults to now if zero).
	Timestamp time.Time

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c RecordActivityCommand) Validate() error {
	if c.UserID == "" {
		return errors.New("record_activity: user_id is required")
	}
	return nil
}

// RecordActivityResult contains the result of recording an activity.
type RecordActivityResult struct {
	// UserID is the internal ID of the user.
	UserID string

	// Outcome is the transition the activity produced.
	Outcome streak.OutcomeKind

	// CurrentStreak is the streak after the activity.
	CurrentStreak int

	// TotalStreak is the lifetime qualifying-day count after the activity.
	TotalStreak int

	// Milestone is the threshold hit by this activity, zero if none.
	Milestone int

	// RecoveryDeadline is set when the outcome opened a recovery window.
	RecoveryDeadline *time.Time

	// Events contains the domain events generated.
	Events []shared.Event

	// RecordedAt is the instant the activity was applied under.
	RecordedAt time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// RecordActivityHandler handles the RecordActivityCommand.
//
// Concurrency: two activities for the same user may race. The handler
// reloads the state and replays the transition whenever the save loses the
// version check, so the effective order is some serial order of the two.
type RecordActivityHandler struct {
	streakRepo streak.Repository
	publisher  shared.EventPublisher
	retrier    *retry.Retrier
	milestones []int
}

// NewRecordActivityHandler creates a new RecordActivityHandler. Milestones
// must be ascending.
func NewRecordActivityHandler(
	streakRepo streak.Repository,
	publisher shared.EventPublisher,
	milestones []int,
) *RecordActivityHandler {
	return &RecordActivityHandler{
		streakRepo: streakRepo,
		publisher:  publisher,
		retrier:    retry.StorageRetrier(),
		milestones: milestones,
	}
}

// Handle executes the record activity command.
func (h *RecordActivityHandler) Handle(ctx context.Context, cmd RecordActivityCommand) (*RecordActivityResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("record_activity: validation failed: %w", err)
	}

	timestamp := cmd.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	var (
		state   *streak.State
		outcome streak.Outcome
	)

	err := h.retrier.Do(ctx, func(ctx context.Context) error {
		st, err := h.streakRepo.Get(ctx, cmd.UserID)
		switch {
		case shared.IsNotFound(err):
			st = streak.NewState(cmd.UserID)
		case err != nil:
			return fmt.Errorf("record_activity: failed to load streak: %w", err)
		}

		out := st.RecordActivity(timestamp, cmd.Timezone, h.milestones)

		// No-op outcomes leave the state untouched and need no save.
		if out.Kind == streak.OutcomeNone || out.Kind == streak.OutcomeStale {
			state, outcome = st, out
			return nil
		}

		if err := h.streakRepo.Save(ctx, st); err != nil {
			if errors.Is(err, shared.ErrOptimisticLock) {
				return retry.Retryable(err)
			}
			return fmt.Errorf("record_activity: failed to save streak: %w", err)
		}

		state, outcome = st, out
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := &RecordActivityResult{
		UserID:        cmd.UserID,
		Outcome:       outcome.Kind,
		CurrentStreak: state.CurrentStreak,
		TotalStreak:   state.TotalStreak,
		Milestone:     outcome.Milestone,
		RecordedAt:    timestamp,
		Events:        make([]shared.Event, 0, 2),
	}

	switch outcome.Kind {
	case streak.OutcomeExtended:
		result.Events = append(result.Events,
			shared.NewStreakExtendedEvent(cmd.UserID, timestamp, state.CurrentStreak, state.TotalStreak))
		if outcome.Milestone > 0 {
			result.Events = append(result.Events,
				shared.NewStreakMilestoneEvent(cmd.UserID, timestamp, outcome.Milestone))
		}
	case streak.OutcomeAtRisk:
		result.RecoveryDeadline = state.RecoveryDeadline
		result.Events = append(result.Events,
			shared.NewStreakAtRiskEvent(cmd.UserID, timestamp, state.CurrentStreak, *state.RecoveryDeadline))
	case streak.OutcomeReset:
		result.Events = append(result.Events,
			shared.NewStreakResetEvent(cmd.UserID, timestamp, outcome.PreviousStreak))
	}

	for _, event := range result.Events {
		_ = h.publisher.Publish(event)
	}

	return result, nil
}
