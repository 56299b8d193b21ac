package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pagefeed/engagement-engine/internal/domain/shared"
	"github.com/pagefeed/engagement-engine/internal/domain/streak"
	"github.com/pagefeed/engagement-engine/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECOVER STREAK COMMAND
// Covers a missed day while the streak is at risk. Limited to one recovery
// per rolling eligibility window, enforced against the append-only log.
// ══════════════════════════════════════════════════════════════════════════════

// RecoverStreakCommand contains the data to recover a streak.
type RecoverStreakCommand struct {
	// UserID is the internal ID of the user.
	UserID string

	// Timestamp is when the recovery was requested (defaults to now if zero).
	Timestamp time.Time

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c RecoverStreakCommand) Validate() error {
	if c.UserID == "" {
		return errors.New("recover_streak: user_id is required")
	}
	return nil
}

// RecoverStreakResult contains the result of a recovery.
type RecoverStreakResult struct {
	// UserID is the internal ID of the user.
	UserID string

	// CurrentStreak is the streak after recovery.
	CurrentStreak int

	// TotalStreak is the lifetime count after recovery.
	TotalStreak int

	// RecoveredAt is the instant the recovery was applied under.
	RecoveredAt time.Time

	// Events contains the domain events generated.
	Events []shared.Event
}

// RecoverStreakHandler handles the RecoverStreakCommand.
type RecoverStreakHandler struct {
	streakRepo  streak.Repository
	recoveryLog streak.RecoveryLog
	publisher   shared.EventPublisher
	retrier     *retry.Retrier
	logger      *slog.Logger

	// window is the rolling eligibility period: at most one recovery per
	// user within it.
	window time.Duration
}

// NewRecoverStreakHandler creates a new RecoverStreakHandler.
func NewRecoverStreakHandler(
	streakRepo streak.Repository,
	recoveryLog streak.RecoveryLog,
	publisher shared.EventPublisher,
	window time.Duration,
) *RecoverStreakHandler {
	return &RecoverStreakHandler{
		streakRepo:  streakRepo,
		recoveryLog: recoveryLog,
		publisher:   publisher,
		retrier:     retry.StorageRetrier(),
		logger:      slog.Default(),
		window:      window,
	}
}

// Handle executes the recover streak command.
func (h *RecoverStreakHandler) Handle(ctx context.Context, cmd RecoverStreakCommand) (*RecoverStreakResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("recover_streak: validation failed: %w", err)
	}

	timestamp := cmd.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	used, err := h.recoveryLog.CountSince(ctx, cmd.UserID, timestamp.Add(-h.window))
	if err != nil {
		return nil, fmt.Errorf("recover_streak: failed to check eligibility: %w", err)
	}
	if used > 0 {
		return nil, shared.ErrRecoveryExhausted
	}

	var state *streak.State

	err = h.retrier.Do(ctx, func(ctx context.Context) error {
		st, err := h.streakRepo.Get(ctx, cmd.UserID)
		if err != nil {
			return fmt.Errorf("recover_streak: failed to load streak: %w", err)
		}

		if _, err := st.Recover(timestamp); err != nil {
			return retry.Permanent(err)
		}

		if err := h.streakRepo.Save(ctx, st); err != nil {
			if errors.Is(err, shared.ErrOptimisticLock) {
				return retry.Retryable(err)
			}
			return fmt.Errorf("recover_streak: failed to save streak: %w", err)
		}

		state = st
		return nil
	})
	if err != nil {
		return nil, err
	}

	// The saved state is authoritative; the log entry only feeds the
	// eligibility check. If the append keeps failing the entry is dropped:
	// the miss grants this user at most one extra recovery inside the
	// window, it never reports failure for a recovery that already applied.
	record := streak.NewRecoveryRecord(cmd.UserID, timestamp, state.CurrentStreak)
	appendErr := h.retrier.Do(ctx, func(ctx context.Context) error {
		if err := h.recoveryLog.Append(ctx, record); err != nil {
			return retry.Retryable(err)
		}
		return nil
	})
	if appendErr != nil {
		h.logger.Error("recovery applied but not recorded in eligibility log",
			"user_id", cmd.UserID,
			"error", appendErr,
		)
	}

	event := shared.NewStreakRecoveredEvent(cmd.UserID, timestamp, state.CurrentStreak)
	_ = h.publisher.Publish(event)

	return &RecoverStreakResult{
		UserID:        cmd.UserID,
		CurrentStreak: state.CurrentStreak,
		TotalStreak:   state.TotalStreak,
		RecoveredAt:   timestamp,
		Events:        []shared.Event{event},
	}, nil
}
