// Package jobs contains the concrete background jobs the engine schedules.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pagefeed/engagement-engine/internal/domain/shared"
	"github.com/pagefeed/engagement-engine/internal/domain/streak"
)

// ExpireAtRiskJob sweeps at-risk streaks whose recovery deadline has passed
// and lapses them. A lapsed streak reads as zero until the user's next
// activity starts a fresh one.
//
// The sweep is a safety net, not the primary enforcement: reads and writes
// already treat a lapsed deadline as a reset. It exists so dormant users do
// not keep a stale at-risk row and an open recovery prompt forever.
type ExpireAtRiskJob struct {
	streaks   streak.Repository
	publisher shared.EventPublisher
	logger    *slog.Logger
	batchSize int
	now       func() time.Time
}

// NewExpireAtRiskJob creates the sweep job.
func NewExpireAtRiskJob(streaks streak.Repository, publisher shared.EventPublisher, logger *slog.Logger) *ExpireAtRiskJob {
	return &ExpireAtRiskJob{
		streaks:   streaks,
		publisher: publisher,
		logger:    logger.With("job", "expire_at_risk"),
		batchSize: 500,
		now:       time.Now,
	}
}

// Name implements scheduler.Job.
func (j *ExpireAtRiskJob) Name() string { return "expire_at_risk" }

// Description implements scheduler.Job.
func (j *ExpireAtRiskJob) Description() string {
	return "lapses at-risk streaks whose recovery deadline has passed"
}

// Run sweeps in batches until no expired at-risk streaks remain.
func (j *ExpireAtRiskJob) Run(ctx context.Context) error {
	now := j.now()
	lapsed := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		states, err := j.streaks.ListExpiredAtRisk(ctx, now, j.batchSize)
		if err != nil {
			return fmt.Errorf("list expired at-risk streaks: %w", err)
		}
		if len(states) == 0 {
			break
		}

		for _, st := range states {
			if err := j.lapseOne(ctx, st, now); err != nil {
				j.logger.Error("failed to lapse streak", "user_id", st.UserID, "error", err)
				continue
			}
			lapsed++
		}

		if len(states) < j.batchSize {
			break
		}
	}

	if lapsed > 0 {
		j.logger.Info("lapsed expired streaks", "count", lapsed)
	}
	return nil
}

func (j *ExpireAtRiskJob) lapseOne(ctx context.Context, st *streak.State, now time.Time) error {
	previous := st.CurrentStreak
	if !st.Lapse(now) {
		return nil
	}

	if err := j.streaks.Save(ctx, st); err != nil {
		// A lost version race means the user acted between the list and
		// the save; their own write settles the state.
		if errors.Is(err, shared.ErrOptimisticLock) {
			return nil
		}
		return err
	}

	return j.publisher.Publish(shared.NewStreakResetEvent(st.UserID, now, previous))
}
