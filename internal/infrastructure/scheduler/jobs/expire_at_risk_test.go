package jobs

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagefeed/engagement-engine/internal/domain/shared"
	"github.com/pagefeed/engagement-engine/internal/domain/streak"
	"github.com/pagefeed/engagement-engine/internal/infrastructure/persistence/memory"
)

type capturePublisher struct {
	events []shared.Event
}

func (p *capturePublisher) Publish(event shared.Event) error {
	p.events = append(p.events, event)
	return nil
}

func atRiskState(t *testing.T, repo *memory.StreakRepository, userID string, current int, deadline time.Time) {
	t.Helper()

	st := streak.NewState(userID)
	st.CurrentStreak = current
	st.TotalStreak = current
	st.MaxStreak = current
	st.Phase = streak.PhaseAtRisk
	st.RecoveryDeadline = &deadline
	require.NoError(t, repo.Save(context.Background(), st))
}

func TestExpireAtRiskJob_LapsesExpiredStreaks(t *testing.T) {
	repo := memory.NewStreakRepository()
	publisher := &capturePublisher{}
	now := time.Date(2026, 3, 10, 4, 0, 0, 0, time.UTC)

	atRiskState(t, repo, "user-expired", 9, now.Add(-2*time.Hour))
	atRiskState(t, repo, "user-open", 5, now.Add(6*time.Hour))

	job := NewExpireAtRiskJob(repo, publisher, slog.Default())
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))

	expired, err := repo.Get(context.Background(), "user-expired")
	require.NoError(t, err)
	assert.Equal(t, 0, expired.CurrentStreak)
	assert.Equal(t, streak.PhaseNormal, expired.Phase)
	assert.Nil(t, expired.RecoveryDeadline)
	assert.Equal(t, 9, expired.TotalStreak, "lifetime count survives the lapse")

	open, err := repo.Get(context.Background(), "user-open")
	require.NoError(t, err)
	assert.Equal(t, 5, open.CurrentStreak)
	assert.Equal(t, streak.PhaseAtRisk, open.Phase)

	require.Len(t, publisher.events, 1)
	reset, ok := publisher.events[0].(shared.StreakResetEvent)
	require.True(t, ok)
	assert.Equal(t, "user-expired", reset.AggregateID())
	assert.Equal(t, 9, reset.PreviousStreak)
}

func TestExpireAtRiskJob_NoExpiredStreaks(t *testing.T) {
	repo := memory.NewStreakRepository()
	publisher := &capturePublisher{}

	job := NewExpireAtRiskJob(repo, publisher, slog.Default())

	require.NoError(t, job.Run(context.Background()))
	assert.Empty(t, publisher.events)
}

func TestExpireAtRiskJob_SecondRunIsIdempotent(t *testing.T) {
	repo := memory.NewStreakRepository()
	publisher := &capturePublisher{}
	now := time.Date(2026, 3, 10, 4, 0, 0, 0, time.UTC)

	atRiskState(t, repo, "user-1", 3, now.Add(-time.Hour))

	job := NewExpireAtRiskJob(repo, publisher, slog.Default())
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	require.NoError(t, job.Run(context.Background()))

	assert.Len(t, publisher.events, 1, "a lapsed streak is not reset twice")
}
