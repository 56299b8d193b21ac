package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagefeed/engagement-engine/internal/domain/leaderboard"
	"github.com/pagefeed/engagement-engine/internal/domain/shared"
	"github.com/pagefeed/engagement-engine/internal/domain/streak"
)

func TestStreakRepository_OptimisticLock(t *testing.T) {
	ctx := context.Background()
	repo := NewStreakRepository()

	st := streak.NewState("user-1")
	require.NoError(t, repo.Save(ctx, st))

	// Two readers load the same version.
	a, err := repo.Get(ctx, "user-1")
	require.NoError(t, err)
	b, err := repo.Get(ctx, "user-1")
	require.NoError(t, err)

	require.NoError(t, repo.Save(ctx, a))
	assert.ErrorIs(t, repo.Save(ctx, b), shared.ErrOptimisticLock)
}

func TestStreakRepository_GetNotFound(t *testing.T) {
	repo := NewStreakRepository()

	_, err := repo.Get(context.Background(), "missing")

	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestStreakRepository_ListExpiredAtRisk(t *testing.T) {
	ctx := context.Background()
	repo := NewStreakRepository()
	now := time.Date(2024, 6, 13, 2, 0, 0, 0, time.UTC)

	expired := streak.NewState("user-expired")
	expired.Phase = streak.PhaseAtRisk
	deadline := now.Add(-time.Hour)
	expired.RecoveryDeadline = &deadline
	require.NoError(t, repo.Save(ctx, expired))

	open := streak.NewState("user-open")
	open.Phase = streak.PhaseAtRisk
	openDeadline := now.Add(time.Hour)
	open.RecoveryDeadline = &openDeadline
	require.NoError(t, repo.Save(ctx, open))

	normal := streak.NewState("user-normal")
	require.NoError(t, repo.Save(ctx, normal))

	got, err := repo.ListExpiredAtRisk(ctx, now, 10)

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "user-expired", got[0].UserID)
}

func TestRecoveryLog_CountSince(t *testing.T) {
	ctx := context.Background()
	log := NewRecoveryLog()
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, log.Append(ctx, streak.NewRecoveryRecord("user-1", base, 3)))
	require.NoError(t, log.Append(ctx, streak.NewRecoveryRecord("user-1", base.AddDate(0, 0, 10), 5)))
	require.NoError(t, log.Append(ctx, streak.NewRecoveryRecord("user-2", base.AddDate(0, 0, 10), 2)))

	count, err := log.CountSince(ctx, "user-1", base.AddDate(0, 0, 5))
	require.NoError(t, err)
	assert.Equal(t, 1, count, "only recoveries inside the window count")
}

func TestDedupStore_TTL(t *testing.T) {
	ctx := context.Background()
	store := NewDedupStore()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	fresh, err := store.MarkSeen(ctx, "evt-1", 24*time.Hour)
	require.NoError(t, err)
	assert.True(t, fresh)

	dup, err := store.MarkSeen(ctx, "evt-1", 24*time.Hour)
	require.NoError(t, err)
	assert.False(t, dup, "redelivery within the TTL is a duplicate")

	now = now.Add(25 * time.Hour)
	expired, err := store.MarkSeen(ctx, "evt-1", 24*time.Hour)
	require.NoError(t, err)
	assert.True(t, expired, "the key is forgotten after the TTL")

	require.NoError(t, store.Unmark(ctx, "evt-1"))
	released, err := store.MarkSeen(ctx, "evt-1", 24*time.Hour)
	require.NoError(t, err)
	assert.True(t, released, "an unmarked key can be claimed again")
}

func TestLeaderboardReader_OrderingAndTieBreak(t *testing.T) {
	ctx := context.Background()
	repo := NewStreakRepository()

	save := func(userID string, current, total int) {
		st := streak.NewState(userID)
		st.CurrentStreak = current
		st.TotalStreak = total
		require.NoError(t, repo.Save(ctx, st))
	}
	save("user-b", 5, 20)
	save("user-a", 5, 9)
	save("user-c", 8, 8)

	reader := NewLeaderboardReader(repo)

	byCurrent, err := reader.Top(ctx, leaderboard.MetricCurrent, 10)
	require.NoError(t, err)
	require.Len(t, byCurrent, 3)
	assert.Equal(t, "user-c", byCurrent[0].UserID)
	assert.Equal(t, "user-a", byCurrent[1].UserID, "equal values rank by userID ascending")
	assert.Equal(t, "user-b", byCurrent[2].UserID)
	assert.Equal(t, 1, byCurrent[0].Rank)
	assert.Equal(t, 3, byCurrent[2].Rank)

	byTotal, err := reader.Top(ctx, leaderboard.MetricTotal, 2)
	require.NoError(t, err)
	require.Len(t, byTotal, 2)
	assert.Equal(t, "user-b", byTotal[0].UserID)
	assert.Equal(t, "user-a", byTotal[1].UserID)
}
