package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagefeed/engagement-engine/internal/domain/achievement"
	"github.com/pagefeed/engagement-engine/internal/domain/alert"
	"github.com/pagefeed/engagement-engine/internal/domain/leaderboard"
	"github.com/pagefeed/engagement-engine/internal/domain/streak"
	"github.com/pagefeed/engagement-engine/internal/infrastructure/persistence/memory"
)

func TestGetLeaderboard_DefaultsAndOrdering(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewStreakRepository()
	for _, tc := range []struct {
		userID  string
		current int
	}{
		{"user-a", 4}, {"user-b", 9}, {"user-c", 4},
	} {
		st := streak.NewState(tc.userID)
		st.CurrentStreak = tc.current
		st.TotalStreak = tc.current
		require.NoError(t, repo.Save(ctx, st))
	}
	h := NewGetLeaderboardHandler(memory.NewLeaderboardReader(repo))

	res, err := h.Handle(ctx, GetLeaderboardQuery{})

	require.NoError(t, err)
	assert.Equal(t, leaderboard.MetricCurrent, res.Metric)
	require.Len(t, res.Entries, 3)
	assert.Equal(t, "user-b", res.Entries[0].UserID)
	assert.Equal(t, "user-a", res.Entries[1].UserID)
	assert.Equal(t, "user-c", res.Entries[2].UserID)
}

func TestGetLeaderboard_RejectsUnknownMetric(t *testing.T) {
	h := NewGetLeaderboardHandler(memory.NewLeaderboardReader(memory.NewStreakRepository()))

	_, err := h.Handle(context.Background(), GetLeaderboardQuery{Metric: "xp"})

	assert.Error(t, err)
}

func TestGetAlertFlags_EmptyUserReadsAllClear(t *testing.T) {
	h := NewGetAlertFlagsHandler(memory.NewAlertRepository())

	dto, err := h.Handle(context.Background(), GetAlertFlagsQuery{UserID: "user-1"})

	require.NoError(t, err)
	assert.False(t, dto.ShowRecoverStreak)
	assert.False(t, dto.ShowResetStreak)
	assert.NotNil(t, dto.PendingAchievements)
	assert.Empty(t, dto.PendingAchievements)
}

func TestGetAlertFlags_ReflectsProjection(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewAlertRepository()
	now := time.Now().UTC()
	require.NoError(t, repo.SetFlag(ctx, "user-1", alert.KindRecoverStreak, true, now))
	require.NoError(t, repo.AddPendingAchievement(ctx, "user-1", "reader-3", now))
	h := NewGetAlertFlagsHandler(repo)

	dto, err := h.Handle(ctx, GetAlertFlagsQuery{UserID: "user-1"})

	require.NoError(t, err)
	assert.True(t, dto.ShowRecoverStreak)
	assert.Equal(t, []string{"reader-3"}, dto.PendingAchievements)
	require.NotNil(t, dto.UpdatedAt)
}

func TestGetStreak_UnknownUserReadsEmpty(t *testing.T) {
	h := NewGetStreakHandler(memory.NewStreakRepository())

	dto, err := h.Handle(context.Background(), GetStreakQuery{UserID: "user-1"})

	require.NoError(t, err)
	assert.Zero(t, dto.CurrentStreak)
	assert.False(t, dto.AtRisk)
	assert.Nil(t, dto.LastActivityAt)
}

func TestGetStreak_AtRiskExposesDeadline(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewStreakRepository()
	st := streak.NewState("user-1")
	st.CurrentStreak = 5
	st.TotalStreak = 8
	st.MaxStreak = 5
	st.LastActivityAt = time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)
	st.Phase = streak.PhaseAtRisk
	deadline := time.Date(2024, 6, 12, 23, 59, 59, 0, time.UTC)
	st.RecoveryDeadline = &deadline
	require.NoError(t, repo.Save(ctx, st))
	h := NewGetStreakHandler(repo)

	dto, err := h.Handle(ctx, GetStreakQuery{UserID: "user-1"})

	require.NoError(t, err)
	assert.True(t, dto.AtRisk)
	require.NotNil(t, dto.RecoveryDeadline)
	assert.Equal(t, deadline, *dto.RecoveryDeadline)
}

func TestGetAchievements_JoinsCatalogWithProgress(t *testing.T) {
	ctx := context.Background()
	defs := memory.NewDefinitionRepository()
	require.NoError(t, defs.Seed(ctx, []*achievement.Definition{
		{
			ID: "reader-3", Name: "Regular Reader", Points: 10,
			Rarity: achievement.RarityRare, Unit: "articles",
			Criteria: achievement.Criteria{Kind: achievement.KindCounter, EventType: "article.read", TargetCount: 3},
		},
		{
			ID: "commenter-2", Name: "Conversationalist", Points: 15,
			Criteria: achievement.Criteria{Kind: achievement.KindCounter, EventType: "comment.posted", TargetCount: 2},
		},
	}))
	progress := memory.NewProgressRepository()
	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		_, err := progress.Increment(ctx, "user-1", "reader-3", now)
		require.NoError(t, err)
	}
	require.NoError(t, progress.MarkUnlocked(ctx, "user-1", "reader-3", now))
	_, err := progress.Increment(ctx, "user-1", "commenter-2", now)
	require.NoError(t, err)

	h := NewGetAchievementsHandler(defs, progress)

	res, err := h.Handle(ctx, GetAchievementsQuery{UserID: "user-1"})
	require.NoError(t, err)
	require.Len(t, res.Achievements, 2)
	assert.Equal(t, 10, res.TotalPoints, "only unlocked achievements score points")

	unlocked, err := h.Handle(ctx, GetAchievementsQuery{UserID: "user-1", OnlyUnlocked: true})
	require.NoError(t, err)
	require.Len(t, unlocked.Achievements, 1)
	assert.Equal(t, "reader-3", unlocked.Achievements[0].AchievementID)
	assert.Equal(t, achievement.RarityRare, unlocked.Achievements[0].Rarity)
	assert.Equal(t, "articles", unlocked.Achievements[0].Unit)
}
