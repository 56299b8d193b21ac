package eventhandler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagefeed/engagement-engine/internal/domain/shared"
	"github.com/pagefeed/engagement-engine/internal/infrastructure/persistence/memory"
)

func TestOnStreakTransition_AtRiskShowsRecoverPrompt(t *testing.T) {
	repo := memory.NewAlertRepository()
	h := NewOnStreakTransitionHandler(repo, nil)
	now := time.Now().UTC()

	err := h.Handle(shared.NewStreakAtRiskEvent("user-1", now, 5, now.Add(6*time.Hour)))
	require.NoError(t, err)

	flags, err := repo.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.True(t, flags.ShowRecoverStreak)
	assert.False(t, flags.ShowResetStreak)
}

func TestOnStreakTransition_RecoveredHidesPrompt(t *testing.T) {
	repo := memory.NewAlertRepository()
	h := NewOnStreakTransitionHandler(repo, nil)
	now := time.Now().UTC()

	require.NoError(t, h.Handle(shared.NewStreakAtRiskEvent("user-1", now, 5, now.Add(6*time.Hour))))
	require.NoError(t, h.Handle(shared.NewStreakRecoveredEvent("user-1", now.Add(time.Hour), 6)))

	flags, err := repo.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.False(t, flags.ShowRecoverStreak)
}

func TestOnStreakTransition_RecoveredClearsStaleResetNotice(t *testing.T) {
	repo := memory.NewAlertRepository()
	h := NewOnStreakTransitionHandler(repo, nil)
	now := time.Now().UTC()

	// Reset, then a new streak goes at risk and the user recovers it. The
	// old reset notice must not survive the recovery.
	require.NoError(t, h.Handle(shared.NewStreakResetEvent("user-1", now, 5)))
	require.NoError(t, h.Handle(shared.NewStreakAtRiskEvent("user-1", now.Add(48*time.Hour), 2, now.Add(54*time.Hour))))
	require.NoError(t, h.Handle(shared.NewStreakRecoveredEvent("user-1", now.Add(50*time.Hour), 3)))

	flags, err := repo.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.False(t, flags.ShowRecoverStreak)
	assert.False(t, flags.ShowResetStreak)
}

func TestOnStreakTransition_MilestoneShowsBanner(t *testing.T) {
	repo := memory.NewAlertRepository()
	h := NewOnStreakTransitionHandler(repo, nil)
	now := time.Now().UTC()

	require.NoError(t, h.Handle(shared.NewStreakMilestoneEvent("user-1", now, 7)))

	flags, err := repo.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 7, flags.StreakMilestone)
}

func TestOnStreakTransition_SubscribesToMilestones(t *testing.T) {
	h := NewOnStreakTransitionHandler(memory.NewAlertRepository(), nil)
	assert.Contains(t, h.EventTypes(), shared.EventStreakMilestone)
}

func TestOnStreakTransition_ResetShowsNoticeAndClearsPrompt(t *testing.T) {
	repo := memory.NewAlertRepository()
	h := NewOnStreakTransitionHandler(repo, nil)
	now := time.Now().UTC()

	require.NoError(t, h.Handle(shared.NewStreakAtRiskEvent("user-1", now, 5, now.Add(6*time.Hour))))
	require.NoError(t, h.Handle(shared.NewStreakResetEvent("user-1", now.Add(26*time.Hour), 5)))

	flags, err := repo.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.False(t, flags.ShowRecoverStreak)
	assert.True(t, flags.ShowResetStreak)
}

func TestOnStreakTransition_ExtendedClearsEverything(t *testing.T) {
	repo := memory.NewAlertRepository()
	h := NewOnStreakTransitionHandler(repo, nil)
	now := time.Now().UTC()

	require.NoError(t, h.Handle(shared.NewStreakResetEvent("user-1", now, 5)))
	require.NoError(t, h.Handle(shared.NewStreakExtendedEvent("user-1", now.Add(time.Hour), 2, 7)))

	flags, err := repo.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.False(t, flags.ShowRecoverStreak)
	assert.False(t, flags.ShowResetStreak)
}

func TestOnStreakTransition_RedeliveryIsIdempotent(t *testing.T) {
	repo := memory.NewAlertRepository()
	h := NewOnStreakTransitionHandler(repo, nil)
	now := time.Now().UTC()
	event := shared.NewStreakAtRiskEvent("user-1", now, 5, now.Add(6*time.Hour))

	require.NoError(t, h.Handle(event))
	require.NoError(t, h.Handle(event))

	flags, err := repo.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.True(t, flags.ShowRecoverStreak)
}

func TestOnAchievementUnlocked_AppendsPendingOnce(t *testing.T) {
	repo := memory.NewAlertRepository()
	h := NewOnAchievementUnlockedHandler(repo, nil)
	now := time.Now().UTC()
	event := shared.NewAchievementUnlockedEvent("user-1", now, "reader-10", 25)

	require.NoError(t, h.Handle(event))
	require.NoError(t, h.Handle(event))

	flags, err := repo.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"reader-10"}, flags.PendingAchievements)
}

func TestOnAchievementUnlocked_IgnoresForeignEvents(t *testing.T) {
	repo := memory.NewAlertRepository()
	h := NewOnAchievementUnlockedHandler(repo, nil)

	err := h.Handle(shared.NewStreakResetEvent("user-1", time.Now().UTC(), 5))
	require.NoError(t, err)

	flags, err := repo.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Empty(t, flags.PendingAchievements)
}
