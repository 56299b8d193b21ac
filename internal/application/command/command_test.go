package command

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagefeed/engagement-engine/internal/domain/achievement"
	"github.com/pagefeed/engagement-engine/internal/domain/shared"
	"github.com/pagefeed/engagement-engine/internal/domain/streak"
	"github.com/pagefeed/engagement-engine/internal/infrastructure/persistence/memory"
)

// capturePublisher collects published events for assertions.
type capturePublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *capturePublisher) Publish(event shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *capturePublisher) types() []shared.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]shared.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType())
	}
	return out
}

var milestones = []int{3, 7, 14, 30, 50, 100, 365}

func day(d, hour int) time.Time {
	return time.Date(2024, 6, d, hour, 0, 0, 0, time.UTC)
}

func TestRecordActivityHandler_ExtendsAndPublishes(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewStreakRepository()
	pub := &capturePublisher{}
	h := NewRecordActivityHandler(repo, pub, milestones)

	for d := 1; d <= 3; d++ {
		res, err := h.Handle(ctx, RecordActivityCommand{
			UserID:    "user-1",
			Timezone:  "UTC",
			Timestamp: day(d, 9),
		})
		require.NoError(t, err)
		assert.Equal(t, streak.OutcomeExtended, res.Outcome)
	}

	assert.Equal(t, []shared.EventType{
		shared.EventStreakExtended,
		shared.EventStreakExtended,
		shared.EventStreakExtended,
		shared.EventStreakMilestone,
	}, pub.types(), "the third day lands on the first milestone")

	st, err := repo.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 3, st.CurrentStreak)
}

func TestRecordActivityHandler_SameDayPublishesNothing(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewStreakRepository()
	pub := &capturePublisher{}
	h := NewRecordActivityHandler(repo, pub, milestones)

	_, err := h.Handle(ctx, RecordActivityCommand{UserID: "user-1", Timestamp: day(1, 9)})
	require.NoError(t, err)
	res, err := h.Handle(ctx, RecordActivityCommand{UserID: "user-1", Timestamp: day(1, 18)})
	require.NoError(t, err)

	assert.Equal(t, streak.OutcomeNone, res.Outcome)
	assert.Len(t, pub.types(), 1, "only the first activity published")
}

func TestRecordActivityHandler_AtRiskCarriesDeadline(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewStreakRepository()
	pub := &capturePublisher{}
	h := NewRecordActivityHandler(repo, pub, milestones)

	_, err := h.Handle(ctx, RecordActivityCommand{UserID: "user-1", Timestamp: day(10, 9)})
	require.NoError(t, err)
	res, err := h.Handle(ctx, RecordActivityCommand{UserID: "user-1", Timestamp: day(12, 9)})
	require.NoError(t, err)

	assert.Equal(t, streak.OutcomeAtRisk, res.Outcome)
	require.NotNil(t, res.RecoveryDeadline)
	assert.Equal(t, 12, res.RecoveryDeadline.Day())
	assert.Contains(t, pub.types(), shared.EventStreakAtRisk)
}

func TestRecordActivityHandler_Validation(t *testing.T) {
	h := NewRecordActivityHandler(memory.NewStreakRepository(), &capturePublisher{}, milestones)

	_, err := h.Handle(context.Background(), RecordActivityCommand{})

	assert.Error(t, err)
}

func TestRecoverStreakHandler_Success(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewStreakRepository()
	log := memory.NewRecoveryLog()
	pub := &capturePublisher{}
	activity := NewRecordActivityHandler(repo, pub, milestones)
	h := NewRecoverStreakHandler(repo, log, pub, 7*24*time.Hour)

	_, err := activity.Handle(ctx, RecordActivityCommand{UserID: "user-1", Timestamp: day(10, 9)})
	require.NoError(t, err)
	_, err = activity.Handle(ctx, RecordActivityCommand{UserID: "user-1", Timestamp: day(12, 9)})
	require.NoError(t, err)

	res, err := h.Handle(ctx, RecoverStreakCommand{UserID: "user-1", Timestamp: day(12, 15)})

	require.NoError(t, err)
	assert.Equal(t, 2, res.CurrentStreak)
	assert.Contains(t, pub.types(), shared.EventStreakRecovered)

	count, err := log.CountSince(ctx, "user-1", day(12, 0))
	require.NoError(t, err)
	assert.Equal(t, 1, count, "the recovery is journaled")
}

func TestRecoverStreakHandler_WindowExhausted(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewStreakRepository()
	log := memory.NewRecoveryLog()
	pub := &capturePublisher{}
	activity := NewRecordActivityHandler(repo, pub, milestones)
	h := NewRecoverStreakHandler(repo, log, pub, 7*24*time.Hour)

	_, err := activity.Handle(ctx, RecordActivityCommand{UserID: "user-1", Timestamp: day(10, 9)})
	require.NoError(t, err)
	_, err = activity.Handle(ctx, RecordActivityCommand{UserID: "user-1", Timestamp: day(12, 9)})
	require.NoError(t, err)
	_, err = h.Handle(ctx, RecoverStreakCommand{UserID: "user-1", Timestamp: day(12, 15)})
	require.NoError(t, err)

	// A second gap four days later: the window still covers the first
	// recovery, so the second attempt is rejected.
	_, err = activity.Handle(ctx, RecordActivityCommand{UserID: "user-1", Timestamp: day(13, 9)})
	require.NoError(t, err)
	_, err = activity.Handle(ctx, RecordActivityCommand{UserID: "user-1", Timestamp: day(15, 9)})
	require.NoError(t, err)

	_, err = h.Handle(ctx, RecoverStreakCommand{UserID: "user-1", Timestamp: day(15, 12)})

	assert.ErrorIs(t, err, shared.ErrNotEligible)
}

// failingRecoveryLog rejects every append while reporting an empty history.
type failingRecoveryLog struct{}

func (l *failingRecoveryLog) Append(ctx context.Context, record *streak.RecoveryRecord) error {
	return shared.ErrUnavailable
}

func (l *failingRecoveryLog) CountSince(ctx context.Context, userID string, since time.Time) (int, error) {
	return 0, nil
}

func (l *failingRecoveryLog) ListByUser(ctx context.Context, userID string, limit int) ([]*streak.RecoveryRecord, error) {
	return nil, nil
}

func TestRecoverStreakHandler_LogAppendFailureDoesNotFailRecovery(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewStreakRepository()
	pub := &capturePublisher{}
	activity := NewRecordActivityHandler(repo, pub, milestones)
	h := NewRecoverStreakHandler(repo, &failingRecoveryLog{}, pub, 7*24*time.Hour)

	_, err := activity.Handle(ctx, RecordActivityCommand{UserID: "user-1", Timestamp: day(10, 9)})
	require.NoError(t, err)
	_, err = activity.Handle(ctx, RecordActivityCommand{UserID: "user-1", Timestamp: day(12, 9)})
	require.NoError(t, err)

	res, err := h.Handle(ctx, RecoverStreakCommand{UserID: "user-1", Timestamp: day(12, 15)})

	require.NoError(t, err, "an applied recovery is never reported as failed")
	assert.Equal(t, 2, res.CurrentStreak)
	assert.Contains(t, pub.types(), shared.EventStreakRecovered)

	state, err := repo.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, streak.PhaseNormal, state.Phase)
}

func TestRecoverStreakHandler_NotAtRisk(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewStreakRepository()
	pub := &capturePublisher{}
	activity := NewRecordActivityHandler(repo, pub, milestones)
	h := NewRecoverStreakHandler(repo, memory.NewRecoveryLog(), pub, 7*24*time.Hour)

	_, err := activity.Handle(ctx, RecordActivityCommand{UserID: "user-1", Timestamp: day(10, 9)})
	require.NoError(t, err)

	_, err = h.Handle(ctx, RecoverStreakCommand{UserID: "user-1", Timestamp: day(10, 12)})

	assert.ErrorIs(t, err, shared.ErrRecoveryNotOpen)
}

func seedCatalog(t *testing.T, defs *memory.DefinitionRepository) {
	t.Helper()
	err := defs.Seed(context.Background(), []*achievement.Definition{
		{
			ID:     "reader-3",
			Name:   "Regular Reader",
			Points: 10,
			Criteria: achievement.Criteria{
				Kind: achievement.KindCounter, EventType: "article.read", TargetCount: 3,
			},
		},
		{
			ID:     "commenter-2",
			Name:   "Conversationalist",
			Points: 15,
			Criteria: achievement.Criteria{
				Kind: achievement.KindCounter, EventType: "comment.posted", TargetCount: 2,
			},
		},
	})
	require.NoError(t, err)
}

func TestRecordEngagementEventHandler_UnlocksOnBoundary(t *testing.T) {
	ctx := context.Background()
	defs := memory.NewDefinitionRepository()
	seedCatalog(t, defs)
	progress := memory.NewProgressRepository()
	pub := &capturePublisher{}
	h := NewRecordEngagementEventHandler(defs, progress, pub)

	for i := 0; i < 2; i++ {
		res, err := h.Handle(ctx, RecordEngagementEventCommand{
			UserID: "user-1", EventType: "article.read", Timestamp: day(1, 9),
		})
		require.NoError(t, err)
		assert.Empty(t, res.Unlocked)
	}

	res, err := h.Handle(ctx, RecordEngagementEventCommand{
		UserID: "user-1", EventType: "article.read", Timestamp: day(1, 10),
	})
	require.NoError(t, err)
	require.Len(t, res.Unlocked, 1)
	assert.Equal(t, "reader-3", res.Unlocked[0].AchievementID)
	assert.Equal(t, 10, res.Unlocked[0].Points)

	// Past the target: counted, never re-unlocked.
	res, err = h.Handle(ctx, RecordEngagementEventCommand{
		UserID: "user-1", EventType: "article.read", Timestamp: day(1, 11),
	})
	require.NoError(t, err)
	assert.Empty(t, res.Unlocked)

	p, err := progress.Get(ctx, "user-1", "reader-3")
	require.NoError(t, err)
	assert.Equal(t, 4, p.Count)
	assert.True(t, p.Unlocked())
}

func TestRecordEngagementEventHandler_UnmatchedTypeCountsNothing(t *testing.T) {
	ctx := context.Background()
	defs := memory.NewDefinitionRepository()
	seedCatalog(t, defs)
	h := NewRecordEngagementEventHandler(defs, memory.NewProgressRepository(), &capturePublisher{})

	res, err := h.Handle(ctx, RecordEngagementEventCommand{
		UserID: "user-1", EventType: "profile.viewed",
	})

	require.NoError(t, err)
	assert.Zero(t, res.Matched)
	assert.Empty(t, res.Unlocked)
}

func newTestGateway(repo *memory.StreakRepository, pub *capturePublisher) (*IngestEventHandler, *memory.ProgressRepository) {
	defs := memory.NewDefinitionRepository()
	_ = defs.Seed(context.Background(), []*achievement.Definition{{
		ID: "reader-3", Name: "Regular Reader", Points: 10,
		Criteria: achievement.Criteria{
			Kind: achievement.KindCounter, EventType: "article.read", TargetCount: 3,
		},
	}})
	progress := memory.NewProgressRepository()

	gateway := NewIngestEventHandler(
		memory.NewDedupStore(),
		NewRecordActivityHandler(repo, pub, milestones),
		NewRecordEngagementEventHandler(defs, progress, pub),
		[]string{"article.read"},
		24*time.Hour,
	)
	return gateway, progress
}

func TestIngestEventHandler_RoutesQualifyingEvents(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewStreakRepository()
	pub := &capturePublisher{}
	gateway, _ := newTestGateway(repo, pub)

	res, err := gateway.Handle(ctx, IngestEventCommand{
		EventID: "evt-1", UserID: "user-1", EventType: "article.read",
		Timezone: "UTC", Timestamp: day(1, 9),
	})

	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	require.NotNil(t, res.Activity, "qualifying events feed the streak")
	assert.Equal(t, 1, res.Activity.CurrentStreak)
	require.NotNil(t, res.Engagement)
	assert.Equal(t, 1, res.Engagement.Matched)
}

func TestIngestEventHandler_NonQualifyingSkipsStreak(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewStreakRepository()
	gateway, _ := newTestGateway(repo, &capturePublisher{})

	res, err := gateway.Handle(ctx, IngestEventCommand{
		EventID: "evt-1", UserID: "user-1", EventType: "profile.viewed",
		Timestamp: day(1, 9),
	})

	require.NoError(t, err)
	assert.Nil(t, res.Activity)

	_, err = repo.Get(ctx, "user-1")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestIngestEventHandler_DuplicateIsSuccessNoOp(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewStreakRepository()
	gateway, progress := newTestGateway(repo, &capturePublisher{})

	cmd := IngestEventCommand{
		EventID: "evt-1", UserID: "user-1", EventType: "article.read",
		Timezone: "UTC", Timestamp: day(1, 9),
	}

	_, err := gateway.Handle(ctx, cmd)
	require.NoError(t, err)

	res, err := gateway.Handle(ctx, cmd)
	require.NoError(t, err, "duplicates are acknowledged, not rejected")
	assert.True(t, res.Duplicate)
	assert.Nil(t, res.Activity)
	assert.Nil(t, res.Engagement)

	p, err := progress.Get(ctx, "user-1", "reader-3")
	require.NoError(t, err)
	assert.Equal(t, 1, p.Count, "the duplicate counted nothing")
}

// flakyStreakRepo fails reads until healed.
type flakyStreakRepo struct {
	*memory.StreakRepository
	fail bool
}

func (r *flakyStreakRepo) Get(ctx context.Context, userID string) (*streak.State, error) {
	if r.fail {
		return nil, shared.ErrUnavailable
	}
	return r.StreakRepository.Get(ctx, userID)
}

func TestIngestEventHandler_RedeliveryAfterFailureIsNotDuplicate(t *testing.T) {
	ctx := context.Background()
	repo := &flakyStreakRepo{StreakRepository: memory.NewStreakRepository(), fail: true}
	pub := &capturePublisher{}
	gateway := NewIngestEventHandler(
		memory.NewDedupStore(),
		NewRecordActivityHandler(repo, pub, milestones),
		NewRecordEngagementEventHandler(memory.NewDefinitionRepository(), memory.NewProgressRepository(), pub),
		[]string{"article.read"},
		24*time.Hour,
	)

	cmd := IngestEventCommand{
		EventID: "evt-1", UserID: "user-1", EventType: "article.read",
		Timezone: "UTC", Timestamp: day(1, 9),
	}

	_, err := gateway.Handle(ctx, cmd)
	require.Error(t, err)

	repo.fail = false

	res, err := gateway.Handle(ctx, cmd)
	require.NoError(t, err, "the producer's redelivery must be processed")
	assert.False(t, res.Duplicate, "a failed delivery does not claim the dedup key")
	require.NotNil(t, res.Activity)
	assert.Equal(t, 1, res.Activity.CurrentStreak)
}

func TestIngestEventHandler_Validation(t *testing.T) {
	gateway, _ := newTestGateway(memory.NewStreakRepository(), &capturePublisher{})

	tests := []struct {
		name string
		cmd  IngestEventCommand
	}{
		{"missing event id", IngestEventCommand{UserID: "u", EventType: "article.read"}},
		{"missing user id", IngestEventCommand{EventID: "e", EventType: "article.read"}},
		{"missing event type", IngestEventCommand{EventID: "e", UserID: "u"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := gateway.Handle(context.Background(), tt.cmd)
			assert.Error(t, err)
		})
	}
}

func TestAcknowledgeAlertHandler(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewAlertRepository()
	h := NewAcknowledgeAlertHandler(repo)
	now := time.Now().UTC()

	require.NoError(t, repo.SetFlag(ctx, "user-1", "reset_streak", true, now))
	require.NoError(t, repo.SetMilestone(ctx, "user-1", 7, now))
	require.NoError(t, repo.AddPendingAchievement(ctx, "user-1", "reader-3", now))

	require.NoError(t, h.Handle(ctx, AcknowledgeAlertCommand{UserID: "user-1", Kind: "reset_streak"}))
	require.NoError(t, h.Handle(ctx, AcknowledgeAlertCommand{UserID: "user-1", Kind: "streak_milestone"}))
	require.NoError(t, h.Handle(ctx, AcknowledgeAlertCommand{UserID: "user-1", AchievementID: "reader-3"}))

	flags, err := repo.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, flags.ShowResetStreak)
	assert.Zero(t, flags.StreakMilestone)
	assert.Empty(t, flags.PendingAchievements)

	assert.Error(t, h.Handle(ctx, AcknowledgeAlertCommand{UserID: "user-1"}),
		"one of kind or achievement id is required")
	assert.Error(t, h.Handle(ctx, AcknowledgeAlertCommand{
		UserID: "user-1", Kind: "reset_streak", AchievementID: "reader-3",
	}))
}
