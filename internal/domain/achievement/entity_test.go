package achievement

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagefeed/engagement-engine/internal/domain/shared"
)

func counterDef(id string, target int) *Definition {
	return &Definition{
		ID:     id,
		Name:   "Test Achievement",
		Points: 10,
		Criteria: Criteria{
			Kind:        KindCounter,
			EventType:   "article.read",
			TargetCount: target,
		},
	}
}

func TestCriteriaValidate(t *testing.T) {
	tests := []struct {
		name     string
		criteria Criteria
		wantErr  error
	}{
		{
			name:     "valid counter",
			criteria: Criteria{Kind: KindCounter, EventType: "article.read", TargetCount: 5},
		},
		{
			name:     "missing event type",
			criteria: Criteria{Kind: KindCounter, TargetCount: 5},
			wantErr:  shared.ErrValidation,
		},
		{
			name:     "zero target",
			criteria: Criteria{Kind: KindCounter, EventType: "article.read"},
			wantErr:  shared.ErrValidation,
		},
		{
			name:     "unknown kind",
			criteria: Criteria{Kind: "composite", EventType: "article.read", TargetCount: 5},
			wantErr:  shared.ErrUnknownCriteria,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.criteria.Validate()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDefinitionValidate(t *testing.T) {
	def := counterDef("ach-1", 5)
	require.NoError(t, def.Validate())

	noID := counterDef("", 5)
	assert.ErrorIs(t, noID.Validate(), shared.ErrValidation)

	negative := counterDef("ach-1", 5)
	negative.Points = -1
	assert.ErrorIs(t, negative.Validate(), shared.ErrValidation)
}

func TestProgressApply_UnlocksExactlyOnBoundary(t *testing.T) {
	def := counterDef("reader-5", 5)
	p := &Progress{UserID: "user-1", AchievementID: def.ID}
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	for i := 1; i <= 4; i++ {
		unlocked := p.Apply(def, now)
		assert.False(t, unlocked, "count %d must not unlock", i)
		assert.False(t, p.Unlocked())
	}

	unlocked := p.Apply(def, now)
	assert.True(t, unlocked, "exactly the fifth event unlocks")
	require.NotNil(t, p.UnlockedAt)
	assert.Equal(t, now, *p.UnlockedAt)
}

func TestProgressApply_PastTargetNeverReUnlocks(t *testing.T) {
	def := counterDef("reader-2", 2)
	p := &Progress{UserID: "user-1", AchievementID: def.ID}
	now := time.Now().UTC()

	p.Apply(def, now)
	assert.True(t, p.Apply(def, now))
	unlockedAt := *p.UnlockedAt

	for i := 0; i < 3; i++ {
		assert.False(t, p.Apply(def, now.Add(time.Hour)))
	}

	assert.Equal(t, 5, p.Count, "events past the target still count")
	assert.Equal(t, unlockedAt, *p.UnlockedAt, "unlock instant is immutable")
}
