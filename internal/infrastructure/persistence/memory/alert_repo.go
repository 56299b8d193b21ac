package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/pagefeed/engagement-engine/internal/domain/alert"
)

// AlertRepository is an in-memory alert.Repository. Writes are last-write-
// wins per flag, matching the postgres implementation.
type AlertRepository struct {
	mu    sync.RWMutex
	flags map[string]alert.Flags
}

// NewAlertRepository creates an empty in-memory alert store.
func NewAlertRepository() *AlertRepository {
	return &AlertRepository{flags: make(map[string]alert.Flags)}
}

// Get loads the flags for a user; missing users read as all-clear.
func (r *AlertRepository) Get(ctx context.Context, userID string) (*alert.Flags, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.flags[userID]
	if !ok {
		return &alert.Flags{UserID: userID}, nil
	}
	copied := f
	copied.PendingAchievements = slices.Clone(f.PendingAchievements)
	return &copied, nil
}

// SetFlag sets or clears one boolean flag.
func (r *AlertRepository) SetFlag(ctx context.Context, userID string, kind alert.Kind, value bool, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	f := r.flags[userID]
	f.UserID = userID
	switch kind {
	case alert.KindRecoverStreak:
		f.ShowRecoverStreak = value
	case alert.KindResetStreak:
		f.ShowResetStreak = value
	}
	f.UpdatedAt = at
	r.flags[userID] = f
	return nil
}

// SetMilestone stores the milestone value to surface; zero clears it.
func (r *AlertRepository) SetMilestone(ctx context.Context, userID string, milestone int, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	f := r.flags[userID]
	f.UserID = userID
	f.StreakMilestone = milestone
	f.UpdatedAt = at
	r.flags[userID] = f
	return nil
}

// AddPendingAchievement appends an achievement ID if not present.
func (r *AlertRepository) AddPendingAchievement(ctx context.Context, userID, achievementID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	f := r.flags[userID]
	f.UserID = userID
	if !slices.Contains(f.PendingAchievements, achievementID) {
		f.PendingAchievements = append(f.PendingAchievements, achievementID)
	}
	f.UpdatedAt = at
	r.flags[userID] = f
	return nil
}

// Acknowledge clears one flag or removes one pending achievement.
func (r *AlertRepository) Acknowledge(ctx context.Context, userID string, kind alert.Kind, achievementID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, ok := r.flags[userID]
	if !ok {
		return nil
	}
	switch {
	case achievementID != "":
		f.PendingAchievements = slices.DeleteFunc(f.PendingAchievements, func(id string) bool {
			return id == achievementID
		})
	case kind == alert.KindRecoverStreak:
		f.ShowRecoverStreak = false
	case kind == alert.KindResetStreak:
		f.ShowResetStreak = false
	case kind == alert.KindStreakMilestone:
		f.StreakMilestone = 0
	}
	f.UpdatedAt = at
	r.flags[userID] = f
	return nil
}
