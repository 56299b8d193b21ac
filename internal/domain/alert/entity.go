// Package alert holds the denormalized per-user alert flags that client
// surfaces poll. The flags are a projection of streak and achievement
// transitions; they carry no history, only the latest state.
package alert

import (
	"context"
	"time"
)

// Flags is the per-user alert row. Writes follow last-write-wins: whichever
// transition is projected last determines the stored value, with no
// read-modify-write cycle on individual flags.
type Flags struct {
	UserID string

	// ShowRecoverStreak - the user can recover a missed day right now.
	ShowRecoverStreak bool

	// ShowResetStreak - the streak was reset and the user has not seen it.
	ShowResetStreak bool

	// StreakMilestone - the streak length of an unseen milestone, zero when
	// there is nothing to show.
	StreakMilestone int

	// PendingAchievements - achievement IDs unlocked but not yet surfaced.
	PendingAchievements []string

	UpdatedAt time.Time
}

// Kind names one of the boolean flags for targeted writes.
type Kind string

const (
	// KindRecoverStreak - the recover-streak prompt.
	KindRecoverStreak Kind = "recover_streak"

	// KindResetStreak - the streak-was-reset notice.
	KindResetStreak Kind = "reset_streak"

	// KindStreakMilestone - the milestone banner. Carries an int value
	// rather than a boolean; acknowledging it zeroes the value.
	KindStreakMilestone Kind = "streak_milestone"
)

// Repository persists alert flags. Every write is an upsert; a user with no
// row reads as all-clear.
type Repository interface {
	// Get loads the flags for a user. A user with no row yields zero-valued
	// Flags, not an error.
	Get(ctx context.Context, userID string) (*Flags, error)

	// SetFlag sets or clears one boolean flag.
	SetFlag(ctx context.Context, userID string, kind Kind, value bool, at time.Time) error

	// SetMilestone stores the milestone value to surface; zero clears it.
	SetMilestone(ctx context.Context, userID string, milestone int, at time.Time) error

	// AddPendingAchievement appends an achievement ID to the pending list if
	// not already present.
	AddPendingAchievement(ctx context.Context, userID, achievementID string, at time.Time) error

	// Acknowledge clears one flag (boolean or milestone) or removes one
	// pending achievement, depending on which reference is given.
	Acknowledge(ctx context.Context, userID string, kind Kind, achievementID string, at time.Time) error
}
