package achievement

import (
	"context"
	"time"
)

// DefinitionRepository is the read side of the achievement catalog plus the
// startup seeding hook.
type DefinitionRepository interface {
	// GetByID loads one definition. Returns shared.ErrDefinitionNotFound
	// when absent.
	GetByID(ctx context.Context, id string) (*Definition, error)

	// ListByEventType returns all definitions whose criteria count the given
	// event type.
	ListByEventType(ctx context.Context, eventType string) ([]*Definition, error)

	// List returns the whole catalog.
	List(ctx context.Context) ([]*Definition, error)

	// Seed inserts definitions that do not exist yet. Existing rows are left
	// untouched.
	Seed(ctx context.Context, defs []*Definition) error
}

// ProgressRepository persists per-user unlock progress.
//
// Increment is the linearization point for concurrent events: it must
// atomically bump the counter and return the resulting state, so that for a
// target of N exactly one caller observes the transition to N.
type ProgressRepository interface {
	// Increment adds one to the user's counter for the achievement, creating
	// the row if needed, and returns the post-increment progress.
	Increment(ctx context.Context, userID, achievementID string, at time.Time) (*Progress, error)

	// MarkUnlocked records the unlock instant. A no-op when already set.
	MarkUnlocked(ctx context.Context, userID, achievementID string, at time.Time) error

	// Get loads one progress row. Returns shared.ErrNotFound when the user
	// has no progress for the achievement.
	Get(ctx context.Context, userID, achievementID string) (*Progress, error)

	// ListByUser returns all of the user's progress rows.
	ListByUser(ctx context.Context, userID string) ([]*Progress, error)
}
