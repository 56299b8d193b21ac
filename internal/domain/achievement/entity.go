// Package achievement contains the achievement catalog and per-user unlock
// progress. Definitions are data, not code: each one carries a criteria
// descriptor that tells the evaluator which events feed it and how many are
// needed.
package achievement

import (
	"time"

	"github.com/pagefeed/engagement-engine/internal/domain/shared"
)

// CriteriaKind discriminates the criteria union.
type CriteriaKind string

// KindCounter - unlock after a target number of qualifying events.
const KindCounter CriteriaKind = "counter"

// Criteria describes what it takes to unlock an achievement. Only the
// counter kind exists today; the tagged shape leaves room for streak-length
// or composite criteria later.
type Criteria struct {
	Kind CriteriaKind

	// EventType - the engagement event this criteria counts
	// (e.g. "article.read", "comment.posted").
	EventType string

	// TargetCount - events required to unlock. Must be positive.
	TargetCount int
}

// Validate checks the criteria descriptor.
func (c Criteria) Validate() error {
	switch c.Kind {
	case KindCounter:
		if c.EventType == "" {
			return shared.NewDomainError("achievement", "Criteria.Validate",
				shared.ErrValidation, "counter criteria requires an event type")
		}
		if c.TargetCount <= 0 {
			return shared.NewDomainError("achievement", "Criteria.Validate",
				shared.ErrValidation, "target count must be positive")
		}
		return nil
	default:
		return shared.ErrUnknownCriteria
	}
}

// Definition is one catalog entry. Definitions are seeded at startup and
// treated as immutable at runtime.
type Definition struct {
	ID          string
	Name        string
	Description string
	Points      int

	// Rarity is a display tier (common, rare, epic, legendary).
	Rarity string

	// Unit names the thing being counted, e.g. "articles" or "comments".
	Unit string

	Criteria  Criteria
	CreatedAt time.Time
}

// Display tiers for Definition.Rarity.
const (
	RarityCommon    = "common"
	RarityRare      = "rare"
	RarityEpic      = "epic"
	RarityLegendary = "legendary"
)

// Validate checks the definition.
func (d *Definition) Validate() error {
	if d.ID == "" {
		return shared.NewDomainError("achievement", "Definition.Validate",
			shared.ErrValidation, "definition id is required")
	}
	if d.Name == "" {
		return shared.NewDomainError("achievement", "Definition.Validate",
			shared.ErrValidation, "definition name is required")
	}
	if d.Points < 0 {
		return shared.NewDomainError("achievement", "Definition.Validate",
			shared.ErrValidation, "points cannot be negative")
	}
	return d.Criteria.Validate()
}

// Progress is a user's counter toward one achievement. Count only moves
// forward; UnlockedAt is set exactly once, when Count first reaches the
// target.
type Progress struct {
	UserID        string
	AchievementID string
	Count         int
	UnlockedAt    *time.Time
	UpdatedAt     time.Time
}

// Unlocked reports whether the achievement has been earned.
func (p *Progress) Unlocked() bool {
	return p.UnlockedAt != nil
}

// Apply counts one qualifying event against the definition. Returns true
// exactly when this event crossed the unlock boundary: the count moved from
// target-1 to target. Events past the target still increment the counter but
// never re-unlock.
func (p *Progress) Apply(def *Definition, at time.Time) bool {
	p.Count++
	p.UpdatedAt = at

	if p.UnlockedAt == nil && p.Count == def.Criteria.TargetCount {
		unlockedAt := at
		p.UnlockedAt = &unlockedAt
		return true
	}
	return false
}
