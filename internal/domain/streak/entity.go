// Package streak contains the reading-streak domain model: per-user streak
// state, the at-risk/recovery state machine, and the append-only recovery log.
//
// A streak counts consecutive qualifying local days, computed in the user's
// own timezone. Missing exactly one day does not reset the streak outright:
// the state becomes "at risk" and the user may cover the missed day with a
// one-time recovery before the end of the current local day.
package streak

import (
	"time"

	"github.com/google/uuid"

	"github.com/pagefeed/engagement-engine/internal/domain/shared"
	"github.com/pagefeed/engagement-engine/pkg/timeutil"
)

// Phase is the explicit tag of the streak state machine. Modeling it as a
// stored field (rather than inferring it from timestamps at read time) keeps
// the deadline check and the eligibility check independently testable.
type Phase string

const (
	// PhaseNormal - streak is intact or empty.
	PhaseNormal Phase = "normal"

	// PhaseAtRisk - exactly one local day was missed; recovery is open until
	// RecoveryDeadline.
	PhaseAtRisk Phase = "at_risk"
)

// State is the per-user streak aggregate. Mutated only by the tracker;
// created implicitly on the first qualifying activity.
type State struct {
	// UserID - owner of the streak.
	UserID string

	// CurrentStreak - consecutive qualifying local days.
	CurrentStreak int

	// TotalStreak - lifetime count of qualifying days. Never less than
	// CurrentStreak.
	TotalStreak int

	// MaxStreak - historical ceiling of CurrentStreak.
	MaxStreak int

	// LastActivityAt - instant of the last counted activity. Monotonically
	// non-decreasing.
	LastActivityAt time.Time

	// LastActivityDay - cached local day of LastActivityAt, for fast
	// comparison without re-resolving the zone.
	LastActivityDay int

	// Timezone - IANA zone of the last recorded activity. Used when an
	// operation (recovery, deadline sweep) has no zone of its own.
	Timezone string

	// Phase - current state machine phase.
	Phase Phase

	// RecoveryDeadline - end of the local day on which recovery is possible.
	// Set only while Phase == PhaseAtRisk.
	RecoveryDeadline *time.Time

	// Version - optimistic concurrency token, bumped by the repository on
	// every successful save.
	Version int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewState creates an empty streak state for a user.
func NewState(userID string) *State {
	now := time.Now().UTC()
	return &State{
		UserID:    userID,
		Phase:     PhaseNormal,
		Timezone:  "UTC",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// OutcomeKind classifies what a recorded activity did to the state.
type OutcomeKind string

const (
	// OutcomeNone - same local day as the last counted activity; idempotent
	// no-op.
	OutcomeNone OutcomeKind = "none"

	// OutcomeExtended - consecutive day (or first ever activity) counted.
	OutcomeExtended OutcomeKind = "extended"

	// OutcomeAtRisk - one day missed; recovery window opened.
	OutcomeAtRisk OutcomeKind = "at_risk"

	// OutcomeReset - two or more days missed, or an at-risk deadline lapsed;
	// streak restarted at one.
	OutcomeReset OutcomeKind = "reset"

	// OutcomeRecovered - missed day covered via explicit recovery.
	OutcomeRecovered OutcomeKind = "recovered"

	// OutcomeStale - activity older than the last counted one; dropped.
	OutcomeStale OutcomeKind = "stale"
)

// Outcome describes the transition a mutating operation produced.
type Outcome struct {
	Kind OutcomeKind

	// Milestone is set (>0) when the extension landed exactly on a
	// configured threshold.
	Milestone int

	// PreviousStreak carries the pre-reset value for OutcomeReset.
	PreviousStreak int
}

// RecordActivity applies one qualifying activity to the state. The zone is
// the user's IANA timezone (unknown zones fall back to UTC inside timeutil).
// Milestones must be ascending; a milestone fires only when CurrentStreak
// lands exactly on a threshold.
//
// The transition table, keyed by day - lastActivityDay:
//
//	same day        -> no-op (duplicate delivery guard)
//	+1 or first     -> count the day, extend the streak
//	+2              -> at risk: nothing counted, recovery opens until end of day
//	>+2, or lapsed  -> reset to 1
//	negative        -> stale, dropped
func (s *State) RecordActivity(instant time.Time, zone string, milestones []int) Outcome {
	day := timeutil.LocalDay(instant, zone)

	if s.LastActivityAt.IsZero() {
		s.extend(instant, zone, day)
		return Outcome{Kind: OutcomeExtended, Milestone: milestoneHit(s.CurrentStreak, milestones)}
	}

	prevDay := s.LastActivityDay

	switch {
	case day < prevDay:
		return Outcome{Kind: OutcomeStale}

	case day == prevDay:
		return Outcome{Kind: OutcomeNone}

	case s.Phase == PhaseAtRisk && s.RecoveryDeadline != nil && instant.After(*s.RecoveryDeadline):
		// The recovery window closed without a recovery; this activity
		// restarts the streak no matter how many days passed.
		return s.reset(instant, zone, day)

	case day == prevDay+1:
		s.extend(instant, zone, day)
		return Outcome{Kind: OutcomeExtended, Milestone: milestoneHit(s.CurrentStreak, milestones)}

	case day == prevDay+2:
		// Exactly one missed day. The activity itself is not counted yet;
		// it becomes countable only through explicit recovery.
		if s.Phase != PhaseAtRisk {
			deadline := timeutil.EndOfLocalDay(instant, zone)
			s.Phase = PhaseAtRisk
			s.RecoveryDeadline = &deadline
			s.Timezone = zone
			s.UpdatedAt = time.Now().UTC()
		}
		return Outcome{Kind: OutcomeAtRisk}

	default: // day > prevDay+2
		return s.reset(instant, zone, day)
	}
}

// Recover covers the missed day while the state is at risk. Eligibility
// against the recovery log (one recovery per rolling window) is the caller's
// responsibility; this method enforces only the state machine preconditions.
func (s *State) Recover(instant time.Time) (Outcome, error) {
	if s.Phase != PhaseAtRisk || s.RecoveryDeadline == nil {
		return Outcome{}, shared.ErrRecoveryNotOpen
	}
	if instant.After(*s.RecoveryDeadline) {
		return Outcome{}, shared.ErrRecoveryExpired
	}

	s.CurrentStreak++
	s.TotalStreak++
	if s.CurrentStreak > s.MaxStreak {
		s.MaxStreak = s.CurrentStreak
	}
	s.LastActivityAt = instant
	s.LastActivityDay = timeutil.LocalDay(instant, s.Timezone)
	s.Phase = PhaseNormal
	s.RecoveryDeadline = nil
	s.UpdatedAt = time.Now().UTC()

	return Outcome{Kind: OutcomeRecovered}, nil
}

// Lapse closes an at-risk window whose deadline has passed without recovery.
// The streak drops to zero; the next activity starts a fresh streak of one.
// Returns false when there is nothing to lapse.
func (s *State) Lapse(now time.Time) bool {
	if s.Phase != PhaseAtRisk || s.RecoveryDeadline == nil || !now.After(*s.RecoveryDeadline) {
		return false
	}
	s.CurrentStreak = 0
	s.Phase = PhaseNormal
	s.RecoveryDeadline = nil
	s.UpdatedAt = time.Now().UTC()
	return true
}

// AtRiskOpen reports whether recovery is currently possible.
func (s *State) AtRiskOpen(now time.Time) bool {
	return s.Phase == PhaseAtRisk && s.RecoveryDeadline != nil && !now.After(*s.RecoveryDeadline)
}

// extend counts a qualifying day.
func (s *State) extend(instant time.Time, zone string, day int) {
	s.CurrentStreak++
	s.TotalStreak++
	if s.CurrentStreak > s.MaxStreak {
		s.MaxStreak = s.CurrentStreak
	}
	s.LastActivityAt = instant
	s.LastActivityDay = day
	s.Timezone = zone
	s.Phase = PhaseNormal
	s.RecoveryDeadline = nil
	s.UpdatedAt = time.Now().UTC()
}

// reset restarts the streak at one, counting the triggering day.
func (s *State) reset(instant time.Time, zone string, day int) Outcome {
	previous := s.CurrentStreak
	s.CurrentStreak = 1
	s.TotalStreak++
	if s.CurrentStreak > s.MaxStreak {
		s.MaxStreak = s.CurrentStreak
	}
	s.LastActivityAt = instant
	s.LastActivityDay = day
	s.Timezone = zone
	s.Phase = PhaseNormal
	s.RecoveryDeadline = nil
	s.UpdatedAt = time.Now().UTC()
	return Outcome{Kind: OutcomeReset, PreviousStreak: previous}
}

// milestoneHit returns the threshold current landed on, or zero.
func milestoneHit(current int, milestones []int) int {
	for _, m := range milestones {
		if m == current {
			return m
		}
		if m > current {
			break
		}
	}
	return 0
}

// RecoveryAction discriminates recovery log entries. Only one action exists
// today; the column leaves room for more without schema churn.
type RecoveryAction string

// ActionRecover - the missed day was covered by an explicit user recovery.
const ActionRecover RecoveryAction = "recover"

// RecoveryRecord is one append-only entry in the recovery audit log. Never
// updated, only inserted; its timestamps drive the eligibility window.
type RecoveryRecord struct {
	ID             string
	UserID         string
	Action         RecoveryAction
	PerformedAt    time.Time
	RestoredStreak int
}

// NewRecoveryRecord creates a log entry for a successful recovery.
func NewRecoveryRecord(userID string, performedAt time.Time, restoredStreak int) *RecoveryRecord {
	return &RecoveryRecord{
		ID:             uuid.NewString(),
		UserID:         userID,
		Action:         ActionRecover,
		PerformedAt:    performedAt,
		RestoredStreak: restoredStreak,
	}
}
