// Package shared contains common domain types, errors, and events used across
// all domain packages.
package shared

import (
	"time"
)

// EventType represents the type of domain transition event.
type EventType string

// Transition event types emitted by the engine. Each one represents a state
// change the alert projector (or any other subscriber) may care about.
const (
	// Streak transitions
	EventStreakExtended  EventType = "streak.extended"
	EventStreakMilestone EventType = "streak.milestone"
	EventStreakAtRisk    EventType = "streak.at_risk"
	EventStreakRecovered EventType = "streak.recovered"
	EventStreakReset     EventType = "streak.reset"

	// Achievement transitions
	EventAchievementUnlocked EventType = "achievement.unlocked"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	// For this engine that is always the user ID.
	AggregateID() string
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	UserID    string    `json:"user_id"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType { return e.Type }

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time { return e.Timestamp }

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string { return e.UserID }

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, userID string, at time.Time) BaseEvent {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return BaseEvent{
		Type:      eventType,
		Timestamp: at,
		UserID:    userID,
	}
}

// StreakExtendedEvent is emitted when a qualifying day extends the streak.
type StreakExtendedEvent struct {
	BaseEvent
	CurrentStreak int `json:"current_streak"`
	TotalStreak   int `json:"total_streak"`
}

// NewStreakExtendedEvent creates a new StreakExtendedEvent.
func NewStreakExtendedEvent(userID string, at time.Time, current, total int) StreakExtendedEvent {
	return StreakExtendedEvent{
		BaseEvent:     NewBaseEvent(EventStreakExtended, userID, at),
		CurrentStreak: current,
		TotalStreak:   total,
	}
}

// StreakMilestoneEvent is emitted when the streak lands exactly on a
// configured milestone threshold.
type StreakMilestoneEvent struct {
	BaseEvent
	Milestone int `json:"milestone"`
}

// NewStreakMilestoneEvent creates a new StreakMilestoneEvent.
func NewStreakMilestoneEvent(userID string, at time.Time, milestone int) StreakMilestoneEvent {
	return StreakMilestoneEvent{
		BaseEvent: NewBaseEvent(EventStreakMilestone, userID, at),
		Milestone: milestone,
	}
}

// StreakAtRiskEvent is emitted when exactly one local day was missed and the
// streak can still be recovered before the deadline.
type StreakAtRiskEvent struct {
	BaseEvent
	CurrentStreak    int       `json:"current_streak"`
	RecoveryDeadline time.Time `json:"recovery_deadline"`
}

// NewStreakAtRiskEvent creates a new StreakAtRiskEvent.
func NewStreakAtRiskEvent(userID string, at time.Time, current int, deadline time.Time) StreakAtRiskEvent {
	return StreakAtRiskEvent{
		BaseEvent:        NewBaseEvent(EventStreakAtRisk, userID, at),
		CurrentStreak:    current,
		RecoveryDeadline: deadline,
	}
}

// StreakRecoveredEvent is emitted when a user successfully covers a missed day.
type StreakRecoveredEvent struct {
	BaseEvent
	CurrentStreak int `json:"current_streak"`
}

// NewStreakRecoveredEvent creates a new StreakRecoveredEvent.
func NewStreakRecoveredEvent(userID string, at time.Time, current int) StreakRecoveredEvent {
	return StreakRecoveredEvent{
		BaseEvent:     NewBaseEvent(EventStreakRecovered, userID, at),
		CurrentStreak: current,
	}
}

// StreakResetEvent is emitted when two or more missed days (or a lapsed
// recovery deadline) reset the streak.
type StreakResetEvent struct {
	BaseEvent
	PreviousStreak int `json:"previous_streak"`
}

// NewStreakResetEvent creates a new StreakResetEvent.
func NewStreakResetEvent(userID string, at time.Time, previous int) StreakResetEvent {
	return StreakResetEvent{
		BaseEvent:      NewBaseEvent(EventStreakReset, userID, at),
		PreviousStreak: previous,
	}
}

// AchievementUnlockedEvent is emitted exactly once per user and definition,
// on the increment that crosses the target count.
type AchievementUnlockedEvent struct {
	BaseEvent
	AchievementID string `json:"achievement_id"`
	Points        int    `json:"points"`
}

// NewAchievementUnlockedEvent creates a new AchievementUnlockedEvent.
func NewAchievementUnlockedEvent(userID string, at time.Time, achievementID string, points int) AchievementUnlockedEvent {
	return AchievementUnlockedEvent{
		BaseEvent:     NewBaseEvent(EventAchievementUnlocked, userID, at),
		AchievementID: achievementID,
		Points:        points,
	}
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
