package command

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// INGEST EVENT COMMAND
// The single entry point for raw engagement events. Deduplicates by
// producer-supplied event ID, then routes: every event feeds the achievement
// evaluator, and streak-qualifying types also feed the streak tracker.
// ══════════════════════════════════════════════════════════════════════════════

// DedupStore remembers recently accepted event IDs. Entries expire after the
// configured TTL; redelivery beyond the TTL is indistinguishable from a new
// event, which the downstream same-day and boundary checks absorb.
type DedupStore interface {
	// MarkSeen records the key with the given TTL. Returns false when the
	// key was already present, i.e. the event is a duplicate.
	MarkSeen(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Unmark releases a key so the producer's redelivery is not treated as
	// a duplicate. Absent keys are a no-op.
	Unmark(ctx context.Context, key string) error
}

// IngestEventCommand contains one raw engagement event.
type IngestEventCommand struct {
	// EventID is the producer-supplied unique ID, used as the dedup key.
	EventID string

	// UserID is the internal ID of the user.
	UserID string

	// EventType is the engagement event type (e.g. "article.read",
	// "comment.posted").
	EventType string

	// Timezone is the user's IANA zone name, resolved by the caller from the
	// identity service.
	Timezone string

	// Timestamp is when the event occurred (defaults to now if zero).
	Timestamp time.Time

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c IngestEventCommand) Validate() error {
	if c.EventID == "" {
		return errors.New("ingest_event: event_id is required")
	}
	if c.UserID == "" {
		return errors.New("ingest_event: user_id is required")
	}
	if c.EventType == "" {
		return errors.New("ingest_event: event_type is required")
	}
	return nil
}

// IngestEventResult contains the result of ingesting an event.
type IngestEventResult struct {
	// EventID echoes the dedup key.
	EventID string

	// Duplicate is true when the event was already accepted. Duplicates are
	// a success: the producer's delivery is acknowledged with no effect.
	Duplicate bool

	// Activity is the streak tracker's result, nil for non-qualifying types.
	Activity *RecordActivityResult

	// Engagement is the achievement evaluator's result.
	Engagement *RecordEngagementEventResult
}

// IngestEventHandler is the ingestion gateway. Routing is static: the set of
// streak-qualifying event types is fixed at construction.
type IngestEventHandler struct {
	dedup      DedupStore
	activity   *RecordActivityHandler
	engagement *RecordEngagementEventHandler

	qualifying map[string]struct{}
	dedupTTL   time.Duration
}

// NewIngestEventHandler creates a new IngestEventHandler. qualifyingTypes
// lists the event types that count toward streaks.
func NewIngestEventHandler(
	dedup DedupStore,
	activity *RecordActivityHandler,
	engagement *RecordEngagementEventHandler,
	qualifyingTypes []string,
	dedupTTL time.Duration,
) *IngestEventHandler {
	qualifying := make(map[string]struct{}, len(qualifyingTypes))
	for _, t := range qualifyingTypes {
		qualifying[t] = struct{}{}
	}
	return &IngestEventHandler{
		dedup:      dedup,
		activity:   activity,
		engagement: engagement,
		qualifying: qualifying,
		dedupTTL:   dedupTTL,
	}
}

// Handle executes the ingest event command.
func (h *IngestEventHandler) Handle(ctx context.Context, cmd IngestEventCommand) (*IngestEventResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("ingest_event: validation failed: %w", err)
	}

	timestamp := cmd.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	fresh, err := h.dedup.MarkSeen(ctx, cmd.EventID, h.dedupTTL)
	if err != nil {
		return nil, fmt.Errorf("ingest_event: dedup check failed: %w", err)
	}
	if !fresh {
		return &IngestEventResult{EventID: cmd.EventID, Duplicate: true}, nil
	}

	result := &IngestEventResult{EventID: cmd.EventID}

	if _, ok := h.qualifying[cmd.EventType]; ok {
		activity, err := h.activity.Handle(ctx, RecordActivityCommand{
			UserID:        cmd.UserID,
			Timezone:      cmd.Timezone,
			Timestamp:     timestamp,
			CorrelationID: cmd.CorrelationID,
		})
		if err != nil {
			h.release(ctx, cmd.EventID)
			return nil, err
		}
		result.Activity = activity
	}

	engagement, err := h.engagement.Handle(ctx, RecordEngagementEventCommand{
		UserID:        cmd.UserID,
		EventType:     cmd.EventType,
		Timestamp:     timestamp,
		CorrelationID: cmd.CorrelationID,
	})
	if err != nil {
		h.release(ctx, cmd.EventID)
		return nil, err
	}
	result.Engagement = engagement

	return result, nil
}

// release frees the dedup key after a routing failure so the producer's
// at-least-once redelivery gets processed instead of being dropped as a
// duplicate. A failed release leaves the key claimed until the TTL expires.
func (h *IngestEventHandler) release(ctx context.Context, eventID string) {
	_ = h.dedup.Unmark(ctx, eventID)
}
