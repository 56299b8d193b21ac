package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pagefeed/engagement-engine/internal/domain/shared"
	"github.com/pagefeed/engagement-engine/internal/domain/streak"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET STREAK QUERY
// Returns a user's streak status, including the open recovery window when
// the streak is at risk.
// ══════════════════════════════════════════════════════════════════════════════

// GetStreakQuery contains the request parameters.
type GetStreakQuery struct {
	// UserID - internal user ID.
	UserID string
}

// Validate checks the query parameters.
func (q *GetStreakQuery) Validate() error {
	if q.UserID == "" {
		return errors.New("user_id is required")
	}
	return nil
}

// StreakDTO is the client-facing streak payload.
type StreakDTO struct {
	UserID           string     `json:"user_id"`
	CurrentStreak    int        `json:"current_streak"`
	TotalStreak      int        `json:"total_streak"`
	MaxStreak        int        `json:"max_streak"`
	AtRisk           bool       `json:"at_risk"`
	RecoveryDeadline *time.Time `json:"recovery_deadline,omitempty"`
	LastActivityAt   *time.Time `json:"last_activity_at,omitempty"`
}

// GetStreakHandler handles the GetStreakQuery.
type GetStreakHandler struct {
	streakRepo streak.Repository
}

// NewGetStreakHandler creates a new GetStreakHandler.
func NewGetStreakHandler(streakRepo streak.Repository) *GetStreakHandler {
	return &GetStreakHandler{streakRepo: streakRepo}
}

// Handle executes the streak query. A user with no recorded activity reads
// as an empty streak.
func (h *GetStreakHandler) Handle(ctx context.Context, q GetStreakQuery) (*StreakDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("get_streak: %w", err)
	}

	st, err := h.streakRepo.Get(ctx, q.UserID)
	if shared.IsNotFound(err) {
		return &StreakDTO{UserID: q.UserID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get_streak: failed to load streak: %w", err)
	}

	dto := &StreakDTO{
		UserID:        st.UserID,
		CurrentStreak: st.CurrentStreak,
		TotalStreak:   st.TotalStreak,
		MaxStreak:     st.MaxStreak,
		AtRisk:        st.Phase == streak.PhaseAtRisk,
	}
	if st.RecoveryDeadline != nil {
		deadline := *st.RecoveryDeadline
		dto.RecoveryDeadline = &deadline
	}
	if !st.LastActivityAt.IsZero() {
		lastActivityAt := st.LastActivityAt
		dto.LastActivityAt = &lastActivityAt
	}
	return dto, nil
}
