package memory

import (
	"context"
	"time"
)

// TurnRecord stores a single user or assistant conversational turn in
// the supplemental episodic history (see SPEC_FULL.md §3), independent
// of the per-connection Session's in-memory ChatHistory window.
type TurnRecord struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists and retrieves episodic conversational turns.
type Store interface {
	SaveTurn(ctx context.Context, record TurnRecord) error
	RecentContext(ctx context.Context, userID string, limit int) ([]TurnRecord, error)
	Close() error
}
