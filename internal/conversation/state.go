// Package conversation implements the per-event pipeline that answers one
// channel turn: decode, load state, ask the assistant, save state, reply.
package conversation

import (
	"context"
	"errors"
	"time"
)

// ErrStateNotFound is returned by a StateStore when no state exists for a key.
var ErrStateNotFound = errors.New("conversation state not found")

// State is the persisted context of one sender/recipient conversation.
type State struct {
	ConversationID string         `json:"conversation_id"`
	Provider       string         `json:"provider"`
	SenderID       string         `json:"sender_id"`
	RecipientID    string         `json:"recipient_id"`
	Context        map[string]any `json:"context,omitempty"`
	Turns          int            `json:"turns"`
	LastMessageAt  int64          `json:"last_message_at"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// StateStore persists conversation states.
type StateStore interface {
	Get(ctx context.Context, conversationID string) (State, error)
	Save(ctx context.Context, state State) error
	// DeleteBefore removes states last updated before cutoff and reports how many.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

func cloneContext(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
