package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps states in the conversation_states table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks that the database is reachable.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const selectStateSQL = `
SELECT conversation_id, provider, sender_id, recipient_id, context, turns, last_message_at, created_at, updated_at
FROM conversation_states
WHERE conversation_id = $1`

const upsertStateSQL = `
INSERT INTO conversation_states (conversation_id, provider, sender_id, recipient_id, context, turns, last_message_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
ON CONFLICT (conversation_id) DO UPDATE SET
    provider = EXCLUDED.provider,
    sender_id = EXCLUDED.sender_id,
    recipient_id = EXCLUDED.recipient_id,
    context = EXCLUDED.context,
    turns = EXCLUDED.turns,
    last_message_at = EXCLUDED.last_message_at,
    updated_at = EXCLUDED.updated_at`

const deleteStatesBeforeSQL = `DELETE FROM conversation_states WHERE updated_at < $1`

func (s *PostgresStore) Get(ctx context.Context, conversationID string) (State, error) {
	var (
		state   State
		rawCtx  []byte
		turns   int32
		lastMsg int64
	)
	err := s.pool.QueryRow(ctx, selectStateSQL, conversationID).Scan(
		&state.ConversationID,
		&state.Provider,
		&state.SenderID,
		&state.RecipientID,
		&rawCtx,
		&turns,
		&lastMsg,
		&state.CreatedAt,
		&state.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return State{}, ErrStateNotFound
	}
	if err != nil {
		return State{}, fmt.Errorf("select conversation state: %w", err)
	}
	state.Turns = int(turns)
	state.LastMessageAt = lastMsg
	if len(rawCtx) > 0 {
		if err := json.Unmarshal(rawCtx, &state.Context); err != nil {
			return State{}, fmt.Errorf("decode conversation context: %w", err)
		}
	}
	return state, nil
}

func (s *PostgresStore) Save(ctx context.Context, state State) error {
	rawCtx := []byte("{}")
	if state.Context != nil {
		encoded, err := json.Marshal(state.Context)
		if err != nil {
			return fmt.Errorf("encode conversation context: %w", err)
		}
		rawCtx = encoded
	}
	updatedAt := state.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, upsertStateSQL,
		state.ConversationID,
		state.Provider,
		state.SenderID,
		state.RecipientID,
		rawCtx,
		int32(state.Turns),
		state.LastMessageAt,
		updatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert conversation state: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, deleteStatesBeforeSQL, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete conversation states: %w", err)
	}
	return tag.RowsAffected(), nil
}
