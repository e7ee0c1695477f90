package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrunerPruneOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	_ = store.Save(ctx, State{ConversationID: "stale", UpdatedAt: now.Add(-2 * time.Hour)})
	_ = store.Save(ctx, State{ConversationID: "fresh", UpdatedAt: now.Add(-10 * time.Minute)})

	p := NewPruner(nil, store, time.Hour, "@every 1h")
	p.now = func() time.Time { return now }

	n, err := p.PruneOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 1, store.Len())
}

func TestPrunerStartValidates(t *testing.T) {
	t.Parallel()

	assert.Error(t, NewPruner(nil, NewMemoryStore(), 0, "@every 1h").Start())
	assert.Error(t, NewPruner(nil, NewMemoryStore(), time.Hour, "not a schedule").Start())

	p := NewPruner(nil, NewMemoryStore(), time.Hour, "@every 1h")
	require.NoError(t, p.Start())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, p.Stop(ctx))
}
