package channel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/relay/internal/auth"
	"github.com/memohai/relay/internal/batch"
)

func TestAuthIssuerSignsPipelineToken(t *testing.T) {
	t.Parallel()

	issuer := NewAuthIssuer("acme", "secret", time.Minute)
	ctx, err := issuer.Issue("Messenger")
	require.NoError(t, err)
	assert.Equal(t, "acme", ctx.Namespace())
	assert.Equal(t, "messenger", ctx.Provider())
	assert.NotEmpty(t, ctx.Value("issued_at"))

	claims, err := auth.ParsePipelineToken(ctx.Token(), "secret")
	require.NoError(t, err)
	assert.Equal(t, "acme", claims.Namespace)
	assert.Equal(t, "messenger", claims.Provider)
}

func TestAuthIssuerWithoutSecret(t *testing.T) {
	t.Parallel()

	issuer := NewAuthIssuer("", "", 0)
	ctx, err := issuer.Issue("telegram")
	require.NoError(t, err)
	assert.Equal(t, "default", ctx.Namespace())
	assert.Empty(t, ctx.Token())

	_, err = issuer.Issue(" ")
	assert.Error(t, err)
}

type recordingRelayer struct {
	gotAuth  batch.AuthContext
	gotBatch batch.Batch
}

func (r *recordingRelayer) Relay(_ context.Context, b batch.Batch, auth batch.AuthContext) batch.Record {
	r.gotAuth = auth
	r.gotBatch = b
	return batch.Record{ID: "rec-1", Provider: auth.Provider()}
}

func TestRelayBatch(t *testing.T) {
	t.Parallel()

	relayer := &recordingRelayer{}
	b := batch.Batch{Entries: []batch.Entry{{Events: []batch.Event{{SenderID: "u", RecipientID: "p"}}}}}
	rec, err := RelayBatch(context.Background(), relayer, NewAuthIssuer("ns", "", 0), "telegram", b)
	require.NoError(t, err)
	assert.Equal(t, "rec-1", rec.ID)
	assert.Equal(t, "telegram", relayer.gotAuth.Provider())
	assert.Equal(t, 1, relayer.gotBatch.Len())

	_, err = RelayBatch(context.Background(), nil, NewAuthIssuer("ns", "", 0), "telegram", b)
	assert.Error(t, err)
	_, err = RelayBatch(context.Background(), relayer, nil, "telegram", b)
	assert.Error(t, err)
}

func TestPayloadRoundTrip(t *testing.T) {
	t.Parallel()

	type sample struct {
		Name string `json:"name"`
		N    int    `json:"n"`
	}
	payload, err := ToPayload(sample{Name: "x", N: 2})
	require.NoError(t, err)
	assert.Equal(t, "x", payload["name"])

	var out sample
	require.NoError(t, FromPayload(payload, &out))
	assert.Equal(t, sample{Name: "x", N: 2}, out)
}
