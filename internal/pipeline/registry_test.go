package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryInvokeSuccess(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(nil)
	reg.MustRegister("echo", func(ctx context.Context, params map[string]any) (map[string]any, error) {
		return map[string]any{"text": params["text"]}, nil
	})

	act, err := reg.Invoke(context.Background(), "echo", map[string]any{"text": "hi"})
	require.NoError(t, err)
	assert.NotEmpty(t, act.ID)
	assert.Equal(t, "hi", act.Result["text"])
}

func TestRegistryInvokeErrorCarriesActivationID(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(nil)
	reg.MustRegister("fail", func(ctx context.Context, params map[string]any) (map[string]any, error) {
		return nil, errors.New("backend down")
	})

	_, err := reg.Invoke(context.Background(), "fail", nil)
	require.Error(t, err)
	var invokeErr *InvokeError
	require.ErrorAs(t, err, &invokeErr)
	assert.NotEmpty(t, invokeErr.ActivationID)
	assert.Equal(t, "backend down", invokeErr.Error())
}

func TestRegistryInvokeRecoversPanic(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(nil)
	reg.MustRegister("boom", func(ctx context.Context, params map[string]any) (map[string]any, error) {
		panic("nil state")
	})

	_, err := reg.Invoke(context.Background(), "boom", nil)
	var invokeErr *InvokeError
	require.ErrorAs(t, err, &invokeErr)
	assert.NotEmpty(t, invokeErr.ActivationID)
	assert.Contains(t, invokeErr.Error(), "nil state")
}

func TestRegistryInvokeUnknownPipeline(t *testing.T) {
	t.Parallel()

	_, err := NewRegistry(nil).Invoke(context.Background(), "missing", nil)
	assert.ErrorIs(t, err, ErrPipelineNotFound)
}

func TestRegistryRegisterRejectsDuplicates(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(nil)
	fn := func(ctx context.Context, params map[string]any) (map[string]any, error) { return nil, nil }
	require.NoError(t, reg.Register("a", fn))
	assert.Error(t, reg.Register("a", fn))
	assert.Error(t, reg.Register(" ", fn))
	assert.Error(t, reg.Register("b", nil))
	assert.Equal(t, []string{"a"}, reg.Names())
}

func TestAuthValue(t *testing.T) {
	t.Parallel()

	params := map[string]any{
		ParamProvider: "messenger",
		ParamAuth:     map[string]any{AuthToken: " tok ", AuthNamespace: "ns"},
	}
	assert.Equal(t, "tok", AuthValue(params, AuthToken))
	assert.Equal(t, "ns", AuthValue(params, AuthNamespace))
	assert.Equal(t, "", AuthValue(map[string]any{}, AuthToken))
	assert.Equal(t, "messenger", Provider(params))
}
