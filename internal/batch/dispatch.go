package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/memohai/relay/internal/pipeline"
)

// Dispatch invokes the pipeline for a single event and waits for it. It never
// fails: invoker errors and panics are returned as failure Results.
func (e *Engine) Dispatch(ctx context.Context, ev Event, pipelineName string, auth AuthContext) (result Result) {
	key := KeyOf(ev)
	defer func() {
		if rec := recover(); rec != nil {
			e.logger.Error("dispatch panic", slog.String("key", key.String()), slog.Any("panic", rec))
			result = failure(key, "", ev, fmt.Errorf("pipeline panic: %v", rec))
		}
	}()
	if e.invoker == nil {
		return failure(key, "", ev, errors.New("pipeline invoker not configured"))
	}

	activation, err := e.invoker.Invoke(ctx, pipelineName, composeParams(ev, auth))
	if err != nil {
		activationID := activation.ID
		var invokeErr *pipeline.InvokeError
		if errors.As(err, &invokeErr) && invokeErr.ActivationID != "" {
			activationID = invokeErr.ActivationID
		}
		e.logger.Warn("dispatch failed",
			slog.String("pipeline", pipelineName),
			slog.String("key", key.String()),
			slog.String("activation_id", activationID),
			slog.Any("error", err),
		)
		return failure(key, activationID, ev, err)
	}
	return Result{
		Status:       StatusSuccess,
		Key:          key,
		ActivationID: activation.ID,
		Response:     activation.Result,
	}
}

func failure(key Key, activationID string, ev Event, err error) Result {
	return Result{
		Status:       StatusFailure,
		Key:          key,
		ActivationID: activationID,
		Error:        fmt.Sprintf("recipient id %s, sender id %s: %v", idOrMissing(ev.RecipientID), idOrMissing(ev.SenderID), err),
	}
}

// composeParams merges the event payload with the provider tag and the
// forwarded auth section. The payload map itself is left untouched.
func composeParams(ev Event, auth AuthContext) map[string]any {
	params := make(map[string]any, len(ev.Payload)+2)
	for k, v := range ev.Payload {
		params[k] = v
	}
	params[pipeline.ParamProvider] = auth.Provider()
	params[pipeline.ParamAuth] = auth.Params()
	return params
}
