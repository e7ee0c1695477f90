package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/memohai/relay/internal/batch"
)

// WebhookBodyLimit caps the size of an inbound webhook body.
const WebhookBodyLimit = 1 << 20

// ReadWebhookBody reads the request body up to WebhookBodyLimit bytes.
func ReadWebhookBody(c echo.Context) ([]byte, error) {
	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, WebhookBodyLimit+1))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("read body: %v", err))
	}
	if len(payload) > WebhookBodyLimit {
		return nil, echo.NewHTTPError(http.StatusRequestEntityTooLarge, fmt.Sprintf("payload too large: max %d bytes", WebhookBodyLimit))
	}
	return payload, nil
}

// Ack is the acknowledgement body returned by webhook handlers.
type Ack struct {
	BatchID   string `json:"batch_id,omitempty"`
	Events    int    `json:"events"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
}

// NewAck summarizes a relayed batch record.
func NewAck(rec batch.Record) Ack {
	return Ack{
		BatchID:   rec.ID,
		Events:    rec.Events,
		Succeeded: len(rec.Report.SuccessfulInvocations),
		Failed:    len(rec.Report.FailedInvocations),
	}
}

// Relayer runs a decoded delivery through the dispatch engine.
type Relayer interface {
	Relay(ctx context.Context, b batch.Batch, auth batch.AuthContext) batch.Record
}

// RelayBatch issues the AuthContext for channelType and relays b.
func RelayBatch(ctx context.Context, relayer Relayer, issuer *AuthIssuer, channelType ChannelType, b batch.Batch) (batch.Record, error) {
	if relayer == nil {
		return batch.Record{}, fmt.Errorf("relayer not configured")
	}
	if issuer == nil {
		return batch.Record{}, fmt.Errorf("auth issuer not configured")
	}
	auth, err := issuer.Issue(channelType)
	if err != nil {
		return batch.Record{}, err
	}
	return relayer.Relay(ctx, b, auth), nil
}

// ToPayload converts a provider object into the generic payload map carried
// by a batch.Event.
func ToPayload(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	payload := map[string]any{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// FromPayload decodes a payload map back into a provider object.
func FromPayload(payload map[string]any, out any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
