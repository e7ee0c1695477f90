package messenger

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/memohai/relay/internal/batch"
	"github.com/memohai/relay/internal/channel"
)

const (
	signatureHeader = "X-Hub-Signature-256"
	signaturePrefix = "sha256="
)

var validate = validator.New()

type webhookBody struct {
	Object string         `json:"object" validate:"required,eq=page"`
	Entry  []webhookEntry `json:"entry" validate:"required,dive"`
}

type webhookEntry struct {
	ID        string            `json:"id"`
	Time      int64             `json:"time"`
	Messaging []json.RawMessage `json:"messaging"`
}

// eventIDs is the minimal view of a messaging event used for partitioning.
type eventIDs struct {
	Sender struct {
		ID string `json:"id"`
	} `json:"sender"`
	Recipient struct {
		ID string `json:"id"`
	} `json:"recipient"`
	Timestamp int64 `json:"timestamp"`
}

// WebhookHandler serves the page subscription endpoint.
type WebhookHandler struct {
	logger  *slog.Logger
	adapter *MessengerAdapter
	relayer channel.Relayer
	issuer  *channel.AuthIssuer
}

// NewWebhookHandler creates the public webhook handler for Messenger.
func NewWebhookHandler(log *slog.Logger, adapter *MessengerAdapter, relayer channel.Relayer, issuer *channel.AuthIssuer) *WebhookHandler {
	if log == nil {
		log = slog.Default()
	}
	return &WebhookHandler{
		logger:  log.With(slog.String("handler", "messenger_webhook")),
		adapter: adapter,
		relayer: relayer,
		issuer:  issuer,
	}
}

// Register registers webhook callback routes.
func (h *WebhookHandler) Register(e *echo.Echo) {
	e.GET(webhookPath, h.Verify)
	e.POST(webhookPath, h.Handle)
}

// Verify answers the subscription handshake by echoing hub.challenge.
func (h *WebhookHandler) Verify(c echo.Context) error {
	if h.adapter == nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "messenger webhook dependencies not configured")
	}
	mode := c.QueryParam("hub.mode")
	token := c.QueryParam("hub.verify_token")
	challenge := c.QueryParam("hub.challenge")
	if mode != "subscribe" || challenge == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid subscription request")
	}
	expected := h.adapter.cfg.VerifyToken
	if expected == "" || subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
		return echo.NewHTTPError(http.StatusForbidden, "verify token mismatch")
	}
	return c.String(http.StatusOK, challenge)
}

// Handle verifies the payload signature, converts the delivery into a batch
// and relays it.
func (h *WebhookHandler) Handle(c echo.Context) error {
	if h.adapter == nil || h.relayer == nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "messenger webhook dependencies not configured")
	}
	payload, err := channel.ReadWebhookBody(c)
	if err != nil {
		return err
	}
	if err := verifySignature(payload, c.Request().Header.Get(signatureHeader), h.adapter.cfg.AppSecret); err != nil {
		return err
	}
	b, err := parseBatch(payload)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	rec, err := channel.RelayBatch(context.WithoutCancel(c.Request().Context()), h.relayer, h.issuer, Type, b)
	if err != nil {
		h.logger.Error("relay delivery failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, channel.NewAck(rec))
}

func verifySignature(payload []byte, header, secret string) error {
	if strings.TrimSpace(secret) == "" {
		return echo.NewHTTPError(http.StatusForbidden, "messenger webhook requires app_secret")
	}
	if !strings.HasPrefix(header, signaturePrefix) {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing payload signature")
	}
	got, err := hex.DecodeString(strings.TrimPrefix(header, signaturePrefix))
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "malformed payload signature")
	}
	if !hmac.Equal(got, sign(payload, secret)) {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid payload signature")
	}
	return nil
}

func sign(payload []byte, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return mac.Sum(nil)
}

// parseBatch converts a page delivery. Events keep their raw JSON as payload;
// events without ids stay in the batch and are rejected per event downstream.
func parseBatch(body []byte) (batch.Batch, error) {
	var delivery webhookBody
	if err := json.Unmarshal(body, &delivery); err != nil {
		return batch.Batch{}, fmt.Errorf("invalid messenger payload: %w", err)
	}
	if err := validate.Struct(delivery); err != nil {
		return batch.Batch{}, fmt.Errorf("invalid messenger payload: %w", err)
	}
	b := batch.Batch{Entries: make([]batch.Entry, 0, len(delivery.Entry))}
	for i, entry := range delivery.Entry {
		events := make([]batch.Event, 0, len(entry.Messaging))
		for j, raw := range entry.Messaging {
			var ids eventIDs
			if err := json.Unmarshal(raw, &ids); err != nil {
				return batch.Batch{}, fmt.Errorf("entry %d messaging %d: %w", i, j, err)
			}
			payload := map[string]any{}
			if err := json.Unmarshal(raw, &payload); err != nil {
				return batch.Batch{}, fmt.Errorf("entry %d messaging %d: %w", i, j, err)
			}
			events = append(events, batch.Event{
				SenderID:    ids.Sender.ID,
				RecipientID: ids.Recipient.ID,
				Timestamp:   ids.Timestamp,
				Payload:     payload,
			})
		}
		b.Entries = append(b.Entries, batch.Entry{ID: entry.ID, Events: events})
	}
	return b, nil
}
