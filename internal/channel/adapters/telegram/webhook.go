package telegram

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/labstack/echo/v4"

	"github.com/memohai/relay/internal/batch"
	"github.com/memohai/relay/internal/channel"
)

const secretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// WebhookHandler receives Bot API webhook updates.
type WebhookHandler struct {
	logger  *slog.Logger
	adapter *TelegramAdapter
	relayer channel.Relayer
	issuer  *channel.AuthIssuer
}

// NewWebhookHandler creates the public webhook handler for Telegram.
func NewWebhookHandler(log *slog.Logger, adapter *TelegramAdapter, relayer channel.Relayer, issuer *channel.AuthIssuer) *WebhookHandler {
	if log == nil {
		log = slog.Default()
	}
	return &WebhookHandler{
		logger:  log.With(slog.String("handler", "telegram_webhook")),
		adapter: adapter,
		relayer: relayer,
		issuer:  issuer,
	}
}

// Register registers webhook callback routes.
func (h *WebhookHandler) Register(e *echo.Echo) {
	e.POST(webhookPath, h.Handle)
}

// Handle verifies the secret token, wraps the update into a single-entry
// batch and relays it.
func (h *WebhookHandler) Handle(c echo.Context) error {
	if h.adapter == nil || h.relayer == nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "telegram webhook dependencies not configured")
	}
	if expected := strings.TrimSpace(h.adapter.cfg.SecretToken); expected != "" {
		got := c.Request().Header.Get(secretTokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(expected)) != 1 {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid telegram secret token")
		}
	}
	payload, err := channel.ReadWebhookBody(c)
	if err != nil {
		return err
	}
	b, err := parseUpdateBatch(payload)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if b.Len() == 0 {
		return c.JSON(http.StatusOK, channel.Ack{})
	}
	rec, err := channel.RelayBatch(context.WithoutCancel(c.Request().Context()), h.relayer, h.issuer, Type, b)
	if err != nil {
		h.logger.Error("relay update failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, channel.NewAck(rec))
}

// parseUpdateBatch decodes one update. Updates without a message (edits,
// callbacks, member changes) produce an empty batch.
func parseUpdateBatch(body []byte) (batch.Batch, error) {
	var update tgbotapi.Update
	if err := json.Unmarshal(body, &update); err != nil {
		return batch.Batch{}, fmt.Errorf("invalid telegram update: %w", err)
	}
	msg := updateMessage(update)
	if msg == nil {
		return batch.Batch{}, nil
	}
	payload := map[string]any{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return batch.Batch{}, fmt.Errorf("invalid telegram update: %w", err)
	}
	senderID, _, _ := resolveTelegramSender(msg)
	chatID := ""
	if msg.Chat != nil {
		chatID = strconv.FormatInt(msg.Chat.ID, 10)
	}
	return batch.Batch{
		Entries: []batch.Entry{{
			ID: strconv.Itoa(update.UpdateID),
			Events: []batch.Event{{
				SenderID:    senderID,
				RecipientID: chatID,
				Timestamp:   int64(msg.Date) * 1000,
				Payload:     payload,
			}},
		}},
	}, nil
}
