package feishu

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	larkevent "github.com/larksuite/oapi-sdk-go/v3/event"
	"github.com/larksuite/oapi-sdk-go/v3/event/dispatcher"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"

	"github.com/memohai/relay/internal/batch"
	"github.com/memohai/relay/internal/channel"
)

// WebhookHandler receives Feishu/Lark event-subscription callbacks.
type WebhookHandler struct {
	logger  *slog.Logger
	adapter *FeishuAdapter
	relayer channel.Relayer
	issuer  *channel.AuthIssuer
}

// NewWebhookHandler creates a public webhook handler for Feishu/Lark callbacks.
func NewWebhookHandler(log *slog.Logger, adapter *FeishuAdapter, relayer channel.Relayer, issuer *channel.AuthIssuer) *WebhookHandler {
	if log == nil {
		log = slog.Default()
	}
	return &WebhookHandler{
		logger:  log.With(slog.String("handler", "feishu_webhook")),
		adapter: adapter,
		relayer: relayer,
		issuer:  issuer,
	}
}

// Register registers webhook callback routes.
func (h *WebhookHandler) Register(e *echo.Echo) {
	e.GET(webhookPath, h.HandleProbe)
	e.POST(webhookPath, h.Handle)
}

// HandleProbe responds to health/probe requests on the webhook URL.
func (h *WebhookHandler) HandleProbe(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

// Handle processes Feishu/Lark event-subscription webhook requests. Each
// callback carries one event, relayed as a single-entry batch.
func (h *WebhookHandler) Handle(c echo.Context) error {
	if h.adapter == nil || h.relayer == nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "feishu webhook dependencies not configured")
	}
	payload, err := channel.ReadWebhookBody(c)
	if err != nil {
		return err
	}
	if err := validateWebhookCallbackAuth(payload, h.adapter.cfg); err != nil {
		return err
	}

	ctx := context.WithoutCancel(c.Request().Context())
	eventDispatcher := dispatcher.NewEventDispatcher(h.adapter.cfg.VerificationToken, h.adapter.cfg.EncryptKey)
	eventDispatcher.OnP2MessageReceiveV1(func(_ context.Context, event *larkim.P2MessageReceiveV1) error {
		if event == nil || event.Event == nil || event.Event.Message == nil {
			return nil
		}
		ev, err := eventFromData(event.Event)
		if err != nil {
			return err
		}
		entryID := ""
		if event.EventV2Base != nil && event.EventV2Base.Header != nil {
			entryID = event.EventV2Base.Header.EventID
		}
		b := batch.Batch{Entries: []batch.Entry{{ID: entryID, Events: []batch.Event{ev}}}}
		rec, err := channel.RelayBatch(ctx, h.relayer, h.issuer, Type, b)
		if err != nil {
			h.logger.Error("relay event failed", slog.Any("error", err))
			return err
		}
		h.logger.Debug("event relayed", slog.String("batch_id", rec.ID), slog.String("event_id", entryID))
		return nil
	})

	resp := eventDispatcher.Handle(c.Request().Context(), &larkevent.EventReq{
		Header:     c.Request().Header,
		Body:       payload,
		RequestURI: c.Request().RequestURI,
	})
	if resp == nil {
		return c.NoContent(http.StatusOK)
	}
	for key, values := range resp.Header {
		for _, value := range values {
			c.Response().Header().Add(key, value)
		}
	}
	c.Response().WriteHeader(resp.StatusCode)
	if len(resp.Body) == 0 {
		return nil
	}
	_, err = c.Response().Write(resp.Body)
	return err
}

func validateWebhookCallbackAuth(payload []byte, cfg Config) error {
	if strings.TrimSpace(cfg.EncryptKey) != "" {
		// Lark SDK signature verification is enabled only when encryptKey is configured.
		return nil
	}
	var fuzzy larkevent.EventFuzzy
	if err := json.Unmarshal(payload, &fuzzy); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid feishu webhook payload: %v", err))
	}
	if larkevent.ReqType(strings.TrimSpace(fuzzy.Type)) == larkevent.ReqTypeChallenge {
		return nil
	}
	expectedToken := strings.TrimSpace(cfg.VerificationToken)
	if expectedToken == "" {
		return echo.NewHTTPError(http.StatusForbidden, "feishu webhook requires verification_token when encrypt_key is empty")
	}
	requestToken := strings.TrimSpace(fuzzy.Token)
	if fuzzy.Header != nil && strings.TrimSpace(fuzzy.Header.Token) != "" {
		requestToken = strings.TrimSpace(fuzzy.Header.Token)
	}
	if requestToken == "" || requestToken != expectedToken {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid feishu webhook token")
	}
	return nil
}
