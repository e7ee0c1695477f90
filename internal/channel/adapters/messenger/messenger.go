// Package messenger implements the Facebook Messenger platform channel: page
// webhook parsing and replies through the Graph Send API.
package messenger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/memohai/relay/internal/channel"
)

// Type is the registered channel type for Messenger.
const Type channel.ChannelType = "messenger"

const (
	webhookPath           = "/channels/messenger/webhook"
	messengerMaxTextRunes = 2000
	defaultGraphAPIURL    = "https://graph.facebook.com/v19.0"
)

// Config holds the page credentials.
type Config struct {
	AppSecret       string
	VerifyToken     string
	PageAccessToken string
	GraphAPIURL     string
}

// MessengerAdapter decodes messaging events into turns and posts replies.
type MessengerAdapter struct {
	logger *slog.Logger
	cfg    Config
	client *http.Client
}

// NewMessengerAdapter creates a MessengerAdapter with the given logger.
func NewMessengerAdapter(log *slog.Logger, cfg Config) *MessengerAdapter {
	if log == nil {
		log = slog.Default()
	}
	cfg.GraphAPIURL = strings.TrimRight(strings.TrimSpace(cfg.GraphAPIURL), "/")
	if cfg.GraphAPIURL == "" {
		cfg.GraphAPIURL = defaultGraphAPIURL
	}
	return &MessengerAdapter{
		logger: log.With(slog.String("adapter", "messenger")),
		cfg:    cfg,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

// Type returns the Messenger channel type.
func (a *MessengerAdapter) Type() channel.ChannelType {
	return Type
}

// Descriptor returns the Messenger channel metadata.
func (a *MessengerAdapter) Descriptor() channel.Descriptor {
	return channel.Descriptor{
		Type:        Type,
		DisplayName: "Messenger",
		WebhookPath: webhookPath,
		Capabilities: channel.ChannelCapabilities{
			Text:          true,
			BatchDelivery: true,
			Signed:        true,
		},
		MaxTextRunes: messengerMaxTextRunes,
	}
}

type participant struct {
	ID string `json:"id"`
}

type messagingEvent struct {
	Sender    participant `json:"sender"`
	Recipient participant `json:"recipient"`
	Timestamp int64       `json:"timestamp"`
	Message   *struct {
		MID    string `json:"mid"`
		Text   string `json:"text"`
		IsEcho bool   `json:"is_echo"`
	} `json:"message,omitempty"`
	Postback *struct {
		Title   string `json:"title"`
		Payload string `json:"payload"`
	} `json:"postback,omitempty"`
}

// Decode maps a messaging event to a Turn. Replies go back to the sender.
func (a *MessengerAdapter) Decode(payload map[string]any) (channel.Turn, error) {
	var ev messagingEvent
	if err := channel.FromPayload(payload, &ev); err != nil {
		return channel.Turn{}, fmt.Errorf("decode messenger event: %w", err)
	}
	metadata := map[string]any{}
	text := ""
	messageID := ""
	switch {
	case ev.Message != nil:
		if ev.Message.IsEcho {
			return channel.Turn{}, errors.New("messenger echo events are not answered")
		}
		text = ev.Message.Text
		messageID = ev.Message.MID
	case ev.Postback != nil:
		text = ev.Postback.Title
		if text == "" {
			text = ev.Postback.Payload
		}
		metadata["postback_payload"] = ev.Postback.Payload
	default:
		return channel.Turn{}, errors.New("messenger event carries no message")
	}
	return channel.Turn{
		Provider:    Type,
		SenderID:    strings.TrimSpace(ev.Sender.ID),
		RecipientID: strings.TrimSpace(ev.Recipient.ID),
		ReplyTarget: strings.TrimSpace(ev.Sender.ID),
		MessageID:   messageID,
		Text:        strings.TrimSpace(text),
		Timestamp:   ev.Timestamp,
		Metadata:    metadata,
	}, nil
}

type sendRequest struct {
	Recipient     participant `json:"recipient"`
	MessagingType string      `json:"messaging_type"`
	Message       struct {
		Text string `json:"text"`
	} `json:"message"`
}

// Post sends text to a page-scoped user id through the Send API.
func (a *MessengerAdapter) Post(ctx context.Context, target string, text string) error {
	target = strings.TrimSpace(target)
	if target == "" {
		return errors.New("messenger target is required")
	}
	chunks := channel.SplitText(text, messengerMaxTextRunes)
	if len(chunks) == 0 {
		return errors.New("message is required")
	}
	if strings.TrimSpace(a.cfg.PageAccessToken) == "" {
		return errors.New("messenger page access token is required")
	}
	for _, chunk := range chunks {
		if err := a.send(ctx, target, chunk); err != nil {
			a.logger.Error("send failed", slog.String("target", target), slog.Any("error", err))
			return err
		}
	}
	return nil
}

func (a *MessengerAdapter) send(ctx context.Context, target, text string) error {
	body := sendRequest{
		Recipient:     participant{ID: target},
		MessagingType: "RESPONSE",
	}
	body.Message.Text = text
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal send request: %w", err)
	}
	endpoint := a.cfg.GraphAPIURL + "/me/messages?access_token=" + url.QueryEscape(a.cfg.PageAccessToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("messenger send: %w", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("read send response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error struct {
				Message string `json:"message"`
				Code    int    `json:"code"`
			} `json:"error"`
		}
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("messenger send failed: %s (code: %d)", apiErr.Error.Message, apiErr.Error.Code)
		}
		return fmt.Errorf("messenger send failed: status %d", resp.StatusCode)
	}
	return nil
}
