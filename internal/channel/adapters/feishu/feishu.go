package feishu

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"

	"github.com/memohai/relay/internal/channel"
)

// Type is the registered channel type for Feishu/Lark.
const Type channel.ChannelType = "feishu"

const (
	webhookPath        = "/channels/feishu/webhook"
	feishuMaxTextRunes = 4000
)

// FeishuAdapter decodes im.message.receive_v1 events into turns and sends
// replies through the open platform IM API.
type FeishuAdapter struct {
	logger *slog.Logger
	cfg    Config
	mu     sync.Mutex
	client *lark.Client
}

// NewFeishuAdapter creates a FeishuAdapter with the given logger.
func NewFeishuAdapter(log *slog.Logger, cfg Config) (*FeishuAdapter, error) {
	if log == nil {
		log = slog.Default()
	}
	normalized, err := normalizeConfig(cfg)
	if err != nil {
		return nil, err
	}
	return &FeishuAdapter{
		logger: log.With(slog.String("adapter", "feishu")),
		cfg:    normalized,
	}, nil
}

func (a *FeishuAdapter) getOrCreateClient() (*lark.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.client != nil {
		return a.client, nil
	}
	if err := a.cfg.validate(); err != nil {
		return nil, err
	}
	a.client = lark.NewClient(a.cfg.AppID, a.cfg.AppSecret, lark.WithOpenBaseUrl(a.cfg.openBaseURL()))
	return a.client, nil
}

// Type returns the Feishu channel type.
func (a *FeishuAdapter) Type() channel.ChannelType {
	return Type
}

// Descriptor returns the Feishu channel metadata.
func (a *FeishuAdapter) Descriptor() channel.Descriptor {
	return channel.Descriptor{
		Type:        Type,
		DisplayName: "Feishu",
		WebhookPath: webhookPath,
		Capabilities: channel.ChannelCapabilities{
			Text:   true,
			Signed: a.cfg.EncryptKey != "" || a.cfg.VerificationToken != "",
		},
		MaxTextRunes: feishuMaxTextRunes,
	}
}

// Decode maps receive event data to a Turn. The recipient is the chat id.
func (a *FeishuAdapter) Decode(payload map[string]any) (channel.Turn, error) {
	var data larkim.P2MessageReceiveV1Data
	if err := channel.FromPayload(payload, &data); err != nil {
		return channel.Turn{}, fmt.Errorf("decode feishu event: %w", err)
	}
	if data.Message == nil {
		return channel.Turn{}, errors.New("feishu event carries no message")
	}
	return extractFeishuInbound(&data).turn(), nil
}

// Post sends a text message to an open_id:, user_id: or chat_id: target.
func (a *FeishuAdapter) Post(ctx context.Context, target string, text string) error {
	receiveID, receiveType, err := resolveFeishuReceiveID(normalizeTarget(target))
	if err != nil {
		return err
	}
	chunks := channel.SplitText(text, feishuMaxTextRunes)
	if len(chunks) == 0 {
		return fmt.Errorf("message is required")
	}
	client, err := a.getOrCreateClient()
	if err != nil {
		return err
	}
	for _, chunk := range chunks {
		content, err := json.Marshal(map[string]string{"text": chunk})
		if err != nil {
			return fmt.Errorf("failed to marshal text content: %w", err)
		}
		req := larkim.NewCreateMessageReqBuilder().
			ReceiveIdType(receiveType).
			Body(larkim.NewCreateMessageReqBodyBuilder().
				ReceiveId(receiveID).
				MsgType(larkim.MsgTypeText).
				Content(string(content)).
				Uuid(uuid.NewString()).
				Build()).
			Build()
		resp, err := client.Im.V1.Message.Create(ctx, req)
		if err := a.handleResponse(target, resp, err); err != nil {
			return err
		}
	}
	return nil
}

func (a *FeishuAdapter) handleResponse(target string, resp *larkim.CreateMessageResp, err error) error {
	if err != nil {
		a.logger.Error("send failed", slog.String("target", target), slog.Any("error", err))
		return err
	}
	if resp == nil || !resp.Success() {
		code := 0
		msg := ""
		if resp != nil {
			code = resp.Code
			msg = resp.Msg
		}
		a.logger.Error("send failed", slog.String("target", target), slog.Int("code", code), slog.String("msg", msg))
		return fmt.Errorf("feishu send failed: %s (code: %d)", msg, code)
	}
	a.logger.Debug("send success", slog.String("target", strings.TrimSpace(target)))
	return nil
}
