package feishu

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"

	"github.com/memohai/relay/internal/batch"
	"github.com/memohai/relay/internal/channel"
)

// inboundMessage is the flattened view of an im.message.receive_v1 event.
type inboundMessage struct {
	MessageID   string
	ParentID    string
	ChatID      string
	ChatType    string
	MessageType string
	SenderID    string
	OpenID      string
	UserID      string
	Text        string
	CreatedAtMs int64
	Mentioned   bool
}

func extractFeishuInbound(data *larkim.P2MessageReceiveV1Data) inboundMessage {
	if data == nil || data.Message == nil {
		return inboundMessage{}
	}
	message := data.Message
	var msg inboundMessage
	msg.MessageID = deref(message.MessageId)
	msg.ParentID = deref(message.ParentId)
	msg.ChatID = strings.TrimSpace(deref(message.ChatId))
	msg.ChatType = strings.TrimSpace(deref(message.ChatType))
	msg.MessageType = deref(message.MessageType)
	if created, err := strconv.ParseInt(strings.TrimSpace(deref(message.CreateTime)), 10, 64); err == nil {
		msg.CreatedAtMs = created
	}

	var contentMap map[string]any
	if raw := deref(message.Content); raw != "" {
		if err := json.Unmarshal([]byte(raw), &contentMap); err != nil {
			slog.Warn("feishu inbound: unmarshal content failed", slog.Any("error", err))
		}
	}
	switch msg.MessageType {
	case larkim.MsgTypeText:
		if txt, ok := contentMap["text"].(string); ok {
			msg.Text = strings.TrimSpace(txt)
		}
	case larkim.MsgTypePost:
		msg.Text = extractFeishuPostText(contentMap)
	}
	msg.Mentioned = len(message.Mentions) > 0

	if data.Sender != nil && data.Sender.SenderId != nil {
		msg.UserID = strings.TrimSpace(deref(data.Sender.SenderId.UserId))
		msg.OpenID = strings.TrimSpace(deref(data.Sender.SenderId.OpenId))
	}
	msg.SenderID = msg.OpenID
	if msg.SenderID == "" {
		msg.SenderID = msg.UserID
	}
	return msg
}

// replyTarget answers group chats in the chat and direct chats to the sender.
func (m inboundMessage) replyTarget() string {
	if m.ChatType != "" && m.ChatType != "p2p" && m.ChatID != "" {
		return "chat_id:" + m.ChatID
	}
	if m.OpenID != "" {
		return "open_id:" + m.OpenID
	}
	if m.UserID != "" {
		return "user_id:" + m.UserID
	}
	if m.ChatID != "" {
		return "chat_id:" + m.ChatID
	}
	return ""
}

func (m inboundMessage) turn() channel.Turn {
	metadata := map[string]any{
		"chat_type":    m.ChatType,
		"message_type": m.MessageType,
		"is_mentioned": m.Mentioned,
	}
	if m.UserID != "" {
		metadata["user_id"] = m.UserID
	}
	if m.ParentID != "" {
		metadata["parent_id"] = m.ParentID
	}
	return channel.Turn{
		Provider:    Type,
		SenderID:    m.SenderID,
		RecipientID: m.ChatID,
		ReplyTarget: m.replyTarget(),
		MessageID:   m.MessageID,
		Text:        m.Text,
		Timestamp:   m.CreatedAtMs,
		Metadata:    metadata,
	}
}

// eventFromData converts one receive event into a batch event whose payload
// is the raw event data.
func eventFromData(data *larkim.P2MessageReceiveV1Data) (batch.Event, error) {
	msg := extractFeishuInbound(data)
	payload, err := channel.ToPayload(data)
	if err != nil {
		return batch.Event{}, fmt.Errorf("encode feishu event: %w", err)
	}
	return batch.Event{
		SenderID:    msg.SenderID,
		RecipientID: msg.ChatID,
		Timestamp:   msg.CreatedAtMs,
		Payload:     payload,
	}, nil
}

func getFeishuPostContentLines(contentMap map[string]any) []any {
	if contentMap == nil {
		return nil
	}
	if lines, ok := contentMap["content"].([]any); ok {
		return lines
	}
	for _, localized := range contentMap {
		if body, ok := localized.(map[string]any); ok {
			if lines, ok := body["content"].([]any); ok {
				return lines
			}
		}
	}
	return nil
}

func extractFeishuPostText(contentMap map[string]any) string {
	linesRaw := getFeishuPostContentLines(contentMap)
	if linesRaw == nil {
		return ""
	}
	parts := make([]string, 0, 8)
	for _, rawLine := range linesRaw {
		line, ok := rawLine.([]any)
		if !ok {
			continue
		}
		for _, rawPart := range line {
			part, ok := rawPart.(map[string]any)
			if !ok {
				continue
			}
			tag := strings.ToLower(strings.TrimSpace(stringValue(part["tag"])))
			switch tag {
			case "at":
				name := strings.TrimSpace(stringValue(part["text"]))
				if name == "" {
					name = strings.TrimSpace(stringValue(part["user_name"]))
				}
				if name == "" {
					parts = append(parts, "@")
					continue
				}
				if !strings.HasPrefix(name, "@") {
					name = "@" + name
				}
				parts = append(parts, name)
			default:
				text := strings.TrimSpace(stringValue(part["text"]))
				if text != "" {
					parts = append(parts, text)
				}
			}
		}
	}
	return strings.Join(parts, " ")
}

func stringValue(raw any) string {
	if raw == nil {
		return ""
	}
	value, ok := raw.(string)
	if ok {
		return value
	}
	return fmt.Sprint(raw)
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// resolveFeishuReceiveID parses target (open_id:/user_id:/chat_id: prefix) and returns receiveID and receiveType.
func resolveFeishuReceiveID(raw string) (string, string, error) {
	if raw == "" {
		return "", "", fmt.Errorf("feishu target is required")
	}
	if strings.HasPrefix(raw, "open_id:") {
		return strings.TrimPrefix(raw, "open_id:"), larkim.ReceiveIdTypeOpenId, nil
	}
	if strings.HasPrefix(raw, "user_id:") {
		return strings.TrimPrefix(raw, "user_id:"), larkim.ReceiveIdTypeUserId, nil
	}
	if strings.HasPrefix(raw, "chat_id:") {
		return strings.TrimPrefix(raw, "chat_id:"), larkim.ReceiveIdTypeChatId, nil
	}
	return raw, larkim.ReceiveIdTypeOpenId, nil
}
