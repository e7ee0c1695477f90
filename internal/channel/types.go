// Package channel provides a unified abstraction for the chat platforms that
// deliver webhooks to the relay. It defines the canonical Turn decoded from a
// provider payload, adapter capability interfaces, and an adapter registry.
package channel

import (
	"fmt"
	"strings"
)

// ChannelType identifies a messaging platform (e.g., "messenger", "telegram").
type ChannelType string

// String returns the channel type as a plain string.
func (c ChannelType) String() string {
	return string(c)
}

// Turn is one inbound user message in canonical form, decoded from a
// provider-specific event payload.
type Turn struct {
	Provider    ChannelType    `json:"provider" validate:"required"`
	SenderID    string         `json:"sender_id" validate:"required"`
	RecipientID string         `json:"recipient_id" validate:"required"`
	ReplyTarget string         `json:"reply_target" validate:"required"`
	MessageID   string         `json:"message_id,omitempty"`
	Text        string         `json:"text"`
	Timestamp   int64          `json:"timestamp,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// ConversationID returns the stable key of the conversation the turn belongs to.
// Format: provider:sender_id:recipient_id.
func (t Turn) ConversationID() string {
	return strings.Join([]string{t.Provider.String(), strings.TrimSpace(t.SenderID), strings.TrimSpace(t.RecipientID)}, ":")
}

// IsEmpty reports whether the turn carries no text to answer.
func (t Turn) IsEmpty() bool {
	return strings.TrimSpace(t.Text) == ""
}

// ChannelCapabilities describes what a channel supports.
type ChannelCapabilities struct {
	Text          bool `json:"text"`
	BatchDelivery bool `json:"batch_delivery"`
	Signed        bool `json:"signed"`
}

// Descriptor holds read-only metadata for a registered channel type.
type Descriptor struct {
	Type         ChannelType         `json:"type"`
	DisplayName  string              `json:"display_name"`
	WebhookPath  string              `json:"webhook_path"`
	Capabilities ChannelCapabilities `json:"capabilities"`
	MaxTextRunes int                 `json:"max_text_runes,omitempty"`
}

// SplitText breaks text into chunks of at most limit runes, preferring to cut
// at line breaks. A non-positive limit returns the text unchanged.
func SplitText(text string, limit int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	runes := []rune(text)
	if limit <= 0 || len(runes) <= limit {
		return []string{text}
	}
	var chunks []string
	for len(runes) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		chunk := strings.TrimSpace(string(runes[:cut]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		runes = runes[cut:]
	}
	if rest := strings.TrimSpace(string(runes)); rest != "" {
		chunks = append(chunks, rest)
	}
	return chunks
}

// PayloadString reads a nested string field from a decoded JSON payload.
func PayloadString(payload map[string]any, path ...string) string {
	var cur any = payload
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return ""
		}
		cur = m[key]
	}
	switch v := cur.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return fmt.Sprintf("%.0f", v)
	case int64:
		return fmt.Sprint(v)
	case int:
		return fmt.Sprint(v)
	default:
		return ""
	}
}
