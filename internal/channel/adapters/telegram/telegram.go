package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/memohai/relay/internal/channel"
)

// Type is the registered channel type for Telegram.
const Type channel.ChannelType = "telegram"

const (
	telegramMaxMessageLength = 4096
	webhookPath              = "/channels/telegram/webhook"
)

// Config holds the bot credentials.
type Config struct {
	BotToken    string
	SecretToken string
	// APIEndpoint overrides tgbotapi.APIEndpoint.
	APIEndpoint string
}

// TelegramAdapter decodes Telegram updates into turns and posts replies through the Bot API.
type TelegramAdapter struct {
	logger *slog.Logger
	cfg    Config
	mu     sync.Mutex
	bot    *tgbotapi.BotAPI
}

// NewTelegramAdapter creates a TelegramAdapter with the given logger.
func NewTelegramAdapter(log *slog.Logger, cfg Config) *TelegramAdapter {
	if log == nil {
		log = slog.Default()
	}
	if strings.TrimSpace(cfg.APIEndpoint) == "" {
		cfg.APIEndpoint = tgbotapi.APIEndpoint
	}
	adapter := &TelegramAdapter{
		logger: log.With(slog.String("adapter", "telegram")),
		cfg:    cfg,
	}
	_ = tgbotapi.SetLogger(&slogBotLogger{log: adapter.logger})
	return adapter
}

func (a *TelegramAdapter) getOrCreateBot() (*tgbotapi.BotAPI, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.bot != nil {
		return a.bot, nil
	}
	token := strings.TrimSpace(a.cfg.BotToken)
	if token == "" {
		return nil, errors.New("telegram bot token is required")
	}
	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(token, a.cfg.APIEndpoint)
	if err != nil {
		a.logger.Error("create bot failed", slog.Any("error", err))
		return nil, err
	}
	a.bot = bot
	return bot, nil
}

// Type returns the Telegram channel type.
func (a *TelegramAdapter) Type() channel.ChannelType {
	return Type
}

// Descriptor returns the Telegram channel metadata.
func (a *TelegramAdapter) Descriptor() channel.Descriptor {
	return channel.Descriptor{
		Type:        Type,
		DisplayName: "Telegram",
		WebhookPath: webhookPath,
		Capabilities: channel.ChannelCapabilities{
			Text:   true,
			Signed: strings.TrimSpace(a.cfg.SecretToken) != "",
		},
		MaxTextRunes: telegramMaxMessageLength,
	}
}

// Decode maps an update payload to a Turn. The sender is the user (or sender
// chat) and the recipient is the chat the message was posted in.
func (a *TelegramAdapter) Decode(payload map[string]any) (channel.Turn, error) {
	var update tgbotapi.Update
	if err := channel.FromPayload(payload, &update); err != nil {
		return channel.Turn{}, fmt.Errorf("decode telegram update: %w", err)
	}
	msg := updateMessage(update)
	if msg == nil {
		return channel.Turn{}, errors.New("telegram update carries no message")
	}
	senderID, displayName, attrs := resolveTelegramSender(msg)
	chatID := ""
	if msg.Chat != nil {
		chatID = strconv.FormatInt(msg.Chat.ID, 10)
	}
	metadata := map[string]any{
		"update_id": update.UpdateID,
	}
	if displayName != "" {
		metadata["display_name"] = displayName
	}
	for k, v := range attrs {
		metadata[k] = v
	}
	if msg.Chat != nil && msg.Chat.Type != "" {
		metadata["chat_type"] = msg.Chat.Type
	}
	return channel.Turn{
		Provider:    Type,
		SenderID:    senderID,
		RecipientID: chatID,
		ReplyTarget: chatID,
		MessageID:   strconv.Itoa(msg.MessageID),
		Text:        messageText(msg),
		Timestamp:   int64(msg.Date) * 1000,
		Metadata:    metadata,
	}, nil
}

// Post sends text to a chat id or @channel username, splitting it at the
// Bot API message length.
func (a *TelegramAdapter) Post(_ context.Context, target string, text string) error {
	target = strings.TrimSpace(target)
	if target == "" {
		return errors.New("telegram target is required")
	}
	chunks := channel.SplitText(sanitizeTelegramText(text), telegramMaxMessageLength)
	if len(chunks) == 0 {
		return errors.New("message is required")
	}
	bot, err := a.getOrCreateBot()
	if err != nil {
		return err
	}
	for _, chunk := range chunks {
		if err := sendTelegramText(bot, target, chunk); err != nil {
			a.logger.Error("send message failed", slog.String("target", target), slog.Any("error", err))
			return err
		}
	}
	return nil
}

func updateMessage(update tgbotapi.Update) *tgbotapi.Message {
	switch {
	case update.Message != nil:
		return update.Message
	case update.ChannelPost != nil:
		return update.ChannelPost
	default:
		return nil
	}
}

func messageText(msg *tgbotapi.Message) string {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		text = strings.TrimSpace(msg.Caption)
	}
	return text
}

func resolveTelegramSender(msg *tgbotapi.Message) (string, string, map[string]string) {
	attrs := map[string]string{}
	if msg == nil {
		return "", "", attrs
	}
	if msg.From != nil {
		userID := strconv.FormatInt(msg.From.ID, 10)
		username := strings.TrimSpace(msg.From.UserName)
		attrs["user_id"] = userID
		if username != "" {
			attrs["username"] = username
		}
		displayName := username
		if displayName == "" {
			displayName = strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName)
		}
		return userID, displayName, attrs
	}
	if msg.SenderChat != nil {
		senderChatID := strconv.FormatInt(msg.SenderChat.ID, 10)
		attrs["sender_chat_id"] = senderChatID
		if msg.SenderChat.UserName != "" {
			attrs["sender_chat_username"] = strings.TrimSpace(msg.SenderChat.UserName)
		}
		displayName := strings.TrimSpace(msg.SenderChat.Title)
		if displayName == "" {
			displayName = strings.TrimSpace(msg.SenderChat.UserName)
		}
		return senderChatID, displayName, attrs
	}
	return "", "", attrs
}

func sendTelegramText(bot *tgbotapi.BotAPI, target string, text string) error {
	text = truncateTelegramText(text)
	if strings.HasPrefix(target, "@") {
		_, err := bot.Send(tgbotapi.NewMessageToChannel(target, text))
		return err
	}
	chatID, err := strconv.ParseInt(target, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram target must be @username or chat_id")
	}
	_, err = bot.Send(tgbotapi.NewMessage(chatID, text))
	return err
}

// sanitizeTelegramText ensures text is valid UTF-8 for the Telegram API.
func sanitizeTelegramText(text string) string {
	if utf8.ValidString(text) {
		return text
	}
	return strings.ToValidUTF8(text, "")
}

// truncateTelegramText truncates text to telegramMaxMessageLength bytes on a
// valid UTF-8 rune boundary, appending "..." when truncation occurs.
func truncateTelegramText(text string) string {
	if len(text) <= telegramMaxMessageLength {
		return text
	}
	const suffix = "..."
	limit := telegramMaxMessageLength - len(suffix)
	for limit > 0 && !utf8.RuneStart(text[limit]) {
		limit--
	}
	return text[:limit] + suffix
}

type slogBotLogger struct {
	log *slog.Logger
}

func (l *slogBotLogger) Println(v ...interface{}) {
	l.log.Debug(strings.TrimSpace(fmt.Sprintln(v...)))
}

func (l *slogBotLogger) Printf(format string, v ...interface{}) {
	l.log.Debug(fmt.Sprintf(format, v...))
}
