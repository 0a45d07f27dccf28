package notification

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramNotifier delivers messages through the Telegram Bot API.
type TelegramNotifier struct {
	api    *tgbotapi.BotAPI
	logger *slog.Logger
}

var _ ProgressNotifier = (*TelegramNotifier)(nil)

// NewTelegramNotifier authenticates the bot token against the Bot API.
func NewTelegramNotifier(token string, logger *slog.Logger) (*TelegramNotifier, error) {
	return newTelegramNotifier(token, tgbotapi.APIEndpoint, logger)
}

func newTelegramNotifier(token, endpoint string, logger *slog.Logger) (*TelegramNotifier, error) {
	api, err := tgbotapi.NewBotAPIWithAPIEndpoint(token, endpoint)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("telegram notifier ready", slog.String("username", api.Self.UserName))
	return &TelegramNotifier{api: api, logger: logger}, nil
}

// SendMessage sends a plain-text message.
func (n *TelegramNotifier) SendMessage(_ context.Context, chatID int64, text string) error {
	if _, err := n.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// SendProgressMessage sends a new plain-text message and returns its ID.
func (n *TelegramNotifier) SendProgressMessage(_ context.Context, chatID int64, text string) (int, error) {
	sent, err := n.api.Send(tgbotapi.NewMessage(chatID, text))
	if err != nil {
		return 0, fmt.Errorf("send progress message: %w", err)
	}
	return sent.MessageID, nil
}

// EditProgressMessage updates an existing message's text.
func (n *TelegramNotifier) EditProgressMessage(_ context.Context, chatID int64, messageID int, text string) error {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	if _, err := n.api.Send(edit); err != nil {
		if strings.Contains(err.Error(), "message is not modified") {
			return nil
		}
		return fmt.Errorf("edit progress message: %w", err)
	}
	return nil
}
