// Package telegram lets allowed Telegram users inspect and control the
// configured torrent backends through bot commands and inline buttons.
package telegram

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/vadimtrunov/torrentdeck/internal/health"
	"github.com/vadimtrunov/torrentdeck/internal/torrent"
)

// Registry is the view of the backend registry the bot needs.
type Registry interface {
	Get(name string) (*torrent.Backend, error)
	Backends() []*torrent.Backend
	ListAll(ctx context.Context) []torrent.Snapshot
}

// Bot is the Telegram frontend for the backend registry.
type Bot struct {
	api      *tgbotapi.BotAPI
	access   *accessList
	registry Registry
	checker  *health.Checker
	logger   *slog.Logger
}

// New creates a new Telegram Bot. A nil checker probes backends with the
// default timeout.
func New(token string, allowedUserIDs []int64, registry Registry, checker *health.Checker, logger *slog.Logger) (*Bot, error) {
	return newBot(token, tgbotapi.APIEndpoint, allowedUserIDs, registry, checker, logger)
}

func newBot(
	token, endpoint string,
	allowedUserIDs []int64,
	registry Registry,
	checker *health.Checker,
	logger *slog.Logger,
) (*Bot, error) {
	api, err := tgbotapi.NewBotAPIWithAPIEndpoint(token, endpoint)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	if checker == nil {
		checker = health.NewChecker(registry, 0, logger)
	}
	if len(allowedUserIDs) == 0 {
		logger.Warn("telegram allowed_user_ids is empty, any user can control the backends")
	}

	return &Bot{
		api:      api,
		access:   newAccessList(allowedUserIDs),
		registry: registry,
		checker:  checker,
		logger:   logger,
	}, nil
}

// Start runs the long-polling loop. It blocks until ctx is canceled.
func (b *Bot) Start(ctx context.Context) error {
	b.logger.Info("telegram bot started",
		slog.String("username", b.api.Self.UserName),
	)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.logger.Info("telegram bot stopped")
			return nil

		case update, ok := <-updates:
			if !ok {
				return nil
			}
			go b.handleUpdate(ctx, update)
		}
	}
}

// handleUpdate dispatches an incoming Telegram update.
func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	}
}
