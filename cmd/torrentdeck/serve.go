package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vadimtrunov/torrentdeck/internal/api"
	"github.com/vadimtrunov/torrentdeck/internal/config"
	"github.com/vadimtrunov/torrentdeck/internal/frontend/telegram"
	"github.com/vadimtrunov/torrentdeck/internal/health"
	"github.com/vadimtrunov/torrentdeck/internal/notification"
	"github.com/vadimtrunov/torrentdeck/internal/poller"
)

// newServeCmd returns the "serve" subcommand running the poller, the HTTP API
// and completion notifications until interrupted.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Poll backends and serve the HTTP API",
		Long: "Poll every backend on the configured schedule, serve the JSON API when\n" +
			"api.listen is set, answer Telegram bot commands and notify Telegram users\n" +
			"when downloads complete.\n" +
			"SIGHUP reloads the backend list from the configuration file.",
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	schedule, err := config.ParseSchedule(s.cfg.App.PollInterval)
	if err != nil {
		return fmt.Errorf("poll interval: %w", err)
	}
	p, err := poller.New(s.registry, schedule, s.logger)
	if err != nil {
		return err
	}

	checker := health.NewChecker(s.registry, 0, s.logger)

	var bot *telegram.Bot
	if tg := s.cfg.Telegram; tg != nil {
		tracker, err := newTracker(tg, s.logger)
		if err != nil {
			return err
		}
		p.Subscribe(tracker.Observe)

		bot, err = telegram.New(tg.BotToken, tg.AllowedUserIDs, s.registry, checker, s.logger)
		if err != nil {
			return err
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.Start(ctx) })

	if bot != nil {
		g.Go(func() error { return bot.Start(ctx) })
	}

	if s.cfg.API != nil {
		handler := api.NewHandler(s.registry, checker, p, s.logger)
		srv := api.NewServer(s.cfg.API.Listen, handler.Routes(), s.logger)
		g.Go(func() error { return srv.Start(ctx) })
	}

	g.Go(func() error {
		reloadOnHangup(ctx, s, p)
		return nil
	})

	s.logger.Info("torrentdeck serving",
		slog.Int("backends", len(s.registry.Backends())),
		slog.String("poll_interval", s.cfg.App.PollInterval),
	)
	return g.Wait()
}

func newTracker(cfg *config.TelegramConfig, logger *slog.Logger) (*notification.Tracker, error) {
	notifier, err := notification.NewTelegramNotifier(cfg.BotToken, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to telegram: %w", err)
	}
	return notification.NewTracker(notifier, cfg.AllowedUserIDs, logger), nil
}

// reloadOnHangup re-reads the configuration on SIGHUP and applies the backend
// list. Unchanged backends keep their sessions. The poll schedule itself is
// only read at startup.
func reloadOnHangup(ctx context.Context, s *session, p *poller.Poller) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := reload(ctx, s, p); err != nil {
				s.logger.Error("reload failed", slog.String("error", err.Error()))
				continue
			}
			s.logger.Info("configuration reloaded", slog.Int("backends", len(s.registry.Backends())))
		}
	}
}

func reload(ctx context.Context, s *session, p *poller.Poller) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if cfg.App.PollInterval != s.cfg.App.PollInterval {
		s.logger.Warn("poll_interval changes need a restart",
			slog.String("current", s.cfg.App.PollInterval),
			slog.String("configured", cfg.App.PollInterval),
		)
	}
	applyErr := s.registry.Apply(cfg.Backends)
	if err := p.Reschedule(ctx); err != nil {
		return fmt.Errorf("reschedule polls: %w", err)
	}
	return applyErr
}
