package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/vadimtrunov/torrentdeck/internal/config"
	"github.com/vadimtrunov/torrentdeck/internal/torrent"
)

// Lipgloss styles used across commands.
var (
	styleError   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))  // red
	styleSuccess = lipgloss.NewStyle().Foreground(lipgloss.Color("10")) // green
	styleInfo    = lipgloss.NewStyle().Foreground(lipgloss.Color("12")) // blue
	styleWarn    = lipgloss.NewStyle().Foreground(lipgloss.Color("11")) // yellow
	styleDim     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))  // gray

	styleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("5")).
			MarginBottom(1)
)

// loadConfig loads and validates the configuration file.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	return cfg, nil
}

// session bundles what every command needs: configuration, a logger and the
// opened backends.
type session struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *torrent.Registry
}

// openSession loads the configuration and opens every backend. Backends that
// fail to open are logged and skipped.
func openSession() (*session, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	logger := config.SetupLogger(cfg.App)

	reg := torrent.NewRegistry(torrent.Open, logger)
	if err := reg.Apply(cfg.Backends); err != nil {
		logger.Warn("some backends failed to open", slog.String("error", err.Error()))
	}
	for _, b := range cfg.Backends {
		logger.Debug("backend configured",
			slog.String("backend", b.Name),
			slog.String("type", b.Type),
			slog.String("endpoint", endpoint(b)),
		)
	}
	return &session{cfg: cfg, logger: logger, registry: reg}, nil
}

func (s *session) Close() {
	if err := s.registry.Close(); err != nil {
		s.logger.Warn("close backends", slog.String("error", err.Error()))
	}
}

// backend resolves the --backend flag. It may be omitted when exactly one
// backend is configured.
func (s *session) backend(name string) (*torrent.Backend, error) {
	if name != "" {
		return s.registry.Get(name)
	}
	backends := s.registry.Backends()
	switch len(backends) {
	case 0:
		return nil, fmt.Errorf("no backends configured")
	case 1:
		return backends[0], nil
	default:
		return nil, fmt.Errorf("%d backends configured, choose one with --backend", len(backends))
	}
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// addBackendFlag registers --backend on cmd.
func addBackendFlag(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&backendName, "backend", "b", "", "backend name (optional with a single backend)")
}

// endpoint returns the address of a backend safe for logging.
func endpoint(b config.BackendConfig) string {
	if b.URL == "" {
		return b.Address
	}
	return sanitizeURL(b.URL)
}

// sanitizeURL strips credentials, query params, and fragment from a URL for safe logging.
func sanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || u.Scheme == "" {
		return "<redacted>"
	}
	u.User = nil
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

// formatRate renders a transfer rate in IEC units.
func formatRate(bytesPerSec int64) string {
	if bytesPerSec <= 0 {
		return "0 B/s"
	}
	return humanize.IBytes(uint64(bytesPerSec)) + "/s"
}

// formatSize renders a byte count in IEC units.
func formatSize(n int64) string {
	if n <= 0 {
		return "0 B"
	}
	return humanize.IBytes(uint64(n))
}
