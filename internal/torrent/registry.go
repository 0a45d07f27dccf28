package torrent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vadimtrunov/torrentdeck/internal/config"
	"github.com/vadimtrunov/torrentdeck/internal/core"
	"github.com/vadimtrunov/torrentdeck/internal/httpclient"
	"github.com/vadimtrunov/torrentdeck/internal/torrent/qbittorrent"
	"github.com/vadimtrunov/torrentdeck/internal/torrent/restapi"
	"github.com/vadimtrunov/torrentdeck/internal/torrent/rtorrent"
	"github.com/vadimtrunov/torrentdeck/internal/torrent/transmission"
)

// Factory creates an adapter from its configuration.
type Factory func(cfg config.BackendConfig, logger *slog.Logger) (core.TorrentBackend, error)

// Open creates the adapter for cfg.Type.
func Open(cfg config.BackendConfig, logger *slog.Logger) (core.TorrentBackend, error) {
	httpCfg := httpclient.DefaultConfig()
	if cfg.Timeout > 0 {
		httpCfg.Timeout = cfg.Timeout
	}
	httpCfg.RequestsPerSecond = cfg.RequestsPerSecond

	switch cfg.Type {
	case core.TypeRTorrent:
		return rtorrent.New(rtorrent.Options{
			Name:    cfg.Name,
			Network: cfg.Network(),
			Address: cfg.Address,
			Timeout: cfg.Timeout,
		}, logger), nil
	case core.TypeTransmission:
		return transmission.New(transmission.Options{
			Name:     cfg.Name,
			URL:      cfg.URL,
			Username: cfg.Username,
			Password: cfg.Password,
			HTTP:     httpCfg,
		}, logger), nil
	case core.TypeQBittorrent:
		a, err := qbittorrent.New(qbittorrent.Options{
			Name:     cfg.Name,
			URL:      cfg.URL,
			Username: cfg.Username,
			Password: cfg.Password,
			HTTP:     httpCfg,
		}, logger)
		if err != nil {
			return nil, err
		}
		return a, nil
	case core.TypeRESTAPI:
		return restapi.New(restapi.Options{
			Name:         cfg.Name,
			URL:          cfg.URL,
			Token:        cfg.APIToken,
			HTTP:         httpCfg,
			MaxIdlePolls: cfg.MaxIdlePolls,
		}, logger), nil
	default:
		return nil, core.NewValidationError("unknown backend type %q", cfg.Type)
	}
}

type entry struct {
	cfg     config.BackendConfig
	backend *Backend
}

// Registry holds the configured backends in configuration order.
type Registry struct {
	factory Factory
	logger  *slog.Logger

	mu      sync.RWMutex
	entries []entry
}

// NewRegistry creates an empty registry. A nil factory selects Open.
func NewRegistry(factory Factory, logger *slog.Logger) *Registry {
	if factory == nil {
		factory = Open
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{factory: factory, logger: logger}
}

// Apply reconciles the registry with cfgs. Instances whose connection
// settings are unchanged are kept with their sessions and rate samples;
// changed ones are closed and re-created, removed ones are closed.
func (r *Registry) Apply(cfgs []config.BackendConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := make(map[string]entry, len(r.entries))
	for _, e := range r.entries {
		current[e.cfg.Name] = e
	}

	next := make([]entry, 0, len(cfgs))
	var errs []error
	for _, cfg := range cfgs {
		if old, ok := current[cfg.Name]; ok {
			delete(current, cfg.Name)
			if old.cfg.ConnectionEquals(cfg) {
				next = append(next, entry{cfg: cfg, backend: old.backend})
				continue
			}
			r.closeBackend(old.backend)
			r.logger.Info("backend settings changed, reconnecting", slog.String("backend", cfg.Name))
		}
		adapter, err := r.factory(cfg, r.logger)
		if err != nil {
			errs = append(errs, fmt.Errorf("open backend %s: %w", cfg.Name, err))
			continue
		}
		next = append(next, entry{cfg: cfg, backend: NewBackend(adapter, r.logger)})
	}
	for _, gone := range current {
		r.closeBackend(gone.backend)
		r.logger.Info("backend removed", slog.String("backend", gone.cfg.Name))
	}

	r.entries = next
	return errors.Join(errs...)
}

func (r *Registry) closeBackend(b *Backend) {
	if err := b.Close(); err != nil {
		r.logger.Warn("failed to close backend", slog.String("backend", b.Name()), slog.String("error", err.Error()))
	}
}

// Get returns the backend named name.
func (r *Registry) Get(name string) (*Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if e.cfg.Name == name {
			return e.backend, nil
		}
	}
	return nil, core.NewValidationError("unknown backend %q", name)
}

// Backends returns all backends in configuration order.
func (r *Registry) Backends() []*Backend {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Backend, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.backend
	}
	return out
}

// Snapshot is the outcome of one poll of one backend.
type Snapshot struct {
	Backend  string
	Type     string
	Torrents []core.TorrentProperties
	Err      error
	PolledAt time.Time
	Duration time.Duration
}

// ListAll polls every backend concurrently. One backend failing does not
// affect the others; its error is reported in its snapshot.
func (r *Registry) ListAll(ctx context.Context) []Snapshot {
	backends := r.Backends()
	snapshots := make([]Snapshot, len(backends))

	var g errgroup.Group
	for i, b := range backends {
		g.Go(func() error {
			snapshots[i] = Poll(ctx, b)
			return nil
		})
	}
	_ = g.Wait()
	return snapshots
}

// Poll lists the torrents of one backend into a snapshot.
func Poll(ctx context.Context, b *Backend) Snapshot {
	start := time.Now()
	torrents, err := b.ListTorrents(ctx)
	return Snapshot{
		Backend:  b.Name(),
		Type:     b.Type(),
		Torrents: torrents,
		Err:      err,
		PolledAt: start,
		Duration: time.Since(start),
	}
}

// Close closes every backend.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for _, e := range r.entries {
		if err := e.backend.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", e.cfg.Name, err))
		}
	}
	r.entries = nil
	return errors.Join(errs...)
}
