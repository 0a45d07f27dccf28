// Package torrent guards the per-daemon adapters: input is validated before
// any network call, concurrent polls of one instance are coalesced, and every
// error is classified and stamped with the instance name.
package torrent

import (
	"context"
	"log/slog"
	"slices"

	"golang.org/x/sync/singleflight"

	"github.com/vadimtrunov/torrentdeck/internal/core"
)

// Backend wraps one adapter.
type Backend struct {
	adapter core.TorrentBackend
	group   singleflight.Group
	logger  *slog.Logger
}

var _ core.TorrentBackend = (*Backend)(nil)

// NewBackend wraps adapter.
func NewBackend(adapter core.TorrentBackend, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		adapter: adapter,
		logger:  logger.With(slog.String("backend", adapter.Name())),
	}
}

// Name returns the instance name.
func (b *Backend) Name() string { return b.adapter.Name() }

// Type returns the backend type.
func (b *Backend) Type() string { return b.adapter.Type() }

// Close closes the adapter.
func (b *Backend) Close() error { return b.adapter.Close() }

func (b *Backend) fail(op string, err error) error {
	err = core.Classify(b.adapter.Name(), op, err)
	if err != nil {
		b.logger.Debug("backend call failed", slog.String("op", op), slog.String("error", err.Error()))
	}
	return err
}

// ListTorrents lists all torrents. Concurrent callers share one request.
func (b *Backend) ListTorrents(ctx context.Context) ([]core.TorrentProperties, error) {
	// errors are classified inside the flight so shared callers only read them
	v, err, shared := b.group.Do("list", func() (any, error) {
		torrents, err := b.adapter.ListTorrents(ctx)
		return torrents, core.Classify(b.adapter.Name(), "list torrents", err)
	})
	if err != nil {
		return nil, b.fail("list torrents", err)
	}
	torrents := v.([]core.TorrentProperties)
	if shared {
		// each caller owns its slice
		torrents = slices.Clone(torrents)
	}
	return torrents, nil
}

// GetTorrent returns one torrent.
func (b *Backend) GetTorrent(ctx context.Context, hash string) (*core.TorrentProperties, error) {
	if err := validateHash(hash); err != nil {
		return nil, b.fail("get torrent", err)
	}
	p, err := b.adapter.GetTorrent(ctx, hash)
	if err != nil {
		return nil, b.fail("get torrent", err)
	}
	return p, nil
}

// GetClientStats returns aggregate stats. Concurrent callers share one request.
func (b *Backend) GetClientStats(ctx context.Context) (*core.ClientStats, error) {
	v, err, _ := b.group.Do("stats", func() (any, error) {
		stats, err := b.adapter.GetClientStats(ctx)
		return stats, core.Classify(b.adapter.Name(), "client stats", err)
	})
	if err != nil {
		return nil, b.fail("client stats", err)
	}
	stats := *v.(*core.ClientStats)
	return &stats, nil
}

// StartTorrents starts torrents.
func (b *Backend) StartTorrents(ctx context.Context, hashes []string) error {
	if err := validateHashes(hashes); err != nil {
		return b.fail("start torrents", err)
	}
	return b.fail("start torrents", b.adapter.StartTorrents(ctx, hashes))
}

// StopTorrents stops torrents.
func (b *Backend) StopTorrents(ctx context.Context, hashes []string) error {
	if err := validateHashes(hashes); err != nil {
		return b.fail("stop torrents", err)
	}
	return b.fail("stop torrents", b.adapter.StopTorrents(ctx, hashes))
}

// CheckTorrents rechecks torrents.
func (b *Backend) CheckTorrents(ctx context.Context, hashes []string) error {
	if err := validateHashes(hashes); err != nil {
		return b.fail("check torrents", err)
	}
	return b.fail("check torrents", b.adapter.CheckTorrents(ctx, hashes))
}

// AddTorrentByURL adds torrents by magnet link or URL.
func (b *Backend) AddTorrentByURL(ctx context.Context, opts core.AddOptions) error {
	if err := validateAdd(opts); err != nil {
		return b.fail("add torrents", err)
	}
	return b.fail("add torrents", b.adapter.AddTorrentByURL(ctx, opts))
}

// AddTorrentByFile adds torrents from metainfo files.
func (b *Backend) AddTorrentByFile(ctx context.Context, opts core.AddFileOptions) error {
	if err := validateAddFile(opts); err != nil {
		return b.fail("add torrent files", err)
	}
	return b.fail("add torrent files", b.adapter.AddTorrentByFile(ctx, opts))
}

// DeleteTorrents removes torrents.
func (b *Backend) DeleteTorrents(ctx context.Context, hashes []string, deleteData bool) error {
	if err := validateHashes(hashes); err != nil {
		return b.fail("delete torrents", err)
	}
	return b.fail("delete torrents", b.adapter.DeleteTorrents(ctx, hashes, deleteData))
}

// MoveTorrents relocates torrents.
func (b *Backend) MoveTorrents(ctx context.Context, opts core.MoveOptions) error {
	if err := validateMove(opts); err != nil {
		return b.fail("move torrents", err)
	}
	return b.fail("move torrents", b.adapter.MoveTorrents(ctx, opts))
}

// SetTags replaces tags. An empty list clears them.
func (b *Backend) SetTags(ctx context.Context, hashes []string, tags []string) error {
	if err := validateHashes(hashes); err != nil {
		return b.fail("set tags", err)
	}
	if err := validateTags(tags); err != nil {
		return b.fail("set tags", err)
	}
	return b.fail("set tags", b.adapter.SetTags(ctx, hashes, tags))
}

// SetPriority sets the torrent priority.
func (b *Backend) SetPriority(ctx context.Context, hashes []string, priority core.TorrentPriority) error {
	if err := validateHashes(hashes); err != nil {
		return b.fail("set priority", err)
	}
	if !priority.Valid() {
		return b.fail("set priority", core.NewValidationError("priority %d out of range 0-3", priority))
	}
	return b.fail("set priority", b.adapter.SetPriority(ctx, hashes, priority))
}

// SetFilePriority sets file priorities inside one torrent.
func (b *Backend) SetFilePriority(ctx context.Context, hash string, indices []int, priority core.FilePriority) error {
	if err := validateHash(hash); err != nil {
		return b.fail("set file priority", err)
	}
	if err := validateIndices(indices); err != nil {
		return b.fail("set file priority", err)
	}
	if !priority.Valid() {
		return b.fail("set file priority", core.NewValidationError("file priority %d out of range 0-2", priority))
	}
	return b.fail("set file priority", b.adapter.SetFilePriority(ctx, hash, indices, priority))
}

// GetTrackers lists trackers of one torrent.
func (b *Backend) GetTrackers(ctx context.Context, hash string) ([]core.Tracker, error) {
	if err := validateHash(hash); err != nil {
		return nil, b.fail("get trackers", err)
	}
	trackers, err := b.adapter.GetTrackers(ctx, hash)
	if err != nil {
		return nil, b.fail("get trackers", err)
	}
	return trackers, nil
}
