// Package torrenttest provides an in-memory backend for testing the layers
// above the adapters.
package torrenttest

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/vadimtrunov/torrentdeck/internal/config"
	"github.com/vadimtrunov/torrentdeck/internal/core"
	"github.com/vadimtrunov/torrentdeck/internal/torrent"
)

// Call is one recorded adapter call.
type Call struct {
	Op   string
	Args []any
}

// Adapter is a core.TorrentBackend serving canned data. The zero value is a
// backend named "fake" with no torrents.
type Adapter struct {
	BackendName string
	BackendType string
	Torrents    []core.TorrentProperties
	Stats       core.ClientStats
	Trackers    []core.Tracker
	Err         error         // returned by every call when set
	Delay       time.Duration // added before every call

	mu     sync.Mutex
	calls  []Call
	closed bool
}

var _ core.TorrentBackend = (*Adapter)(nil)

func (a *Adapter) record(ctx context.Context, op string, args ...any) error {
	if a.Delay > 0 {
		select {
		case <-time.After(a.Delay):
		case <-ctx.Done():
			return core.NewConnectionError(op, ctx.Err())
		}
	}
	a.mu.Lock()
	a.calls = append(a.calls, Call{Op: op, Args: args})
	a.mu.Unlock()
	return a.Err
}

// Calls returns the recorded calls.
func (a *Adapter) Calls() []Call {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.calls)
}

// LastCall returns the most recent call, or a zero Call.
func (a *Adapter) LastCall() Call {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.calls) == 0 {
		return Call{}
	}
	return a.calls[len(a.calls)-1]
}

// Closed reports whether Close was called.
func (a *Adapter) Closed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

func (a *Adapter) ListTorrents(ctx context.Context) ([]core.TorrentProperties, error) {
	if err := a.record(ctx, "list"); err != nil {
		return nil, err
	}
	return slices.Clone(a.Torrents), nil
}

func (a *Adapter) GetTorrent(ctx context.Context, hash string) (*core.TorrentProperties, error) {
	if err := a.record(ctx, "get", hash); err != nil {
		return nil, err
	}
	for _, p := range a.Torrents {
		if p.Hash == hash {
			return &p, nil
		}
	}
	return nil, core.NewFault("get torrent", 0, "no torrent with hash "+hash)
}

func (a *Adapter) GetClientStats(ctx context.Context) (*core.ClientStats, error) {
	if err := a.record(ctx, "stats"); err != nil {
		return nil, err
	}
	s := a.Stats
	return &s, nil
}

func (a *Adapter) StartTorrents(ctx context.Context, hashes []string) error {
	return a.record(ctx, "start", hashes)
}

func (a *Adapter) StopTorrents(ctx context.Context, hashes []string) error {
	return a.record(ctx, "stop", hashes)
}

func (a *Adapter) CheckTorrents(ctx context.Context, hashes []string) error {
	return a.record(ctx, "check", hashes)
}

func (a *Adapter) AddTorrentByURL(ctx context.Context, opts core.AddOptions) error {
	return a.record(ctx, "add", opts)
}

func (a *Adapter) AddTorrentByFile(ctx context.Context, opts core.AddFileOptions) error {
	return a.record(ctx, "add file", opts)
}

func (a *Adapter) DeleteTorrents(ctx context.Context, hashes []string, deleteData bool) error {
	return a.record(ctx, "delete", hashes, deleteData)
}

func (a *Adapter) MoveTorrents(ctx context.Context, opts core.MoveOptions) error {
	return a.record(ctx, "move", opts)
}

func (a *Adapter) SetTags(ctx context.Context, hashes []string, tags []string) error {
	return a.record(ctx, "tags", hashes, tags)
}

func (a *Adapter) SetPriority(ctx context.Context, hashes []string, priority core.TorrentPriority) error {
	return a.record(ctx, "priority", hashes, priority)
}

func (a *Adapter) SetFilePriority(ctx context.Context, hash string, indices []int, priority core.FilePriority) error {
	return a.record(ctx, "file priority", hash, indices, priority)
}

func (a *Adapter) GetTrackers(ctx context.Context, hash string) ([]core.Tracker, error) {
	if err := a.record(ctx, "trackers", hash); err != nil {
		return nil, err
	}
	return slices.Clone(a.Trackers), nil
}

func (a *Adapter) Name() string {
	if a.BackendName == "" {
		return "fake"
	}
	return a.BackendName
}

func (a *Adapter) Type() string {
	if a.BackendType == "" {
		return core.TypeRESTAPI
	}
	return a.BackendType
}

func (a *Adapter) Close() error {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
	return nil
}

// Registry returns a registry serving adapters in the given order. It is
// closed when the test finishes.
func Registry(tb testing.TB, adapters ...*Adapter) *torrent.Registry {
	tb.Helper()

	byName := make(map[string]*Adapter, len(adapters))
	cfgs := make([]config.BackendConfig, 0, len(adapters))
	for _, a := range adapters {
		byName[a.Name()] = a
		cfgs = append(cfgs, config.BackendConfig{Name: a.Name(), Type: a.Type()})
	}

	factory := func(cfg config.BackendConfig, _ *slog.Logger) (core.TorrentBackend, error) {
		return byName[cfg.Name], nil
	}
	logger := slog.New(slog.DiscardHandler)
	r := torrent.NewRegistry(factory, logger)
	if err := r.Apply(cfgs); err != nil {
		tb.Fatalf("apply fake backends: %v", err)
	}
	tb.Cleanup(func() { _ = r.Close() })
	return r
}

// Seeding returns a complete, seeding torrent.
func Seeding(hash, name string) core.TorrentProperties {
	return core.TorrentProperties{
		Hash:            hash,
		Name:            name,
		Status:          core.NewStatusSet(core.TagSeeding, core.TagComplete, core.TagInactive),
		BytesDone:       1000,
		SizeBytes:       1000,
		PercentComplete: "100.00",
		Ratio:           1.5,
		RatioDisplay:    "1.50",
		Tags:            []string{},
		Priority:        core.PriorityNormal,
	}
}

// Downloading returns an actively downloading torrent.
func Downloading(hash, name string, downRate int64) core.TorrentProperties {
	return core.TorrentProperties{
		Hash:            hash,
		Name:            name,
		Status:          core.NewStatusSet(core.TagDownloading, core.TagActive, core.TagActivelyDownloading),
		DownloadRate:    downRate,
		BytesDone:       500,
		SizeBytes:       1000,
		PercentComplete: "50.00",
		ETA:             core.ETA{Seconds: 500 / max(downRate, 1)},
		RatioDisplay:    "0.00",
		Tags:            []string{},
		Priority:        core.PriorityNormal,
	}
}
