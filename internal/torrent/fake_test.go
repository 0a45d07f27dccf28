package torrent

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/vadimtrunov/torrentdeck/internal/core"
)

// fakeAdapter records calls and returns canned results.
type fakeAdapter struct {
	name string

	calls    atomic.Int32
	lists    atomic.Int32
	closed   atomic.Bool
	release  chan struct{} // when set, ListTorrents blocks until closed
	entered  chan struct{} // signalled when ListTorrents starts
	torrents []core.TorrentProperties
	stats    core.ClientStats
	err      error

	mu   sync.Mutex
	last []any
}

func (f *fakeAdapter) record(args ...any) error {
	f.calls.Add(1)
	f.mu.Lock()
	f.last = args
	f.mu.Unlock()
	return f.err
}

func (f *fakeAdapter) ListTorrents(ctx context.Context) ([]core.TorrentProperties, error) {
	f.lists.Add(1)
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.torrents, nil
}

func (f *fakeAdapter) GetTorrent(ctx context.Context, hash string) (*core.TorrentProperties, error) {
	if err := f.record(hash); err != nil {
		return nil, err
	}
	return &core.TorrentProperties{Hash: hash}, nil
}

func (f *fakeAdapter) GetClientStats(ctx context.Context) (*core.ClientStats, error) {
	if err := f.record(); err != nil {
		return nil, err
	}
	s := f.stats
	return &s, nil
}

func (f *fakeAdapter) StartTorrents(ctx context.Context, hashes []string) error {
	return f.record(hashes)
}

func (f *fakeAdapter) StopTorrents(ctx context.Context, hashes []string) error {
	return f.record(hashes)
}

func (f *fakeAdapter) CheckTorrents(ctx context.Context, hashes []string) error {
	return f.record(hashes)
}

func (f *fakeAdapter) AddTorrentByURL(ctx context.Context, opts core.AddOptions) error {
	return f.record(opts)
}

func (f *fakeAdapter) AddTorrentByFile(ctx context.Context, opts core.AddFileOptions) error {
	return f.record(opts)
}

func (f *fakeAdapter) DeleteTorrents(ctx context.Context, hashes []string, deleteData bool) error {
	return f.record(hashes, deleteData)
}

func (f *fakeAdapter) MoveTorrents(ctx context.Context, opts core.MoveOptions) error {
	return f.record(opts)
}

func (f *fakeAdapter) SetTags(ctx context.Context, hashes []string, tags []string) error {
	return f.record(hashes, tags)
}

func (f *fakeAdapter) SetPriority(ctx context.Context, hashes []string, priority core.TorrentPriority) error {
	return f.record(hashes, priority)
}

func (f *fakeAdapter) SetFilePriority(ctx context.Context, hash string, indices []int, priority core.FilePriority) error {
	return f.record(hash, indices, priority)
}

func (f *fakeAdapter) GetTrackers(ctx context.Context, hash string) ([]core.Tracker, error) {
	if err := f.record(hash); err != nil {
		return nil, err
	}
	return []core.Tracker{{URL: "udp://t", Type: core.TrackerUDP, Enabled: true}}, nil
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) Type() string { return "fake" }

func (f *fakeAdapter) Close() error {
	f.closed.Store(true)
	return nil
}
