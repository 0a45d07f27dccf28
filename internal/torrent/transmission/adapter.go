// Package transmission adapts a Transmission daemon, spoken to over its
// JSON-RPC 2.0 interface, to core.TorrentBackend.
package transmission

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"

	"github.com/vadimtrunov/torrentdeck/internal/core"
	"github.com/vadimtrunov/torrentdeck/internal/httpclient"
	"github.com/vadimtrunov/torrentdeck/internal/torrent/props"
)

// Options configures an Adapter.
type Options struct {
	Name     string
	URL      string // RPC endpoint
	Username string
	Password string
	HTTP     httpclient.Config
}

// Adapter implements core.TorrentBackend for Transmission.
type Adapter struct {
	name   string
	client *Client
	logger *slog.Logger
}

var _ core.TorrentBackend = (*Adapter)(nil)

// New creates a Transmission adapter.
func New(opts Options, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("backend", opts.Name))
	return &Adapter{
		name:   opts.Name,
		client: NewClient(opts.URL, opts.Username, opts.Password, opts.HTTP, logger),
		logger: logger,
	}
}

// Name returns the configured instance name.
func (a *Adapter) Name() string { return a.name }

// Type returns "transmission".
func (a *Adapter) Type() string { return core.TypeTransmission }

// Close is a no-op; the HTTP transport holds no dedicated connection.
func (a *Adapter) Close() error { return nil }

// ListTorrents fetches every torrent in one torrent_get.
func (a *Adapter) ListTorrents(ctx context.Context) ([]core.TorrentProperties, error) {
	var res torrentGetResult
	if err := a.client.Call(ctx, "torrent_get", torrentGetArgs{Fields: torrentFields}, &res); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(res.Torrents))
	torrents := make([]core.TorrentProperties, 0, len(res.Torrents))
	for _, t := range res.Torrents {
		if t.HashString == "" {
			return nil, core.NewProtocolError("list torrents", nil, fmt.Errorf("torrent %q without hash", t.Name))
		}
		if _, dup := seen[t.HashString]; dup {
			return nil, core.NewProtocolError("list torrents", nil, fmt.Errorf("duplicate hash %s", t.HashString))
		}
		seen[t.HashString] = struct{}{}
		torrents = append(torrents, toProperties(t))
	}
	return torrents, nil
}

// GetTorrent fetches one torrent by hash.
func (a *Adapter) GetTorrent(ctx context.Context, hash string) (*core.TorrentProperties, error) {
	t, err := a.getOne(ctx, hash, torrentFields)
	if err != nil {
		return nil, err
	}
	p := toProperties(*t)
	return &p, nil
}

func (a *Adapter) getOne(ctx context.Context, hash string, fields []string) (*rpcTorrent, error) {
	var res torrentGetResult
	args := torrentGetArgs{Fields: fields, IDs: []string{hash}}
	if err := a.client.Call(ctx, "torrent_get", args, &res); err != nil {
		return nil, err
	}
	if len(res.Torrents) == 0 {
		return nil, core.NewFault("get torrent", 0, "torrent "+hash+" not found")
	}
	return &res.Torrents[0], nil
}

// GetClientStats combines session_stats rates and totals with the session
// speed limits.
func (a *Adapter) GetClientStats(ctx context.Context) (*core.ClientStats, error) {
	var stats sessionStats
	if err := a.client.Call(ctx, "session_stats", struct{}{}, &stats); err != nil {
		return nil, err
	}
	var settings sessionSettings
	args := sessionGetArgs{Fields: []string{
		"speed_limit_down", "speed_limit_down_enabled", "speed_limit_up", "speed_limit_up_enabled",
	}}
	if err := a.client.Call(ctx, "session_get", args, &settings); err != nil {
		return nil, err
	}

	cs := &core.ClientStats{
		UploadRate:    max(stats.UploadSpeed, 0),
		DownloadRate:  max(stats.DownloadSpeed, 0),
		UploadTotal:   stats.CumulativeStats.UploadedBytes,
		DownloadTotal: stats.CumulativeStats.DownloadedBytes,
	}
	if settings.SpeedLimitUpEnabled {
		cs.UploadThrottle = settings.SpeedLimitUp * 1000
	}
	if settings.SpeedLimitDownEnabled {
		cs.DownloadThrottle = settings.SpeedLimitDown * 1000
	}
	return cs, nil
}

// StartTorrents starts the given torrents.
func (a *Adapter) StartTorrents(ctx context.Context, hashes []string) error {
	return a.client.Call(ctx, "torrent_start", idsArgs{IDs: hashes}, &emptyResult{})
}

// StopTorrents stops the given torrents.
func (a *Adapter) StopTorrents(ctx context.Context, hashes []string) error {
	return a.client.Call(ctx, "torrent_stop", idsArgs{IDs: hashes}, &emptyResult{})
}

// CheckTorrents queues a verification of local data.
func (a *Adapter) CheckTorrents(ctx context.Context, hashes []string) error {
	return a.client.Call(ctx, "torrent_verify", idsArgs{IDs: hashes}, &emptyResult{})
}

// AddTorrentByURL adds each URL with its own torrent_add call.
func (a *Adapter) AddTorrentByURL(ctx context.Context, opts core.AddOptions) error {
	for _, u := range opts.URLs {
		args := torrentAddArgs{
			Filename:    u,
			DownloadDir: opts.Destination,
			Paused:      !opts.Start,
			Labels:      opts.Tags,
		}
		if err := a.client.Call(ctx, "torrent_add", args, &emptyResult{}); err != nil {
			return err
		}
	}
	return nil
}

// AddTorrentByFile adds base64-encoded metainfo.
func (a *Adapter) AddTorrentByFile(ctx context.Context, opts core.AddFileOptions) error {
	for _, data := range opts.Files {
		args := torrentAddArgs{
			Metainfo:    base64.StdEncoding.EncodeToString(data),
			DownloadDir: opts.Destination,
			Paused:      !opts.Start,
			Labels:      opts.Tags,
		}
		if err := a.client.Call(ctx, "torrent_add", args, &emptyResult{}); err != nil {
			return err
		}
	}
	return nil
}

// DeleteTorrents removes torrents and optionally their data.
func (a *Adapter) DeleteTorrents(ctx context.Context, hashes []string, deleteData bool) error {
	args := torrentRemoveArgs{IDs: hashes, DeleteLocalData: deleteData}
	return a.client.Call(ctx, "torrent_remove", args, &emptyResult{})
}

// MoveTorrents sets a new location. Transmission always places the torrent's
// own directory below the location, so a destination that already includes
// it is reduced to its parent.
func (a *Adapter) MoveTorrents(ctx context.Context, opts core.MoveOptions) error {
	location := opts.Destination
	if opts.IsBasePath {
		location = path.Dir(strings.TrimRight(location, "/"))
	}
	args := setLocationArgs{IDs: opts.Hashes, Location: location, Move: opts.MoveFiles}
	return a.client.Call(ctx, "torrent_set_location", args, &emptyResult{})
}

// SetTags replaces the label list.
func (a *Adapter) SetTags(ctx context.Context, hashes []string, tags []string) error {
	if tags == nil {
		tags = []string{}
	}
	// labels must be sent even when empty to clear them
	args := map[string]any{"ids": hashes, "labels": tags}
	return a.client.Call(ctx, "torrent_set", args, &emptyResult{})
}

// SetPriority maps the 0-3 scale onto Transmission's -1/0/1 bandwidth
// priority; off and low both become low.
func (a *Adapter) SetPriority(ctx context.Context, hashes []string, priority core.TorrentPriority) error {
	p := toBandwidthPriority(priority)
	return a.client.Call(ctx, "torrent_set", torrentSetArgs{IDs: hashes, BandwidthPriority: &p}, &emptyResult{})
}

// SetFilePriority marks files wanted or unwanted and sets their priority.
func (a *Adapter) SetFilePriority(ctx context.Context, hash string, indices []int, priority core.FilePriority) error {
	args := torrentSetArgs{IDs: []string{hash}}
	switch priority {
	case core.FileSkip:
		args.FilesUnwanted = indices
	case core.FileHigh:
		args.FilesWanted = indices
		args.PriorityHigh = indices
	default:
		args.FilesWanted = indices
		args.PriorityNormal = indices
	}
	return a.client.Call(ctx, "torrent_set", args, &emptyResult{})
}

// GetTrackers lists the announce URLs of one torrent.
func (a *Adapter) GetTrackers(ctx context.Context, hash string) ([]core.Tracker, error) {
	t, err := a.getOne(ctx, hash, []string{"hash_string", "trackers"})
	if err != nil {
		return nil, err
	}
	trackers := make([]core.Tracker, 0, len(t.Trackers))
	for _, tr := range t.Trackers {
		trackers = append(trackers, core.Tracker{
			URL:     tr.Announce,
			Type:    trackerType(tr.Announce),
			Enabled: true,
		})
	}
	return trackers, nil
}

func trackerType(announce string) core.TrackerType {
	u, err := url.Parse(announce)
	if err != nil {
		return core.TrackerUnknown
	}
	switch u.Scheme {
	case "http", "https":
		return core.TrackerHTTP
	case "udp":
		return core.TrackerUDP
	default:
		return core.TrackerUnknown
	}
}

func toBandwidthPriority(p core.TorrentPriority) int {
	switch p {
	case core.PriorityHigh:
		return 1
	case core.PriorityNormal:
		return 0
	default:
		return -1
	}
}

func fromBandwidthPriority(p int) core.TorrentPriority {
	switch {
	case p > 0:
		return core.PriorityHigh
	case p < 0:
		return core.PriorityLow
	default:
		return core.PriorityNormal
	}
}

func toProperties(t rpcTorrent) core.TorrentProperties {
	size := t.SizeWhenDone
	p := core.TorrentProperties{
		Hash:           t.HashString,
		Name:           t.Name,
		UploadRate:     t.RateUpload,
		DownloadRate:   t.RateDownload,
		UploadTotal:    t.UploadedEver,
		DownloadTotal:  t.DownloadedEver,
		BytesDone:      size - t.LeftUntilDone,
		SizeBytes:      size,
		Tags:           t.Labels,
		Priority:       fromBandwidthPriority(t.BandwidthPriority),
		Directory:      t.DownloadDir,
		DateAdded:      t.AddedDate,
		Message:        t.ErrorString,
		PeersConnected: t.PeersConnected,
	}
	// upload_ratio is -1 when nothing was downloaded and -2 when infinite
	ratio := max(t.UploadRatio, 0)
	props.Derive(&p, int64(ratio*1000))
	p.Status = normalizeStatus(t)
	return p
}
