// Package restapi adapts a REST/JSON torrent daemon that exposes cumulative
// transfer counters only. Rates are computed between polls.
package restapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/vadimtrunov/torrentdeck/internal/core"
	"github.com/vadimtrunov/torrentdeck/internal/httpclient"
	"github.com/vadimtrunov/torrentdeck/internal/rate"
	"github.com/vadimtrunov/torrentdeck/internal/torrent/props"
)

// clientRateID keys the daemon-wide samples; torrent hashes never contain '@'.
const clientRateID = "@client"

// Options configures an Adapter.
type Options struct {
	Name         string
	URL          string
	Token        string
	HTTP         httpclient.Config
	MaxIdlePolls int // rate samples unobserved for this many polls are dropped
}

// Adapter implements core.TorrentBackend for the REST daemon.
type Adapter struct {
	name   string
	client *Client
	rates  *rate.Computer // per-torrent samples, swept by list polls
	totals *rate.Computer // daemon-wide samples, refreshed only by GetClientStats
	now    func() time.Time
	logger *slog.Logger
}

var _ core.TorrentBackend = (*Adapter)(nil)

// New creates a REST daemon adapter with its own rate samples.
func New(opts Options, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("backend", opts.Name))
	return &Adapter{
		name:   opts.Name,
		client: NewClient(opts.URL, opts.Token, opts.HTTP, logger),
		rates:  rate.New(opts.MaxIdlePolls),
		totals: rate.New(0),
		now:    time.Now,
		logger: logger,
	}
}

// Name returns the configured instance name.
func (a *Adapter) Name() string { return a.name }

// Type returns "restapi".
func (a *Adapter) Type() string { return core.TypeRESTAPI }

// Close drops the rate samples.
func (a *Adapter) Close() error {
	a.rates.Reset()
	a.totals.Reset()
	return nil
}

// ListTorrents fetches all torrents and derives their rates. Each call ends
// one poll cycle of the rate computer.
func (a *Adapter) ListTorrents(ctx context.Context) ([]core.TorrentProperties, error) {
	var raw []apiTorrent
	if err := a.client.get(ctx, "/api/v1/torrents", &raw); err != nil {
		return nil, err
	}

	at := a.now()
	seen := make(map[string]struct{}, len(raw))
	torrents := make([]core.TorrentProperties, 0, len(raw))
	for _, t := range raw {
		if t.Hash == "" {
			return nil, core.NewProtocolError("list torrents", nil, fmt.Errorf("torrent %q without hash", t.Name))
		}
		if _, dup := seen[t.Hash]; dup {
			return nil, core.NewProtocolError("list torrents", nil, fmt.Errorf("duplicate hash %s", t.Hash))
		}
		seen[t.Hash] = struct{}{}
		torrents = append(torrents, a.toProperties(t, at))
	}

	if evicted := a.rates.Sweep(); evicted > 0 {
		a.logger.Debug("dropped idle rate samples", slog.Int("count", evicted))
	}
	return torrents, nil
}

// GetTorrent fetches one torrent.
func (a *Adapter) GetTorrent(ctx context.Context, hash string) (*core.TorrentProperties, error) {
	var t apiTorrent
	if err := a.client.get(ctx, "/api/v1/torrents/"+url.PathEscape(hash), &t); err != nil {
		return nil, err
	}
	if t.Hash == "" {
		return nil, core.NewProtocolError("get torrent", nil, fmt.Errorf("torrent %s without hash", hash))
	}
	p := a.toProperties(t, a.now())
	return &p, nil
}

// GetClientStats derives aggregate rates from the daemon totals.
func (a *Adapter) GetClientStats(ctx context.Context) (*core.ClientStats, error) {
	var s apiStats
	if err := a.client.get(ctx, "/api/v1/stats", &s); err != nil {
		return nil, err
	}
	at := a.now()
	return &core.ClientStats{
		UploadRate:       a.totals.Rate(rate.Key(clientRateID, "up"), at, s.Uploaded),
		DownloadRate:     a.totals.Rate(rate.Key(clientRateID, "down"), at, s.Downloaded),
		UploadTotal:      s.Uploaded,
		DownloadTotal:    s.Downloaded,
		UploadThrottle:   max(s.UpLimit, 0),
		DownloadThrottle: max(s.DownLimit, 0),
	}, nil
}

// StartTorrents starts the given torrents.
func (a *Adapter) StartTorrents(ctx context.Context, hashes []string) error {
	return a.client.post(ctx, "/api/v1/torrents/start", hashesRequest{Hashes: hashes}, nil)
}

// StopTorrents stops the given torrents.
func (a *Adapter) StopTorrents(ctx context.Context, hashes []string) error {
	return a.client.post(ctx, "/api/v1/torrents/stop", hashesRequest{Hashes: hashes}, nil)
}

// CheckTorrents triggers a recheck.
func (a *Adapter) CheckTorrents(ctx context.Context, hashes []string) error {
	return a.client.post(ctx, "/api/v1/torrents/check", hashesRequest{Hashes: hashes}, nil)
}

// AddTorrentByURL adds magnets or torrent URLs.
func (a *Adapter) AddTorrentByURL(ctx context.Context, opts core.AddOptions) error {
	req := addRequest{URLs: opts.URLs, Destination: opts.Destination, Labels: nonNil(opts.Tags), Start: opts.Start}
	return a.client.post(ctx, "/api/v1/torrents", req, nil)
}

// AddTorrentByFile uploads metainfo files.
func (a *Adapter) AddTorrentByFile(ctx context.Context, opts core.AddFileOptions) error {
	req := addRequest{Files: opts.Files, Destination: opts.Destination, Labels: nonNil(opts.Tags), Start: opts.Start}
	return a.client.post(ctx, "/api/v1/torrents", req, nil)
}

// DeleteTorrents removes torrents and optionally their data.
func (a *Adapter) DeleteTorrents(ctx context.Context, hashes []string, deleteData bool) error {
	return a.client.post(ctx, "/api/v1/torrents/delete", deleteRequest{Hashes: hashes, DeleteData: deleteData}, nil)
}

// MoveTorrents changes the download directory. The daemon expects the parent
// of the torrent's own directory.
func (a *Adapter) MoveTorrents(ctx context.Context, opts core.MoveOptions) error {
	dest := opts.Destination
	if opts.IsBasePath {
		dest = path.Dir(strings.TrimRight(dest, "/"))
	}
	req := moveRequest{Hashes: opts.Hashes, Destination: dest, MoveFiles: opts.MoveFiles}
	return a.client.post(ctx, "/api/v1/torrents/move", req, nil)
}

// SetTags replaces the labels.
func (a *Adapter) SetTags(ctx context.Context, hashes []string, tags []string) error {
	return a.client.post(ctx, "/api/v1/torrents/labels", labelsRequest{Hashes: hashes, Labels: nonNil(tags)}, nil)
}

// SetPriority uses the daemon's native 0-3 scale.
func (a *Adapter) SetPriority(ctx context.Context, hashes []string, priority core.TorrentPriority) error {
	return a.client.post(ctx, "/api/v1/torrents/priority", priorityRequest{Hashes: hashes, Priority: int(priority)}, nil)
}

// SetFilePriority uses the daemon's native 0-2 scale.
func (a *Adapter) SetFilePriority(ctx context.Context, hash string, indices []int, priority core.FilePriority) error {
	req := filePriorityRequest{Hash: hash, Indices: indices, Priority: int(priority)}
	return a.client.post(ctx, "/api/v1/torrents/file-priority", req, nil)
}

// GetTrackers lists the trackers of one torrent.
func (a *Adapter) GetTrackers(ctx context.Context, hash string) ([]core.Tracker, error) {
	var raw []apiTracker
	if err := a.client.get(ctx, "/api/v1/torrents/"+url.PathEscape(hash)+"/trackers", &raw); err != nil {
		return nil, err
	}
	trackers := make([]core.Tracker, 0, len(raw))
	for _, tr := range raw {
		trackers = append(trackers, core.Tracker{URL: tr.URL, Type: trackerType(tr.URL), Enabled: tr.Enabled})
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
	case "dht":
		return core.TrackerDHT
	default:
		return core.TrackerUnknown
	}
}

func (a *Adapter) toProperties(t apiTorrent, at time.Time) core.TorrentProperties {
	up := a.rates.Rate(rate.Key(t.Hash, "up"), at, t.Uploaded)
	down := a.rates.Rate(rate.Key(t.Hash, "down"), at, t.Downloaded)

	priority := core.TorrentPriority(t.Priority)
	if !priority.Valid() {
		priority = core.PriorityNormal
	}
	p := core.TorrentProperties{
		Hash:           t.Hash,
		Name:           t.Name,
		UploadRate:     up,
		DownloadRate:   down,
		UploadTotal:    t.Uploaded,
		DownloadTotal:  t.Downloaded,
		BytesDone:      t.BytesDone,
		SizeBytes:      t.Size,
		Tags:           sanitizeLabels(t.Labels),
		Priority:       priority,
		Directory:      t.Directory,
		DateAdded:      t.AddedAt,
		Message:        t.Message,
		PeersConnected: t.Peers,
	}
	props.Derive(&p, int64(max(t.Ratio, 0)*1000))
	p.Status = normalizeStatus(t, up, down)
	return p
}

// sanitizeLabels drops blanks and splits labels that contain commas.
func sanitizeLabels(labels []string) []string {
	return props.SplitTags(strings.Join(labels, ","))
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
