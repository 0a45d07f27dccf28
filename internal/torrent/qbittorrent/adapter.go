// Package qbittorrent adapts the qBittorrent Web API v2 to core.TorrentBackend.
package qbittorrent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/vadimtrunov/torrentdeck/internal/core"
	"github.com/vadimtrunov/torrentdeck/internal/httpclient"
	"github.com/vadimtrunov/torrentdeck/internal/torrent/props"
)

// Options configures an Adapter.
type Options struct {
	Name     string
	URL      string // Web UI base URL
	Username string
	Password string
	HTTP     httpclient.Config
}

// Adapter implements core.TorrentBackend for qBittorrent.
type Adapter struct {
	name   string
	client *Client
	logger *slog.Logger
}

var _ core.TorrentBackend = (*Adapter)(nil)

// New creates a qBittorrent adapter. The session is established lazily on
// the first request.
func New(opts Options, logger *slog.Logger) (*Adapter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("backend", opts.Name))
	client, err := NewClient(opts.URL, opts.Username, opts.Password, opts.HTTP, logger)
	if err != nil {
		return nil, err
	}
	return &Adapter{name: opts.Name, client: client, logger: logger}, nil
}

// Name returns the configured instance name.
func (a *Adapter) Name() string { return a.name }

// Type returns "qbittorrent".
func (a *Adapter) Type() string { return core.TypeQBittorrent }

// Close is a no-op; the session cookie simply expires.
func (a *Adapter) Close() error { return nil }

// ListTorrents returns every torrent from torrents/info.
func (a *Adapter) ListTorrents(ctx context.Context) ([]core.TorrentProperties, error) {
	var raw []qbitTorrent
	if err := a.client.getJSON(ctx, "/api/v2/torrents/info", nil, &raw); err != nil {
		return nil, err
	}

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
		torrents = append(torrents, toProperties(t))
	}
	return torrents, nil
}

// GetTorrent returns a single torrent by hash.
func (a *Adapter) GetTorrent(ctx context.Context, hash string) (*core.TorrentProperties, error) {
	var raw []qbitTorrent
	params := url.Values{"hashes": {hash}}
	if err := a.client.getJSON(ctx, "/api/v2/torrents/info", params, &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, core.NewFault("get torrent", 0, "torrent "+hash+" not found")
	}
	p := toProperties(raw[0])
	return &p, nil
}

// GetClientStats reads transfer/info. Totals are those of the current session.
func (a *Adapter) GetClientStats(ctx context.Context) (*core.ClientStats, error) {
	var info transferInfo
	if err := a.client.getJSON(ctx, "/api/v2/transfer/info", nil, &info); err != nil {
		return nil, err
	}
	return &core.ClientStats{
		UploadRate:       info.UPInfoSpeed,
		DownloadRate:     info.DLInfoSpeed,
		UploadTotal:      info.UPInfoData,
		DownloadTotal:    info.DLInfoData,
		UploadThrottle:   info.UPRateLimit,
		DownloadThrottle: info.DLRateLimit,
	}, nil
}

// StartTorrents uses torrents/start, falling back to torrents/resume on
// versions before 5.0.
func (a *Adapter) StartTorrents(ctx context.Context, hashes []string) error {
	return a.postWithFallback(ctx, "/api/v2/torrents/start", "/api/v2/torrents/resume", hashesForm(hashes))
}

// StopTorrents uses torrents/stop, falling back to torrents/pause.
func (a *Adapter) StopTorrents(ctx context.Context, hashes []string) error {
	return a.postWithFallback(ctx, "/api/v2/torrents/stop", "/api/v2/torrents/pause", hashesForm(hashes))
}

func (a *Adapter) postWithFallback(ctx context.Context, current, legacy string, data url.Values) error {
	err := a.client.postForm(ctx, current, data)
	if errors.Is(err, errNotFound) {
		a.logger.Debug("endpoint missing, using legacy name", slog.String("path", legacy))
		return a.client.postForm(ctx, legacy, data)
	}
	return err
}

// CheckTorrents queues a recheck.
func (a *Adapter) CheckTorrents(ctx context.Context, hashes []string) error {
	return a.client.postForm(ctx, "/api/v2/torrents/recheck", hashesForm(hashes))
}

// AddTorrentByURL submits all URLs in one torrents/add.
func (a *Adapter) AddTorrentByURL(ctx context.Context, opts core.AddOptions) error {
	fields := addFields(opts.Destination, opts.Tags, opts.Start)
	fields.Set("urls", strings.Join(opts.URLs, "\n"))
	return a.client.postMultipart(ctx, "/api/v2/torrents/add", fields, nil)
}

// AddTorrentByFile uploads the metainfo files in one torrents/add.
func (a *Adapter) AddTorrentByFile(ctx context.Context, opts core.AddFileOptions) error {
	files := make([]filePart, 0, len(opts.Files))
	for i, data := range opts.Files {
		files = append(files, filePart{name: "upload" + strconv.Itoa(i) + ".torrent", data: data})
	}
	fields := addFields(opts.Destination, opts.Tags, opts.Start)
	return a.client.postMultipart(ctx, "/api/v2/torrents/add", fields, files)
}

func addFields(destination string, tags []string, start bool) url.Values {
	fields := url.Values{}
	if destination != "" {
		fields.Set("savepath", destination)
	}
	if len(tags) > 0 {
		fields.Set("tags", strings.Join(tags, ","))
	}
	// "paused" before 5.0, "stopped" since
	stopped := strconv.FormatBool(!start)
	fields.Set("paused", stopped)
	fields.Set("stopped", stopped)
	return fields
}

// DeleteTorrents removes torrents and optionally their files.
func (a *Adapter) DeleteTorrents(ctx context.Context, hashes []string, deleteData bool) error {
	data := hashesForm(hashes)
	data.Set("deleteFiles", strconv.FormatBool(deleteData))
	return a.client.postForm(ctx, "/api/v2/torrents/delete", data)
}

// MoveTorrents changes the save path. qBittorrent always relocates data, so
// a repoint without moving is logged and performed as a move.
func (a *Adapter) MoveTorrents(ctx context.Context, opts core.MoveOptions) error {
	location := opts.Destination
	if opts.IsBasePath {
		location = path.Dir(strings.TrimRight(location, "/"))
	}
	if !opts.MoveFiles {
		a.logger.Warn("qbittorrent cannot repoint without moving data", slog.Int("torrents", len(opts.Hashes)))
	}
	data := hashesForm(opts.Hashes)
	data.Set("location", location)
	return a.client.postForm(ctx, "/api/v2/torrents/setLocation", data)
}

// SetTags clears all tags and adds the new ones.
func (a *Adapter) SetTags(ctx context.Context, hashes []string, tags []string) error {
	// an empty tags value removes every tag
	reset := hashesForm(hashes)
	reset.Set("tags", "")
	if err := a.client.postForm(ctx, "/api/v2/torrents/removeTags", reset); err != nil {
		return err
	}
	if len(tags) == 0 {
		return nil
	}
	add := hashesForm(hashes)
	add.Set("tags", strings.Join(tags, ","))
	return a.client.postForm(ctx, "/api/v2/torrents/addTags", add)
}

// SetPriority maps the priority onto the download queue: high moves the
// torrents to the top, off and low to the bottom, normal leaves the queue alone.
func (a *Adapter) SetPriority(ctx context.Context, hashes []string, priority core.TorrentPriority) error {
	switch priority {
	case core.PriorityHigh:
		return a.client.postForm(ctx, "/api/v2/torrents/topPrio", hashesForm(hashes))
	case core.PriorityNormal:
		return nil
	default:
		return a.client.postForm(ctx, "/api/v2/torrents/bottomPrio", hashesForm(hashes))
	}
}

// SetFilePriority sets the priority of files by index.
func (a *Adapter) SetFilePriority(ctx context.Context, hash string, indices []int, priority core.FilePriority) error {
	ids := make([]string, len(indices))
	for i, idx := range indices {
		ids[i] = strconv.Itoa(idx)
	}
	data := url.Values{
		"hash":     {hash},
		"id":       {strings.Join(ids, "|")},
		"priority": {strconv.Itoa(toFilePriority(priority))},
	}
	return a.client.postForm(ctx, "/api/v2/torrents/filePrio", data)
}

// GetTrackers lists trackers, including the DHT/PeX/LSD pseudo entries.
func (a *Adapter) GetTrackers(ctx context.Context, hash string) ([]core.Tracker, error) {
	var raw []qbitTracker
	if err := a.client.getJSON(ctx, "/api/v2/torrents/trackers", url.Values{"hash": {hash}}, &raw); err != nil {
		return nil, err
	}
	trackers := make([]core.Tracker, 0, len(raw))
	for _, tr := range raw {
		trackers = append(trackers, core.Tracker{
			URL:     tr.URL,
			Type:    trackerType(tr.URL),
			Enabled: tr.Status != 0,
		})
	}
	return trackers, nil
}

func trackerType(u string) core.TrackerType {
	switch {
	case strings.HasPrefix(u, "** ["):
		return core.TrackerDHT
	case strings.HasPrefix(u, "http://"), strings.HasPrefix(u, "https://"):
		return core.TrackerHTTP
	case strings.HasPrefix(u, "udp://"):
		return core.TrackerUDP
	default:
		return core.TrackerUnknown
	}
}

func toFilePriority(p core.FilePriority) int {
	switch p {
	case core.FileSkip:
		return 0
	case core.FileHigh:
		return 6
	default:
		return 1
	}
}

func hashesForm(hashes []string) url.Values {
	return url.Values{"hashes": {strings.Join(hashes, "|")}}
}

// toProperties converts a qBittorrent torrent to the normalized form.
func toProperties(t qbitTorrent) core.TorrentProperties {
	size := t.Size
	if size <= 0 {
		size = t.TotalSize
	}
	p := core.TorrentProperties{
		Hash:           t.Hash,
		Name:           t.Name,
		UploadRate:     t.UPSpeed,
		DownloadRate:   t.DLSpeed,
		UploadTotal:    t.Uploaded,
		DownloadTotal:  t.Downloaded,
		BytesDone:      t.Completed,
		SizeBytes:      size,
		Tags:           props.SplitTags(t.Tags),
		Priority:       core.PriorityNormal,
		Directory:      t.SavePath,
		DateAdded:      t.AddedOn,
		PeersConnected: t.NumSeeds + t.NumLeechs,
	}
	if t.State == string(stateError) || t.State == string(stateMissingFiles) {
		p.Message = t.State
	}
	props.Derive(&p, int64(max(t.Ratio, 0)*1000))
	p.Status = normalizeStatus(t.State, p.UploadRate, p.DownloadRate)
	return p
}
