// Package rtorrent adapts an rTorrent daemon, reached over SCGI with XML-RPC
// multicalls, to core.TorrentBackend.
package rtorrent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/vadimtrunov/torrentdeck/internal/core"
	"github.com/vadimtrunov/torrentdeck/internal/torrent/props"
	"github.com/vadimtrunov/torrentdeck/internal/xmlrpc"
)

// defaultView is the rTorrent view holding every download.
const defaultView = "main"

// Options configures an Adapter.
type Options struct {
	Name    string
	Network string // "tcp" or "unix"
	Address string // host:port or socket path
	Timeout time.Duration
}

// Adapter implements core.TorrentBackend for rTorrent.
type Adapter struct {
	name   string
	client caller
	now    func() time.Time
	logger *slog.Logger
}

var _ core.TorrentBackend = (*Adapter)(nil)

// New creates an rTorrent adapter owning one SCGI client.
func New(opts Options, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("backend", opts.Name))
	return newAdapter(opts.Name, NewClient(opts.Network, opts.Address, opts.Timeout, logger), logger)
}

func newAdapter(name string, client caller, logger *slog.Logger) *Adapter {
	return &Adapter{
		name:   name,
		client: client,
		now:    time.Now,
		logger: logger,
	}
}

// Name returns the configured instance name.
func (a *Adapter) Name() string { return a.name }

// Type returns "rtorrent".
func (a *Adapter) Type() string { return core.TypeRTorrent }

// Close is a no-op: every exchange uses its own connection.
func (a *Adapter) Close() error { return nil }

// ListTorrents fetches every download of the main view in one d.multicall.
// A malformed row fails the whole poll.
func (a *Adapter) ListTorrents(ctx context.Context) ([]core.TorrentProperties, error) {
	const op = "list torrents"
	raw, err := a.client.Call(ctx, "d.multicall", listParams(defaultView, torrentFields)...)
	if err != nil {
		return nil, err
	}

	res, err := props.Unmap(props.Collection, fieldNames(torrentFields), raw, propHash)
	if err != nil {
		return nil, core.NewProtocolError(op, nil, err)
	}

	torrents := make([]core.TorrentProperties, 0, len(res.Order))
	for _, hash := range res.Order {
		torrents = append(torrents, toProperties(res.Records[hash]))
	}
	return torrents, nil
}

// GetTorrent fetches one download with a per-hash system.multicall.
func (a *Adapter) GetTorrent(ctx context.Context, hash string) (*core.TorrentProperties, error) {
	const op = "get torrent"
	b := newBatch()
	for _, f := range torrentFields {
		b.add(f.method, f.params(hash)...)
	}
	values, err := a.multicall(ctx, op, b, true)
	if err != nil {
		return nil, err
	}

	res, err := props.Unmap(props.Single, fieldNames(torrentFields), values, propHash)
	if err != nil {
		return nil, core.NewProtocolError(op, nil, err)
	}
	p := toProperties(res.Record)
	return &p, nil
}

// GetClientStats reads the global rates, totals and throttles.
func (a *Adapter) GetClientStats(ctx context.Context) (*core.ClientStats, error) {
	const op = "get client stats"
	b := newBatch()
	for _, m := range clientStatFields {
		b.add(m)
	}
	values, err := a.multicall(ctx, op, b, true)
	if err != nil {
		return nil, err
	}
	rec, err := props.Zip(clientStatFields, values)
	if err != nil {
		return nil, core.NewProtocolError(op, nil, err)
	}
	return &core.ClientStats{
		UploadRate:       max(rec.Int64("get_up_rate"), 0),
		DownloadRate:     max(rec.Int64("get_down_rate"), 0),
		UploadTotal:      rec.Int64("get_up_total"),
		DownloadTotal:    rec.Int64("get_down_total"),
		UploadThrottle:   rec.Int64("get_upload_rate"),
		DownloadThrottle: rec.Int64("get_download_rate"),
	}, nil
}

// StartTorrents opens and starts each download.
func (a *Adapter) StartTorrents(ctx context.Context, hashes []string) error {
	return a.forEach(ctx, "start torrents", hashes, func(b *batch, hash string) {
		b.add("d.open", hash)
		b.add("d.start", hash)
	})
}

// StopTorrents stops and closes each download.
func (a *Adapter) StopTorrents(ctx context.Context, hashes []string) error {
	return a.forEach(ctx, "stop torrents", hashes, func(b *batch, hash string) {
		b.add("d.stop", hash)
		b.add("d.close", hash)
	})
}

// CheckTorrents schedules a hash check of each download.
func (a *Adapter) CheckTorrents(ctx context.Context, hashes []string) error {
	return a.forEach(ctx, "check torrents", hashes, func(b *batch, hash string) {
		b.add("d.check_hash", hash)
	})
}

// AddTorrentByURL loads magnet links or torrent URLs.
func (a *Adapter) AddTorrentByURL(ctx context.Context, opts core.AddOptions) error {
	commands, err := a.loadCommands(opts.Destination, opts.Tags)
	if err != nil {
		return err
	}
	method := "load.normal"
	if opts.Start {
		method = "load.start"
	}
	b := newBatch()
	for _, u := range opts.URLs {
		b.add(method, append([]any{"", u}, commands...)...)
	}
	_, err = a.multicall(ctx, "add torrents", b, false)
	return err
}

// AddTorrentByFile loads raw .torrent contents.
func (a *Adapter) AddTorrentByFile(ctx context.Context, opts core.AddFileOptions) error {
	commands, err := a.loadCommands(opts.Destination, opts.Tags)
	if err != nil {
		return err
	}
	method := "load.raw"
	if opts.Start {
		method = "load.raw_start"
	}
	b := newBatch()
	for _, data := range opts.Files {
		b.add(method, append([]any{"", data}, commands...)...)
	}
	_, err = a.multicall(ctx, "add torrent files", b, false)
	return err
}

// loadCommands builds the post-load commands applied to a new download.
func (a *Adapter) loadCommands(destination string, tags []string) ([]any, error) {
	if strings.ContainsAny(destination, "\"\n") {
		return nil, core.NewValidationError("destination %q contains forbidden characters", destination)
	}
	var commands []any
	if destination != "" {
		commands = append(commands, fmt.Sprintf("d.set_directory=\"%s\"", destination))
	}
	if len(tags) > 0 {
		joined := encodeTags(tags)
		if strings.ContainsAny(joined, "\"\n") {
			return nil, core.NewValidationError("tags contain forbidden characters")
		}
		commands = append(commands, fmt.Sprintf("d.set_custom1=\"%s\"", joined))
	}
	commands = append(commands, "d.set_custom=addtime,"+strconv.FormatInt(a.now().Unix(), 10))
	return commands, nil
}

// DeleteTorrents erases downloads. With deleteData the data paths are
// resolved first and removed with execute after the erase.
func (a *Adapter) DeleteTorrents(ctx context.Context, hashes []string, deleteData bool) error {
	const op = "delete torrents"
	var errs []error
	var paths []string
	targets := hashes

	if deleteData {
		info, err := a.basePaths(ctx, op, hashes)
		if err != nil {
			return err
		}
		targets = nil
		for _, hash := range hashes {
			if e, ok := info[hash]; ok && e.err != nil {
				errs = append(errs, e.err)
				continue
			}
			targets = append(targets, hash)
			if p := info[hash].path; p != "" && p != "/" {
				paths = append(paths, p)
			}
		}
	}

	if err := a.forEach(ctx, op, targets, func(b *batch, hash string) {
		b.add("d.erase", hash)
	}); err != nil {
		errs = append(errs, err)
	}

	if len(paths) > 0 {
		b := newBatch()
		for _, p := range paths {
			b.add("execute", "", "rm", "-rf", p)
		}
		if _, err := a.multicall(ctx, op, b, false); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MoveTorrents repoints downloads to a new directory, optionally moving the
// data. Downloads are closed during the move and restarted when they were
// active before.
func (a *Adapter) MoveTorrents(ctx context.Context, opts core.MoveOptions) error {
	const op = "move torrents"
	info, err := a.basePaths(ctx, op, opts.Hashes)
	if err != nil {
		return err
	}

	var errs []error
	var targets []string
	for _, hash := range opts.Hashes {
		if e := info[hash]; e.err != nil {
			errs = append(errs, e.err)
			continue
		}
		targets = append(targets, hash)
	}

	if err := a.forEach(ctx, op, targets, func(b *batch, hash string) {
		b.add("d.stop", hash)
		b.add("d.close", hash)
	}); err != nil {
		return errors.Join(append(errs, err)...)
	}

	if opts.MoveFiles && len(targets) > 0 {
		b := newBatch()
		b.add("execute", "", "mkdir", "-p", opts.Destination)
		for _, hash := range targets {
			if p := info[hash].path; p != "" {
				b.add("execute", "", "mv", "-u", p, opts.Destination+"/")
			}
		}
		if _, err := a.multicall(ctx, op, b, false); err != nil {
			errs = append(errs, err)
		}
	}

	setDir := "d.set_directory"
	if opts.IsBasePath {
		setDir = "d.set_directory_base"
	}
	if err := a.forEach(ctx, op, targets, func(b *batch, hash string) {
		b.add(setDir, hash, opts.Destination)
		if info[hash].active {
			b.add("d.open", hash)
			b.add("d.start", hash)
		}
	}); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

type pathInfo struct {
	path   string
	active bool
	err    error
}

// basePaths fetches the data path and activity of each hash. A fault for one
// hash is recorded on its entry only.
func (a *Adapter) basePaths(ctx context.Context, op string, hashes []string) (map[string]pathInfo, error) {
	b := newBatch()
	for _, hash := range hashes {
		b.add("d.get_base_path", hash)
		b.add("d.is_active", hash)
	}
	raw, err := a.client.Call(ctx, "system.multicall", b.params()...)
	if err != nil {
		return nil, err
	}
	values, faults, err := unwrapMulticall(raw, b.len())
	if err != nil {
		return nil, core.NewProtocolError(op, nil, err)
	}

	info := make(map[string]pathInfo, len(hashes))
	for i, hash := range hashes {
		pathIdx, activeIdx := 2*i, 2*i+1
		if f := firstFault(faults[pathIdx], faults[activeIdx]); f != nil {
			info[hash] = pathInfo{err: faultError(op, hash, f)}
			continue
		}
		rec := props.Record{"path": values[pathIdx], "active": values[activeIdx]}
		info[hash] = pathInfo{path: rec.String("path"), active: rec.Bool("active")}
	}
	return info, nil
}

// SetTags replaces the d.custom1 label list.
func (a *Adapter) SetTags(ctx context.Context, hashes []string, tags []string) error {
	value := encodeTags(tags)
	return a.forEach(ctx, "set tags", hashes, func(b *batch, hash string) {
		b.add("d.set_custom1", hash, value)
	})
}

// SetPriority sets the download priority; rTorrent uses the same 0-3 scale.
func (a *Adapter) SetPriority(ctx context.Context, hashes []string, priority core.TorrentPriority) error {
	return a.forEach(ctx, "set priority", hashes, func(b *batch, hash string) {
		b.add("d.set_priority", hash, int(priority))
	})
}

// SetFilePriority sets file priorities and re-applies them to the download.
func (a *Adapter) SetFilePriority(ctx context.Context, hash string, indices []int, priority core.FilePriority) error {
	b := newBatch()
	for _, idx := range indices {
		b.add("f.set_priority", hash+":f"+strconv.Itoa(idx), int(priority))
	}
	b.add("d.update_priorities", hash)
	_, err := a.multicall(ctx, "set file priority", b, false)
	return err
}

// GetTrackers lists the trackers of one download via t.multicall.
func (a *Adapter) GetTrackers(ctx context.Context, hash string) ([]core.Tracker, error) {
	const op = "get trackers"
	params := append([]any{hash, ""}, toAny(trackerAccessors)...)
	raw, err := a.client.Call(ctx, "t.multicall", params...)
	if err != nil {
		return nil, err
	}
	rows, ok := raw.([]any)
	if !ok {
		return nil, core.NewProtocolError(op, nil, fmt.Errorf("expected array, got %T", raw))
	}

	trackers := make([]core.Tracker, 0, len(rows))
	for i, r := range rows {
		row, ok := r.([]any)
		if !ok {
			return nil, core.NewProtocolError(op, nil, fmt.Errorf("tracker %d: expected row, got %T", i, r))
		}
		rec, err := props.Zip([]string{"url", "type", "enabled"}, row)
		if err != nil {
			return nil, core.NewProtocolError(op, nil, fmt.Errorf("tracker %d: %w", i, err))
		}
		trackers = append(trackers, core.Tracker{
			URL:     rec.String("url"),
			Type:    trackerType(rec.Int64("type")),
			Enabled: rec.Bool("enabled"),
		})
	}
	return trackers, nil
}

func trackerType(t int64) core.TrackerType {
	switch t {
	case 1:
		return core.TrackerHTTP
	case 2:
		return core.TrackerUDP
	case 3:
		return core.TrackerDHT
	default:
		return core.TrackerUnknown
	}
}

// forEach runs build for every hash inside one system.multicall. Faults are
// scoped to their call: every call runs and the faults are joined.
func (a *Adapter) forEach(ctx context.Context, op string, hashes []string, build func(*batch, string)) error {
	if len(hashes) == 0 {
		return nil
	}
	b := newBatch()
	for _, hash := range hashes {
		build(b, hash)
	}
	_, err := a.multicall(ctx, op, b, false)
	return err
}

// multicall sends b as one system.multicall. With strict set, any fault
// fails the whole batch, as required for reads whose fields must be
// consistent; otherwise faults are joined and returned with the values.
func (a *Adapter) multicall(ctx context.Context, op string, b *batch, strict bool) ([]any, error) {
	raw, err := a.client.Call(ctx, "system.multicall", b.params()...)
	if err != nil {
		return nil, err
	}
	values, faults, err := unwrapMulticall(raw, b.len())
	if err != nil {
		return nil, core.NewProtocolError(op, nil, err)
	}

	var errs []error
	for i, f := range faults {
		if f == nil {
			continue
		}
		method, target := callInfo(b.calls[i])
		e := faultError(op, target, f)
		if strict {
			return nil, e
		}
		a.logger.Warn("rtorrent call failed",
			slog.String("method", method),
			slog.String("target", target),
			slog.Int("code", f.Code),
			slog.String("message", f.Message),
		)
		errs = append(errs, e)
	}
	return values, errors.Join(errs...)
}

func callInfo(call any) (method, target string) {
	m, _ := call.(map[string]any)
	method, _ = m["methodName"].(string)
	if params, ok := m["params"].([]any); ok && len(params) > 0 {
		target, _ = params[0].(string)
	}
	return method, target
}

func faultError(op, target string, f *xmlrpc.Fault) *core.Error {
	e := core.NewFault(op, f.Code, f.Message)
	if target != "" {
		e.Message = target + ": " + f.Message
	}
	return e
}

func firstFault(faults ...*xmlrpc.Fault) *xmlrpc.Fault {
	for _, f := range faults {
		if f != nil {
			return f
		}
	}
	return nil
}

func toAny(s []string) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}

// toProperties builds the normalized view of one rTorrent row.
func toProperties(rec props.Record) core.TorrentProperties {
	p := core.TorrentProperties{
		Hash:           rec.String(propHash),
		Name:           rec.String(propName),
		UploadRate:     rec.Int64(propUpRate),
		DownloadRate:   rec.Int64(propDownRate),
		UploadTotal:    rec.Int64(propUpTotal),
		DownloadTotal:  rec.Int64(propDownTotal),
		BytesDone:      rec.Int64(propBytesDone),
		SizeBytes:      rec.Int64(propSizeBytes),
		Tags:           props.SplitTags(rec.String(propTags)),
		Priority:       core.TorrentPriority(rec.Int64(propPriority)),
		Directory:      rec.String(propDirectory),
		DateAdded:      rec.Int64(propAddTime),
		Message:        rec.String(propMessage),
		PeersConnected: rec.Int64(propPeersConnected),
	}
	props.Derive(&p, rec.Int64(propRatio))
	p.Status = normalizeStatus(flags{
		hashChecking: rec.Bool(propHashChecking),
		open:         rec.Bool(propOpen),
		active:       rec.Bool(propActive),
		complete:     rec.Bool(propComplete),
		message:      p.Message,
	}, p.UploadRate, p.DownloadRate)
	return p
}
