// Package notification tells users about downloads in progress and about
// torrents that finished downloading. It consumes poll snapshots and keeps one
// editable progress message per user.
package notification

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/vadimtrunov/torrentdeck/internal/core"
	"github.com/vadimtrunov/torrentdeck/internal/torrent"
)

// ProgressNotifier can send and update messages to users.
type ProgressNotifier interface {
	// SendProgressMessage sends a new progress message and returns the message ID.
	SendProgressMessage(ctx context.Context, chatID int64, text string) (int, error)

	// EditProgressMessage updates an existing progress message.
	EditProgressMessage(ctx context.Context, chatID int64, messageID int, text string) error

	// SendMessage sends a one-off message.
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// progressThreshold is the minimum progress change (%) to trigger an update.
const progressThreshold = 2.0

// progressBarWidth is the character width of the text progress bar.
const progressBarWidth = 15

const (
	secondsPerMinute = 60
	secondsPerHour   = 3600
)

// downloadKey identifies a torrent across backends.
type downloadKey struct {
	backend string
	hash    string
}

// trackedDownload holds state for a single tracked torrent.
type trackedDownload struct {
	key          downloadKey
	name         string
	lastProgress float64
	lastStatus   core.StatusSet
	speed        int64
	eta          core.ETA
}

// userProgress holds per-user progress message state.
type userProgress struct {
	messageID int
}

// Tracker follows downloading torrents through poll snapshots. A torrent that
// moves into the complete state triggers a completion message; the combined
// progress message of every user is edited when something changed enough.
type Tracker struct {
	notifier ProgressNotifier
	userIDs  []int64

	// observe serializes Observe so message creation never races
	observe sync.Mutex

	mu        sync.Mutex
	baseline  map[string]bool
	downloads map[downloadKey]*trackedDownload
	users     map[int64]*userProgress

	logger *slog.Logger
}

// NewTracker creates a new progress tracker.
func NewTracker(notifier ProgressNotifier, userIDs []int64, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		notifier:  notifier,
		userIDs:   userIDs,
		baseline:  make(map[string]bool),
		downloads: make(map[downloadKey]*trackedDownload),
		users:     make(map[int64]*userProgress),
		logger:    logger,
	}
}

// Observe applies one poll snapshot. A failed poll changes nothing: torrents
// are only dropped when a successful listing no longer reports them.
//
// The first successful snapshot of a backend only picks up running downloads,
// so torrents that were complete before the process started never notify.
func (t *Tracker) Observe(ctx context.Context, snap torrent.Snapshot) {
	if snap.Err != nil {
		t.logger.Debug("skipping failed poll",
			slog.String("backend", snap.Backend), slog.String("error", snap.Err.Error()))
		return
	}

	t.observe.Lock()
	defer t.observe.Unlock()

	changed, finished := t.apply(snap)

	for _, dl := range finished {
		t.notifyFinished(ctx, dl)
	}
	if changed && (t.activeCount() > 0 || t.hasTrackedMessages()) {
		t.sendUpdates(ctx)
	}
}

// apply merges a snapshot into the tracked set. It returns whether the
// progress text changed and the downloads that completed.
func (t *Tracker) apply(snap torrent.Snapshot) (bool, []*trackedDownload) {
	t.mu.Lock()
	defer t.mu.Unlock()

	first := !t.baseline[snap.Backend]
	t.baseline[snap.Backend] = true

	seen := make(map[string]bool, len(snap.Torrents))
	changed := false
	var finished []*trackedDownload

	for i := range snap.Torrents {
		p := &snap.Torrents[i]
		seen[p.Hash] = true
		key := downloadKey{backend: snap.Backend, hash: p.Hash}
		dl, tracked := t.downloads[key]

		switch {
		case tracked && isFinished(p):
			delete(t.downloads, key)
			dl.lastProgress = 100
			finished = append(finished, dl)
			changed = true
			t.logger.Info("download finished",
				slog.String("backend", snap.Backend), slog.String("hash", p.Hash))
		case tracked:
			if shouldUpdate(dl, p) {
				update(dl, p)
				changed = true
			}
		case isDownloading(p):
			dl = &trackedDownload{key: key, name: p.Name}
			update(dl, p)
			t.downloads[key] = dl
			changed = true
			if first {
				t.logger.Info("picked up active download",
					slog.String("backend", snap.Backend), slog.String("name", p.Name))
			}
		}
	}

	for key := range t.downloads {
		if key.backend == snap.Backend && !seen[key.hash] {
			delete(t.downloads, key)
			changed = true
			t.logger.Warn("download disappeared from backend",
				slog.String("backend", key.backend), slog.String("hash", key.hash))
		}
	}
	return changed, finished
}

func update(dl *trackedDownload, p *core.TorrentProperties) {
	dl.name = p.Name
	dl.lastProgress = percent(p)
	dl.lastStatus = p.Status
	dl.speed = p.DownloadRate
	dl.eta = p.ETA
}

// isDownloading reports whether p still has data to fetch.
func isDownloading(p *core.TorrentProperties) bool {
	return p.Status.Has(core.TagDownloading) && !p.Status.Has(core.TagComplete)
}

// isFinished reports whether p has all selected data.
func isFinished(p *core.TorrentProperties) bool {
	return p.Status.Has(core.TagComplete)
}

func percent(p *core.TorrentProperties) float64 {
	v, err := strconv.ParseFloat(p.PercentComplete, 64)
	if err != nil {
		return 0
	}
	return v
}

// shouldUpdate returns true if the download changed enough to warrant an update.
func shouldUpdate(dl *trackedDownload, p *core.TorrentProperties) bool {
	delta := percent(p) - dl.lastProgress
	if delta < 0 {
		delta = -delta
	}
	return delta >= progressThreshold || dl.lastStatus != p.Status
}

// activeCount returns the number of tracked downloads.
func (t *Tracker) activeCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.downloads)
}

// hasTrackedMessages returns true if any user still has a tracked progress message.
func (t *Tracker) hasTrackedMessages() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.users) > 0
}

func (t *Tracker) notifyFinished(ctx context.Context, dl *trackedDownload) {
	text := fmt.Sprintf("Download complete: %s (%s)", dl.name, dl.key.backend)
	for _, uid := range t.userIDs {
		if err := t.notifier.SendMessage(ctx, uid, text); err != nil {
			t.logger.Error("failed to send completion message",
				slog.Int64("chat_id", uid), slog.String("error", err.Error()))
		}
	}
}

// sendUpdates sends or edits progress messages for all users.
func (t *Tracker) sendUpdates(ctx context.Context) {
	text, remaining := t.buildProgressText()

	for _, uid := range t.userIDs {
		t.sendToUser(ctx, uid, text)
	}

	// the next batch of downloads starts a fresh message
	if remaining == 0 {
		t.mu.Lock()
		t.users = make(map[int64]*userProgress)
		t.mu.Unlock()
	}
}

// sendToUser sends or edits a progress message for one user.
func (t *Tracker) sendToUser(ctx context.Context, chatID int64, text string) {
	t.mu.Lock()
	up, ok := t.users[chatID]
	t.mu.Unlock()

	if !ok || up.messageID == 0 {
		msgID, err := t.notifier.SendProgressMessage(ctx, chatID, text)
		if err != nil {
			t.logger.Error("failed to send progress message",
				slog.Int64("chat_id", chatID), slog.String("error", err.Error()))
			return
		}
		t.mu.Lock()
		t.users[chatID] = &userProgress{messageID: msgID}
		t.mu.Unlock()
		return
	}

	if err := t.notifier.EditProgressMessage(ctx, chatID, up.messageID, text); err != nil {
		t.logger.Warn("failed to edit progress message, falling back to new message",
			slog.Int64("chat_id", chatID), slog.String("error", err.Error()))

		newID, sendErr := t.notifier.SendProgressMessage(ctx, chatID, text)
		if sendErr != nil {
			t.logger.Error("failed to send fallback progress message",
				slog.Int64("chat_id", chatID), slog.String("error", sendErr.Error()))
			return
		}
		t.mu.Lock()
		t.users[chatID] = &userProgress{messageID: newID}
		t.mu.Unlock()
	}
}

// buildProgressText renders the combined summary and returns the active download count.
func (t *Tracker) buildProgressText() (string, int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.downloads) == 0 {
		return "All downloads complete!", 0
	}

	downloads := make([]*trackedDownload, 0, len(t.downloads))
	for _, dl := range t.downloads {
		downloads = append(downloads, dl)
	}
	sort.Slice(downloads, func(i, j int) bool {
		a, b := downloads[i].key, downloads[j].key
		if a.backend != b.backend {
			return a.backend < b.backend
		}
		return a.hash < b.hash
	})

	var b strings.Builder
	b.WriteString("Active downloads:\n")
	for _, dl := range downloads {
		writeDownloadLine(&b, dl)
	}
	return b.String(), len(downloads)
}

// writeDownloadLine appends a single download's progress to the builder.
func writeDownloadLine(b *strings.Builder, dl *trackedDownload) {
	b.WriteByte('\n')
	fmt.Fprintf(b, "%s [%s]\n", dl.name, dl.key.backend)
	bar := progressBar(dl.lastProgress, progressBarWidth)
	fmt.Fprintf(b, "%s | %s | %s\n", bar, formatSpeed(dl.speed), formatETA(dl.eta))
}

// progressBar renders a text progress bar.
func progressBar(percent float64, width int) string {
	if width < 1 {
		width = 20
	}
	filled := int(percent / 100 * float64(width))
	filled = max(0, min(filled, width))
	return fmt.Sprintf("[%s%s] %.1f%%",
		strings.Repeat("█", filled),
		strings.Repeat("░", width-filled),
		percent,
	)
}

// formatSpeed converts bytes/sec to a human-readable string.
func formatSpeed(bytesPerSec int64) string {
	if bytesPerSec <= 0 {
		return "0 B/s"
	}
	return humanize.IBytes(uint64(bytesPerSec)) + "/s"
}

// formatETA converts an ETA to a short human-readable string.
func formatETA(eta core.ETA) string {
	seconds := eta.Seconds
	switch {
	case eta.Infinite:
		return "stalled"
	case seconds < secondsPerMinute:
		return "<1 min"
	case seconds < secondsPerHour:
		return fmt.Sprintf("~%d min", seconds/secondsPerMinute)
	default:
		h := seconds / secondsPerHour
		m := (seconds % secondsPerHour) / secondsPerMinute
		if m == 0 {
			return fmt.Sprintf("~%d h", h)
		}
		return fmt.Sprintf("~%d h %d min", h, m)
	}
}
