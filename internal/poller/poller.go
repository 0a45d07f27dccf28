// Package poller lists the torrents of every backend on a schedule and hands
// each snapshot to its subscribers.
package poller

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"

	"github.com/vadimtrunov/torrentdeck/internal/config"
	"github.com/vadimtrunov/torrentdeck/internal/torrent"
)

// pollTag marks the scheduler jobs owned by the poller.
const pollTag = "poll"

// Subscriber receives every snapshot. Subscribers of one backend are called
// sequentially; different backends may call a subscriber concurrently.
type Subscriber func(ctx context.Context, snap torrent.Snapshot)

// Source lists the backends to poll.
type Source interface {
	Backends() []*torrent.Backend
}

// Poller runs one scheduler job per backend. A job never overlaps its own
// previous run: a tick that would start while the last poll is still in
// flight is skipped until the next one.
type Poller struct {
	source    Source
	schedule  config.Schedule
	scheduler gocron.Scheduler
	logger    *slog.Logger

	mu          sync.RWMutex
	subscribers []Subscriber
	latest      map[string]torrent.Snapshot
}

// New creates a poller. It does not poll until Start is called.
func New(source Source, schedule config.Schedule, logger *slog.Logger) (*Poller, error) {
	if schedule.Every <= 0 && schedule.Cron == "" {
		return nil, fmt.Errorf("empty poll schedule")
	}
	if logger == nil {
		logger = slog.Default()
	}
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	return &Poller{
		source:    source,
		schedule:  schedule,
		scheduler: s,
		logger:    logger,
		latest:    make(map[string]torrent.Snapshot),
	}, nil
}

// Subscribe registers fn for all later snapshots.
func (p *Poller) Subscribe(fn Subscriber) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscribers = append(p.subscribers, fn)
}

// Start schedules the backends, polls each once immediately and blocks until
// ctx is canceled. The scheduler is shut down on return.
func (p *Poller) Start(ctx context.Context) error {
	if err := p.Reschedule(ctx); err != nil {
		return err
	}
	p.scheduler.Start()
	p.logger.Info("poller started", slog.Int("backends", len(p.source.Backends())))

	<-ctx.Done()

	if err := p.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("shutdown scheduler: %w", err)
	}
	p.logger.Info("poller stopped")
	return nil
}

// Reschedule replaces the poll jobs with one per current backend. Call it
// after the registry was reconfigured.
func (p *Poller) Reschedule(ctx context.Context) error {
	p.scheduler.RemoveByTags(pollTag)

	backends := p.source.Backends()
	names := make(map[string]bool, len(backends))
	for _, b := range backends {
		names[b.Name()] = true
		_, err := p.scheduler.NewJob(p.jobDefinition(),
			gocron.NewTask(func() { p.poll(ctx, b) }),
			gocron.WithName(pollTag+":"+b.Name()),
			gocron.WithTags(pollTag),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
			gocron.WithStartAt(gocron.WithStartImmediately()),
			gocron.WithContext(ctx),
		)
		if err != nil {
			return fmt.Errorf("schedule backend %s: %w", b.Name(), err)
		}
	}

	// forget snapshots of removed backends
	p.mu.Lock()
	for name := range p.latest {
		if !names[name] {
			delete(p.latest, name)
		}
	}
	p.mu.Unlock()
	return nil
}

func (p *Poller) jobDefinition() gocron.JobDefinition {
	if p.schedule.Cron != "" {
		return gocron.CronJob(p.schedule.Cron, false)
	}
	return gocron.DurationJob(p.schedule.Every)
}

// PollOnce polls every backend right now, delivering the snapshots to
// subscribers, and returns them in configuration order.
func (p *Poller) PollOnce(ctx context.Context) []torrent.Snapshot {
	backends := p.source.Backends()
	snapshots := make([]torrent.Snapshot, len(backends))

	var wg sync.WaitGroup
	for i, b := range backends {
		wg.Go(func() {
			snapshots[i] = p.poll(ctx, b)
		})
	}
	wg.Wait()
	return snapshots
}

func (p *Poller) poll(ctx context.Context, b *torrent.Backend) torrent.Snapshot {
	logger := p.logger.With(slog.String("backend", b.Name()), slog.String("poll_id", uuid.NewString()))

	snap := torrent.Poll(ctx, b)
	if snap.Err != nil {
		logger.Warn("poll failed",
			slog.Duration("duration", snap.Duration), slog.String("error", snap.Err.Error()))
	} else {
		logger.Debug("poll finished",
			slog.Int("torrents", len(snap.Torrents)), slog.Duration("duration", snap.Duration))
	}

	p.mu.Lock()
	p.latest[snap.Backend] = snap
	subscribers := slices.Clone(p.subscribers)
	p.mu.Unlock()

	for _, fn := range subscribers {
		fn(ctx, snap)
	}
	return snap
}

// Latest returns the most recent snapshot of every backend that has been
// polled, in configuration order.
func (p *Poller) Latest() []torrent.Snapshot {
	backends := p.source.Backends()

	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]torrent.Snapshot, 0, len(backends))
	for _, b := range backends {
		if snap, ok := p.latest[b.Name()]; ok {
			out = append(out, snap)
		}
	}
	return out
}
