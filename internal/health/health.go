// Package health probes every configured backend and reports whether it
// answers, how fast, and with what aggregate transfer figures.
package health

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vadimtrunov/torrentdeck/internal/core"
	"github.com/vadimtrunov/torrentdeck/internal/torrent"
)

// defaultTimeout bounds a single probe.
const defaultTimeout = 5 * time.Second

// BackendHealth holds the result of a single backend probe.
type BackendHealth struct {
	Name    string            `json:"name"`
	Type    string            `json:"type"`
	Healthy bool              `json:"healthy"`
	Kind    string            `json:"kind,omitempty"`  // error kind when unhealthy
	Error   string            `json:"error,omitempty"` // error message when unhealthy
	Latency time.Duration     `json:"latency"`
	Stats   *core.ClientStats `json:"stats,omitempty"`
}

// Source lists the backends to probe.
type Source interface {
	Backends() []*torrent.Backend
}

// Checker probes backends through their client statistics call, the cheapest
// request every daemon answers.
type Checker struct {
	source  Source
	timeout time.Duration
	logger  *slog.Logger
}

// NewChecker creates a Checker. A zero timeout selects five seconds.
// If logger is nil, slog.Default() is used.
func NewChecker(source Source, timeout time.Duration, logger *slog.Logger) *Checker {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{source: source, timeout: timeout, logger: logger}
}

// CheckBackend probes one backend.
func (c *Checker) CheckBackend(ctx context.Context, b *torrent.Backend) BackendHealth {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	result := BackendHealth{Name: b.Name(), Type: b.Type()}

	start := time.Now()
	stats, err := b.GetClientStats(ctx)
	result.Latency = time.Since(start)

	if err != nil {
		result.Kind = core.KindOf(err).String()
		result.Error = err.Error()
		return result
	}
	result.Healthy = true
	result.Stats = stats
	return result
}

// CheckAll probes every backend concurrently and returns the results in
// configuration order. Each probe is logged on completion.
func (c *Checker) CheckAll(ctx context.Context) []BackendHealth {
	backends := c.source.Backends()
	results := make([]BackendHealth, len(backends))

	var wg sync.WaitGroup
	for i, b := range backends {
		wg.Go(func() {
			results[i] = c.CheckBackend(ctx, b)

			r := results[i]
			c.logger.Info("health probe",
				slog.String("backend", r.Name),
				slog.Bool("healthy", r.Healthy),
				slog.Duration("latency", r.Latency),
				slog.String("error", r.Error),
			)
		})
	}

	wg.Wait()
	return results
}

// Healthy reports whether every result is healthy.
func Healthy(results []BackendHealth) bool {
	for _, r := range results {
		if !r.Healthy {
			return false
		}
	}
	return true
}
