// Package rate derives instantaneous transfer rates from cumulative counters
// for daemons that only report totals.
package rate

import (
	"math"
	"sync"
	"time"
)

// DefaultMaxIdle is the number of poll cycles a sample may go unobserved
// before Sweep evicts it.
const DefaultMaxIdle = 3

type sample struct {
	at    time.Time
	value int64
	cycle uint64 // sweep cycle of the last observation
}

// Computer keeps the latest sample per key. One Computer belongs to exactly
// one backend instance; counters are scoped per daemon session.
type Computer struct {
	mu      sync.Mutex
	samples map[string]sample
	cycle   uint64
	maxIdle uint64
}

// New creates a Computer that evicts samples untouched for maxIdle sweeps.
// maxIdle <= 0 selects DefaultMaxIdle.
func New(maxIdle int) *Computer {
	if maxIdle <= 0 {
		maxIdle = DefaultMaxIdle
	}
	return &Computer{
		samples: make(map[string]sample),
		maxIdle: uint64(maxIdle),
	}
}

// Key builds the sample key for one metric of one entity, e.g. "h1:up".
func Key(id, metric string) string {
	return id + ":" + metric
}

// Rate records value at time at and returns the rate since the previous
// sample for key in units per second, rounded to the nearest unit. Intervals
// shorter than a second count as one second. The first observation returns 0.
// Counter rollback yields 0, never a negative rate.
func (c *Computer) Rate(key string, at time.Time, value int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev, ok := c.samples[key]
	c.samples[key] = sample{at: at, value: value, cycle: c.cycle}
	if !ok {
		return 0
	}

	delta := value - prev.value
	if delta <= 0 {
		return 0
	}
	secs := max(at.Sub(prev.at).Seconds(), 1)
	return int64(math.Round(float64(delta) / secs))
}

// Sweep closes a poll cycle and drops samples that were not observed during
// the last maxIdle cycles. It returns the number of evicted samples.
func (c *Computer) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cycle++
	evicted := 0
	for key, s := range c.samples {
		if c.cycle-s.cycle > c.maxIdle {
			delete(c.samples, key)
			evicted++
		}
	}
	return evicted
}

// Len returns the number of retained samples.
func (c *Computer) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.samples)
}

// Reset drops every sample, e.g. after the daemon session was re-established.
func (c *Computer) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.samples)
}

// ETA returns the whole seconds, rounded up, needed to transfer the
// remaining bytes at rate, or -1 when rate is 0.
func ETA(rate, completed, total int64) int64 {
	if rate <= 0 {
		return -1
	}
	remaining := total - completed
	if remaining <= 0 {
		return 0
	}
	return (remaining + rate - 1) / rate
}
