package rtorrent

import "github.com/vadimtrunov/torrentdeck/internal/core"

// lifecycle is the rTorrent download state derived from its boolean flags.
type lifecycle uint8

const (
	lifecycleChecking lifecycle = iota
	lifecycleDownloading
	lifecycleSeeding
	lifecyclePausedIncomplete
	lifecyclePausedComplete
	lifecycleStoppedIncomplete
	lifecycleStoppedComplete
)

// flags are the raw rTorrent state indicators of one download.
type flags struct {
	hashChecking bool
	open         bool
	active       bool
	complete     bool
	message      string
}

// parseLifecycle applies the rTorrent precedence: hash checking first, then
// the open/active/complete combination.
func parseLifecycle(f flags) lifecycle {
	switch {
	case f.hashChecking:
		return lifecycleChecking
	case !f.open && f.complete:
		return lifecycleStoppedComplete
	case !f.open:
		return lifecycleStoppedIncomplete
	case !f.active && f.complete:
		return lifecyclePausedComplete
	case !f.active:
		return lifecyclePausedIncomplete
	case f.complete:
		return lifecycleSeeding
	default:
		return lifecycleDownloading
	}
}

func (l lifecycle) tags() core.StatusSet {
	switch l {
	case lifecycleChecking:
		return core.NewStatusSet(core.TagChecking)
	case lifecycleDownloading:
		return core.NewStatusSet(core.TagDownloading)
	case lifecycleSeeding:
		return core.NewStatusSet(core.TagSeeding, core.TagComplete)
	case lifecyclePausedIncomplete:
		return core.NewStatusSet(core.TagPaused)
	case lifecyclePausedComplete:
		return core.NewStatusSet(core.TagPaused, core.TagComplete)
	case lifecycleStoppedIncomplete:
		return core.NewStatusSet(core.TagStopped)
	case lifecycleStoppedComplete:
		return core.NewStatusSet(core.TagStopped, core.TagComplete)
	default:
		return core.NewStatusSet(core.TagError)
	}
}

// normalizeStatus maps rTorrent flags and rates to canonical tags.
func normalizeStatus(f flags, upRate, downRate int64) core.StatusSet {
	s := parseLifecycle(f).tags().WithActivity(upRate, downRate)
	if f.message != "" {
		s = s.With(core.TagError)
	}
	return s.Normalize()
}
