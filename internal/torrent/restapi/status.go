package restapi

import "github.com/vadimtrunov/torrentdeck/internal/core"

// daemonState is the coarse run state reported by the daemon.
type daemonState uint8

const (
	stateInvalid daemonState = iota
	stateActive
	stateInactive
	stateOther
)

func parseState(s string) daemonState {
	switch s {
	case "active":
		return stateActive
	case "inactive":
		return stateInactive
	case "other":
		return stateOther
	default:
		return stateInvalid
	}
}

// normalizeStatus combines the run state with the complete/seeding flags and
// the derived rates. "other" covers transitional work such as allocation or
// verification and maps to checking.
func normalizeStatus(t apiTorrent, upRate, downRate int64) core.StatusSet {
	var s core.StatusSet
	switch parseState(t.State) {
	case stateActive:
		switch {
		case t.Seeding:
			s = core.NewStatusSet(core.TagSeeding)
		case !t.Complete:
			s = core.NewStatusSet(core.TagDownloading)
		}
	case stateInactive:
		s = core.NewStatusSet(core.TagStopped)
	case stateOther:
		s = core.NewStatusSet(core.TagChecking)
	default:
		return core.NewStatusSet(core.TagError)
	}
	if t.Complete {
		s = s.With(core.TagComplete)
	}
	if t.Message != "" {
		s = s.With(core.TagError)
	}
	return s.WithActivity(upRate, downRate).Normalize()
}
