package qbittorrent

import "github.com/vadimtrunov/torrentdeck/internal/core"

// torrentState is the qBittorrent state string. Values marked v5 replace
// pausedUP/pausedDL on qBittorrent 5.
type torrentState string

const (
	stateError              torrentState = "error"
	stateMissingFiles       torrentState = "missingFiles"
	stateUploading          torrentState = "uploading"
	statePausedUP           torrentState = "pausedUP"
	stateStoppedUP          torrentState = "stoppedUP" // v5
	stateQueuedUP           torrentState = "queuedUP"
	stateStalledUP          torrentState = "stalledUP"
	stateCheckingUP         torrentState = "checkingUP"
	stateForcedUP           torrentState = "forcedUP"
	stateAllocating         torrentState = "allocating"
	stateDownloading        torrentState = "downloading"
	stateMetaDL             torrentState = "metaDL"
	stateForcedMetaDL       torrentState = "forcedMetaDL"
	statePausedDL           torrentState = "pausedDL"
	stateStoppedDL          torrentState = "stoppedDL" // v5
	stateQueuedDL           torrentState = "queuedDL"
	stateStalledDL          torrentState = "stalledDL"
	stateCheckingDL         torrentState = "checkingDL"
	stateForcedDL           torrentState = "forcedDL"
	stateCheckingResumeData torrentState = "checkingResumeData"
	stateMoving             torrentState = "moving"
	stateUnknown            torrentState = "unknown"
)

var stateTags = map[torrentState]core.StatusSet{
	stateError:              core.NewStatusSet(core.TagError),
	stateMissingFiles:       core.NewStatusSet(core.TagError),
	stateUnknown:            core.NewStatusSet(core.TagError),
	stateUploading:          core.NewStatusSet(core.TagSeeding, core.TagComplete, core.TagActive),
	stateForcedUP:           core.NewStatusSet(core.TagSeeding, core.TagComplete, core.TagActive),
	stateStalledUP:          core.NewStatusSet(core.TagSeeding, core.TagComplete, core.TagInactive),
	stateQueuedUP:           core.NewStatusSet(core.TagSeeding, core.TagComplete, core.TagInactive),
	statePausedUP:           core.NewStatusSet(core.TagPaused, core.TagComplete, core.TagInactive),
	stateStoppedUP:          core.NewStatusSet(core.TagStopped, core.TagComplete, core.TagInactive),
	stateCheckingUP:         core.NewStatusSet(core.TagChecking, core.TagComplete),
	stateDownloading:        core.NewStatusSet(core.TagDownloading, core.TagActive),
	stateForcedDL:           core.NewStatusSet(core.TagDownloading, core.TagActive),
	stateMetaDL:             core.NewStatusSet(core.TagDownloading, core.TagActive),
	stateForcedMetaDL:       core.NewStatusSet(core.TagDownloading, core.TagActive),
	stateStalledDL:          core.NewStatusSet(core.TagDownloading, core.TagInactive),
	stateQueuedDL:           core.NewStatusSet(core.TagDownloading, core.TagInactive),
	stateAllocating:         core.NewStatusSet(core.TagDownloading, core.TagInactive),
	statePausedDL:           core.NewStatusSet(core.TagPaused, core.TagInactive),
	stateStoppedDL:          core.NewStatusSet(core.TagStopped, core.TagInactive),
	stateCheckingDL:         core.NewStatusSet(core.TagChecking),
	stateCheckingResumeData: core.NewStatusSet(core.TagChecking),
	stateMoving:             core.NewStatusSet(core.TagActive),
}

// normalizeStatus maps a qBittorrent state onto canonical tags. States that
// carry no activity of their own take it from the rates; the actively* tags
// are only added when the state itself is active. Unknown strings map to {error}.
func normalizeStatus(state string, upRate, downRate int64) core.StatusSet {
	s, ok := stateTags[torrentState(state)]
	if !ok {
		return core.NewStatusSet(core.TagError)
	}
	switch {
	case !s.Has(core.TagActive) && !s.Has(core.TagInactive):
		s = s.WithActivity(upRate, downRate)
	case s.Has(core.TagActive):
		if downRate > 0 {
			s = s.With(core.TagActivelyDownloading)
		}
		if upRate > 0 {
			s = s.With(core.TagActivelyUploading)
		}
	}
	return s.Normalize()
}
