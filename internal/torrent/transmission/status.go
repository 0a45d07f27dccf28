package transmission

import "github.com/vadimtrunov/torrentdeck/internal/core"

// torrentStatus is the Transmission status enum.
type torrentStatus uint8

const (
	statusStopped torrentStatus = iota
	statusCheckWait
	statusCheck
	statusDownloadWait
	statusDownload
	statusSeedWait
	statusSeed
)

func (s torrentStatus) tags() core.StatusSet {
	switch s {
	case statusStopped:
		return core.NewStatusSet(core.TagStopped)
	case statusCheckWait, statusCheck:
		return core.NewStatusSet(core.TagChecking)
	case statusDownloadWait, statusDownload:
		return core.NewStatusSet(core.TagDownloading)
	case statusSeedWait, statusSeed:
		return core.NewStatusSet(core.TagSeeding)
	default:
		return core.NewStatusSet(core.TagError)
	}
}

// normalizeStatus maps one torrent_get row to canonical tags. Out-of-range
// status values map to {error}.
func normalizeStatus(t rpcTorrent) core.StatusSet {
	if t.Status < 0 || t.Status > int(statusSeed) {
		return core.NewStatusSet(core.TagError)
	}
	s := torrentStatus(t.Status).tags()
	if t.TotalSize > 0 && t.HaveValid == t.TotalSize {
		s = s.With(core.TagComplete)
	}
	if t.Error != 0 {
		s = s.With(core.TagError)
	}
	return s.WithActivity(t.RateUpload, t.RateDownload).Normalize()
}
