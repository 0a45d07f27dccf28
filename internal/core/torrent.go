package core

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// TorrentProperties is the normalized view of one torrent, identical across backends
type TorrentProperties struct {
	Hash            string          `json:"hash"`            // backend-assigned identifier, unique per backend
	Name            string          `json:"name"`            // display name
	Status          StatusSet       `json:"status"`          // canonical tags, never empty
	UploadRate      int64           `json:"upRate"`          // bytes/sec
	DownloadRate    int64           `json:"downRate"`        // bytes/sec
	UploadTotal     int64           `json:"upTotal"`         // cumulative bytes
	DownloadTotal   int64           `json:"downTotal"`       // cumulative bytes
	BytesDone       int64           `json:"bytesDone"`       // always <= SizeBytes
	SizeBytes       int64           `json:"sizeBytes"`       // total selected size
	PercentComplete string          `json:"percentComplete"` // 0-100, two decimals
	ETA             ETA             `json:"eta"`             // seconds or Infinity
	Ratio           float64         `json:"ratio"`           // upload/download ratio
	RatioDisplay    string          `json:"ratioDisplay"`    // ratio with magnitude-dependent precision
	Tags            []string        `json:"tags"`            // labels, never containing commas
	Priority        TorrentPriority `json:"priority"`        // 0-3
	Directory       string          `json:"directory"`       // download directory
	DateAdded       int64           `json:"dateAdded"`       // unix seconds, 0 if unknown
	Message         string          `json:"message"`         // daemon-reported error text
	PeersConnected  int64           `json:"peersConnected"`
}

// ClientStats holds aggregate transfer figures of one backend connection
type ClientStats struct {
	UploadRate       int64 `json:"upRate"`
	DownloadRate     int64 `json:"downRate"`
	UploadTotal      int64 `json:"upTotal"`
	DownloadTotal    int64 `json:"downTotal"`
	UploadThrottle   int64 `json:"upThrottle"`   // bytes/sec, 0 = unlimited
	DownloadThrottle int64 `json:"downThrottle"` // bytes/sec, 0 = unlimited
}

// TrackerType classifies a tracker by its announce protocol
type TrackerType string

// Tracker types.
const (
	TrackerHTTP    TrackerType = "http"
	TrackerUDP     TrackerType = "udp"
	TrackerDHT     TrackerType = "dht"
	TrackerUnknown TrackerType = "unknown"
)

// Tracker represents one announce URL of a torrent
type Tracker struct {
	URL     string      `json:"url"`
	Type    TrackerType `json:"type"`
	Enabled bool        `json:"enabled"`
}

// ETA is an estimated number of seconds until completion, or infinite when nothing is downloading.
type ETA struct {
	Seconds  int64
	Infinite bool
}

// InfiniteETA is the ETA of a torrent that does not download.
var InfiniteETA = ETA{Infinite: true}

// etaInfinity is the wire sentinel for an infinite ETA.
const etaInfinity = "Infinity"

// String returns the seconds or "Infinity".
func (e ETA) String() string {
	if e.Infinite {
		return etaInfinity
	}
	return strconv.FormatInt(e.Seconds, 10)
}

// MarshalJSON encodes the ETA as a number or the string "Infinity".
func (e ETA) MarshalJSON() ([]byte, error) {
	if e.Infinite {
		return json.Marshal(etaInfinity)
	}
	return []byte(strconv.FormatInt(e.Seconds, 10)), nil
}

// UnmarshalJSON accepts a number or the string "Infinity".
func (e *ETA) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != etaInfinity {
			return fmt.Errorf("invalid eta %q", s)
		}
		*e = InfiniteETA
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid eta: %w", err)
	}
	*e = ETA{Seconds: n}
	return nil
}

// TorrentPriority is the bandwidth priority of a torrent.
type TorrentPriority int

// Torrent priorities.
const (
	PriorityOff TorrentPriority = iota
	PriorityLow
	PriorityNormal
	PriorityHigh
)

// Valid reports whether p is one of the defined priorities.
func (p TorrentPriority) Valid() bool {
	return p >= PriorityOff && p <= PriorityHigh
}

// String returns the priority name.
func (p TorrentPriority) String() string {
	switch p {
	case PriorityOff:
		return "off"
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	default:
		return "priority(" + strconv.Itoa(int(p)) + ")"
	}
}

// FilePriority is the download priority of a file inside a torrent.
type FilePriority int

// File priorities.
const (
	FileSkip FilePriority = iota
	FileNormal
	FileHigh
)

// Valid reports whether p is one of the defined file priorities.
func (p FilePriority) Valid() bool {
	return p >= FileSkip && p <= FileHigh
}

// String returns the file priority name.
func (p FilePriority) String() string {
	switch p {
	case FileSkip:
		return "skip"
	case FileNormal:
		return "normal"
	case FileHigh:
		return "high"
	default:
		return "file priority(" + strconv.Itoa(int(p)) + ")"
	}
}
