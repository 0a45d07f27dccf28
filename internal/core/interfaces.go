package core

import "context"

// Backend type names as used in configuration.
const (
	TypeRTorrent     = "rtorrent"
	TypeTransmission = "transmission"
	TypeQBittorrent  = "qbittorrent"
	TypeRESTAPI      = "restapi"
)

// TorrentBackend defines the uniform interface over torrent daemons (rTorrent, Transmission, qBittorrent, ...).
// Every implementation owns exactly one connection or session to its daemon.
type TorrentBackend interface {
	// ListTorrents returns all torrents with derived fields and normalized status
	ListTorrents(ctx context.Context) ([]TorrentProperties, error)

	// GetTorrent returns a single torrent by hash
	GetTorrent(ctx context.Context, hash string) (*TorrentProperties, error)

	// GetClientStats returns aggregate transfer rates and totals of the daemon
	GetClientStats(ctx context.Context) (*ClientStats, error)

	// StartTorrents starts (resumes) the given torrents
	StartTorrents(ctx context.Context, hashes []string) error

	// StopTorrents stops the given torrents
	StopTorrents(ctx context.Context, hashes []string) error

	// CheckTorrents triggers a hash re-check of the given torrents
	CheckTorrents(ctx context.Context, hashes []string) error

	// AddTorrentByURL adds torrents from magnet links or http(s) URLs
	AddTorrentByURL(ctx context.Context, opts AddOptions) error

	// AddTorrentByFile adds torrents from raw .torrent file contents
	AddTorrentByFile(ctx context.Context, opts AddFileOptions) error

	// DeleteTorrents removes torrents, optionally deleting downloaded data
	DeleteTorrents(ctx context.Context, hashes []string, deleteData bool) error

	// MoveTorrents changes the download directory of torrents
	MoveTorrents(ctx context.Context, opts MoveOptions) error

	// SetTags replaces the tag set of the given torrents
	SetTags(ctx context.Context, hashes []string, tags []string) error

	// SetPriority sets the bandwidth priority of the given torrents
	SetPriority(ctx context.Context, hashes []string, priority TorrentPriority) error

	// SetFilePriority sets the priority of files (by index) inside one torrent
	SetFilePriority(ctx context.Context, hash string, indices []int, priority FilePriority) error

	// GetTrackers lists the trackers of one torrent
	GetTrackers(ctx context.Context, hash string) ([]Tracker, error)

	// Name returns the configured instance name (e.g., "seedbox")
	Name() string

	// Type returns the backend type (e.g., "rtorrent", "transmission")
	Type() string

	// Close releases the connection or session
	Close() error
}

// AddOptions describes torrents added by URL
type AddOptions struct {
	URLs        []string `json:"urls"`        // magnet links or http(s) URLs
	Destination string   `json:"destination"` // download directory, empty = daemon default
	Tags        []string `json:"tags"`        // initial tags
	Start       bool     `json:"start"`       // start immediately
}

// AddFileOptions describes torrents added from .torrent file contents
type AddFileOptions struct {
	Files       [][]byte `json:"files"`
	Destination string   `json:"destination"`
	Tags        []string `json:"tags"`
	Start       bool     `json:"start"`
}

// MoveOptions describes a change of download directory
type MoveOptions struct {
	Hashes      []string `json:"hashes"`
	Destination string   `json:"destination"`
	MoveFiles   bool     `json:"move_files"`   // physically move data, not only repoint
	IsBasePath  bool     `json:"is_base_path"` // destination already includes the torrent's own directory
}
