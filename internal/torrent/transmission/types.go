package transmission

// torrentFields are requested from torrent_get.
var torrentFields = []string{
	"hash_string",
	"name",
	"status",
	"error",
	"error_string",
	"rate_download",
	"rate_upload",
	"uploaded_ever",
	"downloaded_ever",
	"have_valid",
	"total_size",
	"size_when_done",
	"left_until_done",
	"upload_ratio",
	"labels",
	"bandwidth_priority",
	"download_dir",
	"added_date",
	"peers_connected",
}

type torrentGetArgs struct {
	Fields []string `json:"fields"`
	IDs    []string `json:"ids,omitempty"`
}

type torrentGetResult struct {
	Torrents []rpcTorrent `json:"torrents"`
}

type rpcTorrent struct {
	HashString        string       `json:"hash_string"`
	Name              string       `json:"name"`
	Status            int          `json:"status"`
	Error             int          `json:"error"`
	ErrorString       string       `json:"error_string"`
	RateDownload      int64        `json:"rate_download"`
	RateUpload        int64        `json:"rate_upload"`
	UploadedEver      int64        `json:"uploaded_ever"`
	DownloadedEver    int64        `json:"downloaded_ever"`
	HaveValid         int64        `json:"have_valid"`
	TotalSize         int64        `json:"total_size"`
	SizeWhenDone      int64        `json:"size_when_done"`
	LeftUntilDone     int64        `json:"left_until_done"`
	UploadRatio       float64      `json:"upload_ratio"`
	Labels            []string     `json:"labels"`
	BandwidthPriority int          `json:"bandwidth_priority"`
	DownloadDir       string       `json:"download_dir"`
	AddedDate         int64        `json:"added_date"`
	PeersConnected    int64        `json:"peers_connected"`
	Trackers          []rpcTracker `json:"trackers"`
}

type rpcTracker struct {
	ID       int    `json:"id"`
	Announce string `json:"announce"`
	Tier     int    `json:"tier"`
}

type idsArgs struct {
	IDs []string `json:"ids"`
}

type torrentAddArgs struct {
	Filename    string   `json:"filename,omitempty"`
	Metainfo    string   `json:"metainfo,omitempty"` // base64
	DownloadDir string   `json:"download_dir,omitempty"`
	Paused      bool     `json:"paused"`
	Labels      []string `json:"labels,omitempty"`
}

type torrentRemoveArgs struct {
	IDs             []string `json:"ids"`
	DeleteLocalData bool     `json:"delete_local_data"`
}

type setLocationArgs struct {
	IDs      []string `json:"ids"`
	Location string   `json:"location"`
	Move     bool     `json:"move"`
}

type torrentSetArgs struct {
	IDs               []string `json:"ids"`
	Labels            []string `json:"labels,omitempty"`
	BandwidthPriority *int     `json:"bandwidth_priority,omitempty"`
	FilesWanted       []int    `json:"files_wanted,omitempty"`
	FilesUnwanted     []int    `json:"files_unwanted,omitempty"`
	PriorityHigh      []int    `json:"priority_high,omitempty"`
	PriorityNormal    []int    `json:"priority_normal,omitempty"`
}

type sessionStats struct {
	DownloadSpeed   int64 `json:"download_speed"`
	UploadSpeed     int64 `json:"upload_speed"`
	CumulativeStats struct {
		UploadedBytes   int64 `json:"uploaded_bytes"`
		DownloadedBytes int64 `json:"downloaded_bytes"`
	} `json:"cumulative_stats"`
}

type sessionGetArgs struct {
	Fields []string `json:"fields"`
}

type sessionSettings struct {
	SpeedLimitDown        int64 `json:"speed_limit_down"` // kB/s
	SpeedLimitDownEnabled bool  `json:"speed_limit_down_enabled"`
	SpeedLimitUp          int64 `json:"speed_limit_up"` // kB/s
	SpeedLimitUpEnabled   bool  `json:"speed_limit_up_enabled"`
}

// emptyResult absorbs the {} result of action methods.
type emptyResult struct{}
