package qbittorrent

// qbitTorrent represents a torrent from the qBittorrent Web API.
type qbitTorrent struct {
	Hash       string  `json:"hash"`
	Name       string  `json:"name"`
	State      string  `json:"state"`       // "downloading", "stalledUP", "stoppedDL", ...
	Size       int64   `json:"size"`        // selected bytes
	TotalSize  int64   `json:"total_size"`  // all files
	Completed  int64   `json:"completed"`   // bytes of selected files done
	Progress   float64 `json:"progress"`    // 0.0 to 1.0
	DLSpeed    int64   `json:"dlspeed"`     // bytes/sec
	UPSpeed    int64   `json:"upspeed"`     // bytes/sec
	Downloaded int64   `json:"downloaded"`  // cumulative bytes
	Uploaded   int64   `json:"uploaded"`    // cumulative bytes
	Ratio      float64 `json:"ratio"`       // upload/download
	Tags       string  `json:"tags"`        // ", " separated
	SavePath   string  `json:"save_path"`   // download directory
	AddedOn    int64   `json:"added_on"`    // unix seconds
	NumSeeds   int64   `json:"num_seeds"`   // connected seeds
	NumLeechs  int64   `json:"num_leechs"`  // connected leechers
	Priority   int64   `json:"priority"`    // queue position, 0 when not queued
	AmountLeft int64   `json:"amount_left"` // bytes
}

// qbitTracker is one entry of torrents/trackers.
type qbitTracker struct {
	URL    string `json:"url"`
	Status int    `json:"status"` // 0 disabled, 1 not contacted, 2 working, 3 updating, 4 not working
	Tier   int    `json:"tier"`
	Msg    string `json:"msg"`
}

// transferInfo is the global transfer/info payload.
type transferInfo struct {
	DLInfoSpeed int64 `json:"dl_info_speed"`
	DLInfoData  int64 `json:"dl_info_data"`
	UPInfoSpeed int64 `json:"up_info_speed"`
	UPInfoData  int64 `json:"up_info_data"`
	DLRateLimit int64 `json:"dl_rate_limit"`
	UPRateLimit int64 `json:"up_rate_limit"`
}
