package restapi

// apiTorrent is one element of GET /api/v1/torrents. The daemon reports
// cumulative counters only; rates are derived between polls.
type apiTorrent struct {
	Hash       string   `json:"hash"`
	Name       string   `json:"name"`
	State      string   `json:"state"` // "active", "inactive" or "other"
	Complete   bool     `json:"complete"`
	Seeding    bool     `json:"seeding"`
	Uploaded   int64    `json:"uploaded"`
	Downloaded int64    `json:"downloaded"`
	BytesDone  int64    `json:"bytes_done"`
	Size       int64    `json:"size"`
	Ratio      float64  `json:"ratio"`
	Labels     []string `json:"labels"`
	Priority   int      `json:"priority"`
	Directory  string   `json:"directory"`
	AddedAt    int64    `json:"added_at"`
	Message    string   `json:"message"`
	Peers      int64    `json:"peers"`
}

type apiTracker struct {
	URL     string `json:"url"`
	Enabled bool   `json:"enabled"`
}

type apiStats struct {
	Uploaded   int64 `json:"uploaded"`
	Downloaded int64 `json:"downloaded"`
	UpLimit    int64 `json:"up_limit"`
	DownLimit  int64 `json:"down_limit"`
}

type hashesRequest struct {
	Hashes []string `json:"hashes"`
}

type addRequest struct {
	URLs        []string `json:"urls,omitempty"`
	Files       [][]byte `json:"files,omitempty"` // base64 in JSON
	Destination string   `json:"destination,omitempty"`
	Labels      []string `json:"labels"`
	Start       bool     `json:"start"`
}

type deleteRequest struct {
	Hashes     []string `json:"hashes"`
	DeleteData bool     `json:"delete_data"`
}

type moveRequest struct {
	Hashes      []string `json:"hashes"`
	Destination string   `json:"destination"`
	MoveFiles   bool     `json:"move_files"`
}

type labelsRequest struct {
	Hashes []string `json:"hashes"`
	Labels []string `json:"labels"`
}

type priorityRequest struct {
	Hashes   []string `json:"hashes"`
	Priority int      `json:"priority"`
}

type filePriorityRequest struct {
	Hash     string `json:"hash"`
	Indices  []int  `json:"indices"`
	Priority int    `json:"priority"`
}
