package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/vadimtrunov/torrentdeck/internal/core"
	"github.com/vadimtrunov/torrentdeck/internal/health"
	"github.com/vadimtrunov/torrentdeck/internal/torrent"
	"github.com/vadimtrunov/torrentdeck/internal/torrent/torrenttest"
)

type staticSnapshots []torrent.Snapshot

func (s staticSnapshots) Latest() []torrent.Snapshot { return s }

func newTestServer(t *testing.T, snapshots SnapshotSource, adapters ...*torrenttest.Adapter) *httptest.Server {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	reg := torrenttest.Registry(t, adapters...)
	h := NewHandler(reg, health.NewChecker(reg, time.Second, logger), snapshots, logger)
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, body string) (*http.Response, []byte) {
	t.Helper()

	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, data
}

func TestListAll(t *testing.T) {
	t.Parallel()

	ok := &torrenttest.Adapter{
		BackendName: "seedbox",
		BackendType: core.TypeRTorrent,
		Torrents:    []core.TorrentProperties{torrenttest.Seeding("aa", "one")},
	}
	down := &torrenttest.Adapter{BackendName: "nas", Err: core.NewConnectionError("list torrents", io.EOF)}
	srv := newTestServer(t, nil, ok, down)

	resp, body := do(t, http.MethodGet, srv.URL+"/api/torrents", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}

	var snaps []struct {
		Backend  string `json:"backend"`
		Torrents []struct {
			Hash   string   `json:"hash"`
			Status []string `json:"status"`
			ETA    any      `json:"eta"`
		} `json:"torrents"`
		Error *errorResponse `json:"error"`
	}
	if err := json.Unmarshal(body, &snaps); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(snaps) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(snaps))
	}
	if snaps[0].Backend != "seedbox" || len(snaps[0].Torrents) != 1 || snaps[0].Error != nil {
		t.Errorf("seedbox = %+v", snaps[0])
	}
	wantStatus := []string{"seeding", "inactive", "complete"}
	if !reflect.DeepEqual(snaps[0].Torrents[0].Status, wantStatus) {
		t.Errorf("status = %v, want %v", snaps[0].Torrents[0].Status, wantStatus)
	}
	if snaps[1].Error == nil || snaps[1].Error.Kind != "backend unavailable" {
		t.Errorf("nas error = %+v", snaps[1].Error)
	}
	if snaps[1].Torrents == nil {
		t.Error("failed backend should report an empty list, not null")
	}
}

func TestSnapshots(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, staticSnapshots{{Backend: "seedbox", Duration: 1500 * time.Millisecond}})

	resp, body := do(t, http.MethodGet, srv.URL+"/api/snapshots", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), `"durationMs":1500`) {
		t.Errorf("body = %s", body)
	}

	noSnaps := newTestServer(t, nil)
	if resp, _ := do(t, http.MethodGet, noSnaps.URL+"/api/snapshots", ""); resp.StatusCode != http.StatusNotFound {
		t.Errorf("without a poller /api/snapshots should 404, got %d", resp.StatusCode)
	}
}

func TestBackends(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, nil,
		&torrenttest.Adapter{BackendName: "a", BackendType: core.TypeQBittorrent},
		&torrenttest.Adapter{BackendName: "b", BackendType: core.TypeTransmission},
	)

	_, body := do(t, http.MethodGet, srv.URL+"/api/backends", "")
	want := `[{"name":"a","type":"qbittorrent"},{"name":"b","type":"transmission"}]` + "\n"
	if string(body) != want {
		t.Errorf("body = %s, want %s", body, want)
	}
}

func TestUnknownBackend(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, nil, &torrenttest.Adapter{BackendName: "a"})

	resp, body := do(t, http.MethodGet, srv.URL+"/api/backends/nope/torrents", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	if !strings.Contains(string(body), `unknown backend \"nope\"`) {
		t.Errorf("body = %s", body)
	}
}

func TestGetTorrentAndTrackers(t *testing.T) {
	t.Parallel()

	a := &torrenttest.Adapter{
		BackendName: "a",
		Torrents:    []core.TorrentProperties{torrenttest.Downloading("aa", "one", 100)},
		Trackers:    []core.Tracker{{URL: "udp://t:80", Type: core.TrackerUDP, Enabled: true}},
	}
	srv := newTestServer(t, nil, a)

	resp, body := do(t, http.MethodGet, srv.URL+"/api/backends/a/torrents/aa", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}
	var p core.TorrentProperties
	if err := json.Unmarshal(body, &p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Hash != "aa" || p.ETA.Seconds != 5 {
		t.Errorf("torrent = %+v", p)
	}

	_, body = do(t, http.MethodGet, srv.URL+"/api/backends/a/torrents/aa/trackers", "")
	if !strings.Contains(string(body), `"type":"udp"`) {
		t.Errorf("trackers = %s", body)
	}

	resp, _ = do(t, http.MethodGet, srv.URL+"/api/backends/a/torrents/zz", "")
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("missing torrent status = %d, want 502", resp.StatusCode)
	}
}

func TestStats(t *testing.T) {
	t.Parallel()

	a := &torrenttest.Adapter{BackendName: "a", Stats: core.ClientStats{UploadRate: 7, DownloadThrottle: 100}}
	srv := newTestServer(t, nil, a)

	_, body := do(t, http.MethodGet, srv.URL+"/api/backends/a/stats", "")
	var stats core.ClientStats
	if err := json.Unmarshal(body, &stats); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.UploadRate != 7 || stats.DownloadThrottle != 100 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestActions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		path     string
		body     string
		wantOp   string
		wantArgs []any
	}{
		{"start", "/torrents/start", `{"hashes":["aa","bb"]}`, "start", []any{[]string{"aa", "bb"}}},
		{"stop", "/torrents/stop", `{"hashes":["aa"]}`, "stop", []any{[]string{"aa"}}},
		{"check", "/torrents/check", `{"hashes":["aa"]}`, "check", []any{[]string{"aa"}}},
		{"delete", "/torrents/delete", `{"hashes":["aa"],"delete_data":true}`, "delete", []any{[]string{"aa"}, true}},
		{
			"tags", "/torrents/tags", `{"hashes":["aa"],"tags":["movies","hd"]}`,
			"tags", []any{[]string{"aa"}, []string{"movies", "hd"}},
		},
		{
			"priority", "/torrents/priority", `{"hashes":["aa"],"priority":3}`,
			"priority", []any{[]string{"aa"}, core.PriorityHigh},
		},
		{
			"file priority", "/torrents/aa/files/priority", `{"indices":[0,2],"priority":0}`,
			"file priority", []any{"aa", []int{0, 2}, core.FileSkip},
		},
		{
			"move", "/torrents/move", `{"hashes":["aa"],"destination":"/data","move_files":true}`,
			"move", []any{core.MoveOptions{Hashes: []string{"aa"}, Destination: "/data", MoveFiles: true}},
		},
		{
			"add url", "/torrents", `{"urls":["magnet:?xt=urn:btih:0123456789abcdef0123456789abcdef01234567"],"start":true}`,
			"add", []any{core.AddOptions{
				URLs:  []string{"magnet:?xt=urn:btih:0123456789abcdef0123456789abcdef01234567"},
				Start: true,
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			a := &torrenttest.Adapter{BackendName: "a"}
			srv := newTestServer(t, nil, a)

			resp, body := do(t, http.MethodPost, srv.URL+"/api/backends/a"+tt.path, tt.body)
			if resp.StatusCode != http.StatusNoContent {
				t.Fatalf("status = %d: %s", resp.StatusCode, body)
			}
			call := a.LastCall()
			if call.Op != tt.wantOp {
				t.Fatalf("op = %q, want %q", call.Op, tt.wantOp)
			}
			if !reflect.DeepEqual(call.Args, tt.wantArgs) {
				t.Errorf("args = %#v, want %#v", call.Args, tt.wantArgs)
			}
		})
	}
}

func TestActionErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		adapterErr error
		path       string
		body       string
		wantStatus int
		wantKind   string
	}{
		{"bad json", nil, "/torrents/start", `{"hashes":`, http.StatusBadRequest, "validation error"},
		{"unknown field", nil, "/torrents/start", `{"hash":"aa"}`, http.StatusBadRequest, "validation error"},
		{"empty hashes", nil, "/torrents/start", `{"hashes":[]}`, http.StatusBadRequest, "validation error"},
		{"bad priority", nil, "/torrents/priority", `{"hashes":["aa"],"priority":9}`, http.StatusBadRequest, "validation error"},
		{
			"unavailable", core.NewConnectionError("start torrents", io.EOF),
			"/torrents/start", `{"hashes":["aa"]}`, http.StatusServiceUnavailable, "backend unavailable",
		},
		{
			"fault", core.NewFault("start torrents", 409, "conflict"),
			"/torrents/start", `{"hashes":["aa"]}`, http.StatusBadGateway, "rpc fault",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			a := &torrenttest.Adapter{BackendName: "a", Err: tt.adapterErr}
			srv := newTestServer(t, nil, a)

			resp, body := do(t, http.MethodPost, srv.URL+"/api/backends/a"+tt.path, tt.body)
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", resp.StatusCode, tt.wantStatus, body)
			}
			var er errorResponse
			if err := json.Unmarshal(body, &er); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if er.Kind != tt.wantKind {
				t.Errorf("kind = %q, want %q", er.Kind, tt.wantKind)
			}
			if tt.adapterErr != nil && er.Backend != "a" {
				t.Errorf("backend = %q, want a", er.Backend)
			}
			if tt.adapterErr == nil && len(a.Calls()) != 0 {
				t.Error("invalid requests must not reach the backend")
			}
		})
	}
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	healthy := newTestServer(t, nil, &torrenttest.Adapter{BackendName: "a"})
	if resp, _ := do(t, http.MethodGet, healthy.URL+"/health", ""); resp.StatusCode != http.StatusOK {
		t.Errorf("healthy status = %d", resp.StatusCode)
	}

	sick := newTestServer(t, nil,
		&torrenttest.Adapter{BackendName: "a"},
		&torrenttest.Adapter{BackendName: "b", Err: core.NewConnectionError("client stats", io.EOF)},
	)
	resp, body := do(t, http.MethodGet, sick.URL+"/health", "")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("sick status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), `"healthy":false`) {
		t.Errorf("body = %s", body)
	}
}
