package restapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/vadimtrunov/torrentdeck/internal/core"
	"github.com/vadimtrunov/torrentdeck/internal/httpclient"
)

const testToken = "secret-token"

// fakeDaemon serves /api/v1 from in-memory state.
type fakeDaemon struct {
	t *testing.T

	mu       sync.Mutex
	torrents []apiTorrent
	stats    apiStats
	trackers []apiTracker
	bodies   map[string]json.RawMessage // last POST body per path
	status   int                        // forced status for every request when non-zero
}

func (f *fakeDaemon) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer "+testToken {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("bad token"))
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.status != 0 {
		w.WriteHeader(f.status)
		return
	}

	if r.Method == http.MethodPost {
		body, _ := io.ReadAll(r.Body)
		f.bodies[r.URL.Path] = body
		w.WriteHeader(http.StatusNoContent)
		return
	}

	switch r.URL.Path {
	case "/api/v1/torrents":
		json.NewEncoder(w).Encode(f.torrents)
	case "/api/v1/stats":
		json.NewEncoder(w).Encode(f.stats)
	case "/api/v1/torrents/h1":
		json.NewEncoder(w).Encode(f.torrents[0])
	case "/api/v1/torrents/h1/trackers":
		json.NewEncoder(w).Encode(f.trackers)
	default:
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("no such torrent"))
	}
}

func (f *fakeDaemon) set(fn func(*fakeDaemon)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeDaemon) body(path string) json.RawMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bodies[path]
}

// clock is a manually advanced time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestAdapter(t *testing.T, token string) (*Adapter, *fakeDaemon, *clock) {
	t.Helper()
	f := &fakeDaemon{t: t, bodies: make(map[string]json.RawMessage)}
	server := httptest.NewServer(f)
	t.Cleanup(server.Close)

	a := New(Options{
		Name:  "remote",
		URL:   server.URL,
		Token: token,
		HTTP:  httpclient.DefaultConfig(),
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	c := &clock{now: time.Unix(1700000000, 0)}
	a.now = c.Now
	return a, f, c
}

func TestListTorrents_DerivesRates(t *testing.T) {
	a, f, c := newTestAdapter(t, testToken)
	f.set(func(f *fakeDaemon) {
		f.torrents = []apiTorrent{{
			Hash: "h1", Name: "Movie", State: "active",
			Uploaded: 1000, Downloaded: 500000, BytesDone: 500000, Size: 1000000,
			Labels: []string{"a,b", " c "},
		}}
	})

	first, err := a.ListTorrents(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first[0].UploadRate != 0 || first[0].DownloadRate != 0 {
		t.Errorf("expected zero rates on first poll, got %d/%d", first[0].UploadRate, first[0].DownloadRate)
	}
	if first[0].Status != core.NewStatusSet(core.TagDownloading, core.TagInactive) {
		t.Errorf("unexpected first status: %s", first[0].Status)
	}
	if !reflect.DeepEqual(first[0].Tags, []string{"a", "b", "c"}) {
		t.Errorf("unexpected tags: %v", first[0].Tags)
	}

	c.Advance(10 * time.Second)
	f.set(func(f *fakeDaemon) {
		f.torrents[0].Uploaded = 2000
		f.torrents[0].Downloaded = 1000000
		f.torrents[0].BytesDone = 750000
	})

	second, err := a.ListTorrents(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := second[0]
	if got.UploadRate != 100 {
		t.Errorf("expected up rate 100, got %d", got.UploadRate)
	}
	if got.DownloadRate != 50000 {
		t.Errorf("expected down rate 50000, got %d", got.DownloadRate)
	}
	if got.ETA.Seconds != 5 || got.ETA.Infinite {
		t.Errorf("expected eta 5, got %v", got.ETA)
	}
	want := core.NewStatusSet(core.TagDownloading, core.TagActive, core.TagActivelyDownloading, core.TagActivelyUploading)
	if got.Status != want {
		t.Errorf("expected %s, got %s", want, got.Status)
	}
}

func TestListTorrents_CounterResetClampsRate(t *testing.T) {
	a, f, c := newTestAdapter(t, testToken)
	f.set(func(f *fakeDaemon) {
		f.torrents = []apiTorrent{{Hash: "h1", State: "active", Uploaded: 5000}}
	})
	if _, err := a.ListTorrents(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c.Advance(5 * time.Second)
	f.set(func(f *fakeDaemon) { f.torrents[0].Uploaded = 10 })
	got, err := a.ListTorrents(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got[0].UploadRate != 0 {
		t.Errorf("expected clamped rate 0, got %d", got[0].UploadRate)
	}
}

func TestListTorrents_EvictsRemovedTorrents(t *testing.T) {
	a, f, _ := newTestAdapter(t, testToken)
	f.set(func(f *fakeDaemon) {
		f.torrents = []apiTorrent{{Hash: "h1", State: "inactive"}}
	})
	if _, err := a.ListTorrents(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.rates.Len() != 2 {
		t.Fatalf("expected 2 samples, got %d", a.rates.Len())
	}

	f.set(func(f *fakeDaemon) { f.torrents = []apiTorrent{} })
	for range 4 {
		if _, err := a.ListTorrents(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if a.rates.Len() != 0 {
		t.Errorf("expected samples evicted, %d left", a.rates.Len())
	}
}

func TestListTorrents_DuplicateHash(t *testing.T) {
	a, f, _ := newTestAdapter(t, testToken)
	f.set(func(f *fakeDaemon) {
		f.torrents = []apiTorrent{{Hash: "h1", State: "active"}, {Hash: "h1", State: "active"}}
	})

	_, err := a.ListTorrents(context.Background())
	if !errors.Is(err, core.ErrProtocol) {
		t.Fatalf("expected protocol error, got %v", err)
	}
}

func TestBadToken(t *testing.T) {
	a, _, _ := newTestAdapter(t, "wrong")

	_, err := a.ListTorrents(context.Background())
	var e *core.Error
	if !errors.As(err, &e) || e.Kind != core.KindFault || e.Code != http.StatusUnauthorized {
		t.Fatalf("expected fault 401, got %v", err)
	}
	if e.Message != "bad token" {
		t.Errorf("message = %q", e.Message)
	}
}

func TestServiceUnavailable(t *testing.T) {
	a, f, _ := newTestAdapter(t, testToken)
	f.set(func(f *fakeDaemon) { f.status = http.StatusBadGateway })

	_, err := a.GetClientStats(context.Background())
	if !core.IsRetryable(err) {
		t.Fatalf("expected retryable error, got %v", err)
	}
}

func TestGetTorrent_NotFound(t *testing.T) {
	a, _, _ := newTestAdapter(t, testToken)

	_, err := a.GetTorrent(context.Background(), "zz")
	var e *core.Error
	if !errors.As(err, &e) || e.Code != http.StatusNotFound {
		t.Fatalf("expected fault 404, got %v", err)
	}
}

func TestGetClientStats(t *testing.T) {
	a, f, c := newTestAdapter(t, testToken)
	f.set(func(f *fakeDaemon) {
		f.stats = apiStats{Uploaded: 100, Downloaded: 1000, UpLimit: 512, DownLimit: -1}
	})
	if _, err := a.GetClientStats(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c.Advance(2 * time.Second)
	f.set(func(f *fakeDaemon) { f.stats.Uploaded, f.stats.Downloaded = 300, 5000 })
	stats, err := a.GetClientStats(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := core.ClientStats{
		UploadRate:     100,
		DownloadRate:   2000,
		UploadTotal:    300,
		DownloadTotal:  5000,
		UploadThrottle: 512,
	}
	if *stats != want {
		t.Errorf("expected %+v, got %+v", want, *stats)
	}
}

func TestGetClientStats_SurvivesListPolls(t *testing.T) {
	a, f, c := newTestAdapter(t, testToken)
	f.set(func(f *fakeDaemon) {
		f.torrents = []apiTorrent{{Hash: "h1", State: "active"}}
		f.stats = apiStats{Downloaded: 0}
	})
	if _, err := a.GetClientStats(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// more list polls than max_idle_polls between two stats requests
	for range 5 {
		c.Advance(5 * time.Second)
		if _, err := a.ListTorrents(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	f.set(func(f *fakeDaemon) { f.stats.Downloaded = 25000 })
	stats, err := a.GetClientStats(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.DownloadRate != 1000 {
		t.Errorf("DownloadRate = %d, want 1000 over 25s", stats.DownloadRate)
	}
}

func TestActions(t *testing.T) {
	tests := []struct {
		name string
		run  func(context.Context, *Adapter) error
		path string
		want string
	}{
		{
			name: "start",
			run:  func(ctx context.Context, a *Adapter) error { return a.StartTorrents(ctx, []string{"h1", "h2"}) },
			path: "/api/v1/torrents/start",
			want: `{"hashes":["h1","h2"]}`,
		},
		{
			name: "stop",
			run:  func(ctx context.Context, a *Adapter) error { return a.StopTorrents(ctx, []string{"h1"}) },
			path: "/api/v1/torrents/stop",
			want: `{"hashes":["h1"]}`,
		},
		{
			name: "check",
			run:  func(ctx context.Context, a *Adapter) error { return a.CheckTorrents(ctx, []string{"h1"}) },
			path: "/api/v1/torrents/check",
			want: `{"hashes":["h1"]}`,
		},
		{
			name: "delete",
			run:  func(ctx context.Context, a *Adapter) error { return a.DeleteTorrents(ctx, []string{"h1"}, true) },
			path: "/api/v1/torrents/delete",
			want: `{"hashes":["h1"],"delete_data":true}`,
		},
		{
			name: "move base path",
			run: func(ctx context.Context, a *Adapter) error {
				return a.MoveTorrents(ctx, core.MoveOptions{Hashes: []string{"h1"}, Destination: "/a/b/Movie", MoveFiles: true, IsBasePath: true})
			},
			path: "/api/v1/torrents/move",
			want: `{"hashes":["h1"],"destination":"/a/b","move_files":true}`,
		},
		{
			name: "labels cleared",
			run:  func(ctx context.Context, a *Adapter) error { return a.SetTags(ctx, []string{"h1"}, nil) },
			path: "/api/v1/torrents/labels",
			want: `{"hashes":["h1"],"labels":[]}`,
		},
		{
			name: "priority",
			run: func(ctx context.Context, a *Adapter) error {
				return a.SetPriority(ctx, []string{"h1"}, core.PriorityHigh)
			},
			path: "/api/v1/torrents/priority",
			want: `{"hashes":["h1"],"priority":3}`,
		},
		{
			name: "file priority",
			run: func(ctx context.Context, a *Adapter) error {
				return a.SetFilePriority(ctx, "h1", []int{1, 4}, core.FileSkip)
			},
			path: "/api/v1/torrents/file-priority",
			want: `{"hash":"h1","indices":[1,4],"priority":0}`,
		},
		{
			name: "add url",
			run: func(ctx context.Context, a *Adapter) error {
				return a.AddTorrentByURL(ctx, core.AddOptions{URLs: []string{"magnet:?xt=urn:btih:aa"}, Start: true})
			},
			path: "/api/v1/torrents",
			want: `{"urls":["magnet:?xt=urn:btih:aa"],"labels":[],"start":true}`,
		},
		{
			name: "add file",
			run: func(ctx context.Context, a *Adapter) error {
				return a.AddTorrentByFile(ctx, core.AddFileOptions{Files: [][]byte{[]byte("d4:infoe")}, Destination: "/dl", Tags: []string{"x"}})
			},
			path: "/api/v1/torrents",
			want: `{"files":["ZDQ6aW5mb2U="],"destination":"/dl","labels":["x"],"start":false}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, f, _ := newTestAdapter(t, testToken)
			if err := tt.run(context.Background(), a); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := string(f.body(tt.path)); got != tt.want {
				t.Errorf("body = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestGetTrackers(t *testing.T) {
	a, f, _ := newTestAdapter(t, testToken)
	f.set(func(f *fakeDaemon) {
		f.torrents = []apiTorrent{{Hash: "h1"}}
		f.trackers = []apiTracker{
			{URL: "udp://t.example:80/announce", Enabled: true},
			{URL: "https://t.example/announce", Enabled: false},
			{URL: "dht://", Enabled: true},
			{URL: "wss://t.example", Enabled: true},
		}
	})

	got, err := a.GetTrackers(context.Background(), "h1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []core.Tracker{
		{URL: "udp://t.example:80/announce", Type: core.TrackerUDP, Enabled: true},
		{URL: "https://t.example/announce", Type: core.TrackerHTTP, Enabled: false},
		{URL: "dht://", Type: core.TrackerDHT, Enabled: true},
		{URL: "wss://t.example", Type: core.TrackerUnknown, Enabled: true},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %+v, got %+v", want, got)
	}
}
