package rtorrent

import (
	"context"
	"errors"
	"reflect"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/vadimtrunov/torrentdeck/internal/core"
)

func seedTorrents() []*fakeTorrent {
	return []*fakeTorrent{
		{
			hash: "AAAA", name: "Ubuntu ISO", open: 1, active: 1,
			downRate: 50000, done: 500000, size: 1000000, ratio: 250,
			custom1: "linux,iso", directory: "/data/linux", addTime: "1699990000",
			basePath: "/data/linux/ubuntu.iso",
			trackers: [][]any{
				{"http://tracker.example/announce", int64(1), int64(1)},
				{"udp://tracker.example:6969", int64(2), int64(0)},
			},
		},
		{
			hash: "BBBB", name: "Debian", open: 1, active: 1, complete: 1,
			upRate: 1024, done: 300, size: 300, ratio: 12345,
			basePath: "/data/debian",
		},
		{
			hash: "CCCC", name: "Broken", complete: 0, message: "Tracker: [Failure reason \"unregistered torrent\"]",
			size: 10,
		},
	}
}

func TestListTorrents(t *testing.T) {
	d := newFakeDaemon(t, seedTorrents()...)
	torrents, err := d.adapter().ListTorrents(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(torrents) != 3 {
		t.Fatalf("expected 3 torrents, got %d", len(torrents))
	}

	first := torrents[0]
	if first.Hash != "AAAA" || first.Name != "Ubuntu ISO" {
		t.Errorf("unexpected first torrent %+v", first)
	}
	if first.PercentComplete != "50.00" {
		t.Errorf("PercentComplete = %q", first.PercentComplete)
	}
	if first.ETA != (core.ETA{Seconds: 10}) {
		t.Errorf("ETA = %v", first.ETA)
	}
	if first.RatioDisplay != "0.25" {
		t.Errorf("RatioDisplay = %q", first.RatioDisplay)
	}
	if !reflect.DeepEqual(first.Tags, []string{"linux", "iso"}) {
		t.Errorf("Tags = %v", first.Tags)
	}
	if first.DateAdded != 1699990000 {
		t.Errorf("DateAdded = %d", first.DateAdded)
	}
	wantDownloading := core.NewStatusSet(core.TagDownloading, core.TagActive, core.TagActivelyDownloading)
	if first.Status != wantDownloading {
		t.Errorf("status = %v, want %v", first.Status, wantDownloading)
	}

	second := torrents[1]
	wantSeeding := core.NewStatusSet(core.TagSeeding, core.TagComplete, core.TagActive, core.TagActivelyUploading)
	if second.Status != wantSeeding {
		t.Errorf("status = %v, want %v", second.Status, wantSeeding)
	}
	if second.ETA != core.InfiniteETA || second.RatioDisplay != "12.3" {
		t.Errorf("unexpected derived fields %+v", second)
	}

	third := torrents[2]
	if !third.Status.Has(core.TagError) || !third.Status.Has(core.TagStopped) {
		t.Errorf("status = %v", third.Status)
	}
}

func TestListTorrents_DuplicateHashIsProtocolError(t *testing.T) {
	d := newFakeDaemon(t, &fakeTorrent{hash: "AAAA"})
	d.order = append(d.order, "AAAA")

	_, err := d.adapter().ListTorrents(context.Background())
	if !errors.Is(err, core.ErrProtocol) {
		t.Errorf("expected protocol error, got %v", err)
	}
}

func TestGetTorrent(t *testing.T) {
	d := newFakeDaemon(t, seedTorrents()...)
	p, err := d.adapter().GetTorrent(context.Background(), "BBBB")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Hash != "BBBB" || p.PercentComplete != "100.00" {
		t.Errorf("unexpected torrent %+v", p)
	}
	methods := d.calledMethods()
	if len(methods) == 0 || methods[0] != "system.multicall" {
		t.Errorf("expected one system.multicall, got %v", methods)
	}
}

func TestGetTorrent_UnknownHashIsFault(t *testing.T) {
	d := newFakeDaemon(t, seedTorrents()...)
	_, err := d.adapter().GetTorrent(context.Background(), "ZZZZ")
	var e *core.Error
	if !errors.As(err, &e) || e.Kind != core.KindFault || e.Code != -501 {
		t.Errorf("expected fault -501, got %v", err)
	}
}

func TestGetClientStats(t *testing.T) {
	d := newFakeDaemon(t)
	stats, err := d.adapter().GetClientStats(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := core.ClientStats{
		UploadRate: 100, DownloadRate: 2000,
		UploadTotal: 5 << 30, DownloadTotal: 7 << 30,
		DownloadThrottle: 1 << 20,
	}
	if *stats != want {
		t.Errorf("stats = %+v, want %+v", *stats, want)
	}
}

func TestStartStopTorrents(t *testing.T) {
	d := newFakeDaemon(t, seedTorrents()...)
	a := d.adapter()
	ctx := context.Background()

	if err := a.StopTorrents(ctx, []string{"AAAA", "BBBB"}); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if d.torrents["AAAA"].active != 0 || d.torrents["AAAA"].open != 0 {
		t.Error("AAAA not stopped and closed")
	}

	if err := a.StartTorrents(ctx, []string{"AAAA"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if d.torrents["AAAA"].active != 1 || d.torrents["AAAA"].open != 1 {
		t.Error("AAAA not opened and started")
	}
}

func TestStartTorrents_FaultScopedToFailingCall(t *testing.T) {
	d := newFakeDaemon(t, seedTorrents()...)
	d.torrents["CCCC"].open = 0

	err := d.adapter().StartTorrents(context.Background(), []string{"ZZZZ", "CCCC"})
	if !errors.Is(err, core.ErrFault) {
		t.Fatalf("expected fault, got %v", err)
	}
	if d.torrents["CCCC"].active != 1 {
		t.Error("valid hash in the same batch was not started")
	}
}

func TestCheckTorrents(t *testing.T) {
	d := newFakeDaemon(t, seedTorrents()...)
	if err := d.adapter().CheckTorrents(context.Background(), []string{"BBBB"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.torrents["BBBB"].hashing != 1 {
		t.Error("hash check not started")
	}
	p, err := d.adapter().GetTorrent(context.Background(), "BBBB")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !p.Status.Has(core.TagChecking) {
		t.Errorf("status = %v, want checking", p.Status)
	}
}

func TestAddTorrentByURL(t *testing.T) {
	d := newFakeDaemon(t)
	err := d.adapter().AddTorrentByURL(context.Background(), core.AddOptions{
		URLs:        []string{"magnet:?xt=urn:btih:c12fe1c06bba254a9dc9f519b335aa7c1367a88a"},
		Destination: "/data/new",
		Tags:        []string{"a", "b"},
		Start:       true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(d.loaded) != 1 {
		t.Fatalf("expected 1 load call, got %d", len(d.loaded))
	}
	want := []any{
		"load.start", "", "magnet:?xt=urn:btih:c12fe1c06bba254a9dc9f519b335aa7c1367a88a",
		`d.set_directory="/data/new"`, `d.set_custom1="a,b"`, "d.set_custom=addtime,1700000000",
	}
	if !reflect.DeepEqual(d.loaded[0], want) {
		t.Errorf("load call = %#v", d.loaded[0])
	}
}

func TestAddTorrentByURL_RejectsQuotes(t *testing.T) {
	d := newFakeDaemon(t)
	err := d.adapter().AddTorrentByURL(context.Background(), core.AddOptions{
		URLs:        []string{"http://example.com/a.torrent"},
		Destination: `/data/"x`,
	})
	if !errors.Is(err, core.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
	if len(d.calledMethods()) != 0 {
		t.Error("validation failure must not reach the daemon")
	}
}

func TestAddTorrentByFile(t *testing.T) {
	d := newFakeDaemon(t)
	err := d.adapter().AddTorrentByFile(context.Background(), core.AddFileOptions{
		Files: [][]byte{[]byte("d4:infod4:name1:xee")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(d.loaded) != 1 || d.loaded[0][0] != "load.raw" {
		t.Fatalf("unexpected load calls %v", d.loaded)
	}
	if data, ok := d.loaded[0][2].([]byte); !ok || string(data) != "d4:infod4:name1:xee" {
		t.Errorf("file payload = %#v", d.loaded[0][2])
	}
}

func TestDeleteTorrents_WithData(t *testing.T) {
	d := newFakeDaemon(t, seedTorrents()...)
	if err := d.adapter().DeleteTorrents(context.Background(), []string{"AAAA", "BBBB"}, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(d.torrents) != 1 {
		t.Errorf("expected 1 remaining torrent, got %d", len(d.torrents))
	}
	want := [][]any{
		{"", "rm", "-rf", "/data/linux/ubuntu.iso"},
		{"", "rm", "-rf", "/data/debian"},
	}
	if !reflect.DeepEqual(d.executed, want) {
		t.Errorf("executed = %v", d.executed)
	}
}

func TestDeleteTorrents_KeepData(t *testing.T) {
	d := newFakeDaemon(t, seedTorrents()...)
	if err := d.adapter().DeleteTorrents(context.Background(), []string{"CCCC"}, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(d.executed) != 0 {
		t.Errorf("no data should be removed, got %v", d.executed)
	}
	if _, ok := d.torrents["CCCC"]; ok {
		t.Error("CCCC not erased")
	}
}

func TestMoveTorrents(t *testing.T) {
	d := newFakeDaemon(t, seedTorrents()...)
	err := d.adapter().MoveTorrents(context.Background(), core.MoveOptions{
		Hashes:      []string{"AAAA", "ZZZZ"},
		Destination: "/archive",
		MoveFiles:   true,
	})
	if !errors.Is(err, core.ErrFault) {
		t.Fatalf("expected fault for unknown hash, got %v", err)
	}

	tr := d.torrents["AAAA"]
	if tr.directory != "/archive" {
		t.Errorf("directory = %q", tr.directory)
	}
	if tr.active != 1 {
		t.Error("previously active torrent was not restarted")
	}
	want := [][]any{
		{"", "mkdir", "-p", "/archive"},
		{"", "mv", "-u", "/data/linux/ubuntu.iso", "/archive/"},
	}
	if !reflect.DeepEqual(d.executed, want) {
		t.Errorf("executed = %v", d.executed)
	}
}

func TestSetTagsAndPriority(t *testing.T) {
	d := newFakeDaemon(t, seedTorrents()...)
	a := d.adapter()
	ctx := context.Background()

	if err := a.SetTags(ctx, []string{"BBBB"}, []string{"keep", "seed"}); err != nil {
		t.Fatalf("set tags: %v", err)
	}
	if d.torrents["BBBB"].custom1 != "keep,seed" {
		t.Errorf("custom1 = %q", d.torrents["BBBB"].custom1)
	}

	if err := a.SetPriority(ctx, []string{"BBBB"}, core.PriorityHigh); err != nil {
		t.Fatalf("set priority: %v", err)
	}
	if d.torrents["BBBB"].priority != 3 {
		t.Errorf("priority = %d", d.torrents["BBBB"].priority)
	}
}

func TestSetFilePriority(t *testing.T) {
	d := newFakeDaemon(t, seedTorrents()...)
	if err := d.adapter().SetFilePriority(context.Background(), "AAAA", []int{0, 2}, core.FileSkip); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	methods := d.calledMethods()
	want := []string{"system.multicall", "f.set_priority", "f.set_priority", "d.update_priorities"}
	if !slices.Equal(methods, want) {
		t.Errorf("methods = %v, want %v", methods, want)
	}
}

func TestGetTrackers(t *testing.T) {
	d := newFakeDaemon(t, seedTorrents()...)
	trackers, err := d.adapter().GetTrackers(context.Background(), "AAAA")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []core.Tracker{
		{URL: "http://tracker.example/announce", Type: core.TrackerHTTP, Enabled: true},
		{URL: "udp://tracker.example:6969", Type: core.TrackerUDP, Enabled: false},
	}
	if !reflect.DeepEqual(trackers, want) {
		t.Errorf("trackers = %+v", trackers)
	}
}

func TestAdapter_SerializesExchanges(t *testing.T) {
	d := newFakeDaemon(t, seedTorrents()...)
	d.delay = 20 * time.Millisecond
	a := d.adapter()

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := a.ListTorrents(context.Background()); err != nil {
				t.Errorf("list: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := d.maxInFlight.Load(); got != 1 {
		t.Errorf("max concurrent exchanges = %d, want 1", got)
	}
}
