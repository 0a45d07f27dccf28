package rtorrent

import (
	"testing"

	"github.com/vadimtrunov/torrentdeck/internal/core"
)

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		name     string
		f        flags
		up, down int64
		want     core.StatusSet
	}{
		{
			name: "hash checking wins",
			f:    flags{hashChecking: true, open: true, active: true, complete: true},
			want: core.NewStatusSet(core.TagChecking, core.TagInactive),
		},
		{
			name: "downloading idle",
			f:    flags{open: true, active: true},
			want: core.NewStatusSet(core.TagDownloading, core.TagInactive),
		},
		{
			name: "downloading with rate",
			f:    flags{open: true, active: true},
			down: 10,
			want: core.NewStatusSet(core.TagDownloading, core.TagActive, core.TagActivelyDownloading),
		},
		{
			name: "seeding",
			f:    flags{open: true, active: true, complete: true},
			up:   5,
			want: core.NewStatusSet(core.TagSeeding, core.TagComplete, core.TagActive, core.TagActivelyUploading),
		},
		{
			name: "paused incomplete",
			f:    flags{open: true},
			want: core.NewStatusSet(core.TagPaused, core.TagInactive),
		},
		{
			name: "paused complete",
			f:    flags{open: true, complete: true},
			want: core.NewStatusSet(core.TagPaused, core.TagComplete, core.TagInactive),
		},
		{
			name: "stopped",
			f:    flags{},
			want: core.NewStatusSet(core.TagStopped, core.TagInactive),
		},
		{
			name: "stopped complete",
			f:    flags{complete: true, active: true},
			want: core.NewStatusSet(core.TagStopped, core.TagComplete, core.TagInactive),
		},
		{
			name: "message adds error",
			f:    flags{open: true, active: true, message: "tracker timeout"},
			want: core.NewStatusSet(core.TagDownloading, core.TagInactive, core.TagError),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := normalizeStatus(tt.f, tt.up, tt.down)
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
			if again := normalizeStatus(tt.f, tt.up, tt.down); again != got {
				t.Errorf("not deterministic: %v vs %v", again, got)
			}
		})
	}
}

func TestLifecycle_EveryValueMapsToNonEmptySet(t *testing.T) {
	for l := lifecycleChecking; l <= lifecycleStoppedComplete; l++ {
		s := l.tags()
		if s.Empty() || s == core.NewStatusSet(core.TagError) {
			t.Errorf("lifecycle %d maps to %v", l, s)
		}
	}
	if lifecycle(99).tags() != core.NewStatusSet(core.TagError) {
		t.Error("unknown lifecycle must map to {error}")
	}
}
