package transmission

import (
	"testing"

	"github.com/vadimtrunov/torrentdeck/internal/core"
)

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		name string
		in   rpcTorrent
		want core.StatusSet
	}{
		{
			name: "download without rate",
			in:   rpcTorrent{Status: int(statusDownload), TotalSize: 10},
			want: core.NewStatusSet(core.TagDownloading, core.TagInactive),
		},
		{
			name: "download with rate",
			in:   rpcTorrent{Status: int(statusDownload), RateDownload: 5, TotalSize: 10},
			want: core.NewStatusSet(core.TagDownloading, core.TagActive, core.TagActivelyDownloading),
		},
		{
			name: "download wait",
			in:   rpcTorrent{Status: int(statusDownloadWait), TotalSize: 10},
			want: core.NewStatusSet(core.TagDownloading, core.TagInactive),
		},
		{
			name: "check wait",
			in:   rpcTorrent{Status: int(statusCheckWait), TotalSize: 10},
			want: core.NewStatusSet(core.TagChecking, core.TagInactive),
		},
		{
			name: "check",
			in:   rpcTorrent{Status: int(statusCheck), TotalSize: 10},
			want: core.NewStatusSet(core.TagChecking, core.TagInactive),
		},
		{
			name: "seed wait implies complete",
			in:   rpcTorrent{Status: int(statusSeedWait), TotalSize: 10},
			want: core.NewStatusSet(core.TagSeeding, core.TagComplete, core.TagInactive),
		},
		{
			name: "stopped complete",
			in:   rpcTorrent{Status: int(statusStopped), HaveValid: 10, TotalSize: 10},
			want: core.NewStatusSet(core.TagStopped, core.TagComplete, core.TagInactive),
		},
		{
			name: "error field",
			in:   rpcTorrent{Status: int(statusStopped), Error: 2, TotalSize: 10},
			want: core.NewStatusSet(core.TagStopped, core.TagError, core.TagInactive),
		},
		{
			name: "unknown status",
			in:   rpcTorrent{Status: 17},
			want: core.NewStatusSet(core.TagError),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := normalizeStatus(tt.in)
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStatusEnum_Total(t *testing.T) {
	for s := statusStopped; s <= statusSeed; s++ {
		if s.tags().Empty() || s.tags().Has(core.TagError) {
			t.Errorf("status %d maps to %v", s, s.tags())
		}
	}
}
