package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/vadimtrunov/torrentdeck/internal/core"
	"github.com/vadimtrunov/torrentdeck/internal/torrent"
)

const progressBarWidth = 30

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show torrents of every backend",
		Long:  "List the torrents of every configured backend, or of one with --backend.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.OutOrStdout())
		},
	}
	addBackendFlag(cmd)
	return cmd
}

func runStatus(w io.Writer) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := signalContext()
	defer cancel()

	var snaps []torrent.Snapshot
	if backendName != "" {
		b, err := s.registry.Get(backendName)
		if err != nil {
			return err
		}
		snaps = []torrent.Snapshot{torrent.Poll(ctx, b)}
	} else {
		snaps = s.registry.ListAll(ctx)
	}

	if len(snaps) == 0 {
		fmt.Fprintln(w, styleDim.Render("No backends configured."))
		return nil
	}
	for _, snap := range snaps {
		printSnapshot(w, snap)
	}
	return nil
}

func printSnapshot(w io.Writer, snap torrent.Snapshot) {
	fmt.Fprintln(w, styleHeader.Render(fmt.Sprintf("%s (%s)", snap.Backend, snap.Type)))
	if snap.Err != nil {
		fmt.Fprintln(w, styleError.Render("  "+snap.Err.Error()))
		fmt.Fprintln(w)
		return
	}
	if len(snap.Torrents) == 0 {
		fmt.Fprintln(w, styleDim.Render("  No torrents."))
		fmt.Fprintln(w)
		return
	}
	for i, t := range snap.Torrents {
		printTorrent(w, i+1, t)
	}
	fmt.Fprintln(w)
}

func printTorrent(w io.Writer, index int, t core.TorrentProperties) {
	statusStyle := lipgloss.NewStyle().Foreground(statusToColor(t.Status))
	nameStyle := lipgloss.NewStyle().Bold(true)
	label := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	fmt.Fprintf(w, "%s %s  %s\n",
		label.Render(fmt.Sprintf("%d.", index)),
		nameStyle.Render(t.Name),
		statusStyle.Render(primaryStatus(t.Status)),
	)

	percent, _ := strconv.ParseFloat(t.PercentComplete, 64)
	details := fmt.Sprintf("   %s  %s %s  %s %s  %s %s",
		progressBar(percent, progressBarWidth),
		label.Render("↓"),
		formatRate(t.DownloadRate),
		label.Render("↑"),
		formatRate(t.UploadRate),
		label.Render("ratio"),
		t.RatioDisplay,
	)
	if !t.ETA.Infinite && t.ETA.Seconds > 0 {
		details += fmt.Sprintf("  %s %s", label.Render("ETA"), formatETA(t.ETA))
	}
	fmt.Fprintln(w, details)

	if t.Message != "" {
		fmt.Fprintln(w, "   "+styleWarn.Render(t.Message))
	}
	if len(t.Tags) > 0 {
		fmt.Fprintln(w, "   "+label.Render("tags: "+strings.Join(t.Tags, ", ")))
	}
}

// primaryStatus picks the most telling tag of a status set for display.
func primaryStatus(s core.StatusSet) string {
	for _, tag := range []core.StatusTag{
		core.TagError,
		core.TagChecking,
		core.TagDownloading,
		core.TagSeeding,
		core.TagPaused,
		core.TagStopped,
		core.TagComplete,
	} {
		if s.Has(tag) {
			return string(tag)
		}
	}
	return s.String()
}

func statusToColor(s core.StatusSet) lipgloss.Color {
	switch {
	case s.Has(core.TagError):
		return lipgloss.Color("9") // red
	case s.Has(core.TagChecking), s.Has(core.TagPaused):
		return lipgloss.Color("11") // yellow
	case s.Has(core.TagDownloading):
		return lipgloss.Color("12") // blue
	case s.Has(core.TagSeeding):
		return lipgloss.Color("10") // green
	default:
		return lipgloss.Color("8") // gray
	}
}

func progressBar(percent float64, width int) string {
	filled := int(percent / 100 * float64(width))
	filled = max(0, min(filled, width))
	empty := width - filled

	bar := styleInfo.Render(strings.Repeat("█", filled)) +
		styleDim.Render(strings.Repeat("░", empty))
	return fmt.Sprintf("%s %s", bar, styleDim.Render(fmt.Sprintf("%.1f%%", percent)))
}

func formatETA(eta core.ETA) string {
	if eta.Infinite || eta.Seconds <= 0 {
		return "∞"
	}
	h := eta.Seconds / 3600
	m := (eta.Seconds % 3600) / 60
	s := eta.Seconds % 60
	if h > 0 {
		return fmt.Sprintf("%dh%02dm", h, m)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%02ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
