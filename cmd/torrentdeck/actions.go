package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vadimtrunov/torrentdeck/internal/core"
	"github.com/vadimtrunov/torrentdeck/internal/torrent"
)

// withBackend opens a session, resolves the --backend flag and runs fn under
// a signal-aware context.
func withBackend(fn func(ctx context.Context, b *torrent.Backend) error) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	b, err := s.backend(backendName)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()
	return fn(ctx, b)
}

func printDone(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, styleSuccess.Render("✓ "+fmt.Sprintf(format, args...)))
}

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show aggregate transfer figures of a backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withBackend(func(ctx context.Context, b *torrent.Backend) error {
				stats, err := b.GetClientStats(ctx)
				if err != nil {
					return err
				}
				printStats(cmd.OutOrStdout(), b.Name(), stats)
				return nil
			})
		},
	}
	addBackendFlag(cmd)
	return cmd
}

func printStats(w io.Writer, name string, stats *core.ClientStats) {
	fmt.Fprintln(w, styleHeader.Render(name))
	fmt.Fprintf(w, "  %s %s  %s %s\n",
		styleDim.Render("↓"), formatRate(stats.DownloadRate),
		styleDim.Render("↑"), formatRate(stats.UploadRate))
	fmt.Fprintf(w, "  %s %s downloaded, %s uploaded\n",
		styleDim.Render("total"), formatSize(stats.DownloadTotal), formatSize(stats.UploadTotal))
	fmt.Fprintf(w, "  %s ↓ %s  ↑ %s\n",
		styleDim.Render("limits"), formatThrottle(stats.DownloadThrottle), formatThrottle(stats.UploadThrottle))
}

func formatThrottle(bytesPerSec int64) string {
	if bytesPerSec <= 0 {
		return "unlimited"
	}
	return formatRate(bytesPerSec)
}

// newHashesCmd builds a command that applies fn to the hashes given as arguments.
func newHashesCmd(use, short, verb string, fn func(*torrent.Backend, context.Context, []string) error) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " HASH...",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(func(ctx context.Context, b *torrent.Backend) error {
				if err := fn(b, ctx, args); err != nil {
					return err
				}
				printDone(cmd.OutOrStdout(), "%s %d torrent(s) on %s", verb, len(args), b.Name())
				return nil
			})
		},
	}
	addBackendFlag(cmd)
	return cmd
}

func newStartCmd() *cobra.Command {
	return newHashesCmd("start", "Start torrents", "started", (*torrent.Backend).StartTorrents)
}

func newStopCmd() *cobra.Command {
	return newHashesCmd("stop", "Stop torrents", "stopped", (*torrent.Backend).StopTorrents)
}

func newRecheckCmd() *cobra.Command {
	return newHashesCmd("recheck", "Verify the data of torrents", "rechecking", (*torrent.Backend).CheckTorrents)
}

func newAddCmd() *cobra.Command {
	var (
		dest   string
		tags   []string
		paused bool
	)
	cmd := &cobra.Command{
		Use:   "add URL|FILE...",
		Short: "Add torrents from magnet links, URLs or .torrent files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			urls, files, err := splitSources(args)
			if err != nil {
				return err
			}
			return withBackend(func(ctx context.Context, b *torrent.Backend) error {
				if len(urls) > 0 {
					opts := core.AddOptions{URLs: urls, Destination: dest, Tags: tags, Start: !paused}
					if err := b.AddTorrentByURL(ctx, opts); err != nil {
						return err
					}
				}
				if len(files) > 0 {
					opts := core.AddFileOptions{Files: files, Destination: dest, Tags: tags, Start: !paused}
					if err := b.AddTorrentByFile(ctx, opts); err != nil {
						return err
					}
				}
				printDone(cmd.OutOrStdout(), "added %d torrent(s) to %s", len(args), b.Name())
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&dest, "dest", "d", "", "download directory (daemon default when empty)")
	cmd.Flags().StringSliceVarP(&tags, "tag", "t", nil, "tag to set, repeatable")
	cmd.Flags().BoolVar(&paused, "paused", false, "add without starting")
	addBackendFlag(cmd)
	return cmd
}

// splitSources separates URLs from local .torrent files, reading the files.
func splitSources(args []string) ([]string, [][]byte, error) {
	var (
		urls  []string
		files [][]byte
	)
	for _, arg := range args {
		if strings.Contains(arg, "://") || strings.HasPrefix(arg, "magnet:") {
			urls = append(urls, arg)
			continue
		}
		data, err := os.ReadFile(arg)
		if err != nil {
			return nil, nil, fmt.Errorf("read torrent file: %w", err)
		}
		files = append(files, data)
	}
	return urls, files, nil
}

func newRemoveCmd() *cobra.Command {
	var deleteData bool
	cmd := &cobra.Command{
		Use:   "remove HASH...",
		Short: "Remove torrents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(func(ctx context.Context, b *torrent.Backend) error {
				if err := b.DeleteTorrents(ctx, args, deleteData); err != nil {
					return err
				}
				printDone(cmd.OutOrStdout(), "removed %d torrent(s) from %s", len(args), b.Name())
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&deleteData, "delete-data", false, "also delete downloaded files")
	addBackendFlag(cmd)
	return cmd
}

func newMoveCmd() *cobra.Command {
	var opts core.MoveOptions
	cmd := &cobra.Command{
		Use:   "move HASH...",
		Short: "Change the download directory of torrents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Hashes = args
			return withBackend(func(ctx context.Context, b *torrent.Backend) error {
				if err := b.MoveTorrents(ctx, opts); err != nil {
					return err
				}
				printDone(cmd.OutOrStdout(), "moved %d torrent(s) to %s", len(args), opts.Destination)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&opts.Destination, "dest", "d", "", "new download directory")
	cmd.Flags().BoolVar(&opts.MoveFiles, "move-files", false, "physically move the data")
	cmd.Flags().BoolVar(&opts.IsBasePath, "base-path", false, "destination already includes the torrent directory")
	_ = cmd.MarkFlagRequired("dest")
	addBackendFlag(cmd)
	return cmd
}

func newTagCmd() *cobra.Command {
	var tags []string
	cmd := &cobra.Command{
		Use:   "tag HASH...",
		Short: "Replace the tags of torrents",
		Long:  "Replace the tags of torrents. Without --set the tags are cleared.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(func(ctx context.Context, b *torrent.Backend) error {
				if err := b.SetTags(ctx, args, tags); err != nil {
					return err
				}
				printDone(cmd.OutOrStdout(), "tagged %d torrent(s) with [%s]", len(args), strings.Join(tags, ", "))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&tags, "set", nil, "tags to set, comma separated")
	addBackendFlag(cmd)
	return cmd
}

func newPriorityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "priority LEVEL HASH...",
		Short: "Set the bandwidth priority of torrents (off, low, normal, high)",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parsePriority(args[0])
			if err != nil {
				return err
			}
			hashes := args[1:]
			return withBackend(func(ctx context.Context, b *torrent.Backend) error {
				if err := b.SetPriority(ctx, hashes, p); err != nil {
					return err
				}
				printDone(cmd.OutOrStdout(), "set priority %s on %d torrent(s)", p, len(hashes))
				return nil
			})
		},
	}
	addBackendFlag(cmd)
	cmd.AddCommand(newFilePriorityCmd())
	return cmd
}

func newFilePriorityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "files LEVEL HASH INDEX...",
		Short: "Set the priority of files inside a torrent (skip, normal, high)",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parseFilePriority(args[0])
			if err != nil {
				return err
			}
			hash := args[1]
			indices := make([]int, 0, len(args)-2)
			for _, a := range args[2:] {
				i, err := strconv.Atoi(a)
				if err != nil {
					return fmt.Errorf("invalid file index %q", a)
				}
				indices = append(indices, i)
			}
			return withBackend(func(ctx context.Context, b *torrent.Backend) error {
				if err := b.SetFilePriority(ctx, hash, indices, p); err != nil {
					return err
				}
				printDone(cmd.OutOrStdout(), "set %d file(s) of %s to %s", len(indices), hash, p)
				return nil
			})
		},
	}
	addBackendFlag(cmd)
	return cmd
}

func newTrackersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trackers HASH",
		Short: "List the trackers of a torrent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(func(ctx context.Context, b *torrent.Backend) error {
				trackers, err := b.GetTrackers(ctx, args[0])
				if err != nil {
					return err
				}
				rows := make([][]string, len(trackers))
				for i, tr := range trackers {
					enabled := "yes"
					if !tr.Enabled {
						enabled = "no"
					}
					rows[i] = []string{tr.URL, string(tr.Type), enabled}
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"URL", "Type", "Enabled"}, rows, nil))
				return nil
			})
		},
	}
	addBackendFlag(cmd)
	return cmd
}

func parsePriority(s string) (core.TorrentPriority, error) {
	for p := core.PriorityOff; p <= core.PriorityHigh; p++ {
		if strings.EqualFold(s, p.String()) || s == strconv.Itoa(int(p)) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown priority %q (want off, low, normal or high)", s)
}

func parseFilePriority(s string) (core.FilePriority, error) {
	for p := core.FileSkip; p <= core.FileHigh; p++ {
		if strings.EqualFold(s, p.String()) || s == strconv.Itoa(int(p)) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown file priority %q (want skip, normal or high)", s)
}
