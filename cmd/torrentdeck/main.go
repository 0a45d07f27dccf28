package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const version = "0.3.0"

var (
	configPath  string
	backendName string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, styleError.Render(err.Error()))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "torrentdeck",
		Short: "One control surface for rTorrent, Transmission and qBittorrent",
		Long: "torrentdeck talks to several torrent daemons through one normalized model.\n" +
			"It lists torrents, runs actions, serves a JSON API and MCP tools, and\n" +
			"notifies over Telegram when downloads complete.",
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/torrentdeck.yaml", "path to configuration file")

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	rootCmd.AddCommand(
		newVersionCmd(),
		newStatusCmd(),
		newStatsCmd(),
		newStartCmd(),
		newStopCmd(),
		newRecheckCmd(),
		newAddCmd(),
		newRemoveCmd(),
		newMoveCmd(),
		newTagCmd(),
		newPriorityCmd(),
		newTrackersCmd(),
		newCheckCmd(),
		newWatchCmd(),
		newServeCmd(),
		newMCPServeCmd(),
		newConfigCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "torrentdeck v%s\n", version)
		},
	}
}
