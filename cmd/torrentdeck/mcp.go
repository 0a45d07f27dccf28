package main

import (
	"github.com/spf13/cobra"

	"github.com/vadimtrunov/torrentdeck/internal/health"
	mcpserver "github.com/vadimtrunov/torrentdeck/internal/mcp"
)

// newMCPServeCmd returns the "mcp-serve" subcommand.
// It starts an MCP server over stdin/stdout so that an assistant can list and
// control torrents on every configured backend.
func newMCPServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp-serve",
		Short: "Start MCP server over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession()
			if err != nil {
				return err
			}
			defer s.Close()

			checker := health.NewChecker(s.registry, 0, s.logger)
			srv := mcpserver.NewServer(s.registry, checker, version, s.logger)
			return srv.ServeStdio(cmd.Context())
		},
	}
}
