// Package mcp exposes the torrent backends as Model Context Protocol tools.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/vadimtrunov/torrentdeck/internal/core"
	"github.com/vadimtrunov/torrentdeck/internal/health"
	"github.com/vadimtrunov/torrentdeck/internal/torrent"
)

// Registry resolves backends by name.
type Registry interface {
	Get(name string) (*torrent.Backend, error)
	Backends() []*torrent.Backend
	ListAll(ctx context.Context) []torrent.Snapshot
}

// Server wraps an MCP SDK server with the torrent tools.
type Server struct {
	server   *mcpsdk.Server
	registry Registry
	checker  *health.Checker
	logger   *slog.Logger
}

// NewServer creates an MCP server with all tools registered. checker may be
// nil, in which case check_health is not offered.
func NewServer(registry Registry, checker *health.Checker, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "torrentdeck",
			Version: version,
		},
		&mcpsdk.ServerOptions{Logger: logger},
	)

	srv := &Server{server: s, registry: registry, checker: checker, logger: logger}
	srv.registerTools()
	return srv
}

// ServeStdio runs the MCP server over stdin/stdout.
func (s *Server) ServeStdio(ctx context.Context) error {
	return s.server.Run(ctx, &mcpsdk.StdioTransport{})
}

// MCPServer returns the underlying MCP SDK server (for testing).
func (s *Server) MCPServer() *mcpsdk.Server {
	return s.server
}

func (s *Server) registerTools() {
	s.server.AddTool(listBackendsTool(), s.handleListBackends)
	s.server.AddTool(listTorrentsTool(), s.handleListTorrents)
	s.server.AddTool(getTorrentTool(), s.handleGetTorrent)
	s.server.AddTool(getTrackersTool(), s.handleGetTrackers)
	s.server.AddTool(clientStatsTool(), s.handleClientStats)
	s.server.AddTool(hashesTool("start_torrents", "Start (resume) torrents on a backend."), s.handleStart)
	s.server.AddTool(hashesTool("stop_torrents", "Stop torrents on a backend."), s.handleStop)
	s.server.AddTool(hashesTool("check_torrents", "Trigger a hash re-check of torrents on a backend."), s.handleCheck)
	s.server.AddTool(addTorrentTool(), s.handleAddTorrent)
	s.server.AddTool(deleteTorrentsTool(), s.handleDeleteTorrents)
	s.server.AddTool(moveTorrentsTool(), s.handleMoveTorrents)
	s.server.AddTool(setTagsTool(), s.handleSetTags)
	s.server.AddTool(setPriorityTool(), s.handleSetPriority)
	if s.checker != nil {
		s.server.AddTool(checkHealthTool(), s.handleCheckHealth)
	}
}

var (
	backendProp = map[string]any{
		"type":        "string",
		"description": "Configured backend name",
	}
	hashesProp = map[string]any{
		"type":        "array",
		"items":       map[string]any{"type": "string"},
		"description": "Torrent hashes as reported by list_torrents",
	}
	hashProp = map[string]any{
		"type":        "string",
		"description": "Torrent hash as reported by list_torrents",
	}
)

func listBackendsTool() *mcpsdk.Tool {
	return &mcpsdk.Tool{
		Name:        "list_backends",
		Description: "List configured torrent backends with their names and daemon types.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	}
}

func listTorrentsTool() *mcpsdk.Tool {
	return &mcpsdk.Tool{
		Name:        "list_torrents",
		Description: "List torrents with progress, rates, ETA and status tags. Lists every backend unless one is named.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"backend": map[string]any{
					"type":        "string",
					"description": "Optional backend name to restrict the listing",
				},
			},
		},
	}
}

func getTorrentTool() *mcpsdk.Tool {
	return &mcpsdk.Tool{
		Name:        "get_torrent",
		Description: "Get one torrent by hash.",
		InputSchema: hashSchema(),
	}
}

func getTrackersTool() *mcpsdk.Tool {
	return &mcpsdk.Tool{
		Name:        "get_trackers",
		Description: "List the trackers of one torrent.",
		InputSchema: hashSchema(),
	}
}

func clientStatsTool() *mcpsdk.Tool {
	return &mcpsdk.Tool{
		Name:        "client_stats",
		Description: "Get aggregate transfer rates, totals and throttles of a backend.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"backend": backendProp},
			"required":   []any{"backend"},
		},
	}
}

func hashesTool(name, desc string) *mcpsdk.Tool {
	return &mcpsdk.Tool{
		Name:        name,
		Description: desc,
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"backend": backendProp,
				"hashes":  hashesProp,
			},
			"required": []any{"backend", "hashes"},
		},
	}
}

func addTorrentTool() *mcpsdk.Tool {
	return &mcpsdk.Tool{
		Name:        "add_torrent",
		Description: "Add torrents from magnet links or http(s) URLs.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"backend": backendProp,
				"urls": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Magnet links or http(s) URLs of .torrent files",
				},
				"destination": map[string]any{
					"type":        "string",
					"description": "Optional download directory",
				},
				"tags": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Optional initial tags",
				},
				"start": map[string]any{
					"type":        "boolean",
					"description": "Start downloading immediately",
				},
			},
			"required": []any{"backend", "urls"},
		},
	}
}

func deleteTorrentsTool() *mcpsdk.Tool {
	return &mcpsdk.Tool{
		Name:        "delete_torrents",
		Description: "Remove torrents from a backend, optionally deleting their data.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"backend": backendProp,
				"hashes":  hashesProp,
				"delete_data": map[string]any{
					"type":        "boolean",
					"description": "Also delete downloaded files",
				},
			},
			"required": []any{"backend", "hashes"},
		},
	}
}

func moveTorrentsTool() *mcpsdk.Tool {
	return &mcpsdk.Tool{
		Name:        "move_torrents",
		Description: "Change the download directory of torrents.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"backend": backendProp,
				"hashes":  hashesProp,
				"destination": map[string]any{
					"type":        "string",
					"description": "New download directory",
				},
				"move_files": map[string]any{
					"type":        "boolean",
					"description": "Physically move the data",
				},
			},
			"required": []any{"backend", "hashes", "destination"},
		},
	}
}

func setTagsTool() *mcpsdk.Tool {
	return &mcpsdk.Tool{
		Name:        "set_tags",
		Description: "Replace the tags of torrents.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"backend": backendProp,
				"hashes":  hashesProp,
				"tags": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "New tag set, may be empty",
				},
			},
			"required": []any{"backend", "hashes", "tags"},
		},
	}
}

func setPriorityTool() *mcpsdk.Tool {
	return &mcpsdk.Tool{
		Name:        "set_priority",
		Description: "Set the bandwidth priority of torrents: 0 off, 1 low, 2 normal, 3 high.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"backend": backendProp,
				"hashes":  hashesProp,
				"priority": map[string]any{
					"type":        "integer",
					"minimum":     0,
					"maximum":     3,
					"description": "Priority level",
				},
			},
			"required": []any{"backend", "hashes", "priority"},
		},
	}
}

func checkHealthTool() *mcpsdk.Tool {
	return &mcpsdk.Tool{
		Name:        "check_health",
		Description: "Probe every backend and report whether it answers and how fast.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	}
}

func hashSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"backend": backendProp,
			"hash":    hashProp,
		},
		"required": []any{"backend", "hash"},
	}
}

// Tool handlers parse arguments, resolve the backend and return JSON text content.

func (s *Server) backend(raw json.RawMessage) (*torrent.Backend, error) {
	name, err := extractStringFromArgs(raw, "backend")
	if err != nil {
		return nil, err
	}
	return s.registry.Get(name)
}

type backendInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

func (s *Server) handleListBackends(_ context.Context, _ *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
	backends := s.registry.Backends()
	out := make([]backendInfo, len(backends))
	for i, b := range backends {
		out[i] = backendInfo{Name: b.Name(), Type: b.Type()}
	}
	return toolJSON(out)
}

// torrentListing is one backend's share of a list_torrents result.
type torrentListing struct {
	Backend  string                   `json:"backend"`
	Torrents []core.TorrentProperties `json:"torrents"`
	Error    string                   `json:"error,omitempty"`
}

func (s *Server) handleListTorrents(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
	var args struct {
		Backend string `json:"backend"`
	}
	if err := unmarshalArgs(req.Params.Arguments, &args); err != nil {
		return toolError(err.Error()), nil
	}

	if args.Backend != "" {
		b, err := s.registry.Get(args.Backend)
		if err != nil {
			return toolError(err.Error()), nil
		}
		torrents, err := b.ListTorrents(ctx)
		if err != nil {
			return toolError(fmt.Sprintf("list torrents failed: %v", err)), nil
		}
		return toolJSON([]torrentListing{{Backend: b.Name(), Torrents: nonNil(torrents)}})
	}

	snaps := s.registry.ListAll(ctx)
	out := make([]torrentListing, len(snaps))
	for i, snap := range snaps {
		out[i] = torrentListing{Backend: snap.Backend, Torrents: nonNil(snap.Torrents)}
		if snap.Err != nil {
			out[i].Error = snap.Err.Error()
		}
	}
	return toolJSON(out)
}

func nonNil(torrents []core.TorrentProperties) []core.TorrentProperties {
	if torrents == nil {
		return []core.TorrentProperties{}
	}
	return torrents
}

func (s *Server) handleGetTorrent(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
	b, err := s.backend(req.Params.Arguments)
	if err != nil {
		return toolError(err.Error()), nil
	}
	hash, err := extractStringFromArgs(req.Params.Arguments, "hash")
	if err != nil {
		return toolError(err.Error()), nil
	}

	p, err := b.GetTorrent(ctx, hash)
	if err != nil {
		return toolError(fmt.Sprintf("get torrent failed: %v", err)), nil
	}
	return toolJSON(p)
}

func (s *Server) handleGetTrackers(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
	b, err := s.backend(req.Params.Arguments)
	if err != nil {
		return toolError(err.Error()), nil
	}
	hash, err := extractStringFromArgs(req.Params.Arguments, "hash")
	if err != nil {
		return toolError(err.Error()), nil
	}

	trackers, err := b.GetTrackers(ctx, hash)
	if err != nil {
		return toolError(fmt.Sprintf("get trackers failed: %v", err)), nil
	}
	return toolJSON(trackers)
}

func (s *Server) handleClientStats(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
	b, err := s.backend(req.Params.Arguments)
	if err != nil {
		return toolError(err.Error()), nil
	}

	stats, err := b.GetClientStats(ctx)
	if err != nil {
		return toolError(fmt.Sprintf("client stats failed: %v", err)), nil
	}
	return toolJSON(stats)
}

func (s *Server) handleStart(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
	return s.hashesAction(ctx, req, "start", (*torrent.Backend).StartTorrents)
}

func (s *Server) handleStop(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
	return s.hashesAction(ctx, req, "stop", (*torrent.Backend).StopTorrents)
}

func (s *Server) handleCheck(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
	return s.hashesAction(ctx, req, "check", (*torrent.Backend).CheckTorrents)
}

func (s *Server) hashesAction(
	ctx context.Context,
	req *mcpsdk.CallToolRequest,
	verb string,
	fn func(*torrent.Backend, context.Context, []string) error,
) (*mcpsdk.CallToolResult, error) {
	b, err := s.backend(req.Params.Arguments)
	if err != nil {
		return toolError(err.Error()), nil
	}
	var args struct {
		Hashes []string `json:"hashes"`
	}
	if err := unmarshalArgs(req.Params.Arguments, &args); err != nil {
		return toolError(err.Error()), nil
	}

	if err := fn(b, ctx, args.Hashes); err != nil {
		return toolError(fmt.Sprintf("%s failed: %v", verb, err)), nil
	}
	return done(verb, b.Name(), len(args.Hashes))
}

func (s *Server) handleAddTorrent(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
	b, err := s.backend(req.Params.Arguments)
	if err != nil {
		return toolError(err.Error()), nil
	}
	var opts core.AddOptions
	if err := unmarshalArgs(req.Params.Arguments, &opts); err != nil {
		return toolError(err.Error()), nil
	}

	if err := b.AddTorrentByURL(ctx, opts); err != nil {
		return toolError(fmt.Sprintf("add failed: %v", err)), nil
	}
	return done("add", b.Name(), len(opts.URLs))
}

func (s *Server) handleDeleteTorrents(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
	b, err := s.backend(req.Params.Arguments)
	if err != nil {
		return toolError(err.Error()), nil
	}
	var args struct {
		Hashes     []string `json:"hashes"`
		DeleteData bool     `json:"delete_data"`
	}
	if err := unmarshalArgs(req.Params.Arguments, &args); err != nil {
		return toolError(err.Error()), nil
	}

	if err := b.DeleteTorrents(ctx, args.Hashes, args.DeleteData); err != nil {
		return toolError(fmt.Sprintf("delete failed: %v", err)), nil
	}
	return done("delete", b.Name(), len(args.Hashes))
}

func (s *Server) handleMoveTorrents(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
	b, err := s.backend(req.Params.Arguments)
	if err != nil {
		return toolError(err.Error()), nil
	}
	var opts core.MoveOptions
	if err := unmarshalArgs(req.Params.Arguments, &opts); err != nil {
		return toolError(err.Error()), nil
	}

	if err := b.MoveTorrents(ctx, opts); err != nil {
		return toolError(fmt.Sprintf("move failed: %v", err)), nil
	}
	return done("move", b.Name(), len(opts.Hashes))
}

func (s *Server) handleSetTags(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
	b, err := s.backend(req.Params.Arguments)
	if err != nil {
		return toolError(err.Error()), nil
	}
	var args struct {
		Hashes []string `json:"hashes"`
		Tags   []string `json:"tags"`
	}
	if err := unmarshalArgs(req.Params.Arguments, &args); err != nil {
		return toolError(err.Error()), nil
	}

	if err := b.SetTags(ctx, args.Hashes, args.Tags); err != nil {
		return toolError(fmt.Sprintf("set tags failed: %v", err)), nil
	}
	return done("tag", b.Name(), len(args.Hashes))
}

func (s *Server) handleSetPriority(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
	b, err := s.backend(req.Params.Arguments)
	if err != nil {
		return toolError(err.Error()), nil
	}
	priority, err := extractIntFromArgs(req.Params.Arguments, "priority")
	if err != nil {
		return toolError(err.Error()), nil
	}
	var args struct {
		Hashes []string `json:"hashes"`
	}
	if err := unmarshalArgs(req.Params.Arguments, &args); err != nil {
		return toolError(err.Error()), nil
	}

	if err := b.SetPriority(ctx, args.Hashes, core.TorrentPriority(priority)); err != nil {
		return toolError(fmt.Sprintf("set priority failed: %v", err)), nil
	}
	return done("priority", b.Name(), len(args.Hashes))
}

func (s *Server) handleCheckHealth(ctx context.Context, _ *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
	results := s.checker.CheckAll(ctx)
	return toolJSON(map[string]any{
		"healthy":  health.Healthy(results),
		"backends": results,
	})
}

// Helper functions.

// done reports a successful action.
func done(action, backend string, count int) (*mcpsdk.CallToolResult, error) {
	return toolJSON(map[string]any{
		"status":  "ok",
		"action":  action,
		"backend": backend,
		"count":   count,
	})
}

// toolJSON marshals v to JSON and returns it as text content.
func toolJSON(v any) (*mcpsdk.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return toolError(fmt.Sprintf("marshal result: %v", err)), nil
	}
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: string(data)}},
	}, nil
}

// toolError returns a tool result indicating an error.
func toolError(msg string) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: msg}},
		IsError: true,
	}
}

// unmarshalArgs decodes raw arguments into v. Empty arguments leave v untouched.
func unmarshalArgs(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

// extractIntFromArgs extracts an integer argument from raw JSON arguments.
func extractIntFromArgs(raw json.RawMessage, key string) (int, error) {
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return 0, fmt.Errorf("invalid arguments: %w", err)
	}

	val, ok := args[key]
	if !ok {
		return 0, fmt.Errorf("%s is required", key)
	}

	switch v := val.(type) {
	case float64:
		return int(v), nil
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("%s must be a number: %w", key, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%s must be a number, got %T", key, val)
	}
}

// extractStringFromArgs extracts a string argument from raw JSON arguments.
func extractStringFromArgs(raw json.RawMessage, key string) (string, error) {
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}

	val, ok := args[key]
	if !ok {
		return "", fmt.Errorf("%s is required", key)
	}

	s, ok := val.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("%s must be a non-empty string", key)
	}
	return s, nil
}
