package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vadimtrunov/torrentdeck/internal/core"
	"github.com/vadimtrunov/torrentdeck/internal/health"
	"github.com/vadimtrunov/torrentdeck/internal/torrent"
)

type backendInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// snapshotResponse is the wire form of a torrent.Snapshot.
type snapshotResponse struct {
	Backend    string                   `json:"backend"`
	Type       string                   `json:"type"`
	Torrents   []core.TorrentProperties `json:"torrents"`
	Error      *errorResponse           `json:"error,omitempty"`
	PolledAt   time.Time                `json:"polledAt"`
	DurationMS int64                    `json:"durationMs"`
}

func toSnapshotResponse(s torrent.Snapshot) snapshotResponse {
	resp := snapshotResponse{
		Backend:    s.Backend,
		Type:       s.Type,
		Torrents:   s.Torrents,
		PolledAt:   s.PolledAt,
		DurationMS: s.Duration.Milliseconds(),
	}
	if resp.Torrents == nil {
		resp.Torrents = []core.TorrentProperties{}
	}
	if s.Err != nil {
		resp.Error = &errorResponse{Error: s.Err.Error(), Kind: core.KindOf(s.Err).String()}
	}
	return resp
}

func toSnapshotResponses(snaps []torrent.Snapshot) []snapshotResponse {
	out := make([]snapshotResponse, len(snaps))
	for i, s := range snaps {
		out[i] = toSnapshotResponse(s)
	}
	return out
}

type hashesRequest struct {
	Hashes []string `json:"hashes"`
}

type deleteRequest struct {
	Hashes     []string `json:"hashes"`
	DeleteData bool     `json:"delete_data"`
}

type tagsRequest struct {
	Hashes []string `json:"hashes"`
	Tags   []string `json:"tags"`
}

type priorityRequest struct {
	Hashes   []string             `json:"hashes"`
	Priority core.TorrentPriority `json:"priority"`
}

type filePriorityRequest struct {
	Indices  []int             `json:"indices"`
	Priority core.FilePriority `json:"priority"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	results := h.checker.CheckAll(r.Context())
	status := http.StatusOK
	if !health.Healthy(results) {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, results)
}

func (h *Handler) handleBackends(w http.ResponseWriter, _ *http.Request) {
	backends := h.registry.Backends()
	out := make([]backendInfo, len(backends))
	for i, b := range backends {
		out[i] = backendInfo{Name: b.Name(), Type: b.Type()}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleListAll(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toSnapshotResponses(h.registry.ListAll(r.Context())))
}

func (h *Handler) handleSnapshots(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, toSnapshotResponses(h.snapshots.Latest()))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	torrents, err := getBackend(r.Context()).ListTorrents(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, torrents)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	p, err := getBackend(r.Context()).GetTorrent(r.Context(), chi.URLParam(r, "hash"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) handleTrackers(w http.ResponseWriter, r *http.Request) {
	trackers, err := getBackend(r.Context()).GetTrackers(r.Context(), chi.URLParam(r, "hash"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, trackers)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := getBackend(r.Context()).GetClientStats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// action runs fn and answers 204 on success.
func action(w http.ResponseWriter, r *http.Request, fn func() error) {
	if err := fn(); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	h.hashesAction(w, r, getBackend(r.Context()).StartTorrents)
}

func (h *Handler) handleStop(w http.ResponseWriter, r *http.Request) {
	h.hashesAction(w, r, getBackend(r.Context()).StopTorrents)
}

func (h *Handler) handleCheck(w http.ResponseWriter, r *http.Request) {
	h.hashesAction(w, r, getBackend(r.Context()).CheckTorrents)
}

func (h *Handler) hashesAction(w http.ResponseWriter, r *http.Request, fn func(context.Context, []string) error) {
	var req hashesRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	action(w, r, func() error { return fn(r.Context(), req.Hashes) })
}

func (h *Handler) handleAddURL(w http.ResponseWriter, r *http.Request) {
	var opts core.AddOptions
	if err := decode(w, r, &opts); err != nil {
		writeError(w, r, err)
		return
	}
	action(w, r, func() error { return getBackend(r.Context()).AddTorrentByURL(r.Context(), opts) })
}

func (h *Handler) handleAddFile(w http.ResponseWriter, r *http.Request) {
	var opts core.AddFileOptions
	if err := decode(w, r, &opts); err != nil {
		writeError(w, r, err)
		return
	}
	action(w, r, func() error { return getBackend(r.Context()).AddTorrentByFile(r.Context(), opts) })
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req deleteRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	action(w, r, func() error {
		return getBackend(r.Context()).DeleteTorrents(r.Context(), req.Hashes, req.DeleteData)
	})
}

func (h *Handler) handleMove(w http.ResponseWriter, r *http.Request) {
	var opts core.MoveOptions
	if err := decode(w, r, &opts); err != nil {
		writeError(w, r, err)
		return
	}
	action(w, r, func() error { return getBackend(r.Context()).MoveTorrents(r.Context(), opts) })
}

func (h *Handler) handleTags(w http.ResponseWriter, r *http.Request) {
	var req tagsRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	action(w, r, func() error { return getBackend(r.Context()).SetTags(r.Context(), req.Hashes, req.Tags) })
}

func (h *Handler) handlePriority(w http.ResponseWriter, r *http.Request) {
	var req priorityRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	action(w, r, func() error {
		return getBackend(r.Context()).SetPriority(r.Context(), req.Hashes, req.Priority)
	})
}

func (h *Handler) handleFilePriority(w http.ResponseWriter, r *http.Request) {
	var req filePriorityRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	hash := chi.URLParam(r, "hash")
	action(w, r, func() error {
		return getBackend(r.Context()).SetFilePriority(r.Context(), hash, req.Indices, req.Priority)
	})
}
