// Package api serves the backends over a JSON HTTP API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/vadimtrunov/torrentdeck/internal/config"
	"github.com/vadimtrunov/torrentdeck/internal/core"
	"github.com/vadimtrunov/torrentdeck/internal/health"
	"github.com/vadimtrunov/torrentdeck/internal/torrent"
)

// maxBodyBytes bounds request bodies; .torrent uploads are the largest.
const maxBodyBytes = 32 << 20

// Registry resolves backends by name.
type Registry interface {
	Get(name string) (*torrent.Backend, error)
	Backends() []*torrent.Backend
	ListAll(ctx context.Context) []torrent.Snapshot
}

// SnapshotSource returns the most recent poll results.
type SnapshotSource interface {
	Latest() []torrent.Snapshot
}

// Handler serves the API.
type Handler struct {
	registry  Registry
	checker   *health.Checker
	snapshots SnapshotSource
	logger    *slog.Logger
}

// NewHandler creates a Handler. snapshots may be nil, in which case
// /api/snapshots is not served.
func NewHandler(registry Registry, checker *health.Checker, snapshots SnapshotSource, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{registry: registry, checker: checker, snapshots: snapshots, logger: logger}
}

// Routes builds the router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/torrents", h.handleListAll)
		if h.snapshots != nil {
			r.Get("/snapshots", h.handleSnapshots)
		}
		r.Get("/backends", h.handleBackends)

		r.Route("/backends/{backend}", func(r chi.Router) {
			r.Use(h.backendContext)

			r.Get("/stats", h.handleStats)
			r.Route("/torrents", func(r chi.Router) {
				r.Get("/", h.handleList)
				r.Post("/", h.handleAddURL)
				r.Post("/files", h.handleAddFile)
				r.Post("/start", h.handleStart)
				r.Post("/stop", h.handleStop)
				r.Post("/check", h.handleCheck)
				r.Post("/delete", h.handleDelete)
				r.Post("/move", h.handleMove)
				r.Post("/tags", h.handleTags)
				r.Post("/priority", h.handlePriority)

				r.Get("/{hash}", h.handleGet)
				r.Get("/{hash}/trackers", h.handleTrackers)
				r.Post("/{hash}/files/priority", h.handleFilePriority)
			})
		})
	})
	return r
}

type contextKey string

const backendKey contextKey = "backend"

// backendContext resolves {backend} and answers 404 for unknown names.
func (h *Handler) backendContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "backend")
		b, err := h.registry.Get(name)
		if err != nil {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error(), Kind: core.KindValidation.String()})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), backendKey, b)))
	})
}

func getBackend(ctx context.Context) *torrent.Backend {
	b, _ := ctx.Value(backendKey).(*torrent.Backend)
	return b
}

// requestLogger attaches a request-scoped logger to the context and logs
// every request once it completes.
func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := h.logger.With(slog.String("request_id", middleware.GetReqID(r.Context())))
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r.WithContext(config.ContextWithLogger(r.Context(), logger)))

		logger.Debug("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("duration", time.Since(start)),
		)
	})
}

type errorResponse struct {
	Error   string `json:"error"`
	Kind    string `json:"kind"`
	Backend string `json:"backend,omitempty"`
	Op      string `json:"op,omitempty"`
	Code    int    `json:"code,omitempty"`
}

// statusFor maps an error kind to an HTTP status.
func statusFor(err error) int {
	switch core.KindOf(err) {
	case core.KindValidation:
		return http.StatusBadRequest
	case core.KindConnection:
		return http.StatusServiceUnavailable
	case core.KindFault, core.KindProtocol:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	resp := errorResponse{Error: err.Error(), Kind: core.KindOf(err).String()}
	var e *core.Error
	if errors.As(err, &e) {
		resp.Backend = e.Backend
		resp.Op = e.Op
		resp.Code = e.Code
	}
	if status >= http.StatusInternalServerError {
		config.LoggerFromContext(r.Context()).Warn("request failed",
			slog.String("path", r.URL.Path), slog.String("error", err.Error()))
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decode reads a JSON body into v. Unknown fields are rejected.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return core.NewValidationError("invalid request body: %v", err)
	}
	return nil
}
