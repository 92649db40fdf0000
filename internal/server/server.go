package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazz-dev/watchdog/internal/dashboard"
	"github.com/hazz-dev/watchdog/internal/status"
	"github.com/hazz-dev/watchdog/internal/storage"
	"github.com/hazz-dev/watchdog/internal/urlutil"
)

// defaultResultsWindow is used when /results has no since parameter.
const defaultResultsWindow = 24 * time.Hour

// maxBodyBytes bounds POST /api/targets request bodies.
const maxBodyBytes = 64 << 10

// ServerStore defines the storage operations the server needs.
type ServerStore interface {
	UpsertTarget(ctx context.Context, rawURL string) (storage.Target, bool, error)
	ListTargets(ctx context.Context) ([]storage.Target, error)
	GetTarget(ctx context.Context, id string) (storage.Target, error)
	ResultsSince(ctx context.Context, targetID string, since time.Time) ([]storage.Result, error)
}

// Snapshotter computes the current status of every target.
type Snapshotter interface {
	Snapshots(ctx context.Context) ([]status.Snapshot, error)
}

// Server holds the chi router and its dependencies.
type Server struct {
	store    ServerStore
	status   Snapshotter
	hub      *Hub
	router   chi.Router
	logger   *slog.Logger
	now      func() time.Time
	interval time.Duration
}

// New creates a new Server and registers all routes.
func New(store ServerStore, snaps Snapshotter, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		store:  store,
		status: snaps,
		router: chi.NewRouter(),
		logger: logger,
		now:    time.Now,
	}
	s.hub = newHub(s.displaySnapshots, logger)
	s.registerRoutes()
	return s
}

// Router returns the chi router (for mounting or testing).
func (s *Server) Router() chi.Router {
	return s.router
}

// SetProbeInterval sets the probe interval reported by /api/health.
func (s *Server) SetProbeInterval(d time.Duration) {
	s.interval = d
}

// Hub returns the WebSocket hub that streams status snapshots.
func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) registerRoutes() {
	r := s.router
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/targets", s.handleListTargets)
	r.Post("/api/targets", s.handleCreateTarget)
	r.Get("/api/targets/{id}/results", s.handleTargetResults)
	r.Get("/api/status", s.handleStatus)
	r.Get("/api/ws", s.hub.ServeHTTP)
	r.Get("/metrics", s.handleMetrics)

	// Everything else is the embedded dashboard.
	r.Handle("/*", dashboard.Handler())
}

// --- Response helpers ---

type envelope struct {
	Data  interface{} `json:"data"`
	Error string      `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Error: msg})
}

// displaySnapshots returns snapshots rounded for presentation.
func (s *Server) displaySnapshots(ctx context.Context) ([]status.Snapshot, error) {
	snaps, err := s.status.Snapshots(ctx)
	if err != nil {
		return nil, err
	}
	for i := range snaps {
		snaps[i] = snaps[i].Display()
	}
	return snaps, nil
}

// --- Handlers ---

type healthResponse struct {
	Status    string    `json:"status"`
	Time      time.Time `json:"time"`
	IntervalS float64   `json:"interval_s"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(healthResponse{
		Status:    "ok",
		Time:      s.now().UTC(),
		IntervalS: s.interval.Seconds(),
	})
}

func (s *Server) handleListTargets(w http.ResponseWriter, r *http.Request) {
	targets, err := s.store.ListTargets(r.Context())
	if err != nil {
		s.logger.Error("ListTargets", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if targets == nil {
		targets = []storage.Target{}
	}
	writeJSON(w, http.StatusOK, targets)
}

type createTargetRequest struct {
	URL string `json:"url"`
}

func (s *Server) handleCreateTarget(w http.ResponseWriter, r *http.Request) {
	var req createTargetRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	target, created, err := s.store.UpsertTarget(r.Context(), req.URL)
	if errors.Is(err, urlutil.ErrInvalidURL) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.logger.Error("UpsertTarget", "url", req.URL, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	code := http.StatusOK
	if created {
		code = http.StatusCreated
		s.logger.Info("target registered", "id", target.ID, "url", target.URL)
	}
	writeJSON(w, code, target)
}

type resultsResponse struct {
	Target  storage.Target   `json:"target"`
	Since   time.Time        `json:"since"`
	Results []storage.Result `json:"results"`
}

func (s *Server) handleTargetResults(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	since := s.now().Add(-defaultResultsWindow)
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid since parameter")
			return
		}
		since = t
	}

	target, err := s.store.GetTarget(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "target not found")
		return
	}
	if err != nil {
		s.logger.Error("GetTarget", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	results, err := s.store.ResultsSince(r.Context(), id, since)
	if err != nil {
		s.logger.Error("ResultsSince", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if results == nil {
		results = []storage.Result{}
	}

	writeJSON(w, http.StatusOK, resultsResponse{
		Target:  target,
		Since:   since.UTC(),
		Results: results,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snaps, err := s.displaySnapshots(r.Context())
	if err != nil {
		s.logger.Error("Snapshots", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, snaps)
}

// --- Middleware ---

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

// Hijack lets WebSocket upgrades pass through the logger.
func (sw *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := sw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	sw.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration", time.Since(start),
		)
	})
}
