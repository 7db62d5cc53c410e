// Package server exposes the migration job control surface over HTTP and
// streams progress events over WebSocket.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/avollmer/sitegraft/internal/metrics"
	"github.com/avollmer/sitegraft/internal/pipeline"
	"github.com/avollmer/sitegraft/internal/service"
	"github.com/avollmer/sitegraft/internal/store"
)

// wsWriteTimeout bounds a single WebSocket write.
const wsWriteTimeout = 10 * time.Second

// Server wires the migration service, the event hub and the state store
// into an HTTP handler.
type Server struct {
	svc    *service.MigrationService
	hub    *Hub
	state  store.Store
	stats  *metrics.Collector
	logger *slog.Logger

	upgrader websocket.Upgrader
}

// New creates the HTTP server. stats may be nil, in which case a private
// collector is used.
func New(svc *service.MigrationService, hub *Hub, state store.Store, stats *metrics.Collector, logger *slog.Logger) *Server {
	if stats == nil {
		stats = metrics.NewCollector()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		svc:    svc,
		hub:    hub,
		state:  state,
		stats:  stats,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // local tool, all origins allowed
			},
		},
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("POST /jobs", s.handleStartJob)
	mux.HandleFunc("GET /jobs", s.handleListJobs)
	mux.HandleFunc("GET /jobs/{id}", s.handleGetJob)
	mux.HandleFunc("GET /jobs/{id}/report", s.handleGetReport)
	mux.HandleFunc("POST /resume", s.handleResume)
	mux.HandleFunc("GET /progress", s.handleProgress)
	mux.HandleFunc("GET /state/keys", s.handleStateKeys)
	mux.HandleFunc("GET /state/{key...}", s.handleStateGet)
	mux.HandleFunc("GET /ws/{id}", s.handleWebSocket)

	return loggingMiddleware(s.logger, s.stats)(mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"backend": s.state.Backend(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.stats.Snapshot())
}

type startRequest struct {
	Source string `json:"source"`
	Mode   string `json:"mode"`
}

func (s *Server) handleStartJob(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Source == "" {
		writeError(w, http.StatusBadRequest, "source is required")
		return
	}
	if req.Mode == "" {
		req.Mode = pipeline.ModeURL
	}

	job := s.svc.Start(r.Context(), req.Source, req.Mode)
	writeJSON(w, http.StatusAccepted, job.Snapshot())
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Manager().ListJobs())
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job := s.svc.Manager().GetJob(r.PathValue("id"))
	if job == nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job.Snapshot())
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	job := s.svc.Manager().GetJob(r.PathValue("id"))
	if job == nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	snapshot := job.Snapshot()
	if snapshot.Report == nil {
		writeError(w, http.StatusConflict, "job has no report yet")
		return
	}
	writeJSON(w, http.StatusOK, snapshot.Report)
}

type resumeRequest struct {
	Source string `json:"source"`
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	var req resumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Source == "" {
		writeError(w, http.StatusBadRequest, "source is required")
		return
	}

	job, err := s.svc.Resume(r.Context(), req.Source)
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, job.Snapshot())
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	source := r.URL.Query().Get("source")
	if source == "" {
		writeError(w, http.StatusBadRequest, "source query parameter is required")
		return
	}
	writeJSON(w, http.StatusOK, s.svc.Checkpoints().GetProgress(r.Context(), source))
}

func (s *Server) handleStateKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := s.state.ListKeys(r.Context(), r.URL.Query().Get("prefix"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"keys": keys})
}

func (s *Server) handleStateGet(w http.ResponseWriter, r *http.Request) {
	raw, ok := s.state.Get(r.Context(), r.PathValue("key"))
	if !ok {
		writeError(w, http.StatusNotFound, "key not found")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

// handleWebSocket streams a job's progress events, replaying the backlog on
// connect.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "job_id", jobID, "error", err)
		return
	}
	defer conn.Close()

	backlog, events, unsubscribe := s.hub.Subscribe(jobID)
	defer unsubscribe()

	for _, event := range backlog {
		if err := s.writeEvent(conn, event); err != nil {
			return
		}
	}

	// read pump, only to observe the close
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := s.writeEvent(conn, event); err != nil {
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) writeEvent(conn *websocket.Conn, event pipeline.Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(event)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
