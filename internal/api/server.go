// Package api exposes the verification core via REST/JSON for the
// desktop shell, plus a WebSocket event stream and Prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vigil/backend/internal/audit"
	"github.com/vigil/backend/internal/core"
	"github.com/vigil/backend/internal/enrollment"
	"github.com/vigil/backend/internal/events"
	"github.com/vigil/backend/internal/lease"
	"github.com/vigil/backend/internal/session"
)

// Server wires the session service, enroller and lease table to HTTP.
type Server struct {
	sessions *session.Service
	enroller *enrollment.Enroller
	leases   *lease.Manager
	audit    audit.Store // nil when no postgres configured
	bus      *events.Bus

	httpServer *http.Server
}

// NewServer assembles the API layer.
func NewServer(
	sessions *session.Service,
	enroller *enrollment.Enroller,
	leases *lease.Manager,
	auditStore audit.Store,
	bus *events.Bus,
) *Server {
	return &Server{
		sessions: sessions,
		enroller: enroller,
		leases:   leases,
		audit:    auditStore,
		bus:      bus,
	}
}

// Handler builds the full route table.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/sessions", s.handleStartSession).Methods("POST")
	api.HandleFunc("/sessions", s.handleListSessions).Methods("GET")
	api.HandleFunc("/sessions/{id}", s.handleGetSession).Methods("GET")
	api.HandleFunc("/sessions/{id}", s.handleStopSession).Methods("DELETE")
	api.HandleFunc("/sessions/{id}/reauth", s.handleConfirmReauth).Methods("POST")
	api.HandleFunc("/sessions/{id}/audit", s.handleSessionAudit).Methods("GET")
	api.HandleFunc("/enroll", s.handleEnroll).Methods("POST")
	api.HandleFunc("/leases", s.handleLeases).Methods("GET")

	r.HandleFunc("/ws/events", s.handleEventStream)

	r.Use(corsMiddleware)
	return r
}

// Start runs the HTTP server (blocking).
func (s *Server) Start(port string) error {
	s.httpServer = &http.Server{
		Addr:         ":" + port,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	slog.Info("API server listening", "port", port)
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests and unblocks Start.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "healthy",
		"service":         "vigil-backend",
		"active_sessions": len(s.sessions.List()),
	})
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	id, err := s.sessions.Start(req.UserID)
	if err != nil {
		if errors.Is(err, lease.ErrResourceBusy) {
			// The caller must stop the holding session first; the core
			// never pre-empts the device.
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"session_id": id})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sessions.List())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sched, ok := s.sessions.Get(mux.Vars(r)["id"])
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session": sched.Snapshot(),
		"history": sched.History(),
	})
}

func (s *Server) handleStopSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Stop(mux.Vars(r)["id"]); err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

func (s *Server) handleConfirmReauth(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.ConfirmReauthentication(mux.Vars(r)["id"]); err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "confirmed"})
}

func (s *Server) handleSessionAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		http.Error(w, "audit store not configured", http.StatusServiceUnavailable)
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	transitions, err := s.audit.RecentTransitions(r.Context(), mux.Vars(r)["id"], limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, transitions)
}

func (s *Server) handleEnroll(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID  string   `json:"user_id"`
		Signals []string `json:"signals"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	kinds := core.SignalKinds
	if len(req.Signals) > 0 {
		kinds = make([]core.SignalKind, 0, len(req.Signals))
		for _, raw := range req.Signals {
			kinds = append(kinds, core.SignalKind(raw))
		}
	}

	if err := s.enroller.Enroll(r.Context(), req.UserID, kinds); err != nil {
		switch {
		case errors.Is(err, lease.ErrResourceBusy):
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		case errors.Is(err, enrollment.ErrCaptureFailed):
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "enrolled",
		"user_id": req.UserID,
		"signals": kinds,
	})
}

func (s *Server) handleLeases(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.leases.Snapshot())
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("response encode failed", "error", err)
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
