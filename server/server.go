// Package server exposes the orchestrator over HTTP: signal dispatch,
// diagnostic gate validation, dead-letter inspection and replay, the audit
// trail, health, and Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/planlens/planlens/deadletter"
	"github.com/planlens/planlens/orchestrator"
	"github.com/planlens/planlens/signal"
)

// maxBodyBytes caps dispatch request bodies.
const maxBodyBytes = 4 << 20

// Server serves the orchestrator's HTTP API.
type Server struct {
	orch   *orchestrator.Orchestrator
	logger *slog.Logger
	addr   string
	http   *http.Server
}

// New creates a server for the given orchestrator.
func New(orch *orchestrator.Orchestrator, addr string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{orch: orch, logger: logger, addr: addr}

	registry := prometheus.NewRegistry()
	registry.MustRegister(NewCollector(orch))

	mux := http.NewServeMux()
	mux.HandleFunc("/api/signals", s.handleDispatch)
	mux.HandleFunc("/api/signals/validate", s.handleValidate)
	mux.HandleFunc("/api/deadletters", s.handleDeadLetters)
	mux.HandleFunc("/api/deadletters/", s.handleDeadLetterReplay)
	mux.HandleFunc("/api/audit", s.handleAudit)
	mux.HandleFunc("/api/consumers", s.handleConsumers)
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	s.http = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// ListenAndServe runs the server until the listener fails or Shutdown is
// called.
func (s *Server) ListenAndServe() error {
	s.logger.Info("HTTP server listening", slog.String("addr", s.addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Handler returns the server's root handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// handleDispatch handles POST /api/signals - dispatch a wire-format signal.
func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sig, ok := s.readSignal(w, r)
	if !ok {
		return
	}

	receipt := s.orch.Dispatch(r.Context(), sig)
	writeJSON(w, http.StatusOK, receipt)
}

// handleValidate handles POST /api/signals/validate - run the diagnostic
// gates without dispatching.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sig, ok := s.readSignal(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, s.orch.ValidateAllGates(sig, nil))
}

// handleDeadLetters handles GET /api/deadletters?reason= - list the
// in-memory dead-letter queue.
func (s *Server) handleDeadLetters(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	reason := deadletter.Reason(r.URL.Query().Get("reason"))
	if reason != "" && !reason.IsValid() {
		writeJSONError(w, http.StatusBadRequest, "invalid_reason",
			fmt.Sprintf("unknown reason code %q", reason))
		return
	}

	letters := s.orch.DeadLetters(reason)
	if letters == nil {
		letters = []deadletter.DeadLetter{}
	}
	writeJSON(w, http.StatusOK, letters)
}

// handleDeadLetterReplay handles POST /api/deadletters/{id}/replay.
func (s *Server) handleDeadLetterReplay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/deadletters/")
	id, action, found := strings.Cut(rest, "/")
	if !found || action != "replay" || id == "" {
		writeJSONError(w, http.StatusNotFound, "not_found", "expected /api/deadletters/{id}/replay")
		return
	}

	receipt, err := s.orch.ReplayDeadLetter(r.Context(), id)
	if err != nil {
		writeJSONError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// handleAudit handles GET /api/audit?signal_id= and DELETE /api/audit.
func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		entries := s.orch.AuditLog(r.URL.Query().Get("signal_id"))
		if entries == nil {
			entries = []orchestrator.AuditEntry{}
		}
		writeJSON(w, http.StatusOK, entries)
	case http.MethodDelete:
		s.orch.ClearAuditLog()
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleConsumers handles GET /api/consumers - registry snapshot.
func (s *Server) handleConsumers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.orch.Consumers())
}

// handleHealth handles GET /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	health := s.orch.HealthCheck()
	status := http.StatusOK
	if health.Status != orchestrator.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}

// handleStats handles GET /api/stats - raw counter snapshot.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.orch.MetricsSnapshot())
}

// readSignal decodes a wire-format signal from the request body, writing an
// error response and returning false on failure.
func (s *Server) readSignal(w http.ResponseWriter, r *http.Request) (*signal.Signal, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "read_error", "Failed to read request body")
		return nil, false
	}

	sig, err := signal.Decode(body)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "decode_error", "Invalid signal: "+err.Error())
		return nil, false
	}
	return sig, true
}

// ErrorResponse is a standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: message})
}
