// Package httpserver exposes the optional local status/metrics surface
// (SPEC_FULL.md DOMAIN STACK): liveness, Prometheus scraping, and a
// read-only view of a run's workflow context by run id.
package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hyperion-agent/contractforge/internal/artifactstore"
	"github.com/hyperion-agent/contractforge/internal/history"
	"github.com/hyperion-agent/contractforge/internal/model"
)

// Server is the status/metrics HTTP surface for an already-running
// orchestrator host. It never drives a workflow itself.
type Server struct {
	store   *artifactstore.Store
	history *history.Store
	http    *http.Server
}

// New builds a Server listening on addr. history may be nil (history
// disabled); every route degrades gracefully when it is.
func New(addr string, store *artifactstore.Store, hist *history.Store) *Server {
	s := &Server{store: store, history: hist}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(30 * time.Second))

	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/context/{runID}", s.handleContext)
	r.Get("/runs", s.handleListRuns)
	r.Get("/artifacts/{runID}/{name}", s.handleArtifact)

	s.http = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// ListenAndServe blocks serving until the server is shut down.
func (s *Server) ListenAndServe() error {
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully drains in-flight requests within ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleContext serves the durable workflow-context record for a run from
// history, answering 501 when history is disabled. The artifact store's
// context.json is served separately, through /artifacts/{runID}/context.json.
func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	runID := model.RunID(chi.URLParam(r, "runID"))
	if s.history == nil {
		http.Error(w, "run history is not enabled", http.StatusNotImplemented)
		return
	}
	state, err := s.history.Get(r.Context(), runID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if state == nil {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(state)
}

// readableArtifacts is the allowlist of artifact names servable over HTTP.
// source.sol is deliberately excluded: it may carry proprietary contract
// code and is intended for local/CLI access only.
var readableArtifacts = map[string]bool{
	"audit.json":        true,
	"deployment.json":   true,
	"verification.json": true,
	"context.json":       true,
}

func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	runID := model.RunID(chi.URLParam(r, "runID"))
	name := chi.URLParam(r, "name")
	if !readableArtifacts[name] {
		http.Error(w, "artifact not servable over HTTP", http.StatusForbidden)
		return
	}
	data, err := s.store.ReadArtifact(runID, name)
	if err != nil {
		http.Error(w, "artifact not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		http.Error(w, "run history is not enabled", http.StatusNotImplemented)
		return
	}
	runs, err := s.history.List(r.Context(), 50)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(runs)
}
