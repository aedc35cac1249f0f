// Package api serves the read-only introspection surface: the proxy
// registry, recent request records and aggregate stats. It never mutates
// anything.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	jsoniter "github.com/json-iterator/go"

	"github.com/thushan/pxlb/internal/adapter/registry"
	"github.com/thushan/pxlb/internal/core/ports"
	"github.com/thushan/pxlb/internal/logger"
	"github.com/thushan/pxlb/internal/version"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	defaultRecentLimit = 100
	maxRecentLimit     = 1000
)

type Server struct {
	srv       *http.Server
	registry  *registry.Registry
	sink      ports.TelemetrySink
	collector ports.StatsCollector
	logger    *logger.StyledLogger
}

func New(host string, port int, reg *registry.Registry, sink ports.TelemetrySink, collector ports.StatsCollector, log *logger.StyledLogger) *Server {
	s := &Server{
		registry:  reg,
		sink:      sink,
		collector: collector,
		logger:    log,
	}

	r := chi.NewRouter()
	r.Get("/", s.handleRoot)
	r.Get("/proxies", s.handleProxies)
	r.Get("/requests", s.handleRequests)
	r.Get("/stats", s.handleStats)

	s.srv = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Start begins serving in the background.
func (s *Server) Start() {
	s.logger.InfoWithBind("API listening on", s.srv.Addr)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()
}

// Stop shuts the API server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]string{
		"name":    version.Name,
		"version": version.Version,
		"status":  "ok",
	})
}

func (s *Server) handleProxies(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.registry.Snapshot())
}

func (s *Server) handleRequests(w http.ResponseWriter, r *http.Request) {
	limit := defaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, maxRecentLimit)
	}

	records, err := s.sink.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to read request records", "error", err)
		http.Error(w, "failed to read request records", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, records)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]any{
		"summary": s.collector.GetSummary(),
		"proxies": s.collector.GetProxyStats(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode API response", "error", err)
	}
}
