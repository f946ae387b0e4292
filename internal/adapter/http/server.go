// Package http serves liveness, readiness, progress and Prometheus metrics
// for a running batch.
package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/compound-floodrisk/sfincs-batch/internal/pipeline"
)

const readinessTimeout = 2 * time.Second

// Batch is the view of a running batch the server exposes.
type Batch interface {
	CheckReadiness(ctx context.Context) error
	Progress() pipeline.Progress
}

type statusBody struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Server is the monitoring endpoint of one batch run.
type Server struct {
	srv    *http.Server
	batch  Batch
	logger *slog.Logger
}

// NewServer routes /healthz, /readyz, /progress and /metrics on addr.
// Metrics are gathered from g.
func NewServer(addr string, batch Batch, g prometheus.Gatherer, logger *slog.Logger) *Server {
	s := &Server{batch: batch, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		s.reply(w, http.StatusOK, statusBody{Status: "healthy"})
	})
	mux.HandleFunc("GET /readyz", s.ready)
	mux.HandleFunc("GET /progress", func(w http.ResponseWriter, _ *http.Request) {
		s.reply(w, http.StatusOK, s.batch.Progress())
	})
	mux.Handle("GET /metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
	return s
}

// Start listens until Shutdown, then returns http.ErrServerClosed.
func (s *Server) Start() error {
	s.logger.Info("monitoring server listening", "addr", s.srv.Addr)
	return s.srv.ListenAndServe()
}

// Shutdown stops accepting requests and waits for in-flight ones until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.srv.Handler.ServeHTTP(w, r)
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()
	if err := s.batch.CheckReadiness(ctx); err != nil {
		s.reply(w, http.StatusServiceUnavailable, statusBody{Status: "not ready", Error: err.Error()})
		return
	}
	s.reply(w, http.StatusOK, statusBody{Status: "ready"})
}

func (s *Server) reply(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Debug("write response failed", "error", err)
	}
}
