package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"media-optimizer/internal/logging"
	"media-optimizer/internal/middleware"
)

// WriteTextfile writes the default registry in the node_exporter textfile
// format. The write goes through a temp file so collectors never read a
// partial file.
func WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("write metrics textfile %s: %w", path, err)
	}
	return nil
}

// NewRouter returns the router served while a build runs.
func NewRouter() *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.Logger)
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	}).Methods("GET")
	return r
}

// Server exposes /metrics and /healthz for scraping long builds.
type Server struct {
	srv *http.Server
}

// NewServer creates a server listening on addr (e.g. ":9090").
func NewServer(addr string) *Server {
	return &Server{
		srv: &http.Server{
			Addr:        addr,
			Handler:     NewRouter(),
			ReadTimeout: 15 * time.Second,
			IdleTimeout: 60 * time.Second,
		},
	}
}

// Start serves in the background. Listen errors are logged, not fatal.
func (s *Server) Start() {
	go func() {
		logging.Info("Metrics endpoint listening on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Warn("Metrics server error: %v", err)
		}
	}()
}

// Shutdown stops the server, waiting at most until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
