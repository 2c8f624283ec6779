package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/Adithya-Monish-Kumar-K/astra-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/astra-search/pkg/logger"
)

// Server is the side listener of one astra binary. It serves the Prometheus
// scrape endpoint plus any routes mounted with Handle, so processes without
// an API port (the indexer) still expose health.
type Server struct {
	service string
	mux     *http.ServeMux
	routes  []string
	srv     *http.Server
	logger  *slog.Logger
}

// NewServer builds the server for service on cfg.Port. It does not listen
// until Start.
func NewServer(cfg config.MetricsConfig, service string) *Server {
	s := &Server{
		service: service,
		mux:     http.NewServeMux(),
		logger:  logger.WithComponent("metrics-server").With("service", service),
	}
	s.Handle("/metrics", Handler())
	s.mux.HandleFunc("/", s.index)
	s.srv = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Handle mounts h on pattern. Call it before Start.
func (s *Server) Handle(pattern string, h http.Handler) {
	s.mux.Handle(pattern, h)
	s.routes = append(s.routes, pattern)
}

// Handler returns the routing handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start listens in the background.
func (s *Server) Start() {
	go func() {
		s.logger.Info("metrics server listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server error", "error", err)
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// index lists the mounted routes.
func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	routes := append([]string(nil), s.routes...)
	sort.Strings(routes)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"service": s.service,
		"routes":  routes,
	})
}
