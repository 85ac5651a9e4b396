// Package httpapi exposes the read-only status surface: liveness, current
// service status and the recent event feed.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tennolabs/tennowatch/worldstate"
)

// StatusSource is what the API reads from the running service.
type StatusSource interface {
	Status() worldstate.Status
	Recent() []worldstate.Event
}

// Config configures the status server.
type Config struct {
	// ListenAddr to bind, e.g. ":8686". Required to start the server.
	ListenAddr string
	// StaleAfter marks the status as stale when the last successful cycle
	// is older than this. Default: 5 minutes.
	StaleAfter time.Duration
}

func (c *Config) defaults() {
	if c.StaleAfter <= 0 {
		c.StaleAfter = 5 * time.Minute
	}
}

// Server serves the status API.
type Server struct {
	config Config
	source StatusSource
	logger *slog.Logger
	http   *http.Server
}

// New creates a status Server.
func New(cfg Config, source StatusSource, logger *slog.Logger) *Server {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{config: cfg, source: source, logger: logger}
	s.http = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 16,
	}
	return s
}

// Router builds the route tree. Exposed for tests.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/v1/status", s.handleStatus)
	r.Get("/v1/events", s.handleEvents)
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("status api listening", "addr", s.config.ListenAddr)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutCtx); err != nil {
			return err
		}
		return ctx.Err()
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusResponse wraps the service status with a derived staleness flag.
type statusResponse struct {
	worldstate.Status
	Stale bool `json:"stale"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.source.Status()
	stale := st.LastSuccess.IsZero() ||
		time.Since(st.LastSuccess) > s.config.StaleAfter
	writeJSON(w, http.StatusOK, statusResponse{Status: st, Stale: stale})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	events := s.source.Recent()
	if events == nil {
		events = []worldstate.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":  len(events),
		"events": events,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
