package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/rs/zerolog"

	"trulyinvoice/internal/config"
	"trulyinvoice/internal/infra/api/apiv1"
	"trulyinvoice/internal/infra/metrics"
)

// Check reports whether a dependency is usable. Checks back /ready.
type Check func(ctx context.Context) error

// Server is the public HTTP listener: health, readiness, metrics and the
// JSON API.
type Server struct {
	cfg    config.HTTPConfig
	api    *apiv1.Server
	checks map[string]Check
	log    *zerolog.Logger
	srv    *http.Server
}

func NewServer(cfg config.HTTPConfig, api *apiv1.Server, checks map[string]Check, logger *zerolog.Logger) *Server {
	l := logger.With().Str("component", "http").Logger()
	s := &Server{cfg: cfg, api: api, checks: checks, log: &l}
	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.Handler(),
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
	}
	return s
}

// Handler builds the router. Exposed for tests.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(
		TraceID(),
		RequestLog(s.log),
		Recover(s.log),
		CORS(s.cfg.AllowedOrigins),
	)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Get("/ready", s.ready)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(Timeout(s.cfg.RequestTimeout))
		apiv1.RegisterAPIV1(r, s.api)
	})
	return r
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	out := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			s.log.Warn().Err(err).Str("check", name).Msg("readiness check failed")
			out[name] = "down"
			status = http.StatusServiceUnavailable
			continue
		}
		out[name] = "up"
	}
	render.Status(r, status)
	render.JSON(w, r, out)
}

// Start blocks until the listener stops. A graceful Shutdown is not an error.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.srv.Addr).Msg("http server listening")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
