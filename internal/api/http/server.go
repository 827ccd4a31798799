package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"gitlab.com/nevasik7/alerting/logger"

	"github.com/a6b0x/chain-pipe/internal/api/http/mw"
	"github.com/a6b0x/chain-pipe/internal/config"
	"github.com/a6b0x/chain-pipe/internal/metrics"
	"github.com/a6b0x/chain-pipe/pkg/httputil"
)

// CheckFunc reports the health of a service's external dependencies.
type CheckFunc func(ctx context.Context) error

// Server is the per-service tech endpoint: liveness, readiness and
// Prometheus metrics. These pipeline services have no user-facing API.
type Server struct {
	log   logger.Logger
	srv   *http.Server
	check CheckFunc
}

func NewServer(log logger.Logger, cfg *config.HTTPConfig, check CheckFunc) *Server {
	s := &Server{log: log, check: check}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(mw.NewLogging(log).Handler)

	r.Get("/healthz", s.healthz)
	r.Get("/readiness", s.readiness)
	r.Mount("/metrics", metrics.Handler())

	addr := ":8080"
	readTimeout := 5 * time.Second
	writeTimeout := 10 * time.Second
	if cfg != nil {
		if cfg.Addr != "" {
			addr = cfg.Addr
		}
		if cfg.ReadTimeout > 0 {
			readTimeout = cfg.ReadTimeout
		}
		if cfg.WriteTimeout > 0 {
			writeTimeout = cfg.WriteTimeout
		}
	}

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}
	return s
}

func (s *Server) Start() error {
	s.log.Infof("Tech HTTP server listening on %s", s.srv.Addr)
	return s.srv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	if err := httputil.JSON(w, http.StatusOK, map[string]any{}, nil); err != nil {
		s.log.Errorf("Healthz handler error: %s", err.Error())
	}
}

func (s *Server) readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	if s.check != nil {
		if err := s.check(ctx); err != nil {
			if wErr := httputil.Error(w, r, http.StatusServiceUnavailable, "dependencies_unhealthy", "dependencies check failed", map[string]any{
				"error": err.Error(),
			}); wErr != nil {
				s.log.Errorf("Readiness handler error: %s", wErr.Error())
			}
			return
		}
	}

	if err := httputil.JSON(w, http.StatusOK, map[string]string{"dependencies": "healthy"}, nil); err != nil {
		s.log.Errorf("Readiness handler error: %s", err.Error())
	}
}
