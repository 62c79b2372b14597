// Copyright 2024-2026 Aiku AI

// Package admin serves the local operator API: config reload, relay status,
// Prometheus metrics and a health probe.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/aiku/mcrelay/pkg/relay"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// ReloadResult is the JSON body of a successful reload.
type ReloadResult struct {
	Status   relay.Status `json:"status"`
	Warnings []string     `json:"warnings"`
}

// Deps are the operations exposed by the API.
type Deps struct {
	// Reload re-reads the config file and applies it.
	Reload func(ctx context.Context) (ReloadResult, error)
	Status func() relay.Status
	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
}

// NewRouter builds the admin HTTP handler.
func NewRouter(log zerolog.Logger, deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer, requestLogger(log))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Route("/api", func(r chi.Router) {
		r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, deps.Status())
		})
		r.Post("/reload", func(w http.ResponseWriter, req *http.Request) {
			res, err := deps.Reload(req.Context())
			if err != nil {
				log.Warn().Err(err).Msg("Reload via admin API failed")
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
				return
			}
			if res.Warnings == nil {
				res.Warnings = []string{}
			}
			writeJSON(w, http.StatusOK, res)
		})
	})
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Msg("Admin request")
		})
	}
}

// Server runs the admin API on a TCP address.
type Server struct {
	log zerolog.Logger
	srv *http.Server
}

// NewServer creates a server listening on addr.
func NewServer(log zerolog.Logger, addr string, deps Deps) *Server {
	log = log.With().Str("component", "admin").Logger()
	return &Server{
		log: log,
		srv: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(log, deps),
			ReadHeaderTimeout: readHeaderTimeout,
		},
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("admin listen on %s: %w", s.srv.Addr, err)
	}
	s.log.Info().Str("addr", ln.Addr().String()).Msg("Admin API listening")

	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("admin shutdown: %w", err)
	}
	return nil
}
