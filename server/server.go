// Package server exposes the engine over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("server")

// RouteRegistrar is implemented by components that contribute routes to the
// server's router.
type RouteRegistrar interface {
	RegisterRoutes(r chi.Router)
}

// Config carries the HTTP server settings.
type Config struct {
	// ListenAddr is the address and port to listen on.
	ListenAddr string

	// ReadTimeout bounds reading the entire request, including the body.
	ReadTimeout time.Duration

	// WriteTimeout bounds writes of the response.
	WriteTimeout time.Duration

	// GracefulShutdownDuration is the maximum time to wait for in-flight
	// requests during shutdown.
	GracefulShutdownDuration time.Duration
}

// Server wraps a chi router with health endpoints and graceful shutdown.
type Server struct {
	cfg     Config
	isReady atomic.Bool
	srv     *http.Server
}

// New creates a server and lets each registrar contribute its routes.
func New(cfg Config, registrars ...RouteRegistrar) *Server {
	srv := &Server{cfg: cfg}

	mux := chi.NewRouter()
	mux.Use(middleware.RequestID)
	mux.Use(middleware.RealIP)
	mux.Use(middleware.Recoverer)

	for _, registrar := range registrars {
		registrar.RegisterRoutes(mux)
	}

	mux.Get("/livez", srv.handleLivenessCheck)
	mux.Get("/readyz", srv.handleReadinessCheck)

	srv.srv = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	srv.isReady.Store(true)
	return srv
}

func (s *Server) handleLivenessCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"alive"}`))
}

func (s *Server) handleReadinessCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if !s.isReady.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"not ready"}`))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}

// RunInBackground starts the listener in its own goroutine.
func (s *Server) RunInBackground() {
	go func() {
		log.Infow("starting HTTP server", "listenAddress", s.cfg.ListenAddr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw("HTTP server failed", "err", err)
		}
	}()
}

// Shutdown stops accepting new requests and drains in-flight ones.
func (s *Server) Shutdown() {
	s.isReady.Store(false)
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.GracefulShutdownDuration)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		log.Errorw("graceful shutdown failed", "err", err)
		return
	}
	log.Info("HTTP server stopped")
}
