// Package api implements the qlog-kv HTTP server: a whole-value JSON store
// addressed by bucket and key, with a websocket change feed per key.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/bermanqa/qlog/internal/serverdb"
)

// Server is the HTTP API server for qlog-kv.
type Server struct {
	config  Config
	http    *http.Server
	store   *serverdb.ServerDB
	metrics *Metrics
	hub     *Hub
	limiter *RateLimiter
	logger  *slog.Logger
	addr    string

	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer creates a new Server with the given config and store.
func NewServer(cfg Config, store *serverdb.ServerDB) (*Server, error) {
	if store == nil {
		return nil, fmt.Errorf("nil store")
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultConfig().MaxBodyBytes
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:  cfg,
		store:   store,
		metrics: NewMetrics(),
		hub:     NewHub(),
		limiter: NewRateLimiter(ctx),
		logger:  slog.Default(),
		ctx:     ctx,
		cancel:  cancel,
	}

	s.http = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s, nil
}

// Handler returns the full handler chain, for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start begins listening for HTTP requests (non-blocking).
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	s.addr = ln.Addr().String()

	go func() {
		if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server", "err", err)
		}
	}()
	return nil
}

// Addr returns the bound listen address once started.
func (s *Server) Addr() string {
	return s.addr
}

// Shutdown disconnects watchers and gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	s.hub.Close()
	return s.http.Shutdown(ctx)
}

// routes builds the HTTP handler with all routes and middleware.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Health & metrics
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /metricz", s.handleMetrics)

	// Key-value
	mux.HandleFunc("GET /{bucket}/{key}", s.handleGet)
	mux.HandleFunc("POST /{bucket}/{key}", s.handlePut)
	mux.HandleFunc("GET /{bucket}/{key}/watch", s.handleWatch)

	return chain(mux,
		recoveryMiddleware,
		requestIDMiddleware,
		loggerMiddleware(s.logger),
		metricsMiddleware(s.metrics),
		loggingMiddleware,
		corsMiddleware(s.config.CORSAllowedOrigins),
		writeRateLimitMiddleware(s.limiter, s.config.RateLimitWrite),
		maxBytesMiddleware(s.config.MaxBodyBytes),
	)
}

// handleHealth returns a health check response, pinging the server DB.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "detail": "db unreachable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "driver": s.store.Driver()})
}

// handleMetrics returns a snapshot of server metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	snap := s.metrics.Snapshot()
	if n, err := s.store.Count(r.Context()); err == nil {
		snap.Keys = n
	}
	writeJSON(w, http.StatusOK, snap)
}
