// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JUCI Contributors

// Package observability exposes the daemon's Prometheus metrics and health
// endpoints over HTTP.
package observability

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/oops"
)

// Endpoint paths served by Handler.
const (
	PathMetrics   = "/metrics"
	PathLiveness  = "/healthz/liveness"
	PathReadiness = "/healthz/readiness"
)

const readHeaderTimeout = 10 * time.Second

// ReadinessChecker reports whether the plugin directory has been loaded.
// A nil checker is treated as always ready.
type ReadinessChecker func() bool

// Server serves Handler on a TCP address. It can be started once at a
// time; Stop makes it startable again.
type Server struct {
	addr     string
	registry *prometheus.Registry
	metrics  *Metrics
	handler  http.Handler

	mu  sync.Mutex
	ln  net.Listener
	srv *http.Server
}

// NewServer builds a server with a private registry holding the Go and
// process collectors, the daemon Metrics, and whatever each register func
// adds.
func NewServer(addr string, ready ReadinessChecker, register ...func(prometheus.Registerer)) *Server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := NewMetrics(reg)
	for _, fn := range register {
		fn(reg)
	}

	return &Server{
		addr:     addr,
		registry: reg,
		metrics:  metrics,
		handler:  newHandler(reg, ready),
	}
}

// Registry returns the registry backing PathMetrics.
func (s *Server) Registry() *prometheus.Registry { return s.registry }

// Metrics returns the daemon collectors.
func (s *Server) Metrics() *Metrics { return s.metrics }

// Handler returns the HTTP handler for all observability endpoints. It
// can be mounted without calling Start.
func (s *Server) Handler() http.Handler { return s.handler }

// Start listens on the configured address and serves in the background.
// The returned channel yields at most one serve error and is closed when
// serving ends.
func (s *Server) Start() (<-chan error, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.srv != nil {
		return nil, oops.In("observability").
			Code("OBS_ALREADY_RUNNING").
			With("addr", s.ln.Addr().String()).
			Errorf("observability server already running")
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return nil, oops.In("observability").
			Code("OBS_LISTEN_FAILED").
			With("addr", s.addr).
			Wrapf(err, "listen for observability endpoints")
	}

	srv := &http.Server{Handler: s.handler, ReadHeaderTimeout: readHeaderTimeout}
	s.ln, s.srv = ln, srv

	errCh := make(chan error, 1)
	go serve(srv, ln, errCh)

	slog.Info("observability server started", "addr", ln.Addr().String())
	return errCh, nil
}

func serve(srv *http.Server, ln net.Listener, errCh chan<- error) {
	defer close(errCh)
	err := srv.Serve(ln)
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return
	}
	slog.Error("observability server failed", "addr", ln.Addr().String(), "error", err)
	errCh <- err
}

// Stop shuts the server down, waiting for in-flight scrapes until ctx ends.
// Stopping a server that is not running is a no-op.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.srv, s.ln = nil, nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil {
		_ = srv.Close()
		return oops.In("observability").
			Code("OBS_SHUTDOWN_FAILED").
			Wrapf(err, "shut down observability server")
	}
	slog.Info("observability server stopped")
	return nil
}

// Addr returns the bound listen address, or "" when not running.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

func newHandler(reg *prometheus.Registry, ready ReadinessChecker) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(PathMetrics, promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc(PathLiveness, func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusOK, "ok")
	})
	mux.HandleFunc(PathReadiness, func(w http.ResponseWriter, _ *http.Request) {
		if ready != nil && !ready() {
			writeStatus(w, http.StatusServiceUnavailable, "plugins not loaded")
			return
		}
		writeStatus(w, http.StatusOK, "ok")
	})
	return mux
}

func writeStatus(w http.ResponseWriter, code int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	//nolint:errcheck // the client may already be gone
	w.Write([]byte(body + "\n"))
}
