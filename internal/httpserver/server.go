package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/pprof"
	"sync/atomic"
	"time"

	"github.com/skobkin/sysmon-web/internal/config"
	"github.com/skobkin/sysmon-web/internal/stats"
	"github.com/skobkin/sysmon-web/internal/version"
)

const (
	readHeaderTimeout = 5 * time.Second

	// LivenessMessage is the body served on the root route.
	LivenessMessage = "System Monitor is running!"
)

// Snapshotter produces fresh host telemetry snapshots.
type Snapshotter interface {
	Snapshot(ctx context.Context) (stats.SystemStats, error)
	GPUAvailable() bool
	Snapshots() uint64
	GPUQueryFailures() uint64
}

// Server wraps the HTTP surface area of the application.
type Server struct {
	cfg        config.Config
	logger     *slog.Logger
	httpServer *http.Server
	stats      Snapshotter

	requests    atomic.Uint64
	statsErrors atomic.Uint64
}

// New assembles a Server with its handlers.
func New(cfg config.Config, logger *slog.Logger, snapshotter Snapshotter) *Server {
	s := &Server{
		cfg:    cfg,
		logger: logger,
		stats:  snapshotter,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/version", s.handleVersion)

	if cfg.EnablePrometheus {
		s.registerPrometheus(mux)
	}
	if cfg.EnablePprof {
		registerPprof(mux)
	}

	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           s.withRequestLogging(mux),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	return s
}

// Listen binds the configured address.
func (s *Server) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return nil, fmt.Errorf("bind %s: %w", s.httpServer.Addr, err)
	}
	return ln, nil
}

// Serve handles connections on ln until shutdown is requested.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("System Monitor server running", "url", "http://"+ln.Addr().String())
	for _, route := range s.routes() {
		s.logger.Info("available endpoint", "route", route)
	}

	err := s.httpServer.Serve(ln)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("listener stopped")
	return nil
}

// Shutdown attempts a graceful shutdown within the supplied context.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) routes() []string {
	routes := []string{
		"GET /       - Health check",
		"GET /stats  - System statistics (CPU, Memory, GPU)",
		"GET /healthz",
		"GET /version",
	}
	if s.cfg.EnablePrometheus {
		routes = append(routes, "GET /metrics")
	}
	if s.cfg.EnablePprof {
		routes = append(routes, "GET /debug/pprof/")
	}
	return routes
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if !allowGet(w, r) {
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(LivenessMessage))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}

	logger := s.loggerFromContext(r.Context())

	snapshot, err := s.stats.Snapshot(r.Context())
	if err != nil {
		s.statsErrors.Add(1)
		logger.Error("failed to collect system stats", "err", err)
		http.Error(w, "failed to read host counters", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snapshot); err != nil {
		logger.Warn("failed to write stats response", "err", err)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}

	info := version.Current()
	logger := s.loggerFromContext(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(info); err != nil {
		logger.Error("failed to encode version response", "err", err)
	}
}

func allowGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		return true
	}
	w.Header().Set("Allow", http.MethodGet)
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	return false
}

func registerPprof(mux *http.ServeMux) {
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
}
