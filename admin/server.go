// Package admin exposes the Message Director's read-only HTTP surface:
// /healthz (aggregated subsystem health), /metrics (Prometheus), and
// /debug/participants (a live introspection snapshot). Grounded on the
// teacher's gateway/http package's plain net/http usage (no router
// framework) and metric/handler.go's Server for the /metrics mount.
package admin

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mghost99/astron-md/component"
	cerrors "github.com/mghost99/astron-md/errors"
	"github.com/mghost99/astron-md/health"
	"github.com/mghost99/astron-md/metric"
)

// ParticipantSnapshot is the shape returned by /debug/participants,
// spec.md §3.4's introspection-only endpoint.
type ParticipantSnapshot struct {
	LiveParticipants int `json:"live_participants"`
	ChannelSubs      int `json:"channel_subscriptions"`
	RangeSubs        int `json:"range_subscriptions"`
}

// SnapshotFunc produces a fresh ParticipantSnapshot on demand.
type SnapshotFunc func() ParticipantSnapshot

// SetLogLevelFunc applies a new slog level name at runtime, backing the
// admin surface's /debug/loglevel endpoint (config.SafeConfig's
// log.level hot-reload, SPEC_FULL.md §3.4).
type SetLogLevelFunc func(level string) error

// Server is the admin HTTP surface. It implements component.LifecycleComponent.
type Server struct {
	addr        string
	log         *slog.Logger
	manager     *component.Manager
	registry    *metric.MetricsRegistry
	snapshot    SnapshotFunc
	setLogLevel SetLogLevelFunc
	monitor     *health.Monitor

	srv *http.Server
}

// Config configures a Server.
type Config struct {
	Addr        string
	Log         *slog.Logger
	Manager     *component.Manager
	Registry    *metric.MetricsRegistry
	Snapshot    SnapshotFunc
	SetLogLevel SetLogLevelFunc
}

// New creates an admin Server. Callers should check Enabled before
// wiring it into the daemon.
func New(cfg Config) *Server {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		addr:        cfg.Addr,
		log:         log,
		manager:     cfg.Manager,
		registry:    cfg.Registry,
		snapshot:    cfg.Snapshot,
		setLogLevel: cfg.SetLogLevel,
		monitor:     health.NewMonitor(),
	}
}

// Enabled reports whether the admin surface has a configured bind address.
func (s *Server) Enabled() bool { return s.addr != "" }

// Name implements component.Subsystem.
func (s *Server) Name() string { return "admin" }

// Health implements component.Subsystem.
func (s *Server) Health() component.HealthStatus {
	return component.HealthStatus{Healthy: s.srv != nil, LastCheck: time.Now()}
}

// Start builds the mux and begins serving in the background.
func (s *Server) Start(ctx context.Context) error {
	if !s.Enabled() {
		return nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	if s.registry != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.registry.PrometheusRegistry(), promhttp.HandlerOpts{}))
	}
	mux.HandleFunc("/debug/participants", s.handleParticipants)
	mux.HandleFunc("/debug/loglevel", s.handleLogLevel)

	s.srv = &http.Server{Addr: s.addr, Handler: mux}

	go s.pollHealth(ctx)

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("admin server exited", "error", err)
		}
	}()
	return nil
}

// Stop gracefully shuts the admin HTTP server down.
func (s *Server) Stop(timeout time.Duration) error {
	if s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		return cerrors.WrapTransient(err, "admin", "Stop", "shutdown HTTP server")
	}
	return nil
}

func (s *Server) pollHealth(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.manager == nil {
				continue
			}
			for name, hs := range s.manager.Health() {
				s.monitor.UpdateFromComponent(name, hs)
			}
		}
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	agg := s.monitor.AggregateHealth("messagedirector")
	w.Header().Set("Content-Type", "application/json")
	if !agg.IsHealthy() {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(agg)
}

func (s *Server) handleParticipants(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if s.snapshot == nil {
		_ = json.NewEncoder(w).Encode(ParticipantSnapshot{})
		return
	}
	_ = json.NewEncoder(w).Encode(s.snapshot())
}

// handleLogLevel implements the log.level hot-reload endpoint
// (config.SafeConfig, SPEC_FULL.md §3.4): POST {"level":"debug"} to
// change the running daemon's log verbosity without a restart.
func (s *Server) handleLogLevel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.setLogLevel == nil {
		w.WriteHeader(http.StatusNotImplemented)
		return
	}

	var body struct {
		Level string `json:"level"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if err := s.setLogLevel(body.Level); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(err.Error()))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
