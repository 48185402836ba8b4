package fallback

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fks-ops/fks-entrypoint/pkg/errors"
	"github.com/fks-ops/fks-entrypoint/pkg/logging"
)

// Options configures the emergency fallback server
type Options struct {
	Port        int
	ServiceKind string
}

// Server is the minimal placeholder workload run when no real command can be
// located. It exposes liveness and metrics endpoints so external
// orchestration can still probe the container instead of watching it
// crash-loop.
type Server struct {
	options Options
	logger  logging.Logger

	registry    *prometheus.Registry
	startedAt   time.Time
	probesTotal *prometheus.CounterVec
	uptime      prometheus.GaugeFunc
}

func NewServer(options Options, logger logging.Logger) *Server {
	if options.Port == 0 {
		options.Port = 8000
	}
	if options.ServiceKind == "" {
		options.ServiceKind = "unknown"
	}

	s := &Server{
		options:   options,
		logger:    logger,
		registry:  prometheus.NewRegistry(),
		startedAt: time.Now(),
	}

	s.probesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fks",
		Subsystem: "fallback",
		Name:      "probes_total",
		Help:      "Liveness probes answered by the fallback server",
	}, []string{"service"})

	s.uptime = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "fks",
		Subsystem: "fallback",
		Name:      "uptime_seconds",
		Help:      "Seconds since the fallback server started",
	}, func() float64 {
		return time.Since(s.startedAt).Seconds()
	})

	s.registry.MustRegister(s.probesTotal, s.uptime)

	return s
}

func (s *Server) router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.probesTotal.WithLabelValues(s.options.ServiceKind).Inc()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":   "healthy",
		"service":  s.options.ServiceKind,
		"mode":     "fallback",
		"uptime_s": int(time.Since(s.startedAt).Seconds()),
	})
}

// Run serves until a termination signal arrives, then shuts down cleanly so
// the container exits 0 even in degraded mode.
func (s *Server) Run(ctx context.Context) error {
	addr := ":" + strconv.Itoa(s.options.Port)

	server := &http.Server{
		Addr:              addr,
		Handler:           s.router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	serveErr := make(chan error, 1)
	go func() {
		s.logger.Warnf("Running in EMERGENCY FALLBACK mode, service: %s, listening on %s",
			s.options.ServiceKind, addr)
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		return errors.NewIOError("fallback server failed", err).WithContext("addr", addr)
	case received := <-sig:
		s.logger.Infof("Fallback server received signal: %v, shutting down", received)
	case <-ctx.Done():
		s.logger.Infof("Fallback server context done, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		s.logger.Warnf("Fallback server shutdown error: %v", err)
		server.Close()
	}

	s.logger.Infof("Fallback server stopped")
	return nil
}
