package cli

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/matzehuels/typecensus/pkg/buildinfo"
	"github.com/matzehuels/typecensus/pkg/config"
	"github.com/matzehuels/typecensus/pkg/observability"
)

// metricsServer exposes /metrics and /healthz while a run is in progress.
type metricsServer struct {
	server   *http.Server
	listener net.Listener
	logger   *log.Logger
}

// newMetricsRouter builds the HTTP handler for reg.
func newMetricsRouter(reg *prometheus.Registry, runID string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":  "up",
			"run":     runID,
			"version": buildinfo.Version,
		})
	})
	return r
}

// startMetricsServer listens on addr and serves in the background.
func startMetricsServer(addr string, handler http.Handler, logger *log.Logger) (*metricsServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := &metricsServer{
		server:   &http.Server{Handler: handler, ReadHeaderTimeout: 5 * time.Second},
		listener: ln,
		logger:   logger,
	}
	go func() {
		if err := s.server.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", ln.Addr().String())
	return s, nil
}

// Addr returns the bound address.
func (s *metricsServer) Addr() string { return s.listener.Addr().String() }

func (s *metricsServer) stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// setupTelemetry installs metrics and tracing hooks as configured. The
// returned function flushes exporters and stops the server; it is safe to
// call when nothing was enabled.
func setupTelemetry(ctx context.Context, cfg config.TelemetryConfig, runID string, logger *log.Logger) (func(), error) {
	var (
		hooks    observability.FanoutPipelineHooks
		shutdown []func(context.Context) error
	)

	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		prom := observability.NewPrometheusHooks(reg)
		hooks = append(hooks, prom)
		observability.SetRegistryHooks(prom)
		observability.SetCacheHooks(prom)
		observability.SetHTTPHooks(prom)

		srv, err := startMetricsServer(cfg.MetricsAddr, newMetricsRouter(reg, runID), logger)
		if err != nil {
			return nil, err
		}
		shutdown = append(shutdown, srv.stop)
	}

	if cfg.OTLPEndpoint != "" {
		tp, err := observability.NewOTLPTracerProvider(ctx, cfg.OTLPEndpoint, cfg.OTLPInsecure)
		if err != nil {
			for _, fn := range shutdown {
				_ = fn(ctx)
			}
			observability.Reset()
			return nil, err
		}
		hooks = append(hooks, observability.NewTracingHooks(tp))
		shutdown = append(shutdown, tp.Shutdown)
		logger.Info("exporting traces", "endpoint", cfg.OTLPEndpoint)
	}

	if len(hooks) > 0 {
		observability.SetPipelineHooks(hooks)
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for _, fn := range shutdown {
			if err := fn(ctx); err != nil {
				logger.Warn("telemetry shutdown", "error", err)
			}
		}
		observability.Reset()
	}, nil
}
