package observability

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusHooks records pipeline, registry, cache and HTTP events as
// Prometheus metrics. It implements every hook interface in this package.
type PrometheusHooks struct {
	NoopPipelineHooks

	packagesTotal   *prometheus.CounterVec
	packageDuration prometheus.Histogram
	stageDuration   *prometheus.HistogramVec
	stageFailures   *prometheus.CounterVec
	recordsTotal    *prometheus.CounterVec
	probesTotal     *prometheus.CounterVec
	cacheEvents     *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	httpErrors      *prometheus.CounterVec
	runsTotal       *prometheus.CounterVec
}

// NewPrometheusHooks creates hooks whose collectors are registered on reg.
// Pass prometheus.DefaultRegisterer to expose them on the default registry.
func NewPrometheusHooks(reg prometheus.Registerer) *PrometheusHooks {
	f := promauto.With(reg)
	return &PrometheusHooks{
		packagesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "typecensus_packages_total",
			Help: "Packages processed, labelled by the stage that halted them (clean when none did).",
		}, []string{"outcome"}),
		packageDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "typecensus_package_seconds",
			Help:    "Time spent running the full pipeline for one package.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}),
		stageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "typecensus_stage_seconds",
			Help:    "Time spent in one pipeline stage.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
		}, []string{"stage"}),
		stageFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "typecensus_stage_failures_total",
			Help: "Stage failures that halted a package.",
		}, []string{"stage"}),
		recordsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "typecensus_records_total",
			Help: "Diagnostic records committed to the report.",
		}, []string{"category", "severity"}),
		probesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "typecensus_registry_probes_total",
			Help: "Declaration availability checks by result and source.",
		}, []string{"result", "source"}),
		cacheEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "typecensus_cache_events_total",
			Help: "Probe cache hits, misses and writes.",
		}, []string{"event", "key_type"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "typecensus_http_requests_total",
			Help: "Registry HTTP responses by method and status code.",
		}, []string{"method", "host", "code"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "typecensus_http_request_seconds",
			Help:    "Registry HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "host"}),
		httpErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "typecensus_http_errors_total",
			Help: "Registry HTTP transport errors.",
		}, []string{"method", "host"}),
		runsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "typecensus_runs_total",
			Help: "Batch runs by result.",
		}, []string{"result"}),
	}
}

func (p *PrometheusHooks) OnRunComplete(_ context.Context, _ string, _ int, _ time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	p.runsTotal.WithLabelValues(result).Inc()
}

func (p *PrometheusHooks) OnPackageComplete(_ context.Context, _ string, failedStage string, _ int, d time.Duration) {
	outcome := failedStage
	if outcome == "" {
		outcome = "clean"
	}
	p.packagesTotal.WithLabelValues(outcome).Inc()
	p.packageDuration.Observe(d.Seconds())
}

func (p *PrometheusHooks) OnStageComplete(_ context.Context, _ string, stage string, d time.Duration, failed bool) {
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
	if failed {
		p.stageFailures.WithLabelValues(stage).Inc()
	}
}

func (p *PrometheusHooks) OnRecord(_ context.Context, _ string, category string, severity int) {
	p.recordsTotal.WithLabelValues(category, strconv.Itoa(severity)).Inc()
}

func (p *PrometheusHooks) OnProbe(_ context.Context, _ string, exists, cached bool, err error) {
	result := "missing"
	switch {
	case err != nil:
		result = "error"
	case exists:
		result = "found"
	}
	source := "network"
	if cached {
		source = "cache"
	}
	p.probesTotal.WithLabelValues(result, source).Inc()
}

func (p *PrometheusHooks) OnCacheHit(_ context.Context, keyType string) {
	p.cacheEvents.WithLabelValues("hit", keyType).Inc()
}

func (p *PrometheusHooks) OnCacheMiss(_ context.Context, keyType string) {
	p.cacheEvents.WithLabelValues("miss", keyType).Inc()
}

func (p *PrometheusHooks) OnCacheSet(_ context.Context, keyType string, _ int) {
	p.cacheEvents.WithLabelValues("set", keyType).Inc()
}

func (p *PrometheusHooks) OnRequest(context.Context, string, string, string) {}

func (p *PrometheusHooks) OnResponse(_ context.Context, method, host, _ string, statusCode int, d time.Duration) {
	p.httpRequests.WithLabelValues(method, host, strconv.Itoa(statusCode)).Inc()
	p.httpDuration.WithLabelValues(method, host).Observe(d.Seconds())
}

func (p *PrometheusHooks) OnError(_ context.Context, method, host, _ string, _ error) {
	p.httpErrors.WithLabelValues(method, host).Inc()
}

var (
	_ PipelineHooks = (*PrometheusHooks)(nil)
	_ RegistryHooks = (*PrometheusHooks)(nil)
	_ CacheHooks    = (*PrometheusHooks)(nil)
	_ HTTPHooks     = (*PrometheusHooks)(nil)
)
