// Package observability provides hooks for metrics, tracing, and logging.
//
// This package enables optional instrumentation without adding hard dependencies
// on specific observability backends to the pipeline packages. Consumers register
// hooks at startup to receive events about package processing, registry probes,
// cache operations, and HTTP calls.
//
// # Architecture
//
// The package uses a simple hooks pattern:
//   - Define hook interfaces for different event categories
//   - Provide no-op default implementations
//   - Allow registration of custom implementations at startup
//
// Two backends ship with the package: [PrometheusHooks] records counters and
// histograms, and [TracingHooks] opens OpenTelemetry spans per package and per
// stage. Use [FanoutPipelineHooks] to register both.
//
// # Usage
//
// Register hooks at application startup:
//
//	func main() {
//	    prom := observability.NewPrometheusHooks(prometheus.NewRegistry())
//	    observability.SetPipelineHooks(prom)
//	    observability.SetRegistryHooks(prom)
//	    // ... run application
//	}
//
// Libraries call hooks to emit events:
//
//	ctx = observability.Pipeline().OnStageStart(ctx, pkg, "INSTALL_DEPENDENCIES")
//	// ... run npm install ...
//	observability.Pipeline().OnStageComplete(ctx, pkg, "INSTALL_DEPENDENCIES", duration, failed)
package observability

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// Pipeline Hooks
// =============================================================================

// PipelineHooks receives events from the package pipeline.
//
// The Start methods return a context that is passed to the matching Complete
// method, so implementations can carry per-package or per-stage state (spans).
type PipelineHooks interface {
	// Run events
	OnRunStart(ctx context.Context, runID string, archives int) context.Context
	OnRunComplete(ctx context.Context, runID string, packages int, duration time.Duration, err error)

	// Package events. failedStage is empty for a clean package.
	OnPackageStart(ctx context.Context, pkg string) context.Context
	OnPackageComplete(ctx context.Context, pkg string, failedStage string, records int, duration time.Duration)

	// Stage events
	OnStageStart(ctx context.Context, pkg, stage string) context.Context
	OnStageComplete(ctx context.Context, pkg, stage string, duration time.Duration, failed bool)

	// OnRecord is called once per diagnostic record committed to the report.
	OnRecord(ctx context.Context, pkg, category string, severity int)
}

// =============================================================================
// Registry Hooks
// =============================================================================

// RegistryHooks receives events from declaration lookups against the registry.
type RegistryHooks interface {
	// OnProbe records the outcome of one availability check. cached reports
	// whether the answer came from the probe cache instead of the network.
	OnProbe(ctx context.Context, typesPkg string, exists, cached bool, err error)
}

// =============================================================================
// Cache Hooks
// =============================================================================

// CacheHooks receives events from cache operations.
type CacheHooks interface {
	// OnCacheHit records a cache hit.
	OnCacheHit(ctx context.Context, keyType string)

	// OnCacheMiss records a cache miss.
	OnCacheMiss(ctx context.Context, keyType string)

	// OnCacheSet records a cache write.
	OnCacheSet(ctx context.Context, keyType string, size int)
}

// =============================================================================
// HTTP Hooks
// =============================================================================

// HTTPHooks receives events from HTTP client operations.
type HTTPHooks interface {
	// OnRequest records an outgoing HTTP request.
	OnRequest(ctx context.Context, method, host, path string)

	// OnResponse records an HTTP response.
	OnResponse(ctx context.Context, method, host, path string, statusCode int, duration time.Duration)

	// OnError records an HTTP error (network failure, timeout).
	OnError(ctx context.Context, method, host, path string, err error)
}

// =============================================================================
// No-op Implementations
// =============================================================================

// NoopPipelineHooks is a no-op implementation of PipelineHooks.
type NoopPipelineHooks struct{}

func (NoopPipelineHooks) OnRunStart(ctx context.Context, _ string, _ int) context.Context {
	return ctx
}
func (NoopPipelineHooks) OnRunComplete(context.Context, string, int, time.Duration, error) {}
func (NoopPipelineHooks) OnPackageStart(ctx context.Context, _ string) context.Context {
	return ctx
}
func (NoopPipelineHooks) OnPackageComplete(context.Context, string, string, int, time.Duration) {}
func (NoopPipelineHooks) OnStageStart(ctx context.Context, _, _ string) context.Context {
	return ctx
}
func (NoopPipelineHooks) OnStageComplete(context.Context, string, string, time.Duration, bool) {}
func (NoopPipelineHooks) OnRecord(context.Context, string, string, int)                        {}

// NoopRegistryHooks is a no-op implementation of RegistryHooks.
type NoopRegistryHooks struct{}

func (NoopRegistryHooks) OnProbe(context.Context, string, bool, bool, error) {}

// NoopCacheHooks is a no-op implementation of CacheHooks.
type NoopCacheHooks struct{}

func (NoopCacheHooks) OnCacheHit(context.Context, string)      {}
func (NoopCacheHooks) OnCacheMiss(context.Context, string)     {}
func (NoopCacheHooks) OnCacheSet(context.Context, string, int) {}

// NoopHTTPHooks is a no-op implementation of HTTPHooks.
type NoopHTTPHooks struct{}

func (NoopHTTPHooks) OnRequest(context.Context, string, string, string)                      {}
func (NoopHTTPHooks) OnResponse(context.Context, string, string, string, int, time.Duration) {}
func (NoopHTTPHooks) OnError(context.Context, string, string, string, error)                 {}

// =============================================================================
// Fan-out
// =============================================================================

// FanoutPipelineHooks forwards every event to each hook in order.
// Contexts returned by Start methods are threaded through the chain.
type FanoutPipelineHooks []PipelineHooks

func (f FanoutPipelineHooks) OnRunStart(ctx context.Context, runID string, archives int) context.Context {
	for _, h := range f {
		ctx = h.OnRunStart(ctx, runID, archives)
	}
	return ctx
}

func (f FanoutPipelineHooks) OnRunComplete(ctx context.Context, runID string, packages int, d time.Duration, err error) {
	for _, h := range f {
		h.OnRunComplete(ctx, runID, packages, d, err)
	}
}

func (f FanoutPipelineHooks) OnPackageStart(ctx context.Context, pkg string) context.Context {
	for _, h := range f {
		ctx = h.OnPackageStart(ctx, pkg)
	}
	return ctx
}

func (f FanoutPipelineHooks) OnPackageComplete(ctx context.Context, pkg, failedStage string, records int, d time.Duration) {
	for _, h := range f {
		h.OnPackageComplete(ctx, pkg, failedStage, records, d)
	}
}

func (f FanoutPipelineHooks) OnStageStart(ctx context.Context, pkg, stage string) context.Context {
	for _, h := range f {
		ctx = h.OnStageStart(ctx, pkg, stage)
	}
	return ctx
}

func (f FanoutPipelineHooks) OnStageComplete(ctx context.Context, pkg, stage string, d time.Duration, failed bool) {
	for _, h := range f {
		h.OnStageComplete(ctx, pkg, stage, d, failed)
	}
}

func (f FanoutPipelineHooks) OnRecord(ctx context.Context, pkg, category string, severity int) {
	for _, h := range f {
		h.OnRecord(ctx, pkg, category, severity)
	}
}

// =============================================================================
// Global Hook Registry
// =============================================================================

var (
	pipelineHooks PipelineHooks = NoopPipelineHooks{}
	registryHooks RegistryHooks = NoopRegistryHooks{}
	cacheHooks    CacheHooks    = NoopCacheHooks{}
	httpHooks     HTTPHooks     = NoopHTTPHooks{}
	hooksMu       sync.RWMutex
)

// SetPipelineHooks registers custom pipeline hooks.
// This should be called once at application startup before any pipeline operations.
func SetPipelineHooks(h PipelineHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		pipelineHooks = h
	}
}

// SetRegistryHooks registers custom registry hooks.
func SetRegistryHooks(h RegistryHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		registryHooks = h
	}
}

// SetCacheHooks registers custom cache hooks.
// This should be called once at application startup before any cache operations.
func SetCacheHooks(h CacheHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		cacheHooks = h
	}
}

// SetHTTPHooks registers custom HTTP hooks.
// This should be called once at application startup before any HTTP operations.
func SetHTTPHooks(h HTTPHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		httpHooks = h
	}
}

// Pipeline returns the registered pipeline hooks.
func Pipeline() PipelineHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return pipelineHooks
}

// Registry returns the registered registry hooks.
func Registry() RegistryHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return registryHooks
}

// Cache returns the registered cache hooks.
func Cache() CacheHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return cacheHooks
}

// HTTP returns the registered HTTP hooks.
func HTTP() HTTPHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return httpHooks
}

// Reset restores all hooks to their no-op defaults.
// This is primarily useful for testing.
func Reset() {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	pipelineHooks = NoopPipelineHooks{}
	registryHooks = NoopRegistryHooks{}
	cacheHooks = NoopCacheHooks{}
	httpHooks = NoopHTTPHooks{}
}
