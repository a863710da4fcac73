package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/matzehuels/typecensus/pkg/pipeline"

// TracingHooks opens an OpenTelemetry span for the run, for each package and
// for each stage. Stage spans are children of their package span.
type TracingHooks struct {
	tracer trace.Tracer
}

// NewTracingHooks creates hooks that use tp. A nil tp uses the global provider.
func NewTracingHooks(tp trace.TracerProvider) *TracingHooks {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &TracingHooks{tracer: tp.Tracer(tracerName)}
}

// NewOTLPTracerProvider builds a batching tracer provider exporting to an
// OTLP/gRPC collector at endpoint (host:port). The caller must Shutdown it.
func NewOTLPTracerProvider(ctx context.Context, endpoint string, insecure bool) (*sdktrace.TracerProvider, error) {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
	if insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exp, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp)), nil
}

func (t *TracingHooks) OnRunStart(ctx context.Context, runID string, archives int) context.Context {
	ctx, _ = t.tracer.Start(ctx, "run", trace.WithAttributes(
		attribute.String("typecensus.run_id", runID),
		attribute.Int("typecensus.archives", archives),
	))
	return ctx
}

func (t *TracingHooks) OnRunComplete(ctx context.Context, _ string, packages int, _ time.Duration, err error) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.Int("typecensus.packages", packages))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (t *TracingHooks) OnPackageStart(ctx context.Context, pkg string) context.Context {
	ctx, _ = t.tracer.Start(ctx, "package", trace.WithAttributes(attribute.String("typecensus.package", pkg)))
	return ctx
}

func (t *TracingHooks) OnPackageComplete(ctx context.Context, _ string, failedStage string, records int, _ time.Duration) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.Int("typecensus.records", records))
	if failedStage != "" {
		span.SetAttributes(attribute.String("typecensus.failed_stage", failedStage))
		span.SetStatus(codes.Error, failedStage)
	}
	span.End()
}

func (t *TracingHooks) OnStageStart(ctx context.Context, pkg, stage string) context.Context {
	ctx, _ = t.tracer.Start(ctx, stage, trace.WithAttributes(attribute.String("typecensus.package", pkg)))
	return ctx
}

func (t *TracingHooks) OnStageComplete(ctx context.Context, _, _ string, _ time.Duration, failed bool) {
	span := trace.SpanFromContext(ctx)
	if failed {
		span.SetStatus(codes.Error, "stage failed")
	}
	span.End()
}

func (t *TracingHooks) OnRecord(ctx context.Context, _ string, category string, severity int) {
	trace.SpanFromContext(ctx).AddEvent("record", trace.WithAttributes(
		attribute.String("typecensus.category", category),
		attribute.Int("typecensus.severity", severity),
	))
}

var _ PipelineHooks = (*TracingHooks)(nil)
