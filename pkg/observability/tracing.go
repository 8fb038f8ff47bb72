package observability

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const (
	// TracerName is the name of the tracer for pipeline operations.
	TracerName = "voxreel"
)

// Span attribute keys
const (
	AttrStage      = "stage"
	AttrRoot       = "root"
	AttrSegmentID  = "segment_id"
	AttrSegments   = "segments"
	AttrArtifactID = "artifact_id"
	AttrErrorCode  = "error_code"
	AttrRetryable  = "retryable"
	AttrDurationMs = "duration_ms"
)

// Stage names shared by spans, metrics and stage errors.
const (
	StageScan       = "scan"
	StageProbe      = "probe"
	StageTurns      = "turns"
	StageSessions   = "sessions"
	StageAnalyze    = "analyze"
	StageCompile    = "compile"
	StageTranscript = "transcript"
)

// Tracer provides tracing for pipeline stages.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a tracer from the global otel provider.
func NewTracer() *Tracer {
	return &Tracer{
		tracer: otel.Tracer(TracerName),
	}
}

// NewTracerFrom creates a tracer backed by tp.
func NewTracerFrom(tp trace.TracerProvider) *Tracer {
	return &Tracer{
		tracer: tp.Tracer(TracerName),
	}
}

// OpenTraceFile starts a tracer provider that appends every finished span
// to path as one JSON object per line and installs it globally. The
// returned shutdown flushes pending spans and closes the file.
func OpenTraceFile(path string) (trace.TracerProvider, func(context.Context) error, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("creating trace file: %w", err)
	}
	exp, err := stdouttrace.New(stdouttrace.WithWriter(f))
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("creating trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", TracerName),
		)),
	)
	otel.SetTracerProvider(tp)

	shutdown := func(ctx context.Context) error {
		err := tp.Shutdown(ctx)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		return err
	}
	return tp, shutdown, nil
}

// StartStageSpan starts a span for a pipeline stage.
func (t *Tracer) StartStageSpan(ctx context.Context, stage string) (context.Context, trace.Span) {
	return t.start(ctx, fmt.Sprintf("voxreel.stage.%s", stage),
		attribute.String(AttrStage, stage),
	)
}

// StartSegmentSpan starts a span for work on a single segment within a stage.
func (t *Tracer) StartSegmentSpan(ctx context.Context, stage, segmentID string) (context.Context, trace.Span) {
	return t.start(ctx, fmt.Sprintf("voxreel.%s.segment", stage),
		attribute.String(AttrStage, stage),
		attribute.String(AttrSegmentID, segmentID),
	)
}

func (t *Tracer) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if t == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// SpanHelper provides convenient methods for working with the current span.
type SpanHelper struct {
	span trace.Span
}

// NewSpanHelper creates a new span helper for the given span.
func NewSpanHelper(span trace.Span) *SpanHelper {
	return &SpanHelper{span: span}
}

// SetSegments sets the number of segments handled by the span.
func (h *SpanHelper) SetSegments(n int) {
	h.span.SetAttributes(attribute.Int(AttrSegments, n))
}

// SetArtifact sets the compiled artifact ID.
func (h *SpanHelper) SetArtifact(id string) {
	h.span.SetAttributes(attribute.String(AttrArtifactID, id))
}

// SetDuration sets the duration attribute.
func (h *SpanHelper) SetDuration(durationMs int64) {
	h.span.SetAttributes(attribute.Int64(AttrDurationMs, durationMs))
}

// SetError records an error on the span.
func (h *SpanHelper) SetError(err error, code string, retryable bool) {
	h.span.SetStatus(codes.Error, err.Error())
	h.span.SetAttributes(
		attribute.String(AttrErrorCode, code),
		attribute.Bool(AttrRetryable, retryable),
	)
	h.span.RecordError(err)
}

// SetSuccess marks the span as successful.
func (h *SpanHelper) SetSuccess() {
	h.span.SetStatus(codes.Ok, "")
}

// GetTraceID returns the trace ID from the context.
func GetTraceID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().HasTraceID() {
		return span.SpanContext().TraceID().String()
	}
	return ""
}
