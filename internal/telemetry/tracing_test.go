package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewTracerProviderRecordsSpans(t *testing.T) {
	t.Parallel()

	rec := tracetest.NewSpanRecorder()
	tp, err := NewTracerProvider(context.Background(), Config{ServiceName: "archiver-test", SampleRatio: 1}, sdktrace.WithSpanProcessor(rec))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, tp.Shutdown(context.Background())) })

	_, span := tp.Tracer("test").Start(context.Background(), "archive.job")
	span.End()

	ended := rec.Ended()
	require.Len(t, ended, 1)
	require.Equal(t, "archive.job", ended[0].Name())
	name, ok := ended[0].Resource().Set().Value("service.name")
	require.True(t, ok)
	require.Equal(t, "archiver-test", name.AsString())
}

func TestNewTracerProviderZeroRatioDropsSpans(t *testing.T) {
	t.Parallel()

	rec := tracetest.NewSpanRecorder()
	tp, err := NewTracerProvider(context.Background(), Config{ServiceName: "archiver-test"}, sdktrace.WithSpanProcessor(rec))
	require.NoError(t, err)

	_, span := tp.Tracer("test").Start(context.Background(), "archive.job")
	require.False(t, span.SpanContext().IsSampled())
	span.End()
	require.Empty(t, rec.Ended())
}

func TestLogExporterWritesFinishedSpans(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	tp, err := NewTracerProvider(context.Background(), Config{
		ServiceName: "archiver-test",
		SampleRatio: 1,
		Exporter:    ExporterLog,
		Logger:      zap.New(core),
	})
	require.NoError(t, err)

	ctx, parent := tp.Tracer("test").Start(context.Background(), "archive.run")
	_, span := tp.Tracer("test").Start(ctx, "archive.job", trace.WithAttributes(attribute.String("archive.website_id", "7")))
	span.SetStatus(codes.Error, "relocation failed")
	span.End()
	parent.End()
	require.NoError(t, tp.Shutdown(context.Background()))

	entries := logs.FilterMessage("span ended").AllUntimed()
	require.Len(t, entries, 2)
	job := entries[0].ContextMap()
	require.Equal(t, "archive.job", job["name"])
	require.Equal(t, span.SpanContext().TraceID().String(), job["trace_id"])
	require.Equal(t, parent.SpanContext().SpanID().String(), job["parent_span_id"])
	require.Equal(t, "Error", job["status"])
	require.Equal(t, "relocation failed", job["status_description"])
	require.Equal(t, map[string]interface{}{"archive.website_id": "7"}, job["attributes"])
	require.NotContains(t, entries[1].ContextMap(), "parent_span_id")
}

func TestNewTracerProviderRejectsUnknownExporter(t *testing.T) {
	t.Parallel()

	_, err := NewTracerProvider(context.Background(), Config{ServiceName: "archiver-test", Exporter: "jaeger"})
	require.ErrorContains(t, err, `unknown trace exporter "jaeger"`)
}
