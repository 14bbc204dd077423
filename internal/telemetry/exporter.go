package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Supported exporters. With ExporterNone spans are still sampled and their ids reach logs and
// Pub/Sub attributes, but nothing is exported.
const (
	ExporterNone = "none"
	ExporterLog  = "log"
)

// LogExporter writes each finished span as one structured log entry.
type LogExporter struct {
	logger *zap.Logger
}

// NewLogExporter returns a span exporter backed by logger.
func NewLogExporter(logger *zap.Logger) *LogExporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogExporter{logger: logger.Named("trace")}
}

// ExportSpans implements sdktrace.SpanExporter.
func (e *LogExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, s := range spans {
		if err := ctx.Err(); err != nil {
			return err
		}
		fields := []zap.Field{
			zap.String("name", s.Name()),
			zap.String("trace_id", s.SpanContext().TraceID().String()),
			zap.String("span_id", s.SpanContext().SpanID().String()),
			zap.Duration("duration", s.EndTime().Sub(s.StartTime())),
			zap.String("status", s.Status().Code.String()),
		}
		if s.Parent().IsValid() {
			fields = append(fields, zap.String("parent_span_id", s.Parent().SpanID().String()))
		}
		if desc := s.Status().Description; desc != "" {
			fields = append(fields, zap.String("status_description", desc))
		}
		if attrs := s.Attributes(); len(attrs) > 0 {
			fields = append(fields, zap.Object("attributes", attributeMarshaler(attrs)))
		}
		e.logger.Info("span ended", fields...)
	}
	return nil
}

// Shutdown implements sdktrace.SpanExporter.
func (e *LogExporter) Shutdown(context.Context) error {
	_ = e.logger.Sync()
	return nil
}

type attributeMarshaler []attribute.KeyValue

func (a attributeMarshaler) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	for _, kv := range a {
		enc.AddString(string(kv.Key), kv.Value.Emit())
	}
	return nil
}
