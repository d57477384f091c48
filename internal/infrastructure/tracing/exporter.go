package tracing

import (
	"context"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

// LogExporter is a span exporter that writes finished spans to a zap logger.
type LogExporter struct {
	logger *zap.Logger
}

var _ sdktrace.SpanExporter = (*LogExporter)(nil)

// NewLogExporter creates a LogExporter.
func NewLogExporter(logger *zap.Logger) *LogExporter {
	return &LogExporter{logger: logger.Named("spans")}
}

// ExportSpans logs each span; spans with an error status log at error level.
func (e *LogExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, span := range spans {
		if err := ctx.Err(); err != nil {
			return err
		}
		e.export(span)
	}
	return nil
}

func (e *LogExporter) export(span sdktrace.ReadOnlySpan) {
	sc := span.SpanContext()
	fields := []zap.Field{
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
		zap.String("operation", span.Name()),
		zap.Stringer("kind", span.SpanKind()),
		zap.Duration("duration", span.EndTime().Sub(span.StartTime())),
		zap.Int("events", len(span.Events())),
	}

	if parent := span.Parent(); parent.IsValid() {
		fields = append(fields,
			zap.String("parent_id", parent.SpanID().String()),
			zap.Bool("remote_parent", parent.IsRemote()),
		)
	}

	for _, kv := range span.Attributes() {
		if kv.Key == TagHTTPStatusCode {
			fields = append(fields, zap.Int64("status_code", kv.Value.AsInt64()))
		}
	}

	if st := span.Status(); st.Code == codes.Error {
		fields = append(fields, zap.String("error", st.Description))
		e.logger.Error("span completed with error", fields...)
		return
	}
	e.logger.Info("span completed", fields...)
}

// Shutdown implements sdktrace.SpanExporter. Sync errors on stdout/stderr
// are expected on some platforms and ignored.
func (e *LogExporter) Shutdown(context.Context) error {
	_ = e.logger.Sync()
	return nil
}
