package tracing

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span is a request-scoped span. It is finished at most once; tags, logs and
// renames arriving after Finish are dropped.
type Span struct {
	span trace.Span

	mu       sync.Mutex
	name     string
	finished bool
}

func newSpan(s trace.Span, name string) *Span {
	return &Span{span: s, name: name}
}

// SetTag sets a key/value tag. Non-primitive values are JSON-encoded.
func (s *Span) SetTag(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished || key == "" {
		return
	}
	s.span.SetAttributes(toKeyValue(key, value))
}

// Log appends a timestamped event.
func (s *Span) Log(event string, attrs ...attribute.KeyValue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	s.span.AddEvent(event, trace.WithAttributes(attrs...))
}

// SetOperationName renames the span.
func (s *Span) SetOperationName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	s.name = name
	s.span.SetName(name)
}

// OperationName returns the current span name.
func (s *Span) OperationName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

// SetError marks the span status as failed with err's message. No exception
// event is added; the event log stays request_received/response_finished.
func (s *Span) SetError(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	s.span.SetStatus(codes.Error, err.Error())
}

// Finish ends the span. Only the first call has an effect; it reports
// whether this call was the one that finished the span.
func (s *Span) Finish() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return false
	}
	s.finished = true
	s.span.End()
	return true
}

// Finished reports whether Finish has been called.
func (s *Span) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

// SpanContext returns the span's identifiers.
func (s *Span) SpanContext() trace.SpanContext {
	return s.span.SpanContext()
}

// Unwrap returns the underlying OpenTelemetry span.
func (s *Span) Unwrap() trace.Span {
	return s.span
}

func toKeyValue(key string, value any) attribute.KeyValue {
	switch v := value.(type) {
	case nil:
		return attribute.String(key, "")
	case string:
		return attribute.String(key, v)
	case []byte:
		return attribute.String(key, string(v))
	case bool:
		return attribute.Bool(key, v)
	case int:
		return attribute.Int(key, v)
	case int32:
		return attribute.Int64(key, int64(v))
	case int64:
		return attribute.Int64(key, v)
	case uint32:
		return attribute.Int64(key, int64(v))
	case uint64:
		if v <= math.MaxInt64 {
			return attribute.Int64(key, int64(v))
		}
		return attribute.String(key, fmt.Sprint(v))
	case float32:
		return attribute.Float64(key, float64(v))
	case float64:
		return attribute.Float64(key, v)
	case []string:
		return attribute.StringSlice(key, v)
	case time.Duration:
		return attribute.Int64(key, v.Nanoseconds())
	case error:
		return attribute.String(key, v.Error())
	case fmt.Stringer:
		return attribute.String(key, v.String())
	default:
		if b, err := sonic.Marshal(v); err == nil {
			return attribute.String(key, string(b))
		}
		return attribute.String(key, fmt.Sprint(v))
	}
}
