package tracing

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewValidatesConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "missing service name", cfg: Config{SampleRatio: 1}, wantErr: "service name is required"},
		{name: "negative ratio", cfg: Config{ServiceName: "orders", SampleRatio: -0.1}, wantErr: "out of range"},
		{name: "ratio above one", cfg: Config{ServiceName: "orders", SampleRatio: 1.5}, wantErr: "out of range"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracer, err := New(tt.cfg, nil)
			require.Error(t, err)
			assert.Nil(t, tracer)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewRegistersGlobalsAndLogsSpans(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	tracer, err := New(Config{ServiceName: "orders", SampleRatio: 1, LogSpans: true}, zap.New(core))
	require.NoError(t, err)

	assert.Contains(t, otel.GetTextMapPropagator().Fields(), "traceparent")
	assert.Contains(t, otel.GetTextMapPropagator().Fields(), "baggage")

	_, span := tracer.StartSpan(context.Background(), "/users/:id")
	span.Finish()

	require.NoError(t, tracer.Shutdown(context.Background()))
	assert.Equal(t, 1, logs.FilterMessage("span completed").Len())
	assert.Equal(t, 1, logs.FilterMessage("tracer shut down").Len())
}

func TestSampleRatioZeroHonoursSampledParent(t *testing.T) {
	tracer, err := New(Config{ServiceName: "orders", SampleRatio: 0}, nil)
	require.NoError(t, err)
	defer func() { require.NoError(t, tracer.Shutdown(context.Background())) }()

	_, root := tracer.StartSpan(context.Background(), "root")
	defer root.Finish()
	assert.False(t, root.SpanContext().IsSampled())

	header := http.Header{}
	header.Set("traceparent", upstreamParent)
	parent := tracer.Extract(context.Background(), propagation.HeaderCarrier(header))
	_, child := tracer.StartSpan(parent, "child")
	defer child.Finish()
	assert.True(t, child.SpanContext().IsSampled())
	assert.Equal(t, upstreamTraceID, child.SpanContext().TraceID().String())
}

func TestInjectRoundTrip(t *testing.T) {
	tracer, _ := newTestTracer(t)

	_, span := tracer.StartSpan(context.Background(), "upstream")
	defer span.Finish()

	carrier := propagation.MapCarrier{}
	tracer.Inject(span, carrier)
	require.NotEmpty(t, carrier.Get("traceparent"))

	extracted := tracer.Extract(context.Background(), carrier)
	_, child := tracer.StartSpan(extracted, "downstream")
	defer child.Finish()

	assert.Equal(t, span.SpanContext().TraceID(), child.SpanContext().TraceID())

	tracer.Inject(nil, carrier)
}

func TestShutdownWithoutOwnedProvider(t *testing.T) {
	tracer, _ := newTestTracer(t)
	assert.NoError(t, tracer.Shutdown(context.Background()))
}

func TestSpanTags(t *testing.T) {
	tracer, recorder := newTestTracer(t)
	_, span := tracer.StartSpan(context.Background(), "tags")

	span.SetTag("str", "v")
	span.SetTag("int", 7)
	span.SetTag("bool", true)
	span.SetTag("float", 1.5)
	span.SetTag("bytes", []byte("raw"))
	span.SetTag("struct", struct {
		ID int `json:"id"`
	}{ID: 42})
	span.SetTag("", "dropped")
	span.Finish()

	span.SetTag("late", "dropped")
	span.SetOperationName("late")
	assert.True(t, span.Finished())
	assert.False(t, span.Finish())

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	tags := attrs(ended[0])
	assert.Equal(t, "tags", ended[0].Name())
	assert.Equal(t, "v", tags["str"].AsString())
	assert.Equal(t, int64(7), tags["int"].AsInt64())
	assert.True(t, tags["bool"].AsBool())
	assert.Equal(t, 1.5, tags["float"].AsFloat64())
	assert.Equal(t, "raw", tags["bytes"].AsString())
	assert.Equal(t, `{"id":42}`, tags["struct"].AsString())
	assert.NotContains(t, tags, attributeKey("late"))
	assert.Len(t, tags, 6)
}
