package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"google.golang.org/grpc"

	"github.com/GriffinCanCode/spanwire/internal/api/middleware"
	"github.com/GriffinCanCode/spanwire/internal/infrastructure/config"
	"github.com/GriffinCanCode/spanwire/internal/infrastructure/logging"
	"github.com/GriffinCanCode/spanwire/internal/infrastructure/tracing"
)

const upstreamParent = "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"

func newTestServer(t *testing.T, mutate func(*config.Config)) (*Server, *tracetest.SpanRecorder) {
	t.Helper()
	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.ShutdownTimeout = 2 * time.Second
	if mutate != nil {
		mutate(cfg)
	}

	recorder := tracetest.NewSpanRecorder()
	s, err := NewServer(cfg,
		WithLogger(logging.NewNop()),
		WithTracerProviderOptions(sdktrace.WithSpanProcessor(recorder)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s.Close()) })
	return s, recorder
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func spanAttr(span sdktrace.ReadOnlySpan, key string) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestNewServerRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Tracing.SampleRatio = 2

	s, err := NewServer(cfg, WithLogger(logging.NewNop()))
	require.Error(t, err)
	assert.Nil(t, s)
}

func TestBuiltinRoutes(t *testing.T) {
	s, recorder := newTestServer(t, nil)

	tests := []struct {
		name string
		path string
		want map[string]any
	}{
		{name: "root", path: "/", want: map[string]any{"status": "online", "service": "spanwire", "api": "/api/v1"}},
		{name: "health", path: "/health", want: map[string]any{"status": "healthy"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder.Reset()
			w := serve(s, httptest.NewRequest(http.MethodGet, tt.path, nil))

			assert.Equal(t, http.StatusOK, w.Code)
			assert.NotEmpty(t, w.Header().Get("Traceparent"))
			assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))

			body := decode(t, w)
			for k, v := range tt.want {
				assert.Equal(t, v, body[k], k)
			}

			ended := recorder.Ended()
			require.Len(t, ended, 1)
			assert.Equal(t, tt.path, ended[0].Name())
		})
	}
}

func TestHealthReportsTracing(t *testing.T) {
	s, _ := newTestServer(t, nil)

	body := decode(t, serve(s, httptest.NewRequest(http.MethodGet, "/health", nil)))
	tracingStatus, ok := body["tracing"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, tracingStatus["enabled"])
	assert.Equal(t, "closed", tracingStatus["guard"])
}

func TestAPIRoutesAreTraced(t *testing.T) {
	s, recorder := newTestServer(t, nil)
	s.API().GET("/users/:id", func(c *gin.Context) {
		tracing.SpanFromGin(c).SetTag("user.id", c.Param("id"))
		c.JSON(http.StatusOK, gin.H{"id": 42})
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/42", nil)
	req.Header.Set("traceparent", upstreamParent)
	w := serve(s, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Traceparent"), "4bf92f3577b34da6a3ce929d0e0e4736")

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	span := ended[0]
	assert.Equal(t, "/api/v1/users/:id", span.Name())
	assert.Equal(t, "00f067aa0ba902b7", span.Parent().SpanID().String())

	userID, ok := spanAttr(span, "user.id")
	require.True(t, ok)
	assert.Equal(t, "42", userID.AsString())

	requestID, ok := spanAttr(span, middleware.TagRequestID)
	require.True(t, ok)
	assert.Equal(t, w.Header().Get(middleware.RequestIDHeader), requestID.AsString())

	body, ok := spanAttr(span, tracing.TagResponseBody)
	require.True(t, ok)
	assert.Equal(t, `{"id":42}`, body.AsString())
}

func TestHandlerErrorsAndPanics(t *testing.T) {
	s, recorder := newTestServer(t, nil)
	s.API().POST("/orders", func(c *gin.Context) {
		_ = c.Error(fmt.Errorf("insufficient stock"))
		c.JSON(http.StatusConflict, gin.H{"error": "insufficient stock"})
	})
	s.API().GET("/boom", func(*gin.Context) {
		panic("boom")
	})

	w := serve(s, httptest.NewRequest(http.MethodPost, "/api/v1/orders", nil))
	assert.Equal(t, http.StatusConflict, w.Code)

	w = serve(s, httptest.NewRequest(http.MethodGet, "/api/v1/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	ended := recorder.Ended()
	require.Len(t, ended, 2)
	for _, span := range ended {
		flag, ok := spanAttr(span, tracing.TagError)
		require.True(t, ok, span.Name())
		assert.True(t, flag.AsBool())
	}

	snap := s.Metrics().Snapshot()
	assert.Equal(t, int64(2), snap.SpanErrors)
}

func TestMetricsEndpoints(t *testing.T) {
	s, _ := newTestServer(t, nil)

	serve(s, httptest.NewRequest(http.MethodGet, "/health", nil))

	w := serve(s, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	text := w.Body.String()
	assert.Contains(t, text, `spanwire_http_requests_total{method="GET",route="/health",status="200"} 1`)
	assert.Contains(t, text, `spanwire_tracing_spans_finished_total{outcome="ok"}`)
	assert.Contains(t, text, "go_goroutines")

	body := decode(t, serve(s, httptest.NewRequest(http.MethodGet, "/metrics/json", nil)))
	assert.GreaterOrEqual(t, body["total_requests"], 2.0)

	status := decode(t, serve(s, httptest.NewRequest(http.MethodGet, "/api/v1/tracing", nil)))
	assert.Equal(t, "spanwire", status["service_name"])
	assert.GreaterOrEqual(t, status["spans_finished"], 3.0)
}

func TestTracingDisabled(t *testing.T) {
	s, recorder := newTestServer(t, func(cfg *config.Config) {
		cfg.Tracing.Enabled = false
	})

	w := serve(s, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Traceparent"))
	assert.Empty(t, recorder.Ended())

	tracingStatus := decode(t, w)["tracing"].(map[string]any)
	assert.Equal(t, false, tracingStatus["enabled"])

	assert.Empty(t, s.GRPCServerOptions())
	assert.Empty(t, s.GRPCDialOptions())
}

func TestCustomAPIPrefix(t *testing.T) {
	s, recorder := newTestServer(t, func(cfg *config.Config) {
		cfg.API.Prefix = "svc"
		cfg.API.Version = "v2"
	})
	s.API().GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})

	assert.Equal(t, http.StatusOK, serve(s, httptest.NewRequest(http.MethodGet, "/svc/v2/ping", nil)).Code)
	assert.Equal(t, http.StatusNotFound, serve(s, httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil)).Code)

	ended := recorder.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, "/svc/v2/ping", ended[0].Name())
	assert.Equal(t, http.MethodGet, ended[1].Name())
}

func TestGlobalRateLimitWired(t *testing.T) {
	s, recorder := newTestServer(t, func(cfg *config.Config) {
		cfg.RateLimit.Enabled = true
		cfg.RateLimit.Scope = config.RateLimitScopeGlobal
		cfg.RateLimit.RequestsPerSecond = 1
		cfg.RateLimit.Burst = 1
	})

	first := httptest.NewRequest(http.MethodGet, "/health", nil)
	first.RemoteAddr = "10.0.0.1:1234"
	assert.Equal(t, http.StatusOK, serve(s, first).Code)

	recorder.Reset()
	second := httptest.NewRequest(http.MethodGet, "/health", nil)
	second.RemoteAddr = "10.0.0.2:1234"
	w := serve(s, second)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, w.Header().Get(middleware.RequestIDHeader), decode(t, w)["request_id"])

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	limited, ok := spanAttr(ended[0], "rate_limited")
	require.True(t, ok)
	assert.True(t, limited.AsBool())
}

func TestGRPCOptions(t *testing.T) {
	s, _ := newTestServer(t, nil)

	serverOpts := s.GRPCServerOptions()
	require.Len(t, serverOpts, 1)
	srv := grpc.NewServer(serverOpts...)
	srv.Stop()

	assert.Len(t, s.GRPCDialOptions(), 1)
}

func TestHTTPClientPropagatesRequestSpan(t *testing.T) {
	received := make(chan string, 1)
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received <- r.Header.Get("traceparent") + "|" + r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(downstream.Close)

	s, recorder := newTestServer(t, func(cfg *config.Config) {
		cfg.Client.RetryCount = 0
	})
	client := s.HTTPClient()
	t.Cleanup(client.GetClient().CloseIdleConnections)

	s.API().GET("/proxy", func(c *gin.Context) {
		resp, err := client.R().SetContext(c.Request.Context()).Get(downstream.URL)
		if err != nil {
			_ = c.AbortWithError(http.StatusBadGateway, err)
			return
		}
		c.Status(resp.StatusCode())
	})

	w := serve(s, httptest.NewRequest(http.MethodGet, "/api/v1/proxy", nil))
	require.Equal(t, http.StatusNoContent, w.Code)

	ended := recorder.Ended()
	require.Len(t, ended, 1)

	got := <-received
	assert.Contains(t, got, ended[0].SpanContext().SpanID().String())
	assert.Contains(t, got, ended[0].SpanContext().TraceID().String())
	assert.True(t, strings.HasSuffix(got, "|spanwire"))
}

func TestHTTPClientWithoutTracing(t *testing.T) {
	received := make(chan string, 1)
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received <- r.Header.Get("traceparent")
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(downstream.Close)

	s, _ := newTestServer(t, func(cfg *config.Config) {
		cfg.Tracing.Enabled = false
	})
	client := s.HTTPClient()
	t.Cleanup(client.GetClient().CloseIdleConnections)

	resp, err := client.R().SetContext(context.Background()).Get(downstream.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode())
	assert.Empty(t, <-received)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	s, _ := newTestServer(t, nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}, Timeout: 2 * time.Second}
	resp, err := client.Get("http://" + ln.Addr().String() + "/health")
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
