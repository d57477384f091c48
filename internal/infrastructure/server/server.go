package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-resty/resty/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/GriffinCanCode/spanwire/internal/api/middleware"
	"github.com/GriffinCanCode/spanwire/internal/infrastructure/config"
	"github.com/GriffinCanCode/spanwire/internal/infrastructure/logging"
	"github.com/GriffinCanCode/spanwire/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/spanwire/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/spanwire/internal/infrastructure/tracing"
)

const readHeaderTimeout = 10 * time.Second

// Server wraps the HTTP server and dependencies
type Server struct {
	router      *gin.Engine
	api         *gin.RouterGroup
	logger      *logging.Logger
	config      *config.Config
	metrics     *monitoring.Metrics
	registry    *prometheus.Registry
	tracer      *tracing.Tracer
	interceptor *tracing.Interceptor
	guard       *resilience.Guard
}

type options struct {
	logger        *logging.Logger
	tracerOptions []sdktrace.TracerProviderOption
}

// Option customizes server construction.
type Option func(*options)

// WithLogger uses logger instead of building one from the config.
func WithLogger(logger *logging.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithTracerProviderOptions passes extra options to the tracer provider,
// e.g. additional span processors.
func WithTracerProviderOptions(opts ...sdktrace.TracerProviderOption) Option {
	return func(o *options) {
		o.tracerOptions = append(o.tracerOptions, opts...)
	}
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		var err error
		logger, err = logging.New(logging.Config{
			Level:       cfg.Logging.Level,
			Development: cfg.Logging.Development,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
	}

	logger.Info("Initializing server",
		zap.String("addr", cfg.Server.Addr()),
		zap.String("service", cfg.Tracing.ServiceName),
		zap.String("api", cfg.API.BasePath()),
	)

	// Metrics first; the tracer reports into them
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := monitoring.NewMetrics(registry)

	s := &Server{
		logger:   logger,
		config:   cfg,
		metrics:  metrics,
		registry: registry,
	}

	if cfg.Tracing.Enabled {
		if err := s.initTracing(o.tracerOptions); err != nil {
			return nil, err
		}
	} else {
		logger.Info("Distributed tracing disabled")
	}

	s.initRouter()

	logger.Info("Server initialized successfully")
	return s, nil
}

func (s *Server) initTracing(providerOpts []sdktrace.TracerProviderOption) error {
	cfg := s.config.Tracing

	tracer, err := tracing.New(tracing.Config{
		ServiceName: cfg.ServiceName,
		SampleRatio: cfg.SampleRatio,
		LogSpans:    cfg.LogSpans,
	}, s.logger.Component("tracing"), providerOpts...)
	if err != nil {
		return fmt.Errorf("failed to create tracer: %w", err)
	}

	guard := resilience.NewGuard("tracer", resilience.Settings{
		OnStateChange: func(name string, from, to resilience.State) {
			s.metrics.SetGuardState(name, to)
			s.logger.Warn("Tracer guard state changed",
				zap.String("guard", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		},
	})

	s.tracer = tracer
	s.guard = guard
	s.interceptor = tracing.NewInterceptor(tracer,
		tracing.WithLogger(s.logger.Component("tracing")),
		tracing.WithRecorder(s.metrics),
		tracing.WithGuard(guard),
		tracing.WithBodyCapture(cfg.CaptureBody, cfg.MaxBodyBytes),
	)

	s.logger.Info("Distributed tracing initialized",
		zap.Float64("sample_ratio", cfg.SampleRatio),
		zap.Bool("capture_body", cfg.CaptureBody),
	)
	return nil
}

func (s *Server) initRouter() {
	cfg := s.config

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Recovery stays outermost so the tracing middleware can finish the span
	// before a re-raised panic is turned into a 500.
	router.Use(gin.Recovery())
	if s.interceptor != nil {
		router.Use(tracing.HTTPMiddleware(s.interceptor))
	}
	router.Use(monitoring.Middleware(s.metrics))
	router.Use(middleware.RequestID())
	if cfg.CORS.Enabled {
		router.Use(middleware.CORS(middleware.CORSConfigFrom(cfg.CORS)))
	}
	if cfg.RateLimit.Enabled {
		s.logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
			zap.String("scope", cfg.RateLimit.Scope),
		)
		router.Use(middleware.RateLimitFrom(cfg.RateLimit))
	}

	handlers := NewHandlers(cfg, s.metrics, s.guard)

	// Outside the API prefix
	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	router.GET("/metrics/json", handlers.Metrics)

	s.api = router.Group(cfg.API.BasePath())
	s.api.GET("/tracing", handlers.TracingStatus)

	s.router = router
}

// Router returns the underlying engine.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// API returns the versioned route group, e.g. /api/v1, for registering
// application routes.
func (s *Server) API() *gin.RouterGroup {
	return s.api
}

// Metrics returns the server's metrics collector.
func (s *Server) Metrics() *monitoring.Metrics {
	return s.metrics
}

// GRPCServerOptions returns the options that trace a gRPC server with the
// same interceptor as the HTTP pipeline. Empty when tracing is disabled.
func (s *Server) GRPCServerOptions() []grpc.ServerOption {
	if s.interceptor == nil {
		return nil
	}
	return []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(tracing.GRPCUnaryInterceptor(s.interceptor)),
	}
}

// GRPCDialOptions returns the options that propagate the request span to
// called gRPC services. Empty when tracing is disabled.
func (s *Server) GRPCDialOptions() []grpc.DialOption {
	if s.tracer == nil {
		return nil
	}
	return []grpc.DialOption{
		grpc.WithChainUnaryInterceptor(tracing.GRPCClientInterceptor(s.tracer, s.logger.Component("tracing"))),
	}
}

// HTTPClient returns a client for calling downstream services. The span in
// each request's context is propagated to the callee when tracing is enabled.
func (s *Server) HTTPClient() *resty.Client {
	var handle tracing.Handle
	if s.tracer != nil {
		handle = s.tracer
	}
	return tracing.NewHTTPClient(handle, tracing.ClientConfig{
		Timeout:    s.config.Client.Timeout,
		RetryCount: s.config.Client.RetryCount,
		UserAgent:  s.config.Tracing.ServiceName,
	}, s.logger.Component("client"))
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	addr := s.config.Server.Addr()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves HTTP on ln until ctx is done, then shuts down gracefully
// within the configured shutdown timeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Close flushes pending spans and syncs the logger.
func (s *Server) Close() error {
	s.logger.Info("Shutting down server...")

	if s.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
		defer cancel()
		if err := s.tracer.Shutdown(ctx); err != nil {
			s.logger.Error("Failed to shut down tracer", zap.Error(err))
			return fmt.Errorf("failed to shut down tracer: %w", err)
		}
	}

	// Sync errors on stdout/stderr are expected and ignored
	_ = s.logger.Sync()
	return nil
}
