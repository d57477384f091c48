/*
Package tracing attaches a server span to every inbound request and
propagates trace context across service boundaries.

# Overview

The Interceptor owns the span lifecycle of a single exchange:

	Begin  - extract the upstream context from the request headers, start a
	         child span named after the route template, tag it and inject
	         its context into the response headers
	handler runs (opaque)
	Finish - tag the outcome, rename from the (now resolved) route and
	         finish the span exactly once, success or failure

Handler errors are observed, never swallowed or rewritten. A misbehaving
tracer degrades to an untraced request instead of a failed one.

# Usage

	// Create tracer (once per process)
	tracer, err := tracing.New(tracing.Config{ServiceName: "orders", SampleRatio: 1}, logger)
	defer tracer.Shutdown(ctx)

	interceptor := tracing.NewInterceptor(tracer,
		tracing.WithLogger(logger),
		tracing.WithRecorder(metrics),
	)

	// Gin middleware
	router.Use(tracing.HTTPMiddleware(interceptor))

	// net/http middleware
	handler := tracing.Middleware(interceptor)(mux)

	// gRPC
	server := grpc.NewServer(grpc.UnaryInterceptor(tracing.GRPCUnaryInterceptor(interceptor)))
	conn, err := grpc.NewClient(addr, grpc.WithUnaryInterceptor(tracing.GRPCClientInterceptor(tracer, logger)))

	// Outbound HTTP: the span in the request context is injected
	client := tracing.NewHTTPClient(tracer, tracing.ClientConfig{Timeout: 5 * time.Second}, logger)
	resp, err := client.R().SetContext(ctx).Get(url)

	// Handlers add their own tags
	if span := tracing.SpanFromContext(ctx); span != nil {
		span.SetTag("user.id", id)
	}

# Propagation

Context travels in W3C Trace Context headers (traceparent, tracestate)
plus W3C baggage.

# Tags

Every span carries http.method, span.kind, http.url and http.status_code,
the request_received and response_finished events, and optionally the
request and response bodies. Failed requests additionally carry error=true
and sampling.priority=1.
*/
package tracing
