/*
Package monitoring provides Prometheus metrics for the HTTP pipeline and the
request tracer.

# Metrics

	spanwire_http_requests_total{method,route,status}
	spanwire_http_request_duration_seconds{method,route}
	spanwire_http_request_size_bytes{method,route}
	spanwire_http_response_size_bytes{method,route}
	spanwire_tracing_spans_finished_total{outcome}
	spanwire_tracing_failures_total{stage}
	spanwire_tracing_guard_state{guard}
	spanwire_uptime_seconds

Routes are labelled with their template (c.FullPath()), never the raw path.

# Usage

	registry := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(registry)

	// Add middleware to Gin router
	router.Use(monitoring.Middleware(metrics))

	// Count span lifecycle events
	interceptor := tracing.NewInterceptor(tracer, tracing.WithRecorder(metrics))

	// Expose
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
*/
package monitoring
