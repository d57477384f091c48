/*
Package server assembles the traced HTTP service: logger, metrics, tracer,
middleware chain and built-in routes.

Middleware order:

	gin.Recovery          outermost, turns re-raised panics into 500s
	tracing.HTTPMiddleware
	monitoring.Middleware
	middleware.RequestID
	middleware.CORS       when CORS_ENABLED
	middleware.RateLimit  when RATE_LIMIT_ENABLED (per IP or global)

Routes:

	GET /               service info
	GET /health         health and tracer status
	GET /metrics        Prometheus exposition
	GET /metrics/json   metrics snapshot
	GET /api/v1/tracing tracer status and span counters

Application routes go on the versioned group returned by API:

	s, err := server.NewServer(cfg)
	s.API().GET("/users/:id", getUser)

	// Downstream calls from a handler continue the request's trace
	resp, err := s.HTTPClient().R().SetContext(c.Request.Context()).Get(url)

	err = s.Run(ctx)
	s.Close()
*/
package server
