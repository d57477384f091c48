// Package middleware provides the HTTP middleware that runs behind the tracing
// middleware in the request pipeline.
//
// Middleware stack includes:
//   - CORS: Cross-origin resource sharing; trace context headers are allowed
//     and exposed so browser clients can join and read traces
//   - RateLimit: Per-IP or global token bucket rate limiting; idle per-IP
//     limiters are evicted after RATE_LIMIT_IDLE_TTL
//   - RequestID: X-Request-ID assignment, echoed and tagged on the span
//
// Rejections and IDs are recorded on the active request span, so this
// middleware must be registered after tracing.HTTPMiddleware.
//
// Example Usage:
//
//	router.Use(tracing.HTTPMiddleware(interceptor))
//	router.Use(middleware.RequestID())
//	router.Use(middleware.CORS(middleware.CORSConfigFrom(cfg.CORS)))
//	router.Use(middleware.RateLimitFrom(cfg.RateLimit))
package middleware
