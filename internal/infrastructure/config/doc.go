// Package config provides 12-factor configuration management for the service.
//
// Configuration is loaded from environment variables with sensible defaults.
// CLI flags can override environment variables for development flexibility.
//
// Configuration Sections:
//   - Server: HTTP listen address and shutdown grace period
//   - API: Global route prefix and URI version (e.g. /api/v1)
//   - Logging: Log level and output format
//   - Tracing: Service name, sampling ratio, span log export, body capture
//   - CORS: Cross-origin settings
//   - RateLimit: Per-IP or global rate limiting configuration
//   - Client: Downstream HTTP client timeout and retries
//
// Example Usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//		return err
//	}
//	fmt.Printf("Server running on %s\n", cfg.Server.Addr())
//
// Environment Variables:
//   - PORT, HOST, SHUTDOWN_TIMEOUT
//   - API_PREFIX, API_VERSION
//   - LOG_LEVEL, LOG_DEV
//   - SERVICE_NAME, TRACE_ENABLED, TRACE_SAMPLE_RATIO, TRACE_LOG_SPANS,
//     TRACE_CAPTURE_BODY, TRACE_MAX_BODY_BYTES
//   - CORS_ENABLED, CORS_ORIGINS
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED, RATE_LIMIT_SCOPE,
//     RATE_LIMIT_IDLE_TTL
//   - CLIENT_TIMEOUT, CLIENT_RETRIES
package config
