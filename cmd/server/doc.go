// Package main is the entry point for the traced HTTP service.
//
// Every inbound request gets a server span joined to the caller's trace
// (W3C traceparent); the span context is returned in the response headers.
//
// Configuration:
//   - Environment variables (see internal/infrastructure/config)
//   - CLI flags (override env vars)
//
// Usage:
//
//	./server --port 8000 --service-name orders
//
//	# Development mode (console logs, every span logged)
//	./server --dev --log-level debug --log-spans
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown, pending spans are flushed
package main
