// Package logging provides structured logging using uber/zap.
//
// Two output modes are supported:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Components obtain a named child logger so every entry carries its origin:
//
//	logger, err := logging.New(logging.Config{Level: "info"})
//	tracerLog := logger.Component("tracing")
//	tracerLog.Warn("inject failed", zap.Error(err))
package logging
