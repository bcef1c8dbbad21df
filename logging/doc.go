// Package logging provides a minimal logging interface and adapters for devassist.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that the assistant loop, tools and HTTP server use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - ZapAdapter wrapping a *zap.Logger (used by the CLI)
//   - AssistLogger adding request scoped attributes and domain helpers
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	assistant := agent.New(model, registry, agent.WithLogger(logger))
package logging
