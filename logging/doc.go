// Package logging provides a minimal logging interface and adapters for agentstage.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that the engine, turn runner and server use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - NoOpLogger for silent operation (testing, minimal setups)
//   - With* helpers attaching session / agent / component attributes
//
// Usage:
//
//	logger := logging.NewLogger(&logging.LoggerConfig{Level: logging.LogLevelInfo, Format: "text"})
//	eng := engine.New(func(o *engine.Options) { o.Logger = logger })
package logging
