// Package logging provides a minimal logging interface and adapters for agentcrew.
//
// The Logger interface defines the key/value logging methods (Debug, Info,
// Warn, Error) that routers, group chats and the endpoint manager use for
// observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - ZerologAdapter for human friendly console output
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", os.Stderr)
//	mgr := endpoint.NewManager(func(o *endpoint.Options) { o.Logger = logger })
package logging
