// Package logging provides a minimal logging interface and adapters for threadmem.
//
// The Logger interface defines the leveled methods (Debug, Info, Warn, Error)
// that stores, the recall assembler and the working memory updater use for
// observability. Arguments follow the log/slog key/value convention. This
// package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping any *slog.Logger
//   - MemoryLogger with thread/run context and recall specific helpers
//   - NoOpLogger for silent operation (tests, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	mem, err := threadmem.New(func(o *threadmem.Options) { o.Logger = logger })
package logging
