package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// LogLevel is a thin enum for user friendly level configuration decoupled from slog.
type LogLevel int

const (
	// LogLevelDebug is the debug logging level.
	LogLevelDebug LogLevel = iota
	// LogLevelInfo is the informational logging level.
	LogLevelInfo
	// LogLevelWarn is the warning logging level.
	LogLevelWarn
	// LogLevelError is the error logging level.
	LogLevelError
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a case-insensitive level name into a LogLevel,
// defaulting to info for unknown input.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LogLevelDebug
	case "warn", "warning":
		return LogLevelWarn
	case "error":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

// Logger defines the minimal logging interface used across threadmem.
// args are alternating key/value pairs as accepted by log/slog.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SlogAdapter wraps *slog.Logger to implement the Logger interface.
type SlogAdapter struct {
	*slog.Logger
}

// Debug logs a debug message.
func (s *SlogAdapter) Debug(msg string, args ...any) { s.Logger.Debug(msg, args...) }

// Info logs an informational message.
func (s *SlogAdapter) Info(msg string, args ...any) { s.Logger.Info(msg, args...) }

// Warn logs a warning message.
func (s *SlogAdapter) Warn(msg string, args ...any) { s.Logger.Warn(msg, args...) }

// Error logs an error message.
func (s *SlogAdapter) Error(msg string, args ...any) { s.Logger.Error(msg, args...) }

// NewSlogAdapter creates a Logger from *slog.Logger.
func NewSlogAdapter(logger *slog.Logger) Logger {
	return &SlogAdapter{Logger: logger}
}

// NewDefaultSlogLogger creates a Logger using slog.Default().
func NewDefaultSlogLogger() Logger {
	return NewSlogAdapter(slog.Default())
}

// MemoryLogger wraps slog.Logger adding contextual cloning helpers (component,
// thread, run) and memory specific convenience methods. Copies are cheap via
// the With* methods.
type MemoryLogger struct {
	logger    *slog.Logger
	level     LogLevel
	attrs     map[string]any
	component string
	threadID  string
	runID     string
}

// LoggerConfig configures construction of a MemoryLogger.
type LoggerConfig struct {
	Level     LogLevel
	Format    string // json or text
	Output    io.Writer
	AddSource bool
	Component string
	Attrs     map[string]any
}

// DefaultLoggerConfig returns a baseline JSON info level configuration.
func DefaultLoggerConfig() *LoggerConfig {
	return &LoggerConfig{Level: LogLevelInfo, Format: "json", Output: os.Stdout, Attrs: map[string]any{}}
}

// NewLogger builds a MemoryLogger from a config (or defaults if nil).
func NewLogger(cfg *LoggerConfig) *MemoryLogger {
	if cfg == nil {
		cfg = DefaultLoggerConfig()
	}
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: slogLevel(cfg.Level), AddSource: cfg.AddSource}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}
	attrs := make(map[string]any, len(cfg.Attrs))
	for k, v := range cfg.Attrs {
		attrs[k] = v
	}
	return &MemoryLogger{logger: slog.New(handler), level: cfg.Level, attrs: attrs, component: cfg.Component}
}

// NewSlogLogger creates a MemoryLogger with the given level and format.
func NewSlogLogger(level LogLevel, format string, addSource bool) *MemoryLogger {
	cfg := DefaultLoggerConfig()
	cfg.Level = level
	if format != "" {
		cfg.Format = format
	}
	cfg.AddSource = addSource
	return NewLogger(cfg)
}

func slogLevel(l LogLevel) slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l *MemoryLogger) clone() *MemoryLogger {
	nl := *l
	nl.attrs = make(map[string]any, len(l.attrs))
	for k, v := range l.attrs {
		nl.attrs[k] = v
	}
	return &nl
}

// WithAttr adds a key/value attribute attached to every log entry.
func (l *MemoryLogger) WithAttr(key string, value any) *MemoryLogger {
	nl := l.clone()
	nl.attrs[key] = value
	return nl
}

// WithComponent sets the logical component (thread_store, recall, working_memory, ...).
func (l *MemoryLogger) WithComponent(c string) *MemoryLogger {
	nl := l.clone()
	nl.component = c
	return nl
}

// WithThread attaches thread and run identifiers.
func (l *MemoryLogger) WithThread(threadID, runID string) *MemoryLogger {
	nl := l.clone()
	nl.threadID = threadID
	nl.runID = runID
	return nl
}

func (l *MemoryLogger) buildAttrs() []slog.Attr {
	attrs := make([]slog.Attr, 0, len(l.attrs)+3)
	if l.component != "" {
		attrs = append(attrs, slog.String("component", l.component))
	}
	if l.threadID != "" {
		attrs = append(attrs, slog.String("thread_id", l.threadID))
	}
	if l.runID != "" {
		attrs = append(attrs, slog.String("run_id", l.runID))
	}
	for k, v := range l.attrs {
		attrs = append(attrs, slog.Any(k, v))
	}
	return attrs
}

func (l *MemoryLogger) log(level slog.Level, allowed bool, msg string, args ...any) {
	if !allowed {
		return
	}
	r := slog.NewRecord(time.Now(), level, msg, 0)
	r.AddAttrs(l.buildAttrs()...)
	r.Add(args...)
	_ = l.logger.Handler().Handle(context.Background(), r)
}

// Debug logs at debug level.
func (l *MemoryLogger) Debug(msg string, args ...any) {
	l.log(slog.LevelDebug, l.level <= LogLevelDebug, msg, args...)
}

// Info logs at info level.
func (l *MemoryLogger) Info(msg string, args ...any) {
	l.log(slog.LevelInfo, l.level <= LogLevelInfo, msg, args...)
}

// Warn logs at warn level.
func (l *MemoryLogger) Warn(msg string, args ...any) {
	l.log(slog.LevelWarn, l.level <= LogLevelWarn, msg, args...)
}

// Error logs at error level.
func (l *MemoryLogger) Error(msg string, args ...any) {
	l.log(slog.LevelError, l.level <= LogLevelError, msg, args...)
}

// LogRecall records the outcome of assembling one context window.
func (l *MemoryLogger) LogRecall(recent, semantic, hits int, degraded bool, dur time.Duration) {
	level, allowed := slog.LevelInfo, l.level <= LogLevelInfo
	if degraded {
		level, allowed = slog.LevelWarn, l.level <= LogLevelWarn
	}
	l.log(level, allowed, "recall.assembled",
		"recent_count", recent,
		"semantic_count", semantic,
		"hit_count", hits,
		"degraded", degraded,
		"duration", dur,
	)
}

// LogEmbedding records embedder latency and outcome.
func (l *MemoryLogger) LogEmbedding(model string, dims int, dur time.Duration, err error) {
	if err != nil {
		l.Error("embedder.call.failed", "model", model, "duration", dur, "error", err.Error())
		return
	}
	l.Debug("embedder.call.success", "model", model, "dimensions", dims, "duration", dur)
}

// ForComponent scopes l to a component when it is a *MemoryLogger. Other
// loggers are returned unchanged.
func ForComponent(l Logger, component string) Logger {
	if ml, ok := l.(*MemoryLogger); ok {
		return ml.WithComponent(component)
	}
	return l
}

// ForRun attaches thread and run identifiers when l is a *MemoryLogger.
func ForRun(l Logger, threadID, runID string) Logger {
	if ml, ok := l.(*MemoryLogger); ok {
		return ml.WithThread(threadID, runID)
	}
	return l
}

// NoOpLogger discards all log messages. Useful for testing or when logging is disabled.
type NoOpLogger struct{}

// Debug logs a debug message.
func (NoOpLogger) Debug(string, ...any) {}

// Info logs an informational message.
func (NoOpLogger) Info(string, ...any) {}

// Warn logs a warning message.
func (NoOpLogger) Warn(string, ...any) {}

// Error logs an error message.
func (NoOpLogger) Error(string, ...any) {}
