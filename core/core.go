package core

import "github.com/hupe1980/threadmem/logging"

// loggerAdapter gives embedding types LogDebug..LogError shortcuts over a
// logging.Logger that is never nil.
type loggerAdapter struct {
	logger logging.Logger
}

func newLoggerAdapter(l logging.Logger) *loggerAdapter {
	if l == nil {
		return &loggerAdapter{logger: logging.NoOpLogger{}}
	}
	return &loggerAdapter{logger: l}
}

// Logger returns the wrapped logger.
func (l *loggerAdapter) Logger() logging.Logger { return l.logger }

func (l *loggerAdapter) LogDebug(msg string, args ...any) { l.logger.Debug(msg, args...) }
func (l *loggerAdapter) LogInfo(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l *loggerAdapter) LogWarn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l *loggerAdapter) LogError(msg string, args ...any) { l.logger.Error(msg, args...) }
