// Package logger is the logging seam of probez. The control path (session
// start and stop, instance setup, trigger delivery) logs through Logger; the
// emission fast path never does.
package logger

import "log/slog"

// Logger is a leveled structured logger taking alternating key-value args.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NoopLogger discards everything. It is the default.
type NoopLogger struct{}

// Debug does nothing.
func (*NoopLogger) Debug(_ string, _ ...any) {}

// Info does nothing.
func (*NoopLogger) Info(_ string, _ ...any) {}

// Warn does nothing.
func (*NoopLogger) Warn(_ string, _ ...any) {}

// Error does nothing.
func (*NoopLogger) Error(_ string, _ ...any) {}

// SlogAdapter forwards to a *slog.Logger, tagging every record with the
// producer it belongs to.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter wraps logger. A nil logger selects slog.Default().
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogAdapter{logger: logger}
}

// With returns an adapter whose records carry the extra key-value args.
func (a *SlogAdapter) With(args ...any) *SlogAdapter {
	return &SlogAdapter{logger: a.logger.With(args...)}
}

// Debug logs at debug level.
func (a *SlogAdapter) Debug(msg string, args ...any) {
	a.logger.Debug(msg, args...)
}

// Info logs at info level.
func (a *SlogAdapter) Info(msg string, args ...any) {
	a.logger.Info(msg, args...)
}

// Warn logs at warn level.
func (a *SlogAdapter) Warn(msg string, args ...any) {
	a.logger.Warn(msg, args...)
}

// Error logs at error level.
func (a *SlogAdapter) Error(msg string, args ...any) {
	a.logger.Error(msg, args...)
}
