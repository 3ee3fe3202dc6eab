package clarion

// Logger defines the interface for application logging.
// Clarion uses structured logging with key-value pairs to provide
// consistent, parseable log output across all packages.
//
// The Logger interface uses variadic arguments in key-value pairs:
//
//	logger.Info("message", "key1", "value1", "key2", "value2")
//
// This approach is compatible with popular structured logging libraries
// like slog, logrus, zap, and others. Example implementation using
// Go's standard log/slog:
//
//	type SlogLogger struct {
//	    logger *slog.Logger
//	}
//
//	func (l *SlogLogger) Info(msg string, args ...any) {
//	    l.logger.Info(msg, args...)
//	}
type Logger interface {
	// Info logs an informational message with optional key-value pairs.
	Info(msg string, args ...any)

	// Error logs an error message with optional key-value pairs.
	Error(msg string, args ...any)

	// Warn logs a warning message with optional key-value pairs.
	Warn(msg string, args ...any)

	// Debug logs a debug message with optional key-value pairs.
	Debug(msg string, args ...any)
}

// NoopLogger discards all log output. It is useful as a default when no
// logger has been configured and in tests.
type NoopLogger struct{}

func (NoopLogger) Info(string, ...any)  {}
func (NoopLogger) Error(string, ...any) {}
func (NoopLogger) Warn(string, ...any)  {}
func (NoopLogger) Debug(string, ...any) {}
