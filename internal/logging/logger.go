package logging

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"
)

// LogLevel is the minimum severity a logger emits
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
}

// ParseLevel maps a config log level name (quiet, normal, verbose, debug) to a LogLevel
func ParseLevel(name string) LogLevel {
	switch name {
	case "debug", "verbose":
		return DEBUG
	case "quiet":
		return WARN
	default:
		return INFO
	}
}

// Field is a structured key/value attached to a log line
type Field struct {
	Key   string
	Value interface{}
}

// F is shorthand for building a Field
func F(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// LogEntry is the JSON shape written by FileLogger
type LogEntry struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	TraceID   string                 `json:"traceId,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Logger is the structured logging interface used throughout the agent
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	WithTraceID(traceID string) Logger
	WithContext(ctx context.Context) Logger
	SetLevel(level LogLevel)
	Close() error
}

// LogConfig configures NewLogger
type LogConfig struct {
	Level           LogLevel
	OutputFile      string
	EnableConsole   bool
	EnableDebug     bool
	RedactSensitive bool
	EnableColor     bool
	EnableTimestamp bool
	MaxFileSize     int64
	MaxBackups      int
}

// DefaultLogConfig returns the default logging configuration
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:           INFO,
		EnableConsole:   true,
		RedactSensitive: true,
		EnableColor:     true,
		EnableTimestamp: true,
		MaxFileSize:     100 * 1024 * 1024,
		MaxBackups:      5,
	}
}

// NewLogger builds a console, file, multi, or no-op logger from config
func NewLogger(config LogConfig) (Logger, error) {
	var loggers []Logger

	if config.OutputFile != "" {
		fileLogger, err := NewFileLogger(FileLoggerConfig{
			FilePath:      config.OutputFile,
			Level:         config.Level,
			MaxFileSize:   config.MaxFileSize,
			MaxBackups:    config.MaxBackups,
			RotateEnabled: config.MaxFileSize > 0,
		})
		if err != nil {
			return nil, err
		}
		loggers = append(loggers, fileLogger)
	}

	if config.EnableConsole {
		loggers = append(loggers, NewConsoleLogger(ConsoleLoggerConfig{
			Writer:           os.Stderr,
			Level:            config.Level,
			ColorEnabled:     config.EnableColor,
			TimestampEnabled: config.EnableTimestamp,
			RedactSensitive:  config.RedactSensitive,
		}))
	}

	switch len(loggers) {
	case 0:
		return NewNoOpLogger(), nil
	case 1:
		return loggers[0], nil
	default:
		return NewMultiLogger(loggers...), nil
	}
}

// NewDebugLoggerWithTransport builds a logger and, when debug is enabled, an
// HTTP transport that logs every request through it
func NewDebugLoggerWithTransport(config LogConfig) (Logger, *DebugTransport, error) {
	if config.EnableDebug {
		config.Level = DEBUG
	}
	logger, err := NewLogger(config)
	if err != nil {
		return nil, nil, err
	}
	if !config.EnableDebug {
		return logger, nil, nil
	}
	return logger, NewDebugTransport(nil, logger), nil
}

type traceIDKey struct{}

// ContextWithTraceID stores a trace ID on the context
func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey{}, traceID)
}

// TraceIDFromContext returns the trace ID stored on ctx, or ""
func TraceIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(traceIDKey{}).(string); ok {
		return v
	}
	return ""
}

// MultiLogger fans every call out to several loggers
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger creates a logger writing to all given loggers
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{loggers: loggers}
}

func (m *MultiLogger) Debug(msg string, fields ...Field) {
	for _, l := range m.loggers {
		l.Debug(msg, fields...)
	}
}

func (m *MultiLogger) Info(msg string, fields ...Field) {
	for _, l := range m.loggers {
		l.Info(msg, fields...)
	}
}

func (m *MultiLogger) Warn(msg string, fields ...Field) {
	for _, l := range m.loggers {
		l.Warn(msg, fields...)
	}
}

func (m *MultiLogger) Error(msg string, fields ...Field) {
	for _, l := range m.loggers {
		l.Error(msg, fields...)
	}
}

func (m *MultiLogger) WithTraceID(traceID string) Logger {
	traced := make([]Logger, 0, len(m.loggers))
	for _, l := range m.loggers {
		traced = append(traced, l.WithTraceID(traceID))
	}
	return &MultiLogger{loggers: traced}
}

func (m *MultiLogger) WithContext(ctx context.Context) Logger {
	traceID := TraceIDFromContext(ctx)
	if traceID == "" {
		return m
	}
	return m.WithTraceID(traceID)
}

func (m *MultiLogger) SetLevel(level LogLevel) {
	for _, l := range m.loggers {
		l.SetLevel(level)
	}
}

// Close closes every logger and returns the first error
func (m *MultiLogger) Close() error {
	var firstErr error
	for _, l := range m.loggers {
		if err := l.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// NoOpLogger discards everything
type NoOpLogger struct{}

// NewNoOpLogger creates a logger that discards all output
func NewNoOpLogger() *NoOpLogger {
	return &NoOpLogger{}
}

func (n *NoOpLogger) Debug(string, ...Field) {}
func (n *NoOpLogger) Info(string, ...Field) {}
func (n *NoOpLogger) Warn(string, ...Field) {}
func (n *NoOpLogger) Error(string, ...Field) {}
func (n *NoOpLogger) WithTraceID(string) Logger { return n }
func (n *NoOpLogger) WithContext(context.Context) Logger { return n }
func (n *NoOpLogger) SetLevel(LogLevel) {}
func (n *NoOpLogger) Close() error { return nil }

// Rotate reopens log files held by l, including those behind a MultiLogger.
// Loggers without a file are ignored.
func Rotate(l Logger) error {
	if r, ok := l.(interface{ Rotate() error }); ok {
		return r.Rotate()
	}
	return nil
}

func (m *MultiLogger) Rotate() error {
	var errs []error
	for _, l := range m.loggers {
		if err := Rotate(l); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
