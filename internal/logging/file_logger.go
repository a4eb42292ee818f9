package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileLogger implements Logger interface for file-based logging
type FileLogger struct {
	sink    *fileSink
	level   *levelHolder
	traceID string
}

// fileSink is shared by a FileLogger and every traced copy of it
type fileSink struct {
	mu  sync.Mutex
	out *lumberjack.Logger
}

type levelHolder struct {
	mu    sync.RWMutex
	level LogLevel
}

func (h *levelHolder) get() LogLevel {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.level
}

func (h *levelHolder) set(level LogLevel) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.level = level
}

// FileLoggerConfig contains configuration for file logger
type FileLoggerConfig struct {
	FilePath      string
	Level         LogLevel
	MaxFileSize   int64 // in bytes, 0 means no rotation
	MaxBackups    int
	RotateEnabled bool
}

const megabyte = 1024 * 1024

// NewFileLogger creates a new file logger
func NewFileLogger(config FileLoggerConfig) (*FileLogger, error) {
	// Create directory if it doesn't exist
	dir := filepath.Dir(config.FilePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	// lumberjack opens lazily; fail fast on an unwritable path instead
	file, err := os.OpenFile(config.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close log file: %w", err)
	}

	out := &lumberjack.Logger{
		Filename:   config.FilePath,
		MaxBackups: config.MaxBackups,
	}
	if config.RotateEnabled && config.MaxFileSize > 0 {
		// lumberjack sizes are in whole megabytes
		out.MaxSize = int((config.MaxFileSize + megabyte - 1) / megabyte)
	} else {
		out.MaxSize = 1 << 20
	}

	return &FileLogger{
		sink:  &fileSink{out: out},
		level: &levelHolder{level: config.Level},
	}, nil
}

// log writes a log entry to the file
func (l *FileLogger) log(level LogLevel, msg string, fields ...Field) {
	if level < l.level.get() {
		return
	}

	entry := LogEntry{
		Timestamp: time.Now().UTC(),
		Level:     level.String(),
		Message:   msg,
		TraceID:   l.traceID,
		Fields:    make(map[string]interface{}),
	}

	// Add fields to entry
	for _, field := range fields {
		value := field.Value
		if err, ok := value.(error); ok {
			value = err.Error()
		}
		entry.Fields[field.Key] = value
	}

	data, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to marshal log entry: %v\n", err)
		return
	}
	data = append(data, '\n')

	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	if _, err := l.sink.out.Write(data); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write log entry: %v\n", err)
	}
}

// Rotate closes the current file, renames it with a timestamp, and starts a new one
func (l *FileLogger) Rotate() error {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	return l.sink.out.Rotate()
}

// Debug logs a debug-level message
func (l *FileLogger) Debug(msg string, fields ...Field) {
	l.log(DEBUG, msg, fields...)
}

// Info logs an info-level message
func (l *FileLogger) Info(msg string, fields ...Field) {
	l.log(INFO, msg, fields...)
}

// Warn logs a warning-level message
func (l *FileLogger) Warn(msg string, fields ...Field) {
	l.log(WARN, msg, fields...)
}

// Error logs an error-level message
func (l *FileLogger) Error(msg string, fields ...Field) {
	l.log(ERROR, msg, fields...)
}

// WithTraceID returns a new logger with the trace ID set
func (l *FileLogger) WithTraceID(traceID string) Logger {
	return &FileLogger{
		sink:    l.sink,
		level:   l.level,
		traceID: traceID,
	}
}

// WithContext returns a new logger that extracts trace ID from context
func (l *FileLogger) WithContext(ctx context.Context) Logger {
	traceID := TraceIDFromContext(ctx)
	if traceID == "" {
		return l
	}
	return l.WithTraceID(traceID)
}

// SetLevel sets the minimum log level
func (l *FileLogger) SetLevel(level LogLevel) {
	l.level.set(level)
}

// Close closes the log file
func (l *FileLogger) Close() error {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	return l.sink.out.Close()
}
