package logging

import (
	"context"
	"io"
	"sync"
)

// WriterLogger writes text-formatted entries to an io.Writer. Used for
// stderr diagnostics when no log file is configured.
type WriterLogger struct {
	level  Level
	fields Fields

	mu sync.Mutex
	w  io.Writer
}

// NewWriterLogger creates a logger writing text entries at or above the
// given level
func NewWriterLogger(w io.Writer, level Level) *WriterLogger {
	return &WriterLogger{w: w, level: level}
}

// Debug logs a debug message
func (l *WriterLogger) Debug(ctx context.Context, msg string, fields Fields) {
	if l.level <= DebugLevel {
		l.write(DebugLevel, msg, nil, fields)
	}
}

// Info logs an info message
func (l *WriterLogger) Info(ctx context.Context, msg string, fields Fields) {
	if l.level <= InfoLevel {
		l.write(InfoLevel, msg, nil, fields)
	}
}

// Warn logs a warning message
func (l *WriterLogger) Warn(ctx context.Context, msg string, fields Fields) {
	if l.level <= WarnLevel {
		l.write(WarnLevel, msg, nil, fields)
	}
}

// Error logs an error message
func (l *WriterLogger) Error(ctx context.Context, msg string, err error, fields Fields) {
	if l.level <= ErrorLevel {
		l.write(ErrorLevel, msg, err, fields)
	}
}

// WithFields returns a logger that adds the given fields to every entry
func (l *WriterLogger) WithFields(fields Fields) Logger {
	merged := make(Fields, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &WriterLogger{w: l.w, level: l.level, fields: merged}
}

// Close is a no-op; the writer is not owned by the logger
func (l *WriterLogger) Close() error {
	return nil
}

func (l *WriterLogger) write(level Level, msg string, err error, fields Fields) {
	merged := make(Fields, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.w.Write(formatText(level, msg, err, merged))
}
