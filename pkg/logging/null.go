package logging

import "context"

// NullLogger discards everything. Used when no log file is configured.
type NullLogger struct{}

// NewNullLogger creates a logger that discards all entries
func NewNullLogger() *NullLogger {
	return &NullLogger{}
}

func (n *NullLogger) Debug(ctx context.Context, msg string, fields Fields)            {}
func (n *NullLogger) Info(ctx context.Context, msg string, fields Fields)             {}
func (n *NullLogger) Warn(ctx context.Context, msg string, fields Fields)             {}
func (n *NullLogger) Error(ctx context.Context, msg string, err error, fields Fields) {}
func (n *NullLogger) WithFields(fields Fields) Logger                                 { return n }
func (n *NullLogger) Close() error                                                    { return nil }
