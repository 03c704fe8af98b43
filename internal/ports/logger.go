package ports

import "context"

// Logger defines a standard interface for logging messages and errors.
// This allows injecting different logging implementations (e.g., standard log, zerolog, zap).
type Logger interface {
	// Debug logs a message at Debug level.
	Debug(ctx context.Context, msg string, fields ...map[string]interface{})
	// Info logs a message at Info level.
	Info(ctx context.Context, msg string, fields ...map[string]interface{})
	// Warn logs a message at Warning level.
	Warn(ctx context.Context, msg string, fields ...map[string]interface{})
	// Error logs an error message at Error level.
	Error(ctx context.Context, err error, msg string, fields ...map[string]interface{})
}

// ScopedLogger decorates a Logger with fields attached to every entry,
// e.g. the trade being processed.
type ScopedLogger struct {
	base   Logger
	fields map[string]interface{}
}

// WithFields returns a logger that adds fields to every entry.
func WithFields(base Logger, fields map[string]interface{}) *ScopedLogger {
	if s, ok := base.(*ScopedLogger); ok {
		return &ScopedLogger{base: s.base, fields: merge(s.fields, fields)}
	}
	return &ScopedLogger{base: base, fields: fields}
}

func (s *ScopedLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	s.base.Debug(ctx, msg, s.with(fields))
}

func (s *ScopedLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	s.base.Info(ctx, msg, s.with(fields))
}

func (s *ScopedLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	s.base.Warn(ctx, msg, s.with(fields))
}

func (s *ScopedLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	s.base.Error(ctx, err, msg, s.with(fields))
}

func (s *ScopedLogger) with(fields []map[string]interface{}) map[string]interface{} {
	if len(fields) == 0 || fields[0] == nil {
		return s.fields
	}
	return merge(s.fields, fields[0])
}

func merge(a, b map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}
