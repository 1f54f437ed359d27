// Package observability provides structured logging with correlation-ID
// propagation and sensitive-field/value redaction, plus daemon metrics.
package observability

import (
	"context"
	"io"

	"github.com/sirupsen/logrus"
)

type correlationIDKey struct{}

// WithCorrelationID returns a context carrying id for later retrieval by
// FieldsFromContext / the redaction hook.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey{}, id)
}

// CorrelationID extracts the correlation ID from ctx, or "" if none is set.
func CorrelationID(ctx context.Context) string {
	v, _ := ctx.Value(correlationIDKey{}).(string)
	return v
}

// Logger wraps a logrus.Logger with component tagging and correlation-ID
// propagation through context.Context, since Go has no task-local storage.
type Logger struct {
	base *logrus.Logger
	entry *logrus.Entry
}

// NewLogger builds a Logger writing to out at the given level, with the
// redaction hook installed.
func NewLogger(out io.Writer, level logrus.Level, component string) *Logger {
	base := logrus.New()
	base.SetOutput(out)
	base.SetLevel(level)
	base.SetFormatter(&logrus.JSONFormatter{})
	base.AddHook(&RedactionHook{})
	return &Logger{base: base, entry: base.WithField("component", component)}
}

// WithContext returns a Logger whose entries carry the request's
// correlation ID, if any is set on ctx.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	id := CorrelationID(ctx)
	if id == "" {
		return l
	}
	return &Logger{base: l.base, entry: l.entry.WithField("correlation_id", id)}
}

// WithField returns a Logger with an additional structured field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{base: l.base, entry: l.entry.WithField(key, value)}
}

// WithError returns a Logger with the error attached as a field.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{base: l.base, entry: l.entry.WithError(err)}
}

func (l *Logger) Info(msg string)  { l.entry.Info(msg) }
func (l *Logger) Warn(msg string)  { l.entry.Warn(msg) }
func (l *Logger) Error(msg string) { l.entry.Error(msg) }
func (l *Logger) Debug(msg string) { l.entry.Debug(msg) }
