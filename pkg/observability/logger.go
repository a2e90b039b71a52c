package observability

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
)

// Log formats accepted by NewLogger
const (
	FormatText = "text"
	FormatJSON = "json"
)

// NewLogger creates a logrus logger writing to out (stderr when nil). Unknown
// levels fall back to info and unknown formats to text.
func NewLogger(level, format string, out io.Writer) *logrus.Logger {
	if out == nil {
		out = os.Stderr
	}

	logger := logrus.New()
	logger.SetOutput(out)

	switch strings.ToLower(format) {
	case FormatJSON:
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)

	return logger
}

// WithTraceContext adds the active span's trace and span ids to the entry
func WithTraceContext(ctx context.Context, logger *logrus.Logger) *logrus.Entry {
	entry := logrus.NewEntry(logger)

	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return entry
	}

	spanCtx := span.SpanContext()
	return entry.WithFields(logrus.Fields{
		"trace_id": spanCtx.TraceID().String(),
		"span_id":  spanCtx.SpanID().String(),
	})
}
