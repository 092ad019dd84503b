// Package logging initializes the process-wide zerolog logger and exposes a
// context-aware helper that enriches log lines with a mission/request trace id.
package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type traceIDKey struct{}

// Init configures the global zerolog logger. If logPath is non-empty, logs are
// also appended to that file; stdout is always written to.
func Init(logPath, level string) {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var w io.Writer = os.Stdout
	if strings.TrimSpace(logPath) != "" {
		if f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			w = io.MultiWriter(os.Stdout, f)
		}
	}
	log.Logger = zerolog.New(w).With().Timestamp().Logger()

	lvl := zerolog.InfoLevel
	if l, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level))); err == nil {
		lvl = l
	}
	zerolog.SetGlobalLevel(lvl)
}

// WithTraceID returns a context carrying the given trace id (a mission id,
// conversation id, or request id) for later log enrichment.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceIDKey{}, id)
}

// FromContext returns a logger enriched with the trace id stashed by
// WithTraceID, if any.
func FromContext(ctx context.Context) *zerolog.Logger {
	l := log.Logger
	if ctx == nil {
		return &l
	}
	if id, ok := ctx.Value(traceIDKey{}).(string); ok && id != "" {
		l = l.With().Str("trace_id", id).Logger()
	}
	return &l
}
