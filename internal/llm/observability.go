package llm

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("internal/llm")

// StartRequestSpan begins a span around one Gateway call. Centralized here
// rather than per-provider since the Gateway, not each provider, owns
// retry/payload-guard behavior.
func StartRequestSpan(ctx context.Context, name, provider string, promptLen int) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, name)
	span.SetAttributes(
		attribute.String("llm.provider", provider),
		attribute.Int("llm.prompt_chars", promptLen),
	)
	return ctx, span
}

// RecordAttempt annotates the active span with a retry attempt number and,
// on failure, the error.
func RecordAttempt(span trace.Span, attempt int, err error) {
	span.SetAttributes(attribute.Int("llm.attempt", attempt))
	if err != nil {
		span.RecordError(err)
	}
}
