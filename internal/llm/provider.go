// Package llm implements the provider-neutral LLM Gateway: a single
// Generate entry point backed by swappable provider variants, with a
// payload-size guard and quota-aware retry applied uniformly regardless of
// which provider is active.
package llm

import "context"

// Request is the fully-formed prompt plus optional sampling parameters.
type Request struct {
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Provider is implemented once per backing LLM API (OpenAI, Anthropic,
// Google). It performs exactly one synchronous completion call; all
// retry/backoff/payload-guard behavior lives in Gateway, not here.
type Provider interface {
	// Generate returns the completion text for req.
	Generate(ctx context.Context, req Request) (string, error)
	// MaxPayloadBytes is the hard per-request ceiling for this provider.
	MaxPayloadBytes() int
}
