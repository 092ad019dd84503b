package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/guillermopickman-spec/market-intel-agent/internal/logging"
)

// Gateway wraps one Provider with a hard payload ceiling and quota/connection
// retry applied uniformly. Construct once at startup and pass the pointer
// down; there is deliberately no package-level global.
type Gateway struct {
	provider  Provider
	maxBytes  int
	retries   int
	baseDelay time.Duration
}

// NewGateway wires a Provider behind the quota/payload policy. maxBytes
// overrides provider.MaxPayloadBytes() when > 0; a conservative 28 KiB
// default suits high-throughput providers and is configurable per
// deployment.
func NewGateway(provider Provider, maxBytes int) *Gateway {
	mb := provider.MaxPayloadBytes()
	if maxBytes > 0 {
		mb = maxBytes
	}
	return &Gateway{
		provider:  provider,
		maxBytes:  mb,
		retries:   3,
		baseDelay: 2 * time.Second,
	}
}

// MaxPayloadBytes exposes the effective ceiling, used by the Intel Curator
// to size its materialize() budget.
func (g *Gateway) MaxPayloadBytes() int { return g.maxBytes }

// Generate refuses with ErrPayloadTooLarge when the request would exceed
// the budget; on provider-reported quota exhaustion it makes up to 3
// attempts in total with exponential backoff between them (base 2s,
// multiplier 2); on
// connection/timeout errors it retries once then fails with
// ErrUpstreamUnavailable.
func (g *Gateway) Generate(ctx context.Context, req Request) (string, error) {
	if len(req.Prompt) > g.maxBytes {
		return "", fmt.Errorf("%w: prompt is %d bytes, budget is %d", ErrPayloadTooLarge, len(req.Prompt), g.maxBytes)
	}

	log := logging.FromContext(ctx)
	ctx, span := StartRequestSpan(ctx, "llm.Generate", fmt.Sprintf("%T", g.provider), len(req.Prompt))
	defer span.End()

	var lastErr error
	delay := g.baseDelay
	for attempt := 1; attempt <= g.retries; attempt++ {
		text, err := g.provider.Generate(ctx, req)
		RecordAttempt(span, attempt, err)
		if err == nil {
			return text, nil
		}
		lastErr = err

		if IsRateLimit(err) {
			log.Warn().Int("attempt", attempt).Err(err).Msg("llm_quota_retry")
			if attempt == g.retries {
				break
			}
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			continue
		}

		// Non-quota error: one connection/timeout retry, then fail fast.
		if attempt == 1 {
			log.Warn().Err(err).Msg("llm_connection_retry")
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(g.baseDelay):
			}
			continue
		}
		return "", fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	return "", fmt.Errorf("%w: %v", ErrQuotaExhausted, lastErr)
}
