// Package providers selects and constructs the configured llm.Provider
// variant: a switch over the three supported backends.
package providers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/guillermopickman-spec/market-intel-agent/internal/config"
	"github.com/guillermopickman-spec/market-intel-agent/internal/llm"
	"github.com/guillermopickman-spec/market-intel-agent/internal/llm/anthropic"
	"github.com/guillermopickman-spec/market-intel-agent/internal/llm/google"
	"github.com/guillermopickman-spec/market-intel-agent/internal/llm/openai"
	"github.com/guillermopickman-spec/market-intel-agent/internal/logging"
)

// probeCooldown is the minimum spacing between candidate probes, per spec
// §4.1 ("with a >=5s inter-probe cooldown").
const probeCooldown = 5 * time.Second

// Build constructs the Provider named by cfg.Provider. For "google" with a
// non-empty Candidates list, it probes each candidate model in order,
// caching the first one that answers a trivial prompt.
func Build(ctx context.Context, cfg config.LLMClientConfig, httpClient *http.Client, cache llm.ProbeCache) (llm.Provider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "openai":
		return openai.New(cfg.OpenAI, httpClient), nil
	case "anthropic":
		return anthropic.New(cfg.Anthropic, httpClient), nil
	case "google":
		base, err := google.New(cfg.Google, httpClient)
		if err != nil {
			return nil, err
		}
		if len(cfg.Google.Candidates) == 0 {
			return base, nil
		}
		return probeGoogleCandidates(ctx, base, cfg.Google.Candidates, cache)
	default:
		return nil, fmt.Errorf("providers: unknown provider %q", cfg.Provider)
	}
}

// probeGoogleCandidates tries each candidate model in order with a trivial
// prompt, spacing attempts by probeCooldown, and caches the first model that
// answers successfully so subsequent Build calls skip the probe entirely.
func probeGoogleCandidates(ctx context.Context, base *google.Client, candidates []string, cache llm.ProbeCache) (llm.Provider, error) {
	const cacheKey = "google_model_probe"
	log := logging.FromContext(ctx)

	if cache != nil {
		if cached, ok := cache.Get(ctx, cacheKey); ok {
			log.Debug().Str("model", cached).Msg("google_probe_cache_hit")
			return base.WithModel(cached), nil
		}
	}

	var lastErr error
	for i, model := range candidates {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(probeCooldown):
			}
		}
		candidate := base.WithModel(model)
		_, err := candidate.Generate(ctx, llm.Request{Prompt: "ping", MaxTokens: 4})
		if err == nil {
			log.Info().Str("model", model).Msg("google_probe_ok")
			if cache != nil {
				cache.Set(ctx, cacheKey, model, time.Hour)
			}
			return candidate, nil
		}
		log.Warn().Str("model", model).Err(err).Msg("google_probe_failed")
		lastErr = err
	}
	return nil, fmt.Errorf("providers: no candidate model reachable, last error: %w", lastErr)
}
