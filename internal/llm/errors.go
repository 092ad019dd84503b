package llm

import "errors"

// Sentinel error kinds for the LLM Gateway. Wrap with fmt.Errorf("%w: ...",
// ErrX) at call sites and unwrap with errors.Is/errors.As.
var (
	// ErrPayloadTooLarge is returned when the serialized request would exceed
	// the active provider's MaxPayloadBytes.
	ErrPayloadTooLarge = errors.New("llm: payload too large")
	// ErrQuotaExhausted is returned after retries are exhausted following
	// provider-reported rate limiting.
	ErrQuotaExhausted = errors.New("llm: quota exhausted")
	// ErrUpstreamUnavailable is returned after the single connection/timeout
	// retry fails.
	ErrUpstreamUnavailable = errors.New("llm: upstream unavailable")
)

// RateLimitError should be returned (or wrapped) by a Provider when the
// upstream reports quota exhaustion, so the Gateway can distinguish it from a
// connection/timeout failure.
type RateLimitError struct{ Err error }

func (e *RateLimitError) Error() string { return "rate limited: " + e.Err.Error() }
func (e *RateLimitError) Unwrap() error { return e.Err }

// IsRateLimit reports whether err (or any error it wraps) is a RateLimitError.
func IsRateLimit(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}
