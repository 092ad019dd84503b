package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"sync"
	"time"

	"github.com/guillermopickman-spec/market-intel-agent/internal/config"
)

// Embedder converts text into fixed-dimension vectors for the vector store.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Name() string
	Dimension() int
	Ping(ctx context.Context) error
}

// clientMinDelay is the minimum spacing enforced between successive calls
// to the embedding endpoint, so a burst of chunks doesn't overrun a
// single-concurrency local inference server.
const clientMinDelay = 50 * time.Millisecond

type clientEmbedder struct {
	cfg      config.EmbeddingConfig
	dim      int
	mu       sync.Mutex
	lastCall time.Time
	minDelay time.Duration
}

// NewClient builds an Embedder that calls the configured HTTP endpoint one
// chunk at a time, serialized by a mutex, to stay friendly to
// single-concurrency local inference servers.
func NewClient(cfg config.EmbeddingConfig) Embedder {
	return &clientEmbedder{cfg: cfg, dim: cfg.Dimensions, minDelay: clientMinDelay}
}

func (c *clientEmbedder) Name() string   { return c.cfg.Model }
func (c *clientEmbedder) Dimension() int { return c.dim }

func (c *clientEmbedder) Ping(ctx context.Context) error {
	return CheckReachability(ctx, c.cfg)
}

func (c *clientEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		vecs, err := c.rateLimitedCall(ctx, []string{t})
		if err != nil {
			return out, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (c *clientEmbedder) rateLimitedCall(ctx context.Context, texts []string) ([][]float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.lastCall.IsZero() {
		if elapsed := time.Since(c.lastCall); elapsed < c.minDelay {
			time.Sleep(c.minDelay - elapsed)
		}
	}
	c.lastCall = time.Now()
	return EmbedText(ctx, c.cfg, texts)
}

// deterministicEmbedder hashes byte 3-grams into a fixed vector. Used for
// tests and for the in-memory vector store backend where no embedding
// endpoint is configured.
type deterministicEmbedder struct {
	dim       int
	normalize bool
	seed      uint64
}

// NewDeterministic builds a hash-based Embedder requiring no network calls.
func NewDeterministic(dim int, normalize bool, seed uint64) Embedder {
	if dim <= 0 {
		dim = 64
	}
	return &deterministicEmbedder{dim: dim, normalize: normalize, seed: seed}
}

func (d *deterministicEmbedder) Name() string   { return "deterministic" }
func (d *deterministicEmbedder) Dimension() int { return d.dim }
func (d *deterministicEmbedder) Ping(context.Context) error { return nil }

func (d *deterministicEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = d.embedOne(t)
	}
	return out, nil
}

func (d *deterministicEmbedder) embedOne(s string) []float32 {
	v := make([]float32, d.dim)
	b := []byte(s)
	if len(b) == 0 {
		return v
	}
	if len(b) < 3 {
		addGram(d.seed, b, v)
	} else {
		for i := 0; i <= len(b)-3; i++ {
			addGram(d.seed, b[i:i+3], v)
		}
	}
	if d.normalize {
		var sum float64
		for _, x := range v {
			sum += float64(x) * float64(x)
		}
		if sum > 0 {
			inv := float32(1.0 / math.Sqrt(sum))
			for i := range v {
				v[i] *= inv
			}
		}
	}
	return v
}

func addGram(seed uint64, gram []byte, v []float32) {
	h := fnv.New64a()
	if seed != 0 {
		var tmp [8]byte
		for i := 0; i < 8; i++ {
			tmp[i] = byte(seed >> (8 * i))
		}
		_, _ = h.Write(tmp[:])
	}
	_, _ = h.Write(gram)
	hv := h.Sum64()
	idx := int(hv % uint64(len(v)))
	w := float32(int32(hv>>32)) / float32(1<<31)
	v[idx] += w
}
