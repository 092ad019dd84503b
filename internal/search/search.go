// Package search implements the Web Search Tool: a keyword-search backend
// (SearXNG, no API key) with rate limiting, retry, and a price-oriented
// multi-rephrasing variant.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"
)

// RateLimitConfig tunes the token-bucket limiter and retry backoff.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	MaxRetries        int
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	JitterPercent     float64
}

// DefaultRateLimitConfig is conservative enough to avoid tripping a public
// SearXNG instance's abuse guard.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 0.5,
		BurstSize:         2,
		MaxRetries:        3,
		BaseDelay:         time.Second,
		MaxDelay:          30 * time.Second,
		JitterPercent:     0.3,
	}
}

type tokenBucket struct {
	capacity   int
	tokens     int
	refillAt   time.Time
	refillRate time.Duration
	mu         sync.Mutex
}

func newTokenBucket(capacity int, refillRate time.Duration) *tokenBucket {
	return &tokenBucket{capacity: capacity, tokens: capacity, refillAt: time.Now(), refillRate: refillRate}
}

func (tb *tokenBucket) takeToken() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := time.Now()
	if now.After(tb.refillAt) {
		elapsed := now.Sub(tb.refillAt)
		add := int(elapsed / tb.refillRate)
		if add > 0 {
			tb.tokens = min(tb.capacity, tb.tokens+add)
			tb.refillAt = tb.refillAt.Add(time.Duration(add) * tb.refillRate)
		}
	}
	if tb.tokens > 0 {
		tb.tokens--
		return true
	}
	return false
}

func (tb *tokenBucket) waitForToken(ctx context.Context) error {
	for {
		if tb.takeToken() {
			return nil
		}
		tb.mu.Lock()
		wait := time.Until(tb.refillAt)
		tb.mu.Unlock()
		if wait <= 0 {
			wait = tb.refillRate
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Result is one search hit.
type Result struct {
	Title   string
	Snippet string
	URL     string
}

var userAgents = []string{
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/115.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:102.0) Gecko/20100101 Firefox/102.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/15.1 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/115.0.0.0 Safari/537.36 Edg/115.0.0.0",
}

// Tool is the web_search tool backed by a SearXNG instance.
type Tool struct {
	http       *http.Client
	searxngURL string
	limiter    *tokenBucket
	cfg        RateLimitConfig
}

// PriceRephrasings are the six configured query templates for
// search_prices, applied in order.
var PriceRephrasings = []string{
	"%s price %s",
	"%s MSRP %s",
	"%s cost %s",
	"%s market price %s",
	"%s how much %s",
	"%s pricing %s",
}

// New constructs a Tool pointed at a SearXNG instance.
func New(searxngURL string) *Tool {
	return NewWithConfig(searxngURL, DefaultRateLimitConfig())
}

// NewWithConfig constructs a Tool with an explicit rate-limit policy.
func NewWithConfig(searxngURL string, cfg RateLimitConfig) *Tool {
	refillRate := time.Duration(float64(time.Second) / cfg.RequestsPerSecond)
	return &Tool{
		http:       &http.Client{Timeout: 12 * time.Second},
		searxngURL: strings.TrimSuffix(searxngURL, "/"),
		limiter:    newTokenBucket(cfg.BurstSize, refillRate),
		cfg:        cfg,
	}
}

// Search returns the formatted concatenation of title, snippet, and source
// URL for up to maxResults hits.
func (t *Tool) Search(ctx context.Context, query string, maxResults int) (string, error) {
	results, err := t.search(ctx, query, maxResults)
	if err != nil {
		return "", err
	}
	return format(results), nil
}

// SearchPrices issues the six configured rephrasings of "{product} ... {year}"
// sequentially, deduplicates hits by source URL, and concatenates in
// rephrasing order then backend-native order within each rephrasing.
func (t *Tool) SearchPrices(ctx context.Context, product, year string) (string, error) {
	seen := make(map[string]struct{})
	var all []Result

	for _, tmpl := range PriceRephrasings {
		query := fmt.Sprintf(tmpl, product, year)
		results, err := t.search(ctx, query, 10)
		if err != nil {
			continue
		}
		for _, r := range results {
			if _, dup := seen[r.URL]; dup {
				continue
			}
			seen[r.URL] = struct{}{}
			all = append(all, r)
		}
	}
	if len(all) == 0 {
		return "", fmt.Errorf("search: no price results found for %q", product)
	}
	return format(all), nil
}

func format(results []Result) string {
	var sb strings.Builder
	for i, r := range results {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(r.Title)
		if r.Snippet != "" {
			sb.WriteString(" - ")
			sb.WriteString(r.Snippet)
		}
		sb.WriteString(" (")
		sb.WriteString(r.URL)
		sb.WriteString(")")
	}
	return sb.String()
}

func (t *Tool) search(ctx context.Context, query string, max int) ([]Result, error) {
	if err := t.limiter.waitForToken(ctx); err != nil {
		return nil, err
	}
	return t.searchWithRetry(ctx, query, max)
}

func (t *Tool) searchWithRetry(ctx context.Context, query string, max int) ([]Result, error) {
	var lastErr error
	for attempt := 0; attempt < t.cfg.MaxRetries; attempt++ {
		results, err := t.searchOnce(ctx, query, max)
		if err == nil && len(results) > 0 {
			return results, nil
		}
		lastErr = err

		delay := t.cfg.BaseDelay * (1 << attempt)
		if delay > t.cfg.MaxDelay {
			delay = t.cfg.MaxDelay
		}
		delay += time.Duration(float64(delay) * t.cfg.JitterPercent * rand.Float64())

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, fmt.Errorf("search: failed after %d retries: %w", t.cfg.MaxRetries, lastErr)
}

func (t *Tool) searchOnce(ctx context.Context, query string, max int) ([]Result, error) {
	if results, err := t.searchJSON(ctx, query, max); err == nil && len(results) > 0 {
		return results, nil
	}
	return t.searchHTML(ctx, query, max)
}

func (t *Tool) userAgent() string {
	return userAgents[time.Now().UnixNano()%int64(len(userAgents))]
}

func (t *Tool) searchJSON(ctx context.Context, query string, max int) ([]Result, error) {
	v := url.Values{}
	v.Set("q", query)
	v.Set("format", "json")
	v.Set("categories", "general")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.searxngURL+"/search?"+v.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", t.userAgent())

	resp, err := t.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("search: searxng json http %d", resp.StatusCode)
	}

	var parsed struct {
		Results []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Content string `json:"content"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}

	out := make([]Result, 0, max)
	for i, r := range parsed.Results {
		if i >= max {
			break
		}
		out = append(out, Result{Title: strings.TrimSpace(r.Title), Snippet: strings.TrimSpace(r.Content), URL: r.URL})
	}
	return out, nil
}

func (t *Tool) searchHTML(ctx context.Context, query string, max int) ([]Result, error) {
	v := url.Values{}
	v.Set("q", query)
	v.Set("categories", "general")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.searxngURL+"/search?"+v.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", t.userAgent())

	resp, err := t.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("search: searxng html http %d", resp.StatusCode)
	}

	root, err := html.Parse(resp.Body)
	if err != nil {
		return nil, err
	}

	var urls []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key == "href" && strings.Contains(attr.Val, "http") {
					urls = append(urls, attr.Val)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	seen := make(map[string]struct{})
	out := make([]Result, 0, max)
	for _, u := range urls {
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		title := u
		if parsed, err := url.Parse(u); err == nil && parsed.Host != "" {
			title = parsed.Host + parsed.Path
		}
		out = append(out, Result{Title: title, URL: u})
		if len(out) >= max {
			break
		}
	}
	return out, nil
}
