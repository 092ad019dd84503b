package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/guillermopickman-spec/market-intel-agent/internal/chunker"
	"github.com/guillermopickman-spec/market-intel-agent/internal/embedding"
	"github.com/guillermopickman-spec/market-intel-agent/internal/logging"
	"github.com/guillermopickman-spec/market-intel-agent/internal/urlsafety"
	"github.com/guillermopickman-spec/market-intel-agent/internal/vectorstore"
	"github.com/google/uuid"
)

const defaultWrapperDeadline = 60 * time.Second

// RawArchiver persists the raw fetched HTML of a scrape to the Raw Page
// Archive. internal/objectstore implements this.
type RawArchiver interface {
	Archive(ctx context.Context, conversationID, url string, html []byte, fetchedAt time.Time) error
}

// Tool is the scrape(url, conversation_id) tool: it fetches a page,
// extracts its readable text, and kicks off background ingestion.
type Tool struct {
	resolver  urlsafety.Resolver
	http      *httpFetcher
	browser   *browserFetcher
	deadline  time.Duration
	embedder  embedding.Embedder
	store     vectorstore.VectorStore
	archive   RawArchiver
	chunkOpt  chunker.Options
	bgTimeout time.Duration
}

// Option configures a Tool.
type Option func(*Tool)

// WithResolver overrides the DNS resolver used by the SSRF predicate (tests
// substitute a fixed mapping).
func WithResolver(r urlsafety.Resolver) Option {
	return func(t *Tool) { t.resolver = r }
}

// WithDeadline overrides the default 60s top-level wrapper deadline.
func WithDeadline(d time.Duration) Option {
	return func(t *Tool) {
		if d > 0 {
			t.deadline = d
		}
	}
}

// WithIngestion wires the background ingestion path (chunk -> embed ->
// vector store) and the raw-page archive. Either may be nil, in which case
// that background task is skipped.
func WithIngestion(embedder embedding.Embedder, store vectorstore.VectorStore, archive RawArchiver, chunkOpt chunker.Options) Option {
	return func(t *Tool) {
		t.embedder = embedder
		t.store = store
		t.archive = archive
		t.chunkOpt = chunkOpt
	}
}

// New constructs a scrape Tool. navTimeout bounds each browser navigation
// attempt; it is layered beneath the overall 60s wrapper deadline.
func New(navTimeout time.Duration, opts ...Option) *Tool {
	if navTimeout <= 0 {
		navTimeout = 20 * time.Second
	}
	t := &Tool{
		resolver:  urlsafety.DefaultResolver,
		http:      newHTTPFetcher(navTimeout),
		browser:   newBrowserFetcher(navTimeout),
		deadline:  defaultWrapperDeadline,
		bgTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ScrapeFailed is returned when neither the HTTP nor the browser path could
// produce usable content: a tool-level failure, not a mission failure.
type ScrapeFailed struct {
	URL    string
	Reason string
}

func (e *ScrapeFailed) Error() string {
	return fmt.Sprintf("scrape failed for %q: %s", e.URL, e.Reason)
}

// Scrape fetches rawURL and returns its extracted text content, tagging any
// background ingestion with conversationID. It enforces the SSRF predicate
// before any network call and wraps the whole attempt in a top-level
// deadline so no single navigation can hang the calling mission.
func (t *Tool) Scrape(ctx context.Context, rawURL, conversationID string) (string, error) {
	if err := urlsafety.Check(rawURL, t.resolver); err != nil {
		return "", &ScrapeFailed{URL: rawURL, Reason: "url failed ssrf safety check"}
	}

	deadlineCtx, cancel := context.WithTimeout(ctx, t.deadline)
	defer cancel()

	result, err := t.http.fetch(deadlineCtx, rawURL)
	needsBrowser := err != nil || result == nil || !result.UsedReadable || len(result.Markdown) == 0
	if needsBrowser {
		browserResult, berr := t.browser.fetch(deadlineCtx, rawURL)
		if berr != nil {
			if result != nil && result.Markdown != "" {
				// The HTTP path produced something even without a clean
				// readability extraction; prefer it over a hard failure.
				t.ingestBackground(result, conversationID)
				return result.Markdown, nil
			}
			reason := "http fetch and browser render both failed"
			if err != nil {
				reason = err.Error()
			}
			return "", &ScrapeFailed{URL: rawURL, Reason: reason}
		}
		result = browserResult
	}

	t.ingestBackground(result, conversationID)
	return result.Markdown, nil
}

// ingestBackground launches the two fire-and-forget background tasks:
// neither blocks Scrape's return, and both are abandoned rather than
// awaited if the background context is cancelled first.
func (t *Tool) ingestBackground(result *FetchResult, conversationID string) {
	if t.embedder != nil && t.store != nil && result.Markdown != "" {
		go t.ingestVectors(result, conversationID)
	}
	if t.archive != nil && result.RawHTML != "" {
		go t.archiveRaw(result, conversationID)
	}
}

func (t *Tool) ingestVectors(result *FetchResult, conversationID string) {
	ctx, cancel := context.WithTimeout(context.Background(), t.bgTimeout)
	defer cancel()
	log := logging.FromContext(ctx)
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Interface("panic", r).Str("url", result.FinalURL).Msg("scraper: background embedding ingestion panicked")
		}
	}()

	chunks := chunker.Split(result.Markdown, t.chunkOpt)
	if len(chunks) == 0 {
		return
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := t.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		log.Warn().Err(err).Str("url", result.FinalURL).Msg("scraper: background embedding failed")
		return
	}
	for i, vec := range vectors {
		id := uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("%s#%d", result.FinalURL, chunks[i].Index))).String()
		meta := map[string]string{
			"conversation_id": conversationID,
			"source_url":      result.FinalURL,
			"chunk_index":     fmt.Sprintf("%d", chunks[i].Index),
			"title":           result.Title,
			"text":            chunks[i].Text,
		}
		if err := t.store.Add(ctx, id, vec, meta); err != nil {
			log.Warn().Err(err).Str("url", result.FinalURL).Msg("scraper: background vector upsert failed")
			return
		}
	}
}

func (t *Tool) archiveRaw(result *FetchResult, conversationID string) {
	ctx, cancel := context.WithTimeout(context.Background(), t.bgTimeout)
	defer cancel()
	log := logging.FromContext(ctx)
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Interface("panic", r).Str("url", result.FinalURL).Msg("scraper: background raw archive panicked")
		}
	}()

	if err := t.archive.Archive(ctx, conversationID, result.FinalURL, []byte(result.RawHTML), result.FetchedAt); err != nil {
		log.Warn().Err(err).Str("url", result.FinalURL).Msg("scraper: background raw archive failed")
	}
}
