package scraper

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guillermopickman-spec/market-intel-agent/internal/chunker"
	"github.com/guillermopickman-spec/market-intel-agent/internal/embedding"
	"github.com/guillermopickman-spec/market-intel-agent/internal/vectorstore"
)

type fixedResolver map[string][]net.IP

func (f fixedResolver) LookupIPAddr(host string) ([]net.IP, error) {
	if ips, ok := f[host]; ok {
		return ips, nil
	}
	return nil, assert.AnError
}

func TestScrape_RejectsUnsafeURL(t *testing.T) {
	tool := New(5*time.Second, WithResolver(fixedResolver{}))
	_, err := tool.Scrape(context.Background(), "http://127.0.0.1/admin", "conv-1")
	require.Error(t, err)
	var sf *ScrapeFailed
	require.ErrorAs(t, err, &sf)
}

func TestScrape_RejectsFileScheme(t *testing.T) {
	tool := New(5 * time.Second)
	_, err := tool.Scrape(context.Background(), "file:///etc/passwd", "conv-1")
	require.Error(t, err)
}

func TestHTTPFetcher_ExtractsReadableArticleAndConvertsMarkdown(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><head><title>Widget Prices</title></head>
<body><article><h1>Widget Prices</h1>
<p>The spot price for widgets rose to $42 this week, according to analysts tracking the sector closely.</p>
<p>Market watchers expect further gains into the next quarter as demand continues to outpace available supply.</p>
</article></body></html>`))
	}))
	defer ts.Close()

	f := newHTTPFetcher(5 * time.Second)
	result, err := f.fetch(context.Background(), ts.URL)
	require.NoError(t, err)
	assert.True(t, result.UsedReadable)
	assert.Contains(t, result.Markdown, "Widget Prices")
	assert.Contains(t, result.Markdown, "$42")
	assert.NotEmpty(t, result.RawHTML)
}

func TestHTTPFetcher_RejectsNonHTMLContentType(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write([]byte{0x00, 0x01, 0x02})
	}))
	defer ts.Close()

	f := newHTTPFetcher(5 * time.Second)
	_, err := f.fetch(context.Background(), ts.URL)
	assert.Error(t, err)
}

func TestHTTPFetcher_RejectsOversizedResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		buf := make([]byte, 9*1000*1000)
		_, _ = w.Write(buf)
	}))
	defer ts.Close()

	f := newHTTPFetcher(10 * time.Second)
	f.maxBytes = 1000
	_, err := f.fetch(context.Background(), ts.URL)
	assert.Error(t, err)
}

func TestScrapeFailed_ErrorMessage(t *testing.T) {
	err := &ScrapeFailed{URL: "https://example.com", Reason: "timeout"}
	assert.Contains(t, err.Error(), "https://example.com")
	assert.Contains(t, err.Error(), "timeout")
}

func TestTool_IngestBackground_SkipsWhenUnwired(t *testing.T) {
	tool := New(5 * time.Second)
	// No embedder/store/archive wired: ingestBackground must be a no-op and
	// must not panic.
	tool.ingestBackground(&FetchResult{Markdown: "hello", RawHTML: "<p>hello</p>", FinalURL: "https://example.com"}, "conv-1")
}

func TestTool_IngestVectors_EmbedsAndStoresChunks(t *testing.T) {
	store := vectorstore.NewMemory(64)
	embedder := embedding.NewDeterministic(64, true, 1)
	tool := New(5*time.Second, WithIngestion(
		embedder,
		store,
		nil,
		chunker.Options{ChunkSize: 128, Overlap: 16},
	))

	result := &FetchResult{
		Markdown:  "The spot price for widgets rose sharply this week amid tight global supply and strong demand from manufacturers.",
		RawHTML:   "<p>irrelevant</p>",
		FinalURL:  "https://example.com/widgets",
		FetchedAt: time.Now(),
	}
	tool.ingestVectors(result, "conv-1")

	queryVec, err := embedder.EmbedBatch(context.Background(), []string{"widgets supply demand"})
	require.NoError(t, err)
	hits, err := store.Query(context.Background(), queryVec[0], 5, map[string]string{"conversation_id": "conv-1"})
	require.NoError(t, err)
	assert.NotEmpty(t, hits)
}
