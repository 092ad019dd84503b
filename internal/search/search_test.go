package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

func stubServer(t *testing.T, byQuery map[string][]stubResult) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		results := byQuery[q]
		_ = json.NewEncoder(w).Encode(map[string]any{"results": results})
	}))
}

func fastConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 1000,
		BurstSize:         10,
		MaxRetries:        1,
		BaseDelay:         time.Millisecond,
		MaxDelay:          time.Millisecond,
		JitterPercent:     0,
	}
}

func TestSearch_FormatsTitleSnippetURL(t *testing.T) {
	ts := stubServer(t, map[string][]stubResult{
		"lithium": {{Title: "Lithium prices surge", URL: "https://a.example/1", Content: "spot prices up 10%"}},
	})
	defer ts.Close()

	tool := NewWithConfig(ts.URL, fastConfig())
	out, err := tool.Search(context.Background(), "lithium", 5)
	require.NoError(t, err)
	assert.Contains(t, out, "Lithium prices surge")
	assert.Contains(t, out, "spot prices up 10%")
	assert.Contains(t, out, "https://a.example/1")
}

func TestSearchPrices_DedupesAcrossRephrasings(t *testing.T) {
	shared := stubResult{Title: "Shared listing", URL: "https://dup.example/x"}
	byQuery := map[string][]stubResult{}
	for _, tmpl := range PriceRephrasings {
		q := fmt.Sprintf(tmpl, "widget", "2024")
		byQuery[q] = []stubResult{shared}
	}
	ts := stubServer(t, byQuery)
	defer ts.Close()

	tool := NewWithConfig(ts.URL, fastConfig())
	out, err := tool.SearchPrices(context.Background(), "widget", "2024")
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out, "dup.example"))
}

func TestSearchPrices_NoResultsErrors(t *testing.T) {
	ts := stubServer(t, map[string][]stubResult{})
	defer ts.Close()

	tool := NewWithConfig(ts.URL, fastConfig())
	_, err := tool.SearchPrices(context.Background(), "nothing", "2024")
	assert.Error(t, err)
}

func TestSearchPrices_IssuesAllSixRephrasings(t *testing.T) {
	assert.Len(t, PriceRephrasings, 6)

	byQuery := map[string][]stubResult{}
	for i, tmpl := range PriceRephrasings {
		q := fmt.Sprintf(tmpl, "widget", "2024")
		byQuery[q] = []stubResult{{Title: "hit", URL: fmt.Sprintf("https://r%d.example/", i)}}
	}
	ts := stubServer(t, byQuery)
	defer ts.Close()

	tool := NewWithConfig(ts.URL, fastConfig())
	out, err := tool.SearchPrices(context.Background(), "widget", "2024")
	require.NoError(t, err)
	for i := range PriceRephrasings {
		assert.Contains(t, out, fmt.Sprintf("https://r%d.example/", i))
	}
}
