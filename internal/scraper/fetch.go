// Package scraper implements the Scraper Tool: SSRF-gated HTTP fetch with
// readability extraction and markdown conversion, backed by a chromedp
// fallback for JS-rendered pages, plus fire-and-forget background
// ingestion into the vector store and raw-page archive.
package scraper

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html/charset"
)

// FetchResult is one successful fetch, whether served by the plain HTTP
// path or the chromedp fallback.
type FetchResult struct {
	FinalURL     string
	Title        string
	Markdown     string
	RawHTML      string
	UsedReadable bool
	UsedBrowser  bool
	FetchedAt    time.Time
}

var userAgents = []string{
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/115.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:102.0) Gecko/20100101 Firefox/102.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/15.1 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/115.0.0.0 Safari/537.36 Edg/115.0.0.0",
}

type httpFetcher struct {
	client   *http.Client
	maxBytes int64
}

func newHTTPFetcher(timeout time.Duration) *httpFetcher {
	dialer := &net.Dialer{Timeout: 7 * time.Second, KeepAlive: 30 * time.Second}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		TLSHandshakeTimeout:   7 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	return &httpFetcher{
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) > 10 {
					return fmt.Errorf("stopped after 10 redirects")
				}
				return nil
			},
		},
		maxBytes: 8 * 1000 * 1000,
	}
}

func (f *httpFetcher) fetch(ctx context.Context, rawURL string) (*FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgents[time.Now().UnixNano()%int64(len(userAgents))])
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	finalURL := resp.Request.URL.String()
	ct, cs := parseContentType(resp.Header.Get("Content-Type"))

	limited := io.LimitReader(resp.Body, f.maxBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("scraper: read body: %w", err)
	}
	if int64(len(body)) > f.maxBytes {
		return nil, fmt.Errorf("scraper: response exceeds max bytes (%d)", f.maxBytes)
	}

	utf8Body, err := toUTF8(body, cs)
	if err != nil {
		return nil, fmt.Errorf("scraper: charset decode: %w", err)
	}

	if !isHTML(ct) {
		return nil, fmt.Errorf("scraper: non-html content type %q", ct)
	}

	rawHTML := string(utf8Body)
	var articleHTML, title string
	var usedReadable bool
	if base, berr := url.Parse(finalURL); berr == nil {
		if art, rerr := readability.FromReader(strings.NewReader(rawHTML), base); rerr == nil && strings.TrimSpace(art.Content) != "" {
			articleHTML = art.Content
			title = strings.TrimSpace(art.Title)
			usedReadable = true
		}
	}
	if articleHTML == "" {
		articleHTML = rawHTML
	}

	md, err := htmltomarkdown.ConvertString(articleHTML, converter.WithDomain(baseOrigin(finalURL)))
	if err != nil {
		return nil, fmt.Errorf("scraper: html to markdown: %w", err)
	}
	md = strings.TrimSpace(md)
	if title != "" && !strings.HasPrefix(strings.TrimLeft(md, "\n"), "# ") {
		md = "# " + title + "\n\n" + md
	}

	return &FetchResult{
		FinalURL:     finalURL,
		Title:        title,
		Markdown:     md,
		RawHTML:      rawHTML,
		UsedReadable: usedReadable,
		FetchedAt:    time.Now(),
	}, nil
}

func parseContentType(h string) (ctype, cs string) {
	if h == "" {
		return "", ""
	}
	mt, params, err := mime.ParseMediaType(h)
	if err != nil {
		return h, ""
	}
	return strings.ToLower(mt), strings.ToLower(params["charset"])
}

func isHTML(ct string) bool {
	return ct == "text/html" || ct == "application/xhtml+xml" || strings.HasSuffix(ct, "html")
}

func toUTF8(b []byte, label string) ([]byte, error) {
	if label == "" || strings.EqualFold(label, "utf-8") || strings.EqualFold(label, "utf8") {
		return b, nil
	}
	r, err := charset.NewReaderLabel(label, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	return io.ReadAll(r)
}

func baseOrigin(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
