package scraper

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
)

// browserFetcher renders a page in a headless Chrome instance and returns
// its visible text. Used only when the plain HTTP path fails or yields no
// usable content, since launching a browser is far more expensive.
type browserFetcher struct {
	navTimeout time.Duration
}

func newBrowserFetcher(navTimeout time.Duration) *browserFetcher {
	return &browserFetcher{navTimeout: navTimeout}
}

// fetch navigates to rawURL with two-tier readiness: it first waits for
// "DOMContentLoaded" and, if that times out, falls back to the cheaper
// "commit" event (the document has started loading but scripts may still be
// running) so a slow page still yields whatever text has rendered so far.
func (b *browserFetcher) fetch(ctx context.Context, rawURL string) (*FetchResult, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(userAgents[0]),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	var outerHTML, bodyText, title string

	domCtx, cancelDOM := context.WithTimeout(browserCtx, b.navTimeout)
	defer cancelDOM()
	err := chromedp.Run(domCtx,
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Title(&title),
		chromedp.OuterHTML("html", &outerHTML, chromedp.ByQuery),
		chromedp.Text("body", &bodyText, chromedp.ByQuery),
	)
	if err != nil {
		// Fall back to the cheaper "commit" readiness: the navigation has
		// started and the initial document is available even if
		// subresources or scripts are still in flight.
		commitCtx, cancelCommit := context.WithTimeout(browserCtx, b.navTimeout)
		defer cancelCommit()
		err = chromedp.Run(commitCtx,
			chromedp.Navigate(rawURL),
			chromedp.OuterHTML("html", &outerHTML, chromedp.ByQuery),
			chromedp.Text("body", &bodyText, chromedp.ByQuery),
		)
		if err != nil {
			return nil, fmt.Errorf("scraper: browser navigation failed: %w", err)
		}
	}

	bodyText = strings.TrimSpace(bodyText)
	if bodyText == "" {
		return nil, fmt.Errorf("scraper: browser render produced no visible text")
	}

	md := bodyText
	if title != "" {
		md = "# " + title + "\n\n" + md
	}

	return &FetchResult{
		FinalURL:    rawURL,
		Title:       title,
		Markdown:    md,
		RawHTML:     outerHTML,
		UsedBrowser: true,
		FetchedAt:   time.Now(),
	}, nil
}
