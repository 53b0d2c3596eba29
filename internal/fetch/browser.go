package fetch

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
)

// MinContentLength is the shortest extracted text that counts as a real page.
// Anything shorter is most likely a JavaScript shell.
const MinContentLength = 500

// ShouldUseBrowser reports whether text extracted over plain HTTP looks like an empty SPA shell.
func ShouldUseBrowser(extractedText string) bool {
	return len(strings.TrimSpace(extractedText)) < MinContentLength
}

// Renderer renders a URL to HTML. WithBrowser satisfies it; tests substitute their own.
type Renderer func(ctx context.Context, url string, timeout time.Duration) (string, error)

// WithBrowser renders a page in headless Chrome and returns the resulting HTML.
// Requires Chrome or Chromium on the host.
func WithBrowser(ctx context.Context, url string, timeout time.Duration) (string, error) {
	log.Printf("[BROWSER] rendering %s", url)

	allocCtx, cancel := chromedp.NewExecAllocator(ctx,
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.UserAgent(DefaultUserAgent),
		)...,
	)
	defer cancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	browserCtx, cancel = context.WithTimeout(browserCtx, timeout)
	defer cancel()

	var html string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
		// listings are usually injected after load
		chromedp.Sleep(2*time.Second),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return "", &Error{URL: url, Message: "browser rendering failed", Cause: err}
	}

	log.Printf("[BROWSER] rendered %s: %d bytes", url, len(html))
	return html, nil
}

// Render fetches url over HTTP and, when the result is too thin, re-renders it with
// render. A nil render disables the fallback.
func Render(ctx context.Context, url string, opts *Options, render Renderer) (*Page, error) {
	page, err := URL(ctx, url, opts)
	if err != nil {
		return page, err
	}
	if render == nil {
		return page, nil
	}

	text, err := ExtractMainText(page.HTML, nil)
	if err != nil || !ShouldUseBrowser(text) {
		return page, nil
	}

	timeout := DefaultTimeout
	if opts != nil && opts.Timeout > 0 {
		timeout = opts.Timeout
	}
	html, err := render(ctx, url, timeout)
	if err != nil {
		// keep the thin page; the caller still gets whatever HTTP returned
		log.Printf("[BROWSER] fallback failed for %s: %v", url, err)
		return page, nil
	}
	return &Page{URL: url, HTML: html, ContentType: "text/html", StatusCode: page.StatusCode, Rendered: true}, nil
}
