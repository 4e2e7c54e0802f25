package extract

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"

	"scrapeflow/internal/domain"
	"scrapeflow/internal/proxy"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
)

// Fetcher retrieves the rendered HTML of a page, honoring per-domain options.
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string, opts domain.RuleOptions) (string, error)
}

// HTTPFetcher fetches pages with a plain HTTP client. User agent and proxy
// selection come from the rotation manager when the rule options ask for it.
type HTTPFetcher struct {
	client  *http.Client
	proxies *proxy.Manager
}

func NewHTTPFetcher(pm *proxy.Manager) *HTTPFetcher {
	return &HTTPFetcher{client: &http.Client{}, proxies: pm}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, pageURL string, opts domain.RuleOptions) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrExtraction, err)
	}

	ua := opts.UserAgent
	if ua == "" {
		ua = f.proxies.GetUserAgent()
	}
	if ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	client := f.client
	if opts.Proxy {
		if p := f.proxies.GetProxy(); p != "" {
			proxyURL, err := url.Parse(p)
			if err != nil {
				return "", fmt.Errorf("%w: bad proxy url: %v", domain.ErrExtraction, err)
			}
			client = &http.Client{Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)}}
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: fetch %s: %v", domain.ErrExtraction, pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("%w: fetch %s: status %d", domain.ErrExtraction, pageURL, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %v", domain.ErrExtraction, pageURL, err)
	}
	return string(body), nil
}

// HeadlessFetcher renders pages in headless Chrome for sites that build
// their content with JavaScript. Allocator contexts are pooled so workers
// do not pay browser startup per fetch.
type HeadlessFetcher struct {
	ctxPool sync.Pool
}

func NewHeadlessFetcher() *HeadlessFetcher {
	f := &HeadlessFetcher{}
	f.ctxPool.New = func() interface{} {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", ""),
			chromedp.Flag("disable-dev-shm-usage", ""),
		)
		allocCtx, _ := chromedp.NewExecAllocator(context.Background(), opts...)
		return allocCtx
	}
	return f
}

func (f *HeadlessFetcher) Fetch(ctx context.Context, pageURL string, opts domain.RuleOptions) (string, error) {
	allocCtx := f.ctxPool.Get().(context.Context)
	defer f.ctxPool.Put(allocCtx)

	taskCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var tcancel context.CancelFunc
		taskCtx, tcancel = context.WithDeadline(taskCtx, deadline)
		defer tcancel()
	}

	actions := []chromedp.Action{}
	if ua := opts.UserAgent; ua != "" {
		actions = append(actions, emulation.SetUserAgentOverride(ua))
	}
	var htmlContent string
	actions = append(actions,
		chromedp.Navigate(pageURL),
		chromedp.WaitVisible("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &htmlContent),
	)

	if err := chromedp.Run(taskCtx, actions...); err != nil {
		return "", fmt.Errorf("%w: render %s: %v", domain.ErrExtraction, pageURL, err)
	}
	return htmlContent, nil
}

// SwitchingFetcher picks the headless renderer when the rule options call
// for it and the plain HTTP client otherwise.
type SwitchingFetcher struct {
	plain    Fetcher
	headless Fetcher
}

func NewSwitchingFetcher(plain, headless Fetcher) *SwitchingFetcher {
	return &SwitchingFetcher{plain: plain, headless: headless}
}

func (f *SwitchingFetcher) Fetch(ctx context.Context, pageURL string, opts domain.RuleOptions) (string, error) {
	if opts.Headless {
		return f.headless.Fetch(ctx, pageURL, opts)
	}
	return f.plain.Fetch(ctx, pageURL, opts)
}
