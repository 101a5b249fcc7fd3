package sources

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mudler/xlog"
	sitemap "github.com/oxffaa/gopher-parse-sitemap"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

// Fetcher downloads pages over HTTP. Requests are rate limited.
type Fetcher struct {
	client        *http.Client
	limiter       *rate.Limiter
	gitPrivateKey string
}

// FetcherOptions configures a Fetcher.
type FetcherOptions struct {
	Timeout time.Duration
	// PagesPerSecond limits page downloads. Zero disables the limit.
	PagesPerSecond float64
	// GitPrivateKey is a base64 encoded SSH key used for git sources.
	GitPrivateKey string
}

func NewFetcher(opts FetcherOptions) *Fetcher {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.PagesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.PagesPerSecond), 1)
	}
	return &Fetcher{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		limiter:       limiter,
		gitPrivateKey: opts.GitPrivateKey,
	}
}

func (f *Fetcher) get(ctx context.Context, url string) ([]byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: status %d", url, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// WebPage downloads a single HTML page.
func (f *Fetcher) WebPage(ctx context.Context, url string) (Page, error) {
	body, err := f.get(ctx, url)
	if err != nil {
		return Page{}, err
	}
	return HTMLToPage(url, string(body))
}

// Sitemap downloads every page listed in a sitemap. Pages that fail to download are skipped.
func (f *Fetcher) Sitemap(ctx context.Context, url string) ([]Page, error) {
	body, err := f.get(ctx, url)
	if err != nil {
		return nil, err
	}

	var locations []string
	err = sitemap.Parse(bytes.NewReader(body), func(e sitemap.Entry) error {
		locations = append(locations, e.GetLocation())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("parsing sitemap %s: %w", url, err)
	}

	var pages []Page
	for _, loc := range locations {
		xlog.Info("Sitemap page", "url", loc)
		page, err := f.WebPage(ctx, loc)
		if err != nil {
			if ctx.Err() != nil {
				return pages, ctx.Err()
			}
			xlog.Warn("Error downloading sitemap page", "url", loc, "error", err)
			continue
		}
		pages = append(pages, page)
	}
	return pages, nil
}
