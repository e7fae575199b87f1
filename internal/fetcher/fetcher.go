// Package fetcher backfills page sessions that were captured without content
// by fetching the page and converting it to markdown.
package fetcher

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/mfenderov/browseflow/internal/content"
	"github.com/mfenderov/browseflow/internal/pages"
	"github.com/mfenderov/browseflow/pkg/models"
)

// Config holds fetcher configuration.
type Config struct {
	Delay            time.Duration
	Parallelism      int
	UserAgent        string
	Timeout          time.Duration
	MaxContentLength int // summary length after conversion, in runes
}

// Page is the fetched content of one URL.
type Page struct {
	URL      string
	Title    string
	Markdown string
}

// Fetcher fetches single pages without following links.
type Fetcher struct {
	config Config
}

// New creates a new Fetcher with the given configuration.
func New(config Config) *Fetcher {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.UserAgent == "" {
		config.UserAgent = "browseflow/1.0"
	}
	if config.Parallelism == 0 {
		config.Parallelism = 2
	}
	if config.MaxContentLength == 0 {
		config.MaxContentLength = pages.DefaultConfig().MaxContentLength
	}
	return &Fetcher{config: config}
}

// Fetch retrieves the given URLs and returns the pages that could be
// converted, keyed by requested URL. Failed URLs are absent from the result.
func (f *Fetcher) Fetch(ctx context.Context, urls []string) map[string]Page {
	results := make(map[string]Page)
	var mu sync.Mutex

	c := colly.NewCollector(
		colly.MaxDepth(1),
		colly.UserAgent(f.config.UserAgent),
		colly.Async(true),
	)

	c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Delay:       f.config.Delay,
		Parallelism: f.config.Parallelism,
	})
	c.SetRequestTimeout(f.config.Timeout)

	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			slog.Debug("fetch cancelled", "url", r.URL.String())
			r.Abort()
		}
	})

	c.OnError(func(r *colly.Response, err error) {
		slog.Debug("fetch failed", "url", r.Request.URL.String(), "status", r.StatusCode, "error", err)
	})

	c.OnResponse(func(r *colly.Response) {
		if r.StatusCode >= 400 {
			return
		}
		requested := r.Ctx.Get("requested")
		body := string(r.Body)
		contentType := r.Headers.Get("Content-Type")

		page := Page{URL: requested}
		if content.Detect(requested, contentType, body) {
			page.Markdown = strings.TrimSpace(body)
		} else {
			page.Title = content.Title(body)
			md, err := content.ToMarkdown(body)
			if err != nil {
				slog.Debug("failed to convert fetched page", "url", requested, "error", err)
				return
			}
			page.Markdown = md
		}
		if page.Markdown == "" {
			return
		}

		slog.Debug("fetched page", "url", requested, "content_type", contentType, "size", len(body))
		mu.Lock()
		results[requested] = page
		mu.Unlock()
	})

	for _, u := range urls {
		if ctx.Err() != nil {
			break
		}
		rc := colly.NewContext()
		rc.Put("requested", u)
		if err := c.Request("GET", u, nil, rc, nil); err != nil {
			slog.Debug("visit error (continuing)", "url", u, "error", err)
		}
	}
	c.Wait()

	return results
}

// Fetchable reports whether a page session lacks content and has an http(s)
// URL to fetch it from.
func Fetchable(p models.PageSession) bool {
	if p.ContentSummary != pages.NoContent {
		return false
	}
	u, err := url.Parse(p.URL)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Backfill returns a copy of sessions with missing content fetched from the
// page URL, and the number of sessions filled. Sessions that cannot be
// fetched keep their summary.
func (f *Fetcher) Backfill(ctx context.Context, sessions []models.PageSession) ([]models.PageSession, int) {
	out := make([]models.PageSession, len(sessions))
	copy(out, sessions)

	seen := make(map[string]bool)
	var urls []string
	for _, p := range out {
		if Fetchable(p) && !seen[p.URL] {
			seen[p.URL] = true
			urls = append(urls, p.URL)
		}
	}
	if len(urls) == 0 {
		return out, 0
	}

	fetched := f.Fetch(ctx, urls)

	filled := 0
	for i, p := range out {
		if !Fetchable(p) {
			continue
		}
		page, ok := fetched[p.URL]
		if !ok {
			continue
		}
		out[i].ContentSummary = content.Truncate(page.Markdown, f.config.MaxContentLength)
		if (p.Title == "" || p.Title == pages.UnknownTitle) && page.Title != "" {
			out[i].Title = page.Title
		}
		filled++
	}

	slog.Info("backfilled page content", "requested", len(urls), "fetched", len(fetched), "pages", filled)
	return out, filled
}
