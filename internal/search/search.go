// Package search resolves free-text queries to candidate URLs by scraping a
// search engine's HTML results page.
package search

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"prodscout/internal/scrape"
)

// DefaultBaseURL is the DuckDuckGo HTML endpoint; it needs no API key and
// serves plain markup.
const DefaultBaseURL = "https://html.duckduckgo.com/html/"

const (
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	defaultBodyLimit = 1 << 20 // 1MB
	defaultTimeout   = 15 * time.Second
)

// Result is one organic search result. Title and Snippet are best-effort;
// URL is the only field consumed downstream.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Resolver turns queries into ranked candidate URLs.
type Resolver struct {
	client    *http.Client
	baseURL   string
	userAgent string
	logger    *zap.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Resolver) { r.client = c }
}

// WithBaseURL points the resolver at a different results endpoint. The
// endpoint must accept the query in a `q` parameter.
func WithBaseURL(u string) Option {
	return func(r *Resolver) { r.baseURL = u }
}

// NewResolver creates a search Resolver.
func NewResolver(logger *zap.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		client:    &http.Client{Timeout: defaultTimeout},
		baseURL:   DefaultBaseURL,
		userAgent: defaultUserAgent,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	return r
}

// Resolve issues one search request and returns up to maxResults result URLs
// in page order. Malformed result blocks (missing link or title) are skipped.
// A page with no parseable results yields an empty slice and a nil error; the
// caller decides what emptiness means. Any transport failure or non-2xx
// status fails the whole call with a FetchError.
func (r *Resolver) Resolve(ctx context.Context, query string, maxResults int) ([]Result, error) {
	if maxResults <= 0 {
		return nil, nil
	}

	searchURL := fmt.Sprintf("%s?q=%s", r.baseURL, url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, &scrape.FetchError{URL: searchURL, Err: err}
	}
	req.Header.Set("User-Agent", r.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, &scrape.FetchError{URL: searchURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &scrape.FetchError{URL: searchURL, Status: resp.StatusCode, Err: fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, int64(defaultBodyLimit)))
	if err != nil {
		return nil, &scrape.FetchError{URL: searchURL, Err: err}
	}

	results, err := ParseResults(string(body), maxResults)
	if err != nil {
		return nil, &scrape.ParseError{URL: searchURL, Err: err}
	}

	r.logger.Debug("search resolved",
		zap.String("query", query),
		zap.Int("results", len(results)))
	return results, nil
}

// ParseResults extracts up to maxResults organic results from a search
// results page, in page order. Result blocks are recognized by the
// "results_links" class DuckDuckGo uses; blocks missing a link or a title are
// skipped rather than failing the call.
func ParseResults(htmlContent string, maxResults int) ([]Result, error) {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return nil, err
	}

	var results []Result
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if len(results) >= maxResults {
			return
		}
		if n.Type == html.ElementNode && n.Data == "div" {
			class := attrValue(n, "class")
			if strings.Contains(class, "result") && strings.Contains(class, "results_links") {
				res := extractResult(n)
				if res.URL != "" && res.Title != "" {
					res.URL = UnwrapRedirect(res.URL)
					results = append(results, res)
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return results, nil
}

// extractResult pulls title, link and snippet out of a single result block.
func extractResult(n *html.Node) Result {
	var res Result
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			class := attrValue(n, "class")
			if strings.Contains(class, "result__a") {
				res.URL = attrValue(n, "href")
				res.Title = textContent(n)
			} else if strings.Contains(class, "result__snippet") {
				res.Snippet = textContent(n)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return res
}

// UnwrapRedirect resolves search-engine redirect wrappers to the real
// destination. Two wrapper shapes are handled: DuckDuckGo's
// `//duckduckgo.com/l/?uddg=<escaped-url>` and the `/url?q=<url>&...` form
// used by Google-style result pages. Anything else passes through untouched.
func UnwrapRedirect(link string) string {
	if strings.HasPrefix(link, "//duckduckgo.com/l/?uddg=") || strings.HasPrefix(link, "https://duckduckgo.com/l/?uddg=") {
		raw := link[strings.Index(link, "uddg=")+len("uddg="):]
		if decoded, err := url.QueryUnescape(raw); err == nil {
			if idx := strings.Index(decoded, "&"); idx > 0 {
				decoded = decoded[:idx]
			}
			return decoded
		}
		return link
	}
	if strings.HasPrefix(link, "/url?q=") {
		raw := strings.SplitN(link, "=", 2)[1]
		if idx := strings.Index(raw, "&"); idx > 0 {
			raw = raw[:idx]
		}
		if decoded, err := url.QueryUnescape(raw); err == nil {
			return decoded
		}
		return raw
	}
	return link
}

func attrValue(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

// textContent returns all text under a node, space-joined.
func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(strings.TrimSpace(n.Data))
			sb.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(sb.String())
}
