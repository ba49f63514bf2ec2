// Package scrape fetches web pages and extracts their paragraph text.
package scrape

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/net/html"
)

const (
	defaultUserAgent = "Mozilla/5.0 (compatible; prodscout/1.0)"
	defaultBodyLimit = 2 << 20 // 2MB
	defaultTextLimit = 20000   // runes per page after extraction
	defaultTimeout   = 15 * time.Second
)

// Extractor retrieves a single URL and reduces it to plain paragraph text.
type Extractor struct {
	client    *http.Client
	userAgent string
	bodyLimit int64
	textLimit int
	logger    *zap.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Extractor) { e.client = c }
}

// WithUserAgent sets the User-Agent header sent on fetches.
func WithUserAgent(ua string) Option {
	return func(e *Extractor) { e.userAgent = ua }
}

// WithTextLimit caps the extracted text length in runes. Zero disables the cap.
func WithTextLimit(n int) Option {
	return func(e *Extractor) { e.textLimit = n }
}

// NewExtractor creates an Extractor with bounded timeouts and body limits.
func NewExtractor(logger *zap.Logger, opts ...Option) *Extractor {
	e := &Extractor{
		client:    &http.Client{Timeout: defaultTimeout},
		userAgent: defaultUserAgent,
		bodyLimit: defaultBodyLimit,
		textLimit: defaultTextLimit,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	return e
}

// ExtractText fetches url and returns the text of its paragraph elements in
// document order, joined by newlines. Non-paragraph content (scripts, styles,
// navigation chrome) never appears in the output because only <p> subtrees
// are read. The result is deterministic for a fixed document.
func (e *Extractor) ExtractText(ctx context.Context, pageURL string) (string, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", &FetchError{URL: pageURL, Err: err}
	}
	req.Header.Set("User-Agent", e.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", &FetchError{URL: pageURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &FetchError{URL: pageURL, Status: resp.StatusCode, Err: fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, e.bodyLimit))
	if err != nil {
		return "", &FetchError{URL: pageURL, Err: err}
	}

	text, err := ParagraphText(string(body))
	if err != nil {
		return "", &ParseError{URL: pageURL, Err: err}
	}

	if e.textLimit > 0 {
		text = truncateRunes(text, e.textLimit)
	}

	e.logger.Debug("page extracted",
		zap.String("url", pageURL),
		zap.Int("chars", utf8.RuneCountInString(text)),
		zap.Duration("elapsed", time.Since(start)))
	return text, nil
}

// ParagraphText parses an HTML document and returns the text content of its
// <p> elements in document order, one paragraph per line.
func ParagraphText(htmlContent string) (string, error) {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return "", err
	}

	var paragraphs []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "p" {
			if text := textContent(n); text != "" {
				paragraphs = append(paragraphs, text)
			}
			return // nested <p> is invalid HTML; the parser flattens it anyway
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return strings.Join(paragraphs, "\n"), nil
}

// textContent returns the concatenated text nodes under n, skipping script
// and style subtrees.
func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript":
				return
			}
		}
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(sb.String())
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
