// Package enrich resolves a user query to scraped web context: explicit
// links found in the query, or search-engine candidates when the caller asks
// for fallback.
package enrich

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"prodscout/internal/search"
)

// urlPattern matches absolute http(s) URLs embedded in free text.
var urlPattern = regexp.MustCompile(`https?://[^\s]+`)

// fallbackResultCap bounds how many search results feed the fallback path.
const fallbackResultCap = 3

// maxConcurrentFetches bounds parallel page fetches within one resolution.
const maxConcurrentFetches = 4

// Searcher resolves a query to candidate URLs.
type Searcher interface {
	Resolve(ctx context.Context, query string, maxResults int) ([]search.Result, error)
}

// Extractor fetches one URL and returns its plain text.
type Extractor interface {
	ExtractText(ctx context.Context, url string) (string, error)
}

// Resolver orchestrates URL detection, search fallback, and page extraction.
type Resolver struct {
	searcher  Searcher
	extractor Extractor
	logger    *zap.Logger
}

// NewResolver creates a context Resolver.
func NewResolver(searcher Searcher, extractor Extractor, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{searcher: searcher, extractor: extractor, logger: logger}
}

// outcomeKind classifies the result of one source resolution.
type outcomeKind int

const (
	outcomeNoContext outcomeKind = iota
	outcomeFetched
	outcomeFailed
)

// outcome is the reduced result of one sub-fetch. Every source collapses to
// exactly one outcome before merging.
type outcome struct {
	kind outcomeKind
	text string
	err  error
}

// ScanURLs returns every absolute http/https URL literally present in query,
// in order of appearance, duplicates included.
func ScanURLs(query string) []string {
	return urlPattern.FindAllString(query, -1)
}

// Resolve returns the concatenated text of every page the query points to.
//
// Literal URLs in the query always win; the search engine is consulted only
// when the query contains none and allowSearchFallback is set. With no URLs
// and no fallback the result is the empty string with zero network calls.
//
// Individual page failures are routine (sources go offline, block scraping,
// time out) and never abort the rest: the failed source is skipped, and the
// final text is the succeeding extractions joined by newline in resolution
// order, with no placeholder for the failures.
func (r *Resolver) Resolve(ctx context.Context, query string, allowSearchFallback bool) (string, error) {
	urls := ScanURLs(query)

	if len(urls) == 0 {
		if !allowSearchFallback {
			return "", nil
		}
		results, err := r.searcher.Resolve(ctx, query, fallbackResultCap)
		if err != nil {
			// Enrichment failures are invisible to the user; the turn
			// proceeds with whatever context could be resolved.
			r.logger.Warn("search fallback failed", zap.String("query", query), zap.Error(err))
			return "", nil
		}
		for _, res := range results {
			urls = append(urls, res.URL)
		}
		if len(urls) == 0 {
			r.logger.Debug("search fallback returned no results", zap.String("query", query))
			return "", nil
		}
	}

	outcomes := r.fetchAll(ctx, urls)

	merged := make([]string, 0, len(outcomes))
	for i, out := range outcomes {
		switch out.kind {
		case outcomeFetched:
			merged = append(merged, out.text)
		case outcomeFailed:
			r.logger.Warn("source skipped", zap.String("url", urls[i]), zap.Error(out.err))
		}
	}
	return strings.Join(merged, "\n"), nil
}

// fetchAll extracts every URL concurrently and returns one outcome per URL,
// positionally aligned with the input so resolution order survives the merge.
func (r *Resolver) fetchAll(ctx context.Context, urls []string) []outcome {
	outcomes := make([]outcome, len(urls))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(maxConcurrentFetches)
	for i, u := range urls {
		eg.Go(func() error {
			text, err := r.extractor.ExtractText(egCtx, u)
			switch {
			case err != nil:
				outcomes[i] = outcome{kind: outcomeFailed, err: err}
			case text == "":
				outcomes[i] = outcome{kind: outcomeNoContext}
			default:
				outcomes[i] = outcome{kind: outcomeFetched, text: text}
			}
			return nil
		})
	}
	// Workers report failures through their outcome slot, never as an error.
	_ = eg.Wait()

	return outcomes
}
