// Package search is the web search engine external collaborator: given a
// topic, return a bounded list of candidate URLs for the Search Stage
// Worker to extract content from. It is a pure lookup — no Ledger access,
// no retries beyond a single HTTP round trip, no opinion about content
// thresholds (that judgment belongs to the worker, spec §4.4).
package search

import "context"

// Result is one candidate page returned by an Engine, before extraction.
type Result struct {
	URL     string
	Title   string
	Snippet string
}

// Engine looks up candidate pages for a topic, bounded to at most max
// results.
type Engine interface {
	Search(ctx context.Context, query string, max int) ([]Result, error)
}

// New returns the configured Engine: SearXNG when engine is "searxng" and
// an endpoint is set, DuckDuckGo's HTML results page otherwise (matching
// original_source/common/search_engine.py's get_search_engine factory).
func New(engine, searxURL string) Engine {
	if engine == "searxng" && searxURL != "" {
		return NewSearXNG(searxURL)
	}
	return NewDuckDuckGo()
}
