package search

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// DuckDuckGo scrapes DuckDuckGo's no-JS HTML results page. It is the
// default engine, matching original_source's DuckDuckGoSearch fallback.
type DuckDuckGo struct {
	client *http.Client
}

// NewDuckDuckGo builds a DuckDuckGo adapter.
func NewDuckDuckGo() *DuckDuckGo {
	return &DuckDuckGo{client: &http.Client{Timeout: 30 * time.Second}}
}

const duckduckgoEndpoint = "https://html.duckduckgo.com/html/"

// Search implements Engine.
func (d *DuckDuckGo) Search(ctx context.Context, query string, max int) ([]Result, error) {
	form := url.Values{"q": {query}}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, duckduckgoEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("search: build duckduckgo request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", "Mozilla/5.0 (research-pipeline-search-worker/1.0)")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search: duckduckgo request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search: duckduckgo returned status %d", resp.StatusCode)
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("search: parse duckduckgo response: %w", err)
	}

	results := parseDuckDuckGoResults(doc, max)
	return results, nil
}

// parseDuckDuckGoResults walks the results page looking for
// a.result__a (title + href) and its sibling a.result__snippet.
func parseDuckDuckGoResults(n *html.Node, max int) []Result {
	var out []Result

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if len(out) >= max {
			return
		}
		if n.Type == html.ElementNode && n.Data == "a" && hasClass(n, "result__a") {
			href := attr(n, "href")
			title := textContent(n)
			snippet := findSnippet(n)
			if href != "" {
				out = append(out, Result{URL: href, Title: strings.TrimSpace(title), Snippet: snippet})
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)

	if len(out) > max {
		out = out[:max]
	}
	return out
}

// findSnippet looks for the nearest following result__snippet anchor
// within the same result container.
func findSnippet(titleAnchor *html.Node) string {
	container := titleAnchor.Parent
	for container != nil && !hasClass(container, "result") {
		container = container.Parent
	}
	if container == nil {
		return ""
	}

	var snippet string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if snippet != "" {
			return
		}
		if n.Type == html.ElementNode && hasClass(n, "result__snippet") {
			snippet = strings.TrimSpace(textContent(n))
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(container)
	return snippet
}

func hasClass(n *html.Node, class string) bool {
	for _, a := range n.Attr {
		if a.Key == "class" {
			for _, c := range strings.Fields(a.Val) {
				if c == class {
					return true
				}
			}
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}
