// Package extractor is the content-extraction external collaborator: fetch
// a URL and return its main textual content. It is not fatal when it
// fails — the Search Stage Worker degrades a failed extraction to empty
// content and keeps the URL/title pair (spec §4.4, §7).
package extractor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// Extractor pulls the main textual content out of a page.
type Extractor interface {
	Extract(ctx context.Context, pageURL string) (title, body string, err error)
}

// HTML fetches a page over HTTP and extracts visible text, stripping
// script/style/nav/footer/header chrome. It favors recall over precision —
// when in doubt, keep the text (original_source's trafilatura settings:
// favor_recall=True, include_tables=True).
type HTML struct {
	client *http.Client
}

// New builds the default HTTP/HTML extractor.
func New() *HTML {
	return &HTML{client: &http.Client{Timeout: 15 * time.Second}}
}

var skipTags = map[string]bool{
	"script": true, "style": true, "nav": true, "footer": true,
	"header": true, "noscript": true, "iframe": true, "svg": true,
}

// Extract implements Extractor.
func (h *HTML) Extract(ctx context.Context, pageURL string) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", "", fmt.Errorf("extractor: build request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (research-pipeline-extractor/1.0)")

	resp, err := h.client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("extractor: fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("extractor: %s returned status %d", pageURL, resp.StatusCode)
	}

	limited := io.LimitReader(resp.Body, 5<<20) // 5 MiB cap on raw fetch
	doc, err := html.Parse(limited)
	if err != nil {
		return "", "", fmt.Errorf("extractor: parse %s: %w", pageURL, err)
	}

	title := findTitle(doc)
	body := extractText(doc)
	return strings.TrimSpace(title), strings.TrimSpace(body), nil
}

func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
		return n.FirstChild.Data
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findTitle(c); t != "" {
			return t
		}
	}
	return ""
}

// extractText walks the body collecting visible text, collapsing
// whitespace and skipping non-content chrome tags.
func extractText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skipTags[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				sb.WriteString(text)
				sb.WriteString(" ")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return collapseWhitespace(sb.String())
}

func collapseWhitespace(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}
