// Package searchindex provides an Elasticsearch projection over completed
// requests, so the API can serve full-text search over past research
// (topic + summary) without expensive LIKE scans on the Ledger.
//
// Postgres remains the source of truth; this index is a read-optimised
// side effect populated once a request reaches StatusCompleted.
package searchindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/elastic/go-elasticsearch/v8"

	"research-pipeline/internal/models"
)

const requestsIndex = "research_requests"

// Client wraps the Elasticsearch client with domain-level operations.
type Client struct {
	es *elasticsearch.Client
}

// New creates an Elasticsearch client pointed at the given URL.
func New(url string) (*Client, error) {
	cfg := elasticsearch.Config{
		Addresses: []string{url},
	}
	es, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("searchindex: create client: %w", err)
	}
	return &Client{es: es}, nil
}

type document struct {
	RequestID   string    `json:"request_id"`
	Topic       string    `json:"topic"`
	Summary     string    `json:"summary"`
	CompletedAt time.Time `json:"completed_at"`
}

// IndexCompletedRequest upserts a completed request's topic and summary.
// Using the request ID as the document ID makes this idempotent — a
// re-delivered analyze task that lands on an already-completed request
// (spec §8 idempotence law) will not create a duplicate document.
func (c *Client) IndexCompletedRequest(ctx context.Context, req *models.Request, analysis *models.AnalysisResult) error {
	var completedAt time.Time
	if req.CompletedAt != nil {
		completedAt = *req.CompletedAt
	}

	body, err := json.Marshal(document{
		RequestID:   req.ID,
		Topic:       req.Topic,
		Summary:     analysis.Summary,
		CompletedAt: completedAt,
	})
	if err != nil {
		return err
	}

	res, err := c.es.Index(
		requestsIndex,
		bytes.NewReader(body),
		c.es.Index.WithDocumentID(req.ID),
		c.es.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("searchindex: index request: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("searchindex: index error [%s]: %s", res.Status(), body)
	}
	return nil
}

// Search executes a full-text match query against topic and summary.
func (c *Client) Search(ctx context.Context, term string) (json.RawMessage, error) {
	query := map[string]any{
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":  term,
				"fields": []string{"topic", "summary"},
			},
		},
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return nil, err
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(requestsIndex),
		c.es.Search.WithBody(&buf),
		c.es.Search.WithTrackTotalHits(true),
	)
	if err != nil {
		return nil, fmt.Errorf("searchindex: query request: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("searchindex: query error [%s]: %s", res.Status(), body)
	}

	return io.ReadAll(res.Body)
}
