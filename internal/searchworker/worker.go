// Package searchworker implements the Search Stage Worker (spec §4.4):
// consume the search queue, claim the request, search and extract content
// for a bounded set of candidate URLs, persist the results, and hand off
// to the analysis stage.
package searchworker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/prometheus/client_golang/prometheus"

	"research-pipeline/internal/extractor"
	"research-pipeline/internal/ledger"
	"research-pipeline/internal/metrics"
	"research-pipeline/internal/models"
	"research-pipeline/internal/queue"
	"research-pipeline/internal/search"
)

// Worker owns the claim-search-extract-persist-handoff cycle for one
// consumer in the search-stage consumer group. Multiple Workers may run
// concurrently across processes; each processes its own messages
// sequentially (spec §5).
type Worker struct {
	ledger    *ledger.Ledger
	consumer  *queue.Consumer
	producer  *queue.Producer
	engine    search.Engine
	extractor extractor.Extractor
	limiter   *catrate.Limiter

	analyzeQueueTopic string
	maxResults        int
	minContentChars   int
	maxContentChars   int
}

// New builds a Worker. The limiter paces per-URL extraction to avoid
// hammering any single host (spec §4.4's "short delay between per-URL
// fetches", realized as a per-host rate limit rather than a blanket
// sleep).
func New(
	l *ledger.Ledger,
	consumer *queue.Consumer,
	producer *queue.Producer,
	engine search.Engine,
	ext extractor.Extractor,
	analyzeQueueTopic string,
	maxResults, minContentChars, maxContentChars int,
) *Worker {
	return &Worker{
		ledger:            l,
		consumer:          consumer,
		producer:          producer,
		engine:            engine,
		extractor:         ext,
		limiter:           catrate.NewLimiter(map[time.Duration]int{time.Second: 1}),
		analyzeQueueTopic: analyzeQueueTopic,
		maxResults:        maxResults,
		minContentChars:   minContentChars,
		maxContentChars:   maxContentChars,
	}
}

// Run drives the consume loop until ctx is cancelled. It processes
// messages sequentially, never holding a lock across unrelated work
// (spec §5).
func (w *Worker) Run(ctx context.Context) {
	for {
		msg, ok, err := w.consumer.Next(ctx)
		if err != nil {
			slog.Error("search worker poll failed", "component", "searchworker", "error", err)
			continue
		}
		if !ok {
			slog.Info("search worker stopping", "component", "searchworker")
			return
		}

		w.handle(ctx, msg)

		if err := w.consumer.Commit(ctx, msg); err != nil {
			slog.Error("search worker commit failed", "component", "searchworker", "request_id", msg.Task.RequestID, "error", err)
		}
	}
}

// handle processes a single task to completion (or a handled failure) and
// always returns normally — the commit happens unconditionally in Run,
// since every outcome here (won/lost claim, success, failure) is meant to
// advance the offset (spec §7's poison-message immunity).
func (w *Worker) handle(ctx context.Context, msg queue.Message) {
	requestID := msg.Task.RequestID
	topic := msg.Task.Topic

	timer := prometheus.NewTimer(metrics.StageDuration.WithLabelValues("search"))
	defer timer.ObserveDuration()

	outcome, err := w.ledger.Claim(ctx, requestID, models.StatusSearching, models.StatusProcessingSearch)
	if err != nil {
		slog.Error("claim failed", "component", "searchworker", "request_id", requestID, "error", err)
		return
	}
	if outcome == ledger.ClaimLost {
		slog.Info("claim lost, skipping", "component", "searchworker", "request_id", requestID)
		return
	}

	results, err := w.searchAndExtract(ctx, topic)
	if err != nil {
		w.fail(ctx, requestID, err.Error())
		return
	}

	if len(results) == 0 {
		w.fail(ctx, requestID, "No search results found")
		return
	}

	if err := w.ledger.InsertSearchResults(ctx, requestID, results); err != nil {
		w.fail(ctx, requestID, err.Error())
		return
	}

	if err := w.ledger.TransitionStatus(ctx, requestID, models.StatusAnalyzing); err != nil {
		w.fail(ctx, requestID, err.Error())
		return
	}

	if err := w.producer.Publish(ctx, w.analyzeQueueTopic, queue.Task{RequestID: requestID, Topic: topic, Phase: "analyze"}); err != nil {
		slog.Error("publish to analyze queue failed", "component", "searchworker", "request_id", requestID, "error", err)
		// The status already moved to analyzing; a failed publish here is a
		// gap the orphan sweeper cannot close (the row is not in a
		// processing_* state). This matches the ordering the spec requires
		// (transition before publish) at the cost of this edge case, which
		// spec §4.4 accepts implicitly by prescribing the ordering.
		return
	}

	metrics.BusMessages.WithLabelValues(w.analyzeQueueTopic, "publish").Inc()
	slog.Info("handed off to analysis stage", "component", "searchworker", "request_id", requestID, "results", len(results))
}

// searchAndExtract looks up candidate URLs and extracts content for each,
// applying the minimum-viable-content filter with a fallback retaining the
// first few results regardless (spec §4.4).
func (w *Worker) searchAndExtract(ctx context.Context, topic string) ([]models.SearchResult, error) {
	candidates, err := w.engine.Search(ctx, topic, w.maxResults)
	if err != nil {
		return nil, fmt.Errorf("search engine: %w", err)
	}

	all := make([]models.SearchResult, 0, len(candidates))
	for _, c := range candidates {
		w.paceFor(c.URL)

		title, body, err := w.extractor.Extract(ctx, c.URL)
		if err != nil {
			slog.Warn("extraction failed, degrading to empty content", "component", "searchworker", "url", c.URL, "error", err)
			title, body = c.Title, ""
		}
		if title == "" {
			title = c.Title
		}
		if len(body) > w.maxContentChars {
			body = body[:w.maxContentChars]
		}

		all = append(all, models.SearchResult{URL: c.URL, Title: title, Content: body})
	}

	valid := make([]models.SearchResult, 0, len(all))
	for _, r := range all {
		if len(r.Content) >= w.minContentChars {
			valid = append(valid, r)
		}
	}
	if len(valid) > 0 {
		return valid, nil
	}

	// Every result fell below the threshold: retain the first few anyway
	// rather than discard useful URL/title pairs entirely.
	limit := 3
	if len(all) < limit {
		limit = len(all)
	}
	return all[:limit], nil
}

func (w *Worker) paceFor(rawURL string) {
	host := hostOf(rawURL)
	for {
		if _, ok := w.limiter.Allow(host); ok {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func hostOf(rawURL string) string {
	// A coarse host key is enough for politeness pacing; malformed URLs all
	// share one bucket rather than bypass the limiter.
	start := 0
	if i := indexOf(rawURL, "://"); i >= 0 {
		start = i + 3
	}
	end := len(rawURL)
	if i := indexOf(rawURL[start:], "/"); i >= 0 {
		end = start + i
	}
	if start >= end {
		return "unknown"
	}
	return rawURL[start:end]
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}

func (w *Worker) fail(ctx context.Context, requestID, reason string) {
	if err := w.ledger.Fail(ctx, requestID, reason); err != nil {
		slog.Error("failed to record failure", "component", "searchworker", "request_id", requestID, "error", err)
		return
	}
	metrics.RequestsFailed.WithLabelValues("search").Inc()
	slog.Warn("request failed", "component", "searchworker", "request_id", requestID, "reason", reason)
}
