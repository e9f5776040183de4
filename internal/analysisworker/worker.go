// Package analysisworker implements the Analysis Stage Worker (spec §4.5):
// consume the analyze queue, claim the request, fold the search results
// into a context that fits the summarizer's ceiling, summarize, and
// complete the request.
package analysisworker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"research-pipeline/internal/contextfold"
	"research-pipeline/internal/ledger"
	"research-pipeline/internal/metrics"
	"research-pipeline/internal/models"
	"research-pipeline/internal/queue"
	"research-pipeline/internal/searchindex"
	"research-pipeline/internal/summarizer"
)

// Worker owns the claim-fold-summarize-complete cycle for one consumer in
// the analysis-stage consumer group.
type Worker struct {
	ledger      *ledger.Ledger
	consumer    *queue.Consumer
	folder      *contextfold.Folder
	summarizer  summarizer.Summarizer
	searchIndex *searchindex.Client // optional, nil disables indexing
}

// New builds a Worker. searchIdx may be nil — indexing a completed
// request is an enrichment, not a core lifecycle requirement.
func New(l *ledger.Ledger, consumer *queue.Consumer, folder *contextfold.Folder, s summarizer.Summarizer, searchIdx *searchindex.Client) *Worker {
	return &Worker{
		ledger:      l,
		consumer:    consumer,
		folder:      folder,
		summarizer:  s,
		searchIndex: searchIdx,
	}
}

// Run drives the consume loop until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		msg, ok, err := w.consumer.Next(ctx)
		if err != nil {
			slog.Error("analysis worker poll failed", "component", "analysisworker", "error", err)
			continue
		}
		if !ok {
			slog.Info("analysis worker stopping", "component", "analysisworker")
			return
		}

		w.handle(ctx, msg)

		if err := w.consumer.Commit(ctx, msg); err != nil {
			slog.Error("analysis worker commit failed", "component", "analysisworker", "request_id", msg.Task.RequestID, "error", err)
		}
	}
}

func (w *Worker) handle(ctx context.Context, msg queue.Message) {
	requestID := msg.Task.RequestID
	topic := msg.Task.Topic

	// spec §9's explicit resolution: implement only "analyze", surface an
	// explicit error on any unknown phase rather than guessing at
	// "generate_queries" semantics that were never specified.
	if msg.Task.Phase != "" && msg.Task.Phase != "analyze" {
		slog.Error("unknown analyze-queue phase", "component", "analysisworker", "request_id", requestID, "phase", msg.Task.Phase)
		w.fail(ctx, requestID, fmt.Sprintf("unknown phase %q", msg.Task.Phase))
		return
	}

	timer := prometheus.NewTimer(metrics.StageDuration.WithLabelValues("analysis"))
	defer timer.ObserveDuration()

	outcome, err := w.ledger.Claim(ctx, requestID, models.StatusAnalyzing, models.StatusProcessingAnalysis)
	if err != nil {
		slog.Error("claim failed", "component", "analysisworker", "request_id", requestID, "error", err)
		return
	}
	if outcome == ledger.ClaimLost {
		slog.Info("claim lost, skipping", "component", "analysisworker", "request_id", requestID)
		return
	}

	results, err := w.ledger.GetSearchResults(ctx, requestID)
	if err != nil {
		w.fail(ctx, requestID, err.Error())
		return
	}
	if len(results) == 0 {
		w.fail(ctx, requestID, "No search results found")
		return
	}

	items := make([]contextfold.Item, len(results))
	for i, r := range results {
		items[i] = contextfold.Item{Title: r.Title, URL: r.URL, Content: r.Content}
	}

	start := time.Now()
	summary, err := w.summarizeAll(ctx, topic, items)
	inferenceTimeMs := time.Since(start).Milliseconds()
	if err != nil {
		w.fail(ctx, requestID, err.Error())
		return
	}

	if err := w.ledger.InsertAnalysisResult(ctx, requestID, summary, inferenceTimeMs); err != nil {
		w.fail(ctx, requestID, err.Error())
		return
	}

	if err := w.ledger.Complete(ctx, requestID); err != nil {
		w.fail(ctx, requestID, err.Error())
		return
	}

	if w.searchIndex != nil {
		req, err := w.ledger.GetRequest(ctx, requestID)
		if err != nil {
			slog.Warn("post-completion request fetch failed, skipping index", "component", "analysisworker", "request_id", requestID, "error", err)
		} else if err := w.searchIndex.IndexCompletedRequest(ctx, req, &models.AnalysisResult{Summary: summary}); err != nil {
			slog.Warn("search index upsert failed", "component", "analysisworker", "request_id", requestID, "error", err)
		}
	}

	slog.Info("request completed", "component", "analysisworker", "request_id", requestID, "inference_time_ms", inferenceTimeMs)
}

// summarizeAll runs context folding, then the outer summarization pass
// over whatever context it produced — the direct concatenation, or the
// reduced Map-phase output (spec §4.6 step 4).
func (w *Worker) summarizeAll(ctx context.Context, topic string, items []contextfold.Item) (string, error) {
	folded, err := w.folder.Fold(ctx, topic, items)
	if err != nil {
		return "", fmt.Errorf("context fold: %w", err)
	}

	path := "direct"
	if folded.Folded {
		path = "fold"
	}
	metrics.FoldPathUsed.WithLabelValues(path).Inc()

	prompt := outerPrompt(topic, folded.Context)
	summary, err := w.summarizer.Summarize(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}
	return summary, nil
}

func outerPrompt(topic, context string) string {
	return fmt.Sprintf(
		"Topic: %s\n\nSearch Results (or Summarized Context):\n%s\n\nSummarize the above information about %q.",
		topic, context, topic,
	)
}

func (w *Worker) fail(ctx context.Context, requestID, reason string) {
	if err := w.ledger.Fail(ctx, requestID, reason); err != nil {
		slog.Error("failed to record failure", "component", "analysisworker", "request_id", requestID, "error", err)
		return
	}
	metrics.RequestsFailed.WithLabelValues("analysis").Inc()
	slog.Warn("request failed", "component", "analysisworker", "request_id", requestID, "reason", reason)
}
