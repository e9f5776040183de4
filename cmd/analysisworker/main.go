// Command analysisworker runs one replica of the Analysis Stage Worker
// (spec §4.5).
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"research-pipeline/internal/analysisworker"
	"research-pipeline/internal/config"
	"research-pipeline/internal/contextfold"
	"research-pipeline/internal/ledger"
	"research-pipeline/internal/queue"
	"research-pipeline/internal/searchindex"
	"research-pipeline/internal/summarizer"
)

func main() {
	cfg := config.Load()

	l, err := ledger.Connect(cfg.PostgresDSN)
	if err != nil {
		slog.Error("postgres connect failed", "component", "analysisworker", "error", err)
		os.Exit(1)
	}

	consumer, err := queue.NewConsumer(cfg.KafkaBrokers, cfg.AnalyzeQueueTopic, cfg.AnalysisGroupID)
	if err != nil {
		slog.Error("bus consumer connect failed", "component", "analysisworker", "error", err)
		os.Exit(1)
	}

	summarizerClient := summarizer.New(cfg.SummarizerURL, summarizer.Params{
		Model:       cfg.SummarizerModel,
		Temperature: cfg.SummarizerTemperature,
		TopP:        cfg.SummarizerTopP,
		MaxTokens:   cfg.SummarizerMaxTokens,
	})

	folder, err := contextfold.New(cfg.MaxModelLen, cfg.ReservedTokens, cfg.MapChunkTokens, cfg.MaxContentChars, summarizerClient)
	if err != nil {
		slog.Error("context folder init failed", "component", "analysisworker", "error", err)
		os.Exit(1)
	}

	searchIdx, err := searchindex.New(cfg.ElasticsearchURL)
	if err != nil {
		slog.Error("elasticsearch init failed", "component", "analysisworker", "error", err)
		os.Exit(1)
	}

	w := analysisworker.New(l, consumer, folder, summarizerClient, searchIdx)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("analysis worker started", "component", "analysisworker", "group", cfg.AnalysisGroupID)
	w.Run(ctx)

	if err := summarizerClient.Close(); err != nil {
		slog.Warn("summarizer client close error", "component", "analysisworker", "error", err)
	}
	consumer.Close()
	l.Close()

	slog.Info("analysis worker stopped", "component", "analysisworker")
}
