// Command searchworker runs one replica of the Search Stage Worker (spec
// §4.4). Multiple replicas may run concurrently in the same consumer
// group; the claim primitive ensures at most one of them advances any
// given request.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"research-pipeline/internal/config"
	"research-pipeline/internal/extractor"
	"research-pipeline/internal/ledger"
	"research-pipeline/internal/queue"
	"research-pipeline/internal/search"
	"research-pipeline/internal/searchworker"
)

func main() {
	cfg := config.Load()

	l, err := ledger.Connect(cfg.PostgresDSN)
	if err != nil {
		slog.Error("postgres connect failed", "component", "searchworker", "error", err)
		os.Exit(1)
	}

	consumer, err := queue.NewConsumer(cfg.KafkaBrokers, cfg.SearchQueueTopic, cfg.SearchGroupID)
	if err != nil {
		slog.Error("bus consumer connect failed", "component", "searchworker", "error", err)
		os.Exit(1)
	}

	producer, err := queue.NewProducer(cfg.KafkaBrokers)
	if err != nil {
		slog.Error("bus producer connect failed", "component", "searchworker", "error", err)
		os.Exit(1)
	}

	engine := search.New(cfg.SearchEngine, cfg.SearXNGURL)
	ext := extractor.New()

	w := searchworker.New(l, consumer, producer, engine, ext, cfg.AnalyzeQueueTopic, cfg.SearchMaxResults, cfg.MinContentChars, cfg.MaxContentChars)

	// ctx is cancelled on SIGINT/SIGTERM, which causes the consume loop to
	// drain the current in-flight message and return cleanly.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("search worker started", "component", "searchworker", "group", cfg.SearchGroupID)
	w.Run(ctx)

	producer.Close()
	consumer.Close()
	l.Close()

	slog.Info("search worker stopped", "component", "searchworker")
}
