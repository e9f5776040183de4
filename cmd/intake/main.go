// Command intake runs the HTTP API: request creation and every read-only
// projection over the Ledger (spec §4.3, §6).
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"research-pipeline/internal/api"
	"research-pipeline/internal/cache"
	"research-pipeline/internal/config"
	"research-pipeline/internal/ledger"
	"research-pipeline/internal/queue"
	"research-pipeline/internal/searchindex"
)

func main() {
	cfg := config.Load()

	// ── Infrastructure ──────────────────────────────────────────────────

	l, err := ledger.Connect(cfg.PostgresDSN)
	if err != nil {
		slog.Error("postgres connect failed", "component", "intake", "error", err)
		os.Exit(1)
	}

	redisClient, err := cache.New(cfg.RedisAddr)
	if err != nil {
		slog.Error("redis connect failed", "component", "intake", "error", err)
		os.Exit(1)
	}

	producer, err := queue.NewProducer(cfg.KafkaBrokers)
	if err != nil {
		slog.Error("bus connect failed", "component", "intake", "error", err)
		os.Exit(1)
	}

	searchIdx, err := searchindex.New(cfg.ElasticsearchURL)
	if err != nil {
		slog.Error("elasticsearch init failed", "component", "intake", "error", err)
		os.Exit(1)
	}

	// ── HTTP server ─────────────────────────────────────────────────────

	h := &api.Handler{
		Store:           l,
		Cache:           redisClient,
		Queue:           producer,
		Search:          searchIdx,
		SearchTopic:     cfg.SearchQueueTopic,
		DefaultPageSize: 20,
		MaxPageSize:     100,
	}

	mux := http.NewServeMux()
	handler := h.RegisterRoutes(mux, cfg.CORSOrigins)

	srv := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("intake started", "component", "intake", "port", cfg.APIPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "component", "intake", "error", err)
			os.Exit(1)
		}
	}()

	// ── Graceful shutdown ───────────────────────────────────────────────
	//
	// Stop accepting new HTTP requests first so in-flight ones finish, then
	// close infrastructure clients in reverse init order.

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutdown signal received", "component", "intake")

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer httpCancel()
	if err := srv.Shutdown(httpCtx); err != nil {
		slog.Error("http shutdown error", "component", "intake", "error", err)
	}

	producer.Close()
	redisClient.Close()
	l.Close()

	slog.Info("shutdown complete", "component", "intake")
}
