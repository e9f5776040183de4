// Command sweeper runs the orphan recovery cron job standalone, matching
// the teacher's one-binary-per-role convention (spec §9 open-question
// resolution: conservative fail-only orphan recovery, no self-reclaim).
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"research-pipeline/internal/config"
	"research-pipeline/internal/ledger"
	"research-pipeline/internal/sweep"
)

func main() {
	cfg := config.Load()

	l, err := ledger.Connect(cfg.PostgresDSN)
	if err != nil {
		slog.Error("postgres connect failed", "component", "sweeper", "error", err)
		os.Exit(1)
	}

	s := sweep.New(l, cfg.SweepGracePeriod)
	scheduler, err := s.Start(fmt.Sprintf("@every %s", cfg.SweepInterval))
	if err != nil {
		slog.Error("invalid sweep interval", "component", "sweeper", "interval", cfg.SweepInterval, "error", err)
		os.Exit(1)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutdown signal received", "component", "sweeper")

	// cron.Stop() returns a context that is done once the currently-running
	// sweep (if any) finishes; waiting on it lets that sweep complete.
	<-scheduler.Stop().Done()
	l.Close()

	slog.Info("sweeper stopped", "component", "sweeper")
}
