package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	if cfg.APIPort != "8080" {
		t.Errorf("expected default API_PORT 8080, got %q", cfg.APIPort)
	}
	if cfg.SearchEngine != "duckduckgo" {
		t.Errorf("expected default search engine duckduckgo, got %q", cfg.SearchEngine)
	}
	if cfg.SearchMaxResults != 8 {
		t.Errorf("expected default SEARCH_MAX_RESULTS 8, got %d", cfg.SearchMaxResults)
	}
	if cfg.SweepInterval != 1*time.Minute {
		t.Errorf("expected default sweep interval 1m, got %v", cfg.SweepInterval)
	}
	if cfg.SweepGracePeriod != 15*time.Minute {
		t.Errorf("expected default sweep grace period 15m, got %v", cfg.SweepGracePeriod)
	}
	if len(cfg.KafkaBrokers) != 1 || cfg.KafkaBrokers[0] != "kafka:9092" {
		t.Errorf("expected single default broker, got %v", cfg.KafkaBrokers)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("API_PORT", "9090")
	t.Setenv("SEARCH_ENGINE", "searxng")
	t.Setenv("SEARCH_MAX_RESULTS", "20")
	t.Setenv("SUMMARIZER_TEMPERATURE", "0.2")
	t.Setenv("SWEEP_INTERVAL", "90s")
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092,broker3:9092")
	t.Setenv("CORS_ORIGINS", "https://example.com")

	cfg := Load()

	if cfg.APIPort != "9090" {
		t.Errorf("expected overridden API_PORT, got %q", cfg.APIPort)
	}
	if cfg.SearchEngine != "searxng" {
		t.Errorf("expected overridden search engine, got %q", cfg.SearchEngine)
	}
	if cfg.SearchMaxResults != 20 {
		t.Errorf("expected overridden SEARCH_MAX_RESULTS, got %d", cfg.SearchMaxResults)
	}
	if cfg.SummarizerTemperature != 0.2 {
		t.Errorf("expected overridden temperature, got %f", cfg.SummarizerTemperature)
	}
	if cfg.SweepInterval != 90*time.Second {
		t.Errorf("expected overridden sweep interval, got %v", cfg.SweepInterval)
	}
	if len(cfg.KafkaBrokers) != 3 {
		t.Fatalf("expected 3 brokers, got %d: %v", len(cfg.KafkaBrokers), cfg.KafkaBrokers)
	}
	if cfg.KafkaBrokers[1] != "broker2:9092" {
		t.Errorf("unexpected broker at index 1: %q", cfg.KafkaBrokers[1])
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "https://example.com" {
		t.Errorf("expected single overridden CORS origin, got %v", cfg.CORSOrigins)
	}
}

func TestLoad_InvalidNumericFallsBackToDefault(t *testing.T) {
	t.Setenv("SEARCH_MAX_RESULTS", "not-a-number")

	cfg := Load()

	if cfg.SearchMaxResults != 8 {
		t.Errorf("expected fallback to default on unparsable int, got %d", cfg.SearchMaxResults)
	}
}

func TestSplitEnv_IgnoresEmptySegments(t *testing.T) {
	out := splitEnv("a,,b,")
	if len(out) != 2 || out[0] != "a" || out[1] != "b" {
		t.Errorf("expected [a b], got %v", out)
	}
}
