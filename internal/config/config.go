// Package config loads all service connection settings from environment
// variables, with sane defaults for local development. The default
// Postgres DSN carries a local development credential; deployments set
// POSTGRES_DSN.
package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// PostgreSQL (the Ledger)
	PostgresDSN string

	// Redis (status read cache)
	RedisAddr string

	// Elasticsearch (completed-request search index)
	ElasticsearchURL string

	// Kafka-compatible message bus
	KafkaBrokers      []string
	SearchQueueTopic  string
	AnalyzeQueueTopic string
	SearchGroupID     string
	AnalysisGroupID   string

	// HTTP server
	APIPort string

	// CORS
	CORSOrigins []string

	// Search engine selection: "duckduckgo" (default) or "searxng"
	SearchEngine    string
	SearXNGURL      string
	SearchMaxResults int

	// Content extraction
	MinContentChars int
	MaxContentChars int

	// Summarizer
	SummarizerURL         string
	SummarizerModel       string
	MaxModelLen           int
	SummarizerTemperature float64
	SummarizerTopP        float64
	SummarizerMaxTokens   int
	GPUMemoryFraction     float64

	// Context folding
	ReservedTokens int
	MapChunkTokens int

	// Orphan sweep
	SweepInterval   time.Duration
	SweepGracePeriod time.Duration
}

// Load reads environment variables and returns a populated Config.
func Load() *Config {
	return &Config{
		PostgresDSN:      getEnv("POSTGRES_DSN", "user=postgres password=secret dbname=research_pipeline sslmode=disable host=postgres"),
		RedisAddr:        getEnv("REDIS_ADDR", "redis:6379"),
		ElasticsearchURL: getEnv("ELASTICSEARCH_URL", "http://elasticsearch:9200"),

		KafkaBrokers:      splitEnv(getEnv("KAFKA_BROKERS", "kafka:9092")),
		SearchQueueTopic:  getEnv("SEARCH_QUEUE_TOPIC", "search-queue"),
		AnalyzeQueueTopic: getEnv("ANALYZE_QUEUE_TOPIC", "analyze-queue"),
		SearchGroupID:     getEnv("SEARCH_GROUP_ID", "search-stage"),
		AnalysisGroupID:   getEnv("ANALYSIS_GROUP_ID", "analysis-stage"),

		APIPort:     getEnv("API_PORT", "8080"),
		CORSOrigins: splitEnv(getEnv("CORS_ORIGINS", "http://localhost:5173,http://localhost:3000")),

		SearchEngine:     getEnv("SEARCH_ENGINE", "duckduckgo"),
		SearXNGURL:       getEnv("SEARXNG_URL", ""),
		SearchMaxResults: getEnvInt("SEARCH_MAX_RESULTS", 8),

		MinContentChars: getEnvInt("MIN_CONTENT_CHARS", 100),
		MaxContentChars: getEnvInt("MAX_CONTENT_CHARS", 10000),

		SummarizerURL:         getEnv("SUMMARIZER_URL", "http://summarizer:8000"),
		SummarizerModel:       getEnv("SUMMARIZER_MODEL", "hugging-quants/Meta-Llama-3.1-8B-Instruct-AWQ-INT4"),
		MaxModelLen:           getEnvInt("SUMMARIZER_MAX_MODEL_LEN", 4096),
		SummarizerTemperature: getEnvFloat("SUMMARIZER_TEMPERATURE", 0.7),
		SummarizerTopP:        getEnvFloat("SUMMARIZER_TOP_P", 0.9),
		SummarizerMaxTokens:   getEnvInt("SUMMARIZER_MAX_TOKENS", 1536),
		GPUMemoryFraction:     getEnvFloat("SUMMARIZER_GPU_MEMORY_UTILIZATION", 0.90),

		ReservedTokens: getEnvInt("FOLD_RESERVED_TOKENS", 1800),
		MapChunkTokens: getEnvInt("FOLD_MAP_CHUNK_TOKENS", 3000),

		SweepInterval:    getEnvDuration("SWEEP_INTERVAL", 1*time.Minute),
		SweepGracePeriod: getEnvDuration("SWEEP_GRACE_PERIOD", 15*time.Minute),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitEnv(v string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(v); i++ {
		if i == len(v) || v[i] == ',' {
			if i > start {
				out = append(out, v[start:i])
			}
			start = i + 1
		}
	}
	return out
}
