// Package config reads runtime settings from the environment, with an
// optional .env file for local development.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config gathers every knob the binaries read from the environment.
// Integrations are optional: an empty DatabaseURL runs on the in-memory
// store, empty cloud settings disable the matching feature.
type Config struct {
	Port         string
	AllowOrigins string
	AuthBearer   string

	LogLevel  string
	LogPretty bool

	// DatabaseURL is a postgres DSN. Empty selects the in-memory store.
	DatabaseURL string

	BigQueryProject string
	BigQueryDataset string
	SnapshotBucket  string
	GeminiAPIKey    string
	GeminiModel     string
	NotionToken     string
	NotionBillsDB   string

	ToleranceDays      int
	AmountTolerancePct float64
	PartialRatio       float64

	TransferRetries      int
	TransferRetryDelayMS int

	QueueWorkers      int
	QueueBuffer       int
	QueueMaxRetries   int
	QueueRetryDelayMS int

	ReqTimeoutSec int
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoi(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func atof(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func atob(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// Load reads the environment into a Config. Values missing or
// unparsable fall back to defaults; a .env file in the working
// directory is read first when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:         getenv("PORT", "8080"),
		AllowOrigins: getenv("ALLOW_ORIGINS", "*"),
		AuthBearer:   getenv("AUTH_BEARER", ""),

		LogLevel:  getenv("LOG_LEVEL", "info"),
		LogPretty: atob("LOG_PRETTY", false),

		DatabaseURL: getenv("DATABASE_URL", ""),

		BigQueryProject: getenv("BIGQUERY_PROJECT", ""),
		BigQueryDataset: getenv("BIGQUERY_DATASET", "pouch"),
		SnapshotBucket:  getenv("SNAPSHOT_BUCKET", ""),
		GeminiAPIKey:    getenv("GEMINI_API_KEY", ""),
		GeminiModel:     getenv("GEMINI_MODEL", "gemini-2.0-flash"),
		NotionToken:     getenv("NOTION_TOKEN", ""),
		NotionBillsDB:   getenv("NOTION_BILLS_DATABASE_ID", ""),

		ToleranceDays:      atoi("RECONCILER_TOLERANCE_DAYS", 7),
		AmountTolerancePct: atof("RECONCILER_AMOUNT_TOLERANCE_PCT", 1),
		PartialRatio:       atof("RECONCILER_PARTIAL_RATIO", 0.5),

		TransferRetries:      atoi("TRANSFER_IMMEDIATE_RETRIES", 2),
		TransferRetryDelayMS: atoi("TRANSFER_RETRY_DELAY_MS", 200),

		QueueWorkers:      atoi("QUEUE_WORKERS", 4),
		QueueBuffer:       atoi("QUEUE_BUFFER", 64),
		QueueMaxRetries:   atoi("QUEUE_MAX_RETRIES", 3),
		QueueRetryDelayMS: atoi("QUEUE_RETRY_DELAY_MS", 1000),

		ReqTimeoutSec: atoi("REQUEST_TIMEOUT_SECONDS", 30),
	}
}
