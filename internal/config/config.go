// Package config loads runtime settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends.
const (
	StoreFirestore = "firestore"
	StoreMemory    = "memory"
)

// Config holds settings shared by every binary.
type Config struct {
	Store             string
	ProjectID         string
	FirestoreDatabase string
	BigQueryDataset   string
	GCSBucket         string
	KafkaBrokers      []string
	KafkaTopic        string
	ReferencePrefix   string
	AccountCacheTTL   time.Duration
	MaxRetries        int
	LogLevel          string
	Port              string
}

// Load reads .env (if present) and the environment. Flags parsed afterwards
// may override the returned values.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config using getenv for lookups.
func FromEnv(getenv func(string) string) (Config, error) {
	get := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	cfg := Config{
		Store:             get("LEDGER_STORE", StoreFirestore),
		ProjectID:         get("GCP_PROJECT_ID", ""),
		FirestoreDatabase: get("FIRESTORE_DATABASE", ""),
		BigQueryDataset:   get("BIGQUERY_DATASET", ""),
		GCSBucket:         get("GCS_BUCKET", ""),
		KafkaTopic:        get("KAFKA_TOPIC", ""),
		ReferencePrefix:   get("REFERENCE_PREFIX", "TXN"),
		AccountCacheTTL:   5 * time.Minute,
		MaxRetries:        3,
		LogLevel:          get("LOG_LEVEL", "info"),
		Port:              get("PORT", "8080"),
	}

	if brokers := get("KAFKA_BROKERS", ""); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}

	if v := get("ACCOUNT_CACHE_TTL", ""); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return cfg, fmt.Errorf("config: invalid ACCOUNT_CACHE_TTL %q", v)
		}
		cfg.AccountCacheTTL = d
	}

	if v := get("INGEST_MAX_RETRIES", ""); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return cfg, fmt.Errorf("config: invalid INGEST_MAX_RETRIES %q", v)
		}
		cfg.MaxRetries = n
	}

	return cfg, cfg.Validate()
}

// Validate checks combinations the binaries cannot run with.
func (c Config) Validate() error {
	switch c.Store {
	case StoreMemory:
	case StoreFirestore:
		if c.ProjectID == "" {
			return fmt.Errorf("config: GCP_PROJECT_ID is required for the firestore store")
		}
	default:
		return fmt.Errorf("config: unknown LEDGER_STORE %q", c.Store)
	}
	return nil
}
