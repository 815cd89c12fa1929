package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envOf(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv(envOf(map[string]string{"GCP_PROJECT_ID": "ledger-prod"}))
	require.NoError(t, err)
	assert.Equal(t, StoreFirestore, cfg.Store)
	assert.Equal(t, "TXN", cfg.ReferencePrefix)
	assert.Equal(t, 5*time.Minute, cfg.AccountCacheTTL)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, "8080", cfg.Port)
	assert.Empty(t, cfg.KafkaBrokers)
}

func TestFromEnv_Overrides(t *testing.T) {
	cfg, err := FromEnv(envOf(map[string]string{
		"LEDGER_STORE":       "memory",
		"KAFKA_BROKERS":      "k1:9092, k2:9092,",
		"REFERENCE_PREFIX":   "INV",
		"ACCOUNT_CACHE_TTL":  "30s",
		"INGEST_MAX_RETRIES": "5",
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "INV", cfg.ReferencePrefix)
	assert.Equal(t, 30*time.Second, cfg.AccountCacheTTL)
	assert.Equal(t, 5, cfg.MaxRetries)
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"firestore without project", map[string]string{}},
		{"unknown store", map[string]string{"LEDGER_STORE": "redis"}},
		{"bad ttl", map[string]string{"LEDGER_STORE": "memory", "ACCOUNT_CACHE_TTL": "soon"}},
		{"bad retries", map[string]string{"LEDGER_STORE": "memory", "INGEST_MAX_RETRIES": "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromEnv(envOf(tt.env))
			assert.Error(t, err)
		})
	}
}
