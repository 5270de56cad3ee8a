package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Source database
	SourceDriver     string
	SourceDSN        string
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// BigQuery source
	BigQueryProject string
	BigQueryDataset string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Kafka
	KafkaBrokers []string
	KafkaTopic   string

	// Directories
	CacheDir   string
	FeatureDir string

	// Terminology
	CatalogPath string

	// Feature Store
	FeatureStoreCacheTTL time.Duration

	// Run ledger
	LedgerEnabled bool

	// Feature service
	ServerHost string
	ServerPort string
}

func Load() *Config {
	return &Config{
		SourceDriver:     getEnv("SOURCE_DRIVER", "postgres"),
		SourceDSN:        getEnv("SOURCE_DSN", ""),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "patientpy"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", ""),
		PostgresDB:       getEnv("POSTGRES_DB", "icu"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		BigQueryProject: getEnv("BIGQUERY_PROJECT", ""),
		BigQueryDataset: getEnv("BIGQUERY_DATASET", ""),

		RedisHost:     getEnv("REDIS_HOST", ""),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		KafkaBrokers: getStringSliceEnv("KAFKA_BROKERS", nil),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "patientpy-runs"),

		CacheDir:   getEnv("CACHE_DIR", "./cache"),
		FeatureDir: getEnv("FEATURE_DIR", "./features"),

		CatalogPath: getEnv("CATALOG_PATH", ""),

		FeatureStoreCacheTTL: getDuration("FEATURE_STORE_CACHE_TTL", 24*time.Hour),

		LedgerEnabled: getBoolEnv("LEDGER_ENABLED", false),

		ServerHost: getEnv("SERVER_HOST", "0.0.0.0"),
		ServerPort: getEnv("SERVER_PORT", "8090"),
	}
}

// RedisEnabled reports whether an online feature store is configured.
func (c *Config) RedisEnabled() bool {
	return c.RedisHost != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var out []string
		for _, part := range strings.Split(value, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
