package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Port       string
	MongoURI   string
	RedisURL   string

	// Embedding service (OpenAI-compatible /embeddings endpoint)
	EmbeddingBaseURL string
	EmbeddingAPIKey  string
	EmbeddingModel   string
	EmbeddingDim     int

	// Labeling service (OpenAI-compatible /chat/completions endpoint)
	LabelBaseURL string
	LabelAPIKey  string
	LabelModel   string

	// JWT verification (token issuance is handled by the identity service)
	JWTSecret string

	// Clustering schedule and tunables
	ClusterCronSpec    string // cron spec for the nightly all-org run
	ClusterRunTimeout  time.Duration
	ClusteringYAMLPath string // hot-reloaded tunables, empty disables

	// Superadmin configuration
	SuperadminUserIDs []string
}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	// Parse superadmin user IDs (comma-separated)
	superadminEnv := getEnv("SUPERADMIN_USER_IDS", "")
	var superadminUserIDs []string
	if superadminEnv != "" {
		superadminUserIDs = strings.Split(superadminEnv, ",")
		for i := range superadminUserIDs {
			superadminUserIDs[i] = strings.TrimSpace(superadminUserIDs[i])
		}
	}

	return &Config{
		Port:     getEnv("PORT", "3001"),
		MongoURI: getEnv("MONGODB_URI", ""),
		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379"),

		EmbeddingBaseURL: getEnv("EMBEDDING_BASE_URL", "https://api.openai.com/v1"),
		EmbeddingAPIKey:  getEnv("EMBEDDING_API_KEY", ""),
		EmbeddingModel:   getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingDim:     getIntEnv("EMBEDDING_DIM", 1536),

		LabelBaseURL: getEnv("LABEL_BASE_URL", "https://api.openai.com/v1"),
		LabelAPIKey:  getEnv("LABEL_API_KEY", ""),
		LabelModel:   getEnv("LABEL_MODEL", "gpt-4o-mini"),

		JWTSecret: getEnv("JWT_SECRET", ""),

		ClusterCronSpec:    getEnv("CLUSTER_CRON_SPEC", "0 3 * * *"),
		ClusterRunTimeout:  getDurationEnv("CLUSTER_RUN_TIMEOUT", 10*time.Minute),
		ClusteringYAMLPath: getEnv("CLUSTERING_CONFIG_PATH", ""),

		SuperadminUserIDs: superadminUserIDs,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}
