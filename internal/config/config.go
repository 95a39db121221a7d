package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPPort string
	LogLevel string

	GeminiAPIKey string

	// Conversation store backend: "memory" (volatile, the default) or
	// "sqlite" (durable, same interface).
	StoreBackend     string
	StoreDatabaseURL string

	// Session chunk index database.
	IndexDatabaseURL string

	UploadDir      string
	MaxUploadBytes int64

	// Bounded timeout applied to every external-stage call.
	StageTimeout time.Duration

	// Extra extraction attempts after a failed one. The source system never
	// retried; 0 keeps that behavior.
	UploadProcessRetries int

	ChunkSize           int
	ChunkOverlap        int
	SearchTopK          int
	SimilarityThreshold float64
}

func Load() (*Config, error) {
	// Load .env file if it exists; plain environment variables otherwise.
	_ = godotenv.Load()

	cfg := &Config{
		HTTPPort:             getEnv("HTTP_PORT", "5000"),
		LogLevel:             getEnv("LOG_LEVEL", "INFO"),
		GeminiAPIKey:         getEnv("GEMINI_API_KEY", ""),
		StoreBackend:         getEnv("STORE_BACKEND", "memory"),
		StoreDatabaseURL:     getEnv("STORE_DATABASE_URL", "resumechat.db"),
		IndexDatabaseURL:     getEnv("INDEX_DATABASE_URL", "resumechat_index.db"),
		UploadDir:            getEnv("UPLOAD_DIR", "uploads"),
		MaxUploadBytes:       int64(getEnvAsInt("MAX_UPLOAD_BYTES", 10*1024*1024)),
		StageTimeout:         getEnvAsDuration("STAGE_TIMEOUT", 2*time.Minute),
		UploadProcessRetries: getEnvAsInt("UPLOAD_PROCESS_RETRIES", 0),
		ChunkSize:            getEnvAsInt("CHUNK_SIZE", 1000),
		ChunkOverlap:         getEnvAsInt("CHUNK_OVERLAP", 200),
		SearchTopK:           getEnvAsInt("SEARCH_TOP_K", 5),
		SimilarityThreshold:  getEnvAsFloat("SIMILARITY_THRESHOLD", 0.3),
	}

	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable is required")
	}
	if cfg.StoreBackend != "memory" && cfg.StoreBackend != "sqlite" {
		return nil, fmt.Errorf("STORE_BACKEND must be \"memory\" or \"sqlite\", got %q", cfg.StoreBackend)
	}
	return cfg, nil
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}
