package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
)

// Config holds every runtime setting, loaded once at startup from the
// environment.
type Config struct {
	Port     string
	MongoURI string
	RedisURL string

	LLMBaseURL        string
	LLMAPIKey         string
	LLMModel          string
	LLMUtilityModel   string
	LLMRequestTimeout time.Duration
	LLMRatePerSecond  float64

	// Summarization kicks in once history exceeds SummaryThreshold
	// messages; the summary replaces everything but the latest
	// MessagesAfterSummary entries.
	SummaryThreshold     int
	MessagesAfterSummary int
	SessionTTL           time.Duration

	PersistRetries int
	PersistBackoff time.Duration

	PopupCollapseDelay time.Duration

	PruneSchedule    string
	MaxPendingTopics int

	AdminToken string
}

// Load reads configuration from environment variables, applying defaults for
// everything optional.
func Load() (*Config, error) {
	cfg := &Config{
		Port:     getEnv("PORT", "8091"),
		MongoURI: getEnv("MONGODB_URI", "mongodb://localhost:27017/canvasmind"),
		RedisURL: getEnv("REDIS_URL", ""),

		LLMBaseURL:        getEnv("LLM_BASE_URL", "https://api.openai.com/v1"),
		LLMAPIKey:         getEnv("LLM_API_KEY", ""),
		LLMModel:          getEnv("LLM_MODEL", "gpt-4o"),
		LLMUtilityModel:   getEnv("LLM_UTILITY_MODEL", "gpt-4o-mini"),
		LLMRequestTimeout: getDurationEnv("LLM_REQUEST_TIMEOUT", 90*time.Second),
		LLMRatePerSecond:  getFloatEnv("LLM_RATE_PER_SECOND", 5),

		SummaryThreshold:     getIntEnv("SUMMARY_THRESHOLD", 30),
		MessagesAfterSummary: getIntEnv("MESSAGES_AFTER_SUMMARY", 6),
		SessionTTL:           getDurationEnv("SESSION_TTL", 2*time.Hour),

		PersistRetries: getIntEnv("PERSIST_RETRIES", 3),
		PersistBackoff: getDurationEnv("PERSIST_BACKOFF", 200*time.Millisecond),

		PopupCollapseDelay: getDurationEnv("POPUP_COLLAPSE_DELAY", 30*time.Second),

		PruneSchedule:    getEnv("PRUNE_SCHEDULE", "0 3 * * *"),
		MaxPendingTopics: getIntEnv("MAX_PENDING_TOPICS", 20),

		AdminToken: getEnv("ADMIN_TOKEN", ""),
	}

	if cfg.LLMAPIKey == "" {
		return nil, fmt.Errorf("LLM_API_KEY is required")
	}
	if _, err := cron.ParseStandard(cfg.PruneSchedule); err != nil {
		return nil, fmt.Errorf("invalid PRUNE_SCHEDULE %q: %w", cfg.PruneSchedule, err)
	}
	if cfg.SummaryThreshold <= cfg.MessagesAfterSummary {
		return nil, fmt.Errorf("SUMMARY_THRESHOLD (%d) must exceed MESSAGES_AFTER_SUMMARY (%d)",
			cfg.SummaryThreshold, cfg.MessagesAfterSummary)
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getFloatEnv(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
