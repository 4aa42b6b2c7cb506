package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// AI provider names accepted by AI_PROVIDER.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// generateWorkerID creates a unique consumer name using hostname and PID
func generateWorkerID() string {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "triage"
	}
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}

type Config struct {
	Port        string
	Environment string
	LogLevel    string

	// Storage
	DatabaseURL   string
	RedisURL      string
	MigrationsDir string
	AutoMigrate   bool

	// AI provider
	AIProvider    string
	GeminiAPIKey  string
	GeminiModel   string
	OpenAIAPIKey  string
	LLMModel      string
	LLMTimeoutSec int

	// WhatsApp
	WhatsAppVerifyToken string

	// Worker
	WorkerID            string
	WorkerCount         int
	WorkerQueueSize     int
	WorkerBatchSize     int
	WorkerJobTimeoutSec int
	WorkerMaxRetries    int
	WorkerRateLimit     float64

	// Consumer (Redis Stream)
	ConsumerBatchSize       int
	ConsumerBlockMS         int
	ConsumerMaxRetries      int
	ConsumerPendingCheckSec int

	// Cache
	CacheKBTTLSec     int
	IdempotencyTTLMin int

	// CORS
	AllowedOrigins []string
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisURL:      getEnv("REDIS_URL", ""),
		MigrationsDir: getEnv("MIGRATIONS_DIR", "migrations"),
		AutoMigrate:   getEnvBool("AUTO_MIGRATE", true),

		AIProvider:    strings.ToLower(getEnv("AI_PROVIDER", ProviderGemini)),
		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
		GeminiModel:   getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		LLMModel:      getEnv("LLM_MODEL", "gpt-4o-mini"),
		LLMTimeoutSec: getEnvInt("LLM_TIMEOUT_SEC", 20),

		WhatsAppVerifyToken: getEnv("WHATSAPP_VERIFY_TOKEN", ""),

		WorkerID:            getEnv("WORKER_ID", generateWorkerID()),
		WorkerCount:         getEnvInt("WORKER_COUNT", 8),
		WorkerQueueSize:     getEnvInt("WORKER_QUEUE_SIZE", 100),
		WorkerBatchSize:     getEnvInt("WORKER_BATCH_SIZE", 1),
		WorkerJobTimeoutSec: getEnvInt("WORKER_JOB_TIMEOUT_SEC", 60),
		WorkerMaxRetries:    getEnvInt("WORKER_MAX_RETRIES", 3),
		WorkerRateLimit:     getEnvFloat("WORKER_RATE_LIMIT", 0),

		ConsumerBatchSize:       getEnvInt("CONSUMER_BATCH_SIZE", 20),
		ConsumerBlockMS:         getEnvInt("CONSUMER_BLOCK_MS", 5000),
		ConsumerMaxRetries:      getEnvInt("CONSUMER_MAX_RETRIES", 3),
		ConsumerPendingCheckSec: getEnvInt("CONSUMER_PENDING_CHECK_SEC", 60),

		CacheKBTTLSec:     getEnvInt("CACHE_KB_TTL_SEC", 300),
		IdempotencyTTLMin: getEnvInt("IDEMPOTENCY_TTL_MIN", 60),

		AllowedOrigins: getEnvSlice("ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports configuration that would make the service unable to triage.
func (c *Config) Validate() error {
	var errs []error
	switch c.AIProvider {
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY is required when AI_PROVIDER=gemini"))
		}
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required when AI_PROVIDER=openai"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported AI_PROVIDER %q", c.AIProvider))
	}
	if c.LLMTimeoutSec <= 0 {
		errs = append(errs, errors.New("LLM_TIMEOUT_SEC must be positive"))
	}
	if c.WorkerCount <= 0 {
		errs = append(errs, errors.New("WORKER_COUNT must be positive"))
	}
	if c.WorkerMaxRetries < 0 {
		errs = append(errs, errors.New("WORKER_MAX_RETRIES must not be negative"))
	}
	return errors.Join(errs...)
}

// LLMTimeout is the bound applied to a single provider call.
func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLMTimeoutSec) * time.Second
}

// JobTimeout is the bound applied to one ingest unit of work.
func (c *Config) JobTimeout() time.Duration {
	return time.Duration(c.WorkerJobTimeoutSec) * time.Second
}

// CacheKBTTL is how long the active knowledge-base list is cached.
func (c *Config) CacheKBTTL() time.Duration {
	return time.Duration(c.CacheKBTTLSec) * time.Second
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultValue
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
