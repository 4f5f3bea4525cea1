package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string // default: 8080

	// Database
	PostgresDSN string

	// Cache / counters
	RedisAddr string

	// Providers
	DeepSeekAPIKey string
	GeminiAPIKey   string
	OpenAIAPIKey   string

	// ProviderPriority is the default fallback order by provider name.
	ProviderPriority []string

	// ProviderTimeout bounds each individual provider attempt.
	ProviderTimeout time.Duration

	// Observability
	OTELExporterType     string // "stdout" or "otlp"
	OTELExporterEndpoint string // default: "localhost:4317"

	// Rate Limiting (burst, tokens per minute; monthly quotas are separate)
	DefaultRateLimitTPM int64

	// MenuBaseURL is the public origin QR codes link to.
	MenuBaseURL string
}

func Load() (*Config, error) {
	// Load .env file if present (non-fatal if missing)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                 getEnv("PORT", "8080"),
		PostgresDSN:          os.Getenv("POSTGRES_DSN"),
		RedisAddr:            os.Getenv("REDIS_ADDR"),
		DeepSeekAPIKey:       os.Getenv("DEEPSEEK_API_KEY"),
		GeminiAPIKey:         os.Getenv("GEMINI_API_KEY"),
		OpenAIAPIKey:         os.Getenv("OPENAI_API_KEY"),
		OTELExporterType:     getEnv("OTEL_EXPORTER_TYPE", "stdout"),
		OTELExporterEndpoint: getEnv("OTEL_EXPORTER_ENDPOINT", "localhost:4317"),
		MenuBaseURL:          getEnv("MENU_BASE_URL", "https://menu.waiterai.app"),
	}

	priority := getEnv("PROVIDER_PRIORITY", "deepseek,gemini,openai")
	for _, name := range strings.Split(priority, ",") {
		name = strings.TrimSpace(name)
		if name != "" {
			cfg.ProviderPriority = append(cfg.ProviderPriority, name)
		}
	}

	timeoutStr := getEnv("PROVIDER_TIMEOUT_SECONDS", "30")
	timeoutSec, err := strconv.Atoi(timeoutStr)
	if err != nil || timeoutSec <= 0 {
		return nil, fmt.Errorf("invalid PROVIDER_TIMEOUT_SECONDS: %q", timeoutStr)
	}
	cfg.ProviderTimeout = time.Duration(timeoutSec) * time.Second

	tpmStr := getEnv("DEFAULT_RATE_LIMIT_TPM", "100000")
	tpm, err := strconv.ParseInt(tpmStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid DEFAULT_RATE_LIMIT_TPM: %w", err)
	}
	cfg.DefaultRateLimitTPM = tpm

	// Validation
	if cfg.PostgresDSN == "" {
		return nil, fmt.Errorf("POSTGRES_DSN is required")
	}
	if cfg.RedisAddr == "" {
		return nil, fmt.Errorf("REDIS_ADDR is required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
