package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	// Server
	Port       string // default: 3001
	AdminToken string // guards /internal routes; empty disables them

	// Database
	PostgresDSN string // optional

	// Cache
	RedisAddr string // optional

	// Auth
	JWTSecret string
	JWKSURL   string

	// AI providers
	AnthropicAPIKey string
	AnthropicModel  string
	GeminiAPIKey    string
	GeminiModel     string
	AIProvider      string // "ollama" forces the local backend for every tier
	OllamaURL       string
	OllamaModel     string

	// Voice providers
	OpenAIAPIKey     string
	ElevenLabsAPIKey string

	// Tiers
	TierConfigPath string

	// Cost
	MonthlyBudget    decimal.Decimal
	CostPerAIToken   decimal.Decimal
	CostPerTTSChar   decimal.Decimal
	CostPerSTTMinute decimal.Decimal

	// Logging
	LogLevel  string
	LogFormat string // "json" or "console"

	// Observability
	OTELExporterType     string // "stdout", "otlp" or "none"
	OTELExporterEndpoint string // default: "localhost:4317"

	RunSeed bool
}

func Load() (*Config, error) {
	// Load .env file if present (non-fatal if missing)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                 getEnv("PORT", "3001"),
		AdminToken:           os.Getenv("ADMIN_TOKEN"),
		PostgresDSN:          os.Getenv("POSTGRES_DSN"),
		RedisAddr:            os.Getenv("REDIS_ADDR"),
		JWTSecret:            os.Getenv("SUPABASE_JWT_SECRET"),
		JWKSURL:              os.Getenv("SUPABASE_JWKS_URL"),
		AnthropicAPIKey:      os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicModel:       getEnv("ANTHROPIC_MODEL", "claude-sonnet-4-5-20250929"),
		GeminiAPIKey:         os.Getenv("GEMINI_API_KEY"),
		GeminiModel:          getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		AIProvider:           os.Getenv("AI_PROVIDER"),
		OllamaURL:            getEnv("OLLAMA_URL", "http://localhost:11434"),
		OllamaModel:          getEnv("OLLAMA_MODEL", "gemma3:4b"),
		OpenAIAPIKey:         os.Getenv("OPENAI_API_KEY"),
		ElevenLabsAPIKey:     os.Getenv("ELEVENLABS_API_KEY"),
		TierConfigPath:       os.Getenv("TIER_CONFIG_PATH"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		LogFormat:            getEnv("LOG_FORMAT", "json"),
		OTELExporterType:     getEnv("OTEL_EXPORTER_TYPE", "stdout"),
		OTELExporterEndpoint: getEnv("OTEL_EXPORTER_ENDPOINT", "localhost:4317"),
	}

	var err error
	if cfg.MonthlyBudget, err = getDecimal("MONTHLY_BUDGET", "500"); err != nil {
		return nil, err
	}
	if cfg.CostPerAIToken, err = getDecimal("COST_PER_AI_TOKEN", "0.000003"); err != nil {
		return nil, err
	}
	if cfg.CostPerTTSChar, err = getDecimal("COST_PER_TTS_CHAR", "0.000018"); err != nil {
		return nil, err
	}
	if cfg.CostPerSTTMinute, err = getDecimal("COST_PER_STT_MINUTE", "0.006"); err != nil {
		return nil, err
	}

	seed, err := strconv.ParseBool(getEnv("RUN_SEED", "false"))
	if err != nil {
		return nil, fmt.Errorf("invalid RUN_SEED: %w", err)
	}
	cfg.RunSeed = seed

	// Validation
	if !cfg.MonthlyBudget.IsPositive() {
		return nil, fmt.Errorf("MONTHLY_BUDGET must be greater than zero")
	}
	if cfg.CostPerAIToken.IsNegative() || cfg.CostPerTTSChar.IsNegative() || cfg.CostPerSTTMinute.IsNegative() {
		return nil, fmt.Errorf("cost rates must not be negative")
	}
	if cfg.AIProvider != "" && cfg.AIProvider != "ollama" {
		return nil, fmt.Errorf("unsupported AI_PROVIDER %q", cfg.AIProvider)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getDecimal(key, fallback string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(getEnv(key, fallback))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
