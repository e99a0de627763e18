package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	ServerPort string

	// LedgerBaseURL is where the orchestrator reaches the account ledger.
	LedgerBaseURL string
	// LedgerTimeout bounds each remote ledger call.
	LedgerTimeout time.Duration
	// SagaDeadline is the orchestrator's own budget to finish or compensate
	// an in-flight transfer once mutations have started. It must outlive any
	// caller-side cancellation.
	SagaDeadline time.Duration

	// RedisAddr enables the idempotency middleware when set.
	RedisAddr string
	// WebhookURL receives completed-transfer notifications when set.
	WebhookURL string
}

// Load reads configuration from the environment, with .env support for local
// development.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, relying on environment variables")
	}

	return &Config{
		DBHost:        getEnv("DB_HOST", "localhost"),
		DBPort:        getEnv("DB_PORT", "5432"),
		DBUser:        getEnv("DB_USER", "postgres"),
		DBPassword:    getEnv("DB_PASSWORD", "password"),
		DBName:        getEnv("DB_NAME", "funds_transfer"),
		ServerPort:    getEnv("SERVER_PORT", "8080"),
		LedgerBaseURL: getEnv("LEDGER_BASE_URL", "http://localhost:8081"),
		LedgerTimeout: getDurationEnv("LEDGER_TIMEOUT", 5*time.Second),
		SagaDeadline:  getDurationEnv("SAGA_DEADLINE", 30*time.Second),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		WebhookURL:    getEnv("WEBHOOK_URL", ""),
	}
}

func (c *Config) GetDBConnectionString() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName)
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		slog.Warn("Invalid duration in environment, using default", "key", key, "value", value)
		return fallback
	}
	return d
}
