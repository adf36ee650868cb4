package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr             string
	LogLevel         string
	RedisURL         string
	DatabaseURL      string
	OTLPEndpoint     string
	AWSRegion        string
	EncryptionKey    string
	SNSTopicArn      string
	SQSLogQueueURL   string
	AdminAuthEnabled bool

	// Ceiling for a single provider call when the caller sets no deadline.
	ProviderTimeout time.Duration

	ShutdownTimeout time.Duration
}

func Load() (*Config, error) {
	// Local development convenience; absent .env files are not an error.
	_ = godotenv.Load()

	cfg := &Config{
		Addr:             getEnv("ADDR", ":8080"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		RedisURL:         getEnv("REDIS_URL", ""),
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		OTLPEndpoint:     getEnv("OTLP_ENDPOINT", ""),
		AWSRegion:        getEnv("AWS_REGION", ""),
		EncryptionKey:    getEnv("ENCRYPTION_KEY", ""),
		SNSTopicArn:      getEnv("SNS_TOPIC_ARN", ""),
		SQSLogQueueURL:   getEnv("SQS_LOG_QUEUE_URL", ""),
		AdminAuthEnabled: getEnv("ADMIN_AUTH_ENABLED", "false") == "true",
		ProviderTimeout:  getDurationEnv("PROVIDER_TIMEOUT", 120*time.Second),
		ShutdownTimeout:  getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}
