package app

import (
	"errors"
	"os"
	"strconv"
	"time"
)

type Config struct {
	ProviderURL     string // Required: base URL of the identity provider
	ProviderAnonKey string // Required: provider API key sent with every request

	DatabaseFile        string        // Optional: path to SQLite database file (default: ./authgate.db)
	RedisAddr           string        // Optional: Redis address for the rate governor; empty means in-memory counters
	Env                 string        // Environment (dev, staging, prod) (default: dev)
	LogLevel            string        // Log level (debug, info, warn, error) (default: info)
	LogFormat           string        // Log format (json, text) (default: json)
	Port                int           // HTTP server port (default: 8080)
	ShutdownGracePeriod time.Duration // Graceful shutdown timeout (default: 10s)
}

var ErrMissingProvider = errors.New("PROVIDER_URL and PROVIDER_ANON_KEY must be set")

func LoadConfig() (Config, error) {
	cfg := Config{
		ProviderURL:         os.Getenv("PROVIDER_URL"),
		ProviderAnonKey:     os.Getenv("PROVIDER_ANON_KEY"),
		DatabaseFile:        getEnvOrDefault("DATABASE_FILE", "authgate.db"),
		RedisAddr:           os.Getenv("REDIS_ADDR"),
		Env:                 getEnvOrDefault("ENV", "dev"),
		LogLevel:            getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:           getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod: getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
	}

	if cfg.ProviderURL == "" || cfg.ProviderAnonKey == "" {
		return Config{}, ErrMissingProvider
	}

	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Plain integers are read as seconds.
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}
