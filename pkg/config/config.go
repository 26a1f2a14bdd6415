// Package config loads server configuration from environment variables and
// optional YAML run templates.
package config

import (
	"os"
	"strconv"
)

// Config holds server configuration.
type Config struct {
	Port         string
	LogLevel     string
	DatabaseURL  string
	AuthSecret   string
	RedisAddr    string
	OTLPEndpoint string
	TemplatesDir string
	RateRPS      int
	RateBurst    int
}

// Load loads configuration from environment variables.
func Load() *Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		// Default to an on-disk sqlite database for local development.
		dbURL = "sqlite://poolrun.db"
	}

	return &Config{
		Port:         port,
		LogLevel:     logLevel,
		DatabaseURL:  dbURL,
		AuthSecret:   os.Getenv("AUTH_SECRET"),
		RedisAddr:    os.Getenv("REDIS_ADDR"),
		OTLPEndpoint: os.Getenv("OTLP_ENDPOINT"),
		TemplatesDir: os.Getenv("RUN_TEMPLATES_DIR"),
		RateRPS:      intEnv("RATE_LIMIT_RPS", 20),
		RateBurst:    intEnv("RATE_LIMIT_BURST", 40),
	}
}

func intEnv(key string, fallback int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
