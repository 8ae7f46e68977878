package config

import (
	"errors"
	"os"
	"strconv"
	"time"
)

// app config, loaded from environment variables
type Config struct {
	Port      string
	RedisAddr string
	Provider  string
	JWTSecret string

	// Evaluation sweeper settings
	SweepSchedule    string
	SweepStuckAfter  time.Duration
	SweepMaxAttempts int
}

// loads configuration from environment variables
func LoadConfig() (*Config, error) {
	stuckAfter, err := time.ParseDuration(getEnvOrDefault("EVAL_STUCK_AFTER", "5m"))
	if err != nil {
		return nil, errors.New("invalid EVAL_STUCK_AFTER duration: " + err.Error())
	}

	config := &Config{
		Port:             getEnvOrDefault("PORT", "8080"),
		RedisAddr:        getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		Provider:         getEnvOrDefault("AI_PROVIDER", "gemini"),
		JWTSecret:        getEnvOrDefault("JWT_SECRET", ""),
		SweepSchedule:    getEnvOrDefault("EVAL_SWEEP_SCHEDULE", "@every 2m"),
		SweepStuckAfter:  stuckAfter,
		SweepMaxAttempts: getEnvIntOrDefault("EVAL_MAX_ATTEMPTS", 5),
	}
	if err := validateConfig(config); err != nil {
		return nil, err
	}
	return config, nil
}

func validateConfig(config *Config) error {
	if config.Provider != "gemini" {
		return errors.New("unsupported AI provider: " + config.Provider + ". Currently supported: gemini")
	}
	if config.JWTSecret == "" {
		return errors.New("JWT_SECRET environment variable is required")
	}
	if config.SweepMaxAttempts < 1 {
		return errors.New("EVAL_MAX_ATTEMPTS must be at least 1")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}
