package utils

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// LoadEnv loads environment variables from a .env file if one exists.
func LoadEnv() error {
	// Missing .env is fine (e.g. in production)
	_ = godotenv.Load()
	return nil
}

// GetEnv returns the value of an environment variable or a default value.
func GetEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// GetEnvInt returns an environment variable parsed as an integer, or the
// default when unset or unparsable.
func GetEnvInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(GetEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

// GetEnvDuration returns an environment variable parsed as a time.Duration
// (e.g. "45s"), or the default when unset or unparsable.
func GetEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, err := time.ParseDuration(GetEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}
