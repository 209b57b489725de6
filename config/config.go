// Package config loads service configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Cache backend names accepted in OCR_CACHE_BACKEND.
const (
	CacheBackendMemory   = "memory"
	CacheBackendRedis    = "redis"
	CacheBackendPostgres = "postgres"
)

// Config holds the service configuration.
type Config struct {
	// Credentials and executable locations, injected at construction and
	// never hardcoded.
	GoogleKey           string
	TranskribusUsername string
	TranskribusPassword string
	TesseractBinary     string
	KrakenBinary        string

	// Image acquisition.
	ImageHosts []string

	// Orchestration.
	DefaultEngine string
	CacheTTL      time.Duration
	RunTimeout    time.Duration

	// Cache backend selection.
	CacheBackend string
	RedisURL     string
	DatabaseURL  string
}

// Load reads the configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		GoogleKey:           os.Getenv("OCR_GOOGLE_KEY"),
		TranskribusUsername: os.Getenv("OCR_TRANSKRIBUS_USERNAME"),
		TranskribusPassword: os.Getenv("OCR_TRANSKRIBUS_PASSWORD"),
		TesseractBinary:     getEnvOrDefault("OCR_TESSERACT_BINARY", "/usr/bin/tesseract"),
		KrakenBinary:        getEnvOrDefault("OCR_KRAKEN_BINARY", "bin/kraken_ocr"),
		ImageHosts:          splitList(getEnvOrDefault("OCR_IMAGE_HOSTS", "upload.wikimedia.org")),
		DefaultEngine:       getEnvOrDefault("OCR_DEFAULT_ENGINE", "google"),
		CacheTTL:            getEnvAsDurationOrDefault("OCR_CACHE_TTL", time.Hour),
		RunTimeout:          getEnvAsDurationOrDefault("OCR_RUN_TIMEOUT", 2*time.Minute),
		CacheBackend:        getEnvOrDefault("OCR_CACHE_BACKEND", CacheBackendMemory),
		RedisURL:            getEnvOrDefault("OCR_REDIS_URL", "redis://localhost:6379"),
		DatabaseURL:         os.Getenv("OCR_DATABASE_URL"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	switch c.CacheBackend {
	case CacheBackendMemory, CacheBackendRedis:
	case CacheBackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("OCR_DATABASE_URL is required with the %s cache backend", CacheBackendPostgres)
		}
	default:
		return fmt.Errorf("unknown cache backend %q", c.CacheBackend)
	}

	if len(c.ImageHosts) == 0 {
		return fmt.Errorf("OCR_IMAGE_HOSTS must list at least one host")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if parsed, err := time.ParseDuration(value); err == nil {
		return parsed
	}
	return defaultValue
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	list := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			list = append(list, trimmed)
		}
	}
	return list
}
