package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the task assistant service.
type Config struct {
	BindAddr                 string
	ShutdownTimeout          time.Duration
	SessionInactivityTimeout time.Duration
	MetricsNamespace         string

	AllowAnyOrigin bool

	BrainAdapterMode string
	BrainHTTPURL     string
	BrainAPIToken    string

	DatabaseURL string

	SearchResultLimit       int
	DuplicateScoreThreshold int
	MaxToolRounds           int
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:                 envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:         envOrDefault("APP_METRICS_NAMESPACE", "donna"),
		AllowAnyOrigin:           false,
		BrainAdapterMode:         envOrDefault("BRAIN_ADAPTER_MODE", "auto"),
		BrainHTTPURL:             stringsTrimSpace("BRAIN_HTTP_URL"),
		BrainAPIToken:            stringsTrimSpace("BRAIN_API_TOKEN"),
		DatabaseURL:              stringsTrimSpace("DATABASE_URL"),
		SearchResultLimit:        10,
		DuplicateScoreThreshold:  80,
		MaxToolRounds:            4,
		ShutdownTimeout:          15 * time.Second,
		SessionInactivityTimeout: 30 * time.Minute,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("APP_SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.SearchResultLimit, err = intFromEnv("SEARCH_RESULT_LIMIT", cfg.SearchResultLimit)
	if err != nil {
		return Config{}, err
	}
	cfg.DuplicateScoreThreshold, err = intFromEnv("DUPLICATE_SCORE_THRESHOLD", cfg.DuplicateScoreThreshold)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxToolRounds, err = intFromEnv("BRAIN_MAX_TOOL_ROUNDS", cfg.MaxToolRounds)
	if err != nil {
		return Config{}, err
	}

	if cfg.SessionInactivityTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if cfg.SearchResultLimit <= 0 {
		return Config{}, fmt.Errorf("SEARCH_RESULT_LIMIT must be positive")
	}
	if cfg.DuplicateScoreThreshold <= 0 {
		return Config{}, fmt.Errorf("DUPLICATE_SCORE_THRESHOLD must be positive")
	}
	if cfg.MaxToolRounds <= 0 {
		return Config{}, fmt.Errorf("BRAIN_MAX_TOOL_ROUNDS must be positive")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.BrainAdapterMode)) {
	case "auto", "http", "mock":
	default:
		return Config{}, fmt.Errorf("BRAIN_ADAPTER_MODE must be auto, http, or mock")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
