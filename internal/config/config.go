// Package config provides environment-driven configuration for the service.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the service configuration read from environment variables.
// Search and contact fields are optional; the sources step degrades to
// partial results when a collaborator is unconfigured.
type Config struct {
	Port        int
	DatabaseURL string

	GeminiAPIKey string
	StepTimeout  time.Duration

	GoogleSearchAPIKey string
	GoogleSearchCX     string

	OpenAlexEmail         string
	UnpaywallEmail        string
	SemanticScholarAPIKey string
}

// Load reads the configuration from the environment. DATABASE_URL and
// GEMINI_API_KEY are required; everything else has a default or is optional.
func Load() (*Config, error) {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required but not set")
	}

	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required but not set")
	}

	port, err := envInt("PORT", 8080)
	if err != nil {
		return nil, err
	}

	timeoutSeconds, err := envInt("STEP_TIMEOUT_SECONDS", 120)
	if err != nil {
		return nil, err
	}
	if timeoutSeconds < 1 {
		return nil, fmt.Errorf("STEP_TIMEOUT_SECONDS must be at least 1, got: %d", timeoutSeconds)
	}

	return &Config{
		Port:                  port,
		DatabaseURL:           databaseURL,
		GeminiAPIKey:          apiKey,
		StepTimeout:           time.Duration(timeoutSeconds) * time.Second,
		GoogleSearchAPIKey:    os.Getenv("GOOGLE_SEARCH_API_KEY"),
		GoogleSearchCX:        os.Getenv("GOOGLE_SEARCH_CX"),
		OpenAlexEmail:         os.Getenv("OPENALEX_EMAIL"),
		UnpaywallEmail:        os.Getenv("UNPAYWALL_EMAIL"),
		SemanticScholarAPIKey: os.Getenv("SEMANTIC_SCHOLAR_API_KEY"),
	}, nil
}

// WebSearchConfigured reports whether both Google Custom Search credentials
// are present.
func (c *Config) WebSearchConfigured() bool {
	return c.GoogleSearchAPIKey != "" && c.GoogleSearchCX != ""
}

func envInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %v", key, err)
	}
	return parsed, nil
}
