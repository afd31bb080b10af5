// Package config loads process configuration from the environment. A .env
// file in the working directory is read first when present.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/hupe1980/agentstage/engine"
	"github.com/hupe1980/agentstage/logging"
)

// ErrNoProvider is returned by Validate when no model backend has a key.
var ErrNoProvider = errors.New("at least one of ANTHROPIC_API_KEY, OPENAI_API_KEY, OPENROUTER_API_KEY or GOOGLE_API_KEY is required")

// Config holds the server configuration loaded from environment variables.
type Config struct {
	// Server
	Addr      string
	LogLevel  string // debug, info, warn, error
	LogFormat string // json or text

	// API keys
	AnthropicKey  string
	OpenAIKey     string
	OpenAIBaseURL string
	OpenRouterKey string
	GoogleKey     string
	TavilyKey     string

	// Scheduling
	Pacing            time.Duration
	HistoryWindow     int
	MaxToolIterations int
	ThinkDelay        time.Duration
	MaxTokens         int
}

// Load reads the configuration and validates it.
func Load() (*Config, error) {
	_ = godotenv.Load() // .env is optional

	cfg := FromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv reads the configuration without validating it.
func FromEnv() *Config {
	defaults := engine.DefaultConfig
	return &Config{
		Addr:              addr(),
		LogLevel:          getEnvOrDefault("AGENTSTAGE_LOG_LEVEL", "info"),
		LogFormat:         getEnvOrDefault("AGENTSTAGE_LOG_FORMAT", "json"),
		AnthropicKey:      os.Getenv("ANTHROPIC_API_KEY"),
		OpenAIKey:         os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:     os.Getenv("OPENAI_BASE_URL"),
		OpenRouterKey:     os.Getenv("OPENROUTER_API_KEY"),
		GoogleKey:         os.Getenv("GOOGLE_API_KEY"),
		TavilyKey:         os.Getenv("TAVILY_API_KEY"),
		Pacing:            getEnvDurationOrDefault("AGENTSTAGE_PACING", defaults.PacingInterval),
		HistoryWindow:     getEnvIntOrDefault("AGENTSTAGE_HISTORY_WINDOW", defaults.HistoryWindow),
		MaxToolIterations: getEnvIntOrDefault("AGENTSTAGE_MAX_TOOL_ITERATIONS", defaults.MaxToolIterations),
		ThinkDelay:        getEnvDurationOrDefault("AGENTSTAGE_THINK_DELAY", defaults.ThinkDelay),
		MaxTokens:         getEnvIntOrDefault("AGENTSTAGE_MAX_TOKENS", defaults.MaxTokens),
	}
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.AnthropicKey == "" && c.OpenAIKey == "" && c.OpenRouterKey == "" && c.GoogleKey == "" {
		return ErrNoProvider
	}
	if c.HistoryWindow <= 0 {
		return fmt.Errorf("AGENTSTAGE_HISTORY_WINDOW must be positive, got %d", c.HistoryWindow)
	}
	if c.MaxToolIterations <= 0 {
		return fmt.Errorf("AGENTSTAGE_MAX_TOOL_ITERATIONS must be positive, got %d", c.MaxToolIterations)
	}
	if c.Pacing < 0 || c.ThinkDelay < 0 {
		return errors.New("AGENTSTAGE_PACING and AGENTSTAGE_THINK_DELAY must not be negative")
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("unknown log format: %s (must be json or text)", c.LogFormat)
	}
	return nil
}

// Engine returns the scheduling parameters for engine.New.
func (c *Config) Engine() engine.Config {
	cfg := engine.DefaultConfig
	cfg.PacingInterval = c.Pacing
	cfg.HistoryWindow = c.HistoryWindow
	cfg.MaxToolIterations = c.MaxToolIterations
	cfg.ThinkDelay = c.ThinkDelay
	cfg.MaxTokens = c.MaxTokens
	return cfg
}

// Logger returns the logger configuration.
func (c *Config) Logger() *logging.LoggerConfig {
	cfg := logging.DefaultLoggerConfig()
	cfg.Level = logging.ParseLevel(c.LogLevel)
	cfg.Format = c.LogFormat
	return cfg
}

// ChatEndpoint returns the key and base URL of the OpenAI compatible
// backend. An OpenAI key wins; otherwise an OpenRouter key selects the
// OpenRouter endpoint.
func (c *Config) ChatEndpoint(openRouterURL string) (key, baseURL string) {
	switch {
	case c.OpenAIKey != "":
		return c.OpenAIKey, c.OpenAIBaseURL
	case c.OpenRouterKey != "":
		if c.OpenAIBaseURL != "" {
			return c.OpenRouterKey, c.OpenAIBaseURL
		}
		return c.OpenRouterKey, openRouterURL
	default:
		return "", ""
	}
}

// addr honors AGENTSTAGE_ADDR, then a bare PORT, then :3001.
func addr() string {
	if v := os.Getenv("AGENTSTAGE_ADDR"); v != "" {
		return v
	}
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		return ":" + strings.TrimPrefix(port, ":")
	}
	return ":3001"
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

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
