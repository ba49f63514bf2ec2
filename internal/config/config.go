// Package config loads prodscout configuration from a YAML file with
// environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all prodscout configuration. It is read once at startup and
// treated as read-only afterward.
type Config struct {
	// LLM endpoint configuration
	LLM LLMConfig `yaml:"llm"`

	// Generation parameters sent with every completion
	Generation GenerationConfig `yaml:"generation"`

	// Web search settings
	Search SearchConfig `yaml:"search"`

	// Page fetching settings
	Scrape ScrapeConfig `yaml:"scrape"`

	// Conversation feature switches
	Chat ChatConfig `yaml:"chat"`

	// HTTP API settings
	HTTP HTTPConfig `yaml:"http"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the completion endpoint.
type LLMConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
	Timeout string `yaml:"timeout"`
}

// GenerationConfig holds the fixed generation parameters.
type GenerationConfig struct {
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// SearchConfig configures the search-engine scraper.
type SearchConfig struct {
	BaseURL string `yaml:"base_url"`
	Timeout string `yaml:"timeout"`
}

// ScrapeConfig configures page fetching and extraction.
type ScrapeConfig struct {
	Timeout string `yaml:"timeout"`
	// TextLimit caps extracted text per page, in runes. Zero disables it.
	TextLimit int `yaml:"text_limit"`
}

// ChatConfig holds the conversation feature switches.
type ChatConfig struct {
	EnableSystemPrompt   bool `yaml:"enable_system_prompt"`
	EnableProductContext bool `yaml:"enable_product_context"`
}

// HTTPConfig configures the HTTP API server.
type HTTPConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			BaseURL: "https://api.openai.com/v1",
			Model:   "chatgpt-4o-latest",
			Timeout: "120s",
		},
		Generation: GenerationConfig{
			Temperature: 0.3,
			MaxTokens:   500,
		},
		Search: SearchConfig{
			BaseURL: "https://html.duckduckgo.com/html/",
			Timeout: "15s",
		},
		Scrape: ScrapeConfig{
			Timeout:   "15s",
			TextLimit: 20000,
		},
		Chat: ChatConfig{
			EnableSystemPrompt:   true,
			EnableProductContext: true,
		},
		HTTP: HTTPConfig{
			ListenAddr: ":8080",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields defaults.
// Environment variables override file values either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}
	if url := os.Getenv("PRODSCOUT_LLM_BASE_URL"); url != "" {
		c.LLM.BaseURL = url
	}
	if model := os.Getenv("PRODSCOUT_LLM_MODEL"); model != "" {
		c.LLM.Model = model
	}
	if url := os.Getenv("PRODSCOUT_SEARCH_URL"); url != "" {
		c.Search.BaseURL = url
	}
	if addr := os.Getenv("PRODSCOUT_LISTEN_ADDR"); addr != "" {
		c.HTTP.ListenAddr = addr
	}
	if v, ok := boolEnv("PRODSCOUT_ENABLE_SYSTEM_PROMPT"); ok {
		c.Chat.EnableSystemPrompt = v
	}
	if v, ok := boolEnv("PRODSCOUT_ENABLE_PRODUCT_CONTEXT"); ok {
		c.Chat.EnableProductContext = v
	}
}

func boolEnv(name string) (bool, bool) {
	raw := os.Getenv(name)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}

// ParseDuration parses a duration field, falling back to def on empty or
// malformed values.
func ParseDuration(raw string, def time.Duration) time.Duration {
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}
