package llm

import (
	"fmt"
	"os"
	"time"
)

// Config holds all LLM provider configuration.
type Config struct {
	// Provider selects which LLM provider to use.
	// Values: "gemini", "anthropic", "openai", "openrouter", "mock"
	Provider string `yaml:"provider"`

	Gemini     GeminiConfig     `yaml:"gemini"`
	Anthropic  AnthropicConfig  `yaml:"anthropic"`
	OpenAI     OpenAIConfig     `yaml:"openai"`
	OpenRouter OpenRouterConfig `yaml:"openrouter"`
	Retry      RetryConfig      `yaml:"retry"`

	// Timeout bounds a single request including retries. Zero keeps the
	// transport default.
	Timeout time.Duration `yaml:"timeout"`

	// MaxTokens and Temperature apply to feedback scoring requests.
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

// GeminiConfig holds Gemini-specific configuration.
type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// AnthropicConfig holds Anthropic-specific configuration.
type AnthropicConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// OpenAIConfig holds OpenAI-specific configuration.
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"` // Optional, for compatible APIs.
}

// OpenRouterConfig holds OpenRouter-specific configuration.
type OpenRouterConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"` // Default: "https://openrouter.ai/api/v1"
}

// RetryConfig configures retry behavior for transient failures.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	InitialWait time.Duration `yaml:"initial_wait"`
	MaxWait     time.Duration `yaml:"max_wait"`
	Multiplier  float64       `yaml:"multiplier"`
}

// DefaultConfig returns the Gemini setup the mobile backend has always used.
func DefaultConfig() Config {
	return Config{
		Provider: "gemini",
		Gemini: GeminiConfig{
			Model: "gemini-flash",
		},
		Anthropic: AnthropicConfig{
			Model: "claude-haiku",
		},
		OpenAI: OpenAIConfig{
			Model: "gpt-4o-mini",
		},
		OpenRouter: OpenRouterConfig{
			Model: "google/gemini-2.5-flash",
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			InitialWait: 1 * time.Second,
			MaxWait:     10 * time.Second,
			Multiplier:  2.0,
		},
	}
}

// ApplyEnv overlays environment variables onto cfg. Both the SPEECHCOACH_*
// names and the bare provider key names (GEMINI_API_KEY, ...) are honored;
// the prefixed name wins.
func (c *Config) ApplyEnv() {
	if p := os.Getenv("SPEECHCOACH_LLM_PROVIDER"); p != "" {
		c.Provider = p
	}

	c.Gemini.APIKey = firstEnv(c.Gemini.APIKey, "SPEECHCOACH_GEMINI_API_KEY", "GEMINI_API_KEY")
	c.Gemini.Model = firstEnv(c.Gemini.Model, "SPEECHCOACH_GEMINI_MODEL")

	c.Anthropic.APIKey = firstEnv(c.Anthropic.APIKey, "SPEECHCOACH_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY")
	c.Anthropic.Model = firstEnv(c.Anthropic.Model, "SPEECHCOACH_ANTHROPIC_MODEL")

	c.OpenAI.APIKey = firstEnv(c.OpenAI.APIKey, "SPEECHCOACH_OPENAI_API_KEY", "OPENAI_API_KEY")
	c.OpenAI.Model = firstEnv(c.OpenAI.Model, "SPEECHCOACH_OPENAI_MODEL")
	c.OpenAI.BaseURL = firstEnv(c.OpenAI.BaseURL, "SPEECHCOACH_OPENAI_BASE_URL")

	c.OpenRouter.APIKey = firstEnv(c.OpenRouter.APIKey, "SPEECHCOACH_OPENROUTER_API_KEY", "OPENROUTER_API_KEY")
	c.OpenRouter.Model = firstEnv(c.OpenRouter.Model, "SPEECHCOACH_OPENROUTER_MODEL")
}

// firstEnv returns the value of the first set variable in names, or def.
func firstEnv(def string, names ...string) string {
	for _, n := range names {
		if v := os.Getenv(n); v != "" {
			return v
		}
	}
	return def
}

// Validate checks that the selected provider has its required API key set.
func (c Config) Validate() error {
	switch c.Provider {
	case "gemini":
		if c.Gemini.APIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required for the gemini provider")
		}
	case "anthropic":
		if c.Anthropic.APIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required for the anthropic provider")
		}
	case "openai":
		if c.OpenAI.APIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for the openai provider")
		}
	case "openrouter":
		if c.OpenRouter.APIKey == "" {
			return fmt.Errorf("OPENROUTER_API_KEY is required for the openrouter provider")
		}
	case "mock":
		// No API key needed.
	default:
		return fmt.Errorf("unknown LLM provider: %q", c.Provider)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	return nil
}
