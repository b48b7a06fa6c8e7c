package llm

import (
	"fmt"
	"os"
)

// Config holds all LLM provider configuration.
type Config struct {
	// Provider selects which LLM provider to use.
	// Values: "openai", "anthropic", "gemini", "openrouter", "mock"
	Provider string `yaml:"provider"`

	Anthropic  AnthropicConfig  `yaml:"anthropic"`
	OpenAI     OpenAIConfig     `yaml:"openai"`
	Gemini     GeminiConfig     `yaml:"gemini"`
	OpenRouter OpenRouterConfig `yaml:"openrouter"`
}

// AnthropicConfig holds Anthropic-specific configuration.
type AnthropicConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`    // Default: "claude-haiku"
	BaseURL string `yaml:"base_url"` // Optional. Override for proxies.
}

// OpenAIConfig holds OpenAI-specific configuration.
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`    // Default: "gpt-4o-mini"
	BaseURL string `yaml:"base_url"` // Optional. Override for compatible APIs.

	// Headers are added to every request. Some OpenAI-compatible gateways
	// require a client name or browser-like user agent.
	Headers map[string]string `yaml:"headers"`
}

// GeminiConfig holds Gemini-specific configuration.
type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"` // Default: "gemini-flash"
}

// OpenRouterConfig holds OpenRouter-specific configuration.
type OpenRouterConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`    // Default: "google/gemini-2.0-flash-exp"
	BaseURL string `yaml:"base_url"` // Default: "https://openrouter.ai/api/v1"

	// Title and Referer identify the app on OpenRouter's dashboards.
	Title   string `yaml:"title"`
	Referer string `yaml:"referer"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Provider: "openai",
		Anthropic: AnthropicConfig{
			Model: "claude-haiku",
		},
		OpenAI: OpenAIConfig{
			Model: "gpt-4o-mini",
			Headers: map[string]string{
				"User-Agent":    "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
				"X-Client-Name": "question-libraries",
			},
		},
		Gemini: GeminiConfig{
			Model: "gemini-flash",
		},
		OpenRouter: OpenRouterConfig{
			Model: "google/gemini-2.0-flash-exp",
			Title: "answerbot",
		},
	}
}

// ApplyEnv overlays environment variables onto cfg. ANSWERBOT_* variables
// win over the bare OPENAI_* / ANTHROPIC_* names accepted for compatibility
// with existing .env files.
func (c *Config) ApplyEnv() {
	setFromEnv(&c.Provider, "ANSWERBOT_LLM_PROVIDER")

	setFromEnv(&c.OpenAI.APIKey, "OPENAI_API_KEY", "ANSWERBOT_OPENAI_API_KEY")
	setFromEnv(&c.OpenAI.Model, "OPENAI_MODEL", "ANSWERBOT_OPENAI_MODEL")
	setFromEnv(&c.OpenAI.BaseURL, "OPENAI_BASE_URL", "ANSWERBOT_OPENAI_BASE_URL")

	setFromEnv(&c.Anthropic.APIKey, "ANTHROPIC_API_KEY", "ANSWERBOT_ANTHROPIC_API_KEY")
	setFromEnv(&c.Anthropic.Model, "ANSWERBOT_ANTHROPIC_MODEL")
	setFromEnv(&c.Anthropic.BaseURL, "ANSWERBOT_ANTHROPIC_BASE_URL")

	setFromEnv(&c.Gemini.APIKey, "GEMINI_API_KEY", "ANSWERBOT_GEMINI_API_KEY")
	setFromEnv(&c.Gemini.Model, "ANSWERBOT_GEMINI_MODEL")

	setFromEnv(&c.OpenRouter.APIKey, "OPENROUTER_API_KEY", "ANSWERBOT_OPENROUTER_API_KEY")
	setFromEnv(&c.OpenRouter.Model, "ANSWERBOT_OPENROUTER_MODEL")
}

// setFromEnv assigns the last non-empty variable among names to dst.
func setFromEnv(dst *string, names ...string) {
	for _, n := range names {
		if v := os.Getenv(n); v != "" {
			*dst = v
		}
	}
}

// ModelID returns the configured model name of the selected provider.
func (c Config) ModelID() string {
	switch c.Provider {
	case "anthropic":
		return c.Anthropic.Model
	case "gemini":
		return c.Gemini.Model
	case "openrouter":
		return c.OpenRouter.Model
	case "mock":
		return "mock"
	default:
		return c.OpenAI.Model
	}
}

// BaseURL returns the endpoint override of the selected provider, or "".
func (c Config) BaseURL() string {
	switch c.Provider {
	case "openai":
		return c.OpenAI.BaseURL
	case "anthropic":
		return c.Anthropic.BaseURL
	case "openrouter":
		if c.OpenRouter.BaseURL == "" {
			return defaultOpenRouterBaseURL
		}
		return c.OpenRouter.BaseURL
	}
	return ""
}

// HasAPIKey reports whether the selected provider has a key configured.
func (c Config) HasAPIKey() bool {
	return c.Validate() == nil
}

// Validate checks that the selected provider has its required API key set.
func (c Config) Validate() error {
	switch c.Provider {
	case "anthropic":
		if c.Anthropic.APIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required for the anthropic provider")
		}
	case "openai":
		if c.OpenAI.APIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for the openai provider")
		}
	case "gemini":
		if c.Gemini.APIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required for the gemini provider")
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
	return nil
}
