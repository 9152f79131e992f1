package provider

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// DefaultTimeout bounds a single reasoning-engine call.
const DefaultTimeout = 30 * time.Second

// Config holds configuration for creating a reasoning-engine client.
type Config struct {
	// Provider is the name of the provider to use.
	// Required. Values: "groq", "openai"
	Provider string `json:"provider" yaml:"provider" toml:"provider"`

	// BaseURL is the API root, e.g. "https://api.groq.com/openai/v1".
	// Empty uses the provider default.
	BaseURL string `json:"base_url" yaml:"base_url" toml:"base_url"`

	// Model is the model to use (provider-specific name).
	Model string `json:"model" yaml:"model" toml:"model"`

	// APIKey authenticates requests. Usually filled from APIKeyEnv.
	APIKey string `json:"-" yaml:"-" toml:"-"`

	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `json:"api_key_env" yaml:"api_key_env" toml:"api_key_env"`

	// Timeout is the upper bound for one completion request.
	// 0 uses DefaultTimeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" toml:"timeout"`

	// MaxTokens limits each response. 0 leaves it to the provider.
	MaxTokens int `json:"max_tokens" yaml:"max_tokens" toml:"max_tokens"`

	// Temperature controls response randomness.
	Temperature float64 `json:"temperature" yaml:"temperature" toml:"temperature"`
}

// DefaultConfig returns a Config with sensible defaults.
// These mirror the analysis settings the dashboard has always used.
func DefaultConfig() Config {
	return Config{
		Provider:    "groq",
		Model:       "deepseek-r1-distill-llama-70b",
		APIKeyEnv:   "GROQ_API_KEY",
		Timeout:     DefaultTimeout,
		MaxTokens:   1024,
		Temperature: 0.6,
	}
}

// LoadFromEnv populates config fields from environment variables.
// Environment variables use the ESDIAG_ENGINE_ prefix and take precedence
// over existing values. The API key is read from APIKeyEnv last.
//
// Supported variables:
//   - ESDIAG_ENGINE_PROVIDER: Provider name
//   - ESDIAG_ENGINE_BASE_URL: API root
//   - ESDIAG_ENGINE_MODEL: Model name
//   - ESDIAG_ENGINE_TIMEOUT: Timeout duration (e.g., "30s")
//   - ESDIAG_ENGINE_MAX_TOKENS: Maximum response tokens
func (c *Config) LoadFromEnv() {
	if v := os.Getenv("ESDIAG_ENGINE_PROVIDER"); v != "" {
		c.Provider = v
	}
	if v := os.Getenv("ESDIAG_ENGINE_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("ESDIAG_ENGINE_MODEL"); v != "" {
		c.Model = v
	}
	if v := os.Getenv("ESDIAG_ENGINE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Timeout = d
		}
	}
	if v := os.Getenv("ESDIAG_ENGINE_MAX_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxTokens = n
		}
	}
	if c.APIKeyEnv != "" {
		if v := os.Getenv(c.APIKeyEnv); v != "" {
			c.APIKey = v
		}
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Provider == "" {
		return fmt.Errorf("provider is required")
	}
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must be >= 0, got %v", c.Timeout)
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("max_tokens must be >= 0, got %d", c.MaxTokens)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be within [0, 2], got %v", c.Temperature)
	}
	return nil
}

// EffectiveTimeout returns Timeout, or DefaultTimeout when unset.
func (c Config) EffectiveTimeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return DefaultTimeout
}

// WithProvider returns a copy of the config with the specified provider.
func (c Config) WithProvider(provider string) Config {
	c.Provider = provider
	return c
}

// WithModel returns a copy of the config with the specified model.
func (c Config) WithModel(model string) Config {
	c.Model = model
	return c
}

// WithBaseURL returns a copy of the config with the specified API root.
func (c Config) WithBaseURL(url string) Config {
	c.BaseURL = url
	return c
}
