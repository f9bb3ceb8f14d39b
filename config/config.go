// Package config defines the Warden application configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "30s" parse.
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Config is the top-level Warden configuration.
type Config struct {
	Server   ServerConfig   `json:"server" yaml:"server"`
	Auth     AuthConfig     `json:"auth" yaml:"auth"`
	Provider ProviderConfig `json:"provider" yaml:"provider"`
	Teams    []TeamConfig   `json:"teams" yaml:"teams"`
	Credit   CreditConfig   `json:"credit" yaml:"credit"`
	Breaker  BreakerConfig  `json:"breaker" yaml:"breaker"`
	Retry    RetryConfig    `json:"retry" yaml:"retry"`
	Loop     LoopConfig     `json:"loop" yaml:"loop"`
	DataDir  string         `json:"data_dir" yaml:"data_dir"`
	LogLevel string         `json:"log_level" yaml:"log_level"`
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr"` // listen address, e.g., ":9090"
}

// AuthConfig controls API authentication.
type AuthConfig struct {
	JWTSecret     string `json:"jwt_secret" yaml:"jwt_secret"`
	AdminUser     string `json:"admin_user" yaml:"admin_user"`
	AdminPassHash string `json:"admin_pass_hash" yaml:"admin_pass_hash"` // bcrypt hash
}

// ProviderConfig selects and configures the model backend.
type ProviderConfig struct {
	Name      string `json:"name" yaml:"name"` // "anthropic" or "mock"
	APIKey    string `json:"api_key,omitempty" yaml:"api_key"`
	Model     string `json:"model,omitempty" yaml:"model"`
	BaseURL   string `json:"base_url,omitempty" yaml:"base_url"`
	MaxTokens int    `json:"max_tokens,omitempty" yaml:"max_tokens"`
}

// TeamConfig defines a single team's configuration.
type TeamConfig struct {
	ID           string `json:"id" yaml:"id"`
	Name         string `json:"name" yaml:"name"`
	Emoji        string `json:"emoji,omitempty" yaml:"emoji"`
	SystemPrompt string `json:"system_prompt,omitempty" yaml:"system_prompt"`
	Automation   string `json:"automation,omitempty" yaml:"automation"` // stopped, manual, supervised, autonomous
}

// CreditConfig bounds model spending.
type CreditConfig struct {
	DailyLimitUSD     float64 `json:"daily_limit_usd" yaml:"daily_limit_usd"`
	MonthlyLimitUSD   float64 `json:"monthly_limit_usd" yaml:"monthly_limit_usd"`
	HardStopThreshold float64 `json:"hard_stop_threshold" yaml:"hard_stop_threshold"` // fraction, default 1.0
	EstimatedCallUSD  float64 `json:"estimated_call_usd" yaml:"estimated_call_usd"`
}

// BreakerConfig tunes the model API circuit breaker.
type BreakerConfig struct {
	FailureThreshold int      `json:"failure_threshold" yaml:"failure_threshold"`
	SuccessThreshold int      `json:"success_threshold" yaml:"success_threshold"`
	ResetTimeout     Duration `json:"reset_timeout" yaml:"reset_timeout"`
	RequestTimeout   Duration `json:"request_timeout" yaml:"request_timeout"`
}

// RetryConfig tunes the resilient caller.
type RetryConfig struct {
	MaxRetries  int      `json:"max_retries" yaml:"max_retries"`
	BackoffBase Duration `json:"backoff_base" yaml:"backoff_base"`
}

// LoopConfig tunes agent loop invocations.
type LoopConfig struct {
	MaxIterations  int      `json:"max_iterations" yaml:"max_iterations"`
	ExecuteCeiling Duration `json:"execute_ceiling" yaml:"execute_ceiling"` // wall clock for blocking execute
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: ":9090",
		},
		Auth: AuthConfig{
			AdminUser: "admin",
		},
		Provider: ProviderConfig{
			Name: "mock",
		},
		Credit: CreditConfig{
			DailyLimitUSD:     25,
			MonthlyLimitUSD:   300,
			HardStopThreshold: 1.0,
		},
		Loop: LoopConfig{
			MaxIterations:  6,
			ExecuteCeiling: Duration(5 * time.Minute),
		},
		DataDir:  "./data",
		LogLevel: "info",
		Teams: []TeamConfig{
			{
				ID:           "operations",
				Name:         "Operations",
				SystemPrompt: "You run day-to-day operations: keep tasks moving, surface blockers, and escalate anything needing owner judgment.",
				Automation:   "manual",
			},
		},
	}
}

// Load reads a YAML config file over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects configurations the daemon cannot run with.
func (c *Config) Validate() error {
	if len(c.Teams) == 0 {
		return fmt.Errorf("at least one team is required")
	}
	seen := make(map[string]bool, len(c.Teams))
	for _, t := range c.Teams {
		if t.ID == "" {
			return fmt.Errorf("team id is required")
		}
		if seen[t.ID] {
			return fmt.Errorf("duplicate team id %q", t.ID)
		}
		seen[t.ID] = true
	}
	if c.Provider.Name == "anthropic" && c.Provider.APIKey == "" {
		return fmt.Errorf("provider anthropic requires an api_key")
	}
	return nil
}
