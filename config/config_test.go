package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Provider.Name != "mock" {
		t.Errorf("Provider.Name = %q, want mock", cfg.Provider.Name)
	}
	if cfg.Credit.DailyLimitUSD != 25 {
		t.Errorf("DailyLimitUSD = %v", cfg.Credit.DailyLimitUSD)
	}
	if cfg.Loop.MaxIterations != 6 {
		t.Errorf("MaxIterations = %d", cfg.Loop.MaxIterations)
	}
	if len(cfg.Teams) == 0 {
		t.Error("default config should seed a team")
	}
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "warden.yaml")
	data := `
server:
  addr: ":8123"
provider:
  name: anthropic
  api_key: sk-test
  model: claude-sonnet-4-5
credit:
  daily_limit_usd: 5
loop:
  max_iterations: 3
  execute_ceiling: 90s
teams:
  - id: research
    name: Research
    automation: supervised
  - id: ops
    name: Operations
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":8123" {
		t.Errorf("Addr = %q", cfg.Server.Addr)
	}
	if cfg.Provider.Name != "anthropic" || cfg.Provider.APIKey != "sk-test" {
		t.Errorf("provider = %+v", cfg.Provider)
	}
	if cfg.Credit.DailyLimitUSD != 5 {
		t.Errorf("DailyLimitUSD = %v, want override 5", cfg.Credit.DailyLimitUSD)
	}
	// Untouched keys keep their defaults.
	if cfg.Credit.MonthlyLimitUSD != 300 {
		t.Errorf("MonthlyLimitUSD = %v, want default 300", cfg.Credit.MonthlyLimitUSD)
	}
	if cfg.Loop.ExecuteCeiling.Std() != 90*time.Second {
		t.Errorf("ExecuteCeiling = %v", cfg.Loop.ExecuteCeiling)
	}
	if len(cfg.Teams) != 2 || cfg.Teams[0].ID != "research" {
		t.Errorf("teams = %+v", cfg.Teams)
	}
}

func TestLoad_RejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "warden.yaml")
	data := "breaker:\n  reset_timeout: soon\nteams:\n  - id: ops\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for unparseable duration")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"valid", func(*Config) {}, true},
		{"no teams", func(c *Config) { c.Teams = nil }, false},
		{"empty team id", func(c *Config) { c.Teams[0].ID = "" }, false},
		{"duplicate team id", func(c *Config) {
			c.Teams = append(c.Teams, TeamConfig{ID: c.Teams[0].ID})
		}, false},
		{"anthropic without key", func(c *Config) {
			c.Provider.Name = "anthropic"
			c.Provider.APIKey = ""
		}, false},
		{"anthropic with key", func(c *Config) {
			c.Provider.Name = "anthropic"
			c.Provider.APIKey = "sk-test"
		}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tc.ok && err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
