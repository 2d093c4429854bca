// Package config loads Argus's YAML configuration file, overlays
// environment variables, merges in built-in defaults, and validates the
// result (spec.md §6 "Environment / config").
//
// Grounded on tarsy's pkg/config/loader.go Initialize pipeline (load → expand
// env → parse → merge defaults → validate) and envexpand.go's ExpandEnv.
package config

import (
	"fmt"
	"os"
	"time"

	"dario.cat/mergo"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Mode selects which collectors/surfaces the process runs.
type Mode string

const (
	ModeFull    Mode = "full"
	ModeSDKOnly Mode = "sdk_only"
)

// ServerConfig is the HTTP/WS bind address.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// LLMConfig configures the LLM provider the ReAct loop streams from.
type LLMConfig struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url,omitempty"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// AIBudgetConfig configures the Investigator's token budget and scheduled
// review/digest cadence.
type AIBudgetConfig struct {
	DailyTokenLimit  int     `yaml:"daily_token_limit"`
	HourlyTokenLimit int     `yaml:"hourly_token_limit"`
	PriorityReserve  float64 `yaml:"priority_reserve"`
	ReviewFrequency  Duration `yaml:"review_frequency"`
	DigestFrequency  Duration `yaml:"digest_frequency"`
}

// CollectorConfig configures sampling intervals and ingest paths.
type CollectorConfig struct {
	MetricsInterval Duration `yaml:"metrics_interval"`
	ProcessInterval Duration `yaml:"process_interval"`
	LogPaths        []string `yaml:"log_paths"`
	HostRoot        string   `yaml:"host_root"`
}

// AlertingConfig configures the formatter's batching and minimum external
// severity.
type AlertingConfig struct {
	BatchWindow        Duration `yaml:"batch_window"`
	MinExternalSeverity string  `yaml:"min_external_severity"`
	AIEnhance          bool     `yaml:"ai_enhance"`
}

// SecurityConfig configures session/auth ambient concerns (out of core
// scope per spec.md §1, carried here only as config surface).
type SecurityConfig struct {
	SecretKey          string `yaml:"secret_key"`
	SessionExpiryHours int    `yaml:"session_expiry_hours"`
	MaxLoginAttempts   int    `yaml:"max_login_attempts"`
	LockoutMinutes     int    `yaml:"lockout_minutes"`
}

// Config is the full set of recognised options from spec.md §6.
type Config struct {
	Mode      Mode             `yaml:"mode"`
	Server    ServerConfig     `yaml:"server"`
	LLM       LLMConfig        `yaml:"llm"`
	AIBudget  AIBudgetConfig   `yaml:"ai_budget"`
	Collector CollectorConfig  `yaml:"collector"`
	Alerting  AlertingConfig   `yaml:"alerting"`
	Security  SecurityConfig   `yaml:"security"`
}

// Duration is a YAML-friendly wrapper that parses Go duration strings
// ("90s", "6h") instead of requiring nanosecond integers.
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// Defaults returns the built-in configuration merged under whatever the
// user supplies, per spec.md §6.
func Defaults() Config {
	return Config{
		Mode: ModeFull,
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		LLM: LLMConfig{
			Provider:    "anthropic",
			Model:       "claude-sonnet-4-5",
			Temperature: 0.2,
			MaxTokens:   4096,
		},
		AIBudget: AIBudgetConfig{
			DailyTokenLimit:  2_000_000,
			HourlyTokenLimit: 200_000,
			PriorityReserve:  0.2,
			ReviewFrequency:  Duration{6 * time.Hour},
			DigestFrequency:  Duration{24 * time.Hour},
		},
		Collector: CollectorConfig{
			MetricsInterval: Duration{15 * time.Second},
			ProcessInterval: Duration{10 * time.Second},
			HostRoot:        "/",
		},
		Alerting: AlertingConfig{
			BatchWindow:         Duration{90 * time.Second},
			MinExternalSeverity: "NOTABLE",
			AIEnhance:           true,
		},
		Security: SecurityConfig{
			SessionExpiryHours: 24,
			MaxLoginAttempts:   5,
			LockoutMinutes:     15,
		},
	}
}

// Load reads path (a YAML file), expands ${VAR}/$VAR references against the
// process environment, parses it, and merges it over Defaults(). An empty
// or missing path yields pure defaults. envFile, if non-empty, is loaded
// via godotenv before expansion so local development can supply secrets
// without exporting them into the shell.
func Load(path, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("load env file: %w", err)
		}
	}

	cfg := Defaults()
	if path == "" {
		return &cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	expanded := os.ExpandEnv(string(raw))

	var userCfg Config
	if err := yaml.Unmarshal([]byte(expanded), &userCfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := mergo.Merge(&cfg, userCfg, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("merge config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// Validate checks invariants spec.md §6 implies but YAML decoding alone
// doesn't enforce.
func Validate(cfg *Config) error {
	if cfg.Mode != ModeFull && cfg.Mode != ModeSDKOnly {
		return fmt.Errorf("mode must be %q or %q, got %q", ModeFull, ModeSDKOnly, cfg.Mode)
	}
	if cfg.AIBudget.PriorityReserve < 0 || cfg.AIBudget.PriorityReserve > 1 {
		return fmt.Errorf("ai_budget.priority_reserve must be in [0,1], got %v", cfg.AIBudget.PriorityReserve)
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be a valid TCP port, got %d", cfg.Server.Port)
	}
	return nil
}
