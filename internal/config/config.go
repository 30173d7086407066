// Package config holds pdf-hunter configuration: investigation budgets,
// gateway settings, and per-call timeouts.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all pdf-hunter configuration.
type Config struct {
	Gateway GatewayConfig `yaml:"gateway"`
	Budgets BudgetConfig  `yaml:"budgets"`
}

// GatewayConfig configures the reasoning gateway. Timeouts are duration
// strings ("45s", "2m"); unparsable values fall back to the defaults.
type GatewayConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`

	// Per-call timeouts. Review and finalize see the whole graph and
	// get the long budget; a single investigation step gets the short one.
	StepTimeout     string `yaml:"step_timeout"`
	MergeTimeout    string `yaml:"merge_timeout"`
	ReviewTimeout   string `yaml:"review_timeout"`
	FinalizeTimeout string `yaml:"finalize_timeout"`
}

// BudgetConfig bounds total work per session.
type BudgetConfig struct {
	// StepBudget caps reasoning steps per mission.
	StepBudget int `yaml:"step_budget"`

	// ToolCallBudget caps tool invocations per mission, independently of
	// the step budget. Zero disables the cap.
	ToolCallBudget int `yaml:"tool_call_budget"`

	// RoundBudget caps dispatch-merge-review rounds per session.
	RoundBudget int `yaml:"round_budget"`

	// MaxConcurrent bounds simultaneously running investigators.
	MaxConcurrent int `yaml:"max_concurrent"`
}

// Default returns the standard configuration.
func Default() Config {
	return Config{
		Gateway: GatewayConfig{
			Model:           "gemini-2.5-flash",
			StepTimeout:     "45s",
			MergeTimeout:    "120s",
			ReviewTimeout:   "120s",
			FinalizeTimeout: "120s",
		},
		Budgets: BudgetConfig{
			StepBudget:     25,
			ToolCallBudget: 40,
			RoundBudget:    50,
			MaxConcurrent:  4,
		},
	}
}

// Load reads a YAML config file over the defaults. A missing file is
// fine: defaults plus env apply.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("failed to read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv overlays environment variables on the loaded config.
func (c *Config) applyEnv() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Gateway.APIKey = key
	}
	if model := os.Getenv("PDFHUNTER_MODEL"); model != "" {
		c.Gateway.Model = model
	}
}

func (c *Config) validate() error {
	if c.Budgets.StepBudget <= 0 {
		return fmt.Errorf("step_budget must be positive, got %d", c.Budgets.StepBudget)
	}
	if c.Budgets.RoundBudget <= 0 {
		return fmt.Errorf("round_budget must be positive, got %d", c.Budgets.RoundBudget)
	}
	if c.Budgets.MaxConcurrent <= 0 {
		return fmt.Errorf("max_concurrent must be positive, got %d", c.Budgets.MaxConcurrent)
	}
	return nil
}

// StepTimeout returns the per-step gateway timeout as a duration.
func (c *Config) StepTimeout() time.Duration {
	return parseDuration(c.Gateway.StepTimeout, 45*time.Second)
}

// MergeTimeout returns the merge call timeout as a duration.
func (c *Config) MergeTimeout() time.Duration {
	return parseDuration(c.Gateway.MergeTimeout, 120*time.Second)
}

// ReviewTimeout returns the review call timeout as a duration.
func (c *Config) ReviewTimeout() time.Duration {
	return parseDuration(c.Gateway.ReviewTimeout, 120*time.Second)
}

// FinalizeTimeout returns the finalize call timeout as a duration.
func (c *Config) FinalizeTimeout() time.Duration {
	return parseDuration(c.Gateway.FinalizeTimeout, 120*time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
