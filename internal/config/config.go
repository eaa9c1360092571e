// Package config handles configuration loading and management for Warden.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/ShayCichocki/warden/pkg/models"
)

// Config holds all configuration for Warden.
type Config struct {
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Loop      LoopConfig      `mapstructure:"loop"`
	Breaker   BreakerConfig   `mapstructure:"breaker"`
	Timeouts  TimeoutsConfig  `mapstructure:"timeouts"`
	Gates     GatesConfig     `mapstructure:"gates"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Workspace WorkspaceConfig `mapstructure:"workspace"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey        string `mapstructure:"api_key"`
	UseAWSBedrock bool   `mapstructure:"use_aws_bedrock"`
	AWSRegion     string `mapstructure:"aws_region"`
	AWSProfile    string `mapstructure:"aws_profile"`
}

// LoopConfig holds control-loop limits.
type LoopConfig struct {
	// MaxIterations bounds the number of loop iterations per run.
	MaxIterations int `mapstructure:"max_iterations"`
	// MaxParallelWorkers bounds concurrent worker sessions per batch.
	MaxParallelWorkers int `mapstructure:"max_parallel_workers"`
	// TaskBudget is the per-task verification attempt budget.
	TaskBudget int `mapstructure:"task_budget"`
}

// BreakerConfig holds circuit-breaker tuning.
type BreakerConfig struct {
	// FailureThreshold is the consecutive failure count that opens a breaker.
	FailureThreshold int `mapstructure:"failure_threshold"`
	// CoolDown is how long an open breaker rejects before granting a probe.
	CoolDown time.Duration `mapstructure:"cool_down"`
}

// TimeoutsConfig holds worker-session timeouts per tier.
type TimeoutsConfig struct {
	Scout     time.Duration `mapstructure:"scout"`
	Builder   time.Duration `mapstructure:"builder"`
	Architect time.Duration `mapstructure:"architect"`
}

// ByTier returns the timeout map keyed by tier.
func (tc TimeoutsConfig) ByTier() map[models.Tier]time.Duration {
	return map[models.Tier]time.Duration{
		models.TierScout:     tc.Scout,
		models.TierBuilder:   tc.Builder,
		models.TierArchitect: tc.Architect,
	}
}

// GatesConfig holds verification check toggles.
type GatesConfig struct {
	Lint  bool `mapstructure:"lint"`
	Build bool `mapstructure:"build"`
	Test  bool `mapstructure:"test"`
}

// IngestConfig holds task ingestion settings.
type IngestConfig struct {
	// DropDir is the directory watched for incoming task files.
	DropDir string `mapstructure:"drop_dir"`
}

// WorkspaceConfig holds worker workspace settings.
type WorkspaceConfig struct {
	// BaseDir is where per-session workspace snapshots are created.
	// Empty means the system temp directory.
	BaseDir string `mapstructure:"base_dir"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (WARDEN_*, ANTHROPIC_API_KEY)
// 2. Project config (.warden.yaml in current directory or parent)
// 3. User config (~/.config/warden/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.SetEnvPrefix("WARDEN")
	v.AutomaticEnv()
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// Save writes the current configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(filepath.Join(userConfigDir, "config.yaml"))

	v.Set("anthropic.api_key", cfg.Anthropic.APIKey)
	v.Set("anthropic.use_aws_bedrock", cfg.Anthropic.UseAWSBedrock)
	v.Set("anthropic.aws_region", cfg.Anthropic.AWSRegion)
	v.Set("anthropic.aws_profile", cfg.Anthropic.AWSProfile)
	v.Set("loop.max_iterations", cfg.Loop.MaxIterations)
	v.Set("loop.max_parallel_workers", cfg.Loop.MaxParallelWorkers)
	v.Set("loop.task_budget", cfg.Loop.TaskBudget)
	v.Set("breaker.failure_threshold", cfg.Breaker.FailureThreshold)
	v.Set("breaker.cool_down", cfg.Breaker.CoolDown.String())
	v.Set("timeouts.scout", cfg.Timeouts.Scout.String())
	v.Set("timeouts.builder", cfg.Timeouts.Builder.String())
	v.Set("timeouts.architect", cfg.Timeouts.Architect.String())
	v.Set("gates.lint", cfg.Gates.Lint)
	v.Set("gates.build", cfg.Gates.Build)
	v.Set("gates.test", cfg.Gates.Test)
	v.Set("ingest.drop_dir", cfg.Ingest.DropDir)
	v.Set("workspace.base_dir", cfg.Workspace.BaseDir)

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.use_aws_bedrock", false)

	v.SetDefault("loop.max_iterations", 10)
	v.SetDefault("loop.max_parallel_workers", 3)
	v.SetDefault("loop.task_budget", 3)

	v.SetDefault("breaker.failure_threshold", 3)
	v.SetDefault("breaker.cool_down", "5m")

	v.SetDefault("timeouts.scout", "5m")
	v.SetDefault("timeouts.builder", "15m")
	v.SetDefault("timeouts.architect", "30m")

	v.SetDefault("gates.lint", true)
	v.SetDefault("gates.build", true)
	v.SetDefault("gates.test", true)

	v.SetDefault("ingest.drop_dir", ".warden/inbox")
	v.SetDefault("workspace.base_dir", "")
}

// getUserConfigDir returns the XDG config directory for Warden.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "warden")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "warden")
	}
	return filepath.Join(home, ".config", "warden")
}

// findProjectConfig searches for .warden.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".warden.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Loop: LoopConfig{
			MaxIterations:      10,
			MaxParallelWorkers: 3,
			TaskBudget:         3,
		},
		Breaker: BreakerConfig{
			FailureThreshold: 3,
			CoolDown:         5 * time.Minute,
		},
		Timeouts: TimeoutsConfig{
			Scout:     5 * time.Minute,
			Builder:   15 * time.Minute,
			Architect: 30 * time.Minute,
		},
		Gates: GatesConfig{
			Lint:  true,
			Build: true,
			Test:  true,
		},
		Ingest: IngestConfig{
			DropDir: ".warden/inbox",
		},
	}
}
