package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/warden/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	Long: `Display the effective configuration after merging defaults, the user
config, the project .warden.yaml, and environment variables.`,
	RunE: runConfig,
}

var configSetKeyCmd = &cobra.Command{
	Use:   "set-key <api-key>",
	Short: "Store the Anthropic API key in the user config",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		if err := config.ValidateAPIKey(key); err != nil {
			return err
		}
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg.Anthropic.APIKey = key
		if err := config.Save(cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
		fmt.Printf("API key %s saved to %s\n", config.MaskAPIKey(key), config.GetUserConfigPath())
		return nil
	},
}

func init() {
	configCmd.AddCommand(configSetKeyCmd)
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	fmt.Println("Config files:")
	fmt.Printf("  user:    %s\n", config.GetUserConfigPath())
	if project := config.GetProjectConfigPath(); project != "" {
		fmt.Printf("  project: %s\n", project)
	} else {
		fmt.Println("  project: (none)")
	}

	key, _ := config.GetAPIKey(cfg)
	fmt.Println("\nAnthropic:")
	fmt.Printf("  api_key:         %s (from %s)\n", config.MaskAPIKey(key), config.GetAPIKeySource(cfg))
	fmt.Printf("  use_aws_bedrock: %v\n", cfg.Anthropic.UseAWSBedrock)
	if cfg.Anthropic.UseAWSBedrock {
		fmt.Printf("  aws_region:      %s\n", cfg.Anthropic.AWSRegion)
		fmt.Printf("  aws_profile:     %s\n", cfg.Anthropic.AWSProfile)
	}

	fmt.Println("\nLoop:")
	fmt.Printf("  max_iterations:       %d\n", cfg.Loop.MaxIterations)
	fmt.Printf("  max_parallel_workers: %d\n", cfg.Loop.MaxParallelWorkers)
	fmt.Printf("  task_budget:          %d\n", cfg.Loop.TaskBudget)

	fmt.Println("\nBreaker:")
	fmt.Printf("  failure_threshold: %d\n", cfg.Breaker.FailureThreshold)
	fmt.Printf("  cool_down:         %s\n", cfg.Breaker.CoolDown)

	fmt.Println("\nTimeouts:")
	fmt.Printf("  scout:     %s\n", cfg.Timeouts.Scout)
	fmt.Printf("  builder:   %s\n", cfg.Timeouts.Builder)
	fmt.Printf("  architect: %s\n", cfg.Timeouts.Architect)

	fmt.Println("\nGates:")
	fmt.Printf("  lint: %v, build: %v, test: %v\n", cfg.Gates.Lint, cfg.Gates.Build, cfg.Gates.Test)

	fmt.Println("\nIngest:")
	fmt.Printf("  drop_dir: %s\n", cfg.Ingest.DropDir)
	return nil
}
