package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init [directory]",
	Short: "Initialize a project for Warden",
	Long: `Set up a directory for use with Warden.

This command:
  - Creates the .warden directory (state, inbox, logs)
  - Writes a .warden.yaml with loop limits and guardrail policy
  - Adds .warden/ to .gitignore if one exists

Edit .warden.yaml afterwards to tune breaker thresholds, gates, and the
paths the guardrails protect.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite an existing .warden.yaml")
}

const projectConfigTemplate = `# Warden project configuration.
loop:
  max_iterations: 10
  max_parallel_workers: 3
  task_budget: 3

breaker:
  failure_threshold: 3
  cool_down: 5m

timeouts:
  scout: 5m
  builder: 15m
  architect: 30m

gates:
  lint: true
  build: true
  test: true

ingest:
  drop_dir: .warden/inbox

# Changes touching these are blocked and escalated, never auto-retried.
guardrails:
  protected_paths: []
  path_keywords: []
  file_types: []
  forbidden_content: []
`

func runInit(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolve directory: %w", err)
	}

	for _, sub := range []string{".warden", ".warden/inbox", ".warden/logs"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return fmt.Errorf("create %s: %w", sub, err)
		}
	}

	configPath := filepath.Join(dir, ".warden.yaml")
	if _, err := os.Stat(configPath); err == nil && !initForce {
		fmt.Println(".warden.yaml already exists (use --force to overwrite)")
	} else {
		if err := os.WriteFile(configPath, []byte(projectConfigTemplate), 0o644); err != nil {
			return fmt.Errorf("write .warden.yaml: %w", err)
		}
		fmt.Println("Wrote .warden.yaml")
	}

	if err := appendGitignore(dir); err != nil {
		return err
	}

	color.Green("Initialized %s", dir)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Review .warden.yaml and set guardrail paths")
	fmt.Println("  2. Queue tasks: warden add tasks.yaml")
	fmt.Println("  3. Run the loop: warden run")
	return nil
}

// appendGitignore adds .warden/ to an existing .gitignore.
func appendGitignore(dir string) error {
	path := filepath.Join(dir, ".gitignore")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read .gitignore: %w", err)
	}
	for _, line := range []string{".warden/", ".warden"} {
		if containsLine(string(data), line) {
			return nil
		}
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open .gitignore: %w", err)
	}
	defer f.Close()
	if len(data) > 0 && data[len(data)-1] != '\n' {
		fmt.Fprintln(f)
	}
	fmt.Fprintln(f, ".warden/")
	fmt.Println("Added .warden/ to .gitignore")
	return nil
}

func containsLine(content, line string) bool {
	for len(content) > 0 {
		i := 0
		for i < len(content) && content[i] != '\n' {
			i++
		}
		if content[:i] == line {
			return true
		}
		if i == len(content) {
			break
		}
		content = content[i+1:]
	}
	return false
}
