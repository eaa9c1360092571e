package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/warden/internal/ingest"
	"github.com/ShayCichocki/warden/internal/state"
)

var addCmd = &cobra.Command{
	Use:   "add <task-file>...",
	Short: "Queue tasks from YAML or JSON files",
	Long: `Parse one or more task files and queue their tasks for the next run.

A task file holds a single task or a list under a 'tasks' key:

  tasks:
    - title: Add retry to the payments client
      priority: 5
      actor: team-payments
      resource_scope: payments-api
      file_patterns: ["internal/payments/**"]

Files dropped into the inbox directory (ingest.drop_dir) are picked up
automatically by 'warden run'; this command queues files from anywhere.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAdd,
}

func runAdd(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	db, err := state.OpenProject(cwd)
	if err != nil {
		return fmt.Errorf("open state database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	total := 0
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		tasks, err := ingest.ParseTasks(data)
		if err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		for _, task := range tasks {
			if err := db.CreateTask(task); err != nil {
				return fmt.Errorf("queue task %q from %s: %w", task.Title, path, err)
			}
			total++
		}
	}
	fmt.Printf("Queued %d task(s). Run 'warden run' to execute.\n", total)
	return nil
}
