package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/warden/internal/state"
	"github.com/ShayCichocki/warden/pkg/models"
)

var resolveRequeue bool

var resolveCmd = &cobra.Command{
	Use:   "resolve <artifact-id>",
	Short: "Close an escalation artifact after human review",
	Long: `Close an open escalation artifact.

Blocked tasks are never retried automatically; only this command moves one
forward. Closing an artifact records the review. With --requeue the blocked
task also returns to pending so the next run attempts it again with a fresh
iteration budget.

Examples:
  warden resolve 3            # close escalation #3, task stays blocked
  warden resolve 3 --requeue  # close it and queue the task for another run`,
	Args: cobra.ExactArgs(1),
	RunE: runResolve,
}

func init() {
	resolveCmd.Flags().BoolVar(&resolveRequeue, "requeue", false, "Return the blocked task to the pending queue")
}

func runResolve(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid artifact id %q", args[0])
	}

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

	open, err := db.ListOpenArtifacts()
	if err != nil {
		return fmt.Errorf("list escalations: %w", err)
	}
	var taskID string
	for _, a := range open {
		if a.ID == id {
			taskID = a.TaskID
			break
		}
	}
	if taskID == "" {
		return fmt.Errorf("no open escalation #%d", id)
	}

	if err := db.CloseArtifact(id); err != nil {
		return fmt.Errorf("close escalation: %w", err)
	}
	fmt.Printf("Closed escalation #%d (task %s).\n", id, taskID)

	if !resolveRequeue {
		return nil
	}

	task, err := db.GetTask(taskID)
	if err != nil {
		return fmt.Errorf("get task: %w", err)
	}
	if task == nil {
		return fmt.Errorf("task %s no longer exists", taskID)
	}
	task.Status = models.TaskStatusPending
	task.BlockedReason = ""
	task.CompletedAt = nil
	task.IterationCount = 0
	if err := db.UpdateTask(task); err != nil {
		return fmt.Errorf("requeue task: %w", err)
	}
	fmt.Printf("Task %s requeued with a fresh budget.\n", taskID)
	return nil
}
