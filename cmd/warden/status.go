package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/warden/internal/breaker"
	"github.com/ShayCichocki/warden/internal/state"
	"github.com/ShayCichocki/warden/pkg/models"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show queue, breaker, and escalation state",
	Long: `Display the current state of the governance loop.

Shows:
  - Task counts by status and the most recent iteration
  - Tripped circuit breakers and their cool-down progress
  - Open escalation artifacts awaiting human review`,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	dbPath := state.ProjectDBPath(cwd)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Println("No state yet. Run 'warden init' and 'warden run' to start.")
		return nil
	}

	db, err := state.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	if err := displayTasks(db); err != nil {
		return err
	}
	if err := displayIteration(db); err != nil {
		return err
	}
	if err := displayBreakers(db); err != nil {
		return err
	}
	return displayEscalations(db)
}

func displayTasks(db *state.DB) error {
	tasks, err := db.ListTasks(nil)
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}
	if len(tasks) == 0 {
		fmt.Println("No tasks queued. Drop task files in the inbox or use 'warden add'.")
		return nil
	}

	counts := make(map[models.TaskStatus]int)
	for _, t := range tasks {
		counts[t.Status]++
	}
	fmt.Printf("Tasks: %d total", len(tasks))
	fmt.Printf("  (%d pending, %d in progress, %d completed, %d blocked)\n",
		counts[models.TaskStatusPending], counts[models.TaskStatusInProgress],
		counts[models.TaskStatusCompleted], counts[models.TaskStatusBlocked])

	for _, t := range tasks {
		if t.Status == models.TaskStatusCompleted {
			continue
		}
		line := fmt.Sprintf("  [%s] %s: %s", t.Status, t.ID, t.Title)
		switch t.Status {
		case models.TaskStatusBlocked:
			color.Red("%s (%s)", line, t.BlockedReason)
		case models.TaskStatusInProgress:
			color.Cyan("%s", line)
		default:
			fmt.Println(line)
		}
	}
	return nil
}

func displayIteration(db *state.DB) error {
	last, err := db.LastIteration()
	if err != nil {
		return fmt.Errorf("last iteration: %w", err)
	}
	if last == nil {
		return nil
	}

	fmt.Printf("\nLast iteration: #%d", last.Number)
	if last.CompletedAt != nil {
		fmt.Printf(" (%s, %s ago)", last.Outcome, formatDuration(time.Since(*last.CompletedAt)))
	} else {
		fmt.Printf(" (in flight, started %s ago)", formatDuration(time.Since(last.StartedAt)))
	}
	fmt.Printf("\n  dispatched %d, completed %d, blocked %d\n",
		last.TasksDispatched, last.TasksCompleted, last.TasksBlocked)
	return nil
}

func displayBreakers(db *state.DB) error {
	snaps, err := db.LoadBreakerSnapshots()
	if err != nil {
		return fmt.Errorf("load breaker state: %w", err)
	}

	var tripped int
	for _, s := range snaps {
		if s.State == breaker.StateClosed {
			continue
		}
		if tripped == 0 {
			fmt.Println("\nCircuit breakers:")
		}
		tripped++
		line := fmt.Sprintf("  %s/%s: %s (%d failures", s.Key.Actor, s.Key.Scope, s.State, s.FailureCount)
		if !s.OpenedAt.IsZero() {
			line += fmt.Sprintf(", open for %s", formatDuration(time.Since(s.OpenedAt)))
		}
		line += ")"
		color.Yellow("%s", line)
	}
	return nil
}

func displayEscalations(db *state.DB) error {
	artifacts, err := db.ListOpenArtifacts()
	if err != nil {
		return fmt.Errorf("list escalations: %w", err)
	}
	if len(artifacts) == 0 {
		return nil
	}

	fmt.Printf("\nOpen escalations (%d):\n", len(artifacts))
	for _, a := range artifacts {
		color.Red("  #%d task %s: %s", a.ID, a.TaskID, a.Reason)
		fmt.Printf("     verdict: %s (%s ago)\n", a.VerdictSummary, formatDuration(time.Since(a.CreatedAt)))
	}
	fmt.Println("\nResolve with 'warden resolve <id>' after reviewing.")
	return nil
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		h := int(d.Hours())
		m := int(d.Minutes()) % 60
		if m > 0 {
			return fmt.Sprintf("%dh%dm", h, m)
		}
		return fmt.Sprintf("%dh", h)
	}
	days := int(d.Hours()) / 24
	return fmt.Sprintf("%dd", days)
}
