package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/warden/internal/config"
	"github.com/ShayCichocki/warden/internal/state"
)

var (
	cleanupDryRun bool
	cleanupAge    time.Duration
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove stale workspaces and old session records",
	Long: `Clean up leftovers from interrupted or old runs.

This command:
  - Removes stale workspace snapshot directories
  - Purges worker session records older than the retention window

Use this after a crash, or periodically to keep the state database small.

Examples:
  warden cleanup              # remove stale workspaces, purge sessions >30d
  warden cleanup --age 168h   # purge sessions older than a week
  warden cleanup --dry-run    # show what would be removed`,
	RunE: runCleanup,
}

func init() {
	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "Show what would be removed without removing")
	cleanupCmd.Flags().DurationVar(&cleanupAge, "age", 30*24*time.Hour, "Purge session records older than this")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	base := cfg.Workspace.BaseDir
	if base == "" {
		base = os.TempDir()
	}
	removed, err := cleanStaleWorkspaces(base, cleanupDryRun)
	if err != nil {
		return err
	}
	if cleanupDryRun {
		fmt.Printf("Would remove %d stale workspace(s) under %s\n", removed, base)
		return nil
	}
	fmt.Printf("Removed %d stale workspace(s).\n", removed)

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}
	dbPath := state.ProjectDBPath(cwd)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
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

	purged, err := db.PurgeOldSessions(cleanupAge)
	if err != nil {
		return fmt.Errorf("purge sessions: %w", err)
	}
	fmt.Printf("Purged %d session record(s) older than %s.\n", purged, cleanupAge)
	return nil
}

// cleanStaleWorkspaces removes leftover snapshot directories. Only
// directories matching the workspace naming scheme are touched.
func cleanStaleWorkspaces(base string, dryRun bool) (int, error) {
	entries, err := os.ReadDir(base)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read workspace dir: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), "warden-") {
			continue
		}
		removed++
		if dryRun {
			fmt.Printf("  would remove %s\n", entry.Name())
			continue
		}
		if err := os.RemoveAll(filepath.Join(base, entry.Name())); err != nil {
			return removed, fmt.Errorf("remove %s: %w", entry.Name(), err)
		}
	}
	return removed, nil
}
