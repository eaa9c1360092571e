package state

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ShayCichocki/warden/pkg/models"
)

// RecoveryReport describes what startup recovery found and repaired.
type RecoveryReport struct {
	// RequeuedTasks are task IDs reset from in_progress to pending.
	RequeuedTasks []string
	// AbandonedSessions are session IDs marked timed_out because the
	// process died while they were running.
	AbandonedSessions []string
	// RemovedWorkspaces are stale workspace directories deleted from disk.
	RemovedWorkspaces []string
}

// Empty reports whether recovery found nothing to repair.
func (r *RecoveryReport) Empty() bool {
	return len(r.RequeuedTasks) == 0 && len(r.AbandonedSessions) == 0 && len(r.RemovedWorkspaces) == 0
}

// Recover repairs state left behind by a crashed or killed run. Tasks
// stuck in_progress return to pending so the next run re-dispatches them.
// Worker sessions with no terminal status are marked timed_out; their
// changesets are discarded because no verification verdict exists for
// them. Workspace snapshots under baseDir are removed.
//
// Recovery must run before the control loop starts, never concurrently
// with it.
func (db *DB) Recover(baseDir string) (*RecoveryReport, error) {
	report := &RecoveryReport{}

	inProgress := models.TaskStatusInProgress
	tasks, err := db.ListTasks(&inProgress)
	if err != nil {
		return nil, fmt.Errorf("recover: %w", err)
	}
	for i := range tasks {
		t := &tasks[i]
		t.Status = models.TaskStatusPending
		if err := db.UpdateTask(t); err != nil {
			return nil, fmt.Errorf("requeue task %s: %w", t.ID, err)
		}
		report.RequeuedTasks = append(report.RequeuedTasks, t.ID)
	}

	sessions, err := db.listUnresolvedSessions()
	if err != nil {
		return nil, fmt.Errorf("recover: %w", err)
	}
	for i := range sessions {
		s := &sessions[i]
		s.Status = models.SessionTimedOut
		s.Changeset = nil
		s.Error = "abandoned by interrupted run"
		if err := db.UpdateWorkerSession(s); err != nil {
			return nil, fmt.Errorf("abandon session %s: %w", s.ID, err)
		}
		report.AbandonedSessions = append(report.AbandonedSessions, s.ID)
	}

	if baseDir != "" {
		removed, err := removeStaleWorkspaces(baseDir)
		if err != nil {
			return nil, fmt.Errorf("recover: %w", err)
		}
		report.RemovedWorkspaces = removed
	}

	return report, nil
}

// listUnresolvedSessions returns worker sessions with no terminal status.
func (db *DB) listUnresolvedSessions() ([]models.WorkerSession, error) {
	rows, err := db.Query(`
		SELECT ` + sessionColumns + `
		FROM worker_sessions WHERE status IS NULL OR status = ''
	`)
	if err != nil {
		return nil, fmt.Errorf("list unresolved sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.WorkerSession
	for rows.Next() {
		s, err := scanWorkerSession(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan worker session: %w", err)
		}
		sessions = append(sessions, *s)
	}
	return sessions, nil
}

// removeStaleWorkspaces deletes leftover workspace snapshot directories.
// Only directories matching the warden- prefix are touched.
func removeStaleWorkspaces(baseDir string) ([]string, error) {
	entries, err := os.ReadDir(baseDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read workspace dir: %w", err)
	}

	var removed []string
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), "warden-") {
			continue
		}
		path := filepath.Join(baseDir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			return removed, fmt.Errorf("remove workspace %s: %w", path, err)
		}
		removed = append(removed, path)
	}
	return removed, nil
}
