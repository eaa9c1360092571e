package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ShayCichocki/warden/pkg/models"
)

func TestRecover_RequeuesInProgressTasks(t *testing.T) {
	db := setupTestDB(t)

	for _, tc := range []struct {
		id     string
		status models.TaskStatus
	}{
		{"stuck", models.TaskStatusInProgress},
		{"done", models.TaskStatusCompleted},
		{"waiting", models.TaskStatusPending},
	} {
		task := &models.Task{ID: tc.id, Title: tc.id, Status: tc.status, CreatedAt: time.Now()}
		if err := db.CreateTask(task); err != nil {
			t.Fatalf("CreateTask %s: %v", tc.id, err)
		}
	}

	report, err := db.Recover("")
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if len(report.RequeuedTasks) != 1 || report.RequeuedTasks[0] != "stuck" {
		t.Errorf("RequeuedTasks = %v, want [stuck]", report.RequeuedTasks)
	}

	stuck, err := db.GetTask("stuck")
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if stuck.Status != models.TaskStatusPending {
		t.Errorf("stuck task status = %q, want pending", stuck.Status)
	}
	done, _ := db.GetTask("done")
	if done.Status != models.TaskStatusCompleted {
		t.Errorf("completed task should be untouched, got %q", done.Status)
	}
}

func TestRecover_AbandonsUnresolvedSessions(t *testing.T) {
	db := setupTestDB(t)

	running := &models.WorkerSession{
		ID:        "orphan",
		TaskID:    "t1",
		StartedAt: time.Now(),
		Changeset: &models.Changeset{Files: []models.FileChange{{Path: "a.go", Content: "x"}}},
	}
	if err := db.CreateWorkerSession(running); err != nil {
		t.Fatalf("CreateWorkerSession: %v", err)
	}
	finished := &models.WorkerSession{
		ID:        "finished",
		TaskID:    "t1",
		StartedAt: time.Now(),
		Status:    models.SessionCompleted,
	}
	if err := db.CreateWorkerSession(finished); err != nil {
		t.Fatalf("CreateWorkerSession: %v", err)
	}

	report, err := db.Recover("")
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if len(report.AbandonedSessions) != 1 || report.AbandonedSessions[0] != "orphan" {
		t.Errorf("AbandonedSessions = %v, want [orphan]", report.AbandonedSessions)
	}

	orphan, err := db.GetWorkerSession("orphan")
	if err != nil {
		t.Fatalf("GetWorkerSession: %v", err)
	}
	if orphan.Status != models.SessionTimedOut {
		t.Errorf("orphan status = %q, want timed_out", orphan.Status)
	}
	if orphan.Changeset != nil {
		t.Error("abandoned session must discard its changeset")
	}
}

func TestRecover_RemovesStaleWorkspaces(t *testing.T) {
	db := setupTestDB(t)
	baseDir := t.TempDir()

	stale := filepath.Join(baseDir, "warden-abc123")
	if err := os.MkdirAll(filepath.Join(stale, "pkg"), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	unrelated := filepath.Join(baseDir, "other-dir")
	if err := os.Mkdir(unrelated, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	report, err := db.Recover(baseDir)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if len(report.RemovedWorkspaces) != 1 {
		t.Fatalf("RemovedWorkspaces = %v, want 1 entry", report.RemovedWorkspaces)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale workspace still exists")
	}
	if _, err := os.Stat(unrelated); err != nil {
		t.Error("unrelated directory should be untouched")
	}
}

func TestRecover_CleanState(t *testing.T) {
	db := setupTestDB(t)
	report, err := db.Recover("")
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if !report.Empty() {
		t.Errorf("expected empty report for clean state, got %+v", report)
	}
}
