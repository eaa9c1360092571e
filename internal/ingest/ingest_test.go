package ingest

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ShayCichocki/warden/pkg/models"
)

func TestParseTasks_SingleYAML(t *testing.T) {
	data := []byte(`
title: Add CSV export
description: Export reports as CSV
priority: 5
actor: team-reports
resource_scope: reports-db
file_patterns:
  - internal/report/
`)
	tasks, err := ParseTasks(data)
	if err != nil {
		t.Fatalf("ParseTasks: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("parsed %d tasks, want 1", len(tasks))
	}

	task := tasks[0]
	if task.Title != "Add CSV export" || task.Priority != 5 {
		t.Errorf("task = %+v", task)
	}
	if task.Actor != "team-reports" || task.ResourceScope != "reports-db" {
		t.Errorf("breaker key fields = %q/%q", task.Actor, task.ResourceScope)
	}
	if task.Status != models.TaskStatusPending {
		t.Errorf("status = %q, want pending", task.Status)
	}
	if task.ID == "" {
		t.Error("missing ID should be generated")
	}
}

func TestParseTasks_MultiDocumentList(t *testing.T) {
	data := []byte(`
tasks:
  - id: t1
    title: First
  - id: t2
    title: Second
    priority: 3
`)
	tasks, err := ParseTasks(data)
	if err != nil {
		t.Fatalf("ParseTasks: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("parsed %d tasks, want 2", len(tasks))
	}
	if tasks[0].ID != "t1" || tasks[1].ID != "t2" {
		t.Errorf("IDs = %q, %q", tasks[0].ID, tasks[1].ID)
	}
	if tasks[1].Priority != 3 {
		t.Errorf("priority = %d", tasks[1].Priority)
	}
}

func TestParseTasks_JSON(t *testing.T) {
	data := []byte(`{"title": "From JSON", "file_patterns": ["cmd/"]}`)
	tasks, err := ParseTasks(data)
	if err != nil {
		t.Fatalf("ParseTasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Title != "From JSON" {
		t.Fatalf("tasks = %+v", tasks)
	}
	if len(tasks[0].FilePatterns) != 1 {
		t.Errorf("FilePatterns = %v", tasks[0].FilePatterns)
	}
}

func TestParseTasks_MissingTitle(t *testing.T) {
	if _, err := ParseTasks([]byte(`description: no title here`)); err == nil {
		t.Error("expected error for task without title")
	}
	if _, err := ParseTasks([]byte("tasks:\n  - id: t1\n")); err == nil {
		t.Error("expected error for listed task without title")
	}
}

// memCreator records created tasks.
type memCreator struct {
	mu    sync.Mutex
	tasks []*models.Task
}

func (m *memCreator) CreateTask(t *models.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks = append(m.tasks, t)
	return nil
}

func (m *memCreator) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

func (m *memCreator) first() *models.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tasks[0]
}

func TestWatcher_DrainExisting(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "task.yaml")
	if err := os.WriteFile(good, []byte("title: Preexisting\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	bad := filepath.Join(dir, "broken.yaml")
	if err := os.WriteFile(bad, []byte("title: [unclosed\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	ignored := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(ignored, []byte("not a task"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	store := &memCreator{}
	w, err := NewWatcher(dir, store)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	if err := w.DrainExisting(); err != nil {
		t.Fatalf("DrainExisting: %v", err)
	}

	if store.count() != 1 {
		t.Errorf("ingested %d tasks, want 1", store.count())
	}
	if _, err := os.Stat(filepath.Join(dir, "processed", "task.yaml")); err != nil {
		t.Error("accepted file should move to processed/")
	}
	if _, err := os.Stat(filepath.Join(dir, "rejected", "broken.yaml")); err != nil {
		t.Error("malformed file should move to rejected/")
	}
	if _, err := os.Stat(ignored); err != nil {
		t.Error("non-task file should stay put")
	}
}

func TestWatcher_PicksUpNewFiles(t *testing.T) {
	dir := t.TempDir()
	store := &memCreator{}
	w, err := NewWatcher(dir, store)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	path := filepath.Join(dir, "new.json")
	if err := os.WriteFile(path, []byte(`{"title": "Dropped in"}`), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for store.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("dropped file was never ingested")
		case <-time.After(20 * time.Millisecond):
		}
	}
	if got := store.first(); got.Title != "Dropped in" {
		t.Errorf("title = %q", got.Title)
	}
}

func TestWatcher_CloseIsIdempotent(t *testing.T) {
	w, err := NewWatcher(t.TempDir(), &memCreator{})
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
