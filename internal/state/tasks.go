package state

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ShayCichocki/warden/pkg/models"
)

const taskColumns = `id, title, description, priority, status, tier, actor, resource_scope,
	file_patterns, iteration_count, low_confidence, blocked_reason, created_at, completed_at, error`

// CreateTask creates a new task.
func (db *DB) CreateTask(t *models.Task) error {
	patterns, _ := json.Marshal(t.FilePatterns)
	var completedAt *string
	if t.CompletedAt != nil {
		s := formatTime(*t.CompletedAt)
		completedAt = &s
	}

	_, err := db.Exec(`
		INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.Title, t.Description, t.Priority, string(t.Status), string(t.Tier),
		t.Actor, t.ResourceScope, string(patterns), t.IterationCount, boolToInt(t.LowConfidence),
		t.BlockedReason, formatTime(t.CreatedAt), completedAt, t.Error)
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

// GetTask retrieves a task by ID. Returns nil when no task exists.
func (db *DB) GetTask(id string) (*models.Task, error) {
	row := db.QueryRow(`
		SELECT `+taskColumns+`
		FROM tasks WHERE id = ?
	`, id)

	t, err := scanTask(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// UpdateTask updates a task.
func (db *DB) UpdateTask(t *models.Task) error {
	patterns, _ := json.Marshal(t.FilePatterns)
	var completedAt *string
	if t.CompletedAt != nil {
		s := formatTime(*t.CompletedAt)
		completedAt = &s
	}

	_, err := db.Exec(`
		UPDATE tasks SET title = ?, description = ?, priority = ?, status = ?, tier = ?,
			actor = ?, resource_scope = ?, file_patterns = ?, iteration_count = ?,
			low_confidence = ?, blocked_reason = ?, completed_at = ?, error = ?
		WHERE id = ?
	`, t.Title, t.Description, t.Priority, string(t.Status), string(t.Tier),
		t.Actor, t.ResourceScope, string(patterns), t.IterationCount,
		boolToInt(t.LowConfidence), t.BlockedReason, completedAt, t.Error, t.ID)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return nil
}

// DeleteTask deletes a task by ID.
func (db *DB) DeleteTask(id string) error {
	_, err := db.Exec("DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

// ListTasks lists all tasks, optionally filtered by status. Tasks are
// ordered by priority descending so the loop dispatches important work
// first, then by creation time for stability.
func (db *DB) ListTasks(status *models.TaskStatus) ([]models.Task, error) {
	var rows *sql.Rows
	var err error

	if status != nil {
		rows, err = db.Query(`
			SELECT `+taskColumns+`
			FROM tasks WHERE status = ? ORDER BY priority DESC, created_at
		`, string(*status))
	} else {
		rows, err = db.Query(`
			SELECT ` + taskColumns + `
			FROM tasks ORDER BY priority DESC, created_at
		`)
	}
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, nil
}

// ListPendingTasks lists tasks awaiting dispatch.
func (db *DB) ListPendingTasks() ([]models.Task, error) {
	status := models.TaskStatusPending
	return db.ListTasks(&status)
}

// scanTask scans one task row via the given scan function.
func scanTask(scan func(...any) error) (*models.Task, error) {
	var t models.Task
	var createdAt string
	var completedAt sql.NullString
	var description, tier, actor, scope, patterns, blockedReason, taskErr sql.NullString
	var lowConfidence int

	err := scan(&t.ID, &t.Title, &description, &t.Priority, &t.Status, &tier,
		&actor, &scope, &patterns, &t.IterationCount, &lowConfidence,
		&blockedReason, &createdAt, &completedAt, &taskErr)
	if err != nil {
		return nil, err
	}

	if description.Valid {
		t.Description = description.String
	}
	if tier.Valid {
		t.Tier = models.Tier(tier.String)
	}
	if actor.Valid {
		t.Actor = actor.String
	}
	if scope.Valid {
		t.ResourceScope = scope.String
	}
	if patterns.Valid && patterns.String != "" {
		json.Unmarshal([]byte(patterns.String), &t.FilePatterns)
	}
	if blockedReason.Valid {
		t.BlockedReason = blockedReason.String
	}
	if taskErr.Valid {
		t.Error = taskErr.String
	}
	t.LowConfidence = lowConfidence != 0
	t.CreatedAt, _ = parseTime(createdAt)
	t.CompletedAt = parseNullableTime(completedAt)
	return &t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
