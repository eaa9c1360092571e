package state

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ShayCichocki/warden/pkg/models"
)

const sessionColumns = `id, task_id, started_at, completed_at, status, workspace_path, changeset, error`

// CreateWorkerSession records a new worker session.
func (db *DB) CreateWorkerSession(s *models.WorkerSession) error {
	changeset, err := marshalChangeset(s.Changeset)
	if err != nil {
		return fmt.Errorf("create worker session: %w", err)
	}
	var completedAt *string
	if s.CompletedAt != nil {
		v := formatTime(*s.CompletedAt)
		completedAt = &v
	}

	_, err = db.Exec(`
		INSERT INTO worker_sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, s.ID, s.TaskID, formatTime(s.StartedAt), completedAt, string(s.Status),
		s.WorkspacePath, changeset, s.Error)
	if err != nil {
		return fmt.Errorf("create worker session: %w", err)
	}
	return nil
}

// GetWorkerSession retrieves a worker session by ID. Returns nil when no
// session exists.
func (db *DB) GetWorkerSession(id string) (*models.WorkerSession, error) {
	row := db.QueryRow(`
		SELECT `+sessionColumns+`
		FROM worker_sessions WHERE id = ?
	`, id)

	s, err := scanWorkerSession(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get worker session: %w", err)
	}
	return s, nil
}

// UpdateWorkerSession updates a worker session.
func (db *DB) UpdateWorkerSession(s *models.WorkerSession) error {
	changeset, err := marshalChangeset(s.Changeset)
	if err != nil {
		return fmt.Errorf("update worker session: %w", err)
	}
	var completedAt *string
	if s.CompletedAt != nil {
		v := formatTime(*s.CompletedAt)
		completedAt = &v
	}

	_, err = db.Exec(`
		UPDATE worker_sessions SET task_id = ?, completed_at = ?, status = ?,
			workspace_path = ?, changeset = ?, error = ?
		WHERE id = ?
	`, s.TaskID, completedAt, string(s.Status), s.WorkspacePath, changeset, s.Error, s.ID)
	if err != nil {
		return fmt.Errorf("update worker session: %w", err)
	}
	return nil
}

// ListSessionsByTask lists all worker sessions for a task, oldest first.
func (db *DB) ListSessionsByTask(taskID string) ([]models.WorkerSession, error) {
	rows, err := db.Query(`
		SELECT `+sessionColumns+`
		FROM worker_sessions WHERE task_id = ? ORDER BY started_at
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list sessions by task: %w", err)
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

// marshalChangeset serializes a changeset for storage. Nil changesets are
// stored as NULL so a discarded changeset leaves no trace.
func marshalChangeset(cs *models.Changeset) (*string, error) {
	if cs == nil {
		return nil, nil
	}
	data, err := json.Marshal(cs)
	if err != nil {
		return nil, fmt.Errorf("marshal changeset: %w", err)
	}
	s := string(data)
	return &s, nil
}

// scanWorkerSession scans one worker session row via the given scan function.
func scanWorkerSession(scan func(...any) error) (*models.WorkerSession, error) {
	var s models.WorkerSession
	var startedAt string
	var completedAt, status, workspacePath, changeset, sessionErr sql.NullString

	err := scan(&s.ID, &s.TaskID, &startedAt, &completedAt, &status,
		&workspacePath, &changeset, &sessionErr)
	if err != nil {
		return nil, err
	}

	if status.Valid {
		s.Status = models.SessionStatus(status.String)
	}
	if workspacePath.Valid {
		s.WorkspacePath = workspacePath.String
	}
	if changeset.Valid && changeset.String != "" {
		var cs models.Changeset
		if err := json.Unmarshal([]byte(changeset.String), &cs); err != nil {
			return nil, fmt.Errorf("unmarshal changeset: %w", err)
		}
		s.Changeset = &cs
	}
	if sessionErr.Valid {
		s.Error = sessionErr.String
	}
	s.StartedAt, _ = parseTime(startedAt)
	s.CompletedAt = parseNullableTime(completedAt)
	return &s, nil
}
