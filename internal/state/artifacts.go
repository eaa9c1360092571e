package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ShayCichocki/warden/internal/resolver"
	"github.com/ShayCichocki/warden/pkg/models"
)

// EscalationRecord is a stored escalation artifact awaiting human
// resolution. It remains open until a human closes it; the loop never
// touches an open record's task again.
type EscalationRecord struct {
	ID             int64           `json:"id"`
	TaskID         string          `json:"task_id"`
	Reason         string          `json:"reason"`
	VerdictSummary string          `json:"verdict_summary"`
	Verdict        *models.Verdict `json:"verdict,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	ClosedAt       *time.Time      `json:"closed_at,omitempty"`
}

// SaveArtifact persists an escalation artifact. Implements
// resolver.ArtifactWriter so every escalation decision writes through
// here.
func (db *DB) SaveArtifact(a *resolver.Artifact) error {
	var verdict *string
	if a.Verdict != nil {
		data, err := json.Marshal(a.Verdict)
		if err != nil {
			return fmt.Errorf("marshal verdict: %w", err)
		}
		s := string(data)
		verdict = &s
	}

	_, err := db.Exec(`
		INSERT INTO escalation_artifacts (task_id, reason, verdict_summary, verdict, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, a.TaskID, a.Reason, a.VerdictSummary, verdict, formatTime(a.CreatedAt))
	if err != nil {
		return fmt.Errorf("save escalation artifact: %w", err)
	}
	return nil
}

// ListOpenArtifacts lists escalation artifacts that have not been closed,
// oldest first.
func (db *DB) ListOpenArtifacts() ([]EscalationRecord, error) {
	rows, err := db.Query(`
		SELECT id, task_id, reason, verdict_summary, verdict, created_at, closed_at
		FROM escalation_artifacts WHERE closed_at IS NULL ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list open artifacts: %w", err)
	}
	defer rows.Close()

	return scanArtifacts(rows)
}

// ListArtifactsByTask lists all escalation artifacts for a task.
func (db *DB) ListArtifactsByTask(taskID string) ([]EscalationRecord, error) {
	rows, err := db.Query(`
		SELECT id, task_id, reason, verdict_summary, verdict, created_at, closed_at
		FROM escalation_artifacts WHERE task_id = ? ORDER BY created_at
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list artifacts by task: %w", err)
	}
	defer rows.Close()

	return scanArtifacts(rows)
}

// CloseArtifact marks an escalation artifact as resolved by a human.
func (db *DB) CloseArtifact(id int64) error {
	result, err := db.Exec(`
		UPDATE escalation_artifacts SET closed_at = ? WHERE id = ? AND closed_at IS NULL
	`, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("close artifact: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("close artifact: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("artifact %d not found or already closed", id)
	}
	return nil
}

func scanArtifacts(rows *sql.Rows) ([]EscalationRecord, error) {
	var records []EscalationRecord
	for rows.Next() {
		var r EscalationRecord
		var createdAt string
		var summary, verdict, closedAt sql.NullString
		if err := rows.Scan(&r.ID, &r.TaskID, &r.Reason, &summary, &verdict, &createdAt, &closedAt); err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		if summary.Valid {
			r.VerdictSummary = summary.String
		}
		if verdict.Valid && verdict.String != "" {
			var v models.Verdict
			if err := json.Unmarshal([]byte(verdict.String), &v); err != nil {
				return nil, fmt.Errorf("unmarshal verdict: %w", err)
			}
			r.Verdict = &v
		}
		r.CreatedAt, _ = parseTime(createdAt)
		r.ClosedAt = parseNullableTime(closedAt)
		records = append(records, r)
	}
	return records, nil
}
