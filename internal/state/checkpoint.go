package state

import (
	"database/sql"
	"fmt"
	"time"
)

// Iteration is the durable checkpoint record for one control-loop
// iteration. A crash between iterations resumes from the last recorded
// number.
type Iteration struct {
	Number          int        `json:"number"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	Outcome         string     `json:"outcome,omitempty"`
	TasksDispatched int        `json:"tasks_dispatched"`
	TasksCompleted  int        `json:"tasks_completed"`
	TasksBlocked    int        `json:"tasks_blocked"`
}

// BeginIteration records the start of an iteration.
func (db *DB) BeginIteration(number int, startedAt time.Time) error {
	_, err := db.Exec(`
		INSERT INTO iterations (number, started_at) VALUES (?, ?)
	`, number, formatTime(startedAt))
	if err != nil {
		return fmt.Errorf("begin iteration %d: %w", number, err)
	}
	return nil
}

// CompleteIteration records the end of an iteration with its counts.
func (db *DB) CompleteIteration(it *Iteration) error {
	var completedAt *string
	if it.CompletedAt != nil {
		v := formatTime(*it.CompletedAt)
		completedAt = &v
	}

	result, err := db.Exec(`
		UPDATE iterations SET completed_at = ?, outcome = ?,
			tasks_dispatched = ?, tasks_completed = ?, tasks_blocked = ?
		WHERE number = ?
	`, completedAt, it.Outcome, it.TasksDispatched, it.TasksCompleted, it.TasksBlocked, it.Number)
	if err != nil {
		return fmt.Errorf("complete iteration %d: %w", it.Number, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("complete iteration %d: %w", it.Number, err)
	}
	if affected == 0 {
		return fmt.Errorf("iteration %d was never begun", it.Number)
	}
	return nil
}

// LastIteration returns the most recent iteration record, or nil if no
// iteration has run.
func (db *DB) LastIteration() (*Iteration, error) {
	row := db.QueryRow(`
		SELECT number, started_at, completed_at, outcome,
			tasks_dispatched, tasks_completed, tasks_blocked
		FROM iterations ORDER BY number DESC LIMIT 1
	`)

	var it Iteration
	var startedAt string
	var completedAt, outcome sql.NullString
	err := row.Scan(&it.Number, &startedAt, &completedAt, &outcome,
		&it.TasksDispatched, &it.TasksCompleted, &it.TasksBlocked)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last iteration: %w", err)
	}

	if outcome.Valid {
		it.Outcome = outcome.String
	}
	it.StartedAt, _ = parseTime(startedAt)
	it.CompletedAt = parseNullableTime(completedAt)
	return &it, nil
}
