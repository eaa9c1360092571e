package state

import (
	"fmt"

	"github.com/ShayCichocki/warden/internal/analyzer"
	"github.com/ShayCichocki/warden/pkg/models"
)

// OutcomeSignals reports how tasks sharing this task's (actor, resource
// scope) pair have fared historically. Completed tasks count as successes,
// blocked tasks as failures; nil means no history exists yet.
func (db *DB) OutcomeSignals(task *models.Task) (*analyzer.Signals, error) {
	rows, err := db.Query(`
		SELECT status, COUNT(*) FROM tasks
		WHERE actor = ? AND resource_scope = ? AND id != ?
			AND status IN (?, ?)
		GROUP BY status
	`, task.Actor, task.ResourceScope, task.ID,
		string(models.TaskStatusCompleted), string(models.TaskStatusBlocked))
	if err != nil {
		return nil, fmt.Errorf("outcome signals: %w", err)
	}
	defer rows.Close()

	var completed, blocked int
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan outcome signals: %w", err)
		}
		switch models.TaskStatus(status) {
		case models.TaskStatusCompleted:
			completed = count
		case models.TaskStatusBlocked:
			blocked = count
		}
	}

	total := completed + blocked
	if total == 0 {
		return nil, nil
	}
	return &analyzer.Signals{
		FailureRate: float64(blocked) / float64(total),
		SampleCount: total,
	}, nil
}
