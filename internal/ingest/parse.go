// Package ingest feeds tasks into the governance loop from a watched
// drop directory. Task files are YAML or JSON documents describing one or
// more tasks.
package ingest

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.yaml.in/yaml/v3"

	"github.com/ShayCichocki/warden/pkg/models"
)

// taskRecord is the on-disk shape of one submitted task.
type taskRecord struct {
	ID            string   `yaml:"id" json:"id"`
	Title         string   `yaml:"title" json:"title"`
	Description   string   `yaml:"description" json:"description"`
	Priority      int      `yaml:"priority" json:"priority"`
	Actor         string   `yaml:"actor" json:"actor"`
	ResourceScope string   `yaml:"resource_scope" json:"resource_scope"`
	FilePatterns  []string `yaml:"file_patterns" json:"file_patterns"`
}

// taskFile is the top-level document shape. A file carries either a
// single task or a "tasks" list.
type taskFile struct {
	taskRecord `yaml:",inline"`
	Tasks      []taskRecord `yaml:"tasks" json:"tasks"`
}

// ParseTasks parses a task file. YAML is a superset of JSON, so both
// formats go through the same decoder. Every returned task is pending
// with a fresh ID when the file provides none.
func ParseTasks(data []byte) ([]*models.Task, error) {
	var doc taskFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse task file: %w", err)
	}

	records := doc.Tasks
	if len(records) == 0 {
		records = []taskRecord{doc.taskRecord}
	}

	now := time.Now()
	var tasks []*models.Task
	for i, r := range records {
		if strings.TrimSpace(r.Title) == "" {
			return nil, fmt.Errorf("task %d: missing title", i)
		}
		id := r.ID
		if id == "" {
			id = uuid.New().String()
		}
		tasks = append(tasks, &models.Task{
			ID:            id,
			Title:         r.Title,
			Description:   r.Description,
			Priority:      r.Priority,
			Status:        models.TaskStatusPending,
			Actor:         r.Actor,
			ResourceScope: r.ResourceScope,
			FilePatterns:  r.FilePatterns,
			CreatedAt:     now,
		})
	}
	return tasks, nil
}
