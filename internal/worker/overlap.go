// Package worker dispatches bounded-concurrency, isolated worker sessions.
package worker

import (
	"sort"
	"strings"

	"github.com/ShayCichocki/warden/pkg/models"
)

// patternsOverlap reports whether two file-pattern hints touch the same
// area: equal paths, or one a path prefix of the other.
func patternsOverlap(a, b string) bool {
	a = strings.TrimPrefix(a, "/")
	b = strings.TrimPrefix(b, "/")
	if a == b {
		return true
	}
	return strings.HasPrefix(a, b) || strings.HasPrefix(b, a)
}

// TasksOverlap reports whether any file-pattern hints of the two tasks
// intersect. Tasks with no hints never overlap; they can run anywhere.
func TasksOverlap(a, b *models.Task) bool {
	for _, pa := range a.FilePatterns {
		for _, pb := range b.FilePatterns {
			if patternsOverlap(pa, pb) {
				return true
			}
		}
	}
	return false
}

// PlanBatches partitions tasks into dispatch batches such that no batch
// contains two tasks with intersecting file-pattern hints, and no batch
// exceeds maxParallel. Overlapping tasks land in later batches, which
// serializes them. Within the constraint, higher-priority tasks are placed
// first, so they run in earlier batches.
func PlanBatches(tasks []*models.Task, maxParallel int) [][]*models.Task {
	if maxParallel < 1 {
		maxParallel = 1
	}

	ordered := make([]*models.Task, len(tasks))
	copy(ordered, tasks)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority > ordered[j].Priority
	})

	var batches [][]*models.Task
	for _, task := range ordered {
		placed := false
		for i := range batches {
			if len(batches[i]) >= maxParallel {
				continue
			}
			if batchConflicts(batches[i], task) {
				continue
			}
			batches[i] = append(batches[i], task)
			placed = true
			break
		}
		if !placed {
			batches = append(batches, []*models.Task{task})
		}
	}
	return batches
}

func batchConflicts(batch []*models.Task, task *models.Task) bool {
	for _, existing := range batch {
		if TasksOverlap(existing, task) {
			return true
		}
	}
	return false
}
