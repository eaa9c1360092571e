package worker

import (
	"testing"

	"github.com/ShayCichocki/warden/pkg/models"
)

func TestTasksOverlap(t *testing.T) {
	tests := []struct {
		name string
		a, b []string
		want bool
	}{
		{"identical pattern", []string{"internal/api/"}, []string{"internal/api/"}, true},
		{"prefix overlap", []string{"internal/"}, []string{"internal/api/"}, true},
		{"prefix overlap reversed", []string{"internal/api/handlers/"}, []string{"internal/api/"}, true},
		{"disjoint", []string{"internal/api/"}, []string{"internal/store/"}, false},
		{"no hints never overlap", nil, []string{"internal/api/"}, false},
		{"both empty", nil, nil, false},
		{"leading slash normalized", []string{"/internal/api/"}, []string{"internal/api/"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &models.Task{ID: "a", FilePatterns: tt.a}
			b := &models.Task{ID: "b", FilePatterns: tt.b}
			if got := TasksOverlap(a, b); got != tt.want {
				t.Errorf("TasksOverlap(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

// Scenario C: three tasks with disjoint file hints and maxParallel = 2
// yield a first batch of 2 sessions and a second batch with the rest.
func TestPlanBatches_RespectsMaxParallel(t *testing.T) {
	tasks := []*models.Task{
		{ID: "t1", FilePatterns: []string{"internal/a/"}},
		{ID: "t2", FilePatterns: []string{"internal/b/"}},
		{ID: "t3", FilePatterns: []string{"internal/c/"}},
	}

	batches := PlanBatches(tasks, 2)
	if len(batches) != 2 {
		t.Fatalf("expected 2 batches, got %d", len(batches))
	}
	if len(batches[0]) != 2 {
		t.Errorf("batch 1 has %d tasks, want 2", len(batches[0]))
	}
	if len(batches[1]) != 1 {
		t.Errorf("batch 2 has %d tasks, want 1", len(batches[1]))
	}
}

func TestPlanBatches_SerializesOverlaps(t *testing.T) {
	tasks := []*models.Task{
		{ID: "t1", FilePatterns: []string{"internal/api/"}},
		{ID: "t2", FilePatterns: []string{"internal/api/handlers/"}},
		{ID: "t3", FilePatterns: []string{"internal/store/"}},
	}

	batches := PlanBatches(tasks, 4)
	if len(batches) != 2 {
		t.Fatalf("expected 2 batches, got %d: %v", len(batches), batchIDs(batches))
	}
	// t1 and t2 overlap; they must never share a batch.
	for _, batch := range batches {
		seenT1, seenT2 := false, false
		for _, task := range batch {
			if task.ID == "t1" {
				seenT1 = true
			}
			if task.ID == "t2" {
				seenT2 = true
			}
		}
		if seenT1 && seenT2 {
			t.Error("overlapping tasks t1 and t2 scheduled in the same batch")
		}
	}
}

func TestPlanBatches_PriorityOrdersPlacement(t *testing.T) {
	tasks := []*models.Task{
		{ID: "low", Priority: 1, FilePatterns: []string{"internal/x/"}},
		{ID: "high", Priority: 9, FilePatterns: []string{"internal/x/"}},
	}

	batches := PlanBatches(tasks, 2)
	if len(batches) != 2 {
		t.Fatalf("expected 2 batches for overlapping tasks, got %d", len(batches))
	}
	if batches[0][0].ID != "high" {
		t.Errorf("batch 1 leads with %q, want the high-priority task", batches[0][0].ID)
	}
}

func TestPlanBatches_Empty(t *testing.T) {
	if batches := PlanBatches(nil, 3); len(batches) != 0 {
		t.Errorf("expected no batches for no tasks, got %d", len(batches))
	}
}

func batchIDs(batches [][]*models.Task) [][]string {
	var out [][]string
	for _, b := range batches {
		var ids []string
		for _, t := range b {
			ids = append(ids, t.ID)
		}
		out = append(out, ids)
	}
	return out
}
