package resolver

import (
	"errors"
	"testing"

	"github.com/ShayCichocki/warden/pkg/models"
)

// memArtifacts collects saved artifacts in memory.
type memArtifacts struct {
	saved []*Artifact
	err   error
}

func (m *memArtifacts) SaveArtifact(a *Artifact) error {
	if m.err != nil {
		return m.err
	}
	m.saved = append(m.saved, a)
	return nil
}

func TestResolve_DecisionTable(t *testing.T) {
	tests := []struct {
		name          string
		verdict       *models.Verdict
		budget        int
		lowConfidence bool
		want          Action
		wantArtifact  bool
	}{
		{
			name:         "blocked always escalates",
			verdict:      &models.Verdict{Type: models.VerdictBlocked},
			budget:       5,
			want:         ActionEscalate,
			wantArtifact: true,
		},
		{
			name:    "pass approves",
			verdict: &models.Verdict{Type: models.VerdictPass, SafeToMerge: true},
			budget:  5,
			want:    ActionApprove,
		},
		{
			name:    "safe fail with budget modifies",
			verdict: &models.Verdict{Type: models.VerdictFail, SafeToMerge: true},
			budget:  2,
			want:    ActionModify,
		},
		{
			name:         "regression escalates even with budget",
			verdict:      &models.Verdict{Type: models.VerdictFail, SafeToMerge: false, NewFailures: []string{"test: TestX"}},
			budget:       2,
			want:         ActionEscalate,
			wantArtifact: true,
		},
		{
			name:         "budget exhausted escalates",
			verdict:      &models.Verdict{Type: models.VerdictFail, SafeToMerge: true},
			budget:       0,
			want:         ActionEscalate,
			wantArtifact: true,
		},
		{
			name:          "low confidence forces escalation despite budget",
			verdict:       &models.Verdict{Type: models.VerdictFail, SafeToMerge: true},
			budget:        5,
			lowConfidence: true,
			want:          ActionEscalate,
			wantArtifact:  true,
		},
		{
			name:          "low confidence does not affect pass",
			verdict:       &models.Verdict{Type: models.VerdictPass, SafeToMerge: true},
			budget:        5,
			lowConfidence: true,
			want:          ActionApprove,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &memArtifacts{}
			r := New(store)
			task := &models.Task{ID: "t1", LowConfidence: tt.lowConfidence}

			decision, err := r.Resolve(task, tt.verdict, tt.budget)
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if decision.Action != tt.want {
				t.Errorf("Action = %q, want %q (%s)", decision.Action, tt.want, decision.Rationale)
			}
			if tt.wantArtifact && len(store.saved) != 1 {
				t.Errorf("saved %d artifacts, want 1", len(store.saved))
			}
			if !tt.wantArtifact && len(store.saved) != 0 {
				t.Errorf("saved %d artifacts, want none", len(store.saved))
			}
		})
	}
}

// BLOCKED verdicts never produce a modify decision, whatever the budget.
func TestResolve_BlockedNeverModifies(t *testing.T) {
	for _, budget := range []int{0, 1, 100} {
		store := &memArtifacts{}
		r := New(store)
		decision, err := r.Resolve(&models.Task{ID: "t1"}, &models.Verdict{Type: models.VerdictBlocked}, budget)
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if decision.Action == ActionModify {
			t.Fatalf("budget %d: BLOCKED produced modify", budget)
		}
	}
}

func TestResolve_ArtifactCarriesVerdict(t *testing.T) {
	store := &memArtifacts{}
	r := New(store)
	verdict := &models.Verdict{Type: models.VerdictBlocked, Steps: []models.StepResult{{Name: "guardrail"}}}

	if _, err := r.Resolve(&models.Task{ID: "t9"}, verdict, 3); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	artifact := store.saved[0]
	if artifact.TaskID != "t9" {
		t.Errorf("artifact.TaskID = %q", artifact.TaskID)
	}
	if artifact.Verdict != verdict {
		t.Error("artifact should reference the full verdict")
	}
	if artifact.Reason == "" || artifact.VerdictSummary == "" {
		t.Error("artifact should carry reason and summary")
	}
}

func TestResolve_ArtifactWriteFailure(t *testing.T) {
	r := New(&memArtifacts{err: errors.New("disk full")})
	_, err := r.Resolve(&models.Task{ID: "t1"}, &models.Verdict{Type: models.VerdictBlocked}, 1)
	if err == nil {
		t.Error("expected error when the artifact cannot be persisted")
	}
}

func TestResolve_UnknownVerdictType(t *testing.T) {
	r := New(&memArtifacts{})
	if _, err := r.Resolve(&models.Task{ID: "t1"}, &models.Verdict{Type: "MAYBE"}, 1); err == nil {
		t.Error("expected error for unknown verdict type")
	}
}

func TestIsResourceFailure(t *testing.T) {
	if IsResourceFailure(&models.Verdict{Type: models.VerdictBlocked}) {
		t.Error("guardrail BLOCKED is a policy event, not a resource failure")
	}
	if IsResourceFailure(&models.Verdict{Type: models.VerdictPass}) {
		t.Error("PASS is not a failure")
	}
	if !IsResourceFailure(&models.Verdict{Type: models.VerdictFail}) {
		t.Error("FAIL should count against the breaker")
	}
}
