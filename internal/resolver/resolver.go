// Package resolver converts non-passing verification outcomes into
// approve, modify, or escalate decisions.
package resolver

import (
	"fmt"
	"time"

	"github.com/ShayCichocki/warden/pkg/models"
)

// Action is the resolver's choice for one (task, verdict) pair.
type Action string

const (
	// ActionApprove commits the changeset and completes the task.
	ActionApprove Action = "approve"
	// ActionModify re-queues the task for another attempt.
	ActionModify Action = "modify"
	// ActionEscalate hands the task to a human reviewer.
	ActionEscalate Action = "escalate_to_human"
)

// Valid returns true if the action is a known value.
func (a Action) Valid() bool {
	switch a {
	case ActionApprove, ActionModify, ActionEscalate:
		return true
	default:
		return false
	}
}

// Decision is the immutable outcome of resolving one verdict.
type Decision struct {
	// Action is the chosen action.
	Action Action
	// Rationale explains the choice.
	Rationale string
	// TaskID references the task.
	TaskID string
	// Verdict references the verdict that was resolved.
	Verdict *models.Verdict
}

// Artifact is the durable record requesting human resolution of a blocked
// task. It is owned by the human-review collaborator until explicitly
// closed.
type Artifact struct {
	// TaskID is the blocked task.
	TaskID string `json:"task_id"`
	// Reason summarizes why human review is required.
	Reason string `json:"reason"`
	// VerdictSummary is a short description of the triggering verdict.
	VerdictSummary string `json:"verdict_summary"`
	// Verdict is the full verdict for reviewer context.
	Verdict *models.Verdict `json:"verdict"`
	// CreatedAt is when the artifact was produced.
	CreatedAt time.Time `json:"created_at"`
}

// ArtifactWriter persists escalation artifacts.
type ArtifactWriter interface {
	SaveArtifact(a *Artifact) error
}

// Resolver maps (task, verdict, remaining budget, low-confidence flag)
// tuples to exactly one decision.
type Resolver struct {
	artifacts ArtifactWriter
}

// New creates a Resolver writing artifacts through the given writer.
func New(artifacts ArtifactWriter) *Resolver {
	return &Resolver{artifacts: artifacts}
}

// Resolve returns the decision for the verdict.
//
// BLOCKED always escalates: guardrail violations are terminal and
// human-only; they never produce modify. PASS approves. FAIL modifies only
// when it is safe to merge, budget remains, and the task's classification
// was confident; anything else escalates. Every escalation writes one
// durable artifact.
func (r *Resolver) Resolve(task *models.Task, verdict *models.Verdict, remainingBudget int) (*Decision, error) {
	decision := &Decision{TaskID: task.ID, Verdict: verdict}

	switch verdict.Type {
	case models.VerdictBlocked:
		decision.Action = ActionEscalate
		decision.Rationale = "guardrail violation; terminal and human-only"

	case models.VerdictPass:
		decision.Action = ActionApprove
		decision.Rationale = "all checks passed with no regressions"

	case models.VerdictFail:
		switch {
		case task.LowConfidence:
			decision.Action = ActionEscalate
			decision.Rationale = "low-confidence classification with a non-passing verdict"
		case !verdict.SafeToMerge:
			decision.Action = ActionEscalate
			decision.Rationale = "regression detected: " + verdict.Summary()
		case remainingBudget <= 0:
			decision.Action = ActionEscalate
			decision.Rationale = "iteration budget exhausted"
		default:
			decision.Action = ActionModify
			decision.Rationale = "pre-existing failures only; retrying within budget"
		}

	default:
		return nil, fmt.Errorf("unknown verdict type %q", verdict.Type)
	}

	if decision.Action == ActionEscalate {
		artifact := &Artifact{
			TaskID:         task.ID,
			Reason:         decision.Rationale,
			VerdictSummary: verdict.Summary(),
			Verdict:        verdict,
			CreatedAt:      time.Now(),
		}
		if err := r.artifacts.SaveArtifact(artifact); err != nil {
			return nil, fmt.Errorf("save escalation artifact for task %s: %w", task.ID, err)
		}
	}

	return decision, nil
}

// IsResourceFailure reports whether a verdict should count against the
// circuit breaker. Guardrail BLOCKED is a policy event, not a
// resource-health signal, so it never trips the breaker.
func IsResourceFailure(verdict *models.Verdict) bool {
	return verdict.Type == models.VerdictFail
}
