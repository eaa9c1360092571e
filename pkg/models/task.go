package models

import "time"

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	// TaskStatusPending indicates the task is queued and not yet dispatched.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusInProgress indicates a worker session is attempting the task.
	TaskStatusInProgress TaskStatus = "in_progress"
	// TaskStatusCompleted indicates the task's changeset was approved.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusBlocked indicates the task is awaiting human resolution.
	TaskStatusBlocked TaskStatus = "blocked"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted, TaskStatusBlocked:
		return true
	default:
		return false
	}
}

// Terminal returns true for statuses that end the task's lifecycle.
// Blocked is terminal from the control loop's perspective: only an external
// human action re-queues a blocked task as pending.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusBlocked
}

// ValidTransition reports whether the status transition is allowed.
// The graph is pending -> in_progress -> {completed | blocked}, plus the
// modify re-queue edge in_progress -> pending.
func ValidTransition(from, to TaskStatus) bool {
	switch from {
	case TaskStatusPending:
		return to == TaskStatusInProgress
	case TaskStatusInProgress:
		return to == TaskStatusCompleted || to == TaskStatusBlocked || to == TaskStatusPending
	default:
		return false
	}
}

// Task represents a unit of work routed through the governance loop.
type Task struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// Title is the short description of the task.
	Title string `json:"title"`
	// Description provides detailed information about the task.
	Description string `json:"description,omitempty"`
	// Priority orders tasks within an iteration; higher runs first.
	Priority int `json:"priority"`
	// Status is the current state of the task.
	Status TaskStatus `json:"status"`
	// Tier is the capability tier assigned by the analyzer.
	Tier Tier `json:"tier,omitempty"`
	// Actor identifies who the work is performed on behalf of.
	// It forms half of the circuit breaker key.
	Actor string `json:"actor,omitempty"`
	// ResourceScope names the protected downstream resource the task
	// touches. It forms the other half of the circuit breaker key.
	ResourceScope string `json:"resource_scope,omitempty"`
	// FilePatterns are path hints used for overlap serialization.
	FilePatterns []string `json:"file_patterns,omitempty"`
	// IterationCount is the number of verification attempts so far.
	IterationCount int `json:"iteration_count,omitempty"`
	// LowConfidence marks tasks the analyzer could not classify reliably.
	LowConfidence bool `json:"low_confidence,omitempty"`
	// BlockedReason explains why the task entered the blocked state.
	BlockedReason string `json:"blocked_reason,omitempty"`
	// CreatedAt is when the task was created.
	CreatedAt time.Time `json:"created_at"`
	// CompletedAt is when the task reached a terminal state, if it has.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	// Error holds the most recent failure summary for the task.
	Error string `json:"error,omitempty"`
}

// BreakerKey returns the (actor, resource scope) pair for this task.
func (t *Task) BreakerKey() (actor, scope string) {
	actor = t.Actor
	if actor == "" {
		actor = "default"
	}
	scope = t.ResourceScope
	if scope == "" {
		scope = "default"
	}
	return actor, scope
}
