package models

import "time"

// SessionStatus is the terminal state of a worker session.
type SessionStatus string

const (
	// SessionCompleted indicates the session produced a changeset.
	SessionCompleted SessionStatus = "completed"
	// SessionEscalated indicates the session's outcome required human review.
	SessionEscalated SessionStatus = "escalated"
	// SessionFailed indicates the session terminated with an error.
	SessionFailed SessionStatus = "failed"
	// SessionTimedOut indicates the session exceeded its wall-clock timeout.
	// Its changeset, if any, is discarded.
	SessionTimedOut SessionStatus = "timed_out"
)

// Valid returns true if the status is a known value.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionCompleted, SessionEscalated, SessionFailed, SessionTimedOut:
		return true
	default:
		return false
	}
}

// FileChange is one proposed modification within a changeset.
type FileChange struct {
	// Path is the repository-relative file path.
	Path string `json:"path"`
	// Content is the full proposed file content. Ignored when Delete is set.
	Content string `json:"content,omitempty"`
	// Delete indicates the file should be removed.
	Delete bool `json:"delete,omitempty"`
}

// Changeset is the set of proposed changes produced by one worker session.
// It is exclusively owned by the session until the session resolves, then
// transferred to the verification engine or discarded on timeout.
type Changeset struct {
	// Files lists the proposed file changes.
	Files []FileChange `json:"files"`
}

// Paths returns the paths touched by the changeset.
func (c *Changeset) Paths() []string {
	paths := make([]string, 0, len(c.Files))
	for _, f := range c.Files {
		paths = append(paths, f.Path)
	}
	return paths
}

// Empty returns true if the changeset proposes no changes.
func (c *Changeset) Empty() bool {
	return c == nil || len(c.Files) == 0
}

// WorkerSession is one isolated, time-bounded execution unit attempting a
// task.
type WorkerSession struct {
	// ID is the worker identifier.
	ID string `json:"id"`
	// TaskID is the task this session is attempting.
	TaskID string `json:"task_id"`
	// StartedAt is when the session began.
	StartedAt time.Time `json:"started_at"`
	// CompletedAt is when the session resolved, if it has.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	// Status is the session's terminal status.
	Status SessionStatus `json:"status,omitempty"`
	// WorkspacePath is the session's isolated workspace snapshot.
	WorkspacePath string `json:"workspace_path,omitempty"`
	// Changeset is the proposed change, nil until the session completes
	// and nil again after a timeout discards it.
	Changeset *Changeset `json:"changeset,omitempty"`
	// Error holds the session error, if any.
	Error string `json:"error,omitempty"`
}
