// Package state provides SQLite-based persistence for Warden.
package state

import (
	"io"
	"time"

	"github.com/ShayCichocki/warden/internal/analyzer"
	"github.com/ShayCichocki/warden/internal/breaker"
	"github.com/ShayCichocki/warden/internal/resolver"
	"github.com/ShayCichocki/warden/pkg/models"
)

// TaskStore handles task persistence operations.
type TaskStore interface {
	CreateTask(t *models.Task) error
	GetTask(id string) (*models.Task, error)
	UpdateTask(t *models.Task) error
	ListTasks(status *models.TaskStatus) ([]models.Task, error)
	ListPendingTasks() ([]models.Task, error)
}

// SessionStore handles worker-session persistence operations.
type SessionStore interface {
	CreateWorkerSession(s *models.WorkerSession) error
	GetWorkerSession(id string) (*models.WorkerSession, error)
	UpdateWorkerSession(s *models.WorkerSession) error
	ListSessionsByTask(taskID string) ([]models.WorkerSession, error)
}

// BreakerStore persists circuit-breaker snapshots across restarts.
type BreakerStore interface {
	SaveBreakerSnapshots(snaps []breaker.Snapshot) error
	LoadBreakerSnapshots() ([]breaker.Snapshot, error)
}

// ArtifactStore persists escalation artifacts.
type ArtifactStore interface {
	resolver.ArtifactWriter
	ListOpenArtifacts() ([]EscalationRecord, error)
	ListArtifactsByTask(taskID string) ([]EscalationRecord, error)
	CloseArtifact(id int64) error
}

// CheckpointStore records iteration checkpoints.
type CheckpointStore interface {
	BeginIteration(number int, startedAt time.Time) error
	CompleteIteration(it *Iteration) error
	LastIteration() (*Iteration, error)
}

// Migrator handles database schema migrations.
type Migrator interface {
	// Migrate applies all pending schema migrations.
	Migrate() error
}

// Store defines the full persistence surface the control loop depends on.
// It composes focused sub-interfaces so components can depend on only the
// stores they use.
type Store interface {
	io.Closer
	Migrator
	TaskStore
	SessionStore
	BreakerStore
	ArtifactStore
	CheckpointStore
}

// Compile-time verification that DB implements all interfaces.
var (
	_ Store           = (*DB)(nil)
	_ Migrator        = (*DB)(nil)
	_ TaskStore       = (*DB)(nil)
	_ SessionStore    = (*DB)(nil)
	_ BreakerStore    = (*DB)(nil)
	_ ArtifactStore   = (*DB)(nil)
	_ CheckpointStore = (*DB)(nil)

	_ analyzer.HistoryProvider = (*DB)(nil)
)
