package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/ShayCichocki/warden/pkg/models"
)

// Handle tracks one spawned session until it resolves.
type Handle struct {
	// WorkerID identifies the session.
	WorkerID string
	// Task is the task being attempted.
	Task *models.Task

	done    chan struct{}
	cancel  context.CancelFunc
	mu      sync.Mutex
	session *models.WorkerSession
}

// Session returns the resolved session. Valid only after the handle's done
// channel closes (WaitForAll guarantees this for returned statuses).
func (h *Handle) Session() *models.WorkerSession {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.session
}

// Controller bounds session concurrency, isolates worker state, and
// enforces per-session wall-clock timeouts.
type Controller struct {
	runner      SessionRunner
	snapshotter Snapshotter
	sem         *semaphore.Weighted

	// timeouts maps capability tier to the session wall-clock timeout.
	timeouts map[models.Tier]time.Duration
	// defaultTimeout applies to tiers without an entry.
	defaultTimeout time.Duration
}

// Config holds controller construction parameters.
type Config struct {
	// MaxWorkers caps concurrently executing sessions.
	MaxWorkers int
	// Runner executes sessions.
	Runner SessionRunner
	// Snapshotter produces isolated workspaces.
	Snapshotter Snapshotter
	// Timeouts are per-tier session timeouts.
	Timeouts map[models.Tier]time.Duration
	// DefaultTimeout applies when a tier has no entry. Zero means no
	// per-session timeout; the batch timeout still applies.
	DefaultTimeout time.Duration
}

// NewController creates a Controller.
func NewController(cfg Config) (*Controller, error) {
	if cfg.Runner == nil {
		return nil, errors.New("worker: Runner is required")
	}
	if cfg.Snapshotter == nil {
		return nil, errors.New("worker: Snapshotter is required")
	}
	max := cfg.MaxWorkers
	if max < 1 {
		max = 1
	}
	return &Controller{
		runner:         cfg.Runner,
		snapshotter:    cfg.Snapshotter,
		sem:            semaphore.NewWeighted(int64(max)),
		timeouts:       cfg.Timeouts,
		defaultTimeout: cfg.DefaultTimeout,
	}, nil
}

// timeoutFor returns the wall-clock timeout for a tier.
func (c *Controller) timeoutFor(tier models.Tier) time.Duration {
	if d, ok := c.timeouts[tier]; ok {
		return d
	}
	return c.defaultTimeout
}

// Spawn starts a session for the task and returns its handle. The session
// runs in its own workspace snapshot; a session exceeding its timeout is
// marked timed_out and its changeset is discarded, never verified.
// Pass an empty workerID to have one generated.
func (c *Controller) Spawn(ctx context.Context, task *models.Task, workerID string, tier models.Tier) *Handle {
	if workerID == "" {
		workerID = uuid.New().String()[:8]
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	h := &Handle{
		WorkerID: workerID,
		Task:     task,
		done:     make(chan struct{}),
		cancel:   cancel,
	}

	go func() {
		defer close(h.done)
		session := c.runSession(sessionCtx, task, workerID, tier)
		h.mu.Lock()
		h.session = session
		h.mu.Unlock()
	}()

	return h
}

// runSession acquires a pool slot, snapshots a workspace, and executes the
// runner under the tier timeout.
func (c *Controller) runSession(ctx context.Context, task *models.Task, workerID string, tier models.Tier) *models.WorkerSession {
	session := &models.WorkerSession{
		ID:        workerID,
		TaskID:    task.ID,
		StartedAt: time.Now(),
	}
	finish := func(status models.SessionStatus) *models.WorkerSession {
		now := time.Now()
		session.CompletedAt = &now
		session.Status = status
		return session
	}

	if err := c.sem.Acquire(ctx, 1); err != nil {
		session.Error = fmt.Sprintf("acquire worker slot: %v", err)
		return finish(models.SessionFailed)
	}
	defer c.sem.Release(1)

	ws, err := c.snapshotter.Snapshot(task.ID)
	if err != nil {
		session.Error = fmt.Sprintf("snapshot workspace: %v", err)
		return finish(models.SessionFailed)
	}
	session.WorkspacePath = ws.Path()

	runCtx := ctx
	if timeout := c.timeoutFor(tier); timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cs, err := c.runner.Run(runCtx, task, tier, ws.Path())
	if err != nil {
		// Timed-out output is discarded; the snapshot goes with it.
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			session.Error = "session exceeded wall-clock timeout"
			ws.Discard()
			session.WorkspacePath = ""
			return finish(models.SessionTimedOut)
		}
		session.Error = err.Error()
		return finish(models.SessionFailed)
	}

	if err := ApplyChangeset(ws, cs); err != nil {
		session.Error = fmt.Sprintf("apply changeset: %v", err)
		return finish(models.SessionFailed)
	}
	session.Changeset = cs
	return finish(models.SessionCompleted)
}

// WaitForAll blocks until every handle resolves or the batch timeout
// elapses, then returns each worker's terminal status. Handles still
// running at the deadline are cancelled and reported timed_out; their
// changesets are discarded.
func (c *Controller) WaitForAll(ctx context.Context, handles []*Handle, timeout time.Duration) map[string]models.SessionStatus {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	statuses := make(map[string]models.SessionStatus, len(handles))
	for _, h := range handles {
		select {
		case <-h.done:
		case <-deadline.C:
			c.cancelRemaining(handles, statuses)
			return statuses
		case <-ctx.Done():
			c.cancelRemaining(handles, statuses)
			return statuses
		}
		statuses[h.WorkerID] = h.Session().Status
	}
	return statuses
}

// cancelRemaining cancels every unresolved handle and marks it timed_out.
func (c *Controller) cancelRemaining(handles []*Handle, statuses map[string]models.SessionStatus) {
	for _, h := range handles {
		if _, ok := statuses[h.WorkerID]; ok {
			continue
		}
		h.cancel()
		<-h.done
		session := h.Session()
		if session.Status == models.SessionCompleted {
			// Resolved in the race window; keep the real outcome.
			statuses[h.WorkerID] = session.Status
			continue
		}
		session.Status = models.SessionTimedOut
		session.Changeset = nil
		session.Error = "batch timeout exceeded"
		statuses[h.WorkerID] = models.SessionTimedOut
	}
}
