package loop

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ShayCichocki/warden/internal/analyzer"
	"github.com/ShayCichocki/warden/internal/breaker"
	"github.com/ShayCichocki/warden/internal/resolver"
	"github.com/ShayCichocki/warden/internal/state"
	"github.com/ShayCichocki/warden/internal/verify"
	"github.com/ShayCichocki/warden/internal/worker"
	"github.com/ShayCichocki/warden/pkg/models"
)

// Outcome is the loop's terminal result.
type Outcome string

const (
	// OutcomeCompleted means every task reached a terminal status.
	OutcomeCompleted Outcome = "completed"
	// OutcomeIterationBudgetExhausted means pending tasks remain after the
	// last allowed iteration.
	OutcomeIterationBudgetExhausted Outcome = "iteration_budget_exhausted"
	// OutcomeCircuitOpenPaused means every remaining task sits behind an
	// open breaker; the loop pauses rather than spin.
	OutcomeCircuitOpenPaused Outcome = "circuit_open_paused"
	// OutcomeFatalError means the loop stopped on an unrecoverable error.
	OutcomeFatalError Outcome = "fatal_error"
)

// Verifier produces exactly one verdict per (changeset, baseline) pair.
// Satisfied by verify.Engine.
type Verifier interface {
	Verify(ctx context.Context, cs *models.Changeset, dir string, baseline *verify.Baseline) *models.Verdict
}

// Config holds loop construction parameters.
type Config struct {
	// Store persists tasks, sessions, breaker state, and checkpoints.
	Store state.Store
	// Analyzer classifies unclassified tasks.
	Analyzer *analyzer.Analyzer
	// Breaker gates dispatch per (actor, resource scope) key.
	Breaker *breaker.Breaker
	// Controller runs worker sessions.
	Controller *worker.Controller
	// Verifier verifies completed sessions' changesets.
	Verifier Verifier
	// Resolver maps verdicts to decisions.
	Resolver *resolver.Resolver
	// Baseline is the known-failure baseline verdicts are compared against.
	Baseline *verify.Baseline
	// ProjectRoot is where approved changesets are applied. Empty skips
	// application (dry runs and tests).
	ProjectRoot string

	// MaxIterations bounds iterations for this run.
	MaxIterations int
	// MaxParallel bounds concurrent sessions per batch.
	MaxParallel int
	// TaskBudget is the per-task verification attempt budget.
	TaskBudget int
	// BatchTimeout bounds each dispatched batch's wall-clock time.
	BatchTimeout time.Duration

	// Logger receives debug output; nil means no logging.
	Logger *DebugLogger
	// Events receives loop events; nil means no event stream.
	Events *EventEmitter
}

// Result is the loop's terminal report.
type Result struct {
	// Outcome is the terminal outcome.
	Outcome Outcome
	// Iterations is how many iterations this run executed.
	Iterations int
}

// Loop is the governance control loop.
type Loop struct {
	cfg Config
}

// New creates a Loop. Store, Breaker, Controller, Verifier, and Resolver
// are required; Analyzer may be nil when every task arrives pre-tiered.
func New(cfg Config) (*Loop, error) {
	if cfg.Store == nil {
		return nil, errors.New("loop: Store is required")
	}
	if cfg.Breaker == nil {
		return nil, errors.New("loop: Breaker is required")
	}
	if cfg.Controller == nil {
		return nil, errors.New("loop: Controller is required")
	}
	if cfg.Verifier == nil {
		return nil, errors.New("loop: Verifier is required")
	}
	if cfg.Resolver == nil {
		return nil, errors.New("loop: Resolver is required")
	}
	if cfg.MaxIterations < 1 {
		cfg.MaxIterations = 10
	}
	if cfg.MaxParallel < 1 {
		cfg.MaxParallel = 3
	}
	if cfg.TaskBudget < 1 {
		cfg.TaskBudget = 3
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 30 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = NopLogger()
	}
	return &Loop{cfg: cfg}, nil
}

// Run executes iterations until every task is terminal, the iteration
// budget runs out, every remaining task is behind an open breaker, or a
// fatal error occurs. Breaker state is restored at start and checkpointed
// after every iteration, so open breakers survive restarts.
func (l *Loop) Run(ctx context.Context) (*Result, error) {
	snaps, err := l.cfg.Store.LoadBreakerSnapshots()
	if err != nil {
		return l.fatal(0, err)
	}
	if len(snaps) > 0 {
		l.cfg.Breaker.Restore(snaps)
		l.cfg.Logger.Log("restored %d breaker keys from checkpoint", len(snaps))
	}

	startIter := 1
	if last, err := l.cfg.Store.LastIteration(); err != nil {
		return l.fatal(0, err)
	} else if last != nil {
		startIter = last.Number + 1
	}

	ran := 0
	for n := 0; n < l.cfg.MaxIterations; n++ {
		if err := ctx.Err(); err != nil {
			return l.fatal(ran, err)
		}
		iter := startIter + n

		pending, err := l.cfg.Store.ListPendingTasks()
		if err != nil {
			return l.fatal(ran, err)
		}
		if len(pending) == 0 {
			return l.finish(OutcomeCompleted, ran)
		}

		outcome, err := l.runIteration(ctx, iter, pending)
		if err != nil {
			return l.fatal(ran, err)
		}
		ran++
		if outcome == OutcomeCircuitOpenPaused {
			return l.finish(OutcomeCircuitOpenPaused, ran)
		}
	}

	pending, err := l.cfg.Store.ListPendingTasks()
	if err != nil {
		return l.fatal(ran, err)
	}
	if len(pending) == 0 {
		return l.finish(OutcomeCompleted, ran)
	}
	return l.finish(OutcomeIterationBudgetExhausted, ran)
}

// runIteration executes one full iteration: classify, admit, dispatch in
// overlap-serialized batches, verify, resolve, checkpoint.
func (l *Loop) runIteration(ctx context.Context, iter int, pending []models.Task) (Outcome, error) {
	l.cfg.Logger.Log("iteration %d: %d pending tasks", iter, len(pending))
	if err := l.cfg.Store.BeginIteration(iter, time.Now()); err != nil {
		return "", err
	}
	l.emit(Event{Type: EventIterationStarted, Iteration: iter,
		Message: fmt.Sprintf("%d pending tasks", len(pending)), Timestamp: time.Now()})

	record := &state.Iteration{Number: iter}

	tasks := make([]*models.Task, len(pending))
	for i := range pending {
		tasks[i] = &pending[i]
	}
	if err := l.classify(iter, tasks); err != nil {
		return "", err
	}

	admitted := l.admit(iter, tasks)
	if len(admitted) == 0 {
		l.cfg.Logger.Log("iteration %d: all %d tasks deferred by open breakers", iter, len(tasks))
		if err := l.checkpoint(record, string(OutcomeCircuitOpenPaused)); err != nil {
			return "", err
		}
		return OutcomeCircuitOpenPaused, nil
	}

	for _, batch := range worker.PlanBatches(admitted, l.cfg.MaxParallel) {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		handles := make([]*worker.Handle, 0, len(batch))
		for _, task := range batch {
			task.Status = models.TaskStatusInProgress
			if err := l.cfg.Store.UpdateTask(task); err != nil {
				return "", err
			}
			h := l.cfg.Controller.Spawn(ctx, task, "", task.Tier)
			handles = append(handles, h)
			record.TasksDispatched++
			l.cfg.Logger.Log("iteration %d: dispatched task %s to worker %s (tier %s)", iter, task.ID, h.WorkerID, task.Tier)
			l.emit(Event{Type: EventTaskDispatched, TaskID: task.ID, TaskTitle: task.Title,
				WorkerID: h.WorkerID, Iteration: iter, Timestamp: time.Now()})
		}

		l.cfg.Controller.WaitForAll(ctx, handles, l.cfg.BatchTimeout)

		for _, h := range handles {
			if err := l.resolveSession(ctx, iter, h, record); err != nil {
				return "", err
			}
		}
	}

	if err := l.checkpoint(record, "iteration_complete"); err != nil {
		return "", err
	}
	return "", nil
}

// classify runs the analyzer over tasks that have no tier yet.
func (l *Loop) classify(iter int, tasks []*models.Task) error {
	for _, task := range tasks {
		if task.Tier != "" || l.cfg.Analyzer == nil {
			continue
		}
		assessment := l.cfg.Analyzer.Analyze(task)
		task.Tier = assessment.Tier
		task.LowConfidence = assessment.LowConfidence
		if err := l.cfg.Store.UpdateTask(task); err != nil {
			return err
		}
		l.cfg.Logger.Log("iteration %d: task %s classified %s (%s)", iter, task.ID, assessment.Tier, assessment.Reason)
		l.emit(Event{Type: EventTaskClassified, TaskID: task.ID, TaskTitle: task.Title,
			Iteration: iter, Message: string(assessment.Tier), Timestamp: time.Now()})
	}
	return nil
}

// admit filters tasks through the breaker. Allow is called once per key
// per iteration: a half-open key grants its single probe to the
// highest-priority task for that key and defers the rest, so concurrent
// tasks never consume more than one probe.
func (l *Loop) admit(iter int, tasks []*models.Task) []*models.Task {
	type grant struct {
		allowed   bool
		probeOnly bool
		used      bool
	}
	grants := make(map[breaker.Key]*grant)

	var admitted []*models.Task
	for _, task := range tasks {
		actor, scope := task.BreakerKey()
		key := breaker.Key{Actor: actor, Scope: scope}

		g, ok := grants[key]
		if !ok {
			allowed := l.cfg.Breaker.Allow(key)
			g = &grant{
				allowed:   allowed,
				probeOnly: allowed && l.cfg.Breaker.StateOf(key) == breaker.StateHalfOpen,
			}
			grants[key] = g
		}

		if !g.allowed || (g.probeOnly && g.used) {
			l.cfg.Logger.Log("iteration %d: task %s deferred, breaker %s/%s is %s", iter, task.ID, key.Actor, key.Scope, l.cfg.Breaker.StateOf(key))
			l.emit(Event{Type: EventTaskDeferred, TaskID: task.ID, TaskTitle: task.Title,
				Iteration: iter, Message: fmt.Sprintf("breaker %s/%s", key.Actor, key.Scope), Timestamp: time.Now()})
			continue
		}
		g.used = true
		admitted = append(admitted, task)
	}
	return admitted
}

// resolveSession verifies one resolved session and applies the resolver's
// decision to its task.
func (l *Loop) resolveSession(ctx context.Context, iter int, h *worker.Handle, record *state.Iteration) error {
	session := h.Session()
	if err := l.cfg.Store.CreateWorkerSession(session); err != nil {
		return err
	}

	task := h.Task
	actor, scope := task.BreakerKey()
	key := breaker.Key{Actor: actor, Scope: scope}

	var verdict *models.Verdict
	if session.Status == models.SessionCompleted {
		verdict = l.cfg.Verifier.Verify(ctx, session.Changeset, session.WorkspacePath, l.cfg.Baseline)
	} else {
		verdict = sessionFailureVerdict(session)
	}

	task.IterationCount++
	remaining := l.cfg.TaskBudget - task.IterationCount
	decision, err := l.cfg.Resolver.Resolve(task, verdict, remaining)
	if err != nil {
		return err
	}
	l.cfg.Logger.Log("iteration %d: task %s verdict %s -> %s (%s)", iter, task.ID, verdict.Type, decision.Action, decision.Rationale)

	// Breaker accounting: PASS heals, FAIL counts against the key.
	// Guardrail BLOCKED is a policy event and leaves the breaker alone.
	switch {
	case verdict.Type == models.VerdictPass:
		l.cfg.Breaker.RecordSuccess(key)
	case resolver.IsResourceFailure(verdict):
		wasOpen := l.cfg.Breaker.StateOf(key) == breaker.StateOpen
		l.cfg.Breaker.RecordFailure(key)
		if !wasOpen && l.cfg.Breaker.StateOf(key) == breaker.StateOpen {
			l.cfg.Logger.Log("iteration %d: breaker %s/%s opened", iter, key.Actor, key.Scope)
			l.emit(Event{Type: EventBreakerOpened, Iteration: iter,
				Message: fmt.Sprintf("%s/%s", key.Actor, key.Scope), Timestamp: time.Now()})
		}
	}

	now := time.Now()
	switch decision.Action {
	case resolver.ActionApprove:
		if l.cfg.ProjectRoot != "" {
			if err := worker.ApplyChangeset(worker.Dir(l.cfg.ProjectRoot), session.Changeset); err != nil {
				return fmt.Errorf("apply approved changeset for task %s: %w", task.ID, err)
			}
		}
		task.Status = models.TaskStatusCompleted
		task.CompletedAt = &now
		task.Error = ""
		record.TasksCompleted++
		l.emit(Event{Type: EventTaskCompleted, TaskID: task.ID, TaskTitle: task.Title,
			WorkerID: session.ID, Iteration: iter, Timestamp: now})

	case resolver.ActionModify:
		task.Status = models.TaskStatusPending
		task.Error = verdict.Summary()
		l.emit(Event{Type: EventTaskRequeued, TaskID: task.ID, TaskTitle: task.Title,
			WorkerID: session.ID, Iteration: iter, Message: verdict.Summary(), Timestamp: now})

	case resolver.ActionEscalate:
		task.Status = models.TaskStatusBlocked
		task.BlockedReason = decision.Rationale
		task.CompletedAt = &now
		task.Error = verdict.Summary()
		record.TasksBlocked++
		l.emit(Event{Type: EventTaskBlocked, TaskID: task.ID, TaskTitle: task.Title,
			WorkerID: session.ID, Iteration: iter, Message: decision.Rationale, Timestamp: now})
	}

	if err := l.cfg.Store.UpdateTask(task); err != nil {
		return err
	}

	// The snapshot served its purpose once the verdict is resolved.
	if session.WorkspacePath != "" {
		os.RemoveAll(session.WorkspacePath)
	}
	return nil
}

// sessionFailureVerdict synthesizes a verdict for sessions that never
// produced a verifiable changeset. Nothing was merged, so it is safe and
// retries within budget apply; a task that keeps timing out escalates
// when the budget runs out.
func sessionFailureVerdict(session *models.WorkerSession) *models.Verdict {
	return &models.Verdict{
		Type:        models.VerdictFail,
		SafeToMerge: true,
		Steps: []models.StepResult{{
			Name:   "session",
			Passed: false,
			Output: fmt.Sprintf("session %s: %s", session.Status, session.Error),
		}},
		CreatedAt: time.Now(),
	}
}

// checkpoint completes the iteration record and persists breaker state.
func (l *Loop) checkpoint(record *state.Iteration, outcome string) error {
	now := time.Now()
	record.CompletedAt = &now
	record.Outcome = outcome
	if err := l.cfg.Store.CompleteIteration(record); err != nil {
		return err
	}
	return l.cfg.Store.SaveBreakerSnapshots(l.cfg.Breaker.SnapshotAll())
}

func (l *Loop) finish(outcome Outcome, iterations int) (*Result, error) {
	l.cfg.Logger.Log("loop done: %s after %d iterations", outcome, iterations)
	l.emit(Event{Type: EventLoopDone, Message: string(outcome), Timestamp: time.Now()})
	return &Result{Outcome: outcome, Iterations: iterations}, nil
}

func (l *Loop) fatal(iterations int, err error) (*Result, error) {
	l.cfg.Logger.Log("loop fatal after %d iterations: %v", iterations, err)
	l.emit(Event{Type: EventLoopDone, Message: string(OutcomeFatalError), Timestamp: time.Now()})
	return &Result{Outcome: OutcomeFatalError, Iterations: iterations}, err
}

func (l *Loop) emit(e Event) {
	if l.cfg.Events != nil {
		l.cfg.Events.Emit(e)
	}
}
