package loop

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ShayCichocki/warden/internal/breaker"
	"github.com/ShayCichocki/warden/internal/resolver"
	"github.com/ShayCichocki/warden/internal/state"
	"github.com/ShayCichocki/warden/internal/verify"
	"github.com/ShayCichocki/warden/internal/worker"
	"github.com/ShayCichocki/warden/pkg/models"
)

// echoRunner produces one file per task.
type echoRunner struct{}

func (echoRunner) Run(_ context.Context, task *models.Task, _ models.Tier, _ string) (*models.Changeset, error) {
	return &models.Changeset{Files: []models.FileChange{
		{Path: "out/" + task.ID + ".txt", Content: "done " + task.ID},
	}}, nil
}

// scriptedVerifier returns per-task verdict sequences; the last verdict
// repeats once the script runs out.
type scriptedVerifier struct {
	mu      sync.Mutex
	scripts map[string][]*models.Verdict
	calls   map[string]int
}

func newScriptedVerifier() *scriptedVerifier {
	return &scriptedVerifier{
		scripts: make(map[string][]*models.Verdict),
		calls:   make(map[string]int),
	}
}

func (v *scriptedVerifier) script(taskID string, verdicts ...*models.Verdict) {
	v.scripts[taskID] = verdicts
}

func (v *scriptedVerifier) Verify(_ context.Context, cs *models.Changeset, _ string, _ *verify.Baseline) *models.Verdict {
	v.mu.Lock()
	defer v.mu.Unlock()

	// The changeset identifies its task through the file it writes.
	taskID := ""
	if !cs.Empty() {
		name := filepath.Base(cs.Files[0].Path)
		taskID = name[:len(name)-len(".txt")]
	}
	script := v.scripts[taskID]
	if len(script) == 0 {
		return &models.Verdict{Type: models.VerdictPass, SafeToMerge: true, CreatedAt: time.Now()}
	}
	i := v.calls[taskID]
	v.calls[taskID]++
	if i >= len(script) {
		i = len(script) - 1
	}
	return script[i]
}

func pass() *models.Verdict {
	return &models.Verdict{Type: models.VerdictPass, SafeToMerge: true, CreatedAt: time.Now()}
}

func safeFail() *models.Verdict {
	return &models.Verdict{
		Type: models.VerdictFail, SafeToMerge: true,
		Steps:     []models.StepResult{{Name: "test", Passed: false}},
		CreatedAt: time.Now(),
	}
}

func blocked() *models.Verdict {
	return &models.Verdict{
		Type: models.VerdictBlocked,
		Steps: []models.StepResult{{
			Name: "guardrail", Passed: false, Output: "auth/token.go: protected path",
		}},
		CreatedAt: time.Now(),
	}
}

type harness struct {
	db       *state.DB
	breaker  *breaker.Breaker
	verifier *scriptedVerifier
	root     string
	loop     *Loop
}

type harnessOpts struct {
	maxIterations    int
	taskBudget       int
	failureThreshold int
	runner           worker.SessionRunner
}

func newHarness(t *testing.T, opts harnessOpts) *harness {
	t.Helper()

	db, err := state.Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("open state db: %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	threshold := opts.failureThreshold
	if threshold == 0 {
		threshold = 100
	}
	brk := breaker.New(breaker.Config{FailureThreshold: threshold, CoolDown: time.Hour})

	runner := opts.runner
	if runner == nil {
		runner = echoRunner{}
	}
	source := t.TempDir()
	controller, err := worker.NewController(worker.Config{
		MaxWorkers:     2,
		Runner:         runner,
		Snapshotter:    &worker.DirSnapshotter{Source: source, BaseDir: t.TempDir()},
		DefaultTimeout: time.Minute,
	})
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}

	verifier := newScriptedVerifier()
	root := t.TempDir()

	lp, err := New(Config{
		Store:         db,
		Breaker:       brk,
		Controller:    controller,
		Verifier:      verifier,
		Resolver:      resolver.New(db),
		ProjectRoot:   root,
		MaxIterations: opts.maxIterations,
		TaskBudget:    opts.taskBudget,
		MaxParallel:   2,
		BatchTimeout:  30 * time.Second,
	})
	if err != nil {
		t.Fatalf("new loop: %v", err)
	}

	return &harness{db: db, breaker: brk, verifier: verifier, root: root, loop: lp}
}

func (h *harness) addTask(t *testing.T, task *models.Task) {
	t.Helper()
	if task.Status == "" {
		task.Status = models.TaskStatusPending
	}
	if task.Tier == "" {
		task.Tier = models.TierBuilder
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}
	if err := h.db.CreateTask(task); err != nil {
		t.Fatalf("create task: %v", err)
	}
}

func (h *harness) task(t *testing.T, id string) *models.Task {
	t.Helper()
	task, err := h.db.GetTask(id)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if task == nil {
		t.Fatalf("task %s not found", id)
	}
	return task
}

func TestLoop_CompletesAllTasks(t *testing.T) {
	h := newHarness(t, harnessOpts{maxIterations: 5, taskBudget: 3})
	h.addTask(t, &models.Task{ID: "t1", Title: "first"})
	h.addTask(t, &models.Task{ID: "t2", Title: "second"})

	result, err := h.loop.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Outcome != OutcomeCompleted {
		t.Fatalf("outcome = %q, want completed", result.Outcome)
	}
	if result.Iterations != 1 {
		t.Errorf("iterations = %d, want 1", result.Iterations)
	}

	for _, id := range []string{"t1", "t2"} {
		task := h.task(t, id)
		if task.Status != models.TaskStatusCompleted {
			t.Errorf("task %s status = %q, want completed", id, task.Status)
		}
		if task.CompletedAt == nil {
			t.Errorf("task %s has no CompletedAt", id)
		}
		// The approved changeset lands on the project tree.
		out := filepath.Join(h.root, "out", id+".txt")
		if _, err := os.Stat(out); err != nil {
			t.Errorf("approved change for %s not applied: %v", id, err)
		}
		sessions, err := h.db.ListSessionsByTask(id)
		if err != nil || len(sessions) != 1 {
			t.Errorf("task %s sessions = %d (%v), want 1", id, len(sessions), err)
		}
	}

	last, err := h.db.LastIteration()
	if err != nil {
		t.Fatalf("LastIteration: %v", err)
	}
	if last == nil || last.TasksDispatched != 2 || last.TasksCompleted != 2 {
		t.Errorf("checkpoint = %+v", last)
	}
}

func TestLoop_RequeueThenComplete(t *testing.T) {
	h := newHarness(t, harnessOpts{maxIterations: 5, taskBudget: 3})
	h.addTask(t, &models.Task{ID: "t1", Title: "flaky"})
	h.verifier.script("t1", safeFail(), pass())

	result, err := h.loop.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Outcome != OutcomeCompleted {
		t.Fatalf("outcome = %q, want completed", result.Outcome)
	}
	if result.Iterations != 2 {
		t.Errorf("iterations = %d, want 2", result.Iterations)
	}

	task := h.task(t, "t1")
	if task.Status != models.TaskStatusCompleted {
		t.Errorf("status = %q, want completed", task.Status)
	}
	if task.IterationCount != 2 {
		t.Errorf("IterationCount = %d, want 2", task.IterationCount)
	}
}

func TestLoop_GuardrailBlocksImmediately(t *testing.T) {
	h := newHarness(t, harnessOpts{maxIterations: 5, taskBudget: 3})
	h.addTask(t, &models.Task{ID: "t1", Title: "touches auth"})
	h.verifier.script("t1", blocked())

	result, err := h.loop.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Outcome != OutcomeCompleted {
		t.Fatalf("outcome = %q, want completed (blocked is terminal)", result.Outcome)
	}

	task := h.task(t, "t1")
	if task.Status != models.TaskStatusBlocked {
		t.Fatalf("status = %q, want blocked", task.Status)
	}
	if task.BlockedReason == "" {
		t.Error("blocked task needs a reason")
	}

	artifacts, err := h.db.ListOpenArtifacts()
	if err != nil {
		t.Fatalf("ListOpenArtifacts: %v", err)
	}
	if len(artifacts) != 1 || artifacts[0].TaskID != "t1" {
		t.Errorf("artifacts = %+v, want one for t1", artifacts)
	}

	// BLOCKED is a policy event: the breaker stays closed.
	actor, scope := task.BreakerKey()
	if s := h.breaker.StateOf(breaker.Key{Actor: actor, Scope: scope}); s != breaker.StateClosed {
		t.Errorf("breaker state = %q, want closed", s)
	}

	// A blocked change never reaches the project tree.
	if _, err := os.Stat(filepath.Join(h.root, "out", "t1.txt")); !os.IsNotExist(err) {
		t.Error("blocked changeset must not be applied")
	}
}

func TestLoop_BreakerOpensAndPauses(t *testing.T) {
	h := newHarness(t, harnessOpts{maxIterations: 10, taskBudget: 10, failureThreshold: 2})
	h.addTask(t, &models.Task{ID: "t1", Title: "failing", Actor: "team-a", ResourceScope: "payments"})
	h.verifier.script("t1", safeFail(), safeFail(), safeFail())

	result, err := h.loop.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Outcome != OutcomeCircuitOpenPaused {
		t.Fatalf("outcome = %q, want circuit_open_paused", result.Outcome)
	}
	// Two failing iterations, then a third that finds the breaker open.
	if result.Iterations != 3 {
		t.Errorf("iterations = %d, want 3", result.Iterations)
	}

	key := breaker.Key{Actor: "team-a", Scope: "payments"}
	if s := h.breaker.StateOf(key); s != breaker.StateOpen {
		t.Errorf("breaker state = %q, want open", s)
	}

	// The open breaker is checkpointed for the next run.
	snaps, err := h.db.LoadBreakerSnapshots()
	if err != nil {
		t.Fatalf("LoadBreakerSnapshots: %v", err)
	}
	if len(snaps) != 1 || snaps[0].State != breaker.StateOpen {
		t.Errorf("persisted snapshots = %+v, want one open", snaps)
	}

	// The task is still pending, waiting for the cool-down.
	if task := h.task(t, "t1"); task.Status != models.TaskStatusPending {
		t.Errorf("task status = %q, want pending", task.Status)
	}
}

func TestLoop_TaskBudgetExhaustionEscalates(t *testing.T) {
	h := newHarness(t, harnessOpts{maxIterations: 5, taskBudget: 1})
	h.addTask(t, &models.Task{ID: "t1", Title: "never passes"})
	h.verifier.script("t1", safeFail())

	result, err := h.loop.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Outcome != OutcomeCompleted {
		t.Fatalf("outcome = %q, want completed", result.Outcome)
	}

	task := h.task(t, "t1")
	if task.Status != models.TaskStatusBlocked {
		t.Errorf("status = %q, want blocked after budget exhaustion", task.Status)
	}
	artifacts, err := h.db.ListOpenArtifacts()
	if err != nil || len(artifacts) != 1 {
		t.Errorf("artifacts = %d (%v), want 1", len(artifacts), err)
	}
}

func TestLoop_LowConfidenceFailureEscalates(t *testing.T) {
	h := newHarness(t, harnessOpts{maxIterations: 5, taskBudget: 5})
	h.addTask(t, &models.Task{ID: "t1", Title: "uncertain", LowConfidence: true})
	h.verifier.script("t1", safeFail())

	if _, err := h.loop.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	task := h.task(t, "t1")
	if task.Status != models.TaskStatusBlocked {
		t.Errorf("status = %q, want blocked: low confidence forbids auto-retry", task.Status)
	}
}

func TestLoop_IterationBudgetExhausted(t *testing.T) {
	h := newHarness(t, harnessOpts{maxIterations: 2, taskBudget: 10})
	h.addTask(t, &models.Task{ID: "t1", Title: "slow burn"})
	h.verifier.script("t1", safeFail(), safeFail(), safeFail())

	result, err := h.loop.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Outcome != OutcomeIterationBudgetExhausted {
		t.Fatalf("outcome = %q, want iteration_budget_exhausted", result.Outcome)
	}
	if task := h.task(t, "t1"); task.Status != models.TaskStatusPending {
		t.Errorf("status = %q, want pending for the next run", task.Status)
	}
}

func TestLoop_NoTasks(t *testing.T) {
	h := newHarness(t, harnessOpts{maxIterations: 3, taskBudget: 3})
	result, err := h.loop.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Outcome != OutcomeCompleted || result.Iterations != 0 {
		t.Errorf("result = %+v, want completed with 0 iterations", result)
	}
}

func TestEventEmitter_DropsWhenFull(t *testing.T) {
	e := NewEventEmitter(1)
	e.Emit(Event{Type: EventIterationStarted})
	e.Emit(Event{Type: EventTaskDispatched}) // buffer full, dropped after timeout
	if e.DroppedCount() != 1 {
		t.Errorf("dropped = %d, want 1", e.DroppedCount())
	}
	select {
	case got := <-e.Events():
		if got.Type != EventIterationStarted {
			t.Errorf("event = %q", got.Type)
		}
	default:
		t.Error("buffered event missing")
	}
}
