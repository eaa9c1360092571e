package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/warden/internal/analyzer"
	"github.com/ShayCichocki/warden/internal/breaker"
	"github.com/ShayCichocki/warden/internal/config"
	"github.com/ShayCichocki/warden/internal/ingest"
	"github.com/ShayCichocki/warden/internal/loop"
	"github.com/ShayCichocki/warden/internal/protect"
	"github.com/ShayCichocki/warden/internal/resolver"
	"github.com/ShayCichocki/warden/internal/state"
	"github.com/ShayCichocki/warden/internal/verify"
	"github.com/ShayCichocki/warden/internal/worker"
)

var (
	runMaxIterations int
	runMaxWorkers    int
	runDryRun        bool
	runWatch         bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute the governance loop over pending tasks",
	Long: `Run the control loop until every task reaches a terminal state, the
iteration budget runs out, or every remaining task sits behind an open
circuit breaker.

Each iteration classifies unclassified tasks, admits them through the
breaker, dispatches isolated worker sessions in overlap-serialized batches,
verifies each proposed changeset, and resolves every verdict before the
next iteration begins. Approved changes are applied to the project tree;
unresolvable outcomes escalate with a review artifact (see 'warden status').

State survives restarts: interrupted runs are recovered on the next start,
and open breakers stay open across runs until their cool-down elapses.

Examples:
  warden run                  # run with configured limits
  warden run --iterations 3   # cap this run at 3 iterations
  warden run --watch          # keep ingesting task files while running
  warden run --dry-run        # verify but never touch the project tree`,
	RunE: runLoop,
}

func init() {
	runCmd.Flags().IntVar(&runMaxIterations, "iterations", 0, "Override loop.max_iterations for this run")
	runCmd.Flags().IntVar(&runMaxWorkers, "workers", 0, "Override loop.max_parallel_workers for this run")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Verify changesets but never apply them")
	runCmd.Flags().BoolVar(&runWatch, "watch", false, "Watch the inbox for task files while the loop runs")
}

func runLoop(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if runMaxIterations > 0 {
		cfg.Loop.MaxIterations = runMaxIterations
	}
	if runMaxWorkers > 0 {
		cfg.Loop.MaxParallelWorkers = runMaxWorkers
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	db, err := state.OpenProject(cwd)
	if err != nil {
		return fmt.Errorf("open state database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	workspaceBase := cfg.Workspace.BaseDir
	if workspaceBase == "" {
		workspaceBase = os.TempDir()
	}
	report, err := db.Recover(workspaceBase)
	if err != nil {
		return fmt.Errorf("recover interrupted state: %w", err)
	}
	if !report.Empty() {
		fmt.Printf("Recovered interrupted run: %d tasks requeued, %d sessions abandoned, %d workspaces removed\n",
			len(report.RequeuedTasks), len(report.AbandonedSessions), len(report.RemovedWorkspaces))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Task ingestion: drain the inbox once, optionally keep watching.
	dropDir := cfg.Ingest.DropDir
	if !filepath.IsAbs(dropDir) {
		dropDir = filepath.Join(cwd, dropDir)
	}
	watcher, err := ingest.NewWatcher(dropDir, db)
	if err != nil {
		return fmt.Errorf("open task inbox: %w", err)
	}
	defer watcher.Close()
	if runWatch {
		if err := watcher.Start(); err != nil {
			return fmt.Errorf("watch task inbox: %w", err)
		}
	} else if err := watcher.DrainExisting(); err != nil {
		return fmt.Errorf("drain task inbox: %w", err)
	}

	guard := protect.NewDetector()
	if policyPath := config.GetProjectConfigPath(); policyPath != "" {
		if err := guard.LoadPolicy(policyPath); err != nil {
			return fmt.Errorf("load guardrail policy: %w", err)
		}
	}

	checks := gateChecks(cfg)
	baseline, err := loadOrCaptureBaseline(ctx, cwd, checks)
	if err != nil {
		return err
	}

	runner, err := newSessionRunner(cfg)
	if err != nil {
		return err
	}
	controller, err := worker.NewController(worker.Config{
		MaxWorkers:  cfg.Loop.MaxParallelWorkers,
		Runner:      runner,
		Snapshotter: &worker.DirSnapshotter{Source: cwd, BaseDir: cfg.Workspace.BaseDir},
		Timeouts:    cfg.Timeouts.ByTier(),
	})
	if err != nil {
		return fmt.Errorf("create worker controller: %w", err)
	}

	projectRoot := cwd
	if runDryRun {
		projectRoot = ""
	}

	events := loop.NewEventEmitter(64)
	printerDone := make(chan struct{})
	go printEvents(events, printerDone)

	logger := loop.NewDebugLoggerForProject(cwd)
	defer logger.Close()

	lp, err := loop.New(loop.Config{
		Store:         db,
		Analyzer:      analyzer.New(db),
		Breaker:       breaker.New(breaker.Config{FailureThreshold: cfg.Breaker.FailureThreshold, CoolDown: cfg.Breaker.CoolDown}),
		Controller:    controller,
		Verifier:      verify.NewEngine(guard, checks),
		Resolver:      resolver.New(db),
		Baseline:      baseline,
		ProjectRoot:   projectRoot,
		MaxIterations: cfg.Loop.MaxIterations,
		MaxParallel:   cfg.Loop.MaxParallelWorkers,
		TaskBudget:    cfg.Loop.TaskBudget,
		Logger:        logger,
		Events:        events,
	})
	if err != nil {
		return fmt.Errorf("create loop: %w", err)
	}

	result, runErr := lp.Run(ctx)
	events.Close()
	<-printerDone

	if runErr != nil {
		return fmt.Errorf("loop stopped after %d iterations: %w", result.Iterations, runErr)
	}
	printOutcome(result)
	return nil
}

// gateChecks returns the verification checks enabled by the gates config.
func gateChecks(cfg *config.Config) []verify.Check {
	timeout := cfg.Timeouts.Builder
	enabled := map[string]bool{
		"lint":      cfg.Gates.Lint,
		"typecheck": cfg.Gates.Build,
		"test":      cfg.Gates.Test,
	}

	var checks []verify.Check
	for _, check := range verify.GoChecks(timeout) {
		if enabled[check.Name()] {
			checks = append(checks, check)
		}
	}
	return checks
}

// loadOrCaptureBaseline loads the saved baseline, capturing a fresh one
// when none exists yet.
func loadOrCaptureBaseline(ctx context.Context, root string, checks []verify.Check) (*verify.Baseline, error) {
	path := baselineFile(root)
	baseline, err := verify.LoadBaseline(path)
	if err == nil {
		return baseline, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("load baseline: %w", err)
	}

	fmt.Println("No baseline found, capturing one...")
	baseline, err = verify.CaptureBaseline(ctx, checks, root)
	if err != nil {
		return nil, fmt.Errorf("capture baseline: %w", err)
	}
	if err := baseline.Save(path); err != nil {
		return nil, fmt.Errorf("save baseline: %w", err)
	}
	fmt.Printf("Baseline captured: %d known failures\n", len(baseline.Failures))
	return baseline, nil
}

// newSessionRunner builds the Claude-backed session runner from config.
func newSessionRunner(cfg *config.Config) (worker.SessionRunner, error) {
	if !cfg.Anthropic.UseAWSBedrock {
		if _, err := config.GetAPIKey(cfg); err != nil {
			return nil, fmt.Errorf("%w\n\nSet ANTHROPIC_API_KEY or run 'warden config set-key'", err)
		}
	}
	runner, err := worker.NewClaudeRunner(worker.ClaudeConfig{
		APIKey:        cfg.Anthropic.APIKey,
		UseAWSBedrock: cfg.Anthropic.UseAWSBedrock,
		AWSRegion:     cfg.Anthropic.AWSRegion,
		AWSProfile:    cfg.Anthropic.AWSProfile,
	})
	if err != nil {
		return nil, fmt.Errorf("create session runner: %w", err)
	}
	return runner, nil
}

// printEvents streams loop events to stdout until the emitter closes.
func printEvents(events *loop.EventEmitter, done chan<- struct{}) {
	defer close(done)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed)
	cyan := color.New(color.FgCyan)

	for e := range events.Events() {
		switch e.Type {
		case loop.EventIterationStarted:
			cyan.Printf("\n=== Iteration %d (%s) ===\n", e.Iteration, e.Message)
		case loop.EventTaskClassified:
			fmt.Printf("  classified %q -> %s\n", e.TaskTitle, e.Message)
		case loop.EventTaskDispatched:
			fmt.Printf("  dispatched %q (worker %s)\n", e.TaskTitle, e.WorkerID)
		case loop.EventTaskDeferred:
			yellow.Printf("  deferred %q: %s open\n", e.TaskTitle, e.Message)
		case loop.EventTaskCompleted:
			green.Printf("  completed %q\n", e.TaskTitle)
		case loop.EventTaskRequeued:
			yellow.Printf("  requeued %q: %s\n", e.TaskTitle, e.Message)
		case loop.EventTaskBlocked:
			red.Printf("  escalated %q: %s\n", e.TaskTitle, e.Message)
		case loop.EventBreakerOpened:
			red.Printf("  breaker opened: %s\n", e.Message)
		}
	}
}

func printOutcome(result *loop.Result) {
	switch result.Outcome {
	case loop.OutcomeCompleted:
		color.Green("\nAll tasks resolved in %d iteration(s).", result.Iterations)
	case loop.OutcomeIterationBudgetExhausted:
		color.Yellow("\nIteration budget exhausted after %d iteration(s); pending tasks remain.", result.Iterations)
	case loop.OutcomeCircuitOpenPaused:
		color.Yellow("\nPaused after %d iteration(s): every remaining task is behind an open breaker.\nRe-run after the cool-down, or check 'warden status'.", result.Iterations)
	default:
		color.Red("\nStopped after %d iteration(s): %s", result.Iterations, result.Outcome)
	}
}

func baselineFile(root string) string {
	return filepath.Join(root, ".warden", "baseline.json")
}
