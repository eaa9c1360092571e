package verify

import (
	"context"
	"strings"
	"time"

	"github.com/ShayCichocki/warden/internal/protect"
	"github.com/ShayCichocki/warden/pkg/models"
)

// Step names in pipeline order. The guardrail scan short-circuits.
const (
	StepGuardrail = "guardrail"
	StepBaseline  = "baseline"
)

// defaultFlakyRetries is how many times a failing check is re-run before
// its outcome is reported. Identical (changeset, baseline) pairs must
// reproduce identical verdicts, so flaky one-off failures are absorbed here.
const defaultFlakyRetries = 2

// Engine runs the verification pipeline: guardrail scan, then the
// configured checks in order, then baseline comparison.
type Engine struct {
	guard        *protect.Detector
	checks       []Check
	flakyRetries int
}

// NewEngine creates an Engine with the given guardrail detector and checks.
func NewEngine(guard *protect.Detector, checks []Check) *Engine {
	return &Engine{
		guard:        guard,
		checks:       checks,
		flakyRetries: defaultFlakyRetries,
	}
}

// SetFlakyRetries overrides the bounded internal retry count for failing
// checks. Zero disables retries.
func (e *Engine) SetFlakyRetries(n int) {
	if n < 0 {
		n = 0
	}
	e.flakyRetries = n
}

// Verify produces exactly one Verdict for the changeset against the
// baseline. The workspace dir must already contain the applied changeset;
// checks execute read-only against it.
//
// A guardrail match yields BLOCKED immediately and skips every remaining
// step: it is terminal and never auto-retried. Otherwise checks run in
// order, their failure identifiers are pooled, and the baseline comparison
// decides between PASS, FAIL(safe_to_merge=true) for pre-existing failures
// only, and FAIL(safe_to_merge=false) for regressions.
func (e *Engine) Verify(ctx context.Context, cs *models.Changeset, dir string, baseline *Baseline) *models.Verdict {
	verdict := &models.Verdict{CreatedAt: time.Now()}

	start := time.Now()
	violations := e.guard.ScanChangeset(cs)
	guardStep := models.StepResult{
		Name:     StepGuardrail,
		Passed:   len(violations) == 0,
		Duration: time.Since(start),
	}
	if len(violations) > 0 {
		var lines []string
		for _, v := range violations {
			lines = append(lines, v.String())
		}
		guardStep.Output = strings.Join(lines, "\n")
		verdict.Type = models.VerdictBlocked
		verdict.SafeToMerge = false
		verdict.Steps = []models.StepResult{guardStep}
		return verdict
	}
	verdict.Steps = append(verdict.Steps, guardStep)

	var currentFailures []string
	anyCheckFailed := false

	for _, check := range e.checks {
		step, result := e.runWithRetry(ctx, check, dir)
		verdict.Steps = append(verdict.Steps, step)
		if !step.Passed {
			anyCheckFailed = true
			currentFailures = append(currentFailures, result.Failures...)
		}
	}

	start = time.Now()
	verdict.NewFailures = baseline.Diff(currentFailures)
	baselineStep := models.StepResult{
		Name:     StepBaseline,
		Passed:   len(verdict.NewFailures) == 0,
		Duration: time.Since(start),
	}
	if len(verdict.NewFailures) > 0 {
		baselineStep.Output = "new failures: " + strings.Join(verdict.NewFailures, ", ")
	}
	verdict.Steps = append(verdict.Steps, baselineStep)

	switch {
	case !anyCheckFailed && len(verdict.NewFailures) == 0:
		verdict.Type = models.VerdictPass
		verdict.SafeToMerge = true
	case len(verdict.NewFailures) == 0:
		// Every failure pre-existed in the baseline: imperfect but
		// non-regressive.
		verdict.Type = models.VerdictFail
		verdict.SafeToMerge = true
	default:
		verdict.Type = models.VerdictFail
		verdict.SafeToMerge = false
	}
	return verdict
}

// runWithRetry executes a check, re-running failures up to flakyRetries
// times. The reported step reflects the final attempt; the step output
// notes absorbed retries.
func (e *Engine) runWithRetry(ctx context.Context, check Check, dir string) (models.StepResult, CheckResult) {
	start := time.Now()

	var result CheckResult
	attempts := 0
	for {
		attempts++
		result = check.Run(ctx, dir)
		if result.Passed || attempts > e.flakyRetries || ctx.Err() != nil {
			break
		}
	}

	step := models.StepResult{
		Name:     check.Name(),
		Passed:   result.Passed && result.Err == nil,
		Duration: time.Since(start),
		Output:   result.Output,
	}
	if result.Err != nil {
		step.Output = "check error: " + result.Err.Error() + "\n" + step.Output
		// A check that cannot run is never safe to merge past.
		result.Failures = append(result.Failures, check.Name()+": check error: "+result.Err.Error())
	}
	if attempts > 1 && result.Passed {
		step.Output = strings.TrimSpace("passed after retry\n" + step.Output)
	}
	return step, result
}
