// Package verify runs the deterministic verification pipeline over a
// proposed changeset and a baseline, producing exactly one verdict per run.
package verify

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"
)

// CheckResult is the outcome of one pipeline check.
type CheckResult struct {
	// Passed indicates whether the check succeeded.
	Passed bool
	// Failures lists failure identifiers for baseline comparison.
	Failures []string
	// Output is the check's diagnostic output.
	Output string
	// Err is set when the check could not run at all, as opposed to
	// running and reporting failures.
	Err error
}

// Check is one verification step. Checks are read-only with respect to the
// workspace they run in.
type Check interface {
	// Name identifies the check in step results.
	Name() string
	// Run executes the check against the given workspace directory.
	Run(ctx context.Context, dir string) CheckResult
}

// CommandCheck runs an external command and derives failure identifiers
// from its output lines.
type CommandCheck struct {
	name    string
	argv    []string
	timeout time.Duration
	// parse converts combined output into failure identifiers. When nil,
	// each non-empty output line of a failing run is one identifier.
	parse func(output []byte) []string
}

// NewCommandCheck creates a check that runs argv in the workspace.
func NewCommandCheck(name string, argv []string, timeout time.Duration) *CommandCheck {
	return &CommandCheck{name: name, argv: argv, timeout: timeout}
}

// WithParser sets a custom output parser and returns the check.
func (c *CommandCheck) WithParser(parse func(output []byte) []string) *CommandCheck {
	c.parse = parse
	return c
}

// Name implements Check.
func (c *CommandCheck) Name() string { return c.name }

// Run implements Check.
func (c *CommandCheck) Run(ctx context.Context, dir string) CheckResult {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.argv[0], c.argv[1:]...)
	cmd.Dir = dir

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	err := cmd.Run()
	result := CheckResult{Output: buf.String()}

	if ctx.Err() == context.DeadlineExceeded {
		result.Err = ctx.Err()
		return result
	}
	if err == nil {
		result.Passed = true
		return result
	}
	if _, ok := err.(*exec.ExitError); !ok {
		// Command did not run; distinct from a failing check.
		result.Err = err
		return result
	}

	if c.parse != nil {
		result.Failures = c.parse(buf.Bytes())
	} else {
		result.Failures = defaultParse(c.name, buf.Bytes())
	}
	return result
}

// defaultParse turns each non-empty output line into a namespaced failure
// identifier so identical failures compare equal across runs.
func defaultParse(check string, output []byte) []string {
	var failures []string
	for _, line := range strings.Split(string(output), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		failures = append(failures, check+": "+line)
	}
	if len(failures) == 0 {
		failures = []string{check + ": failed with no diagnostic output"}
	}
	return failures
}

// GoChecks returns the standard lint, typecheck, and test checks for a Go
// workspace. Lint prefers golangci-lint and falls back to go vet.
func GoChecks(timeout time.Duration) []Check {
	lint := []string{"go", "vet", "./..."}
	if _, err := exec.LookPath("golangci-lint"); err == nil {
		lint = []string{"golangci-lint", "run", "./..."}
	}
	return []Check{
		NewCommandCheck("lint", lint, timeout),
		NewCommandCheck("typecheck", []string{"go", "build", "-o", "/dev/null", "./..."}, timeout),
		NewCommandCheck("test", []string{"go", "test", "./..."}, timeout).WithParser(parseGoTestFailures),
	}
}

// parseGoTestFailures extracts failing test names from go test output.
func parseGoTestFailures(output []byte) []string {
	var failures []string
	for _, line := range strings.Split(string(output), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "--- FAIL:") {
			fields := strings.Fields(line)
			if len(fields) >= 3 {
				failures = append(failures, "test: "+fields[2])
			}
		}
	}
	if len(failures) == 0 {
		failures = []string{"test: suite failed"}
	}
	return failures
}
