package models

import "time"

// VerdictType is the tri-state outcome of one verification run.
type VerdictType string

const (
	// VerdictPass indicates all checks passed with no new failures.
	VerdictPass VerdictType = "PASS"
	// VerdictFail indicates at least one check failure.
	VerdictFail VerdictType = "FAIL"
	// VerdictBlocked indicates a guardrail violation. Terminal, human-only.
	VerdictBlocked VerdictType = "BLOCKED"
)

// Valid returns true if the verdict type is a known value.
func (v VerdictType) Valid() bool {
	switch v {
	case VerdictPass, VerdictFail, VerdictBlocked:
		return true
	default:
		return false
	}
}

// StepResult records the outcome of a single pipeline step.
type StepResult struct {
	// Name identifies the step (guardrail, lint, typecheck, test, baseline).
	Name string `json:"name"`
	// Passed indicates whether the step succeeded.
	Passed bool `json:"passed"`
	// Duration is how long the step took.
	Duration time.Duration `json:"duration"`
	// Output contains the step's diagnostic output.
	Output string `json:"output,omitempty"`
}

// Verdict is the immutable result of verifying one changeset against one
// baseline. Exactly one Verdict is produced per verification run.
type Verdict struct {
	// Type is the overall outcome.
	Type VerdictType `json:"type"`
	// SafeToMerge is true when every observed failure pre-existed in the
	// baseline. A FAIL with SafeToMerge set distinguishes "imperfect but
	// non-regressive" from a true regression.
	SafeToMerge bool `json:"safe_to_merge"`
	// Steps lists step results in pipeline order.
	Steps []StepResult `json:"steps"`
	// NewFailures are failure identifiers absent from the baseline.
	NewFailures []string `json:"new_failures,omitempty"`
	// CreatedAt is when the verdict was produced.
	CreatedAt time.Time `json:"created_at"`
}

// Step returns the step result with the given name, or nil.
func (v *Verdict) Step(name string) *StepResult {
	for i := range v.Steps {
		if v.Steps[i].Name == name {
			return &v.Steps[i]
		}
	}
	return nil
}

// Summary returns a short human-readable description of the verdict.
func (v *Verdict) Summary() string {
	s := string(v.Type)
	if v.Type == VerdictFail {
		if v.SafeToMerge {
			s += " (no regressions, pre-existing failures only)"
		} else {
			s += " (regression)"
		}
	}
	return s
}
