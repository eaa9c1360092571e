package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Baseline is the set of failure identifiers recorded before a change is
// attempted. It is immutable once captured for a verification run; the
// engine's caller owns it.
type Baseline struct {
	// Failures are the known-failing identifiers at capture time.
	Failures []string `json:"failures"`
	// CapturedAt is when the baseline was recorded.
	CapturedAt time.Time `json:"captured_at"`
}

// Contains reports whether the identifier was failing at capture time.
func (b *Baseline) Contains(id string) bool {
	if b == nil {
		return false
	}
	for _, f := range b.Failures {
		if f == id {
			return true
		}
	}
	return false
}

// Diff returns the identifiers in current that are absent from the
// baseline, sorted for deterministic verdicts.
func (b *Baseline) Diff(current []string) []string {
	known := make(map[string]bool)
	if b != nil {
		for _, f := range b.Failures {
			known[f] = true
		}
	}

	var fresh []string
	seen := make(map[string]bool)
	for _, id := range current {
		if !known[id] && !seen[id] {
			fresh = append(fresh, id)
			seen[id] = true
		}
	}
	sort.Strings(fresh)
	return fresh
}

// CaptureBaseline runs the given checks against dir and records every
// failure identifier they report.
func CaptureBaseline(ctx context.Context, checks []Check, dir string) (*Baseline, error) {
	baseline := &Baseline{CapturedAt: time.Now()}
	for _, check := range checks {
		result := check.Run(ctx, dir)
		if result.Err != nil {
			return nil, fmt.Errorf("capture baseline: %s: %w", check.Name(), result.Err)
		}
		baseline.Failures = append(baseline.Failures, result.Failures...)
	}
	sort.Strings(baseline.Failures)
	return baseline, nil
}

// Save persists the baseline as JSON.
func (b *Baseline) Save(path string) error {
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadBaseline reads a baseline saved by Save.
func LoadBaseline(path string) (*Baseline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var b Baseline
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parse baseline %s: %w", path, err)
	}
	return &b, nil
}
