package verify

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
)

func TestBaseline_Diff(t *testing.T) {
	tests := []struct {
		name     string
		baseline *Baseline
		current  []string
		want     []string
	}{
		{
			name:     "no baseline, everything is new",
			baseline: nil,
			current:  []string{"test: TestA"},
			want:     []string{"test: TestA"},
		},
		{
			name:     "subset of baseline is not a regression",
			baseline: &Baseline{Failures: []string{"test: TestA", "lint: x.go:1: unused"}},
			current:  []string{"test: TestA"},
			want:     nil,
		},
		{
			name:     "new failure detected",
			baseline: &Baseline{Failures: []string{"test: TestA"}},
			current:  []string{"test: TestA", "test: TestB"},
			want:     []string{"test: TestB"},
		},
		{
			name:     "duplicates collapse and output is sorted",
			baseline: &Baseline{},
			current:  []string{"test: TestB", "test: TestA", "test: TestB"},
			want:     []string{"test: TestA", "test: TestB"},
		},
		{
			name:     "empty current",
			baseline: &Baseline{Failures: []string{"test: TestA"}},
			current:  nil,
			want:     nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.baseline.Diff(tt.current)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Diff(%v) = %v, want %v", tt.current, got, tt.want)
			}
		})
	}
}

func TestBaseline_Contains(t *testing.T) {
	b := &Baseline{Failures: []string{"test: TestA"}}
	if !b.Contains("test: TestA") {
		t.Error("expected Contains to find recorded failure")
	}
	if b.Contains("test: TestB") {
		t.Error("Contains found an unrecorded failure")
	}
	var nilBaseline *Baseline
	if nilBaseline.Contains("anything") {
		t.Error("nil baseline contains nothing")
	}
}

func TestBaseline_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "baseline.json")
	b := &Baseline{Failures: []string{"lint: a.go:3: shadowed", "test: TestFlaky"}}

	if err := b.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := LoadBaseline(path)
	if err != nil {
		t.Fatalf("LoadBaseline: %v", err)
	}
	if !reflect.DeepEqual(loaded.Failures, b.Failures) {
		t.Errorf("loaded failures = %v, want %v", loaded.Failures, b.Failures)
	}
}

func TestCaptureBaseline(t *testing.T) {
	checks := []Check{
		failing("lint", "lint: b.go:1: unused"),
		failing("test", "test: TestA"),
		passing("typecheck"),
	}
	b, err := CaptureBaseline(context.Background(), checks, t.TempDir())
	if err != nil {
		t.Fatalf("CaptureBaseline: %v", err)
	}
	want := []string{"lint: b.go:1: unused", "test: TestA"}
	if !reflect.DeepEqual(b.Failures, want) {
		t.Errorf("Failures = %v, want %v", b.Failures, want)
	}
}
