package models

import "testing"

func TestTaskStatus_Valid(t *testing.T) {
	tests := []struct {
		name   string
		status TaskStatus
		want   bool
	}{
		{"pending is valid", TaskStatusPending, true},
		{"in_progress is valid", TaskStatusInProgress, true},
		{"completed is valid", TaskStatusCompleted, true},
		{"blocked is valid", TaskStatusBlocked, true},
		{"empty string is invalid", TaskStatus(""), false},
		{"unknown status is invalid", TaskStatus("done"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.status.Valid(); got != tt.want {
				t.Errorf("TaskStatus(%q).Valid() = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestTaskStatus_Terminal(t *testing.T) {
	if !TaskStatusCompleted.Terminal() {
		t.Error("completed should be terminal")
	}
	if !TaskStatusBlocked.Terminal() {
		t.Error("blocked should be terminal")
	}
	if TaskStatusPending.Terminal() {
		t.Error("pending should not be terminal")
	}
	if TaskStatusInProgress.Terminal() {
		t.Error("in_progress should not be terminal")
	}
}

func TestValidTransition(t *testing.T) {
	tests := []struct {
		name string
		from TaskStatus
		to   TaskStatus
		want bool
	}{
		{"pending to in_progress", TaskStatusPending, TaskStatusInProgress, true},
		{"in_progress to completed", TaskStatusInProgress, TaskStatusCompleted, true},
		{"in_progress to blocked", TaskStatusInProgress, TaskStatusBlocked, true},
		{"in_progress to pending (requeue)", TaskStatusInProgress, TaskStatusPending, true},
		{"pending to completed skips execution", TaskStatusPending, TaskStatusCompleted, false},
		{"pending to blocked skips execution", TaskStatusPending, TaskStatusBlocked, false},
		{"completed is terminal", TaskStatusCompleted, TaskStatusPending, false},
		{"blocked is terminal", TaskStatusBlocked, TaskStatusInProgress, false},
		{"blocked never self-resolves", TaskStatusBlocked, TaskStatusCompleted, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("ValidTransition(%q, %q) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestTask_BreakerKey(t *testing.T) {
	task := &Task{Actor: "payments-team", ResourceScope: "billing-db"}
	actor, scope := task.BreakerKey()
	if actor != "payments-team" || scope != "billing-db" {
		t.Errorf("BreakerKey() = (%q, %q), want (payments-team, billing-db)", actor, scope)
	}

	empty := &Task{}
	actor, scope = empty.BreakerKey()
	if actor != "default" || scope != "default" {
		t.Errorf("BreakerKey() on empty task = (%q, %q), want (default, default)", actor, scope)
	}
}

func TestTier_Valid(t *testing.T) {
	for _, tier := range []Tier{TierScout, TierBuilder, TierArchitect} {
		if !tier.Valid() {
			t.Errorf("Tier(%q).Valid() = false, want true", tier)
		}
	}
	if Tier("quick").Valid() {
		t.Error("unknown tier should be invalid")
	}
}

func TestTier_AtLeast(t *testing.T) {
	if got := TierScout.AtLeast(TierArchitect); got != TierArchitect {
		t.Errorf("scout.AtLeast(architect) = %q, want architect", got)
	}
	if got := TierArchitect.AtLeast(TierScout); got != TierArchitect {
		t.Errorf("architect.AtLeast(scout) = %q, want architect", got)
	}
	if got := TierBuilder.AtLeast(TierBuilder); got != TierBuilder {
		t.Errorf("builder.AtLeast(builder) = %q, want builder", got)
	}
}
