// Package breaker provides a per-(actor, resource-scope) circuit breaker
// protecting shared downstream resources from cascading failure.
package breaker

import (
	"sync"
	"time"
)

// State is the breaker state for one key.
type State string

const (
	// StateClosed admits all requests.
	StateClosed State = "closed"
	// StateOpen rejects all requests until the cool-down deadline passes.
	StateOpen State = "open"
	// StateHalfOpen admits exactly one probe request.
	StateHalfOpen State = "half_open"
)

// Valid returns true if the state is a known value.
func (s State) Valid() bool {
	switch s {
	case StateClosed, StateOpen, StateHalfOpen:
		return true
	default:
		return false
	}
}

// Key identifies one independent breaker: who is acting on which protected
// resource. Breakers never share counters across keys.
type Key struct {
	Actor string
	Scope string
}

// Config holds breaker tuning parameters.
type Config struct {
	// FailureThreshold is the consecutive failure count that opens the breaker.
	FailureThreshold int
	// CoolDown is how long an open breaker rejects before granting a probe.
	CoolDown time.Duration
}

// Snapshot is the persistable state of one breaker key.
type Snapshot struct {
	Key          Key       `json:"key"`
	State        State     `json:"state"`
	FailureCount int       `json:"failure_count"`
	OpenedAt     time.Time `json:"opened_at"`
}

// entry is the mutable state for one key.
type entry struct {
	state         State
	failureCount  int
	openedAt      time.Time
	probeInFlight bool
}

// Breaker is a concurrency-safe set of per-key failure-protection state
// machines. Multiple sessions may report outcomes concurrently within a
// batch, so all operations hold the breaker lock.
type Breaker struct {
	cfg     Config
	mu      sync.Mutex
	entries map[Key]*entry

	// now is injectable for tests.
	now func() time.Time
}

// New creates a Breaker with the given configuration.
func New(cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	return &Breaker{
		cfg:     cfg,
		entries: make(map[Key]*entry),
		now:     time.Now,
	}
}

// get returns the entry for key, creating it lazily in the closed state.
// Caller must hold b.mu.
func (b *Breaker) get(key Key) *entry {
	e, ok := b.entries[key]
	if !ok {
		e = &entry{state: StateClosed}
		b.entries[key] = e
	}
	return e
}

// Allow reports whether a request for key may be admitted.
//
// Closed: always true. Open: false until the cool-down deadline, after
// which the next call transitions to half-open and returns true, granting
// exactly one probe; concurrent callers racing past the deadline cannot
// both receive it. Half-open: false while the probe is outstanding.
func (b *Breaker) Allow(key Key) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := b.get(key)
	switch e.state {
	case StateClosed:
		return true
	case StateOpen:
		if b.now().Before(e.openedAt.Add(b.cfg.CoolDown)) {
			return false
		}
		e.state = StateHalfOpen
		e.probeInFlight = true
		return true
	case StateHalfOpen:
		if e.probeInFlight {
			return false
		}
		e.probeInFlight = true
		return true
	default:
		return false
	}
}

// RecordSuccess reports a successful outcome for key. In the half-open
// state it closes the breaker and resets the failure count.
func (b *Breaker) RecordSuccess(key Key) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := b.get(key)
	e.failureCount = 0
	e.probeInFlight = false
	e.state = StateClosed
}

// RecordFailure reports a failed outcome for key. In the closed state it
// increments the failure count and opens the breaker at the threshold. In
// the half-open state it re-opens with a fresh cool-down.
func (b *Breaker) RecordFailure(key Key) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := b.get(key)
	switch e.state {
	case StateClosed:
		e.failureCount++
		if e.failureCount >= b.cfg.FailureThreshold {
			e.state = StateOpen
			e.openedAt = b.now()
		}
	case StateHalfOpen:
		e.state = StateOpen
		e.openedAt = b.now()
		e.probeInFlight = false
	case StateOpen:
		// Already open; refresh nothing. The cool-down runs from the
		// original openedAt.
	}
}

// StateOf returns the current state for key without mutating it.
func (b *Breaker) StateOf(key Key) State {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[key]
	if !ok {
		return StateClosed
	}
	return e.state
}

// SnapshotAll returns the persistable state of every known key.
func (b *Breaker) SnapshotAll() []Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	snaps := make([]Snapshot, 0, len(b.entries))
	for key, e := range b.entries {
		snaps = append(snaps, Snapshot{
			Key:          key,
			State:        e.state,
			FailureCount: e.failureCount,
			OpenedAt:     e.openedAt,
		})
	}
	return snaps
}

// Restore replaces the breaker's state with the given snapshots. A breaker
// restored in the half-open state has no probe outstanding, so its next
// Allow grants one.
func (b *Breaker) Restore(snaps []Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries = make(map[Key]*entry, len(snaps))
	for _, s := range snaps {
		if !s.State.Valid() {
			continue
		}
		b.entries[s.Key] = &entry{
			state:        s.State,
			failureCount: s.FailureCount,
			openedAt:     s.OpenedAt,
		}
	}
}
