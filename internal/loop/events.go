package loop

import (
	"log"
	"sync/atomic"
	"time"
)

// EventType represents the type of loop event.
type EventType string

const (
	// EventIterationStarted indicates a loop iteration has begun.
	EventIterationStarted EventType = "iteration_started"
	// EventTaskClassified indicates the analyzer assigned a tier to a task.
	EventTaskClassified EventType = "task_classified"
	// EventTaskDeferred indicates an open breaker deferred a task.
	EventTaskDeferred EventType = "task_deferred"
	// EventTaskDispatched indicates a worker session started for a task.
	EventTaskDispatched EventType = "task_dispatched"
	// EventTaskCompleted indicates a task's changeset was approved.
	EventTaskCompleted EventType = "task_completed"
	// EventTaskRequeued indicates a task returned to pending for another attempt.
	EventTaskRequeued EventType = "task_requeued"
	// EventTaskBlocked indicates a task escalated to human review.
	EventTaskBlocked EventType = "task_blocked"
	// EventBreakerOpened indicates a breaker key tripped open.
	EventBreakerOpened EventType = "breaker_opened"
	// EventLoopDone indicates the loop finished with a terminal outcome.
	EventLoopDone EventType = "loop_done"
)

// Event is one observable loop occurrence, consumed by the CLI status
// stream.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// TaskID is the ID of the related task, if applicable.
	TaskID string
	// TaskTitle is the title of the related task, if applicable.
	TaskTitle string
	// WorkerID is the ID of the related worker session, if applicable.
	WorkerID string
	// Iteration is the loop iteration number the event belongs to.
	Iteration int
	// Message provides additional context about the event.
	Message string
	// Timestamp is when the event occurred.
	Timestamp time.Time
}

// EventEmitter provides a simple, thread-safe way to emit events to
// subscribers.
type EventEmitter struct {
	events       chan Event
	droppedCount atomic.Uint64
}

// NewEventEmitter creates a new EventEmitter with the given buffer size.
func NewEventEmitter(bufferSize int) *EventEmitter {
	return &EventEmitter{
		events: make(chan Event, bufferSize),
	}
}

// Emit sends an event to the events channel.
// If the channel is full, it tries with a timeout before dropping the event.
func (e *EventEmitter) Emit(event Event) {
	select {
	case e.events <- event:
		return
	default:
	}

	select {
	case e.events <- event:
		return
	case <-time.After(100 * time.Millisecond):
		count := e.droppedCount.Add(1)
		if count%10 == 1 { // Log every 10th drop to avoid spam
			log.Printf("[loop] WARNING: Event channel full, dropped event (total dropped: %d): type=%s", count, event.Type)
		}
	}
}

// DroppedCount returns the total number of events that have been dropped.
func (e *EventEmitter) DroppedCount() uint64 {
	return e.droppedCount.Load()
}

// Events returns a read-only channel of events.
func (e *EventEmitter) Events() <-chan Event {
	return e.events
}

// Close closes the events channel.
// This should be called when the loop is stopped.
func (e *EventEmitter) Close() {
	close(e.events)
}
