// Package operation runs long external operations on background goroutines
// with at most one operation in flight per kind, and hands their output to
// a single consumer over an ordered event channel.
package operation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bitswalk/yfab/src/common/logs"
	"github.com/bitswalk/yfab/src/yfab/process"
	"github.com/google/uuid"
)

var log = logs.NewDefault()

// SetLogger sets the logger for the operation package
func SetLogger(l *logs.Logger) {
	if l != nil {
		log = l
	}
}

// Kind is an operation class. Operations of the same kind never overlap.
type Kind string

const (
	KindBuild  Kind = "build"
	KindFlash  Kind = "flash"
	KindDeploy Kind = "deploy"
)

// Kinds lists every operation class
var Kinds = []Kind{KindBuild, KindFlash, KindDeploy}

// Status is the lifecycle state of an operation
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Operation describes one triggered operation
type Operation struct {
	ID         string         `json:"id"`
	Kind       Kind           `json:"kind"`
	Target     string         `json:"target"`
	Status     Status         `json:"status"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
	Result     process.Result `json:"result"`
}

// EventType identifies what an Event carries
type EventType string

const (
	EventStarted   EventType = "started"
	EventLine      EventType = "line"
	EventOverwrite EventType = "overwrite"
	EventProgress  EventType = "progress"
	EventFinished  EventType = "finished"
)

// Event is one message from a running operation
type Event struct {
	OperationID string          `json:"operation_id"`
	Kind        Kind            `json:"kind"`
	Type        EventType       `json:"type"`
	Line        string          `json:"line,omitempty"`
	Percent     int             `json:"percent,omitempty"`
	Result      *process.Result `json:"result,omitempty"`
	Time        time.Time       `json:"time"`
}

// Func is the body of an operation. Output goes to sink; the returned
// Result becomes the finished event.
type Func func(ctx context.Context, sink process.Sink) process.Result

// Recorder persists operation history. Errors are logged, never fatal.
type Recorder interface {
	Started(op Operation) error
	Finished(op Operation) error
}

// DefaultBuffer is the event channel capacity
const DefaultBuffer = 256

// Controller gates operations per kind and publishes their events
type Controller struct {
	events   chan Event
	recorder Recorder

	mu     sync.Mutex
	active map[Kind]*Operation
	closed bool
	wg     sync.WaitGroup
}

// NewController creates a controller. recorder may be nil.
func NewController(recorder Recorder) *Controller {
	return &Controller{
		events:   make(chan Event, DefaultBuffer),
		recorder: recorder,
		active:   make(map[Kind]*Operation),
	}
}

// Events returns the ordered event channel. It is closed by Close.
func (c *Controller) Events() <-chan Event {
	return c.events
}

// Trigger starts fn in the background unless an operation of the same kind
// is already running, in which case nothing happens and started is false.
func (c *Controller) Trigger(kind Kind, target string, fn Func) (id string, started bool) {
	c.mu.Lock()
	if c.closed || c.active[kind] != nil {
		c.mu.Unlock()
		log.Debug("Operation already in progress", "kind", kind)
		return "", false
	}
	op := &Operation{
		ID:        uuid.NewString(),
		Kind:      kind,
		Target:    target,
		Status:    StatusRunning,
		StartedAt: time.Now(),
	}
	c.active[kind] = op
	c.wg.Add(1)
	c.mu.Unlock()

	log.Info("Operation started", "id", op.ID, "kind", kind, "target", target)
	c.record(c.recorderStarted, *op)
	c.emit(Event{OperationID: op.ID, Kind: kind, Type: EventStarted, Line: target})

	go c.run(op, fn)
	return op.ID, true
}

func (c *Controller) run(op *Operation, fn Func) {
	result := process.Failed("operation did not return")

	defer c.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			log.Error("Operation recovered from panic", "id", op.ID, "kind", op.Kind, "panic", fmt.Sprintf("%v", r))
			result = process.Failed("internal error (panic): %v", r)
		}

		now := time.Now()
		done := *op
		done.FinishedAt = &now
		done.Result = result
		done.Status = StatusFailed
		if result.Succeeded {
			done.Status = StatusSucceeded
		}

		c.mu.Lock()
		delete(c.active, op.Kind)
		c.mu.Unlock()

		c.record(c.recorderFinished, done)
		log.Info("Operation finished", "id", op.ID, "kind", op.Kind, "status", done.Status)
		c.emit(Event{OperationID: op.ID, Kind: op.Kind, Type: EventFinished, Result: &done.Result})
	}()

	result = fn(context.Background(), &eventSink{c: c, op: op})
}

// Busy reports whether an operation of kind is running
func (c *Controller) Busy(kind Kind) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active[kind] != nil
}

// Active returns a snapshot of the running operations
func (c *Controller) Active() []Operation {
	c.mu.Lock()
	defer c.mu.Unlock()

	ops := make([]Operation, 0, len(c.active))
	for _, k := range Kinds {
		if op := c.active[k]; op != nil {
			ops = append(ops, *op)
		}
	}
	return ops
}

// Wait blocks until every running operation has finished
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Close refuses new operations, waits for running ones and closes the
// event channel. Events must keep being drained until the channel closes.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.wg.Wait()
	close(c.events)
}

func (c *Controller) emit(e Event) {
	e.Time = time.Now()
	c.events <- e
}

func (c *Controller) recorderStarted(op Operation) error  { return c.recorder.Started(op) }
func (c *Controller) recorderFinished(op Operation) error { return c.recorder.Finished(op) }

func (c *Controller) record(fn func(Operation) error, op Operation) {
	if c.recorder == nil {
		return
	}
	if err := fn(op); err != nil {
		log.Warn("Failed to record operation", "id", op.ID, "error", err)
	}
}

// eventSink turns process output into events of one operation
type eventSink struct {
	c  *Controller
	op *Operation
}

func (s *eventSink) Append(line string) {
	s.c.emit(Event{OperationID: s.op.ID, Kind: s.op.Kind, Type: EventLine, Line: line})
}

func (s *eventSink) Overwrite(line string) {
	s.c.emit(Event{OperationID: s.op.ID, Kind: s.op.Kind, Type: EventOverwrite, Line: line})
}

func (s *eventSink) Progress(percent int) {
	s.c.emit(Event{OperationID: s.op.ID, Kind: s.op.Kind, Type: EventProgress, Percent: percent})
}
