package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/kdells/postflight/internal/model"
	"github.com/kdells/postflight/internal/store"
)

// Dispatcher executes deferred tasks after their request's response has been
// written. Each task runs in its own goroutine; goroutines are launched in
// registration order, but completion order is not guaranteed.
type Dispatcher struct {
	store  store.Store
	logger *slog.Logger
	broker *Broker
	wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher that records task outcomes in s.
func NewDispatcher(s store.Store, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		store:  s,
		logger: logger,
		broker: NewBroker(),
	}
}

// Broker returns the dispatcher's completion-event broker for SSE subscription.
func (d *Dispatcher) Broker() *Broker {
	return d.broker
}

// Dispatch takes ownership of the list's pending tasks and launches each in
// its own goroutine. A record with status "pending" is stored per task before
// any of them start. Dispatch never waits on task execution.
func (d *Dispatcher) Dispatch(l *List) {
	taken := l.take()
	if len(taken) == 0 {
		return
	}
	requestID := l.requestID

	now := time.Now().UTC()
	for _, p := range taken {
		rec := &model.Task{
			ID:        p.id,
			RequestID: requestID,
			Name:      p.name,
			Status:    model.StatusPending,
			CreatedAt: now,
		}
		if err := d.store.CreateTask(context.Background(), rec); err != nil {
			d.logger.Error("failed to create task record", "task_id", p.id, "error", err)
		}
		tasksScheduled.WithLabelValues(p.name).Inc()
	}

	// Per-request drain tracking so the event topic closes once every task
	// of this request has reached a terminal state.
	var requestWG sync.WaitGroup
	for _, p := range taken {
		requestWG.Add(1)
		d.wg.Add(1)
		go func(p pending) {
			defer d.wg.Done()
			defer requestWG.Done()
			d.execute(requestID, p)
		}(p)
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		requestWG.Wait()
		d.broker.Close(requestID)
	}()
}

// Wait blocks until all in-flight task goroutines complete.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// execute runs one task through its lifecycle: pending→running→completed/failed.
// Failures are logged and swallowed; they never propagate to sibling tasks or
// to the response that scheduled the work.
func (d *Dispatcher) execute(requestID string, p pending) {
	if err := d.store.UpdateTaskStatus(context.Background(), p.id, model.StatusRunning); err != nil {
		d.logger.Error("failed to transition task to running", "task_id", p.id, "error", err)
	}

	start := time.Now()
	d.logger.Info("task started",
		"task_id", p.id,
		"task", p.name,
		"request_id", requestID,
	)

	err := runTask(p.fn)
	durationMS := int(time.Since(start).Milliseconds())
	now := time.Now().UTC()

	rec := &model.Task{
		ID:         p.id,
		RequestID:  requestID,
		Name:       p.name,
		Status:     model.StatusCompleted,
		DurationMS: &durationMS,
		StartedAt:  &start,
		FinishedAt: &now,
	}
	if err != nil {
		rec.Status = model.StatusFailed
		rec.Error = err.Error()
		d.logger.Error("task failed",
			"task_id", p.id,
			"task", p.name,
			"request_id", requestID,
			"duration_ms", durationMS,
			"error", err,
		)
	} else {
		d.logger.Info("task completed",
			"task_id", p.id,
			"task", p.name,
			"request_id", requestID,
			"duration_ms", durationMS,
		)
	}

	if err := d.store.UpdateTask(context.Background(), rec); err != nil {
		d.logger.Error("failed to update task record", "task_id", p.id, "error", err)
	}

	tasksFinished.WithLabelValues(p.name, rec.Status).Inc()
	taskDuration.WithLabelValues(p.name).Observe(time.Since(start).Seconds())

	d.broker.Publish(requestID, Event{
		TaskID:     p.id,
		Name:       p.name,
		Status:     rec.Status,
		Error:      rec.Error,
		DurationMS: durationMS,
	})
}

// runTask invokes fn with a background context, converting a panic into an
// error so one task never takes down the process or its siblings.
func runTask(fn Func) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panic: %v\n%s", r, debug.Stack())
		}
	}()
	return fn(context.Background())
}
