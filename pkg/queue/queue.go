// Package queue provides a process-local at-least-once task queue. It
// carries the durable execution path between submission and the worker
// pool; exactly-once semantics come from the admission gate upstream, not
// from the queue, so handlers must tolerate redelivery.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/skillflow/skillflow/pkg/telemetry"
)

// ErrQueueClosed is returned by Enqueue after Close.
var ErrQueueClosed = errors.New("queue is closed")

// Handler processes one delivery of a named task.
type Handler func(ctx context.Context, args json.RawMessage) error

// Config controls queue sizing and redelivery.
type Config struct {
	// Workers is the number of concurrent handler goroutines.
	Workers int `yaml:"workers" validate:"min=1"`
	// Buffer is the channel capacity; Enqueue blocks when full.
	Buffer int `yaml:"buffer" validate:"min=1"`
	// MaxDeliveries caps attempts per task before it is dropped.
	MaxDeliveries int `yaml:"max_deliveries" validate:"min=1"`
	// RequeueDelay is the wait before a failed task is redelivered.
	RequeueDelay time.Duration `yaml:"requeue_delay"`
}

// DefaultConfig returns the default queue configuration.
func DefaultConfig() Config {
	return Config{
		Workers:       4,
		Buffer:        256,
		MaxDeliveries: 3,
		RequeueDelay:  time.Second,
	}
}

type delivery struct {
	task     string
	args     json.RawMessage
	routing  string
	attempts int
}

// Queue dispatches named tasks to registered handlers through a bounded
// worker pool. Failed deliveries are requeued after a delay until the
// delivery cap is reached, then dropped with a log entry.
type Queue struct {
	cfg     Config
	logger  *telemetry.Logger
	baseCtx context.Context

	mu       sync.RWMutex
	handlers map[string]Handler
	closed   bool

	tasks chan *delivery
	wg    sync.WaitGroup
}

// New creates a queue and starts its worker pool. ctx is the base context
// handed to handlers; canceling it aborts in-flight work.
func New(ctx context.Context, cfg Config, logger *telemetry.Logger) *Queue {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Buffer < 1 {
		cfg.Buffer = 1
	}
	if cfg.MaxDeliveries < 1 {
		cfg.MaxDeliveries = 1
	}
	if logger == nil {
		logger = telemetry.NopLogger()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	q := &Queue{
		cfg:      cfg,
		logger:   logger.Component("queue"),
		baseCtx:  ctx,
		handlers: make(map[string]Handler),
		tasks:    make(chan *delivery, cfg.Buffer),
	}

	for i := 0; i < cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}

	return q
}

// Register binds a handler to a task name. Last writer wins. Handlers
// should be registered before the first Enqueue; a delivery for an unbound
// name is dropped.
func (q *Queue) Register(task string, h Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[task] = h
}

// Enqueue submits a task for asynchronous execution. args is marshaled to
// JSON; routing is an opaque key carried for log correlation.
func (q *Queue) Enqueue(ctx context.Context, task string, args any, routing string) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("failed to marshal args for task %s: %w", task, err)
	}
	return q.push(ctx, &delivery{task: task, args: raw, routing: routing, attempts: 0})
}

func (q *Queue) push(ctx context.Context, d *delivery) error {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return ErrQueueClosed
	}
	// Holding the read lock over the send keeps Close from closing the
	// channel mid-send.
	defer q.mu.RUnlock()

	select {
	case q.tasks <- d:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) worker() {
	defer q.wg.Done()

	for d := range q.tasks {
		q.dispatch(d)
	}
}

func (q *Queue) dispatch(d *delivery) {
	log := q.logger.WithField("task", d.task).WithField("routing", d.routing)

	q.mu.RLock()
	h, ok := q.handlers[d.task]
	q.mu.RUnlock()
	if !ok {
		log.Error("no handler registered, dropping task")
		return
	}

	d.attempts++
	err := h(q.baseCtx, d.args)
	if err == nil {
		return
	}

	if d.attempts >= q.cfg.MaxDeliveries {
		log.WithError(err).WithField("attempts", d.attempts).
			Error("delivery cap reached, dropping task")
		return
	}

	log.WithError(err).WithField("attempts", d.attempts).Warn("task failed, requeueing")
	q.requeueLater(d)
}

// requeueLater redelivers after the configured delay. The push happens off
// the worker goroutine so a full channel cannot deadlock the pool.
func (q *Queue) requeueLater(d *delivery) {
	go func() {
		if q.cfg.RequeueDelay > 0 {
			select {
			case <-time.After(q.cfg.RequeueDelay):
			case <-q.baseCtx.Done():
				return
			}
		}
		if err := q.push(q.baseCtx, d); err != nil {
			q.logger.WithField("task", d.task).WithError(err).
				Warn("requeue dropped")
		}
	}()
}

// Close stops accepting tasks and waits for in-flight handlers to finish.
// Tasks already buffered are still delivered.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.tasks)
	q.mu.Unlock()

	q.wg.Wait()
}
