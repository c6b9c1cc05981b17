// Package inmemory provides a channel-backed task queue and task store
// for single-process deployments and tests.
package inmemory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mstetsenko/pouch/internal/jobs"
)

// QueueConfig sizes the queue. The zero value falls back to defaults.
type QueueConfig struct {
	// BufferSize is how many tasks may wait before Publish blocks.
	BufferSize int
	// Workers is the number of concurrent consumers.
	Workers    int
	// RetryDelay is the base backoff; the n-th redelivery waits n times
	// this long.
	RetryDelay time.Duration
	// MaxRetries is the default redelivery budget for tasks that do not
	// set their own.
	MaxRetries int
}

// DefaultQueueConfig returns the stock sizing.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{BufferSize: 64, Workers: 4, RetryDelay: time.Second, MaxRetries: 3}
}

func (c QueueConfig) withDefaults() QueueConfig {
	d := DefaultQueueConfig()
	if c.BufferSize <= 0 {
		c.BufferSize = d.BufferSize
	}
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = d.RetryDelay
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = d.MaxRetries
	}
	return c
}

// Queue is an in-memory publisher and consumer built on a channel and a
// worker pool. Suitable for a single instance; a multi-instance
// deployment would swap in a broker behind the same interfaces.
type Queue struct {
	cfg    QueueConfig
	taskChan  chan *jobs.Task
	closeChan chan struct{}
	wg     sync.WaitGroup
	mu     sync.RWMutex
	store  jobs.TaskStore
	closed bool

	// exhausted is invoked after a task burns through its retries, so
	// work that must never be dropped silently can escalate.
	exhausted func(ctx context.Context, task *jobs.Task)
}

// NewQueue creates the queue. store may be nil to skip bookkeeping.
func NewQueue(cfg QueueConfig, store jobs.TaskStore) *Queue {
	cfg = cfg.withDefaults()
	return &Queue{
		cfg:       cfg,
		taskChan:  make(chan *jobs.Task, cfg.BufferSize),
		closeChan: make(chan struct{}),
		store:     store,
	}
}

// OnExhausted registers the final-failure callback. Set it before Start.
func (q *Queue) OnExhausted(fn func(ctx context.Context, task *jobs.Task)) {
	q.exhausted = fn
}

// Publish implements jobs.Publisher.
func (q *Queue) Publish(ctx context.Context, task *jobs.Task) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return fmt.Errorf("queue is closed")
	}

	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.Status == "" {
		task.Status = jobs.StatusPending
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}
	if task.MaxRetries == 0 {
		task.MaxRetries = q.cfg.MaxRetries
	}

	if q.store != nil {
		if err := q.store.SaveTask(ctx, task); err != nil {
			return fmt.Errorf("saving task: %w", err)
		}
	}

	select {
	case q.taskChan <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.closeChan:
		return fmt.Errorf("queue is closed")
	}
}

// Start implements jobs.Consumer.
func (q *Queue) Start(ctx context.Context, handler jobs.Handler) error {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return fmt.Errorf("queue is closed")
	}
	q.mu.RUnlock()

	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, handler)
	}
	return nil
}

func (q *Queue) worker(ctx context.Context, handler jobs.Handler) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			return
		case task := <-q.taskChan:
			if task == nil {
				return
			}
			q.process(ctx, task, handler)
		}
	}
}

func (q *Queue) process(ctx context.Context, task *jobs.Task, handler jobs.Handler) {
	task.Status = jobs.StatusRunning
	now := time.Now()
	task.StartedAt = &now
	q.save(ctx, task)

	err := handler(ctx, task)

	completedAt := time.Now()
	task.CompletedAt = &completedAt

	if err == nil {
		task.Status = jobs.StatusCompleted
		task.Error = ""
		q.save(ctx, task)
		return
	}

	task.Error = err.Error()
	if task.RetryCount >= task.MaxRetries {
		q.fail(ctx, task)
		return
	}

	task.RetryCount++
	task.Status = jobs.StatusRetrying
	q.save(ctx, task)

	backoff := time.Duration(task.RetryCount) * q.cfg.RetryDelay
	time.AfterFunc(backoff, func() {
		task.Status = jobs.StatusPending
		task.StartedAt = nil
		task.CompletedAt = nil
		// The originating request is long gone; redelivery belongs to
		// the queue itself.
		if err := q.Publish(context.Background(), task); err != nil {
			q.fail(context.Background(), task)
		}
	})
}

// fail marks the task failed and fires the exhaustion callback so the
// owner of the work can escalate.
func (q *Queue) fail(ctx context.Context, task *jobs.Task) {
	task.Status = jobs.StatusFailed
	q.save(ctx, task)
	if q.exhausted != nil {
		q.exhausted(ctx, task)
	}
}

func (q *Queue) save(ctx context.Context, task *jobs.Task) {
	if q.store != nil {
		_ = q.store.SaveTask(ctx, task)
	}
}

// Stop implements jobs.Consumer. It waits for in-flight tasks up to the
// context deadline.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeChan)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements jobs.Publisher.
func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

var _ jobs.Publisher = (*Queue)(nil)
var _ jobs.Consumer = (*Queue)(nil)
