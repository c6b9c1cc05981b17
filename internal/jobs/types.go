// Package jobs defines the background task model: compensation retries
// for failed transfers and the periodic maintenance work (bill status
// refresh, projection export, snapshot archival, calendar sync).
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Kind names one category of background work.
type Kind string

const (
	// KindCompensateTransfer restores the source bucket of a transfer
	// whose destination leg failed.
	KindCompensateTransfer Kind = "compensate_transfer"
	// KindRefreshBills realigns unpaid bill statuses with the calendar.
	KindRefreshBills Kind = "refresh_bills"
	// KindExportProjection pushes settled transactions and cycle
	// snapshots to the analytics dataset.
	KindExportProjection Kind = "export_projection"
	// KindArchiveSnapshot uploads a full ledger snapshot to object
	// storage.
	KindArchiveSnapshot Kind = "archive_snapshot"
	// KindSyncNotion mirrors the bill calendar to Notion.
	KindSyncNotion Kind = "sync_notion"
)

// Status is the queue-side lifecycle of a task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusRetrying  Status = "retrying"
)

// Task is one unit of background work. The payload is opaque to the
// queue; handlers decode it by kind.
type Task struct {
	ID      string          `json:"id"`
	Kind    Kind            `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`

	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`

	// RetryCount counts re-deliveries so far; the queue gives up once it
	// reaches MaxRetries.
	RetryCount int `json:"retry_count"`
	MaxRetries int `json:"max_retries"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewTask builds a task of the given kind with payload marshalled in.
func NewTask(kind Kind, payload any) (*Task, error) {
	task := &Task{Kind: kind}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("NewTask: encoding %s payload: %w", kind, err)
		}
		task.Payload = data
	}
	return task, nil
}

// Decode unmarshals the payload into v.
func (t *Task) Decode(v any) error {
	if len(t.Payload) == 0 {
		return fmt.Errorf("Decode: task %s has no payload", t.ID)
	}
	if err := json.Unmarshal(t.Payload, v); err != nil {
		return fmt.Errorf("Decode: task %s: %w", t.ID, err)
	}
	return nil
}

// Handler processes one task. A returned error requeues the task until
// its retries run out.
type Handler func(ctx context.Context, task *Task) error

// Publisher enqueues tasks for asynchronous processing.
type Publisher interface {
	Publish(ctx context.Context, task *Task) error
	Close() error
}

// Consumer drains the queue through a handler.
type Consumer interface {
	Start(ctx context.Context, handler Handler) error
	// Stop stops consuming and waits for in-flight tasks to finish.
	Stop(ctx context.Context) error
}

// TaskStore tracks task state so runs can be inspected after the fact.
type TaskStore interface {
	// SaveTask saves or updates a task's state.
	SaveTask(ctx context.Context, task *Task) error
	GetTask(ctx context.Context, taskID string) (*Task, error)
	ListTasks(ctx context.Context, filter Filter) ([]*Task, error)
}

// Filter narrows ListTasks.
type Filter struct {
	Kind   Kind
	Status Status
	Limit  int
	Offset int
}
