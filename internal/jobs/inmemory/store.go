package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/mstetsenko/pouch/internal/jobs"
)

// Store is an in-memory TaskStore. State is lost on restart; it exists
// for single-process runs and tests.
type Store struct {
	mu    sync.RWMutex
	tasks map[string]*jobs.Task
}

// NewStore creates an empty task store.
func NewStore() *Store {
	return &Store{tasks: make(map[string]*jobs.Task)}
}

func copyTask(t *jobs.Task) *jobs.Task {
	cp := *t
	if t.Payload != nil {
		cp.Payload = append([]byte(nil), t.Payload...)
	}
	if t.StartedAt != nil {
		at := *t.StartedAt
		cp.StartedAt = &at
	}
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		cp.CompletedAt = &at
	}
	return &cp
}

// SaveTask implements jobs.TaskStore, saving or updating.
func (s *Store) SaveTask(ctx context.Context, task *jobs.Task) error {
	if task.ID == "" {
		return fmt.Errorf("task id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks[task.ID] = copyTask(task)
	return nil
}

// GetTask implements jobs.TaskStore.
func (s *Store) GetTask(ctx context.Context, taskID string) (*jobs.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("task not found: %s", taskID)
	}
	return copyTask(task), nil
}

// ListTasks implements jobs.TaskStore, newest first.
func (s *Store) ListTasks(ctx context.Context, filter jobs.Filter) ([]*jobs.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*jobs.Task
	for _, task := range s.tasks {
		if filter.Kind != "" && task.Kind != filter.Kind {
			continue
		}
		if filter.Status != "" && task.Status != filter.Status {
			continue
		}
		result = append(result, copyTask(task))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []*jobs.Task{}, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}
	return result, nil
}

var _ jobs.TaskStore = (*Store)(nil)
