package inmemory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mstetsenko/pouch/internal/jobs"
)

func testQueue(t *testing.T, store jobs.TaskStore) *Queue {
	t.Helper()
	q := NewQueue(QueueConfig{BufferSize: 8, Workers: 2, RetryDelay: time.Millisecond, MaxRetries: 2}, store)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = q.Stop(ctx)
	})
	return q
}

func TestQueueProcessesTask(t *testing.T) {
	store := NewStore()
	q := testQueue(t, store)
	ctx := context.Background()

	handled := make(chan string, 1)
	require.NoError(t, q.Start(ctx, func(ctx context.Context, task *jobs.Task) error {
		var payload map[string]string
		if err := task.Decode(&payload); err != nil {
			return err
		}
		handled <- payload["name"]
		return nil
	}))

	task, err := jobs.NewTask(jobs.KindRefreshBills, map[string]string{"name": "nightly"})
	require.NoError(t, err)
	require.NoError(t, q.Publish(ctx, task))

	select {
	case name := <-handled:
		assert.Equal(t, "nightly", name)
	case <-time.After(time.Second):
		t.Fatal("task was never handled")
	}

	assert.Eventually(t, func() bool {
		saved, err := store.GetTask(ctx, task.ID)
		return err == nil && saved.Status == jobs.StatusCompleted
	}, time.Second, 5*time.Millisecond)
}

func TestQueueRetriesThenExhausts(t *testing.T) {
	store := NewStore()
	q := testQueue(t, store)
	ctx := context.Background()

	exhausted := make(chan *jobs.Task, 1)
	q.OnExhausted(func(ctx context.Context, task *jobs.Task) {
		exhausted <- task
	})

	var attempts atomic.Int32
	require.NoError(t, q.Start(ctx, func(ctx context.Context, task *jobs.Task) error {
		attempts.Add(1)
		return errors.New("still broken")
	}))

	task := &jobs.Task{Kind: jobs.KindCompensateTransfer, MaxRetries: 2}
	require.NoError(t, q.Publish(ctx, task))

	select {
	case failed := <-exhausted:
		assert.Equal(t, task.ID, failed.ID)
		assert.Equal(t, jobs.StatusFailed, failed.Status)
		assert.Equal(t, "still broken", failed.Error)
	case <-time.After(2 * time.Second):
		t.Fatal("task never exhausted its retries")
	}
	assert.Equal(t, int32(3), attempts.Load(), "first delivery plus two retries")

	saved, err := store.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusFailed, saved.Status)
	assert.Equal(t, 2, saved.RetryCount)
}

func TestQueueRejectsPublishAfterStop(t *testing.T) {
	q := NewQueue(QueueConfig{}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, q.Stop(ctx))

	task := &jobs.Task{Kind: jobs.KindRefreshBills}
	assert.Error(t, q.Publish(context.Background(), task))
}

func TestStoreListFiltersAndPages(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	for i, kind := range []jobs.Kind{jobs.KindRefreshBills, jobs.KindSyncNotion, jobs.KindRefreshBills} {
		require.NoError(t, store.SaveTask(ctx, &jobs.Task{
			ID:        string(rune('a' + i)),
			Kind:      kind,
			Status:    jobs.StatusCompleted,
			CreatedAt: time.Now().Add(time.Duration(i) * time.Minute),
		}))
	}

	refresh, err := store.ListTasks(ctx, jobs.Filter{Kind: jobs.KindRefreshBills})
	require.NoError(t, err)
	require.Len(t, refresh, 2)
	assert.Equal(t, "c", refresh[0].ID, "newest first")

	paged, err := store.ListTasks(ctx, jobs.Filter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, "b", paged[0].ID)

	empty, err := store.ListTasks(ctx, jobs.Filter{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, empty)
}
