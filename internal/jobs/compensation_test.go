package jobs

import (
	"context"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mstetsenko/pouch/internal/domain"
	"github.com/mstetsenko/pouch/internal/ledger"
)

type publisherMock struct {
	PublishFunc func(ctx context.Context, task *Task) error
	Published []*Task
}

func (m *publisherMock) Publish(ctx context.Context, task *Task) error {
	m.Published = append(m.Published, task)
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, task)
	}
	return nil
}

func (m *publisherMock) Close() error { return nil }

func TestCompensationQueueWrapsTask(t *testing.T) {
	pub := &publisherMock{}
	q := NewCompensationQueue(pub)

	original := ledger.CompensationTask{
		TransferID:  "t-1",
		AccountID:   "acc-1",
		Bucket:      domain.BucketGoal,
		BucketRef:   "goal-1",
		Amount:      decimal.RequireFromString("75.50"),
		Date:        civil.Date{Year: 2024, Month: 5, Day: 2},
		Description: "compensation for failed transfer",
	}
	require.NoError(t, q.EnqueueCompensation(context.Background(), original))

	require.Len(t, pub.Published, 1)
	task := pub.Published[0]
	assert.Equal(t, KindCompensateTransfer, task.Kind)

	var decoded ledger.CompensationTask
	require.NoError(t, task.Decode(&decoded))
	assert.Equal(t, original.TransferID, decoded.TransferID)
	assert.Equal(t, original.Bucket, decoded.Bucket)
	assert.True(t, decoded.Amount.Equal(original.Amount))
	assert.Equal(t, original.Date, decoded.Date)
}

func TestTaskPayloadDecode(t *testing.T) {
	task, err := NewTask(KindArchiveSnapshot, struct {
		Label string `json:"label"`
	}{Label: "month-end"})
	require.NoError(t, err)

	var payload struct {
		Label string `json:"label"`
	}
	require.NoError(t, task.Decode(&payload))
	assert.Equal(t, "month-end", payload.Label)

	bare, err := NewTask(KindRefreshBills, nil)
	require.NoError(t, err)
	assert.Nil(t, bare.Payload)
	assert.Error(t, bare.Decode(&payload), "no payload to decode")
}
