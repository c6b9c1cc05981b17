package jobs

import (
	"context"
	"fmt"

	"github.com/mstetsenko/pouch/internal/ledger"
)

// CompensationQueue adapts a task publisher to the transfer
// orchestrator's enqueuer contract, so exhausted in-process
// compensations keep retrying in the background.
type CompensationQueue struct {
	pub Publisher
}

// NewCompensationQueue wraps the publisher.
func NewCompensationQueue(pub Publisher) *CompensationQueue {
	return &CompensationQueue{pub: pub}
}

// EnqueueCompensation implements ledger.CompensationEnqueuer.
func (q *CompensationQueue) EnqueueCompensation(ctx context.Context, task ledger.CompensationTask) error {
	t, err := NewTask(KindCompensateTransfer, task)
	if err != nil {
		return fmt.Errorf("EnqueueCompensation: %w", err)
	}
	if err := q.pub.Publish(ctx, t); err != nil {
		return fmt.Errorf("EnqueueCompensation: %w", err)
	}
	return nil
}

var _ ledger.CompensationEnqueuer = (*CompensationQueue)(nil)
