package ledger

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/mstetsenko/pouch/internal/domain"
	"github.com/mstetsenko/pouch/internal/store"
)

// CompensationTask is the work item for restoring a debited source
// bucket after the destination leg of a transfer failed. The task is
// idempotent: its key dedupes replays in the store.
type CompensationTask struct {
	TransferID  string            `json:"transfer_id"`
	AccountID   string            `json:"account_id"`
	Bucket      domain.BucketKind `json:"bucket"`
	BucketRef   string            `json:"bucket_ref"`
	Amount      decimal.Decimal   `json:"amount"`
	Date        civil.Date        `json:"date"`
	Description string            `json:"description"`
}

// CompensationEnqueuer hands a compensation task to a background queue
// for continued retries once the in-process attempts are exhausted.
type CompensationEnqueuer interface {
	EnqueueCompensation(ctx context.Context, task CompensationTask) error
}

// OrchestratorConfig tunes the in-process compensation retry loop.
type OrchestratorConfig struct {
	// ImmediateRetries is the number of compensation attempts made
	// before the task is handed to the queue.
	ImmediateRetries int
	// RetryDelay is the base delay between attempts; the n-th retry
	// waits n times this long.
	RetryDelay       time.Duration
}

// DefaultOrchestratorConfig matches the queue worker's pacing.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{ImmediateRetries: 3, RetryDelay: 200 * time.Millisecond}
}

// Orchestrator composes two ledger movements into one logical transfer:
// debit a bucket on the source account, credit a bucket on the
// destination account. The second leg failing triggers a mandatory
// compensating credit back onto the source, so a transfer never leaves
// money debited with no matching credit.
type Orchestrator struct {
	ledger *Ledger
	store  store.Store
	queue  CompensationEnqueuer
	cfg    OrchestratorConfig
	log    zerolog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// NewOrchestrator wires the transfer saga. queue may be nil, in which
// case exhausted compensations escalate straight to an alert.
func NewOrchestrator(l *Ledger, st store.Store, queue CompensationEnqueuer, cfg OrchestratorConfig, log zerolog.Logger) *Orchestrator {
	if cfg.ImmediateRetries <= 0 {
		cfg.ImmediateRetries = DefaultOrchestratorConfig().ImmediateRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultOrchestratorConfig().RetryDelay
	}
	return &Orchestrator{
		ledger: l,
		store:  st,
		queue:  queue,
		cfg:    cfg,
		log:    log.With().Str("component", "transfer").Logger(),
		sleep:  sleepContext,
	}
}

// TransferRequest names both ends of the move. X and Y may be the same
// account: contributing to a goal earmarks funds in place by debiting
// personal and crediting the goal bucket on one account.
type TransferRequest struct {
	SourceAccountID string
	SourceBucket    domain.BucketKind
	SourceRef       string

	DestAccountID string
	DestBucket    domain.BucketKind
	DestRef       string

	Amount      decimal.Decimal
	Category    string
	Description string
	Date        civil.Date
}

// Receipt reports a completed transfer. The source transaction id is the
// canonical reference for domain records linking to this transfer.
type Receipt struct {
	TransferID          string
	SourceTransactionID string
	DestTransactionID   string
	Source              *Entry
	Dest                *Entry
}

// Transfer runs the two-leg saga. On a source failure nothing is
// recorded. On a destination failure the source is restored by a
// compensating credit before the error is surfaced; if the compensation
// cannot land either, it is queued for retries and escalated, never
// dropped.
func (o *Orchestrator) Transfer(ctx context.Context, req TransferRequest) (*Receipt, error) {
	if err := o.validate(ctx, req); err != nil {
		return nil, fmt.Errorf("Transfer: %w", err)
	}
	if req.Category == "" {
		req.Category = domain.CategoryTransfer
	}

	transferID := uuid.NewString()
	log := o.log.With().Str("transfer_id", transferID).Logger()

	sourceEntry, err := o.ledger.Spend(ctx, Movement{
		AccountID:      req.SourceAccountID,
		Bucket:         req.SourceBucket,
		BucketRef:      req.SourceRef,
		Amount:         req.Amount,
		Category:       req.Category,
		Description:    req.Description,
		Date:           req.Date,
		TransferID:     transferID,
		IdempotencyKey: transferID + ":spend",
	})
	if err != nil {
		// First leg failed: abort, nothing was recorded.
		return nil, fmt.Errorf("Transfer: source leg: %w", err)
	}

	record := &domain.Transfer{
		ID:                  transferID,
		SourceAccountID:     req.SourceAccountID,
		SourceBucketKind:    req.SourceBucket,
		SourceBucketRef:     req.SourceRef,
		DestAccountID:       req.DestAccountID,
		DestBucketKind:      req.DestBucket,
		DestBucketRef:       req.DestRef,
		Amount:              req.Amount,
		Category:            req.Category,
		Date:                req.Date,
		SourceTransactionID: sourceEntry.TransactionID,
		Status:              domain.TransferPending,
	}
	if err := o.store.RecordTransfer(ctx, record); err != nil {
		comp := o.compensationTask(transferID, req)
		compErr := o.compensateWithRetries(ctx, comp)
		return nil, o.transferFailed(ctx, log, transferID, comp, compErr,
			fmt.Errorf("recording transfer: %w", err))
	}

	destEntry, err := o.ledger.Receive(ctx, Movement{
		AccountID:      req.DestAccountID,
		Bucket:         req.DestBucket,
		BucketRef:      req.DestRef,
		Amount:         req.Amount,
		Category:       req.Category,
		Description:    req.Description,
		Date:           req.Date,
		TransferID:     transferID,
		IdempotencyKey: transferID + ":receive",
	})
	if err != nil {
		comp := o.compensationTask(transferID, req)
		compErr := o.compensateWithRetries(ctx, comp)
		return nil, o.transferFailed(ctx, log, transferID, comp, compErr,
			fmt.Errorf("destination leg: %w", err))
	}

	record.DestTransactionID = destEntry.TransactionID
	record.Status = domain.TransferCompleted
	if err := o.store.RecordTransfer(ctx, record); err != nil {
		// Both legs are applied; losing the link update is log-worthy
		// but not worth unwinding real money movements.
		log.Error().Err(err).Msg("transfer completed but link update failed")
	}

	log.Info().
		Str("source_account", req.SourceAccountID).
		Str("dest_account", req.DestAccountID).
		Str("amount", domain.FormatAmount(req.Amount)).
		Str("category", req.Category).
		Msg("transfer completed")

	return &Receipt{
		TransferID:          transferID,
		SourceTransactionID: sourceEntry.TransactionID,
		DestTransactionID:   destEntry.TransactionID,
		Source:              sourceEntry,
		Dest:                destEntry,
	}, nil
}

func (o *Orchestrator) validate(ctx context.Context, req TransferRequest) error {
	if err := domain.RequirePositive(req.Amount); err != nil {
		return err
	}
	if !req.Date.IsValid() {
		return domain.E(domain.CodeInvalidInput, "transfer date is required")
	}
	if req.SourceAccountID == req.DestAccountID &&
		req.SourceBucket == req.DestBucket && req.SourceRef == req.DestRef {
		return domain.E(domain.CodeInvalidInput, "transfer source and destination are the same bucket")
	}

	source, err := o.store.GetAccount(ctx, req.SourceAccountID)
	if err != nil {
		return err
	}
	dest, err := o.store.GetAccount(ctx, req.DestAccountID)
	if err != nil {
		return err
	}
	if source.Currency != dest.Currency {
		return domain.Ef(domain.CodeCurrencyMismatch,
			"cannot transfer between %s and %s accounts", source.Currency, dest.Currency)
	}
	return nil
}

func (o *Orchestrator) compensationTask(transferID string, req TransferRequest) CompensationTask {
	return CompensationTask{
		TransferID:  transferID,
		AccountID:   req.SourceAccountID,
		Bucket:      req.SourceBucket,
		BucketRef:   req.SourceRef,
		Amount:      req.Amount,
		Date:        req.Date,
		Description: "compensation for failed transfer",
	}
}

// compensateWithRetries makes the bounded in-process attempts.
func (o *Orchestrator) compensateWithRetries(ctx context.Context, task CompensationTask) error {
	var lastErr error
	for attempt := 1; attempt <= o.cfg.ImmediateRetries; attempt++ {
		if lastErr = o.Compensate(ctx, task); lastErr == nil {
			return nil
		}
		o.log.Warn().Err(lastErr).
			Str("transfer_id", task.TransferID).
			Int("attempt", attempt).
			Msg("compensation attempt failed")
		if attempt < o.cfg.ImmediateRetries {
			if err := o.sleep(ctx, time.Duration(attempt)*o.cfg.RetryDelay); err != nil {
				return err
			}
		}
	}
	return lastErr
}

// Compensate makes a single attempt to restore the source bucket. It is
// safe to call any number of times for the same task: the store replays
// the first successful credit.
func (o *Orchestrator) Compensate(ctx context.Context, task CompensationTask) error {
	_, err := o.ledger.Receive(ctx, Movement{
		AccountID:      task.AccountID,
		Bucket:         task.Bucket,
		BucketRef:      task.BucketRef,
		Amount:         task.Amount,
		Category:       domain.CategoryCompensation,
		Description:    task.Description,
		Date:           task.Date,
		TransferID:     task.TransferID,
		IdempotencyKey: task.TransferID + ":comp",
	})
	if err != nil {
		return fmt.Errorf("Compensate: %w", err)
	}
	if err := o.store.UpdateTransferStatus(ctx, task.TransferID, domain.TransferCompensated); err != nil {
		o.log.Warn().Err(err).Str("transfer_id", task.TransferID).
			Msg("compensation applied but status update failed")
	}
	return nil
}

// Escalate records a manual-reconciliation alert for a compensation that
// exhausted its retries. Called by the queue worker on final failure.
func (o *Orchestrator) Escalate(ctx context.Context, task CompensationTask, cause error) {
	o.log.Error().Err(cause).
		Str("transfer_id", task.TransferID).
		Str("account_id", task.AccountID).
		Str("amount", domain.FormatAmount(task.Amount)).
		Msg("compensation exhausted retries, escalating")

	if err := o.store.UpdateTransferStatus(ctx, task.TransferID, domain.TransferEscalated); err != nil {
		o.log.Error().Err(err).Str("transfer_id", task.TransferID).Msg("escalation status update failed")
	}
	alert := &domain.ReconciliationAlert{
		Kind:       domain.AlertCompensationFailed,
		AccountID:  task.AccountID,
		TransferID: task.TransferID,
		Amount:     task.Amount,
		Message: fmt.Sprintf("transfer %s: source bucket %s/%s is short %s and compensation keeps failing: %v",
			task.TransferID, task.Bucket, task.BucketRef, domain.FormatAmount(task.Amount), cause),
	}
	if err := o.store.RecordAlert(ctx, alert); err != nil {
		o.log.Error().Err(err).Str("transfer_id", task.TransferID).Msg("recording escalation alert failed")
	}
}

// transferFailed settles the saga bookkeeping after a failed second leg
// and builds the error surfaced to the caller.
func (o *Orchestrator) transferFailed(ctx context.Context, log zerolog.Logger, transferID string, task CompensationTask, compErr, cause error) error {
	if compErr == nil {
		log.Warn().Err(cause).Msg("transfer failed, source restored by compensation")
		return domain.Wrap(domain.CodeTransferFailed,
			"destination credit failed, source bucket restored", cause)
	}

	if o.queue != nil {
		if err := o.queue.EnqueueCompensation(ctx, task); err == nil {
			if err := o.store.UpdateTransferStatus(ctx, transferID, domain.TransferCompensationPending); err != nil {
				log.Warn().Err(err).Msg("compensation queued but status update failed")
			}
			log.Error().Err(compErr).Msg("transfer failed, compensation handed to queue")
			return domain.Wrap(domain.CodeTransferFailed,
				"destination credit failed, compensation is being retried", cause)
		}
		log.Error().Msg("compensation queue rejected task, escalating now")
	}

	o.Escalate(ctx, task, compErr)
	return domain.Wrap(domain.CodeTransferFailed,
		"destination credit failed and compensation was escalated", cause)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
