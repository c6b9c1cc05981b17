// Package ledger implements the bucket arithmetic of the finance core:
// atomic spend/receive primitives over purpose-tagged buckets, and the
// two-leg transfer saga built on top of them.
package ledger

import (
	"context"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/mstetsenko/pouch/internal/domain"
	"github.com/mstetsenko/pouch/internal/store"
)

// Ledger exposes the two mutation primitives every money movement in the
// system reduces to. It owns no state; the store provides atomicity and
// the authoritative post-mutation balances.
type Ledger struct {
	store store.Store
	log   zerolog.Logger
}

// New creates a Ledger on top of the given store.
func New(st store.Store, log zerolog.Logger) *Ledger {
	return &Ledger{store: st, log: log.With().Str("component", "ledger").Logger()}
}

// Movement describes one spend or receive. Amount is always positive;
// the operation decides the sign.
type Movement struct {
	AccountID   string
	Bucket      domain.BucketKind
	BucketRef   string
	Amount      decimal.Decimal
	Category    string
	Description string
	Date        civil.Date

	// TransferID groups saga legs; IdempotencyKey makes the movement
	// replay-safe. Both are optional for standalone movements.
	TransferID     string
	IdempotencyKey string

	// Classification is attached to liability payment movements.
	Classification *domain.CycleSnapshot
}

func (m Movement) validate() error {
	if m.AccountID == "" {
		return domain.E(domain.CodeInvalidInput, "account id is required")
	}
	if err := domain.RequirePositive(m.Amount); err != nil {
		return err
	}
	if !m.Bucket.Valid() {
		return domain.Ef(domain.CodeUnknownBucket, "unknown bucket kind %q", m.Bucket)
	}
	if m.Bucket.Stored() && m.BucketRef == "" {
		return domain.Ef(domain.CodeInvalidInput, "bucket kind %s requires a reference", m.Bucket)
	}
	if !m.Date.IsValid() {
		return domain.E(domain.CodeInvalidInput, "movement date is required")
	}
	if m.Category == "" {
		return domain.E(domain.CodeInvalidInput, "category is required")
	}
	return nil
}

// Entry is the authoritative outcome of one movement.
type Entry struct {
	TransactionID   string
	AccountBalance  decimal.Decimal
	BucketBalance   decimal.Decimal
	PersonalBalance decimal.Decimal
	Replayed        bool
}

// Spend debits the named bucket and appends a debit transaction. A
// personal spend is checked against the derived personal share, never a
// stored field.
func (l *Ledger) Spend(ctx context.Context, m Movement) (*Entry, error) {
	entry, err := l.apply(ctx, m, m.Amount.Neg())
	if err != nil {
		return nil, fmt.Errorf("Spend: %w", err)
	}
	return entry, nil
}

// Receive credits the named bucket, creating it on first credit, and
// appends a credit transaction.
func (l *Ledger) Receive(ctx context.Context, m Movement) (*Entry, error) {
	entry, err := l.apply(ctx, m, m.Amount)
	if err != nil {
		return nil, fmt.Errorf("Receive: %w", err)
	}
	return entry, nil
}

func (l *Ledger) apply(ctx context.Context, m Movement, signed decimal.Decimal) (*Entry, error) {
	if err := m.validate(); err != nil {
		return nil, err
	}

	result, err := l.store.ApplyBucketDelta(ctx, store.BucketDelta{
		AccountID:      m.AccountID,
		Kind:           m.Bucket,
		Ref:            m.BucketRef,
		Amount:         signed,
		IdempotencyKey: m.IdempotencyKey,
		Transaction: &domain.Transaction{
			AccountID:      m.AccountID,
			Amount:         signed,
			Category:       m.Category,
			Description:    m.Description,
			Date:           m.Date,
			BucketKind:     m.Bucket,
			BucketRef:      m.BucketRef,
			TransferID:     m.TransferID,
			Classification: m.Classification,
		},
	})
	if err != nil {
		if domain.CodeOf(err).Fatal() {
			l.log.Error().Err(err).
				Str("account_id", m.AccountID).
				Str("bucket", string(m.Bucket)).
				Str("bucket_ref", m.BucketRef).
				Msg("ledger invariant violated, account quarantined")
		}
		return nil, err
	}

	l.log.Debug().
		Str("account_id", m.AccountID).
		Str("bucket", string(m.Bucket)).
		Str("bucket_ref", m.BucketRef).
		Str("amount", domain.FormatAmount(signed)).
		Str("category", m.Category).
		Bool("replayed", result.Replayed).
		Msg("ledger movement applied")

	return &Entry{
		TransactionID:   result.TransactionID,
		AccountBalance:  result.AccountBalance,
		BucketBalance:   result.BucketBalance,
		PersonalBalance: result.PersonalBalance,
		Replayed:        result.Replayed,
	}, nil
}

// Buckets reads the stored buckets of an account together with the
// derived personal share.
func (l *Ledger) Buckets(ctx context.Context, accountID string) ([]domain.Bucket, decimal.Decimal, error) {
	account, err := l.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, decimal.Zero, fmt.Errorf("Buckets: %w", err)
	}
	buckets, err := l.store.ReadBuckets(ctx, accountID)
	if err != nil {
		return nil, decimal.Zero, fmt.Errorf("Buckets: %w", err)
	}
	return buckets, account.PersonalBalance(buckets), nil
}
