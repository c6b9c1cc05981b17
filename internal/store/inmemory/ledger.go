package inmemory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mstetsenko/pouch/internal/domain"
	"github.com/mstetsenko/pouch/internal/store"
)

// ApplyBucketDelta implements LedgerStore. The whole mutation happens
// under one lock: guard checks, balance moves, the optional transaction
// append and the idempotency record are a single atomic unit.
func (s *Store) ApplyBucketDelta(ctx context.Context, delta store.BucketDelta) (*store.DeltaResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if delta.IdempotencyKey != "" {
		if prev, ok := s.applied[delta.IdempotencyKey]; ok {
			cp := *prev
			cp.Replayed = true
			return &cp, nil
		}
	}

	if delta.Amount.IsZero() {
		return nil, domain.E(domain.CodeInvalidAmount, "delta amount must be non-zero")
	}
	if !delta.Kind.Valid() {
		return nil, domain.Ef(domain.CodeUnknownBucket, "unknown bucket kind %q", delta.Kind)
	}

	acc, ok := s.accounts[delta.AccountID]
	if !ok {
		return nil, domain.Ef(domain.CodeUnknownAccount, "account %s not found", delta.AccountID)
	}
	if acc.Frozen {
		return nil, domain.Ef(domain.CodeAccountFrozen, "account %s is frozen: %s", acc.ID, acc.FrozenReason)
	}
	if !acc.Active {
		return nil, domain.Ef(domain.CodeAccountInactive, "account %s is inactive", acc.ID)
	}

	// The pre-state allocation is needed both for the personal guard and
	// for the post-mutation invariant check.
	allocated := s.allocatedLocked(delta.AccountID)

	newAccountBalance := acc.Balance.Add(delta.Amount)
	var newBucketBalance decimal.Decimal
	var bucketToWrite *domain.Bucket

	if delta.Kind == domain.BucketPersonal {
		personal := acc.Balance.Sub(allocated)
		newBucketBalance = personal.Add(delta.Amount)
		if delta.Amount.IsNegative() && newBucketBalance.IsNegative() {
			return nil, domain.Ef(domain.CodeInsufficientBucketFunds,
				"personal funds on account %s hold %s, need %s",
				acc.ID, domain.FormatAmount(personal), domain.FormatAmount(delta.Amount.Neg()))
		}
	} else {
		key := bucketKey{accountID: delta.AccountID, kind: delta.Kind, ref: delta.Ref}
		existing, found := s.buckets[key]
		if !found {
			if delta.Amount.IsNegative() {
				return nil, domain.Ef(domain.CodeUnknownBucket,
					"bucket %s/%s does not exist on account %s", delta.Kind, delta.Ref, acc.ID)
			}
			existing = &domain.Bucket{AccountID: delta.AccountID, Kind: delta.Kind, Ref: delta.Ref, Balance: decimal.Zero}
		}
		newBucketBalance = existing.Balance.Add(delta.Amount)
		if newBucketBalance.IsNegative() {
			return nil, domain.Ef(domain.CodeInsufficientBucketFunds,
				"bucket %s/%s on account %s holds %s, need %s",
				delta.Kind, delta.Ref, acc.ID, domain.FormatAmount(existing.Balance), domain.FormatAmount(delta.Amount.Neg()))
		}
		allocated = allocated.Add(delta.Amount)
		bucketToWrite = &domain.Bucket{AccountID: delta.AccountID, Kind: delta.Kind, Ref: delta.Ref, Balance: newBucketBalance}
	}

	// Invariant: the stored buckets can never claim more than the
	// account holds. A violation means pre-existing drift; nothing is
	// committed, the account is quarantined.
	if allocated.GreaterThan(newAccountBalance) || newAccountBalance.IsNegative() {
		reason := "bucket total " + domain.FormatAmount(allocated) +
			" exceeds account balance " + domain.FormatAmount(newAccountBalance)
		_ = s.freezeLocked(acc.ID, reason)
		return nil, domain.Ef(domain.CodeLedgerCorruption, "account %s: %s", acc.ID, reason)
	}

	acc.Balance = newAccountBalance
	acc.UpdatedAt = time.Now()
	if bucketToWrite != nil {
		if bucketToWrite.Balance.IsZero() {
			delete(s.buckets, bucketKey{accountID: delta.AccountID, kind: delta.Kind, ref: delta.Ref})
		} else {
			s.buckets[bucketKey{accountID: delta.AccountID, kind: delta.Kind, ref: delta.Ref}] = bucketToWrite
		}
	}

	txnID := ""
	if delta.Transaction != nil {
		txn := *delta.Transaction
		if txn.ID == "" {
			txn.ID = uuid.NewString()
		}
		if txn.Currency == "" {
			txn.Currency = acc.Currency
		}
		txn.IdempotencyKey = delta.IdempotencyKey
		txn.CreatedAt = time.Now()
		s.transactions[txn.ID] = &txn
		s.txnOrder = append(s.txnOrder, txn.ID)
		txnID = txn.ID
	}

	result := &store.DeltaResult{
		AccountBalance:  acc.Balance,
		BucketBalance:   newBucketBalance,
		PersonalBalance: acc.Balance.Sub(s.allocatedLocked(acc.ID)),
		TransactionID:   txnID,
	}
	if delta.IdempotencyKey != "" {
		cp := *result
		s.applied[delta.IdempotencyKey] = &cp
	}
	return result, nil
}

// allocatedLocked sums the stored buckets of one account. Callers hold
// the lock.
func (s *Store) allocatedLocked(accountID string) decimal.Decimal {
	total := decimal.Zero
	for key, b := range s.buckets {
		if key.accountID == accountID {
			total = total.Add(b.Balance)
		}
	}
	return total
}

// RecordTransaction implements LedgerStore: a bare append outside any
// balance mutation.
func (s *Store) RecordTransaction(ctx context.Context, txn *domain.Transaction) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[txn.AccountID]; !ok {
		return "", domain.Ef(domain.CodeUnknownAccount, "account %s not found", txn.AccountID)
	}

	cp := *txn
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	cp.CreatedAt = time.Now()
	s.transactions[cp.ID] = &cp
	s.txnOrder = append(s.txnOrder, cp.ID)
	return cp.ID, nil
}

// ReadBuckets implements LedgerStore.
func (s *Store) ReadBuckets(ctx context.Context, accountID string) ([]domain.Bucket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.accounts[accountID]; !ok {
		return nil, domain.Ef(domain.CodeUnknownAccount, "account %s not found", accountID)
	}

	var result []domain.Bucket
	for key, b := range s.buckets {
		if key.accountID == accountID {
			result = append(result, *b)
		}
	}
	return result, nil
}

// ListTransactions implements LedgerStore, newest first.
func (s *Store) ListTransactions(ctx context.Context, filter store.TransactionFilter) ([]*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Transaction
	for i := len(s.txnOrder) - 1; i >= 0; i-- {
		txn := s.transactions[s.txnOrder[i]]
		if filter.AccountID != "" && txn.AccountID != filter.AccountID {
			continue
		}
		if filter.Category != "" && txn.Category != filter.Category {
			continue
		}
		if filter.From.IsValid() && txn.Date.Before(filter.From) {
			continue
		}
		if filter.To.IsValid() && txn.Date.After(filter.To) {
			continue
		}
		cp := *txn
		result = append(result, &cp)
		if filter.Limit > 0 && len(result) >= filter.Limit {
			break
		}
	}
	return result, nil
}

// RecordTransfer implements LedgerStore: save or update by id.
func (s *Store) RecordTransfer(ctx context.Context, transfer *domain.Transfer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *transfer
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	now := time.Now()
	if existing, ok := s.transfers[cp.ID]; ok {
		cp.CreatedAt = existing.CreatedAt
	} else {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	s.transfers[cp.ID] = &cp
	transfer.ID = cp.ID
	return nil
}

// UpdateTransferStatus implements LedgerStore.
func (s *Store) UpdateTransferStatus(ctx context.Context, transferID string, status domain.TransferStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tr, ok := s.transfers[transferID]
	if !ok {
		return domain.Ef(domain.CodeInvalidInput, "transfer %s not found", transferID)
	}
	tr.Status = status
	tr.UpdatedAt = time.Now()
	return nil
}

// GetTransfer implements LedgerStore.
func (s *Store) GetTransfer(ctx context.Context, transferID string) (*domain.Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tr, ok := s.transfers[transferID]
	if !ok {
		return nil, domain.Ef(domain.CodeInvalidInput, "transfer %s not found", transferID)
	}
	cp := *tr
	return &cp, nil
}
