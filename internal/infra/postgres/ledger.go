package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mstetsenko/pouch/internal/domain"
	"github.com/mstetsenko/pouch/internal/store"
)

// ApplyBucketDelta implements LedgerStore. The account row is locked
// FOR UPDATE for the whole transaction, so concurrent deltas against
// one account serialize; guard checks, balance moves, the optional
// transaction append and the idempotency record commit as one unit.
func (s *Store) ApplyBucketDelta(ctx context.Context, delta store.BucketDelta) (*store.DeltaResult, error) {
	var result *store.DeltaResult
	var freezeID, freezeReason string

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if delta.IdempotencyKey != "" {
			var key ledgerKeyRow
			err := tx.Where("key = ?", delta.IdempotencyKey).First(&key).Error
			if err == nil {
				result = &store.DeltaResult{
					AccountBalance:  key.AccountBalance,
					BucketBalance:   key.BucketBalance,
					PersonalBalance: key.PersonalBalance,
					TransactionID:   key.TransactionID,
					Replayed:        true,
				}
				return nil
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("ApplyBucketDelta: idempotency lookup: %w", err)
			}
		}

		if delta.Amount.IsZero() {
			return domain.E(domain.CodeInvalidAmount, "delta amount must be non-zero")
		}
		if !delta.Kind.Valid() {
			return domain.Ef(domain.CodeUnknownBucket, "unknown bucket kind %q", delta.Kind)
		}

		var acc accountRow
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", delta.AccountID).First(&acc).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Ef(domain.CodeUnknownAccount, "account %s not found", delta.AccountID)
		}
		if err != nil {
			return fmt.Errorf("ApplyBucketDelta: loading account: %w", err)
		}
		if acc.Frozen {
			return domain.Ef(domain.CodeAccountFrozen, "account %s is frozen: %s", acc.ID, acc.FrozenReason)
		}
		if !acc.Active {
			return domain.Ef(domain.CodeAccountInactive, "account %s is inactive", acc.ID)
		}

		var buckets []bucketRow
		if err := tx.Where("account_id = ?", delta.AccountID).Find(&buckets).Error; err != nil {
			return fmt.Errorf("ApplyBucketDelta: loading buckets: %w", err)
		}
		allocated := decimal.Zero
		var existing *bucketRow
		for i := range buckets {
			allocated = allocated.Add(buckets[i].Balance)
			if buckets[i].Kind == string(delta.Kind) && buckets[i].Ref == delta.Ref {
				existing = &buckets[i]
			}
		}

		newAccountBalance := acc.Balance.Add(delta.Amount)
		var newBucketBalance decimal.Decimal
		writeBucket := false

		if delta.Kind == domain.BucketPersonal {
			personal := acc.Balance.Sub(allocated)
			newBucketBalance = personal.Add(delta.Amount)
			if delta.Amount.IsNegative() && newBucketBalance.IsNegative() {
				return domain.Ef(domain.CodeInsufficientBucketFunds,
					"personal funds on account %s hold %s, need %s",
					acc.ID, domain.FormatAmount(personal), domain.FormatAmount(delta.Amount.Neg()))
			}
		} else {
			current := decimal.Zero
			if existing != nil {
				current = existing.Balance
			} else if delta.Amount.IsNegative() {
				return domain.Ef(domain.CodeUnknownBucket,
					"bucket %s/%s does not exist on account %s", delta.Kind, delta.Ref, acc.ID)
			}
			newBucketBalance = current.Add(delta.Amount)
			if newBucketBalance.IsNegative() {
				return domain.Ef(domain.CodeInsufficientBucketFunds,
					"bucket %s/%s on account %s holds %s, need %s",
					delta.Kind, delta.Ref, acc.ID, domain.FormatAmount(current), domain.FormatAmount(delta.Amount.Neg()))
			}
			allocated = allocated.Add(delta.Amount)
			writeBucket = true
		}

		// Invariant: the stored buckets can never claim more than the
		// account holds. A violation means pre-existing drift; the
		// transaction rolls back and the account is quarantined outside
		// it so the freeze survives the rollback.
		if allocated.GreaterThan(newAccountBalance) || newAccountBalance.IsNegative() {
			reason := "bucket total " + domain.FormatAmount(allocated) +
				" exceeds account balance " + domain.FormatAmount(newAccountBalance)
			freezeID, freezeReason = acc.ID, reason
			return domain.Ef(domain.CodeLedgerCorruption, "account %s: %s", acc.ID, reason)
		}

		err = tx.Model(&accountRow{}).Where("id = ?", acc.ID).Updates(map[string]interface{}{
			"balance":    newAccountBalance,
			"updated_at": time.Now(),
		}).Error
		if err != nil {
			return fmt.Errorf("ApplyBucketDelta: updating balance: %w", err)
		}

		if writeBucket {
			if newBucketBalance.IsZero() {
				err = tx.Where("account_id = ? AND kind = ? AND ref = ?",
					delta.AccountID, string(delta.Kind), delta.Ref).Delete(&bucketRow{}).Error
			} else {
				err = tx.Clauses(clause.OnConflict{
					Columns:   []clause.Column{{Name: "account_id"}, {Name: "kind"}, {Name: "ref"}},
					DoUpdates: clause.AssignmentColumns([]string{"balance"}),
				}).Create(&bucketRow{
					AccountID: delta.AccountID,
					Kind:      string(delta.Kind),
					Ref:       delta.Ref,
					Balance:   newBucketBalance,
				}).Error
			}
			if err != nil {
				return fmt.Errorf("ApplyBucketDelta: writing bucket: %w", err)
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
			if err := tx.Create(transactionToRow(&txn)).Error; err != nil {
				return fmt.Errorf("ApplyBucketDelta: recording transaction: %w", err)
			}
			txnID = txn.ID
		}

		result = &store.DeltaResult{
			AccountBalance:  newAccountBalance,
			BucketBalance:   newBucketBalance,
			PersonalBalance: newAccountBalance.Sub(allocated),
			TransactionID:   txnID,
		}
		if delta.IdempotencyKey != "" {
			key := ledgerKeyRow{
				Key:             delta.IdempotencyKey,
				AccountBalance:  result.AccountBalance,
				BucketBalance:   result.BucketBalance,
				PersonalBalance: result.PersonalBalance,
				TransactionID:   result.TransactionID,
				CreatedAt:       time.Now(),
			}
			if err := tx.Create(&key).Error; err != nil {
				return fmt.Errorf("ApplyBucketDelta: recording idempotency key: %w", err)
			}
		}
		return nil
	})

	if freezeID != "" {
		_ = s.FreezeAccount(ctx, freezeID, freezeReason)
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RecordTransaction implements LedgerStore: a bare append outside any
// balance mutation.
func (s *Store) RecordTransaction(ctx context.Context, txn *domain.Transaction) (string, error) {
	if err := s.accountExists(ctx, txn.AccountID); err != nil {
		return "", err
	}

	cp := *txn
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	cp.CreatedAt = time.Now()
	if err := s.db.WithContext(ctx).Create(transactionToRow(&cp)).Error; err != nil {
		return "", fmt.Errorf("RecordTransaction: %w", err)
	}
	return cp.ID, nil
}

// ReadBuckets implements LedgerStore.
func (s *Store) ReadBuckets(ctx context.Context, accountID string) ([]domain.Bucket, error) {
	if err := s.accountExists(ctx, accountID); err != nil {
		return nil, err
	}

	var rows []bucketRow
	if err := s.db.WithContext(ctx).Where("account_id = ?", accountID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("ReadBuckets: %w", err)
	}
	var result []domain.Bucket
	for i := range rows {
		result = append(result, rows[i].toDomain())
	}
	return result, nil
}

// ListTransactions implements LedgerStore, newest first.
func (s *Store) ListTransactions(ctx context.Context, filter store.TransactionFilter) ([]*domain.Transaction, error) {
	q := s.db.WithContext(ctx).Model(&transactionRow{}).Order("created_at desc, id desc")
	if filter.AccountID != "" {
		q = q.Where("account_id = ?", filter.AccountID)
	}
	if filter.Category != "" {
		q = q.Where("category = ?", filter.Category)
	}
	if filter.From.IsValid() {
		q = q.Where("date >= ?", dateToTime(filter.From))
	}
	if filter.To.IsValid() {
		q = q.Where("date <= ?", dateToTime(filter.To))
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var rows []transactionRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("ListTransactions: %w", err)
	}
	var result []*domain.Transaction
	for i := range rows {
		result = append(result, rows[i].toDomain())
	}
	return result, nil
}

// RecordTransfer implements LedgerStore: save or update by id, keeping
// the original created_at on update.
func (s *Store) RecordTransfer(ctx context.Context, transfer *domain.Transfer) error {
	if transfer.ID == "" {
		transfer.ID = uuid.NewString()
	}
	now := time.Now()
	row := transferToRow(transfer)
	row.CreatedAt = now
	row.UpdatedAt = now

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"source_account_id", "source_bucket_kind", "source_bucket_ref",
			"dest_account_id", "dest_bucket_kind", "dest_bucket_ref",
			"amount", "currency", "category", "date",
			"source_transaction_id", "dest_transaction_id", "status", "updated_at",
		}),
	}).Create(row).Error
	if err != nil {
		return fmt.Errorf("RecordTransfer: %w", err)
	}
	return nil
}

// UpdateTransferStatus implements LedgerStore.
func (s *Store) UpdateTransferStatus(ctx context.Context, transferID string, status domain.TransferStatus) error {
	res := s.db.WithContext(ctx).Model(&transferRow{}).Where("id = ?", transferID).Updates(map[string]interface{}{
		"status":     string(status),
		"updated_at": time.Now(),
	})
	if res.Error != nil {
		return fmt.Errorf("UpdateTransferStatus: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.Ef(domain.CodeInvalidInput, "transfer %s not found", transferID)
	}
	return nil
}

// GetTransfer implements LedgerStore.
func (s *Store) GetTransfer(ctx context.Context, transferID string) (*domain.Transfer, error) {
	var row transferRow
	err := s.db.WithContext(ctx).Where("id = ?", transferID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.Ef(domain.CodeInvalidInput, "transfer %s not found", transferID)
	}
	if err != nil {
		return nil, fmt.Errorf("GetTransfer: %w", err)
	}
	return row.toDomain(), nil
}

func (s *Store) accountExists(ctx context.Context, accountID string) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&accountRow{}).Where("id = ?", accountID).Count(&count).Error; err != nil {
		return fmt.Errorf("checking account %s: %w", accountID, err)
	}
	if count == 0 {
		return domain.Ef(domain.CodeUnknownAccount, "account %s not found", accountID)
	}
	return nil
}
