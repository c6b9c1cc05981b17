package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mstetsenko/pouch/internal/domain"
)

// CreateAccount implements AccountStore.
func (s *Store) CreateAccount(ctx context.Context, account *domain.Account) error {
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	if account.Currency == "" {
		return domain.E(domain.CodeInvalidInput, "account currency is required")
	}
	if !account.Kind.Valid() {
		return domain.Ef(domain.CodeInvalidInput, "unknown account kind %q", account.Kind)
	}

	now := time.Now()
	account.Currency = domain.NormalizeCurrency(account.Currency)
	account.CreatedAt = now
	account.UpdatedAt = now

	if err := s.db.WithContext(ctx).Create(accountToRow(account)).Error; err != nil {
		return fmt.Errorf("CreateAccount: %w", err)
	}
	return nil
}

// GetAccount implements AccountStore.
func (s *Store) GetAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	var row accountRow
	err := s.db.WithContext(ctx).Where("id = ?", accountID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.Ef(domain.CodeUnknownAccount, "account %s not found", accountID)
	}
	if err != nil {
		return nil, fmt.Errorf("GetAccount: %w", err)
	}
	return row.toDomain(), nil
}

// ListAccounts implements AccountStore.
func (s *Store) ListAccounts(ctx context.Context) ([]*domain.Account, error) {
	var rows []accountRow
	if err := s.db.WithContext(ctx).Order("name").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("ListAccounts: %w", err)
	}
	result := make([]*domain.Account, 0, len(rows))
	for i := range rows {
		result = append(result, rows[i].toDomain())
	}
	return result, nil
}

// FreezeAccount implements AccountStore. A frozen account rejects every
// ledger mutation until an operator unfreezes it.
func (s *Store) FreezeAccount(ctx context.Context, accountID, reason string) error {
	return s.setFrozen(ctx, accountID, true, reason)
}

// UnfreezeAccount implements AccountStore.
func (s *Store) UnfreezeAccount(ctx context.Context, accountID string) error {
	return s.setFrozen(ctx, accountID, false, "")
}

func (s *Store) setFrozen(ctx context.Context, accountID string, frozen bool, reason string) error {
	res := s.db.WithContext(ctx).Model(&accountRow{}).Where("id = ?", accountID).Updates(map[string]interface{}{
		"frozen":        frozen,
		"frozen_reason": reason,
		"updated_at":    time.Now(),
	})
	if res.Error != nil {
		return fmt.Errorf("setFrozen: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.Ef(domain.CodeUnknownAccount, "account %s not found", accountID)
	}
	return nil
}
