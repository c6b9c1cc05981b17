package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/mstetsenko/pouch/internal/domain"
)

// CreateGoal implements GoalStore.
func (s *Store) CreateGoal(ctx context.Context, goal *domain.Goal) error {
	if goal.ID == "" {
		goal.ID = uuid.NewString()
	}
	if !goal.TargetAmount.IsPositive() {
		return domain.E(domain.CodeInvalidAmount, "goal target amount must be positive")
	}
	if len(goal.LinkedAccountIDs) == 0 {
		return domain.E(domain.CodeInvalidInput, "goal needs at least one linked account")
	}
	for _, id := range goal.LinkedAccountIDs {
		if err := s.accountExists(ctx, id); err != nil {
			if domain.IsCode(err, domain.CodeUnknownAccount) {
				return domain.Ef(domain.CodeUnknownAccount, "linked account %s not found", id)
			}
			return err
		}
	}

	now := time.Now()
	goal.CurrentAmount = decimal.Zero
	goal.Currency = domain.NormalizeCurrency(goal.Currency)
	goal.CreatedAt = now
	goal.UpdatedAt = now

	if err := s.db.WithContext(ctx).Create(goalToRow(goal)).Error; err != nil {
		return fmt.Errorf("CreateGoal: %w", err)
	}
	return nil
}

// GetGoal implements GoalStore.
func (s *Store) GetGoal(ctx context.Context, goalID string) (*domain.Goal, error) {
	var row goalRow
	err := s.db.WithContext(ctx).Where("id = ?", goalID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.Ef(domain.CodeUnknownGoal, "goal %s not found", goalID)
	}
	if err != nil {
		return nil, fmt.Errorf("GetGoal: %w", err)
	}
	return row.toDomain(), nil
}

// ListGoals implements GoalStore. Closed goals (achieved or archived)
// are skipped unless requested.
func (s *Store) ListGoals(ctx context.Context, includeClosed bool) ([]*domain.Goal, error) {
	q := s.db.WithContext(ctx).Order("name")
	if !includeClosed {
		q = q.Where("achieved = ? AND archived = ?", false, false)
	}

	var rows []goalRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("ListGoals: %w", err)
	}
	var result []*domain.Goal
	for i := range rows {
		result = append(result, rows[i].toDomain())
	}
	return result, nil
}

// UpdateGoal implements GoalStore.
func (s *Store) UpdateGoal(ctx context.Context, goal *domain.Goal) error {
	goal.UpdatedAt = time.Now()
	res := s.db.WithContext(ctx).Model(&goalRow{}).Where("id = ?", goal.ID).Updates(map[string]interface{}{
		"name":               goal.Name,
		"target_amount":      goal.TargetAmount,
		"current_amount":     goal.CurrentAmount,
		"target_date":        datePtrToTime(goal.TargetDate),
		"currency":           goal.Currency,
		"achieved":           goal.Achieved,
		"achieved_at":        goal.AchievedAt,
		"archived":           goal.Archived,
		"linked_account_ids": StringList(goal.LinkedAccountIDs),
		"updated_at":         goal.UpdatedAt,
	})
	if res.Error != nil {
		return fmt.Errorf("UpdateGoal: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.Ef(domain.CodeUnknownGoal, "goal %s not found", goal.ID)
	}
	return nil
}

// DeleteGoal implements GoalStore. Guards against deleting a funded goal
// live in the goals service; the store only removes the record.
func (s *Store) DeleteGoal(ctx context.Context, goalID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ?", goalID).Delete(&goalRow{})
		if res.Error != nil {
			return fmt.Errorf("DeleteGoal: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return domain.Ef(domain.CodeUnknownGoal, "goal %s not found", goalID)
		}
		if err := tx.Where("goal_id = ?", goalID).Delete(&contributionRow{}).Error; err != nil {
			return fmt.Errorf("DeleteGoal: removing contributions: %w", err)
		}
		return nil
	})
}

// RecordContribution implements GoalStore.
func (s *Store) RecordContribution(ctx context.Context, contribution *domain.GoalContribution) error {
	if _, err := s.GetGoal(ctx, contribution.GoalID); err != nil {
		return err
	}

	cp := *contribution
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	cp.CreatedAt = time.Now()
	row := &contributionRow{
		ID:            cp.ID,
		GoalID:        cp.GoalID,
		AccountID:     cp.AccountID,
		Amount:        cp.Amount,
		TransactionID: cp.TransactionID,
		Date:          dateToTime(cp.Date),
		CreatedAt:     cp.CreatedAt,
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("RecordContribution: %w", err)
	}
	return nil
}

// ListContributions implements GoalStore, oldest first.
func (s *Store) ListContributions(ctx context.Context, goalID string) ([]*domain.GoalContribution, error) {
	var rows []contributionRow
	err := s.db.WithContext(ctx).Where("goal_id = ?", goalID).Order("created_at").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("ListContributions: %w", err)
	}
	result := make([]*domain.GoalContribution, 0, len(rows))
	for i := range rows {
		result = append(result, rows[i].toDomain())
	}
	return result, nil
}
