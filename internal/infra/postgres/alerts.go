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

// RecordAlert implements AlertStore.
func (s *Store) RecordAlert(ctx context.Context, alert *domain.ReconciliationAlert) error {
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	alert.CreatedAt = time.Now()

	row := &alertRow{
		ID:         alert.ID,
		Kind:       string(alert.Kind),
		AccountID:  alert.AccountID,
		TransferID: alert.TransferID,
		Amount:     alert.Amount,
		Message:    alert.Message,
		Resolved:   alert.Resolved,
		ResolvedAt: alert.ResolvedAt,
		CreatedAt:  alert.CreatedAt,
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("RecordAlert: %w", err)
	}
	return nil
}

// ListAlerts implements AlertStore, newest first.
func (s *Store) ListAlerts(ctx context.Context, includeResolved bool) ([]*domain.ReconciliationAlert, error) {
	q := s.db.WithContext(ctx).Model(&alertRow{}).Order("created_at desc")
	if !includeResolved {
		q = q.Where("resolved = ?", false)
	}

	var rows []alertRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("ListAlerts: %w", err)
	}
	var result []*domain.ReconciliationAlert
	for i := range rows {
		result = append(result, rows[i].toDomain())
	}
	return result, nil
}

// ResolveAlert implements AlertStore. Resolving twice is a no-op.
func (s *Store) ResolveAlert(ctx context.Context, alertID string) error {
	var row alertRow
	err := s.db.WithContext(ctx).Where("id = ?", alertID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Ef(domain.CodeInvalidInput, "alert %s not found", alertID)
	}
	if err != nil {
		return fmt.Errorf("ResolveAlert: %w", err)
	}
	if row.Resolved {
		return nil
	}

	err = s.db.WithContext(ctx).Model(&alertRow{}).Where("id = ?", alertID).Updates(map[string]interface{}{
		"resolved":    true,
		"resolved_at": time.Now(),
	}).Error
	if err != nil {
		return fmt.Errorf("ResolveAlert: %w", err)
	}
	return nil
}
