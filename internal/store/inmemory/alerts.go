package inmemory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mstetsenko/pouch/internal/domain"
)

// RecordAlert implements AlertStore.
func (s *Store) RecordAlert(ctx context.Context, alert *domain.ReconciliationAlert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *alert
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	cp.CreatedAt = time.Now()
	s.alerts[cp.ID] = &cp
	s.alertOrder = append(s.alertOrder, cp.ID)
	alert.ID = cp.ID
	return nil
}

// ListAlerts implements AlertStore, newest first.
func (s *Store) ListAlerts(ctx context.Context, includeResolved bool) ([]*domain.ReconciliationAlert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ReconciliationAlert
	for i := len(s.alertOrder) - 1; i >= 0; i-- {
		a := s.alerts[s.alertOrder[i]]
		if !includeResolved && a.Resolved {
			continue
		}
		cp := *a
		result = append(result, &cp)
	}
	return result, nil
}

// ResolveAlert implements AlertStore.
func (s *Store) ResolveAlert(ctx context.Context, alertID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.alerts[alertID]
	if !ok {
		return domain.Ef(domain.CodeInvalidInput, "alert %s not found", alertID)
	}
	if !a.Resolved {
		a.Resolved = true
		now := time.Now()
		a.ResolvedAt = &now
	}
	return nil
}
