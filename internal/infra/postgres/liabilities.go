package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mstetsenko/pouch/internal/domain"
	"github.com/mstetsenko/pouch/internal/store"
)

// CreateLiability implements LiabilityStore.
func (s *Store) CreateLiability(ctx context.Context, liability *domain.Liability) error {
	if liability.ID == "" {
		liability.ID = uuid.NewString()
	}
	if !liability.Frequency.Valid() {
		return domain.Ef(domain.CodeInvalidInput, "invalid frequency %q", liability.Frequency)
	}
	if liability.CurrentBalance.IsNegative() {
		return domain.E(domain.CodeInvalidAmount, "liability balance cannot be negative")
	}
	if liability.LinkedAccountID != "" {
		if err := s.accountExists(ctx, liability.LinkedAccountID); err != nil {
			if domain.IsCode(err, domain.CodeUnknownAccount) {
				return domain.Ef(domain.CodeUnknownAccount, "linked account %s not found", liability.LinkedAccountID)
			}
			return err
		}
	}

	now := time.Now()
	liability.Currency = domain.NormalizeCurrency(liability.Currency)
	if liability.CycleStatistics == nil {
		liability.CycleStatistics = make(map[int]domain.CycleSnapshot)
	}
	liability.CreatedAt = now
	liability.UpdatedAt = now

	if err := s.db.WithContext(ctx).Create(liabilityToRow(liability)).Error; err != nil {
		return fmt.Errorf("CreateLiability: %w", err)
	}
	return nil
}

// GetLiability implements LiabilityStore.
func (s *Store) GetLiability(ctx context.Context, liabilityID string) (*domain.Liability, error) {
	var row liabilityRow
	err := s.db.WithContext(ctx).Where("id = ?", liabilityID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.Ef(domain.CodeUnknownLiability, "liability %s not found", liabilityID)
	}
	if err != nil {
		return nil, fmt.Errorf("GetLiability: %w", err)
	}
	return row.toDomain(), nil
}

// ListLiabilities implements LiabilityStore.
func (s *Store) ListLiabilities(ctx context.Context) ([]*domain.Liability, error) {
	var rows []liabilityRow
	if err := s.db.WithContext(ctx).Order("name").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("ListLiabilities: %w", err)
	}
	result := make([]*domain.Liability, 0, len(rows))
	for i := range rows {
		result = append(result, rows[i].toDomain())
	}
	return result, nil
}

// UpdateLiability implements LiabilityStore. Nil fields stay untouched;
// a snapshot overwrites the statistics entry for its cycle number. The
// row is locked for the read-modify-write of the statistics map.
func (s *Store) UpdateLiability(ctx context.Context, liabilityID string, update store.LiabilityUpdate) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row liabilityRow
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", liabilityID).First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Ef(domain.CodeUnknownLiability, "liability %s not found", liabilityID)
		}
		if err != nil {
			return fmt.Errorf("UpdateLiability: loading: %w", err)
		}

		changes := map[string]interface{}{"updated_at": time.Now()}
		if update.CurrentBalance != nil {
			changes["current_balance"] = *update.CurrentBalance
		}
		if update.NextDueDate != nil {
			changes["next_due_date"] = dateToTime(*update.NextDueDate)
		}
		if update.Snapshot != nil {
			stats := row.CycleStatistics
			if stats == nil {
				stats = make(CycleStatsMap)
			}
			stats[update.Snapshot.CycleNumber] = *update.Snapshot
			changes["cycle_statistics"] = stats
		}

		if err := tx.Model(&liabilityRow{}).Where("id = ?", liabilityID).Updates(changes).Error; err != nil {
			return fmt.Errorf("UpdateLiability: %w", err)
		}
		return nil
	})
}

// UpsertBill implements LiabilityStore, idempotent on (liability, cycle).
// A settled bill is left untouched: the existing id comes back and no
// field changes.
func (s *Store) UpsertBill(ctx context.Context, bill *domain.Bill) (string, error) {
	if bill.CycleNumber <= 0 {
		return "", domain.E(domain.CodeInvalidInput, "bill cycle number must be positive")
	}
	if _, err := s.GetLiability(ctx, bill.LiabilityID); err != nil {
		return "", err
	}

	var id string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing billRow
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("liability_id = ? AND cycle_number = ?", bill.LiabilityID, bill.CycleNumber).
			First(&existing).Error
		if err == nil {
			id = existing.ID
			if existing.Status == string(domain.BillPaid) {
				return nil
			}
			changes := map[string]interface{}{
				"due_date":          dateToTime(bill.DueDate),
				"total":             bill.Total,
				"principal":         bill.Principal,
				"interest":          bill.Interest,
				"fee":               bill.Fee,
				"interest_included": bill.InterestIncluded,
				"updated_at":        time.Now(),
			}
			if bill.Status.Valid() && bill.Status != domain.BillPaid {
				changes["status"] = string(bill.Status)
			}
			if bill.LinkedAccountID != "" {
				changes["linked_account_id"] = bill.LinkedAccountID
			}
			if err := tx.Model(&billRow{}).Where("id = ?", existing.ID).Updates(changes).Error; err != nil {
				return fmt.Errorf("UpsertBill: updating: %w", err)
			}
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("UpsertBill: lookup: %w", err)
		}

		cp := *bill
		if cp.ID == "" {
			cp.ID = uuid.NewString()
		}
		if !cp.Status.Valid() || cp.Status == domain.BillPaid {
			cp.Status = domain.BillUpcoming
		}
		if !cp.OriginalDueDate.IsValid() {
			cp.OriginalDueDate = cp.DueDate
		}
		now := time.Now()
		cp.CreatedAt = now
		cp.UpdatedAt = now
		if err := tx.Create(billToRow(&cp)).Error; err != nil {
			return fmt.Errorf("UpsertBill: creating: %w", err)
		}
		id = cp.ID
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// GetBill implements LiabilityStore.
func (s *Store) GetBill(ctx context.Context, billID string) (*domain.Bill, error) {
	var row billRow
	err := s.db.WithContext(ctx).Where("id = ?", billID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.Ef(domain.CodeUnknownBill, "bill %s not found", billID)
	}
	if err != nil {
		return nil, fmt.Errorf("GetBill: %w", err)
	}
	return row.toDomain(), nil
}

// GetBillByCycle implements LiabilityStore.
func (s *Store) GetBillByCycle(ctx context.Context, liabilityID string, cycleNumber int) (*domain.Bill, error) {
	var row billRow
	err := s.db.WithContext(ctx).
		Where("liability_id = ? AND cycle_number = ?", liabilityID, cycleNumber).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.Ef(domain.CodeUnknownBill, "liability %s has no bill for cycle %d", liabilityID, cycleNumber)
	}
	if err != nil {
		return nil, fmt.Errorf("GetBillByCycle: %w", err)
	}
	return row.toDomain(), nil
}

// ListBills implements LiabilityStore, ordered by due date then cycle.
func (s *Store) ListBills(ctx context.Context, filter store.BillFilter) ([]*domain.Bill, error) {
	q := s.db.WithContext(ctx).Model(&billRow{}).Order("due_date, cycle_number")
	if filter.LiabilityID != "" {
		q = q.Where("liability_id = ?", filter.LiabilityID)
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		q = q.Where("status IN ?", statuses)
	}
	if filter.DueBefore != nil {
		q = q.Where("due_date < ?", dateToTime(*filter.DueBefore))
	}

	var rows []billRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("ListBills: %w", err)
	}
	var result []*domain.Bill
	for i := range rows {
		result = append(result, rows[i].toDomain())
	}
	return result, nil
}

// MarkBillPaid implements LiabilityStore. Settling is first-wins: a bill
// that is already paid rejects the second attempt with no side effects.
func (s *Store) MarkBillPaid(ctx context.Context, billID string, snapshot domain.CycleSnapshot, paidAt time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row billRow
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", billID).First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Ef(domain.CodeUnknownBill, "bill %s not found", billID)
		}
		if err != nil {
			return fmt.Errorf("MarkBillPaid: loading: %w", err)
		}
		if row.Status == string(domain.BillPaid) {
			return domain.Ef(domain.CodeBillAlreadySettled, "bill %s was already settled", billID)
		}

		snap := snapshot
		err = tx.Model(&billRow{}).Where("id = ?", billID).Updates(map[string]interface{}{
			"status":         string(domain.BillPaid),
			"classification": SnapshotColumn{Snap: &snap},
			"paid_at":        paidAt,
			"updated_at":     time.Now(),
		}).Error
		if err != nil {
			return fmt.Errorf("MarkBillPaid: %w", err)
		}
		return nil
	})
}

// UpdateBillStatus implements LiabilityStore for the date-driven
// transitions. paid is reserved for MarkBillPaid.
func (s *Store) UpdateBillStatus(ctx context.Context, billID string, status domain.BillStatus) error {
	if !status.Valid() || status == domain.BillPaid {
		return domain.Ef(domain.CodeInvalidInput, "cannot move bill to status %q here", status)
	}
	return s.updateUnpaidBill(ctx, billID, map[string]interface{}{
		"status":     string(status),
		"updated_at": time.Now(),
	})
}

// UpdateBillDueDate implements LiabilityStore. Only unpaid bills may
// move; the original due date is preserved.
func (s *Store) UpdateBillDueDate(ctx context.Context, billID string, dueDate civil.Date, status domain.BillStatus) error {
	if !status.Valid() || status == domain.BillPaid {
		return domain.Ef(domain.CodeInvalidInput, "cannot move bill to status %q here", status)
	}
	return s.updateUnpaidBill(ctx, billID, map[string]interface{}{
		"due_date":   dateToTime(dueDate),
		"status":     string(status),
		"updated_at": time.Now(),
	})
}

func (s *Store) updateUnpaidBill(ctx context.Context, billID string, changes map[string]interface{}) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row billRow
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", billID).First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Ef(domain.CodeUnknownBill, "bill %s not found", billID)
		}
		if err != nil {
			return fmt.Errorf("updateUnpaidBill: loading: %w", err)
		}
		if row.Status == string(domain.BillPaid) {
			return domain.Ef(domain.CodeBillImmutable, "bill %s is settled", billID)
		}
		if err := tx.Model(&billRow{}).Where("id = ?", billID).Updates(changes).Error; err != nil {
			return fmt.Errorf("updateUnpaidBill: %w", err)
		}
		return nil
	})
}

// RecordPayment implements LiabilityStore.
func (s *Store) RecordPayment(ctx context.Context, payment *domain.LiabilityPayment) error {
	if _, err := s.GetLiability(ctx, payment.LiabilityID); err != nil {
		return err
	}

	cp := *payment
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	cp.CreatedAt = time.Now()
	snap := cp.Classification
	row := &paymentRow{
		ID:                 cp.ID,
		LiabilityID:        cp.LiabilityID,
		BillID:             cp.BillID,
		CycleNumber:        cp.CycleNumber,
		TransactionID:      cp.TransactionID,
		PrincipalComponent: cp.PrincipalComponent,
		InterestComponent:  cp.InterestComponent,
		Classification:     SnapshotColumn{Snap: &snap},
		CreatedAt:          cp.CreatedAt,
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("RecordPayment: %w", err)
	}
	return nil
}

// ListPayments implements LiabilityStore, oldest first.
func (s *Store) ListPayments(ctx context.Context, liabilityID string) ([]*domain.LiabilityPayment, error) {
	var rows []paymentRow
	err := s.db.WithContext(ctx).Where("liability_id = ?", liabilityID).Order("created_at").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("ListPayments: %w", err)
	}
	result := make([]*domain.LiabilityPayment, 0, len(rows))
	for i := range rows {
		result = append(result, rows[i].toDomain())
	}
	return result, nil
}
