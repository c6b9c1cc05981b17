package inmemory

import (
	"context"
	"sort"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"github.com/mstetsenko/pouch/internal/domain"
	"github.com/mstetsenko/pouch/internal/store"
)

func copyLiability(l *domain.Liability) *domain.Liability {
	cp := *l
	cp.CycleStatistics = make(map[int]domain.CycleSnapshot, len(l.CycleStatistics))
	for k, v := range l.CycleStatistics {
		cp.CycleStatistics[k] = v
	}
	return &cp
}

func copyBill(b *domain.Bill) *domain.Bill {
	cp := *b
	if b.Classification != nil {
		snap := *b.Classification
		cp.Classification = &snap
	}
	if b.PaidAt != nil {
		at := *b.PaidAt
		cp.PaidAt = &at
	}
	return &cp
}

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

	s.mu.Lock()
	defer s.mu.Unlock()

	if liability.LinkedAccountID != "" {
		if _, ok := s.accounts[liability.LinkedAccountID]; !ok {
			return domain.Ef(domain.CodeUnknownAccount, "linked account %s not found", liability.LinkedAccountID)
		}
	}

	now := time.Now()
	liability.Currency = domain.NormalizeCurrency(liability.Currency)
	if liability.CycleStatistics == nil {
		liability.CycleStatistics = make(map[int]domain.CycleSnapshot)
	}
	liability.CreatedAt = now
	liability.UpdatedAt = now
	s.liabilities[liability.ID] = copyLiability(liability)
	return nil
}

// GetLiability implements LiabilityStore.
func (s *Store) GetLiability(ctx context.Context, liabilityID string) (*domain.Liability, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.liabilities[liabilityID]
	if !ok {
		return nil, domain.Ef(domain.CodeUnknownLiability, "liability %s not found", liabilityID)
	}
	return copyLiability(l), nil
}

// ListLiabilities implements LiabilityStore.
func (s *Store) ListLiabilities(ctx context.Context) ([]*domain.Liability, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Liability, 0, len(s.liabilities))
	for _, l := range s.liabilities {
		result = append(result, copyLiability(l))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// UpdateLiability implements LiabilityStore. Nil fields stay untouched;
// a snapshot overwrites the statistics entry for its cycle number.
func (s *Store) UpdateLiability(ctx context.Context, liabilityID string, update store.LiabilityUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.liabilities[liabilityID]
	if !ok {
		return domain.Ef(domain.CodeUnknownLiability, "liability %s not found", liabilityID)
	}
	if update.CurrentBalance != nil {
		l.CurrentBalance = *update.CurrentBalance
	}
	if update.NextDueDate != nil {
		l.NextDueDate = *update.NextDueDate
	}
	if update.Snapshot != nil {
		if l.CycleStatistics == nil {
			l.CycleStatistics = make(map[int]domain.CycleSnapshot)
		}
		l.CycleStatistics[update.Snapshot.CycleNumber] = *update.Snapshot
	}
	l.UpdatedAt = time.Now()
	return nil
}

// UpsertBill implements LiabilityStore, idempotent on (liability, cycle).
// A settled bill is left untouched: the existing id comes back and no
// field changes.
func (s *Store) UpsertBill(ctx context.Context, bill *domain.Bill) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.liabilities[bill.LiabilityID]; !ok {
		return "", domain.Ef(domain.CodeUnknownLiability, "liability %s not found", bill.LiabilityID)
	}
	if bill.CycleNumber <= 0 {
		return "", domain.E(domain.CodeInvalidInput, "bill cycle number must be positive")
	}

	key := cycleKey{liabilityID: bill.LiabilityID, cycleNumber: bill.CycleNumber}
	now := time.Now()

	if existingID, ok := s.billByCycle[key]; ok {
		existing := s.bills[existingID]
		if existing.Settled() {
			return existingID, nil
		}
		existing.DueDate = bill.DueDate
		existing.Total = bill.Total
		existing.Principal = bill.Principal
		existing.Interest = bill.Interest
		existing.Fee = bill.Fee
		existing.InterestIncluded = bill.InterestIncluded
		if bill.Status.Valid() && bill.Status != domain.BillPaid {
			existing.Status = bill.Status
		}
		if bill.LinkedAccountID != "" {
			existing.LinkedAccountID = bill.LinkedAccountID
		}
		existing.UpdatedAt = now
		return existingID, nil
	}

	cp := copyBill(bill)
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	if !cp.Status.Valid() || cp.Status == domain.BillPaid {
		cp.Status = domain.BillUpcoming
	}
	if !cp.OriginalDueDate.IsValid() {
		cp.OriginalDueDate = cp.DueDate
	}
	cp.CreatedAt = now
	cp.UpdatedAt = now
	s.bills[cp.ID] = cp
	s.billByCycle[key] = cp.ID
	return cp.ID, nil
}

// GetBill implements LiabilityStore.
func (s *Store) GetBill(ctx context.Context, billID string) (*domain.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.bills[billID]
	if !ok {
		return nil, domain.Ef(domain.CodeUnknownBill, "bill %s not found", billID)
	}
	return copyBill(b), nil
}

// GetBillByCycle implements LiabilityStore.
func (s *Store) GetBillByCycle(ctx context.Context, liabilityID string, cycleNumber int) (*domain.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.billByCycle[cycleKey{liabilityID: liabilityID, cycleNumber: cycleNumber}]
	if !ok {
		return nil, domain.Ef(domain.CodeUnknownBill, "liability %s has no bill for cycle %d", liabilityID, cycleNumber)
	}
	return copyBill(s.bills[id]), nil
}

// ListBills implements LiabilityStore, ordered by due date then cycle.
func (s *Store) ListBills(ctx context.Context, filter store.BillFilter) ([]*domain.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Bill
	for _, b := range s.bills {
		if filter.LiabilityID != "" && b.LiabilityID != filter.LiabilityID {
			continue
		}
		if len(filter.Statuses) > 0 && !hasStatus(filter.Statuses, b.Status) {
			continue
		}
		if filter.DueBefore != nil && !b.DueDate.Before(*filter.DueBefore) {
			continue
		}
		result = append(result, copyBill(b))
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].DueDate != result[j].DueDate {
			return result[i].DueDate.Before(result[j].DueDate)
		}
		return result[i].CycleNumber < result[j].CycleNumber
	})
	return result, nil
}

func hasStatus(statuses []domain.BillStatus, status domain.BillStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

// MarkBillPaid implements LiabilityStore. Settling is first-wins: a bill
// that is already paid rejects the second attempt with no side effects.
func (s *Store) MarkBillPaid(ctx context.Context, billID string, snapshot domain.CycleSnapshot, paidAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bills[billID]
	if !ok {
		return domain.Ef(domain.CodeUnknownBill, "bill %s not found", billID)
	}
	if b.Settled() {
		return domain.Ef(domain.CodeBillAlreadySettled, "bill %s was already settled", billID)
	}

	snap := snapshot
	b.Status = domain.BillPaid
	b.Classification = &snap
	b.PaidAt = &paidAt
	b.UpdatedAt = time.Now()
	return nil
}

// UpdateBillStatus implements LiabilityStore for the date-driven
// transitions. paid is reserved for MarkBillPaid.
func (s *Store) UpdateBillStatus(ctx context.Context, billID string, status domain.BillStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bills[billID]
	if !ok {
		return domain.Ef(domain.CodeUnknownBill, "bill %s not found", billID)
	}
	if b.Settled() {
		return domain.Ef(domain.CodeBillImmutable, "bill %s is settled", billID)
	}
	if !status.Valid() || status == domain.BillPaid {
		return domain.Ef(domain.CodeInvalidInput, "cannot move bill to status %q here", status)
	}
	b.Status = status
	b.UpdatedAt = time.Now()
	return nil
}

// UpdateBillDueDate implements LiabilityStore. Only unpaid bills may
// move; the original due date is preserved.
func (s *Store) UpdateBillDueDate(ctx context.Context, billID string, dueDate civil.Date, status domain.BillStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bills[billID]
	if !ok {
		return domain.Ef(domain.CodeUnknownBill, "bill %s not found", billID)
	}
	if b.Settled() {
		return domain.Ef(domain.CodeBillImmutable, "bill %s is settled", billID)
	}
	if !status.Valid() || status == domain.BillPaid {
		return domain.Ef(domain.CodeInvalidInput, "cannot move bill to status %q here", status)
	}
	b.DueDate = dueDate
	b.Status = status
	b.UpdatedAt = time.Now()
	return nil
}

// RecordPayment implements LiabilityStore.
func (s *Store) RecordPayment(ctx context.Context, payment *domain.LiabilityPayment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.liabilities[payment.LiabilityID]; !ok {
		return domain.Ef(domain.CodeUnknownLiability, "liability %s not found", payment.LiabilityID)
	}

	cp := *payment
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	cp.CreatedAt = time.Now()
	s.payments[cp.LiabilityID] = append(s.payments[cp.LiabilityID], &cp)
	return nil
}

// ListPayments implements LiabilityStore, oldest first.
func (s *Store) ListPayments(ctx context.Context, liabilityID string) ([]*domain.LiabilityPayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.payments[liabilityID]
	result := make([]*domain.LiabilityPayment, 0, len(list))
	for _, p := range list {
		cp := *p
		result = append(result, &cp)
	}
	return result, nil
}
