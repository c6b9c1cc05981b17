package liability

import (
	"context"
	"fmt"

	"cloud.google.com/go/civil"

	"github.com/mstetsenko/pouch/internal/domain"
	"github.com/mstetsenko/pouch/internal/store"
)

// unpaidStatuses are the states a bill can be settled from.
var unpaidStatuses = []domain.BillStatus{
	domain.BillUpcoming,
	domain.BillDueToday,
	domain.BillOverdue,
	domain.BillPostponed,
}

// RefreshStatus derives the status a bill should carry on the given day.
// Paid is terminal and postponed survives until its new due date
// arrives; everything else follows the calendar.
func RefreshStatus(bill *domain.Bill, today civil.Date) domain.BillStatus {
	if bill.Settled() {
		return domain.BillPaid
	}
	switch {
	case today.Before(bill.DueDate):
		if bill.Status == domain.BillPostponed {
			return domain.BillPostponed
		}
		return domain.BillUpcoming
	case today == bill.DueDate:
		return domain.BillDueToday
	default:
		return domain.BillOverdue
	}
}

// RefreshBillStatuses walks every unpaid bill and realigns its status
// with today's date. It returns how many bills changed.
func (r *Reconciler) RefreshBillStatuses(ctx context.Context) (int, error) {
	bills, err := r.store.ListBills(ctx, store.BillFilter{Statuses: unpaidStatuses})
	if err != nil {
		return 0, fmt.Errorf("RefreshBillStatuses: %w", err)
	}

	today := r.today()
	changed := 0
	for _, bill := range bills {
		status := RefreshStatus(bill, today)
		if status == bill.Status {
			continue
		}
		if err := r.store.UpdateBillStatus(ctx, bill.ID, status); err != nil {
			return changed, fmt.Errorf("RefreshBillStatuses: bill %s: %w", bill.ID, err)
		}
		changed++
	}
	if changed > 0 {
		r.log.Info().Int("changed", changed).Msg("bill statuses refreshed")
	}
	return changed, nil
}

// Postpone pushes an unpaid bill's due date into the future and marks it
// postponed. Reconciliation grades against the arranged date; the
// original due date stays on the bill for audit.
func (r *Reconciler) Postpone(ctx context.Context, billID string, newDate civil.Date) (*domain.Bill, error) {
	bill, err := r.store.GetBill(ctx, billID)
	if err != nil {
		return nil, fmt.Errorf("Postpone: %w", err)
	}
	if bill.Settled() {
		return nil, domain.Ef(domain.CodeBillImmutable, "bill %s is already paid", billID)
	}
	if !newDate.IsValid() {
		return nil, domain.E(domain.CodeInvalidInput, "postpone date is required")
	}
	if !newDate.After(r.today()) {
		return nil, domain.Ef(domain.CodeInvalidInput, "postpone date %s is not in the future", newDate)
	}
	if err := r.store.UpdateBillDueDate(ctx, billID, newDate, domain.BillPostponed); err != nil {
		return nil, fmt.Errorf("Postpone: %w", err)
	}
	r.log.Info().Str("bill_id", billID).Str("due_date", newDate.String()).Msg("bill postponed")
	return r.store.GetBill(ctx, billID)
}

// EditDueDate rewrites an unpaid bill's due date and recomputes its
// natural status from the calendar, dropping any postponed marker.
func (r *Reconciler) EditDueDate(ctx context.Context, billID string, newDate civil.Date) (*domain.Bill, error) {
	bill, err := r.store.GetBill(ctx, billID)
	if err != nil {
		return nil, fmt.Errorf("EditDueDate: %w", err)
	}
	if bill.Settled() {
		return nil, domain.Ef(domain.CodeBillImmutable, "bill %s is already paid", billID)
	}
	if !newDate.IsValid() {
		return nil, domain.E(domain.CodeInvalidInput, "due date is required")
	}

	adjusted := *bill
	adjusted.DueDate = newDate
	adjusted.Status = domain.BillUpcoming
	status := RefreshStatus(&adjusted, r.today())

	if err := r.store.UpdateBillDueDate(ctx, billID, newDate, status); err != nil {
		return nil, fmt.Errorf("EditDueDate: %w", err)
	}
	return r.store.GetBill(ctx, billID)
}
