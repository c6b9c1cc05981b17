// Package liability implements the payment cycle reconciler: it grades
// incoming payments against the expected schedule and amount, settles
// bills, and rolls the liability's balance and due date forward.
package liability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/mstetsenko/pouch/internal/domain"
	"github.com/mstetsenko/pouch/internal/ledger"
	"github.com/mstetsenko/pouch/internal/store"
)

// Reconciler settles liability bills. All mutation for one liability is
// serialized through a per-liability lock, so a duplicate submission
// observes the settled bill instead of racing it.
type Reconciler struct {
	store  store.Store
	ledger *ledger.Ledger
	cfg    Config
	log    zerolog.Logger
	now    func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewReconciler wires the reconciler with the given tolerances.
func NewReconciler(st store.Store, led *ledger.Ledger, cfg Config, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		store:  st,
		ledger: led,
		cfg:    cfg.withDefaults(),
		log:    log.With().Str("component", "reconciler").Logger(),
		now:    time.Now,
		locks:  map[string]*sync.Mutex{},
	}
}

// Config returns the tolerances the reconciler grades with.
func (r *Reconciler) Config() Config {
	return r.cfg
}

func (r *Reconciler) today() civil.Date {
	return civil.DateOf(r.now())
}

func (r *Reconciler) lockLiability(liabilityID string) func() {
	r.mu.Lock()
	l, ok := r.locks[liabilityID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[liabilityID] = l
	}
	r.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// PayBillRequest describes one payment to reconcile. BillID is optional:
// without it the earliest unpaid bill is settled, and when none exists a
// bill is created on the fly for the liability's next due date.
type PayBillRequest struct {
	LiabilityID string
	BillID      string
	// AccountID overrides the funding account; it defaults to the bill's
	// linked account, then the liability's.
	AccountID   string
	Amount      decimal.Decimal
	PaymentDate civil.Date
	Note        string
}

// PayBillResult is the authoritative outcome of one reconciliation.
type PayBillResult struct {
	Bill        *domain.Bill
	Liability   *domain.Liability
	Snapshot    domain.CycleSnapshot
	Entry       *ledger.Entry
	NextDueDate civil.Date
	AutoCreated bool
}

// PayBill reconciles one payment end to end: classify, debit the
// funding account, settle the bill, and roll the liability forward. The
// debit happens only after every precondition holds, so a rejected
// payment leaves no trace; failures after the debit raise an alert
// because money has moved but the books are not fully updated yet.
func (r *Reconciler) PayBill(ctx context.Context, req PayBillRequest) (*PayBillResult, error) {
	if err := domain.RequirePositive(req.Amount); err != nil {
		return nil, err
	}
	if !req.PaymentDate.IsValid() {
		return nil, domain.E(domain.CodeInvalidInput, "payment date is required")
	}

	liabilityID, err := r.resolveLiabilityID(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("PayBill: %w", err)
	}
	unlock := r.lockLiability(liabilityID)
	defer unlock()

	liability, err := r.store.GetLiability(ctx, liabilityID)
	if err != nil {
		return nil, fmt.Errorf("PayBill: %w", err)
	}
	bill, autoCreated, err := r.resolveBill(ctx, liability, req.BillID)
	if err != nil {
		return nil, fmt.Errorf("PayBill: %w", err)
	}
	if bill.Settled() {
		return nil, domain.Ef(domain.CodeBillAlreadySettled,
			"bill for cycle %d of %q was settled at %s",
			bill.CycleNumber, liability.Name, bill.PaidAt.Format(time.RFC3339))
	}

	accountID := req.AccountID
	if accountID == "" {
		accountID = bill.LinkedAccountID
	}
	if accountID == "" {
		accountID = liability.LinkedAccountID
	}
	if accountID == "" {
		return nil, domain.E(domain.CodeInvalidInput, "no account to pay from")
	}
	account, err := r.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("PayBill: %w", err)
	}
	if liability.Currency != "" && account.Currency != liability.Currency {
		return nil, domain.Ef(domain.CodeCurrencyMismatch,
			"liability %q is in %s, account %s is in %s",
			liability.Name, liability.Currency, accountID, account.Currency)
	}

	snapshot := Classify(bill.DueDate, bill.ExpectedAmount(req.Amount), req.PaymentDate, req.Amount, r.cfg)
	snapshot.CycleNumber = bill.CycleNumber
	snapshot.RecordedAt = r.now()

	entry, err := r.ledger.Spend(ctx, ledger.Movement{
		AccountID:      accountID,
		Bucket:         domain.BucketPersonal,
		Amount:         req.Amount,
		Category:       domain.CategoryLiabilityPayment,
		Description:    paymentDescription(liability, bill, req.Note),
		Date:           req.PaymentDate,
		Classification: &snapshot,
	})
	if err != nil {
		return nil, fmt.Errorf("PayBill: %w", err)
	}

	// Money has moved; every failure from here on must be surfaced for
	// manual reconciliation rather than silently dropped.
	if err := r.store.MarkBillPaid(ctx, bill.ID, snapshot, r.now()); err != nil {
		return nil, r.incomplete(ctx, liability, accountID, req.Amount, entry.TransactionID,
			fmt.Errorf("settle bill %s: %w", bill.ID, err))
	}

	principal, interest := paymentSplit(bill, req.Amount)
	newBalance := liability.CurrentBalance.Sub(principal)
	if newBalance.IsNegative() {
		newBalance = decimal.Zero
	}
	nextDue, err := r.nextDueDate(ctx, liability, bill)
	if err != nil {
		return nil, r.incomplete(ctx, liability, accountID, req.Amount, entry.TransactionID, err)
	}
	if err := r.store.UpdateLiability(ctx, liability.ID, store.LiabilityUpdate{
		CurrentBalance: &newBalance,
		NextDueDate:    &nextDue,
		Snapshot:       &snapshot,
	}); err != nil {
		return nil, r.incomplete(ctx, liability, accountID, req.Amount, entry.TransactionID,
			fmt.Errorf("update liability %s: %w", liability.ID, err))
	}
	if err := r.store.RecordPayment(ctx, &domain.LiabilityPayment{
		LiabilityID:        liability.ID,
		BillID:             bill.ID,
		CycleNumber:        bill.CycleNumber,
		TransactionID:      entry.TransactionID,
		PrincipalComponent: principal,
		InterestComponent:  interest,
		Classification:     snapshot,
	}); err != nil {
		return nil, r.incomplete(ctx, liability, accountID, req.Amount, entry.TransactionID,
			fmt.Errorf("record payment for bill %s: %w", bill.ID, err))
	}

	settledBill, err := r.store.GetBill(ctx, bill.ID)
	if err != nil {
		return nil, fmt.Errorf("PayBill: %w", err)
	}
	updatedLiability, err := r.store.GetLiability(ctx, liability.ID)
	if err != nil {
		return nil, fmt.Errorf("PayBill: %w", err)
	}

	r.log.Info().
		Str("liability_id", liability.ID).
		Int("cycle", bill.CycleNumber).
		Str("status", string(snapshot.Status)).
		Str("amount", domain.FormatAmount(req.Amount)).
		Str("balance", domain.FormatAmount(newBalance)).
		Str("next_due", nextDue.String()).
		Bool("auto_created", autoCreated).
		Msg("liability cycle reconciled")

	return &PayBillResult{
		Bill:        settledBill,
		Liability:   updatedLiability,
		Snapshot:    snapshot,
		Entry:       entry,
		NextDueDate: nextDue,
		AutoCreated: autoCreated,
	}, nil
}

func (r *Reconciler) resolveLiabilityID(ctx context.Context, req PayBillRequest) (string, error) {
	if req.LiabilityID != "" {
		return req.LiabilityID, nil
	}
	if req.BillID == "" {
		return "", domain.E(domain.CodeInvalidInput, "either a liability or a bill must be named")
	}
	bill, err := r.store.GetBill(ctx, req.BillID)
	if err != nil {
		return "", err
	}
	return bill.LiabilityID, nil
}

func (r *Reconciler) resolveBill(ctx context.Context, liability *domain.Liability, billID string) (*domain.Bill, bool, error) {
	if billID != "" {
		bill, err := r.store.GetBill(ctx, billID)
		if err != nil {
			return nil, false, err
		}
		if bill.LiabilityID != liability.ID {
			return nil, false, domain.Ef(domain.CodeInvalidInput,
				"bill %s belongs to a different liability", billID)
		}
		return bill, false, nil
	}
	if bill, err := r.earliestUnpaid(ctx, liability.ID); err != nil || bill != nil {
		return bill, false, err
	}
	bill, err := r.createUpcomingBill(ctx, liability)
	if err != nil {
		return nil, false, err
	}
	return bill, true, nil
}

func (r *Reconciler) earliestUnpaid(ctx context.Context, liabilityID string) (*domain.Bill, error) {
	bills, err := r.store.ListBills(ctx, store.BillFilter{
		LiabilityID: liabilityID,
		Statuses:    unpaidStatuses,
	})
	if err != nil {
		return nil, err
	}
	if len(bills) == 0 {
		return nil, nil
	}
	return bills[0], nil
}

// createUpcomingBill materializes the bill for the liability's next due
// date, used when a payment arrives with nothing open to settle.
func (r *Reconciler) createUpcomingBill(ctx context.Context, liability *domain.Liability) (*domain.Bill, error) {
	dueDate := liability.NextDueDate
	if !dueDate.IsValid() {
		dueDate = r.today()
	}
	cycle, err := r.nextCycleNumber(ctx, liability.ID)
	if err != nil {
		return nil, err
	}
	total, principal, interest, interestIncluded := liability.BillSplit()
	billID, err := r.store.UpsertBill(ctx, &domain.Bill{
		LiabilityID:      liability.ID,
		CycleNumber:      cycle,
		DueDate:          dueDate,
		Total:            total,
		Principal:        principal,
		Interest:         interest,
		InterestIncluded: interestIncluded,
		Status:           RefreshStatus(&domain.Bill{DueDate: dueDate}, r.today()),
		LinkedAccountID:  liability.LinkedAccountID,
	})
	if err != nil {
		return nil, err
	}
	r.log.Info().
		Str("liability_id", liability.ID).
		Int("cycle", cycle).
		Str("due_date", dueDate.String()).
		Msg("bill created for unmatched payment")
	return r.store.GetBill(ctx, billID)
}

// EnsureUpcomingBill guarantees the liability has an open bill to pay,
// creating one for the next due date when needed. The bool reports
// whether a bill was created.
func (r *Reconciler) EnsureUpcomingBill(ctx context.Context, liabilityID string) (*domain.Bill, bool, error) {
	unlock := r.lockLiability(liabilityID)
	defer unlock()

	if bill, err := r.earliestUnpaid(ctx, liabilityID); err != nil || bill != nil {
		return bill, false, err
	}
	liability, err := r.store.GetLiability(ctx, liabilityID)
	if err != nil {
		return nil, false, fmt.Errorf("EnsureUpcomingBill: %w", err)
	}
	bill, err := r.createUpcomingBill(ctx, liability)
	if err != nil {
		return nil, false, fmt.Errorf("EnsureUpcomingBill: %w", err)
	}
	return bill, true, nil
}

func (r *Reconciler) nextCycleNumber(ctx context.Context, liabilityID string) (int, error) {
	bills, err := r.store.ListBills(ctx, store.BillFilter{LiabilityID: liabilityID})
	if err != nil {
		return 0, err
	}
	highest := 0
	for _, b := range bills {
		if b.CycleNumber > highest {
			highest = b.CycleNumber
		}
	}
	return highest + 1, nil
}

// nextDueDate prefers the earliest still-unpaid bill; only when the
// ledger of bills is exhausted does it fall back to schedule arithmetic
// from the settled bill's due date.
func (r *Reconciler) nextDueDate(ctx context.Context, liability *domain.Liability, settled *domain.Bill) (civil.Date, error) {
	next, err := r.earliestUnpaid(ctx, liability.ID)
	if err != nil {
		return civil.Date{}, fmt.Errorf("find next unpaid bill: %w", err)
	}
	if next != nil {
		return next.DueDate, nil
	}
	return NextDueDate(settled.DueDate, liability.Frequency, liability.DueDayOfMonth), nil
}

// incomplete records a reconciliation-incomplete alert and returns the
// original failure annotated with the already-debited transaction.
func (r *Reconciler) incomplete(ctx context.Context, liability *domain.Liability, accountID string, amount decimal.Decimal, transactionID string, cause error) error {
	alert := &domain.ReconciliationAlert{
		Kind:      domain.AlertReconciliationIncomplete,
		AccountID: accountID,
		Amount:    amount,
		Message: fmt.Sprintf("payment of %s for %q debited as transaction %s but not fully reconciled: %v",
			domain.FormatAmount(amount), liability.Name, transactionID, cause),
	}
	if alertErr := r.store.RecordAlert(ctx, alert); alertErr != nil {
		r.log.Error().Err(alertErr).Msg("reconciliation alert not recorded")
	}
	r.log.Error().Err(cause).
		Str("liability_id", liability.ID).
		Str("transaction_id", transactionID).
		Msg("reconciliation incomplete after debit")
	return fmt.Errorf("PayBill: payment debited but reconciliation incomplete: %w", cause)
}

func paymentDescription(liability *domain.Liability, bill *domain.Bill, note string) string {
	if note != "" {
		return note
	}
	return fmt.Sprintf("payment for %s, cycle %d", liability.Name, bill.CycleNumber)
}

// paymentSplit derives the principal and interest components of a
// payment. A bill with a known interest split keeps interest and fee
// aside; otherwise the whole payment reduces principal.
func paymentSplit(bill *domain.Bill, amount decimal.Decimal) (principal, interest decimal.Decimal) {
	if !bill.InterestIncluded {
		return amount, decimal.Zero
	}
	interest = bill.Interest
	principal = amount.Sub(interest).Sub(bill.Fee)
	if principal.IsNegative() {
		principal = decimal.Zero
	}
	return principal, interest
}
