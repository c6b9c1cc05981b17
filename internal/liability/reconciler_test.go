package liability

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mstetsenko/pouch/internal/domain"
	"github.com/mstetsenko/pouch/internal/ledger"
	"github.com/mstetsenko/pouch/internal/store"
	"github.com/mstetsenko/pouch/internal/store/inmemory"
)

type fixture struct {
	store      *inmemory.Store
	reconciler *Reconciler
	account    string
	liability  *domain.Liability
}

// newFixture builds a monthly car loan due on the 1st, funded from an
// account holding the given balance.
func newFixture(t *testing.T, accountBalance string) *fixture {
	t.Helper()
	st := inmemory.New()
	ctx := context.Background()

	account := &domain.Account{
		Name:     "checking",
		Kind:     domain.AccountGeneral,
		Currency: "EUR",
		Balance:  dec(accountBalance),
		Active:   true,
	}
	require.NoError(t, st.CreateAccount(ctx, account))

	liability := &domain.Liability{
		Name:                 "car loan",
		Currency:             "EUR",
		CurrentBalance:       dec("12000"),
		Frequency:            domain.Frequency{Unit: domain.FrequencyMonthly},
		DueDayOfMonth:        1,
		NextDueDate:          date(2024, 3, 1),
		LinkedAccountID:      account.ID,
		InstallmentTotal:     dec("1000"),
		InstallmentPrincipal: dec("900"),
		InstallmentInterest:  dec("100"),
	}
	require.NoError(t, st.CreateLiability(ctx, liability))

	log := zerolog.Nop()
	f := &fixture{
		store:      st,
		reconciler: NewReconciler(st, ledger.New(st, log), Config{}, log),
		account:    account.ID,
		liability:  liability,
	}
	f.setToday(date(2024, 3, 1))
	return f
}

func (f *fixture) setToday(d civil.Date) {
	f.reconciler.now = func() time.Time {
		return time.Date(d.Year, d.Month, d.Day, 12, 0, 0, 0, time.UTC)
	}
}

func (f *fixture) seedBill(t *testing.T, cycle int, due civil.Date) *domain.Bill {
	t.Helper()
	total, principal, interest, included := f.liability.BillSplit()
	id, err := f.store.UpsertBill(context.Background(), &domain.Bill{
		LiabilityID:      f.liability.ID,
		CycleNumber:      cycle,
		DueDate:          due,
		Total:            total,
		Principal:        principal,
		Interest:         interest,
		InterestIncluded: included,
		LinkedAccountID:  f.liability.LinkedAccountID,
	})
	require.NoError(t, err)
	bill, err := f.store.GetBill(context.Background(), id)
	require.NoError(t, err)
	return bill
}

func (f *fixture) pay(t *testing.T, amount string, day civil.Date) *PayBillResult {
	t.Helper()
	res, err := f.reconciler.PayBill(context.Background(), PayBillRequest{
		LiabilityID: f.liability.ID,
		Amount:      dec(amount),
		PaymentDate: day,
	})
	require.NoError(t, err)
	return res
}

func TestPayBillReconcilesOnTime(t *testing.T) {
	f := newFixture(t, "5000")
	ctx := context.Background()
	f.seedBill(t, 1, date(2024, 3, 1))

	res := f.pay(t, "1000", date(2024, 3, 1))

	assert.Equal(t, domain.StatusPaidOnTime, res.Snapshot.Status)
	assert.True(t, res.Snapshot.WithinWindow)
	assert.Equal(t, 0, res.Snapshot.DaysDifference)
	assert.Equal(t, domain.AmountExact, res.Snapshot.AmountClass)
	assert.Equal(t, 1, res.Snapshot.CycleNumber)

	assert.True(t, res.Bill.Settled())
	require.NotNil(t, res.Bill.Classification)
	require.NotNil(t, res.Bill.PaidAt)

	assert.True(t, res.Liability.CurrentBalance.Equal(dec("11100")), "balance drops by the principal component")
	assert.Equal(t, date(2024, 4, 1), res.NextDueDate, "schedule arithmetic when no further bill exists")
	assert.Equal(t, res.NextDueDate, res.Liability.NextDueDate)

	snap, ok := res.Liability.CycleStatistics[1]
	require.True(t, ok)
	assert.Equal(t, domain.StatusPaidOnTime, snap.Status)

	account, err := f.store.GetAccount(ctx, f.account)
	require.NoError(t, err)
	assert.True(t, account.Balance.Equal(dec("4000")))

	payments, err := f.store.ListPayments(ctx, f.liability.ID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.True(t, payments[0].PrincipalComponent.Equal(dec("900")))
	assert.True(t, payments[0].InterestComponent.Equal(dec("100")))
	assert.Equal(t, res.Entry.TransactionID, payments[0].TransactionID)

	txns, err := f.store.ListTransactions(ctx, store.TransactionFilter{AccountID: f.account})
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, domain.CategoryLiabilityPayment, txns[0].Category)
	require.NotNil(t, txns[0].Classification)
	assert.Equal(t, domain.StatusPaidOnTime, txns[0].Classification.Status)
}

func TestPayBillSecondSubmissionRejected(t *testing.T) {
	f := newFixture(t, "5000")
	ctx := context.Background()
	f.seedBill(t, 1, date(2024, 3, 1))
	f.pay(t, "1000", date(2024, 3, 1))

	_, err := f.reconciler.PayBill(ctx, PayBillRequest{
		LiabilityID: f.liability.ID,
		BillID:      mustBillID(t, f, 1),
		Amount:      dec("1000"),
		PaymentDate: date(2024, 3, 2),
	})
	assert.True(t, domain.IsCode(err, domain.CodeBillAlreadySettled))

	liability, err := f.store.GetLiability(ctx, f.liability.ID)
	require.NoError(t, err)
	assert.True(t, liability.CurrentBalance.Equal(dec("11100")), "second submission must change nothing")
	assert.Len(t, liability.CycleStatistics, 1)

	account, err := f.store.GetAccount(ctx, f.account)
	require.NoError(t, err)
	assert.True(t, account.Balance.Equal(dec("4000")))

	txns, err := f.store.ListTransactions(ctx, store.TransactionFilter{AccountID: f.account})
	require.NoError(t, err)
	assert.Len(t, txns, 1)
}

func mustBillID(t *testing.T, f *fixture, cycle int) string {
	t.Helper()
	bill, err := f.store.GetBillByCycle(context.Background(), f.liability.ID, cycle)
	require.NoError(t, err)
	return bill.ID
}

func TestPayBillLateOutsideWindow(t *testing.T) {
	f := newFixture(t, "5000")
	f.seedBill(t, 1, date(2024, 3, 1))
	f.setToday(date(2024, 3, 10))

	res := f.pay(t, "1000", date(2024, 3, 10))

	assert.Equal(t, domain.StatusPaidLate, res.Snapshot.Status)
	assert.Equal(t, domain.TimingLate, res.Snapshot.Timing)
	assert.Equal(t, 9, res.Snapshot.DaysDifference)
	assert.False(t, res.Snapshot.WithinWindow)
}

func TestPayBillPartialPayment(t *testing.T) {
	f := newFixture(t, "5000")
	f.seedBill(t, 1, date(2024, 3, 1))

	res := f.pay(t, "400", date(2024, 3, 1))

	assert.Equal(t, domain.StatusPartial, res.Snapshot.Status, "a 40%% payment is partial even on the due date")
	assert.True(t, res.Bill.Settled())
	// Interest is taken first; only the remaining 300 reduces principal.
	assert.True(t, res.Liability.CurrentBalance.Equal(dec("11700")))
}

func TestPayBillAutoCreatesBill(t *testing.T) {
	f := newFixture(t, "5000")
	ctx := context.Background()

	res := f.pay(t, "1000", date(2024, 3, 1))

	assert.True(t, res.AutoCreated)
	assert.Equal(t, 1, res.Bill.CycleNumber)
	assert.Equal(t, date(2024, 3, 1), res.Bill.DueDate, "created for the liability's next due date")
	assert.True(t, res.Bill.Settled())

	bill, err := f.store.GetBillByCycle(ctx, f.liability.ID, 1)
	require.NoError(t, err)
	assert.True(t, bill.Settled())
}

func TestPayBillPrefersNextUnpaidBill(t *testing.T) {
	f := newFixture(t, "5000")
	f.seedBill(t, 1, date(2024, 3, 1))
	f.seedBill(t, 2, date(2024, 4, 5))

	res := f.pay(t, "1000", date(2024, 3, 1))

	assert.Equal(t, date(2024, 4, 5), res.NextDueDate,
		"an existing unpaid bill outranks schedule arithmetic")
}

func TestPayBillInsufficientFundsAbortsCleanly(t *testing.T) {
	f := newFixture(t, "100")
	ctx := context.Background()
	f.seedBill(t, 1, date(2024, 3, 1))

	_, err := f.reconciler.PayBill(ctx, PayBillRequest{
		LiabilityID: f.liability.ID,
		Amount:      dec("1000"),
		PaymentDate: date(2024, 3, 1),
	})
	assert.True(t, domain.IsCode(err, domain.CodeInsufficientBucketFunds))

	bill, err := f.store.GetBillByCycle(ctx, f.liability.ID, 1)
	require.NoError(t, err)
	assert.False(t, bill.Settled())

	liability, err := f.store.GetLiability(ctx, f.liability.ID)
	require.NoError(t, err)
	assert.True(t, liability.CurrentBalance.Equal(dec("12000")))
	assert.Empty(t, liability.CycleStatistics)

	txns, err := f.store.ListTransactions(ctx, store.TransactionFilter{AccountID: f.account})
	require.NoError(t, err)
	assert.Empty(t, txns)
}

func TestPayBillFloorsBalanceAtZero(t *testing.T) {
	f := newFixture(t, "5000")
	ctx := context.Background()

	last := &domain.Liability{
		Name:                 "almost done",
		Currency:             "EUR",
		CurrentBalance:       dec("500"),
		Frequency:            domain.Frequency{Unit: domain.FrequencyMonthly},
		DueDayOfMonth:        1,
		NextDueDate:          date(2024, 3, 1),
		LinkedAccountID:      f.account,
		InstallmentTotal:     dec("1000"),
		InstallmentPrincipal: dec("900"),
		InstallmentInterest:  dec("100"),
	}
	require.NoError(t, f.store.CreateLiability(ctx, last))

	res, err := f.reconciler.PayBill(ctx, PayBillRequest{
		LiabilityID: last.ID,
		Amount:      dec("1000"),
		PaymentDate: date(2024, 3, 1),
	})
	require.NoError(t, err)
	assert.True(t, res.Liability.CurrentBalance.IsZero(), "principal above the balance floors at zero")
}

func TestPayBillValidation(t *testing.T) {
	f := newFixture(t, "5000")
	ctx := context.Background()

	_, err := f.reconciler.PayBill(ctx, PayBillRequest{
		LiabilityID: "missing",
		Amount:      dec("10"),
		PaymentDate: date(2024, 3, 1),
	})
	assert.True(t, domain.IsCode(err, domain.CodeUnknownLiability))

	_, err = f.reconciler.PayBill(ctx, PayBillRequest{
		Amount:      dec("10"),
		PaymentDate: date(2024, 3, 1),
	})
	assert.True(t, domain.IsCode(err, domain.CodeInvalidInput), "needs a liability or a bill")

	_, err = f.reconciler.PayBill(ctx, PayBillRequest{
		LiabilityID: f.liability.ID,
		Amount:      dec("-10"),
		PaymentDate: date(2024, 3, 1),
	})
	assert.True(t, domain.IsCode(err, domain.CodeInvalidAmount))
}

func TestPayBillRejectsCurrencyMismatch(t *testing.T) {
	f := newFixture(t, "5000")
	ctx := context.Background()

	usd := &domain.Account{Name: "travel", Kind: domain.AccountGeneral, Currency: "USD", Balance: dec("5000"), Active: true}
	require.NoError(t, f.store.CreateAccount(ctx, usd))

	_, err := f.reconciler.PayBill(ctx, PayBillRequest{
		LiabilityID: f.liability.ID,
		AccountID:   usd.ID,
		Amount:      dec("1000"),
		PaymentDate: date(2024, 3, 1),
	})
	assert.True(t, domain.IsCode(err, domain.CodeCurrencyMismatch))
}

func TestPostponeThenReconcileAgainstArrangedDate(t *testing.T) {
	f := newFixture(t, "5000")
	ctx := context.Background()
	bill := f.seedBill(t, 1, date(2024, 3, 1))
	f.setToday(date(2024, 2, 25))

	postponed, err := f.reconciler.Postpone(ctx, bill.ID, date(2024, 3, 20))
	require.NoError(t, err)
	assert.Equal(t, domain.BillPostponed, postponed.Status)
	assert.Equal(t, date(2024, 3, 20), postponed.DueDate)
	assert.Equal(t, date(2024, 3, 1), postponed.OriginalDueDate)

	changed, err := f.reconciler.RefreshBillStatuses(ctx)
	require.NoError(t, err)
	assert.Zero(t, changed, "postponed holds until its new date")

	f.setToday(date(2024, 3, 20))
	res := f.pay(t, "1000", date(2024, 3, 20))
	assert.Equal(t, domain.StatusPaidOnTime, res.Snapshot.Status,
		"grading runs against the arranged date")
}

func TestPostponeGuards(t *testing.T) {
	f := newFixture(t, "5000")
	ctx := context.Background()
	bill := f.seedBill(t, 1, date(2024, 3, 1))

	_, err := f.reconciler.Postpone(ctx, bill.ID, date(2024, 2, 20))
	assert.True(t, domain.IsCode(err, domain.CodeInvalidInput), "postpone must move forward")

	_, err = f.reconciler.Postpone(ctx, bill.ID, date(2024, 3, 1))
	assert.True(t, domain.IsCode(err, domain.CodeInvalidInput), "today is not in the future")

	f.pay(t, "1000", date(2024, 3, 1))
	_, err = f.reconciler.Postpone(ctx, bill.ID, date(2024, 3, 20))
	assert.True(t, domain.IsCode(err, domain.CodeBillImmutable))
}

func TestEditDueDateRecomputesStatus(t *testing.T) {
	f := newFixture(t, "5000")
	ctx := context.Background()
	bill := f.seedBill(t, 1, date(2024, 3, 1))
	f.setToday(date(2024, 2, 25))

	_, err := f.reconciler.Postpone(ctx, bill.ID, date(2024, 3, 20))
	require.NoError(t, err)

	edited, err := f.reconciler.EditDueDate(ctx, bill.ID, date(2024, 2, 26))
	require.NoError(t, err)
	assert.Equal(t, domain.BillUpcoming, edited.Status, "an explicit edit drops the postponed marker")

	edited, err = f.reconciler.EditDueDate(ctx, bill.ID, date(2024, 2, 25))
	require.NoError(t, err)
	assert.Equal(t, domain.BillDueToday, edited.Status)

	edited, err = f.reconciler.EditDueDate(ctx, bill.ID, date(2024, 2, 20))
	require.NoError(t, err)
	assert.Equal(t, domain.BillOverdue, edited.Status)

	f.pay(t, "1000", date(2024, 2, 25))
	_, err = f.reconciler.EditDueDate(ctx, bill.ID, date(2024, 3, 5))
	assert.True(t, domain.IsCode(err, domain.CodeBillImmutable))
}

func TestRefreshBillStatuses(t *testing.T) {
	f := newFixture(t, "5000")
	ctx := context.Background()
	f.seedBill(t, 1, date(2024, 3, 4))
	f.seedBill(t, 2, date(2024, 3, 5))
	f.seedBill(t, 3, date(2024, 3, 6))
	f.setToday(date(2024, 3, 5))

	changed, err := f.reconciler.RefreshBillStatuses(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, changed)

	statuses := map[int]domain.BillStatus{}
	for cycle := 1; cycle <= 3; cycle++ {
		bill, err := f.store.GetBillByCycle(ctx, f.liability.ID, cycle)
		require.NoError(t, err)
		statuses[cycle] = bill.Status
	}
	assert.Equal(t, domain.BillOverdue, statuses[1])
	assert.Equal(t, domain.BillDueToday, statuses[2])
	assert.Equal(t, domain.BillUpcoming, statuses[3])

	changed, err = f.reconciler.RefreshBillStatuses(ctx)
	require.NoError(t, err)
	assert.Zero(t, changed, "a second run finds nothing to move")
}

func TestEnsureUpcomingBill(t *testing.T) {
	f := newFixture(t, "5000")
	ctx := context.Background()

	bill, created, err := f.reconciler.EnsureUpcomingBill(ctx, f.liability.ID)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 1, bill.CycleNumber)
	assert.Equal(t, date(2024, 3, 1), bill.DueDate)
	assert.True(t, bill.Total.Equal(dec("1000")))

	again, created, err := f.reconciler.EnsureUpcomingBill(ctx, f.liability.ID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, bill.ID, again.ID)
}
