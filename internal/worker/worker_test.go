package worker

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mstetsenko/pouch/internal/domain"
	"github.com/mstetsenko/pouch/internal/jobs"
	"github.com/mstetsenko/pouch/internal/ledger"
	"github.com/mstetsenko/pouch/internal/liability"
	"github.com/mstetsenko/pouch/internal/store"
	"github.com/mstetsenko/pouch/internal/store/inmemory"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newDeps(t *testing.T) (Deps, *inmemory.Store) {
	t.Helper()
	log := zerolog.Nop()
	st := inmemory.New()
	led := ledger.New(st, log)
	orch := ledger.NewOrchestrator(led, st, nil, ledger.OrchestratorConfig{ImmediateRetries: 1}, log)
	rec := liability.NewReconciler(st, led, liability.DefaultConfig(), log)
	return Deps{
		Store:        st,
		Orchestrator: orch,
		Reconciler:   rec,
		Log:          log,
	}, st
}

func createAccount(t *testing.T, st *inmemory.Store, balance string) string {
	t.Helper()
	a := &domain.Account{
		Name:     "Checking",
		Kind:     domain.AccountGeneral,
		Currency: "EUR",
		Balance:  dec(balance),
		Active:   true,
	}
	require.NoError(t, st.CreateAccount(context.Background(), a))
	return a.ID
}

func TestHandlerCompensatesTransferIdempotently(t *testing.T) {
	deps, st := newDeps(t)
	ctx := context.Background()
	accountID := createAccount(t, st, "100")

	task, err := jobs.NewTask(jobs.KindCompensateTransfer, ledger.CompensationTask{
		TransferID: "tr-1",
		AccountID:  accountID,
		Bucket:     domain.BucketPersonal,
		Amount:     dec("40"),
		Date:       civil.Date{Year: 2024, Month: 6, Day: 10},
	})
	require.NoError(t, err)
	task.ID = "task-1"

	handle := Handler(deps)
	require.NoError(t, handle(ctx, task))

	account, err := st.GetAccount(ctx, accountID)
	require.NoError(t, err)
	assert.True(t, account.Balance.Equal(dec("140")), "got %s", account.Balance)

	// A redelivered task replays the credit instead of applying it twice.
	require.NoError(t, handle(ctx, task))
	account, err = st.GetAccount(ctx, accountID)
	require.NoError(t, err)
	assert.True(t, account.Balance.Equal(dec("140")), "got %s", account.Balance)
}

func TestHandlerRefreshesBillStatuses(t *testing.T) {
	deps, st := newDeps(t)
	ctx := context.Background()
	accountID := createAccount(t, st, "1000")

	l := &domain.Liability{
		Name:            "Car loan",
		Currency:        "EUR",
		Frequency:       domain.Frequency{Unit: domain.FrequencyMonthly},
		NextDueDate:     civil.Date{Year: 2024, Month: 7, Day: 1},
		LinkedAccountID: accountID,
	}
	require.NoError(t, st.CreateLiability(ctx, l))
	billID, err := st.UpsertBill(ctx, &domain.Bill{
		LiabilityID:     l.ID,
		CycleNumber:     1,
		DueDate:         civil.Date{Year: 2024, Month: 7, Day: 1},
		OriginalDueDate: civil.Date{Year: 2024, Month: 7, Day: 1},
		Total:           dec("250"),
		Status:          domain.BillUpcoming,
	})
	require.NoError(t, err)

	task, err := jobs.NewTask(jobs.KindRefreshBills, nil)
	require.NoError(t, err)

	require.NoError(t, Handler(deps)(ctx, task))

	bill, err := st.GetBill(ctx, billID)
	require.NoError(t, err)
	assert.Equal(t, domain.BillOverdue, bill.Status)
}

func TestHandlerSkipsUnconfiguredIntegrations(t *testing.T) {
	deps, _ := newDeps(t)
	ctx := context.Background()
	handle := Handler(deps)

	for _, kind := range []jobs.Kind{jobs.KindExportProjection, jobs.KindArchiveSnapshot, jobs.KindSyncNotion} {
		task, err := jobs.NewTask(kind, nil)
		require.NoError(t, err)
		assert.NoError(t, handle(ctx, task), string(kind))
	}
}

func TestHandlerRejectsUnknownKind(t *testing.T) {
	deps, _ := newDeps(t)

	task, err := jobs.NewTask(jobs.Kind("defragment_disk"), nil)
	require.NoError(t, err)
	assert.Error(t, Handler(deps)(context.Background(), task))
}

func TestExhaustedHookEscalatesCompensation(t *testing.T) {
	deps, st := newDeps(t)
	ctx := context.Background()
	accountID := createAccount(t, st, "100")

	task, err := jobs.NewTask(jobs.KindCompensateTransfer, ledger.CompensationTask{
		TransferID: "tr-9",
		AccountID:  accountID,
		Bucket:     domain.BucketPersonal,
		Amount:     dec("25"),
		Date:       civil.Date{Year: 2024, Month: 6, Day: 10},
	})
	require.NoError(t, err)
	task.ID = "task-9"
	task.Error = "account is frozen"

	ExhaustedHook(deps)(ctx, task)

	alerts, err := st.ListAlerts(ctx, false)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, domain.AlertCompensationFailed, alerts[0].Kind)
	assert.Equal(t, "tr-9", alerts[0].TransferID)
}

type captureProjection struct {
	txns  []*domain.Transaction
	snaps map[string][]domain.CycleSnapshot
}

func (c *captureProjection) InsertTransactions(ctx context.Context, txns []*domain.Transaction) error {
	c.txns = append(c.txns, txns...)
	return nil
}

func (c *captureProjection) InsertCycleSnapshots(ctx context.Context, liabilityID string, snaps []domain.CycleSnapshot) error {
	if c.snaps == nil {
		c.snaps = map[string][]domain.CycleSnapshot{}
	}
	c.snaps[liabilityID] = append(c.snaps[liabilityID], snaps...)
	return nil
}

func (c *captureProjection) SpendingByCategory(ctx context.Context, from, to civil.Date) ([]store.CategorySpend, error) {
	return nil, nil
}

func (c *captureProjection) TransactionsByDateRange(ctx context.Context, from, to civil.Date) ([]*domain.Transaction, error) {
	return nil, nil
}

func TestHandlerExportsDefaultWindow(t *testing.T) {
	deps, st := newDeps(t)
	ctx := context.Background()
	accountID := createAccount(t, st, "1000")

	led := ledger.New(st, zerolog.Nop())
	yesterday := civil.DateOf(time.Now()).AddDays(-1)
	lastWeek := civil.DateOf(time.Now()).AddDays(-8)
	for _, d := range []civil.Date{yesterday, lastWeek} {
		_, err := led.Spend(ctx, ledger.Movement{
			AccountID: accountID,
			Bucket:    domain.BucketPersonal,
			Amount:    dec("10"),
			Category:  "groceries",
			Date:      d,
		})
		require.NoError(t, err)
	}

	capture := &captureProjection{}
	deps.Projection = capture

	task, err := jobs.NewTask(jobs.KindExportProjection, nil)
	require.NoError(t, err)
	require.NoError(t, Handler(deps)(ctx, task))

	require.Len(t, capture.txns, 1)
	assert.Equal(t, yesterday, capture.txns[0].Date)
}

func TestHandlerExportsExplicitWindow(t *testing.T) {
	deps, st := newDeps(t)
	ctx := context.Background()
	accountID := createAccount(t, st, "1000")

	led := ledger.New(st, zerolog.Nop())
	_, err := led.Spend(ctx, ledger.Movement{
		AccountID: accountID,
		Bucket:    domain.BucketPersonal,
		Amount:    dec("10"),
		Category:  "groceries",
		Date:      civil.Date{Year: 2024, Month: 3, Day: 5},
	})
	require.NoError(t, err)

	capture := &captureProjection{}
	deps.Projection = capture

	task, err := jobs.NewTask(jobs.KindExportProjection, ExportWindow{
		From: civil.Date{Year: 2024, Month: 3, Day: 1},
		To:   civil.Date{Year: 2024, Month: 3, Day: 31},
	})
	require.NoError(t, err)
	require.NoError(t, Handler(deps)(ctx, task))

	require.Len(t, capture.txns, 1)
}

func TestSnapshotsInWindow(t *testing.T) {
	now := time.Now()
	l := &domain.Liability{
		ID: "l1",
		CycleStatistics: map[int]domain.CycleSnapshot{
			1: {CycleNumber: 1, RecordedAt: now.AddDate(0, 0, -10)},
			2: {CycleNumber: 2, RecordedAt: now.AddDate(0, 0, -1)},
			3: {CycleNumber: 3, RecordedAt: now},
		},
	}

	yesterday := civil.DateOf(now).AddDays(-1)
	snaps := snapshotsInWindow(l, ExportWindow{From: yesterday, To: yesterday})
	require.Len(t, snaps, 1)
	assert.Equal(t, 2, snaps[0].CycleNumber)

	all := snapshotsInWindow(l, ExportWindow{})
	require.Len(t, all, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{all[0].CycleNumber, all[1].CycleNumber, all[2].CycleNumber})
}
