// Package store defines the contracts the finance core consumes: the
// strongly consistent primary store the ledger and reconciler write to,
// and the eventually consistent projection the reporting side reads.
// Implementations live under internal/infra and internal/store/inmemory.
package store

import (
	"context"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/mstetsenko/pouch/internal/domain"
)

// BucketDelta is one atomic mutation of an account's bucket arithmetic.
// For stored bucket kinds the delta moves both the bucket and the account
// balance; for the personal kind only the account balance moves and the
// derived personal share is the guard. A negative amount is a debit.
type BucketDelta struct {
	AccountID string
	Kind      domain.BucketKind
	Ref       string
	Amount    decimal.Decimal

	// IdempotencyKey, when set, makes the delta replay-safe: a key the
	// store has already applied returns the original result untouched.
	IdempotencyKey string

	// Transaction, when set, is appended within the same atomic unit as
	// the balance mutation, and its ID is reported in the result.
	Transaction *domain.Transaction
}

// DeltaResult carries the authoritative post-mutation values, computed
// and returned synchronously by the store.
type DeltaResult struct {
	AccountBalance  decimal.Decimal
	BucketBalance   decimal.Decimal
	PersonalBalance decimal.Decimal
	TransactionID   string

	// Replayed is true when the idempotency key had already been
	// applied and no new mutation happened.
	Replayed bool
}

// TransactionFilter narrows ListTransactions.
type TransactionFilter struct {
	AccountID string
	Category  string
	From      civil.Date
	To        civil.Date
	Limit     int
}

// BillFilter narrows ListBills.
type BillFilter struct {
	LiabilityID string
	Statuses    []domain.BillStatus
	DueBefore   *civil.Date
}

// LiabilityUpdate is a partial update applied by the reconciler. Nil
// fields are left untouched; Snapshot is merged into the liability's
// cycle statistics under its cycle number.
type LiabilityUpdate struct {
	CurrentBalance *decimal.Decimal
	NextDueDate    *civil.Date
	Snapshot       *domain.CycleSnapshot
}

// LedgerStore is the transactional contract the bucket ledger requires.
// ApplyBucketDelta must be atomic and serializable per account: two
// concurrent debits of one bucket must never both succeed on a stale
// balance.
type LedgerStore interface {
	ApplyBucketDelta(ctx context.Context, delta BucketDelta) (*DeltaResult, error)
	RecordTransaction(ctx context.Context, txn *domain.Transaction) (string, error)
	ReadBuckets(ctx context.Context, accountID string) ([]domain.Bucket, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]*domain.Transaction, error)

	// RecordTransfer saves a transfer record, or updates it when the id
	// is already known.
	RecordTransfer(ctx context.Context, transfer *domain.Transfer) error
	UpdateTransferStatus(ctx context.Context, transferID string, status domain.TransferStatus) error
	GetTransfer(ctx context.Context, transferID string) (*domain.Transfer, error)
}

// AccountStore manages account records and the corruption quarantine.
type AccountStore interface {
	CreateAccount(ctx context.Context, account *domain.Account) error
	GetAccount(ctx context.Context, accountID string) (*domain.Account, error)
	ListAccounts(ctx context.Context) ([]*domain.Account, error)
	FreezeAccount(ctx context.Context, accountID, reason string) error
	UnfreezeAccount(ctx context.Context, accountID string) error
}

// GoalStore manages goals and their contribution links.
type GoalStore interface {
	CreateGoal(ctx context.Context, goal *domain.Goal) error
	GetGoal(ctx context.Context, goalID string) (*domain.Goal, error)
	ListGoals(ctx context.Context, includeClosed bool) ([]*domain.Goal, error)
	UpdateGoal(ctx context.Context, goal *domain.Goal) error
	DeleteGoal(ctx context.Context, goalID string) error

	RecordContribution(ctx context.Context, contribution *domain.GoalContribution) error
	ListContributions(ctx context.Context, goalID string) ([]*domain.GoalContribution, error)
}

// LiabilityStore manages liabilities, their bills and payment records.
// UpsertBill is idempotent on (liability id, cycle number). MarkBillPaid
// settles at most once: a second call for the same bill must fail with
// the bill-already-settled domain error and change nothing.
type LiabilityStore interface {
	CreateLiability(ctx context.Context, liability *domain.Liability) error
	GetLiability(ctx context.Context, liabilityID string) (*domain.Liability, error)
	ListLiabilities(ctx context.Context) ([]*domain.Liability, error)
	UpdateLiability(ctx context.Context, liabilityID string, update LiabilityUpdate) error

	UpsertBill(ctx context.Context, bill *domain.Bill) (string, error)
	GetBill(ctx context.Context, billID string) (*domain.Bill, error)
	GetBillByCycle(ctx context.Context, liabilityID string, cycleNumber int) (*domain.Bill, error)
	ListBills(ctx context.Context, filter BillFilter) ([]*domain.Bill, error)
	MarkBillPaid(ctx context.Context, billID string, snapshot domain.CycleSnapshot, paidAt time.Time) error
	UpdateBillStatus(ctx context.Context, billID string, status domain.BillStatus) error
	UpdateBillDueDate(ctx context.Context, billID string, dueDate civil.Date, status domain.BillStatus) error

	RecordPayment(ctx context.Context, payment *domain.LiabilityPayment) error
	ListPayments(ctx context.Context, liabilityID string) ([]*domain.LiabilityPayment, error)
}

// AlertStore persists escalations for manual reconciliation.
type AlertStore interface {
	RecordAlert(ctx context.Context, alert *domain.ReconciliationAlert) error
	ListAlerts(ctx context.Context, includeResolved bool) ([]*domain.ReconciliationAlert, error)
	ResolveAlert(ctx context.Context, alertID string) error
}

// Store is the full primary-store contract.
type Store interface {
	LedgerStore
	AccountStore
	GoalStore
	LiabilityStore
	AlertStore
}

// CategorySpend is one row of the spending-by-category projection query.
type CategorySpend struct {
	Category string
	Total    decimal.Decimal
}

// Projection is the eventually consistent analytics sink. Writers stream
// settled records into it; readers accept bounded staleness.
type Projection interface {
	InsertTransactions(ctx context.Context, txns []*domain.Transaction) error
	InsertCycleSnapshots(ctx context.Context, liabilityID string, snapshots []domain.CycleSnapshot) error
	SpendingByCategory(ctx context.Context, from, to civil.Date) ([]CategorySpend, error)
	TransactionsByDateRange(ctx context.Context, from, to civil.Date) ([]*domain.Transaction, error)
}
