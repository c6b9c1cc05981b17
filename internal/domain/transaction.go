package domain

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// Transaction categories used by the core. Free-form categories are
// allowed for plain income/spending; these are the ones the core assigns
// itself.
const (
	CategoryGoalContribution = "goal_contribution"
	CategoryGoalWithdrawal   = "goal_withdrawal"
	CategoryGoalRelease      = "goal_release"
	CategoryLiabilityPayment = "liability_payment"
	CategoryCompensation     = "transfer_compensation"
	CategoryTransfer         = "transfer"
)

// Transaction is the immutable record of a single ledger movement.
// Credits carry positive amounts, debits negative. Corrections are new
// transactions, never edits.
type Transaction struct {
	ID          string
	AccountID   string
	Amount      decimal.Decimal
	Currency    string
	Category    string
	Description string
	Date        civil.Date

	// Bucket the movement applied to. Personal movements carry the
	// personal kind with an empty ref.
	BucketKind BucketKind
	BucketRef  string

	// TransferID groups the legs of one transfer, including any
	// compensation leg.
	TransferID string

	// IdempotencyKey dedupes replayed writes; the store ignores a
	// delta whose key it has already applied.
	IdempotencyKey string

	// Classification is set on liability payment transactions only.
	Classification *CycleSnapshot

	CreatedAt time.Time
}

// Debit reports whether the transaction moved money out of the account.
func (t *Transaction) Debit() bool {
	return t.Amount.IsNegative()
}

// TransferStatus tracks how far a two-leg transfer got.
type TransferStatus string

const (
	// TransferPending: the source leg applied, the destination leg has
	// not settled yet.
	TransferPending TransferStatus = "pending"
	// TransferCompleted: both legs applied.
	TransferCompleted TransferStatus = "completed"
	// TransferCompensated: the second leg failed and the compensating
	// credit restored the source.
	TransferCompensated TransferStatus = "compensated"
	// TransferCompensationPending: the compensating credit has not
	// landed yet and is being retried.
	TransferCompensationPending TransferStatus = "compensation_pending"
	// TransferEscalated: compensation retries exhausted; an alert was
	// raised for manual reconciliation.
	TransferEscalated TransferStatus = "escalated"
)

// Transfer is the domain record linking the two transactions of one
// logical bucket-to-bucket move. The source transaction id is the
// canonical reference.
type Transfer struct {
	ID string

	SourceAccountID  string
	SourceBucketKind BucketKind
	SourceBucketRef  string

	DestAccountID  string
	DestBucketKind BucketKind
	DestBucketRef  string

	Amount   decimal.Decimal
	Currency string
	Category string
	Date     civil.Date

	SourceTransactionID string
	DestTransactionID   string

	Status    TransferStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}
