package domain

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// PaymentTiming classifies when a payment landed relative to its expected
// date.
type PaymentTiming string

const (
	TimingEarly        PaymentTiming = "early"
	TimingOnTime       PaymentTiming = "on_time"
	TimingWithinWindow PaymentTiming = "within_window"
	TimingLate         PaymentTiming = "late"
)

// AmountClass classifies how a payment amount compares to the expected
// amount once the tolerance band is applied.
type AmountClass string

const (
	AmountExact   AmountClass = "exact"
	AmountOver    AmountClass = "over"
	AmountUnder   AmountClass = "under"
	AmountPartial AmountClass = "partial"
)

// CycleStatus is the overall verdict for one liability cycle. Partial
// outranks over/under, which outrank the timing-derived statuses.
type CycleStatus string

const (
	StatusPartial          CycleStatus = "partial"
	StatusOver             CycleStatus = "over"
	StatusUnder            CycleStatus = "under"
	StatusPaidEarly        CycleStatus = "paid_early"
	StatusPaidOnTime       CycleStatus = "paid_on_time"
	StatusPaidWithinWindow CycleStatus = "paid_within_window"
	StatusPaidLate         CycleStatus = "paid_late"
)

// CycleSnapshot is the full classification record for one reconciled
// cycle. The same snapshot is stored on the liability's cycle statistics,
// on the paid bill, and on the payment record, so each can be audited
// independently.
type CycleSnapshot struct {
	CycleNumber      int             `json:"cycle_number"`
	Status           CycleStatus     `json:"status"`
	Timing           PaymentTiming   `json:"timing"`
	WithinWindow     bool            `json:"is_within_window"`
	DaysDifference   int             `json:"days_difference"`
	AmountClass      AmountClass     `json:"amount_class"`
	AmountDifference decimal.Decimal `json:"amount_difference"`
	ExpectedDate     civil.Date      `json:"expected_date"`
	PaymentDate      civil.Date      `json:"payment_date"`
	ExpectedAmount   decimal.Decimal `json:"expected_amount"`
	PaymentAmount    decimal.Decimal `json:"payment_amount"`
	RecordedAt       time.Time       `json:"recorded_at"`
}

// AlertKind names the situations that demand operator attention.
type AlertKind string

const (
	// AlertCompensationFailed: a transfer compensation exhausted its
	// retries and the source bucket may still be short.
	AlertCompensationFailed AlertKind = "compensation_failed"
	// AlertLedgerCorruption: a post-mutation invariant check failed and
	// the account was frozen.
	AlertLedgerCorruption AlertKind = "ledger_corruption"
	// AlertReconciliationIncomplete: a payment was spent but one of the
	// follow-up liability updates failed.
	AlertReconciliationIncomplete AlertKind = "reconciliation_incomplete"
)

// ReconciliationAlert is a persisted escalation. Alerts are never
// auto-resolved; an operator clears them after manual review.
type ReconciliationAlert struct {
	ID         string
	Kind       AlertKind
	AccountID  string
	TransferID string
	Amount     decimal.Decimal
	Message    string
	Resolved   bool
	ResolvedAt *time.Time
	CreatedAt  time.Time
}
