package domain

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// BillStatus is the lifecycle state of one scheduled payment obligation.
// paid is terminal and reachable only through a successful reconciliation.
type BillStatus string

const (
	BillUpcoming  BillStatus = "upcoming"
	BillDueToday  BillStatus = "due_today"
	BillOverdue   BillStatus = "overdue"
	BillPostponed BillStatus = "postponed"
	BillPaid      BillStatus = "paid"
)

// Valid reports whether s is a known bill status.
func (s BillStatus) Valid() bool {
	switch s {
	case BillUpcoming, BillDueToday, BillOverdue, BillPostponed, BillPaid:
		return true
	}
	return false
}

// Terminal reports whether the status permits no further transitions.
func (s BillStatus) Terminal() bool {
	return s == BillPaid
}

// Bill is one cycle of a liability. Exactly one bill exists per
// (liability, cycle number). An unpaid bill moves between the date-driven
// statuses; a paid bill is frozen except for audit metadata.
type Bill struct {
	ID          string
	LiabilityID string
	CycleNumber int

	DueDate         civil.Date
	OriginalDueDate civil.Date

	Total            decimal.Decimal
	Principal        decimal.Decimal
	Interest         decimal.Decimal
	Fee              decimal.Decimal
	InterestIncluded bool

	Status          BillStatus
	LinkedAccountID string

	// Classification and PaidAt are set exactly once, by the
	// reconciliation that settles the bill.
	Classification *CycleSnapshot
	PaidAt         *time.Time

	// Note is audit metadata and stays editable after payment.
	Note string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Settled reports whether the bill has been paid.
func (b *Bill) Settled() bool {
	return b.Status == BillPaid
}

// ExpectedAmount is the amount reconciliation compares a payment against.
// A zero-total bill (created on the fly with no configured installment)
// expects whatever was paid, so every such payment classifies as exact.
func (b *Bill) ExpectedAmount(payment decimal.Decimal) decimal.Decimal {
	if b.Total.IsPositive() {
		return b.Total
	}
	return payment
}
