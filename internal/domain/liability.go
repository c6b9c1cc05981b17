package domain

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// Liability is a recurring payment obligation with an outstanding
// principal balance. It is mutated only by the cycle reconciler after a
// successful payment.
type Liability struct {
	ID              string
	Name            string
	Currency        string
	CurrentBalance  decimal.Decimal
	Frequency       Frequency
	DueDayOfMonth   int
	NextDueDate     civil.Date
	LinkedAccountID string

	// Installment* describe the expected per-cycle split, used to fill
	// in bills that have to be created on the fly for an unmatched
	// payment. A liability with no configured split treats the whole
	// installment as principal.
	InstallmentTotal     decimal.Decimal
	InstallmentPrincipal decimal.Decimal
	InstallmentInterest  decimal.Decimal

	// CycleStatistics maps cycle number to the last recorded
	// classification for that cycle.
	CycleStatistics map[int]CycleSnapshot

	CreatedAt time.Time
	UpdatedAt time.Time
}

// BillSplit returns the amount components a freshly created bill for this
// liability should carry.
func (l *Liability) BillSplit() (total, principal, interest decimal.Decimal, interestIncluded bool) {
	if l.InstallmentTotal.IsPositive() {
		total = l.InstallmentTotal
		principal = l.InstallmentPrincipal
		interest = l.InstallmentInterest
		if principal.IsZero() && interest.IsZero() {
			principal = total
		}
		return total, principal, interest, interest.IsPositive()
	}
	return decimal.Zero, decimal.Zero, decimal.Zero, false
}

// LiabilityPayment links a ledger transaction to the liability cycle it
// settled. The classification payload duplicates the one stored on the
// liability and the bill so the payment can be audited on its own.
type LiabilityPayment struct {
	ID                 string
	LiabilityID        string
	BillID             string
	CycleNumber        int
	TransactionID      string
	PrincipalComponent decimal.Decimal
	InterestComponent  decimal.Decimal
	Classification     CycleSnapshot
	CreatedAt          time.Time
}
