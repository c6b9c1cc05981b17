package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountKind describes what kind of money holder an account is.
type AccountKind string

const (
	AccountGeneral            AccountKind = "general"
	AccountCard               AccountKind = "card"
	AccountWallet             AccountKind = "wallet"
	AccountCash               AccountKind = "cash"
	AccountGoalReservoir      AccountKind = "goal_reservoir"
	AccountLiabilityReservoir AccountKind = "liability_reservoir"
)

// Valid reports whether k is one of the known account kinds.
func (k AccountKind) Valid() bool {
	switch k {
	case AccountGeneral, AccountCard, AccountWallet, AccountCash,
		AccountGoalReservoir, AccountLiabilityReservoir:
		return true
	}
	return false
}

// Account holds a total balance partitioned into purpose-tagged buckets.
// The personal share is never stored: it is always the total balance minus
// the sum of the non-personal buckets.
type Account struct {
	ID       string
	Name     string
	Kind     AccountKind
	Currency string
	Balance  decimal.Decimal
	Active   bool

	// Frozen is set when an invariant violation was detected on this
	// account. A frozen account rejects every ledger mutation until an
	// operator clears the flag.
	Frozen       bool
	FrozenReason string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// PersonalBalance derives the unallocated share of the account balance
// from the stored buckets.
func (a *Account) PersonalBalance(buckets []Bucket) decimal.Decimal {
	allocated := decimal.Zero
	for _, b := range buckets {
		if b.AccountID == a.ID && b.Kind != BucketPersonal {
			allocated = allocated.Add(b.Balance)
		}
	}
	return a.Balance.Sub(allocated)
}

// Mutable reports whether ledger operations may touch this account.
func (a *Account) Mutable() bool {
	return a.Active && !a.Frozen
}
