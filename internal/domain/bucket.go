package domain

import (
	"github.com/shopspring/decimal"
)

// BucketKind tags the purpose of a fund bucket.
type BucketKind string

const (
	// BucketPersonal is the derived, unallocated share of an account.
	// It is a valid operand for spend/receive but is never stored.
	BucketPersonal BucketKind = "personal"
	BucketGoal     BucketKind = "goal"
	BucketBorrowed BucketKind = "borrowed"
	BucketReserved BucketKind = "reserved"
	BucketSinking  BucketKind = "sinking"
)

// Valid reports whether k is a known bucket kind.
func (k BucketKind) Valid() bool {
	switch k {
	case BucketPersonal, BucketGoal, BucketBorrowed, BucketReserved, BucketSinking:
		return true
	}
	return false
}

// Stored reports whether buckets of this kind exist as rows in the store.
func (k BucketKind) Stored() bool {
	return k.Valid() && k != BucketPersonal
}

// Bucket is a purpose-tagged partition of one account's balance.
// Ref identifies the goal or liability the funds are earmarked for.
// A bucket is created lazily on first credit and is never negative.
type Bucket struct {
	AccountID string
	Kind      BucketKind
	Ref       string
	Balance   decimal.Decimal
}

// SumBuckets adds up the balances of all stored buckets in the slice.
func SumBuckets(buckets []Bucket) decimal.Decimal {
	total := decimal.Zero
	for _, b := range buckets {
		total = total.Add(b.Balance)
	}
	return total
}
