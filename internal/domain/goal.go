package domain

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// Goal is a savings target funded by goal buckets spread across its
// linked accounts. CurrentAmount mirrors the sum of those buckets and is
// refreshed from store balances after every transfer that touches them.
type Goal struct {
	ID            string
	Name          string
	TargetAmount  decimal.Decimal
	CurrentAmount decimal.Decimal
	TargetDate    *civil.Date
	Currency      string
	Achieved      bool
	AchievedAt    *time.Time
	Archived      bool

	// LinkedAccountIDs is the set of accounts allowed to hold this
	// goal's bucket.
	LinkedAccountIDs []string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Linked reports whether accountID may hold this goal's bucket.
func (g *Goal) Linked(accountID string) bool {
	for _, id := range g.LinkedAccountIDs {
		if id == accountID {
			return true
		}
	}
	return false
}

// Open reports whether the goal still accepts contributions and
// withdrawals.
func (g *Goal) Open() bool {
	return !g.Achieved && !g.Archived
}

// CompletionEligible reports whether the goal may be marked achieved:
// funded to target and not already achieved. Completion itself is always
// an explicit action, never automatic.
func (g *Goal) CompletionEligible() bool {
	return !g.Achieved && g.TargetAmount.IsPositive() &&
		g.CurrentAmount.GreaterThanOrEqual(g.TargetAmount)
}

// ProgressPercent is the floor percentage of target reached. A goal with
// a non-positive target reports zero.
func (g *Goal) ProgressPercent() int {
	return ProgressPercent(g.CurrentAmount, g.TargetAmount)
}

// ProgressPercent computes floor(current/target*100), clamped at zero for
// degenerate targets. The floor matters for milestone detection: 24.9%
// has not reached 25.
func ProgressPercent(current, target decimal.Decimal) int {
	if !target.IsPositive() {
		return 0
	}
	pct := current.Mul(decimal.NewFromInt(100)).Div(target)
	return int(pct.IntPart())
}

// MilestoneThresholds are the floor percentages whose crossing is worth
// reporting, ascending.
var MilestoneThresholds = []int{25, 50, 75, 100}

// CrossedMilestone returns the highest threshold newly crossed when
// progress moves from previous to current amount. A single update emits
// at most one milestone.
func CrossedMilestone(previous, current, target decimal.Decimal) (int, bool) {
	prevPct := ProgressPercent(previous, target)
	curPct := ProgressPercent(current, target)
	crossed := 0
	for _, th := range MilestoneThresholds {
		if prevPct < th && curPct >= th {
			crossed = th
		}
	}
	return crossed, crossed > 0
}

// Milestone is the event payload for a threshold crossing.
type Milestone struct {
	GoalID      string          `json:"goal_id"`
	Threshold   int             `json:"threshold"`
	PreviousPct int             `json:"previous_pct"`
	CurrentPct  int             `json:"current_pct"`
	Amount      decimal.Decimal `json:"amount"`
	At          time.Time       `json:"at"`
}

// CompletionResolution is the closed set of terminal actions for a goal.
// Exactly one may execute per completion event.
type CompletionResolution string

const (
	// ResolutionWithdrawAndAchieve moves all bucket funds to a chosen
	// account's personal share, then marks the goal achieved.
	ResolutionWithdrawAndAchieve CompletionResolution = "withdraw_and_achieve"
	// ResolutionDelete removes the goal. Permitted only once its buckets
	// are empty, unless forced; a forced delete first releases remaining
	// bucket funds back to the personal share of the holding accounts.
	ResolutionDelete CompletionResolution = "delete"
	// ResolutionArchive soft-deactivates the goal, leaving funds
	// earmarked in place.
	ResolutionArchive CompletionResolution = "archive"
	// ResolutionAchieveLeaveFunds marks the goal achieved with funds
	// left in their buckets.
	ResolutionAchieveLeaveFunds CompletionResolution = "achieve_leave_funds"
)

// Valid reports whether r is a known resolution.
func (r CompletionResolution) Valid() bool {
	switch r {
	case ResolutionWithdrawAndAchieve, ResolutionDelete, ResolutionArchive,
		ResolutionAchieveLeaveFunds:
		return true
	}
	return false
}

// GoalContribution links a goal to the transfer that funded it. The
// transaction reference is the source (expense) leg of the transfer.
type GoalContribution struct {
	ID            string
	GoalID        string
	AccountID     string
	Amount        decimal.Decimal
	TransactionID string
	Date          civil.Date
	CreatedAt     time.Time
}
