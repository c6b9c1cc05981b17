package liability

import (
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/mstetsenko/pouch/internal/domain"
)

// Config tunes the reconciliation tolerances. The zero value falls back
// to the defaults, so Config{} is usable as-is.
type Config struct {
	// ToleranceDays is the window either side of the due date within
	// which a payment still counts against the current cycle.
	ToleranceDays      int
	// AmountTolerancePct is the band, in percent of the expected amount,
	// inside which a payment classifies as exact.
	AmountTolerancePct decimal.Decimal
	// PartialRatio is the fraction of the expected amount below which a
	// payment classifies as partial, whatever its timing.
	PartialRatio       decimal.Decimal
}

// DefaultConfig returns the stock tolerances: seven days, one percent,
// half the expected amount.
func DefaultConfig() Config {
	return Config{
		ToleranceDays:      7,
		AmountTolerancePct: decimal.NewFromInt(1),
		PartialRatio:       decimal.NewFromFloat(0.5),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ToleranceDays <= 0 {
		c.ToleranceDays = d.ToleranceDays
	}
	if !c.AmountTolerancePct.IsPositive() {
		c.AmountTolerancePct = d.AmountTolerancePct
	}
	if !c.PartialRatio.IsPositive() {
		c.PartialRatio = d.PartialRatio
	}
	return c
}

// Classify grades one payment against the expected due date and amount.
// It is a pure function of its inputs; the caller stamps the cycle
// number and recording time onto the returned snapshot.
func Classify(expectedDate civil.Date, expectedAmount decimal.Decimal, paymentDate civil.Date, paid decimal.Decimal, cfg Config) domain.CycleSnapshot {
	cfg = cfg.withDefaults()

	daysDiff := paymentDate.DaysSince(expectedDate)
	var (
		timing domain.PaymentTiming
		within bool
	)
	switch {
	case daysDiff < -cfg.ToleranceDays:
		timing, within = domain.TimingEarly, false
	case daysDiff < 0:
		timing, within = domain.TimingEarly, true
	case daysDiff == 0:
		timing, within = domain.TimingOnTime, true
	case daysDiff <= cfg.ToleranceDays:
		timing, within = domain.TimingWithinWindow, true
	default:
		timing, within = domain.TimingLate, false
	}

	amountDiff := paid.Sub(expectedAmount)
	tolerance := expectedAmount.Mul(cfg.AmountTolerancePct).Div(decimal.NewFromInt(100))
	var class domain.AmountClass
	switch {
	case paid.LessThan(expectedAmount.Mul(cfg.PartialRatio)):
		class = domain.AmountPartial
	case amountDiff.Abs().LessThanOrEqual(tolerance):
		class = domain.AmountExact
	case amountDiff.IsPositive():
		class = domain.AmountOver
	default:
		class = domain.AmountUnder
	}

	return domain.CycleSnapshot{
		Status:           cycleStatus(class, timing),
		Timing:           timing,
		WithinWindow:     within,
		DaysDifference:   daysDiff,
		AmountClass:      class,
		AmountDifference: amountDiff,
		ExpectedDate:     expectedDate,
		PaymentDate:      paymentDate,
		ExpectedAmount:   expectedAmount,
		PaymentAmount:    paid,
	}
}

// cycleStatus folds the two axes into the single verdict. Amount
// anomalies outrank timing: a partial payment is partial even when it
// arrived on the due date.
func cycleStatus(class domain.AmountClass, timing domain.PaymentTiming) domain.CycleStatus {
	switch class {
	case domain.AmountPartial:
		return domain.StatusPartial
	case domain.AmountOver:
		return domain.StatusOver
	case domain.AmountUnder:
		return domain.StatusUnder
	}
	switch timing {
	case domain.TimingEarly:
		return domain.StatusPaidEarly
	case domain.TimingOnTime:
		return domain.StatusPaidOnTime
	case domain.TimingWithinWindow:
		return domain.StatusPaidWithinWindow
	default:
		return domain.StatusPaidLate
	}
}
