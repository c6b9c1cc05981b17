package liability

import (
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/mstetsenko/pouch/internal/domain"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func date(year int, month time.Month, day int) civil.Date {
	return civil.Date{Year: year, Month: month, Day: day}
}

func TestClassifyOnTimeExactPayment(t *testing.T) {
	due := civil.Date{Year: 2024, Month: 3, Day: 1}

	got := Classify(due, dec("1000"), due, dec("1000"), Config{})

	assert.Equal(t, domain.StatusPaidOnTime, got.Status)
	assert.Equal(t, domain.TimingOnTime, got.Timing)
	assert.True(t, got.WithinWindow)
	assert.Equal(t, 0, got.DaysDifference)
	assert.Equal(t, domain.AmountExact, got.AmountClass)
	assert.True(t, got.AmountDifference.IsZero())
}

func TestClassifyLateOutsideWindow(t *testing.T) {
	due := civil.Date{Year: 2024, Month: 3, Day: 1}
	paid := civil.Date{Year: 2024, Month: 3, Day: 10}

	got := Classify(due, dec("1000"), paid, dec("1000"), Config{})

	assert.Equal(t, domain.StatusPaidLate, got.Status)
	assert.Equal(t, domain.TimingLate, got.Timing)
	assert.False(t, got.WithinWindow, "nine days is past the seven-day window")
	assert.Equal(t, 9, got.DaysDifference)
}

func TestClassifyTimingWindows(t *testing.T) {
	due := civil.Date{Year: 2024, Month: 3, Day: 15}
	tests := []struct {
		name   string
		paid   civil.Date
		timing domain.PaymentTiming
		within bool
	}{
		{"eleven days early", civil.Date{Year: 2024, Month: 3, Day: 4}, domain.TimingEarly, false},
		{"seven days early", civil.Date{Year: 2024, Month: 3, Day: 8}, domain.TimingEarly, true},
		{"one day early", civil.Date{Year: 2024, Month: 3, Day: 14}, domain.TimingEarly, true},
		{"on the due date", civil.Date{Year: 2024, Month: 3, Day: 15}, domain.TimingOnTime, true},
		{"one day late", civil.Date{Year: 2024, Month: 3, Day: 16}, domain.TimingWithinWindow, true},
		{"seven days late", civil.Date{Year: 2024, Month: 3, Day: 22}, domain.TimingWithinWindow, true},
		{"eight days late", civil.Date{Year: 2024, Month: 3, Day: 23}, domain.TimingLate, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(due, dec("1000"), tt.paid, dec("1000"), Config{})
			assert.Equal(t, tt.timing, got.Timing)
			assert.Equal(t, tt.within, got.WithinWindow)
		})
	}
}

func TestClassifyPartialOverridesTiming(t *testing.T) {
	due := civil.Date{Year: 2024, Month: 3, Day: 1}
	for _, paid := range []civil.Date{
		due,
		{Year: 2024, Month: 3, Day: 20},
	} {
		got := Classify(due, dec("1000"), paid, dec("400"), Config{})
		assert.Equal(t, domain.StatusPartial, got.Status, "paid on %s", paid)
		assert.Equal(t, domain.AmountPartial, got.AmountClass)
	}
}

func TestClassifyAmountBands(t *testing.T) {
	due := civil.Date{Year: 2024, Month: 3, Day: 1}
	tests := []struct {
		paid   string
		class  domain.AmountClass
		status domain.CycleStatus
	}{
		{"1000", domain.AmountExact, domain.StatusPaidOnTime},
		{"995", domain.AmountExact, domain.StatusPaidOnTime},
		{"1010", domain.AmountExact, domain.StatusPaidOnTime},
		{"1010.01", domain.AmountOver, domain.StatusOver},
		{"1200", domain.AmountOver, domain.StatusOver},
		{"989.99", domain.AmountUnder, domain.StatusUnder},
		{"500", domain.AmountUnder, domain.StatusUnder},
		{"499.99", domain.AmountPartial, domain.StatusPartial},
	}
	for _, tt := range tests {
		t.Run(tt.paid, func(t *testing.T) {
			got := Classify(due, dec("1000"), due, dec(tt.paid), Config{})
			assert.Equal(t, tt.class, got.AmountClass)
			assert.Equal(t, tt.status, got.Status)
		})
	}
}

func TestClassifyCustomPartialRatio(t *testing.T) {
	due := civil.Date{Year: 2024, Month: 3, Day: 1}
	cfg := Config{PartialRatio: dec("0.3")}

	got := Classify(due, dec("1000"), due, dec("350"), cfg)
	assert.Equal(t, domain.AmountUnder, got.AmountClass)

	got = Classify(due, dec("1000"), due, dec("299"), cfg)
	assert.Equal(t, domain.AmountPartial, got.AmountClass)
}

func TestNextDueDateClampsToMonthEnd(t *testing.T) {
	monthly := domain.Frequency{Unit: domain.FrequencyMonthly}
	tests := []struct {
		name    string
		current civil.Date
		freq    domain.Frequency
		dueDay  int
		want    civil.Date
	}{
		{"january 31st into leap february", date(2024, 1, 31), monthly, 31, date(2024, 2, 29)},
		{"clamped february back to the 31st", date(2024, 2, 29), monthly, 31, date(2024, 3, 31)},
		{"january 31st into plain february", date(2023, 1, 31), monthly, 31, date(2023, 2, 28)},
		{"quarter into a thirty-day month", date(2024, 1, 31), domain.Frequency{Unit: domain.FrequencyQuarterly}, 31, date(2024, 4, 30)},
		{"half year lands on september 30th", date(2024, 3, 31), domain.Frequency{Unit: domain.FrequencyHalfyearly}, 31, date(2024, 9, 30)},
		{"leap day yearly", date(2024, 2, 29), domain.Frequency{Unit: domain.FrequencyYearly}, 29, date(2025, 2, 28)},
		{"bimonthly across the year boundary", date(2024, 11, 30), domain.Frequency{Unit: domain.FrequencyBimonthly}, 30, date(2025, 1, 30)},
		{"no due day keeps the current day", date(2024, 3, 15), monthly, 0, date(2024, 4, 15)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextDueDate(tt.current, tt.freq, tt.dueDay))
		})
	}
}

func TestNextDueDateDayBased(t *testing.T) {
	start := date(2024, 3, 1)
	tests := []struct {
		freq domain.Frequency
		want civil.Date
	}{
		{domain.Frequency{Unit: domain.FrequencyDaily}, date(2024, 3, 2)},
		{domain.Frequency{Unit: domain.FrequencyWeekly}, date(2024, 3, 8)},
		{domain.Frequency{Unit: domain.FrequencyBiweekly}, date(2024, 3, 15)},
		{domain.Frequency{Unit: domain.FrequencyCustom, IntervalDays: 10}, date(2024, 3, 11)},
	}
	for _, tt := range tests {
		t.Run(tt.freq.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, NextDueDate(start, tt.freq, 31))
		})
	}
}

func TestRefreshStatus(t *testing.T) {
	today := date(2024, 6, 10)
	tests := []struct {
		name string
		bill domain.Bill
		want domain.BillStatus
	}{
		{"future bill is upcoming", domain.Bill{DueDate: date(2024, 6, 11), Status: domain.BillUpcoming}, domain.BillUpcoming},
		{"bill due today", domain.Bill{DueDate: date(2024, 6, 10), Status: domain.BillUpcoming}, domain.BillDueToday},
		{"past bill is overdue", domain.Bill{DueDate: date(2024, 6, 9), Status: domain.BillUpcoming}, domain.BillOverdue},
		{"postponed holds until its date", domain.Bill{DueDate: date(2024, 6, 15), Status: domain.BillPostponed}, domain.BillPostponed},
		{"postponed date arriving", domain.Bill{DueDate: date(2024, 6, 10), Status: domain.BillPostponed}, domain.BillDueToday},
		{"postponed date passed", domain.Bill{DueDate: date(2024, 6, 8), Status: domain.BillPostponed}, domain.BillOverdue},
		{"paid is terminal", domain.Bill{DueDate: date(2024, 6, 1), Status: domain.BillPaid}, domain.BillPaid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RefreshStatus(&tt.bill, today))
		})
	}
}
