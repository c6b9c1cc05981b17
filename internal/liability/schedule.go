package liability

import (
	"time"

	"cloud.google.com/go/civil"

	"github.com/mstetsenko/pouch/internal/domain"
)

// NextDueDate advances one schedule step from the given due date.
// Month-based frequencies aim for dueDay and clamp to the last day of a
// shorter month, so a due-day of 31 lands on Feb 29 and returns to the
// 31st in March. Day-based frequencies add a fixed number of days.
func NextDueDate(current civil.Date, freq domain.Frequency, dueDay int) civil.Date {
	if months, ok := freq.Months(); ok {
		return addMonths(current, months, dueDay)
	}
	if days, ok := freq.Days(); ok {
		return current.AddDays(days)
	}
	// Not reachable for a frequency that passed validation; keep the
	// schedule moving anyway.
	return current.AddDays(30)
}

func addMonths(d civil.Date, months, dueDay int) civil.Date {
	day := dueDay
	if day <= 0 {
		day = d.Day
	}
	year := d.Year
	month := int(d.Month) + months
	year += (month - 1) / 12
	month = (month-1)%12 + 1

	if last := daysIn(year, time.Month(month)); day > last {
		day = last
	}
	return civil.Date{Year: year, Month: time.Month(month), Day: day}
}

// daysIn uses the day-zero normalization of the following month.
func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
