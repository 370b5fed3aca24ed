package docket

import "time"

// OffsetDate adds years, then months, then days to base.  Month arithmetic
// clamps instead of rolling over: Jan 31 plus one month is Feb 28/29, not
// Mar 2.  Deadline law counts in calendar months, so rollover would land the
// deadline in the wrong month.
func OffsetDate(base time.Time, years, months, days int) time.Time {
	y, m, d := base.Date()
	y += years
	mo := int(m) + months
	// Normalise month into [1,12].
	y += (mo - 1) / 12
	mo = (mo-1)%12 + 1
	if mo < 1 {
		mo += 12
		y--
	}
	if max := daysIn(y, time.Month(mo)); d > max {
		d = max
	}
	t := time.Date(y, time.Month(mo), d, 0, 0, 0, 0, base.Location())
	return t.AddDate(0, 0, days)
}

// EndOfMonth returns the last day of t's month.
func EndOfMonth(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, daysIn(y, m), 0, 0, 0, 0, t.Location())
}

// MinDate returns the earlier of a and b.
func MinDate(a, b time.Time) time.Time {
	if b.Before(a) {
		return b
	}
	return a
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Anniversary returns the n-th anniversary of base, clamping Feb 29 to
// Feb 28 in non-leap years.
func Anniversary(base time.Time, n int) time.Time {
	return OffsetDate(base, n, 0, 0)
}
