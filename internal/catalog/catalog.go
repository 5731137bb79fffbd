package catalog

import (
	"fmt"
	"time"
)

// Catalog defines which slots exist, independent of any bookings: the
// rolling month window offered to clients and the fixed daily time grid.
type Catalog struct {
	monthWindow int
	times       []string
}

// DefaultTimes is the daily slot grid used when none is configured.
var DefaultTimes = []string{
	"10:00", "11:00", "12:00",
	"13:00", "14:00", "15:00",
	"16:00", "17:00", "18:00",
}

const DefaultMonthWindow = 6

type Month struct {
	Year  int
	Month time.Month
}

func New(monthWindow int, times []string) (*Catalog, error) {
	if monthWindow <= 0 {
		monthWindow = DefaultMonthWindow
	}
	if len(times) == 0 {
		times = DefaultTimes
	}
	for _, t := range times {
		if _, err := time.Parse("15:04", t); err != nil {
			return nil, fmt.Errorf("invalid time slot %q: %w", t, err)
		}
	}
	return &Catalog{monthWindow: monthWindow, times: times}, nil
}

// Months returns the offered (year, month) pairs starting at today's month,
// wrapping year boundaries.
func (c *Catalog) Months(today time.Time) []Month {
	y, m := today.Year(), int(today.Month())
	out := make([]Month, 0, c.monthWindow)
	for i := 0; i < c.monthWindow; i++ {
		mm := m + i
		yy := y + (mm-1)/12
		m2 := (mm-1)%12 + 1
		out = append(out, Month{Year: yy, Month: time.Month(m2)})
	}
	return out
}

// DaysInMonth computes the month length as the day before the first day of
// the next month, which handles 28/29/30/31 and leap years generically.
func DaysInMonth(year int, month time.Month) int {
	nextY, nextM := year, month+1
	if nextM == 13 {
		nextM = time.January
		nextY++
	}
	first := time.Date(nextY, nextM, 1, 0, 0, 0, 0, time.UTC)
	return first.AddDate(0, 0, -1).Day()
}

// OfferableDays returns the bookable day numbers of a month. Days strictly
// before today are excluded when the month is the current one.
func (c *Catalog) OfferableDays(year int, month time.Month, today time.Time) []int {
	todayDate := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	max := DaysInMonth(year, month)
	var days []int
	for day := 1; day <= max; day++ {
		d := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
		if d.Before(todayDate) {
			continue
		}
		days = append(days, day)
	}
	return days
}

// Contains reports whether (year, month) falls inside the offered window.
func (c *Catalog) Contains(today time.Time, year int, month time.Month) bool {
	for _, m := range c.Months(today) {
		if m.Year == year && m.Month == month {
			return true
		}
	}
	return false
}

// Times returns the daily slot grid in booking order.
func (c *Catalog) Times() []string {
	out := make([]string, len(c.times))
	copy(out, c.times)
	return out
}

func (c *Catalog) ValidTime(t string) bool {
	for _, v := range c.times {
		if v == t {
			return true
		}
	}
	return false
}

func FormatDate(year int, month time.Month, day int) string {
	return fmt.Sprintf("%04d-%02d-%02d", year, int(month), day)
}

// ParseDate validates an ISO calendar date.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation("2006-01-02", s, time.UTC)
}
