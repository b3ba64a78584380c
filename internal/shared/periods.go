package shared

import (
	"fmt"
	"time"
)

// DateLayout is the wire format of report dates.
const DateLayout = "2006-01-02"

// MonthLayout is the key format of monthly buckets.
const MonthLayout = "2006-01"

// DateRange is an inclusive range of calendar days evaluated in Location.
type DateRange struct {
	From     time.Time
	To       time.Time
	Location *time.Location
}

// NewDateRange builds a range and validates its bounds.
func NewDateRange(from, to time.Time, loc *time.Location) (DateRange, error) {
	r := DateRange{From: from, To: to, Location: loc}
	if err := r.Validate(); err != nil {
		return DateRange{}, err
	}
	return r, nil
}

// ParseDate parses a YYYY-MM-DD date in loc.
func ParseDate(value string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(DateLayout, value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s", ErrInvalidRange, err)
	}
	return t, nil
}

// Validate rejects empty and inverted ranges.
func (r DateRange) Validate() error {
	if r.From.IsZero() || r.To.IsZero() {
		return fmt.Errorf("%w: from and to are required", ErrInvalidRange)
	}
	if r.Start().After(startOfDay(r.To, r.loc())) {
		return fmt.Errorf("%w: from %s is after to %s", ErrInvalidRange, r.FromKey(), r.ToKey())
	}
	return nil
}

func (r DateRange) loc() *time.Location {
	if r.Location == nil {
		return time.UTC
	}
	return r.Location
}

// Start returns midnight of the first day.
func (r DateRange) Start() time.Time {
	return startOfDay(r.From, r.loc())
}

// End returns midnight after the last day (exclusive bound).
func (r DateRange) End() time.Time {
	return startOfDay(r.To, r.loc()).AddDate(0, 0, 1)
}

// Contains reports whether t falls on any day of the range.
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start()) && t.Before(r.End())
}

// EndsAfter reports whether the last day of the range is later than the day of now.
func (r DateRange) EndsAfter(now time.Time) bool {
	return civilDay(r.To, r.loc()).After(civilDay(now, r.loc()))
}

// Days returns the inclusive day count.
func (r DateRange) Days() int {
	return DaysInclusive(r.From, r.To, r.loc())
}

// Previous returns the range of equal length ending the day before From.
func (r DateRange) Previous() DateRange {
	days := r.Days()
	to := r.Start().AddDate(0, 0, -1)
	from := to.AddDate(0, 0, -(days - 1))
	return DateRange{From: from, To: to, Location: r.Location}
}

// Months enumerates the calendar months touched by the range.
func (r DateRange) Months() []string {
	start := r.Start()
	end := startOfDay(r.To, r.loc())
	current := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, r.loc())
	last := time.Date(end.Year(), end.Month(), 1, 0, 0, 0, 0, r.loc())
	var months []string
	for !current.After(last) {
		months = append(months, current.Format(MonthLayout))
		current = current.AddDate(0, 1, 0)
	}
	return months
}

// MonthKey returns the bucket key of t in the range location.
func (r DateRange) MonthKey(t time.Time) string {
	return t.In(r.loc()).Format(MonthLayout)
}

// FromKey formats the first day.
func (r DateRange) FromKey() string {
	return r.From.In(r.loc()).Format(DateLayout)
}

// ToKey formats the last day.
func (r DateRange) ToKey() string {
	return r.To.In(r.loc()).Format(DateLayout)
}

// DaysInclusive counts calendar days from a to b, both included. The result is
// zero or negative when b precedes a.
func DaysInclusive(a, b time.Time, loc *time.Location) int {
	if loc == nil {
		loc = time.UTC
	}
	diff := civilDay(b, loc).Sub(civilDay(a, loc))
	return int(diff.Hours()/24) + 1
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// civilDay maps t to its calendar day at UTC midnight so day differences ignore DST.
func civilDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
