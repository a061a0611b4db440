package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// DateLayout is the wire format for all calendar dates.
const DateLayout = "2006-01-02"

// Date is a timezone-naive calendar date. Internally it is pinned to UTC
// midnight so that comparisons and day arithmetic never cross a DST boundary.
type Date struct {
	t time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates an instant to its calendar date.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, m, d)
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("%w: bad date %q, want YYYY-MM-DD", ErrValidation, s)
	}
	return DateOf(t), nil
}

func (d Date) Year() int            { return d.t.Year() }
func (d Date) Month() time.Month    { return d.t.Month() }
func (d Date) Day() int             { return d.t.Day() }
func (d Date) Weekday() time.Weekday { return d.t.Weekday() }
func (d Date) IsZero() bool         { return d.t.IsZero() }

func (d Date) AddDays(n int) Date { return Date{t: d.t.AddDate(0, 0, n)} }

func (d Date) Before(o Date) bool { return d.t.Before(o.t) }
func (d Date) After(o Date) bool  { return d.t.After(o.t) }
func (d Date) Equal(o Date) bool  { return d.t.Equal(o.t) }

// DaysUntil returns the number of whole days from d to o (negative if o is earlier).
func (d Date) DaysUntil(o Date) int {
	return int(o.t.Sub(d.t) / (24 * time.Hour))
}

func (d Date) String() string { return d.t.Format(DateLayout) }

func (d Date) MarshalJSON() ([]byte, error) { return json.Marshal(d.String()) }

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	p, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = p
	return nil
}

// DaysInMonth returns the number of calendar days in (year, month).
func DaysInMonth(year int, month time.Month) int {
	return NewDate(year, month+1, 1).AddDays(-1).Day()
}

// DateRange is a half-open range of calendar dates: [CheckIn, CheckOut).
// It is the single range representation used by the availability aggregator,
// the coupon validator, and the booking coordinator.
type DateRange struct {
	CheckIn  Date `json:"checkIn"`
	CheckOut Date `json:"checkOut"`
}

func NewDateRange(checkIn, checkOut Date) (DateRange, error) {
	if !checkOut.After(checkIn) {
		return DateRange{}, fmt.Errorf("%w: checkOut %s must be after checkIn %s", ErrValidation, checkOut, checkIn)
	}
	return DateRange{CheckIn: checkIn, CheckOut: checkOut}, nil
}

// InclusiveDateRange converts an inclusive [from, until] pair (seasonal rules,
// coupon exclusion periods) to the canonical half-open form.
func InclusiveDateRange(from, until Date) DateRange {
	return DateRange{CheckIn: from, CheckOut: until.AddDays(1)}
}

// Overlaps reports whether two half-open ranges intersect:
// [a1,a2) and [b1,b2) overlap iff a1 < b2 && b1 < a2.
func (r DateRange) Overlaps(o DateRange) bool {
	return r.CheckIn.Before(o.CheckOut) && o.CheckIn.Before(r.CheckOut)
}

// Contains reports whether d falls inside [CheckIn, CheckOut).
func (r DateRange) Contains(d Date) bool {
	return !d.Before(r.CheckIn) && d.Before(r.CheckOut)
}

// Nights is the stay length; always >= 1 for a valid range.
func (r DateRange) Nights() int { return r.CheckIn.DaysUntil(r.CheckOut) }

// Dates enumerates every date in [CheckIn, CheckOut).
func (r DateRange) Dates() []Date {
	out := make([]Date, 0, r.Nights())
	for d := r.CheckIn; d.Before(r.CheckOut); d = d.AddDays(1) {
		out = append(out, d)
	}
	return out
}

func (r DateRange) String() string {
	return fmt.Sprintf("[%s, %s)", r.CheckIn, r.CheckOut)
}

// MonthRange covers every date of one calendar month.
func MonthRange(year int, month time.Month) DateRange {
	start := NewDate(year, month, 1)
	return DateRange{CheckIn: start, CheckOut: start.AddDays(DaysInMonth(year, month))}
}
