package domain

import (
	"fmt"
	"time"
)

// Property holds the pricing configuration for one rental unit. It is treated
// as immutable during a pricing computation; edits happen through the admin
// collaborator, outside this service.
type Property struct {
	ID                 int64
	Name               string
	PricePerNight      float64
	BaseOccupancy      int
	MaxGuests          int
	ExtraGuestFee      float64
	CleaningFee        float64
	DefaultMinimumStay int
	WeekendAdjustment  float64 // nightly-rate multiplier; 1.0 disables it
	WeekendDays        []time.Weekday
	BaseCurrency       string
}

// IsWeekend reports whether d's weekday is in the property's weekend set.
func (p Property) IsWeekend(d Date) bool {
	wd := d.Weekday()
	for _, w := range p.WeekendDays {
		if w == wd {
			return true
		}
	}
	return false
}

// SeasonalRule adjusts the nightly rate over an inclusive [Start, End] span.
// Many rules may exist per property and spans may overlap; the resolver picks
// the highest-priority covering rule.
type SeasonalRule struct {
	ID          int64
	PropertyID  int64
	Name        string
	Start       Date
	End         Date
	Priority    int
	FixedPrice  bool    // true: Rate is the absolute nightly price; false: multiplier on base
	Rate        float64
	MinimumStay *int
}

func (r SeasonalRule) Covers(d Date) bool {
	return !d.Before(r.Start) && !d.After(r.End)
}

func (r SeasonalRule) Validate() error {
	if r.End.Before(r.Start) {
		return fmt.Errorf("%w: seasonal rule %d ends %s before it starts %s", ErrConfiguration, r.ID, r.End, r.Start)
	}
	if r.Rate <= 0 {
		return fmt.Errorf("%w: seasonal rule %d has non-positive rate %v", ErrConfiguration, r.ID, r.Rate)
	}
	return nil
}

// DateOverride is the authoritative record for a single date. When one exists,
// price, availability, and minimum stay come entirely from it and the
// weekend/seasonal logic is skipped.
type DateOverride struct {
	ID          int64
	PropertyID  int64
	Date        Date
	CustomPrice float64
	FlatRate    bool // true: CustomPrice is absolute; false: multiplier on base
	Available   bool
	MinimumStay *int
	Reason      string
}
