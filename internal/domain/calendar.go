package domain

import "time"

// PriceSource records which layer of the precedence chain produced a day's price.
type PriceSource string

const (
	PriceSourceBase     PriceSource = "base"
	PriceSourceWeekend  PriceSource = "weekend"
	PriceSourceSeason   PriceSource = "season"
	PriceSourceOverride PriceSource = "override"
)

// DayQuote is the resolver output for a single (property, date) pair.
type DayQuote struct {
	Prices      map[int]float64 `json:"pricePerGuestCount"` // guest count -> nightly price
	Available   bool            `json:"available"`
	MinimumStay int             `json:"minimumStay"`
	Source      PriceSource     `json:"priceSource"`
	OverrideID  *int64          `json:"overrideId,omitempty"`
}

// DayEntry is one calendar day inside a cached month.
type DayEntry struct {
	Date        Date            `json:"date"`
	Prices      map[int]float64 `json:"pricePerGuestCount"`
	Available   bool            `json:"available"`
	MinimumStay int             `json:"minimumStay"`
	Source      PriceSource     `json:"priceSource"`
	OverrideID  *int64          `json:"overrideId,omitempty"`
}

// MonthSummary aggregates a month over the baseOccupancy price series.
type MonthSummary struct {
	PropertyID       int64     `json:"propertyId"`
	Year             int       `json:"year"`
	Month            time.Month `json:"month"`
	MinPrice         float64   `json:"minPrice"`
	MaxPrice         float64   `json:"maxPrice"`
	AvgPrice         float64   `json:"avgPrice"`
	UnavailableDays  int       `json:"unavailableDays"`
	ModifiedDays     int       `json:"modifiedDays"`
	HasCustomPrices  bool      `json:"hasCustomPrices"`
	HasSeasonalRates bool      `json:"hasSeasonalRates"`
	GeneratedAt      time.Time `json:"generatedAt"`
}

// PriceCalendarMonth is the cache entity keyed by (propertyId, year, month).
// It is immutable once stored: updates replace the whole value (copy-on-write),
// so concurrent readers never observe a half-built month.
type PriceCalendarMonth struct {
	PropertyID int64        `json:"propertyId"`
	Year       int          `json:"year"`
	Month      time.Month   `json:"month"`
	Days       []DayEntry   `json:"days"` // exactly one entry per day-of-month, ordered
	Summary    MonthSummary `json:"summary"`
}
