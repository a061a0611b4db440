package app

import (
	"context"
	"fmt"
	"math"

	"staybook/internal/domain"
)

// PricingService resolves effective nightly prices. The resolution itself is a
// pure function over loaded configuration; the service only adds repository
// plumbing for on-demand single-date quotes.
type PricingService struct {
	repo domain.PricingRepository
}

func NewPricingService(repo domain.PricingRepository) *PricingService {
	return &PricingService{repo: repo}
}

// round2 keeps monetary values at cent precision.
func round2(v float64) float64 { return math.Round(v*100) / 100 }

// ResolveDay computes the effective quote for one date.
//
// Precedence: a DateOverride is authoritative and skips all other logic.
// Otherwise the highest-priority covering seasonal rule adjusts the base rate
// (tie-break: later start date wins), then the weekend multiplier applies when
// the weekday is in the property's weekend set. Minimum stay resolves as
// override > seasonal > property default.
func ResolveDay(p domain.Property, rules []domain.SeasonalRule, ov *domain.DateOverride, day domain.Date) domain.DayQuote {
	if ov != nil {
		nightly := ov.CustomPrice
		if !ov.FlatRate {
			nightly = p.PricePerNight * ov.CustomPrice
		}
		minStay := p.DefaultMinimumStay
		if ov.MinimumStay != nil {
			minStay = *ov.MinimumStay
		}
		id := ov.ID
		return domain.DayQuote{
			Prices:      guestPrices(p, nightly),
			Available:   ov.Available,
			MinimumStay: minStay,
			Source:      domain.PriceSourceOverride,
			OverrideID:  &id,
		}
	}

	nightly := p.PricePerNight
	source := domain.PriceSourceBase
	minStay := p.DefaultMinimumStay

	if rule := pickSeasonalRule(rules, day); rule != nil {
		if rule.FixedPrice {
			nightly = rule.Rate
		} else {
			nightly = p.PricePerNight * rule.Rate
		}
		source = domain.PriceSourceSeason
		if rule.MinimumStay != nil {
			minStay = *rule.MinimumStay
		}
	}

	if p.IsWeekend(day) && p.WeekendAdjustment > 0 && p.WeekendAdjustment != 1 {
		nightly *= p.WeekendAdjustment
		if source == domain.PriceSourceBase {
			source = domain.PriceSourceWeekend
		}
	}

	return domain.DayQuote{
		Prices:      guestPrices(p, nightly),
		Available:   true,
		MinimumStay: minStay,
		Source:      source,
	}
}

// pickSeasonalRule selects the covering rule with the highest priority.
// Ties resolve to the rule with the later start date, for determinism.
func pickSeasonalRule(rules []domain.SeasonalRule, day domain.Date) *domain.SeasonalRule {
	var best *domain.SeasonalRule
	for i := range rules {
		r := &rules[i]
		if !r.Covers(day) {
			continue
		}
		if best == nil || r.Priority > best.Priority ||
			(r.Priority == best.Priority && best.Start.Before(r.Start)) {
			best = r
		}
	}
	return best
}

// guestPrices fills the per-guest-count map for 1..MaxGuests. Each guest above
// baseOccupancy adds extraGuestFee to the nightly rate.
func guestPrices(p domain.Property, nightly float64) map[int]float64 {
	max := p.MaxGuests
	if max < 1 {
		max = 1
	}
	out := make(map[int]float64, max)
	for g := 1; g <= max; g++ {
		price := nightly
		if g > p.BaseOccupancy {
			price += p.ExtraGuestFee * float64(g-p.BaseOccupancy)
		}
		out[g] = round2(price)
	}
	return out
}

// overrideFor returns the override matching day, if any.
func overrideFor(overrides []domain.DateOverride, day domain.Date) *domain.DateOverride {
	for i := range overrides {
		if overrides[i].Date.Equal(day) {
			return &overrides[i]
		}
	}
	return nil
}

// QuoteDay loads a property's configuration and resolves one date for a
// specific guest count.
func (s *PricingService) QuoteDay(ctx context.Context, propertyID int64, day domain.Date, guestCount int) (domain.DayQuote, error) {
	p, err := s.repo.GetProperty(ctx, propertyID)
	if err != nil {
		return domain.DayQuote{}, fmt.Errorf("get property %d: %w", propertyID, err)
	}
	if guestCount < 1 || guestCount > p.MaxGuests {
		return domain.DayQuote{}, fmt.Errorf("%w: guest count %d outside 1..%d", domain.ErrValidation, guestCount, p.MaxGuests)
	}
	rules, err := s.repo.ListSeasonalRules(ctx, propertyID)
	if err != nil {
		return domain.DayQuote{}, fmt.Errorf("list seasonal rules: %w", err)
	}
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			return domain.DayQuote{}, err
		}
	}
	dayRange := domain.DateRange{CheckIn: day, CheckOut: day.AddDays(1)}
	overrides, err := s.repo.ListDateOverrides(ctx, propertyID, dayRange)
	if err != nil {
		return domain.DayQuote{}, fmt.Errorf("list overrides: %w", err)
	}
	return ResolveDay(p, rules, overrideFor(overrides, day), day), nil
}

// MinimumStayAt resolves the minimum stay in effect at the given check-in date.
func (s *PricingService) MinimumStayAt(ctx context.Context, propertyID int64, checkIn domain.Date) (int, error) {
	p, err := s.repo.GetProperty(ctx, propertyID)
	if err != nil {
		return 0, fmt.Errorf("get property %d: %w", propertyID, err)
	}
	rules, err := s.repo.ListSeasonalRules(ctx, propertyID)
	if err != nil {
		return 0, fmt.Errorf("list seasonal rules: %w", err)
	}
	dayRange := domain.DateRange{CheckIn: checkIn, CheckOut: checkIn.AddDays(1)}
	overrides, err := s.repo.ListDateOverrides(ctx, propertyID, dayRange)
	if err != nil {
		return 0, fmt.Errorf("list overrides: %w", err)
	}
	q := ResolveDay(p, rules, overrideFor(overrides, checkIn), checkIn)
	return q.MinimumStay, nil
}
