package app

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"staybook/internal/domain"
)

// CalendarService builds and caches per-month price calendars. Cached months
// are immutable values replaced wholesale on every write, so concurrent
// readers see either the previous or the next calendar, never a partial one.
type CalendarService struct {
	repo     domain.PricingRepository
	cache    domain.Cache
	cacheTTL time.Duration
	now      func() time.Time
}

func NewCalendarService(repo domain.PricingRepository, cache domain.Cache, ttl time.Duration) *CalendarService {
	return &CalendarService{repo: repo, cache: cache, cacheTTL: ttl, now: time.Now}
}

func calendarKey(propertyID int64, year int, month time.Month) string {
	return fmt.Sprintf("pricecal:%d:%04d-%02d", propertyID, year, int(month))
}

// GetMonth serves the cached month, building and storing it on a miss.
func (s *CalendarService) GetMonth(ctx context.Context, propertyID int64, year int, month time.Month) (domain.PriceCalendarMonth, error) {
	if month < time.January || month > time.December {
		return domain.PriceCalendarMonth{}, fmt.Errorf("%w: month %d", domain.ErrValidation, month)
	}
	key := calendarKey(propertyID, year, month)
	var cal domain.PriceCalendarMonth
	if ok, _ := s.cache.Get(ctx, key, &cal); ok {
		return cal, nil
	}
	cal, err := s.BuildMonth(ctx, propertyID, year, month)
	if err != nil {
		return domain.PriceCalendarMonth{}, err
	}
	_ = s.cache.Set(ctx, key, cal, int(s.cacheTTL.Seconds()))
	return cal, nil
}

// BuildMonth regenerates one month from current rule configuration. The result
// is a pure function of that configuration (plus generatedAt): identical inputs
// yield identical day entries, which is what makes regeneration idempotent.
func (s *CalendarService) BuildMonth(ctx context.Context, propertyID int64, year int, month time.Month) (domain.PriceCalendarMonth, error) {
	p, err := s.repo.GetProperty(ctx, propertyID)
	if err != nil {
		return domain.PriceCalendarMonth{}, fmt.Errorf("get property %d: %w", propertyID, err)
	}
	rules, err := s.repo.ListSeasonalRules(ctx, propertyID)
	if err != nil {
		return domain.PriceCalendarMonth{}, fmt.Errorf("list seasonal rules: %w", err)
	}
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			return domain.PriceCalendarMonth{}, err
		}
	}
	mr := domain.MonthRange(year, month)
	overrides, err := s.repo.ListDateOverrides(ctx, propertyID, mr)
	if err != nil {
		return domain.PriceCalendarMonth{}, fmt.Errorf("list overrides: %w", err)
	}

	days := make([]domain.DayEntry, 0, mr.Nights())
	for _, day := range mr.Dates() {
		q := ResolveDay(p, rules, overrideFor(overrides, day), day)
		days = append(days, domain.DayEntry{
			Date:        day,
			Prices:      q.Prices,
			Available:   q.Available,
			MinimumStay: q.MinimumStay,
			Source:      q.Source,
			OverrideID:  q.OverrideID,
		})
	}

	cal := domain.PriceCalendarMonth{
		PropertyID: propertyID,
		Year:       year,
		Month:      month,
		Days:       days,
		Summary:    summarize(p, propertyID, year, month, days, s.now().UTC()),
	}
	return cal, nil
}

// summarize computes month statistics over the baseOccupancy price series.
func summarize(p domain.Property, propertyID int64, year int, month time.Month, days []domain.DayEntry, generatedAt time.Time) domain.MonthSummary {
	sum := domain.MonthSummary{
		PropertyID:  propertyID,
		Year:        year,
		Month:       month,
		GeneratedAt: generatedAt,
	}
	occ := p.BaseOccupancy
	if occ < 1 {
		occ = 1
	}
	var total float64
	for i, d := range days {
		price := d.Prices[occ]
		total += price
		if i == 0 || price < sum.MinPrice {
			sum.MinPrice = price
		}
		if price > sum.MaxPrice {
			sum.MaxPrice = price
		}
		if !d.Available {
			sum.UnavailableDays++
		}
		if d.Source == domain.PriceSourceOverride {
			sum.ModifiedDays++
			sum.HasCustomPrices = true
		}
		if d.Source == domain.PriceSourceSeason {
			sum.HasSeasonalRates = true
		}
	}
	if len(days) > 0 {
		sum.AvgPrice = round2(total / float64(len(days)))
	}
	return sum
}

// Regenerate rebuilds monthsAhead months starting at the current month and
// atomically replaces each cached entry. Months build concurrently; each SET
// is a single whole-value replacement.
func (s *CalendarService) Regenerate(ctx context.Context, propertyID int64, monthsAhead int) ([]domain.MonthSummary, error) {
	if monthsAhead < 1 {
		monthsAhead = 1
	}
	if monthsAhead > 12 {
		monthsAhead = 12
	}

	start := domain.DateOf(s.now().UTC())
	type slot struct {
		year  int
		month time.Month
	}
	slots := make([]slot, 0, monthsAhead)
	y, m := start.Year(), start.Month()
	for i := 0; i < monthsAhead; i++ {
		slots = append(slots, slot{year: y, month: m})
		m++
		if m > time.December {
			m = time.January
			y++
		}
	}

	summaries := make([]domain.MonthSummary, len(slots))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, sl := range slots {
		i, sl := i, sl
		g.Go(func() error {
			cal, err := s.BuildMonth(gctx, propertyID, sl.year, sl.month)
			if err != nil {
				return err
			}
			key := calendarKey(propertyID, sl.year, sl.month)
			if err := s.cache.Set(gctx, key, cal, int(s.cacheTTL.Seconds())); err != nil {
				return fmt.Errorf("store calendar %s: %w", key, err)
			}
			summaries[i] = cal.Summary
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].Year != summaries[j].Year {
			return summaries[i].Year < summaries[j].Year
		}
		return summaries[i].Month < summaries[j].Month
	})
	return summaries, nil
}

// ApplyDayOverride persists a single-day admin edit and patches the cached
// month so it stays consistent with a future regeneration. The override is
// written first: the cache must never hold price data unbacked by a persisted
// override. On any cache trouble the month is dropped instead of patched.
func (s *CalendarService) ApplyDayOverride(ctx context.Context, o domain.DateOverride) (domain.DayEntry, error) {
	if o.Date.IsZero() {
		return domain.DayEntry{}, fmt.Errorf("%w: override date required", domain.ErrValidation)
	}
	if o.FlatRate && o.CustomPrice < 0 || !o.FlatRate && o.CustomPrice <= 0 {
		return domain.DayEntry{}, fmt.Errorf("%w: bad override price %v", domain.ErrValidation, o.CustomPrice)
	}

	p, err := s.repo.GetProperty(ctx, o.PropertyID)
	if err != nil {
		return domain.DayEntry{}, fmt.Errorf("get property %d: %w", o.PropertyID, err)
	}

	id, err := s.repo.UpsertDateOverride(ctx, o)
	if err != nil {
		return domain.DayEntry{}, fmt.Errorf("persist override: %w", err)
	}
	o.ID = id

	rules, err := s.repo.ListSeasonalRules(ctx, o.PropertyID)
	if err != nil {
		return domain.DayEntry{}, fmt.Errorf("list seasonal rules: %w", err)
	}
	q := ResolveDay(p, rules, &o, o.Date)
	entry := domain.DayEntry{
		Date:        o.Date,
		Prices:      q.Prices,
		Available:   q.Available,
		MinimumStay: q.MinimumStay,
		Source:      q.Source,
		OverrideID:  q.OverrideID,
	}

	s.patchCachedDay(ctx, p, entry)
	return entry, nil
}

// patchCachedDay swaps one day into a copy of the cached month and stores the
// copy back. A miss is fine (next read rebuilds); a stale or unreadable entry
// is deleted rather than patched.
func (s *CalendarService) patchCachedDay(ctx context.Context, p domain.Property, entry domain.DayEntry) {
	key := calendarKey(p.ID, entry.Date.Year(), entry.Date.Month())
	var cal domain.PriceCalendarMonth
	ok, err := s.cache.Get(ctx, key, &cal)
	if err != nil {
		_ = s.cache.Del(ctx, key)
		return
	}
	if !ok {
		return
	}

	patched := domain.PriceCalendarMonth{
		PropertyID: cal.PropertyID,
		Year:       cal.Year,
		Month:      cal.Month,
		Days:       make([]domain.DayEntry, len(cal.Days)),
	}
	copy(patched.Days, cal.Days)
	found := false
	for i := range patched.Days {
		if patched.Days[i].Date.Equal(entry.Date) {
			patched.Days[i] = entry
			found = true
			break
		}
	}
	if !found {
		_ = s.cache.Del(ctx, key)
		return
	}
	patched.Summary = summarize(p, cal.PropertyID, cal.Year, cal.Month, patched.Days, s.now().UTC())
	if err := s.cache.Set(ctx, key, patched, int(s.cacheTTL.Seconds())); err != nil {
		_ = s.cache.Del(ctx, key)
	}
}
