package app

import (
	"context"
	"fmt"
	"time"

	"staybook/internal/domain"
)

// Availability is the aggregated answer for a candidate stay.
type Availability struct {
	Available    bool          `json:"isAvailable"`
	Reason       string        `json:"reason,omitempty"`
	BlockedDates []domain.Date `json:"blockedDates"`
	MinimumStay  int           `json:"minimumStay"`
}

// AvailabilityService merges blocked-date information from bookings and holds,
// date overrides, and externally synced calendars into one answer.
type AvailabilityService struct {
	pricing    *PricingService
	repo       domain.PricingRepository
	bookings   domain.BookingRepository
	synced     domain.SyncedBlockRepository
	maxSyncAge time.Duration
	now        func() time.Time
}

func NewAvailabilityService(
	pricing *PricingService,
	repo domain.PricingRepository,
	bookings domain.BookingRepository,
	synced domain.SyncedBlockRepository,
	maxSyncAge time.Duration,
) *AvailabilityService {
	return &AvailabilityService{
		pricing:    pricing,
		repo:       repo,
		bookings:   bookings,
		synced:     synced,
		maxSyncAge: maxSyncAge,
		now:        time.Now,
	}
}

// Check answers whether [checkIn, checkOut) can be booked. Hold expiry is a
// read-time comparison against holdUntil; expired holds stop blocking without
// any record mutation. When synced calendar data exists but is older than the
// freshness budget, the answer fails closed: better to refuse a stay than to
// risk a double-booking against a calendar we cannot trust.
func (s *AvailabilityService) Check(ctx context.Context, propertyID int64, stay domain.DateRange) (Availability, error) {
	now := s.now()

	blocked := map[domain.Date]bool{}

	bookings, err := s.bookings.ListBlockingBookings(ctx, propertyID, stay, now)
	if err != nil {
		return Availability{}, fmt.Errorf("list blocking bookings: %w", err)
	}
	for i := range bookings {
		b := &bookings[i]
		if !b.BlocksDates(now) {
			continue
		}
		for _, d := range b.Stay.Dates() {
			if stay.Contains(d) {
				blocked[d] = true
			}
		}
	}

	overrides, err := s.repo.ListDateOverrides(ctx, propertyID, stay)
	if err != nil {
		return Availability{}, fmt.Errorf("list overrides: %w", err)
	}
	for _, o := range overrides {
		if !o.Available && stay.Contains(o.Date) {
			blocked[o.Date] = true
		}
	}

	status, err := s.synced.GetSyncStatus(ctx, propertyID)
	if err != nil {
		return Availability{}, fmt.Errorf("get sync status: %w", err)
	}
	if status.Sources > 0 && s.maxSyncAge > 0 && now.Sub(status.LastSyncedAt) > s.maxSyncAge {
		return Availability{
			Available:    false,
			Reason:       "external calendar data is stale",
			BlockedDates: stay.Dates(),
		}, nil
	}
	syncedBlocks, err := s.synced.ListSyncedBlocks(ctx, propertyID)
	if err != nil {
		return Availability{}, fmt.Errorf("list synced blocks: %w", err)
	}
	for _, sb := range syncedBlocks {
		if !sb.Range.Overlaps(stay) {
			continue
		}
		for _, d := range sb.Range.Dates() {
			if stay.Contains(d) {
				blocked[d] = true
			}
		}
	}

	minStay, err := s.pricing.MinimumStayAt(ctx, propertyID, stay.CheckIn)
	if err != nil {
		return Availability{}, err
	}

	out := Availability{MinimumStay: minStay}
	for _, d := range stay.Dates() {
		if blocked[d] {
			out.BlockedDates = append(out.BlockedDates, d)
		}
	}
	switch {
	case len(out.BlockedDates) > 0:
		out.Reason = "dates unavailable"
	case stay.Nights() < minStay:
		out.Reason = fmt.Sprintf("stay of %d nights is below the %d-night minimum", stay.Nights(), minStay)
	default:
		out.Available = true
	}
	return out, nil
}
