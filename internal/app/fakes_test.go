package app_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"staybook/internal/domain"
)

// ---- shared fakes for the app services ----

func date(s string) domain.Date {
	d, err := domain.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func stay(in, out string) domain.DateRange {
	r, err := domain.NewDateRange(date(in), date(out))
	if err != nil {
		panic(err)
	}
	return r
}

func intp(i int) *int       { return &i }
func i64p(i int64) *int64   { return &i }
func datep(s string) *domain.Date {
	d := date(s)
	return &d
}

type fakePricingRepo struct {
	mu        sync.Mutex
	props     map[int64]domain.Property
	rules     []domain.SeasonalRule
	overrides []domain.DateOverride
	nextID    int64
}

func (f *fakePricingRepo) GetProperty(ctx context.Context, id int64) (domain.Property, error) {
	p, ok := f.props[id]
	if !ok {
		return domain.Property{}, fmt.Errorf("property %d: %w", id, domain.ErrNotFound)
	}
	return p, nil
}

func (f *fakePricingRepo) ListPropertyIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	for id := range f.props {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakePricingRepo) ListSeasonalRules(ctx context.Context, propertyID int64) ([]domain.SeasonalRule, error) {
	var out []domain.SeasonalRule
	for _, r := range f.rules {
		if r.PropertyID == propertyID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakePricingRepo) ListDateOverrides(ctx context.Context, propertyID int64, r domain.DateRange) ([]domain.DateOverride, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.DateOverride
	for _, o := range f.overrides {
		if o.PropertyID == propertyID && r.Contains(o.Date) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakePricingRepo) UpsertDateOverride(ctx context.Context, o domain.DateOverride) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.overrides {
		if f.overrides[i].PropertyID == o.PropertyID && f.overrides[i].Date.Equal(o.Date) {
			o.ID = f.overrides[i].ID
			f.overrides[i] = o
			return o.ID, nil
		}
	}
	f.nextID++
	o.ID = f.nextID
	f.overrides = append(f.overrides, o)
	return o.ID, nil
}

// fakeBookingRepo enforces the no-overlap invariant under a mutex, mimicking
// the transactional ledger of the real repository.
type fakeBookingRepo struct {
	mu       sync.Mutex
	bookings map[string]*domain.Booking
	creates  int
}

func newFakeBookingRepo() *fakeBookingRepo {
	return &fakeBookingRepo{bookings: map[string]*domain.Booking{}}
}

func (f *fakeBookingRepo) CreateBooking(ctx context.Context, b *domain.Booking) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	now := time.Now()
	for _, other := range f.bookings {
		if other.PropertyID == b.PropertyID && other.BlocksDates(now) && other.Stay.Overlaps(b.Stay) {
			return fmt.Errorf("stay %s overlaps booking %s: %w", b.Stay, other.ID, domain.ErrConflict)
		}
	}
	cp := *b
	f.bookings[b.ID] = &cp
	return nil
}

func (f *fakeBookingRepo) GetBooking(ctx context.Context, id string) (*domain.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[id]
	if !ok {
		return nil, fmt.Errorf("booking %s: %w", id, domain.ErrNotFound)
	}
	cp := *b
	return &cp, nil
}

func (f *fakeBookingRepo) UpdateBooking(ctx context.Context, b *domain.Booking) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.bookings[b.ID]; !ok {
		return fmt.Errorf("booking %s: %w", b.ID, domain.ErrNotFound)
	}
	cp := *b
	f.bookings[b.ID] = &cp
	return nil
}

func (f *fakeBookingRepo) ListBlockingBookings(ctx context.Context, propertyID int64, r domain.DateRange, now time.Time) ([]domain.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Booking
	for _, b := range f.bookings {
		if b.PropertyID == propertyID && b.BlocksDates(now) && b.Stay.Overlaps(r) {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (f *fakeBookingRepo) PurgeExpiredHolds(ctx context.Context, before time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, b := range f.bookings {
		if b.Status == domain.StatusOnHold && b.HoldUntil != nil && b.HoldUntil.Before(before) {
			delete(f.bookings, id)
			n++
		}
	}
	return n, nil
}

type fakeCouponRepo struct {
	coupons map[string]domain.Coupon
}

func (f *fakeCouponRepo) GetCoupon(ctx context.Context, code string) (domain.Coupon, error) {
	c, ok := f.coupons[code]
	if !ok {
		return domain.Coupon{}, fmt.Errorf("coupon %s: %w", code, domain.ErrNotFound)
	}
	return c, nil
}

type fakeSyncedRepo struct {
	blocks []domain.SyncedBlock
	status domain.SyncStatus
}

func (f *fakeSyncedRepo) ListSyncedBlocks(ctx context.Context, propertyID int64) ([]domain.SyncedBlock, error) {
	var out []domain.SyncedBlock
	for _, b := range f.blocks {
		if b.PropertyID == propertyID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeSyncedRepo) GetSyncStatus(ctx context.Context, propertyID int64) (domain.SyncStatus, error) {
	return f.status, nil
}

type fakeCache struct {
	mu    sync.Mutex
	store map[string]any
	sets  int
}

func (c *fakeCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.store[key]
	if !ok {
		return false, nil
	}
	if d, ok := dst.(*domain.PriceCalendarMonth); ok {
		*d = v.(domain.PriceCalendarMonth)
	}
	return true, nil
}

func (c *fakeCache) Set(ctx context.Context, key string, v any, ttlSec int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store == nil {
		c.store = map[string]any{}
	}
	c.store[key] = v
	c.sets++
	return nil
}

func (c *fakeCache) Del(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.store, key)
	return nil
}

// fakeLocker is a process-local Locker with the same blocking semantics as the
// redis adapter.
type fakeLocker struct {
	mu    sync.Mutex
	held  map[string]bool
}

func newFakeLocker() *fakeLocker { return &fakeLocker{held: map[string]bool{}} }

type fakeLockHandle struct {
	l   *fakeLocker
	key string
}

func (h *fakeLockHandle) Release(ctx context.Context) error {
	h.l.mu.Lock()
	defer h.l.mu.Unlock()
	delete(h.l.held, h.key)
	return nil
}

func (l *fakeLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (domain.LockHandle, error) {
	for {
		l.mu.Lock()
		if !l.held[key] {
			l.held[key] = true
			l.mu.Unlock()
			return &fakeLockHandle{l: l, key: key}, nil
		}
		l.mu.Unlock()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}

type fakeVerifier struct {
	mu    sync.Mutex
	info  domain.PaymentInfo
	err   error
	calls int
}

func (v *fakeVerifier) VerifyPayment(ctx context.Context, intentID string) (domain.PaymentInfo, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls++
	if v.err != nil {
		return domain.PaymentInfo{}, v.err
	}
	info := v.info
	info.ProviderIntentID = intentID
	return info, nil
}

// testProperty is the shared fixture: $100 base, 2 base occupancy, 4 max,
// $25 extra-guest fee, weekend multiplier 1.3 on Fri+Sat.
func testProperty() domain.Property {
	return domain.Property{
		ID:                 1,
		Name:               "Seaside Flat",
		PricePerNight:      100,
		BaseOccupancy:      2,
		MaxGuests:          4,
		ExtraGuestFee:      25,
		CleaningFee:        40,
		DefaultMinimumStay: 1,
		WeekendAdjustment:  1.3,
		WeekendDays:        []time.Weekday{time.Friday, time.Saturday},
		BaseCurrency:       "EUR",
	}
}
