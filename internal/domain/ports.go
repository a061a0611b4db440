package domain

import (
	"context"
	"time"
)

// SyncedBlock is an externally synced blocked range (e.g. from a channel
// manager's calendar), refreshed out-of-process. This service only reads the
// already-materialized list; it never fetches or parses calendars itself.
type SyncedBlock struct {
	PropertyID int64
	Range      DateRange
	Source     string
	SyncedAt   time.Time
}

// SyncStatus summarizes the freshness of a property's synced blocks.
type SyncStatus struct {
	Sources      int
	LastSyncedAt time.Time
}

type PricingRepository interface {
	GetProperty(ctx context.Context, id int64) (Property, error)
	ListPropertyIDs(ctx context.Context) ([]int64, error)
	ListSeasonalRules(ctx context.Context, propertyID int64) ([]SeasonalRule, error)
	ListDateOverrides(ctx context.Context, propertyID int64, r DateRange) ([]DateOverride, error)
	UpsertDateOverride(ctx context.Context, o DateOverride) (int64, error)
}

// BookingRepository is the reservation ledger: CreateBooking must re-check the
// no-overlap invariant and persist atomically, failing with ErrConflict when a
// concurrent writer won the race.
type BookingRepository interface {
	CreateBooking(ctx context.Context, b *Booking) error
	GetBooking(ctx context.Context, id string) (*Booking, error)
	UpdateBooking(ctx context.Context, b *Booking) error

	// ListBlockingBookings returns bookings whose stay overlaps r and which
	// block dates at the given instant (confirmed, completed, or unexpired hold).
	ListBlockingBookings(ctx context.Context, propertyID int64, r DateRange, now time.Time) ([]Booking, error)

	// PurgeExpiredHolds is an operational cleanup; read-time filtering keeps
	// correctness independent of it.
	PurgeExpiredHolds(ctx context.Context, before time.Time) (int64, error)
}

type CouponRepository interface {
	GetCoupon(ctx context.Context, code string) (Coupon, error)
}

type SyncedBlockRepository interface {
	ListSyncedBlocks(ctx context.Context, propertyID int64) ([]SyncedBlock, error)
	GetSyncStatus(ctx context.Context, propertyID int64) (SyncStatus, error)
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}

// LockHandle releases an acquired lock.
type LockHandle interface {
	Release(ctx context.Context) error
}

// Locker serializes conflicting writes. Acquire blocks until the lock is held
// or ctx is done; the lock self-expires after ttl as crash protection.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (LockHandle, error)
}

// PaymentVerifier is the opaque "verify payment" call against the provider.
type PaymentVerifier interface {
	VerifyPayment(ctx context.Context, providerIntentID string) (PaymentInfo, error)
}
