package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"staybook/internal/domain"
)

// BookingService coordinates the hold/booking lifecycle. Two protocols are
// correctness-critical here: reservation is atomic per property (a lock around
// re-check + persist, with the repository re-checking again inside its own
// transaction), and payment reconciliation is idempotent per booking.
type BookingService struct {
	bookings     domain.BookingRepository
	pricingRepo  domain.PricingRepository
	availability *AvailabilityService
	coupons      *CouponService
	locker       domain.Locker
	verifier     domain.PaymentVerifier

	holdWindow time.Duration
	holdFee    float64
	lockTTL    time.Duration
	now        func() time.Time
}

func NewBookingService(
	bookings domain.BookingRepository,
	pricingRepo domain.PricingRepository,
	availability *AvailabilityService,
	coupons *CouponService,
	locker domain.Locker,
	verifier domain.PaymentVerifier,
	holdWindow time.Duration,
	holdFee float64,
) *BookingService {
	return &BookingService{
		bookings:     bookings,
		pricingRepo:  pricingRepo,
		availability: availability,
		coupons:      coupons,
		locker:       locker,
		verifier:     verifier,
		holdWindow:   holdWindow,
		holdFee:      holdFee,
		lockTTL:      10 * time.Second,
		now:          time.Now,
	}
}

// CreateBookingInput carries everything needed to reserve a stay.
type CreateBookingInput struct {
	PropertyID       int64
	CheckIn          domain.Date
	CheckOut         domain.Date
	GuestCount       int
	Hold             bool
	CouponCode       string
	ProviderIntentID string
}

func reservationLockKey(propertyID int64) string { return fmt.Sprintf("lock:reserve:%d", propertyID) }
func paymentLockKey(bookingID string) string     { return "lock:payment:" + bookingID }

// Create reserves the stay. The availability re-check and the insert happen
// under a per-property lock so two concurrent calls for overlapping ranges
// cannot both succeed; the loser gets ErrConflict and is never retried here.
func (s *BookingService) Create(ctx context.Context, in CreateBookingInput) (*domain.Booking, error) {
	stay, err := domain.NewDateRange(in.CheckIn, in.CheckOut)
	if err != nil {
		return nil, err
	}

	p, err := s.pricingRepo.GetProperty(ctx, in.PropertyID)
	if err != nil {
		return nil, fmt.Errorf("get property %d: %w", in.PropertyID, err)
	}
	if in.GuestCount < 1 || in.GuestCount > p.MaxGuests {
		return nil, fmt.Errorf("%w: guest count %d outside 1..%d", domain.ErrValidation, in.GuestCount, p.MaxGuests)
	}

	lock, err := s.locker.Acquire(ctx, reservationLockKey(in.PropertyID), s.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire reservation lock: %w", err)
	}
	defer func() {
		if rerr := lock.Release(context.WithoutCancel(ctx)); rerr != nil {
			log.Warn().Err(rerr).Int64("property_id", in.PropertyID).Msg("release reservation lock failed")
		}
	}()

	avail, err := s.availability.Check(ctx, in.PropertyID, stay)
	if err != nil {
		return nil, err
	}
	if !avail.Available {
		return nil, fmt.Errorf("%w: %s for %s", domain.ErrConflict, avail.Reason, stay)
	}

	pricing, err := s.priceStay(ctx, p, stay, in.GuestCount)
	if err != nil {
		return nil, err
	}

	var couponCode *string
	if in.CouponCode != "" {
		res, err := s.coupons.Validate(ctx, in.CouponCode, stay, in.PropertyID)
		if err != nil {
			return nil, err
		}
		pricing.Discount = round2(pricing.AccommodationTotal * res.DiscountPercentage / 100)
		code := res.Code
		couponCode = &code
	}
	pricing.Total = round2(pricing.AccommodationTotal + pricing.CleaningFee - pricing.Discount)

	now := s.now().UTC()
	b := &domain.Booking{
		ID:         uuid.NewString(),
		PropertyID: in.PropertyID,
		Stay:       stay,
		GuestCount: in.GuestCount,
		Pricing:    pricing,
		CouponCode: couponCode,
		Payment: domain.PaymentInfo{
			ProviderIntentID: in.ProviderIntentID,
			Status:           domain.PaymentPending,
			Amount:           pricing.Total,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if in.Hold {
		b.Status = domain.StatusOnHold
		until := now.Add(s.holdWindow)
		b.HoldUntil = &until
		fee := s.holdFee
		b.HoldFee = &fee
		b.HoldFeeRefundable = true
		b.Payment.Amount = fee
	} else {
		// Direct-payment flow: provisionally confirmed, pending verified payment.
		b.Status = domain.StatusConfirmed
	}

	if err := s.bookings.CreateBooking(ctx, b); err != nil {
		return nil, err
	}
	log.Info().Str("booking_id", b.ID).Int64("property_id", b.PropertyID).
		Str("stay", b.Stay.String()).Bool("hold", in.Hold).Msg("booking created")
	return b, nil
}

// priceStay resolves every night of the stay for the requested guest count.
func (s *BookingService) priceStay(ctx context.Context, p domain.Property, stay domain.DateRange, guests int) (domain.PriceBreakdown, error) {
	rules, err := s.pricingRepo.ListSeasonalRules(ctx, p.ID)
	if err != nil {
		return domain.PriceBreakdown{}, fmt.Errorf("list seasonal rules: %w", err)
	}
	overrides, err := s.pricingRepo.ListDateOverrides(ctx, p.ID, stay)
	if err != nil {
		return domain.PriceBreakdown{}, fmt.Errorf("list overrides: %w", err)
	}
	var total float64
	for _, day := range stay.Dates() {
		q := ResolveDay(p, rules, overrideFor(overrides, day), day)
		total += q.Prices[guests]
	}
	return domain.PriceBreakdown{
		Nights:             stay.Nights(),
		AccommodationTotal: round2(total),
		CleaningFee:        p.CleaningFee,
	}, nil
}

// UpdatePaymentInfo applies a payment notification (webhook or verify
// fallback). Check-then-update runs under a per-booking lock; a booking whose
// payment is already settled is returned unchanged, so applying the same
// successful payload twice is a no-op with exactly one paidAt.
func (s *BookingService) UpdatePaymentInfo(ctx context.Context, bookingID string, info domain.PaymentInfo, isHold bool) (*domain.Booking, error) {
	lock, err := s.locker.Acquire(ctx, paymentLockKey(bookingID), s.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire payment lock: %w", err)
	}
	defer func() {
		if rerr := lock.Release(context.WithoutCancel(ctx)); rerr != nil {
			log.Warn().Err(rerr).Str("booking_id", bookingID).Msg("release payment lock failed")
		}
	}()

	b, err := s.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	if b.Payment.Settled() {
		log.Info().Str("booking_id", b.ID).Msg("payment already settled, ignoring duplicate update")
		return b, nil
	}

	now := s.now().UTC()

	// No proof of payment means no state transition: record the failure but
	// keep the booking where it is.
	if !info.Settled() {
		b.Payment.ProviderIntentID = info.ProviderIntentID
		b.Payment.Status = info.Status
		b.Payment.Amount = info.Amount
		b.UpdatedAt = now
		if err := s.bookings.UpdateBooking(ctx, b); err != nil {
			return nil, err
		}
		log.Warn().Str("booking_id", b.ID).Str("payment_status", string(info.Status)).
			Msg("payment update without settled proof, booking not confirmed")
		return b, nil
	}

	if b.Status == domain.StatusOnHold && !isHold {
		// Converting a hold to a confirmed booking requires the hold to still
		// be live; a payment landing after expiry is surfaced, not applied.
		if b.HoldUntil != nil && !b.HoldUntil.After(now) {
			return nil, fmt.Errorf("%w: hold on booking %s lapsed at %s", domain.ErrExpired, b.ID, b.HoldUntil.Format(time.RFC3339))
		}
		b.Status = domain.StatusConfirmed
	}

	b.Payment = info
	b.UpdatedAt = now
	if err := s.bookings.UpdateBooking(ctx, b); err != nil {
		return nil, err
	}
	log.Info().Str("booking_id", b.ID).Str("status", string(b.Status)).Bool("hold_fee", isHold).
		Msg("payment settled")
	return b, nil
}

// VerifyPayment is the synchronous fallback for guests who reach the success
// page before the webhook fires. It asks the provider for the intent's state
// and applies the result through the same idempotent path as the webhook.
func (s *BookingService) VerifyPayment(ctx context.Context, bookingID string, isHold bool) (*domain.Booking, error) {
	b, err := s.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.Payment.Settled() {
		return b, nil
	}
	if b.Payment.ProviderIntentID == "" {
		return nil, fmt.Errorf("%w: booking %s has no payment intent", domain.ErrConfiguration, b.ID)
	}

	info, err := s.verifier.VerifyPayment(ctx, b.Payment.ProviderIntentID)
	if err != nil {
		return nil, fmt.Errorf("%w: verify intent %s: %v", domain.ErrExternalDependency, b.Payment.ProviderIntentID, err)
	}
	return s.UpdatePaymentInfo(ctx, bookingID, info, isHold)
}

func (s *BookingService) Get(ctx context.Context, bookingID string) (*domain.Booking, error) {
	return s.bookings.GetBooking(ctx, bookingID)
}

// Cancel releases the booking's dates immediately. Cancelling twice is a
// no-op; completed stays cannot be cancelled.
func (s *BookingService) Cancel(ctx context.Context, bookingID string) (*domain.Booking, error) {
	lock, err := s.locker.Acquire(ctx, paymentLockKey(bookingID), s.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire payment lock: %w", err)
	}
	defer func() {
		if rerr := lock.Release(context.WithoutCancel(ctx)); rerr != nil {
			log.Warn().Err(rerr).Str("booking_id", bookingID).Msg("release payment lock failed")
		}
	}()

	b, err := s.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.Status == domain.StatusCancelled {
		return b, nil
	}
	if !b.CanBeCancelled() {
		return nil, fmt.Errorf("%w: booking %s in status %s cannot be cancelled", domain.ErrValidation, b.ID, b.Status)
	}
	b.Status = domain.StatusCancelled
	b.UpdatedAt = s.now().UTC()
	if err := s.bookings.UpdateBooking(ctx, b); err != nil {
		return nil, err
	}
	log.Info().Str("booking_id", b.ID).Msg("booking cancelled")
	return b, nil
}

// PurgeExpiredHolds removes long-expired hold records. Availability never
// depends on this; it exists for storage hygiene.
func (s *BookingService) PurgeExpiredHolds(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := s.now().UTC().Add(-olderThan)
	n, err := s.bookings.PurgeExpiredHolds(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge expired holds: %w", err)
	}
	if n > 0 {
		log.Info().Int64("purged", n).Time("cutoff", cutoff).Msg("expired holds purged")
	}
	return n, nil
}

// IsCouponError helps handlers keep coupon rejections distinct from other
// validation failures.
func IsCouponError(err error) (*domain.CouponError, bool) {
	var ce *domain.CouponError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
