package domain

import "fmt"

// Coupon is a percentage discount with an activity window, optional property
// scope, a booking-date window, and exclusion periods during which it may not
// be applied.
type Coupon struct {
	Code               string
	DiscountPercentage float64 // always in (0, 100]
	IsActive           bool
	ValidUntil         Date
	PropertyID         *int64 // nil = valid for any property
	BookingValidFrom   *Date  // nil = unbounded
	BookingValidUntil  *Date  // inclusive through end of day; nil = unbounded
	ExclusionPeriods   []ExclusionPeriod
}

// ExclusionPeriod is an inclusive [From, Until] span of blocked booking dates.
type ExclusionPeriod struct {
	From  Date `json:"from"`
	Until Date `json:"until"`
}

// Range converts the inclusive period to the canonical half-open form used by
// the overlap test.
func (e ExclusionPeriod) Range() DateRange {
	return InclusiveDateRange(e.From, e.Until)
}

// CouponReason identifies which check a coupon failed. Checks run in a fixed
// order and the first failure wins, so the reason is deterministic.
type CouponReason string

const (
	CouponNotFound         CouponReason = "not_found"
	CouponInactive         CouponReason = "inactive"
	CouponExpired          CouponReason = "expired"
	CouponPropertyMismatch CouponReason = "property_mismatch"
	CouponOutOfWindow      CouponReason = "out_of_booking_window"
	CouponExclusionOverlap CouponReason = "exclusion_overlap"
)

// CouponError is the typed validation failure returned by the coupon validator.
type CouponError struct {
	Code   string
	Reason CouponReason
}

func (e *CouponError) Error() string {
	return fmt.Sprintf("coupon %q rejected: %s", e.Code, e.Reason)
}

// Unwrap maps validator reasons onto the service-wide sentinel taxonomy.
func (e *CouponError) Unwrap() error {
	switch e.Reason {
	case CouponNotFound:
		return ErrNotFound
	case CouponExpired:
		return ErrExpired
	default:
		return ErrValidation
	}
}
