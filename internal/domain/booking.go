package domain

import "time"

type BookingStatus string

const (
	StatusOnHold    BookingStatus = "on_hold"
	StatusConfirmed BookingStatus = "confirmed"
	StatusCompleted BookingStatus = "completed"
	StatusCancelled BookingStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentSucceeded PaymentStatus = "succeeded"
	PaymentFailed    PaymentStatus = "failed"
)

// PaymentInfo mirrors the payment provider's view of the booking's intent.
type PaymentInfo struct {
	ProviderIntentID string        `json:"providerIntentId"`
	Status           PaymentStatus `json:"status"`
	Amount           float64       `json:"amount"`
	PaidAt           *time.Time    `json:"paidAt,omitempty"`
}

// Settled reports a verified, timestamped successful payment. A settled
// booking must never be re-transitioned by a duplicate notification.
func (p PaymentInfo) Settled() bool {
	return p.Status == PaymentSucceeded && p.PaidAt != nil
}

// PriceBreakdown is the quoted cost of a stay at booking time.
type PriceBreakdown struct {
	Nights             int     `json:"nights"`
	AccommodationTotal float64 `json:"accommodationTotal"`
	CleaningFee        float64 `json:"cleaningFee"`
	Discount           float64 `json:"discount"`
	Total              float64 `json:"total"`
}

type Booking struct {
	ID                string
	PropertyID        int64
	Stay              DateRange
	GuestCount        int
	Status            BookingStatus
	HoldUntil         *time.Time
	HoldFee           *float64
	HoldFeeRefundable bool
	Payment           PaymentInfo
	Pricing           PriceBreakdown
	CouponCode        *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// BlocksDates reports whether the booking removes its stay range from
// availability at the given instant. Expired holds stop blocking purely by
// this read-time comparison; the record itself is never mutated for expiry.
func (b *Booking) BlocksDates(now time.Time) bool {
	switch b.Status {
	case StatusConfirmed, StatusCompleted:
		return true
	case StatusOnHold:
		return b.HoldUntil != nil && b.HoldUntil.After(now)
	default:
		return false
	}
}

func (b *Booking) CanBeCancelled() bool {
	return b.Status == StatusOnHold || b.Status == StatusConfirmed
}
