package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"staybook/internal/domain"
)

// CouponResult is returned on successful validation.
type CouponResult struct {
	Code               string  `json:"code"`
	DiscountPercentage float64 `json:"discountPercentage"`
	PropertyScoped     bool    `json:"propertyScoped"`
}

// CouponService validates coupon codes. Given the same coupon record, stay,
// property, and instant, Validate always produces the same result.
type CouponService struct {
	repo domain.CouponRepository
	now  func() time.Time
}

func NewCouponService(repo domain.CouponRepository) *CouponService {
	return &CouponService{repo: repo, now: time.Now}
}

// NormalizeCouponCode trims whitespace and uppercases, matching how codes are
// stored.
func NormalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate looks up the normalized code and runs the fixed check sequence.
func (s *CouponService) Validate(ctx context.Context, code string, stay domain.DateRange, propertyID int64) (CouponResult, error) {
	norm := NormalizeCouponCode(code)
	if norm == "" {
		return CouponResult{}, fmt.Errorf("%w: empty coupon code", domain.ErrValidation)
	}
	c, err := s.repo.GetCoupon(ctx, norm)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return CouponResult{}, &domain.CouponError{Code: norm, Reason: domain.CouponNotFound}
		}
		return CouponResult{}, fmt.Errorf("get coupon: %w", err)
	}
	if err := ValidateCoupon(c, stay, propertyID, s.now()); err != nil {
		return CouponResult{}, err
	}
	return CouponResult{
		Code:               c.Code,
		DiscountPercentage: c.DiscountPercentage,
		PropertyScoped:     c.PropertyID != nil,
	}, nil
}

// ValidateCoupon runs the checks in a fixed order; the first failure wins:
// Inactive -> Expired -> PropertyMismatch -> OutOfBookingWindow ->
// ExclusionOverlap. (NotFound is produced by the lookup in Validate.)
func ValidateCoupon(c domain.Coupon, stay domain.DateRange, propertyID int64, now time.Time) error {
	if !c.IsActive {
		return &domain.CouponError{Code: c.Code, Reason: domain.CouponInactive}
	}

	// Expiry compares at date granularity: the coupon works through the whole
	// of its validUntil day regardless of time-of-day.
	if domain.DateOf(now.UTC()).After(c.ValidUntil) {
		return &domain.CouponError{Code: c.Code, Reason: domain.CouponExpired}
	}

	if c.PropertyID != nil && (propertyID == 0 || *c.PropertyID != propertyID) {
		return &domain.CouponError{Code: c.Code, Reason: domain.CouponPropertyMismatch}
	}

	// Booking window bounds the check-in date; the end bound is inclusive
	// through end-of-day, i.e. checking in on bookingValidUntil still counts.
	if c.BookingValidFrom != nil && stay.CheckIn.Before(*c.BookingValidFrom) {
		return &domain.CouponError{Code: c.Code, Reason: domain.CouponOutOfWindow}
	}
	if c.BookingValidUntil != nil && stay.CheckIn.After(*c.BookingValidUntil) {
		return &domain.CouponError{Code: c.Code, Reason: domain.CouponOutOfWindow}
	}

	for _, excl := range c.ExclusionPeriods {
		if excl.Range().Overlaps(stay) {
			return &domain.CouponError{Code: c.Code, Reason: domain.CouponExclusionOverlap}
		}
	}
	return nil
}
