package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"staybook/internal/app"
	"staybook/internal/domain"
)

type bookingFixture struct {
	repo     *fakePricingRepo
	bookings *fakeBookingRepo
	coupons  *fakeCouponRepo
	verifier *fakeVerifier
	svc      *app.BookingService
}

func newBookingFixture() *bookingFixture {
	repo := &fakePricingRepo{props: map[int64]domain.Property{1: testProperty()}}
	bookings := newFakeBookingRepo()
	coupons := &fakeCouponRepo{coupons: map[string]domain.Coupon{"SUMMER20": summerCoupon()}}
	verifier := &fakeVerifier{}
	pricing := app.NewPricingService(repo)
	avail := app.NewAvailabilityService(pricing, repo, bookings, &fakeSyncedRepo{}, time.Hour)
	svc := app.NewBookingService(
		bookings, repo, avail, app.NewCouponService(coupons),
		newFakeLocker(), verifier,
		30*time.Minute, 50,
	)
	return &bookingFixture{repo: repo, bookings: bookings, coupons: coupons, verifier: verifier, svc: svc}
}

func TestCreate_DirectFlow(t *testing.T) {
	f := newBookingFixture()

	b, err := f.svc.Create(context.Background(), app.CreateBookingInput{
		PropertyID: 1,
		CheckIn:    date("2025-09-08"), // Mon
		CheckOut:   date("2025-09-11"), // 3 weekday nights
		GuestCount: 3,
		ProviderIntentID: "pi_123",
	})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if b.Status != domain.StatusConfirmed {
		t.Fatalf("status = %s, want provisional confirmed", b.Status)
	}
	// 3 nights x (100 + 25 extra guest) + 40 cleaning.
	if b.Pricing.AccommodationTotal != 375 || b.Pricing.Total != 415 {
		t.Fatalf("pricing = %+v", b.Pricing)
	}
	if b.Payment.Status != domain.PaymentPending || b.Payment.Amount != 415 {
		t.Fatalf("payment = %+v", b.Payment)
	}
}

func TestCreate_HoldFlow(t *testing.T) {
	f := newBookingFixture()

	b, err := f.svc.Create(context.Background(), app.CreateBookingInput{
		PropertyID: 1,
		CheckIn:    date("2025-09-08"),
		CheckOut:   date("2025-09-11"),
		GuestCount: 2,
		Hold:       true,
	})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if b.Status != domain.StatusOnHold || b.HoldUntil == nil || b.HoldFee == nil {
		t.Fatalf("hold fields missing: %+v", b)
	}
	if *b.HoldFee != 50 || b.Payment.Amount != 50 {
		t.Fatalf("hold fee = %v / payment %v, want 50", *b.HoldFee, b.Payment.Amount)
	}
	if remaining := time.Until(*b.HoldUntil); remaining < 29*time.Minute || remaining > 31*time.Minute {
		t.Fatalf("holdUntil not ~30m out: %v", remaining)
	}
}

func TestCreate_WithCoupon(t *testing.T) {
	f := newBookingFixture()

	b, err := f.svc.Create(context.Background(), app.CreateBookingInput{
		PropertyID: 1,
		CheckIn:    date("2025-09-08"),
		CheckOut:   date("2025-09-11"),
		GuestCount: 2,
		CouponCode: " summer20 ",
	})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	// 300 accommodation, 20% off = 60; total 300+40-60.
	if b.Pricing.Discount != 60 || b.Pricing.Total != 280 {
		t.Fatalf("pricing = %+v", b.Pricing)
	}
	if b.CouponCode == nil || *b.CouponCode != "SUMMER20" {
		t.Fatalf("coupon code not recorded: %v", b.CouponCode)
	}
}

func TestCreate_RejectedCouponAbortsBooking(t *testing.T) {
	f := newBookingFixture()

	_, err := f.svc.Create(context.Background(), app.CreateBookingInput{
		PropertyID: 1,
		CheckIn:    date("2025-08-10"), // inside SUMMER20 exclusion window
		CheckOut:   date("2025-08-14"),
		GuestCount: 2,
		CouponCode: "SUMMER20",
	})
	if _, ok := app.IsCouponError(err); !ok {
		t.Fatalf("expected coupon rejection, got %v", err)
	}
	if len(f.bookings.bookings) != 0 {
		t.Fatal("no booking may be persisted when the coupon is rejected")
	}
}

func TestCreate_ConcurrentOverlapOneWins(t *testing.T) {
	f := newBookingFixture()

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Create(context.Background(), app.CreateBookingInput{
				PropertyID: 1,
				CheckIn:    date("2025-09-08"),
				CheckOut:   date("2025-09-12"),
				GuestCount: 2,
			})
		}(i)
	}
	wg.Wait()

	var okCount, conflictCount int
	for _, err := range errs {
		switch {
		case err == nil:
			okCount++
		case errors.Is(err, domain.ErrConflict):
			conflictCount++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if okCount != 1 || conflictCount != attempts-1 {
		t.Fatalf("ok=%d conflicts=%d, want exactly one winner", okCount, conflictCount)
	}
}

func TestCreate_GuestCountValidated(t *testing.T) {
	f := newBookingFixture()
	_, err := f.svc.Create(context.Background(), app.CreateBookingInput{
		PropertyID: 1, CheckIn: date("2025-09-08"), CheckOut: date("2025-09-11"), GuestCount: 9,
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func settledInfo(intent string, amount float64, at time.Time) domain.PaymentInfo {
	return domain.PaymentInfo{
		ProviderIntentID: intent,
		Status:           domain.PaymentSucceeded,
		Amount:           amount,
		PaidAt:           &at,
	}
}

func TestUpdatePaymentInfo_IdempotentOnSuccess(t *testing.T) {
	f := newBookingFixture()
	b, err := f.svc.Create(context.Background(), app.CreateBookingInput{
		PropertyID: 1, CheckIn: date("2025-09-08"), CheckOut: date("2025-09-11"),
		GuestCount: 2, ProviderIntentID: "pi_777",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	paidAt := time.Now().UTC().Truncate(time.Second)
	info := settledInfo("pi_777", b.Pricing.Total, paidAt)

	first, err := f.svc.UpdatePaymentInfo(context.Background(), b.ID, info, false)
	if err != nil {
		t.Fatalf("first update: %v", err)
	}
	if !first.Payment.Settled() || !first.Payment.PaidAt.Equal(paidAt) {
		t.Fatalf("payment not settled: %+v", first.Payment)
	}

	// Same payload again, with a different timestamp inside: must be a no-op.
	dup := settledInfo("pi_777", b.Pricing.Total, paidAt.Add(time.Hour))
	second, err := f.svc.UpdatePaymentInfo(context.Background(), b.ID, dup, false)
	if err != nil {
		t.Fatalf("second update: %v", err)
	}
	if !second.Payment.PaidAt.Equal(paidAt) {
		t.Fatalf("duplicate update changed paidAt: %v vs %v", second.Payment.PaidAt, paidAt)
	}
}

func TestUpdatePaymentInfo_HoldConversion(t *testing.T) {
	f := newBookingFixture()
	b, err := f.svc.Create(context.Background(), app.CreateBookingInput{
		PropertyID: 1, CheckIn: date("2025-09-08"), CheckOut: date("2025-09-11"),
		GuestCount: 2, Hold: true, ProviderIntentID: "pi_hold",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Hold-fee payment keeps the booking on hold.
	feePaid := settledInfo("pi_hold", 50, time.Now().UTC())
	got, err := f.svc.UpdatePaymentInfo(context.Background(), b.ID, feePaid, true)
	if err != nil {
		t.Fatalf("hold fee update: %v", err)
	}
	if got.Status != domain.StatusOnHold {
		t.Fatalf("status = %s, want on_hold after hold-fee payment", got.Status)
	}
}

func TestUpdatePaymentInfo_FullPaymentConfirmsHold(t *testing.T) {
	f := newBookingFixture()
	b, err := f.svc.Create(context.Background(), app.CreateBookingInput{
		PropertyID: 1, CheckIn: date("2025-09-08"), CheckOut: date("2025-09-11"),
		GuestCount: 2, Hold: true, ProviderIntentID: "pi_full",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	full := settledInfo("pi_full", 340, time.Now().UTC())
	got, err := f.svc.UpdatePaymentInfo(context.Background(), b.ID, full, false)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Status != domain.StatusConfirmed {
		t.Fatalf("status = %s, want confirmed", got.Status)
	}
}

func TestUpdatePaymentInfo_ExpiredHoldRejectsConversion(t *testing.T) {
	f := newBookingFixture()
	b, err := f.svc.Create(context.Background(), app.CreateBookingInput{
		PropertyID: 1, CheckIn: date("2025-09-08"), CheckOut: date("2025-09-11"),
		GuestCount: 2, Hold: true, ProviderIntentID: "pi_late",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	// Force the hold into the past.
	stored, _ := f.bookings.GetBooking(context.Background(), b.ID)
	past := time.Now().Add(-time.Minute)
	stored.HoldUntil = &past
	if err := f.bookings.UpdateBooking(context.Background(), stored); err != nil {
		t.Fatalf("seed: %v", err)
	}

	_, err = f.svc.UpdatePaymentInfo(context.Background(), b.ID, settledInfo("pi_late", 340, time.Now().UTC()), false)
	if !errors.Is(err, domain.ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestUpdatePaymentInfo_FailedPaymentNeverConfirms(t *testing.T) {
	f := newBookingFixture()
	b, err := f.svc.Create(context.Background(), app.CreateBookingInput{
		PropertyID: 1, CheckIn: date("2025-09-08"), CheckOut: date("2025-09-11"),
		GuestCount: 2, Hold: true, ProviderIntentID: "pi_bad",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := f.svc.UpdatePaymentInfo(context.Background(), b.ID, domain.PaymentInfo{
		ProviderIntentID: "pi_bad", Status: domain.PaymentFailed, Amount: 340,
	}, false)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Status != domain.StatusOnHold {
		t.Fatalf("status = %s; a failed payment must not transition the booking", got.Status)
	}
	if got.Payment.Status != domain.PaymentFailed {
		t.Fatalf("failure should still be recorded: %+v", got.Payment)
	}
}

func TestVerifyPayment_FallbackPath(t *testing.T) {
	f := newBookingFixture()
	b, err := f.svc.Create(context.Background(), app.CreateBookingInput{
		PropertyID: 1, CheckIn: date("2025-09-08"), CheckOut: date("2025-09-11"),
		GuestCount: 2, ProviderIntentID: "pi_sync",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	paidAt := time.Now().UTC()
	f.verifier.info = domain.PaymentInfo{Status: domain.PaymentSucceeded, Amount: b.Pricing.Total, PaidAt: &paidAt}

	got, err := f.svc.VerifyPayment(context.Background(), b.ID, false)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !got.Payment.Settled() {
		t.Fatalf("payment not settled after verify: %+v", got.Payment)
	}

	// A second verify short-circuits without another provider call.
	if _, err := f.svc.VerifyPayment(context.Background(), b.ID, false); err != nil {
		t.Fatalf("second verify: %v", err)
	}
	if f.verifier.calls != 1 {
		t.Fatalf("provider called %d times, want 1", f.verifier.calls)
	}
}

func TestVerifyPayment_ProviderDownFailsClosed(t *testing.T) {
	f := newBookingFixture()
	b, err := f.svc.Create(context.Background(), app.CreateBookingInput{
		PropertyID: 1, CheckIn: date("2025-09-08"), CheckOut: date("2025-09-11"),
		GuestCount: 2, Hold: true, ProviderIntentID: "pi_down",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	f.verifier.err = errors.New("gateway timeout")

	_, err = f.svc.VerifyPayment(context.Background(), b.ID, false)
	if !errors.Is(err, domain.ErrExternalDependency) {
		t.Fatalf("expected ErrExternalDependency, got %v", err)
	}
	stored, _ := f.bookings.GetBooking(context.Background(), b.ID)
	if stored.Payment.Settled() || stored.Status != domain.StatusOnHold {
		t.Fatalf("provider failure must not change booking state: %+v", stored)
	}
}

func TestWebhookAndVerifyRace_SinglePaidAt(t *testing.T) {
	f := newBookingFixture()
	b, err := f.svc.Create(context.Background(), app.CreateBookingInput{
		PropertyID: 1, CheckIn: date("2025-09-08"), CheckOut: date("2025-09-11"),
		GuestCount: 2, ProviderIntentID: "pi_race",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	webhookPaidAt := time.Now().UTC().Truncate(time.Second)
	verifyPaidAt := webhookPaidAt.Add(3 * time.Second)
	f.verifier.info = domain.PaymentInfo{Status: domain.PaymentSucceeded, Amount: b.Pricing.Total, PaidAt: &verifyPaidAt}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = f.svc.UpdatePaymentInfo(context.Background(), b.ID, settledInfo("pi_race", b.Pricing.Total, webhookPaidAt), false)
	}()
	go func() {
		defer wg.Done()
		_, _ = f.svc.VerifyPayment(context.Background(), b.ID, false)
	}()
	wg.Wait()

	stored, _ := f.bookings.GetBooking(context.Background(), b.ID)
	if !stored.Payment.Settled() {
		t.Fatalf("payment should be settled: %+v", stored.Payment)
	}
	got := *stored.Payment.PaidAt
	if !got.Equal(webhookPaidAt) && !got.Equal(verifyPaidAt) {
		t.Fatalf("paidAt %v is neither contender", got)
	}
}

func TestCancel_ReleasesDatesImmediately(t *testing.T) {
	f := newBookingFixture()
	b, err := f.svc.Create(context.Background(), app.CreateBookingInput{
		PropertyID: 1, CheckIn: date("2025-09-08"), CheckOut: date("2025-09-11"), GuestCount: 2,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := f.svc.Create(context.Background(), app.CreateBookingInput{
		PropertyID: 1, CheckIn: date("2025-09-08"), CheckOut: date("2025-09-11"), GuestCount: 2,
	}); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict before cancellation, got %v", err)
	}

	if _, err := f.svc.Cancel(context.Background(), b.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if _, err := f.svc.Create(context.Background(), app.CreateBookingInput{
		PropertyID: 1, CheckIn: date("2025-09-08"), CheckOut: date("2025-09-11"), GuestCount: 2,
	}); err != nil {
		t.Fatalf("dates should be free after cancel: %v", err)
	}
}

func TestCancel_Idempotent(t *testing.T) {
	f := newBookingFixture()
	b, err := f.svc.Create(context.Background(), app.CreateBookingInput{
		PropertyID: 1, CheckIn: date("2025-09-08"), CheckOut: date("2025-09-11"), GuestCount: 2,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.svc.Cancel(context.Background(), b.ID); err != nil {
		t.Fatalf("first cancel: %v", err)
	}
	got, err := f.svc.Cancel(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("second cancel: %v", err)
	}
	if got.Status != domain.StatusCancelled {
		t.Fatalf("status = %s", got.Status)
	}
}

func TestPurgeExpiredHolds(t *testing.T) {
	f := newBookingFixture()
	old := time.Now().Add(-48 * time.Hour)
	f.bookings.bookings["stale"] = &domain.Booking{
		ID: "stale", PropertyID: 1, Stay: stay("2025-01-01", "2025-01-05"),
		Status: domain.StatusOnHold, HoldUntil: &old,
	}

	n, err := f.svc.PurgeExpiredHolds(context.Background(), 24*time.Hour)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if n != 1 {
		t.Fatalf("purged %d, want 1", n)
	}
}
