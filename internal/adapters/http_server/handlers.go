package httpserver

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"staybook/internal/adapters/observability"
	"staybook/internal/app"
	"staybook/internal/domain"
)

type Handlers struct {
	Calendar     *app.CalendarService
	Availability *app.AvailabilityService
	Coupons      *app.CouponService
	Bookings     *app.BookingService
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
	Reason string `json:"reason,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })

	s.mux.Get("/v1/properties/{id}/calendar/{year}/{month}", h.getCalendarMonth)
	s.mux.Post("/v1/properties/{id}/calendar/regenerate", h.regenerateCalendar)
	s.mux.Post("/v1/properties/{id}/overrides", h.applyOverride)
	s.mux.Get("/v1/properties/{id}/availability", h.checkAvailability)

	s.mux.Post("/v1/coupons/validate", h.validateCoupon)

	s.mux.Post("/v1/bookings", h.createBooking)
	s.mux.Get("/v1/bookings/{id}", h.getBooking)
	s.mux.Post("/v1/bookings/{id}/payment", h.recordPayment)
	s.mux.Post("/v1/bookings/{id}/verify", h.verifyPayment)
	s.mux.Post("/v1/bookings/{id}/cancel", h.cancelBooking)
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

// writeError maps the service error taxonomy to HTTP statuses. Coupon
// rejections carry their machine-readable reason so callers can branch on it.
func writeError(w http.ResponseWriter, err error) {
	if ce, ok := app.IsCouponError(err); ok {
		w.Header().Set("Content-Type", "application/problem+json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(problem{
			Type:   "about:blank",
			Title:  "Coupon Rejected",
			Status: http.StatusUnprocessableEntity,
			Detail: ce.Error(),
			Reason: string(ce.Reason),
		})
		return
	}
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, domain.ErrValidation):
		writeProblem(w, http.StatusBadRequest, "Invalid Request", err.Error())
	case errors.Is(err, domain.ErrConflict):
		writeProblem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, domain.ErrExpired):
		writeProblem(w, http.StatusGone, "Expired", err.Error())
	case errors.Is(err, domain.ErrConfiguration):
		writeProblem(w, http.StatusUnprocessableEntity, "Misconfigured", err.Error())
	case errors.Is(err, domain.ErrExternalDependency):
		writeProblem(w, http.StatusServiceUnavailable, "Upstream Unavailable", err.Error())
	default:
		log.Error().Err(err).Msg("unhandled service error")
		writeProblem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write JSON response failed")
	}
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`
	return etag, body
}

func propertyID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("id must be a positive number")
	}
	return id, nil
}

// ---- calendar ----

func (h *Handlers) getCalendarMonth(w http.ResponseWriter, r *http.Request) {
	id, err := propertyID(r)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil || year < 2000 || year > 2200 {
		writeProblem(w, http.StatusBadRequest, "Invalid Year", "year must be a four-digit year")
		return
	}
	monthN, err := strconv.Atoi(chi.URLParam(r, "month"))
	if err != nil || monthN < 1 || monthN > 12 {
		writeProblem(w, http.StatusBadRequest, "Invalid Month", "month must be between 1 and 12")
		return
	}

	cal, err := h.Calendar.GetMonth(r.Context(), id, year, time.Month(monthN))
	if err != nil {
		writeError(w, err)
		return
	}

	etag, body := calcETagAndBody(cal)
	// If client already has this version, short-circuit.
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag) // include ETag on 304
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("failed to write calendar body")
	}
}

func (h *Handlers) regenerateCalendar(w http.ResponseWriter, r *http.Request) {
	id, err := propertyID(r)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	var req struct {
		MonthsAhead int `json:"monthsAhead"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid Body", "body must be JSON")
			return
		}
	}

	summaries, err := h.Calendar.Regenerate(r.Context(), id, req.MonthsAhead)
	if err != nil {
		writeError(w, err)
		return
	}
	observability.ObserveCalendarBuild("api")
	writeJSON(w, http.StatusOK, map[string]any{"propertyId": id, "months": summaries})
}

func (h *Handlers) applyOverride(w http.ResponseWriter, r *http.Request) {
	id, err := propertyID(r)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	var req struct {
		Date        domain.Date `json:"date"`
		CustomPrice float64     `json:"customPrice"`
		FlatRate    bool        `json:"flatRate"`
		Available   *bool       `json:"available"`
		MinimumStay *int        `json:"minimumStay"`
		Reason      string      `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Body", "body must be JSON with a date field")
		return
	}
	available := true
	if req.Available != nil {
		available = *req.Available
	}

	entry, err := h.Calendar.ApplyDayOverride(r.Context(), domain.DateOverride{
		PropertyID:  id,
		Date:        req.Date,
		CustomPrice: req.CustomPrice,
		FlatRate:    req.FlatRate,
		Available:   available,
		MinimumStay: req.MinimumStay,
		Reason:      req.Reason,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// ---- availability ----

func (h *Handlers) checkAvailability(w http.ResponseWriter, r *http.Request) {
	id, err := propertyID(r)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	stay, err := parseStay(r.URL.Query().Get("check_in"), r.URL.Query().Get("check_out"))
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Dates", err.Error())
		return
	}

	out, err := h.Availability.Check(r.Context(), id, stay)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func parseStay(checkIn, checkOut string) (domain.DateRange, error) {
	ci, err := domain.ParseDate(checkIn)
	if err != nil {
		return domain.DateRange{}, errors.New("check_in must be YYYY-MM-DD")
	}
	co, err := domain.ParseDate(checkOut)
	if err != nil {
		return domain.DateRange{}, errors.New("check_out must be YYYY-MM-DD")
	}
	return domain.NewDateRange(ci, co)
}

// ---- coupons ----

func (h *Handlers) validateCoupon(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code       string      `json:"code"`
		PropertyID int64       `json:"propertyId"`
		CheckIn    domain.Date `json:"checkIn"`
		CheckOut   domain.Date `json:"checkOut"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Body", "body must be JSON")
		return
	}
	stay, err := domain.NewDateRange(req.CheckIn, req.CheckOut)
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := h.Coupons.Validate(r.Context(), req.Code, stay, req.PropertyID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ---- bookings ----

type bookingResponse struct {
	ID          string                `json:"id"`
	PropertyID  int64                 `json:"propertyId"`
	CheckIn     domain.Date           `json:"checkIn"`
	CheckOut    domain.Date           `json:"checkOut"`
	GuestCount  int                   `json:"guestCount"`
	Status      domain.BookingStatus  `json:"status"`
	HoldUntil   *time.Time            `json:"holdUntil,omitempty"`
	HoldFee     *float64              `json:"holdFee,omitempty"`
	Payment     domain.PaymentInfo    `json:"payment"`
	Pricing     domain.PriceBreakdown `json:"pricing"`
	CouponCode  *string               `json:"couponCode,omitempty"`
	CreatedAt   time.Time             `json:"createdAt"`
	UpdatedAt   time.Time             `json:"updatedAt"`
}

func toBookingResponse(b *domain.Booking) bookingResponse {
	return bookingResponse{
		ID:         b.ID,
		PropertyID: b.PropertyID,
		CheckIn:    b.Stay.CheckIn,
		CheckOut:   b.Stay.CheckOut,
		GuestCount: b.GuestCount,
		Status:     b.Status,
		HoldUntil:  b.HoldUntil,
		HoldFee:    b.HoldFee,
		Payment:    b.Payment,
		Pricing:    b.Pricing,
		CouponCode: b.CouponCode,
		CreatedAt:  b.CreatedAt,
		UpdatedAt:  b.UpdatedAt,
	}
}

func (h *Handlers) createBooking(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PropertyID       int64       `json:"propertyId"`
		CheckIn          domain.Date `json:"checkIn"`
		CheckOut         domain.Date `json:"checkOut"`
		GuestCount       int         `json:"guestCount"`
		Hold             bool        `json:"hold"`
		CouponCode       string      `json:"couponCode"`
		ProviderIntentID string      `json:"providerIntentId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Body", "body must be JSON")
		return
	}

	b, err := h.Bookings.Create(r.Context(), app.CreateBookingInput{
		PropertyID:       req.PropertyID,
		CheckIn:          req.CheckIn,
		CheckOut:         req.CheckOut,
		GuestCount:       req.GuestCount,
		Hold:             req.Hold,
		CouponCode:       req.CouponCode,
		ProviderIntentID: req.ProviderIntentID,
	})
	if err != nil {
		observability.ObserveBooking("create", "rejected")
		writeError(w, err)
		return
	}
	observability.ObserveBooking("create", "ok")
	writeJSON(w, http.StatusCreated, toBookingResponse(b))
}

func (h *Handlers) getBooking(w http.ResponseWriter, r *http.Request) {
	b, err := h.Bookings.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingResponse(b))
}

// recordPayment is the provider webhook target. It carries the provider's view
// of the intent; settled bookings treat repeats as no-ops.
func (h *Handlers) recordPayment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProviderIntentID string     `json:"providerIntentId"`
		Status           string     `json:"status"`
		Amount           float64    `json:"amount"`
		PaidAt           *time.Time `json:"paidAt"`
		Hold             bool       `json:"hold"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Body", "body must be JSON")
		return
	}

	info := domain.PaymentInfo{
		ProviderIntentID: req.ProviderIntentID,
		Status:           domain.PaymentStatus(req.Status),
		Amount:           req.Amount,
		PaidAt:           req.PaidAt,
	}
	switch info.Status {
	case domain.PaymentPending, domain.PaymentSucceeded, domain.PaymentFailed:
	default:
		writeProblem(w, http.StatusBadRequest, "Invalid Status", "status must be pending, succeeded, or failed")
		return
	}

	b, err := h.Bookings.UpdatePaymentInfo(r.Context(), chi.URLParam(r, "id"), info, req.Hold)
	if err != nil {
		observability.ObserveBooking("payment", "rejected")
		writeError(w, err)
		return
	}
	observability.ObserveBooking("payment", "ok")
	writeJSON(w, http.StatusOK, toBookingResponse(b))
}

// verifyPayment pulls the intent state from the provider; the fallback path
// for lost webhooks.
func (h *Handlers) verifyPayment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Hold bool `json:"hold"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid Body", "body must be JSON")
			return
		}
	}

	b, err := h.Bookings.VerifyPayment(r.Context(), chi.URLParam(r, "id"), req.Hold)
	if err != nil {
		observability.ObserveBooking("verify", "rejected")
		writeError(w, err)
		return
	}
	observability.ObserveBooking("verify", "ok")
	writeJSON(w, http.StatusOK, toBookingResponse(b))
}

func (h *Handlers) cancelBooking(w http.ResponseWriter, r *http.Request) {
	b, err := h.Bookings.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		observability.ObserveBooking("cancel", "rejected")
		writeError(w, err)
		return
	}
	observability.ObserveBooking("cancel", "ok")
	writeJSON(w, http.StatusOK, toBookingResponse(b))
}
