package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"staybook/internal/domain"
)

func valInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}
func valF64(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}
func valStr(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}
func valTime(p *time.Time) any {
	if p == nil {
		return nil
	}
	return p.UTC()
}

type Repo struct{ db *sql.DB }

func New(db *sql.DB) *Repo { return &Repo{db: db} }

// ---- pricing ----

func (r *Repo) GetProperty(ctx context.Context, id int64) (domain.Property, error) {
	row := r.db.QueryRowContext(ctx, getPropertySQL, id)

	var p domain.Property
	var weekendDaysJSON []byte
	if err := row.Scan(
		&p.ID,
		&p.Name,
		&p.PricePerNight,
		&p.BaseOccupancy,
		&p.MaxGuests,
		&p.ExtraGuestFee,
		&p.CleaningFee,
		&p.DefaultMinimumStay,
		&p.WeekendAdjustment,
		&weekendDaysJSON,
		&p.BaseCurrency,
	); err != nil {
		if err == sql.ErrNoRows {
			return domain.Property{}, fmt.Errorf("property %d: %w", id, domain.ErrNotFound)
		}
		return domain.Property{}, err
	}

	var days []int
	if err := json.Unmarshal(weekendDaysJSON, &days); err != nil {
		return domain.Property{}, fmt.Errorf("%w: property %d has malformed weekend_days: %v", domain.ErrConfiguration, id, err)
	}
	for _, d := range days {
		p.WeekendDays = append(p.WeekendDays, time.Weekday(d))
	}
	return p, nil
}

func (r *Repo) ListPropertyIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, listPropertyIDsSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (r *Repo) ListSeasonalRules(ctx context.Context, propertyID int64) ([]domain.SeasonalRule, error) {
	rows, err := r.db.QueryContext(ctx, listSeasonalRulesSQL, propertyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.SeasonalRule
	for rows.Next() {
		var sr domain.SeasonalRule
		var start, end time.Time
		var minStay sql.NullInt64
		if err := rows.Scan(&sr.ID, &sr.PropertyID, &sr.Name, &start, &end, &sr.Priority, &sr.FixedPrice, &sr.Rate, &minStay); err != nil {
			return nil, err
		}
		sr.Start = domain.DateOf(start)
		sr.End = domain.DateOf(end)
		if minStay.Valid {
			n := int(minStay.Int64)
			sr.MinimumStay = &n
		}
		out = append(out, sr)
	}
	return out, rows.Err()
}

func (r *Repo) ListDateOverrides(ctx context.Context, propertyID int64, dr domain.DateRange) ([]domain.DateOverride, error) {
	rows, err := r.db.QueryContext(ctx, listDateOverridesSQL, propertyID, dr.CheckIn.String(), dr.CheckOut.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.DateOverride
	for rows.Next() {
		var o domain.DateOverride
		var day time.Time
		var minStay sql.NullInt64
		var reason sql.NullString
		if err := rows.Scan(&o.ID, &o.PropertyID, &day, &o.CustomPrice, &o.FlatRate, &o.Available, &minStay, &reason); err != nil {
			return nil, err
		}
		o.Date = domain.DateOf(day)
		if minStay.Valid {
			n := int(minStay.Int64)
			o.MinimumStay = &n
		}
		o.Reason = reason.String
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *Repo) UpsertDateOverride(ctx context.Context, o domain.DateOverride) (int64, error) {
	res, err := r.db.ExecContext(ctx, upsertDateOverrideSQL,
		o.PropertyID,
		o.Date.String(),
		o.CustomPrice,
		o.FlatRate,
		o.Available,
		valInt(o.MinimumStay),
		o.Reason,
	)
	if err != nil {
		return 0, err
	}
	// LAST_INSERT_ID(id) in the ON DUPLICATE branch makes this the row id for
	// both the insert and the update case.
	return res.LastInsertId()
}

// ---- bookings ----

// CreateBooking re-checks the no-overlap invariant inside the insert
// transaction. The property row lock serializes concurrent inserts so the
// COUNT and the INSERT see a consistent ledger; the loser gets ErrConflict.
func (r *Repo) CreateBooking(ctx context.Context, b *domain.Booking) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var pid int64
	if err := tx.QueryRowContext(ctx, lockPropertySQL, b.PropertyID).Scan(&pid); err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("property %d: %w", b.PropertyID, domain.ErrNotFound)
		}
		return err
	}

	now := b.CreatedAt.UTC()
	var overlapping int
	if err := tx.QueryRowContext(ctx, countBlockingSQL,
		b.PropertyID, b.Stay.CheckOut.String(), b.Stay.CheckIn.String(), now,
	).Scan(&overlapping); err != nil {
		return err
	}
	if overlapping > 0 {
		return fmt.Errorf("%w: %d bookings already block %s", domain.ErrConflict, overlapping, b.Stay)
	}

	pricing, err := json.Marshal(b.Pricing)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, insertBookingSQL,
		b.ID,
		b.PropertyID,
		b.Stay.CheckIn.String(),
		b.Stay.CheckOut.String(),
		b.GuestCount,
		string(b.Status),
		valTime(b.HoldUntil),
		valF64(b.HoldFee),
		b.HoldFeeRefundable,
		b.Payment.ProviderIntentID,
		string(b.Payment.Status),
		b.Payment.Amount,
		valTime(b.Payment.PaidAt),
		string(pricing),
		valStr(b.CouponCode),
		b.CreatedAt.UTC(),
		b.UpdatedAt.UTC(),
	); err != nil {
		return err
	}
	return tx.Commit()
}

func scanBooking(s interface{ Scan(...any) error }) (*domain.Booking, error) {
	var b domain.Booking
	var checkIn, checkOut time.Time
	var status, payStatus string
	var holdUntil, paidAt sql.NullTime
	var holdFee sql.NullFloat64
	var couponCode sql.NullString
	var pricingJSON []byte

	if err := s.Scan(
		&b.ID,
		&b.PropertyID,
		&checkIn,
		&checkOut,
		&b.GuestCount,
		&status,
		&holdUntil,
		&holdFee,
		&b.HoldFeeRefundable,
		&b.Payment.ProviderIntentID,
		&payStatus,
		&b.Payment.Amount,
		&paidAt,
		&pricingJSON,
		&couponCode,
		&b.CreatedAt,
		&b.UpdatedAt,
	); err != nil {
		return nil, err
	}

	b.Stay = domain.DateRange{CheckIn: domain.DateOf(checkIn), CheckOut: domain.DateOf(checkOut)}
	b.Status = domain.BookingStatus(status)
	b.Payment.Status = domain.PaymentStatus(payStatus)
	if holdUntil.Valid {
		t := holdUntil.Time.UTC()
		b.HoldUntil = &t
	}
	if paidAt.Valid {
		t := paidAt.Time.UTC()
		b.Payment.PaidAt = &t
	}
	if holdFee.Valid {
		f := holdFee.Float64
		b.HoldFee = &f
	}
	if couponCode.Valid {
		c := couponCode.String
		b.CouponCode = &c
	}
	if len(pricingJSON) > 0 {
		if err := json.Unmarshal(pricingJSON, &b.Pricing); err != nil {
			return nil, fmt.Errorf("booking %s has malformed pricing: %w", b.ID, err)
		}
	}
	return &b, nil
}

func (r *Repo) GetBooking(ctx context.Context, id string) (*domain.Booking, error) {
	b, err := scanBooking(r.db.QueryRowContext(ctx, getBookingSQL, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("booking %s: %w", id, domain.ErrNotFound)
		}
		return nil, err
	}
	return b, nil
}

func (r *Repo) UpdateBooking(ctx context.Context, b *domain.Booking) error {
	res, err := r.db.ExecContext(ctx, updateBookingSQL,
		string(b.Status),
		valTime(b.HoldUntil),
		b.Payment.ProviderIntentID,
		string(b.Payment.Status),
		b.Payment.Amount,
		valTime(b.Payment.PaidAt),
		b.UpdatedAt.UTC(),
		b.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("booking %s: %w", b.ID, domain.ErrNotFound)
	}
	return err
}

func (r *Repo) ListBlockingBookings(ctx context.Context, propertyID int64, dr domain.DateRange, now time.Time) ([]domain.Booking, error) {
	rows, err := r.db.QueryContext(ctx, listBlockingBookingsSQL,
		propertyID, dr.CheckOut.String(), dr.CheckIn.String(), now.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func (r *Repo) PurgeExpiredHolds(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, purgeExpiredHoldsSQL, before.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ---- coupons ----

func (r *Repo) GetCoupon(ctx context.Context, code string) (domain.Coupon, error) {
	row := r.db.QueryRowContext(ctx, getCouponSQL, code)

	var c domain.Coupon
	var validUntil time.Time
	var propertyID sql.NullInt64
	var from, until sql.NullTime
	if err := row.Scan(&c.Code, &c.DiscountPercentage, &c.IsActive, &validUntil, &propertyID, &from, &until); err != nil {
		if err == sql.ErrNoRows {
			return domain.Coupon{}, fmt.Errorf("coupon %s: %w", code, domain.ErrNotFound)
		}
		return domain.Coupon{}, err
	}
	c.ValidUntil = domain.DateOf(validUntil)
	if propertyID.Valid {
		c.PropertyID = &propertyID.Int64
	}
	if from.Valid {
		d := domain.DateOf(from.Time)
		c.BookingValidFrom = &d
	}
	if until.Valid {
		d := domain.DateOf(until.Time)
		c.BookingValidUntil = &d
	}

	rows, err := r.db.QueryContext(ctx, listCouponExclusionsSQL, code)
	if err != nil {
		return domain.Coupon{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var f, u time.Time
		if err := rows.Scan(&f, &u); err != nil {
			return domain.Coupon{}, err
		}
		c.ExclusionPeriods = append(c.ExclusionPeriods, domain.ExclusionPeriod{
			From:  domain.DateOf(f),
			Until: domain.DateOf(u),
		})
	}
	return c, rows.Err()
}

// ---- synced blocks ----

func (r *Repo) ListSyncedBlocks(ctx context.Context, propertyID int64) ([]domain.SyncedBlock, error) {
	rows, err := r.db.QueryContext(ctx, listSyncedBlocksSQL, propertyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.SyncedBlock
	for rows.Next() {
		var sb domain.SyncedBlock
		var start, end time.Time
		if err := rows.Scan(&sb.PropertyID, &start, &end, &sb.Source, &sb.SyncedAt); err != nil {
			return nil, err
		}
		// end_date is stored inclusive; availability works on half-open ranges.
		sb.Range = domain.InclusiveDateRange(domain.DateOf(start), domain.DateOf(end))
		sb.SyncedAt = sb.SyncedAt.UTC()
		out = append(out, sb)
	}
	return out, rows.Err()
}

func (r *Repo) GetSyncStatus(ctx context.Context, propertyID int64) (domain.SyncStatus, error) {
	var st domain.SyncStatus
	var last sql.NullTime
	err := r.db.QueryRowContext(ctx, getSyncStatusSQL, propertyID).Scan(&st.Sources, &last)
	if err != nil {
		return domain.SyncStatus{}, err
	}
	if last.Valid {
		st.LastSyncedAt = last.Time.UTC()
	}
	return st, nil
}
