package mysql

const getPropertySQL = `
SELECT
  id,
  name,
  price_per_night,
  base_occupancy,
  max_guests,
  extra_guest_fee,
  cleaning_fee,
  default_min_stay,
  weekend_adjustment,
  weekend_days,
  base_currency
FROM properties
WHERE id = ?
`

const listPropertyIDsSQL = `SELECT id FROM properties ORDER BY id`

const listSeasonalRulesSQL = `
SELECT id, property_id, name, start_date, end_date, priority, fixed_price, rate, min_stay
FROM seasonal_rules
WHERE property_id = ?
ORDER BY priority DESC, start_date DESC, id
`

const listDateOverridesSQL = `
SELECT id, property_id, override_date, custom_price, flat_rate, available, min_stay, reason
FROM date_overrides
WHERE property_id = ? AND override_date >= ? AND override_date < ?
ORDER BY override_date
`

// One override per (property, date); re-posting a date replaces it.
const upsertDateOverrideSQL = `
INSERT INTO date_overrides
  (property_id, override_date, custom_price, flat_rate, available, min_stay, reason)
VALUES
  (?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
  custom_price = VALUES(custom_price),
  flat_rate    = VALUES(flat_rate),
  available    = VALUES(available),
  min_stay     = VALUES(min_stay),
  reason       = VALUES(reason),
  id           = LAST_INSERT_ID(id),
  updated_at   = CURRENT_TIMESTAMP
`

// Serializes concurrent reservations for one property inside the insert
// transaction; the app-level lock already does this across instances, the row
// lock covers direct writers.
const lockPropertySQL = `SELECT id FROM properties WHERE id = ? FOR UPDATE`

// Half-open overlap: [check_in, check_out) intersects [?, ?). A hold blocks
// only while hold_until is still in the future.
const countBlockingSQL = `
SELECT COUNT(*)
FROM bookings
WHERE property_id = ?
  AND check_in < ?
  AND check_out > ?
  AND (
    status IN ('confirmed', 'completed')
    OR (status = 'on_hold' AND hold_until > ?)
  )
`

const insertBookingSQL = `
INSERT INTO bookings
  (id, property_id, check_in, check_out, guest_count, status,
   hold_until, hold_fee, hold_fee_refundable,
   payment_intent_id, payment_status, payment_amount, paid_at,
   pricing, coupon_code, created_at, updated_at)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

const getBookingSQL = `
SELECT id, property_id, check_in, check_out, guest_count, status,
       hold_until, hold_fee, hold_fee_refundable,
       payment_intent_id, payment_status, payment_amount, paid_at,
       pricing, coupon_code, created_at, updated_at
FROM bookings
WHERE id = ?
`

const updateBookingSQL = `
UPDATE bookings
SET status = ?,
    hold_until = ?,
    payment_intent_id = ?,
    payment_status = ?,
    payment_amount = ?,
    paid_at = ?,
    updated_at = ?
WHERE id = ?
`

const listBlockingBookingsSQL = `
SELECT id, property_id, check_in, check_out, guest_count, status,
       hold_until, hold_fee, hold_fee_refundable,
       payment_intent_id, payment_status, payment_amount, paid_at,
       pricing, coupon_code, created_at, updated_at
FROM bookings
WHERE property_id = ?
  AND check_in < ?
  AND check_out > ?
  AND (
    status IN ('confirmed', 'completed')
    OR (status = 'on_hold' AND hold_until > ?)
  )
ORDER BY check_in, id
`

const purgeExpiredHoldsSQL = `
DELETE FROM bookings
WHERE status = 'on_hold' AND hold_until IS NOT NULL AND hold_until < ?
`

const getCouponSQL = `
SELECT code, discount_percentage, is_active, valid_until,
       property_id, booking_valid_from, booking_valid_until
FROM coupons
WHERE code = ?
`

const listCouponExclusionsSQL = `
SELECT from_date, until_date
FROM coupon_exclusions
WHERE coupon_code = ?
ORDER BY from_date
`

const listSyncedBlocksSQL = `
SELECT property_id, start_date, end_date, source, synced_at
FROM synced_blocks
WHERE property_id = ?
ORDER BY start_date, id
`

const getSyncStatusSQL = `
SELECT COUNT(DISTINCT source), MAX(synced_at)
FROM synced_blocks
WHERE property_id = ?
`
