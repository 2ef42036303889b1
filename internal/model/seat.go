package model

import "time"

// Seat status values.  A seat moves AVAILABLE → TEMP_RESERVED while a
// user holds it, and TEMP_RESERVED → SOLD when a payment saga
// confirms it.  Compensation moves SOLD back to AVAILABLE.
const (
	SeatAvailable    = "AVAILABLE"
	SeatTempReserved = "TEMP_RESERVED"
	SeatSold         = "SOLD"
)

// Seat represents a single sellable seat for one concert date.  The
// sold/available transition is the seat's own invariant; callers must
// hold the seat-status lock while mutating it.
//
// Fields:
//  ID            – primary key identifier.
//  ConcertDateID – concert date this seat belongs to.
//  SeatNumber    – human-readable seat label (e.g. "A-12").
//  Status        – AVAILABLE, TEMP_RESERVED or SOLD.
//  PriceCents    – price of this seat in cents.
//  UpdatedAt     – last status change timestamp.
type Seat struct {
	ID            uint64    // seats.id
	ConcertDateID uint64    // seats.concert_date_id
	SeatNumber    string    // seats.seat_number
	Status        string    // seats.status
	PriceCents    int64     // seats.price_cents
	UpdatedAt     time.Time // seats.updated_at
}
