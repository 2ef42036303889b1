package model

import "time"

// TempReservation is a short-lived hold a user places on a seat while
// completing checkout.  It prevents concurrent buyers from grabbing
// the same seat and expires automatically at ExpiresAt.  A payment
// saga converts the hold into a permanent Reservation and deletes it.
//
// Fields:
//  ID            – primary key identifier.
//  UserID        – user who holds the seat.
//  SeatID        – seat being held.
//  ConcertDateID – concert date the seat belongs to.
//  ExpiresAt     – when the hold lapses (UTC).
//  CreatedAt     – when the hold was created.
type TempReservation struct {
	ID            uint64    // temp_reservations.id
	UserID        uint64    // temp_reservations.user_id
	SeatID        uint64    // temp_reservations.seat_id
	ConcertDateID uint64    // temp_reservations.concert_date_id
	ExpiresAt     time.Time // temp_reservations.expires_at
	CreatedAt     time.Time // temp_reservations.created_at
}

// Expired reports whether the hold has lapsed at the given instant.
func (t *TempReservation) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
