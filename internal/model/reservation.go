package model

import "time"

// Reservation status values.
const (
	ReservationConfirmed = "CONFIRMED"
	ReservationCancelled = "CANCELLED"
)

// Reservation records a confirmed booking for a seat.  It is created
// by the reservation-confirmation step of the payment saga, replacing
// the temporary hold, and cancelled again if a later step fails.
//
// Fields:
//  ID               – primary key identifier.
//  UserID           – user who made the reservation.
//  SeatID           – seat that has been reserved.
//  ConcertDateID    – concert date of the seat.
//  Status           – CONFIRMED or CANCELLED.
//  TotalAmountCents – total price in cents.
//  CreatedAt        – creation timestamp.
//  UpdatedAt        – last update timestamp.
type Reservation struct {
	ID               uint64    // reservations.id
	UserID           uint64    // reservations.user_id
	SeatID           uint64    // reservations.seat_id
	ConcertDateID    uint64    // reservations.concert_date_id
	Status           string    // reservations.status
	TotalAmountCents int64     // reservations.total_amount_cents
	CreatedAt        time.Time // reservations.created_at
	UpdatedAt        time.Time // reservations.updated_at
}
