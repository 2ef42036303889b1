package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/concert-ticketing/internal/model"
)

// TempReservationRepo provides data access to the temp_reservations
// table.  Expiration comparisons run in the database against
// UTC_TIMESTAMP() so application clock skew cannot revive a lapsed
// hold.
type TempReservationRepo struct {
	db *sql.DB
}

// NewTempReservationRepo returns a new TempReservationRepo bound to
// the provided database.
func NewTempReservationRepo(db *sql.DB) *TempReservationRepo {
	return &TempReservationRepo{db: db}
}

// FindActiveByUserAndSeat returns the unexpired hold the user has on
// the seat.  Returns ErrTempReservationNotFound when no such hold
// exists or it has already expired; the payment saga treats both the
// same way.
func (r *TempReservationRepo) FindActiveByUserAndSeat(ctx context.Context, userID, seatID uint64) (*model.TempReservation, error) {
	const q = `SELECT id, user_id, seat_id, concert_date_id, expires_at, created_at
	           FROM temp_reservations
	           WHERE user_id = ? AND seat_id = ? AND expires_at > UTC_TIMESTAMP()
	           ORDER BY id DESC LIMIT 1`
	var t model.TempReservation
	err := r.db.QueryRowContext(ctx, q, userID, seatID).Scan(
		&t.ID, &t.UserID, &t.SeatID, &t.ConcertDateID, &t.ExpiresAt, &t.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrTempReservationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// DeleteByID removes a hold.  Deleting a hold that is already gone is
// a no-op, which keeps the reservation-confirmation step safe to
// retry.
func (r *TempReservationRepo) DeleteByID(ctx context.Context, id uint64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM temp_reservations WHERE id = ?`, id)
	return err
}
