package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/concert-ticketing/internal/model"
)

// ReservationRepo provides data access to the reservations table.
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo returns a new ReservationRepo bound to the
// provided database.
func NewReservationRepo(db *sql.DB) *ReservationRepo {
	return &ReservationRepo{db: db}
}

// Create inserts a reservation and returns its assigned id.
func (r *ReservationRepo) Create(ctx context.Context, res *model.Reservation) (uint64, error) {
	out, err := r.db.ExecContext(ctx,
		`INSERT INTO reservations (user_id, seat_id, concert_date_id, status, total_amount_cents, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, UTC_TIMESTAMP(), UTC_TIMESTAMP())`,
		res.UserID, res.SeatID, res.ConcertDateID, res.Status, res.TotalAmountCents,
	)
	if err != nil {
		return 0, err
	}
	id, err := out.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// Cancel marks a reservation CANCELLED.  Cancelling a reservation
// that is already cancelled, or that no longer exists, affects zero
// rows and succeeds; saga compensation relies on this being
// idempotent.
func (r *ReservationRepo) Cancel(ctx context.Context, id uint64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE reservations SET status = ?, updated_at = UTC_TIMESTAMP() WHERE id = ? AND status <> ?`,
		model.ReservationCancelled, id, model.ReservationCancelled,
	)
	return err
}
