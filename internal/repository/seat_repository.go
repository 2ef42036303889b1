package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/concert-ticketing/internal/model"
)

// SeatRepo provides data access to the seats table.  Callers that
// mutate a seat's status must do so while holding the seat-status
// lock; the repository itself performs no locking.
type SeatRepo struct {
	db *sql.DB
}

// NewSeatRepo returns a new SeatRepo bound to the provided database.
func NewSeatRepo(db *sql.DB) *SeatRepo { return &SeatRepo{db: db} }

// GetByID loads a seat by primary key.  Returns ErrSeatNotFound when
// no row exists.
func (r *SeatRepo) GetByID(ctx context.Context, id uint64) (*model.Seat, error) {
	const q = `SELECT id, concert_date_id, seat_number, status, price_cents, updated_at
	           FROM seats WHERE id = ?`
	var s model.Seat
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&s.ID, &s.ConcertDateID, &s.SeatNumber, &s.Status, &s.PriceCents, &s.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrSeatNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// UpdateStatus sets the seat's status.  Updating a seat that no
// longer exists affects zero rows and returns ErrSeatNotFound so the
// caller can decide whether that matters (saga compensation treats it
// as a no-op).
func (r *SeatRepo) UpdateStatus(ctx context.Context, id uint64, status string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE seats SET status = ?, updated_at = UTC_TIMESTAMP() WHERE id = ?`,
		status, id,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrSeatNotFound
	}
	return nil
}
