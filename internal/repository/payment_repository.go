package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/concert-ticketing/internal/model"
)

// PaymentRepo provides data access to the payments table.
type PaymentRepo struct {
	db *sql.DB
}

// NewPaymentRepo returns a new PaymentRepo bound to the provided
// database.
func NewPaymentRepo(db *sql.DB) *PaymentRepo { return &PaymentRepo{db: db} }

// Create inserts a payment record and returns its assigned id.
func (r *PaymentRepo) Create(ctx context.Context, p *model.Payment) (uint64, error) {
	out, err := r.db.ExecContext(ctx,
		`INSERT INTO payments (saga_id, user_id, reservation_id, amount_cents, points_used, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, UTC_TIMESTAMP())`,
		p.SagaID, p.UserID, p.ReservationID, p.AmountCents, p.PointsUsed, p.Status,
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
