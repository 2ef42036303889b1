package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/concert-ticketing/internal/model"
)

// UserRepo provides data access to the users table, in particular the
// point balance the payment saga debits and refunds.  Balance changes
// are single conditional UPDATE statements, so the database enforces
// the non-negative invariant even if two debits race past the
// per-user lock.
type UserRepo struct {
	db *sql.DB
}

// NewUserRepo returns a new UserRepo bound to the provided database.
func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{db: db} }

// GetByID loads a user by primary key.  Returns ErrUserNotFound when
// no row exists.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (*model.User, error) {
	const q = `SELECT id, name, point_balance, updated_at FROM users WHERE id = ?`
	var u model.User
	err := r.db.QueryRowContext(ctx, q, id).Scan(&u.ID, &u.Name, &u.PointBalance, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// DebitPoints subtracts amount from the user's balance.  Returns
// ErrInsufficientPoints when the balance would go negative and
// ErrUserNotFound when the user does not exist; in both cases nothing
// is written.
func (r *UserRepo) DebitPoints(ctx context.Context, userID uint64, amount int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET point_balance = point_balance - ?, updated_at = UTC_TIMESTAMP()
		 WHERE id = ? AND point_balance >= ?`,
		amount, userID, amount,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	// Zero rows: either the user is missing or the balance is short.
	var exists bool
	if err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE id = ?)`, userID,
	).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrUserNotFound
	}
	return ErrInsufficientPoints
}

// CreditPoints adds amount to the user's balance.  Used by the point
// refund compensation; crediting a missing user returns
// ErrUserNotFound.
func (r *UserRepo) CreditPoints(ctx context.Context, userID uint64, amount int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET point_balance = point_balance + ?, updated_at = UTC_TIMESTAMP() WHERE id = ?`,
		amount, userID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}
