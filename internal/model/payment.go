package model

import "time"

// Payment status values.
const (
	PaymentPaid = "PAID"
)

// Payment is the durable record written by the final forward step of
// the payment saga.
//
// Fields:
//  ID            – primary key identifier.
//  SagaID        – payment saga that produced this record.
//  UserID        – paying user.
//  ReservationID – permanent reservation being paid for.
//  AmountCents   – amount charged in cents.
//  PointsUsed    – points applied to the purchase.
//  Status        – payment status (PAID).
//  CreatedAt     – creation timestamp.
type Payment struct {
	ID            uint64    // payments.id
	SagaID        string    // payments.saga_id
	UserID        uint64    // payments.user_id
	ReservationID uint64    // payments.reservation_id
	AmountCents   int64     // payments.amount_cents
	PointsUsed    int64     // payments.points_used
	Status        string    // payments.status
	CreatedAt     time.Time // payments.created_at
}
