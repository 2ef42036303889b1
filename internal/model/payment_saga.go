package model

import "time"

// SagaState enumerates the states of the payment saga state machine.
// The forward path runs INITIATED → POINT_DEDUCTING → SEAT_CONFIRMING
// → RESERVATION_CONFIRMING → PAYMENT_CREATING → COMPLETED.  When a
// step fails after earlier steps have committed, the saga enters
// COMPENSATING and walks the compensation states before settling in
// FAILED.  Transitions are monotonic along exactly one of the two
// paths; a saga never moves from the compensation branch back to the
// forward branch.
type SagaState string

const (
	SagaInitiated             SagaState = "INITIATED"
	SagaPointDeducting        SagaState = "POINT_DEDUCTING"
	SagaSeatConfirming        SagaState = "SEAT_CONFIRMING"
	SagaReservationConfirming SagaState = "RESERVATION_CONFIRMING"
	SagaPaymentCreating       SagaState = "PAYMENT_CREATING"
	SagaCompleted             SagaState = "COMPLETED"
	SagaCompensating          SagaState = "COMPENSATING"
	SagaSeatReleasing         SagaState = "SEAT_RELEASING"
	SagaReservationCancelling SagaState = "RESERVATION_CANCELLING"
	SagaFailed                SagaState = "FAILED"
)

// Terminal reports whether the state admits no further transition.
func (s SagaState) Terminal() bool {
	return s == SagaCompleted || s == SagaFailed
}

// PaymentSaga is the persisted context of one in-flight payment.  It
// is saved after every state transition so a crashed orchestrator
// leaves an inspectable trail, and archived once a terminal state is
// reached.
//
// Fields:
//  ID                  – opaque saga identifier (UUID).
//  UserID              – paying user.
//  ReservationID       – temporary reservation the payment settles.
//  ActualReservationID – permanent reservation id, assigned once the
//                        reservation-confirmation step succeeds.
//  SeatID              – seat being purchased.
//  ConcertDateID       – concert date the seat belongs to.
//  PointsToUse         – points debited in the point-deduction step.
//  TotalAmount         – payment amount in cents.
//  State               – current state machine position.
//  FailureReason       – populated when the saga enters compensation
//                        or fails outright.
//  StartedAt           – when the saga was created.
//  CompletedAt         – when a terminal state was reached.
type PaymentSaga struct {
	ID                  string     `json:"id"`
	UserID              uint64     `json:"user_id"`
	ReservationID       uint64     `json:"reservation_id"`
	ActualReservationID uint64     `json:"actual_reservation_id,omitempty"`
	SeatID              uint64     `json:"seat_id"`
	ConcertDateID       uint64     `json:"concert_date_id"`
	PointsToUse         int64      `json:"points_to_use"`
	TotalAmount         int64      `json:"total_amount"`
	State               SagaState  `json:"state"`
	FailureReason       string     `json:"failure_reason,omitempty"`
	StartedAt           time.Time  `json:"started_at"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
}
