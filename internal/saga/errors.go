// Package saga implements the payment saga orchestrator: the forward
// step sequence point debit → seat confirmation → reservation
// confirmation → payment record, and the compensation chain that
// unwinds committed steps when a later one fails.  The four resources
// live in separate commit boundaries, so consistency comes from
// explicit compensation rather than a single atomic transaction.
package saga

import (
	"errors"
	"fmt"
)

// Step names, used in error tags and state bookkeeping.
const (
	StepPointDeduction          = "point-deduction"
	StepSeatConfirmation        = "seat-confirmation"
	StepReservationConfirmation = "reservation-confirmation"
	StepPaymentCreation         = "payment-creation"

	CompSeatRelease       = "seat-release"
	CompReservationCancel = "reservation-cancel"
	CompPointRefund       = "point-refund"
)

// ErrInvalidAmount is returned synchronously by StartPaymentSaga
// when the requested amounts are negative; no saga is created.
var ErrInvalidAmount = errors.New("invalid payment amount")

// ErrSagaNotTerminal is returned when an operator tries to
// acknowledge a saga that has not reached a terminal state yet.
var ErrSagaNotTerminal = errors.New("saga has not reached a terminal state")

// StepError tags a forward-step failure with the saga, the step, a
// human-readable reason and whether previously committed steps must
// be compensated.  The orchestrator always catches it; it is never
// surfaced raw to the caller that started the saga.
type StepError struct {
	SagaID     string
	Step       string
	Reason     string
	Compensate bool
	Err        error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("saga %s: step %s failed: %s", e.SagaID, e.Step, e.Reason)
}

func (e *StepError) Unwrap() error { return e.Err }

// CompensationError reports a failed compensating action.  It is
// fatal: the saga is forced to FAILED, no further compensation is
// attempted, and the failure is surfaced to operators through the
// terminal event.
type CompensationError struct {
	SagaID string
	Action string
	Err    error
}

func (e *CompensationError) Error() string {
	return fmt.Sprintf("saga %s: compensation %s failed: %v", e.SagaID, e.Action, e.Err)
}

func (e *CompensationError) Unwrap() error { return e.Err }
