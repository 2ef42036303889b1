package saga

import (
	"context"
	"errors"

	"github.com/iliyamo/concert-ticketing/internal/lock"
	"github.com/iliyamo/concert-ticketing/internal/model"
	"github.com/iliyamo/concert-ticketing/internal/notify"
	"github.com/iliyamo/concert-ticketing/internal/repository"
)

// Persistence ports for the downstream booking resources.  The MySQL
// implementations live in the repository package; tests supply fakes.
// Each port is deliberately a load-by-id/save contract: the resources
// are external collaborators whose own invariants (such as a seat's
// sold/available transition) are enforced by their own stores.

// SeatRepository accesses seat records.
type SeatRepository interface {
	GetByID(ctx context.Context, id uint64) (*model.Seat, error)
	UpdateStatus(ctx context.Context, id uint64, status string) error
}

// TempReservationRepository accesses temporary seat holds.
type TempReservationRepository interface {
	FindActiveByUserAndSeat(ctx context.Context, userID, seatID uint64) (*model.TempReservation, error)
	DeleteByID(ctx context.Context, id uint64) error
}

// ReservationRepository accesses permanent reservations.
type ReservationRepository interface {
	Create(ctx context.Context, res *model.Reservation) (uint64, error)
	Cancel(ctx context.Context, id uint64) error
}

// UserRepository accesses user point balances.
type UserRepository interface {
	DebitPoints(ctx context.Context, userID uint64, amount int64) error
	CreditPoints(ctx context.Context, userID uint64, amount int64) error
}

// PaymentRepository accesses payment records.
type PaymentRepository interface {
	Create(ctx context.Context, p *model.Payment) (uint64, error)
}

// ContextStore persists saga contexts.  Save is called after every
// state transition; FindByID backs the status endpoint; Delete is the
// operator acknowledgement of a FAILED saga; ListNonTerminal feeds
// the stuck-saga recovery sweep.
type ContextStore interface {
	Save(ctx context.Context, saga *model.PaymentSaga) error
	FindByID(ctx context.Context, id string) (*model.PaymentSaga, error)
	Delete(ctx context.Context, id string) error
	ListNonTerminal(ctx context.Context) ([]*model.PaymentSaga, error)
}

// deductPoints debits PointsToUse from the user under the per-user
// point-charge lock.  A missing user or a short balance fails the
// saga with nothing to compensate: this is the first step and it
// commits nothing on failure.
func (o *Orchestrator) deductPoints(ctx context.Context, saga *model.PaymentSaga) error {
	cat := lock.PointChargeUser
	return o.locks.WithLock(ctx, cat.Key(saga.UserID), cat.Wait, cat.Lease, func(ctx context.Context) error {
		err := o.users.DebitPoints(ctx, saga.UserID, saga.PointsToUse)
		switch {
		case errors.Is(err, repository.ErrUserNotFound):
			return &StepError{SagaID: saga.ID, Step: StepPointDeduction, Reason: "User not found", Err: err}
		case errors.Is(err, repository.ErrInsufficientPoints):
			return &StepError{SagaID: saga.ID, Step: StepPointDeduction, Reason: "Insufficient point balance", Err: err}
		}
		return err
	})
}

// confirmSeat marks the seat SOLD under the seat-status lock.  A seat
// that is already SOLD, or that does not exist, fails the step with
// compensation required, since the point debit has committed.
func (o *Orchestrator) confirmSeat(ctx context.Context, saga *model.PaymentSaga) error {
	cat := lock.SeatStatus
	return o.locks.WithLock(ctx, cat.Key(saga.SeatID), cat.Wait, cat.Lease, func(ctx context.Context) error {
		seat, err := o.seats.GetByID(ctx, saga.SeatID)
		if errors.Is(err, repository.ErrSeatNotFound) {
			return &StepError{SagaID: saga.ID, Step: StepSeatConfirmation, Reason: "Seat not found", Compensate: true, Err: err}
		}
		if err != nil {
			return err
		}
		if seat.Status == model.SeatSold {
			return &StepError{SagaID: saga.ID, Step: StepSeatConfirmation, Reason: "Seat already sold", Compensate: true}
		}
		if err := o.seats.UpdateStatus(ctx, saga.SeatID, model.SeatSold); err != nil {
			return err
		}
		o.publish(ctx, notify.StatusChangedEvent{
			Type:       notify.EventSeatConfirmed,
			SagaID:     saga.ID,
			UserID:     saga.UserID,
			SeatID:     saga.SeatID,
			OccurredAt: notify.Now(),
		})
		return nil
	})
}

// confirmReservation converts the user's temporary hold on the seat
// into a permanent reservation under the temp-reservation-process
// lock.  The new reservation id is recorded on the saga context so
// the cancel compensation knows what to undo.
func (o *Orchestrator) confirmReservation(ctx context.Context, saga *model.PaymentSaga) error {
	cat := lock.TempReservationProcess
	return o.locks.WithLock(ctx, cat.UserSeatKey(saga.UserID, saga.SeatID), cat.Wait, cat.Lease, func(ctx context.Context) error {
		temp, err := o.temps.FindActiveByUserAndSeat(ctx, saga.UserID, saga.SeatID)
		if errors.Is(err, repository.ErrTempReservationNotFound) {
			return &StepError{SagaID: saga.ID, Step: StepReservationConfirmation, Reason: "Temporary reservation missing or expired", Compensate: true, Err: err}
		}
		if err != nil {
			return err
		}
		id, err := o.reservations.Create(ctx, &model.Reservation{
			UserID:           saga.UserID,
			SeatID:           saga.SeatID,
			ConcertDateID:    saga.ConcertDateID,
			Status:           model.ReservationConfirmed,
			TotalAmountCents: saga.TotalAmount,
		})
		if err != nil {
			return err
		}
		saga.ActualReservationID = id
		if err := o.temps.DeleteByID(ctx, temp.ID); err != nil {
			return err
		}
		o.publish(ctx, notify.StatusChangedEvent{
			Type:          notify.EventReservationConfirmed,
			SagaID:        saga.ID,
			UserID:        saga.UserID,
			SeatID:        saga.SeatID,
			ReservationID: id,
			OccurredAt:    notify.Now(),
		})
		return nil
	})
}

// createPayment writes the payment record under the per-user payment
// lock.  Any failure here requires unwinding everything before it.
func (o *Orchestrator) createPayment(ctx context.Context, saga *model.PaymentSaga) error {
	cat := lock.PaymentUser
	return o.locks.WithLock(ctx, cat.Key(saga.UserID), cat.Wait, cat.Lease, func(ctx context.Context) error {
		_, err := o.payments.Create(ctx, &model.Payment{
			SagaID:        saga.ID,
			UserID:        saga.UserID,
			ReservationID: saga.ActualReservationID,
			AmountCents:   saga.TotalAmount,
			PointsUsed:    saga.PointsToUse,
			Status:        model.PaymentPaid,
		})
		if err != nil {
			return &StepError{SagaID: saga.ID, Step: StepPaymentCreation, Reason: "Payment record creation failed", Compensate: true, Err: err}
		}
		return nil
	})
}

// releaseSeat undoes a committed seat confirmation.  It is
// idempotent: a seat that is already AVAILABLE, or that no longer
// exists, is a logical no-op — and the released signal is still
// emitted so the rest of the compensation chain can proceed.
func (o *Orchestrator) releaseSeat(ctx context.Context, saga *model.PaymentSaga) error {
	cat := lock.SeatStatus
	err := o.locks.WithLock(ctx, cat.Key(saga.SeatID), cat.Wait, cat.Lease, func(ctx context.Context) error {
		seat, err := o.seats.GetByID(ctx, saga.SeatID)
		if errors.Is(err, repository.ErrSeatNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if seat.Status != model.SeatSold {
			return nil
		}
		err = o.seats.UpdateStatus(ctx, saga.SeatID, model.SeatAvailable)
		if errors.Is(err, repository.ErrSeatNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return err
	}
	o.publish(ctx, notify.StatusChangedEvent{
		Type:       notify.EventSeatReleased,
		SagaID:     saga.ID,
		UserID:     saga.UserID,
		SeatID:     saga.SeatID,
		OccurredAt: notify.Now(),
	})
	return nil
}

// cancelReservation undoes a committed reservation confirmation.
// The repository's Cancel affects zero rows for an already-cancelled
// or missing reservation, so the action is naturally idempotent.
func (o *Orchestrator) cancelReservation(ctx context.Context, saga *model.PaymentSaga) error {
	if saga.ActualReservationID == 0 {
		return nil
	}
	if err := o.reservations.Cancel(ctx, saga.ActualReservationID); err != nil {
		return err
	}
	o.publish(ctx, notify.StatusChangedEvent{
		Type:          notify.EventReservationCancelled,
		SagaID:        saga.ID,
		UserID:        saga.UserID,
		ReservationID: saga.ActualReservationID,
		OccurredAt:    notify.Now(),
	})
	return nil
}

// refundPoints undoes the point debit.  The refund covers both the
// points applied and the charged amount, returning the full value of
// the failed purchase to the user's balance.
func (o *Orchestrator) refundPoints(ctx context.Context, saga *model.PaymentSaga) error {
	amount := saga.PointsToUse + saga.TotalAmount
	cat := lock.PointChargeUser
	err := o.locks.WithLock(ctx, cat.Key(saga.UserID), cat.Wait, cat.Lease, func(ctx context.Context) error {
		return o.users.CreditPoints(ctx, saga.UserID, amount)
	})
	if err != nil {
		return err
	}
	o.publish(ctx, notify.StatusChangedEvent{
		Type:        notify.EventPointsRefunded,
		SagaID:      saga.ID,
		UserID:      saga.UserID,
		AmountCents: amount,
		OccurredAt:  notify.Now(),
	})
	return nil
}
