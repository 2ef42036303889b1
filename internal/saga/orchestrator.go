package saga

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/concert-ticketing/internal/lock"
	"github.com/iliyamo/concert-ticketing/internal/model"
	"github.com/iliyamo/concert-ticketing/internal/notify"
)

// sagaTimeout bounds the wall-clock time one saga may spend across
// all steps and compensations.  It is far above the sum of the lock
// wait bounds so a timeout always means something is genuinely wrong.
const sagaTimeout = 2 * time.Minute

// Orchestrator drives payment sagas.  It owns the saga state machine:
// forward steps run strictly in sequence, each in its own commit
// boundary, and on failure the compensation chain unwinds whatever
// subset had committed.  Callers get the saga id back immediately and
// observe the outcome through GetSaga or the published terminal
// event; saga-internal errors never escape to them.
type Orchestrator struct {
	store        ContextStore
	seats        SeatRepository
	temps        TempReservationRepository
	reservations ReservationRepository
	users        UserRepository
	payments     PaymentRepository
	locks        lock.Provider
	pub          notify.Publisher
	now          func() time.Time
	wg           sync.WaitGroup
}

// NewOrchestrator constructs the orchestrator.  All dependencies must
// be non-nil; pass notify.Noop{} when no broker is configured.
func NewOrchestrator(
	store ContextStore,
	seats SeatRepository,
	temps TempReservationRepository,
	reservations ReservationRepository,
	users UserRepository,
	payments PaymentRepository,
	locks lock.Provider,
	pub notify.Publisher,
) *Orchestrator {
	if store == nil || seats == nil || temps == nil || reservations == nil ||
		users == nil || payments == nil || locks == nil || pub == nil {
		panic("nil dependency passed to NewOrchestrator")
	}
	return &Orchestrator{
		store:        store,
		seats:        seats,
		temps:        temps,
		reservations: reservations,
		users:        users,
		payments:     payments,
		locks:        locks,
		pub:          pub,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// StartRequest carries the inputs of a payment saga.
type StartRequest struct {
	ReservationID uint64 // temporary reservation being settled
	UserID        uint64
	SeatID        uint64
	ConcertDateID uint64
	PointsToUse   int64
	TotalAmount   int64
}

// StartPaymentSaga allocates a saga id, persists the INITIATED
// context, and kicks off processing in the background.  The caller
// does not block for the outcome: poll GetSaga or subscribe to the
// status stream for the terminal state.
func (o *Orchestrator) StartPaymentSaga(ctx context.Context, req StartRequest) (string, error) {
	if req.TotalAmount < 0 || req.PointsToUse < 0 {
		return "", ErrInvalidAmount
	}
	saga := &model.PaymentSaga{
		ID:            uuid.NewString(),
		UserID:        req.UserID,
		ReservationID: req.ReservationID,
		SeatID:        req.SeatID,
		ConcertDateID: req.ConcertDateID,
		PointsToUse:   req.PointsToUse,
		TotalAmount:   req.TotalAmount,
		State:         model.SagaInitiated,
		StartedAt:     o.now(),
	}
	if err := o.store.Save(ctx, saga); err != nil {
		return "", err
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		// Detached from the request context: the saga outlives the
		// HTTP exchange that started it.
		runCtx, cancel := context.WithTimeout(context.Background(), sagaTimeout)
		defer cancel()
		o.run(runCtx, saga)
	}()

	return saga.ID, nil
}

// GetSaga returns the persisted context, including archived terminal
// states still within retention.
func (o *Orchestrator) GetSaga(ctx context.Context, id string) (*model.PaymentSaga, error) {
	return o.store.FindByID(ctx, id)
}

// AcknowledgeFailure removes the context of a terminal saga.  Used by
// operators after investigating a FAILED saga; acknowledging a saga
// that is still running fails with ErrSagaNotTerminal.
func (o *Orchestrator) AcknowledgeFailure(ctx context.Context, id string) error {
	saga, err := o.store.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !saga.State.Terminal() {
		return ErrSagaNotTerminal
	}
	return o.store.Delete(ctx, id)
}

// Wait blocks until every in-flight saga has reached a terminal
// state.  Called during shutdown so no saga is cut off mid-chain.
func (o *Orchestrator) Wait() { o.wg.Wait() }

// forwardStep describes one entry of the forward sequence.
type forwardStep struct {
	name            string
	state           model.SagaState
	run             func(ctx context.Context, saga *model.PaymentSaga) error
	compensateOnErr bool // flag applied to untagged errors from run
}

// compensation describes one entry of the compensation chain.  The
// chain is walked in declaration order — seat release, reservation
// cancel, point refund — restricted to entries whose forward step
// actually committed.
type compensation struct {
	name     string
	state    model.SagaState // empty: runs without a dedicated state
	requires string          // forward step that must have committed
	run      func(ctx context.Context, saga *model.PaymentSaga) error
}

func (o *Orchestrator) run(ctx context.Context, saga *model.PaymentSaga) {
	steps := []forwardStep{
		{StepPointDeduction, model.SagaPointDeducting, o.deductPoints, false},
		{StepSeatConfirmation, model.SagaSeatConfirming, o.confirmSeat, true},
		{StepReservationConfirmation, model.SagaReservationConfirming, o.confirmReservation, true},
		{StepPaymentCreation, model.SagaPaymentCreating, o.createPayment, true},
	}

	committed := make(map[string]bool, len(steps))
	for _, st := range steps {
		o.transition(ctx, saga, st.state)
		if err := st.run(ctx, saga); err != nil {
			o.fail(ctx, saga, o.tagStepError(saga, st, err), committed)
			return
		}
		committed[st.name] = true
	}

	now := o.now()
	saga.State = model.SagaCompleted
	saga.CompletedAt = &now
	if err := o.store.Save(ctx, saga); err != nil {
		log.Printf("saga: archiving completed saga %s failed: %v", saga.ID, err)
	}
	o.publish(ctx, notify.StatusChangedEvent{
		Type:          notify.EventSagaCompleted,
		SagaID:        saga.ID,
		UserID:        saga.UserID,
		SeatID:        saga.SeatID,
		ReservationID: saga.ActualReservationID,
		AmountCents:   saga.TotalAmount,
		Status:        string(model.SagaCompleted),
		OccurredAt:    notify.Now(),
	})
}

// fail handles a forward-step failure: either straight to FAILED when
// nothing committed needs undoing, or through the compensation chain
// first.  A failed compensating action aborts the chain immediately —
// one attempt, then operator attention.
func (o *Orchestrator) fail(ctx context.Context, saga *model.PaymentSaga, se *StepError, committed map[string]bool) {
	log.Printf("saga: %v", se)

	if !se.Compensate {
		o.finishFailed(ctx, saga, se.Reason)
		return
	}

	saga.State = model.SagaCompensating
	saga.FailureReason = se.Reason
	if err := o.store.Save(ctx, saga); err != nil {
		log.Printf("saga: persisting state %s of saga %s failed: %v", saga.State, saga.ID, err)
	}

	chain := []compensation{
		{CompSeatRelease, model.SagaSeatReleasing, StepSeatConfirmation, o.releaseSeat},
		{CompReservationCancel, model.SagaReservationCancelling, StepReservationConfirmation, o.cancelReservation},
		{CompPointRefund, "", StepPointDeduction, o.refundPoints},
	}
	for _, c := range chain {
		if !committed[c.requires] {
			continue
		}
		if c.state != "" {
			o.transition(ctx, saga, c.state)
		}
		if err := c.run(ctx, saga); err != nil {
			cerr := &CompensationError{SagaID: saga.ID, Action: c.name, Err: err}
			log.Printf("saga: compensation failed, operator attention required: %v", cerr)
			o.finishFailed(ctx, saga, fmt.Sprintf("%s; compensation %s failed: %v", se.Reason, c.name, err))
			return
		}
	}

	o.finishFailed(ctx, saga, se.Reason)
}

func (o *Orchestrator) finishFailed(ctx context.Context, saga *model.PaymentSaga, reason string) {
	now := o.now()
	saga.State = model.SagaFailed
	saga.FailureReason = reason
	saga.CompletedAt = &now
	if err := o.store.Save(ctx, saga); err != nil {
		log.Printf("saga: archiving failed saga %s failed: %v", saga.ID, err)
	}
	o.publish(ctx, notify.StatusChangedEvent{
		Type:       notify.EventSagaFailed,
		SagaID:     saga.ID,
		UserID:     saga.UserID,
		SeatID:     saga.SeatID,
		Status:     string(model.SagaFailed),
		Reason:     reason,
		OccurredAt: notify.Now(),
	})
}

// transition persists an intermediate state change.  A store outage
// here does not stop the saga: the steps themselves are the source of
// truth, the context is the inspectable trail.
func (o *Orchestrator) transition(ctx context.Context, saga *model.PaymentSaga, state model.SagaState) {
	saga.State = state
	if err := o.store.Save(ctx, saga); err != nil {
		log.Printf("saga: persisting state %s of saga %s failed: %v", state, saga.ID, err)
	}
}

// tagStepError normalizes whatever a step returned into a StepError.
// Steps tag business failures themselves; untagged errors (store
// outages, lock timeouts) get the step's default compensate flag.
func (o *Orchestrator) tagStepError(saga *model.PaymentSaga, st forwardStep, err error) *StepError {
	var se *StepError
	if errors.As(err, &se) {
		return se
	}
	return &StepError{
		SagaID:     saga.ID,
		Step:       st.name,
		Reason:     err.Error(),
		Compensate: st.compensateOnErr,
		Err:        err,
	}
}

// RecoverStuckSagas force-fails non-terminal sagas older than the
// given age.  They are the residue of an orchestrator that died
// mid-saga; no compensation is attempted, because there is no record
// of which step was in flight when the process stopped.  Returns the
// number of sagas swept.
func (o *Orchestrator) RecoverStuckSagas(ctx context.Context, olderThan time.Duration) (int, error) {
	sagas, err := o.store.ListNonTerminal(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := o.now().Add(-olderThan)
	swept := 0
	for _, saga := range sagas {
		if saga.StartedAt.After(cutoff) {
			continue
		}
		reason := fmt.Sprintf("abandoned in state %s, swept by recovery", saga.State)
		log.Printf("saga: recovering stuck saga %s: %s", saga.ID, reason)
		o.finishFailed(ctx, saga, reason)
		swept++
	}
	return swept, nil
}

func (o *Orchestrator) publish(ctx context.Context, ev notify.StatusChangedEvent) {
	_ = o.pub.Publish(ctx, ev)
}
