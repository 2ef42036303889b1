package saga

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/iliyamo/concert-ticketing/internal/lock"
	"github.com/iliyamo/concert-ticketing/internal/model"
	"github.com/iliyamo/concert-ticketing/internal/notify"
	"github.com/iliyamo/concert-ticketing/internal/repository"
)

// journal records the side effects of the fakes in the order they
// happen, so tests can assert the step and compensation ordering.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(format string, args ...any) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, fmt.Sprintf(format, args...))
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

type fakeStore struct {
	mu    sync.Mutex
	sagas map[string]*model.PaymentSaga
}

func newFakeStore() *fakeStore {
	return &fakeStore{sagas: make(map[string]*model.PaymentSaga)}
}

func (s *fakeStore) Save(_ context.Context, saga *model.PaymentSaga) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *saga
	s.sagas[saga.ID] = &c
	return nil
}

func (s *fakeStore) FindByID(_ context.Context, id string) (*model.PaymentSaga, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	saga, ok := s.sagas[id]
	if !ok {
		return nil, repository.ErrSagaNotFound
	}
	c := *saga
	return &c, nil
}

func (s *fakeStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sagas, id)
	return nil
}

func (s *fakeStore) ListNonTerminal(_ context.Context) ([]*model.PaymentSaga, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.PaymentSaga
	for _, saga := range s.sagas {
		if !saga.State.Terminal() {
			c := *saga
			out = append(out, &c)
		}
	}
	return out, nil
}

type fakeSeats struct {
	mu          sync.Mutex
	seats       map[uint64]*model.Seat
	failRelease bool // fail the update back to AVAILABLE
	jr          *journal
}

func (f *fakeSeats) GetByID(_ context.Context, id uint64) (*model.Seat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seat, ok := f.seats[id]
	if !ok {
		return nil, repository.ErrSeatNotFound
	}
	c := *seat
	return &c, nil
}

func (f *fakeSeats) UpdateStatus(_ context.Context, id uint64, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if status == model.SeatAvailable && f.failRelease {
		return errors.New("seat table unavailable")
	}
	seat, ok := f.seats[id]
	if !ok {
		return repository.ErrSeatNotFound
	}
	seat.Status = status
	f.jr.add("seat:%s", status)
	return nil
}

func (f *fakeSeats) status(id uint64) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seats[id].Status
}

type fakeTemps struct {
	mu    sync.Mutex
	holds map[uint64]*model.TempReservation // by id
	jr    *journal
}

func (f *fakeTemps) FindActiveByUserAndSeat(_ context.Context, userID, seatID uint64) (*model.TempReservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, h := range f.holds {
		if h.UserID == userID && h.SeatID == seatID {
			c := *h
			return &c, nil
		}
	}
	return nil, repository.ErrTempReservationNotFound
}

func (f *fakeTemps) DeleteByID(_ context.Context, id uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.holds, id)
	f.jr.add("temp.delete")
	return nil
}

type fakeReservations struct {
	mu         sync.Mutex
	nextID     uint64
	rows       map[uint64]*model.Reservation
	failCreate bool
	jr         *journal
}

func (f *fakeReservations) Create(_ context.Context, res *model.Reservation) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate {
		return 0, errors.New("reservation insert failed")
	}
	f.nextID++
	c := *res
	c.ID = f.nextID
	f.rows[c.ID] = &c
	f.jr.add("reservation.create")
	return c.ID, nil
}

func (f *fakeReservations) Cancel(_ context.Context, id uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if row, ok := f.rows[id]; ok && row.Status != model.ReservationCancelled {
		row.Status = model.ReservationCancelled
	}
	f.jr.add("reservation.cancel")
	return nil
}

type fakeUsers struct {
	mu       sync.Mutex
	balances map[uint64]int64
	jr       *journal
}

func (f *fakeUsers) DebitPoints(_ context.Context, userID uint64, amount int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	bal, ok := f.balances[userID]
	if !ok {
		return repository.ErrUserNotFound
	}
	if bal < amount {
		return repository.ErrInsufficientPoints
	}
	f.balances[userID] = bal - amount
	f.jr.add("debit:%d", amount)
	return nil
}

func (f *fakeUsers) CreditPoints(_ context.Context, userID uint64, amount int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[userID] += amount
	f.jr.add("credit:%d", amount)
	return nil
}

func (f *fakeUsers) balance(userID uint64) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[userID]
}

type fakePayments struct {
	mu      sync.Mutex
	fail    bool
	created []model.Payment
	jr      *journal
}

func (f *fakePayments) Create(_ context.Context, p *model.Payment) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return 0, errors.New("payment gateway rejected")
	}
	f.created = append(f.created, *p)
	f.jr.add("payment.create")
	return uint64(len(f.created)), nil
}

type capturePub struct {
	mu     sync.Mutex
	events []notify.StatusChangedEvent
}

func (p *capturePub) Publish(_ context.Context, ev notify.StatusChangedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *capturePub) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

type fixture struct {
	store    *fakeStore
	seats    *fakeSeats
	temps    *fakeTemps
	resv     *fakeReservations
	users    *fakeUsers
	payments *fakePayments
	pub      *capturePub
	jr       *journal
	o        *Orchestrator
}

const (
	testUser = uint64(9)
	testSeat = uint64(5)
	testHold = uint64(77)
)

// newFixture seeds one user with 1000 points holding seat 5 through
// temporary reservation 77.
func newFixture() *fixture {
	jr := &journal{}
	f := &fixture{
		store: newFakeStore(),
		seats: &fakeSeats{seats: map[uint64]*model.Seat{
			testSeat: {ID: testSeat, ConcertDateID: 3, SeatNumber: "A-5", Status: model.SeatTempReserved, PriceCents: 5000},
		}, jr: jr},
		temps: &fakeTemps{holds: map[uint64]*model.TempReservation{
			testHold: {ID: testHold, UserID: testUser, SeatID: testSeat, ConcertDateID: 3, ExpiresAt: time.Now().Add(time.Hour)},
		}, jr: jr},
		resv:     &fakeReservations{rows: make(map[uint64]*model.Reservation), jr: jr},
		users:    &fakeUsers{balances: map[uint64]int64{testUser: 1000}, jr: jr},
		payments: &fakePayments{jr: jr},
		pub:      &capturePub{},
		jr:       jr,
	}
	f.o = NewOrchestrator(f.store, f.seats, f.temps, f.resv, f.users, f.payments, lock.NewLocal(), f.pub)
	return f
}

func (f *fixture) request() StartRequest {
	return StartRequest{
		ReservationID: testHold,
		UserID:        testUser,
		SeatID:        testSeat,
		ConcertDateID: 3,
		PointsToUse:   200,
		TotalAmount:   5000,
	}
}

// start runs a saga to its terminal state and returns the archived
// context.
func (f *fixture) start(t *testing.T, req StartRequest) *model.PaymentSaga {
	t.Helper()
	ctx := context.Background()
	id, err := f.o.StartPaymentSaga(ctx, req)
	if err != nil {
		t.Fatalf("StartPaymentSaga: %v", err)
	}
	f.o.Wait()
	saga, err := f.o.GetSaga(ctx, id)
	if err != nil {
		t.Fatalf("GetSaga: %v", err)
	}
	return saga
}

func TestSagaCompletes(t *testing.T) {
	f := newFixture()
	saga := f.start(t, f.request())

	if saga.State != model.SagaCompleted {
		t.Fatalf("state = %s, want COMPLETED (reason %q)", saga.State, saga.FailureReason)
	}
	if saga.ActualReservationID == 0 {
		t.Fatal("permanent reservation id not recorded")
	}
	if saga.CompletedAt == nil {
		t.Fatal("CompletedAt not set")
	}
	if got := f.seats.status(testSeat); got != model.SeatSold {
		t.Fatalf("seat status = %s, want SOLD", got)
	}
	if _, err := f.temps.FindActiveByUserAndSeat(context.Background(), testUser, testSeat); !errors.Is(err, repository.ErrTempReservationNotFound) {
		t.Fatal("temporary hold not deleted")
	}
	if f.users.balance(testUser) != 800 {
		t.Fatalf("balance = %d, want 800 after debiting 200", f.users.balance(testUser))
	}
	if len(f.payments.created) != 1 {
		t.Fatalf("payments created = %d, want 1", len(f.payments.created))
	}
	p := f.payments.created[0]
	if p.SagaID != saga.ID || p.ReservationID != saga.ActualReservationID ||
		p.AmountCents != 5000 || p.PointsUsed != 200 || p.Status != model.PaymentPaid {
		t.Fatalf("payment record wrong: %+v", p)
	}

	want := []string{"debit:200", "seat:SOLD", "reservation.create", "temp.delete", "payment.create"}
	got := f.jr.list()
	if len(got) != len(want) {
		t.Fatalf("actions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("action[%d] = %s, want %s", i, got[i], want[i])
		}
	}

	types := f.pub.types()
	if len(types) == 0 || types[len(types)-1] != notify.EventSagaCompleted {
		t.Fatalf("last event = %v, want %s", types, notify.EventSagaCompleted)
	}
}

func TestInsufficientPointsFailsWithoutCompensation(t *testing.T) {
	f := newFixture()
	f.users.balances[testUser] = 100 // less than the 200 requested

	saga := f.start(t, f.request())

	if saga.State != model.SagaFailed {
		t.Fatalf("state = %s, want FAILED", saga.State)
	}
	if saga.FailureReason != "Insufficient point balance" {
		t.Fatalf("reason = %q", saga.FailureReason)
	}
	if f.users.balance(testUser) != 100 {
		t.Fatalf("balance changed to %d", f.users.balance(testUser))
	}
	if got := f.seats.status(testSeat); got != model.SeatTempReserved {
		t.Fatalf("seat touched: %s", got)
	}
	// Nothing committed, so nothing ran at all.
	if actions := f.jr.list(); len(actions) != 0 {
		t.Fatalf("unexpected actions: %v", actions)
	}
}

func TestSeatAlreadySoldRefundsPoints(t *testing.T) {
	f := newFixture()
	f.seats.seats[testSeat].Status = model.SeatSold

	saga := f.start(t, f.request())

	if saga.State != model.SagaFailed {
		t.Fatalf("state = %s, want FAILED", saga.State)
	}
	if saga.FailureReason != "Seat already sold" {
		t.Fatalf("reason = %q", saga.FailureReason)
	}
	// The refund restores points plus the charged amount.
	if f.users.balance(testUser) != 1000+5000 {
		t.Fatalf("balance = %d, want 6000 after full refund", f.users.balance(testUser))
	}

	want := []string{"debit:200", "credit:5200"}
	if got := f.jr.list(); len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("actions = %v, want %v", got, want)
	}
}

func TestMissingHoldReleasesSeatAndRefunds(t *testing.T) {
	f := newFixture()
	delete(f.temps.holds, testHold)

	saga := f.start(t, f.request())

	if saga.State != model.SagaFailed {
		t.Fatalf("state = %s, want FAILED", saga.State)
	}
	if saga.FailureReason != "Temporary reservation missing or expired" {
		t.Fatalf("reason = %q", saga.FailureReason)
	}
	if got := f.seats.status(testSeat); got != model.SeatAvailable {
		t.Fatalf("seat = %s, want AVAILABLE after release", got)
	}
	if f.users.balance(testUser) != 6000 {
		t.Fatalf("balance = %d, want 6000", f.users.balance(testUser))
	}

	want := []string{"debit:200", "seat:SOLD", "seat:AVAILABLE", "credit:5200"}
	got := f.jr.list()
	if len(got) != len(want) {
		t.Fatalf("actions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("action[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

// A payment-creation failure unwinds everything: seat release, then
// reservation cancel, then point refund, in that order.
func TestPaymentFailureUnwindsAll(t *testing.T) {
	f := newFixture()
	f.payments.fail = true

	saga := f.start(t, f.request())

	if saga.State != model.SagaFailed {
		t.Fatalf("state = %s, want FAILED", saga.State)
	}
	if got := f.seats.status(testSeat); got != model.SeatAvailable {
		t.Fatalf("seat = %s, want AVAILABLE", got)
	}
	row := f.resv.rows[saga.ActualReservationID]
	if row == nil || row.Status != model.ReservationCancelled {
		t.Fatalf("reservation %d not cancelled", saga.ActualReservationID)
	}
	if f.users.balance(testUser) != 6000 {
		t.Fatalf("balance = %d, want 6000", f.users.balance(testUser))
	}

	want := []string{
		"debit:200", "seat:SOLD", "reservation.create", "temp.delete",
		"seat:AVAILABLE", "reservation.cancel", "credit:5200",
	}
	got := f.jr.list()
	if len(got) != len(want) {
		t.Fatalf("actions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("action[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

// A failed compensating action gets exactly one attempt: the chain
// stops, later compensations never run and the saga fails with the
// compensation failure appended to the reason.
func TestCompensationFailureStopsChain(t *testing.T) {
	f := newFixture()
	f.payments.fail = true
	f.seats.failRelease = true

	saga := f.start(t, f.request())

	if saga.State != model.SagaFailed {
		t.Fatalf("state = %s, want FAILED", saga.State)
	}
	if !strings.Contains(saga.FailureReason, "compensation "+CompSeatRelease+" failed") {
		t.Fatalf("reason = %q, want compensation failure recorded", saga.FailureReason)
	}
	// No cancel and no refund after the aborted release.
	for _, a := range f.jr.list() {
		if a == "reservation.cancel" || strings.HasPrefix(a, "credit:") {
			t.Fatalf("compensation ran past the failure: %v", f.jr.list())
		}
	}
	if f.users.balance(testUser) != 800 {
		t.Fatalf("balance = %d, want 800 (debit stands, refund skipped)", f.users.balance(testUser))
	}
}

// Releasing a seat that is gone or already AVAILABLE succeeds, so a
// retried or raced compensation chain does not wedge.
func TestReleaseSeatIdempotent(t *testing.T) {
	f := newFixture()
	saga := &model.PaymentSaga{ID: "s", UserID: testUser, SeatID: testSeat}

	f.seats.seats[testSeat].Status = model.SeatAvailable
	if err := f.o.releaseSeat(context.Background(), saga); err != nil {
		t.Fatalf("release of AVAILABLE seat: %v", err)
	}

	saga.SeatID = 9999 // no such seat
	if err := f.o.releaseSeat(context.Background(), saga); err != nil {
		t.Fatalf("release of missing seat: %v", err)
	}

	types := f.pub.types()
	if len(types) != 2 || types[0] != notify.EventSeatReleased || types[1] != notify.EventSeatReleased {
		t.Fatalf("events = %v, want two seat_released", types)
	}
}

func TestCancelReservationSkipsWhenNeverCreated(t *testing.T) {
	f := newFixture()
	saga := &model.PaymentSaga{ID: "s", UserID: testUser}
	if err := f.o.cancelReservation(context.Background(), saga); err != nil {
		t.Fatalf("cancel with no reservation id: %v", err)
	}
	if actions := f.jr.list(); len(actions) != 0 {
		t.Fatalf("unexpected actions: %v", actions)
	}
}

func TestStartPaymentSagaRejectsNegativeAmounts(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	req := f.request()
	req.TotalAmount = -1
	if _, err := f.o.StartPaymentSaga(ctx, req); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("negative amount: got %v, want ErrInvalidAmount", err)
	}

	req = f.request()
	req.PointsToUse = -1
	if _, err := f.o.StartPaymentSaga(ctx, req); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("negative points: got %v, want ErrInvalidAmount", err)
	}
}

func TestAcknowledgeFailure(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	running := &model.PaymentSaga{ID: "running", State: model.SagaSeatConfirming, StartedAt: time.Now()}
	if err := f.store.Save(ctx, running); err != nil {
		t.Fatal(err)
	}
	if err := f.o.AcknowledgeFailure(ctx, "running"); !errors.Is(err, ErrSagaNotTerminal) {
		t.Fatalf("ack of running saga: got %v, want ErrSagaNotTerminal", err)
	}

	f.payments.fail = true
	saga := f.start(t, f.request())
	if err := f.o.AcknowledgeFailure(ctx, saga.ID); err != nil {
		t.Fatalf("ack of failed saga: %v", err)
	}
	if _, err := f.o.GetSaga(ctx, saga.ID); !errors.Is(err, repository.ErrSagaNotFound) {
		t.Fatalf("saga still readable after ack: %v", err)
	}
}

func TestRecoverStuckSagas(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	stale := &model.PaymentSaga{ID: "stale", State: model.SagaPointDeducting, StartedAt: time.Now().Add(-time.Hour)}
	fresh := &model.PaymentSaga{ID: "fresh", State: model.SagaSeatConfirming, StartedAt: time.Now()}
	done := &model.PaymentSaga{ID: "done", State: model.SagaCompleted, StartedAt: time.Now().Add(-2 * time.Hour)}
	for _, s := range []*model.PaymentSaga{stale, fresh, done} {
		if err := f.store.Save(ctx, s); err != nil {
			t.Fatal(err)
		}
	}

	n, err := f.o.RecoverStuckSagas(ctx, 30*time.Minute)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if n != 1 {
		t.Fatalf("swept %d, want 1", n)
	}
	got, err := f.o.GetSaga(ctx, "stale")
	if err != nil {
		t.Fatal(err)
	}
	if got.State != model.SagaFailed {
		t.Fatalf("stale saga state = %s, want FAILED", got.State)
	}
	got, err = f.o.GetSaga(ctx, "fresh")
	if err != nil {
		t.Fatal(err)
	}
	if got.State != model.SagaSeatConfirming {
		t.Fatalf("fresh saga swept: %s", got.State)
	}
}
