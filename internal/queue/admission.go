package queue

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/concert-ticketing/internal/lock"
	"github.com/iliyamo/concert-ticketing/internal/model"
	"github.com/iliyamo/concert-ticketing/internal/notify"
	"github.com/iliyamo/concert-ticketing/internal/repository"
)

// TokenStore is the persistence port the admission service drives.
// The Redis implementation lives in the repository package; tests
// supply an in-memory one.  Lookups for missing tokens return
// repository.ErrTokenNotFound.
type TokenStore interface {
	Save(ctx context.Context, t *model.QueueToken) error
	SaveBatch(ctx context.Context, tokens []*model.QueueToken) error
	FindByID(ctx context.Context, id string) (*model.QueueToken, error)
	FindLiveByUser(ctx context.Context, concertID, userID uint64) (*model.QueueToken, error)
	ListWaiting(ctx context.Context, concertID uint64, limit int64) ([]*model.QueueToken, error)
	CountWaitingBefore(ctx context.Context, concertID uint64, enteredAt time.Time, tokenID string) (int64, error)
	CountActive(ctx context.Context, concertID uint64, now time.Time) (int64, error)
}

// Config carries the admission tunables.
type Config struct {
	MaxActivePerConcert int64            // admission window size
	ActiveTokenTTL      time.Duration    // lease granted on activation
	Policy              ThroughputPolicy // drives position→ETA estimates
}

// TokenIssue is the result of GenerateToken.
type TokenIssue struct {
	TokenID       string
	Status        model.QueueTokenStatus
	Position      int64 // 1-based queue position; 0 when ACTIVE
	EstimatedWait time.Duration
	ExpiresAt     *time.Time // lease deadline when issued directly ACTIVE
}

// Status is the result of GetQueueStatus.
type Status struct {
	TokenID       string
	Status        model.QueueTokenStatus
	Position      int64
	EstimatedWait time.Duration
	ExpiresAt     *time.Time
}

// AdmissionService owns the queue token lifecycle.  All operations
// that read-then-write the admission window for a concert run under
// that concert's activation lock so two instances can never
// over-admit past the configured maximum.
type AdmissionService struct {
	store TokenStore
	locks lock.Provider
	pub   notify.Publisher
	cfg   Config
	now   func() time.Time // injectable clock for tests
}

// NewAdmissionService constructs the service.  All dependencies must
// be non-nil; pass notify.Noop{} when no broker is configured.
func NewAdmissionService(store TokenStore, locks lock.Provider, pub notify.Publisher, cfg Config) *AdmissionService {
	if store == nil || locks == nil || pub == nil {
		panic("nil dependency passed to NewAdmissionService")
	}
	if cfg.MaxActivePerConcert <= 0 {
		cfg.MaxActivePerConcert = 100
	}
	if cfg.ActiveTokenTTL <= 0 {
		cfg.ActiveTokenTTL = 10 * time.Minute
	}
	if cfg.Policy.BatchSize <= 0 {
		cfg.Policy = DefaultThroughputPolicy
	}
	return &AdmissionService{
		store: store,
		locks: locks,
		pub:   pub,
		cfg:   cfg,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// GenerateToken issues a token for the (user, concert) pair.  If the
// user already holds a live token the call fails with
// ErrTokenAlreadyIssued.  When the admission window has room the
// token starts ACTIVE with a lease; otherwise it starts WAITING and
// the returned position and wait estimate tell the caller where they
// stand.  The whole decision runs under the concert's activation lock
// so the window check and the insert cannot interleave with a batch
// activation.  Status events are delivered after the lock is
// released; a slow broker must never stretch the critical section
// past the lease.
func (s *AdmissionService) GenerateToken(ctx context.Context, userID, concertID uint64) (*TokenIssue, error) {
	var issue *TokenIssue
	var events []notify.StatusChangedEvent
	cat := lock.QueueActivation
	err := s.locks.WithLock(ctx, cat.Key(concertID), cat.Wait, cat.Lease, func(ctx context.Context) error {
		now := s.now()

		existing, err := s.store.FindLiveByUser(ctx, concertID, userID)
		switch {
		case err == nil:
			if existing.Status == model.TokenActive && existing.ExpiredBy(now) {
				// The previous token's lease lapsed without being
				// touched; retire it and let the user rejoin.
				if ev := s.lazyExpire(ctx, existing); ev != nil {
					events = append(events, *ev)
				}
			} else {
				return ErrTokenAlreadyIssued
			}
		case !errors.Is(err, repository.ErrTokenNotFound):
			return err
		}

		t := &model.QueueToken{
			ID:        uuid.NewString(),
			UserID:    userID,
			ConcertID: concertID,
			Status:    model.TokenWaiting,
			EnteredAt: now,
		}

		active, err := s.store.CountActive(ctx, concertID, now)
		if err != nil {
			return err
		}
		if active < s.cfg.MaxActivePerConcert {
			exp := now.Add(s.cfg.ActiveTokenTTL)
			t.Status = model.TokenActive
			t.ExpiresAt = &exp
		}
		if err := s.store.Save(ctx, t); err != nil {
			return err
		}

		var position int64
		if t.Status == model.TokenWaiting {
			before, err := s.store.CountWaitingBefore(ctx, concertID, t.EnteredAt, t.ID)
			if err != nil {
				return err
			}
			position = before + 1
		}

		evType := notify.EventTokenIssued
		if t.Status == model.TokenActive {
			evType = notify.EventTokenActivated
		}
		events = append(events, notify.StatusChangedEvent{
			Type:       evType,
			TokenID:    t.ID,
			UserID:     userID,
			ConcertID:  concertID,
			Position:   position,
			OccurredAt: notify.Now(),
		})

		issue = &TokenIssue{
			TokenID:       t.ID,
			Status:        t.Status,
			Position:      position,
			EstimatedWait: s.cfg.Policy.EstimateWait(position),
			ExpiresAt:     t.ExpiresAt,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, ev := range events {
		s.publish(ctx, ev)
	}
	return issue, nil
}

// GetQueueStatus reports where a token stands.  WAITING tokens get a
// 1-based position (one plus the number of WAITING tokens for the
// same concert with strictly earlier entry, ties broken by id) and a
// wait estimate; ACTIVE tokens report position 0.  EXPIRED tokens
// fail with ErrInvalidTokenStatus, and an ACTIVE token whose lease
// has lapsed is retired on the spot and fails with ErrTokenExpired.
func (s *AdmissionService) GetQueueStatus(ctx context.Context, tokenID string) (*Status, error) {
	t, err := s.findToken(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	now := s.now()

	switch t.Status {
	case model.TokenExpired:
		return nil, ErrInvalidTokenStatus
	case model.TokenActive:
		if t.ExpiredBy(now) {
			if ev := s.lazyExpire(ctx, t); ev != nil {
				s.publish(ctx, *ev)
			}
			return nil, ErrTokenExpired
		}
		return &Status{TokenID: t.ID, Status: t.Status, ExpiresAt: t.ExpiresAt}, nil
	case model.TokenWaiting:
		before, err := s.store.CountWaitingBefore(ctx, t.ConcertID, t.EnteredAt, t.ID)
		if err != nil {
			return nil, err
		}
		position := before + 1
		return &Status{
			TokenID:       t.ID,
			Status:        t.Status,
			Position:      position,
			EstimatedWait: s.cfg.Policy.EstimateWait(position),
		}, nil
	default: // COMPLETED
		return &Status{TokenID: t.ID, Status: t.Status}, nil
	}
}

// ActivateWaitingTokens transitions up to count WAITING tokens for
// the concert to ACTIVE, in strict FIFO order on entered-at with ties
// broken by id, granting each the configured lease.  The caller is
// responsible for computing count so the admission window is not
// exceeded; RunActivationCycle measures capacity under the lock and
// is the path that upholds the window maximum.  Runs under the
// concert's activation lock so two batch runs cannot interleave.
func (s *AdmissionService) ActivateWaitingTokens(ctx context.Context, concertID uint64, count int) ([]*model.QueueToken, error) {
	if count <= 0 {
		return nil, nil
	}
	var activated []*model.QueueToken
	var events []notify.StatusChangedEvent
	cat := lock.QueueActivation
	err := s.locks.WithLock(ctx, cat.Key(concertID), cat.Wait, cat.Lease, func(ctx context.Context) error {
		var err error
		activated, events, err = s.activateLocked(ctx, concertID, count)
		return err
	})
	if err != nil {
		return nil, err
	}
	for _, ev := range events {
		s.publish(ctx, ev)
	}
	return activated, nil
}

// activateLocked selects and persists one activation batch.  The
// caller must hold the concert's activation lock.  The events are
// returned instead of published so delivery happens after the lock is
// released and a slow broker cannot outlive the lease.
func (s *AdmissionService) activateLocked(ctx context.Context, concertID uint64, count int) ([]*model.QueueToken, []notify.StatusChangedEvent, error) {
	waiting, err := s.store.ListWaiting(ctx, concertID, int64(count))
	if err != nil {
		return nil, nil, err
	}
	if len(waiting) == 0 {
		return nil, nil, nil
	}
	now := s.now()
	for _, t := range waiting {
		exp := now.Add(s.cfg.ActiveTokenTTL)
		t.Status = model.TokenActive
		t.ExpiresAt = &exp
	}
	if err := s.store.SaveBatch(ctx, waiting); err != nil {
		return nil, nil, err
	}
	events := make([]notify.StatusChangedEvent, 0, len(waiting)+1)
	for _, t := range waiting {
		events = append(events, notify.StatusChangedEvent{
			Type:       notify.EventTokenActivated,
			TokenID:    t.ID,
			UserID:     t.UserID,
			ConcertID:  concertID,
			OccurredAt: notify.Now(),
		})
	}
	events = append(events, notify.StatusChangedEvent{
		Type:       notify.EventQueueAdvanced,
		ConcertID:  concertID,
		Activated:  len(waiting),
		OccurredAt: notify.Now(),
	})
	return waiting, events, nil
}

// RunActivationCycle performs one admission batch for the concert:
// it measures the remaining window capacity, caps the batch at the
// throughput policy's batch size, and activates that many WAITING
// tokens.  The capacity count runs under the same activation lock as
// the batch itself; a join that activates a token directly cannot
// slip between the count and the selection, so the window maximum
// holds.  Returns the number activated.
func (s *AdmissionService) RunActivationCycle(ctx context.Context, concertID uint64) (int, error) {
	var activated []*model.QueueToken
	var events []notify.StatusChangedEvent
	cat := lock.QueueActivation
	err := s.locks.WithLock(ctx, cat.Key(concertID), cat.Wait, cat.Lease, func(ctx context.Context) error {
		active, err := s.store.CountActive(ctx, concertID, s.now())
		if err != nil {
			return err
		}
		room := s.cfg.MaxActivePerConcert - active
		if room <= 0 {
			return nil
		}
		count := s.cfg.Policy.BatchSize
		if int64(count) > room {
			count = int(room)
		}
		activated, events, err = s.activateLocked(ctx, concertID, count)
		return err
	})
	if err != nil {
		return 0, err
	}
	for _, ev := range events {
		s.publish(ctx, ev)
	}
	return len(activated), nil
}

// ValidateActiveToken checks that the token exists, is ACTIVE and
// has not outlived its lease.  Booking operations call this as a
// precondition guard before touching seat inventory.
func (s *AdmissionService) ValidateActiveToken(ctx context.Context, tokenID string) (*model.QueueToken, error) {
	t, err := s.findToken(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	return s.requireActive(ctx, t)
}

// ValidateActiveTokenForConcert is ValidateActiveToken plus a check
// that the token was issued for the given concert.  The concert check
// comes first: a token for the wrong concert fails with
// ErrConcertMismatch regardless of its status.
func (s *AdmissionService) ValidateActiveTokenForConcert(ctx context.Context, tokenID string, concertID uint64) (*model.QueueToken, error) {
	t, err := s.findToken(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	if t.ConcertID != concertID {
		return nil, ErrConcertMismatch
	}
	return s.requireActive(ctx, t)
}

// ExpireToken moves the token to EXPIRED.  Expiring a token that is
// already EXPIRED is a no-op; expiring a COMPLETED token fails, since
// terminal states are never overwritten.
func (s *AdmissionService) ExpireToken(ctx context.Context, tokenID, reason string) error {
	return s.finishToken(ctx, tokenID, model.TokenExpired, reason)
}

// CompleteToken moves the token to COMPLETED once the owning flow has
// finished.  Completing a COMPLETED token is a no-op; completing an
// EXPIRED token fails.
func (s *AdmissionService) CompleteToken(ctx context.Context, tokenID string) error {
	return s.finishToken(ctx, tokenID, model.TokenCompleted, "")
}

func (s *AdmissionService) finishToken(ctx context.Context, tokenID string, target model.QueueTokenStatus, reason string) error {
	t, err := s.findToken(ctx, tokenID)
	if err != nil {
		return err
	}
	if t.Status == target {
		return nil // already there, idempotent
	}
	if t.Status.Terminal() {
		return ErrInvalidTokenStatus
	}
	t.Status = target
	if err := s.store.Save(ctx, t); err != nil {
		return err
	}
	evType := notify.EventTokenExpired
	if target == model.TokenCompleted {
		evType = notify.EventTokenCompleted
	}
	s.publish(ctx, notify.StatusChangedEvent{
		Type:       evType,
		TokenID:    t.ID,
		UserID:     t.UserID,
		ConcertID:  t.ConcertID,
		Reason:     reason,
		OccurredAt: notify.Now(),
	})
	return nil
}

func (s *AdmissionService) requireActive(ctx context.Context, t *model.QueueToken) (*model.QueueToken, error) {
	if t.Status != model.TokenActive {
		return nil, ErrInvalidTokenStatus
	}
	if t.ExpiredBy(s.now()) {
		if ev := s.lazyExpire(ctx, t); ev != nil {
			s.publish(ctx, *ev)
		}
		return nil, ErrTokenExpired
	}
	return t, nil
}

func (s *AdmissionService) findToken(ctx context.Context, tokenID string) (*model.QueueToken, error) {
	t, err := s.store.FindByID(ctx, tokenID)
	if errors.Is(err, repository.ErrTokenNotFound) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// lazyExpire persists the EXPIRED transition for a token whose lease
// lapsed without anyone calling ExpireToken.  The expiry event is
// returned rather than published; callers inside a lock body hold it
// until the lock is released.  Returns nil when the save failed.
func (s *AdmissionService) lazyExpire(ctx context.Context, t *model.QueueToken) *notify.StatusChangedEvent {
	t.Status = model.TokenExpired
	if err := s.store.Save(ctx, t); err != nil {
		log.Printf("admission: persisting lazy expiry of token %s failed: %v", t.ID, err)
		return nil
	}
	return &notify.StatusChangedEvent{
		Type:       notify.EventTokenExpired,
		TokenID:    t.ID,
		UserID:     t.UserID,
		ConcertID:  t.ConcertID,
		Reason:     "lease lapsed",
		OccurredAt: notify.Now(),
	}
}

// publish delivers a status event; delivery failure is logged by the
// publisher and never fails the operation that produced the event.
func (s *AdmissionService) publish(ctx context.Context, ev notify.StatusChangedEvent) {
	_ = s.pub.Publish(ctx, ev)
}
