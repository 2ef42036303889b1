package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/concert-ticketing/internal/model"
)

// SagaContextStore persists in-flight payment saga contexts in Redis:
//
//   saga:ctx:<id>   JSON document, TTL-bounded
//   saga:open       set of non-terminal saga ids
//
// Every save refreshes the TTL, so even a saga abandoned mid-flight
// (orchestrator crash) disappears after the retention window instead
// of accumulating forever.  The open set supports the recovery sweep
// that looks for sagas stuck in a non-terminal state.
type SagaContextStore struct {
	rdb *redis.Client
	ttl time.Duration
}

const sagaOpenKey = "saga:open"

// NewSagaContextStore returns a store with the given retention TTL.
// Zero or negative falls back to 24 hours.
func NewSagaContextStore(rdb *redis.Client, ttl time.Duration) *SagaContextStore {
	if rdb == nil {
		panic("nil redis client passed to NewSagaContextStore")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SagaContextStore{rdb: rdb, ttl: ttl}
}

func sagaKey(id string) string { return "saga:ctx:" + id }

// Save persists the saga context and keeps the open-set membership in
// step with the saga's state: non-terminal sagas are indexed, terminal
// ones are dropped from the index but keep their document until the
// TTL lapses (the archive the status endpoint reads).
func (s *SagaContextStore) Save(ctx context.Context, saga *model.PaymentSaga) error {
	body, err := json.Marshal(saga)
	if err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, sagaKey(saga.ID), body, s.ttl)
	if saga.State.Terminal() {
		pipe.SRem(ctx, sagaOpenKey, saga.ID)
	} else {
		pipe.SAdd(ctx, sagaOpenKey, saga.ID)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// FindByID loads a saga context.  Returns ErrSagaNotFound when the
// document is absent or already past retention.
func (s *SagaContextStore) FindByID(ctx context.Context, id string) (*model.PaymentSaga, error) {
	body, err := s.rdb.Get(ctx, sagaKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrSagaNotFound
	}
	if err != nil {
		return nil, err
	}
	var saga model.PaymentSaga
	if err := json.Unmarshal(body, &saga); err != nil {
		return nil, err
	}
	return &saga, nil
}

// Delete removes the saga document and its open-set entry.
func (s *SagaContextStore) Delete(ctx context.Context, id string) error {
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, sagaKey(id))
	pipe.SRem(ctx, sagaOpenKey, id)
	_, err := pipe.Exec(ctx)
	return err
}

// ListNonTerminal returns every saga currently indexed as open.  Ids
// whose documents have aged out are unindexed on the way through.
func (s *SagaContextStore) ListNonTerminal(ctx context.Context) ([]*model.PaymentSaga, error) {
	ids, err := s.rdb.SMembers(ctx, sagaOpenKey).Result()
	if err != nil {
		return nil, err
	}
	var sagas []*model.PaymentSaga
	for _, id := range ids {
		saga, err := s.FindByID(ctx, id)
		if err == ErrSagaNotFound {
			s.rdb.SRem(ctx, sagaOpenKey, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		sagas = append(sagas, saga)
	}
	return sagas, nil
}
