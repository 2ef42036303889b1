package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/concert-ticketing/internal/model"
)

// QueueTokenStore persists queue tokens in Redis.  The layout:
//
//   queue:token:<id>            hash of token fields, retention TTL
//   queue:waiting:<concert>     zset of WAITING ids, score = entered-at (ms)
//   queue:active:<concert>      zset of ACTIVE ids, score = expires-at (ms)
//   queue:pair:<concert>:<user> id of the live token for the pair
//   queue:concerts              set of concerts with WAITING tokens
//
// Entered-at is stored as Unix milliseconds so it fits a zset score
// without precision loss; Redis orders equal scores lexically by
// member, which is exactly the deterministic tie-break the admission
// service needs.  The pair key exists only while the token is WAITING
// or ACTIVE, making the one-live-token-per-pair invariant a single
// GET.
type QueueTokenStore struct {
	rdb       *redis.Client
	retention time.Duration // how long terminal token hashes stick around
}

// NewQueueTokenStore returns a store bound to the given client.
// Retention bounds storage growth from finished tokens; 24h keeps a
// day of history for support queries.
func NewQueueTokenStore(rdb *redis.Client, retention time.Duration) *QueueTokenStore {
	if rdb == nil {
		panic("nil redis client passed to NewQueueTokenStore")
	}
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &QueueTokenStore{rdb: rdb, retention: retention}
}

func tokenKey(id string) string { return "queue:token:" + id }

func waitingKey(concertID uint64) string {
	return fmt.Sprintf("queue:waiting:%d", concertID)
}

func activeKey(concertID uint64) string {
	return fmt.Sprintf("queue:active:%d", concertID)
}

func pairKey(concertID, userID uint64) string {
	return fmt.Sprintf("queue:pair:%d:%d", concertID, userID)
}

const concertsKey = "queue:concerts"

// Save upserts the token hash and synchronizes the ordering indexes
// with the token's status.  All writes for one token go through a
// single pipeline so a concurrent reader never sees a token indexed
// under two statuses.
func (s *QueueTokenStore) Save(ctx context.Context, t *model.QueueToken) error {
	fields := map[string]interface{}{
		"user_id":    t.UserID,
		"concert_id": t.ConcertID,
		"status":     string(t.Status),
		"entered_at": t.EnteredAt.UTC().UnixMilli(),
	}
	if t.ExpiresAt != nil {
		fields["expires_at"] = t.ExpiresAt.UTC().UnixMilli()
	} else {
		fields["expires_at"] = int64(0)
	}

	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, tokenKey(t.ID), fields)
	pipe.Expire(ctx, tokenKey(t.ID), s.retention)

	switch t.Status {
	case model.TokenWaiting:
		pipe.ZAdd(ctx, waitingKey(t.ConcertID), redis.Z{
			Score:  float64(t.EnteredAt.UTC().UnixMilli()),
			Member: t.ID,
		})
		pipe.ZRem(ctx, activeKey(t.ConcertID), t.ID)
		pipe.Set(ctx, pairKey(t.ConcertID, t.UserID), t.ID, s.retention)
		pipe.SAdd(ctx, concertsKey, t.ConcertID)
	case model.TokenActive:
		pipe.ZRem(ctx, waitingKey(t.ConcertID), t.ID)
		pipe.ZAdd(ctx, activeKey(t.ConcertID), redis.Z{
			Score:  float64(t.ExpiresAt.UTC().UnixMilli()),
			Member: t.ID,
		})
		pipe.Set(ctx, pairKey(t.ConcertID, t.UserID), t.ID, s.retention)
	default: // terminal: drop from both indexes and free the pair
		pipe.ZRem(ctx, waitingKey(t.ConcertID), t.ID)
		pipe.ZRem(ctx, activeKey(t.ConcertID), t.ID)
		pipe.Del(ctx, pairKey(t.ConcertID, t.UserID))
	}

	_, err := pipe.Exec(ctx)
	return err
}

// SaveBatch persists several tokens in one round trip.  Used by batch
// activation, where up to a full admission batch flips status at once.
func (s *QueueTokenStore) SaveBatch(ctx context.Context, tokens []*model.QueueToken) error {
	for _, t := range tokens {
		if err := s.Save(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

// FindByID loads a token by id.  Returns ErrTokenNotFound when the
// hash is absent (never issued, or past retention).
func (s *QueueTokenStore) FindByID(ctx context.Context, id string) (*model.QueueToken, error) {
	vals, err := s.rdb.HGetAll(ctx, tokenKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, ErrTokenNotFound
	}
	return tokenFromHash(id, vals)
}

// FindLiveByUser returns the WAITING or ACTIVE token for the pair, or
// ErrTokenNotFound when the user has no live token for the concert.
func (s *QueueTokenStore) FindLiveByUser(ctx context.Context, concertID, userID uint64) (*model.QueueToken, error) {
	id, err := s.rdb.Get(ctx, pairKey(concertID, userID)).Result()
	if err == redis.Nil {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.FindByID(ctx, id)
}

// ListWaiting returns up to limit WAITING tokens for the concert in
// activation order: ascending entered-at, ties broken by id.
func (s *QueueTokenStore) ListWaiting(ctx context.Context, concertID uint64, limit int64) ([]*model.QueueToken, error) {
	if limit <= 0 {
		return nil, nil
	}
	ids, err := s.rdb.ZRange(ctx, waitingKey(concertID), 0, limit-1).Result()
	if err != nil {
		return nil, err
	}
	tokens := make([]*model.QueueToken, 0, len(ids))
	for _, id := range ids {
		t, err := s.FindByID(ctx, id)
		if err == ErrTokenNotFound {
			// Hash aged out from under the index; heal the zset.
			s.rdb.ZRem(ctx, waitingKey(concertID), id)
			continue
		}
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	return tokens, nil
}

// CountWaitingBefore counts WAITING tokens for the concert that are
// ahead of the given token: strictly earlier entered-at, plus tokens
// with the same entered-at and a lexically smaller id.
func (s *QueueTokenStore) CountWaitingBefore(ctx context.Context, concertID uint64, enteredAt time.Time, tokenID string) (int64, error) {
	ms := enteredAt.UTC().UnixMilli()
	key := waitingKey(concertID)

	earlier, err := s.rdb.ZCount(ctx, key, "-inf", fmt.Sprintf("(%d", ms)).Result()
	if err != nil {
		return 0, err
	}
	peers, err := s.rdb.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: strconv.FormatInt(ms, 10),
		Max: strconv.FormatInt(ms, 10),
	}).Result()
	if err != nil {
		return 0, err
	}
	for _, id := range peers {
		if id < tokenID {
			earlier++
		}
	}
	return earlier, nil
}

// CountActive returns the number of unexpired ACTIVE tokens for the
// concert.  Entries whose lease deadline has passed are pruned from
// the index first; their hashes are flipped to EXPIRED lazily by the
// admission service on next touch.
func (s *QueueTokenStore) CountActive(ctx context.Context, concertID uint64, now time.Time) (int64, error) {
	key := activeKey(concertID)
	if err := s.rdb.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(now.UTC().UnixMilli(), 10)).Err(); err != nil {
		return 0, err
	}
	return s.rdb.ZCard(ctx, key).Result()
}

// ConcertsWithWaiting lists concerts that have (or recently had)
// WAITING tokens.  The activation scheduler iterates this set; an
// entry whose waiting zset has drained is removed on the way out.
func (s *QueueTokenStore) ConcertsWithWaiting(ctx context.Context) ([]uint64, error) {
	members, err := s.rdb.SMembers(ctx, concertsKey).Result()
	if err != nil {
		return nil, err
	}
	var concerts []uint64
	for _, m := range members {
		id, err := strconv.ParseUint(m, 10, 64)
		if err != nil {
			continue
		}
		n, err := s.rdb.ZCard(ctx, waitingKey(id)).Result()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			s.rdb.SRem(ctx, concertsKey, m)
			continue
		}
		concerts = append(concerts, id)
	}
	return concerts, nil
}

func tokenFromHash(id string, vals map[string]string) (*model.QueueToken, error) {
	userID, err := strconv.ParseUint(vals["user_id"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("token %s: bad user_id: %w", id, err)
	}
	concertID, err := strconv.ParseUint(vals["concert_id"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("token %s: bad concert_id: %w", id, err)
	}
	enteredMs, err := strconv.ParseInt(vals["entered_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("token %s: bad entered_at: %w", id, err)
	}
	t := &model.QueueToken{
		ID:        id,
		UserID:    userID,
		ConcertID: concertID,
		Status:    model.QueueTokenStatus(vals["status"]),
		EnteredAt: time.UnixMilli(enteredMs).UTC(),
	}
	if expMs, err := strconv.ParseInt(vals["expires_at"], 10, 64); err == nil && expMs > 0 {
		exp := time.UnixMilli(expMs).UTC()
		t.ExpiresAt = &exp
	}
	return t, nil
}
