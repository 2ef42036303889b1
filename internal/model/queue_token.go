package model

import "time"

// QueueTokenStatus enumerates the lifecycle states of a queue token.
// A token starts WAITING (or ACTIVE when the admission window has
// room), becomes ACTIVE through batch activation, and ends in one of
// the two terminal states.  Terminal tokens are never resurrected.
type QueueTokenStatus string

const (
	TokenWaiting   QueueTokenStatus = "WAITING"   // queued, not yet admitted
	TokenActive    QueueTokenStatus = "ACTIVE"    // admitted into the booking flow
	TokenExpired   QueueTokenStatus = "EXPIRED"   // lapsed by TTL or expired explicitly
	TokenCompleted QueueTokenStatus = "COMPLETED" // owning flow finished successfully
)

// Terminal reports whether the status admits no further transition.
func (s QueueTokenStatus) Terminal() bool {
	return s == TokenExpired || s == TokenCompleted
}

// QueueToken is a user's place in the virtual waiting room for one
// concert.  At most one WAITING-or-ACTIVE token may exist per
// (user, concert) pair; the admission service enforces this before
// creating a new one.
//
// Fields:
//  ID        – opaque unique identifier returned to the client.
//  UserID    – user the token was issued to.
//  ConcertID – concert whose admission window the token competes for.
//  Status    – current lifecycle state.
//  EnteredAt – queue ordering key; activation is FIFO on this value
//              with ties broken by ID in lexical order.
//  ExpiresAt – set on activation; nil while WAITING.
type QueueToken struct {
	ID        string           // queue token identifier (UUID)
	UserID    uint64           // owning user
	ConcertID uint64           // concert being queued for
	Status    QueueTokenStatus // WAITING / ACTIVE / EXPIRED / COMPLETED
	EnteredAt time.Time        // when the token entered the queue (UTC)
	ExpiresAt *time.Time       // activation lease deadline (nil until ACTIVE)
}

// ExpiredBy reports whether an ACTIVE token's lease has lapsed at the
// given instant.  Tokens without a deadline never lapse implicitly.
func (t *QueueToken) ExpiredBy(now time.Time) bool {
	return t.ExpiresAt != nil && !now.Before(*t.ExpiresAt)
}
