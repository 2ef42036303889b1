package queue

import "errors"

// ErrTokenNotFound is returned by every operation that looks up a
// token id that does not exist.
var ErrTokenNotFound = errors.New("queue token not found")

// ErrTokenAlreadyIssued is returned by GenerateToken when the user
// already holds a WAITING or ACTIVE token for the concert.
var ErrTokenAlreadyIssued = errors.New("user already has a live token for this concert")

// ErrInvalidTokenStatus is returned when an operation requires a
// token status the token is not in (e.g. validating a WAITING token,
// or querying status of an EXPIRED one).
var ErrInvalidTokenStatus = errors.New("token is not in a valid status for this operation")

// ErrTokenExpired is returned when an ACTIVE token's lease has
// lapsed.  The token is persisted as EXPIRED as a side effect.
var ErrTokenExpired = errors.New("token has expired")

// ErrConcertMismatch is returned by the concert-scoped validation
// when the token belongs to a different concert, regardless of the
// token's status.
var ErrConcertMismatch = errors.New("token belongs to a different concert")
