// Package repository implements the persistence ports of the core:
// the Redis-backed queue token and saga context stores, and the MySQL
// repositories for the downstream booking resources (seats,
// reservations, users, payments).  This file defines the sentinel
// errors shared across repositories so higher layers can distinguish
// failure kinds with errors.Is.
package repository

import "errors"

// ErrTokenNotFound is returned when a queue token lookup finds no
// record for the given id or (user, concert) pair.
var ErrTokenNotFound = errors.New("queue token not found")

// ErrSagaNotFound is returned when a saga context lookup finds no
// record, either because the saga never existed or because its
// retention TTL has lapsed.
var ErrSagaNotFound = errors.New("saga context not found")

// ErrSeatNotFound is returned when a seat lookup finds no row.
var ErrSeatNotFound = errors.New("seat not found")

// ErrReservationNotFound is returned when a reservation lookup finds
// no row.
var ErrReservationNotFound = errors.New("reservation not found")

// ErrTempReservationNotFound is returned when no active temporary
// reservation exists for the requested (user, seat) pair.
var ErrTempReservationNotFound = errors.New("temporary reservation not found")

// ErrUserNotFound is returned when a user lookup finds no row.
var ErrUserNotFound = errors.New("user not found")

// ErrInsufficientPoints is returned when a point debit would take the
// user's balance below zero.  The balance is left untouched.
var ErrInsufficientPoints = errors.New("insufficient point balance")
