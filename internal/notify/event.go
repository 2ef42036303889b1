// Package notify defines the status-change events the core publishes
// to interested parties and the fire-and-forget publisher that
// delivers them.  Delivery failure never fails the operation that
// produced the event.
package notify

import "time"

// Event types.  Queue events describe token lifecycle changes; saga
// events describe payment progress and terminal outcomes.
const (
	EventTokenIssued          = "queue.token_issued"
	EventTokenActivated       = "queue.token_activated"
	EventTokenExpired         = "queue.token_expired"
	EventTokenCompleted       = "queue.token_completed"
	EventQueueAdvanced        = "queue.positions_advanced"
	EventSeatConfirmed        = "saga.seat_confirmed"
	EventSeatReleased         = "saga.seat_released"
	EventReservationConfirmed = "saga.reservation_confirmed"
	EventReservationCancelled = "saga.reservation_cancelled"
	EventPointsRefunded       = "saga.points_refunded"
	EventSagaCompleted        = "saga.completed"
	EventSagaFailed           = "saga.failed"
)

// StatusChangedEvent is the single payload published for every
// status change.  Only the fields relevant to the event type are
// populated; consumers dispatch on Type.  It carries enough context
// for downstream logging, push notification or analytics without a
// read back into the primary stores.
type StatusChangedEvent struct {
	Type          string `json:"type"`
	TokenID       string `json:"token_id,omitempty"`
	SagaID        string `json:"saga_id,omitempty"`
	UserID        uint64 `json:"user_id,omitempty"`
	ConcertID     uint64 `json:"concert_id,omitempty"`
	SeatID        uint64 `json:"seat_id,omitempty"`
	ReservationID uint64 `json:"reservation_id,omitempty"`
	Position      int64  `json:"position,omitempty"`
	Activated     int    `json:"activated,omitempty"`
	AmountCents   int64  `json:"amount_cents,omitempty"`
	Status        string `json:"status,omitempty"`
	Reason        string `json:"reason,omitempty"`
	OccurredAt    string `json:"occurred_at"`
}

// Now returns the event timestamp format used across publishers.
func Now() string { return time.Now().UTC().Format(time.RFC3339) }
