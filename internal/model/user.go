package model

import "time"

// User carries the fields of the users table the core cares about:
// identity and the point balance the payment saga debits and refunds.
//
// Fields:
//  ID           – primary key identifier.
//  Name         – display name.
//  PointBalance – current point balance in cents.
//  UpdatedAt    – last balance change timestamp.
type User struct {
	ID           uint64    // users.id
	Name         string    // users.name
	PointBalance int64     // users.point_balance
	UpdatedAt    time.Time // users.updated_at
}
