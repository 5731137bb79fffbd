package model

import "time"

// Appointment is a durable booking of a single (date, time) slot by one user.
// Rows are immutable after creation; cancellation deletes them.
type Appointment struct {
	ID          int64
	UserID      int64
	Date        string // ISO YYYY-MM-DD
	Time        string // HH:MM from the configured daily slot list
	Contact     string
	DisplayName string // empty means not provided
	CreatedAt   time.Time
}
