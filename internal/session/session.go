// Package session holds the ephemeral per-user booking state accumulated
// across conversation steps. Sessions are not durable: a restart loses
// in-flight bookings, never confirmed appointments.
package session

import (
	"context"
	"time"
)

type State string

const (
	StateIdle                State = "idle"
	StateChoosingMonth       State = "choosing_month"
	StateChoosingDay         State = "choosing_day"
	StateChoosingTime        State = "choosing_time"
	StateAwaitingContact     State = "awaiting_contact"
	StateAwaitingDisplayName State = "awaiting_display_name"
)

type Session struct {
	UserID      int64      `json:"user_id"`
	State       State      `json:"state"`
	Year        int        `json:"year,omitempty"`
	Month       time.Month `json:"month,omitempty"`
	Date        string     `json:"date,omitempty"`
	Time        string     `json:"time,omitempty"`
	Contact     string     `json:"contact,omitempty"`
	DisplayName string     `json:"display_name,omitempty"`
}

// Reset returns the session to idle and discards accumulated fields.
func (s *Session) Reset() {
	*s = Session{UserID: s.UserID, State: StateIdle}
}

// Store owns session lifecycle. Update serializes access per user: no two
// concurrent mutations ever see the same user's session simultaneously.
type Store interface {
	// Update loads (or creates, in StateIdle) the user's session, applies
	// fn under a per-user lock, and persists the result unless fn errors.
	Update(ctx context.Context, userID int64, fn func(*Session) error) error
	Get(ctx context.Context, userID int64) (Session, error)
	Clear(ctx context.Context, userID int64) error
}
