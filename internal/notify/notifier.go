// Package notify delivers booking lifecycle events to the operator and the
// client. Delivery is fire-and-forget from the scheduling engine: a failed
// notification is logged and never rolls back a reservation.
package notify

import (
	"context"

	"github.com/amezina/salonbook/internal/model"
)

type Notifier interface {
	BookingCreated(ctx context.Context, appt model.Appointment)
	BookingCancelled(ctx context.Context, appt model.Appointment, actorUserID int64)
}

// Multi fans one event out to several notifiers.
type Multi []Notifier

func (m Multi) BookingCreated(ctx context.Context, appt model.Appointment) {
	for _, n := range m {
		n.BookingCreated(ctx, appt)
	}
}

func (m Multi) BookingCancelled(ctx context.Context, appt model.Appointment, actorUserID int64) {
	for _, n := range m {
		n.BookingCancelled(ctx, appt, actorUserID)
	}
}

// Noop drops all events. Used when no dispatcher is configured.
type Noop struct{}

func (Noop) BookingCreated(context.Context, model.Appointment)          {}
func (Noop) BookingCancelled(context.Context, model.Appointment, int64) {}
