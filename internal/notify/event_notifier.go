package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/amezina/salonbook/internal/db"
	"github.com/amezina/salonbook/internal/model"
	"github.com/amezina/salonbook/internal/outbox"
)

const (
	EventBooked    = "booking.appointment.booked.v1"
	EventCancelled = "booking.appointment.cancelled.v1"
)

// EventNotifier writes booking events to the outbox table; a background
// publisher ships them to Kafka. Each event uses its own short transaction,
// after the reservation has already committed.
type EventNotifier struct {
	pool   *db.Pool
	repo   *outbox.Repository
	logger *slog.Logger
}

func NewEventNotifier(pool *db.Pool, repo *outbox.Repository, logger *slog.Logger) *EventNotifier {
	return &EventNotifier{pool: pool, repo: repo, logger: logger}
}

func (n *EventNotifier) BookingCreated(ctx context.Context, appt model.Appointment) {
	payload := map[string]any{
		"appointment_id": appt.ID,
		"user_id":        appt.UserID,
		"date":           appt.Date,
		"time":           appt.Time,
		"contact":        appt.Contact,
		"display_name":   appt.DisplayName,
		"created_at":     appt.CreatedAt.UTC().Format(time.RFC3339),
	}
	n.write(ctx, appt.ID, EventBooked, payload)
}

func (n *EventNotifier) BookingCancelled(ctx context.Context, appt model.Appointment, actorUserID int64) {
	payload := map[string]any{
		"appointment_id": appt.ID,
		"user_id":        appt.UserID,
		"actor_user_id":  actorUserID,
		"date":           appt.Date,
		"time":           appt.Time,
		"cancelled_at":   time.Now().UTC().Format(time.RFC3339),
	}
	n.write(ctx, appt.ID, EventCancelled, payload)
}

func (n *EventNotifier) write(ctx context.Context, appointmentID int64, eventType string, payload map[string]any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		n.logger.Error("failed to build notification payload", "event_type", eventType, "err", err)
		return
	}

	tx, err := n.pool.Begin(ctx)
	if err != nil {
		n.logger.Error("notification outbox tx failed", "event_type", eventType, "err", err)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := n.repo.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   strconv.FormatInt(appointmentID, 10),
		EventType:     eventType,
		Payload:       raw,
	}); err != nil {
		n.logger.Error("failed to enqueue notification", "event_type", eventType, "err", err)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		n.logger.Error("notification outbox commit failed", "event_type", eventType, "err", err)
	}
}
