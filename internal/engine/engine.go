// Package engine orchestrates the slot catalog, the appointment store and
// the per-user booking session. It exposes one method per UI intent and
// returns plain result values; rendering belongs to the conversational layer.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/amezina/salonbook/internal/catalog"
	"github.com/amezina/salonbook/internal/model"
	"github.com/amezina/salonbook/internal/notify"
	"github.com/amezina/salonbook/internal/session"
	"github.com/amezina/salonbook/internal/storage"
)

var (
	// ErrWrongState means the intent does not apply to the session's
	// current step. Recoverable: the client restarts the flow.
	ErrWrongState = errors.New("booking step out of order")

	// ErrNotOffered rejects a month, day or time outside the catalog.
	ErrNotOffered = errors.New("slot not offered")

	// ErrNoFreeTimes rejects a day with no remaining free slots; the
	// session stays on day selection.
	ErrNoFreeTimes = errors.New("no free times on that day")

	// ErrEmptyContact keeps the session waiting for a usable contact.
	ErrEmptyContact = errors.New("contact must not be empty")

	// ErrIncompleteSession means required fields went missing before
	// finalize; the client must restart, never proceed with guesses.
	ErrIncompleteSession = errors.New("booking session incomplete")
)

// Store is the durable appointment boundary the engine drives. The
// production implementation is storage.AppointmentRepository; its
// ErrSlotTaken / ErrNotFound sentinels are part of this contract.
type Store interface {
	IsSlotFree(ctx context.Context, date, slotTime string) (bool, error)
	FreeTimes(ctx context.Context, date string, candidates []string) ([]string, error)
	Reserve(ctx context.Context, userID int64, date, slotTime, contact, displayName string) (model.Appointment, error)
	ListByUser(ctx context.Context, userID int64, onlyFuture bool, today string) ([]model.Appointment, error)
	GetOwned(ctx context.Context, userID, appointmentID int64) (model.Appointment, error)
	Cancel(ctx context.Context, userID, appointmentID int64) (model.Appointment, error)
}

type Engine struct {
	store    Store
	sessions session.Store
	catalog  *catalog.Catalog
	notifier notify.Notifier
	logger   *slog.Logger
	now      func() time.Time
}

func New(store Store, sessions session.Store, cat *catalog.Catalog, notifier notify.Notifier, logger *slog.Logger) *Engine {
	if notifier == nil {
		notifier = notify.Noop{}
	}
	return &Engine{
		store:    store,
		sessions: sessions,
		catalog:  cat,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock fixes the engine's notion of "today". Tests only.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

func (e *Engine) today() string {
	t := e.now()
	return catalog.FormatDate(t.Year(), t.Month(), t.Day())
}

// StartBooking resets the user's session and returns the offered months.
func (e *Engine) StartBooking(ctx context.Context, userID int64) ([]catalog.Month, error) {
	err := e.sessions.Update(ctx, userID, func(s *session.Session) error {
		s.Reset()
		s.State = session.StateChoosingMonth
		return nil
	})
	if err != nil {
		return nil, err
	}
	return e.catalog.Months(e.now()), nil
}

// SelectMonth stores the chosen (year, month) and returns its offerable days.
func (e *Engine) SelectMonth(ctx context.Context, userID int64, year int, month time.Month) ([]int, error) {
	if !e.catalog.Contains(e.now(), year, month) {
		return nil, ErrNotOffered
	}
	err := e.sessions.Update(ctx, userID, func(s *session.Session) error {
		if s.State != session.StateChoosingMonth {
			return ErrWrongState
		}
		s.Year = year
		s.Month = month
		s.State = session.StateChoosingDay
		return nil
	})
	if err != nil {
		return nil, err
	}
	return e.catalog.OfferableDays(year, month, e.now()), nil
}

// SelectDay stores the chosen date and returns its free times. A day with no
// free slots is rejected and the session stays on day selection.
func (e *Engine) SelectDay(ctx context.Context, userID int64, date string) ([]string, error) {
	var free []string
	err := e.sessions.Update(ctx, userID, func(s *session.Session) error {
		if s.State != session.StateChoosingDay {
			return ErrWrongState
		}
		d, err := catalog.ParseDate(date)
		if err != nil {
			return ErrNotOffered
		}
		if d.Year() != s.Year || d.Month() != s.Month {
			return ErrNotOffered
		}
		if date < e.today() {
			return ErrNotOffered
		}

		free, err = e.store.FreeTimes(ctx, date, e.catalog.Times())
		if err != nil {
			return fmt.Errorf("list free times: %w", err)
		}
		if len(free) == 0 {
			return ErrNoFreeTimes
		}
		s.Date = date
		s.State = session.StateChoosingTime
		return nil
	})
	if err != nil {
		return nil, err
	}
	return free, nil
}

// SelectTime stores the chosen time after a fresh availability check. The
// check defends against a stale times list; the reserve at finalize is still
// the authoritative race arbiter.
func (e *Engine) SelectTime(ctx context.Context, userID int64, slotTime string) error {
	return e.sessions.Update(ctx, userID, func(s *session.Session) error {
		if s.State != session.StateChoosingTime {
			return ErrWrongState
		}
		if !e.catalog.ValidTime(slotTime) {
			return ErrNotOffered
		}
		free, err := e.store.IsSlotFree(ctx, s.Date, slotTime)
		if err != nil {
			return fmt.Errorf("check slot: %w", err)
		}
		if !free {
			return storage.ErrSlotTaken
		}
		s.Time = slotTime
		s.State = session.StateAwaitingContact
		return nil
	})
}

// SubmitContact stores a non-empty contact string. Empty input leaves the
// session unchanged so the UI can re-prompt.
func (e *Engine) SubmitContact(ctx context.Context, userID int64, contact string) error {
	return e.sessions.Update(ctx, userID, func(s *session.Session) error {
		if s.State != session.StateAwaitingContact {
			return ErrWrongState
		}
		contact = trimmed(contact)
		if contact == "" {
			return ErrEmptyContact
		}
		s.Contact = contact
		s.State = session.StateAwaitingDisplayName
		return nil
	})
}

// SubmitDisplayName finalizes the booking: it validates the accumulated
// session, attempts the atomic reservation and emits notifications on
// success. The session is cleared regardless of outcome.
func (e *Engine) SubmitDisplayName(ctx context.Context, userID int64, displayName string) (model.Appointment, error) {
	var snap session.Session
	err := e.sessions.Update(ctx, userID, func(s *session.Session) error {
		if s.State != session.StateAwaitingDisplayName {
			return ErrWrongState
		}
		snap = *s
		s.Reset()
		return nil
	})
	if err != nil {
		return model.Appointment{}, err
	}

	if snap.Date == "" || snap.Time == "" || snap.Contact == "" {
		return model.Appointment{}, ErrIncompleteSession
	}

	appt, err := e.store.Reserve(ctx, userID, snap.Date, snap.Time, snap.Contact, NormalizeHandle(displayName))
	if err != nil {
		if errors.Is(err, storage.ErrSlotTaken) {
			return model.Appointment{}, storage.ErrSlotTaken
		}
		return model.Appointment{}, fmt.Errorf("reserve slot: %w", err)
	}

	// Delivery failures never roll back the reservation.
	e.notifier.BookingCreated(ctx, appt)
	return appt, nil
}

// BackToMonths discards day/time selections and re-enters month choice.
func (e *Engine) BackToMonths(ctx context.Context, userID int64) ([]catalog.Month, error) {
	err := e.sessions.Update(ctx, userID, func(s *session.Session) error {
		switch s.State {
		case session.StateChoosingDay, session.StateChoosingTime:
		default:
			return ErrWrongState
		}
		s.Reset()
		s.State = session.StateChoosingMonth
		return nil
	})
	if err != nil {
		return nil, err
	}
	return e.catalog.Months(e.now()), nil
}

// BackToDays keeps the chosen month, discards the day and time, and
// re-enters day choice.
func (e *Engine) BackToDays(ctx context.Context, userID int64) ([]int, error) {
	var year int
	var month time.Month
	err := e.sessions.Update(ctx, userID, func(s *session.Session) error {
		if s.State != session.StateChoosingTime {
			return ErrWrongState
		}
		s.Date = ""
		s.Time = ""
		s.State = session.StateChoosingDay
		year, month = s.Year, s.Month
		return nil
	})
	if err != nil {
		return nil, err
	}
	return e.catalog.OfferableDays(year, month, e.now()), nil
}

// MyAppointments lists the user's future appointments ordered by slot.
func (e *Engine) MyAppointments(ctx context.Context, userID int64) ([]model.Appointment, error) {
	return e.store.ListByUser(ctx, userID, true, e.today())
}

// CancelList returns the appointments the user may cancel.
func (e *Engine) CancelList(ctx context.Context, userID int64) ([]model.Appointment, error) {
	return e.MyAppointments(ctx, userID)
}

// Appointment fetches a single appointment, gated on ownership.
func (e *Engine) Appointment(ctx context.Context, userID, appointmentID int64) (model.Appointment, error) {
	appt, err := e.store.GetOwned(ctx, userID, appointmentID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return model.Appointment{}, storage.ErrNotFound
		}
		return model.Appointment{}, fmt.Errorf("get appointment: %w", err)
	}
	return appt, nil
}

// ConfirmCancel deletes the appointment if owned by userID and notifies the
// operator. Missing and foreign appointments both report ErrNotFound.
func (e *Engine) ConfirmCancel(ctx context.Context, userID, appointmentID int64) (model.Appointment, error) {
	appt, err := e.store.Cancel(ctx, userID, appointmentID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return model.Appointment{}, storage.ErrNotFound
		}
		return model.Appointment{}, fmt.Errorf("cancel appointment: %w", err)
	}
	e.notifier.BookingCancelled(ctx, appt, userID)
	return appt, nil
}

// GoHome unconditionally resets the user's session from any state.
func (e *Engine) GoHome(ctx context.Context, userID int64) error {
	return e.sessions.Clear(ctx, userID)
}
