package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/amezina/salonbook/internal/db"
	"github.com/amezina/salonbook/internal/model"
)

// ErrSlotTaken is returned by Reserve when another appointment already holds
// the (date, time) slot. The unique constraint on the table is what makes
// this race-safe; Reserve never pre-checks.
var ErrSlotTaken = errors.New("slot already taken")

// ErrNotFound covers both a missing appointment and one owned by a different
// user, so callers cannot distinguish the two.
var ErrNotFound = errors.New("appointment not found")

type AppointmentRepository struct {
	pool *db.Pool
}

func NewAppointmentRepository(pool *db.Pool) *AppointmentRepository {
	return &AppointmentRepository{pool: pool}
}

// EnsureSchema creates the appointments table on startup. The unique
// constraint over (date, time) enforces single occupancy per slot.
func (r *AppointmentRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS appointments (
			id bigserial PRIMARY KEY,
			user_id bigint NOT NULL,
			date text NOT NULL,
			time text NOT NULL,
			contact text NOT NULL,
			display_name text,
			created_at timestamptz NOT NULL DEFAULT now(),
			UNIQUE (date, time)
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure appointments schema: %w", err)
	}
	return nil
}

// IsSlotFree is advisory only: a slot reported free can be taken before the
// caller reserves it. Reserve is the authoritative check.
func (r *AppointmentRepository) IsSlotFree(ctx context.Context, date, slotTime string) (bool, error) {
	var one int
	err := r.pool.QueryRow(ctx, `
		SELECT 1 FROM appointments WHERE date = $1 AND time = $2 LIMIT 1
	`, date, slotTime).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return false, nil
}

// FreeTimes filters candidates down to slots with no appointment on the
// given date, preserving candidate order.
func (r *AppointmentRepository) FreeTimes(ctx context.Context, date string, candidates []string) ([]string, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT time FROM appointments WHERE date = $1 AND time = ANY($2)
	`, date, candidates)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	taken := make(map[string]struct{})
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		taken[t] = struct{}{}
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return filterFree(candidates, taken), nil
}

// Reserve atomically creates the appointment. Two concurrent calls for the
// same slot cannot both succeed: the losing insert hits the unique
// constraint and maps to ErrSlotTaken.
func (r *AppointmentRepository) Reserve(ctx context.Context, userID int64, date, slotTime, contact, displayName string) (model.Appointment, error) {
	appt := model.Appointment{
		UserID:      userID,
		Date:        date,
		Time:        slotTime,
		Contact:     contact,
		DisplayName: displayName,
	}

	var stored *string
	if displayName != "" {
		stored = &displayName
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (user_id, date, time, contact, display_name)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, userID, date, slotTime, contact, stored).Scan(&appt.ID, &appt.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return model.Appointment{}, ErrSlotTaken
		}
		return model.Appointment{}, err
	}
	return appt, nil
}

// ListByUser returns the user's appointments ordered by (date, time).
// With onlyFuture set, dates before today are skipped.
func (r *AppointmentRepository) ListByUser(ctx context.Context, userID int64, onlyFuture bool, today string) ([]model.Appointment, error) {
	query := `
		SELECT id, user_id, date, time, contact, COALESCE(display_name, ''), created_at
		FROM appointments
		WHERE user_id = $1`
	args := []any{userID}
	if onlyFuture {
		query += ` AND date >= $2`
		args = append(args, today)
	}
	query += ` ORDER BY date ASC, time ASC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		var appt model.Appointment
		if err := rows.Scan(&appt.ID, &appt.UserID, &appt.Date, &appt.Time, &appt.Contact, &appt.DisplayName, &appt.CreatedAt); err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

// GetOwned fetches an appointment only if it belongs to userID.
func (r *AppointmentRepository) GetOwned(ctx context.Context, userID, appointmentID int64) (model.Appointment, error) {
	var appt model.Appointment
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, date, time, contact, COALESCE(display_name, ''), created_at
		FROM appointments
		WHERE id = $1 AND user_id = $2
	`, appointmentID, userID).Scan(&appt.ID, &appt.UserID, &appt.Date, &appt.Time, &appt.Contact, &appt.DisplayName, &appt.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Appointment{}, ErrNotFound
	}
	if err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

// Cancel deletes the appointment if owned by userID and returns the deleted
// record. A single ownership-checked DELETE keeps the operation atomic and
// idempotent: a repeat call finds no row and reports ErrNotFound.
func (r *AppointmentRepository) Cancel(ctx context.Context, userID, appointmentID int64) (model.Appointment, error) {
	var appt model.Appointment
	err := r.pool.QueryRow(ctx, `
		DELETE FROM appointments
		WHERE id = $1 AND user_id = $2
		RETURNING id, user_id, date, time, contact, COALESCE(display_name, ''), created_at
	`, appointmentID, userID).Scan(&appt.ID, &appt.UserID, &appt.Date, &appt.Time, &appt.Contact, &appt.DisplayName, &appt.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Appointment{}, ErrNotFound
	}
	if err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

func filterFree(candidates []string, taken map[string]struct{}) []string {
	free := make([]string, 0, len(candidates))
	for _, t := range candidates {
		if _, ok := taken[t]; !ok {
			free = append(free, t)
		}
	}
	return free
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
