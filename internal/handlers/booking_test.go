package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/amezina/salonbook/internal/catalog"
	"github.com/amezina/salonbook/internal/engine"
	"github.com/amezina/salonbook/internal/model"
	"github.com/amezina/salonbook/internal/notify"
	"github.com/amezina/salonbook/internal/session"
	"github.com/amezina/salonbook/internal/storage"
)

type memStore struct {
	mu     sync.Mutex
	nextID int64
	appts  map[int64]model.Appointment
}

func (f *memStore) heldLocked(date, slotTime string) bool {
	for _, a := range f.appts {
		if a.Date == date && a.Time == slotTime {
			return true
		}
	}
	return false
}

func (f *memStore) IsSlotFree(_ context.Context, date, slotTime string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.heldLocked(date, slotTime), nil
}

func (f *memStore) FreeTimes(_ context.Context, date string, candidates []string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var free []string
	for _, t := range candidates {
		if !f.heldLocked(date, t) {
			free = append(free, t)
		}
	}
	return free, nil
}

func (f *memStore) Reserve(_ context.Context, userID int64, date, slotTime, contact, displayName string) (model.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.heldLocked(date, slotTime) {
		return model.Appointment{}, storage.ErrSlotTaken
	}
	f.nextID++
	appt := model.Appointment{ID: f.nextID, UserID: userID, Date: date, Time: slotTime, Contact: contact, DisplayName: displayName, CreatedAt: time.Now()}
	f.appts[appt.ID] = appt
	return appt, nil
}

func (f *memStore) ListByUser(_ context.Context, userID int64, onlyFuture bool, today string) ([]model.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Appointment
	for _, a := range f.appts {
		if a.UserID != userID || (onlyFuture && a.Date < today) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].Time < out[j].Time
	})
	return out, nil
}

func (f *memStore) GetOwned(_ context.Context, userID, appointmentID int64) (model.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.appts[appointmentID]
	if !ok || a.UserID != userID {
		return model.Appointment{}, storage.ErrNotFound
	}
	return a, nil
}

func (f *memStore) Cancel(_ context.Context, userID, appointmentID int64) (model.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.appts[appointmentID]
	if !ok || a.UserID != userID {
		return model.Appointment{}, storage.ErrNotFound
	}
	delete(f.appts, appointmentID)
	return a, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *memStore) {
	t.Helper()
	cat, err := catalog.New(6, nil)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	store := &memStore{appts: map[int64]model.Appointment{}}
	eng := engine.New(store, session.NewMemoryStore(), cat, notify.Noop{}, slog.Default()).
		WithClock(func() time.Time { return time.Date(2025, time.June, 1, 9, 0, 0, 0, time.UTC) })

	mux := http.NewServeMux()
	NewBookingHandler(eng, slog.Default()).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, store
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestBookingFlow_OverHTTP(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/v1/booking/start", map[string]any{"user_id": 42})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start: unexpected status %d", resp.StatusCode)
	}
	var startBody struct {
		Months []monthItem `json:"months"`
	}
	decodeBody(t, resp, &startBody)
	if len(startBody.Months) != 6 || startBody.Months[0].Month != 6 {
		t.Fatalf("unexpected months: %+v", startBody.Months)
	}

	resp = postJSON(t, srv.URL+"/api/v1/booking/month", map[string]any{"user_id": 42, "year": 2025, "month": 6})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("month: unexpected status %d", resp.StatusCode)
	}
	var dayBody struct {
		Days []int `json:"days"`
	}
	decodeBody(t, resp, &dayBody)
	if len(dayBody.Days) == 0 || dayBody.Days[0] != 1 {
		t.Fatalf("unexpected days: %v", dayBody.Days)
	}

	resp = postJSON(t, srv.URL+"/api/v1/booking/day", map[string]any{"user_id": 42, "date": "2025-06-10"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("day: unexpected status %d", resp.StatusCode)
	}
	var timeBody struct {
		Times []string `json:"times"`
	}
	decodeBody(t, resp, &timeBody)
	if len(timeBody.Times) != len(catalog.DefaultTimes) {
		t.Fatalf("expected all default times free, got %v", timeBody.Times)
	}

	resp = postJSON(t, srv.URL+"/api/v1/booking/time", map[string]any{"user_id": 42, "time": "14:00"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("time: unexpected status %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/api/v1/booking/contact", map[string]any{"user_id": 42, "contact": "+1555"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("contact: unexpected status %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/api/v1/booking/display-name", map[string]any{"user_id": 42, "display_name": "alice"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("display-name: unexpected status %d", resp.StatusCode)
	}
	var created struct {
		Appointment appointmentItem `json:"appointment"`
	}
	decodeBody(t, resp, &created)
	if created.Appointment.Date != "2025-06-10" || created.Appointment.Time != "14:00" {
		t.Fatalf("unexpected appointment: %+v", created.Appointment)
	}
	if created.Appointment.DisplayName != "@alice" {
		t.Fatalf("expected normalized handle, got %q", created.Appointment.DisplayName)
	}

	resp, err := http.Get(fmt.Sprintf("%s/api/v1/appointments?user_id=%d", srv.URL, 42))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list: unexpected status %d", resp.StatusCode)
	}
	var listBody struct {
		Appointments []appointmentItem `json:"appointments"`
	}
	decodeBody(t, resp, &listBody)
	if len(listBody.Appointments) != 1 {
		t.Fatalf("expected one appointment, got %d", len(listBody.Appointments))
	}
}

func TestSlotConflictMapsTo409(t *testing.T) {
	srv, store := newTestServer(t)

	if _, err := store.Reserve(context.Background(), 7, "2025-06-10", "14:00", "+777", ""); err != nil {
		t.Fatalf("seed reserve: %v", err)
	}

	_ = postJSON(t, srv.URL+"/api/v1/booking/start", map[string]any{"user_id": 42})
	_ = postJSON(t, srv.URL+"/api/v1/booking/month", map[string]any{"user_id": 42, "year": 2025, "month": 6})
	_ = postJSON(t, srv.URL+"/api/v1/booking/day", map[string]any{"user_id": 42, "date": "2025-06-10"})

	resp := postJSON(t, srv.URL+"/api/v1/booking/time", map[string]any{"user_id": 42, "time": "14:00"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("taken slot should map to 409, got %d", resp.StatusCode)
	}
}

func TestShowAppointment_OwnershipGated(t *testing.T) {
	srv, store := newTestServer(t)

	appt, err := store.Reserve(context.Background(), 1, "2025-06-10", "14:00", "+111", "@alice")
	if err != nil {
		t.Fatalf("seed reserve: %v", err)
	}

	resp, err := http.Get(fmt.Sprintf("%s/api/v1/appointments/show?user_id=1&appointment_id=%d", srv.URL, appt.ID))
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("owner show: unexpected status %d", resp.StatusCode)
	}
	var body struct {
		Appointment appointmentItem `json:"appointment"`
	}
	decodeBody(t, resp, &body)
	if body.Appointment.Date != "2025-06-10" || body.Appointment.DisplayName != "@alice" {
		t.Fatalf("unexpected appointment: %+v", body.Appointment)
	}

	resp, err = http.Get(fmt.Sprintf("%s/api/v1/appointments/show?user_id=2&appointment_id=%d", srv.URL, appt.ID))
	if err != nil {
		t.Fatalf("foreign show: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("foreign show should map to 404, got %d", resp.StatusCode)
	}
}

func TestCancelForeignAppointmentMapsTo404(t *testing.T) {
	srv, store := newTestServer(t)

	appt, err := store.Reserve(context.Background(), 1, "2025-06-10", "14:00", "+111", "")
	if err != nil {
		t.Fatalf("seed reserve: %v", err)
	}

	resp := postJSON(t, srv.URL+"/api/v1/appointments/cancel", map[string]any{"user_id": 2, "appointment_id": appt.ID})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("foreign cancel should map to 404, got %d", resp.StatusCode)
	}
}

func TestIntentOutOfOrderMapsTo409(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/v1/booking/day", map[string]any{"user_id": 42, "date": "2025-06-10"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("out-of-order intent should map to 409, got %d", resp.StatusCode)
	}
}

func TestBadInputsRejected(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/v1/booking/start", map[string]any{"user_id": 0})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing user_id should map to 400, got %d", resp.StatusCode)
	}

	resp = postJSON(t, srv.URL+"/api/v1/booking/month", map[string]any{"user_id": 42, "year": 2025, "month": 13})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("month 13 should map to 400, got %d", resp.StatusCode)
	}
}
