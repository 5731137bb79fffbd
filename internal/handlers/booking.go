// Package handlers exposes the booking intents over HTTP JSON. Each request
// is decoded once into a typed value; the handlers never parse delimited
// callback strings and never render conversational text.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/amezina/salonbook/internal/catalog"
	"github.com/amezina/salonbook/internal/engine"
	"github.com/amezina/salonbook/internal/model"
	"github.com/amezina/salonbook/internal/storage"
)

type BookingHandler struct {
	engine *engine.Engine
	logger *slog.Logger
}

func NewBookingHandler(eng *engine.Engine, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{engine: eng, logger: logger}
}

func (h *BookingHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/booking/start", h.Start)
	mux.HandleFunc("/api/v1/booking/month", h.SelectMonth)
	mux.HandleFunc("/api/v1/booking/day", h.SelectDay)
	mux.HandleFunc("/api/v1/booking/time", h.SelectTime)
	mux.HandleFunc("/api/v1/booking/contact", h.SubmitContact)
	mux.HandleFunc("/api/v1/booking/display-name", h.SubmitDisplayName)
	mux.HandleFunc("/api/v1/booking/back-months", h.BackToMonths)
	mux.HandleFunc("/api/v1/booking/back-days", h.BackToDays)
	mux.HandleFunc("/api/v1/booking/home", h.GoHome)
	mux.HandleFunc("/api/v1/appointments", h.List)
	mux.HandleFunc("/api/v1/appointments/show", h.Show)
	mux.HandleFunc("/api/v1/appointments/cancel", h.Cancel)
}

type userRequest struct {
	UserID int64 `json:"user_id"`
}

type selectMonthRequest struct {
	UserID int64 `json:"user_id"`
	Year   int   `json:"year"`
	Month  int   `json:"month"`
}

type selectDayRequest struct {
	UserID int64  `json:"user_id"`
	Date   string `json:"date"`
}

type selectTimeRequest struct {
	UserID int64  `json:"user_id"`
	Time   string `json:"time"`
}

type submitContactRequest struct {
	UserID  int64  `json:"user_id"`
	Contact string `json:"contact"`
}

type submitDisplayNameRequest struct {
	UserID      int64  `json:"user_id"`
	DisplayName string `json:"display_name"`
}

type cancelRequest struct {
	UserID        int64 `json:"user_id"`
	AppointmentID int64 `json:"appointment_id"`
}

type monthItem struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

type appointmentItem struct {
	AppointmentID int64  `json:"appointment_id"`
	Date          string `json:"date"`
	Time          string `json:"time"`
	Contact       string `json:"contact"`
	DisplayName   string `json:"display_name,omitempty"`
	CreatedAt     string `json:"created_at"`
}

func (h *BookingHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if !decodePost(w, r, &req) || !requireUser(w, req.UserID) {
		return
	}
	months, err := h.engine.StartBooking(r.Context(), req.UserID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"months": monthItems(months)})
}

func (h *BookingHandler) SelectMonth(w http.ResponseWriter, r *http.Request) {
	var req selectMonthRequest
	if !decodePost(w, r, &req) || !requireUser(w, req.UserID) {
		return
	}
	if req.Month < 1 || req.Month > 12 || req.Year < 1 {
		http.Error(w, "invalid year/month", http.StatusBadRequest)
		return
	}
	days, err := h.engine.SelectMonth(r.Context(), req.UserID, req.Year, time.Month(req.Month))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"days": days})
}

func (h *BookingHandler) SelectDay(w http.ResponseWriter, r *http.Request) {
	var req selectDayRequest
	if !decodePost(w, r, &req) || !requireUser(w, req.UserID) {
		return
	}
	if strings.TrimSpace(req.Date) == "" {
		http.Error(w, "date required", http.StatusBadRequest)
		return
	}
	times, err := h.engine.SelectDay(r.Context(), req.UserID, req.Date)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"times": times})
}

func (h *BookingHandler) SelectTime(w http.ResponseWriter, r *http.Request) {
	var req selectTimeRequest
	if !decodePost(w, r, &req) || !requireUser(w, req.UserID) {
		return
	}
	if strings.TrimSpace(req.Time) == "" {
		http.Error(w, "time required", http.StatusBadRequest)
		return
	}
	if err := h.engine.SelectTime(r.Context(), req.UserID, req.Time); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"next": "contact"})
}

func (h *BookingHandler) SubmitContact(w http.ResponseWriter, r *http.Request) {
	var req submitContactRequest
	if !decodePost(w, r, &req) || !requireUser(w, req.UserID) {
		return
	}
	if err := h.engine.SubmitContact(r.Context(), req.UserID, req.Contact); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"next": "display_name"})
}

func (h *BookingHandler) SubmitDisplayName(w http.ResponseWriter, r *http.Request) {
	var req submitDisplayNameRequest
	if !decodePost(w, r, &req) || !requireUser(w, req.UserID) {
		return
	}
	appt, err := h.engine.SubmitDisplayName(r.Context(), req.UserID, req.DisplayName)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"appointment": toItem(appt)})
}

func (h *BookingHandler) BackToMonths(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if !decodePost(w, r, &req) || !requireUser(w, req.UserID) {
		return
	}
	months, err := h.engine.BackToMonths(r.Context(), req.UserID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"months": monthItems(months)})
}

func (h *BookingHandler) BackToDays(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if !decodePost(w, r, &req) || !requireUser(w, req.UserID) {
		return
	}
	days, err := h.engine.BackToDays(r.Context(), req.UserID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"days": days})
}

func (h *BookingHandler) GoHome(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if !decodePost(w, r, &req) || !requireUser(w, req.UserID) {
		return
	}
	if err := h.engine.GoHome(r.Context(), req.UserID); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": "idle"})
}

func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	userID, err := strconv.ParseInt(strings.TrimSpace(r.URL.Query().Get("user_id")), 10, 64)
	if err != nil || userID <= 0 {
		http.Error(w, "user_id required", http.StatusBadRequest)
		return
	}
	appts, err := h.engine.MyAppointments(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	items := make([]appointmentItem, 0, len(appts))
	for _, a := range appts {
		items = append(items, toItem(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": items})
}

func (h *BookingHandler) Show(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	userID, err := strconv.ParseInt(strings.TrimSpace(q.Get("user_id")), 10, 64)
	if err != nil || userID <= 0 {
		http.Error(w, "user_id required", http.StatusBadRequest)
		return
	}
	apptID, err := strconv.ParseInt(strings.TrimSpace(q.Get("appointment_id")), 10, 64)
	if err != nil || apptID <= 0 {
		http.Error(w, "appointment_id required", http.StatusBadRequest)
		return
	}
	appt, err := h.engine.Appointment(r.Context(), userID, apptID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointment": toItem(appt)})
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if !decodePost(w, r, &req) || !requireUser(w, req.UserID) {
		return
	}
	if req.AppointmentID <= 0 {
		http.Error(w, "appointment_id required", http.StatusBadRequest)
		return
	}
	appt, err := h.engine.ConfirmCancel(r.Context(), req.UserID, req.AppointmentID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cancelled": toItem(appt)})
}

func (h *BookingHandler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrSlotTaken):
		http.Error(w, "slot already taken, pick another time", http.StatusConflict)
	case errors.Is(err, engine.ErrNoFreeTimes):
		http.Error(w, "no free times on that day", http.StatusConflict)
	case errors.Is(err, engine.ErrWrongState):
		http.Error(w, "booking step out of order, start over", http.StatusConflict)
	case errors.Is(err, storage.ErrNotFound):
		http.Error(w, "appointment not found", http.StatusNotFound)
	case errors.Is(err, engine.ErrIncompleteSession):
		http.Error(w, "booking session incomplete, start over", http.StatusUnprocessableEntity)
	case errors.Is(err, engine.ErrEmptyContact), errors.Is(err, engine.ErrNotOffered):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.logger.Error("booking operation failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func decodePost(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return false
	}
	return true
}

func requireUser(w http.ResponseWriter, userID int64) bool {
	if userID <= 0 {
		http.Error(w, "user_id required", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func monthItems(months []catalog.Month) []monthItem {
	items := make([]monthItem, 0, len(months))
	for _, m := range months {
		items = append(items, monthItem{Year: m.Year, Month: int(m.Month)})
	}
	return items
}

func toItem(a model.Appointment) appointmentItem {
	return appointmentItem{
		AppointmentID: a.ID,
		Date:          a.Date,
		Time:          a.Time,
		Contact:       a.Contact,
		DisplayName:   a.DisplayName,
		CreatedAt:     a.CreatedAt.UTC().Format(time.RFC3339),
	}
}
