package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/slotbook/slotbook/internal/booking"
	"github.com/slotbook/slotbook/internal/notify"
	"github.com/slotbook/slotbook/internal/schedule"
)

// BookingService is the slice of the booking service the HTTP layer calls.
type BookingService interface {
	AvailableSlots(ctx context.Context, locationID, resourceID, date string, durationMinutes int) ([]schedule.Interval, schedule.Reason, error)
	Create(ctx context.Context, req booking.CreateRequest) (booking.Appointment, error)
	Cancel(ctx context.Context, id string) (booking.Appointment, error)
	Reschedule(ctx context.Context, id string, date string, startMinute, endMinute int) (booking.Appointment, error)
	Confirm(ctx context.Context, id string) (booking.Appointment, error)
	Complete(ctx context.Context, id string) (booking.Appointment, error)
	Get(ctx context.Context, id string) (booking.Appointment, error)
	ListByLocationDate(ctx context.Context, locationID, date string) ([]booking.Appointment, error)
}

// NotificationHistory exposes the delivery ledger for one appointment.
type NotificationHistory interface {
	ListByAppointment(ctx context.Context, appointmentID string) ([]notify.Record, error)
}

type AppointmentHandler struct {
	svc    BookingService
	ledger NotificationHistory
	logger *slog.Logger
}

func NewAppointmentHandler(svc BookingService, ledger NotificationHistory, logger *slog.Logger) *AppointmentHandler {
	return &AppointmentHandler{svc: svc, ledger: ledger, logger: logger}
}

func (h *AppointmentHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/v1/slots", h.Slots)
	mux.HandleFunc("/v1/appointments", h.appointments)
	mux.HandleFunc("/v1/appointments/cancel", h.Cancel)
	mux.HandleFunc("/v1/appointments/reschedule", h.Reschedule)
	mux.HandleFunc("/v1/appointments/confirm", h.Confirm)
	mux.HandleFunc("/v1/appointments/complete", h.Complete)
	mux.HandleFunc("/v1/appointments/notifications", h.Notifications)
}

type createAppointmentRequest struct {
	LocationID  string   `json:"location_id"`
	ResourceID  string   `json:"resource_id"`
	ClientID    string   `json:"client_id"`
	Date        string   `json:"date"`
	StartMinute int      `json:"start_minute"`
	EndMinute   int      `json:"end_minute"`
	ServiceIDs  []string `json:"service_ids"`
	TotalValue  int64    `json:"total_value"`
}

type appointmentResponse struct {
	AppointmentID string   `json:"appointment_id"`
	LocationID    string   `json:"location_id"`
	ResourceID    string   `json:"resource_id"`
	ClientID      string   `json:"client_id"`
	Date          string   `json:"date"`
	StartMinute   int      `json:"start_minute"`
	EndMinute     int      `json:"end_minute"`
	StartTime     string   `json:"start_time"`
	EndTime       string   `json:"end_time"`
	Status        string   `json:"status"`
	ServiceIDs    []string `json:"service_ids,omitempty"`
	TotalValue    int64    `json:"total_value"`
	CancelledAt   string   `json:"cancelled_at,omitempty"`
	CreatedAt     string   `json:"created_at"`
}

type slotItem struct {
	Date        string `json:"date"`
	StartMinute int    `json:"start_minute"`
	EndMinute   int    `json:"end_minute"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
}

type slotsResponse struct {
	Reason string     `json:"reason"`
	Slots  []slotItem `json:"slots"`
}

type idRequest struct {
	AppointmentID string `json:"appointment_id"`
}

type rescheduleRequest struct {
	AppointmentID string `json:"appointment_id"`
	Date          string `json:"date"`
	StartMinute   int    `json:"start_minute"`
	EndMinute     int    `json:"end_minute"`
}

type notificationItem struct {
	ID                string `json:"id"`
	Kind              string `json:"kind"`
	Status            string `json:"status"`
	Attempts          int    `json:"attempts"`
	TargetPhone       string `json:"target_phone"`
	ProviderMessageID string `json:"provider_message_id,omitempty"`
	ErrorDetail       string `json:"error_detail,omitempty"`
	SentAt            string `json:"sent_at,omitempty"`
	CreatedAt         string `json:"created_at"`
}

func (h *AppointmentHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	locationID := strings.TrimSpace(q.Get("location_id"))
	resourceID := strings.TrimSpace(q.Get("resource_id"))
	date := strings.TrimSpace(q.Get("date"))
	if locationID == "" || resourceID == "" || date == "" {
		http.Error(w, "location_id, resource_id, and date are required", http.StatusBadRequest)
		return
	}
	if _, err := schedule.ParseDate(date); err != nil {
		http.Error(w, "invalid date, expected YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	durationMins := 30
	if raw := strings.TrimSpace(q.Get("duration_minutes")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 8*60 {
			http.Error(w, "invalid duration_minutes", http.StatusBadRequest)
			return
		}
		durationMins = n
	}

	slots, reason, err := h.svc.AvailableSlots(r.Context(), locationID, resourceID, date, durationMins)
	if err != nil {
		h.logger.Error("slot lookup failed", "err", err, "location_id", locationID, "resource_id", resourceID)
		http.Error(w, "failed to compute available slots", http.StatusInternalServerError)
		return
	}

	resp := slotsResponse{Reason: string(reason), Slots: make([]slotItem, 0, len(slots))}
	for _, s := range slots {
		resp.Slots = append(resp.Slots, slotItem{
			Date:        s.Date,
			StartMinute: s.StartMinute,
			EndMinute:   s.EndMinute,
			StartTime:   schedule.ClockString(s.StartMinute),
			EndTime:     schedule.ClockString(s.EndMinute),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// appointments fans out on method: POST creates, GET lists by location/date.
func (h *AppointmentHandler) appointments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.Create(w, r)
	case http.MethodGet:
		h.List(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *AppointmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	req.LocationID = strings.TrimSpace(req.LocationID)
	req.ResourceID = strings.TrimSpace(req.ResourceID)
	req.ClientID = strings.TrimSpace(req.ClientID)
	req.Date = strings.TrimSpace(req.Date)
	if req.LocationID == "" || req.ResourceID == "" || req.ClientID == "" || req.Date == "" {
		http.Error(w, "missing required fields", http.StatusBadRequest)
		return
	}
	if _, err := schedule.ParseDate(req.Date); err != nil {
		http.Error(w, "invalid date, expected YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	if req.EndMinute <= req.StartMinute || req.StartMinute < 0 || req.EndMinute > 24*60 {
		http.Error(w, "end_minute must be after start_minute within the day", http.StatusBadRequest)
		return
	}

	appt, err := h.svc.Create(r.Context(), booking.CreateRequest{
		LocationID:  req.LocationID,
		ResourceID:  req.ResourceID,
		ClientID:    req.ClientID,
		Date:        req.Date,
		StartMinute: req.StartMinute,
		EndMinute:   req.EndMinute,
		ServiceIDs:  req.ServiceIDs,
		TotalValue:  req.TotalValue,
	})
	if err != nil {
		h.writeBookingError(w, err, "failed to create appointment")
		return
	}
	writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
}

func (h *AppointmentHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	locationID := strings.TrimSpace(q.Get("location_id"))
	date := strings.TrimSpace(q.Get("date"))
	if locationID == "" || date == "" {
		http.Error(w, "location_id and date are required", http.StatusBadRequest)
		return
	}

	appts, err := h.svc.ListByLocationDate(r.Context(), locationID, date)
	if err != nil {
		h.logger.Error("appointment list failed", "err", err, "location_id", locationID)
		http.Error(w, "failed to list appointments", http.StatusInternalServerError)
		return
	}

	items := make([]appointmentResponse, 0, len(appts))
	for _, appt := range appts {
		items = append(items, toAppointmentResponse(appt))
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *AppointmentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := h.decodeID(w, r)
	if !ok {
		return
	}
	appt, err := h.svc.Cancel(r.Context(), id)
	if err != nil {
		h.writeBookingError(w, err, "failed to cancel appointment")
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *AppointmentHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req rescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	req.Date = strings.TrimSpace(req.Date)
	if req.AppointmentID == "" || req.Date == "" {
		http.Error(w, "appointment_id and date required", http.StatusBadRequest)
		return
	}
	if _, err := schedule.ParseDate(req.Date); err != nil {
		http.Error(w, "invalid date, expected YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	if req.EndMinute <= req.StartMinute || req.StartMinute < 0 || req.EndMinute > 24*60 {
		http.Error(w, "end_minute must be after start_minute within the day", http.StatusBadRequest)
		return
	}

	appt, err := h.svc.Reschedule(r.Context(), req.AppointmentID, req.Date, req.StartMinute, req.EndMinute)
	if err != nil {
		h.writeBookingError(w, err, "failed to reschedule appointment")
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *AppointmentHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	id, ok := h.decodeID(w, r)
	if !ok {
		return
	}
	appt, err := h.svc.Confirm(r.Context(), id)
	if err != nil {
		h.writeBookingError(w, err, "failed to confirm appointment")
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *AppointmentHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.decodeID(w, r)
	if !ok {
		return
	}
	appt, err := h.svc.Complete(r.Context(), id)
	if err != nil {
		h.writeBookingError(w, err, "failed to complete appointment")
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *AppointmentHandler) Notifications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	appointmentID := strings.TrimSpace(r.URL.Query().Get("appointment_id"))
	if appointmentID == "" {
		http.Error(w, "appointment_id required", http.StatusBadRequest)
		return
	}

	if _, err := h.svc.Get(r.Context(), appointmentID); err != nil {
		h.writeBookingError(w, err, "failed to load appointment")
		return
	}

	records, err := h.ledger.ListByAppointment(r.Context(), appointmentID)
	if err != nil {
		h.logger.Error("notification history lookup failed", "err", err, "appointment_id", appointmentID)
		http.Error(w, "failed to list notifications", http.StatusInternalServerError)
		return
	}

	items := make([]notificationItem, 0, len(records))
	for _, rec := range records {
		item := notificationItem{
			ID:                rec.ID,
			Kind:              string(rec.Kind),
			Status:            rec.Status,
			Attempts:          rec.Attempts,
			TargetPhone:       rec.TargetPhone,
			ProviderMessageID: rec.ProviderMessageID,
			ErrorDetail:       rec.ErrorDetail,
			CreatedAt:         rec.CreatedAt.UTC().Format(time.RFC3339),
		}
		if rec.SentAt != nil {
			item.SentAt = rec.SentAt.UTC().Format(time.RFC3339)
		}
		items = append(items, item)
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *AppointmentHandler) decodeID(w http.ResponseWriter, r *http.Request) (string, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return "", false
	}
	var req idRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return "", false
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" {
		http.Error(w, "appointment_id required", http.StatusBadRequest)
		return "", false
	}
	return req.AppointmentID, true
}

func (h *AppointmentHandler) writeBookingError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, booking.ErrSlotConflict):
		http.Error(w, "time slot already booked", http.StatusConflict)
	case errors.Is(err, booking.ErrOutsideBusinessHours):
		http.Error(w, "requested time is outside business hours", http.StatusUnprocessableEntity)
	case errors.Is(err, booking.ErrNoServices):
		http.Error(w, "at least one service is required", http.StatusBadRequest)
	case errors.Is(err, booking.ErrNotFound):
		http.Error(w, "appointment not found", http.StatusNotFound)
	case errors.Is(err, booking.ErrInvalidTransition):
		http.Error(w, "appointment status does not allow this operation", http.StatusConflict)
	default:
		h.logger.Error("booking operation failed", "err", err)
		http.Error(w, fallback, http.StatusInternalServerError)
	}
}

func toAppointmentResponse(appt booking.Appointment) appointmentResponse {
	resp := appointmentResponse{
		AppointmentID: appt.ID,
		LocationID:    appt.LocationID,
		ResourceID:    appt.ResourceID,
		ClientID:      appt.ClientID,
		Date:          appt.Date,
		StartMinute:   appt.StartMinute,
		EndMinute:     appt.EndMinute,
		StartTime:     schedule.ClockString(appt.StartMinute),
		EndTime:       schedule.ClockString(appt.EndMinute),
		Status:        string(appt.Status),
		ServiceIDs:    appt.ServiceIDs,
		TotalValue:    appt.TotalValue,
		CreatedAt:     appt.CreatedAt.UTC().Format(time.RFC3339),
	}
	if appt.CancelledAt != nil {
		resp.CancelledAt = appt.CancelledAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
