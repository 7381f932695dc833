package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/slotbook/slotbook/internal/booking"
	"github.com/slotbook/slotbook/internal/notify"
	"github.com/slotbook/slotbook/internal/schedule"
)

type fakeService struct {
	slots       []schedule.Interval
	slotsReason schedule.Reason
	createErr   error
	created     booking.Appointment
	cancelErr   error
	appt        booking.Appointment
	getErr      error
	listed      []booking.Appointment

	lastCreate booking.CreateRequest
}

func (f *fakeService) AvailableSlots(_ context.Context, _, _, _ string, _ int) ([]schedule.Interval, schedule.Reason, error) {
	return f.slots, f.slotsReason, nil
}

func (f *fakeService) Create(_ context.Context, req booking.CreateRequest) (booking.Appointment, error) {
	f.lastCreate = req
	if f.createErr != nil {
		return booking.Appointment{}, f.createErr
	}
	return f.created, nil
}

func (f *fakeService) Cancel(_ context.Context, _ string) (booking.Appointment, error) {
	if f.cancelErr != nil {
		return booking.Appointment{}, f.cancelErr
	}
	return f.appt, nil
}

func (f *fakeService) Reschedule(_ context.Context, _ string, _ string, _, _ int) (booking.Appointment, error) {
	return f.appt, nil
}

func (f *fakeService) Confirm(_ context.Context, _ string) (booking.Appointment, error) {
	return f.appt, nil
}

func (f *fakeService) Complete(_ context.Context, _ string) (booking.Appointment, error) {
	return f.appt, nil
}

func (f *fakeService) Get(_ context.Context, _ string) (booking.Appointment, error) {
	if f.getErr != nil {
		return booking.Appointment{}, f.getErr
	}
	return f.appt, nil
}

func (f *fakeService) ListByLocationDate(_ context.Context, _, _ string) ([]booking.Appointment, error) {
	return f.listed, nil
}

type fakeLedger struct {
	records []notify.Record
}

func (f *fakeLedger) ListByAppointment(_ context.Context, _ string) ([]notify.Record, error) {
	return f.records, nil
}

type nullWriter struct{}

func (nullWriter) Write(p []byte) (int, error) { return len(p), nil }

func newTestHandler(svc *fakeService, ledger *fakeLedger) http.Handler {
	if ledger == nil {
		ledger = &fakeLedger{}
	}
	h := NewAppointmentHandler(svc, ledger, slog.New(slog.NewTextHandler(nullWriter{}, nil)))
	mux := http.NewServeMux()
	h.Register(mux)
	return mux
}

func sampleAppointment() booking.Appointment {
	return booking.Appointment{
		ID:          "appt-1",
		LocationID:  "loc-1",
		ResourceID:  "res-1",
		ClientID:    "cli-1",
		Date:        "2026-09-14",
		StartMinute: 600,
		EndMinute:   660,
		Status:      booking.StatusApproved,
		ServiceIDs:  []string{"svc-1"},
		TotalValue:  4500,
		CreatedAt:   time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC),
	}
}

func postJSON(t *testing.T, mux http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestSlots(t *testing.T) {
	svc := &fakeService{
		slots: []schedule.Interval{
			{Date: "2026-09-14", StartMinute: 540, EndMinute: 600},
			{Date: "2026-09-14", StartMinute: 600, EndMinute: 660},
		},
		slotsReason: schedule.ReasonOK,
	}
	mux := newTestHandler(svc, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/slots?location_id=loc-1&resource_id=res-1&date=2026-09-14&duration_minutes=60", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	var resp slotsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Reason != "ok" || len(resp.Slots) != 2 {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.Slots[0].StartTime != "09:00" || resp.Slots[0].EndTime != "10:00" {
		t.Fatalf("slot clock = %s-%s", resp.Slots[0].StartTime, resp.Slots[0].EndTime)
	}
}

func TestSlots_ClosedDay(t *testing.T) {
	svc := &fakeService{slotsReason: schedule.ReasonClosedDay}
	mux := newTestHandler(svc, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/slots?location_id=loc-1&resource_id=res-1&date=2026-09-14", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp slotsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Reason != "closed_day" || len(resp.Slots) != 0 {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestSlots_MissingParams(t *testing.T) {
	mux := newTestHandler(&fakeService{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/v1/slots?location_id=loc-1", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestCreate(t *testing.T) {
	svc := &fakeService{created: sampleAppointment()}
	mux := newTestHandler(svc, nil)

	rec := postJSON(t, mux, "/v1/appointments", createAppointmentRequest{
		LocationID:  "loc-1",
		ResourceID:  "res-1",
		ClientID:    "cli-1",
		Date:        "2026-09-14",
		StartMinute: 600,
		EndMinute:   660,
		ServiceIDs:  []string{"svc-1"},
		TotalValue:  4500,
	})

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	var resp appointmentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.AppointmentID != "appt-1" || resp.StartTime != "10:00" || resp.Status != "approved" {
		t.Fatalf("resp = %+v", resp)
	}
	if svc.lastCreate.ResourceID != "res-1" || svc.lastCreate.TotalValue != 4500 {
		t.Fatalf("service got %+v", svc.lastCreate)
	}
}

func TestCreate_Validation(t *testing.T) {
	mux := newTestHandler(&fakeService{}, nil)

	cases := []struct {
		name string
		req  createAppointmentRequest
	}{
		{"missing ids", createAppointmentRequest{Date: "2026-09-14", StartMinute: 600, EndMinute: 660}},
		{"bad date", createAppointmentRequest{LocationID: "l", ResourceID: "r", ClientID: "c", Date: "14-09-2026", StartMinute: 600, EndMinute: 660}},
		{"inverted minutes", createAppointmentRequest{LocationID: "l", ResourceID: "r", ClientID: "c", Date: "2026-09-14", StartMinute: 660, EndMinute: 600}},
		{"past midnight", createAppointmentRequest{LocationID: "l", ResourceID: "r", ClientID: "c", Date: "2026-09-14", StartMinute: 1400, EndMinute: 1500}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := postJSON(t, mux, "/v1/appointments", tc.req)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d", rec.Code)
			}
		})
	}
}

func TestCreate_ErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"conflict", booking.ErrSlotConflict, http.StatusConflict},
		{"outside hours", booking.ErrOutsideBusinessHours, http.StatusUnprocessableEntity},
		{"no services", booking.ErrNoServices, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mux := newTestHandler(&fakeService{createErr: tc.err}, nil)
			rec := postJSON(t, mux, "/v1/appointments", createAppointmentRequest{
				LocationID: "l", ResourceID: "r", ClientID: "c",
				Date: "2026-09-14", StartMinute: 600, EndMinute: 660,
			})
			if rec.Code != tc.code {
				t.Fatalf("status = %d, want %d", rec.Code, tc.code)
			}
		})
	}
}

func TestCancel(t *testing.T) {
	appt := sampleAppointment()
	cancelled := time.Date(2026, 9, 2, 9, 0, 0, 0, time.UTC)
	appt.Status = booking.StatusCancelled
	appt.CancelledAt = &cancelled

	mux := newTestHandler(&fakeService{appt: appt}, nil)
	rec := postJSON(t, mux, "/v1/appointments/cancel", idRequest{AppointmentID: "appt-1"})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp appointmentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "cancelled" || resp.CancelledAt == "" {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestCancel_NotFound(t *testing.T) {
	mux := newTestHandler(&fakeService{cancelErr: booking.ErrNotFound}, nil)
	rec := postJSON(t, mux, "/v1/appointments/cancel", idRequest{AppointmentID: "nope"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestCancel_MissingID(t *testing.T) {
	mux := newTestHandler(&fakeService{}, nil)
	rec := postJSON(t, mux, "/v1/appointments/cancel", idRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestReschedule_BadDate(t *testing.T) {
	mux := newTestHandler(&fakeService{appt: sampleAppointment()}, nil)
	rec := postJSON(t, mux, "/v1/appointments/reschedule", rescheduleRequest{
		AppointmentID: "appt-1", Date: "bad", StartMinute: 600, EndMinute: 660,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestNotifications(t *testing.T) {
	sent := time.Date(2026, 9, 1, 12, 0, 5, 0, time.UTC)
	ledger := &fakeLedger{records: []notify.Record{
		{
			ID:            "rec-1",
			AppointmentID: "appt-1",
			Kind:          notify.KindConfirmation,
			Status:        notify.StatusSent,
			Attempts:      1,
			TargetPhone:   "+15550001111",
			SentAt:        &sent,
			CreatedAt:     sent,
		},
		{
			ID:            "rec-2",
			AppointmentID: "appt-1",
			Kind:          notify.KindReminder24h,
			Status:        notify.StatusFailed,
			Attempts:      2,
			TargetPhone:   "+15550001111",
			ErrorDetail:   "gateway timeout",
			CreatedAt:     sent,
		},
	}}
	mux := newTestHandler(&fakeService{appt: sampleAppointment()}, ledger)

	req := httptest.NewRequest(http.MethodGet, "/v1/appointments/notifications?appointment_id=appt-1", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var items []notificationItem
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("items = %+v", items)
	}
	if items[0].Status != "sent" || items[0].SentAt == "" {
		t.Fatalf("first item = %+v", items[0])
	}
	if items[1].Status != "failed" || !strings.Contains(items[1].ErrorDetail, "timeout") {
		t.Fatalf("second item = %+v", items[1])
	}
}

func TestNotifications_UnknownAppointment(t *testing.T) {
	mux := newTestHandler(&fakeService{getErr: booking.ErrNotFound}, nil)
	req := httptest.NewRequest(http.MethodGet, "/v1/appointments/notifications?appointment_id=nope", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	mux := newTestHandler(&fakeService{}, nil)
	req := httptest.NewRequest(http.MethodDelete, "/v1/appointments/cancel", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", rec.Code)
	}
}
