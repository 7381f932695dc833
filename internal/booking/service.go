package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/slotbook/slotbook/internal/metrics"
	"github.com/slotbook/slotbook/internal/notify"
	"github.com/slotbook/slotbook/internal/schedule"
)

// Store is the persistence surface the service needs. *Repository satisfies
// it; tests plug in an in-memory implementation.
type Store interface {
	CreateSerialized(ctx context.Context, appt *Appointment) error
	RescheduleSerialized(ctx context.Context, id string, date string, startMinute, endMinute int) (Appointment, error)
	Cancel(ctx context.Context, id string) (Appointment, bool, error)
	Confirm(ctx context.Context, id string) (Appointment, error)
	Complete(ctx context.Context, id string) (Appointment, error)
	GetByID(ctx context.Context, id string) (Appointment, error)
	ListActiveIntervals(ctx context.Context, resourceID, date string) ([]schedule.Interval, error)
	ListByLocationDate(ctx context.Context, locationID, date string) ([]Appointment, error)
}

// Notifier receives lifecycle events after the mutation commits. It must not
// fail the booking path; the dispatcher swallows its own errors.
type Notifier interface {
	NotifyAppointmentEvent(ctx context.Context, evt notify.AppointmentEvent, kind notify.Kind)
}

type Service struct {
	store  Store
	hours  schedule.HoursResolver
	notify Notifier
	logger *slog.Logger
}

func NewService(store Store, hours schedule.HoursResolver, notifier Notifier, logger *slog.Logger) *Service {
	return &Service{store: store, hours: hours, notify: notifier, logger: logger}
}

type CreateRequest struct {
	LocationID  string
	ResourceID  string
	ClientID    string
	Date        string // YYYY-MM-DD
	StartMinute int
	EndMinute   int
	ServiceIDs  []string
	TotalValue  int64
}

// AvailableSlots returns the open slots of the given duration for one
// resource on one date.
func (s *Service) AvailableSlots(ctx context.Context, locationID, resourceID, date string, durationMinutes int) ([]schedule.Interval, schedule.Reason, error) {
	weekday, err := schedule.Weekday(date)
	if err != nil {
		return nil, "", fmt.Errorf("parse date: %w", err)
	}
	hours, err := s.hours.DayHours(ctx, locationID, weekday)
	if err != nil {
		return nil, "", fmt.Errorf("resolve business hours: %w", err)
	}
	busy, err := s.store.ListActiveIntervals(ctx, resourceID, date)
	if err != nil {
		return nil, "", fmt.Errorf("list booked intervals: %w", err)
	}
	slots, reason := schedule.AvailableSlots(date, hours, durationMinutes, busy)
	return slots, reason, nil
}

// Create books an appointment. The requested interval must sit inside an
// open business-hours window; the store serializes the conflict check so at
// most one of two racing requests for the same slot succeeds.
func (s *Service) Create(ctx context.Context, req CreateRequest) (Appointment, error) {
	if len(req.ServiceIDs) == 0 {
		metrics.BookingsTotal.WithLabelValues(outcomeLabel(ErrNoServices)).Inc()
		return Appointment{}, ErrNoServices
	}

	appt := Appointment{
		ID:          uuid.NewString(),
		LocationID:  req.LocationID,
		ResourceID:  req.ResourceID,
		ClientID:    req.ClientID,
		Date:        req.Date,
		StartMinute: req.StartMinute,
		EndMinute:   req.EndMinute,
		Status:      StatusApproved,
		ServiceIDs:  req.ServiceIDs,
		TotalValue:  req.TotalValue,
	}

	if err := s.validateWithinHours(ctx, req.LocationID, appt.Interval()); err != nil {
		metrics.BookingsTotal.WithLabelValues(outcomeLabel(err)).Inc()
		return Appointment{}, err
	}

	if err := s.store.CreateSerialized(ctx, &appt); err != nil {
		metrics.BookingsTotal.WithLabelValues(outcomeLabel(err)).Inc()
		return Appointment{}, err
	}
	metrics.BookingsTotal.WithLabelValues("created").Inc()

	s.notify.NotifyAppointmentEvent(ctx, s.event(appt), notify.KindConfirmation)
	return appt, nil
}

// Cancel is idempotent: cancelling an already-cancelled appointment returns
// it unchanged and sends nothing.
func (s *Service) Cancel(ctx context.Context, id string) (Appointment, error) {
	appt, changed, err := s.store.Cancel(ctx, id)
	if err != nil {
		return Appointment{}, err
	}
	if changed {
		s.notify.NotifyAppointmentEvent(ctx, s.event(appt), notify.KindCancellation)
	}
	return appt, nil
}

// Reschedule moves an active appointment to a new interval, re-validated
// against business hours and re-checked for conflicts.
func (s *Service) Reschedule(ctx context.Context, id string, date string, startMinute, endMinute int) (Appointment, error) {
	current, err := s.store.GetByID(ctx, id)
	if err != nil {
		return Appointment{}, err
	}
	iv := schedule.Interval{Date: date, StartMinute: startMinute, EndMinute: endMinute}
	if err := s.validateWithinHours(ctx, current.LocationID, iv); err != nil {
		return Appointment{}, err
	}

	appt, err := s.store.RescheduleSerialized(ctx, id, date, startMinute, endMinute)
	if err != nil {
		return Appointment{}, err
	}
	s.notify.NotifyAppointmentEvent(ctx, s.event(appt), notify.KindReschedule)
	return appt, nil
}

func (s *Service) Confirm(ctx context.Context, id string) (Appointment, error) {
	return s.store.Confirm(ctx, id)
}

func (s *Service) Complete(ctx context.Context, id string) (Appointment, error) {
	return s.store.Complete(ctx, id)
}

func (s *Service) Get(ctx context.Context, id string) (Appointment, error) {
	return s.store.GetByID(ctx, id)
}

func (s *Service) ListByLocationDate(ctx context.Context, locationID, date string) ([]Appointment, error) {
	return s.store.ListByLocationDate(ctx, locationID, date)
}

// validateWithinHours rejects intervals that are malformed or not fully
// contained in one open window of the location's hours for that weekday.
func (s *Service) validateWithinHours(ctx context.Context, locationID string, iv schedule.Interval) error {
	if !iv.Valid() {
		return fmt.Errorf("%w: start %d, end %d on %q", ErrOutsideBusinessHours, iv.StartMinute, iv.EndMinute, iv.Date)
	}
	weekday, err := schedule.Weekday(iv.Date)
	if err != nil {
		return fmt.Errorf("parse date: %w", err)
	}
	hours, err := s.hours.DayHours(ctx, locationID, weekday)
	if err != nil {
		return fmt.Errorf("resolve business hours: %w", err)
	}
	if !hours.IsOpen {
		return ErrOutsideBusinessHours
	}
	for _, w := range hours.Windows {
		if iv.StartMinute >= w.StartMinute && iv.EndMinute <= w.EndMinute {
			return nil
		}
	}
	return ErrOutsideBusinessHours
}

func (s *Service) event(appt Appointment) notify.AppointmentEvent {
	return notify.AppointmentEvent{
		AppointmentID: appt.ID,
		LocationID:    appt.LocationID,
		ResourceID:    appt.ResourceID,
		ClientID:      appt.ClientID,
		Date:          appt.Date,
		StartMinute:   appt.StartMinute,
		EndMinute:     appt.EndMinute,
		ServiceIDs:    appt.ServiceIDs,
		TotalValue:    appt.TotalValue,
	}
}

func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, ErrSlotConflict):
		return "conflict"
	case errors.Is(err, ErrOutsideBusinessHours):
		return "outside_hours"
	case errors.Is(err, ErrNoServices):
		return "invalid"
	default:
		return "error"
	}
}
