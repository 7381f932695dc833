package booking

import (
	"errors"
	"time"

	"github.com/slotbook/slotbook/internal/schedule"
)

type Status string

const (
	StatusApproved  Status = "approved"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// Active reports whether the appointment occupies its time slot. Cancelled
// appointments free the slot; everything else blocks it.
func (s Status) Active() bool {
	return s != StatusCancelled
}

type Appointment struct {
	ID          string
	LocationID  string
	ResourceID  string
	ClientID    string
	Date        string // YYYY-MM-DD
	StartMinute int
	EndMinute   int
	Status      Status
	ServiceIDs  []string
	TotalValue  int64 // cents
	CancelledAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (a Appointment) Interval() schedule.Interval {
	return schedule.Interval{Date: a.Date, StartMinute: a.StartMinute, EndMinute: a.EndMinute}
}

// StartAt is the appointment start as a UTC instant.
func (a Appointment) StartAt() (time.Time, error) {
	return a.Interval().Start(time.UTC)
}

var (
	// ErrSlotConflict is the expected, retryable-by-the-user outcome when
	// another appointment already occupies the interval.
	ErrSlotConflict = errors.New("time slot already booked")
	// ErrOutsideBusinessHours rejects a request before any write happens.
	ErrOutsideBusinessHours = errors.New("requested time is outside business hours")
	// ErrNoServices rejects bookings that carry no service line items.
	ErrNoServices           = errors.New("appointment needs at least one service")
	ErrNotFound             = errors.New("appointment not found")
	ErrInvalidTransition    = errors.New("appointment status does not allow this operation")
)
