package schedule

import (
	"context"
	"time"
)

// Window is an open sub-interval of a business day, in minutes-of-day.
type Window struct {
	StartMinute int `json:"start_minute"`
	EndMinute   int `json:"end_minute"`
}

// DayHours is the resolved opening schedule for one location on one weekday.
type DayHours struct {
	IsOpen  bool     `json:"is_open"`
	Windows []Window `json:"windows"`
}

// HoursResolver supplies opening hours; the raw configuration is owned elsewhere.
type HoursResolver interface {
	DayHours(ctx context.Context, locationID string, weekday time.Weekday) (DayHours, error)
}

type Reason string

const (
	ReasonOK        Reason = "ok"
	ReasonClosedDay Reason = "closed_day"
)

// AvailableSlots computes the bookable slots of durationMinutes on date,
// walking each open window in steps of the duration and keeping candidates
// that overlap none of the busy intervals. Unavailable candidates are
// omitted, never truncated: a partially free remainder shorter than the
// duration yields nothing.
func AvailableSlots(date string, hours DayHours, durationMinutes int, busy []Interval) ([]Interval, Reason) {
	if !hours.IsOpen || len(hours.Windows) == 0 {
		return nil, ReasonClosedDay
	}
	if durationMinutes <= 0 {
		return nil, ReasonOK
	}

	var slots []Interval
	for _, w := range hours.Windows {
		for start := w.StartMinute; start+durationMinutes <= w.EndMinute; start += durationMinutes {
			candidate := Interval{Date: date, StartMinute: start, EndMinute: start + durationMinutes}
			if !overlapsAny(candidate, busy) {
				slots = append(slots, candidate)
			}
		}
	}
	return slots, ReasonOK
}

func overlapsAny(candidate Interval, busy []Interval) bool {
	for _, b := range busy {
		if candidate.Overlaps(b) {
			return true
		}
	}
	return false
}
