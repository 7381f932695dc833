package schedule

import (
	"fmt"
	"time"
)

const minutesPerDay = 24 * 60

// Interval is a half-open [StartMinute, EndMinute) span within a single
// calendar day. Minutes are minutes-of-day (09:00 = 540).
type Interval struct {
	Date        string // YYYY-MM-DD
	StartMinute int
	EndMinute   int
}

// Overlaps reports whether two intervals on the same date share any time.
// Touching endpoints do not overlap: [540,600) and [600,660) are compatible.
func (i Interval) Overlaps(other Interval) bool {
	if i.Date != other.Date {
		return false
	}
	return i.StartMinute < other.EndMinute && other.StartMinute < i.EndMinute
}

func (i Interval) DurationMinutes() int {
	return i.EndMinute - i.StartMinute
}

func (i Interval) Duration() time.Duration {
	return time.Duration(i.DurationMinutes()) * time.Minute
}

func (i Interval) Valid() bool {
	if i.StartMinute < 0 || i.EndMinute > minutesPerDay {
		return false
	}
	if i.EndMinute <= i.StartMinute {
		return false
	}
	_, err := ParseDate(i.Date)
	return err == nil
}

func (i Interval) String() string {
	return fmt.Sprintf("%s %s-%s", i.Date, ClockString(i.StartMinute), ClockString(i.EndMinute))
}

// Start returns the interval start as a wall-clock instant in loc.
func (i Interval) Start(loc *time.Location) (time.Time, error) {
	day, err := time.ParseInLocation(DateLayout, i.Date, loc)
	if err != nil {
		return time.Time{}, err
	}
	return day.Add(time.Duration(i.StartMinute) * time.Minute), nil
}

const DateLayout = "2006-01-02"

func ParseDate(date string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, date, time.UTC)
}

// Weekday resolves the weekday (Sunday = 0) for a YYYY-MM-DD date.
func Weekday(date string) (time.Weekday, error) {
	day, err := ParseDate(date)
	if err != nil {
		return 0, fmt.Errorf("invalid date %q: %w", date, err)
	}
	return day.Weekday(), nil
}

// ClockString renders a minute-of-day as HH:MM.
func ClockString(minute int) string {
	if minute < 0 || minute > minutesPerDay {
		return "--:--"
	}
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}

// ParseClock parses HH:MM into a minute-of-day.
func ParseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}
