package schedule

import (
	"testing"
	"time"
)

func TestInterval_Overlaps(t *testing.T) {
	base := Interval{Date: "2026-03-10", StartMinute: 540, EndMinute: 600}

	cases := []struct {
		name  string
		other Interval
		want  bool
	}{
		{"identical", Interval{Date: "2026-03-10", StartMinute: 540, EndMinute: 600}, true},
		{"contained", Interval{Date: "2026-03-10", StartMinute: 550, EndMinute: 590}, true},
		{"straddles start", Interval{Date: "2026-03-10", StartMinute: 500, EndMinute: 550}, true},
		{"straddles end", Interval{Date: "2026-03-10", StartMinute: 590, EndMinute: 650}, true},
		{"touching before", Interval{Date: "2026-03-10", StartMinute: 480, EndMinute: 540}, false},
		{"touching after", Interval{Date: "2026-03-10", StartMinute: 600, EndMinute: 660}, false},
		{"disjoint", Interval{Date: "2026-03-10", StartMinute: 700, EndMinute: 760}, false},
		{"other date", Interval{Date: "2026-03-11", StartMinute: 540, EndMinute: 600}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := base.Overlaps(tc.other); got != tc.want {
				t.Fatalf("Overlaps(%v) = %v, want %v", tc.other, got, tc.want)
			}
			// Overlap is symmetric.
			if got := tc.other.Overlaps(base); got != tc.want {
				t.Fatalf("reverse Overlaps(%v) = %v, want %v", base, got, tc.want)
			}
		})
	}
}

func TestInterval_Duration(t *testing.T) {
	i := Interval{Date: "2026-03-10", StartMinute: 540, EndMinute: 630}
	if i.DurationMinutes() != 90 {
		t.Fatalf("expected 90 minutes, got %d", i.DurationMinutes())
	}
	if i.Duration() != 90*time.Minute {
		t.Fatalf("expected 90m duration, got %s", i.Duration())
	}
}

func TestInterval_Valid(t *testing.T) {
	valid := Interval{Date: "2026-03-10", StartMinute: 0, EndMinute: 1440}
	if !valid.Valid() {
		t.Fatalf("expected %v to be valid", valid)
	}
	for _, bad := range []Interval{
		{Date: "2026-03-10", StartMinute: 600, EndMinute: 600},
		{Date: "2026-03-10", StartMinute: 600, EndMinute: 540},
		{Date: "2026-03-10", StartMinute: -10, EndMinute: 60},
		{Date: "2026-03-10", StartMinute: 1400, EndMinute: 1500},
		{Date: "not-a-date", StartMinute: 540, EndMinute: 600},
	} {
		if bad.Valid() {
			t.Fatalf("expected %v to be invalid", bad)
		}
	}
}

func TestWeekday(t *testing.T) {
	wd, err := Weekday("2026-03-10")
	if err != nil {
		t.Fatalf("weekday: %v", err)
	}
	if wd != time.Tuesday {
		t.Fatalf("expected Tuesday, got %s", wd)
	}
	if _, err := Weekday("10/03/2026"); err == nil {
		t.Fatal("expected error for malformed date")
	}
}

func TestClockRoundTrip(t *testing.T) {
	if got := ClockString(540); got != "09:00" {
		t.Fatalf("ClockString(540) = %q", got)
	}
	if got := ClockString(1439); got != "23:59" {
		t.Fatalf("ClockString(1439) = %q", got)
	}
	min, err := ParseClock("14:30")
	if err != nil {
		t.Fatalf("parse clock: %v", err)
	}
	if min != 870 {
		t.Fatalf("ParseClock(14:30) = %d", min)
	}
	if _, err := ParseClock("25:00"); err == nil {
		t.Fatal("expected error for out-of-range clock")
	}
}
