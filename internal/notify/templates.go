package notify

import (
	"fmt"
	"strings"

	"github.com/slotbook/slotbook/internal/loyalty"
	"github.com/slotbook/slotbook/internal/schedule"
)

// Message templates. All of these are pure string formatting: no storage, no
// network, and no failure mode — a malformed date degrades to the raw value
// so a broken field never blocks the pipeline.

// ClientMessage renders the client-facing message for a lifecycle event.
func ClientMessage(kind Kind, v View) string {
	when := fmt.Sprintf("%s at %s", friendlyDate(v.Date), schedule.ClockString(v.StartMinute))
	where := v.LocationName
	if where == "" {
		where = "our location"
	}
	services := serviceList(v.ServiceNames)

	switch kind {
	case KindConfirmation:
		msg := fmt.Sprintf("Hi %s! Your %s appointment at %s is booked for %s with %s. Total: %s.",
			v.ClientName, services, where, when, v.ResourceName, money(v.TotalValue))
		return msg + loyaltyLine(v.Loyalty)
	case KindCancellation:
		return fmt.Sprintf("Hi %s, your %s appointment at %s on %s has been cancelled. Book again anytime!",
			v.ClientName, services, where, when)
	case KindReschedule:
		msg := fmt.Sprintf("Hi %s! Your %s appointment at %s was moved to %s with %s.",
			v.ClientName, services, where, when, v.ResourceName)
		return msg + loyaltyLine(v.Loyalty)
	case KindReminder24h:
		return fmt.Sprintf("Reminder: %s, you have a %s appointment tomorrow, %s, at %s with %s. See you there!",
			v.ClientName, services, friendlyDate(v.Date), schedule.ClockString(v.StartMinute), v.ResourceName)
	case KindReminder2h:
		return fmt.Sprintf("Almost time, %s! Your %s appointment at %s starts at %s today.",
			v.ClientName, services, where, schedule.ClockString(v.StartMinute))
	}
	return fmt.Sprintf("Update on your appointment at %s: %s.", where, when)
}

// StaffMessage renders the staff-facing variant. Reminders have none.
func StaffMessage(kind Kind, v View) (string, bool) {
	if !kind.HasStaffVariant() {
		return "", false
	}
	when := fmt.Sprintf("%s %s-%s", friendlyDate(v.Date), schedule.ClockString(v.StartMinute), schedule.ClockString(v.EndMinute))
	services := serviceList(v.ServiceNames)

	switch kind {
	case KindConfirmation:
		return fmt.Sprintf("New booking: %s, %s, %s. Client: %s (%s).",
			when, services, money(v.TotalValue), v.ClientName, v.ClientPhone), true
	case KindCancellation:
		return fmt.Sprintf("Cancelled: %s, %s. Client: %s. The slot is open again.",
			when, services, v.ClientName), true
	case KindReschedule:
		return fmt.Sprintf("Rescheduled: %s now has %s booked for %s (%s).",
			v.ClientName, services, when, money(v.TotalValue)), true
	}
	return "", false
}

func serviceList(names []string) string {
	switch len(names) {
	case 0:
		return "service"
	case 1:
		return names[0]
	case 2:
		return names[0] + " and " + names[1]
	default:
		return strings.Join(names[:len(names)-1], ", ") + " and " + names[len(names)-1]
	}
}

// friendlyDate renders "Tuesday, 10 Mar 2026"; unparseable input is returned
// as-is rather than failing.
func friendlyDate(date string) string {
	day, err := schedule.ParseDate(date)
	if err != nil {
		return date
	}
	return day.Format("Monday, 2 Jan 2006")
}

func money(cents int64) string {
	return fmt.Sprintf("$%d.%02d", cents/100, cents%100)
}

func loyaltyLine(s *loyalty.Summary) string {
	if s == nil {
		return ""
	}
	line := fmt.Sprintf(" You earned %d points this booking (balance: %d).", s.EarnedThisBooking, s.Balance)
	if s.EligibleToRedeem {
		line += " You have enough points to redeem a reward!"
	}
	return line
}
