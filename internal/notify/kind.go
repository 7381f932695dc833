package notify

import "fmt"

// Kind identifies the appointment lifecycle event a message is about.
type Kind string

const (
	KindConfirmation Kind = "confirmation"
	KindCancellation Kind = "cancellation"
	KindReschedule   Kind = "reschedule"
	KindReminder24h  Kind = "reminder_24h"
	KindReminder2h   Kind = "reminder_2h"
)

func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindConfirmation, KindCancellation, KindReschedule, KindReminder24h, KindReminder2h:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown notification kind %q", s)
}

// IsReminder reports whether the kind is a scheduled reminder rather than an
// immediate lifecycle notification.
func (k Kind) IsReminder() bool {
	return k == KindReminder24h || k == KindReminder2h
}

// HasStaffVariant reports whether staff receive their own message for the kind.
// Reminders go to clients only.
func (k Kind) HasStaffVariant() bool {
	return !k.IsReminder()
}
