// Package reminder finds confirmed appointments approaching their start time
// and hands them to the notification dispatcher. Dedup lives in the delivery
// ledger, so a scan pass that crashes mid-batch is safe to repeat.
package reminder

import (
	"context"
	"log/slog"
	"time"

	"github.com/slotbook/slotbook/internal/booking"
	"github.com/slotbook/slotbook/internal/metrics"
	"github.com/slotbook/slotbook/internal/notify"
)

// Candidates lists confirmed appointments starting inside [from, to] with no
// pending or sent reminder of the given kind.
type Candidates interface {
	ListRemindable(ctx context.Context, from, to time.Time, kind string) ([]booking.Appointment, error)
}

type Dispatcher interface {
	NotifyAppointmentEvent(ctx context.Context, evt notify.AppointmentEvent, kind notify.Kind)
}

// Lead pairs a reminder kind with how far ahead of the appointment it fires.
// The scan window is [now+Lead, now+Lead+Slack] so an appointment is picked
// up on the first pass after it enters the window.
type Lead struct {
	Kind  notify.Kind
	Ahead time.Duration
	Slack time.Duration
}

type Config struct {
	// Interval between scan passes. Defaults to one minute.
	Interval time.Duration
	// Leads defaults to the 24 hour and 2 hour reminders with one hour of
	// slack each.
	Leads []Lead
}

func defaultLeads() []Lead {
	return []Lead{
		{Kind: notify.KindReminder24h, Ahead: 24 * time.Hour, Slack: time.Hour},
		{Kind: notify.KindReminder2h, Ahead: 2 * time.Hour, Slack: time.Hour},
	}
}

type Scanner struct {
	candidates Candidates
	dispatcher Dispatcher
	logger     *slog.Logger
	interval   time.Duration
	leads      []Lead
	now        func() time.Time
}

func NewScanner(candidates Candidates, dispatcher Dispatcher, logger *slog.Logger, cfg Config) *Scanner {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if len(cfg.Leads) == 0 {
		cfg.Leads = defaultLeads()
	}
	return &Scanner{
		candidates: candidates,
		dispatcher: dispatcher,
		logger:     logger,
		interval:   cfg.Interval,
		leads:      cfg.Leads,
		now:        time.Now,
	}
}

func (s *Scanner) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("reminder scanner started", "interval", s.interval.String())
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Scan(ctx)
		}
	}
}

// Scan runs one pass over every configured lead window.
func (s *Scanner) Scan(ctx context.Context) {
	now := s.now().UTC()
	for _, lead := range s.leads {
		from := now.Add(lead.Ahead)
		to := from.Add(lead.Slack)
		appts, err := s.candidates.ListRemindable(ctx, from, to, string(lead.Kind))
		if err != nil {
			s.logger.Error("reminder scan failed", "err", err, "kind", string(lead.Kind))
			continue
		}
		for _, appt := range appts {
			s.dispatcher.NotifyAppointmentEvent(ctx, notify.AppointmentEvent{
				AppointmentID: appt.ID,
				LocationID:    appt.LocationID,
				ResourceID:    appt.ResourceID,
				ClientID:      appt.ClientID,
				Date:          appt.Date,
				StartMinute:   appt.StartMinute,
				EndMinute:     appt.EndMinute,
				ServiceIDs:    appt.ServiceIDs,
				TotalValue:    appt.TotalValue,
			}, lead.Kind)
			metrics.RemindersDispatched.WithLabelValues(string(lead.Kind)).Inc()
		}
		if len(appts) > 0 {
			s.logger.Info("reminders dispatched", "kind", string(lead.Kind), "count", len(appts))
		}
	}
}
