package notify

import (
	"context"
	"log/slog"
	"time"
)

type DispatcherConfig struct {
	// Enabled gates all outbound messaging.
	Enabled bool
	// Simulated routes everything through the noop gateway path upstream;
	// the dispatcher itself only logs the mode.
	Simulated bool
}

// LedgerStore is the slice of the ledger the dispatcher needs.
type LedgerStore interface {
	RecordPending(ctx context.Context, a Attempt) (string, error)
	RecordOutcome(ctx context.Context, recordID string, result SendResult) error
	HasDelivery(ctx context.Context, appointmentID string, kind Kind, phone string) (bool, error)
}

// Enqueuer is the delivery queue's submission side.
type Enqueuer interface {
	Enqueue(ctx context.Context, s Send) <-chan SendResult
}

// Dispatcher turns appointment lifecycle events into rendered messages,
// pushes them through the delivery queue and records every outcome in the
// ledger. It never returns an error: notification failures must not unwind
// the appointment mutation that triggered them.
type Dispatcher struct {
	views  ViewLoader
	queue  Enqueuer
	ledger LedgerStore
	logger *slog.Logger
	cfg    DispatcherConfig
}

func NewDispatcher(views ViewLoader, queue Enqueuer, ledger LedgerStore, logger *slog.Logger, cfg DispatcherConfig) *Dispatcher {
	return &Dispatcher{views: views, queue: queue, ledger: ledger, logger: logger, cfg: cfg}
}

// NotifyAppointmentEvent is fire-and-forget from the caller's perspective.
// One ledger row is written per (appointment, kind, target) per invocation:
// pending at enqueue time, then updated with the gateway outcome.
func (d *Dispatcher) NotifyAppointmentEvent(ctx context.Context, evt AppointmentEvent, kind Kind) {
	if !d.cfg.Enabled {
		return
	}

	view, err := d.views.BuildView(ctx, evt)
	if err != nil {
		d.logger.Error("notification view build failed",
			"err", err, "appointment_id", evt.AppointmentID, "kind", string(kind))
		return
	}

	if kind.IsReminder() {
		seen, err := d.ledger.HasDelivery(ctx, evt.AppointmentID, kind, view.ClientPhone)
		if err != nil {
			d.logger.Warn("ledger dedup check failed", "err", err, "appointment_id", evt.AppointmentID)
		} else if seen {
			return
		}
	}

	var scheduledAt *time.Time
	if kind.IsReminder() {
		now := time.Now().UTC()
		scheduledAt = &now
	}

	if view.ClientPhone != "" {
		d.sendAndRecord(ctx, evt, kind, view.ClientPhone, ClientMessage(kind, view), scheduledAt)
	} else {
		d.logger.Warn("client has no phone; skipping notification",
			"appointment_id", evt.AppointmentID, "kind", string(kind))
	}

	if msg, ok := StaffMessage(kind, view); ok && view.ResourcePhone != "" {
		d.sendAndRecord(ctx, evt, kind, view.ResourcePhone, msg, nil)
	}
}

func (d *Dispatcher) sendAndRecord(ctx context.Context, evt AppointmentEvent, kind Kind, phone string, message string, scheduledAt *time.Time) {
	// The pending row goes in before the enqueue so dedup checks and the
	// reminder scanner see in-flight sends, not just finished ones. Ledger
	// writes use a detached context: the triggering HTTP request may be long
	// gone by the time the outcome lands.
	recordCtx := context.WithoutCancel(ctx)
	recordID, err := d.ledger.RecordPending(recordCtx, Attempt{
		AppointmentID:   evt.AppointmentID,
		LocationID:      evt.LocationID,
		Kind:            kind,
		TargetPhone:     phone,
		RenderedMessage: message,
		ScheduledAt:     scheduledAt,
	})
	if err != nil {
		// No row means no retry bookkeeping; skip the send rather than
		// deliver a message the ledger never saw.
		d.logger.Error("ledger write failed",
			"err", err, "appointment_id", evt.AppointmentID, "kind", string(kind), "phone", phone)
		return
	}

	// Enqueue synchronously so submission order matches call order, then
	// collect the result off the caller's path.
	result := d.queue.Enqueue(ctx, Send{Phone: phone, Body: message})
	go func() {
		res := <-result
		if err := d.ledger.RecordOutcome(recordCtx, recordID, res); err != nil {
			d.logger.Error("ledger outcome write failed",
				"err", err, "appointment_id", evt.AppointmentID, "kind", string(kind), "phone", phone)
		}
	}()
}
