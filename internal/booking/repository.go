package booking

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/slotbook/slotbook/internal/outbox"
	"github.com/slotbook/slotbook/internal/schedule"
	"github.com/slotbook/slotbook/libs/db"
)

// Repository is the only write path for appointments. Every mutation that
// could collide runs check-then-write inside one transaction holding a
// per-(resource, date) advisory lock, so two concurrent bookings for the
// same staff member and day serialize at the store. A btree_gist exclusion
// constraint on (resource_id, date, minute_range) is the backstop for
// anything that slips past application logic.
type Repository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewRepository(pool *db.Pool, outboxRepo *outbox.Repository) *Repository {
	return &Repository{pool: pool, outbox: outboxRepo}
}

const appointmentColumns = `
	id, location_id, resource_id, client_id, date::text, start_minute, end_minute,
	status, service_ids, total_value, cancelled_at, created_at, updated_at`

// CreateSerialized atomically checks the proposed interval against every
// non-cancelled appointment for (resource, date) and inserts only if none
// overlaps. First writer wins; the loser gets ErrSlotConflict.
func (r *Repository) CreateSerialized(ctx context.Context, appt *Appointment) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := acquireSlotLock(ctx, tx, appt.ResourceID, appt.Date); err != nil {
		return err
	}
	busy, err := listActiveIntervalsTx(ctx, tx, appt.ResourceID, appt.Date, "")
	if err != nil {
		return err
	}
	proposed := appt.Interval()
	for _, b := range busy {
		if proposed.Overlaps(b) {
			return ErrSlotConflict
		}
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO appointments
			(id, location_id, resource_id, client_id, date, start_minute, end_minute,
			 status, service_ids, total_value)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`, appt.ID, appt.LocationID, appt.ResourceID, appt.ClientID, appt.Date,
		appt.StartMinute, appt.EndMinute, string(appt.Status), appt.ServiceIDs,
		appt.TotalValue).Scan(&appt.CreatedAt, &appt.UpdatedAt)
	if err != nil {
		if isOverlapViolation(err) {
			return ErrSlotConflict
		}
		return err
	}

	if err := r.insertLifecycleEvent(ctx, tx, *appt, outbox.EventAppointmentBooked); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// RescheduleSerialized moves an appointment, re-running the conflict check
// against everything except the appointment itself. Locks for the old and
// new day are taken in sorted order so two crossing reschedules cannot
// deadlock.
func (r *Repository) RescheduleSerialized(ctx context.Context, id string, date string, startMinute, endMinute int) (Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, err := getForUpdate(ctx, tx, id)
	if err != nil {
		return Appointment{}, err
	}
	if appt.Status == StatusCancelled || appt.Status == StatusCompleted {
		return Appointment{}, ErrInvalidTransition
	}

	keys := []string{slotLockKey(appt.ResourceID, appt.Date)}
	if newKey := slotLockKey(appt.ResourceID, date); newKey != keys[0] {
		keys = append(keys, newKey)
		if keys[1] < keys[0] {
			keys[0], keys[1] = keys[1], keys[0]
		}
	}
	for _, key := range keys {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
			return Appointment{}, err
		}
	}

	busy, err := listActiveIntervalsTx(ctx, tx, appt.ResourceID, date, appt.ID)
	if err != nil {
		return Appointment{}, err
	}
	proposed := schedule.Interval{Date: date, StartMinute: startMinute, EndMinute: endMinute}
	for _, b := range busy {
		if proposed.Overlaps(b) {
			return Appointment{}, ErrSlotConflict
		}
	}

	err = tx.QueryRow(ctx, `
		UPDATE appointments
		SET date = $2, start_minute = $3, end_minute = $4, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, id, date, startMinute, endMinute).Scan(&appt.UpdatedAt)
	if err != nil {
		if isOverlapViolation(err) {
			return Appointment{}, ErrSlotConflict
		}
		return Appointment{}, err
	}
	appt.Date = date
	appt.StartMinute = startMinute
	appt.EndMinute = endMinute

	if err := r.insertLifecycleEvent(ctx, tx, appt, outbox.EventAppointmentRescheduled); err != nil {
		return Appointment{}, err
	}
	return appt, tx.Commit(ctx)
}

// Cancel marks an appointment cancelled and frees its slot. Cancelling an
// already-cancelled appointment reports changed=false and is not an error.
func (r *Repository) Cancel(ctx context.Context, id string) (Appointment, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Appointment{}, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, err := getForUpdate(ctx, tx, id)
	if err != nil {
		return Appointment{}, false, err
	}
	if appt.Status == StatusCancelled {
		return appt, false, tx.Commit(ctx)
	}
	if appt.Status == StatusCompleted {
		return Appointment{}, false, ErrInvalidTransition
	}

	err = tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2, cancelled_at = now(), updated_at = now()
		WHERE id = $1
		RETURNING cancelled_at, updated_at
	`, id, string(StatusCancelled)).Scan(&appt.CancelledAt, &appt.UpdatedAt)
	if err != nil {
		return Appointment{}, false, err
	}
	appt.Status = StatusCancelled

	if err := r.insertLifecycleEvent(ctx, tx, appt, outbox.EventAppointmentCancelled); err != nil {
		return Appointment{}, false, err
	}
	return appt, true, tx.Commit(ctx)
}

// Confirm moves an approved appointment to confirmed, making it eligible
// for reminders.
func (r *Repository) Confirm(ctx context.Context, id string) (Appointment, error) {
	return r.transition(ctx, id, StatusApproved, StatusConfirmed, "")
}

// Complete finalizes a confirmed appointment.
func (r *Repository) Complete(ctx context.Context, id string) (Appointment, error) {
	return r.transition(ctx, id, StatusConfirmed, StatusCompleted, outbox.EventAppointmentCompleted)
}

func (r *Repository) transition(ctx context.Context, id string, from, to Status, eventType string) (Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, err := getForUpdate(ctx, tx, id)
	if err != nil {
		return Appointment{}, err
	}
	if appt.Status == to {
		return appt, tx.Commit(ctx)
	}
	if appt.Status != from {
		return Appointment{}, ErrInvalidTransition
	}

	err = tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, id, string(to)).Scan(&appt.UpdatedAt)
	if err != nil {
		return Appointment{}, err
	}
	appt.Status = to

	if eventType != "" {
		if err := r.insertLifecycleEvent(ctx, tx, appt, eventType); err != nil {
			return Appointment{}, err
		}
	}
	return appt, tx.Commit(ctx)
}

func (r *Repository) GetByID(ctx context.Context, id string) (Appointment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id)
	appt, err := scanAppointment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Appointment{}, ErrNotFound
	}
	return appt, err
}

// ListActiveIntervals is the read path the availability calculator uses.
func (r *Repository) ListActiveIntervals(ctx context.Context, resourceID, date string) ([]schedule.Interval, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT date::text, start_minute, end_minute
		FROM appointments
		WHERE resource_id = $1 AND date = $2 AND status <> $3
		ORDER BY start_minute
	`, resourceID, date, string(StatusCancelled))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var intervals []schedule.Interval
	for rows.Next() {
		var iv schedule.Interval
		if err := rows.Scan(&iv.Date, &iv.StartMinute, &iv.EndMinute); err != nil {
			return nil, err
		}
		intervals = append(intervals, iv)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return intervals, nil
}

func (r *Repository) ListByLocationDate(ctx context.Context, locationID, date string) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE location_id = $1 AND date = $2
		ORDER BY start_minute
	`, locationID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

// ListRemindable finds confirmed appointments whose start falls inside the
// window and that have no pending or sent ledger row of the given kind yet.
func (r *Repository) ListRemindable(ctx context.Context, from, to time.Time, kind string) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments a
		WHERE a.status = $1
			AND (a.date::timestamp + make_interval(mins => a.start_minute)) >= $2
			AND (a.date::timestamp + make_interval(mins => a.start_minute)) <= $3
			AND NOT EXISTS (
				SELECT 1 FROM notifications n
				WHERE n.appointment_id = a.id AND n.kind = $4 AND n.status IN ('pending', 'sent')
			)
		ORDER BY a.date, a.start_minute
	`, string(StatusConfirmed), from.UTC(), to.UTC(), kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

func (r *Repository) insertLifecycleEvent(ctx context.Context, tx pgx.Tx, appt Appointment, eventType string) error {
	payload, err := json.Marshal(map[string]any{
		"appointment_id": appt.ID,
		"location_id":    appt.LocationID,
		"resource_id":    appt.ResourceID,
		"client_id":      appt.ClientID,
		"date":           appt.Date,
		"start_minute":   appt.StartMinute,
		"end_minute":     appt.EndMinute,
		"status":         string(appt.Status),
		"service_ids":    appt.ServiceIDs,
		"total_value":    appt.TotalValue,
	})
	if err != nil {
		return err
	}
	return r.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     eventType,
		Payload:       payload,
	})
}

func acquireSlotLock(ctx context.Context, tx pgx.Tx, resourceID, date string) error {
	_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, slotLockKey(resourceID, date))
	return err
}

func slotLockKey(resourceID, date string) string {
	return resourceID + ":" + date
}

func listActiveIntervalsTx(ctx context.Context, tx pgx.Tx, resourceID, date, excludeID string) ([]schedule.Interval, error) {
	rows, err := tx.Query(ctx, `
		SELECT date::text, start_minute, end_minute
		FROM appointments
		WHERE resource_id = $1 AND date = $2 AND status <> $3 AND id::text <> $4
	`, resourceID, date, string(StatusCancelled), excludeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var intervals []schedule.Interval
	for rows.Next() {
		var iv schedule.Interval
		if err := rows.Scan(&iv.Date, &iv.StartMinute, &iv.EndMinute); err != nil {
			return nil, err
		}
		intervals = append(intervals, iv)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return intervals, nil
}

func getForUpdate(ctx context.Context, tx pgx.Tx, id string) (Appointment, error) {
	row := tx.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1 FOR UPDATE`, id)
	appt, err := scanAppointment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Appointment{}, ErrNotFound
	}
	return appt, err
}

func scanAppointment(row pgx.Row) (Appointment, error) {
	var appt Appointment
	var status string
	err := row.Scan(&appt.ID, &appt.LocationID, &appt.ResourceID, &appt.ClientID,
		&appt.Date, &appt.StartMinute, &appt.EndMinute, &status, &appt.ServiceIDs,
		&appt.TotalValue, &appt.CancelledAt, &appt.CreatedAt, &appt.UpdatedAt)
	if err != nil {
		return Appointment{}, err
	}
	appt.Status = Status(status)
	return appt, nil
}

// isOverlapViolation matches the exclusion constraint that backstops the
// overlap check (Postgres error 23P01).
func isOverlapViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23P01"
}
