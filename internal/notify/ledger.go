package notify

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/slotbook/slotbook/libs/db"
)

// Record statuses. A row is inserted as pending the moment a send is handed
// to the delivery queue and is updated in place with each outcome.
const (
	StatusPending           = "pending"
	StatusSent              = "sent"
	StatusFailed            = "failed"
	StatusPermanentlyFailed = "permanently_failed"
)

type Record struct {
	ID                string
	AppointmentID     string
	LocationID        string
	Kind              Kind
	Status            string
	Attempts          int
	TargetPhone       string
	RenderedMessage   string
	ProviderMessageID string
	ErrorDetail       string
	ScheduledAt       *time.Time
	LastAttemptAt     *time.Time
	SentAt            *time.Time
	CreatedAt         time.Time
}

// Attempt is one delivery attempt entering the ledger.
type Attempt struct {
	AppointmentID   string
	LocationID      string
	Kind            Kind
	TargetPhone     string
	RenderedMessage string
	ScheduledAt     *time.Time
}

// Ledger is the durable history of every notification attempt. Rows are
// never deleted.
type Ledger struct {
	pool *db.Pool
}

func NewLedger(pool *db.Pool) *Ledger {
	return &Ledger{pool: pool}
}

// RecordPending writes the row for a send that was just handed to the
// delivery queue, before the gateway resolves, so dedup checks and the
// reminder scanner see in-flight work.
func (l *Ledger) RecordPending(ctx context.Context, a Attempt) (string, error) {
	id := uuid.NewString()
	_, err := l.pool.Exec(ctx, `
		INSERT INTO notifications
			(id, appointment_id, location_id, kind, status, attempts, target_phone,
			 rendered_message, scheduled_at)
		VALUES ($1, $2, $3, $4, $5, 0, $6, $7, $8)
	`, id, a.AppointmentID, a.LocationID, string(a.Kind), StatusPending, a.TargetPhone,
		a.RenderedMessage, a.ScheduledAt)
	if err != nil {
		return "", err
	}
	return id, nil
}

// RecordOutcome finishes one attempt on an existing row: it bumps the attempt
// counter and moves the row to sent or failed.
func (l *Ledger) RecordOutcome(ctx context.Context, recordID string, result SendResult) error {
	now := time.Now().UTC()
	if result.OK {
		_, err := l.pool.Exec(ctx, `
			UPDATE notifications
			SET status = $2,
				attempts = attempts + 1,
				provider_message_id = $3,
				error_detail = NULL,
				last_attempt_at = $4,
				sent_at = $4
			WHERE id = $1
		`, recordID, StatusSent, result.ProviderMessageID, now)
		return err
	}

	errDetail := "send failed"
	if result.Err != nil {
		errDetail = result.Err.Error()
	}
	_, err := l.pool.Exec(ctx, `
		UPDATE notifications
		SET status = $2,
			attempts = attempts + 1,
			error_detail = $3,
			last_attempt_at = $4
		WHERE id = $1
	`, recordID, StatusFailed, errDetail, now)
	return err
}

// HasDelivery is the best-effort dedup check: it reports whether a pending or
// sent record exists for (appointment, kind, phone). The gateway is not
// idempotent, so this is advisory, not a hard uniqueness guarantee.
func (l *Ledger) HasDelivery(ctx context.Context, appointmentID string, kind Kind, phone string) (bool, error) {
	var exists bool
	err := l.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM notifications
			WHERE appointment_id = $1 AND kind = $2 AND target_phone = $3
				AND status IN ($4, $5)
		)
	`, appointmentID, string(kind), phone, StatusPending, StatusSent).Scan(&exists)
	return exists, err
}

func (l *Ledger) ListByAppointment(ctx context.Context, appointmentID string) ([]Record, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT id, appointment_id, location_id, kind, status, attempts, target_phone,
			COALESCE(rendered_message, ''), COALESCE(provider_message_id, ''),
			COALESCE(error_detail, ''), scheduled_at, last_attempt_at, sent_at, created_at
		FROM notifications
		WHERE appointment_id = $1
		ORDER BY created_at ASC
	`, appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

// ClaimRetryable claims at most one failed record below the attempt ceiling
// whose last attempt predates the backoff. Stamping last_attempt_at inside
// the claim moves the row outside every other worker's window, and the single
// statement means no transaction is held while the caller drives the send; a
// claim whose process dies before RecordOutcome resurfaces once the backoff
// elapses again.
func (l *Ledger) ClaimRetryable(ctx context.Context, maxAttempts int, backoff time.Duration) (Record, bool, error) {
	cutoff := time.Now().UTC().Add(-backoff)
	row := l.pool.QueryRow(ctx, `
		UPDATE notifications
		SET last_attempt_at = now()
		WHERE id = (
			SELECT id FROM notifications
			WHERE status = $1 AND attempts < $2 AND last_attempt_at <= $3
			ORDER BY last_attempt_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, appointment_id, location_id, kind, status, attempts, target_phone,
			COALESCE(rendered_message, ''), COALESCE(provider_message_id, ''),
			COALESCE(error_detail, ''), scheduled_at, last_attempt_at, sent_at, created_at
	`, StatusFailed, maxAttempts, cutoff)

	var r Record
	var kind string
	err := row.Scan(&r.ID, &r.AppointmentID, &r.LocationID, &kind, &r.Status,
		&r.Attempts, &r.TargetPhone, &r.RenderedMessage, &r.ProviderMessageID,
		&r.ErrorDetail, &r.ScheduledAt, &r.LastAttemptAt, &r.SentAt, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	r.Kind = Kind(kind)
	return r, true, nil
}

// MarkPermanentlyFailed retires failed records that have exhausted the
// configured attempt ceiling.
func (l *Ledger) MarkPermanentlyFailed(ctx context.Context, maxAttempts int) (int64, error) {
	tag, err := l.pool.Exec(ctx, `
		UPDATE notifications
		SET status = $1
		WHERE status = $2 AND attempts >= $3
	`, StatusPermanentlyFailed, StatusFailed, maxAttempts)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanRecords(rows pgx.Rows) ([]Record, error) {
	var records []Record
	for rows.Next() {
		var r Record
		var kind string
		if err := rows.Scan(&r.ID, &r.AppointmentID, &r.LocationID, &kind, &r.Status,
			&r.Attempts, &r.TargetPhone, &r.RenderedMessage, &r.ProviderMessageID,
			&r.ErrorDetail, &r.ScheduledAt, &r.LastAttemptAt, &r.SentAt, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Kind = Kind(kind)
		records = append(records, r)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}
