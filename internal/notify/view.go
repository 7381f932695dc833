package notify

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/slotbook/slotbook/internal/loyalty"
	"github.com/slotbook/slotbook/libs/db"
)

// AppointmentEvent is the snapshot the booking path hands to the dispatcher.
// It carries ids only; display data is resolved by the view loader.
type AppointmentEvent struct {
	AppointmentID string
	LocationID    string
	ResourceID    string
	ClientID      string
	Date          string // YYYY-MM-DD
	StartMinute   int
	EndMinute     int
	ServiceIDs    []string
	TotalValue    int64 // cents
}

// View is the fully resolved input to every message template. It is built
// once per appointment event and passed uniformly to each template function.
type View struct {
	AppointmentID string
	ClientName    string
	ClientPhone   string
	ResourceName  string
	ResourcePhone string
	LocationName  string
	ServiceNames  []string
	Date          string
	StartMinute   int
	EndMinute     int
	TotalValue    int64
	Loyalty       *loyalty.Summary
}

type LoyaltyReader interface {
	Summary(ctx context.Context, clientID string) (loyalty.Summary, bool, error)
}

// ViewLoader enriches an appointment event with client, staff, location and
// service display data plus an optional loyalty summary.
type ViewLoader interface {
	BuildView(ctx context.Context, evt AppointmentEvent) (View, error)
}

type pgViewLoader struct {
	pool    *db.Pool
	loyalty LoyaltyReader
	logger  *slog.Logger
}

func NewViewLoader(pool *db.Pool, loyaltyReader LoyaltyReader, logger *slog.Logger) ViewLoader {
	return &pgViewLoader{pool: pool, loyalty: loyaltyReader, logger: logger}
}

func (l *pgViewLoader) BuildView(ctx context.Context, evt AppointmentEvent) (View, error) {
	v := View{
		AppointmentID: evt.AppointmentID,
		Date:          evt.Date,
		StartMinute:   evt.StartMinute,
		EndMinute:     evt.EndMinute,
		TotalValue:    evt.TotalValue,
	}

	err := l.pool.QueryRow(ctx, `
		SELECT c.name, c.phone
		FROM clients c
		WHERE c.id = $1
	`, evt.ClientID).Scan(&v.ClientName, &v.ClientPhone)
	if err != nil {
		return View{}, err
	}

	err = l.pool.QueryRow(ctx, `
		SELECT r.name, COALESCE(r.phone, '')
		FROM resources r
		WHERE r.id = $1
	`, evt.ResourceID).Scan(&v.ResourceName, &v.ResourcePhone)
	if err != nil {
		return View{}, err
	}

	err = l.pool.QueryRow(ctx, `
		SELECT name FROM locations WHERE id = $1
	`, evt.LocationID).Scan(&v.LocationName)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return View{}, err
	}

	if len(evt.ServiceIDs) > 0 {
		rows, err := l.pool.Query(ctx, `
			SELECT id, name FROM services WHERE id = ANY($1)
		`, evt.ServiceIDs)
		if err != nil {
			return View{}, err
		}
		defer rows.Close()

		names := make(map[string]string, len(evt.ServiceIDs))
		for rows.Next() {
			var id, name string
			if err := rows.Scan(&id, &name); err != nil {
				return View{}, err
			}
			names[id] = name
		}
		if rows.Err() != nil {
			return View{}, rows.Err()
		}
		// Preserve the booking's service order.
		for _, id := range evt.ServiceIDs {
			if name := strings.TrimSpace(names[id]); name != "" {
				v.ServiceNames = append(v.ServiceNames, name)
			}
		}
	}

	if l.loyalty != nil {
		summary, ok, err := l.loyalty.Summary(ctx, evt.ClientID)
		if err != nil {
			// A broken loyalty read must not block the notification.
			l.logger.Warn("loyalty summary fetch failed", "err", err, "client_id", evt.ClientID)
		} else if ok {
			v.Loyalty = &summary
		}
	}

	return v, nil
}
