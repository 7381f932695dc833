package hours

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/slotbook/slotbook/internal/schedule"
	"github.com/slotbook/slotbook/libs/db"
)

// Store reads business-hours configuration from Postgres. The rows are owned
// by configuration management; this system only reads them.
type Store struct {
	pool *db.Pool
}

func NewStore(pool *db.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) DayHours(ctx context.Context, locationID string, weekday time.Weekday) (schedule.DayHours, error) {
	var isOpen bool
	var rawWindows []byte
	err := s.pool.QueryRow(ctx, `
		SELECT is_open, windows
		FROM business_hours
		WHERE location_id = $1 AND weekday = $2
	`, locationID, int(weekday)).Scan(&isOpen, &rawWindows)
	if errors.Is(err, pgx.ErrNoRows) {
		// No configuration for the day means the location is closed.
		return schedule.DayHours{IsOpen: false}, nil
	}
	if err != nil {
		return schedule.DayHours{}, err
	}

	dh := schedule.DayHours{IsOpen: isOpen}
	if len(rawWindows) > 0 {
		if err := json.Unmarshal(rawWindows, &dh.Windows); err != nil {
			return schedule.DayHours{}, err
		}
	}
	if len(dh.Windows) == 0 {
		dh.IsOpen = false
	}
	return dh, nil
}
