package loyalty

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/slotbook/slotbook/libs/db"
)

// Summary is the loyalty-point snapshot attached to client-facing messages.
// The balances are maintained by the loyalty collaborator; this system never
// writes them.
type Summary struct {
	Balance           int
	EarnedThisBooking int
	EligibleToRedeem  bool
}

type Reader struct {
	pool *db.Pool
}

func NewReader(pool *db.Pool) *Reader {
	return &Reader{pool: pool}
}

// Summary returns the client's loyalty snapshot. A client without an account
// simply has no summary (ok = false); that is not an error.
func (r *Reader) Summary(ctx context.Context, clientID string) (Summary, bool, error) {
	var s Summary
	var threshold int
	err := r.pool.QueryRow(ctx, `
		SELECT balance, last_earned, redeem_threshold
		FROM loyalty_accounts
		WHERE client_id = $1
	`, clientID).Scan(&s.Balance, &s.EarnedThisBooking, &threshold)
	if errors.Is(err, pgx.ErrNoRows) {
		return Summary{}, false, nil
	}
	if err != nil {
		return Summary{}, false, err
	}
	s.EligibleToRedeem = threshold > 0 && s.Balance >= threshold
	return s, true, nil
}
