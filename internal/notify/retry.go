package notify

import (
	"context"
	"log/slog"
	"time"
)

type RetryConfig struct {
	Interval    time.Duration
	Backoff     time.Duration
	MaxAttempts int
	BatchSize   int
}

// RetryStore is the ledger slice the retry worker drives; *Ledger satisfies
// it.
type RetryStore interface {
	ClaimRetryable(ctx context.Context, maxAttempts int, backoff time.Duration) (Record, bool, error)
	RecordOutcome(ctx context.Context, recordID string, result SendResult) error
	MarkPermanentlyFailed(ctx context.Context, maxAttempts int) (int64, error)
}

// RetryWorker re-drives failed ledger records through the delivery queue and
// retires the ones that exhausted the attempt ceiling. The ceiling is policy,
// not a constant: it comes from configuration.
type RetryWorker struct {
	ledger RetryStore
	queue  Enqueuer
	logger *slog.Logger
	cfg    RetryConfig
}

func NewRetryWorker(ledger RetryStore, queue Enqueuer, logger *slog.Logger, cfg RetryConfig) *RetryWorker {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 5 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	return &RetryWorker{ledger: ledger, queue: queue, logger: logger, cfg: cfg}
}

func (w *RetryWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.retryBatch(ctx); err != nil {
				w.logger.Error("notification retry batch failed", "err", err)
			}
		}
	}
}

// retryBatch claims and re-sends one record at a time. Each claim is a single
// statement, so no transaction spans a gateway call: a delivered message has
// its outcome recorded before the next row is touched.
func (w *RetryWorker) retryBatch(ctx context.Context) error {
	for i := 0; i < w.cfg.BatchSize; i++ {
		rec, ok, err := w.ledger.ClaimRetryable(ctx, w.cfg.MaxAttempts, w.cfg.Backoff)
		if err != nil {
			return err
		}
		if !ok {
			break
		}

		res := <-w.queue.Enqueue(ctx, Send{Phone: rec.TargetPhone, Body: rec.RenderedMessage})
		if err := w.ledger.RecordOutcome(ctx, rec.ID, res); err != nil {
			return err
		}
		if res.OK {
			w.logger.Info("notification retry succeeded", "record_id", rec.ID, "attempts", rec.Attempts+1)
		}
	}

	retired, err := w.ledger.MarkPermanentlyFailed(ctx, w.cfg.MaxAttempts)
	if err != nil {
		return err
	}
	if retired > 0 {
		w.logger.Warn("notifications permanently failed", "count", retired, "max_attempts", w.cfg.MaxAttempts)
	}
	return nil
}
