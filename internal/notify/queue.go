package notify

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"time"

	"github.com/slotbook/slotbook/internal/metrics"
)

// ErrQueueClosed is delivered to callers whose sends were still queued when
// the process shut down.
var ErrQueueClosed = errors.New("delivery queue closed")

type Send struct {
	Phone string
	Body  string
}

type SendResult struct {
	OK                bool
	ProviderMessageID string
	Err               error
}

type QueueConfig struct {
	Capacity    int
	SendTimeout time.Duration
	// Randomized pacing delay between sends; zero max disables pacing.
	PacingMin time.Duration
	PacingMax time.Duration
}

// Queue serializes every outbound send through one goroutine so gateway
// calls are strictly FIFO within this process. It is the single owner of the
// outbound channel; nothing else talks to the gateway directly.
//
// The ordering guarantee is per-process only. Running several instances
// requires moving this to a shared broker; see DESIGN.md.
type Queue struct {
	gateway Gateway
	logger  *slog.Logger
	cfg     QueueConfig
	jobs    chan queueJob
}

type queueJob struct {
	send   Send
	result chan SendResult
}

func NewQueue(gateway Gateway, logger *slog.Logger, cfg QueueConfig) *Queue {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 256
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 15 * time.Second
	}
	if cfg.PacingMin < 0 {
		cfg.PacingMin = 0
	}
	if cfg.PacingMax < cfg.PacingMin {
		cfg.PacingMax = cfg.PacingMin
	}
	return &Queue{
		gateway: gateway,
		logger:  logger,
		cfg:     cfg,
		jobs:    make(chan queueJob, cfg.Capacity),
	}
}

// Enqueue appends a send to the tail of the pipeline and returns a channel
// that receives exactly one SendResult. The queue never surfaces gateway
// errors as errors; they arrive inside the result so the ledger step always
// runs. Once enqueued, a send runs to completion — there is no cancellation.
func (q *Queue) Enqueue(ctx context.Context, s Send) <-chan SendResult {
	result := make(chan SendResult, 1)
	// Buffer space would otherwise let the select accept a send on an
	// already-cancelled context.
	if err := ctx.Err(); err != nil {
		result <- SendResult{OK: false, Err: err}
		return result
	}
	select {
	case q.jobs <- queueJob{send: s, result: result}:
		metrics.QueueDepth.Inc()
	case <-ctx.Done():
		result <- SendResult{OK: false, Err: ctx.Err()}
	}
	return result
}

// Run owns the gateway until ctx is cancelled. Call it from exactly one
// goroutine.
func (q *Queue) Run(ctx context.Context) {
	for {
		// Shutdown wins over pending work so drained jobs fail fast instead
		// of racing the cancelled context into the gateway.
		select {
		case <-ctx.Done():
			q.drain()
			return
		default:
		}
		select {
		case <-ctx.Done():
			q.drain()
			return
		case job := <-q.jobs:
			metrics.QueueDepth.Dec()
			q.process(ctx, job)
		}
	}
}

func (q *Queue) process(ctx context.Context, job queueJob) {
	if delay := q.pacingDelay(); delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			// Shutdown during pacing: still attempt the send, it was accepted.
		}
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), q.cfg.SendTimeout)
	defer cancel()

	started := time.Now()
	providerID, err := q.gateway.Send(sendCtx, job.send.Phone, job.send.Body)
	metrics.SendDuration.Observe(time.Since(started).Seconds())

	if err != nil {
		metrics.SendsTotal.WithLabelValues("failed").Inc()
		q.logger.Warn("gateway send failed", "err", err, "phone", job.send.Phone)
		job.result <- SendResult{OK: false, Err: err}
		return
	}
	metrics.SendsTotal.WithLabelValues("sent").Inc()
	job.result <- SendResult{OK: true, ProviderMessageID: providerID}
}

// drain fails whatever is still queued so no caller blocks forever.
func (q *Queue) drain() {
	for {
		select {
		case job := <-q.jobs:
			metrics.QueueDepth.Dec()
			job.result <- SendResult{OK: false, Err: ErrQueueClosed}
		default:
			return
		}
	}
}

func (q *Queue) pacingDelay() time.Duration {
	if q.cfg.PacingMax <= 0 {
		return 0
	}
	spread := q.cfg.PacingMax - q.cfg.PacingMin
	if spread <= 0 {
		return q.cfg.PacingMin
	}
	return q.cfg.PacingMin + time.Duration(rand.Int63n(int64(spread)))
}
