package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/slotbook/slotbook/internal/booking"
	"github.com/slotbook/slotbook/internal/handlers"
	"github.com/slotbook/slotbook/internal/hours"
	"github.com/slotbook/slotbook/internal/loyalty"
	"github.com/slotbook/slotbook/internal/notify"
	"github.com/slotbook/slotbook/internal/outbox"
	"github.com/slotbook/slotbook/internal/reminder"
	"github.com/slotbook/slotbook/libs/config"
	"github.com/slotbook/slotbook/libs/db"
	"github.com/slotbook/slotbook/libs/httpx"
	"github.com/slotbook/slotbook/libs/kafkax"
	otelx "github.com/slotbook/slotbook/libs/otel"
	"github.com/slotbook/slotbook/libs/runtime"
)

func main() {
	service := config.String("SERVICE_NAME", "slotbook")
	port, err := config.Port("PORT", "8080")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	var rdb *redis.Client
	if redisAddr := config.String("REDIS_ADDR", ""); redisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: redisAddr})
		defer func() { _ = rdb.Close() }()
	} else {
		logger.Warn("redis not configured; hours cache and rate limiting disabled")
	}

	hoursStore := hours.NewStore(pool)
	hoursResolver := hours.NewCachedResolver(hoursStore, rdb,
		config.Duration("HOURS_CACHE_TTL", 5*time.Minute), logger)

	outboxRepo := outbox.NewRepository()
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: config.Duration("OUTBOX_POLL_INTERVAL", 2*time.Second),
		BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
	})
	go outboxPublisher.Run(ctx)

	simulated := config.Bool("NOTIFY_SIMULATED", true)
	var gateway notify.Gateway
	if simulated {
		gateway = notify.NoopGateway{}
	} else {
		gateway = notify.NewHTTPGateway(
			config.String("GATEWAY_URL", ""),
			config.String("GATEWAY_API_KEY", ""),
			config.Duration("GATEWAY_TIMEOUT", 10*time.Second),
		)
	}

	queue := notify.NewQueue(gateway, logger, notify.QueueConfig{
		Capacity:    config.Int("NOTIFY_QUEUE_CAPACITY", 256),
		SendTimeout: config.Duration("NOTIFY_SEND_TIMEOUT", 15*time.Second),
		PacingMin:   config.Duration("NOTIFY_PACING_MIN", time.Second),
		PacingMax:   config.Duration("NOTIFY_PACING_MAX", 3*time.Second),
	})
	go queue.Run(ctx)

	ledger := notify.NewLedger(pool)
	loyaltyReader := loyalty.NewReader(pool)
	views := notify.NewViewLoader(pool, loyaltyReader, logger)
	dispatcher := notify.NewDispatcher(views, queue, ledger, logger, notify.DispatcherConfig{
		Enabled:   config.Bool("NOTIFY_ENABLED", true),
		Simulated: simulated,
	})

	retryWorker := notify.NewRetryWorker(ledger, queue, logger, notify.RetryConfig{
		Interval:    config.Duration("NOTIFY_RETRY_INTERVAL", time.Minute),
		Backoff:     config.Duration("NOTIFY_RETRY_BACKOFF", 5*time.Minute),
		MaxAttempts: config.Int("NOTIFY_MAX_ATTEMPTS", 5),
		BatchSize:   config.Int("NOTIFY_RETRY_BATCH", 20),
	})
	go retryWorker.Run(ctx)

	bookingRepo := booking.NewRepository(pool, outboxRepo)
	bookingSvc := booking.NewService(bookingRepo, hoursResolver, dispatcher, logger)

	scanner := reminder.NewScanner(bookingRepo, dispatcher, logger, reminder.Config{
		Interval: config.Duration("REMINDER_SCAN_INTERVAL", time.Minute),
		Leads: []reminder.Lead{
			{Kind: notify.KindReminder24h, Ahead: config.Duration("REMINDER_LEAD_24H", 24 * time.Hour), Slack: config.Duration("REMINDER_SLACK", time.Hour)},
			{Kind: notify.KindReminder2h, Ahead: config.Duration("REMINDER_LEAD_2H", 2 * time.Hour), Slack: config.Duration("REMINDER_SLACK", time.Hour)},
		},
	})
	go scanner.Run(ctx)

	readyChecks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
	}
	if brokers := config.String("KAFKA_BROKERS", ""); strings.TrimSpace(brokers) != "" {
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}
	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	mux.Handle("/metrics", promhttp.Handler())

	apptHandler := handlers.NewAppointmentHandler(bookingSvc, ledger, logger)
	apptHandler.Register(mux)

	middleware := []httpx.Middleware{
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1 << 20),
		httpx.WithTimeout(config.Duration("REQUEST_TIMEOUT", 30*time.Second)),
	}
	if origins := config.String("CORS_ALLOWED_ORIGINS", ""); origins != "" {
		middleware = append(middleware, httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: strings.Split(origins, ","),
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "X-Request-Id"},
		}))
	}
	rateLimit := config.Int("RATE_LIMIT", 120)
	rateWindow := config.Duration("RATE_LIMIT_WINDOW", time.Minute)
	if rdb != nil {
		limiter := httpx.NewRedisRateLimiter(rdb, rateLimit, rateWindow, service)
		middleware = append(middleware, limiter.Middleware(logger, true))
	} else {
		middleware = append(middleware, httpx.NewRateLimiter(rateLimit, rateWindow).Middleware())
	}
	handler := httpx.Chain(mux, middleware...)
	handler = otelhttp.NewHandler(handler, service)

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr, "simulated_notifications", simulated)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
