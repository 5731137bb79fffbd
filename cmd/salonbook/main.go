package main

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/amezina/salonbook/internal/catalog"
	"github.com/amezina/salonbook/internal/config"
	"github.com/amezina/salonbook/internal/db"
	"github.com/amezina/salonbook/internal/engine"
	"github.com/amezina/salonbook/internal/handlers"
	"github.com/amezina/salonbook/internal/httpx"
	"github.com/amezina/salonbook/internal/kafkax"
	"github.com/amezina/salonbook/internal/notify"
	"github.com/amezina/salonbook/internal/otelx"
	"github.com/amezina/salonbook/internal/outbox"
	"github.com/amezina/salonbook/internal/runtime"
	"github.com/amezina/salonbook/internal/session"
	"github.com/amezina/salonbook/internal/storage"
)

func main() {
	service := config.String("SERVICE_NAME", "salonbook")
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

	repo := storage.NewAppointmentRepository(pool)
	if err := repo.EnsureSchema(ctx); err != nil {
		logger.Error("schema setup failed", "err", err)
		panic(err)
	}
	outboxRepo := outbox.NewRepository(pool)
	if err := outboxRepo.EnsureSchema(ctx); err != nil {
		logger.Error("outbox schema setup failed", "err", err)
		panic(err)
	}

	cat, err := catalog.New(
		config.Int("MONTH_WINDOW", catalog.DefaultMonthWindow),
		config.List("DAILY_TIMES", catalog.DefaultTimes),
	)
	if err != nil {
		logger.Error("invalid slot configuration", "err", err)
		panic(err)
	}

	var rdb *redis.Client
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
		})
	}

	var sessions session.Store
	if rdb != nil {
		sessions = session.NewRedisStore(rdb, config.Minutes("SESSION_TTL_MINUTES", 30*time.Minute))
		logger.Info("session store: redis")
	} else {
		sessions = session.NewMemoryStore()
		logger.Info("session store: memory")
	}

	kafkaBrokers := config.String("KAFKA_BROKERS", "")
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   kafkaBrokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	notifiers := notify.Multi{notify.NewEventNotifier(pool, outboxRepo, logger)}
	if url := config.String("OPERATOR_WEBHOOK_URL", ""); url != "" {
		notifiers = append(notifiers, notify.NewWebhookNotifier(url, config.String("OPERATOR_WEBHOOK_TOKEN", ""), logger))
	}

	eng := engine.New(repo, sessions, cat, notifiers, logger)

	readyChecks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
	}
	if kafkaBrokers != "" {
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(kafkaBrokers)})
	}
	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	handlers.NewBookingHandler(eng, logger).Register(mux)

	middlewares := []httpx.Middleware{
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1 << 16),
	}
	limitPerMinute := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	if limitPerMinute > 0 {
		if rdb != nil {
			rl := httpx.NewRedisRateLimiter(rdb, limitPerMinute, time.Minute, "rl")
			middlewares = append(middlewares, rl.Middleware(logger, true))
			logger.Info("rate limiting enabled (redis)", "per_minute", limitPerMinute)
		} else {
			rl := httpx.NewRateLimiter(limitPerMinute, time.Minute)
			middlewares = append(middlewares, rl.Middleware())
			logger.Info("rate limiting enabled (memory)", "per_minute", limitPerMinute)
		}
	}

	httpHandler := httpx.Chain(mux, middlewares...)
	httpHandler = otelhttp.NewHandler(httpHandler, "salonbook")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
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
