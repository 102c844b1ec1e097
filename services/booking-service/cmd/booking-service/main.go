package main

import (
	"context"
	"net/http"
	"time"
	_ "time/tzdata"

	"github.com/glamhq/glam/libs/clock"
	"github.com/glamhq/glam/libs/config"
	"github.com/glamhq/glam/libs/db"
	"github.com/glamhq/glam/libs/grpcx"
	"github.com/glamhq/glam/libs/httpx"
	"github.com/glamhq/glam/libs/kafkax"
	"github.com/glamhq/glam/libs/metrics"
	otelx "github.com/glamhq/glam/libs/otel"
	"github.com/glamhq/glam/libs/outbox"
	"github.com/glamhq/glam/libs/runtime"
	"github.com/glamhq/glam/services/booking-service/internal/bookings"
	"github.com/glamhq/glam/services/booking-service/internal/cache"
	"github.com/glamhq/glam/services/booking-service/internal/consumer"
	"github.com/glamhq/glam/services/booking-service/internal/handlers"
	"github.com/glamhq/glam/services/booking-service/internal/inbox"
	"github.com/glamhq/glam/services/booking-service/internal/schedule"
	"github.com/glamhq/glam/services/booking-service/internal/storage"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	if err := config.Bootstrap(); err != nil {
		panic(err)
	}
	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8083")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	loc, err := time.LoadLocation(config.String("GLAM_TIMEZONE", "Asia/Qatar"))
	if err != nil {
		logger.Error("invalid GLAM_TIMEZONE", "err", err)
		panic(err)
	}

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
	pool, err := db.Open(ctx, dbURL, db.Options{MaxConns: int32(config.Int("DB_MAX_CONNS", 10))})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	checks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
		{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	}

	var store cache.Store = cache.NewMemoryStore()
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0),
		})
		defer func() { _ = rdb.Close() }()
		store = cache.NewRedisStore(rdb)
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: cache.ReadyCheck(rdb)})
	} else {
		logger.Warn("REDIS_ADDR not set; using in-process cache")
	}
	cacheTTL := config.Seconds("CACHE_TTL_SECONDS", 300)

	reg := metrics.NewRegistry()
	outboxRepo := outbox.NewRepository(pool)
	scheduleRepo := storage.NewScheduleRepository(pool)
	bookingRepo := storage.NewBookingRepository(pool, outboxRepo)

	scheduleSvc := schedule.NewService(scheduleRepo, bookingRepo, store, clock.Real{}, logger, schedule.Config{
		Location: loc,
		CacheTTL: cacheTTL,
	})
	bookingSvc := bookings.NewService(bookingRepo, store, cacheTTL, bookings.NewMetrics(reg), logger)

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	if brokers := config.String("KAFKA_BROKERS", ""); brokers != "" {
		paymentConsumer := consumer.New(logger, inbox.NewRepository(pool), consumer.Config{
			Brokers: brokers,
			GroupID: config.String("KAFKA_GROUP_ID", "booking-service"),
			Topic:   config.String("KAFKA_PAYMENT_TOPIC", bookings.EventPaymentCompleted),
		}, bookingSvc.HandlePaymentCompleted)
		go paymentConsumer.Run(ctx)
	}

	grpcServer := grpcx.NewServer(logger)
	if err := grpcServer.Start(ctx, ":"+config.String("GRPC_PORT", "9083")); err != nil {
		logger.Error("grpc server failed", "err", err)
		panic(err)
	}
	go grpcServer.Watch(ctx, 15*time.Second, readyFuncs(checks)...)

	mux := runtime.NewBaseMuxWithReady(checks...)
	mux.Handle("GET /metrics", metrics.Handler(reg))
	handlers.NewScheduleHandler(scheduleSvc, logger).Register(mux)
	handlers.NewBookingHandler(bookingSvc, logger).Register(mux)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		metrics.NewHTTP(reg, service).Middleware(),
		httpx.WithBodyLimit(1<<20),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	runtime.Serve(ctx, srv, logger, 10*time.Second)
}

func readyFuncs(checks []runtime.ReadyCheck) []func(context.Context) error {
	out := make([]func(context.Context) error, 0, len(checks))
	for _, c := range checks {
		out = append(out, c.Check)
	}
	return out
}
