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
	"github.com/glamhq/glam/services/payment-service/internal/handlers"
	"github.com/glamhq/glam/services/payment-service/internal/payments"
	"github.com/glamhq/glam/services/payment-service/internal/sadad"
	"github.com/glamhq/glam/services/payment-service/internal/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	if err := config.Bootstrap(); err != nil {
		panic(err)
	}
	service := config.String("SERVICE_NAME", "payment-service")
	port, err := config.Port("PORT", "8085")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	loc, err := time.LoadLocation(config.String("GLAM_TIMEZONE", "Asia/Qatar"))
	if err != nil {
		logger.Error("invalid GLAM_TIMEZONE", "err", err)
		panic(err)
	}

	sadadCfg := sadad.Config{
		MerchantID:  config.String("SADAD_MERCHANT_ID", ""),
		MerchantKey: config.String("SADAD_MERCHANT_KEY", ""),
		Website:     config.String("SADAD_WEBSITE", ""),
		CallbackURL: config.String("SADAD_CALLBACK_URL", ""),
		GatewayURL:  config.String("SADAD_GATEWAY_URL", "https://sadadqa.com/webpurchase"),
		SessionURL:  config.String("SADAD_SESSION_URL", ""),
		Language:    config.String("SADAD_LANGUAGE", "ENG"),
	}
	if err := sadadCfg.Validate(); err != nil {
		logger.Error("invalid sadad configuration", "err", err)
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

	reg := metrics.NewRegistry()
	paymentMetrics := payments.NewMetrics(reg)
	outboxRepo := outbox.NewRepository(pool)
	repo := storage.NewRepository(pool, outboxRepo)
	checkout := sadad.NewClient(sadadCfg.SessionURL, config.Seconds("SADAD_TIMEOUT_SECONDS", 10))

	svc := payments.NewService(repo, sadadCfg, checkout, clock.Real{}, loc, paymentMetrics, logger)
	poller := payments.NewPoller(repo, clock.Real{}, payments.PollerConfig{
		Attempts: config.Int("PAYMENT_POLL_ATTEMPTS", payments.DefaultPollAttempts),
		Interval: config.Seconds("PAYMENT_POLL_INTERVAL_SECONDS", int(payments.DefaultPollInterval/time.Second)),
	}, paymentMetrics, logger)

	sweeper := payments.NewSweeper(repo, clock.Real{}, payments.SweeperConfig{
		TTL:       time.Duration(config.Int("PAYMENT_TTL_MINUTES", 30)) * time.Minute,
		Interval:  config.Seconds("PAYMENT_SWEEP_INTERVAL_SECONDS", 60),
		BatchSize: config.Int("PAYMENT_SWEEP_BATCH", 100),
	}, paymentMetrics, logger)
	go sweeper.Run(ctx)

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	dbCheck := db.ReadyCheck(pool)
	kafkaCheck := kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))

	grpcServer := grpcx.NewServer(logger)
	if err := grpcServer.Start(ctx, ":"+config.String("GRPC_PORT", "9085")); err != nil {
		logger.Error("grpc server failed", "err", err)
		panic(err)
	}
	go grpcServer.Watch(ctx, 15*time.Second, dbCheck, kafkaCheck)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: dbCheck},
		runtime.ReadyCheck{Name: "kafka", Check: kafkaCheck},
	)
	mux.Handle("GET /metrics", metrics.Handler(reg))
	handlers.NewPaymentHandler(svc, poller, config.String("PAYMENT_RETURN_URL", ""), logger).Register(mux)

	logger.Info("payment polling configured", "budget", poller.Budget().String(), "checkout_session", checkout.Enabled())

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		metrics.NewHTTP(reg, service).Middleware(),
		httpx.WithBodyLimit(1<<20),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "payment")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	runtime.Serve(ctx, srv, logger, 10*time.Second)
}
