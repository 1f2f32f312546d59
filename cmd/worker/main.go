package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"github.com/joao-fontenele/order-service/internal/config"
	"github.com/joao-fontenele/order-service/internal/messaging"
	"github.com/joao-fontenele/order-service/internal/orders"
	"github.com/joao-fontenele/order-service/internal/payments"
	"github.com/joao-fontenele/order-service/internal/postgres"
	"github.com/joao-fontenele/order-service/internal/telemetry"
)

const serviceName = "payment-worker"

func main() {
	cfg, err := config.Load()
	if err == nil {
		err = cfg.RequireKafka()
	}
	if err != nil {
		telemetry.NewLogger(slog.LevelInfo).Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := telemetry.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, serviceName, cfg.ServiceVersion, cfg.OTLPEndpoint)
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider(serviceName, cfg.ServiceVersion)
	if err != nil {
		logger.Error("failed to initialize metrics", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(context.Background()) }()

	dsn, err := postgres.DSNWithSearchPath(cfg.PostgresURL, cfg.DBSchema)
	if err != nil {
		logger.Error("invalid POSTGRES_URL", "error", err)
		os.Exit(1)
	}

	db, err := telemetry.OpenPostgres(ctx, dsn)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	reconciler := payments.NewReconciler(orders.NewOrderRepository(db), logger)

	consumer := messaging.NewConsumer(cfg.KafkaBrokers, cfg.PaymentsTopic, cfg.ConsumerGroup)
	defer func() { _ = consumer.Close() }()

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metricsHandler)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting payment worker", "brokers", cfg.KafkaBrokers, "topic", cfg.PaymentsTopic, "group", cfg.ConsumerGroup)
		return consumer.Consume(gctx, reconciler.Handle)
	})

	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("worker stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("worker stopped")
}
