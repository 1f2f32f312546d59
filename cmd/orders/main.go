package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	_ "github.com/lib/pq"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/joao-fontenele/order-service/internal/auth"
	"github.com/joao-fontenele/order-service/internal/catalog"
	"github.com/joao-fontenele/order-service/internal/config"
	"github.com/joao-fontenele/order-service/internal/identity"
	"github.com/joao-fontenele/order-service/internal/messaging"
	"github.com/joao-fontenele/order-service/internal/orders"
	"github.com/joao-fontenele/order-service/internal/postgres"
	"github.com/joao-fontenele/order-service/internal/ratelimit"
	"github.com/joao-fontenele/order-service/internal/telemetry"
)

const serviceName = "orders"

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		telemetry.NewLogger(slog.LevelInfo).Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.RequireUserService(); err != nil {
		telemetry.NewLogger(slog.LevelInfo).Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := telemetry.NewLogger(cfg.LogLevel)

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, serviceName, cfg.ServiceVersion, cfg.OTLPEndpoint)
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider(serviceName, cfg.ServiceVersion)
	if err != nil {
		logger.Error("failed to initialize metrics", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

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

	var publisher orders.EventPublisher
	if len(cfg.KafkaBrokers) > 0 {
		producer := messaging.NewProducer(cfg.KafkaBrokers, cfg.OrdersTopic, logger,
			messaging.WithPublishTimeout(cfg.PublishTimeout),
		)
		defer func() { _ = producer.Close() }()
		publisher = producer
	} else {
		logger.Warn("KAFKA_BROKERS not set, creation events are disabled")
	}

	var verifier *auth.Verifier
	if cfg.JWTSecret != "" {
		verifier, err = auth.NewVerifier(cfg.JWTSecret)
		if err != nil {
			logger.Error("invalid JWT_SECRET", "error", err)
			os.Exit(1)
		}
	}

	limiter, err := ratelimit.New(cfg.RateLimit)
	if err != nil {
		logger.Error("invalid RATE_LIMIT", "error", err)
		os.Exit(1)
	}

	identityClient := identity.NewClient(cfg.UserServiceURL, &http.Client{
		Timeout:   cfg.UserServiceTimeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	})

	items := catalog.NewRepository(db, cfg.CatalogTimeout)
	repo := orders.NewOrderRepository(db)
	service := orders.NewService(repo, identityClient, items, publisher, logger)

	ordersHandler := orders.NewHandler(service, logger)
	catalogHandler := catalog.NewHandler(items, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(telemetry.HTTPRoute)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", metricsHandler)

	r.Route("/api", func(r chi.Router) {
		r.Use(auth.Middleware(verifier, logger))
		r.Use(ratelimit.Middleware(limiter, orders.CredentialHeader, logger))

		r.Route("/orders", ordersHandler.Routes)
		r.Get("/items", catalogHandler.HandleList)
		r.Get("/items/{id}", catalogHandler.HandleGet)
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelhttp.NewHandler(r, serviceName),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting orders service", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
