package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

const (
	defaultPort               = "8081"
	defaultSchema             = "orders"
	defaultOrdersTopic        = "order.created"
	defaultPaymentsTopic      = "payment.events"
	defaultConsumerGroup      = "order-payments"
	defaultUserServiceTimeout = 3 * time.Second
	defaultCatalogTimeout     = 2 * time.Second
	defaultPublishTimeout     = 10 * time.Second
	defaultRateLimit          = "300-M"
	defaultServiceVersion     = "0.1.0"
)

// Config holds the runtime settings shared by the orders API and the payment worker.
type Config struct {
	Port           string
	ServiceVersion string
	LogLevel       slog.Level
	OTLPEndpoint   string

	PostgresURL string
	DBSchema    string

	KafkaBrokers   []string
	OrdersTopic    string
	PaymentsTopic  string
	ConsumerGroup  string
	PublishTimeout time.Duration

	UserServiceURL     string
	UserServiceTimeout time.Duration
	CatalogTimeout     time.Duration

	JWTSecret string
	RateLimit string
}

// Load reads the configuration from the environment and applies defaults.
func Load() (Config, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (Config, error) {
	cfg := Config{
		Port:           stringOr(getenv("PORT"), defaultPort),
		ServiceVersion: stringOr(getenv("SERVICE_VERSION"), defaultServiceVersion),
		OTLPEndpoint:   strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
		PostgresURL:    strings.TrimSpace(getenv("POSTGRES_URL")),
		DBSchema:       stringOr(getenv("DB_SCHEMA"), defaultSchema),
		OrdersTopic:    stringOr(getenv("ORDERS_TOPIC"), defaultOrdersTopic),
		PaymentsTopic:  stringOr(getenv("PAYMENTS_TOPIC"), defaultPaymentsTopic),
		ConsumerGroup:  stringOr(getenv("CONSUMER_GROUP"), defaultConsumerGroup),
		UserServiceURL: strings.TrimRight(strings.TrimSpace(getenv("USER_SERVICE_URL")), "/"),
		JWTSecret:      strings.TrimSpace(getenv("JWT_SECRET")),
		RateLimit:      stringOr(getenv("RATE_LIMIT"), defaultRateLimit),
	}

	if brokers := strings.TrimSpace(getenv("KAFKA_BROKERS")); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}

	var err error
	if cfg.LogLevel, err = parseLevel(getenv("LOG_LEVEL")); err != nil {
		return Config{}, err
	}
	if cfg.UserServiceTimeout, err = durationOr(getenv, "USER_SERVICE_TIMEOUT", defaultUserServiceTimeout); err != nil {
		return Config{}, err
	}
	if cfg.CatalogTimeout, err = durationOr(getenv, "CATALOG_TIMEOUT", defaultCatalogTimeout); err != nil {
		return Config{}, err
	}
	if cfg.PublishTimeout, err = durationOr(getenv, "PUBLISH_TIMEOUT", defaultPublishTimeout); err != nil {
		return Config{}, err
	}

	if cfg.PostgresURL == "" {
		return Config{}, errors.New("POSTGRES_URL environment variable is required")
	}

	return cfg, nil
}

// RequireUserService fails when the identity service location is missing.
func (c Config) RequireUserService() error {
	if c.UserServiceURL == "" {
		return errors.New("USER_SERVICE_URL environment variable is required")
	}
	return nil
}

// RequireKafka fails when no broker was configured.
func (c Config) RequireKafka() error {
	if len(c.KafkaBrokers) == 0 {
		return errors.New("KAFKA_BROKERS environment variable is required")
	}
	return nil
}

func stringOr(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}

func durationOr(getenv func(string) string, key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(getenv(key))
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}

func parseLevel(raw string) (slog.Level, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return slog.LevelInfo, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return 0, fmt.Errorf("parse LOG_LEVEL: %w", err)
	}
	return level, nil
}
