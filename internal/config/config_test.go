package config

import (
	"log/slog"
	"testing"
	"time"
)

func envMap(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func TestLoad(t *testing.T) {
	t.Run("applies defaults", func(t *testing.T) {
		cfg, err := load(envMap(map[string]string{"POSTGRES_URL": "postgres://localhost/orders"}))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Port != "8081" {
			t.Errorf("expected port 8081, got %s", cfg.Port)
		}
		if cfg.OrdersTopic != "order.created" || cfg.PaymentsTopic != "payment.events" {
			t.Errorf("unexpected topics: %s, %s", cfg.OrdersTopic, cfg.PaymentsTopic)
		}
		if cfg.UserServiceTimeout != 3*time.Second {
			t.Errorf("expected 3s user service timeout, got %s", cfg.UserServiceTimeout)
		}
		if cfg.LogLevel != slog.LevelInfo {
			t.Errorf("expected info level, got %s", cfg.LogLevel)
		}
		if len(cfg.KafkaBrokers) != 0 {
			t.Errorf("expected no brokers, got %v", cfg.KafkaBrokers)
		}
	})

	t.Run("parses brokers and overrides", func(t *testing.T) {
		cfg, err := load(envMap(map[string]string{
			"POSTGRES_URL":         "postgres://localhost/orders",
			"KAFKA_BROKERS":        "kafka-1:9092, kafka-2:9092,",
			"USER_SERVICE_URL":     "http://users:8080/",
			"USER_SERVICE_TIMEOUT": "500ms",
			"LOG_LEVEL":            "debug",
		}))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "kafka-2:9092" {
			t.Errorf("unexpected brokers: %v", cfg.KafkaBrokers)
		}
		if cfg.UserServiceURL != "http://users:8080" {
			t.Errorf("expected trailing slash trimmed, got %s", cfg.UserServiceURL)
		}
		if cfg.UserServiceTimeout != 500*time.Millisecond {
			t.Errorf("expected 500ms, got %s", cfg.UserServiceTimeout)
		}
		if cfg.LogLevel != slog.LevelDebug {
			t.Errorf("expected debug level, got %s", cfg.LogLevel)
		}
	})

	t.Run("requires postgres url", func(t *testing.T) {
		if _, err := load(envMap(nil)); err == nil {
			t.Fatal("expected error for missing POSTGRES_URL")
		}
	})

	t.Run("rejects invalid durations", func(t *testing.T) {
		_, err := load(envMap(map[string]string{
			"POSTGRES_URL":    "postgres://localhost/orders",
			"CATALOG_TIMEOUT": "soon",
		}))
		if err == nil {
			t.Fatal("expected error for invalid CATALOG_TIMEOUT")
		}
	})
}

func TestConfig_Require(t *testing.T) {
	var cfg Config
	if err := cfg.RequireKafka(); err == nil {
		t.Error("expected error when brokers are missing")
	}
	if err := cfg.RequireUserService(); err == nil {
		t.Error("expected error when user service url is missing")
	}
}
