package config

import (
	"strings"
	"testing"
	"time"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DB_DSN", "postgres://localhost/academico")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("JWT_SECRET", strings.Repeat("a", 32))
	t.Setenv("JWT_REFRESH_SECRET", strings.Repeat("b", 32))
	t.Setenv("DEFAULT_STUDENT_PASSWORD", "aluno-123")
	t.Setenv("DEFAULT_FACULTY_PASSWORD", "docente-123")
	t.Setenv("DEFAULT_ADMIN_PASSWORD", "admin-123")
}

func TestLoadAppliesDefaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Port)
	}
	if cfg.EventBus != "redis" || cfg.IDCounter != "redis" {
		t.Fatalf("unexpected transport defaults: bus=%s counter=%s", cfg.EventBus, cfg.IDCounter)
	}
	if cfg.RecoveryTTL != 50*time.Minute {
		t.Fatalf("expected recovery ttl of 50m, got %s", cfg.RecoveryTTL)
	}
	if cfg.JWTAccessTTL != 15*time.Minute {
		t.Fatalf("expected access ttl of 15m, got %s", cfg.JWTAccessTTL)
	}
}

func TestLoadRejectsSharedSecrets(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("JWT_REFRESH_SECRET", strings.Repeat("a", 32))

	if _, err := Load(); err == nil {
		t.Fatal("expected error when refresh secret equals access secret")
	}
}

func TestLoadKafkaRequiresBrokers(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("EVENT_BUS", "kafka")
	t.Setenv("KAFKA_BROKERS", " ")

	if _, err := Load(); err == nil {
		t.Fatal("expected error without brokers")
	}

	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "kafka-2:9092" {
		t.Fatalf("unexpected brokers: %v", cfg.Kafka.Brokers)
	}
}

func TestLoadPostgresCounterWithMemoryBusSkipsRedis(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("REDIS_URL", "")
	t.Setenv("EVENT_BUS", "memory")
	t.Setenv("ID_COUNTER", "postgres")

	if _, err := Load(); err != nil {
		t.Fatalf("expected redis to be optional, got %v", err)
	}
}
