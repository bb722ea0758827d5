package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config centraliza a configuração carregada do ambiente.
type Config struct {
	Port            int
	DBDSN           string
	RedisURL        string
	LogLevel        string
	EventBus        string
	Kafka           KafkaConfig
	IDCounter       string
	JWTSecret       string
	JWTRefreshKey   string
	JWTAccessTTL    time.Duration
	JWTRefreshTTL   time.Duration
	RecoveryTTL     time.Duration
	ResetLinkBase   string
	DefaultPassword DefaultPasswords
	Mail            MailConfig
	AllowOrigins    []string
	CookieSecure    bool
	RateLimitPublic RateLimitConfig
	RateLimitAuth   RateLimitConfig

	// RateLimitCredential limita tentativas por IP e conta em login e recuperação.
	RateLimitCredential RateLimitConfig
}

// KafkaConfig descreve o transporte de eventos via Kafka.
type KafkaConfig struct {
	Brokers []string
	GroupID string
}

// DefaultPasswords guarda as senhas iniciais por papel.
type DefaultPasswords struct {
	Student string
	Faculty string
	Admin   string
}

// MailConfig configura o envio de e-mails de recuperação.
type MailConfig struct {
	WebhookURL string
	From       string
}

// RateLimitConfig representa limites simples para throttling.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// Load carrega variáveis de ambiente e aplica defaults seguros.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	portStr := getEnv("PORT", "8080")
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 {
		return nil, errors.New("PORT inválida")
	}
	cfg.Port = port

	cfg.DBDSN = getEnv("DB_DSN", "")
	if cfg.DBDSN == "" {
		return nil, errors.New("DB_DSN obrigatório")
	}

	cfg.LogLevel = strings.ToLower(strings.TrimSpace(getEnv("LOG_LEVEL", "info")))

	cfg.EventBus = strings.ToLower(strings.TrimSpace(getEnv("EVENT_BUS", "redis")))
	switch cfg.EventBus {
	case "redis", "memory":
	case "kafka":
		cfg.Kafka.Brokers = splitList(getEnv("KAFKA_BROKERS", ""))
		if len(cfg.Kafka.Brokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS obrigatório quando EVENT_BUS=kafka")
		}
		cfg.Kafka.GroupID = strings.TrimSpace(getEnv("KAFKA_GROUP_ID", "academico"))
	default:
		return nil, errors.New("EVENT_BUS inválido")
	}

	cfg.IDCounter = strings.ToLower(strings.TrimSpace(getEnv("ID_COUNTER", "redis")))
	if cfg.IDCounter != "redis" && cfg.IDCounter != "postgres" {
		return nil, errors.New("ID_COUNTER inválido")
	}

	cfg.RedisURL = getEnv("REDIS_URL", "")
	if cfg.RedisURL == "" && (cfg.EventBus == "redis" || cfg.IDCounter == "redis") {
		return nil, errors.New("REDIS_URL obrigatório")
	}

	cfg.JWTSecret = strings.TrimSpace(getEnv("JWT_SECRET", ""))
	if len(cfg.JWTSecret) < 32 {
		return nil, errors.New("JWT_SECRET deve ter pelo menos 32 caracteres")
	}

	cfg.JWTRefreshKey = strings.TrimSpace(getEnv("JWT_REFRESH_SECRET", ""))
	if len(cfg.JWTRefreshKey) < 32 {
		return nil, errors.New("JWT_REFRESH_SECRET deve ter pelo menos 32 caracteres")
	}
	if cfg.JWTRefreshKey == cfg.JWTSecret {
		return nil, errors.New("JWT_REFRESH_SECRET deve ser diferente de JWT_SECRET")
	}

	accessTTL, err := parseDurationEnv("JWT_ACCESS_TTL", 15*time.Minute)
	if err != nil {
		return nil, err
	}
	cfg.JWTAccessTTL = accessTTL

	refreshTTL, err := parseDurationEnv("JWT_REFRESH_TTL", 30*24*time.Hour)
	if err != nil {
		return nil, err
	}
	cfg.JWTRefreshTTL = refreshTTL

	recoveryTTL, err := parseDurationEnv("RECOVERY_TTL", 50*time.Minute)
	if err != nil {
		return nil, err
	}
	cfg.RecoveryTTL = recoveryTTL

	cfg.ResetLinkBase = strings.TrimSpace(getEnv("RESET_LINK_BASE", "http://localhost:3000/reset-password?"))

	cfg.DefaultPassword = DefaultPasswords{
		Student: getEnv("DEFAULT_STUDENT_PASSWORD", ""),
		Faculty: getEnv("DEFAULT_FACULTY_PASSWORD", ""),
		Admin:   getEnv("DEFAULT_ADMIN_PASSWORD", ""),
	}
	if cfg.DefaultPassword.Student == "" || cfg.DefaultPassword.Faculty == "" || cfg.DefaultPassword.Admin == "" {
		return nil, errors.New("DEFAULT_STUDENT_PASSWORD, DEFAULT_FACULTY_PASSWORD e DEFAULT_ADMIN_PASSWORD são obrigatórios")
	}

	cfg.Mail = MailConfig{
		WebhookURL: strings.TrimSpace(getEnv("MAIL_WEBHOOK_URL", "")),
		From:       strings.TrimSpace(getEnv("MAIL_FROM", "no-reply@academico.local")),
	}

	cfg.AllowOrigins = splitList(getEnv("ALLOW_ORIGINS", ""))

	secure, err := strconv.ParseBool(getEnv("COOKIE_SECURE", "false"))
	if err != nil {
		return nil, errors.New("COOKIE_SECURE inválido")
	}
	cfg.CookieSecure = secure

	cfg.RateLimitPublic = RateLimitConfig{RequestsPerSecond: 10, Burst: 20}
	cfg.RateLimitAuth = RateLimitConfig{RequestsPerSecond: 10, Burst: 40}
	cfg.RateLimitCredential = RateLimitConfig{RequestsPerSecond: 0.2, Burst: 5}

	return cfg, nil
}

func getEnv(key, def string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return def
}

func parseDurationEnv(key string, def time.Duration) (time.Duration, error) {
	val := getEnv(key, "")
	if val == "" {
		return def, nil
	}
	dur, err := time.ParseDuration(val)
	if err != nil {
		return 0, errors.New(key + " inválido")
	}
	return dur, nil
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
