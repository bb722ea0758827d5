// Package app monta as dependências compartilhadas pelos binários.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/gestaozabele/academico/internal/config"
	"github.com/gestaozabele/academico/internal/db"
	"github.com/gestaozabele/academico/internal/events"
	"github.com/gestaozabele/academico/internal/idgen"
	"github.com/gestaozabele/academico/internal/identity"
)

// Runtime agrupa conexões e adaptadores abertos a partir da configuração.
type Runtime struct {
	Pool  *pgxpool.Pool
	Redis *redis.Client
	Bus   events.Bus
	IDs   *idgen.Generator

	closers []func() error
}

// Open conecta ao Postgres e, conforme EVENT_BUS e ID_COUNTER, ao Redis e ao Kafka.
func Open(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Runtime, error) {
	rt := &Runtime{}

	pool, err := db.NewPool(ctx, cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("db: %w", err)
	}
	rt.Pool = pool
	rt.closers = append(rt.closers, func() error { pool.Close(); return nil })

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("redis parse: %w", err)
		}
		rt.Redis = redis.NewClient(opts)
		rt.closers = append(rt.closers, rt.Redis.Close)
	}

	bus, err := openBus(cfg, rt.Redis, logger)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.Bus = bus

	switch cfg.IDCounter {
	case "postgres":
		rt.IDs = idgen.New(idgen.NewPostgresCounter(pool, idgen.WithSeed(idgen.StoredMax(pool))))
	default:
		rt.IDs = idgen.New(idgen.NewRedisCounter(rt.Redis, idgen.WithSeed(idgen.StoredMax(pool))))
	}

	return rt, nil
}

func openBus(cfg *config.Config, client *redis.Client, logger zerolog.Logger) (events.Bus, error) {
	switch cfg.EventBus {
	case "kafka":
		bus, err := events.NewKafkaBus(events.KafkaConfig{Brokers: cfg.Kafka.Brokers, GroupID: cfg.Kafka.GroupID}, logger)
		if err != nil {
			return nil, fmt.Errorf("kafka: %w", err)
		}
		return bus, nil
	case "memory":
		return events.NewMemoryBus(logger), nil
	default:
		if client == nil {
			return nil, errors.New("event bus redis sem REDIS_URL")
		}
		return events.NewRedisBus(client, logger), nil
	}
}

// DefaultPasswords converte a configuração no mapa esperado pelo provisionamento.
func DefaultPasswords(cfg *config.Config) map[identity.Role]string {
	return map[identity.Role]string{
		identity.RoleStudent: cfg.DefaultPassword.Student,
		identity.RoleFaculty: cfg.DefaultPassword.Faculty,
		identity.RoleAdmin:   cfg.DefaultPassword.Admin,
	}
}

// Close encerra o bus e depois as conexões, na ordem inversa da abertura.
func (rt *Runtime) Close() error {
	var errs []error
	if c, ok := rt.Bus.(interface{ Close() error }); ok {
		errs = append(errs, c.Close())
	}
	for i := len(rt.closers) - 1; i >= 0; i-- {
		errs = append(errs, rt.closers[i]())
	}
	return errors.Join(errs...)
}
