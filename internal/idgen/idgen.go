// Package idgen gera identificadores públicos sequenciais por escopo.
package idgen

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gestaozabele/academico/internal/db"
)

const padWidth = 5

// Counter incrementa e lê o contador de um escopo numa única operação atômica.
type Counter interface {
	Increment(ctx context.Context, scope string) (int64, error)
}

// Generator monta identificadores a partir do contador.
type Generator struct {
	counter Counter
}

func New(counter Counter) *Generator {
	return &Generator{counter: counter}
}

// StudentScope deriva o escopo do aluno a partir do ano e código do semestre.
func StudentScope(year, code string) string {
	return "student:" + strings.TrimSpace(year) + ":" + strings.TrimSpace(code)
}

const (
	FacultyScope = "faculty"
	AdminScope   = "admin"
)

// Next devolve o próximo valor bruto do escopo.
func (g *Generator) Next(ctx context.Context, scope string) (int64, error) {
	if strings.TrimSpace(scope) == "" {
		return 0, errors.New("idgen: escopo vazio")
	}
	n, err := g.counter.Increment(ctx, scope)
	if err != nil {
		return 0, fmt.Errorf("idgen: incrementar %s: %w", scope, err)
	}
	return n, nil
}

// NextStudentID gera "<aa><código><00001>", ex.: 230100001.
func (g *Generator) NextStudentID(ctx context.Context, year, code string) (string, error) {
	n, err := g.Next(ctx, StudentScope(year, code))
	if err != nil {
		return "", err
	}
	return FormatStudentID(year, code, n), nil
}

// NextFacultyID gera "F-00001".
func (g *Generator) NextFacultyID(ctx context.Context) (string, error) {
	n, err := g.Next(ctx, FacultyScope)
	if err != nil {
		return "", err
	}
	return FormatPrefixed("F", n), nil
}

// NextAdminID gera "A-00001".
func (g *Generator) NextAdminID(ctx context.Context) (string, error) {
	n, err := g.Next(ctx, AdminScope)
	if err != nil {
		return "", err
	}
	return FormatPrefixed("A", n), nil
}

func FormatStudentID(year, code string, n int64) string {
	return studentPrefix(year, code) + pad(n)
}

func studentPrefix(year, code string) string {
	year = strings.TrimSpace(year)
	if len(year) > 2 {
		year = year[len(year)-2:]
	}
	return year + strings.TrimSpace(code)
}

func FormatPrefixed(prefix string, n int64) string {
	return prefix + "-" + pad(n)
}

func pad(n int64) string {
	return fmt.Sprintf("%0*d", padWidth, n)
}

// SeedFunc devolve o maior valor já persistido no escopo.
type SeedFunc func(ctx context.Context, scope string) (int64, error)

// Option ajusta um contador.
type Option func(*seeding)

// WithSeed faz o contador partir do maior identificador já gravado na
// primeira vez que cada escopo é usado pelo processo.
func WithSeed(fn SeedFunc) Option {
	return func(s *seeding) { s.seed = fn }
}

type seeding struct {
	seed SeedFunc
	done sync.Map
}

// floor devolve o piso do escopo ainda não semeado; ok=false quando não há o que fazer.
func (s *seeding) floor(ctx context.Context, scope string) (int64, bool, error) {
	if s.seed == nil {
		return 0, false, nil
	}
	if _, seeded := s.done.Load(scope); seeded {
		return 0, false, nil
	}
	n, err := s.seed(ctx, scope)
	if err != nil {
		return 0, false, fmt.Errorf("semear %s: %w", scope, err)
	}
	return n, true, nil
}

func (s *seeding) markSeeded(scope string) {
	s.done.Store(scope, struct{}{})
}

// raiseFloor nunca reduz o contador; só o eleva até o piso informado.
const raiseFloor = `
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
local floor = tonumber(ARGV[1])
if current < floor then
  redis.call('SET', KEYS[1], floor)
end
return floor
`

type incrementer interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// RedisCounter usa INCR, atômico por chave.
type RedisCounter struct {
	client  incrementer
	prefix  string
	timeout time.Duration
	seeding
}

func NewRedisCounter(client *redis.Client, opts ...Option) *RedisCounter {
	c := &RedisCounter{client: client, prefix: "idseq:", timeout: 2 * time.Second}
	for _, opt := range opts {
		opt(&c.seeding)
	}
	return c
}

func (c *RedisCounter) Increment(ctx context.Context, scope string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	key := c.prefix + scope
	floor, ok, err := c.floor(ctx, scope)
	if err != nil {
		return 0, err
	}
	if ok {
		if err := c.client.Eval(ctx, raiseFloor, []string{key}, floor).Err(); err != nil {
			return 0, err
		}
		c.markSeeded(scope)
	}
	return c.client.Incr(ctx, key).Result()
}

// PostgresCounter usa upsert com RETURNING, atômico pela trava de linha.
type PostgresCounter struct {
	db db.DBTX
	seeding
}

func NewPostgresCounter(conn db.DBTX, opts ...Option) *PostgresCounter {
	c := &PostgresCounter{db: conn}
	for _, opt := range opts {
		opt(&c.seeding)
	}
	return c
}

func (c *PostgresCounter) Increment(ctx context.Context, scope string) (int64, error) {
	floor, ok, err := c.floor(ctx, scope)
	if err != nil {
		return 0, err
	}
	if ok {
		_, err := c.db.Exec(ctx, `
			INSERT INTO id_sequences (scope, value) VALUES ($1, $2)
			ON CONFLICT (scope) DO UPDATE SET value = GREATEST(id_sequences.value, EXCLUDED.value)
		`, scope, floor)
		if err != nil {
			return 0, err
		}
		c.markSeeded(scope)
	}

	var value int64
	err = c.db.QueryRow(ctx, `
		INSERT INTO id_sequences (scope, value) VALUES ($1, 1)
		ON CONFLICT (scope) DO UPDATE SET value = id_sequences.value + 1
		RETURNING value
	`, scope).Scan(&value)
	return value, err
}

// StoredMax lê o maior identificador já gravado no escopo a partir das tabelas de perfil.
func StoredMax(conn db.DBTX) SeedFunc {
	return func(ctx context.Context, scope string) (int64, error) {
		table, prefix, err := storedPrefix(scope)
		if err != nil {
			return 0, err
		}
		var n int64
		err = conn.QueryRow(ctx, `
			SELECT COALESCE(MAX(substr(public_id, $2::int)::BIGINT), 0)
			FROM `+table+`
			WHERE public_id LIKE $1 AND substr(public_id, $2::int) ~ '^[0-9]+$'
		`, prefix+"%", len(prefix)+1).Scan(&n)
		return n, err
	}
}

// storedPrefix mapeia o escopo para a tabela e o prefixo do identificador.
func storedPrefix(scope string) (table, prefix string, err error) {
	switch scope {
	case FacultyScope:
		return "faculty_members", "F-", nil
	case AdminScope:
		return "admins", "A-", nil
	}
	parts := strings.Split(scope, ":")
	if len(parts) == 3 && parts[0] == "student" && parts[1] != "" && parts[2] != "" {
		return "students", studentPrefix(parts[1], parts[2]), nil
	}
	return "", "", fmt.Errorf("idgen: escopo desconhecido %q", scope)
}
