package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX é satisfeito tanto por *pgxpool.Pool quanto por pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxBeginner abre transações; *pgxpool.Pool implementa.
type TxBeginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// WithTx executa uma função dentro de uma transação explícita.
// O rollback é adiado em todos os caminhos de saída; após o commit ele é um no-op.
// O contexto é desacoplado do cancelamento do chamador: uma vez iniciada,
// a transação termina em commit ou rollback mesmo que a requisição caia.
func WithTx(ctx context.Context, pool TxBeginner, fn func(ctx context.Context, tx pgx.Tx) error) error {
	ctx = context.WithoutCancel(ctx)

	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, tx); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
