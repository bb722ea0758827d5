package db

import (
	"context"
	"errors"
	"io/fs"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type fakeTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
	ctxErr     error
}

func (f *fakeTx) Commit(ctx context.Context) error {
	f.committed = true
	f.ctxErr = ctx.Err()
	return nil
}

func (f *fakeTx) Rollback(ctx context.Context) error {
	if f.committed {
		return pgx.ErrTxClosed
	}
	f.rolledBack = true
	return nil
}

type fakeBeginner struct {
	tx  *fakeTx
	err error
}

func (f *fakeBeginner) BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.tx, nil
}

func TestWithTxCommitsOnSuccess(t *testing.T) {
	b := &fakeBeginner{tx: &fakeTx{}}

	err := WithTx(context.Background(), b, func(ctx context.Context, tx pgx.Tx) error {
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !b.tx.committed || b.tx.rolledBack {
		t.Fatalf("expected commit only, got committed=%v rolledBack=%v", b.tx.committed, b.tx.rolledBack)
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	b := &fakeBeginner{tx: &fakeTx{}}
	boom := errors.New("boom")

	err := WithTx(context.Background(), b, func(ctx context.Context, tx pgx.Tx) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if b.tx.committed || !b.tx.rolledBack {
		t.Fatalf("expected rollback only, got committed=%v rolledBack=%v", b.tx.committed, b.tx.rolledBack)
	}
}

func TestWithTxRollsBackOnPanic(t *testing.T) {
	b := &fakeBeginner{tx: &fakeTx{}}

	func() {
		defer func() { _ = recover() }()
		_ = WithTx(context.Background(), b, func(ctx context.Context, tx pgx.Tx) error {
			panic("inesperado")
		})
	}()

	if !b.tx.rolledBack {
		t.Fatal("expected rollback after panic")
	}
}

func TestWithTxIgnoresCallerCancellation(t *testing.T) {
	b := &fakeBeginner{tx: &fakeTx{}}
	ctx, cancel := context.WithCancel(context.Background())

	err := WithTx(ctx, b, func(txCtx context.Context, tx pgx.Tx) error {
		cancel()
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.tx.ctxErr != nil {
		t.Fatalf("commit saw cancelled context: %v", b.tx.ctxErr)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if !IsUniqueViolation(&pgconn.PgError{Code: "23505"}) {
		t.Fatal("expected 23505 to be a unique violation")
	}
	if IsUniqueViolation(&pgconn.PgError{Code: "23503"}) {
		t.Fatal("foreign key violation is not a unique violation")
	}
	if IsUniqueViolation(errors.New("x")) {
		t.Fatal("plain error is not a unique violation")
	}
}

func TestMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		t.Fatalf("read migrations: %v", err)
	}

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		}
	}
	if len(ups) == 0 {
		t.Fatal("no migrations embedded")
	}
	for version := range ups {
		if !downs[version] {
			t.Errorf("migration %s has no down file", version)
		}
	}
}

// Perfis não podem impedir a remoção de uma réplica: toda coluna que aponta
// para uma tabela de referência precisa aceitar NULL e usar ON DELETE SET NULL.
func TestReplicaReferencesNeverBlockDeletes(t *testing.T) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		t.Fatalf("read migrations: %v", err)
	}

	checked := 0
	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), ".up.sql") {
			continue
		}
		body, err := fs.ReadFile(migrationsFS, "migrations/"+e.Name())
		if err != nil {
			t.Fatalf("read %s: %v", e.Name(), err)
		}
		for _, line := range strings.Split(string(body), "\n") {
			if !strings.Contains(line, "REFERENCES academic_") {
				continue
			}
			checked++
			if !strings.Contains(line, "ON DELETE SET NULL") || strings.Contains(line, "NOT NULL") {
				t.Errorf("%s: reference column must be nullable with ON DELETE SET NULL: %s", e.Name(), strings.TrimSpace(line))
			}
		}
	}
	if checked < 5 {
		t.Fatalf("expected reference columns in profile tables, found %d", checked)
	}
}
