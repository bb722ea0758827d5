package reference

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gestaozabele/academico/internal/db"
)

// Store é o armazenamento usado pelo Engine e pelo Source.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	GetByID(ctx context.Context, kind Kind, id uuid.UUID) (*Entity, error)
	PendingDepartments(ctx context.Context) ([]Entity, error)
}

// Tx agrupa as operações que precisam enxergar o mesmo snapshot.
type Tx interface {
	// Lock serializa escritas concorrentes do mesmo syncId até o fim da transação.
	Lock(ctx context.Context, kind Kind, syncID string) error
	IsTombstoned(ctx context.Context, kind Kind, syncID string) (bool, error)
	Tombstone(ctx context.Context, kind Kind, syncID string, at time.Time) error
	Find(ctx context.Context, kind Kind, syncID string) (*Entity, error)
	Upsert(ctx context.Context, e *Entity) error
	Delete(ctx context.Context, kind Kind, syncID string) (bool, error)
	AttachOrphans(ctx context.Context, facultySyncID string, facultyID uuid.UUID) (int64, error)
	// DetachDepartments esquece o pai removido para que o departamento deixe de ficar pendente.
	DetachDepartments(ctx context.Context, facultySyncID string) (int64, error)
}

// Repository implementa Store sobre Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &pgTx{q: tx})
	})
}

// GetByID busca pela chave local.
func (r *Repository) GetByID(ctx context.Context, kind Kind, id uuid.UUID) (*Entity, error) {
	return getByID(ctx, r.pool, kind, id)
}

// PendingDepartments devolve departamentos com pai conhecido mas ainda não resolvido.
func (r *Repository) PendingDepartments(ctx context.Context) ([]Entity, error) {
	const query = `
        SELECT id, sync_id, title, faculty_id, COALESCE(faculty_sync_id, ''), source_updated_at
        FROM academic_departments
        WHERE faculty_id IS NULL AND faculty_sync_id IS NOT NULL
        ORDER BY created_at
    `

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entity
	for rows.Next() {
		e := Entity{Kind: KindDepartment}
		if err := rows.Scan(&e.ID, &e.SyncID, &e.Title, &e.ParentID, &e.ParentSyncID, &e.SourceUpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetEntity expõe a busca por chave local a quem compartilha uma transação.
func GetEntity(ctx context.Context, q db.DBTX, kind Kind, id uuid.UUID) (*Entity, error) {
	return getByID(ctx, q, kind, id)
}

func getByID(ctx context.Context, q db.DBTX, kind Kind, id uuid.UUID) (*Entity, error) {
	query, err := selectQuery(kind, "id = $1")
	if err != nil {
		return nil, err
	}
	return scanEntity(kind, q.QueryRow(ctx, query, id))
}

type pgTx struct {
	q db.DBTX
}

func (t *pgTx) Lock(ctx context.Context, kind Kind, syncID string) error {
	_, err := t.q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, string(kind)+":"+syncID)
	return err
}

func (t *pgTx) IsTombstoned(ctx context.Context, kind Kind, syncID string) (bool, error) {
	var exists bool
	err := t.q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM replication_tombstones WHERE kind = $1 AND sync_id = $2)`,
		string(kind), syncID,
	).Scan(&exists)
	return exists, err
}

func (t *pgTx) Tombstone(ctx context.Context, kind Kind, syncID string, at time.Time) error {
	_, err := t.q.Exec(ctx, `
        INSERT INTO replication_tombstones (kind, sync_id, deleted_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (kind, sync_id) DO NOTHING
    `, string(kind), syncID, at)
	return err
}

func (t *pgTx) Find(ctx context.Context, kind Kind, syncID string) (*Entity, error) {
	query, err := selectQuery(kind, "sync_id = $1")
	if err != nil {
		return nil, err
	}
	return scanEntity(kind, t.q.QueryRow(ctx, query, syncID))
}

// Upsert insere ou atualiza pelo sync_id; o id local é preservado no conflito.
func (t *pgTx) Upsert(ctx context.Context, e *Entity) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}

	var (
		query string
		args  []any
	)
	switch e.Kind {
	case KindSemester:
		query = `
            INSERT INTO academic_semesters (id, sync_id, title, year, code, start_month, end_month, source_updated_at)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
            ON CONFLICT (sync_id) DO UPDATE SET
                title = EXCLUDED.title,
                year = EXCLUDED.year,
                code = EXCLUDED.code,
                start_month = EXCLUDED.start_month,
                end_month = EXCLUDED.end_month,
                source_updated_at = EXCLUDED.source_updated_at,
                updated_at = now()
            RETURNING id
        `
		args = []any{e.ID, e.SyncID, e.Title, e.Year, e.Code, e.StartMonth, e.EndMonth, e.SourceUpdatedAt}
	case KindFaculty:
		query = `
            INSERT INTO academic_faculties (id, sync_id, title, source_updated_at)
            VALUES ($1, $2, $3, $4)
            ON CONFLICT (sync_id) DO UPDATE SET
                title = EXCLUDED.title,
                source_updated_at = EXCLUDED.source_updated_at,
                updated_at = now()
            RETURNING id
        `
		args = []any{e.ID, e.SyncID, e.Title, e.SourceUpdatedAt}
	case KindDepartment:
		query = `
            INSERT INTO academic_departments (id, sync_id, title, faculty_id, faculty_sync_id, source_updated_at)
            VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
            ON CONFLICT (sync_id) DO UPDATE SET
                title = EXCLUDED.title,
                faculty_id = EXCLUDED.faculty_id,
                faculty_sync_id = EXCLUDED.faculty_sync_id,
                source_updated_at = EXCLUDED.source_updated_at,
                updated_at = now()
            RETURNING id
        `
		args = []any{e.ID, e.SyncID, e.Title, e.ParentID, e.ParentSyncID, e.SourceUpdatedAt}
	default:
		return fmt.Errorf("reference: tipo desconhecido %q", e.Kind)
	}

	return t.q.QueryRow(ctx, query, args...).Scan(&e.ID)
}

func (t *pgTx) Delete(ctx context.Context, kind Kind, syncID string) (bool, error) {
	table, err := tableFor(kind)
	if err != nil {
		return false, err
	}
	tag, err := t.q.Exec(ctx, `DELETE FROM `+table+` WHERE sync_id = $1`, syncID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (t *pgTx) AttachOrphans(ctx context.Context, facultySyncID string, facultyID uuid.UUID) (int64, error) {
	tag, err := t.q.Exec(ctx, `
        UPDATE academic_departments
        SET faculty_id = $2, updated_at = now()
        WHERE faculty_sync_id = $1 AND faculty_id IS NULL
    `, facultySyncID, facultyID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (t *pgTx) DetachDepartments(ctx context.Context, facultySyncID string) (int64, error) {
	tag, err := t.q.Exec(ctx, `
        UPDATE academic_departments
        SET faculty_id = NULL, faculty_sync_id = NULL, updated_at = now()
        WHERE faculty_sync_id = $1
    `, facultySyncID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func tableFor(kind Kind) (string, error) {
	switch kind {
	case KindSemester:
		return "academic_semesters", nil
	case KindFaculty:
		return "academic_faculties", nil
	case KindDepartment:
		return "academic_departments", nil
	}
	return "", fmt.Errorf("reference: tipo desconhecido %q", kind)
}

func selectQuery(kind Kind, where string) (string, error) {
	switch kind {
	case KindSemester:
		return `SELECT id, sync_id, title, year, code, start_month, end_month, source_updated_at
            FROM academic_semesters WHERE ` + where, nil
	case KindFaculty:
		return `SELECT id, sync_id, title, source_updated_at
            FROM academic_faculties WHERE ` + where, nil
	case KindDepartment:
		return `SELECT id, sync_id, title, faculty_id, COALESCE(faculty_sync_id, ''), source_updated_at
            FROM academic_departments WHERE ` + where, nil
	}
	return "", fmt.Errorf("reference: tipo desconhecido %q", kind)
}

func scanEntity(kind Kind, row pgx.Row) (*Entity, error) {
	e := Entity{Kind: kind}
	var err error
	switch kind {
	case KindSemester:
		err = row.Scan(&e.ID, &e.SyncID, &e.Title, &e.Year, &e.Code, &e.StartMonth, &e.EndMonth, &e.SourceUpdatedAt)
	case KindFaculty:
		err = row.Scan(&e.ID, &e.SyncID, &e.Title, &e.SourceUpdatedAt)
	default:
		err = row.Scan(&e.ID, &e.SyncID, &e.Title, &e.ParentID, &e.ParentSyncID, &e.SourceUpdatedAt)
	}
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}
