package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gestaozabele/academico/internal/db"
	"github.com/gestaozabele/academico/internal/reference"
)

// Store é o armazenamento de contas e perfis.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	GetByPublicID(ctx context.Context, publicID string) (*Identity, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Identity, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, hash string, mustChange bool) error
}

// Tx são as operações do fluxo de provisionamento e remoção.
type Tx interface {
	GetReference(ctx context.Context, kind reference.Kind, id uuid.UUID) (*reference.Entity, error)
	InsertProfile(ctx context.Context, p *Profile) error
	InsertIdentity(ctx context.Context, i *Identity) error
	UpdateProfile(ctx context.Context, role Role, publicID string, patch ProfilePatch) (bool, error)
	DeleteIdentity(ctx context.Context, role Role, publicID string) (uuid.UUID, error)
	DeleteProfile(ctx context.Context, role Role, profileID uuid.UUID) error
	Load(ctx context.Context, publicID string) (*Identity, error)
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

func (r *Repository) GetByPublicID(ctx context.Context, publicID string) (*Identity, error) {
	return load(ctx, r.pool, "public_id = $1", publicID)
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Identity, error) {
	return load(ctx, r.pool, "id = $1", id)
}

func (r *Repository) UpdatePassword(ctx context.Context, id uuid.UUID, hash string, mustChange bool) error {
	tag, err := r.pool.Exec(ctx, `
        UPDATE identities
        SET password_hash = $2, must_change_password = $3, updated_at = now()
        WHERE id = $1
    `, id, hash, mustChange)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type pgTx struct {
	q db.DBTX
}

func (t *pgTx) GetReference(ctx context.Context, kind reference.Kind, id uuid.UUID) (*reference.Entity, error) {
	return reference.GetEntity(ctx, t.q, kind, id)
}

func (t *pgTx) InsertProfile(ctx context.Context, p *Profile) error {
	switch p.Role {
	case RoleStudent:
		_, err := t.q.Exec(ctx, `
            INSERT INTO students (id, public_id, first_name, middle_name, last_name, email, contact_no, gender, semester_id, department_id, faculty_id)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
        `, p.ID, p.PublicID, p.Name.First, p.Name.Middle, p.Name.Last, p.Email, p.ContactNo, p.Gender, p.SemesterID, p.DepartmentID, p.FacultyID)
		return err
	case RoleFaculty:
		_, err := t.q.Exec(ctx, `
            INSERT INTO faculty_members (id, public_id, first_name, middle_name, last_name, email, contact_no, gender, designation, department_id, faculty_id)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
        `, p.ID, p.PublicID, p.Name.First, p.Name.Middle, p.Name.Last, p.Email, p.ContactNo, p.Gender, p.Designation, p.DepartmentID, p.FacultyID)
		return err
	case RoleAdmin:
		_, err := t.q.Exec(ctx, `
            INSERT INTO admins (id, public_id, first_name, middle_name, last_name, email, contact_no, gender, designation)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        `, p.ID, p.PublicID, p.Name.First, p.Name.Middle, p.Name.Last, p.Email, p.ContactNo, p.Gender, p.Designation)
		return err
	}
	return fmt.Errorf("identity: papel desconhecido %q", p.Role)
}

func (t *pgTx) InsertIdentity(ctx context.Context, i *Identity) error {
	column, err := profileColumn(i.Role)
	if err != nil {
		return err
	}
	_, err = t.q.Exec(ctx, `
        INSERT INTO identities (id, public_id, role, password_hash, must_change_password, `+column+`)
        VALUES ($1, $2, $3, $4, $5, $6)
    `, i.ID, i.PublicID, string(i.Role), i.PasswordHash, i.MustChangePassword, i.ProfileID)
	return err
}

func (t *pgTx) UpdateProfile(ctx context.Context, role Role, publicID string, patch ProfilePatch) (bool, error) {
	table, err := profileTable(role)
	if err != nil {
		return false, err
	}

	sets := []string{"updated_at = now()"}
	args := []any{publicID}
	add := func(column string, v *string) {
		if v == nil {
			return
		}
		args = append(args, strings.TrimSpace(*v))
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	add("first_name", patch.FirstName)
	add("middle_name", patch.MiddleName)
	add("last_name", patch.LastName)
	add("email", patch.Email)
	add("contact_no", patch.ContactNo)
	add("gender", patch.Gender)
	if role != RoleStudent {
		add("designation", patch.Designation)
	}

	tag, err := t.q.Exec(ctx, `UPDATE `+table+` SET `+strings.Join(sets, ", ")+` WHERE public_id = $1`, args...)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (t *pgTx) DeleteIdentity(ctx context.Context, role Role, publicID string) (uuid.UUID, error) {
	column, err := profileColumn(role)
	if err != nil {
		return uuid.Nil, err
	}
	var profileID uuid.UUID
	err = t.q.QueryRow(ctx, `
        DELETE FROM identities WHERE public_id = $1 AND role = $2
        RETURNING `+column, publicID, string(role)).Scan(&profileID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, ErrNotFound
		}
		return uuid.Nil, err
	}
	return profileID, nil
}

func (t *pgTx) DeleteProfile(ctx context.Context, role Role, profileID uuid.UUID) error {
	table, err := profileTable(role)
	if err != nil {
		return err
	}
	tag, err := t.q.Exec(ctx, `DELETE FROM `+table+` WHERE id = $1`, profileID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) Load(ctx context.Context, publicID string) (*Identity, error) {
	return load(ctx, t.q, "public_id = $1", publicID)
}

func load(ctx context.Context, q db.DBTX, where string, arg any) (*Identity, error) {
	var (
		i         Identity
		role      string
		studentID *uuid.UUID
		facultyID *uuid.UUID
		adminID   *uuid.UUID
	)
	err := q.QueryRow(ctx, `
        SELECT id, public_id, role, password_hash, must_change_password, student_id, faculty_member_id, admin_id, created_at, updated_at
        FROM identities WHERE `+where, arg).
		Scan(&i.ID, &i.PublicID, &role, &i.PasswordHash, &i.MustChangePassword, &studentID, &facultyID, &adminID, &i.CreatedAt, &i.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	i.Role = Role(role)

	for _, id := range []*uuid.UUID{studentID, facultyID, adminID} {
		if id != nil {
			i.ProfileID = *id
		}
	}

	profile, err := loadProfile(ctx, q, i.Role, i.ProfileID)
	if err != nil {
		return nil, err
	}
	i.Profile = profile
	return &i, nil
}

func loadProfile(ctx context.Context, q db.DBTX, role Role, id uuid.UUID) (*Profile, error) {
	p := Profile{Role: role}
	var err error
	switch role {
	case RoleStudent:
		err = q.QueryRow(ctx, `
            SELECT id, public_id, first_name, middle_name, last_name, email, contact_no, gender, semester_id, department_id, faculty_id, created_at, updated_at
            FROM students WHERE id = $1
        `, id).Scan(&p.ID, &p.PublicID, &p.Name.First, &p.Name.Middle, &p.Name.Last, &p.Email, &p.ContactNo, &p.Gender, &p.SemesterID, &p.DepartmentID, &p.FacultyID, &p.CreatedAt, &p.UpdatedAt)
	case RoleFaculty:
		err = q.QueryRow(ctx, `
            SELECT id, public_id, first_name, middle_name, last_name, email, contact_no, gender, designation, department_id, faculty_id, created_at, updated_at
            FROM faculty_members WHERE id = $1
        `, id).Scan(&p.ID, &p.PublicID, &p.Name.First, &p.Name.Middle, &p.Name.Last, &p.Email, &p.ContactNo, &p.Gender, &p.Designation, &p.DepartmentID, &p.FacultyID, &p.CreatedAt, &p.UpdatedAt)
	case RoleAdmin:
		err = q.QueryRow(ctx, `
            SELECT id, public_id, first_name, middle_name, last_name, email, contact_no, gender, designation, created_at, updated_at
            FROM admins WHERE id = $1
        `, id).Scan(&p.ID, &p.PublicID, &p.Name.First, &p.Name.Middle, &p.Name.Last, &p.Email, &p.ContactNo, &p.Gender, &p.Designation, &p.CreatedAt, &p.UpdatedAt)
	default:
		return nil, fmt.Errorf("identity: papel desconhecido %q", role)
	}
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	refs := []struct {
		id   *uuid.UUID
		kind reference.Kind
		dst  **reference.Entity
	}{
		{p.SemesterID, reference.KindSemester, &p.Semester},
		{p.DepartmentID, reference.KindDepartment, &p.Department},
		{p.FacultyID, reference.KindFaculty, &p.Faculty},
	}
	for _, ref := range refs {
		if ref.id == nil {
			continue
		}
		e, err := reference.GetEntity(ctx, q, ref.kind, *ref.id)
		if err != nil && !errors.Is(err, reference.ErrNotFound) {
			return nil, err
		}
		*ref.dst = e
	}
	return &p, nil
}

func profileTable(role Role) (string, error) {
	switch role {
	case RoleStudent:
		return "students", nil
	case RoleFaculty:
		return "faculty_members", nil
	case RoleAdmin:
		return "admins", nil
	}
	return "", fmt.Errorf("identity: papel desconhecido %q", role)
}

func profileColumn(role Role) (string, error) {
	switch role {
	case RoleStudent:
		return "student_id", nil
	case RoleFaculty:
		return "faculty_member_id", nil
	case RoleAdmin:
		return "admin_id", nil
	}
	return "", fmt.Errorf("identity: papel desconhecido %q", role)
}
