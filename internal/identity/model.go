// Package identity provisiona contas de acesso junto com o perfil do papel.
package identity

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gestaozabele/academico/internal/reference"
)

var ErrNotFound = errors.New("identity not found")

// Role é o papel da conta; cada papel tem exatamente um perfil.
type Role string

const (
	RoleStudent Role = "student"
	RoleFaculty Role = "faculty"
	RoleAdmin   Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleFaculty, RoleAdmin:
		return true
	}
	return false
}

type Name struct {
	First  string `json:"firstName"`
	Middle string `json:"middleName,omitempty"`
	Last   string `json:"lastName"`
}

func (n Name) Full() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{n.First, n.Middle, n.Last} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// Profile é o registro específico do papel. Semester, Department e Faculty
// vêm preenchidos quando carregados.
type Profile struct {
	ID           uuid.UUID         `json:"-"`
	PublicID     string            `json:"id"`
	Role         Role              `json:"role"`
	Name         Name              `json:"name"`
	Email        string            `json:"email,omitempty"`
	ContactNo    string            `json:"contactNo,omitempty"`
	Gender       string            `json:"gender,omitempty"`
	Designation  string            `json:"designation,omitempty"`
	SemesterID   *uuid.UUID        `json:"-"`
	DepartmentID *uuid.UUID        `json:"-"`
	FacultyID    *uuid.UUID        `json:"-"`
	Semester     *reference.Entity `json:"admissionSemester,omitempty"`
	Department   *reference.Entity `json:"academicDepartment,omitempty"`
	Faculty      *reference.Entity `json:"academicFaculty,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}

// Identity é a conta de acesso.
type Identity struct {
	ID                 uuid.UUID `json:"-"`
	PublicID           string    `json:"id"`
	Role               Role      `json:"role"`
	PasswordHash       string    `json:"-"`
	MustChangePassword bool      `json:"needsPasswordChange"`
	ProfileID          uuid.UUID `json:"-"`
	Profile            *Profile  `json:"profile,omitempty"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// ProfileInput são os dados recebidos na criação.
type ProfileInput struct {
	Name         Name
	Email        string
	ContactNo    string
	Gender       string
	Designation  string
	SemesterID   *uuid.UUID
	DepartmentID *uuid.UUID
	FacultyID    *uuid.UUID
}

// IdentityInput carrega a credencial opcional; vazia usa o padrão do papel.
type IdentityInput struct {
	Password string
}

// ProfilePatch altera apenas os campos não nulos.
type ProfilePatch struct {
	FirstName   *string
	MiddleName  *string
	LastName    *string
	Email       *string
	ContactNo   *string
	Gender      *string
	Designation *string
}

func (p ProfilePatch) Empty() bool {
	return p.FirstName == nil && p.MiddleName == nil && p.LastName == nil &&
		p.Email == nil && p.ContactNo == nil && p.Gender == nil && p.Designation == nil
}

// ProfileEvent é o corpo de <papel>.created e <papel>.updated. Referências
// seguem apenas pelo syncId; chaves locais não saem do serviço.
type ProfileEvent struct {
	ID                 string    `json:"id"`
	Role               Role      `json:"role"`
	Name               Name      `json:"name"`
	Email              string    `json:"email,omitempty"`
	ContactNo          string    `json:"contactNo,omitempty"`
	Gender             string    `json:"gender,omitempty"`
	Designation        string    `json:"designation,omitempty"`
	AdmissionSemester  string    `json:"admissionSemester,omitempty"`
	AcademicDepartment string    `json:"academicDepartment,omitempty"`
	AcademicFaculty    string    `json:"academicFaculty,omitempty"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// Event converte o perfil carregado no corpo publicado.
func (p *Profile) Event() ProfileEvent {
	return ProfileEvent{
		ID:                 p.PublicID,
		Role:               p.Role,
		Name:               p.Name,
		Email:              p.Email,
		ContactNo:          p.ContactNo,
		Gender:             p.Gender,
		Designation:        p.Designation,
		AdmissionSemester:  syncIDOf(p.Semester),
		AcademicDepartment: syncIDOf(p.Department),
		AcademicFaculty:    syncIDOf(p.Faculty),
		CreatedAt:          p.CreatedAt,
		UpdatedAt:          p.UpdatedAt,
	}
}

func syncIDOf(e *reference.Entity) string {
	if e == nil {
		return ""
	}
	return e.SyncID
}
