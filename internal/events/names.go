package events

import "time"

// Nomes dos eventos de entidades de referência e perfis.
const (
	AcademicSemesterCreated = "academic-semester.created"
	AcademicSemesterUpdated = "academic-semester.updated"
	AcademicSemesterDeleted = "academic-semester.deleted"

	AcademicFacultyCreated = "academic-faculty.created"
	AcademicFacultyUpdated = "academic-faculty.updated"
	AcademicFacultyDeleted = "academic-faculty.deleted"

	AcademicDepartmentCreated = "academic-department.created"
	AcademicDepartmentUpdated = "academic-department.updated"
	AcademicDepartmentDeleted = "academic-department.deleted"

	StudentCreated = "student.created"
	StudentUpdated = "student.updated"
	StudentDeleted = "student.deleted"
	FacultyCreated = "faculty.created"
	FacultyUpdated = "faculty.updated"
	FacultyDeleted = "faculty.deleted"
	AdminCreated   = "admin.created"
	AdminUpdated   = "admin.updated"
	AdminDeleted   = "admin.deleted"
)

// Triple agrupa os nomes created/updated/deleted de um tipo.
type Triple struct {
	Created string
	Updated string
	Deleted string
}

// TripleFor monta os nomes de um prefixo, ex.: "academic-semester".
func TripleFor(prefix string) Triple {
	return Triple{
		Created: prefix + ".created",
		Updated: prefix + ".updated",
		Deleted: prefix + ".deleted",
	}
}

// UpsertPayload é o formato de created/updated.
// ParentSyncID aceita também a chave legada academicFacultyId.
type UpsertPayload struct {
	ID                string     `json:"id"`
	Title             string     `json:"title"`
	ParentSyncID      string     `json:"parentSyncId,omitempty"`
	AcademicFacultyID string     `json:"academicFacultyId,omitempty"`
	Year              string     `json:"year,omitempty"`
	Code              string     `json:"code,omitempty"`
	StartMonth        string     `json:"startMonth,omitempty"`
	EndMonth          string     `json:"endMonth,omitempty"`
	UpdatedAt         *time.Time `json:"updatedAt,omitempty"`
}

// Parent devolve o syncId do pai, priorizando parentSyncId.
func (p UpsertPayload) Parent() string {
	if p.ParentSyncID != "" {
		return p.ParentSyncID
	}
	return p.AcademicFacultyID
}

// DeletePayload é o formato de deleted.
type DeletePayload struct {
	ID string `json:"id"`
}
