// Package reference mantém as réplicas locais de semestres, faculdades e
// departamentos e publica as alterações feitas pelo serviço de origem.
package reference

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("reference entity not found")

// Kind identifica o tipo de entidade e é o prefixo dos nomes de evento.
type Kind string

const (
	KindSemester   Kind = "academic-semester"
	KindFaculty    Kind = "academic-faculty"
	KindDepartment Kind = "academic-department"
)

// Kinds lista os tipos replicados, pais antes de filhos.
var Kinds = []Kind{KindSemester, KindFaculty, KindDepartment}

func (k Kind) Valid() bool {
	switch k {
	case KindSemester, KindFaculty, KindDepartment:
		return true
	}
	return false
}

// Entity é a réplica local. ID nunca sai do serviço; SyncID é a chave de junção.
type Entity struct {
	ID              uuid.UUID  `json:"id"`
	Kind            Kind       `json:"kind"`
	SyncID          string     `json:"syncId"`
	Title           string     `json:"title"`
	Year            string     `json:"year,omitempty"`
	Code            string     `json:"code,omitempty"`
	StartMonth      string     `json:"startMonth,omitempty"`
	EndMonth        string     `json:"endMonth,omitempty"`
	ParentSyncID    string     `json:"parentSyncId,omitempty"`
	ParentID        *uuid.UUID `json:"parentId,omitempty"`
	SourceUpdatedAt *time.Time `json:"sourceUpdatedAt,omitempty"`
}

// OlderThan indica se e deve ser descartado frente ao registro atual.
// Sem carimbo de um dos lados vale a última chegada.
func (e *Entity) OlderThan(current *Entity) bool {
	if current == nil || current.SourceUpdatedAt == nil || e.SourceUpdatedAt == nil {
		return false
	}
	return e.SourceUpdatedAt.Before(*current.SourceUpdatedAt)
}
