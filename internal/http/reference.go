package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gestaozabele/academico/internal/apperr"
	"github.com/gestaozabele/academico/internal/reference"
)

type referencePayload struct {
	Title           string `json:"title"`
	Year            string `json:"year"`
	Code            string `json:"code"`
	StartMonth      string `json:"startMonth"`
	EndMonth        string `json:"endMonth"`
	AcademicFaculty string `json:"academicFaculty"`
}

func (p referencePayload) input() reference.SourceInput {
	return reference.SourceInput{
		Title:        p.Title,
		Year:         p.Year,
		Code:         p.Code,
		StartMonth:   p.StartMonth,
		EndMonth:     p.EndMonth,
		ParentSyncID: p.AcademicFaculty,
	}
}

func referenceKind(r *http.Request) (reference.Kind, error) {
	kind := reference.Kind(chi.URLParam(r, "kind"))
	if !kind.Valid() {
		return "", apperr.NotFound("tipo de entidade desconhecido")
	}
	return kind, nil
}

// CreateReference grava a entidade no serviço dono e publica <kind>.created.
func (h *Handler) CreateReference(w http.ResponseWriter, r *http.Request) {
	kind, err := referenceKind(r)
	if err != nil {
		WriteAppError(w, r, err)
		return
	}
	var payload referencePayload
	if err := decodeJSON(r, &payload); err != nil {
		WriteAppError(w, r, err)
		return
	}

	entity, err := h.references.Create(r.Context(), kind, payload.input())
	if err != nil {
		WriteAppError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, entity)
}

// UpdateReference substitui os campos da entidade e publica <kind>.updated.
func (h *Handler) UpdateReference(w http.ResponseWriter, r *http.Request) {
	kind, err := referenceKind(r)
	if err != nil {
		WriteAppError(w, r, err)
		return
	}
	var payload referencePayload
	if err := decodeJSON(r, &payload); err != nil {
		WriteAppError(w, r, err)
		return
	}

	entity, err := h.references.Update(r.Context(), kind, chi.URLParam(r, "syncID"), payload.input())
	if err != nil {
		WriteAppError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, entity)
}

// DeleteReference remove a entidade e publica <kind>.deleted.
func (h *Handler) DeleteReference(w http.ResponseWriter, r *http.Request) {
	kind, err := referenceKind(r)
	if err != nil {
		WriteAppError(w, r, err)
		return
	}
	syncID := chi.URLParam(r, "syncID")
	if err := h.references.Delete(r.Context(), kind, syncID); err != nil {
		WriteAppError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"syncId": syncID, "status": "deleted"})
}
