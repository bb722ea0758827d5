package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/gestaozabele/academico/internal/apperr"
	httpmiddleware "github.com/gestaozabele/academico/internal/http/middleware"
	"github.com/gestaozabele/academico/internal/identity"
	"github.com/gestaozabele/academico/internal/service"
)

type namePayload struct {
	FirstName  string `json:"firstName"`
	MiddleName string `json:"middleName"`
	LastName   string `json:"lastName"`
}

type profilePayload struct {
	Name               namePayload `json:"name"`
	Email              string      `json:"email"`
	ContactNo          string      `json:"contactNo"`
	Gender             string      `json:"gender"`
	Designation        string      `json:"designation"`
	AdmissionSemester  *uuid.UUID  `json:"admissionSemester"`
	AcademicDepartment *uuid.UUID  `json:"academicDepartment"`
	AcademicFaculty    *uuid.UUID  `json:"academicFaculty"`
}

type createUserPayload struct {
	Password string          `json:"password"`
	Student  *profilePayload `json:"student"`
	Faculty  *profilePayload `json:"faculty"`
	Admin    *profilePayload `json:"admin"`
}

func (p createUserPayload) profile(role identity.Role) *profilePayload {
	switch role {
	case identity.RoleStudent:
		return p.Student
	case identity.RoleFaculty:
		return p.Faculty
	case identity.RoleAdmin:
		return p.Admin
	}
	return nil
}

func (h *Handler) createUser(role identity.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !service.CanProvision(httpmiddleware.GetRole(r.Context()), role) {
			WriteError(w, http.StatusForbidden, string(apperr.KindForbidden), "papel sem acesso a esta operação", nil)
			return
		}

		var payload createUserPayload
		if err := decodeJSON(r, &payload); err != nil {
			WriteAppError(w, r, err)
			return
		}
		p := payload.profile(role)
		if p == nil {
			WriteError(w, http.StatusBadRequest, string(apperr.KindBadRequest), "dados do perfil ausentes", nil)
			return
		}

		in := identity.ProfileInput{
			Name: identity.Name{
				First:  p.Name.FirstName,
				Middle: p.Name.MiddleName,
				Last:   p.Name.LastName,
			},
			Email:        p.Email,
			ContactNo:    p.ContactNo,
			Gender:       p.Gender,
			Designation:  p.Designation,
			SemesterID:   p.AdmissionSemester,
			DepartmentID: p.AcademicDepartment,
			FacultyID:    p.AcademicFaculty,
		}

		created, err := h.identities.Provision(r.Context(), role, in, identity.IdentityInput{Password: payload.Password})
		if err != nil {
			WriteAppError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusCreated, created)
	}
}

func (h *Handler) getProfile(role identity.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		publicID := strings.TrimSpace(chi.URLParam(r, "id"))
		if err := service.AuthorizeProfileAccess(httpmiddleware.GetClaims(r.Context()), role, publicID, false); err != nil {
			WriteAppError(w, r, err)
			return
		}

		found, err := h.identities.Get(r.Context(), publicID)
		if err != nil {
			WriteAppError(w, r, err)
			return
		}
		if found.Role != role || found.Profile == nil {
			WriteError(w, http.StatusNotFound, string(apperr.KindNotFound), "perfil não encontrado", nil)
			return
		}
		WriteJSON(w, http.StatusOK, found.Profile)
	}
}

func (h *Handler) updateProfile(role identity.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		publicID := strings.TrimSpace(chi.URLParam(r, "id"))
		if err := service.AuthorizeProfileAccess(httpmiddleware.GetClaims(r.Context()), role, publicID, true); err != nil {
			WriteAppError(w, r, err)
			return
		}

		var payload struct {
			Name *struct {
				FirstName  *string `json:"firstName"`
				MiddleName *string `json:"middleName"`
				LastName   *string `json:"lastName"`
			} `json:"name"`
			Email       *string `json:"email"`
			ContactNo   *string `json:"contactNo"`
			Gender      *string `json:"gender"`
			Designation *string `json:"designation"`
		}
		if err := decodeJSON(r, &payload); err != nil {
			WriteAppError(w, r, err)
			return
		}

		patch := identity.ProfilePatch{
			Email:       payload.Email,
			ContactNo:   payload.ContactNo,
			Gender:      payload.Gender,
			Designation: payload.Designation,
		}
		if payload.Name != nil {
			patch.FirstName = payload.Name.FirstName
			patch.MiddleName = payload.Name.MiddleName
			patch.LastName = payload.Name.LastName
		}

		updated, err := h.identities.UpdateProfile(r.Context(), role, publicID, patch)
		if err != nil {
			WriteAppError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, updated)
	}
}

func (h *Handler) deleteProfile(role identity.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		publicID := strings.TrimSpace(chi.URLParam(r, "id"))
		if err := h.identities.DeleteProfile(r.Context(), role, publicID); err != nil {
			WriteAppError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]string{"id": publicID, "status": "deleted"})
	}
}
