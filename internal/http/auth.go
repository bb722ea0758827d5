package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gestaozabele/academico/internal/apperr"
	httpmiddleware "github.com/gestaozabele/academico/internal/http/middleware"
)

const refreshCookieName = "refreshToken"

// Login autentica pelo id público e devolve o token de acesso; o refresh vai no cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ID       string `json:"id"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		WriteAppError(w, r, err)
		return
	}
	if strings.TrimSpace(payload.ID) == "" || payload.Password == "" {
		WriteError(w, http.StatusBadRequest, string(apperr.KindBadRequest), "id e senha são obrigatórios", nil)
		return
	}

	result, err := h.auth.Login(r.Context(), payload.ID, payload.Password)
	if err != nil {
		WriteAppError(w, r, err)
		return
	}

	h.setRefreshCookie(w, result.RefreshToken, time.Now().Add(h.tokens.RefreshTTL()))
	WriteJSON(w, http.StatusOK, result)
}

// RefreshToken emite novo token de acesso a partir do cookie ou do corpo JSON.
func (h *Handler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	token := ""
	if c, err := r.Cookie(refreshCookieName); err == nil {
		token = c.Value
	}
	if token == "" && r.ContentLength != 0 {
		var payload struct {
			RefreshToken string `json:"refreshToken"`
		}
		if err := decodeJSON(r, &payload); err != nil {
			WriteAppError(w, r, err)
			return
		}
		token = payload.RefreshToken
	}
	if strings.TrimSpace(token) == "" {
		WriteError(w, http.StatusUnauthorized, string(apperr.KindUnauthorized), "refresh ausente", nil)
		return
	}

	access, err := h.auth.Refresh(r.Context(), token)
	if err != nil {
		WriteAppError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"accessToken": access})
}

// ChangePassword troca a senha do usuário autenticado.
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	subject, ok := httpmiddleware.GetSubjectID(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, string(apperr.KindUnauthorized), "identificação inválida", nil)
		return
	}

	var payload struct {
		OldPassword string `json:"oldPassword"`
		NewPassword string `json:"newPassword"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		WriteAppError(w, r, err)
		return
	}
	if payload.OldPassword == "" || payload.NewPassword == "" {
		WriteError(w, http.StatusBadRequest, string(apperr.KindBadRequest), "senha atual e nova são obrigatórias", nil)
		return
	}

	if err := h.auth.ChangePassword(r.Context(), subject, payload.OldPassword, payload.NewPassword); err != nil {
		WriteAppError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "password_changed"})
}

// ForgotPassword envia o link de redefinição para o e-mail cadastrado.
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ID string `json:"id"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		WriteAppError(w, r, err)
		return
	}
	if strings.TrimSpace(payload.ID) == "" {
		WriteError(w, http.StatusBadRequest, string(apperr.KindBadRequest), "id obrigatório", nil)
		return
	}

	if err := h.auth.ForgotPassword(r.Context(), payload.ID); err != nil {
		WriteAppError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "reset_link_sent"})
}

// ResetPassword grava nova senha; o token de recuperação vem em Authorization.
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	token := httpmiddleware.BearerToken(r)
	if token == "" {
		WriteError(w, http.StatusUnauthorized, string(apperr.KindUnauthorized), "token ausente", nil)
		return
	}

	var payload struct {
		ID          string `json:"id"`
		NewPassword string `json:"newPassword"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		WriteAppError(w, r, err)
		return
	}

	if err := h.auth.ResetPassword(r.Context(), payload.ID, payload.NewPassword, token); err != nil {
		WriteAppError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "password_reset"})
}

func (h *Handler) setRefreshCookie(w http.ResponseWriter, token string, expires time.Time) {
	secure := !h.devCookies
	sameSite := http.SameSiteNoneMode
	if h.devCookies {
		sameSite = http.SameSiteLaxMode
	}
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   secure,
		SameSite: sameSite,
	})
}
