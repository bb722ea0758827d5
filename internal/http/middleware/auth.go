package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/gestaozabele/academico/internal/auth"
)

type contextKey string

const ContextKeyClaims contextKey = "claims"

// Auth valida o token de acesso e injeta as claims no contexto.
// Aceita "Bearer <token>" ou o token puro no cabeçalho Authorization.
func Auth(tokens *auth.TokenManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := BearerToken(r)
			if raw == "" {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "token ausente")
				return
			}

			claims, err := tokens.ParseAccess(raw)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "token inválido")
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyClaims, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken extrai o token do cabeçalho Authorization.
func BearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return header
}

// GetClaims recupera as claims do contexto.
func GetClaims(ctx context.Context) *auth.Claims {
	val, _ := ctx.Value(ContextKeyClaims).(*auth.Claims)
	return val
}

// GetSubjectID converte o subject para uuid.
func GetSubjectID(ctx context.Context) (uuid.UUID, bool) {
	c := GetClaims(ctx)
	if c == nil {
		return uuid.Nil, false
	}
	id, err := c.SubjectID()
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// GetRole recupera o papel do token.
func GetRole(ctx context.Context) string {
	if c := GetClaims(ctx); c != nil {
		return c.Role
	}
	return ""
}

// RequireRoles garante que o papel do token esteja na lista. Lista vazia aceita qualquer papel.
func RequireRoles(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		role = strings.ToLower(strings.TrimSpace(role))
		if role != "" {
			allowed[role] = struct{}{}
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if GetClaims(r.Context()) == nil {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "não autenticado")
				return
			}
			if len(allowed) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			if _, ok := allowed[strings.ToLower(GetRole(r.Context()))]; ok {
				next.ServeHTTP(w, r)
				return
			}
			writeError(w, http.StatusForbidden, "FORBIDDEN", "papel sem acesso a esta operação")
		})
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"data": nil,
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}
