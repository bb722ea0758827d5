package service

import (
	"github.com/gestaozabele/academico/internal/apperr"
	"github.com/gestaozabele/academico/internal/auth"
	"github.com/gestaozabele/academico/internal/identity"
)

// ProvisionerRoles são os papéis autorizados a criar contas.
var ProvisionerRoles = []string{string(identity.RoleAdmin)}

// CanProvision indica se o papel do chamador pode criar contas do papel alvo.
func CanProvision(actor string, target identity.Role) bool {
	if actor != string(identity.RoleAdmin) {
		return false
	}
	return target.Valid()
}

// AuthorizeProfileAccess libera leitura e alteração do perfil: administradores
// acessam qualquer perfil, docentes leem alunos e cada usuário acessa o próprio.
func AuthorizeProfileAccess(claims *auth.Claims, target identity.Role, publicID string, write bool) error {
	if claims == nil {
		return apperr.Unauthorized("não autenticado")
	}
	switch {
	case claims.Role == string(identity.RoleAdmin):
		return nil
	case claims.PublicID == publicID && claims.Role == string(target):
		return nil
	case !write && claims.Role == string(identity.RoleFaculty) && target == identity.RoleStudent:
		return nil
	}
	return apperr.Forbidden("acesso negado")
}
