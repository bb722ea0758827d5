package service

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gestaozabele/academico/internal/apperr"
	"github.com/gestaozabele/academico/internal/auth"
	"github.com/gestaozabele/academico/internal/identity"
	"github.com/gestaozabele/academico/internal/mail"
	"github.com/gestaozabele/academico/internal/metrics"
)

type authRepository interface {
	GetByPublicID(ctx context.Context, publicID string) (*identity.Identity, error)
	GetByID(ctx context.Context, id uuid.UUID) (*identity.Identity, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, hash string, mustChange bool) error
}

// AuthService concentra login, refresh e ciclo de vida da senha.
type AuthService struct {
	repo          authRepository
	tokens        *auth.TokenManager
	mailer        mail.Mailer
	resetLinkBase string
	hash          func(string) (string, error)
	metrics       metrics.Recorder
}

// AuthOption ajusta dependências opcionais.
type AuthOption func(*AuthService)

func WithAuthMetrics(m metrics.Recorder) AuthOption {
	return func(s *AuthService) { s.metrics = m }
}

func WithPasswordHasher(fn func(string) (string, error)) AuthOption {
	return func(s *AuthService) { s.hash = fn }
}

// NewAuthService cria novo serviço. resetLinkBase recebe "id=...&token=..." concatenado.
func NewAuthService(repo authRepository, tokens *auth.TokenManager, mailer mail.Mailer, resetLinkBase string, opts ...AuthOption) *AuthService {
	s := &AuthService{
		repo:          repo,
		tokens:        tokens,
		mailer:        mailer,
		resetLinkBase: resetLinkBase,
		hash:          auth.Hash,
		metrics:       metrics.Nop{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Tokens expõe o gerenciador de JWT (útil em middlewares).
func (s *AuthService) Tokens() *auth.TokenManager {
	return s.tokens
}

// LoginResult representa retorno do login.
type LoginResult struct {
	AccessToken         string        `json:"accessToken"`
	RefreshToken        string        `json:"-"`
	NeedsPasswordChange bool          `json:"needsPasswordChange"`
	Role                identity.Role `json:"role"`
	PublicID            string        `json:"id"`
}

// Login verifica a credencial e emite o par acesso + refresh.
func (s *AuthService) Login(ctx context.Context, publicID, password string) (*LoginResult, error) {
	user, err := s.lookupByPublicID(ctx, publicID)
	if err != nil {
		s.metrics.AuthAttempt("login", metrics.OutcomeFailed)
		return nil, err
	}

	if !auth.Verify(password, user.PasswordHash) {
		log.Warn().Str("public_id", user.PublicID).Msg("login: senha inválida")
		s.metrics.AuthAttempt("login", metrics.OutcomeFailed)
		return nil, apperr.Unauthorized("senha incorreta")
	}

	access, err := s.tokens.IssueAccess(user.ID, string(user.Role), user.PublicID)
	if err != nil {
		return nil, err
	}
	refresh, err := s.tokens.IssueRefresh(user.ID, string(user.Role), user.PublicID)
	if err != nil {
		return nil, err
	}

	s.metrics.AuthAttempt("login", metrics.OutcomeOK)
	return &LoginResult{
		AccessToken:         access,
		RefreshToken:        refresh,
		NeedsPasswordChange: user.MustChangePassword,
		Role:                user.Role,
		PublicID:            user.PublicID,
	}, nil
}

// Refresh valida o refresh token e emite apenas um novo token de acesso.
// O refresh token não é rotacionado nem invalidado.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	claims, err := s.tokens.ParseRefresh(refreshToken)
	if err != nil {
		s.metrics.AuthAttempt("refresh", metrics.OutcomeFailed)
		return "", apperr.Wrap(apperr.KindForbidden, "refresh token inválido", err)
	}
	subject, err := claims.SubjectID()
	if err != nil {
		s.metrics.AuthAttempt("refresh", metrics.OutcomeFailed)
		return "", apperr.Wrap(apperr.KindForbidden, "refresh token inválido", err)
	}

	user, err := s.repo.GetByID(ctx, subject)
	if err != nil {
		s.metrics.AuthAttempt("refresh", metrics.OutcomeFailed)
		if errors.Is(err, identity.ErrNotFound) {
			return "", apperr.NotFound("usuário não existe")
		}
		return "", apperr.StorageFailed("falha ao consultar usuário", err)
	}

	access, err := s.tokens.IssueAccess(user.ID, string(user.Role), user.PublicID)
	if err != nil {
		return "", err
	}
	s.metrics.AuthAttempt("refresh", metrics.OutcomeOK)
	return access, nil
}

// ChangePassword troca a senha do próprio usuário e limpa a troca obrigatória.
func (s *AuthService) ChangePassword(ctx context.Context, identityID uuid.UUID, oldPassword, newPassword string) error {
	user, err := s.repo.GetByID(ctx, identityID)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return apperr.NotFound("usuário não existe")
		}
		return apperr.StorageFailed("falha ao consultar usuário", err)
	}

	if !auth.Verify(oldPassword, user.PasswordHash) {
		s.metrics.AuthAttempt("change_password", metrics.OutcomeFailed)
		return apperr.Unauthorized("senha atual incorreta")
	}

	if err := s.overwrite(ctx, user, newPassword, false); err != nil {
		return err
	}
	s.metrics.AuthAttempt("change_password", metrics.OutcomeOK)
	return nil
}

// ForgotPassword envia o link de redefinição para o e-mail do perfil.
func (s *AuthService) ForgotPassword(ctx context.Context, publicID string) error {
	user, err := s.repo.GetByPublicID(ctx, strings.TrimSpace(publicID))
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return apperr.BadRequest("usuário não existe")
		}
		return apperr.StorageFailed("falha ao consultar usuário", err)
	}
	if user.Profile == nil {
		return apperr.BadRequest("perfil não encontrado")
	}
	email := strings.TrimSpace(user.Profile.Email)
	if email == "" {
		return apperr.BadRequest("e-mail não cadastrado")
	}

	token, err := s.tokens.IssueRecovery(user.PublicID)
	if err != nil {
		return err
	}
	link := s.resetLinkBase + "id=" + url.QueryEscape(user.PublicID) + "&token=" + token

	msg, err := mail.ResetPasswordMessage(email, user.Profile.Name.First, link, s.tokens.RecoveryTTL())
	if err != nil {
		return err
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		log.Error().Err(err).Str("public_id", user.PublicID).Msg("forgot password: envio falhou")
		return apperr.StorageFailed("falha ao enviar e-mail", err)
	}

	s.metrics.AuthAttempt("forgot_password", metrics.OutcomeOK)
	return nil
}

// ResetPassword grava a nova senha mediante token de recuperação válido.
// O token precisa ter sido emitido para o mesmo id público.
func (s *AuthService) ResetPassword(ctx context.Context, publicID, newPassword, token string) error {
	user, err := s.repo.GetByPublicID(ctx, strings.TrimSpace(publicID))
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return apperr.BadRequest("usuário não existe")
		}
		return apperr.StorageFailed("falha ao consultar usuário", err)
	}

	claims, err := s.tokens.ParseRecovery(token)
	if err != nil {
		s.metrics.AuthAttempt("reset_password", metrics.OutcomeFailed)
		return apperr.Wrap(apperr.KindForbidden, "token de recuperação inválido", err)
	}
	if claims.PublicID != user.PublicID {
		s.metrics.AuthAttempt("reset_password", metrics.OutcomeFailed)
		return apperr.Forbidden("token de recuperação inválido")
	}

	if err := s.overwrite(ctx, user, newPassword, user.MustChangePassword); err != nil {
		return err
	}
	s.metrics.AuthAttempt("reset_password", metrics.OutcomeOK)
	return nil
}

func (s *AuthService) overwrite(ctx context.Context, user *identity.Identity, password string, mustChange bool) error {
	if strings.TrimSpace(password) == "" {
		return apperr.BadRequest("nova senha obrigatória")
	}
	hash, err := s.hash(password)
	if err != nil {
		return apperr.StorageFailed("falha ao gerar hash", err)
	}
	if err := s.repo.UpdatePassword(ctx, user.ID, hash, mustChange); err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return apperr.NotFound("usuário não existe")
		}
		return apperr.StorageFailed("falha ao gravar senha", err)
	}
	return nil
}

func (s *AuthService) lookupByPublicID(ctx context.Context, publicID string) (*identity.Identity, error) {
	user, err := s.repo.GetByPublicID(ctx, strings.TrimSpace(publicID))
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return nil, apperr.NotFound("usuário não existe")
		}
		return nil, apperr.StorageFailed("falha ao consultar usuário", err)
	}
	return user, nil
}
